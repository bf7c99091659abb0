package postgres

import (
	"context"
	"fmt"

	"github.com/schoolplay/progression/pkg/logger"
)

// StudentLocker implements student.Locker with session advisory locks. The
// lock is taken on a dedicated pooled connection and held for the whole
// callback, so work for one student is serialized across processes.
type StudentLocker struct {
	conn *Connection
	log  *logger.Logger
}

// NewStudentLocker creates a StudentLocker.
func NewStudentLocker(conn *Connection, log *logger.Logger) *StudentLocker {
	if log == nil {
		log = logger.Nop()
	}
	return &StudentLocker{conn: conn, log: log.With(logger.Component("student_locker"))}
}

// WithStudentLock runs fn while holding the student's advisory lock.
func (l *StudentLocker) WithStudentLock(ctx context.Context, studentID string, fn func(ctx context.Context) error) error {
	c, err := l.conn.Pool().Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock connection: %w", err)
	}
	defer c.Release()

	if _, err := c.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, studentID); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	defer func() {
		unlockCtx := context.WithoutCancel(ctx)
		if _, err := c.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, studentID); err != nil {
			// A session that failed to unlock must not return to the pool.
			l.log.Error("advisory unlock failed", logger.StudentID(studentID), logger.Err(err))
			_ = c.Conn().Close(unlockCtx)
		}
	}()

	return fn(ctx)
}
