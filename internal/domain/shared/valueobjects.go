package shared

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// Membership Source
// ═══════════════════════════════════════════════════════════════════════════

// Source records who created a level or badge membership.
type Source string

const (
	// SourceAuto is set by engine evaluation.
	SourceAuto Source = "auto"

	// SourceManual is set by an administrative grant or assignment.
	SourceManual Source = "manual"
)

// IsValid checks if the source is one of the known values.
func (s Source) IsValid() bool {
	return s == SourceAuto || s == SourceManual
}

// ═══════════════════════════════════════════════════════════════════════════
// Clock
// ═══════════════════════════════════════════════════════════════════════════

// Clock supplies the current time. Engines take it as an explicit input so
// evaluation is deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant until moved.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a FixedClock at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ═══════════════════════════════════════════════════════════════════════════
// Identifiers
// ═══════════════════════════════════════════════════════════════════════════

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// RequireText trims s and returns ErrMissingField naming field when empty.
func RequireText(domain, op, field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", WrapError(domain, op, ErrValidation, field+" is required", ErrMissingField)
	}
	return s, nil
}
