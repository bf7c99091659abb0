// Package student describes the Student Directory the progression engine
// consumes: who exists, which role they hold and when their account was
// created.
//
// The engine never creates or edits accounts. It only asks two questions
// before any mutation:
//
//	ok, err := dir.IsStudent(ctx, id)   // may the target earn points?
//	role, err := dir.RoleOf(ctx, id)    // ErrStudentNotFound for unknown ids
//
// and, for recalculation and the leaderboard, enumerates the full student
// set with ListStudentIDs.
//
// # Concurrency
//
// Locker serializes the "insert transaction, derive levels, badges and
// ranking" unit per student. Different students never share a lock key, so
// awards to different students never block each other.
package student
