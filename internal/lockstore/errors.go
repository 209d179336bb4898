// Package lockstore implements the authoritative seat-lock table for a
// single schedule.  These error values let higher layers such as the
// coordinator and handlers distinguish between failure scenarios.
// Seat contention itself is not an error: TryLock reports denied seats
// in its result, while a PromoteConflictError names exactly which
// seats stopped a promotion so the client can re-run seat selection
// for those alone.
package lockstore

import (
    "errors"
    "fmt"
)

// ErrLockExpired is returned when an operation requires an active lock
// session but the caller's session has lapsed or never existed.  The
// user must re-lock the seats before continuing.
var ErrLockExpired = errors.New("lock expired")

// ErrUnknownSeat is returned when a seat number is outside the
// schedule's physical seat range.
var ErrUnknownSeat = errors.New("unknown seat")

// ErrUnknownSchedule is returned by the coordinator when no seat table
// exists for the requested schedule.
var ErrUnknownSchedule = errors.New("unknown schedule")

// PromoteConflictError reports a failed promotion.  Seats lists every
// requested seat that is no longer locked by the caller (expired,
// released, or taken by another owner).  Promotion is all-or-nothing:
// when this error is returned, no seat state has changed.
type PromoteConflictError struct {
    Seats []uint32
}

func (e *PromoteConflictError) Error() string {
    return fmt.Sprintf("promote conflict: seats %v are no longer held by caller", e.Seats)
}
