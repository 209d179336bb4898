package model

import "time"

// SeatStatus enumerates the lifecycle states of a seat within one
// schedule.  A seat is AVAILABLE until a user places a time-bounded
// lock on it, LOCKED while exactly one non-expired lock exists, and
// BOOKED once the lock has been promoted into a permanent booking.
// BOOKED is terminal for that schedule's seat.
type SeatStatus string

const (
    SeatAvailable SeatStatus = "AVAILABLE" // no lock and no booking
    SeatLocked    SeatStatus = "LOCKED"    // held by one owner with an expiry
    SeatBooked    SeatStatus = "BOOKED"    // promoted; terminal
)

// Seat describes the authoritative state of a single physical seat
// for one schedule.  Identity is the pair (ScheduleID, SeatNumber).
// OwnerID, LockedAt and ExpiresAt are only meaningful while the
// status is LOCKED; a lock whose ExpiresAt has passed is treated as
// AVAILABLE by every read path even before cleanup removes it.
//
// Fields:
//  ScheduleID – schedule this seat belongs to.
//  SeatNumber – 1-based physical seat number on the bus.
//  Status     – current availability status.
//  OwnerID    – user holding the lock (zero when not locked).
//  LockedAt   – when the current lock was granted.
//  ExpiresAt  – when the current lock lapses.
type Seat struct {
    ScheduleID uint64     `json:"schedule_id"`
    SeatNumber uint32     `json:"seat_number"`
    Status     SeatStatus `json:"status"`
    OwnerID    uint64     `json:"owner_id,omitempty"`
    LockedAt   time.Time  `json:"locked_at,omitempty"`
    ExpiresAt  time.Time  `json:"expires_at,omitempty"`
}

// SeatSnapshot is the full, consistent view of one schedule's seat
// map at a committed version.  Subscribers joining the delta stream
// receive a snapshot before any deltas so no client ever derives
// state from a partial history.
type SeatSnapshot struct {
    ScheduleID uint64   `json:"schedule_id"`
    Version    uint64   `json:"version"`
    Booked     []uint32 `json:"booked"`
    Locked     []uint32 `json:"locked"`
    Available  []uint32 `json:"available"`
}

// SeatDelta is the compact change notice published after every
// committed mutation of a schedule's seat map.  Occupied lists seats
// that became booked, Locked lists seats newly locked, Released
// lists seats returned to the pool (explicit release or expiry).
// Versions are assigned in commit order and deltas are delivered to
// every subscriber of the schedule in that order.
type SeatDelta struct {
    ScheduleID uint64   `json:"schedule_id"`
    Version    uint64   `json:"version"`
    Occupied   []uint32 `json:"occupied,omitempty"`
    Locked     []uint32 `json:"locked,omitempty"`
    Released   []uint32 `json:"released,omitempty"`
}

// Empty reports whether the delta carries no seat changes at all.
// The coordinator never publishes an empty delta.
func (d SeatDelta) Empty() bool {
    return len(d.Occupied) == 0 && len(d.Locked) == 0 && len(d.Released) == 0
}
