package lockstore

import (
    "slices"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// seatState is the mutable per-seat record.  A seat with a zero owner
// and no booked flag is available.  A locked seat whose expiresAt has
// passed counts as available on every read path; cleanup merely makes
// the release visible to other viewers promptly.
type seatState struct {
    booked    bool
    ownerID   uint64
    lockedAt  time.Time
    expiresAt time.Time
}

// LockSession is the ephemeral set of seats one user currently holds
// on one schedule.  All seats in a session share a single expiry that
// is refreshed as a whole on each successful lock or extend, so a user
// working through the booking wizard never has seats lapsing one by one.
type LockSession struct {
    UserID    uint64
    Seats     map[uint32]struct{}
    ExpiresAt time.Time
}

// SeatNumbers returns the session's seats in ascending order.
func (s *LockSession) SeatNumbers() []uint32 {
    out := make([]uint32, 0, len(s.Seats))
    for n := range s.Seats {
        out = append(out, n)
    }
    slices.Sort(out)
    return out
}

// Table is the authoritative seat map for exactly one schedule.  It is
// the single source of truth for seat availability.  Table is not safe
// for concurrent use; the coordinator owns one table per schedule and
// serializes every operation on it.  Each mutation that changes at
// least one seat bumps the table version, which is what orders the
// broadcast deltas for the schedule.
type Table struct {
    scheduleID uint64
    capacity   uint32
    seats      map[uint32]*seatState
    sessions   map[uint64]*LockSession
    version    uint64
}

// NewTable builds a table for a schedule with seat numbers 1..capacity.
// Seats listed in booked are marked terminal immediately; they come
// from bookings already persisted for the schedule.
func NewTable(scheduleID uint64, capacity uint32, booked []uint32) *Table {
    t := &Table{
        scheduleID: scheduleID,
        capacity:   capacity,
        seats:      make(map[uint32]*seatState, capacity),
        sessions:   make(map[uint64]*LockSession),
    }
    for n := uint32(1); n <= capacity; n++ {
        t.seats[n] = &seatState{}
    }
    for _, n := range booked {
        if st, ok := t.seats[n]; ok {
            st.booked = true
        }
    }
    return t
}

// ScheduleID returns the schedule this table belongs to.
func (t *Table) ScheduleID() uint64 { return t.scheduleID }

// Version returns the current commit version of the table.
func (t *Table) Version() uint64 { return t.version }

// lockActive reports whether the seat carries a live lock at now.
func lockActive(st *seatState, now time.Time) bool {
    return st.ownerID != 0 && now.Before(st.expiresAt)
}

// clearIfExpired lazily resets a lapsed lock so stale owners never
// block new locks.  It returns true when a lock was cleared.
func clearIfExpired(st *seatState, now time.Time) bool {
    if st.ownerID != 0 && !now.Before(st.expiresAt) {
        st.ownerID = 0
        st.lockedAt = time.Time{}
        st.expiresAt = time.Time{}
        return true
    }
    return false
}

// dropSessionSeat removes one seat from the owner's session and
// destroys the session when it becomes empty.
func (t *Table) dropSessionSeat(ownerID uint64, seat uint32) {
    sess, ok := t.sessions[ownerID]
    if !ok {
        return
    }
    delete(sess.Seats, seat)
    if len(sess.Seats) == 0 {
        delete(t.sessions, ownerID)
    }
}

// LockResult reports the per-seat outcome of a TryLock call.  Partial
// grants are normal: each requested seat is checked independently and
// denials are always reported, never silently dropped.  Reclaimed
// lists seats whose expired lock belonged to a different owner and was
// cleared by this call; the coordinator broadcasts them as released so
// the previous owner learns the seat is gone.
type LockResult struct {
    Granted   []uint32
    Denied    []uint32
    Reclaimed []uint32
    ExpiresAt time.Time
}

// TryLock attempts to lock each of the requested seats for userID.
// A seat already booked, or locked by a different non-expired owner,
// is denied; all others are granted.  Seats the user already holds are
// re-granted (idempotent).  On any grant, the user's whole lock
// session is stamped with a fresh expiry of now+ttl, refreshing every
// seat the session holds.  Unknown seat numbers are denied.
func (t *Table) TryLock(userID uint64, seatNumbers []uint32, ttl time.Duration, now time.Time) LockResult {
    res := LockResult{}
    for _, n := range seatNumbers {
        st, ok := t.seats[n]
        if !ok {
            res.Denied = append(res.Denied, n)
            continue
        }
        if st.booked {
            res.Denied = append(res.Denied, n)
            continue
        }
        if expiredOwner := st.ownerID; clearIfExpired(st, now) {
            t.dropSessionSeat(expiredOwner, n)
            if expiredOwner != userID {
                res.Reclaimed = append(res.Reclaimed, n)
            }
        }
        if lockActive(st, now) && st.ownerID != userID {
            res.Denied = append(res.Denied, n)
            continue
        }
        if st.ownerID == 0 {
            st.lockedAt = now
        }
        st.ownerID = userID
        res.Granted = append(res.Granted, n)
    }
    if len(res.Granted) == 0 {
        slices.Sort(res.Denied)
        return res
    }
    sess, ok := t.sessions[userID]
    if !ok {
        sess = &LockSession{UserID: userID, Seats: make(map[uint32]struct{})}
        t.sessions[userID] = sess
    }
    for _, n := range res.Granted {
        sess.Seats[n] = struct{}{}
    }
    // Refresh the shared expiry for every seat in the session, not only
    // the newly granted ones.
    sess.ExpiresAt = now.Add(ttl)
    for n := range sess.Seats {
        st := t.seats[n]
        st.ownerID = userID
        st.expiresAt = sess.ExpiresAt
    }
    res.ExpiresAt = sess.ExpiresAt
    slices.Sort(res.Granted)
    slices.Sort(res.Denied)
    slices.Sort(res.Reclaimed)
    t.version++
    return res
}

// Extend refreshes the shared expiry of the caller's lock session to
// now+ttl.  It returns ErrLockExpired when the user has no live
// session on this schedule (never created, fully released, or lapsed).
// No seat changes visibility, so the table version is untouched and no
// delta is owed to subscribers.
func (t *Table) Extend(userID uint64, ttl time.Duration, now time.Time) (time.Time, error) {
    sess, ok := t.sessions[userID]
    if !ok || !now.Before(sess.ExpiresAt) {
        return time.Time{}, ErrLockExpired
    }
    sess.ExpiresAt = now.Add(ttl)
    for n := range sess.Seats {
        st := t.seats[n]
        if st.ownerID == userID {
            st.expiresAt = sess.ExpiresAt
        }
    }
    return sess.ExpiresAt, nil
}

// Release frees the given seats held by userID, or the user's whole
// session when seatNumbers is nil.  Seats not actually held by the
// user are ignored.  The freed seat numbers are returned in ascending
// order so callers can broadcast them.
func (t *Table) Release(userID uint64, seatNumbers []uint32, now time.Time) []uint32 {
    sess, ok := t.sessions[userID]
    if !ok {
        return nil
    }
    if seatNumbers == nil {
        seatNumbers = sess.SeatNumbers()
    }
    var released []uint32
    for _, n := range seatNumbers {
        st, ok := t.seats[n]
        if !ok || st.booked || st.ownerID != userID {
            continue
        }
        // Report the seat even when its lock already lapsed: viewers may
        // still render it locked until a delta tells them otherwise.
        st.ownerID = 0
        st.lockedAt = time.Time{}
        st.expiresAt = time.Time{}
        t.dropSessionSeat(userID, n)
        released = append(released, n)
    }
    if len(released) > 0 {
        t.version++
        slices.Sort(released)
    }
    return released
}

// Promote converts the caller's locks on the given seats into terminal
// bookings.  It succeeds only when every requested seat is currently
// locked by userID and the session is unexpired; otherwise it returns
// a PromoteConflictError naming the invalid seats and changes nothing.
// On success the seats leave the user's session (destroying it when it
// empties) and can never be locked again for this schedule.
func (t *Table) Promote(userID uint64, seatNumbers []uint32, now time.Time) error {
    var conflict []uint32
    for _, n := range seatNumbers {
        st, ok := t.seats[n]
        if !ok || st.booked || st.ownerID != userID || !lockActive(st, now) {
            conflict = append(conflict, n)
        }
    }
    if len(conflict) > 0 {
        slices.Sort(conflict)
        return &PromoteConflictError{Seats: conflict}
    }
    for _, n := range seatNumbers {
        st := t.seats[n]
        st.booked = true
        st.ownerID = 0
        st.lockedAt = time.Time{}
        st.expiresAt = time.Time{}
        t.dropSessionSeat(userID, n)
    }
    t.version++
    return nil
}

// ExpireLocks reclaims every lapsed lock in the table and returns the
// freed seat numbers.  The lazy checks in the read paths already treat
// these seats as available; the sweep exists so other viewers hear
// about the release promptly instead of on their next interaction.
func (t *Table) ExpireLocks(now time.Time) []uint32 {
    var released []uint32
    for n, st := range t.seats {
        owner := st.ownerID
        if clearIfExpired(st, now) {
            t.dropSessionSeat(owner, n)
            released = append(released, n)
        }
    }
    // Drop sessions whose shared expiry passed even if their seats were
    // already reclaimed individually.
    for uid, sess := range t.sessions {
        if !now.Before(sess.ExpiresAt) {
            delete(t.sessions, uid)
        }
    }
    if len(released) > 0 {
        t.version++
        slices.Sort(released)
    }
    return released
}

// Snapshot returns the full seat map at the current version.  Expired
// locks are reported as available without waiting for the sweep.
func (t *Table) Snapshot(now time.Time) model.SeatSnapshot {
    snap := model.SeatSnapshot{
        ScheduleID: t.scheduleID,
        Version:    t.version,
        Booked:     []uint32{},
        Locked:     []uint32{},
        Available:  []uint32{},
    }
    for n := uint32(1); n <= t.capacity; n++ {
        st := t.seats[n]
        switch {
        case st.booked:
            snap.Booked = append(snap.Booked, n)
        case lockActive(st, now):
            snap.Locked = append(snap.Locked, n)
        default:
            snap.Available = append(snap.Available, n)
        }
    }
    return snap
}

// SeatsHeldBy returns the seats userID currently holds with a live
// lock, in ascending order.  An expired session yields nil.
func (t *Table) SeatsHeldBy(userID uint64, now time.Time) []uint32 {
    sess, ok := t.sessions[userID]
    if !ok || !now.Before(sess.ExpiresAt) {
        return nil
    }
    var held []uint32
    for n := range sess.Seats {
        st := t.seats[n]
        if st.ownerID == userID && lockActive(st, now) {
            held = append(held, n)
        }
    }
    slices.Sort(held)
    return held
}

// SessionExpiry returns the shared expiry of the user's session and
// whether a live session exists at now.
func (t *Table) SessionExpiry(userID uint64, now time.Time) (time.Time, bool) {
    sess, ok := t.sessions[userID]
    if !ok || !now.Before(sess.ExpiresAt) {
        return time.Time{}, false
    }
    return sess.ExpiresAt, true
}

// SeatView returns the authoritative record for one seat, primarily
// for diagnostics and tests.
func (t *Table) SeatView(n uint32, now time.Time) (model.Seat, error) {
    st, ok := t.seats[n]
    if !ok {
        return model.Seat{}, ErrUnknownSeat
    }
    seat := model.Seat{ScheduleID: t.scheduleID, SeatNumber: n, Status: model.SeatAvailable}
    switch {
    case st.booked:
        seat.Status = model.SeatBooked
    case lockActive(st, now):
        seat.Status = model.SeatLocked
        seat.OwnerID = st.ownerID
        seat.LockedAt = st.lockedAt
        seat.ExpiresAt = st.expiresAt
    }
    return seat, nil
}
