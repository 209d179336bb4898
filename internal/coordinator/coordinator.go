// Package coordinator is the only writer of the seat lock tables.  It
// serializes every lock, extend, release and promote operation behind
// one mutex per schedule, so concurrent requests for the same seat are
// resolved deterministically: the first request admitted to the
// schedule's critical section wins and later ones are denied rather
// than queued.  Operations on different schedules proceed in parallel.
package coordinator

import (
    "context"
    "log"
    "sync"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/broadcast"
    "github.com/iliyamo/bus-seat-reservation/internal/lockstore"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// entry pairs one schedule's table with the mutex that serializes it.
// The mutex is held only to decide, mutate and hand the delta to the
// hub; it is never held across I/O.
type entry struct {
    mu    sync.Mutex
    table *lockstore.Table
}

// Coordinator owns the lock tables of every registered schedule and
// the background sweep that reclaims expired locks.  All methods are
// safe for concurrent use.
type Coordinator struct {
    mu      sync.RWMutex // guards the schedules map, not the tables
    entries map[uint64]*entry

    hub     *broadcast.Hub
    lockTTL time.Duration
    now     func() time.Time
}

// New constructs a coordinator publishing to hub.  lockTTL is the
// expiry stamped on every granted or extended lock session; there is
// no such thing as a permanent lock.
func New(hub *broadcast.Hub, lockTTL time.Duration) *Coordinator {
    return &Coordinator{
        entries: make(map[uint64]*entry),
        hub:     hub,
        lockTTL: lockTTL,
        now:     time.Now,
    }
}

// SetClock overrides the time source; tests use it to drive expiry
// without sleeping.
func (co *Coordinator) SetClock(now func() time.Time) { co.now = now }

// LockTTL returns the TTL applied to lock sessions.
func (co *Coordinator) LockTTL() time.Duration { return co.lockTTL }

// Register adds a schedule's seat table and announces its initial
// snapshot to the broadcast hub.  Registering an already-known
// schedule replaces its table; callers do this only at startup.
func (co *Coordinator) Register(table *lockstore.Table) {
    co.mu.Lock()
    co.entries[table.ScheduleID()] = &entry{table: table}
    co.mu.Unlock()
    co.hub.Register(table.ScheduleID(), table.Snapshot(co.now()))
}

func (co *Coordinator) entry(scheduleID uint64) (*entry, error) {
    co.mu.RLock()
    e, ok := co.entries[scheduleID]
    co.mu.RUnlock()
    if !ok {
        return nil, lockstore.ErrUnknownSchedule
    }
    return e, nil
}

// publish hands a committed delta plus the matching post-commit
// snapshot to the hub.  Called with the schedule's mutex held so that
// deltas reach the hub in commit order; the hub itself never blocks.
func (co *Coordinator) publish(e *entry, delta model.SeatDelta, now time.Time) {
    if delta.Empty() {
        return
    }
    delta.Version = e.table.Version()
    co.hub.Publish(delta, e.table.Snapshot(now))
}

// Lock attempts to lock the requested seats for userID.  Each seat is
// checked independently; the result reports grants and denials
// explicitly and a partial grant is normal.  Granted seats join the
// user's lock session, whose shared expiry is refreshed to now+TTL.
func (co *Coordinator) Lock(scheduleID, userID uint64, seats []uint32) (lockstore.LockResult, error) {
    e, err := co.entry(scheduleID)
    if err != nil {
        return lockstore.LockResult{}, err
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    now := co.now()
    res := e.table.TryLock(userID, seats, co.lockTTL, now)
    if len(res.Granted) > 0 {
        log.Printf("coordinator: schedule=%d grant user=%d seats=%v until=%s",
            scheduleID, userID, res.Granted, res.ExpiresAt.UTC().Format(time.RFC3339))
        // Reclaimed seats ride along as released so the owner of the
        // expired lock hears the seat is gone, not just newly locked.
        co.publish(e, model.SeatDelta{ScheduleID: scheduleID, Locked: res.Granted, Released: res.Reclaimed}, now)
    }
    return res, nil
}

// Extend refreshes the caller's lock session expiry to now+TTL.  It
// fails with ErrLockExpired when the user holds no live session.
func (co *Coordinator) Extend(scheduleID, userID uint64) (time.Time, error) {
    e, err := co.entry(scheduleID)
    if err != nil {
        return time.Time{}, err
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.table.Extend(userID, co.lockTTL, co.now())
}

// Release frees the given seats, or the user's entire session when
// seats is nil, and broadcasts the freed seats.
func (co *Coordinator) Release(scheduleID, userID uint64, seats []uint32) ([]uint32, error) {
    e, err := co.entry(scheduleID)
    if err != nil {
        return nil, err
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    now := co.now()
    released := e.table.Release(userID, seats, now)
    co.publish(e, model.SeatDelta{ScheduleID: scheduleID, Released: released}, now)
    return released, nil
}

// Promote converts the caller's held locks on the given seats into
// terminal bookings.  It is all-or-nothing: when any seat is not
// currently locked by the caller, a *lockstore.PromoteConflictError
// naming the invalid seats is returned and nothing changes.
func (co *Coordinator) Promote(scheduleID, userID uint64, seats []uint32) error {
    e, err := co.entry(scheduleID)
    if err != nil {
        return err
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    now := co.now()
    if err := e.table.Promote(userID, seats, now); err != nil {
        return err
    }
    log.Printf("coordinator: schedule=%d promote user=%d seats=%v", scheduleID, userID, seats)
    co.publish(e, model.SeatDelta{ScheduleID: scheduleID, Occupied: seats}, now)
    return nil
}

// Snapshot returns the authoritative seat map for a schedule.
func (co *Coordinator) Snapshot(scheduleID uint64) (model.SeatSnapshot, error) {
    e, err := co.entry(scheduleID)
    if err != nil {
        return model.SeatSnapshot{}, err
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.table.Snapshot(co.now()), nil
}

// SeatsHeldBy returns the seats userID currently holds on a schedule.
// The booking session uses this to revalidate a resumed draft.
func (co *Coordinator) SeatsHeldBy(scheduleID, userID uint64) ([]uint32, error) {
    e, err := co.entry(scheduleID)
    if err != nil {
        return nil, err
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    return e.table.SeatsHeldBy(userID, co.now()), nil
}

// SessionExpiry reports the shared expiry of the user's lock session.
func (co *Coordinator) SessionExpiry(scheduleID, userID uint64) (time.Time, bool, error) {
    e, err := co.entry(scheduleID)
    if err != nil {
        return time.Time{}, false, err
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    exp, ok := e.table.SessionExpiry(userID, co.now())
    return exp, ok, nil
}

// SweepOnce reclaims expired locks across every schedule and
// broadcasts the freed seats, so viewers hear about expiry promptly
// instead of on their next interaction.  It returns the total number
// of seats reclaimed.
func (co *Coordinator) SweepOnce() int {
    co.mu.RLock()
    entries := make([]*entry, 0, len(co.entries))
    for _, e := range co.entries {
        entries = append(entries, e)
    }
    co.mu.RUnlock()

    total := 0
    for _, e := range entries {
        e.mu.Lock()
        now := co.now()
        released := e.table.ExpireLocks(now)
        if len(released) > 0 {
            log.Printf("coordinator: schedule=%d sweep reclaimed seats=%v", e.table.ScheduleID(), released)
            co.publish(e, model.SeatDelta{ScheduleID: e.table.ScheduleID(), Released: released}, now)
            total += len(released)
        }
        e.mu.Unlock()
    }
    return total
}

// RunSweep runs the expiry sweep on the given interval until the
// context is cancelled.  Start it from main in its own goroutine.
func (co *Coordinator) RunSweep(ctx context.Context, interval time.Duration) {
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            co.SweepOnce()
        }
    }
}
