// Package reconciler maintains a viewer's local seat map as a function
// of the last authoritative snapshot, the deltas applied in order, and
// the viewer's own optimistic intent.  Its one precedence rule is that
// the server always wins: optimistic state is reverted the moment the
// authoritative stream contradicts it, and lost seats are surfaced to
// the caller instead of silently vanishing.
package reconciler

import (
    "slices"
    "sync"

    "github.com/iliyamo/bus-seat-reservation/internal/broadcast"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// SeatView is what the seat button for one seat should render.
type SeatView string

const (
    ViewAvailable SeatView = "AVAILABLE" // clickable
    ViewMine      SeatView = "MINE"      // confirmed held by this viewer
    ViewPending   SeatView = "PENDING"   // optimistic, lock request in flight
    ViewTaken     SeatView = "TAKEN"     // locked by someone else
    ViewBooked    SeatView = "BOOKED"    // sold, terminal
)

// Reconciler tracks one viewer's picture of one schedule's seat map.
// All methods are safe for concurrent use so that a delta-stream
// goroutine and UI event handlers can share it.
type Reconciler struct {
    mu         sync.Mutex
    scheduleID uint64
    version    uint64
    synced     bool

    status  map[uint32]model.SeatStatus // authoritative view
    mine    map[uint32]struct{}         // seats confirmed held by us
    pending map[uint32]struct{}         // optimistic clicks awaiting a reply

    onSeatsLost func(seats []uint32)
}

// New returns a reconciler for one schedule.  onSeatsLost, if non-nil,
// is invoked whenever the server's view evicts seats this viewer
// believed it held, so the UI can warn the user.
func New(scheduleID uint64, onSeatsLost func(seats []uint32)) *Reconciler {
    return &Reconciler{
        scheduleID:  scheduleID,
        status:      make(map[uint32]model.SeatStatus),
        mine:        make(map[uint32]struct{}),
        pending:     make(map[uint32]struct{}),
        onSeatsLost: onSeatsLost,
    }
}

// ApplyEvent dispatches one broadcast event.  It returns true when the
// caller must fetch a fresh snapshot (a delta arrived out of order,
// which happens after missed events on a dropped connection).
func (r *Reconciler) ApplyEvent(ev broadcast.Event) (resync bool) {
    switch {
    case ev.Snapshot != nil:
        r.ApplySnapshot(*ev.Snapshot)
        return false
    case ev.Delta != nil:
        return r.ApplyDelta(*ev.Delta)
    }
    return false
}

// ApplySnapshot replaces the authoritative view wholesale.  Seats we
// believed were ours but the snapshot reports available or booked were
// lost (expired or promoted by someone else) and are surfaced via the
// lost callback.  A snapshot reporting a seat locked is compatible with
// it being ours; ownership is only ever revoked by an explicit denial
// or by the seat showing up as free or sold.
func (r *Reconciler) ApplySnapshot(snap model.SeatSnapshot) {
    r.mu.Lock()
    r.version = snap.Version
    r.synced = true
    r.status = make(map[uint32]model.SeatStatus, len(snap.Booked)+len(snap.Locked)+len(snap.Available))
    for _, n := range snap.Booked {
        r.status[n] = model.SeatBooked
    }
    for _, n := range snap.Locked {
        r.status[n] = model.SeatLocked
    }
    for _, n := range snap.Available {
        r.status[n] = model.SeatAvailable
    }
    var lost []uint32
    for n := range r.mine {
        if r.status[n] != model.SeatLocked {
            delete(r.mine, n)
            lost = append(lost, n)
        }
    }
    cb := r.onSeatsLost
    r.mu.Unlock()
    r.notifyLost(cb, lost)
}

// ApplyDelta applies one incremental change.  Deltas must arrive in
// commit order; a version gap means events were missed and the caller
// must resync from a snapshot (missed deltas are never replayed).
func (r *Reconciler) ApplyDelta(d model.SeatDelta) (resync bool) {
    r.mu.Lock()
    if !r.synced || d.Version != r.version+1 {
        r.synced = false
        r.mu.Unlock()
        return true
    }
    r.version = d.Version
    var lost []uint32
    for _, n := range d.Occupied {
        r.status[n] = model.SeatBooked
        if _, ok := r.mine[n]; ok {
            // Our own promotion confirms through the booking flow, not
            // the delta stream; a booked seat is no longer holdable.
            delete(r.mine, n)
        }
        delete(r.pending, n)
    }
    // Released applies before Locked: a seat whose expired lock was
    // reclaimed and re-granted to a new owner arrives in one delta
    // carrying both, and the release is what revokes the previous
    // owner's claim before the new lock lands.
    for _, n := range d.Released {
        r.status[n] = model.SeatAvailable
        if _, ok := r.mine[n]; ok {
            delete(r.mine, n)
            lost = append(lost, n)
        }
    }
    for _, n := range d.Locked {
        r.status[n] = model.SeatLocked
    }
    cb := r.onSeatsLost
    r.mu.Unlock()
    r.notifyLost(cb, lost)
    return false
}

// Click records the user tapping a seat.  When the seat is locally
// available it is optimistically marked pending and true is returned,
// telling the caller to issue the lock request.  Clicking a held seat
// returns false; deselection goes through ReleaseLocal.
func (r *Reconciler) Click(seat uint32) bool {
    r.mu.Lock()
    defer r.mu.Unlock()
    if _, ok := r.mine[seat]; ok {
        return false
    }
    if _, ok := r.pending[seat]; ok {
        return false
    }
    if st, ok := r.status[seat]; !ok || st != model.SeatAvailable {
        return false
    }
    r.pending[seat] = struct{}{}
    return true
}

// ApplyLockResult settles the optimistic pending marks from one lock
// response.  Granted seats become confirmed ours; denied seats revert
// to whatever the last authoritative state said, never blindly to
// available, since another viewer may hold them.
func (r *Reconciler) ApplyLockResult(granted, denied []uint32) {
    r.mu.Lock()
    defer r.mu.Unlock()
    for _, n := range granted {
        delete(r.pending, n)
        r.mine[n] = struct{}{}
        r.status[n] = model.SeatLocked
    }
    for _, n := range denied {
        delete(r.pending, n)
    }
}

// RequestTimedOut clears a pending mark whose lock request never got a
// reply.  The outcome is unknown, so the reconciler drops to unsynced
// and the caller must re-query the authoritative snapshot rather than
// assume success or failure.
func (r *Reconciler) RequestTimedOut(seat uint32) {
    r.mu.Lock()
    defer r.mu.Unlock()
    delete(r.pending, seat)
    r.synced = false
}

// ReleaseLocal forgets held seats after the caller issued a release
// request for them.  Passing nil forgets the whole selection, mirroring
// release(all) on navigation away from seat selection.
func (r *Reconciler) ReleaseLocal(seats []uint32) {
    r.mu.Lock()
    defer r.mu.Unlock()
    if seats == nil {
        for n := range r.mine {
            r.status[n] = model.SeatAvailable
        }
        r.mine = make(map[uint32]struct{})
        return
    }
    for _, n := range seats {
        if _, ok := r.mine[n]; ok {
            delete(r.mine, n)
            r.status[n] = model.SeatAvailable
        }
    }
}

// View returns the rendering state of one seat.
func (r *Reconciler) View(seat uint32) SeatView {
    r.mu.Lock()
    defer r.mu.Unlock()
    if _, ok := r.mine[seat]; ok {
        return ViewMine
    }
    if _, ok := r.pending[seat]; ok {
        return ViewPending
    }
    switch r.status[seat] {
    case model.SeatBooked:
        return ViewBooked
    case model.SeatLocked:
        return ViewTaken
    default:
        return ViewAvailable
    }
}

// MySeats returns the seats this viewer currently believes it holds,
// in ascending order.
func (r *Reconciler) MySeats() []uint32 {
    r.mu.Lock()
    defer r.mu.Unlock()
    out := make([]uint32, 0, len(r.mine))
    for n := range r.mine {
        out = append(out, n)
    }
    slices.Sort(out)
    return out
}

// Synced reports whether the local view is aligned with the stream.
// False means the caller must fetch a snapshot before trusting View.
func (r *Reconciler) Synced() bool {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.synced
}

func (r *Reconciler) notifyLost(cb func([]uint32), lost []uint32) {
    if cb != nil && len(lost) > 0 {
        slices.Sort(lost)
        cb(lost)
    }
}
