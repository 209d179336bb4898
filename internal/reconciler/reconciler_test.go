package reconciler

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/bus-seat-reservation/internal/broadcast"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

func baseSnapshot() model.SeatSnapshot {
    return model.SeatSnapshot{
        ScheduleID: 1,
        Version:    10,
        Booked:     []uint32{1},
        Locked:     []uint32{2},
        Available:  []uint32{3, 4, 5},
    }
}

func TestSnapshotEstablishesView(t *testing.T) {
    r := New(1, nil)
    assert.False(t, r.Synced())

    r.ApplySnapshot(baseSnapshot())
    assert.True(t, r.Synced())
    assert.Equal(t, ViewBooked, r.View(1))
    assert.Equal(t, ViewTaken, r.View(2))
    assert.Equal(t, ViewAvailable, r.View(3))
}

func TestOrderedDeltasApply(t *testing.T) {
    r := New(1, nil)
    r.ApplySnapshot(baseSnapshot())

    resync := r.ApplyDelta(model.SeatDelta{ScheduleID: 1, Version: 11, Locked: []uint32{3}})
    require.False(t, resync)
    assert.Equal(t, ViewTaken, r.View(3))

    resync = r.ApplyDelta(model.SeatDelta{ScheduleID: 1, Version: 12, Released: []uint32{2, 3}})
    require.False(t, resync)
    assert.Equal(t, ViewAvailable, r.View(2))
    assert.Equal(t, ViewAvailable, r.View(3))
}

func TestVersionGapForcesResync(t *testing.T) {
    r := New(1, nil)
    r.ApplySnapshot(baseSnapshot())

    // Version 12 with 11 missing: the viewer missed an event.
    resync := r.ApplyDelta(model.SeatDelta{ScheduleID: 1, Version: 12, Locked: []uint32{3}})
    assert.True(t, resync)
    assert.False(t, r.Synced())

    // Further deltas keep demanding a snapshot until one arrives.
    assert.True(t, r.ApplyDelta(model.SeatDelta{ScheduleID: 1, Version: 13}))

    r.ApplySnapshot(model.SeatSnapshot{ScheduleID: 1, Version: 13, Available: []uint32{1, 2, 3, 4, 5}})
    assert.True(t, r.Synced())
    assert.False(t, r.ApplyDelta(model.SeatDelta{ScheduleID: 1, Version: 14, Locked: []uint32{4}}))
}

func TestClickOptimisticFlow(t *testing.T) {
    r := New(1, nil)
    r.ApplySnapshot(baseSnapshot())

    // Clickable only when locally available.
    assert.False(t, r.Click(1)) // booked
    assert.False(t, r.Click(2)) // taken
    require.True(t, r.Click(3))
    assert.Equal(t, ViewPending, r.View(3))

    // A second click while pending does not fire a second request.
    assert.False(t, r.Click(3))

    r.ApplyLockResult([]uint32{3}, nil)
    assert.Equal(t, ViewMine, r.View(3))
    assert.Equal(t, []uint32{3}, r.MySeats())
}

func TestDenialRevertsToAuthoritativeState(t *testing.T) {
    r := New(1, nil)
    r.ApplySnapshot(baseSnapshot())

    require.True(t, r.Click(4))
    // Before the reply lands, the stream reports someone else locked it.
    require.False(t, r.ApplyDelta(model.SeatDelta{ScheduleID: 1, Version: 11, Locked: []uint32{4}}))

    r.ApplyLockResult(nil, []uint32{4})
    // Denied seats revert to what the server last said, not to available.
    assert.Equal(t, ViewTaken, r.View(4))
}

func TestReleasedDeltaEvictsMineAndNotifies(t *testing.T) {
    var lost []uint32
    r := New(1, func(seats []uint32) { lost = seats })
    r.ApplySnapshot(baseSnapshot())

    require.True(t, r.Click(3))
    r.ApplyLockResult([]uint32{3}, nil)
    require.Equal(t, ViewMine, r.View(3))

    // The server expired our lock; the seat comes back as released.
    r.ApplyDelta(model.SeatDelta{ScheduleID: 1, Version: 11, Released: []uint32{3}})
    assert.Equal(t, []uint32{3}, lost)
    assert.Equal(t, ViewAvailable, r.View(3))
    assert.Empty(t, r.MySeats())
}

func TestRegrantDeltaEvictsPreviousOwner(t *testing.T) {
    var lost []uint32
    r := New(1, func(seats []uint32) { lost = seats })
    r.ApplySnapshot(baseSnapshot())
    require.True(t, r.Click(3))
    r.ApplyLockResult([]uint32{3}, nil)

    // The echo of our own grant reports the seat locked; that is
    // compatible with it being ours.
    require.False(t, r.ApplyDelta(model.SeatDelta{ScheduleID: 1, Version: 11, Locked: []uint32{3}}))
    assert.Equal(t, []uint32{3}, r.MySeats())

    // Our lock expired and another viewer took the seat in one commit:
    // the delta carries the release and the new lock together.  We lose
    // the seat and render it taken, not available.
    require.False(t, r.ApplyDelta(model.SeatDelta{ScheduleID: 1, Version: 12, Released: []uint32{3}, Locked: []uint32{3}}))
    assert.Equal(t, []uint32{3}, lost)
    assert.Empty(t, r.MySeats())
    assert.Equal(t, ViewTaken, r.View(3))
}

func TestSnapshotEvictsSeatsNoLongerLocked(t *testing.T) {
    var lost []uint32
    r := New(1, func(seats []uint32) { lost = seats })
    r.ApplySnapshot(baseSnapshot())
    require.True(t, r.Click(3))
    r.ApplyLockResult([]uint32{3}, nil)

    // A reconnect snapshot shows seat 3 available: our lock lapsed
    // while we were away.
    r.ApplySnapshot(model.SeatSnapshot{ScheduleID: 1, Version: 20, Available: []uint32{2, 3, 4, 5}, Booked: []uint32{1}})
    assert.Equal(t, []uint32{3}, lost)
    assert.Empty(t, r.MySeats())

    // But a snapshot still reporting the seat locked keeps it ours.
    r2 := New(1, nil)
    r2.ApplySnapshot(baseSnapshot())
    require.True(t, r2.Click(3))
    r2.ApplyLockResult([]uint32{3}, nil)
    r2.ApplySnapshot(model.SeatSnapshot{ScheduleID: 1, Version: 21, Locked: []uint32{3}, Booked: []uint32{1}, Available: []uint32{2, 4, 5}})
    assert.Equal(t, []uint32{3}, r2.MySeats())
}

func TestRequestTimeoutDropsToUnsynced(t *testing.T) {
    r := New(1, nil)
    r.ApplySnapshot(baseSnapshot())
    require.True(t, r.Click(3))

    r.RequestTimedOut(3)
    assert.NotEqual(t, ViewPending, r.View(3))
    assert.False(t, r.Synced(), "unknown outcome requires re-querying the snapshot")
}

func TestReleaseLocalForgetsSelection(t *testing.T) {
    r := New(1, nil)
    r.ApplySnapshot(baseSnapshot())
    for _, n := range []uint32{3, 4} {
        require.True(t, r.Click(n))
    }
    r.ApplyLockResult([]uint32{3, 4}, nil)

    r.ReleaseLocal([]uint32{3})
    assert.Equal(t, []uint32{4}, r.MySeats())
    assert.Equal(t, ViewAvailable, r.View(3))

    r.ReleaseLocal(nil)
    assert.Empty(t, r.MySeats())
    assert.Equal(t, ViewAvailable, r.View(4))
}

func TestApplyEventDispatches(t *testing.T) {
    r := New(1, nil)
    snap := baseSnapshot()
    assert.False(t, r.ApplyEvent(broadcast.Event{Snapshot: &snap}))
    assert.True(t, r.Synced())

    d := model.SeatDelta{ScheduleID: 1, Version: 11, Locked: []uint32{3}}
    assert.False(t, r.ApplyEvent(broadcast.Event{Delta: &d}))

    gap := model.SeatDelta{ScheduleID: 1, Version: 15}
    assert.True(t, r.ApplyEvent(broadcast.Event{Delta: &gap}))
}
