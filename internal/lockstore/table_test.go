package lockstore

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const ttl = 5 * time.Minute

func TestTryLockGrantsAndDenies(t *testing.T) {
    tbl := NewTable(1, 10, []uint32{3})

    res := tbl.TryLock(100, []uint32{1, 2, 3}, ttl, t0)
    assert.Equal(t, []uint32{1, 2}, res.Granted)
    assert.Equal(t, []uint32{3}, res.Denied) // already booked
    assert.Equal(t, t0.Add(ttl), res.ExpiresAt)

    // A second user contends for seat 1 and loses; seat 4 is free.
    res2 := tbl.TryLock(200, []uint32{1, 4}, ttl, t0)
    assert.Equal(t, []uint32{4}, res2.Granted)
    assert.Equal(t, []uint32{1}, res2.Denied)
}

func TestTryLockUnknownSeatDenied(t *testing.T) {
    tbl := NewTable(1, 4, nil)
    res := tbl.TryLock(100, []uint32{5, 99}, ttl, t0)
    assert.Empty(t, res.Granted)
    assert.Equal(t, []uint32{5, 99}, res.Denied)
}

func TestTryLockIdempotentRegrant(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    first := tbl.TryLock(100, []uint32{7}, ttl, t0)
    require.Equal(t, []uint32{7}, first.Granted)

    // The same user re-requesting a held seat is a grant, not a denial.
    again := tbl.TryLock(100, []uint32{7}, ttl, t0.Add(time.Minute))
    assert.Equal(t, []uint32{7}, again.Granted)
    assert.Empty(t, again.Denied)
    assert.Equal(t, t0.Add(time.Minute).Add(ttl), again.ExpiresAt)
}

func TestSessionExpiryIsSharedAndRefreshed(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{1}, ttl, t0)

    // Locking a second seat two minutes later refreshes seat 1 as well.
    later := t0.Add(2 * time.Minute)
    res := tbl.TryLock(100, []uint32{2}, ttl, later)
    require.Equal(t, []uint32{2}, res.Granted)

    held := tbl.SeatsHeldBy(100, later.Add(4*time.Minute))
    assert.Equal(t, []uint32{1, 2}, held, "seat 1 must have been refreshed to the new shared expiry")
}

func TestLockExpiresLazily(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{5}, ttl, t0)

    after := t0.Add(ttl).Add(time.Second)
    // A different user can take the seat once the TTL has passed, with
    // no sweep having run.  The reclaimed seat is reported so the old
    // owner can be told it was released out from under them.
    res := tbl.TryLock(200, []uint32{5}, ttl, after)
    assert.Equal(t, []uint32{5}, res.Granted)
    assert.Equal(t, []uint32{5}, res.Reclaimed)
    assert.Nil(t, tbl.SeatsHeldBy(100, after))
}

func TestTryLockOwnExpiredSeatIsNotReclaimed(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{5}, ttl, t0)

    // The same user re-locking their own lapsed seat never saw the
    // seat change hands; there is nothing to announce as released.
    res := tbl.TryLock(100, []uint32{5}, ttl, t0.Add(ttl).Add(time.Second))
    assert.Equal(t, []uint32{5}, res.Granted)
    assert.Empty(t, res.Reclaimed)
}

func TestExtendRefreshesSession(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{1, 2}, ttl, t0)

    mid := t0.Add(4 * time.Minute)
    exp, err := tbl.Extend(100, ttl, mid)
    require.NoError(t, err)
    assert.Equal(t, mid.Add(ttl), exp)

    // Past the original expiry but inside the extended one.
    assert.Equal(t, []uint32{1, 2}, tbl.SeatsHeldBy(100, t0.Add(6*time.Minute)))
}

func TestExtendAfterExpiryFails(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{1}, ttl, t0)

    _, err := tbl.Extend(100, ttl, t0.Add(ttl).Add(time.Second))
    assert.ErrorIs(t, err, ErrLockExpired)

    _, err = tbl.Extend(999, ttl, t0)
    assert.ErrorIs(t, err, ErrLockExpired)
}

func TestReleasePartialAndAll(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{1, 2, 3}, ttl, t0)

    released := tbl.Release(100, []uint32{2}, t0)
    assert.Equal(t, []uint32{2}, released)
    assert.Equal(t, []uint32{1, 3}, tbl.SeatsHeldBy(100, t0))

    // nil releases the remainder of the session.
    released = tbl.Release(100, nil, t0)
    assert.Equal(t, []uint32{1, 3}, released)
    assert.Nil(t, tbl.SeatsHeldBy(100, t0))
}

func TestReleaseIgnoresForeignSeats(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{1}, ttl, t0)
    tbl.TryLock(200, []uint32{2}, ttl, t0)

    released := tbl.Release(100, []uint32{1, 2}, t0)
    assert.Equal(t, []uint32{1}, released)
    assert.Equal(t, []uint32{2}, tbl.SeatsHeldBy(200, t0))
}

func TestPromoteAllOrNothing(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{1, 2}, ttl, t0)

    err := tbl.Promote(100, []uint32{1, 2, 3}, t0)
    var conflict *PromoteConflictError
    require.ErrorAs(t, err, &conflict)
    assert.Equal(t, []uint32{3}, conflict.Seats)

    // Nothing changed: both seats still held, none booked.
    assert.Equal(t, []uint32{1, 2}, tbl.SeatsHeldBy(100, t0))
    snap := tbl.Snapshot(t0)
    assert.Empty(t, snap.Booked)
}

func TestPromoteSuccessIsTerminal(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{1, 2}, ttl, t0)

    require.NoError(t, tbl.Promote(100, []uint32{1, 2}, t0))
    snap := tbl.Snapshot(t0)
    assert.Equal(t, []uint32{1, 2}, snap.Booked)
    assert.Nil(t, tbl.SeatsHeldBy(100, t0))

    // Booked seats can never be locked again.
    res := tbl.TryLock(200, []uint32{1}, ttl, t0)
    assert.Equal(t, []uint32{1}, res.Denied)

    // Nor promoted again, even by the original owner.
    err := tbl.Promote(100, []uint32{1}, t0)
    var conflict *PromoteConflictError
    assert.ErrorAs(t, err, &conflict)
}

func TestPromoteExpiredLockConflicts(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{1}, ttl, t0)

    err := tbl.Promote(100, []uint32{1}, t0.Add(ttl).Add(time.Second))
    var conflict *PromoteConflictError
    require.ErrorAs(t, err, &conflict)
    assert.Equal(t, []uint32{1}, conflict.Seats)
}

func TestExpireLocksReturnsFreedSeats(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    tbl.TryLock(100, []uint32{1, 2}, ttl, t0)
    tbl.TryLock(200, []uint32{5}, ttl, t0.Add(2*time.Minute))

    // Only user 100's session has lapsed at this point.
    freed := tbl.ExpireLocks(t0.Add(ttl).Add(time.Second))
    assert.Equal(t, []uint32{1, 2}, freed)
    assert.Equal(t, []uint32{5}, tbl.SeatsHeldBy(200, t0.Add(ttl).Add(time.Second)))

    // Nothing left to reclaim on a second pass.
    assert.Empty(t, tbl.ExpireLocks(t0.Add(ttl).Add(time.Second)))
}

func TestSnapshotClassifiesSeats(t *testing.T) {
    tbl := NewTable(7, 5, []uint32{5})
    tbl.TryLock(100, []uint32{2}, ttl, t0)

    snap := tbl.Snapshot(t0)
    assert.Equal(t, uint64(7), snap.ScheduleID)
    assert.Equal(t, []uint32{5}, snap.Booked)
    assert.Equal(t, []uint32{2}, snap.Locked)
    assert.Equal(t, []uint32{1, 3, 4}, snap.Available)

    // The same snapshot after expiry reports the lock as available.
    snap = tbl.Snapshot(t0.Add(ttl).Add(time.Second))
    assert.Empty(t, snap.Locked)
    assert.Equal(t, []uint32{1, 2, 3, 4}, snap.Available)
}

func TestVersionBumpsOnMutationOnly(t *testing.T) {
    tbl := NewTable(1, 10, nil)
    v := tbl.Version()

    tbl.TryLock(100, []uint32{1}, ttl, t0)
    require.Equal(t, v+1, tbl.Version())

    // A fully denied request commits nothing.
    tbl.TryLock(200, []uint32{1}, ttl, t0)
    assert.Equal(t, v+1, tbl.Version())

    // Releasing nothing commits nothing.
    tbl.Release(999, nil, t0)
    assert.Equal(t, v+1, tbl.Version())

    // Extending changes no seat's visibility, so it must not consume a
    // version: a gap here would force every subscriber to resync on
    // the next real delta.
    _, err := tbl.Extend(100, ttl, t0)
    require.NoError(t, err)
    assert.Equal(t, v+1, tbl.Version())

    tbl.Release(100, nil, t0)
    assert.Equal(t, v+2, tbl.Version())
}
