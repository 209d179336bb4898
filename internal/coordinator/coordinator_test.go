package coordinator

import (
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/bus-seat-reservation/internal/broadcast"
    "github.com/iliyamo/bus-seat-reservation/internal/lockstore"
)

func newTestCoordinator(t *testing.T, capacity uint32) (*Coordinator, *broadcast.Hub) {
    t.Helper()
    hub := broadcast.NewHub(64)
    co := New(hub, 5*time.Minute)
    co.Register(lockstore.NewTable(1, capacity, nil))
    return co, hub
}

func TestConcurrentLockSingleWinner(t *testing.T) {
    co, _ := newTestCoordinator(t, 40)

    const viewers = 32
    var wg sync.WaitGroup
    winners := make(chan uint64, viewers)

    for i := 0; i < viewers; i++ {
        wg.Add(1)
        go func(userID uint64) {
            defer wg.Done()
            res, err := co.Lock(1, userID, []uint32{17})
            require.NoError(t, err)
            if len(res.Granted) > 0 {
                winners <- userID
            } else {
                require.Equal(t, []uint32{17}, res.Denied)
            }
        }(uint64(i + 1))
    }
    wg.Wait()
    close(winners)

    var got []uint64
    for w := range winners {
        got = append(got, w)
    }
    assert.Len(t, got, 1, "exactly one of %d concurrent lock calls may win", viewers)

    snap, err := co.Snapshot(1)
    require.NoError(t, err)
    assert.Equal(t, []uint32{17}, snap.Locked)
}

func TestExtendKeepsSessionAlivePastOriginalExpiry(t *testing.T) {
    hub := broadcast.NewHub(16)
    co := New(hub, 5*time.Minute)
    co.Register(lockstore.NewTable(1, 40, nil))

    now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
    co.SetClock(func() time.Time { return now })

    res, err := co.Lock(1, 100, []uint32{12, 13})
    require.NoError(t, err)
    require.Equal(t, []uint32{12, 13}, res.Granted)

    // Four minutes in, the wizard extends while the user types.
    now = now.Add(4 * time.Minute)
    exp, err := co.Extend(1, 100)
    require.NoError(t, err)
    assert.Equal(t, now.Add(5*time.Minute), exp)

    // Six minutes after the original lock: the initial TTL has passed
    // but the extension keeps both seats held.
    now = now.Add(2 * time.Minute)
    held, err := co.SeatsHeldBy(1, 100)
    require.NoError(t, err)
    assert.Equal(t, []uint32{12, 13}, held)

    // Another viewer still cannot take seat 12.
    res2, err := co.Lock(1, 200, []uint32{12})
    require.NoError(t, err)
    assert.Empty(t, res2.Granted)
}

func TestSweepReclaimsAndBroadcasts(t *testing.T) {
    hub := broadcast.NewHub(16)
    co := New(hub, 5*time.Minute)
    co.Register(lockstore.NewTable(1, 10, nil))

    now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
    co.SetClock(func() time.Time { return now })

    _, err := co.Lock(1, 100, []uint32{4, 5})
    require.NoError(t, err)

    sub, ok := hub.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()
    first := <-sub.C
    require.NotNil(t, first.Snapshot) // snapshot-first on subscribe

    now = now.Add(6 * time.Minute)
    reclaimed := co.SweepOnce()
    assert.Equal(t, 2, reclaimed)

    ev := <-sub.C
    require.NotNil(t, ev.Delta)
    assert.Equal(t, []uint32{4, 5}, ev.Delta.Released)

    // A second sweep finds nothing and publishes nothing.
    assert.Zero(t, co.SweepOnce())
}

func TestLockPublishesDeltaInCommitOrder(t *testing.T) {
    co, hub := newTestCoordinator(t, 10)

    sub, ok := hub.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()
    <-sub.C // initial snapshot

    _, err := co.Lock(1, 100, []uint32{1})
    require.NoError(t, err)
    _, err = co.Lock(1, 200, []uint32{2})
    require.NoError(t, err)
    _, err = co.Release(1, 100, nil)
    require.NoError(t, err)

    var versions []uint64
    for i := 0; i < 3; i++ {
        ev := <-sub.C
        require.NotNil(t, ev.Delta)
        versions = append(versions, ev.Delta.Version)
    }
    assert.Equal(t, []uint64{versions[0], versions[0] + 1, versions[0] + 2}, versions,
        "deltas must carry consecutive versions in commit order")
}

func TestExtendLeavesDeltaVersionsConsecutive(t *testing.T) {
    hub := broadcast.NewHub(16)
    co := New(hub, 5*time.Minute)
    co.Register(lockstore.NewTable(1, 10, nil))

    sub, ok := hub.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()
    <-sub.C // initial snapshot

    _, err := co.Lock(1, 100, []uint32{4})
    require.NoError(t, err)
    lockEv := <-sub.C
    require.NotNil(t, lockEv.Delta)

    // The wizard extends while the user types; nothing visible changed,
    // so no delta is published and no version is consumed.
    _, err = co.Extend(1, 100)
    require.NoError(t, err)

    _, err = co.Release(1, 100, nil)
    require.NoError(t, err)
    relEv := <-sub.C
    require.NotNil(t, relEv.Delta)
    assert.Equal(t, lockEv.Delta.Version+1, relEv.Delta.Version,
        "an extend in between must not open a version gap")
}

func TestExpiredRegrantBroadcastsReleaseWithLock(t *testing.T) {
    hub := broadcast.NewHub(16)
    co := New(hub, 5*time.Minute)
    co.Register(lockstore.NewTable(1, 10, nil))

    now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
    co.SetClock(func() time.Time { return now })

    _, err := co.Lock(1, 100, []uint32{7})
    require.NoError(t, err)

    sub, ok := hub.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()
    <-sub.C // snapshot

    // User 100's lock lapses unseen by the sweep; user 200 takes the
    // seat.  The one delta must carry both the release and the new
    // lock so user 100's client drops the seat.
    now = now.Add(6 * time.Minute)
    res, err := co.Lock(1, 200, []uint32{7})
    require.NoError(t, err)
    require.Equal(t, []uint32{7}, res.Granted)

    ev := <-sub.C
    require.NotNil(t, ev.Delta)
    assert.Equal(t, []uint32{7}, ev.Delta.Released)
    assert.Equal(t, []uint32{7}, ev.Delta.Locked)
}

func TestDeniedLockPublishesNothing(t *testing.T) {
    co, hub := newTestCoordinator(t, 10)

    _, err := co.Lock(1, 100, []uint32{3})
    require.NoError(t, err)

    sub, ok := hub.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()
    <-sub.C // snapshot

    res, err := co.Lock(1, 200, []uint32{3})
    require.NoError(t, err)
    require.Empty(t, res.Granted)

    select {
    case ev := <-sub.C:
        t.Fatalf("denied lock must not broadcast, got %+v", ev)
    case <-time.After(50 * time.Millisecond):
    }
}

func TestPromoteBroadcastsOccupied(t *testing.T) {
    co, hub := newTestCoordinator(t, 10)
    _, err := co.Lock(1, 100, []uint32{6})
    require.NoError(t, err)

    sub, ok := hub.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()
    <-sub.C

    require.NoError(t, co.Promote(1, 100, []uint32{6}))
    ev := <-sub.C
    require.NotNil(t, ev.Delta)
    assert.Equal(t, []uint32{6}, ev.Delta.Occupied)

    snap, err := co.Snapshot(1)
    require.NoError(t, err)
    assert.Equal(t, []uint32{6}, snap.Booked)
}

func TestUnknownScheduleErrors(t *testing.T) {
    co, _ := newTestCoordinator(t, 10)

    _, err := co.Lock(99, 100, []uint32{1})
    assert.ErrorIs(t, err, lockstore.ErrUnknownSchedule)
    _, err = co.Snapshot(99)
    assert.ErrorIs(t, err, lockstore.ErrUnknownSchedule)
    _, err = co.Release(99, 100, nil)
    assert.ErrorIs(t, err, lockstore.ErrUnknownSchedule)
    err = co.Promote(99, 100, []uint32{1})
    assert.ErrorIs(t, err, lockstore.ErrUnknownSchedule)
}

func TestOperationsOnDifferentSchedulesDoNotInterfere(t *testing.T) {
    hub := broadcast.NewHub(16)
    co := New(hub, 5*time.Minute)
    co.Register(lockstore.NewTable(1, 10, nil))
    co.Register(lockstore.NewTable(2, 10, nil))

    res1, err := co.Lock(1, 100, []uint32{1})
    require.NoError(t, err)
    res2, err := co.Lock(2, 200, []uint32{1})
    require.NoError(t, err)
    assert.Equal(t, []uint32{1}, res1.Granted)
    assert.Equal(t, []uint32{1}, res2.Granted, "same seat number on another schedule is independent")
}
