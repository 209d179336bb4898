package broadcast

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

func snapshotV(v uint64) model.SeatSnapshot {
    return model.SeatSnapshot{ScheduleID: 1, Version: v, Available: []uint32{1, 2, 3}}
}

func deltaV(v uint64, locked ...uint32) model.SeatDelta {
    return model.SeatDelta{ScheduleID: 1, Version: v, Locked: locked}
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
    h := NewHub(4)
    h.Register(1, snapshotV(7))

    sub, ok := h.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()

    ev := <-sub.C
    require.NotNil(t, ev.Snapshot)
    assert.Equal(t, uint64(7), ev.Snapshot.Version)
    assert.Nil(t, ev.Delta)
}

func TestSubscribeUnknownScheduleFails(t *testing.T) {
    h := NewHub(4)
    _, ok := h.Subscribe(42)
    assert.False(t, ok)
}

func TestPublishDeliversInOrder(t *testing.T) {
    h := NewHub(8)
    h.Register(1, snapshotV(0))
    sub, ok := h.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()
    <-sub.C // snapshot

    for v := uint64(1); v <= 5; v++ {
        h.Publish(deltaV(v, uint32(v)), snapshotV(v))
    }
    for v := uint64(1); v <= 5; v++ {
        ev := <-sub.C
        require.NotNil(t, ev.Delta)
        assert.Equal(t, v, ev.Delta.Version)
    }
}

func TestPublishNeverBlocksAndResyncsLaggards(t *testing.T) {
    h := NewHub(2)
    h.Register(1, snapshotV(0))
    sub, ok := h.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()
    <-sub.C // snapshot

    // Publish far more than the buffer holds without the subscriber
    // reading.  This must return promptly.
    done := make(chan struct{})
    go func() {
        for v := uint64(1); v <= 20; v++ {
            h.Publish(deltaV(v, uint32(v%3)+1), snapshotV(v))
        }
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("publish blocked on a slow subscriber")
    }

    // The subscriber's queue was replaced with a snapshot.  Drain what
    // is buffered: at least one resync snapshot must be present, and
    // any delta following a snapshot must continue from its version.
    var sawSnapshot bool
    version := uint64(0)
    consistent := true
drain:
    for {
        select {
        case ev := <-sub.C:
            if ev.Snapshot != nil {
                sawSnapshot = true
                version = ev.Snapshot.Version
            } else if ev.Delta != nil {
                if version != 0 && ev.Delta.Version != version+1 {
                    consistent = false
                }
                version = ev.Delta.Version
            }
        default:
            break drain
        }
    }
    require.True(t, sawSnapshot, "lagging subscriber must receive a resync snapshot")
    assert.True(t, consistent, "deltas after a resync snapshot must continue from its version")
}

func TestFastSubscriberUnaffectedBySlowOne(t *testing.T) {
    h := NewHub(2)
    h.Register(1, snapshotV(0))

    slow, ok := h.Subscribe(1)
    require.True(t, ok)
    defer slow.Close()
    fast, ok := h.Subscribe(1)
    require.True(t, ok)
    defer fast.Close()
    <-fast.C // snapshot

    for v := uint64(1); v <= 10; v++ {
        h.Publish(deltaV(v, 1), snapshotV(v))
        ev := <-fast.C
        require.NotNil(t, ev.Delta, "fast subscriber drained every event and must see deltas")
        assert.Equal(t, v, ev.Delta.Version)
    }
}

func TestEmptyDeltaNotPublished(t *testing.T) {
    h := NewHub(4)
    h.Register(1, snapshotV(0))
    sub, ok := h.Subscribe(1)
    require.True(t, ok)
    defer sub.Close()
    <-sub.C

    h.Publish(model.SeatDelta{ScheduleID: 1, Version: 1}, snapshotV(1))
    select {
    case ev := <-sub.C:
        t.Fatalf("empty delta must be suppressed, got %+v", ev)
    case <-time.After(50 * time.Millisecond):
    }
}

func TestCloseRemovesSubscriber(t *testing.T) {
    h := NewHub(4)
    h.Register(1, snapshotV(0))
    sub, ok := h.Subscribe(1)
    require.True(t, ok)
    require.Equal(t, 1, h.SubscriberCount(1))

    sub.Close()
    assert.Zero(t, h.SubscriberCount(1))

    // The channel drains the pending snapshot and then closes.
    <-sub.C
    _, open := <-sub.C
    assert.False(t, open)

    // Publishing after close must not panic.
    h.Publish(deltaV(1, 1), snapshotV(1))
}
