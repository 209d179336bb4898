// Package broadcast fans seat-map change events out to every viewer of
// a schedule.  The coordinator hands it one delta per committed
// mutation; the hub delivers deltas to subscribers in commit order and
// never blocks the committer: each subscriber has a bounded buffer, and
// a subscriber that falls behind has its pending deltas dropped and is
// resynchronized with the latest full snapshot instead.
package broadcast

import (
    "sync"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// DefaultBuffer is the per-subscriber event buffer used when the hub is
// constructed with a non-positive size.
const DefaultBuffer = 16

// Event is one message on a subscriber's stream.  Exactly one of the
// two fields is set: a Snapshot replaces the subscriber's entire view
// (initial sync or lag recovery), a Delta is applied incrementally.
type Event struct {
    Snapshot *model.SeatSnapshot `json:"snapshot,omitempty"`
    Delta    *model.SeatDelta    `json:"delta,omitempty"`
}

// Subscriber receives the event stream for one schedule.  Events
// arrives on C until Close is called, after which C is closed.
type Subscriber struct {
    C <-chan Event

    hub        *Hub
    scheduleID uint64
    ch         chan Event
}

// Close detaches the subscriber from the hub and closes its channel.
// Close is safe to call once per subscriber.
func (s *Subscriber) Close() {
    s.hub.unsubscribe(s)
}

// feed holds the subscriber set and the latest committed snapshot for
// one schedule.  The snapshot is what lagging subscribers resync from,
// so it is updated on every publish.
type feed struct {
    subs   map[*Subscriber]struct{}
    latest model.SeatSnapshot
}

// Hub is the per-schedule multicast.  All methods are safe for
// concurrent use.  Publish is called by the coordinator inside its
// per-schedule critical section, which is what guarantees commit-order
// delivery without any further coordination here.
type Hub struct {
    mu     sync.Mutex
    feeds  map[uint64]*feed
    buffer int
}

// NewHub returns an empty hub whose subscribers buffer up to buffer
// events before being resynced via snapshot.
func NewHub(buffer int) *Hub {
    if buffer <= 0 {
        buffer = DefaultBuffer
    }
    return &Hub{
        feeds:  make(map[uint64]*feed),
        buffer: buffer,
    }
}

// Register announces a schedule to the hub with its initial snapshot.
// Subscriptions to unregistered schedules fail, preventing a client
// from streaming a schedule the coordinator does not manage.
func (h *Hub) Register(scheduleID uint64, snap model.SeatSnapshot) {
    h.mu.Lock()
    defer h.mu.Unlock()
    if _, ok := h.feeds[scheduleID]; !ok {
        h.feeds[scheduleID] = &feed{subs: make(map[*Subscriber]struct{}), latest: snap}
        return
    }
    h.feeds[scheduleID].latest = snap
}

// Subscribe attaches a new viewer to a schedule.  The subscriber's
// first event is always a full snapshot, so a client joining mid-stream
// never computes state from a partial history.
func (h *Hub) Subscribe(scheduleID uint64) (*Subscriber, bool) {
    h.mu.Lock()
    defer h.mu.Unlock()
    f, ok := h.feeds[scheduleID]
    if !ok {
        return nil, false
    }
    ch := make(chan Event, h.buffer)
    sub := &Subscriber{C: ch, hub: h, scheduleID: scheduleID, ch: ch}
    snap := f.latest
    ch <- Event{Snapshot: &snap}
    f.subs[sub] = struct{}{}
    return sub, true
}

func (h *Hub) unsubscribe(s *Subscriber) {
    h.mu.Lock()
    defer h.mu.Unlock()
    f, ok := h.feeds[s.scheduleID]
    if !ok {
        return
    }
    if _, ok := f.subs[s]; ok {
        delete(f.subs, s)
        close(s.ch)
    }
}

// Publish delivers one committed delta to every subscriber of the
// schedule and records the matching post-commit snapshot.  Delivery is
// non-blocking: when a subscriber's buffer is full, its queued events
// are discarded and replaced with a single snapshot event, catching it
// up in one step.  Slow viewers therefore never stall lock operations
// for anyone else.
func (h *Hub) Publish(delta model.SeatDelta, snap model.SeatSnapshot) {
    if delta.Empty() {
        return
    }
    h.mu.Lock()
    defer h.mu.Unlock()
    f, ok := h.feeds[delta.ScheduleID]
    if !ok {
        return
    }
    f.latest = snap
    for sub := range f.subs {
        d := delta
        select {
        case sub.ch <- Event{Delta: &d}:
        default:
            // Lagging subscriber: drop whatever is queued and resync.
            h.drain(sub)
            s := snap
            select {
            case sub.ch <- Event{Snapshot: &s}:
            default:
            }
        }
    }
}

// SubscriberCount reports how many viewers a schedule currently has.
func (h *Hub) SubscriberCount(scheduleID uint64) int {
    h.mu.Lock()
    defer h.mu.Unlock()
    f, ok := h.feeds[scheduleID]
    if !ok {
        return 0
    }
    return len(f.subs)
}

func (h *Hub) drain(sub *Subscriber) {
    for {
        select {
        case <-sub.ch:
        default:
            return
        }
    }
}
