package session

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/redis/go-redis/v9"
)

// ErrNoDraft is returned by a store when no draft is persisted for the
// key.  The manager answers it with a fresh draft.
var ErrNoDraft = errors.New("no draft")

// ErrStoreUnavailable is returned when the backing store cannot be
// reached.  Draft persistence is best effort: the manager degrades to
// a fresh draft rather than failing the request.
var ErrStoreUnavailable = errors.New("draft store unavailable")

// DraftStore persists booking drafts across page navigation.  Keys are
// scoped to (userID, scheduleID): a user works on at most one draft
// per schedule.
type DraftStore interface {
    Load(ctx context.Context, userID, scheduleID uint64) (*Draft, error)
    Save(ctx context.Context, d *Draft) error
    Delete(ctx context.Context, userID, scheduleID uint64) error
}

// RedisDraftStore keeps drafts as JSON blobs in Redis with a TTL, the
// same idiom the response cache uses for its entries.  A nil client is
// tolerated and reported as ErrStoreUnavailable so the wizard can
// still run with per-request drafts.
type RedisDraftStore struct {
    rdb *redis.Client
    ttl time.Duration
}

// NewRedisDraftStore wraps a Redis client.  ttl bounds how long an
// abandoned draft lingers; it should comfortably exceed the lock TTL.
func NewRedisDraftStore(rdb *redis.Client, ttl time.Duration) *RedisDraftStore {
    if ttl <= 0 {
        ttl = 2 * time.Hour
    }
    return &RedisDraftStore{rdb: rdb, ttl: ttl}
}

func draftKey(userID, scheduleID uint64) string {
    return fmt.Sprintf("draft:%d:%d", userID, scheduleID)
}

// Load fetches and decodes the draft.  A decode failure is reported as
// ErrDraftCorrupt so the manager discards the blob instead of looping
// on it.
func (s *RedisDraftStore) Load(ctx context.Context, userID, scheduleID uint64) (*Draft, error) {
    if s.rdb == nil {
        return nil, ErrStoreUnavailable
    }
    raw, err := s.rdb.Get(ctx, draftKey(userID, scheduleID)).Bytes()
    if errors.Is(err, redis.Nil) {
        return nil, ErrNoDraft
    }
    if err != nil {
        return nil, ErrStoreUnavailable
    }
    var d Draft
    if err := json.Unmarshal(raw, &d); err != nil {
        return nil, ErrDraftCorrupt
    }
    return &d, nil
}

// Save encodes and writes the draft, refreshing the TTL.
func (s *RedisDraftStore) Save(ctx context.Context, d *Draft) error {
    if s.rdb == nil {
        return ErrStoreUnavailable
    }
    raw, err := json.Marshal(d)
    if err != nil {
        return err
    }
    if err := s.rdb.Set(ctx, draftKey(d.UserID, d.ScheduleID), raw, s.ttl).Err(); err != nil {
        return ErrStoreUnavailable
    }
    return nil
}

// Delete removes the draft.  Missing keys are not an error.
func (s *RedisDraftStore) Delete(ctx context.Context, userID, scheduleID uint64) error {
    if s.rdb == nil {
        return ErrStoreUnavailable
    }
    if err := s.rdb.Del(ctx, draftKey(userID, scheduleID)).Err(); err != nil {
        return ErrStoreUnavailable
    }
    return nil
}

// MemoryDraftStore is an in-process DraftStore used in tests and when
// Redis is absent at startup.
type MemoryDraftStore struct {
    mu     sync.Mutex
    drafts map[string]*Draft
}

// NewMemoryDraftStore returns an empty in-memory store.
func NewMemoryDraftStore() *MemoryDraftStore {
    return &MemoryDraftStore{drafts: make(map[string]*Draft)}
}

func (s *MemoryDraftStore) Load(_ context.Context, userID, scheduleID uint64) (*Draft, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    d, ok := s.drafts[draftKey(userID, scheduleID)]
    if !ok {
        return nil, ErrNoDraft
    }
    return d.clone(), nil
}

func (s *MemoryDraftStore) Save(_ context.Context, d *Draft) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.drafts[draftKey(d.UserID, d.ScheduleID)] = d.clone()
    return nil
}

func (s *MemoryDraftStore) Delete(_ context.Context, userID, scheduleID uint64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    delete(s.drafts, draftKey(userID, scheduleID))
    return nil
}
