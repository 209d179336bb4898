package session

import (
    "context"
    "errors"
    "log"
    "strings"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/pricing"
)

// LockView is the slice of the coordinator the wizard needs: the
// authoritative answer to "which seats does this user hold right now".
// The draft is never trusted over this view.
type LockView interface {
    SeatsHeldBy(scheduleID, userID uint64) ([]uint32, error)
}

// Patch carries the partial draft fields a wizard step submits.  Nil
// pointers and nil slices leave the corresponding field untouched.
type Patch struct {
    PassengerCount *uint32           `json:"passenger_count,omitempty"`
    Passengers     []model.Passenger `json:"passengers,omitempty"`
    BaggagePieces  *uint32           `json:"baggage_pieces,omitempty"`
    BaggageKg      *uint32           `json:"baggage_weight_kg,omitempty"`
}

// Manager drives the booking wizard.  It loads, revalidates, mutates
// and persists drafts, and enforces the step-transition guards.  All
// lock-state questions go to the LockView; the manager never mutates
// locks itself.
type Manager struct {
    store DraftStore
    locks LockView
}

// NewManager builds a Manager.  store may be backed by Redis or the
// in-memory fallback; locks is normally the coordinator.
func NewManager(store DraftStore, locks LockView) *Manager {
    return &Manager{store: store, locks: locks}
}

// Get loads the user's draft for a schedule, revalidating it against
// the lock store.  A missing, unreachable or corrupt persisted draft
// yields a fresh one at seat selection.  The removed slice lists
// seats stripped from the draft because the user no longer holds
// them; the caller must surface these to the user.
func (m *Manager) Get(ctx context.Context, userID, scheduleID uint64) (*Draft, []uint32, error) {
    d, err := m.store.Load(ctx, userID, scheduleID)
    switch {
    case errors.Is(err, ErrNoDraft) || errors.Is(err, ErrStoreUnavailable):
        d = NewDraft(userID, scheduleID)
    case errors.Is(err, ErrDraftCorrupt):
        log.Printf("session: corrupt draft user=%d schedule=%d discarded", userID, scheduleID)
        _ = m.store.Delete(ctx, userID, scheduleID)
        d = NewDraft(userID, scheduleID)
    case err != nil:
        return nil, nil, err
    default:
        if !d.sane(userID, scheduleID) {
            log.Printf("session: insane draft user=%d schedule=%d discarded", userID, scheduleID)
            _ = m.store.Delete(ctx, userID, scheduleID)
            d = NewDraft(userID, scheduleID)
        }
    }
    removed, err := m.revalidate(ctx, d)
    if err != nil {
        return nil, nil, err
    }
    return d, removed, nil
}

// revalidate trims draft seats the lock store no longer attributes to
// the user and regresses the wizard accordingly.  A seat can expire
// while the user lingers on a later step; correcting here, on every
// read, is what keeps the failure from surfacing at payment time.
func (m *Manager) revalidate(ctx context.Context, d *Draft) ([]uint32, error) {
    rank, stepped := stepOrder[d.State]
    if !stepped || rank >= stepOrder[StatePaymentVerifying] || len(d.Seats) == 0 {
        return nil, nil
    }
    held, err := m.locks.SeatsHeldBy(d.ScheduleID, d.UserID)
    if err != nil {
        return nil, err
    }
    heldSet := make(map[uint32]struct{}, len(held))
    for _, n := range held {
        heldSet[n] = struct{}{}
    }
    kept := d.Seats[:0]
    var removed []uint32
    for _, n := range d.Seats {
        if _, ok := heldSet[n]; ok {
            kept = append(kept, n)
        } else {
            removed = append(removed, n)
        }
    }
    if len(removed) == 0 {
        return nil, nil
    }
    d.Seats = kept
    if len(d.Seats) == 0 {
        d.State = StateSeatsPending
    } else if rank > stepOrder[StateSeatsHeld] {
        // Force the user back through the seat step so the count gate
        // runs again before payment.
        d.State = StateSeatsHeld
    }
    d.PaymentRef = ""
    m.save(ctx, d)
    return removed, nil
}

// SetSeats records the user's current selection after a lock call.
// Only seats the lock store confirms the user holds are accepted.
// Permitted while the wizard is on the seat step.
func (m *Manager) SetSeats(ctx context.Context, userID, scheduleID uint64, seats []uint32) (*Draft, error) {
    d, _, err := m.Get(ctx, userID, scheduleID)
    if err != nil {
        return nil, err
    }
    if rank := stepOrder[d.State]; rank > stepOrder[StateSeatsHeld] {
        return nil, ErrStepBlocked
    }
    held, err := m.locks.SeatsHeldBy(scheduleID, userID)
    if err != nil {
        return nil, err
    }
    heldSet := make(map[uint32]struct{}, len(held))
    for _, n := range held {
        heldSet[n] = struct{}{}
    }
    d.Seats = d.Seats[:0]
    for _, n := range seats {
        if _, ok := heldSet[n]; ok {
            d.Seats = append(d.Seats, n)
        }
    }
    if len(d.Seats) > 0 {
        d.State = StateSeatsHeld
    } else {
        d.State = StateSeatsPending
    }
    m.save(ctx, d)
    return d, nil
}

// Merge applies a partial update from a wizard form.  When a schedule
// and loyalty tier are supplied the amounts are recomputed, so every
// step shows totals consistent with the current selection.  Returning
// to an earlier step never discards previously entered fields.
func (m *Manager) Merge(ctx context.Context, userID, scheduleID uint64, p Patch, sched *model.Schedule, loyaltyTier string) (*Draft, []uint32, error) {
    d, removed, err := m.Get(ctx, userID, scheduleID)
    if err != nil {
        return nil, nil, err
    }
    if d.State == StateConfirmed || d.State == StateFailed {
        return nil, nil, ErrStepBlocked
    }
    if p.PassengerCount != nil {
        d.PassengerCount = *p.PassengerCount
    }
    if p.Passengers != nil {
        d.Passengers = p.Passengers
    }
    if p.BaggagePieces != nil {
        d.Baggage.Pieces = *p.BaggagePieces
    }
    if p.BaggageKg != nil {
        d.Baggage.WeightKg = *p.BaggageKg
    }
    if sched != nil {
        d.Amounts = pricing.Quote(sched, uint32(len(d.Seats)), d.Baggage.WeightKg, loyaltyTier)
        d.Baggage.FeeCents = d.Amounts.BaggageFeeCents
    }
    m.save(ctx, d)
    return d, removed, nil
}

// Advance moves the wizard one step forward after checking the guard
// for the current state.  Payment transitions are not reachable from
// here; initiation and verification drive those explicitly.
func (m *Manager) Advance(ctx context.Context, userID, scheduleID uint64, sched *model.Schedule, loyaltyTier string) (*Draft, []uint32, error) {
    d, removed, err := m.Get(ctx, userID, scheduleID)
    if err != nil {
        return nil, nil, err
    }
    if len(removed) > 0 {
        return d, removed, &SeatsRemovedError{Seats: removed}
    }
    switch d.State {
    case StateSeatsPending:
        return d, nil, ErrStepBlocked
    case StateSeatsHeld:
        if d.PassengerCount == 0 || uint32(len(d.Seats)) != d.PassengerCount {
            return d, nil, ErrSeatCountMismatch
        }
        if !passengersComplete(d) {
            return d, nil, ErrPassengersIncomplete
        }
        d.State = StatePassengersEntered
    case StatePassengersEntered:
        if sched != nil {
            d.Amounts = pricing.Quote(sched, uint32(len(d.Seats)), d.Baggage.WeightKg, loyaltyTier)
            d.Baggage.FeeCents = d.Amounts.BaggageFeeCents
        }
        d.State = StateBaggageConfirmed
    default:
        return d, nil, ErrStepBlocked
    }
    m.save(ctx, d)
    return d, nil, nil
}

// Back returns the wizard to the previous step, preserving everything
// already entered.  Backing out of an initiated payment abandons the
// transaction reference; the gateway attempt is simply never verified.
func (m *Manager) Back(ctx context.Context, userID, scheduleID uint64) (*Draft, []uint32, error) {
    d, removed, err := m.Get(ctx, userID, scheduleID)
    if err != nil {
        return nil, nil, err
    }
    switch d.State {
    case StatePassengersEntered:
        d.State = StateSeatsHeld
    case StateBaggageConfirmed:
        d.State = StatePassengersEntered
    case StatePaymentInitiated:
        d.State = StateBaggageConfirmed
        d.PaymentRef = ""
    case StatePaymentVerifying, StateFailed:
        // Retrying the payment step after an abandoned or failed
        // verification.  A failed attempt released the seats, so the
        // draft is revalidated immediately; entered passenger and
        // baggage fields survive.
        d.State = StateBaggageConfirmed
        d.PaymentRef = ""
        more, err := m.revalidate(ctx, d)
        if err != nil {
            return nil, nil, err
        }
        removed = append(removed, more...)
    default:
        return d, removed, ErrStepBlocked
    }
    m.save(ctx, d)
    return d, removed, nil
}

// MarkPaymentInitiated records the gateway hand-off.  The transaction
// reference and the full draft are persisted so a returning redirect
// or a retried verification can resume without re-deriving anything.
func (m *Manager) MarkPaymentInitiated(ctx context.Context, d *Draft, paymentRef string) error {
    if d.State != StateBaggageConfirmed {
        return ErrStepBlocked
    }
    d.State = StatePaymentInitiated
    d.PaymentRef = paymentRef
    m.save(ctx, d)
    return nil
}

// MarkVerifying transitions the draft once the gateway redirect comes
// back and verification begins.
func (m *Manager) MarkVerifying(ctx context.Context, d *Draft) {
    if d.State == StatePaymentInitiated {
        d.State = StatePaymentVerifying
        m.save(ctx, d)
    }
}

// Confirm tears the draft down after a successful booking.  This is
// the single exit point of a completed wizard: all draft keys are
// cleared so the next booking starts clean.  Deleting is idempotent,
// so a retried verification cannot tear down twice with side effects.
func (m *Manager) Confirm(ctx context.Context, userID, scheduleID uint64) {
    if err := m.store.Delete(ctx, userID, scheduleID); err != nil && !errors.Is(err, ErrStoreUnavailable) {
        log.Printf("session: draft teardown user=%d schedule=%d: %v", userID, scheduleID, err)
    }
}

// Fail marks the user's draft failed after a settled payment failure.
// The caller is responsible for releasing the user's locks; the draft
// is kept (in Failed state) so the UI can offer a payment retry, via
// Back, with the entered data intact.  A missing draft or one already
// confirmed is left alone.
func (m *Manager) Fail(ctx context.Context, userID, scheduleID uint64) {
    d, err := m.store.Load(ctx, userID, scheduleID)
    if err != nil || d.State == StateConfirmed || d.State == StateFailed {
        return
    }
    d.State = StateFailed
    m.save(ctx, d)
}

// Clear abandons the draft entirely.
func (m *Manager) Clear(ctx context.Context, userID, scheduleID uint64) {
    _ = m.store.Delete(ctx, userID, scheduleID)
}

// save persists best-effort: losing the store means the user restarts
// the wizard, which is acceptable by contract.
func (m *Manager) save(ctx context.Context, d *Draft) {
    d.UpdatedAt = time.Now().UTC()
    if err := m.store.Save(ctx, d); err != nil && !errors.Is(err, ErrStoreUnavailable) {
        log.Printf("session: save draft user=%d schedule=%d: %v", d.UserID, d.ScheduleID, err)
    }
}

func passengersComplete(d *Draft) bool {
    if uint32(len(d.Passengers)) != d.PassengerCount {
        return false
    }
    for _, p := range d.Passengers {
        if strings.TrimSpace(p.FullName) == "" || strings.TrimSpace(p.DocumentID) == "" {
            return false
        }
    }
    return true
}
