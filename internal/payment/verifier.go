package payment

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "log"
    "sync"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/lockstore"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// ErrUnknownPayment is returned when no booking attempt matches the
// transaction reference.
var ErrUnknownPayment = errors.New("unknown payment reference")

// ErrVerificationPending is transient: the gateway has not settled the
// transaction within the retry budget.  Callers retry later with
// backoff and never treat this as a failure.
var ErrVerificationPending = errors.New("payment verification pending")

// ErrVerificationFailed is terminal for this attempt: the seats are
// released and the user may retry the entire payment step.
var ErrVerificationFailed = errors.New("payment verification failed")

// BookingStore is the persistence the verifier needs.  FindByPaymentRef
// returns sql.ErrNoRows when the reference is unknown.  Confirm is a
// conditional PENDING→CONFIRMED transition reporting whether this call
// performed it, which makes concurrent verifications settle to exactly
// one finalizer.
type BookingStore interface {
    FindByPaymentRef(ctx context.Context, paymentRef string) (*model.Booking, []model.BookingSeat, error)
    Confirm(ctx context.Context, paymentRef string) (bool, error)
    MarkFailed(ctx context.Context, paymentRef string) error
}

// Promoter is the slice of the coordinator the verifier drives.
type Promoter interface {
    Promote(scheduleID, userID uint64, seats []uint32) error
    Release(scheduleID, userID uint64, seats []uint32) ([]uint32, error)
}

// DraftSessions lets the verifier settle the wizard draft alongside
// the booking row: Confirm tears the draft down, Fail moves it to its
// failed state so the user can retry the payment step.
type DraftSessions interface {
    Confirm(ctx context.Context, userID, scheduleID uint64)
    Fail(ctx context.Context, userID, scheduleID uint64)
}

// Verifier resolves a returning payment redirect (or a retried
// verification call) into a finalized or released reservation.  It
// works from the transaction reference alone: the pending booking row
// persisted at initiation carries the user, schedule and seats, so a
// lost browser draft does not matter.
type Verifier struct {
    gateway  Gateway
    bookings BookingStore
    locks    Promoter
    drafts   DraftSessions

    attempts int
    backoff  time.Duration

    // Verification is serialized per transaction reference: two calls
    // for the same reference (double-clicked return URL, a retry racing
    // the original) must not interleave between promote and the status
    // write.
    mu       sync.Mutex
    inflight map[string]*refLock

    // OnConfirmed, when set, runs after a booking is finalized.  Main
    // wires it to the message-queue publisher; failures there never
    // affect the booking.
    OnConfirmed func(ctx context.Context, b *model.Booking, seats []model.BookingSeat)
}

// NewVerifier builds a verifier with a bounded retry budget.  attempts
// must be at least 1; backoff doubles per retry and is capped at 10s,
// the same shape as the queue consumer's reconnect loop.
func NewVerifier(gw Gateway, bookings BookingStore, locks Promoter, drafts DraftSessions, attempts int, backoff time.Duration) *Verifier {
    if attempts < 1 {
        attempts = 1
    }
    if backoff <= 0 {
        backoff = 500 * time.Millisecond
    }
    return &Verifier{
        gateway:  gw,
        bookings: bookings,
        locks:    locks,
        drafts:   drafts,
        attempts: attempts,
        backoff:  backoff,
        inflight: make(map[string]*refLock),
    }
}

// refLock is a reference-counted mutex for one transaction reference.
// The count lets the entry be removed once the last holder leaves, so
// the inflight map does not grow with every reference ever verified.
type refLock struct {
    mu   sync.Mutex
    refs int
}

// lockRef acquires the per-reference mutex and returns its release
// function.
func (v *Verifier) lockRef(paymentRef string) func() {
    v.mu.Lock()
    l, ok := v.inflight[paymentRef]
    if !ok {
        l = &refLock{}
        v.inflight[paymentRef] = l
    }
    l.refs++
    v.mu.Unlock()
    l.mu.Lock()
    return func() {
        l.mu.Unlock()
        v.mu.Lock()
        l.refs--
        if l.refs == 0 {
            delete(v.inflight, paymentRef)
        }
        v.mu.Unlock()
    }
}

// VerifyAndFinalize resolves one transaction reference.  It is
// idempotent: repeated calls for the same reference return the same
// booking and never create a second one or double-promote.  On a
// settled failure the user's held seats are released so they return
// to the pool promptly instead of waiting out the TTL.
func (v *Verifier) VerifyAndFinalize(ctx context.Context, paymentRef string) (*model.Booking, error) {
    unlock := v.lockRef(paymentRef)
    defer unlock()

    b, seats, err := v.bookings.FindByPaymentRef(ctx, paymentRef)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrUnknownPayment
    }
    if err != nil {
        return nil, err
    }
    switch b.Status {
    case "CONFIRMED":
        // Already finalized by an earlier call: idempotent success.
        return b, nil
    case "FAILED":
        return nil, ErrVerificationFailed
    }

    status, err := v.pollGateway(ctx, paymentRef)
    if err != nil {
        return nil, err
    }
    if status == StatusFailed {
        v.settleFailure(ctx, b)
        return nil, ErrVerificationFailed
    }

    seatNumbers := make([]uint32, 0, len(seats))
    for _, s := range seats {
        seatNumbers = append(seatNumbers, s.SeatNumber)
    }
    if err := v.locks.Promote(b.ScheduleID, b.UserID, seatNumbers); err != nil {
        var conflict *lockstore.PromoteConflictError
        if errors.As(err, &conflict) {
            // A concurrent verification may have promoted first; if the
            // booking is confirmed, this call is an idempotent success.
            cur, _, lookupErr := v.bookings.FindByPaymentRef(ctx, paymentRef)
            if lookupErr == nil && cur.Status == "CONFIRMED" {
                return cur, nil
            }
            // Genuine conflict: seats were invalidated between hold and
            // payment.  Release whatever is left and surface the seats.
            v.settleFailure(ctx, b)
            return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, conflict)
        }
        return nil, err
    }

    if performed, err := v.bookings.Confirm(ctx, paymentRef); err != nil {
        // The promotion committed; a confirm write failure must not
        // lose the booking.  Log and report the row as confirmed.
        log.Printf("payment: confirm write for ref=%s failed after promote: %v", paymentRef, err)
    } else if !performed {
        // The row left PENDING while we verified, so something else
        // settled it (another process handling the same reference).
        // The stored status is authoritative, never our in-flight view.
        cur, _, lookupErr := v.bookings.FindByPaymentRef(ctx, paymentRef)
        if lookupErr == nil && cur.Status == "FAILED" {
            log.Printf("payment: ref=%s was settled failed concurrently after promote", paymentRef)
            return nil, ErrVerificationFailed
        }
    }
    b.Status = "CONFIRMED"
    v.drafts.Confirm(ctx, b.UserID, b.ScheduleID)
    if v.OnConfirmed != nil {
        v.OnConfirmed(ctx, b, seats)
    }
    log.Printf("payment: booking %s confirmed ref=%s user=%d schedule=%d seats=%v",
        b.BookingRef, paymentRef, b.UserID, b.ScheduleID, seatNumbers)
    return b, nil
}

// pollGateway queries the gateway with bounded retries and exponential
// backoff.  Transport errors count as pending; only a settled answer
// ends the loop early.
func (v *Verifier) pollGateway(ctx context.Context, paymentRef string) (Status, error) {
    delay := v.backoff
    for attempt := 1; ; attempt++ {
        status, err := v.gateway.Verify(ctx, paymentRef)
        if err != nil {
            log.Printf("payment: verify ref=%s attempt=%d: %v", paymentRef, attempt, err)
            status = StatusPending
        }
        if status != StatusPending {
            return status, nil
        }
        if attempt >= v.attempts {
            return StatusPending, ErrVerificationPending
        }
        select {
        case <-ctx.Done():
            return StatusPending, ctx.Err()
        case <-time.After(delay):
        }
        delay *= 2
        if delay > 10*time.Second {
            delay = 10 * time.Second
        }
    }
}

// settleFailure releases the user's held seats, marks the attempt
// failed and moves the draft to its failed state so the wizard can
// offer a retry of the payment step.  Releasing here, rather than
// letting the TTL run out, keeps the seats moving under churn.
func (v *Verifier) settleFailure(ctx context.Context, b *model.Booking) {
    if _, err := v.locks.Release(b.ScheduleID, b.UserID, nil); err != nil {
        log.Printf("payment: release after failed ref=%s: %v", b.PaymentRef, err)
    }
    if err := v.bookings.MarkFailed(ctx, b.PaymentRef); err != nil {
        log.Printf("payment: mark failed ref=%s: %v", b.PaymentRef, err)
    }
    v.drafts.Fail(ctx, b.UserID, b.ScheduleID)
}
