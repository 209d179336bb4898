package handler

import (
    "context"      // DB call timeouts
    "database/sql" // sentinel errors from repositories
    "errors"       // errors.Is/As comparisons
    "net/http"     // HTTP status codes
    "time"         // DB call timeouts

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/bus-seat-reservation/internal/coordinator"
    "github.com/iliyamo/bus-seat-reservation/internal/lockstore"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/payment"
    "github.com/iliyamo/bus-seat-reservation/internal/repository"
    "github.com/iliyamo/bus-seat-reservation/internal/session"
)

// BookingHandler drives the booking wizard over HTTP: draft reads and
// merges, guarded step transitions, payment initiation and the
// idempotent verification callback.  Seat contention errors never
// surface raw; they come back as the specific seats to re-select.
type BookingHandler struct {
    Sessions  *session.Manager
    Coord     *coordinator.Coordinator
    Schedules *repository.ScheduleRepo
    Users     *repository.UserRepo
    Bookings  *repository.BookingRepo
    Gateway   payment.Gateway
    Verifier  *payment.Verifier
}

// NewBookingHandler constructs a BookingHandler.  All dependencies
// must be non-nil.
func NewBookingHandler(sessions *session.Manager, coord *coordinator.Coordinator, schedules *repository.ScheduleRepo, users *repository.UserRepo, bookings *repository.BookingRepo, gw payment.Gateway, verifier *payment.Verifier) *BookingHandler {
    if sessions == nil || coord == nil || schedules == nil || users == nil || bookings == nil || gw == nil || verifier == nil {
        panic("nil dependency passed to NewBookingHandler")
    }
    return &BookingHandler{
        Sessions:  sessions,
        Coord:     coord,
        Schedules: schedules,
        Users:     users,
        Bookings:  bookings,
        Gateway:   gw,
        Verifier:  verifier,
    }
}

// draftResponse is the wizard's view of the draft plus any seats that
// revalidation stripped since the last read.  A non-empty
// removed_seats means the user must re-select before advancing.
type draftResponse struct {
    Draft        *session.Draft `json:"draft"`
    RemovedSeats []uint32       `json:"removed_seats,omitempty"`
}

// GetDraft handles GET /v1/schedules/:id/draft.  The draft is always
// revalidated against the lock store on read, so a seat that expired
// while the user sat on a later step is detected here, not at payment.
func (h *BookingHandler) GetDraft(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    d, removed, err := h.Sessions.Get(c.Request().Context(), userID, scheduleID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load draft"})
    }
    return c.JSON(http.StatusOK, draftResponse{Draft: d, RemovedSeats: removed})
}

// PutDraft handles PUT /v1/schedules/:id/draft.  It merges partial
// wizard fields (passenger count, passengers, baggage) and an optional
// seat selection into the draft, recomputing the priced amounts.
func (h *BookingHandler) PutDraft(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    var body struct {
        session.Patch
        Seats []uint32 `json:"seats"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    ctx := c.Request().Context()
    sched, tier, err := h.scheduleAndTier(ctx, scheduleID, userID)
    if err != nil {
        return h.mapLookupError(c, err)
    }
    if body.Seats != nil {
        if _, err := h.Sessions.SetSeats(ctx, userID, scheduleID, body.Seats); err != nil {
            if errors.Is(err, session.ErrStepBlocked) {
                return c.JSON(http.StatusConflict, echo.Map{"error": "seat selection is closed at this step"})
            }
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update draft"})
        }
    }
    d, removed, err := h.Sessions.Merge(ctx, userID, scheduleID, body.Patch, sched, tier)
    if err != nil {
        if errors.Is(err, session.ErrStepBlocked) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "draft is no longer editable"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update draft"})
    }
    return c.JSON(http.StatusOK, draftResponse{Draft: d, RemovedSeats: removed})
}

// DeleteDraft handles DELETE /v1/schedules/:id/draft.  Abandoning the
// wizard releases every lock the user holds on the schedule so the
// seats return to the pool immediately instead of waiting out the TTL.
func (h *BookingHandler) DeleteDraft(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    released, err := h.Coord.Release(scheduleID, userID, nil)
    if err != nil && !errors.Is(err, lockstore.ErrUnknownSchedule) {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release locks"})
    }
    h.Sessions.Clear(c.Request().Context(), userID, scheduleID)
    return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// Advance handles POST /v1/schedules/:id/draft/advance.  Guard
// violations come back with enough detail for the wizard to point at
// the offending step: a seat-count mismatch, incomplete passengers, or
// seats lost since the last read.
func (h *BookingHandler) Advance(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    ctx := c.Request().Context()
    sched, tier, err := h.scheduleAndTier(ctx, scheduleID, userID)
    if err != nil {
        return h.mapLookupError(c, err)
    }
    d, removed, err := h.Sessions.Advance(ctx, userID, scheduleID, sched, tier)
    if err != nil {
        var lost *session.SeatsRemovedError
        switch {
        case errors.As(err, &lost):
            return c.JSON(http.StatusConflict, echo.Map{
                "error":         "seats expired or were taken",
                "removed_seats": lost.Seats,
                "draft":         d,
            })
        case errors.Is(err, session.ErrSeatCountMismatch):
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "selected seats must match passenger count exactly", "draft": d})
        case errors.Is(err, session.ErrPassengersIncomplete):
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "passenger details incomplete", "draft": d})
        case errors.Is(err, session.ErrStepBlocked):
            return c.JSON(http.StatusConflict, echo.Map{"error": "step not permitted from current state", "draft": d})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to advance"})
        }
    }
    return c.JSON(http.StatusOK, draftResponse{Draft: d, RemovedSeats: removed})
}

// Back handles POST /v1/schedules/:id/draft/back.  Browser back and
// the explicit back button both land here; the draft is preserved, not
// discarded, and re-validated like any other read.
func (h *BookingHandler) Back(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    d, removed, err := h.Sessions.Back(c.Request().Context(), userID, scheduleID)
    if err != nil {
        if errors.Is(err, session.ErrStepBlocked) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "cannot go back from current step", "draft": d})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to go back"})
    }
    return c.JSON(http.StatusOK, draftResponse{Draft: d, RemovedSeats: removed})
}

// InitiatePayment handles POST /v1/schedules/:id/payment.  It freezes
// the draft into a PENDING booking row keyed by a fresh transaction
// reference, extends the user's locks to cover the gateway round-trip,
// and hands the browser the redirect URL.  The persisted row is what
// later lets verification finish from the reference alone.
func (h *BookingHandler) InitiatePayment(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    ctx := c.Request().Context()
    d, removed, err := h.Sessions.Get(ctx, userID, scheduleID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load draft"})
    }
    if len(removed) > 0 {
        return c.JSON(http.StatusConflict, echo.Map{
            "error":         "seats expired or were taken",
            "removed_seats": removed,
            "draft":         d,
        })
    }
    if d.State != session.StateBaggageConfirmed {
        return c.JSON(http.StatusConflict, echo.Map{"error": "complete the wizard steps before payment", "draft": d})
    }
    // Keep the locks alive across the gateway round-trip.
    if _, err := h.Coord.Extend(scheduleID, userID); err != nil {
        if errors.Is(err, lockstore.ErrLockExpired) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "lock expired, re-select seats"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "extend failed"})
    }

    paymentRef := payment.NewPaymentRef()
    booking := &model.Booking{
        BookingRef:       payment.NewBookingRef(),
        UserID:           userID,
        ScheduleID:       scheduleID,
        PaymentRef:       paymentRef,
        TotalAmountCents: d.Amounts.TotalCents,
    }
    seats := make([]model.BookingSeat, 0, len(d.Seats))
    for i, n := range d.Seats {
        name := ""
        if i < len(d.Passengers) {
            name = d.Passengers[i].FullName
        }
        seats = append(seats, model.BookingSeat{
            SeatNumber: n,
            Passenger:  name,
            FareCents:  d.Amounts.FarePerSeatCents,
        })
    }
    dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := h.Bookings.CreatePending(dbCtx, booking, seats); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record booking attempt"})
    }
    redirectURL, err := h.Gateway.Initiate(ctx, paymentRef, d.Amounts.TotalCents)
    if err != nil {
        // The PENDING row stays; it is never verified and carries no lock.
        return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable"})
    }
    if err := h.Sessions.MarkPaymentInitiated(ctx, d, paymentRef); err != nil {
        return c.JSON(http.StatusConflict, echo.Map{"error": "draft state changed, retry payment"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "tx_ref":       paymentRef,
        "redirect_url": redirectURL,
        "amount_cents": d.Amounts.TotalCents,
    })
}

// VerifyPayment handles GET /v1/payments/verify?tx_ref=...  This is
// both the gateway return URL and the retry endpoint; it needs nothing
// but the reference, so a closed browser loses nothing.  Repeated
// calls for a settled transaction return the same booking.
func (h *BookingHandler) VerifyPayment(c echo.Context) error {
    paymentRef := c.QueryParam("tx_ref")
    if paymentRef == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "tx_ref is required"})
    }
    ctx := c.Request().Context()
    // Move the draft into its verifying state, best effort: verification
    // itself works from the persisted booking row alone.
    if b, _, err := h.Bookings.FindByPaymentRef(ctx, paymentRef); err == nil && b.Status == "PENDING" {
        if d, _, err := h.Sessions.Get(ctx, b.UserID, b.ScheduleID); err == nil {
            h.Sessions.MarkVerifying(ctx, d)
        }
    }
    booking, err := h.Verifier.VerifyAndFinalize(ctx, paymentRef)
    if err != nil {
        var conflict *lockstore.PromoteConflictError
        switch {
        case errors.Is(err, payment.ErrUnknownPayment):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown transaction reference"})
        case errors.As(err, &conflict):
            return c.JSON(http.StatusConflict, echo.Map{
                "error":      "seats were lost before payment completed",
                "lost_seats": conflict.Seats,
            })
        case errors.Is(err, payment.ErrVerificationPending):
            return c.JSON(http.StatusAccepted, echo.Map{
                "status":      "pending",
                "retry_after": 5,
            })
        case errors.Is(err, payment.ErrVerificationFailed):
            return c.JSON(http.StatusPaymentRequired, echo.Map{
                "error": "payment failed; seats released, retry payment",
            })
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verification failed"})
        }
    }
    return c.JSON(http.StatusOK, echo.Map{
        "status":             "confirmed",
        "booking_ref":        booking.BookingRef,
        "total_amount_cents": booking.TotalAmountCents,
    })
}

// MyBookings handles GET /v1/my-bookings.  It returns the user's
// confirmed bookings with schedule and seat details; an empty history
// is an empty array, not an error.
func (h *BookingHandler) MyBookings(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    items, err := h.Bookings.ListByUser(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load bookings"})
    }
    if items == nil {
        items = []repository.BookingDetail{}
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// scheduleAndTier loads the schedule and the caller's loyalty tier,
// both needed to price the draft.
func (h *BookingHandler) scheduleAndTier(ctx context.Context, scheduleID, userID uint64) (*model.Schedule, string, error) {
    dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    sched, err := h.Schedules.GetByID(dbCtx, scheduleID)
    if err != nil {
        return nil, "", err
    }
    tier := "NONE"
    if u, err := h.Users.GetByID(dbCtx, userID); err == nil {
        tier = u.LoyaltyTier
    }
    return sched, tier, nil
}

// mapLookupError translates schedule lookup failures.
func (h *BookingHandler) mapLookupError(c echo.Context, err error) error {
    if errors.Is(err, repository.ErrScheduleNotFound) || errors.Is(err, sql.ErrNoRows) {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule not found"})
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}
