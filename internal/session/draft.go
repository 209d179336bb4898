// Package session owns the multi-step booking wizard: the persisted
// BookingDraft, the state machine guarding step transitions, and the
// revalidation that keeps the draft consistent with the seats the user
// actually holds in the lock store.  The draft survives navigation and
// browser back; losing the persisted copy just means starting over,
// never a hard failure.
package session

import (
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/pricing"
)

// State names the completed milestone of the wizard.  Transitions only
// move one step at a time; Advance and Back enforce the guards.
type State string

const (
    StateSeatsPending      State = "SEATS_PENDING"      // wizard opened, nothing held yet
    StateSeatsHeld         State = "SEATS_HELD"         // locks granted on the selection
    StatePassengersEntered State = "PASSENGERS_ENTERED" // one passenger per seat captured
    StateBaggageConfirmed  State = "BAGGAGE_CONFIRMED"  // baggage chosen, totals computed
    StatePaymentInitiated  State = "PAYMENT_INITIATED"  // handed off to the gateway
    StatePaymentVerifying  State = "PAYMENT_VERIFYING"  // gateway returned, verifying
    StateConfirmed         State = "CONFIRMED"          // booked; draft is torn down
    StateFailed            State = "FAILED"             // terminal failure; locks released
)

// stepOrder maps the forward progression of the wizard.  Confirmed and
// Failed are exits, not steps.
var stepOrder = map[State]int{
    StateSeatsPending:      0,
    StateSeatsHeld:         1,
    StatePassengersEntered: 2,
    StateBaggageConfirmed:  3,
    StatePaymentInitiated:  4,
    StatePaymentVerifying:  5,
}

// Draft is the client's persisted in-progress booking.  Its invariant
// is that Seats is always a subset of the user's live lock session;
// the manager enforces this on every load and before every forward
// transition, removing lost seats and regressing the state instead of
// failing silently at payment time.
type Draft struct {
    UserID         uint64            `json:"user_id"`
    ScheduleID     uint64            `json:"schedule_id"`
    State          State             `json:"state"`
    Seats          []uint32          `json:"seats"`
    PassengerCount uint32            `json:"passenger_count"`
    Passengers     []model.Passenger `json:"passengers"`
    Baggage        model.Baggage     `json:"baggage"`
    Amounts        pricing.Amounts   `json:"amounts"`
    PaymentRef     string            `json:"payment_ref,omitempty"`
    UpdatedAt      time.Time         `json:"updated_at"`
}

// NewDraft returns an empty draft at the first wizard step.
func NewDraft(userID, scheduleID uint64) *Draft {
    return &Draft{
        UserID:     userID,
        ScheduleID: scheduleID,
        State:      StateSeatsPending,
        UpdatedAt:  time.Now().UTC(),
    }
}

// clone returns a deep copy whose slices share no backing arrays with
// the receiver.  The manager rebuilds Seats in place during
// revalidation, so stored copies must never alias a handed-out draft.
func (d *Draft) clone() *Draft {
    cp := *d
    if d.Seats != nil {
        cp.Seats = append([]uint32(nil), d.Seats...)
    }
    if d.Passengers != nil {
        cp.Passengers = append([]model.Passenger(nil), d.Passengers...)
    }
    return &cp
}

// sane performs the structural checks a restored draft must pass.  A
// draft that fails them is treated as corrupt and discarded.
func (d *Draft) sane(userID, scheduleID uint64) bool {
    if d.UserID != userID || d.ScheduleID != scheduleID {
        return false
    }
    if _, ok := stepOrder[d.State]; !ok && d.State != StateConfirmed && d.State != StateFailed {
        return false
    }
    if len(d.Seats) > 256 || len(d.Passengers) > 256 {
        return false
    }
    return true
}

// ErrDraftCorrupt is returned when a persisted draft fails its sanity
// checks on resume.  The manager discards the draft and restarts the
// wizard from seat selection.
var ErrDraftCorrupt = errors.New("draft corrupt")

// ErrSeatCountMismatch blocks the transition out of the seat step when
// the selection does not match the required passenger count exactly.
var ErrSeatCountMismatch = errors.New("selected seats must match passenger count exactly")

// ErrPassengersIncomplete blocks progression while any passenger is
// missing identity fields.
var ErrPassengersIncomplete = errors.New("passenger details incomplete")

// ErrStepBlocked is returned for transitions the state machine does
// not permit from the draft's current state.
var ErrStepBlocked = errors.New("step not permitted from current state")

// SeatsRemovedError reports that revalidation stripped seats from the
// draft because the lock store no longer shows the user holding them.
// The wizard must surface the lost seats and block forward progress
// until the user re-selects.
type SeatsRemovedError struct {
    Seats []uint32
}

func (e *SeatsRemovedError) Error() string {
    return fmt.Sprintf("seats %v expired or were taken and have been removed from the draft", e.Seats)
}
