// Package queue defines message payloads exchanged over the message broker.
package queue

// BookingConfirmedEvent is published when a payment verification
// finalizes a booking.  It contains enough information for downstream
// consumers to log, notify, or trigger analytics without querying the
// primary database.
type BookingConfirmedEvent struct {
    BookingRef       string   `json:"booking_ref"`
    UserID           uint64   `json:"user_id"`
    ScheduleID       uint64   `json:"schedule_id"`
    Origin           string   `json:"origin"`
    Destination      string   `json:"destination"`
    DepartsAt        string   `json:"departs_at"`
    Seats            []uint32 `json:"seats"`
    TotalAmountCents uint32   `json:"total_amount_cents"`
    ConfirmedAt      string   `json:"confirmed_at"`
}
