package model

import "time"

// Booking records a confirmed purchase of one or more seats on a
// schedule, as stored in the `bookings` table.  A booking is only
// ever created by a successful payment verification promoting the
// user's held locks; the unique PaymentRef column is what makes
// repeated verification calls idempotent.
//
// Fields:
//  ID               – primary key identifier.
//  BookingRef       – public reference shown to the passenger.
//  UserID           – user who paid for the booking.
//  ScheduleID       – schedule the seats belong to.
//  PaymentRef       – gateway transaction reference (unique).
//  TotalAmountCents – total charged amount in cents.
//  Status           – PENDING, CONFIRMED or FAILED.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Booking struct {
    ID               uint64    // bookings.id
    BookingRef       string    // bookings.booking_ref
    UserID           uint64    // bookings.user_id
    ScheduleID       uint64    // bookings.schedule_id
    PaymentRef       string    // bookings.payment_ref
    TotalAmountCents uint32    // bookings.total_amount_cents
    Status           string    // bookings.status
    CreatedAt        time.Time // bookings.created_at
    UpdatedAt        time.Time // bookings.updated_at
}

// BookingSeat links a booking to one purchased seat.  Together the
// rows for a booking form the full set of seats covered by it.
//
// Fields:
//  ID         – primary key identifier.
//  BookingID  – reference to the booking.
//  SeatNumber – physical seat number purchased.
//  Passenger  – passenger name travelling on this seat.
//  FareCents  – fare paid for this seat in cents.
type BookingSeat struct {
    ID         uint64 // booking_seats.id
    BookingID  uint64 // booking_seats.booking_id
    SeatNumber uint32 // booking_seats.seat_number
    Passenger  string // booking_seats.passenger_name
    FareCents  uint32 // booking_seats.fare_cents
}

// Passenger holds the identity fields entered for one traveller in
// the booking wizard.  One passenger is required per selected seat.
type Passenger struct {
    FullName   string `json:"full_name"`
    DocumentID string `json:"document_id"`
    Phone      string `json:"phone,omitempty"`
}

// Baggage holds the wizard's baggage step selections.  The fee is
// computed by the pricing tables and stored so that later steps and
// a resumed draft show the same amount.
type Baggage struct {
    Pieces   uint32 `json:"pieces"`
    WeightKg uint32 `json:"weight_kg"`
    FeeCents uint32 `json:"fee_cents"`
}
