package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// BookingRepo provides persistence for bookings and their seats.  A
// PENDING row is written when payment is initiated; verification
// flips it to CONFIRMED exactly once or to FAILED.  The unique index
// on payment_ref is the final idempotency backstop: the same
// transaction reference can never produce two bookings.  All
// timestamp fields are stored in UTC.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// ErrPaymentRefExists is returned when a payment reference collides
// with an existing booking attempt.
var ErrPaymentRefExists = ErrConflict

// CreatePending inserts a PENDING booking with its seats inside one
// transaction.  The generated booking ID is populated on the record.
// This row is what lets verification succeed from the transaction
// reference alone, even when the client-side draft was lost.
func (r *BookingRepo) CreatePending(ctx context.Context, b *model.Booking, seats []model.BookingSeat) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    res, err := tx.ExecContext(ctx,
        `INSERT INTO bookings (booking_ref, user_id, schedule_id, payment_ref, total_amount_cents, status)
         VALUES (?, ?, ?, ?, ?, 'PENDING')`,
        b.BookingRef, b.UserID, b.ScheduleID, b.PaymentRef, b.TotalAmountCents)
    if err != nil {
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return ErrPaymentRefExists
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    b.Status = "PENDING"
    if len(seats) > 0 {
        query := `INSERT INTO booking_seats (booking_id, seat_number, passenger_name, fare_cents) VALUES `
        args := make([]interface{}, 0, len(seats)*4)
        for i := range seats {
            if i > 0 {
                query += ","
            }
            query += "(?, ?, ?, ?)"
            seats[i].BookingID = b.ID
            args = append(args, b.ID, seats[i].SeatNumber, seats[i].Passenger, seats[i].FareCents)
        }
        if _, err := tx.ExecContext(ctx, query, args...); err != nil {
            return err
        }
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// FindByPaymentRef loads a booking attempt and its seats by the
// gateway transaction reference.  sql.ErrNoRows is returned when the
// reference is unknown.
func (r *BookingRepo) FindByPaymentRef(ctx context.Context, paymentRef string) (*model.Booking, []model.BookingSeat, error) {
    var b model.Booking
    err := r.db.QueryRowContext(ctx,
        `SELECT id, booking_ref, user_id, schedule_id, payment_ref, total_amount_cents, status, created_at, updated_at
         FROM bookings WHERE payment_ref = ? LIMIT 1`,
        paymentRef).Scan(&b.ID, &b.BookingRef, &b.UserID, &b.ScheduleID, &b.PaymentRef,
        &b.TotalAmountCents, &b.Status, &b.CreatedAt, &b.UpdatedAt)
    if err != nil {
        return nil, nil, err
    }
    seats, err := r.seatsForBooking(ctx, b.ID)
    if err != nil {
        return nil, nil, err
    }
    return &b, seats, nil
}

// Confirm performs the conditional PENDING→CONFIRMED transition.  It
// reports whether this call actually transitioned the row; a false
// result with nil error means another verification got there first.
func (r *BookingRepo) Confirm(ctx context.Context, paymentRef string) (bool, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE bookings SET status = 'CONFIRMED', updated_at = ? WHERE payment_ref = ? AND status = 'PENDING'`,
        time.Now().UTC(), paymentRef)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// MarkFailed flags a booking attempt as terminally failed.  Confirmed
// bookings are never demoted.
func (r *BookingRepo) MarkFailed(ctx context.Context, paymentRef string) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE bookings SET status = 'FAILED', updated_at = ? WHERE payment_ref = ? AND status = 'PENDING'`,
        time.Now().UTC(), paymentRef)
    return err
}

// BookingDetail is the history view returned to passengers: the
// booking joined with its schedule and seat rows.
type BookingDetail struct {
    BookingRef       string    `json:"booking_ref"`
    Origin           string    `json:"origin"`
    Destination      string    `json:"destination"`
    DepartsAt        time.Time `json:"departs_at"`
    Seats            []uint32  `json:"seats"`
    TotalAmountCents uint32    `json:"total_amount_cents"`
    Status           string    `json:"status"`
    CreatedAt        time.Time `json:"created_at"`
}

// ListByUser returns the user's confirmed bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]BookingDetail, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT b.id, b.booking_ref, s.origin, s.destination, s.departs_at, b.total_amount_cents, b.status, b.created_at
         FROM bookings b
         JOIN schedules s ON s.id = b.schedule_id
         WHERE b.user_id = ? AND b.status = 'CONFIRMED'
         ORDER BY b.created_at DESC`,
        userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []BookingDetail
    var ids []uint64
    for rows.Next() {
        var id uint64
        var d BookingDetail
        if err := rows.Scan(&id, &d.BookingRef, &d.Origin, &d.Destination, &d.DepartsAt,
            &d.TotalAmountCents, &d.Status, &d.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, d)
        ids = append(ids, id)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    for i, id := range ids {
        seats, err := r.seatsForBooking(ctx, id)
        if err != nil {
            return nil, err
        }
        for _, s := range seats {
            out[i].Seats = append(out[i].Seats, s.SeatNumber)
        }
    }
    return out, nil
}

func (r *BookingRepo) seatsForBooking(ctx context.Context, bookingID uint64) ([]model.BookingSeat, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, booking_id, seat_number, passenger_name, fare_cents FROM booking_seats WHERE booking_id = ? ORDER BY seat_number`,
        bookingID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var seats []model.BookingSeat
    for rows.Next() {
        var s model.BookingSeat
        if err := rows.Scan(&s.ID, &s.BookingID, &s.SeatNumber, &s.Passenger, &s.FareCents); err != nil {
            return nil, err
        }
        seats = append(seats, s)
    }
    return seats, rows.Err()
}
