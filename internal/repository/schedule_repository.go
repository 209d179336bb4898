package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// ErrScheduleNotFound is returned when a schedule ID does not exist.
// Handlers translate it into a 404 response.
var ErrScheduleNotFound = errors.New("schedule not found")

// ScheduleRepo provides read access to the schedules catalog.  The
// catalog is seeded data in this service; schedule management belongs
// to the operator tooling, not the reservation core.
type ScheduleRepo struct {
    db *sql.DB
}

// NewScheduleRepo returns a ScheduleRepo bound to the given database.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions
// spanning multiple repositories.
func (r *ScheduleRepo) DB() *sql.DB { return r.db }

const scheduleColumns = `id, route_id, origin, destination, departs_at, arrives_at,
    bus_class, seat_rows, seats_per_row, base_fare_cents, status, created_at, updated_at`

func scanSchedule(row interface{ Scan(...interface{}) error }) (*model.Schedule, error) {
    var s model.Schedule
    err := row.Scan(&s.ID, &s.RouteID, &s.Origin, &s.Destination, &s.DepartsAt, &s.ArrivesAt,
        &s.BusClass, &s.SeatRows, &s.SeatsPerRow, &s.BaseFareCents, &s.Status, &s.CreatedAt, &s.UpdatedAt)
    if err != nil {
        return nil, err
    }
    return &s, nil
}

// GetByID fetches one schedule.  Missing rows map to ErrScheduleNotFound.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uint64) (*model.Schedule, error) {
    row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
    s, err := scanSchedule(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrScheduleNotFound
    }
    return s, err
}

// ListUpcoming returns schedules that have not yet departed, soonest
// first.  It backs the public schedule listing.
func (r *ScheduleRepo) ListUpcoming(ctx context.Context) ([]*model.Schedule, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+scheduleColumns+` FROM schedules
         WHERE status = 'SCHEDULED' AND departs_at > UTC_TIMESTAMP()
         ORDER BY departs_at ASC`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []*model.Schedule
    for rows.Next() {
        s, err := scanSchedule(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    return out, rows.Err()
}

// BookedSeats returns the seat numbers already sold for a schedule.
// The coordinator preloads these into the lock table at startup so
// the in-memory view agrees with the permanent record.
func (r *ScheduleRepo) BookedSeats(ctx context.Context, scheduleID uint64) ([]uint32, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT bs.seat_number
         FROM booking_seats bs
         JOIN bookings b ON b.id = bs.booking_id
         WHERE b.schedule_id = ? AND b.status = 'CONFIRMED'`,
        scheduleID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var seats []uint32
    for rows.Next() {
        var n uint32
        if err := rows.Scan(&n); err != nil {
            return nil, err
        }
        seats = append(seats, n)
    }
    return seats, rows.Err()
}
