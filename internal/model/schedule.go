package model

import "time"

// Schedule represents a single departure of a bus on a route, as
// stored in the `schedules` table.  Every schedule carries its own
// independent seat map; seat coordination for one schedule never
// interacts with another.
//
// Fields:
//  ID             – primary key identifier.
//  RouteID        – route being driven (origin/destination pair).
//  Origin         – departure city, denormalized for listings.
//  Destination    – arrival city, denormalized for listings.
//  DepartsAt      – scheduled departure time.
//  ArrivesAt      – scheduled arrival time (must be after DepartsAt).
//  BusClass       – fare class of the bus (STANDARD, EXPRESS, SLEEPER).
//  SeatRows       – number of seat rows on the bus.
//  SeatsPerRow    – seats in each row; SeatRows*SeatsPerRow is capacity.
//  BaseFareCents  – base fare per seat in cents before class multiplier.
//  Status         – SCHEDULED, DEPARTED or CANCELLED.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Schedule struct {
    ID            uint64    // schedules.id
    RouteID       uint64    // schedules.route_id
    Origin        string    // schedules.origin
    Destination   string    // schedules.destination
    DepartsAt     time.Time // schedules.departs_at
    ArrivesAt     time.Time // schedules.arrives_at
    BusClass      string    // schedules.bus_class
    SeatRows      uint32    // schedules.seat_rows
    SeatsPerRow   uint32    // schedules.seats_per_row
    BaseFareCents uint32    // schedules.base_fare_cents
    Status        string    // schedules.status
    CreatedAt     time.Time // schedules.created_at
    UpdatedAt     time.Time // schedules.updated_at
}

// Capacity returns the number of physical seats on the bus.  Seat
// numbers run from 1 to Capacity inclusive.
func (s *Schedule) Capacity() uint32 {
    return s.SeatRows * s.SeatsPerRow
}
