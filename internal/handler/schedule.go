package handler

import (
    "context"  // DB call timeouts
    "net/http" // HTTP status codes
    "time"     // DB call timeouts

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/pricing"
    "github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// ScheduleHandler serves the public schedule catalog: the upcoming
// departures list and per-schedule detail with the seat layout.  The
// catalog is read-only here; live seat state comes from the snapshot
// and stream endpoints, not from these.
type ScheduleHandler struct {
    Schedules *repository.ScheduleRepo
}

// NewScheduleHandler constructs a ScheduleHandler.
func NewScheduleHandler(schedules *repository.ScheduleRepo) *ScheduleHandler {
    if schedules == nil {
        panic("nil schedule repository passed to NewScheduleHandler")
    }
    return &ScheduleHandler{Schedules: schedules}
}

// scheduleView is the catalog projection of a schedule.
type scheduleView struct {
    ID            uint64    `json:"id"`
    RouteID       uint64    `json:"route_id"`
    Origin        string    `json:"origin"`
    Destination   string    `json:"destination"`
    DepartsAt     time.Time `json:"departs_at"`
    ArrivesAt     time.Time `json:"arrives_at"`
    BusClass      string    `json:"bus_class"`
    SeatRows      uint32    `json:"seat_rows"`
    SeatsPerRow   uint32    `json:"seats_per_row"`
    Capacity      uint32    `json:"capacity"`
    BaseFareCents uint32    `json:"base_fare_cents"`
    FareCents     uint32    `json:"fare_cents"`
    Status        string    `json:"status"`
}

func toScheduleView(s *model.Schedule) scheduleView {
    // Show the class-adjusted single-seat fare so the listing matches
    // what the wizard will quote.
    fare := pricing.Quote(s, 1, 0, "NONE").FarePerSeatCents
    return scheduleView{
        ID:            s.ID,
        RouteID:       s.RouteID,
        Origin:        s.Origin,
        Destination:   s.Destination,
        DepartsAt:     s.DepartsAt,
        ArrivesAt:     s.ArrivesAt,
        BusClass:      s.BusClass,
        SeatRows:      s.SeatRows,
        SeatsPerRow:   s.SeatsPerRow,
        Capacity:      s.Capacity(),
        BaseFareCents: s.BaseFareCents,
        FareCents:     fare,
        Status:        s.Status,
    }
}

// List handles GET /v1/schedules.  It returns upcoming departures,
// soonest first.  No live seat counts are included; clients subscribe
// to a schedule's stream for those.
func (h *ScheduleHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    items, err := h.Schedules.ListUpcoming(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load schedules"})
    }
    views := make([]scheduleView, 0, len(items))
    for _, s := range items {
        views = append(views, toScheduleView(s))
    }
    return c.JSON(http.StatusOK, echo.Map{"items": views})
}

// Get handles GET /v1/schedules/:id.  It returns the schedule detail
// including the seat layout dimensions the seat map is rendered from.
func (h *ScheduleHandler) Get(c echo.Context) error {
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    s, err := h.Schedules.GetByID(ctx, scheduleID)
    if err != nil {
        if err == repository.ErrScheduleNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, toScheduleView(s))
}
