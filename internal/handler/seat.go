package handler

import (
    "errors"   // errors.Is comparisons against coordinator sentinels
    "net/http" // HTTP status codes
    "time"     // formatting lock expiries

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/bus-seat-reservation/internal/coordinator" // per-schedule lock serialization
    "github.com/iliyamo/bus-seat-reservation/internal/lockstore"   // sentinel errors and result types
)

// SeatHandler exposes the lock-coordination surface: snapshot, lock,
// extend and release.  All methods assume JWT authentication has run;
// the token subject is the lock owner.  The coordinator resolves all
// contention — handlers only translate results to HTTP.
type SeatHandler struct {
    Coord *coordinator.Coordinator
}

// NewSeatHandler constructs a SeatHandler.  The coordinator must be non-nil.
func NewSeatHandler(coord *coordinator.Coordinator) *SeatHandler {
    if coord == nil {
        panic("nil coordinator passed to NewSeatHandler")
    }
    return &SeatHandler{Coord: coord}
}

// Snapshot handles GET /v1/schedules/:id/seats.  It returns the
// authoritative seat map.  Clients re-query this after a request
// timeout or reconnect instead of guessing at outcomes.
func (h *SeatHandler) Snapshot(c echo.Context) error {
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    snap, err := h.Coord.Snapshot(scheduleID)
    if err != nil {
        if errors.Is(err, lockstore.ErrUnknownSchedule) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "snapshot failed"})
    }
    return c.JSON(http.StatusOK, snap)
}

// Lock handles POST /v1/schedules/:id/lock.  The request body carries
// a "seats" array of seat numbers.  Each seat is decided independently
// and the response reports grants and denials explicitly — a partial
// grant is a 200 with both lists populated, never a silent drop.
func (h *SeatHandler) Lock(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    var body struct {
        Seats []uint32 `json:"seats"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if len(body.Seats) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats is required"})
    }
    // deduplicate seat numbers to avoid double-granting in one call
    unique := make([]uint32, 0, len(body.Seats))
    seen := make(map[uint32]struct{})
    for _, n := range body.Seats {
        if n == 0 {
            continue
        }
        if _, ok := seen[n]; !ok {
            seen[n] = struct{}{}
            unique = append(unique, n)
        }
    }
    if len(unique) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "no valid seat numbers provided"})
    }
    res, err := h.Coord.Lock(scheduleID, userID, unique)
    if err != nil {
        if errors.Is(err, lockstore.ErrUnknownSchedule) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lock failed"})
    }
    status := http.StatusOK
    if len(res.Granted) == 0 {
        // Nothing granted: pure contention, surface it as a conflict.
        return c.JSON(http.StatusConflict, echo.Map{
            "error":  "seats unavailable",
            "denied": res.Denied,
        })
    }
    return c.JSON(status, echo.Map{
        "granted":    res.Granted,
        "denied":     res.Denied,
        "expires_at": res.ExpiresAt.UTC().Format(time.RFC3339),
    })
}

// Extend handles POST /v1/schedules/:id/extend.  The wizard calls it
// periodically while the user progresses through steps so an active
// session's locks stay alive; it is not a path to a permanent lock.
func (h *SeatHandler) Extend(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    exp, err := h.Coord.Extend(scheduleID, userID)
    if err != nil {
        switch {
        case errors.Is(err, lockstore.ErrUnknownSchedule):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule not found"})
        case errors.Is(err, lockstore.ErrLockExpired):
            return c.JSON(http.StatusConflict, echo.Map{"error": "lock expired, re-select seats"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "extend failed"})
        }
    }
    return c.JSON(http.StatusOK, echo.Map{
        "expires_at": exp.UTC().Format(time.RFC3339),
    })
}

// Release handles DELETE /v1/schedules/:id/lock.  An empty or missing
// "seats" array releases the caller's whole lock session, which is
// what navigating away from seat selection issues.
func (h *SeatHandler) Release(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    var body struct {
        Seats []uint32 `json:"seats"`
    }
    // body is optional; bind errors mean release-all
    _ = c.Bind(&body)
    var seats []uint32
    if len(body.Seats) > 0 {
        seats = body.Seats
    }
    released, err := h.Coord.Release(scheduleID, userID, seats)
    if err != nil {
        if errors.Is(err, lockstore.ErrUnknownSchedule) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "release failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "released": released,
    })
}
