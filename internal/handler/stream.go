package handler

import (
    "encoding/json" // marshalling events onto the SSE stream
    "fmt"           // writing SSE framing
    "net/http"      // status codes and flusher
    "time"          // keep-alive ticker

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/bus-seat-reservation/internal/broadcast" // per-schedule fan-out hub
)

// StreamHandler serves the per-schedule delta stream over Server-Sent
// Events.  The first event on every connection is a full snapshot;
// deltas follow in commit order.  A client that reconnects starts from
// a fresh snapshot rather than replaying missed deltas.
type StreamHandler struct {
    Hub *broadcast.Hub
}

// NewStreamHandler constructs a StreamHandler.  The hub must be non-nil.
func NewStreamHandler(hub *broadcast.Hub) *StreamHandler {
    if hub == nil {
        panic("nil hub passed to NewStreamHandler")
    }
    return &StreamHandler{Hub: hub}
}

// keepAliveInterval is how often an SSE comment line is written so
// intermediaries do not reap an idle connection.
const keepAliveInterval = 25 * time.Second

// Stream handles GET /v1/schedules/:id/stream.  It subscribes the
// connection to the schedule's feed and writes events until the client
// disconnects.  Event names distinguish snapshots from deltas so the
// browser can replace or merge accordingly.
func (h *StreamHandler) Stream(c echo.Context) error {
    scheduleID, ok := scheduleIDParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
    }
    sub, ok := h.Hub.Subscribe(scheduleID)
    if !ok {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule not found"})
    }
    defer sub.Close()

    resp := c.Response()
    resp.Header().Set(echo.HeaderContentType, "text/event-stream")
    resp.Header().Set("Cache-Control", "no-cache")
    resp.Header().Set("Connection", "keep-alive")
    resp.WriteHeader(http.StatusOK)
    resp.Flush()

    ctx := c.Request().Context()
    keepAlive := time.NewTicker(keepAliveInterval)
    defer keepAlive.Stop()

    for {
        select {
        case <-ctx.Done():
            return nil
        case <-keepAlive.C:
            if _, err := fmt.Fprint(resp, ": keep-alive\n\n"); err != nil {
                return nil
            }
            resp.Flush()
        case ev, open := <-sub.C:
            if !open {
                return nil
            }
            name := "delta"
            var payload interface{} = ev.Delta
            if ev.Snapshot != nil {
                name = "snapshot"
                payload = ev.Snapshot
            }
            data, err := json.Marshal(payload)
            if err != nil {
                continue
            }
            if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", name, data); err != nil {
                return nil
            }
            resp.Flush()
        }
    }
}
