package handler

import (
    "net/http" // status codes

    "github.com/labstack/echo/v4" // Echo web framework
)

// Health is the liveness endpoint used by load balancers and monitoring
// systems.  It answers before any dependency is consulted: a healthy
// process with a degraded Redis or broker still serves seat traffic.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}
