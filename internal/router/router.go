package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"   // import the Echo web framework to handle routing
    "github.com/redis/go-redis/v9" // Redis client backing the rate limiter

    "github.com/iliyamo/bus-seat-reservation/internal/config"     // rate-limit configuration
    "github.com/iliyamo/bus-seat-reservation/internal/handler"    // import the handlers that implement business logic
    "github.com/iliyamo/bus-seat-reservation/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Map the GET request at path "/healthz" to the Health handler.  This
    // endpoint can be used by load balancers or monitoring systems to verify
    // that the service is up and running.
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while the authenticated profile endpoint lives under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
    // Create a route group under the /v1/auth prefix for operations that do
    // not require an existing session.
    g := e.Group("/v1/auth")
    // Register a POST endpoint to handle user registration at /v1/auth/register.
    g.POST("/register", a.Register)
    // Register a POST endpoint to handle user login at /v1/auth/login.
    g.POST("/login", a.Login)

    // Create another group for routes that require a valid access token.
    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))
    auth.Use(middleware.RequireRole("CUSTOMER", "OPERATOR"))
    // Register a GET endpoint at /v1/me that returns the authenticated user's information.
    auth.GET("/me", a.Me)
}

// RegisterPublic registers unauthenticated browse endpoints: the schedule
// catalog and the live seat surface.  The snapshot and the event stream are
// deliberately public so a guest can watch a seat map before signing in;
// only mutations (lock, extend, release, the wizard) require a token.
func RegisterPublic(e *echo.Echo, sc *handler.ScheduleHandler, seats *handler.SeatHandler, stream *handler.StreamHandler) {
    // Expose the list of upcoming schedules.
    e.GET("/v1/schedules", sc.List)
    // Schedule detail including the seat layout dimensions.
    e.GET("/v1/schedules/:id", sc.Get)
    // Authoritative seat snapshot for a schedule.
    e.GET("/v1/schedules/:id/seats", seats.Snapshot)
    // Server-sent event stream of seat deltas, snapshot-first.
    e.GET("/v1/schedules/:id/stream", stream.Stream)
}

// RegisterReservation registers the authenticated reservation surface: seat
// locking and the booking wizard.  All routes require a valid JWT; the lock
// mutations additionally pass through the Redis token-bucket limiter so one
// misbehaving client cannot hammer the coordinator.
func RegisterReservation(e *echo.Echo, seats *handler.SeatHandler, booking *handler.BookingHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))
    auth.Use(middleware.RequireRole("CUSTOMER", "OPERATOR"))

    limited := auth.Group("")
    limited.Use(middleware.NewTokenBucket(rlCfg, rdb))
    // Seat lock mutations: grant, extend and release.
    limited.POST("/schedules/:id/lock", seats.Lock)
    limited.POST("/schedules/:id/extend", seats.Extend)
    limited.DELETE("/schedules/:id/lock", seats.Release)

    // Booking wizard draft: read, merge, abandon, and step transitions.
    auth.GET("/schedules/:id/draft", booking.GetDraft)
    auth.PUT("/schedules/:id/draft", booking.PutDraft)
    auth.DELETE("/schedules/:id/draft", booking.DeleteDraft)
    auth.POST("/schedules/:id/draft/advance", booking.Advance)
    auth.POST("/schedules/:id/draft/back", booking.Back)

    // Payment hand-off and the idempotent verification callback.
    auth.POST("/schedules/:id/payment", booking.InitiatePayment)
    auth.GET("/payments/verify", booking.VerifyPayment)

    // Booking history for the signed-in passenger.
    auth.GET("/my-bookings", booking.MyBookings)
}
