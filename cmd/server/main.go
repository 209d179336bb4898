package main // Entry point package

import (
    "context" // context for the sweeper and startup DB calls
    "log"     // Logging library
    "time"    // timeouts for startup queries

    "github.com/joho/godotenv"    // loads .env files into the environment
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/bus-seat-reservation/internal/broadcast"   // seat delta fan-out hub
    "github.com/iliyamo/bus-seat-reservation/internal/config"      // Internal config loader
    "github.com/iliyamo/bus-seat-reservation/internal/coordinator" // per-schedule lock coordination
    "github.com/iliyamo/bus-seat-reservation/internal/database"    // MySQL connector
    "github.com/iliyamo/bus-seat-reservation/internal/handler"     // HTTP handlers
    "github.com/iliyamo/bus-seat-reservation/internal/lockstore"   // in-memory seat lock tables
    "github.com/iliyamo/bus-seat-reservation/internal/model"       // domain models
    "github.com/iliyamo/bus-seat-reservation/internal/payment"     // gateway client and verifier
    "github.com/iliyamo/bus-seat-reservation/internal/queue"       // booking.confirmed consumer
    "github.com/iliyamo/bus-seat-reservation/internal/repository"  // DB repositories
    "github.com/iliyamo/bus-seat-reservation/internal/router"      // Internal router setup
    queuepublisher "github.com/iliyamo/bus-seat-reservation/internal/service" // RabbitMQ publisher
    "github.com/iliyamo/bus-seat-reservation/internal/session"     // booking wizard drafts
)

func main() {
    // Load .env when present; real deployments set the environment directly.
    _ = godotenv.Load()
    cfg := config.Load() // Load environment config

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    // Redis backs the rate limiter and the draft store.  A nil client is
    // tolerated: limiting disables itself and drafts fall back to memory.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Printf("redis unavailable; rate limiting disabled, drafts in memory")
    }

    userRepo := repository.NewUserRepo(db)
    scheduleRepo := repository.NewScheduleRepo(db)
    bookingRepo := repository.NewBookingRepo(db)

    // The hub and coordinator are the live seat surface.  Every upcoming
    // schedule gets a lock table seeded with its already-sold seats so the
    // in-memory view starts out agreeing with the permanent record.
    hub := broadcast.NewHub(broadcast.DefaultBuffer)
    coord := coordinator.New(hub, cfg.LockTTL)

    startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
    schedules, err := scheduleRepo.ListUpcoming(startupCtx)
    if err != nil {
        cancelStartup()
        log.Fatalf("load schedules: %v", err)
    }
    for _, s := range schedules {
        booked, err := scheduleRepo.BookedSeats(startupCtx, s.ID)
        if err != nil {
            cancelStartup()
            log.Fatalf("load booked seats for schedule %d: %v", s.ID, err)
        }
        coord.Register(lockstore.NewTable(s.ID, s.Capacity(), booked))
    }
    cancelStartup()
    log.Printf("registered %d schedules with the lock coordinator", len(schedules))

    // Reclaim expired locks in the background for viewers who would
    // otherwise only learn about expiry from the next conflicting click.
    go coord.RunSweep(context.Background(), cfg.SweepInterval)

    // Consume booking.confirmed events into logs/booking.log.
    go func() {
        if err := queue.StartBookingConsumer(); err != nil {
            log.Printf("booking consumer stopped: %v", err)
        }
    }()

    // Wizard drafts live in Redis so a browser refresh resumes mid-wizard.
    var draftStore session.DraftStore
    if rdb != nil {
        draftStore = session.NewRedisDraftStore(rdb, 0)
    } else {
        draftStore = session.NewMemoryDraftStore()
    }
    sessions := session.NewManager(draftStore, coord)

    gateway := payment.NewHTTPGateway(cfg.GatewayURL)
    verifier := payment.NewVerifier(gateway, bookingRepo, coord, sessions, cfg.VerifyAttempts, 500*time.Millisecond)
    // Publish confirmed bookings to the broker; publish failures never
    // affect the booking itself.
    verifier.OnConfirmed = func(ctx context.Context, b *model.Booking, seats []model.BookingSeat) {
        sched, err := scheduleRepo.GetByID(ctx, b.ScheduleID)
        if err != nil {
            log.Printf("publish booking %s: schedule lookup: %v", b.BookingRef, err)
            return
        }
        nums := make([]uint32, 0, len(seats))
        for _, s := range seats {
            nums = append(nums, s.SeatNumber)
        }
        ev := queue.BookingConfirmedEvent{
            BookingRef:       b.BookingRef,
            UserID:           b.UserID,
            ScheduleID:       b.ScheduleID,
            Origin:           sched.Origin,
            Destination:      sched.Destination,
            DepartsAt:        sched.DepartsAt.UTC().Format(time.RFC3339),
            Seats:            nums,
            TotalAmountCents: b.TotalAmountCents,
            ConfirmedAt:      time.Now().UTC().Format(time.RFC3339),
        }
        go func() {
            pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
            defer cancel()
            _ = queuepublisher.PublishBookingConfirmed(pubCtx, ev)
        }()
    }

    e := echo.New() // Create Echo instance

    authHandler := handler.NewAuthHandler(cfg, userRepo)
    scheduleHandler := handler.NewScheduleHandler(scheduleRepo)
    seatHandler := handler.NewSeatHandler(coord)
    streamHandler := handler.NewStreamHandler(hub)
    bookingHandler := handler.NewBookingHandler(sessions, coord, scheduleRepo, userRepo, bookingRepo, gateway, verifier)

    router.RegisterRoutes(e) // Register application routes
    router.RegisterAuth(e, authHandler, cfg.JWTSecret)
    router.RegisterPublic(e, scheduleHandler, seatHandler, streamHandler)
    router.RegisterReservation(e, seatHandler, bookingHandler, cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

    addr := ":" + cfg.Port                                // Address string with port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

    if err := e.Start(addr); err != nil { // Start HTTP server
        log.Fatal(err) // Log and exit if server fails
    }
}
