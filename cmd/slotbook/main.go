package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/irodionov/slotbook/internal/availability"
	"github.com/irodionov/slotbook/internal/booking"
	"github.com/irodionov/slotbook/internal/handlers"
	"github.com/irodionov/slotbook/internal/memstore"
	"github.com/irodionov/slotbook/internal/outbox"
	"github.com/irodionov/slotbook/internal/schedule"
	"github.com/irodionov/slotbook/internal/storage"
	"github.com/irodionov/slotbook/libs/config"
	"github.com/irodionov/slotbook/libs/db"
	"github.com/irodionov/slotbook/libs/httpx"
	"github.com/irodionov/slotbook/libs/kafkax"
	otelx "github.com/irodionov/slotbook/libs/otel"
	"github.com/irodionov/slotbook/libs/runtime"
	"github.com/irodionov/slotbook/migrations"
)

// stores groups the engine dependencies so the database and in-memory
// wirings interchange cleanly.
type stores struct {
	staff interface {
		booking.StaffDirectory
		booking.StaffServiceReader
		handlers.StaffServicesReader
	}
	schedule interface {
		booking.ScheduleReader
		handlers.ScheduleAdminStore
	}
	customers booking.CustomerStore
	bookings  interface {
		booking.Store
		schedule.BlockingBookingsReader
		handlers.BookingLister
	}
}

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "slotbook")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid TIMEZONE", "err", err)
		panic(err)
	}

	policy := booking.Policy{
		HoldTTL:     config.Minutes("HOLD_TTL_MINUTES", 10*time.Minute),
		MinLeadTime: config.Minutes("MIN_LEAD_TIME_MINUTES", 60*time.Minute),
		Horizon:     time.Duration(config.Int("BOOKING_HORIZON_DAYS", 30)) * 24 * time.Hour,
		Step:        config.Minutes("SLOT_STEP_MINUTES", 15*time.Minute),
	}

	avail, err := availability.New(loc, policy.Step)
	if err != nil {
		logger.Error("availability engine init failed", "err", err)
		panic(err)
	}

	var (
		deps        stores
		pool        *db.Pool
		readyChecks []runtime.ReadyCheck
	)
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err = db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool, migrations.FS, "."); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}

		outboxRepo := outbox.NewRepository(pool)
		deps = stores{
			staff:     storage.NewStaffRepository(pool),
			schedule:  storage.NewScheduleRepository(pool),
			customers: storage.NewCustomerRepository(pool),
			bookings:  storage.NewBookingRepository(pool, outboxRepo),
		}
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
			publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
				Brokers:   brokers,
				PollEvery: 2 * time.Second,
				BatchSize: 50,
			})
			go publisher.Run(ctx)
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	} else {
		// Dev mode: everything in memory, nothing survives a restart.
		logger.Warn("DATABASE_URL not set; using in-memory store")
		mem := memstore.New()
		deps = stores{staff: mem, schedule: mem, customers: mem, bookings: mem}
	}

	engine, err := booking.NewEngine(deps.staff, deps.staff, deps.schedule, deps.customers, deps.bookings, avail, policy, loc, logger)
	if err != nil {
		logger.Error("booking engine init failed", "err", err)
		panic(err)
	}
	orchestrator := schedule.NewOrchestrator(deps.staff, deps.staff, deps.schedule, deps.bookings, avail, policy, loc)

	bookingHandler := handlers.NewBookingHandler(engine, orchestrator, logger)
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/public/bookings", bookingHandler.Get)
	mux.HandleFunc("/api/v1/public/bookings/confirm", bookingHandler.Confirm)
	mux.HandleFunc("/api/v1/public/bookings/cancel", bookingHandler.Cancel)

	if secret := config.String("ADMIN_JWT_SECRET", ""); secret != "" {
		adminHandler := handlers.NewAdminHandler(deps.schedule, deps.staff, deps.bookings, logger)
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("/api/v1/admin/working-hours", adminHandler.PutWorkingHours)
		adminMux.HandleFunc("/api/v1/admin/time-off", adminTimeOff(adminHandler))
		adminMux.HandleFunc("/api/v1/admin/staff-services", adminHandler.StaffServices)
		adminMux.HandleFunc("/api/v1/admin/bookings", adminHandler.ListBookings)
		mux.Handle("/api/v1/admin/", httpx.Chain(adminMux, handlers.WithTenantAuth(secret, logger)))
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set; admin API disabled")
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}),
		rateLimit(ctx, logger),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// adminTimeOff dispatches the time-off collection endpoint by method.
func adminTimeOff(h *handlers.AdminHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.AddTimeOff(w, r)
		case http.MethodDelete:
			h.RemoveTimeOff(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func rateLimit(ctx context.Context, logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable; falling back to in-process rate limiter", "err", err)
		} else {
			return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "slotbook:rl").
				Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		}
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}
