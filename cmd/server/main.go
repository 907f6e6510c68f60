package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/cache"
	"github.com/smarttransit/seat-booking-core/internal/clock"
	"github.com/smarttransit/seat-booking-core/internal/config"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/database/migrations"
	"github.com/smarttransit/seat-booking-core/internal/events"
	"github.com/smarttransit/seat-booking-core/internal/handlers"
	"github.com/smarttransit/seat-booking-core/internal/middleware"
	"github.com/smarttransit/seat-booking-core/internal/monitoring"
	"github.com/smarttransit/seat-booking-core/internal/services"
	"github.com/smarttransit/seat-booking-core/pkg/jwt"
	"github.com/smarttransit/seat-booking-core/pkg/payment"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

// backends holds the stores selected by configuration
type backends struct {
	db        *database.PostgresDB
	redis     *redis.Client
	bookings  services.BookingStore
	schedules services.ScheduleStore
	sessions  services.PaymentSessionStore
	locks     services.SeatLockStore
}

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SmartTransit seat booking service")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	b, err := openBackends(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open storage backends: %v", err)
	}
	defer b.close(logger)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	// Booking events
	var publisher services.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.WithField("topic", cfg.Kafka.Topic).Info("Publishing booking events to Kafka")
	} else {
		publisher = events.NewLogPublisher(logger)
	}

	// Initialize services
	logger.Info("Initializing services...")
	clk := clock.System{}
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET not set, bearer tokens will be rejected")
	}

	seatLockService := services.NewSeatLockService(b.locks, b.schedules, clk, cfg.Booking.SeatLockTTL, metrics, logger)
	bookingService := services.NewBookingService(
		b.bookings, b.schedules, seatLockService,
		services.NewPricingService(cfg.Pricing, cfg.Booking.Currency),
		services.NewCancellationService(cfg.Refund),
		publisher, clk, cfg.Booking.HoldDuration, metrics, logger,
	)
	paymentService := services.NewPaymentService(
		b.sessions, bookingService, payment.NewDeterministicGateway(200*time.Millisecond), clk,
		services.PaymentServiceConfig{
			SessionTTL:     cfg.Booking.PaymentSessionTTL,
			GatewayTimeout: cfg.Booking.GatewayTimeout,
			Currency:       cfg.Booking.Currency,
		},
		metrics, logger,
	)
	expirationService := services.NewExpirationService(
		b.bookings, b.schedules, b.sessions, bookingService, seatLockService, clk,
		cfg.Booking.SweepInterval, cfg.Booking.SweepBatchSize, metrics, logger,
	)
	orchestrator := services.NewBookingOrchestratorService(seatLockService, bookingService, paymentService, b.schedules, logger)

	if err := expirationService.Start(); err != nil {
		logger.Fatalf("Failed to start expiration sweeper: %v", err)
	}
	defer expirationService.Stop()

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger, metrics))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(b))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	var limiter *services.RateLimitService
	if cfg.RateLimit.Enabled {
		var store services.RateLimitStore = database.NewMemoryRateLimitStore()
		if b.redis != nil {
			store = cache.NewRedisRateLimitStore(b.redis, "")
		}
		limiter = services.NewRateLimitService(store, services.RateLimitConfig{
			MaxSessionRequests: cfg.RateLimit.MaxSessionRequests,
			SessionWindow:      cfg.RateLimit.SessionWindow,
			MaxIPRequests:      cfg.RateLimit.MaxIPRequests,
			IPWindow:           cfg.RateLimit.IPWindow,
		}, clk, logger)
	}

	handlers.RegisterRoutes(router.Group("/api/v1"), orchestrator, limiter, jwtService, cfg.JWT.Required, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// openBackends connects the configured stores and runs migrations when enabled
func openBackends(cfg *config.Config, logger *logrus.Logger) (*backends, error) {
	b := &backends{}
	memory := database.NewMemoryStore()
	b.bookings, b.schedules, b.sessions = memory, memory, memory
	b.locks = database.NewMemorySeatLockStore()

	if cfg.Booking.StoreBackend == config.BackendPostgres || cfg.Booking.LockBackend == config.BackendPostgres {
		logger.Info("Connecting to database...")
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		b.db = db
		logger.Info("Database connection established")

		if cfg.Database.MigrationsEnabled {
			runner := migrations.NewRunner(db.DB.DB, logger)
			err := runner.MigrateUp()
			if closeErr := runner.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("Failed to close migration runner")
			}
			if err != nil {
				b.close(logger)
				return nil, err
			}
		}
	}

	if cfg.Booking.StoreBackend == config.BackendPostgres {
		b.bookings = database.NewBookingRepository(b.db.DB)
		b.schedules = database.NewScheduleRepository(b.db.DB)
		b.sessions = database.NewPaymentSessionRepository(b.db.DB)
	}

	switch cfg.Booking.LockBackend {
	case config.BackendPostgres:
		b.locks = database.NewSeatLockRepository(b.db.DB)
	case config.BackendRedis:
		client, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			b.close(logger)
			return nil, err
		}
		b.redis = client
		b.locks = cache.NewRedisSeatLockStore(client, "")
		logger.Info("Redis seat lock store connected")
	}

	logger.WithFields(logrus.Fields{
		"store": cfg.Booking.StoreBackend,
		"locks": cfg.Booking.LockBackend,
	}).Info("Storage backends ready")
	return b, nil
}

func (b *backends) close(logger *logrus.Logger) {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(b *backends) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true
		if b.db != nil {
			checks["database"] = "healthy"
			if err := b.db.HealthCheck(ctx); err != nil {
				checks["database"] = "unhealthy"
				healthy = false
			}
		}
		if b.redis != nil {
			checks["redis"] = "healthy"
			if err := cache.HealthCheck(ctx, b.redis); err != nil {
				checks["redis"] = "unhealthy"
				healthy = false
			}
		}

		status := http.StatusOK
		state := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":    state,
			"checks":    checks,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
