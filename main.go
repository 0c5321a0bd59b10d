package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-payment-verification/internal/analytics"
	analytics_api "ms-payment-verification/internal/analytics/api"
	"ms-payment-verification/internal/auth"
	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/database/migrations"
	"ms-payment-verification/internal/email"
	"ms-payment-verification/internal/kafka"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/metrics"
	"ms-payment-verification/internal/notify"
	"ms-payment-verification/internal/order"
	"ms-payment-verification/internal/order/db"
	"ms-payment-verification/internal/order/order_api"
	rediswrap "ms-payment-verification/internal/order/redis"
	temporalwrap "ms-payment-verification/internal/order/temporal"
	"ms-payment-verification/internal/payment/services"
	"ms-payment-verification/internal/receipt"
	"ms-payment-verification/internal/sse"
	"ms-payment-verification/internal/tickets"
	ticket_db "ms-payment-verification/internal/tickets/db"
	qr "ms-payment-verification/internal/tickets/qr_genrator"
	"ms-payment-verification/internal/tickets/template"
	"ms-payment-verification/internal/tickets/ticket_api"
	"ms-payment-verification/internal/utils"
	"ms-payment-verification/internal/verification"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func runMigrations(bunDB *bun.DB, cfg config.MigrationsConfig, log *logger.Logger) {
	if !cfg.Auto {
		log.Info("DATABASE", "AUTO_MIGRATE disabled, skipping schema migrations")
		return
	}
	opts := migrations.DefaultOptions()
	if cfg.Dir != "" {
		opts.Source = os.DirFS(cfg.Dir)
	}
	runner := migrations.NewRunner(bunDB, opts, log)
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Schema migration failed: %v", err))
	}
	// closing the runner would close the shared *sql.DB through the postgres driver
}

// sweepAutoApprovals completes grace periods that ended while no scheduler was running.
func sweepAutoApprovals(ctx context.Context, svc *order.OrderService, interval time.Duration, log *logger.Logger) {
	sweep := func() {
		if _, err := svc.RecoverAutoApprovals(ctx, time.Now()); err != nil {
			log.Error("SCHEDULER", fmt.Sprintf("Recovery sweep failed: %v", err))
		}
	}
	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Payment Verification Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()
	metrics.Register()

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// --- Storage ---
	bunDB := connectPostgres(cfg.Database, logger)
	defer bunDB.Close()
	runMigrations(bunDB, cfg.Migrations, logger)

	redisClient, err := rediswrap.Connect(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()

	// --- Kafka ---
	var producer *kafka.Producer
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.ScreenshotSubmitted, cfg.Kafka.GroupID, logger)
		logger.Info("KAFKA", "Kafka producer and consumer initialized successfully")
	} else {
		logger.Warn("KAFKA", "Kafka disabled, status changes are streamed over SSE only")
	}

	// --- Verification ---
	extractor := receipt.NewHTTPExtractor(cfg.OCR, &http.Client{Timeout: cfg.OCR.Timeout}, logger)
	verifier := verification.NewVerifier(extractor, logger)

	orderNumbers, err := utils.NewOrderNumbers(cfg.Tickets.NodeID)
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid ORDER_NODE_ID: %v", err))
	}

	// --- Fulfillment ---
	if cfg.Tickets.QRSecret == "" {
		logger.Fatal("CONFIG", "QR_SECRET_KEY not set")
	}
	pdfGenerator, err := template.NewTicketPDFGenerator(cfg.Tickets.FontPath)
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Ticket template unavailable: %v", err))
	}
	ticketStore := &ticket_db.DB{Bun: bunDB}
	qrGenerator := qr.NewQRGenerator(cfg.Tickets.QRSecret)

	var whatsapp tickets.WhatsAppNotifier
	if producer != nil {
		whatsapp = producer
	}
	fulfiller := tickets.NewFulfiller(qrGenerator, pdfGenerator, ticketStore, email.NewSMTPMailer(cfg.Email, logger), whatsapp, logger)

	var card order.CardCapture
	if cfg.Stripe.SecretKey != "" {
		stripeService, err := services.NewStripeService(cfg.Stripe, logger)
		if err != nil {
			logger.Fatal("STRIPE", fmt.Sprintf("Stripe client init failed: %v", err))
		}
		card = stripeService
	} else {
		logger.Warn("STRIPE", "STRIPE_SECRET_KEY not set, card payments are disabled")
	}

	// --- Status fan-out ---
	emitter := sse.NewStatusEmitter()
	var statusProducer notify.StatusProducer
	if producer != nil {
		statusProducer = producer
	}
	publisher := notify.NewFanout(statusProducer, emitter, logger)

	// --- Order service ---
	orderService := order.NewOrderService(order.Deps{
		Store:          &db.DB{Bun: bunDB},
		Tickets:        ticketStore,
		Verifier:       verifier,
		Fulfiller:      fulfiller,
		Publisher:      publisher,
		Card:           card,
		OrderNumbers:   orderNumbers,
		Topics:         cfg.Kafka.Topics,
		PipelineBudget: cfg.OCR.PipelineBudget,
		Logger:         logger,
	})

	// --- Grace period scheduler ---
	switch cfg.Scheduler.Backend {
	case "temporal":
		temporalClient, err := temporalwrap.Dial(cfg.Temporal)
		if err != nil {
			logger.Fatal("TEMPORAL", fmt.Sprintf("Failed to connect to Temporal at %s: %v", cfg.Temporal.HostPort, err))
		}
		defer temporalClient.Close()

		w := temporalwrap.NewWorker(temporalClient, cfg.Temporal.TaskQueue, orderService)
		if err := w.Start(); err != nil {
			logger.Fatal("TEMPORAL", fmt.Sprintf("Failed to start worker: %v", err))
		}
		defer w.Stop()
		orderService.SetScheduler(temporalwrap.NewScheduler(temporalClient, cfg.Temporal.TaskQueue, logger))
		logger.Info("TEMPORAL", fmt.Sprintf("Grace periods run as workflows on task queue %s", cfg.Temporal.TaskQueue))
	default:
		redisScheduler := rediswrap.NewRedis(redisClient, logger, cfg.Scheduler.PollInterval)
		orderService.SetScheduler(redisScheduler)
		go redisScheduler.Run(ctx, orderService.AutoApprove)
	}
	go sweepAutoApprovals(ctx, orderService, cfg.Scheduler.SweepInterval, logger)

	if consumer != nil {
		go consumer.Start(ctx, kafka.ScreenshotHandler(orderService, logger))
	}

	// --- HTTP ---
	verifierAuth, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		logger.Fatal("AUTH", fmt.Sprintf("Token verification unavailable: %v", err))
	}
	authn := auth.Middleware(verifierAuth)

	orderHandler := order_api.NewHandler(orderService, emitter, logger, cfg.Auth.AdminRole)
	ticketHandler := ticket_api.NewHandler(orderService, ticketStore, qrGenerator, logger, cfg.Auth.AdminRole, cfg.Auth.ScannerRole)
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(bunDB), logger, redisClient, cfg.Auth.AdminRole)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(metrics.Instrument)

	// --- Public Routes ---
	r.Get("/health", healthHandler(bunDB, redisClient))
	r.Handle("/metrics", promhttp.Handler())

	// --- Protected Routes ---
	orderHandler.Routes(r, authn)
	logger.Info("ROUTER", "Order routes registered under /api/order and /api/admin")
	ticketHandler.Routes(r, authn)
	logger.Info("ROUTER", "Ticket routes registered under /api/order/{orderNumber}/tickets")
	analyticsHandler.RegisterRoutes(r, authn)
	logger.Info("ROUTER", "Analytics routes registered under /api/admin/analytics")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Payment Verification Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	stopBackground()
	orderService.Wait()

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("KAFKA", fmt.Sprintf("Consumer close failed: %v", err))
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("KAFKA", fmt.Sprintf("Producer close failed: %v", err))
		}
	}
	if err := extractor.Close(); err != nil {
		logger.Error("OCR", fmt.Sprintf("Extractor close failed: %v", err))
	}
	logger.Info("APP", "✅ Payment Verification Service shutdown complete")
}

func healthHandler(bunDB *bun.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"database": "ok", "redis": "ok"}
		code := http.StatusOK
		if err := bunDB.PingContext(ctx); err != nil {
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		utils.WriteJSON(w, code, status)
	}
}
