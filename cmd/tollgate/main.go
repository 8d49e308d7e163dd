package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MyBlackCandy/TG-Bot/internal/config"
	"github.com/MyBlackCandy/TG-Bot/internal/database"
	"github.com/MyBlackCandy/TG-Bot/internal/fingerprint"
	"github.com/MyBlackCandy/TG-Bot/internal/handlers"
	"github.com/MyBlackCandy/TG-Bot/internal/logging"
	"github.com/MyBlackCandy/TG-Bot/internal/middleware"
	"github.com/MyBlackCandy/TG-Bot/internal/monitoring"
	"github.com/MyBlackCandy/TG-Bot/internal/notify"
	"github.com/MyBlackCandy/TG-Bot/internal/reconciler"
	"github.com/MyBlackCandy/TG-Bot/internal/server"
	"github.com/MyBlackCandy/TG-Bot/internal/store"
	"github.com/MyBlackCandy/TG-Bot/internal/tronscan"
	"github.com/MyBlackCandy/TG-Bot/internal/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("tollgate")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Tollgate (Subscription Payments API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	walletAddress := config.RequireEnv("USDT_ADDRESS")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	basePrice := config.GetEnvDecimal("BASE_PRICE", decimal.NewFromInt(100))
	pendingTTL := config.GetEnvDuration("PENDING_TTL", 24*time.Hour)
	period := config.GetEnvDuration("SUBSCRIPTION_PERIOD", 30*24*time.Hour)
	pollInterval := config.GetEnvDuration("POLL_INTERVAL", 60*time.Second)

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if err := database.InitSchema(context.Background(), db, logger); err != nil {
		logger.WithError(err).Fatal("Schema initialization failed")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("tollgate", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("tollgate", version.Version, version.GitCommit)

	scannerConfig := tronscan.DefaultConfig(walletAddress)
	scannerConfig.BaseURL = config.GetEnv("TRONSCAN_URL", scannerConfig.BaseURL)
	scannerConfig.TokenSymbol = config.GetEnv("TOKEN_SYMBOL", scannerConfig.TokenSymbol)
	scannerConfig.PageSize = config.GetEnvInt("SCAN_LIMIT", scannerConfig.PageSize)
	scannerConfig.Timeout = config.GetEnvDuration("SCAN_TIMEOUT", scannerConfig.Timeout)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("tronscan", monitoring.HTTPServiceHealthCheck("tronscan", scannerConfig.BaseURL))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbURL,
		"USDT_ADDRESS": walletAddress,
	}))

	// Create payment metrics
	handlerMetrics := &handlers.TollgateMetrics{
		PaymentRequests: metricsCollector.NewCounter("payment_requests_total", "Payment requests by outcome", []string{"outcome"}),
		StatusQueries:   metricsCollector.NewCounter("status_queries_total", "Status queries served", []string{"endpoint"}),
	}
	handlerMetrics.DBQueries, handlerMetrics.DBDuration, handlerMetrics.DBConnections = metricsCollector.CreateDatabaseMetrics()
	engineMetrics := &reconciler.Metrics{
		Matched:            metricsCollector.NewCounter("transfers_matched_total", "Transfers matched and credited", nil),
		DuplicateTransfers: metricsCollector.NewCounter("transfers_duplicate_total", "Transfers seen again after crediting", nil),
		ScanFailures:       metricsCollector.NewCounter("explorer_scan_failures_total", "Explorer scan failures", []string{"reason"}),
		AmbiguousMatches:   metricsCollector.NewCounter("ambiguous_matches_total", "Transfers matching more than one pending request", nil),
		ExpiredRequests:    metricsCollector.NewCounter("expired_requests_total", "Pending requests purged after expiry", nil),
	}

	payments := store.New(db, logger)
	pool := fingerprint.DefaultPool(basePrice)

	// Initialize handlers
	handlers.Init(payments, pool, logger, handlerMetrics, handlers.Config{
		WalletAddress: walletAddress,
		TokenSymbol:   scannerConfig.TokenSymbol,
		PendingTTL:    pendingTTL,
	})

	// Track connection pool usage
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			handlerMetrics.DBConnections.WithLabelValues("postgres").Set(float64(db.Stats().InUse))
		}
	}()

	var notifier notify.Notifier = notify.Noop{}
	if botToken := config.GetEnv("TELEGRAM_BOT_TOKEN", ""); botToken != "" {
		notifier = notify.NewTelegram(botToken, logger)
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, payment notifications disabled")
	}

	// Start the reconciliation engine
	scanner := tronscan.NewClient(scannerConfig, logger)
	engine := reconciler.New(payments, scanner, notifier, logger, engineMetrics, reconciler.Config{
		Interval: pollInterval,
		Period:   period,
		Epsilon:  pool.Epsilon(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go engine.Start(ctx)
	defer engine.Stop()

	logger.WithFields(logging.Fields{
		"interval": pollInterval,
		"address":  walletAddress,
	}).Info("Reconciliation engine started")

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "tollgate", healthChecker, metricsCollector)

	// API routes
	{
		router.POST("/payments/request", handlers.RequestPayment)
		router.GET("/subscriptions/:user_id", handlers.SubscriptionStatus)

		// Operator endpoints (service-to-service)
		serviceAPI := router.Group("")
		serviceAPI.Use(middleware.ServiceAuthMiddleware(serviceToken))
		{
			serviceAPI.GET("/payments/pending", handlers.ListPendingPayments)
		}
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("tollgate", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
