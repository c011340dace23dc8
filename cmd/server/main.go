package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/commands"
	"github.com/lumenwear/storefront-service/internal/application/use_cases"
	"github.com/lumenwear/storefront-service/internal/config"
	"github.com/lumenwear/storefront-service/internal/infrastructure/gateway"
	"github.com/lumenwear/storefront-service/internal/infrastructure/http/handlers"
	"github.com/lumenwear/storefront-service/internal/infrastructure/http/server"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/infrastructure/persistence/postgres"
	"github.com/lumenwear/storefront-service/internal/infrastructure/persistence/redis"
	"github.com/lumenwear/storefront-service/internal/infrastructure/pricing"
	"github.com/lumenwear/storefront-service/internal/infrastructure/scheduler"
	"github.com/lumenwear/storefront-service/internal/pkg/backoff"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/generator"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	flag.Parse()

	log := logger.NewLogger()
	log.Info("Starting Storefront Service")

	cfg, configErr := config.LoadConfig(*configPath)
	if configErr != nil {
		log.Fatal("Failed to load configuration", "error", configErr)
	}

	db, dbErr := postgres.NewConnection(cfg.Database)
	if dbErr != nil {
		log.Fatal("Failed to connect to database", "error", dbErr)
	}
	defer db.Close()

	if migrationErr := postgres.RunMigrations(cfg.Database); migrationErr != nil {
		log.Fatal("Failed to run migrations", "error", migrationErr)
	}

	redisConn, err := redis.NewConnection(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisConn.Close()

	dbMetricsCollector := monitoring.NewDBMetricsCollector(db.GetDB())
	dbMetricsCollector.StartCollecting(context.Background(), 30*time.Second)

	clk := clock.NewRealClock()
	cache := redis.NewCache(redisConn, log)
	uow := postgres.NewUnitOfWork(db, cfg.Database.TransactionsEnabled)
	if !cfg.Database.TransactionsEnabled {
		log.Warn("Multi-statement transactions disabled, running sequential best-effort writes")
	}

	gatewayClient := gateway.NewClient(cfg.Gateway, log)
	verifier := gateway.NewSignatureVerifier(cfg.Gateway.WebhookSalts)
	pricingService := pricing.NewService(cfg.Checkout.FlatShippingCost, cfg.Checkout.FreeShippingOver, nil)
	refGen := generator.NewRefGenerator()

	retryPolicy := backoff.Policy{
		Base:        time.Duration(cfg.Webhook.RetryBaseSeconds) * time.Second,
		Cap:         time.Duration(cfg.Webhook.RetryCapSeconds) * time.Second,
		MaxAttempts: cfg.Webhook.MaxAttempts,
	}

	commitUseCase := use_cases.NewOrderCommitUseCase(uow, cache, clk, log)
	reconciliationUseCase := use_cases.NewReconciliationUseCase(
		uow, commitUseCase, clk, log,
		cfg.Reconciliation.BatchSize,
		time.Duration(cfg.Reconciliation.EventRetentionHours)*time.Hour,
	)
	webhookUseCase := use_cases.NewWebhookUseCase(uow, cache, commitUseCase, reconciliationUseCase, retryPolicy, clk, log)
	paymentUseCase := use_cases.NewPaymentUseCase(
		uow, gatewayClient, cache, refGen, clk, log,
		cfg.Gateway.MerchantID, cfg.Gateway.CallbackBaseURL,
	)

	createSession := commands.NewCreateSessionHandler(uow, cache, pricingService, clk, log, cfg.Checkout.RejectPriceMismatch)
	cancelSession := commands.NewCancelSessionHandler(uow, cache, clk, log)

	checkoutHandler := handlers.NewCheckoutHandler(createSession, cancelSession, uow, cache, log)
	paymentHandler := handlers.NewPaymentHandler(paymentUseCase, log)
	webhookHandler := handlers.NewWebhookHandler(webhookUseCase, verifier, log)
	adminHandler := handlers.NewAdminHandler(webhookUseCase, reconciliationUseCase, log)
	healthHandler := handlers.NewHealthHandler(db.GetDB(), redisConn.GetClient(), log)

	httpServer := server.NewServer(cfg, log, checkoutHandler, paymentHandler, webhookHandler, adminHandler, healthHandler)

	reaper := scheduler.NewSessionReaper(uow, cache, clk, log,
		time.Duration(cfg.Checkout.ReaperIntervalSeconds)*time.Second)
	retryWorker := scheduler.NewRetryWorker(webhookUseCase, cache, clk, log,
		time.Duration(cfg.Webhook.WorkerIntervalSeconds)*time.Second)
	reconciliationJob := scheduler.NewReconciliationJob(reconciliationUseCase, log,
		time.Duration(cfg.Reconciliation.IntervalSeconds)*time.Second)

	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	go reaper.Start(serverCtx)
	go retryWorker.Start(serverCtx)
	go reconciliationJob.Start(serverCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigChan
		shutdownCtx, shutdownCancel := context.WithTimeout(serverCtx, 30*time.Second)
		defer shutdownCancel()

		log.Info("Shutting down server...")
		reaper.Stop()
		retryWorker.Stop()
		reconciliationJob.Stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown error", "error", err)
		}

		serverStopCtx()
	}()

	log.Info("Server starting", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Server failed", "error", err)
	}

	<-serverCtx.Done()
	log.Info("Server stopped")
}
