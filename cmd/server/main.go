package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"usdcx/bridge/internal/api"
	"usdcx/bridge/internal/blockchain/evm"
	"usdcx/bridge/internal/blockchain/stacks"
	"usdcx/bridge/internal/config"
	"usdcx/bridge/internal/database"
	"usdcx/bridge/internal/orchestrator"
	"usdcx/bridge/internal/service"
	"usdcx/bridge/internal/worker"
)

func main() {
	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting USDCx bridge service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("eth_chain_id", cfg.Ethereum.ChainID),
		zap.String("stacks_network", cfg.Stacks.Network),
		zap.Bool("database", cfg.Database.Enabled()))

	// Connect to database when configured; without one the ledger lives in memory
	var store service.RecordStore
	if cfg.Database.Enabled() {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		logger.Info("Database connected successfully")

		// Run migrations
		migrationPath := "internal/database/migrations/001_schema.sql"
		if err := database.RunMigrations(db, migrationPath); err != nil {
			logger.Warn("Failed to run migrations (may already be applied)", zap.Error(err))
		} else {
			logger.Info("Database migrations applied successfully")
		}

		store = db
	}

	// Source chain
	evmClient, err := evm.NewClient(&cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to create Ethereum client", zap.Error(err))
	}
	defer evmClient.Close()

	bridge, err := evm.NewBridge(evmClient, &cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to create xReserve bridge", zap.Error(err))
	}
	if account, ok := bridge.Account(); ok {
		logger.Info("Ethereum wallet connected", zap.String("account", account))
	} else {
		logger.Warn("No Ethereum signing key configured; approvals and transfers will be rejected")
	}

	// Destination chain
	stacksClient, err := stacks.NewClient(&cfg.Stacks, logger)
	if err != nil {
		logger.Fatal("Failed to create Stacks client", zap.Error(err))
	}
	prompts := stacks.NewPromptSigner(logger)
	vault, err := stacks.NewVault(&cfg.Stacks, prompts, logger)
	if err != nil {
		logger.Fatal("Failed to create vault adapter", zap.Error(err))
	}
	destination := stacks.NewAdapter(stacksClient, vault)

	if principal := stacksPrincipal(cfg.Stacks, logger); principal != "" {
		logger.Info("Stacks wallet configured", zap.String("principal", principal))
	}

	// Initialize services
	metrics := orchestrator.NewMetrics(prometheus.DefaultRegisterer)
	sessions := service.NewSessionService(bridge, destination, store, cfg.Orchestrator, metrics, logger)
	portfolio := service.NewPortfolioService(bridge, stacksClient, vault, logger)
	addresses := service.NewAddressService(cfg.Stacks.Network, logger)

	logger.Info("Services initialized")

	// Initialize API handlers
	apiHandler := api.NewHandler(sessions, portfolio, addresses, prompts, logger)
	router := api.SetupRouter(apiHandler, promhttp.Handler(), logger)

	// Create HTTP server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", serverAddr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Start workers
	workerManager := worker.NewWorkerManager(sessions, stacksClient, cfg.Monitor, logger)
	workerManager.Start()
	logger.Info("Workers started")

	logger.Info("Service initialized successfully",
		zap.String("status", "ready"),
		zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		logger.Fatal("HTTP server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down service...")

	// Shutdown workers first
	if err := workerManager.Shutdown(10 * time.Second); err != nil {
		logger.Error("Worker shutdown error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		httpServer.Close()
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	// Operations started by requests keep running until their step timeouts
	operationsDone := make(chan struct{})
	go func() {
		apiHandler.Wait()
		close(operationsDone)
	}()
	select {
	case <-operationsDone:
		logger.Info("Background operations finished")
	case <-shutdownCtx.Done():
		logger.Warn("Background operations still running at shutdown")
	}

	logger.Info("Service stopped successfully")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// stacksPrincipal returns the configured principal, deriving it from the public key when unset
func stacksPrincipal(cfg config.StacksConfig, logger *zap.Logger) string {
	if cfg.Principal != "" {
		if _, err := stacks.ParseAddress(cfg.Principal); err != nil {
			logger.Warn("Configured Stacks principal is invalid", zap.Error(err))
			return ""
		}
		return cfg.Principal
	}
	if cfg.PublicKey == "" {
		return ""
	}

	addr, err := stacks.AddressFromPublicKey(cfg.PublicKey, cfg.Network)
	if err != nil {
		logger.Warn("Failed to derive Stacks principal from public key", zap.Error(err))
		return ""
	}
	return addr.String()
}
