package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/Ghepes/checkout-ui-app/internal/client"
	"github.com/Ghepes/checkout-ui-app/internal/config"
	"github.com/Ghepes/checkout-ui-app/internal/logging"
	"github.com/Ghepes/checkout-ui-app/internal/repository"
	"github.com/Ghepes/checkout-ui-app/internal/server"
	"github.com/Ghepes/checkout-ui-app/internal/service"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log)

	db, err := client.InitDBClient(cfg.DatabaseURL)
	if err != nil {
		slog.Error("database init failed", "err", err)
		os.Exit(1)
	}

	gateway := client.NewStripeGateway(&cfg.Stripe)

	webhookEventRepo := repository.NewWebhookEventRepository(db)
	attemptRepo := repository.NewTransferAttemptRepository(db)

	identityService := service.NewIdentityService(gateway)
	checkoutService := service.NewCheckoutService(gateway, identityService, cfg.Checkout, cfg.BaseURL)
	settlementService := service.NewSettlementService(gateway, webhookEventRepo, attemptRepo)

	srv := server.NewServer(gateway, checkoutService, settlementService, attemptRepo, cfg.Checkout.AllowedOrigins)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	slog.Info("starting HTTP server", "addr", serverAddr, "environment", cfg.Environment.Name)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "err", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	slog.Info("signal received, starting graceful shutdown")

	if err := srv.Shutdown(); err != nil {
		slog.Error("HTTP server shutdown error", "err", err)
		os.Exit(1)
	}
}
