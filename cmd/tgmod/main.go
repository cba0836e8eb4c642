package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/anthropics/tgmod/internal/biz/usecase"
	"github.com/anthropics/tgmod/internal/conf"
	"github.com/anthropics/tgmod/internal/data"
	"github.com/anthropics/tgmod/internal/infra/telegram"
	"github.com/anthropics/tgmod/internal/server"
	"github.com/anthropics/tgmod/internal/service"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize storage
	store, err := data.NewStore(cfg.Persist.Backend, cfg.Persist.SQLitePath, cfg.Persist.RedisURL, cfg.SeedConfig())
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()
	fmt.Printf("[Main] Persistence backend: %s\n", cfg.Persist.Backend)

	// Initialize Telegram client
	client, err := telegram.NewClient(telegram.Options{
		Token:      cfg.Telegram.Token,
		WebhookURL: cfg.Telegram.WebhookURL,
		Listen:     cfg.Telegram.Listen,
		MinGap:     cfg.Limits.GlobalMinGap,
		Debug:      cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to create Telegram client: %v", err)
	}
	outbound := data.NewTelegramOutbound(client)

	// Initialize usecase layer
	ctx := context.Background()
	state := usecase.NewStateUsecase(store)
	if err := state.Load(ctx); err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}

	metrics := usecase.NewMetrics()
	if snap := state.Config().Metrics; snap != nil {
		metrics.LoadSnapshot(snap)
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	admissionCfg := usecase.AdmissionConfig{
		Cooldown:       cfg.Limits.PerUserCooldown,
		MaxAge:         cfg.Limits.MaxMessageAge,
		DedupWindow:    time.Second,
		DedupRetention: time.Minute,
	}
	admission := usecase.NewAdmissionUsecase(state, metrics, admissionCfg)
	ledger := usecase.NewLedgerUsecase(store, metrics)

	// Initialize service layer
	review := service.NewReviewService(state, ledger, metrics, outbound)
	janitor := service.NewJanitor(state, ledger, metrics, cfg.Limits.PendingTTL)
	janitor.Start(ctx)

	// Initialize servers
	srv := server.NewModerationServer(client, state, admission, ledger, metrics, review, outbound)

	web := server.NewWebServer(cfg.HTTPAddr, state, metrics)
	go func() {
		if err := web.Start(); err != nil {
			fmt.Printf("[Main] Web server error: %v\n", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		srv.Stop()
		janitor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := web.Stop(shutdownCtx); err != nil {
			fmt.Printf("[Main] Web shutdown error: %v\n", err)
		}
		if err := state.FlushMetrics(shutdownCtx, metrics.Snapshot()); err != nil {
			fmt.Printf("[Main] Final metrics flush failed: %v\n", err)
		}
		store.Close()
		os.Exit(0)
	}()

	fmt.Println("Starting Telegram moderation gateway...")
	srv.Start()
}
