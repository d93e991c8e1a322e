package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade_sync/internal/api"
	"trade_sync/internal/app"
	"trade_sync/internal/domain"
	"trade_sync/internal/infra"
	"trade_sync/internal/infra/tradier"
	"trade_sync/internal/service"

	"github.com/shopspring/decimal"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize("configs/config.yaml"); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Upstream client and sync coordinator
	client := tradier.NewClient(cfg, bootstrap.Limiter)

	hub := api.NewHub()
	svc := service.NewSyncService(service.Options{
		Client:       client,
		Store:        bootstrap.Storage,
		Breaker:      bootstrap.Breaker,
		Engine:       bootstrap.Engine,
		Quotes:       infra.NewTTLCache[string, decimal.Decimal](),
		Publisher:    hub,
		PollInterval: time.Duration(cfg.Sync.PollIntervalSec) * time.Second,
		QuoteTTL:     time.Duration(cfg.Sync.QuoteTTLSec) * time.Second,
	})

	// 5. Stream worker feeding the coordinator's inbox
	stream := tradier.NewStreamWorker(cfg.API.StreamURL, client.CreateStreamSession, svc.Inbox())
	stream.MaxRetries = cfg.Stream.MaxRetries
	stream.ReadTimeout = time.Duration(cfg.Stream.ReadTimeoutSec) * time.Second

	if err := stream.Connect(ctx); err != nil {
		slog.Error("Failed to start stream worker", slog.Any("error", err))
	}
	defer stream.Disconnect()

	// A terminal stream failure is surfaced, not silently retried; REST
	// polling keeps the data flowing and /health reports the state.
	go func() {
		select {
		case <-ctx.Done():
		case err := <-stream.Fatal():
			slog.Error("Stream permanently failed, continuing with polling only",
				slog.Any("error", err))
		}
	}()

	// 6. Coordinator loop (stream consumer + poll schedule)
	go svc.Run(ctx)
	slog.InfoContext(ctx, "Sync coordinator started",
		slog.Int("poll_interval_sec", cfg.Sync.PollIntervalSec))

	// Initial sync so the query surface has data promptly.
	go func() {
		syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := svc.TriggerSync(syncCtx); err != nil {
			var openErr *infra.CircuitOpenError
			if domain.IsRetriable(err) || errors.As(err, &openErr) {
				slog.Warn("Initial sync failed, scheduler will retry", slog.Any("error", err))
				return
			}
			slog.Error("Initial sync failed", slog.Any("error", err))
		}
	}()

	// 7. API server (query surface + websocket fan-out)
	server := api.NewServer(svc, hub)
	go func() {
		if err := server.Start(ctx, cfg.Server.Addr, cfg.Server.AllowedOrigins); err != nil {
			slog.Error("API server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "Trade sync core fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("Shutting down gracefully...")
}
