package app

import (
	"log/slog"
	"time"

	"trade_sync/internal/cluster"
	"trade_sync/internal/infra"
	"trade_sync/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Breaker *infra.CircuitBreaker
	Limiter *infra.RateLimiter
	Engine  *cluster.Engine
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB, shared
// resilience state). The breaker and limiter are constructed here so their
// lifecycle is tied to the coordinator's startup/shutdown — never ambient
// globals.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("Bootstrapping trade sync core...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Database initialized")

	// 4. Shared resilience state
	b.Breaker = infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
		Name:             "brokerage",
		FailureThreshold: cfg.Circuit.FailureThreshold,
		Window:           time.Duration(cfg.Circuit.WindowSec) * time.Second,
		ResetTimeout:     time.Duration(cfg.Circuit.ResetTimeoutSec) * time.Second,
	})
	b.Limiter = infra.NewRateLimiter(cfg.API.RateBurst, cfg.API.RatePerSec)
	b.Engine = cluster.NewEngine(time.Duration(cfg.Sync.ClusterWindowMin) * time.Minute)
	slog.Info("Resilience state ready",
		slog.Int("circuit_threshold", cfg.Circuit.FailureThreshold),
		slog.Float64("rate_per_sec", cfg.API.RatePerSec))

	return nil
}
