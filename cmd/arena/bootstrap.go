package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/joho/godotenv"

	"ai-trader-arena/internal/decisionlog"
	"ai-trader-arena/internal/executor"
	"ai-trader-arena/internal/executor/executorobs"
	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/logger"
	"ai-trader-arena/internal/manager"
	"ai-trader-arena/internal/market"
	"ai-trader-arena/internal/oracle"
	"ai-trader-arena/internal/oracle/oracleobs"
	"ai-trader-arena/internal/pool"
	"ai-trader-arena/internal/store"
	"ai-trader-arena/internal/trace"
	"ai-trader-arena/internal/trader"
)

// initializeSystem initializes environment, logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("ARENA_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// initializePool builds the candidate symbol pool client
func initializePool(ctx context.Context, cfg *store.Config) *pool.Client {
	p := pool.New(cfg.Pool.APIURL, cfg.Pool.Static,
		time.Duration(cfg.Pool.RefreshMinutes)*time.Minute)
	if cfg.Pool.APIURL == "" {
		logger.Info(ctx, "Using static symbol pool", "symbols", len(cfg.Pool.Static))
	}
	return p
}

// initializeMarket builds the shared market data provider. Market data
// endpoints are public, so one unauthenticated client serves everyone.
func initializeMarket(cfg *store.Config, p *pool.Client) *market.Provider {
	return market.NewProvider(futures.NewClient("", ""), p, market.Options{
		ShortInterval: cfg.Market.ShortInterval,
		LongInterval:  cfg.Market.LongInterval,
		ShortLimit:    cfg.Market.ShortLimit,
		LongLimit:     cfg.Market.LongLimit,
	})
}

// initializeOracle builds one trader's oracle with observability
func initializeOracle(cfg *store.Config, tc store.TraderConfig) interfaces.Oracle {
	timeout := time.Duration(cfg.OracleTimeoutSeconds) * time.Second
	return oracleobs.Wrap(oracle.NewClient(tc, timeout))
}

// initializeExecutor builds one trader's executor with observability
func initializeExecutor(ctx context.Context, cfg *store.Config, tc store.TraderConfig) interfaces.Executor {
	if cfg.Mode == "LIVE" {
		exec := executor.NewBinance(tc.ID,
			os.Getenv(tc.ExchangeKeyEnv),
			os.Getenv(tc.ExchangeSecretEnv))
		return executorobs.Wrap(exec)
	}

	logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated", "trader_id", tc.ID)
	return executorobs.Wrap(executor.NewDryRun(tc.ID, tc.InitialBalance))
}

// initializeTraders wires every enabled trader into the manager
func initializeTraders(ctx context.Context, cfg *store.Config,
	p *pool.Client, provider *market.Provider, log *decisionlog.Store) (*manager.Manager, error) {

	m := manager.New()
	for _, tc := range cfg.Traders {
		if !tc.IsEnabled() {
			logger.Info(ctx, "Trader disabled, skipping", "trader_id", tc.ID)
			continue
		}

		ctrl := trader.New(trader.Options{
			TraderID:               tc.ID,
			TraderName:             tc.Name,
			ScanInterval:           time.Duration(tc.ScanIntervalMinutes) * time.Minute,
			OracleTimeout:          time.Duration(cfg.OracleTimeoutSeconds) * time.Second,
			FetchTimeout:           time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
			Limits:                 cfg.RiskLimits(),
			InitialBalance:         tc.InitialBalance,
			MinPoolOpenInterestUSD: cfg.Pool.MinOpenInterestUSD * 1e6,
		},
			initializeOracle(cfg, tc),
			initializeExecutor(ctx, cfg, tc),
			provider, p, log)

		if err := m.Add(ctrl); err != nil {
			return nil, err
		}
		logger.Info(ctx, "Trader registered",
			"trader_id", tc.ID,
			"name", tc.Name,
			"model", tc.Model,
		)
	}
	if len(m.Traders()) == 0 {
		return nil, fmt.Errorf("no enabled traders")
	}
	return m, nil
}
