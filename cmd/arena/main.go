package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ai-trader-arena/internal/decisionlog"
	"ai-trader-arena/internal/logger"
	"ai-trader-arena/internal/report"
	"ai-trader-arena/internal/server"
	"ai-trader-arena/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Fatal(err)
	}

	decisions, err := decisionlog.Open(cfg.LogDBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer decisions.Close()

	p := initializePool(ctx, cfg)
	provider := initializeMarket(cfg, p)
	mgr, err := initializeTraders(ctx, cfg, p, provider, decisions)
	if err != nil {
		log.Fatal(err)
	}

	srv := server.New(fmt.Sprintf(":%d", cfg.ServerPort), mgr, decisions)
	summarizer := report.NewSummarizer(decisions, "reports")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.StartAll(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return runDailyReport(gctx, summarizer) })

	logger.Info(ctx, "Arena started",
		"mode", cfg.Mode,
		"traders", len(mgr.Traders()),
		"port", cfg.ServerPort,
	)

	err = g.Wait()
	logger.Info(context.Background(), "Shutting down")

	// Flush a final report so the day's activity is not lost.
	if path, rerr := summarizer.SummarizeToday(context.Background()); rerr == nil && path != "" {
		logger.Info(context.Background(), "Daily report written", "path", path)
	}
	trace.Shutdown(context.Background())

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

// runDailyReport writes yesterday's CSV shortly after each UTC midnight.
func runDailyReport(ctx context.Context, s *report.Summarizer) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastWritten string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			now = now.UTC()
			if now.Hour() != 0 || now.Minute() > 5 {
				continue
			}
			yesterday := now.Add(-24 * time.Hour)
			day := yesterday.Format("2006-01-02")
			if day == lastWritten {
				continue
			}
			path, err := s.SummarizeDay(ctx, yesterday)
			if err != nil {
				logger.Warn(ctx, "Daily report failed", "day", day, "error", err.Error())
				continue
			}
			lastWritten = day
			if path != "" {
				logger.Info(ctx, "Daily report written", "path", path)
			}
		}
	}
}
