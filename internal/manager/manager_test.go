package manager

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"ai-trader-arena/internal/decisionlog"
	"ai-trader-arena/internal/executor"
	"ai-trader-arena/internal/market"
	"ai-trader-arena/internal/oracle"
	"ai-trader-arena/internal/pool"
	"ai-trader-arena/internal/trader"
	"ai-trader-arena/internal/types"
)

func testController(t *testing.T, id string, balance float64) *trader.Controller {
	t.Helper()
	log, err := decisionlog.Open(filepath.Join(t.TempDir(), "decisions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })

	p := pool.New("", []string{"BTCUSDT"}, time.Minute)
	provider := market.NewProvider(futures.NewClient("", ""), p, market.Options{
		ShortInterval: "3m", LongInterval: "4h", ShortLimit: 10, LongLimit: 10,
	})
	return trader.New(trader.Options{
		TraderID:       id,
		TraderName:     id,
		ScanInterval:   time.Minute,
		OracleTimeout:  time.Second,
		FetchTimeout:   time.Second,
		InitialBalance: 1000,
		Limits:         types.RiskLimits{MaxConcurrentPositions: 3, MaxAllocationPerSymbol: 1.5, MinRiskReward: 2, MajorLeverageCap: 5, AltcoinLeverageCap: 5},
	}, oracle.Noop{}, executor.NewDryRun(id, balance), provider, p, log)
}

func TestAddRejectsDuplicate(t *testing.T) {
	m := New()
	c := testController(t, "alpha", 1000)
	if err := m.Add(c); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(c); err == nil {
		t.Fatal("duplicate Add should fail")
	}
}

func TestTradersPreserveOrder(t *testing.T) {
	m := New()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if err := m.Add(testController(t, id, 1000)); err != nil {
			t.Fatal(err)
		}
	}
	got := m.Traders()
	want := []string{"charlie", "alpha", "bravo"}
	for i, c := range got {
		if c.TraderID() != want[i] {
			t.Errorf("Traders()[%d] = %s, want %s", i, c.TraderID(), want[i])
		}
	}
	if _, ok := m.Get("alpha"); !ok {
		t.Error("Get(alpha) should find the controller")
	}
	if _, ok := m.Get("ghost"); ok {
		t.Error("Get(ghost) should miss")
	}
}

func TestComparisonSortsByPnL(t *testing.T) {
	m := New()
	// 1200 equity vs 800 equity against the same 1000 initial balance.
	m.Add(testController(t, "leader", 1200))
	m.Add(testController(t, "laggard", 800))

	board := m.Comparison(context.Background())
	if len(board) != 2 {
		t.Fatalf("board len = %d", len(board))
	}
	if board[0].TraderID != "leader" || board[1].TraderID != "laggard" {
		t.Errorf("board order = %s, %s", board[0].TraderID, board[1].TraderID)
	}
	if board[0].TotalPnL != 200 || board[1].TotalPnL != -200 {
		t.Errorf("pnl = %v, %v", board[0].TotalPnL, board[1].TotalPnL)
	}
	if board[0].Running {
		t.Error("trader should not report running before Start")
	}
}

func TestStartAllSurvivesTraderFailure(t *testing.T) {
	m := New()
	if err := m.Add(testController(t, "healthy", 1000)); err != nil {
		t.Fatal(err)
	}

	// A trader whose decision log is already closed errors out of Run
	// immediately on start.
	log, err := decisionlog.Open(filepath.Join(t.TempDir(), "broken.db"))
	if err != nil {
		t.Fatal(err)
	}
	log.Close()
	p := pool.New("", []string{"BTCUSDT"}, time.Minute)
	provider := market.NewProvider(futures.NewClient("", ""), p, market.Options{
		ShortInterval: "3m", LongInterval: "4h", ShortLimit: 10, LongLimit: 10,
	})
	broken := trader.New(trader.Options{
		TraderID: "broken", TraderName: "broken",
		ScanInterval: time.Minute, OracleTimeout: time.Second, FetchTimeout: time.Second,
	}, oracle.Noop{}, executor.NewDryRun("broken", 1000), provider, p, log)
	if err := m.Add(broken); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.StartAll(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !m.Running("healthy") {
		if time.Now().After(deadline) {
			t.Fatal("healthy trader never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	for m.Running("broken") {
		if time.Now().After(deadline) {
			t.Fatal("broken trader never parked")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !m.Running("healthy") {
		t.Error("healthy trader must keep running after a sibling fails")
	}
	select {
	case err := <-done:
		t.Fatalf("StartAll returned early: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("StartAll = %v, want nil on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StartAll did not return after cancel")
	}
}

func TestStopUnknownTrader(t *testing.T) {
	m := New()
	if err := m.Stop("ghost"); err != ErrUnknownTrader {
		t.Errorf("Stop(ghost) = %v, want ErrUnknownTrader", err)
	}
}
