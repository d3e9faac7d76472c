// Package manager owns the set of competing trader controllers: it
// starts and stops their cycle loops and aggregates the competition
// view for the API.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"ai-trader-arena/internal/logger"
	"ai-trader-arena/internal/trader"
	"ai-trader-arena/internal/types"
)

// ErrUnknownTrader is returned for operations on trader IDs that were
// never registered.
var ErrUnknownTrader = errors.New("manager: unknown trader")

type entry struct {
	ctrl   *trader.Controller
	cancel context.CancelFunc
}

type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

func New() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// Add registers a controller. Registration order is preserved in
// listings.
func (m *Manager) Add(c *trader.Controller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := c.TraderID()
	if _, exists := m.entries[id]; exists {
		return fmt.Errorf("manager: trader %s already registered", id)
	}
	m.entries[id] = &entry{ctrl: c}
	m.order = append(m.order, id)
	return nil
}

// StartAll runs every registered trader until ctx is cancelled. Each
// trader gets its own goroutine and its own cancel scope: one trader's
// loop erroring out parks that trader only, the others keep trading.
func (m *Manager) StartAll(ctx context.Context) error {
	var g errgroup.Group

	m.mu.Lock()
	ids := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.start(ctx, &g, id); err != nil {
			return err
		}
	}
	g.Wait()
	return nil
}

// Start launches one stopped trader. Its loop joins the group created
// by StartAll if one is running, otherwise it runs detached on ctx.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownTrader
	}
	if e.cancel != nil {
		m.mu.Unlock()
		return fmt.Errorf("manager: trader %s already running", id)
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	m.mu.Unlock()

	go func() {
		defer m.clearCancel(id)
		if err := e.ctrl.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorWithErr(runCtx, "Trader loop exited", err, "trader_id", id)
		}
	}()
	logger.Info(ctx, "Trader started", "trader_id", id)
	return nil
}

// Stop cancels one running trader's loop. The trader keeps its state
// and can be started again.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownTrader
	}
	cancel := e.cancel
	e.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("manager: trader %s not running", id)
	}
	cancel()
	return nil
}

func (m *Manager) start(ctx context.Context, g *errgroup.Group, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownTrader
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	m.mu.Unlock()

	g.Go(func() error {
		defer m.clearCancel(id)
		if err := e.ctrl.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorWithErr(runCtx, "Trader loop exited", err, "trader_id", id)
		}
		return nil
	})
	return nil
}

func (m *Manager) clearCancel(id string) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.cancel = nil
	}
	m.mu.Unlock()
}

// Get returns the controller for id.
func (m *Manager) Get(id string) (*trader.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Traders returns the registered controllers in registration order.
func (m *Manager) Traders() []*trader.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*trader.Controller, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id].ctrl)
	}
	return out
}

// Running reports whether the trader's loop is active.
func (m *Manager) Running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return ok && e.cancel != nil
}

// CompetitionEntry is one row of the leaderboard.
type CompetitionEntry struct {
	TraderID    string                   `json:"trader_id"`
	TraderName  string                   `json:"trader_name"`
	State       trader.State             `json:"state"`
	Running     bool                     `json:"running"`
	Equity      float64                  `json:"equity"`
	TotalPnL    float64                  `json:"total_pnl"`
	TotalPnLPct float64                  `json:"total_pnl_pct"`
	Positions   int                      `json:"positions"`
	Performance types.PerformanceSummary `json:"performance"`
}

// Comparison builds the leaderboard, sorted by total pnl descending.
// Traders whose account is unreachable still appear, with zero equity.
func (m *Manager) Comparison(ctx context.Context) []CompetitionEntry {
	out := make([]CompetitionEntry, 0)
	for _, c := range m.Traders() {
		status := c.Status()
		e := CompetitionEntry{
			TraderID:    status.TraderID,
			TraderName:  status.TraderName,
			State:       status.State,
			Running:     m.Running(status.TraderID),
			Positions:   len(status.Positions),
			Performance: c.Performance(),
		}
		if acct, err := c.Account(ctx); err == nil {
			e.Equity = acct.TotalEquity
			e.TotalPnL = acct.TotalPnL
			e.TotalPnLPct = acct.TotalPnLPct
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalPnL > out[j].TotalPnL })
	return out
}
