package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/types"
)

// DryRun simulates fills against snapshot prices. It keeps its own
// account so paper traders report realistic equity and margin numbers.
type DryRun struct {
	traderID string

	mu        sync.Mutex
	balance   float64 // realized cash balance
	positions map[string]types.Position
}

var _ interfaces.Executor = (*DryRun)(nil)

func NewDryRun(traderID string, initialBalance float64) *DryRun {
	return &DryRun{
		traderID:  traderID,
		balance:   initialBalance,
		positions: make(map[string]types.Position),
	}
}

func (d *DryRun) Execute(_ context.Context, action types.ProposedAction, snap *types.MarketSnapshot) (*types.ExecutionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	price := snap.CurrentPrice
	if price <= 0 {
		return failed("no reference price for " + action.Symbol), nil
	}

	switch {
	case action.Action.IsOpen():
		return d.open(action, price), nil
	case action.Action.IsClose():
		return d.close(action, price), nil
	default:
		return nil, fmt.Errorf("executor received noop action %s", action.Action)
	}
}

func (d *DryRun) open(action types.ProposedAction, price float64) *types.ExecutionResult {
	if _, exists := d.positions[action.Symbol]; exists {
		return failed("simulated position already open on " + action.Symbol)
	}
	margin := action.SizeUSD / float64(max(action.Leverage, 1))
	if margin > d.balance {
		return failed(fmt.Sprintf("insufficient simulated balance: need %.2f margin, have %.2f", margin, d.balance))
	}

	pos := types.Position{
		TraderID:   d.traderID,
		Symbol:     action.Symbol,
		Side:       action.Action.Side(),
		Quantity:   action.SizeUSD / price,
		SizeUSD:    action.SizeUSD,
		Leverage:   action.Leverage,
		EntryPrice: price,
		MarkPrice:  price,
		StopLoss:   action.StopLoss,
		TakeProfit: action.TakeProfit,
		OpenedAt:   time.Now().UTC(),
	}
	d.positions[action.Symbol] = pos
	d.balance -= margin

	p := pos
	return &types.ExecutionResult{
		Status:    types.ExecFilled,
		OrderID:   "dry-" + uuid.NewString()[:8],
		FillPrice: price,
		Quantity:  pos.Quantity,
		Position:  &p,
	}
}

func (d *DryRun) close(action types.ProposedAction, price float64) *types.ExecutionResult {
	pos, ok := d.positions[action.Symbol]
	if !ok || pos.Side != action.Action.Side() {
		return failed("no simulated position to close on " + action.Symbol)
	}
	delete(d.positions, action.Symbol)

	diff := price - pos.EntryPrice
	if pos.Side == types.SideShort {
		diff = -diff
	}
	pnl := diff * pos.Quantity
	d.balance += pos.SizeUSD/float64(max(pos.Leverage, 1)) + pnl

	return &types.ExecutionResult{
		Status:    types.ExecFilled,
		OrderID:   "dry-" + uuid.NewString()[:8],
		FillPrice: price,
		Quantity:  pos.Quantity,
	}
}

func (d *DryRun) ListPositions(_ context.Context) ([]types.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Position, 0, len(d.positions))
	for _, p := range d.positions {
		out = append(out, p)
	}
	return out, nil
}

func (d *DryRun) Account(_ context.Context) (types.AccountState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var margin, unrealized float64
	for _, p := range d.positions {
		margin += p.SizeUSD / float64(max(p.Leverage, 1))
		diff := p.MarkPrice - p.EntryPrice
		if p.Side == types.SideShort {
			diff = -diff
		}
		unrealized += diff * p.Quantity
	}

	equity := d.balance + margin + unrealized
	state := types.AccountState{
		TotalEquity:      equity,
		AvailableBalance: d.balance,
		MarginUsed:       margin,
		PositionCount:    len(d.positions),
	}
	if equity > 0 {
		state.MarginUsedPct = margin / equity * 100
	}
	return state, nil
}

// MarkPrice updates the simulated mark so unrealized pnl tracks the
// latest snapshot.
func (d *DryRun) MarkPrice(symbol string, price float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.positions[symbol]; ok {
		p.MarkPrice = price
		d.positions[symbol] = p
	}
}
