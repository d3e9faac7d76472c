// Package executor places orders for accepted actions. The live
// executor targets Binance USDT-margined futures; the dry-run executor
// simulates fills against snapshot prices for paper competitions.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/trace"
	"ai-trader-arena/internal/types"
)

// Binance executes orders against Binance futures with one trader's
// credentials.
type Binance struct {
	traderID string
	client   *futures.Client

	// quantityPrecision per symbol; defaults to 3 decimals when the
	// symbol is unknown.
	precision map[string]int32
}

var _ interfaces.Executor = (*Binance)(nil)

func NewBinance(traderID, apiKey, secretKey string) *Binance {
	return &Binance{
		traderID:  traderID,
		client:    futures.NewClient(apiKey, secretKey),
		precision: map[string]int32{"BTCUSDT": 3, "ETHUSDT": 3},
	}
}

func (b *Binance) Execute(ctx context.Context, action types.ProposedAction, snap *types.MarketSnapshot) (*types.ExecutionResult, error) {
	ctx, span := trace.StartSpan(ctx, "executor-execute")
	defer span.End()

	switch {
	case action.Action.IsOpen():
		return b.open(ctx, action, snap)
	case action.Action.IsClose():
		return b.close(ctx, action)
	default:
		return nil, fmt.Errorf("executor received noop action %s", action.Action)
	}
}

func (b *Binance) open(ctx context.Context, action types.ProposedAction, snap *types.MarketSnapshot) (*types.ExecutionResult, error) {
	symbol := action.Symbol
	price := snap.CurrentPrice
	if price <= 0 {
		return failed("no reference price for " + symbol), nil
	}

	if _, err := b.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(action.Leverage).
		Do(ctx); err != nil {
		return failed(fmt.Sprintf("set leverage: %v", err)), nil
	}

	qty := quantity(action.SizeUSD, price, b.precisionFor(symbol))
	if qty == "" {
		return failed(fmt.Sprintf("size %.2f USD rounds to zero quantity at price %.4f", action.SizeUSD, price)), nil
	}

	side := futures.SideTypeBuy
	if action.Action.Side() == types.SideShort {
		side = futures.SideTypeSell
	}

	order, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewClientOrderID(clientOrderID(b.traderID)).
		Do(ctx)
	if err != nil {
		return failed(fmt.Sprintf("market order: %v", err)), nil
	}

	// Protective orders are best-effort: a failure here leaves the
	// position open, so surface it in the result rather than silently
	// retrying.
	if err := b.placeProtection(ctx, action, side); err != nil {
		return &types.ExecutionResult{
			Status:  types.ExecFailed,
			OrderID: fmt.Sprintf("%d", order.OrderID),
			Reason:  fmt.Sprintf("position opened but protection failed: %v", err),
		}, nil
	}

	filled := parsePrice(order.AvgPrice)
	if filled <= 0 {
		filled = price
	}
	qtyF, _ := decimal.NewFromString(qty)

	pos := &types.Position{
		TraderID:   b.traderID,
		Symbol:     symbol,
		Side:       action.Action.Side(),
		Quantity:   qtyF.InexactFloat64(),
		SizeUSD:    action.SizeUSD,
		Leverage:   action.Leverage,
		EntryPrice: filled,
		MarkPrice:  filled,
		StopLoss:   action.StopLoss,
		TakeProfit: action.TakeProfit,
		OpenedAt:   time.Now().UTC(),
	}
	return &types.ExecutionResult{
		Status:    types.ExecFilled,
		OrderID:   fmt.Sprintf("%d", order.OrderID),
		FillPrice: filled,
		Quantity:  pos.Quantity,
		Position:  pos,
	}, nil
}

// placeProtection attaches the stop and target as close-position
// trigger orders.
func (b *Binance) placeProtection(ctx context.Context, action types.ProposedAction, entrySide futures.SideType) error {
	exitSide := futures.SideTypeSell
	if entrySide == futures.SideTypeSell {
		exitSide = futures.SideTypeBuy
	}

	_, err := b.client.NewCreateOrderService().
		Symbol(action.Symbol).
		Side(exitSide).
		Type(futures.OrderTypeStopMarket).
		StopPrice(formatPrice(action.StopLoss)).
		ClosePosition(true).
		NewClientOrderID(clientOrderID(b.traderID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("stop loss: %w", err)
	}

	_, err = b.client.NewCreateOrderService().
		Symbol(action.Symbol).
		Side(exitSide).
		Type(futures.OrderTypeTakeProfitMarket).
		StopPrice(formatPrice(action.TakeProfit)).
		ClosePosition(true).
		NewClientOrderID(clientOrderID(b.traderID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("take profit: %w", err)
	}
	return nil
}

func (b *Binance) close(ctx context.Context, action types.ProposedAction) (*types.ExecutionResult, error) {
	symbol := action.Symbol

	risks, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return failed(fmt.Sprintf("position risk: %v", err)), nil
	}
	var qty decimal.Decimal
	for _, r := range risks {
		amt, err := decimal.NewFromString(r.PositionAmt)
		if err != nil || amt.IsZero() {
			continue
		}
		qty = amt.Abs()
	}
	if qty.IsZero() {
		return failed("exchange reports no position on " + symbol), nil
	}

	// Closing is the opposite side of the held position, reduce-only so
	// a stale quantity can never flip the position.
	side := futures.SideTypeSell
	if action.Action.Side() == types.SideShort {
		side = futures.SideTypeBuy
	}

	order, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		ReduceOnly(true).
		NewClientOrderID(clientOrderID(b.traderID)).
		Do(ctx)
	if err != nil {
		return failed(fmt.Sprintf("close order: %v", err)), nil
	}

	return &types.ExecutionResult{
		Status:    types.ExecFilled,
		OrderID:   fmt.Sprintf("%d", order.OrderID),
		FillPrice: parsePrice(order.AvgPrice),
		Quantity:  qty.InexactFloat64(),
	}, nil
}

func (b *Binance) ListPositions(ctx context.Context) ([]types.Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	var out []types.Position
	for _, r := range risks {
		amt, err := decimal.NewFromString(r.PositionAmt)
		if err != nil || amt.IsZero() {
			continue
		}
		side := types.SideLong
		if amt.IsNegative() {
			side = types.SideShort
		}
		entry := parsePrice(r.EntryPrice)
		lev := parsePrice(r.Leverage)
		out = append(out, types.Position{
			TraderID:   b.traderID,
			Symbol:     r.Symbol,
			Side:       side,
			Quantity:   amt.Abs().InexactFloat64(),
			SizeUSD:    amt.Abs().InexactFloat64() * entry,
			Leverage:   int(lev),
			EntryPrice: entry,
			MarkPrice:  parsePrice(r.MarkPrice),
		})
	}
	return out, nil
}

func (b *Binance) Account(ctx context.Context) (types.AccountState, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return types.AccountState{}, fmt.Errorf("account: %w", err)
	}

	equity := parsePrice(acct.TotalMarginBalance)
	margin := parsePrice(acct.TotalPositionInitialMargin)
	state := types.AccountState{
		TotalEquity:      equity,
		AvailableBalance: parsePrice(acct.AvailableBalance),
		MarginUsed:       margin,
	}
	if equity > 0 {
		state.MarginUsedPct = margin / equity * 100
	}
	return state, nil
}

func (b *Binance) precisionFor(symbol string) int32 {
	if p, ok := b.precision[strings.ToUpper(symbol)]; ok {
		return p
	}
	return 3
}

// quantity converts a USD notional into a contract quantity string,
// rounded down so the order never exceeds the validated size.
func quantity(sizeUSD, price float64, precision int32) string {
	q := decimal.NewFromFloat(sizeUSD).
		Div(decimal.NewFromFloat(price)).
		RoundDown(precision)
	if q.IsZero() {
		return ""
	}
	return q.String()
}

func clientOrderID(traderID string) string {
	id := uuid.NewString()
	// Binance caps client order IDs at 36 chars.
	s := "a-" + traderID + "-" + id[:8]
	if len(s) > 36 {
		s = s[:36]
	}
	return s
}

func failed(reason string) *types.ExecutionResult {
	return &types.ExecutionResult{Status: types.ExecFailed, Reason: reason}
}

func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).String()
}

func parsePrice(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
