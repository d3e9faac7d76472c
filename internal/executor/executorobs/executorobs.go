// Package executorobs wraps an executor with logging and tracing
// middleware.
package executorobs

import (
	"context"

	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/logger"
	"ai-trader-arena/internal/trace"
	"ai-trader-arena/internal/types"
)

type observableExecutor struct {
	executor interfaces.Executor
}

// Compile-time interface check
var _ interfaces.Executor = (*observableExecutor)(nil)

// Wrap wraps an executor with observability middleware
func Wrap(executor interfaces.Executor) interfaces.Executor {
	return &observableExecutor{executor: executor}
}

func (oe *observableExecutor) Execute(ctx context.Context, action types.ProposedAction, snap *types.MarketSnapshot) (*types.ExecutionResult, error) {
	ctx, span := trace.StartSpan(ctx, "executor.Execute")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Executing action",
		"trader_id", action.TraderID,
		"symbol", action.Symbol,
		"action", string(action.Action),
		"size_usd", action.SizeUSD,
		"leverage", action.Leverage,
	)

	result, err := oe.executor.Execute(ctx, action, snap)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Executor error", err,
			"trader_id", action.TraderID,
			"symbol", action.Symbol,
			"action", string(action.Action),
		)
		return nil, err
	}

	if result.Filled() {
		logger.Trade(ctx, action.TraderID, action.Symbol, string(action.Action),
			result.Quantity, result.FillPrice, result.OrderID)
	} else {
		logger.WarnSkip(ctx, 1, "Execution failed",
			"trader_id", action.TraderID,
			"symbol", action.Symbol,
			"action", string(action.Action),
			"reason", result.Reason,
		)
	}
	return result, nil
}

// markUpdater matches the simulated executor's mark refresh method.
type markUpdater interface {
	MarkPrice(symbol string, price float64)
}

// MarkPrice forwards simulated mark updates to the wrapped executor, so
// wrapping never hides the dry-run mark path from the controller. Live
// executors track marks on the venue and ignore the call.
func (oe *observableExecutor) MarkPrice(symbol string, price float64) {
	if u, ok := oe.executor.(markUpdater); ok {
		u.MarkPrice(symbol, price)
	}
}

func (oe *observableExecutor) ListPositions(ctx context.Context) ([]types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "executor.ListPositions")
	defer span.End()

	positions, err := oe.executor.ListPositions(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to list positions", err)
		return nil, err
	}
	logger.DebugSkip(ctx, 1, "Listed exchange positions", "count", len(positions))
	return positions, nil
}

func (oe *observableExecutor) Account(ctx context.Context) (types.AccountState, error) {
	ctx, span := trace.StartSpan(ctx, "executor.Account")
	defer span.End()

	state, err := oe.executor.Account(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch account state", err)
		return types.AccountState{}, err
	}
	logger.DebugSkip(ctx, 1, "Fetched account state",
		"equity", state.TotalEquity,
		"available", state.AvailableBalance,
	)
	return state, nil
}
