package interfaces

import (
	"context"

	"ai-trader-arena/internal/types"
)

// Executor realizes accepted actions on the exchange. One executor
// instance serves one trader (it owns that trader's credentials).
type Executor interface {
	// Execute places the order(s) for an accepted action. A rejected order
	// or connectivity failure is reported as a failed ExecutionResult, not
	// an error; errors are reserved for programmer mistakes.
	Execute(ctx context.Context, action types.ProposedAction, snap *types.MarketSnapshot) (*types.ExecutionResult, error)

	// ListPositions returns exchange-reported open positions, used for
	// reconciliation against the ledger.
	ListPositions(ctx context.Context) ([]types.Position, error)

	// Account returns the exchange-reported account state.
	Account(ctx context.Context) (types.AccountState, error)
}
