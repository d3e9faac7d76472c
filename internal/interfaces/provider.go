package interfaces

import (
	"context"

	"ai-trader-arena/internal/types"
)

// SnapshotProvider produces a point-in-time market view for one symbol.
type SnapshotProvider interface {
	FetchSnapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error)
}

// PoolProvider resolves the set of symbols a trader may consider.
type PoolProvider interface {
	Symbols(ctx context.Context) ([]string, error)
	Contains(symbol string) bool
}
