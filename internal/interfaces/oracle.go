package interfaces

import (
	"context"

	"ai-trader-arena/internal/types"
)

// Oracle is the AI decision backend. Implementations must respect the
// context deadline and return an error for timeouts and responses that
// cannot be parsed into typed proposals.
type Oracle interface {
	Decide(ctx context.Context, req types.OracleRequest) (*types.OracleDecision, error)
}
