package oracle

import (
	"context"

	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/types"
)

// Noop is an oracle that never trades. Useful as a control trader and
// in tests.
type Noop struct{}

var _ interfaces.Oracle = Noop{}

func (Noop) Decide(_ context.Context, _ types.OracleRequest) (*types.OracleDecision, error) {
	return &types.OracleDecision{CoTTrace: "noop oracle: no action"}, nil
}
