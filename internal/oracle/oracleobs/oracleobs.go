// Package oracleobs wraps an oracle with logging and tracing middleware.
package oracleobs

import (
	"context"

	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/logger"
	"ai-trader-arena/internal/trace"
	"ai-trader-arena/internal/types"
)

type observableOracle struct {
	oracle interfaces.Oracle
}

// Compile-time interface check
var _ interfaces.Oracle = (*observableOracle)(nil)

// Wrap wraps an oracle with observability middleware
func Wrap(oracle interfaces.Oracle) interfaces.Oracle {
	return &observableOracle{oracle: oracle}
}

func (oo *observableOracle) Decide(ctx context.Context, req types.OracleRequest) (*types.OracleDecision, error) {
	ctx, span := trace.StartSpan(ctx, "oracle.Decide")
	defer span.End()

	// Use Skip(1) variants to report the actual caller, not this wrapper.
	logger.InfoSkip(ctx, 1, "Requesting oracle decision",
		"trader_id", req.TraderID,
		"cycle", req.Cycle,
		"symbols", len(req.Snapshots),
		"open_positions", len(req.Positions),
	)

	decision, err := oo.oracle.Decide(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Oracle decision failed", err,
			"trader_id", req.TraderID,
			"cycle", req.Cycle,
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Oracle decision received",
		"trader_id", req.TraderID,
		"cycle", req.Cycle,
		"proposals", len(decision.Proposals),
		"cot_len", len(decision.CoTTrace),
	)
	return decision, nil
}
