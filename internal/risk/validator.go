// Package risk validates oracle proposals against hard per-trader limits.
// Validation is pure: it reads the proposal and the account state and
// never touches the exchange or the ledger.
package risk

import (
	"fmt"
	"strings"

	"ai-trader-arena/internal/types"
)

// State is the account view a proposal is validated against.
type State struct {
	Open             []types.Position
	Equity           float64
	AvailableBalance float64
	MarkPrice        float64 // current price of the proposal's symbol
}

// majors carry the higher leverage tier.
var majors = map[string]bool{
	"BTCUSDT": true,
	"ETHUSDT": true,
}

// Validate checks one proposal against the limits. Guards run in a fixed
// order and the first failure wins, so the reject reason is deterministic
// for a given proposal and state.
func Validate(p types.ProposedAction, s State, limits types.RiskLimits) types.Verdict {
	if p.Action.IsNoop() {
		return types.Accepted()
	}

	if p.Action.IsClose() {
		return validateClose(p, s)
	}

	// Open actions.
	if pos := findPosition(s.Open, p.Symbol); pos != nil {
		return types.Rejected(types.RejectDuplicatePosition,
			fmt.Sprintf("%s already has a %s position open", p.Symbol, pos.Side))
	}

	if len(s.Open) >= limits.MaxConcurrentPositions {
		return types.Rejected(types.RejectExposureLimit,
			fmt.Sprintf("%d positions open, limit is %d", len(s.Open), limits.MaxConcurrentPositions))
	}

	maxSize := limits.MaxAllocationPerSymbol * s.Equity
	if p.SizeUSD <= 0 || p.SizeUSD > maxSize {
		return types.Rejected(types.RejectSizeLimit,
			fmt.Sprintf("size %.2f USD outside (0, %.2f]", p.SizeUSD, maxSize))
	}

	if v := validateRiskReward(p, s, limits); !v.Accepted {
		return v
	}

	cap := limits.AltcoinLeverageCap
	if majors[strings.ToUpper(p.Symbol)] {
		cap = limits.MajorLeverageCap
	}
	if p.Leverage <= 0 || p.Leverage > cap {
		return types.Rejected(types.RejectLeverageLimit,
			fmt.Sprintf("leverage %dx outside [1, %d] for %s", p.Leverage, cap, p.Symbol))
	}

	return types.Accepted()
}

func validateClose(p types.ProposedAction, s State) types.Verdict {
	pos := findPosition(s.Open, p.Symbol)
	if pos == nil || pos.Side != p.Action.Side() {
		return types.Rejected(types.RejectNoPositionToClose,
			fmt.Sprintf("no open %s position on %s", p.Action.Side(), p.Symbol))
	}
	return types.Accepted()
}

// validateRiskReward requires stop and target on every open and enforces
// the minimum reward-to-risk ratio. Entry is the oracle's hint when it
// gave one, otherwise the current mark price.
func validateRiskReward(p types.ProposedAction, s State, limits types.RiskLimits) types.Verdict {
	entry := p.EntryHint
	if entry <= 0 {
		entry = s.MarkPrice
	}
	if p.StopLoss <= 0 || p.TakeProfit <= 0 || entry <= 0 {
		return types.Rejected(types.RejectRRTooLow,
			"open actions require stop_loss, take_profit and a resolvable entry price")
	}

	var reward, risk float64
	switch p.Action.Side() {
	case types.SideLong:
		reward, risk = p.TakeProfit-entry, entry-p.StopLoss
	case types.SideShort:
		reward, risk = entry-p.TakeProfit, p.StopLoss-entry
	}
	if risk <= 0 || reward <= 0 {
		return types.Rejected(types.RejectRRTooLow,
			fmt.Sprintf("stop/target on wrong side of entry %.4f for %s", entry, p.Action))
	}

	rr := reward / risk
	if rr < limits.MinRiskReward {
		return types.Rejected(types.RejectRRTooLow,
			fmt.Sprintf("risk/reward %.2f below minimum %.2f", rr, limits.MinRiskReward))
	}
	return types.Accepted()
}

func findPosition(open []types.Position, symbol string) *types.Position {
	for i := range open {
		if open[i].Symbol == symbol {
			return &open[i]
		}
	}
	return nil
}
