package risk

import (
	"testing"

	"ai-trader-arena/internal/types"
)

func defaultLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxConcurrentPositions: 3,
		MaxAllocationPerSymbol: 1.5,
		MajorLeverageCap:       5,
		AltcoinLeverageCap:     5,
		MinRiskReward:          2.0,
	}
}

func openLong(symbol string) types.ProposedAction {
	// Entry 100, stop 90, target 125 -> RR 2.5.
	return types.ProposedAction{
		TraderID:   "alpha",
		Symbol:     symbol,
		Action:     types.ActionOpenLong,
		Leverage:   5,
		SizeUSD:    500,
		EntryHint:  100,
		StopLoss:   90,
		TakeProfit: 125,
	}
}

func TestValidateAcceptsGoodOpen(t *testing.T) {
	v := Validate(openLong("SOLUSDT"), State{Equity: 1000}, defaultLimits())
	if !v.Accepted {
		t.Fatalf("expected accepted, got %s: %s", v.Reason, v.Detail)
	}
}

func TestValidateRejectsLowRiskReward(t *testing.T) {
	p := openLong("SOLUSDT")
	p.TakeProfit = 115 // RR 1.5, below the 2.0 floor
	v := Validate(p, State{Equity: 1000}, defaultLimits())
	if v.Accepted || v.Reason != types.RejectRRTooLow {
		t.Fatalf("expected RR_TOO_LOW, got %+v", v)
	}
}

func TestValidateRejectsDuplicatePosition(t *testing.T) {
	// Any existing position on the symbol blocks a new open, even on the
	// other side.
	open := []types.Position{{Symbol: "SOLUSDT", Side: types.SideShort}}
	p := openLong("SOLUSDT")
	v := Validate(p, State{Open: open, Equity: 1000}, defaultLimits())
	if v.Accepted || v.Reason != types.RejectDuplicatePosition {
		t.Fatalf("expected DUPLICATE_POSITION, got %+v", v)
	}
}

func TestValidateRejectsExposureLimit(t *testing.T) {
	open := []types.Position{
		{Symbol: "BTCUSDT", Side: types.SideLong},
		{Symbol: "ETHUSDT", Side: types.SideLong},
		{Symbol: "XRPUSDT", Side: types.SideShort},
	}
	v := Validate(openLong("SOLUSDT"), State{Open: open, Equity: 1000}, defaultLimits())
	if v.Accepted || v.Reason != types.RejectExposureLimit {
		t.Fatalf("expected EXPOSURE_LIMIT, got %+v", v)
	}
}

func TestValidateRejectsOversizedPosition(t *testing.T) {
	p := openLong("SOLUSDT")
	p.SizeUSD = 2000 // 1.5 * 1000 equity = 1500 max
	v := Validate(p, State{Equity: 1000}, defaultLimits())
	if v.Accepted || v.Reason != types.RejectSizeLimit {
		t.Fatalf("expected SIZE_LIMIT, got %+v", v)
	}
}

func TestValidateRejectsExcessLeverage(t *testing.T) {
	p := openLong("SOLUSDT")
	p.Leverage = 10
	v := Validate(p, State{Equity: 1000}, defaultLimits())
	if v.Accepted || v.Reason != types.RejectLeverageLimit {
		t.Fatalf("expected LEVERAGE_LIMIT, got %+v", v)
	}
}

func TestValidateShortRiskReward(t *testing.T) {
	p := types.ProposedAction{
		Symbol:     "ETHUSDT",
		Action:     types.ActionOpenShort,
		Leverage:   5,
		SizeUSD:    500,
		EntryHint:  100,
		StopLoss:   105,
		TakeProfit: 88, // reward 12, risk 5 -> RR 2.4
	}
	v := Validate(p, State{Equity: 1000}, defaultLimits())
	if !v.Accepted {
		t.Fatalf("expected accepted short, got %+v", v)
	}

	p.TakeProfit = 92 // RR 1.6
	v = Validate(p, State{Equity: 1000}, defaultLimits())
	if v.Accepted || v.Reason != types.RejectRRTooLow {
		t.Fatalf("expected RR_TOO_LOW on short, got %+v", v)
	}
}

func TestValidateEntryFallsBackToMarkPrice(t *testing.T) {
	p := openLong("SOLUSDT")
	p.EntryHint = 0
	v := Validate(p, State{Equity: 1000, MarkPrice: 100}, defaultLimits())
	if !v.Accepted {
		t.Fatalf("expected accepted with mark price entry, got %+v", v)
	}
}

func TestValidateStopOnWrongSide(t *testing.T) {
	p := openLong("SOLUSDT")
	p.StopLoss = 110 // above entry for a long
	v := Validate(p, State{Equity: 1000}, defaultLimits())
	if v.Accepted || v.Reason != types.RejectRRTooLow {
		t.Fatalf("expected RR_TOO_LOW for inverted stop, got %+v", v)
	}
}

func TestValidateCloseRequiresMatchingPosition(t *testing.T) {
	p := types.ProposedAction{Symbol: "SOLUSDT", Action: types.ActionCloseLong}

	v := Validate(p, State{Equity: 1000}, defaultLimits())
	if v.Accepted || v.Reason != types.RejectNoPositionToClose {
		t.Fatalf("expected NO_POSITION_TO_CLOSE, got %+v", v)
	}

	// A short position does not satisfy close_long.
	open := []types.Position{{Symbol: "SOLUSDT", Side: types.SideShort}}
	v = Validate(p, State{Open: open, Equity: 1000}, defaultLimits())
	if v.Accepted || v.Reason != types.RejectNoPositionToClose {
		t.Fatalf("expected NO_POSITION_TO_CLOSE for side mismatch, got %+v", v)
	}

	open[0].Side = types.SideLong
	v = Validate(p, State{Open: open, Equity: 1000}, defaultLimits())
	if !v.Accepted {
		t.Fatalf("expected accepted close, got %+v", v)
	}
}

func TestValidateNoopAlwaysAccepted(t *testing.T) {
	for _, a := range []types.Action{types.ActionHold, types.ActionWait} {
		v := Validate(types.ProposedAction{Symbol: "BTCUSDT", Action: a}, State{}, defaultLimits())
		if !v.Accepted {
			t.Errorf("%s: expected accepted, got %+v", a, v)
		}
	}
}

func TestValidateGuardOrderDuplicateBeforeSize(t *testing.T) {
	// A proposal failing multiple guards reports the earliest one.
	open := []types.Position{{Symbol: "SOLUSDT", Side: types.SideLong}}
	p := openLong("SOLUSDT")
	p.SizeUSD = 99999
	v := Validate(p, State{Open: open, Equity: 1000}, defaultLimits())
	if v.Reason != types.RejectDuplicatePosition {
		t.Fatalf("expected DUPLICATE_POSITION to win, got %+v", v)
	}
}
