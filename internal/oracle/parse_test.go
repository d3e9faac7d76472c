package oracle

import (
	"errors"
	"strings"
	"testing"

	"ai-trader-arena/internal/types"
)

func TestParseDecisionSplitsCoTAndArray(t *testing.T) {
	content := `BTC is holding the 4h EMA20 and funding is neutral.
I will open a long with a tight stop below structure.

[{"symbol": "BTCUSDT", "action": "open_long", "leverage": 5, "position_size_usd": 500, "entry_price": 60000, "stop_loss": 58000, "take_profit": 65000, "confidence": 72, "reasoning": "trend continuation"}]`

	d, err := ParseDecision(content, "alpha")
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if !strings.Contains(d.CoTTrace, "holding the 4h EMA20") {
		t.Errorf("CoTTrace missing analysis text: %q", d.CoTTrace)
	}
	if strings.Contains(d.CoTTrace, "BTCUSDT\"") {
		t.Errorf("CoTTrace should not contain the JSON array: %q", d.CoTTrace)
	}
	if len(d.Proposals) != 1 {
		t.Fatalf("proposals = %d, want 1", len(d.Proposals))
	}
	p := d.Proposals[0]
	if p.TraderID != "alpha" || p.Symbol != "BTCUSDT" || p.Action != types.ActionOpenLong {
		t.Errorf("proposal = %+v", p)
	}
	if p.SizeUSD != 500 || p.StopLoss != 58000 || p.TakeProfit != 65000 || p.Confidence != 72 {
		t.Errorf("numeric fields = %+v", p)
	}
}

func TestParseDecisionEmptyArray(t *testing.T) {
	d, err := ParseDecision("Nothing looks tradable this cycle.\n\n[]", "alpha")
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if len(d.Proposals) != 0 {
		t.Errorf("proposals = %d, want 0", len(d.Proposals))
	}
}

func TestParseDecisionMarkdownFence(t *testing.T) {
	content := "Analysis here.\n```json\n[{\"symbol\": \"ethusdt\", \"action\": \"close_long\"}]\n```"
	d, err := ParseDecision(content, "alpha")
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if d.Proposals[0].Symbol != "ETHUSDT" {
		t.Errorf("symbol should be upper-cased: %q", d.Proposals[0].Symbol)
	}
	if d.Proposals[0].Action != types.ActionCloseLong {
		t.Errorf("action = %s", d.Proposals[0].Action)
	}
}

func TestParseDecisionSmartQuotes(t *testing.T) {
	content := "thoughts\n[{“symbol”: “BTCUSDT”, “action”: “hold”}]"
	d, err := ParseDecision(content, "alpha")
	if err != nil {
		t.Fatalf("ParseDecision with smart quotes: %v", err)
	}
	if d.Proposals[0].Action != types.ActionHold {
		t.Errorf("action = %s, want hold", d.Proposals[0].Action)
	}
}

func TestParseDecisionBracketsInsideStrings(t *testing.T) {
	content := `note [not json]
[{"symbol": "BTCUSDT", "action": "hold", "reasoning": "range [58k, 62k] intact"}]`
	d, err := ParseDecision(content, "alpha")
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	// The first '[' belongs to prose; the parser must still find the
	// real array and keep the bracketed text inside the string intact.
	if len(d.Proposals) != 1 || !strings.Contains(d.Proposals[0].Reasoning, "[58k, 62k]") {
		t.Errorf("proposals = %+v", d.Proposals)
	}
}

func TestParseDecisionRejectsUnknownAction(t *testing.T) {
	content := `[{"symbol": "BTCUSDT", "action": "yolo_long"}]`
	_, err := ParseDecision(content, "alpha")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if !strings.Contains(perr.Reason, "unknown action") {
		t.Errorf("reason = %q", perr.Reason)
	}
}

func TestParseDecisionRejectsOpenWithoutStops(t *testing.T) {
	content := `[{"symbol": "BTCUSDT", "action": "open_short", "position_size_usd": 300}]`
	if _, err := ParseDecision(content, "alpha"); err == nil {
		t.Fatal("open without stop_loss/take_profit should fail parsing")
	}
}

func TestParseDecisionNoArray(t *testing.T) {
	var perr *ParseError
	if _, err := ParseDecision("I think we should wait and see.", "alpha"); !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if _, err := ParseDecision("", "alpha"); err == nil {
		t.Fatal("empty response should fail")
	}
}

func TestPromptsCarryContext(t *testing.T) {
	limits := types.RiskLimits{
		MaxConcurrentPositions: 3,
		MaxAllocationPerSymbol: 1.5,
		MajorLeverageCap:       5,
		AltcoinLeverageCap:     5,
		MinRiskReward:          2.0,
	}
	sys := SystemPrompt(limits)
	if !strings.Contains(sys, "At most 3 concurrent positions") {
		t.Errorf("system prompt missing exposure limit: %s", sys)
	}
	if !strings.Contains(sys, "reward/risk >= 2.0") {
		t.Errorf("system prompt missing RR floor")
	}

	req := types.OracleRequest{
		TraderID:   "alpha",
		TraderName: "Alpha",
		Cycle:      12,
		Account:    types.AccountState{TotalEquity: 1200, AvailableBalance: 700},
		Positions: []types.Position{
			{Symbol: "ETHUSDT", Side: types.SideShort, Leverage: 5, Quantity: 0.5, EntryPrice: 3000, MarkPrice: 2900},
		},
		Snapshots: map[string]*types.MarketSnapshot{
			"BTCUSDT": {Symbol: "BTCUSDT", CurrentPrice: 60000,
				ShortTerm: types.TimeframeData{Interval: "3m", MidPrices: []float64{59900, 60000}},
				LongTerm:  types.TimeframeData{Interval: "4h"}},
		},
		Candidates:  []string{"BTCUSDT", "SOLUSDT"},
		Performance: types.PerformanceSummary{CycleCount: 2, WinRate: 0.5, TotalPnL: 42},
		Limits:      limits,
	}
	user := UserPrompt(req)
	for _, want := range []string{"Cycle 12", "ETHUSDT short", "== BTCUSDT ==", "win rate: 50%", "BTCUSDT, SOLUSDT"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
	// Short at entry 3000, mark 2900, qty 0.5 -> +50 unrealized.
	if !strings.Contains(user, "unrealized 50.00") {
		t.Errorf("user prompt missing unrealized pnl:\n%s", user)
	}
}
