package oracle

import (
	"fmt"
	"sort"
	"strings"

	"ai-trader-arena/internal/types"
)

// SystemPrompt states the output contract and the hard limits the risk
// validator will enforce, so the model does not waste proposals on
// actions that will be rejected anyway.
func SystemPrompt(limits types.RiskLimits) string {
	var b strings.Builder
	b.WriteString(`You are a professional crypto futures trader competing against other AI traders on identical market data. You trade USDT-margined perpetual futures.

Process:
1. First write your market analysis as free-form text (your chain of thought).
2. Then output a JSON array of trading decisions, one object per symbol you act on.

Each decision object:
{"symbol": "BTCUSDT", "action": "open_long|open_short|close_long|close_short|hold|wait", "leverage": 5, "position_size_usd": 500.0, "entry_price": 60000.0, "stop_loss": 58000.0, "take_profit": 65000.0, "confidence": 75, "reasoning": "one sentence"}

Hard constraints (violations are rejected, do not propose them):
`)
	fmt.Fprintf(&b, "- At most %d concurrent positions.\n", limits.MaxConcurrentPositions)
	fmt.Fprintf(&b, "- Never open a position on a symbol that already has one, in either direction.\n")
	fmt.Fprintf(&b, "- position_size_usd must not exceed %.0f%% of total equity.\n", limits.MaxAllocationPerSymbol*100)
	fmt.Fprintf(&b, "- Every open needs stop_loss and take_profit with reward/risk >= %.1f.\n", limits.MinRiskReward)
	fmt.Fprintf(&b, "- Leverage at most %dx on BTC/ETH and %dx on everything else.\n", limits.MajorLeverageCap, limits.AltcoinLeverageCap)
	b.WriteString(`- close_long/close_short only when you hold a position on that side.

The JSON array must be the last thing in your reply. Output [] if you take no action this cycle.`)
	return b.String()
}

// UserPrompt renders the full per-cycle context: account, open
// positions, recent performance, and the market snapshots.
func UserPrompt(req types.OracleRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Cycle %d. You are %s.\n\n", req.Cycle, req.TraderName)

	fmt.Fprintf(&b, "ACCOUNT\nequity: %.2f USDT\navailable: %.2f USDT\ntotal pnl: %.2f USDT (%.2f%%)\nmargin used: %.2f%%\n\n",
		req.Account.TotalEquity, req.Account.AvailableBalance,
		req.Account.TotalPnL, req.Account.TotalPnLPct, req.Account.MarginUsedPct)

	b.WriteString("OPEN POSITIONS\n")
	if len(req.Positions) == 0 {
		b.WriteString("none\n")
	}
	for _, p := range req.Positions {
		pnl := unrealizedPnL(p)
		fmt.Fprintf(&b, "%s %s %dx | qty %.6f | entry %.4f | mark %.4f | unrealized %.2f | sl %.4f tp %.4f\n",
			p.Symbol, p.Side, p.Leverage, p.Quantity, p.EntryPrice, p.MarkPrice, pnl, p.StopLoss, p.TakeProfit)
	}
	b.WriteString("\n")

	writePerformance(&b, req.Performance, req.Outcomes)

	b.WriteString("MARKET DATA\n")
	for _, symbol := range sortedSymbols(req.Snapshots) {
		writeSnapshot(&b, req.Snapshots[symbol])
	}

	if len(req.Candidates) > 0 {
		fmt.Fprintf(&b, "\nCandidate pool (liquid symbols you may trade): %s\n", strings.Join(req.Candidates, ", "))
	}

	b.WriteString("\nAnalyze the data, then output your decision array.")
	return b.String()
}

func writePerformance(b *strings.Builder, s types.PerformanceSummary, outcomes []types.Outcome) {
	b.WriteString("RECENT PERFORMANCE")
	if s.CycleCount == 0 {
		b.WriteString("\nno closed trades yet\n\n")
		return
	}
	fmt.Fprintf(b, " (last %d closed trades)\n", s.CycleCount)
	fmt.Fprintf(b, "win rate: %.0f%% | total pnl: %.2f | avg win: %.2f | avg loss: %.2f | profit factor: %.2f | sharpe: %.2f\n",
		s.WinRate*100, s.TotalPnL, s.AvgWin, s.AvgLoss, s.ProfitFactor, s.SharpeRatio)

	// Show the last few individual outcomes so the model can connect
	// its own reasoning to results.
	n := len(outcomes)
	if n > 5 {
		outcomes = outcomes[n-5:]
	}
	for _, o := range outcomes {
		fmt.Fprintf(b, "- %s %s closed via %s: %.2f USDT (%.2fR)\n", o.Symbol, o.Side, o.Exit, o.PnLUSD, o.RMultiple)
	}
	b.WriteString("\n")
}

func writeSnapshot(b *strings.Builder, s *types.MarketSnapshot) {
	fmt.Fprintf(b, "\n== %s ==\nprice: %.6g | open interest: %.4g | funding: %.6f\n",
		s.Symbol, s.CurrentPrice, s.OpenInterest, s.FundingRate)

	writeTimeframe(b, s.ShortTerm)
	writeTimeframe(b, s.LongTerm)
}

func writeTimeframe(b *strings.Builder, tf types.TimeframeData) {
	fmt.Fprintf(b, "[%s] ", tf.Interval)
	if len(tf.MidPrices) > 0 {
		fmt.Fprintf(b, "mid prices %s ", floats(tf.MidPrices))
	}
	ind := tf.Indicators
	if len(ind.EMA20) > 0 {
		fmt.Fprintf(b, "| ema20 %s ", floats(ind.EMA20))
	}
	if len(ind.MACD) > 0 {
		fmt.Fprintf(b, "| macd %s ", floats(ind.MACD))
	}
	if len(ind.RSI7) > 0 {
		fmt.Fprintf(b, "| rsi7 %s ", floats(ind.RSI7))
	}
	if len(ind.RSI14) > 0 {
		fmt.Fprintf(b, "| rsi14 %s ", floats(ind.RSI14))
	}
	if ind.ATR14 != 0 {
		fmt.Fprintf(b, "| atr14 %.6g", ind.ATR14)
	}
	b.WriteString("\n")
}

func floats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func sortedSymbols(m map[string]*types.MarketSnapshot) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unrealizedPnL(p types.Position) float64 {
	if p.MarkPrice == 0 {
		return 0
	}
	diff := p.MarkPrice - p.EntryPrice
	if p.Side == types.SideShort {
		diff = -diff
	}
	return diff * p.Quantity
}
