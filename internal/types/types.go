package types

import "time"

// Candle is a single OHLCV bar from the exchange.
type Candle struct {
	OpenTime                       int64 `json:"open_time"`
	Open, High, Low, Close, Volume float64
}

// IndicatorSeries holds the technical series computed over a candle series.
// Only the most recent points are kept; the oracle sees them verbatim.
type IndicatorSeries struct {
	EMA20 []float64 `json:"ema20,omitempty"`
	MACD  []float64 `json:"macd,omitempty"`
	RSI7  []float64 `json:"rsi7,omitempty"`
	RSI14 []float64 `json:"rsi14,omitempty"`
	ATR14 float64   `json:"atr14,omitempty"`
}

// TimeframeData is one interval's view of a symbol.
type TimeframeData struct {
	Interval   string          `json:"interval"`
	Candles    []Candle        `json:"candles,omitempty"`
	MidPrices  []float64       `json:"mid_prices,omitempty"`
	Indicators IndicatorSeries `json:"indicators"`
}

// MarketSnapshot is a point-in-time view of one symbol. It is immutable
// once produced and consumed by exactly one cycle.
type MarketSnapshot struct {
	Symbol       string        `json:"symbol"`
	Timestamp    time.Time     `json:"timestamp"`
	CurrentPrice float64       `json:"current_price"`
	ShortTerm    TimeframeData `json:"short_term"`
	LongTerm     TimeframeData `json:"long_term"`
	OpenInterest float64       `json:"open_interest"`
	FundingRate  float64       `json:"funding_rate"`
	InPool       bool          `json:"in_pool"`
}

// SnapshotRef is the slim reference to a snapshot kept in cycle records.
type SnapshotRef struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

func (s *MarketSnapshot) Ref() SnapshotRef {
	return SnapshotRef{Symbol: s.Symbol, Timestamp: s.Timestamp, Price: s.CurrentPrice}
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Action is what the oracle proposes for one symbol.
type Action string

const (
	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
	ActionHold       Action = "hold"
	ActionWait       Action = "wait"
)

// IsOpen reports whether the action opens a position.
func (a Action) IsOpen() bool { return a == ActionOpenLong || a == ActionOpenShort }

// IsClose reports whether the action closes a position.
func (a Action) IsClose() bool { return a == ActionCloseLong || a == ActionCloseShort }

// IsNoop reports whether the action requires no execution.
func (a Action) IsNoop() bool { return a == ActionHold || a == ActionWait }

// Side resolves the position side the action refers to.
func (a Action) Side() PositionSide {
	switch a {
	case ActionOpenLong, ActionCloseLong:
		return SideLong
	case ActionOpenShort, ActionCloseShort:
		return SideShort
	}
	return ""
}

// Valid reports whether the action is one the engine understands.
func (a Action) Valid() bool {
	switch a {
	case ActionOpenLong, ActionOpenShort, ActionCloseLong, ActionCloseShort, ActionHold, ActionWait:
		return true
	}
	return false
}

// ProposedAction is one typed decision from the oracle, before risk
// validation. For open actions the stop/target fields are mandatory.
type ProposedAction struct {
	TraderID   string  `json:"trader_id"`
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Leverage   int     `json:"leverage,omitempty"`
	SizeUSD    float64 `json:"position_size_usd,omitempty"`
	EntryHint  float64 `json:"entry_price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Confidence int     `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Position is one open position, owned exclusively by the trader's
// ledger and mutated only through confirmed executions.
type Position struct {
	TraderID   string       `json:"trader_id"`
	Symbol     string       `json:"symbol"`
	Side       PositionSide `json:"side"`
	Quantity   float64      `json:"quantity"`
	SizeUSD    float64      `json:"size_usd"`
	Leverage   int          `json:"leverage"`
	EntryPrice float64      `json:"entry_price"`
	MarkPrice  float64      `json:"mark_price,omitempty"`
	StopLoss   float64      `json:"stop_loss,omitempty"`
	TakeProfit float64      `json:"take_profit,omitempty"`
	OpenedAt   time.Time    `json:"opened_at"`
	// OpenSeq is the cycle record that opened this position; the realized
	// outcome is written back onto that record when the position closes.
	OpenSeq int64 `json:"open_seq,omitempty"`
}

// RiskLimits are the per-trader hard limits loaded from configuration.
type RiskLimits struct {
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
	MaxAllocationPerSymbol float64 `json:"max_allocation_per_symbol"` // fraction of equity
	MajorLeverageCap       int     `json:"major_leverage_cap"`        // BTC/ETH tier
	AltcoinLeverageCap     int     `json:"altcoin_leverage_cap"`
	MinRiskReward          float64 `json:"min_risk_reward"`
}

// RejectReason is the structured reason a proposal failed validation.
type RejectReason string

const (
	RejectDuplicatePosition RejectReason = "DUPLICATE_POSITION"
	RejectExposureLimit     RejectReason = "EXPOSURE_LIMIT"
	RejectSizeLimit         RejectReason = "SIZE_LIMIT"
	RejectRRTooLow          RejectReason = "RR_TOO_LOW"
	RejectLeverageLimit     RejectReason = "LEVERAGE_LIMIT"
	RejectNoPositionToClose RejectReason = "NO_POSITION_TO_CLOSE"
)

// Verdict is the risk validator's answer for one proposal.
type Verdict struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Detail   string       `json:"detail,omitempty"`
}

func Accepted() Verdict { return Verdict{Accepted: true} }

func Rejected(reason RejectReason, detail string) Verdict {
	return Verdict{Accepted: false, Reason: reason, Detail: detail}
}

// Cycle failure reasons for cycles that never reached validation, or
// whose execution failed.
const (
	FailFetch     = "FETCH_FAILURE"
	FailOracle    = "ORACLE_FAILURE"
	FailExecution = "EXECUTION_FAILURE"
)

// ExecutionStatus is the executor's report for an accepted action.
type ExecutionStatus string

const (
	ExecFilled ExecutionStatus = "filled"
	ExecFailed ExecutionStatus = "failed"
)

// ExecutionResult is what the trade executor reports back.
type ExecutionResult struct {
	Status    ExecutionStatus `json:"status"`
	OrderID   string          `json:"order_id,omitempty"`
	FillPrice float64         `json:"fill_price,omitempty"`
	Quantity  float64         `json:"quantity,omitempty"`
	Position  *Position       `json:"position,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

func (r *ExecutionResult) Filled() bool { return r != nil && r.Status == ExecFilled }

// ExitKind classifies how a position was closed.
type ExitKind string

const (
	ExitStop   ExitKind = "stop"
	ExitTarget ExitKind = "target"
	ExitManual ExitKind = "manual"
)

// Outcome is the realized result of a closed position, appended to the
// opening cycle record and fed into the performance window.
type Outcome struct {
	Symbol    string       `json:"symbol"`
	Side      PositionSide `json:"side"`
	ClosedAt  time.Time    `json:"closed_at"`
	PnLUSD    float64      `json:"pnl_usd"`
	RMultiple float64      `json:"r_multiple"`
	Exit      ExitKind     `json:"exit"`
	Win       bool         `json:"win"`
	Reasoning string       `json:"reasoning,omitempty"`
}

// CycleRecord is one append-only entry in the decision log. Seq is
// strictly increasing and gap-free per trader; Cycle groups the records
// produced by one scan pass. Immutable after creation except Outcome.
type CycleRecord struct {
	TraderID   string           `json:"trader_id"`
	Seq        int64            `json:"seq"`
	Cycle      int64            `json:"cycle"`
	Timestamp  time.Time        `json:"timestamp"`
	Symbol     string           `json:"symbol,omitempty"`
	Snapshot   *SnapshotRef     `json:"snapshot,omitempty"`
	Proposed   *ProposedAction  `json:"proposed,omitempty"`
	Verdict    *Verdict         `json:"verdict,omitempty"`
	Execution  *ExecutionResult `json:"execution,omitempty"`
	Outcome    *Outcome         `json:"outcome,omitempty"`
	FailReason string           `json:"fail_reason,omitempty"`
	CoTTrace   string           `json:"cot_trace,omitempty"`
}

// AccountState is the trader's account view fed to the oracle.
type AccountState struct {
	TotalEquity      float64 `json:"total_equity"`
	AvailableBalance float64 `json:"available_balance"`
	TotalPnL         float64 `json:"total_pnl"`
	TotalPnLPct      float64 `json:"total_pnl_pct"`
	MarginUsed       float64 `json:"margin_used"`
	MarginUsedPct    float64 `json:"margin_used_pct"`
	PositionCount    int     `json:"position_count"`
}

// OracleRequest is the full context for one oracle call.
type OracleRequest struct {
	TraderID    string
	TraderName  string
	Cycle       int64
	Account     AccountState
	Positions   []Position
	Snapshots   map[string]*MarketSnapshot
	Candidates  []string
	Performance PerformanceSummary
	Outcomes    []Outcome
	Limits      RiskLimits
}

// OracleDecision is the parsed oracle response: a free-form reasoning
// trace plus the typed proposals extracted from it.
type OracleDecision struct {
	CoTTrace  string
	Proposals []ProposedAction
}

// PerformanceSummary condenses the trailing outcome window for the
// oracle prompt. The engine never acts on these numbers itself.
type PerformanceSummary struct {
	CycleCount   int     `json:"cycle_count"`
	WinRate      float64 `json:"win_rate"`
	TotalPnL     float64 `json:"total_pnl"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
}
