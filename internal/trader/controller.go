// Package trader runs the decision cycle for one competing trader:
// fetch market snapshots, ask the oracle, validate proposals, execute
// accepted ones, and record everything in the decision log.
package trader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ai-trader-arena/internal/decisionlog"
	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/ledger"
	"ai-trader-arena/internal/logger"
	"ai-trader-arena/internal/perf"
	"ai-trader-arena/internal/risk"
	"ai-trader-arena/internal/trace"
	"ai-trader-arena/internal/types"
)

// State is the controller's place in the cycle, exposed for the status
// API.
type State string

const (
	StateIdle       State = "IDLE"
	StateFetching   State = "FETCHING"
	StateDeciding   State = "DECIDING"
	StateValidating State = "VALIDATING"
	StateExecuting  State = "EXECUTING"
	StateRecording  State = "RECORDING"
	StateErrored    State = "ERRORED"
)

// markUpdater is implemented by executors that track simulated marks.
type markUpdater interface {
	MarkPrice(symbol string, price float64)
}

// Options carries the per-trader knobs that are not collaborators.
type Options struct {
	TraderID      string
	TraderName    string
	ScanInterval  time.Duration
	OracleTimeout time.Duration
	FetchTimeout  time.Duration
	Limits        types.RiskLimits
	// InitialBalance anchors total pnl; competition accounts start equal.
	InitialBalance float64
	// MinPoolOpenInterestUSD filters snapshot candidates by liquidity.
	MinPoolOpenInterestUSD float64
}

type Controller struct {
	opts     Options
	oracle   interfaces.Oracle
	executor interfaces.Executor
	provider interfaces.SnapshotProvider
	pool     interfaces.PoolProvider
	log      *decisionlog.Store
	ledger   *ledger.Ledger
	window   *perf.Window

	// pendingOpen holds a filled open between execution and the seq
	// assignment in record. Only the cycle goroutine touches it.
	pendingOpen *types.Position

	mu        sync.Mutex
	state     State
	cycle     int64
	seq       int64
	lastError string
	lastRunAt time.Time
}

func New(opts Options, oracle interfaces.Oracle, executor interfaces.Executor,
	provider interfaces.SnapshotProvider, pool interfaces.PoolProvider,
	log *decisionlog.Store) *Controller {
	return &Controller{
		opts:     opts,
		oracle:   oracle,
		executor: executor,
		provider: provider,
		pool:     pool,
		log:      log,
		ledger:   ledger.New(),
		window:   perf.NewWindow(perf.DefaultWindowSize),
		state:    StateIdle,
	}
}

// Run restores state and then loops cycles until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.restore(ctx); err != nil {
		return fmt.Errorf("restore trader %s: %w", c.opts.TraderID, err)
	}

	ticker := time.NewTicker(c.opts.ScanInterval)
	defer ticker.Stop()

	// First cycle runs immediately rather than a full interval late.
	c.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			c.setState(StateIdle)
			return ctx.Err()
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// restore rebuilds sequence counters, the performance window and the
// position ledger after a restart, so a crash never resets history.
func (c *Controller) restore(ctx context.Context) error {
	lastSeq, err := c.log.LastSeq(ctx, c.opts.TraderID)
	if err != nil {
		return err
	}
	lastCycle, err := c.log.LastCycle(ctx, c.opts.TraderID)
	if err != nil {
		return err
	}
	outcomes, err := c.log.RecentOutcomes(ctx, c.opts.TraderID, perf.DefaultWindowSize)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		c.window.Add(o)
	}

	positions, err := c.executor.ListPositions(ctx)
	if err != nil {
		// A transient exchange outage at startup must not keep the trader
		// down. Start with an empty ledger; reconcile reports any venue
		// positions the ledger does not hold on the next cycle.
		logger.Warn(ctx, "Restore could not list exchange positions, starting with an empty ledger",
			"trader_id", c.opts.TraderID,
			"error", err.Error(),
		)
		positions = nil
	}
	c.ledger.Replace(positions)

	c.mu.Lock()
	c.seq = lastSeq
	c.cycle = lastCycle
	c.mu.Unlock()

	logger.Info(ctx, "Trader state restored",
		"trader_id", c.opts.TraderID,
		"last_seq", lastSeq,
		"last_cycle", lastCycle,
		"window", len(outcomes),
		"open_positions", len(positions),
	)
	return nil
}

// runCycle executes one full decision cycle. Failures mark the cycle
// ERRORED and leave position state untouched; the next tick starts
// clean.
func (c *Controller) runCycle(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "trader-cycle")
	defer span.End()

	cycle := c.nextCycle()

	c.setState(StateFetching)
	snapshots, candidates, err := c.fetchMarket(ctx)
	if err != nil {
		c.failCycle(ctx, cycle, types.FailFetch, err)
		return
	}

	c.reconcile(ctx, snapshots)
	c.closeTriggered(ctx, cycle, snapshots)

	positions := c.refreshMarks(snapshots)
	account, err := c.Account(ctx)
	if err != nil {
		c.failCycle(ctx, cycle, types.FailFetch, err)
		return
	}

	c.setState(StateDeciding)
	decision, err := c.decide(ctx, cycle, account, positions, snapshots, candidates)
	if err != nil {
		c.failCycle(ctx, cycle, types.FailOracle, err)
		return
	}

	c.processProposals(ctx, cycle, decision, snapshots, account)

	c.mu.Lock()
	c.state = StateIdle
	c.lastError = ""
	c.lastRunAt = time.Now().UTC()
	c.mu.Unlock()
}

// fetchMarket snapshots every pool symbol plus any symbol we hold a
// position in, concurrently. Candidates are the pool symbols that pass
// the liquidity floor.
func (c *Controller) fetchMarket(ctx context.Context) (map[string]*types.MarketSnapshot, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	poolSymbols, err := c.pool.Symbols(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("pool symbols: %w", err)
	}

	want := map[string]bool{}
	for _, s := range poolSymbols {
		want[s] = true
	}
	for _, p := range c.ledger.ListOpen() {
		want[p.Symbol] = true
	}

	var mu sync.Mutex
	snapshots := make(map[string]*types.MarketSnapshot, len(want))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for symbol := range want {
		symbol := symbol
		g.Go(func() error {
			snap, err := c.provider.FetchSnapshot(gctx, symbol)
			if err != nil {
				return err
			}
			mu.Lock()
			snapshots[symbol] = snap
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var candidates []string
	for _, s := range poolSymbols {
		snap := snapshots[s]
		if snap == nil {
			continue
		}
		if c.opts.MinPoolOpenInterestUSD > 0 && snap.OpenInterest > 0 &&
			snap.OpenInterest < c.opts.MinPoolOpenInterestUSD {
			continue
		}
		candidates = append(candidates, s)
	}
	sort.Strings(candidates)
	return snapshots, candidates, nil
}

// reconcile drops ledger positions the exchange no longer reports.
// Those were closed externally (a trigger order fired, or a manual
// intervention); their outcome is realized here so the feedback window
// stays truthful. The opposite divergence, an exchange position the
// ledger never confirmed, is logged but not adopted.
func (c *Controller) reconcile(ctx context.Context, snapshots map[string]*types.MarketSnapshot) {
	exchangePositions, err := c.executor.ListPositions(ctx)
	if err != nil {
		logger.Warn(ctx, "Reconciliation skipped, cannot list exchange positions",
			"trader_id", c.opts.TraderID,
			"error", err.Error(),
		)
		return
	}
	onExchange := make(map[string]bool, len(exchangePositions))
	for _, p := range exchangePositions {
		onExchange[p.Symbol] = true
		if _, held := c.ledger.Get(p.Symbol); !held {
			// An open whose protection orders failed to place leaves a fill
			// on the venue that was never confirmed into the ledger. Report
			// the divergence; the ledger only grows through confirmed
			// executions, so it is never adopted here.
			logger.Risk(ctx, c.opts.TraderID, p.Symbol, "untracked_exchange_position",
				"side", string(p.Side),
				"quantity", p.Quantity,
			)
		}
	}

	for _, held := range c.ledger.ListOpen() {
		if onExchange[held.Symbol] {
			continue
		}
		pos, ok := c.ledger.Close(held.Symbol)
		if !ok {
			continue
		}
		exitPrice := pos.MarkPrice
		if snap := snapshots[pos.Symbol]; snap != nil {
			exitPrice = snap.CurrentPrice
		}
		outcome := computeOutcome(pos, exitPrice, classifyExit(pos, exitPrice))
		c.settleOutcome(ctx, pos, outcome)

		logger.Risk(ctx, c.opts.TraderID, pos.Symbol, "position_closed_externally",
			"exit", string(outcome.Exit),
			"pnl_usd", outcome.PnLUSD,
		)
	}
}

// closeTriggered enforces stops and targets the venue did not: the
// dry-run executor never fires trigger orders, and a live trader whose
// protection order failed still must exit.
func (c *Controller) closeTriggered(ctx context.Context, cycle int64, snapshots map[string]*types.MarketSnapshot) {
	for _, pos := range c.ledger.ListOpen() {
		snap := snapshots[pos.Symbol]
		if snap == nil {
			continue
		}
		exit := crossedProtection(pos, snap.CurrentPrice)
		if exit == "" {
			continue
		}

		action := types.ProposedAction{
			TraderID:  c.opts.TraderID,
			Symbol:    pos.Symbol,
			Action:    closeActionFor(pos.Side),
			Reasoning: fmt.Sprintf("%s level hit at %.4f", exit, snap.CurrentPrice),
		}
		result, err := c.executor.Execute(ctx, action, snap)
		if err != nil || !result.Filled() {
			reason := "executor error"
			if result != nil {
				reason = result.Reason
			}
			logger.Risk(ctx, c.opts.TraderID, pos.Symbol, "protective_close_failed",
				"reason", reason,
			)
			continue
		}

		closed, ok := c.ledger.Close(pos.Symbol)
		if !ok {
			continue
		}
		outcome := computeOutcome(closed, result.FillPrice, exit)
		c.settleOutcome(ctx, closed, outcome)
		c.record(ctx, &types.CycleRecord{
			TraderID:  c.opts.TraderID,
			Cycle:     cycle,
			Timestamp: time.Now().UTC(),
			Symbol:    pos.Symbol,
			Snapshot:  ptr(snap.Ref()),
			Proposed:  &action,
			Verdict:   ptr(types.Accepted()),
			Execution: result,
		})

		logger.Risk(ctx, c.opts.TraderID, pos.Symbol, "protective_close",
			"exit", string(exit),
			"pnl_usd", outcome.PnLUSD,
		)
	}
}

func (c *Controller) decide(ctx context.Context, cycle int64, account types.AccountState,
	positions []types.Position, snapshots map[string]*types.MarketSnapshot,
	candidates []string) (*types.OracleDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OracleTimeout)
	defer cancel()

	return c.oracle.Decide(ctx, types.OracleRequest{
		TraderID:    c.opts.TraderID,
		TraderName:  c.opts.TraderName,
		Cycle:       cycle,
		Account:     account,
		Positions:   positions,
		Snapshots:   snapshots,
		Candidates:  candidates,
		Performance: c.window.Summary(),
		Outcomes:    c.window.Entries(),
		Limits:      c.opts.Limits,
	})
}

// processProposals validates, executes and records each proposal.
// Closes run before opens so freed margin and exposure slots are
// available within the same cycle.
func (c *Controller) processProposals(ctx context.Context, cycle int64,
	decision *types.OracleDecision, snapshots map[string]*types.MarketSnapshot,
	account types.AccountState) {

	proposals := orderProposals(decision.Proposals)
	cot := decision.CoTTrace

	if len(proposals) == 0 {
		c.setState(StateRecording)
		c.record(ctx, &types.CycleRecord{
			TraderID:  c.opts.TraderID,
			Cycle:     cycle,
			Timestamp: time.Now().UTC(),
			CoTTrace:  cot,
		})
		return
	}

	for _, p := range proposals {
		snap := snapshots[p.Symbol]

		c.setState(StateValidating)
		verdict := c.validate(p, snap, account)

		rec := &types.CycleRecord{
			TraderID:  c.opts.TraderID,
			Cycle:     cycle,
			Timestamp: time.Now().UTC(),
			Symbol:    p.Symbol,
			Proposed:  ptr(p),
			Verdict:   &verdict,
			CoTTrace:  cot,
		}
		cot = "" // the trace is stored once per cycle, on the first record
		if snap != nil {
			rec.Snapshot = ptr(snap.Ref())
		}

		if verdict.Accepted && !p.Action.IsNoop() {
			if ctx.Err() != nil {
				// Shutting down: never start an order we cannot record.
				return
			}
			c.setState(StateExecuting)
			c.execute(ctx, p, snap, rec)
		} else if !verdict.Accepted {
			logger.Risk(ctx, c.opts.TraderID, p.Symbol, "proposal_rejected",
				"reason", string(verdict.Reason),
				"detail", verdict.Detail,
			)
		}

		logger.Decision(ctx, c.opts.TraderID, p.Symbol, string(p.Action), p.Confidence, p.Reasoning)

		c.setState(StateRecording)
		c.record(ctx, rec)
	}
}

func (c *Controller) validate(p types.ProposedAction, snap *types.MarketSnapshot, account types.AccountState) types.Verdict {
	var mark float64
	if snap != nil {
		mark = snap.CurrentPrice
	}
	return risk.Validate(p, risk.State{
		Open:             c.ledger.ListOpen(),
		Equity:           account.TotalEquity,
		AvailableBalance: account.AvailableBalance,
		MarkPrice:        mark,
	}, c.opts.Limits)
}

// execute places the order and, only on a confirmed fill, mutates the
// ledger and settles outcomes.
func (c *Controller) execute(ctx context.Context, p types.ProposedAction,
	snap *types.MarketSnapshot, rec *types.CycleRecord) {

	if snap == nil {
		rec.Execution = &types.ExecutionResult{
			Status: types.ExecFailed,
			Reason: "no market snapshot for " + p.Symbol,
		}
		rec.FailReason = types.FailExecution
		return
	}

	result, err := c.executor.Execute(ctx, p, snap)
	if err != nil {
		rec.Execution = &types.ExecutionResult{Status: types.ExecFailed, Reason: err.Error()}
		rec.FailReason = types.FailExecution
		return
	}
	rec.Execution = result
	if !result.Filled() {
		rec.FailReason = types.FailExecution
		return
	}

	switch {
	case p.Action.IsOpen():
		pos := *result.Position
		c.pendingOpen = &pos // OpenSeq pinned when the record gets its seq
	case p.Action.IsClose():
		closed, ok := c.ledger.Close(p.Symbol)
		if !ok {
			return
		}
		outcome := computeOutcome(closed, result.FillPrice, types.ExitManual)
		outcome.Reasoning = p.Reasoning
		c.settleOutcome(ctx, closed, outcome)
		rec.Outcome = &outcome
	}
}

// record assigns the next sequence number and appends the record. A
// fill whose open is pending gets its OpenSeq pinned to this record.
func (c *Controller) record(ctx context.Context, rec *types.CycleRecord) {
	c.mu.Lock()
	c.seq++
	rec.Seq = c.seq
	c.mu.Unlock()

	if c.pendingOpen != nil {
		pos := *c.pendingOpen
		pos.OpenSeq = rec.Seq
		if !c.ledger.Open(pos) {
			logger.Risk(ctx, c.opts.TraderID, pos.Symbol, "ledger_open_conflict")
		}
		c.pendingOpen = nil
	}

	if err := c.log.Append(ctx, rec); err != nil {
		logger.ErrorWithErr(ctx, "Failed to append cycle record", err,
			"trader_id", c.opts.TraderID,
			"seq", rec.Seq,
		)
	}
}

// settleOutcome pushes a realized outcome into the feedback window and
// backfills the record that opened the position.
func (c *Controller) settleOutcome(ctx context.Context, pos types.Position, outcome types.Outcome) {
	c.window.Add(outcome)
	if pos.OpenSeq == 0 {
		return
	}
	if err := c.log.SetOutcome(ctx, c.opts.TraderID, pos.OpenSeq, outcome); err != nil {
		logger.Warn(ctx, "Failed to backfill outcome",
			"trader_id", c.opts.TraderID,
			"open_seq", pos.OpenSeq,
			"error", err.Error(),
		)
	}
}

// failCycle records a cycle that never produced proposals.
func (c *Controller) failCycle(ctx context.Context, cycle int64, reason string, err error) {
	logger.ErrorWithErr(ctx, "Cycle failed", err,
		"trader_id", c.opts.TraderID,
		"cycle", cycle,
		"fail_reason", reason,
	)
	c.record(ctx, &types.CycleRecord{
		TraderID:   c.opts.TraderID,
		Cycle:      cycle,
		Timestamp:  time.Now().UTC(),
		FailReason: reason,
	})
	c.mu.Lock()
	c.state = StateErrored
	c.lastError = err.Error()
	c.lastRunAt = time.Now().UTC()
	c.mu.Unlock()
}

// refreshMarks updates ledger (and simulated) marks from the fresh
// snapshots and returns the updated open positions.
func (c *Controller) refreshMarks(snapshots map[string]*types.MarketSnapshot) []types.Position {
	updater, _ := c.executor.(markUpdater)
	for _, p := range c.ledger.ListOpen() {
		if snap := snapshots[p.Symbol]; snap != nil {
			c.ledger.UpdateMark(p.Symbol, snap.CurrentPrice)
			if updater != nil {
				updater.MarkPrice(p.Symbol, snap.CurrentPrice)
			}
		}
	}
	return c.ledger.ListOpen()
}

func (c *Controller) nextCycle() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycle++
	return c.cycle
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Status is the live view served by the HTTP API.
type Status struct {
	TraderID   string           `json:"trader_id"`
	TraderName string           `json:"trader_name"`
	State      State            `json:"state"`
	Cycle      int64            `json:"cycle"`
	LastRunAt  time.Time        `json:"last_run_at,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
	Positions  []types.Position `json:"positions"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		TraderID:   c.opts.TraderID,
		TraderName: c.opts.TraderName,
		State:      c.state,
		Cycle:      c.cycle,
		LastRunAt:  c.lastRunAt,
		LastError:  c.lastError,
		Positions:  c.ledger.ListOpen(),
	}
}

// TraderID returns the controller's trader id.
func (c *Controller) TraderID() string { return c.opts.TraderID }

// TraderName returns the display name.
func (c *Controller) TraderName() string { return c.opts.TraderName }

// Account returns the executor's account view anchored to the initial
// balance, so total pnl is comparable across traders.
func (c *Controller) Account(ctx context.Context) (types.AccountState, error) {
	state, err := c.executor.Account(ctx)
	if err != nil {
		return types.AccountState{}, err
	}
	if c.opts.InitialBalance > 0 {
		state.TotalPnL = state.TotalEquity - c.opts.InitialBalance
		state.TotalPnLPct = state.TotalPnL / c.opts.InitialBalance * 100
	}
	state.PositionCount = c.ledger.Count()
	return state, nil
}

// Performance exposes the current feedback window summary.
func (c *Controller) Performance() types.PerformanceSummary {
	return c.window.Summary()
}

// orderProposals sorts closes before opens; noops last. Within a group
// the oracle's order is preserved.
func orderProposals(ps []types.ProposedAction) []types.ProposedAction {
	out := make([]types.ProposedAction, len(ps))
	copy(out, ps)
	sort.SliceStable(out, func(i, j int) bool {
		return proposalRank(out[i].Action) < proposalRank(out[j].Action)
	})
	return out
}

func proposalRank(a types.Action) int {
	switch {
	case a.IsClose():
		return 0
	case a.IsOpen():
		return 1
	default:
		return 2
	}
}

func closeActionFor(side types.PositionSide) types.Action {
	if side == types.SideShort {
		return types.ActionCloseShort
	}
	return types.ActionCloseLong
}

// crossedProtection reports which protective level the price has
// crossed, or "" when the position is still inside its bracket.
func crossedProtection(p types.Position, price float64) types.ExitKind {
	if price <= 0 {
		return ""
	}
	switch p.Side {
	case types.SideLong:
		if p.StopLoss > 0 && price <= p.StopLoss {
			return types.ExitStop
		}
		if p.TakeProfit > 0 && price >= p.TakeProfit {
			return types.ExitTarget
		}
	case types.SideShort:
		if p.StopLoss > 0 && price >= p.StopLoss {
			return types.ExitStop
		}
		if p.TakeProfit > 0 && price <= p.TakeProfit {
			return types.ExitTarget
		}
	}
	return ""
}

// classifyExit infers how an externally closed position exited from
// where the price sits relative to its bracket.
func classifyExit(p types.Position, exitPrice float64) types.ExitKind {
	if kind := crossedProtection(p, exitPrice); kind != "" {
		return kind
	}
	return types.ExitManual
}

// computeOutcome realizes pnl and the R-multiple for a closed position.
// The R-multiple is pnl over the USD amount risked at entry; positions
// without a stop report 0.
func computeOutcome(p types.Position, exitPrice float64, exit types.ExitKind) types.Outcome {
	diff := exitPrice - p.EntryPrice
	if p.Side == types.SideShort {
		diff = -diff
	}
	pnl := diff * p.Quantity

	var r float64
	if p.StopLoss > 0 {
		riskUSD := (p.EntryPrice - p.StopLoss) * p.Quantity
		if p.Side == types.SideShort {
			riskUSD = (p.StopLoss - p.EntryPrice) * p.Quantity
		}
		if riskUSD > 0 {
			r = pnl / riskUSD
		}
	}

	return types.Outcome{
		Symbol:    p.Symbol,
		Side:      p.Side,
		ClosedAt:  time.Now().UTC(),
		PnLUSD:    pnl,
		RMultiple: r,
		Exit:      exit,
		Win:       pnl > 0,
	}
}

func ptr[T any](v T) *T { return &v }
