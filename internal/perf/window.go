// Package perf maintains the trailing window of realized trade outcomes
// that is fed back into the oracle prompt. The window only informs the
// oracle; nothing in the engine branches on its numbers.
package perf

import (
	"math"
	"sync"

	"ai-trader-arena/internal/types"
)

// DefaultWindowSize is how many closed trades the feedback loop sees.
const DefaultWindowSize = 20

// Window is a fixed-capacity ring of closed-trade outcomes. Once full,
// each new outcome evicts the oldest.
type Window struct {
	mu   sync.Mutex
	buf  []types.Outcome
	head int // next write slot
	size int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{buf: make([]types.Outcome, capacity)}
}

// Add appends an outcome, evicting the oldest entry when full.
func (w *Window) Add(o types.Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[w.head] = o
	w.head = (w.head + 1) % len(w.buf)
	if w.size < len(w.buf) {
		w.size++
	}
}

// Entries returns the window contents, oldest first.
func (w *Window) Entries() []types.Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]types.Outcome, 0, w.size)
	start := w.head - w.size
	if start < 0 {
		start += len(w.buf)
	}
	for i := 0; i < w.size; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}

// Len returns the number of outcomes currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Summary computes the aggregate statistics over the current window.
func (w *Window) Summary() types.PerformanceSummary {
	entries := w.Entries()

	s := types.PerformanceSummary{CycleCount: len(entries)}
	if len(entries) == 0 {
		return s
	}

	var wins, losses int
	var winSum, lossSum float64
	rs := make([]float64, 0, len(entries))
	for _, o := range entries {
		s.TotalPnL += o.PnLUSD
		rs = append(rs, o.RMultiple)
		if o.Win {
			wins++
			winSum += o.PnLUSD
		} else {
			losses++
			lossSum += -o.PnLUSD
		}
	}

	s.WinRate = float64(wins) / float64(len(entries))
	if wins > 0 {
		s.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		s.AvgLoss = lossSum / float64(losses)
	}
	if lossSum > 0 {
		s.ProfitFactor = winSum / lossSum
	} else if winSum > 0 {
		// No losses yet. Report the raw win sum instead of +Inf so the
		// summary stays JSON-encodable; AvgLoss == 0 marks the case.
		s.ProfitFactor = winSum
	}
	s.SharpeRatio = sharpe(rs)
	return s
}

// sharpe is the mean over standard deviation of the R-multiples. With
// fewer than two samples or zero variance it reports 0.
func sharpe(rs []float64) float64 {
	if len(rs) < 2 {
		return 0
	}
	var sum float64
	for _, r := range rs {
		sum += r
	}
	mean := sum / float64(len(rs))

	var varSum float64
	for _, r := range rs {
		d := r - mean
		varSum += d * d
	}
	std := math.Sqrt(varSum / float64(len(rs)))
	if std == 0 {
		return 0
	}
	return mean / std
}
