// Package ledger tracks a single trader's open positions. It is the
// only authority on position state: entries change solely through
// confirmed execution results, never on proposals or verdicts.
package ledger

import (
	"sync"

	"ai-trader-arena/internal/types"
)

// Ledger holds at most one position per symbol. Safe for concurrent use;
// readers get copies, never references into internal state.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]types.Position
}

func New() *Ledger {
	return &Ledger{positions: make(map[string]types.Position)}
}

// Get returns the open position on symbol, if any.
func (l *Ledger) Get(symbol string) (types.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Open records a confirmed fill. It returns false when a position on the
// symbol already exists; the caller should treat that as a reconciliation
// bug, since validation rejects duplicate opens.
func (l *Ledger) Open(p types.Position) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.positions[p.Symbol]; exists {
		return false
	}
	l.positions[p.Symbol] = p
	return true
}

// Close removes the position on symbol and returns it.
func (l *Ledger) Close(symbol string) (types.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if ok {
		delete(l.positions, symbol)
	}
	return p, ok
}

// UpdateMark refreshes the mark price on an open position.
func (l *Ledger) UpdateMark(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[symbol]; ok {
		p.MarkPrice = price
		l.positions[symbol] = p
	}
}

// ListOpen returns a copy of all open positions.
func (l *Ledger) ListOpen() []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// Count returns the number of open positions.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Replace swaps the full position set, used when restoring state from
// the exchange or the decision log at startup.
func (l *Ledger) Replace(positions []types.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = make(map[string]types.Position, len(positions))
	for _, p := range positions {
		l.positions[p.Symbol] = p
	}
}
