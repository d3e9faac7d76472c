// Package report generates daily CSV summaries of trader activity from
// the decision log: one row per trader with proposal, execution and
// realized pnl totals.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ai-trader-arena/internal/decisionlog"
	"ai-trader-arena/internal/types"
)

type Summarizer struct {
	log    *decisionlog.Store
	outDir string
}

func NewSummarizer(log *decisionlog.Store, outDir string) *Summarizer {
	if outDir == "" {
		outDir = "reports"
	}
	return &Summarizer{log: log, outDir: outDir}
}

// traderDay aggregates one trader's records for the reporting day.
type traderDay struct {
	TraderID    string
	Cycles      map[int64]bool
	Proposals   int
	Accepted    int
	Rejected    int
	Executed    int
	Failed      int
	Closed      int
	Wins        int
	RealizedPnL float64
}

// SummarizeDay writes the CSV for the UTC day containing t and returns
// its path. Days with no records produce no file and no error.
func (s *Summarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	traders, err := s.log.Traders(ctx)
	if err != nil {
		return "", err
	}

	var rows []*traderDay
	for _, id := range traders {
		records, err := s.log.ListSince(ctx, id, dayStart)
		if err != nil {
			return "", err
		}
		day := &traderDay{TraderID: id, Cycles: map[int64]bool{}}
		for _, r := range records {
			if !r.Timestamp.Before(dayEnd) {
				continue
			}
			aggregate(day, r)
		}
		if len(day.Cycles) > 0 {
			rows = append(rows, day)
		}
	}
	if len(rows) == 0 {
		return "", nil
	}

	outPath := filepath.Join(s.outDir, dayStart.Format("2006-01-02")+".csv")
	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()

	headers := []string{"trader_id", "cycles", "proposals", "accepted", "rejected", "executed", "failed", "closed_trades", "wins", "realized_pnl"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	for _, d := range rows {
		rec := []string{
			d.TraderID,
			strconv.Itoa(len(d.Cycles)),
			strconv.Itoa(d.Proposals),
			strconv.Itoa(d.Accepted),
			strconv.Itoa(d.Rejected),
			strconv.Itoa(d.Executed),
			strconv.Itoa(d.Failed),
			strconv.Itoa(d.Closed),
			strconv.Itoa(d.Wins),
			fmt.Sprintf("%.2f", d.RealizedPnL),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	return outPath, w.Error()
}

// SummarizeToday is SummarizeDay for the current UTC day.
func (s *Summarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, time.Now().UTC())
}

func aggregate(day *traderDay, r types.CycleRecord) {
	day.Cycles[r.Cycle] = true
	if r.Proposed != nil {
		day.Proposals++
	}
	if r.Verdict != nil {
		if r.Verdict.Accepted {
			day.Accepted++
		} else {
			day.Rejected++
		}
	}
	if r.Execution != nil {
		if r.Execution.Filled() {
			day.Executed++
		} else {
			day.Failed++
		}
	}
	if r.Outcome != nil {
		day.Closed++
		day.RealizedPnL += r.Outcome.PnLUSD
		if r.Outcome.Win {
			day.Wins++
		}
	}
}
