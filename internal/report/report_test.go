package report

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ai-trader-arena/internal/decisionlog"
	"ai-trader-arena/internal/types"
)

func TestSummarizeDay(t *testing.T) {
	dir := t.TempDir()
	log, err := decisionlog.Open(filepath.Join(dir, "decisions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()
	ctx := context.Background()

	day := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	log.Append(ctx, &types.CycleRecord{
		TraderID: "alpha", Seq: 1, Cycle: 1, Timestamp: day, Symbol: "BTCUSDT",
		Proposed:  &types.ProposedAction{Symbol: "BTCUSDT", Action: types.ActionOpenLong},
		Verdict:   &types.Verdict{Accepted: true},
		Execution: &types.ExecutionResult{Status: types.ExecFilled},
		Outcome:   &types.Outcome{PnLUSD: 75, Win: true},
	})
	log.Append(ctx, &types.CycleRecord{
		TraderID: "alpha", Seq: 2, Cycle: 2, Timestamp: day.Add(time.Hour), Symbol: "ETHUSDT",
		Proposed: &types.ProposedAction{Symbol: "ETHUSDT", Action: types.ActionOpenShort},
		Verdict:  &types.Verdict{Accepted: false, Reason: types.RejectRRTooLow},
	})
	log.Append(ctx, &types.CycleRecord{
		TraderID: "alpha", Seq: 3, Cycle: 3, Timestamp: day.Add(10 * time.Hour), Symbol: "SOLUSDT",
		Proposed: &types.ProposedAction{Symbol: "SOLUSDT", Action: types.ActionHold},
		Verdict:  &types.Verdict{Accepted: true},
	})
	// A record from the following day must not leak into the report.
	log.Append(ctx, &types.CycleRecord{
		TraderID: "alpha", Seq: 4, Cycle: 4, Timestamp: day.Add(30 * time.Hour),
		Proposed: &types.ProposedAction{Symbol: "XRPUSDT", Action: types.ActionWait},
		Verdict:  &types.Verdict{Accepted: true},
	})

	s := NewSummarizer(log, filepath.Join(dir, "reports"))
	path, err := s.SummarizeDay(ctx, day)
	if err != nil {
		t.Fatalf("SummarizeDay: %v", err)
	}
	if filepath.Base(path) != "2026-08-26.csv" {
		t.Errorf("path = %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	got := rows[1]
	want := []string{"alpha", "3", "3", "2", "1", "1", "0", "1", "1", "75.00"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("col %s = %q, want %q", rows[0][i], got[i], want[i])
		}
	}
}

func TestSummarizeDayEmpty(t *testing.T) {
	dir := t.TempDir()
	log, err := decisionlog.Open(filepath.Join(dir, "decisions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	s := NewSummarizer(log, filepath.Join(dir, "reports"))
	path, err := s.SummarizeDay(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("SummarizeDay: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty for a day with no records", path)
	}
}
