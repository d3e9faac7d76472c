// Package decisionlog persists the append-only per-trader decision
// history. Records are immutable once written except for the realized
// outcome, which is backfilled onto the opening record when the
// position closes.
package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ai-trader-arena/internal/types"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("decisionlog: record not found")

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS cycle_records (
	trader_id   TEXT    NOT NULL,
	seq         INTEGER NOT NULL,
	cycle       INTEGER NOT NULL,
	ts          INTEGER NOT NULL,
	symbol      TEXT    NOT NULL DEFAULT '',
	snapshot    TEXT,
	proposed    TEXT,
	verdict     TEXT,
	execution   TEXT,
	outcome     TEXT,
	fail_reason TEXT    NOT NULL DEFAULT '',
	cot_trace   TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (trader_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_records_trader_ts ON cycle_records (trader_id, ts);
`

// Open creates or opens the decision log database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init decision log schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Append writes one cycle record. Seq must be unique per trader; the
// primary key rejects duplicates so a sequencing bug fails loudly
// instead of overwriting history.
func (s *Store) Append(ctx context.Context, r *types.CycleRecord) error {
	snapshot, err := marshalNullable(r.Snapshot)
	if err != nil {
		return err
	}
	proposed, err := marshalNullable(r.Proposed)
	if err != nil {
		return err
	}
	verdict, err := marshalNullable(r.Verdict)
	if err != nil {
		return err
	}
	execution, err := marshalNullable(r.Execution)
	if err != nil {
		return err
	}
	outcome, err := marshalNullable(r.Outcome)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cycle_records
			(trader_id, seq, cycle, ts, symbol, snapshot, proposed, verdict, execution, outcome, fail_reason, cot_trace)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TraderID, r.Seq, r.Cycle, r.Timestamp.UnixMilli(), r.Symbol,
		snapshot, proposed, verdict, execution, outcome, r.FailReason, r.CoTTrace)
	if err != nil {
		return fmt.Errorf("append cycle record %s/%d: %w", r.TraderID, r.Seq, err)
	}
	return nil
}

// SetOutcome backfills the realized outcome onto the record that opened
// the position.
func (s *Store) SetOutcome(ctx context.Context, traderID string, seq int64, o types.Outcome) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE cycle_records SET outcome = ? WHERE trader_id = ? AND seq = ?`,
		string(b), traderID, seq)
	if err != nil {
		return fmt.Errorf("set outcome %s/%d: %w", traderID, seq, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns up to limit records for the trader, newest first.
func (s *Store) List(ctx context.Context, traderID string, limit int) ([]types.CycleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trader_id, seq, cycle, ts, symbol, snapshot, proposed, verdict, execution, outcome, fail_reason, cot_trace
		FROM cycle_records WHERE trader_id = ? ORDER BY seq DESC LIMIT ?`,
		traderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Latest returns the most recent record for the trader.
func (s *Store) Latest(ctx context.Context, traderID string) (*types.CycleRecord, error) {
	records, err := s.List(ctx, traderID, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// LastSeq returns the highest sequence number written for the trader,
// or 0 when the trader has no history.
func (s *Store) LastSeq(ctx context.Context, traderID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM cycle_records WHERE trader_id = ?`, traderID).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// LastCycle returns the highest cycle number written for the trader.
func (s *Store) LastCycle(ctx context.Context, traderID string) (int64, error) {
	var cycle sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(cycle) FROM cycle_records WHERE trader_id = ?`, traderID).Scan(&cycle)
	if err != nil {
		return 0, err
	}
	return cycle.Int64, nil
}

// RecentOutcomes returns the trader's last n realized outcomes, oldest
// first, for rebuilding the performance window after a restart.
func (s *Store) RecentOutcomes(ctx context.Context, traderID string, n int) ([]types.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome FROM cycle_records
		WHERE trader_id = ? AND outcome IS NOT NULL
		ORDER BY seq DESC LIMIT ?`,
		traderID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []types.Outcome
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var o types.Outcome
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		newestFirst = append(newestFirst, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]types.Outcome, len(newestFirst))
	for i, o := range newestFirst {
		out[len(out)-1-i] = o
	}
	return out, nil
}

// Traders lists the distinct trader IDs present in the log.
func (s *Store) Traders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT trader_id FROM cycle_records ORDER BY trader_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListSince returns all records for the trader with ts >= from, oldest
// first. Used by the daily report.
func (s *Store) ListSince(ctx context.Context, traderID string, from time.Time) ([]types.CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trader_id, seq, cycle, ts, symbol, snapshot, proposed, verdict, execution, outcome, fail_reason, cot_trace
		FROM cycle_records WHERE trader_id = ? AND ts >= ? ORDER BY seq ASC`,
		traderID, from.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]types.CycleRecord, error) {
	var out []types.CycleRecord
	for rows.Next() {
		var (
			r                                              types.CycleRecord
			ts                                             int64
			snapshot, proposed, verdict, execution, result sql.NullString
		)
		if err := rows.Scan(&r.TraderID, &r.Seq, &r.Cycle, &ts, &r.Symbol,
			&snapshot, &proposed, &verdict, &execution, &result, &r.FailReason, &r.CoTTrace); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		if err := unmarshalNullable(snapshot, &r.Snapshot); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(proposed, &r.Proposed); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(verdict, &r.Verdict); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(execution, &r.Execution); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(result, &r.Outcome); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalNullable[T any](raw sql.NullString, dst **T) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw.String), &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}
