package querylog

import (
	"context"
	"fmt"
	"time"
)

// Record is one completed query.
type Record struct {
	QueryID   string    `json:"query_id"`
	Timestamp time.Time `json:"timestamp"`
	Alpha     float64   `json:"alpha"`
	SeedCount int       `json:"seed_count"`
	// Result is the JSON serialization of the ranking.
	Result string `json:"result"`
}

// Record appends rec to the query log.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return s.write(ctx, "insert query log record", func() error {
		_, err := s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO query_log (query_id, created_ms, alpha, seed_count, result)
			VALUES (?, ?, ?, ?, ?)
		`), rec.QueryID, rec.Timestamp.UnixMilli(), rec.Alpha, rec.SeedCount, rec.Result)
		return err
	})
}

// Recent returns the latest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT query_id, created_ms, alpha, seed_count, result
		FROM query_log
		ORDER BY created_ms DESC, id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec Record
			ms  int64
		)
		if err := rows.Scan(&rec.QueryID, &ms, &rec.Alpha, &rec.SeedCount, &rec.Result); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ms)
		out = append(out, rec)
	}
	return out, rows.Err()
}
