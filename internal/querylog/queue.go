package querylog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
)

// Request states.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// ErrNotFound is returned by Get for an unknown request id.
var ErrNotFound = errors.New("request not found")

// Request is a queued ranking request.
type Request struct {
	ID         string   `json:"id"`
	Seeds      []int64  `json:"seeds,omitempty"`
	SeedLabels []string `json:"seed_labels,omitempty"`
	// Alpha is nil to use the configured damping.
	Alpha     *float64  `json:"alpha,omitempty"`
	TopN      int       `json:"top_n,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Enqueue stores req as pending and returns its id, generating one if empty.
func (s *Store) Enqueue(ctx context.Context, req Request) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	seeds, err := json.Marshal(nonNil(req.Seeds))
	if err != nil {
		return "", fmt.Errorf("encode seeds: %w", err)
	}
	labels, err := json.Marshal(nonNil(req.SeedLabels))
	if err != nil {
		return "", fmt.Errorf("encode seed labels: %w", err)
	}
	var alpha sql.NullFloat64
	if req.Alpha != nil {
		alpha = sql.NullFloat64{Float64: *req.Alpha, Valid: true}
	}
	now := time.Now().UnixMilli()

	err = s.write(ctx, "enqueue request", func() error {
		_, err := s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO query_requests (id, seeds, seed_labels, alpha, top_n, status, error, created_ms, updated_ms)
			VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)
		`), req.ID, string(seeds), string(labels), alpha, req.TopN, StatusPending, now, now)
		return err
	})
	if err != nil {
		return "", err
	}
	return req.ID, nil
}

// ClaimPending marks up to limit of the oldest pending requests as running
// and returns them. A request is claimed by at most one caller.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]Request, error) {
	if limit <= 0 {
		return nil, nil
	}
	var claimed []Request
	err := s.write(ctx, "claim pending requests", func() error {
		claimed = claimed[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, s.rebind(`
			SELECT id, seeds, seed_labels, alpha, top_n, status, error, created_ms, updated_ms
			FROM query_requests
			WHERE status = ?
			ORDER BY created_ms, id
			LIMIT ?
		`), StatusPending, limit)
		if err != nil {
			return fmt.Errorf("select pending: %w", err)
		}
		var candidates []Request
		for rows.Next() {
			r, err := scanRequest(rows)
			if err != nil {
				_ = rows.Close()
				return err
			}
			candidates = append(candidates, r)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		now := time.Now()
		for _, r := range candidates {
			res, err := tx.ExecContext(ctx, s.rebind(`
				UPDATE query_requests SET status = ?, updated_ms = ?
				WHERE id = ? AND status = ?
			`), StatusRunning, now.UnixMilli(), r.ID, StatusPending)
			if err != nil {
				return fmt.Errorf("claim request %s: %w", r.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				r.Status = StatusRunning
				r.UpdatedAt = time.UnixMilli(now.UnixMilli())
				claimed = append(claimed, r)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks a request done, or failed with runErr.
func (s *Store) Complete(ctx context.Context, id string, runErr error) error {
	status, msg := StatusDone, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	return s.write(ctx, "complete request", func() error {
		_, err := s.db.ExecContext(ctx, s.rebind(`
			UPDATE query_requests SET status = ?, error = ?, updated_ms = ?
			WHERE id = ?
		`), status, msg, time.Now().UnixMilli(), id)
		return err
	})
}

// Get returns a request by id.
func (s *Store) Get(ctx context.Context, id string) (Request, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, seeds, seed_labels, alpha, top_n, status, error, created_ms, updated_ms
		FROM query_requests WHERE id = ?
	`), id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (Request, error) {
	var (
		r               Request
		seeds, labels   string
		alpha           sql.NullFloat64
		created, update int64
	)
	if err := sc.Scan(&r.ID, &seeds, &labels, &alpha, &r.TopN, &r.Status, &r.Error, &created, &update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, err
		}
		return Request{}, fmt.Errorf("scan request: %w", err)
	}
	if err := json.Unmarshal([]byte(seeds), &r.Seeds); err != nil {
		return Request{}, crerrors.New(crerrors.ErrCodeInternal, "decode stored seeds", err).WithDetail("id", r.ID)
	}
	if err := json.Unmarshal([]byte(labels), &r.SeedLabels); err != nil {
		return Request{}, crerrors.New(crerrors.ErrCodeInternal, "decode stored seed labels", err).WithDetail("id", r.ID)
	}
	if alpha.Valid {
		a := alpha.Float64
		r.Alpha = &a
	}
	r.CreatedAt = time.UnixMilli(created)
	r.UpdatedAt = time.UnixMilli(update)
	return r, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
