package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/conceptrank/internal/engine"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/querylog"
)

// Queue is the request queue the poller drains.
type Queue interface {
	ClaimPending(ctx context.Context, limit int) ([]querylog.Request, error)
	Complete(ctx context.Context, id string, runErr error) error
}

// BatchRanker runs a batch of queries.
type BatchRanker interface {
	RankBatch(ctx context.Context, queries []engine.Query) []engine.BatchResult
}

// Poller claims pending requests every interval and ranks them. At most
// batch requests are claimed per tick, and the next tick is scheduled only
// after the current batch has completed; unclaimed requests stay pending.
type Poller struct {
	queue       Queue
	ranker      BatchRanker
	interval    time.Duration
	batch       int
	defaultTopN int
	logger      *slog.Logger
}

// NewPoller creates a poller.
func NewPoller(q Queue, r BatchRanker, cfg Config, defaultTopN int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		queue:       q,
		ranker:      r,
		interval:    cfg.PollInterval,
		batch:       cfg.PollBatch,
		defaultTopN: defaultTopN,
		logger:      logger,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller_started",
		slog.Duration("interval", p.interval),
		slog.Int("batch", p.batch))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller_stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("poll_failed", crerrors.LogAttrs(err)...)
		}
		timer.Reset(p.interval)
	}
}

// PollOnce claims one batch, ranks it and records each outcome. It
// returns the number of requests processed.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	reqs, err := p.queue.ClaimPending(ctx, p.batch)
	if err != nil {
		return 0, err
	}
	if len(reqs) == 0 {
		return 0, nil
	}

	queries := make([]engine.Query, len(reqs))
	for i, r := range reqs {
		topN := r.TopN
		if topN == 0 {
			topN = p.defaultTopN
		}
		queries[i] = engine.Query{
			ID:         r.ID,
			Seeds:      r.Seeds,
			SeedLabels: r.SeedLabels,
			Damping:    r.Alpha,
			TopN:       topN,
		}
	}

	results := p.ranker.RankBatch(ctx, queries)
	failed := 0
	for i, res := range results {
		if res.Err != nil {
			failed++
		}
		if err := p.queue.Complete(context.WithoutCancel(ctx), reqs[i].ID, res.Err); err != nil {
			p.logger.Warn("request_complete_failed",
				append([]any{slog.String("request_id", reqs[i].ID)}, crerrors.LogAttrs(err)...)...)
		}
	}
	p.logger.Info("poll_batch_completed",
		slog.Int("claimed", len(reqs)),
		slog.Int("failed", failed))
	return len(reqs), nil
}
