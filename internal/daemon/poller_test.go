package daemon

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/conceptrank/internal/querylog"
)

func testQueue(t *testing.T) *querylog.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "queue.db")+"?_journal_mode=WAL")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	s, err := querylog.New(context.Background(), db, querylog.DialectSQLite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPoller_PollOnceRespectsBatch(t *testing.T) {
	// Given: three pending requests, one of them invalid
	ctx := context.Background()
	q := testQueue(t)
	good1, err := q.Enqueue(ctx, querylog.Request{Seeds: []int64{1}, TopN: 2})
	require.NoError(t, err)
	bad, err := q.Enqueue(ctx, querylog.Request{Seeds: []int64{42}})
	require.NoError(t, err)
	good2, err := q.Enqueue(ctx, querylog.Request{Seeds: []int64{5}})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PollBatch = 2
	p := NewPoller(q, testEngine(t), cfg, 3, nil)

	// When: polling until the queue is drained
	total := 0
	for i := 0; i < 3; i++ {
		n, err := p.PollOnce(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 2)
		total += n
	}

	// Then: every request reached a final state
	assert.Equal(t, 3, total)
	for _, id := range []string{good1, good2} {
		r, err := q.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, querylog.StatusDone, r.Status, id)
	}
	r, err := q.Get(ctx, bad)
	require.NoError(t, err)
	assert.Equal(t, querylog.StatusFailed, r.Status)
	assert.Contains(t, r.Error, "ERR_403_UNKNOWN_SEED")
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := testQueue(t)
	id, err := q.Enqueue(ctx, querylog.Request{Seeds: []int64{1}})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	p := NewPoller(q, testEngine(t), cfg, 2, nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		r, err := q.Get(context.Background(), id)
		return err == nil && r.Status == querylog.StatusDone
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
