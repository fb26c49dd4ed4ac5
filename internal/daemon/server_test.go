package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/conceptrank/internal/corpus"
	"github.com/Aman-CERP/conceptrank/internal/engine"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/graph"
	"github.com/Aman-CERP/conceptrank/internal/matrix"
	"github.com/Aman-CERP/conceptrank/internal/registry"
)

// testSocketPath creates a short unique socket path; t.TempDir can exceed
// the Unix socket path limit.
func testSocketPath(t *testing.T) string {
	t.Helper()
	socketPath := filepath.Join("/tmp", fmt.Sprintf("conceptrank-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(socketPath) })
	return socketPath
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	adj := graph.Build([]graph.Edge{{Source: 1, Target: 2}, {Source: 2, Target: 3}, {Source: 3, Target: 4}, {Source: 4, Target: 5}}, true)
	p, err := matrix.Transition(adj)
	require.NoError(t, err)
	reg := registry.New(adj.ExternalIDs)
	reg.AddLabels([]registry.LabelRecord{{ExternalID: 2, Label: "Bravo"}})
	e, err := engine.New(&corpus.Corpus{Adjacency: adj, Registry: reg, P: p}, engine.DefaultEngineConfig())
	require.NoError(t, err)
	return e
}

// startServer runs a server with an engine handler and returns a client.
func startServer(t *testing.T) (*Client, *EngineHandler) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SocketPath = testSocketPath(t)
	cfg.Timeout = 5 * time.Second

	h := NewEngineHandler(testEngine(t))
	srv := NewServer(cfg, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	return client, h
}

func TestServer_StopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SocketPath = testSocketPath(t)
	srv := NewServer(cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.SocketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	_, err := os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err), "socket is removed on exit")
}

func TestClient_PingAndStatus(t *testing.T) {
	client, _ := startServer(t)

	require.NoError(t, client.Ping(context.Background()))

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, 5, status.Concepts)
	assert.Equal(t, 1, status.Labels)
	assert.Equal(t, "disabled", status.SinkState)
}

func TestClient_Rank(t *testing.T) {
	// Given: a running daemon over the path graph
	client, h := startServer(t)
	a := 0.2

	// When: ranking seed A through the socket
	resp, err := client.Rank(context.Background(), RankParams{Seeds: []int64{1}, Damping: &a, TopN: 2})

	// Then: the engine's answer comes back intact
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(2), resp.Results[0].ExternalID)
	assert.Equal(t, "Bravo", resp.Results[0].Label)
	assert.Equal(t, int64(3), resp.Results[1].ExternalID)
	st := h.GetStatus()
	assert.Equal(t, int64(1), st.QueriesServed)
	require.NotNil(t, st.Metrics)
	assert.Equal(t, int64(1), st.Metrics.Total)
}

func TestClient_RankKeepsErrorCode(t *testing.T) {
	client, _ := startServer(t)

	_, err := client.Rank(context.Background(), RankParams{Seeds: []int64{42}})
	require.Error(t, err)
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeUnknownSeed))

	_, err = client.Rank(context.Background(), RankParams{})
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeInvalidParameter))
}

func TestServer_UnknownMethodAndBadJSON(t *testing.T) {
	client, _ := startServer(t)

	conn, err := client.Connect()
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(conn).Encode(Request{JSONRPC: "2.0", Method: "search", ID: "x"}))
	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	_ = conn.Close()
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)

	conn, err = net.Dial("unix", client.socketPath)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("{not json\n"))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
}

func TestClient_NotRunning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SocketPath = testSocketPath(t)
	cfg.Timeout = 100 * time.Millisecond
	client := NewClient(cfg)

	assert.False(t, client.IsRunning())
	assert.Error(t, client.Ping(context.Background()))
}
