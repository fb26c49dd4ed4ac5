package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/conceptrank/internal/engine"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/labelindex"
	"github.com/Aman-CERP/conceptrank/internal/querylog"
	"github.com/Aman-CERP/conceptrank/pkg/version"
)

// testProject writes a path graph A-B-C-D-E (ids 1..5) with labels and a
// project config, and isolates HOME so caches, logs and sockets stay in tmp.
func testProject(t *testing.T, querylogOn bool) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	dir := t.TempDir()
	edges := "1\t2\n2\t3\n3\t4\n4\t5\nbad line\n"
	labels := "1\tx\tAlpha\n2\tx\tBravo\n3\tx\tCharlie\n4\tx\tDelta\n5\tx\tEcho\n9\tx\tOrphan\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "edges.tsv"), []byte(edges), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.tsv"), []byte(labels), 0o644))

	cfg := "version: 1\n" +
		"corpus:\n  edges_path: edges.tsv\n  labels_path: labels.tsv\n  cache_dir: cache\n" +
		"solver:\n  damping: 0.2\n"
	if querylogOn {
		cfg += "querylog:\n  enabled: true\n  driver: sqlite\n  dsn: querylog.db\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".conceptrank.yaml"), []byte(cfg), 0o644))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestBuild_CreatesCaches(t *testing.T) {
	// Given: a project with edge and label sources
	dir := testProject(t, false)

	// When: building
	out, err := run(t, "--config-dir", dir, "build")

	// Then: all four artifacts exist and the summary is printed
	require.NoError(t, err)
	assert.Contains(t, out, "Corpus ready")
	assert.Contains(t, out, "concepts: 5")
	assert.Contains(t, out, "1 labelled ids have no edges")
	for _, name := range []string{"adjacency.bin", "idmap.bin", "labels.bin", "matrix.bin"} {
		assert.FileExists(t, filepath.Join(dir, "cache", name))
	}
}

func TestRank_LocalJSON(t *testing.T) {
	dir := testProject(t, false)

	out, err := run(t, "--config-dir", dir, "rank", "--local", "--seed", "1", "--limit", "2", "--format", "json")

	require.NoError(t, err)
	var resp engine.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(2), resp.Results[0].ExternalID)
	assert.Equal(t, "Bravo", resp.Results[0].Label)
	assert.Equal(t, int64(3), resp.Results[1].ExternalID)
	assert.InDelta(t, 0.2, resp.Alpha, 1e-12)
}

func TestRank_ByLabelText(t *testing.T) {
	dir := testProject(t, false)

	out, err := run(t, "--config-dir", dir, "rank", "--label", "echo", "--alpha", "0.5", "--limit", "1")

	require.NoError(t, err)
	assert.Contains(t, out, "Delta")
	assert.Contains(t, out, "alpha 0.50, 1 seeds")
}

func TestRank_Errors(t *testing.T) {
	dir := testProject(t, false)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"no seeds", []string{"rank"}, crerrors.ErrCodeInvalidParameter},
		{"unknown seed", []string{"rank", "--local", "--seed", "42"}, crerrors.ErrCodeUnknownSeed},
		{"label-only seed", []string{"rank", "--local", "--seed", "9"}, crerrors.ErrCodeUnknownSeed},
		{"alpha out of range", []string{"rank", "--local", "--seed", "1", "--alpha", "1.5"}, crerrors.ErrCodeInvalidParameter},
		{"bad format", []string{"rank", "--seed", "1", "--format", "xml"}, crerrors.ErrCodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--config-dir", dir}, tt.args...)...)
			require.Error(t, err)
			assert.True(t, crerrors.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestRank_MissingSources(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".conceptrank.yaml"),
		[]byte("corpus:\n  edges_path: none.tsv\n  cache_dir: cache\n"), 0o644))

	_, err := run(t, "--config-dir", dir, "rank", "--local", "--seed", "1")

	require.Error(t, err)
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeMissingInput))
}

func TestLookup(t *testing.T) {
	dir := testProject(t, false)

	out, err := run(t, "--config-dir", dir, "lookup", "charlie", "--json")

	require.NoError(t, err)
	var matches []labelindex.Match
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.NotEmpty(t, matches)
	assert.Equal(t, int64(3), matches[0].ExternalID)
}

func TestStats_JSON(t *testing.T) {
	dir := testProject(t, false)

	out, err := run(t, "--config-dir", dir, "stats", "--json")

	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.EqualValues(t, 5, report["concepts"])
	assert.EqualValues(t, 1, report["label_only_ids"])
	assert.Equal(t, "both", report["direction"])
	assert.NotContains(t, report, "daemon")
}

func TestHistory_RecordsLocalQueries(t *testing.T) {
	// Given: a project with the query log enabled
	dir := testProject(t, true)

	// When: two queries run
	_, err := run(t, "--config-dir", dir, "rank", "--local", "--seed", "1")
	require.NoError(t, err)
	_, err = run(t, "--config-dir", dir, "rank", "--local", "--seed", "5", "--alpha", "0.4")
	require.NoError(t, err)

	// Then: history lists both, newest first
	out, err := run(t, "--config-dir", dir, "history", "--json")
	require.NoError(t, err)
	var recs []querylog.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 2)
	assert.InDelta(t, 0.4, recs[0].Alpha, 1e-12)
	assert.Equal(t, 1, recs[0].SeedCount)
}

func TestEnqueue_AndInspect(t *testing.T) {
	dir := testProject(t, true)

	out, err := run(t, "--config-dir", dir, "enqueue", "--seed", "1", "--limit", "3")
	require.NoError(t, err)
	require.Contains(t, out, "Queued request ")
	id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out[strings.Index(out, "Queued request "):]), "Queued request "))

	out, err = run(t, "--config-dir", dir, "history", "--request", id, "--json")
	require.NoError(t, err)
	var req querylog.Request
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	assert.Equal(t, querylog.StatusPending, req.Status)
	assert.Equal(t, []int64{1}, req.Seeds)
	assert.Equal(t, 3, req.TopN)
}

func TestEnqueue_RequiresQueryLog(t *testing.T) {
	dir := testProject(t, false)

	_, err := run(t, "--config-dir", dir, "enqueue", "--seed", "1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "query log is disabled")
}

func TestConfigInit_WritesTemplateOnce(t *testing.T) {
	dir := testProject(t, false)
	target := filepath.Join(dir, "sub")

	out, err := run(t, "--config-dir", target, "config", "init", "--project")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	assert.FileExists(t, filepath.Join(target, ".conceptrank.yaml"))

	out, err = run(t, "--config-dir", target, "config", "init", "--project")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestConfigShow_JSON(t *testing.T) {
	dir := testProject(t, false)

	out, err := run(t, "--config-dir", dir, "config", "show", "--json")

	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	corpus := cfg["corpus"].(map[string]any)
	assert.Equal(t, filepath.Join(dir, "edges.tsv"), corpus["edges_path"])
}

func TestServeStop_NotRunning(t *testing.T) {
	dir := testProject(t, false)

	out, err := run(t, "--config-dir", dir, "serve", "--stop")

	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestProfileFlags_WriteFiles(t *testing.T) {
	dir := testProject(t, false)
	cpu := filepath.Join(dir, "cpu.prof")
	mem := filepath.Join(dir, "mem.prof")

	_, err := run(t, "--config-dir", dir, "--profile-cpu", cpu, "--profile-mem", mem, "build")

	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, mem)
}

func TestLogs_ShowsCommandLog(t *testing.T) {
	dir := testProject(t, false)
	_, err := run(t, "--config-dir", dir, "build")
	require.NoError(t, err)

	out, err := run(t, "logs", "--level", "info")

	require.NoError(t, err)
	assert.Contains(t, out, "corpus_load_started")
}
