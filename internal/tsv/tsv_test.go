package tsv

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct{ a, b int64 }

func parsePair(fields []string) (pair, error) {
	if err := MinFields(fields, 2); err != nil {
		return pair{}, err
	}
	a, err := ParseID(fields[0])
	if err != nil {
		return pair{}, err
	}
	b, err := ParseID(fields[1])
	if err != nil {
		return pair{}, err
	}
	return pair{a, b}, nil
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestParse_SkipsMalformedAndKeepsOrder(t *testing.T) {
	// Given: a source with good, bad and blank lines
	input := "1\t2\n" +
		"x\t3\n" +
		"4\n" +
		"\n" +
		"5\t6\textra\r\n" +
		"-7\t8\n"

	var logs bytes.Buffer
	opts := Options{Source: "edges", Workers: 3, BatchLines: 2, MaxWarnings: 10, Logger: quietLogger(&logs)}

	// When: parsing
	got, stats, err := Parse(context.Background(), strings.NewReader(input), opts, parsePair)

	// Then: only the valid records survive, in input order
	require.NoError(t, err)
	assert.Equal(t, []pair{{1, 2}, {5, 6}}, got)
	assert.Equal(t, Stats{Lines: 6, Accepted: 2, Malformed: 3, Blank: 1}, stats)
	assert.Contains(t, logs.String(), "edges:2")
	assert.Contains(t, logs.String(), "edges:6")
}

func TestParse_ResultIndependentOfWorkerCount(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 5000; i++ {
		if i%97 == 0 {
			sb.WriteString("bad line\n")
			continue
		}
		fmt.Fprintf(&sb, "%d\t%d\n", i, i*7%1000)
	}
	input := sb.String()

	var baseline []pair
	for _, workers := range []int{1, 2, 8} {
		for _, batchLines := range []int{1, 13, 4096} {
			opts := Options{Workers: workers, BatchLines: batchLines, Logger: quietLogger(&bytes.Buffer{})}
			got, _, err := Parse(context.Background(), strings.NewReader(input), opts, parsePair)
			require.NoError(t, err)
			if baseline == nil {
				baseline = got
				continue
			}
			assert.Equal(t, baseline, got, "workers=%d batch=%d", workers, batchLines)
		}
	}
}

func TestParse_CapsWarnings(t *testing.T) {
	input := strings.Repeat("junk\n", 10)
	var logs bytes.Buffer
	opts := Options{Source: "labels", MaxWarnings: 2, Logger: quietLogger(&logs)}

	_, stats, err := Parse(context.Background(), strings.NewReader(input), opts, parsePair)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Malformed)
	assert.Equal(t, 2, strings.Count(logs.String(), `"msg":"malformed_line"`))
	assert.Contains(t, logs.String(), `"count":8`)
}

func TestParse_LogsProgress(t *testing.T) {
	input := strings.Repeat("1\t2\n", 10)
	var logs bytes.Buffer
	opts := Options{ProgressInterval: 4, Logger: quietLogger(&logs)}

	_, _, err := Parse(context.Background(), strings.NewReader(input), opts, parsePair)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(logs.String(), "parse_progress"))
}

func TestParse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := strings.Repeat("1\t2\n", 100000)
	_, _, err := Parse(ctx, strings.NewReader(input), Options{BatchLines: 10}, parsePair)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_TrimsSurroundingWhitespace(t *testing.T) {
	// Given: records padded with spaces and a CRLF ending
	input := "12\t34 \n  56\t78\r\n \t \n"

	// When: parsing
	got, stats, err := Parse(context.Background(), strings.NewReader(input), Options{}, parsePair)

	// Then: both records are accepted and the whitespace-only line is blank
	require.NoError(t, err)
	assert.Equal(t, []pair{{12, 34}, {56, 78}}, got)
	assert.Equal(t, Stats{Lines: 3, Accepted: 2, Blank: 1}, stats)
}

func TestParseFile_MissingFile(t *testing.T) {
	_, _, err := ParseFile(context.Background(), filepath.Join(t.TempDir(), "none.tsv"), Options{}, parsePair)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"0", 0, true},
		{"12345", 12345, true},
		{"", 0, false},
		{"-1", 0, false},
		{"+1", 0, false},
		{" 1", 0, false},
		{"1e3", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseID(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got)
		} else {
			assert.Error(t, err, tt.in)
		}
	}
}
