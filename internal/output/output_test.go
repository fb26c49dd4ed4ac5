package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("*", "Loading corpus...")

	// Then: output contains icon and message
	assert.Equal(t, "* Loading corpus...\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "detail")
	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_BufferIsNotATerminal_NoColor(t *testing.T) {
	// Given: output that is not a terminal
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing each message kind
	w.Success("cache built")
	w.Warning("labels.tsv: 3 malformed lines skipped")
	w.Errorf("seed %d is unknown", 42)
	w.Dim("took 12ms")

	// Then: plain icons, no escape sequences
	out := buf.String()
	assert.NotContains(t, out, "\033[")
	assert.Contains(t, out, "✓ cache built")
	assert.Contains(t, out, "! labels.tsv: 3 malformed lines skipped")
	assert.Contains(t, out, "✗ seed 42 is unknown")
	assert.Contains(t, out, "took 12ms")
	assert.False(t, IsTerminal(buf))
}

func TestWriter_Paint_WhenColorEnabled(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, useColor: true}

	w.Success("ok")

	assert.Contains(t, buf.String(), colorGreen+"✓"+colorReset)
}

func TestWriter_Table_AlignsColumns(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Table([]string{"RANK", "ID", "LABEL"}, [][]string{
		{"1", "7", "Graph theory"},
		{"2", "12345", "Walk"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, strings.Index(lines[0], "LABEL"), strings.Index(lines[1], "Graph"))
	assert.Equal(t, strings.Index(lines[1], "Graph"), strings.Index(lines[2], "Walk"))
}

func TestWriter_KeyValue(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).KeyValue([][2]string{{"concepts", "5"}, {"edges", "8"}})

	assert.Contains(t, buf.String(), "concepts: 5")
	assert.Contains(t, buf.String(), "edges:    8")
}

func TestWriter_Code_IndentsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("a\nb")
	assert.Equal(t, "\n  a\n  b\n\n", buf.String())
}

func TestScoreBar(t *testing.T) {
	tests := []struct {
		score    float64
		expected string
	}{
		{0, "░░░░"},
		{0.5, "██░░"},
		{1, "████"},
		{1.7, "████"},
		{-1, "░░░░"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ScoreBar(tt.score, 4))
	}
}
