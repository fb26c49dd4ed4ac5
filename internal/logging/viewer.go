package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

// LogEntry is a parsed JSON log line.
type LogEntry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any
	Raw   string
}

// Viewer prints log entries at or above a minimum level.
type Viewer struct {
	minLevel slog.Level
	out      io.Writer
}

// NewViewer creates a viewer that writes to out.
func NewViewer(level string, out io.Writer) *Viewer {
	return &Viewer{minLevel: parseLevel(level), out: out}
}

// Tail returns the last n entries of path that pass the level filter.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		entry := parseLine(scanner.Text())
		if parseLevel(entry.Level) < v.minLevel {
			continue
		}
		entries = append(entries, entry)
		if n > 0 && len(entries) > n {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return entries, nil
}

// Print writes entries one per line.
func (v *Viewer) Print(entries []LogEntry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(e))
	}
}

// FormatEntry renders "15:04:05.000 LEVEL msg key=value ...".
func (v *Viewer) FormatEntry(e LogEntry) string {
	if e.Time.IsZero() {
		return e.Raw
	}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(e.Time.Format("15:04:05.000"))
	sb.WriteString(fmt.Sprintf(" %-5s %s", e.Level, e.Msg))
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, e.Attrs[k]))
	}
	return sb.String()
}

func parseLine(line string) LogEntry {
	entry := LogEntry{Raw: line, Level: "INFO"}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return entry
	}
	if s, ok := raw["time"].(string); ok {
		entry.Time, _ = time.Parse(time.RFC3339Nano, s)
	}
	if s, ok := raw["level"].(string); ok {
		entry.Level = s
	}
	if s, ok := raw["msg"].(string); ok {
		entry.Msg = s
	}
	delete(raw, "time")
	delete(raw, "level")
	delete(raw, "msg")
	entry.Attrs = raw
	return entry
}
