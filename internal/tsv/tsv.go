// Package tsv parses large tab-delimited sources in parallel.
//
// Lines are read sequentially, grouped into batches and parsed by a pool of
// workers; results are merged in input order, so the output does not depend
// on the worker count.
package tsv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
)

// Options configures a parse.
type Options struct {
	// Source names the input in log records and errors.
	Source string
	// Workers is the number of parser goroutines (default 1).
	Workers int
	// BatchLines is the number of lines per batch (default 65536).
	BatchLines int
	// ProgressInterval logs progress every N lines; 0 disables.
	ProgressInterval int
	// MaxWarnings caps malformed lines logged individually; the rest are counted.
	MaxWarnings int
	Logger      *slog.Logger
}

// Stats summarizes a parse.
type Stats struct {
	Lines     int
	Accepted  int
	Malformed int
	Blank     int
}

// LineFunc parses one record. Returning an error marks the line malformed;
// it is skipped and reported, never fatal.
type LineFunc[T any] func(fields []string) (T, error)

type batch struct {
	index     int
	firstLine int
	lines     []string
}

type malformed struct {
	line   int
	reason string
}

type batchResult[T any] struct {
	items []T
	bad   []malformed
	blank int
}

// ParseFile opens path and parses it with fn.
func ParseFile[T any](ctx context.Context, path string, opts Options, fn LineFunc[T]) ([]T, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer func() { _ = f.Close() }()

	if opts.Source == "" {
		opts.Source = path
	}
	return Parse(ctx, f, opts, fn)
}

// Parse reads r line by line and applies fn to each tab-split record.
func Parse[T any](ctx context.Context, r io.Reader, opts Options, fn LineFunc[T]) ([]T, Stats, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchLines < 1 {
		opts.BatchLines = 65536
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mu      sync.Mutex
		results = make(map[int]batchResult[T])
		batches = make(chan batch, opts.Workers)
		total   int
		nBatch  int
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

		cur := batch{firstLine: 1}
		flush := func() error {
			if len(cur.lines) == 0 {
				return nil
			}
			select {
			case batches <- cur:
			case <-gctx.Done():
				return gctx.Err()
			}
			nBatch++
			cur = batch{index: nBatch, firstLine: total + 1}
			return nil
		}

		for scanner.Scan() {
			cur.lines = append(cur.lines, scanner.Text())
			total++
			if opts.ProgressInterval > 0 && total%opts.ProgressInterval == 0 {
				logger.Info("parse_progress", slog.String("source", opts.Source), slog.Int("lines", total))
			}
			if len(cur.lines) >= opts.BatchLines {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read %s: %w", opts.Source, err)
		}
		return flush()
	})

	for w := 0; w < opts.Workers; w++ {
		g.Go(func() error {
			for b := range batches {
				if err := gctx.Err(); err != nil {
					return err
				}
				res := parseBatch(b, fn)
				mu.Lock()
				results[b.index] = res
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Lines: total}
	var out []T
	warned := 0
	for i := 0; i < nBatch; i++ {
		res := results[i]
		out = append(out, res.items...)
		stats.Blank += res.blank
		for _, m := range res.bad {
			stats.Malformed++
			if warned < opts.MaxWarnings {
				warned++
				err := crerrors.MalformedLine(opts.Source, m.line, m.reason)
				logger.Warn("malformed_line", crerrors.LogAttrs(err)...)
			}
		}
	}
	stats.Accepted = len(out)

	if stats.Malformed > warned {
		logger.Warn("malformed_lines_suppressed",
			slog.String("source", opts.Source),
			slog.Int("count", stats.Malformed-warned))
	}
	return out, stats, nil
}

func parseBatch[T any](b batch, fn LineFunc[T]) batchResult[T] {
	res := batchResult[T]{items: make([]T, 0, len(b.lines))}
	for i, line := range b.lines {
		line = strings.TrimSpace(line)
		if line == "" {
			res.blank++
			continue
		}
		item, err := fn(strings.Split(line, "\t"))
		if err != nil {
			res.bad = append(res.bad, malformed{line: b.firstLine + i, reason: err.Error()})
			continue
		}
		res.items = append(res.items, item)
	}
	return res
}
