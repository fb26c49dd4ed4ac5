package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/conceptrank/internal/cache"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/tsv"
)

// Schema is the adjacency artifact schema version.
const Schema = 1

// ParseEdge parses a [source, target, ...] record.
func ParseEdge(fields []string) (Edge, error) {
	if err := tsv.MinFields(fields, 2); err != nil {
		return Edge{}, err
	}
	s, err := tsv.ParseID(fields[0])
	if err != nil {
		return Edge{}, fmt.Errorf("source: %w", err)
	}
	t, err := tsv.ParseID(fields[1])
	if err != nil {
		return Edge{}, fmt.Errorf("target: %w", err)
	}
	return Edge{Source: s, Target: t}, nil
}

// Options configures BuildOrLoad.
type Options struct {
	EdgesPath   string
	CachePath   string
	Symmetrize  bool
	Compression cache.Compression
	// Force ignores an existing cache.
	Force  bool
	Parse  tsv.Options
	Logger *slog.Logger
}

// BuildOrLoad returns the cached adjacency, or parses the edge source and
// caches the result. built reports whether the adjacency was rebuilt, in
// which case artifacts derived from it are stale.
func BuildOrLoad(ctx context.Context, opts Options) (adj *Adjacency, built bool, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	artifact := cache.Artifact{Kind: cache.KindAdjacency, Path: opts.CachePath, SourcePath: opts.EdgesPath}
	built, err = cache.LoadOrBuild(artifact, opts.Force, logger,
		func() error {
			var loaded Adjacency
			if err := cache.Load(opts.CachePath, cache.KindAdjacency, Schema, &loaded); err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return crerrors.CorruptCache(opts.CachePath, err)
			}
			if loaded.Symmetric != opts.Symmetrize {
				return crerrors.New(crerrors.ErrCodeInconsistent,
					fmt.Sprintf("adjacency cache was built with symmetrize=%t", loaded.Symmetric), nil).
					WithDetail("path", opts.CachePath)
			}
			adj = &loaded
			return nil
		},
		func() error {
			parse := opts.Parse
			parse.Source = opts.EdgesPath
			parse.Logger = logger
			edges, stats, err := tsv.ParseFile(ctx, opts.EdgesPath, parse, ParseEdge)
			if err != nil {
				return fmt.Errorf("parse edges: %w", err)
			}
			adj = Build(edges, opts.Symmetrize)
			if adj.Len() == 0 {
				return crerrors.New(crerrors.ErrCodeMissingInput, "edge source yields no concept with outgoing edges", nil).
					WithDetail("source", opts.EdgesPath).
					WithDetail("malformed", fmt.Sprint(stats.Malformed))
			}
			logger.Info("adjacency_built",
				slog.Int("lines", stats.Lines),
				slog.Int("edges", stats.Accepted),
				slog.Int("malformed", stats.Malformed),
				slog.Int("concepts", adj.Len()),
				slog.Int("neighbors", adj.EdgeCount()),
				slog.Bool("symmetrize", opts.Symmetrize))
			return cache.Save(opts.CachePath, cache.KindAdjacency, Schema, opts.Compression, adj)
		})
	if err != nil {
		return nil, built, err
	}
	return adj, built, nil
}
