// Package corpus loads the concept graph, its registry and its transition
// matrix, building and caching whatever is missing or stale.
package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/conceptrank/internal/cache"
	"github.com/Aman-CERP/conceptrank/internal/config"
	"github.com/Aman-CERP/conceptrank/internal/graph"
	"github.com/Aman-CERP/conceptrank/internal/matrix"
	"github.com/Aman-CERP/conceptrank/internal/registry"
	"github.com/Aman-CERP/conceptrank/internal/tsv"
)

// Corpus is the immutable, query-ready concept graph. It is shared
// read-only by every query.
type Corpus struct {
	Adjacency *graph.Adjacency
	Registry  *registry.Registry
	P         *matrix.CSR
	CacheDir  string
}

// Stats summarizes a loaded corpus.
type Stats struct {
	Concepts     int    `json:"concepts"`
	Edges        int    `json:"edges"`
	NonZeros     int    `json:"non_zeros"`
	Labels       int    `json:"labels"`
	LabelOnlyIDs int    `json:"label_only_ids"`
	Symmetric    bool   `json:"symmetric"`
	CacheDir     string `json:"cache_dir"`
}

// Stats reports the corpus dimensions.
func (c *Corpus) Stats() Stats {
	return Stats{
		Concepts:     c.Adjacency.Len(),
		Edges:        c.Adjacency.EdgeCount(),
		NonZeros:     c.P.NNZ(),
		Labels:       c.Registry.LabelCount(),
		LabelOnlyIDs: c.Registry.Len() - c.Registry.GraphSize(),
		Symmetric:    c.Adjacency.Symmetric,
		CacheDir:     c.CacheDir,
	}
}

// Options tunes Load beyond the configuration file.
type Options struct {
	// Force rebuilds every artifact from source.
	Force  bool
	Logger *slog.Logger
}

// Paths returns the artifact file for each kind under dir.
func Paths(dir string) map[cache.Kind]string {
	return map[cache.Kind]string{
		cache.KindAdjacency: filepath.Join(dir, cache.KindAdjacency.FileName()),
		cache.KindIDMap:     filepath.Join(dir, cache.KindIDMap.FileName()),
		cache.KindLabels:    filepath.Join(dir, cache.KindLabels.FileName()),
		cache.KindMatrix:    filepath.Join(dir, cache.KindMatrix.FileName()),
	}
}

// Load builds or loads the adjacency, then the registry, then the
// transition matrix, holding the cache directory's build lock throughout.
// Rebuilding the adjacency forces the registry and matrix to be rebuilt.
func Load(ctx context.Context, cfg config.CorpusConfig, opts Options) (*Corpus, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	lock := cache.NewBuildLock(cfg.CacheDir)
	held, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !held {
		logger.Info("build_lock_wait", slog.String("path", lock.Path()))
		if err := lock.Lock(ctx); err != nil {
			return nil, err
		}
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("build_lock_release_failed", slog.String("error", err.Error()))
		}
	}()

	paths := Paths(cfg.CacheDir)
	comp := cache.ParseCompression(cfg.Compression)
	parse := tsv.Options{
		Workers:          cfg.Workers,
		BatchLines:       cfg.BatchLines,
		ProgressInterval: cfg.ProgressInterval,
		MaxWarnings:      cfg.MaxLineWarnings,
	}

	logger.Info("corpus_load_started",
		slog.String("cache_dir", cfg.CacheDir),
		slog.String("direction", cfg.Direction),
		slog.Bool("force", opts.Force))

	adj, adjBuilt, err := graph.BuildOrLoad(ctx, graph.Options{
		EdgesPath:   cfg.EdgesPath,
		CachePath:   paths[cache.KindAdjacency],
		Symmetrize:  cfg.Symmetrize(),
		Compression: comp,
		Force:       opts.Force,
		Parse:       parse,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("adjacency: %w", err)
	}

	reg, regBuilt, err := registry.BuildOrLoad(ctx, adj.ExternalIDs, registry.Options{
		LabelsPath:  cfg.LabelsPath,
		IDMapPath:   paths[cache.KindIDMap],
		LabelsCache: paths[cache.KindLabels],
		Compression: comp,
		Force:       opts.Force || adjBuilt,
		Parse:       parse,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	p, pBuilt, err := matrix.BuildOrLoad(adj, matrix.Options{
		CachePath:   paths[cache.KindMatrix],
		Compression: comp,
		Force:       opts.Force || adjBuilt,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("transition matrix: %w", err)
	}

	c := &Corpus{Adjacency: adj, Registry: reg, P: p, CacheDir: cfg.CacheDir}
	st := c.Stats()
	logger.Info("corpus_loaded",
		slog.Int("concepts", st.Concepts),
		slog.Int("edges", st.Edges),
		slog.Int("labels", st.Labels),
		slog.Bool("adjacency_built", adjBuilt),
		slog.Bool("registry_built", regBuilt),
		slog.Bool("matrix_built", pBuilt),
		slog.Duration("elapsed", time.Since(start)))
	return c, nil
}
