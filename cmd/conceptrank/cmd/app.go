package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/conceptrank/internal/config"
	"github.com/Aman-CERP/conceptrank/internal/corpus"
	"github.com/Aman-CERP/conceptrank/internal/engine"
	"github.com/Aman-CERP/conceptrank/internal/labelindex"
	"github.com/Aman-CERP/conceptrank/internal/querylog"
)

// labelIndexDir is the bleve index directory under the cache dir.
const labelIndexDir = "labels.bleve"

// app is a loaded engine plus the resources it holds open.
type app struct {
	cfg    *config.Config
	engine *engine.Engine
	store  *querylog.Store
	labels *labelindex.Index
}

type appOptions struct {
	force bool
	// noSink skips opening the query log even when it is enabled.
	noSink bool
}

func (g *globalOptions) loadConfig() (*config.Config, error) {
	return config.Load(g.configDir)
}

// openApp loads the corpus, the label index and the query log, and
// wires them into an engine.
func (g *globalOptions) openApp(ctx context.Context, logger *slog.Logger, opts appOptions) (*app, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	c, err := corpus.Load(ctx, cfg.Corpus, corpus.Options{Force: opts.force, Logger: logger})
	if err != nil {
		return nil, err
	}

	rt := &app{cfg: cfg}
	var engineOpts []engine.EngineOption
	engineOpts = append(engineOpts, engine.WithLogger(logger))

	switch cfg.Labels.Index {
	case "memory", "disk":
		path := ""
		if cfg.Labels.Index == "disk" {
			path = filepath.Join(cfg.Corpus.CacheDir, labelIndexDir)
		}
		rt.labels, err = labelindex.Open(ctx, c.Registry, path, logger)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, engine.WithLabelIndex(rt.labels))
	}

	if cfg.QueryLog.Enabled && !opts.noSink {
		rt.store, err = querylog.Open(ctx, cfg.QueryLog)
		if err != nil {
			// The query log never blocks ranking.
			logger.Warn("querylog_unavailable", slog.String("error", err.Error()))
		} else {
			engineOpts = append(engineOpts, engine.WithSink(rt.store))
		}
	}

	ecfg, err := engine.ConfigFrom(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.engine, err = engine.New(c, ecfg, engineOpts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases the label index and the query log.
func (rt *app) Close() error {
	var errs []error
	if rt.labels != nil {
		errs = append(errs, rt.labels.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	return errors.Join(errs...)
}

// openStore opens the query log for the queue and history commands.
func openStore(ctx context.Context, cfg *config.Config) (*querylog.Store, error) {
	if !cfg.QueryLog.Enabled {
		return nil, fmt.Errorf("query log is disabled; set querylog.enabled in config or CONCEPTRANK_QUERYLOG=1")
	}
	return querylog.Open(ctx, cfg.QueryLog)
}
