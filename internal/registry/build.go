package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/conceptrank/internal/cache"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/tsv"
)

// Schema is the version of the idmap and labels artifacts.
const Schema = 1

type idMapArtifact struct {
	ExternalIDs []int64
	GraphSize   int
}

type labelsArtifact struct {
	Labels map[int]string
}

// ParseLabel parses an [id, <ignored>, label, ...] record.
func ParseLabel(fields []string) (LabelRecord, error) {
	if err := tsv.MinFields(fields, 3); err != nil {
		return LabelRecord{}, err
	}
	id, err := tsv.ParseID(fields[0])
	if err != nil {
		return LabelRecord{}, err
	}
	return LabelRecord{ExternalID: id, Label: strings.TrimSpace(fields[2])}, nil
}

// Options configures BuildOrLoad.
type Options struct {
	LabelsPath  string
	IDMapPath   string
	LabelsCache string
	Compression cache.Compression
	// Force ignores existing caches, set when the adjacency was rebuilt.
	Force  bool
	Parse  tsv.Options
	Logger *slog.Logger
}

// BuildOrLoad returns the cached registry for graphIDs, or parses the label
// source and caches the id map and the label map.
func BuildOrLoad(ctx context.Context, graphIDs []int64, opts Options) (*Registry, bool, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var reg *Registry
	artifact := cache.Artifact{Kind: cache.KindIDMap, Path: opts.IDMapPath, SourcePath: opts.LabelsPath}
	force := opts.Force || !cache.Exists(opts.LabelsCache)
	built, err := cache.LoadOrBuild(artifact, force, logger,
		func() error {
			loaded, err := load(opts.IDMapPath, opts.LabelsCache)
			if err != nil {
				return err
			}
			if err := loaded.matches(graphIDs); err != nil {
				return crerrors.New(crerrors.ErrCodeInconsistent, err.Error(), nil).
					WithDetail("path", opts.IDMapPath)
			}
			reg = loaded
			return nil
		},
		func() error {
			parse := opts.Parse
			parse.Source = opts.LabelsPath
			parse.Logger = logger
			records, stats, err := tsv.ParseFile(ctx, opts.LabelsPath, parse, ParseLabel)
			if err != nil {
				return fmt.Errorf("parse labels: %w", err)
			}
			reg = New(graphIDs)
			reg.AddLabels(records)
			logger.Info("registry_built",
				slog.Int("lines", stats.Lines),
				slog.Int("malformed", stats.Malformed),
				slog.Int("graph_size", reg.GraphSize()),
				slog.Int("ids", reg.Len()),
				slog.Int("labels", reg.LabelCount()))
			return save(reg, opts.IDMapPath, opts.LabelsCache, opts.Compression)
		})
	if err != nil {
		return nil, built, err
	}
	return reg, built, nil
}

func save(r *Registry, idMapPath, labelsPath string, comp cache.Compression) error {
	if err := cache.Save(idMapPath, cache.KindIDMap, Schema, comp,
		idMapArtifact{ExternalIDs: r.toExternal, GraphSize: r.graphSize}); err != nil {
		return err
	}
	return cache.Save(labelsPath, cache.KindLabels, Schema, comp, labelsArtifact{Labels: r.labels})
}

func load(idMapPath, labelsPath string) (*Registry, error) {
	var ids idMapArtifact
	if err := cache.Load(idMapPath, cache.KindIDMap, Schema, &ids); err != nil {
		return nil, err
	}
	if ids.GraphSize < 0 || ids.GraphSize > len(ids.ExternalIDs) {
		return nil, crerrors.CorruptCache(idMapPath, fmt.Errorf("graph size %d exceeds %d ids", ids.GraphSize, len(ids.ExternalIDs)))
	}
	var labels labelsArtifact
	if err := cache.Load(labelsPath, cache.KindLabels, Schema, &labels); err != nil {
		return nil, err
	}

	r := &Registry{
		toIndex:    make(map[int64]int, len(ids.ExternalIDs)),
		toExternal: ids.ExternalIDs,
		labels:     labels.Labels,
		graphSize:  ids.GraphSize,
	}
	if r.labels == nil {
		r.labels = make(map[int]string)
	}
	for i, id := range ids.ExternalIDs {
		if _, dup := r.toIndex[id]; dup {
			return nil, crerrors.CorruptCache(idMapPath, fmt.Errorf("external id %d appears twice", id))
		}
		r.toIndex[id] = i
	}
	for idx := range r.labels {
		if idx < 0 || idx >= len(r.toExternal) {
			return nil, crerrors.CorruptCache(labelsPath, fmt.Errorf("label for unknown index %d", idx))
		}
	}
	return r, nil
}
