package cache

import (
	"log/slog"
	"os"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
)

// Artifact describes one cached corpus artifact and the source it is derived from.
type Artifact struct {
	Kind Kind
	// Path is the cache file.
	Path string
	// SourcePath is the raw input the artifact can be rebuilt from.
	// Empty when the artifact is derived from other artifacts only.
	SourcePath string
	// Derived is true when the artifact can always be rebuilt from upstream
	// artifacts in memory (the transition matrix).
	Derived bool
}

// LoadOrBuild loads the artifact through load unless force is set or the
// cache is missing or unusable, in which case build is called.
//
// A corrupt, version-mismatched or inconsistent cache is rebuilt when the
// source is available and fatal otherwise. built reports whether build ran.
func LoadOrBuild(a Artifact, force bool, logger *slog.Logger, load, build func() error) (built bool, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	canBuild := a.Derived || (a.SourcePath != "" && sourceExists(a.SourcePath))

	if !force && Exists(a.Path) {
		err := load()
		if err == nil {
			logger.Debug("artifact_loaded", slog.String("kind", a.Kind.String()), slog.String("path", a.Path))
			return false, nil
		}
		if !isStale(err) {
			return false, err
		}
		if !canBuild {
			return false, err
		}
		logger.Warn("artifact_rebuild", append([]any{slog.String("kind", a.Kind.String())}, crerrors.LogAttrs(err)...)...)
	}

	if !canBuild {
		return false, crerrors.MissingInput(a.Kind.String(), a.SourcePath)
	}

	logger.Info("artifact_build_started", slog.String("kind", a.Kind.String()), slog.String("source", a.SourcePath))
	return true, build()
}

func isStale(err error) bool {
	return crerrors.HasCode(err, crerrors.ErrCodeCorruptCache) ||
		crerrors.HasCode(err, crerrors.ErrCodeCacheVersion) ||
		crerrors.HasCode(err, crerrors.ErrCodeInconsistent)
}

func sourceExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
