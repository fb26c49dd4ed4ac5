// Package labelindex provides full-text search over concept labels, used
// to turn free-text seeds into graph indices.
package labelindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/registry"
)

const (
	labelAnalyzerName = "concept_label"
	labelField        = "label"
	batchSize         = 10000
)

var fingerprintKey = []byte("conceptrank_fingerprint")

// Match is one label search hit.
type Match struct {
	Index      int     `json:"index"`
	ExternalID int64   `json:"external_id"`
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
}

// Index searches the labels of graph concepts.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	reg    *registry.Registry
	exact  map[string]int
	closed bool
}

type labelDoc struct {
	Label string `json:"label"`
}

// Open builds the index for reg. An empty path keeps the index in memory;
// otherwise it lives at path and is reused when it was built from the same
// labels.
func Open(ctx context.Context, reg *registry.Registry, path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fp := fingerprint(reg)

	var (
		idx   bleve.Index
		fresh = true
		err   error
	)
	if path == "" {
		idx, err = newMemIndex()
	} else {
		idx, fresh, err = openDisk(path, fp, logger)
	}
	if err != nil {
		return nil, err
	}

	li := &Index{index: idx, path: path, reg: reg, exact: exactLabels(reg)}
	if !fresh {
		logger.Debug("label_index_reused", slog.String("path", path))
		return li, nil
	}
	if err := li.build(ctx, fp); err != nil {
		_ = idx.Close()
		return nil, err
	}
	logger.Info("label_index_built",
		slog.String("path", path),
		slog.Int("labels", len(li.exact)))
	return li, nil
}

func newMemIndex() (bleve.Index, error) {
	m, err := createMapping()
	if err != nil {
		return nil, err
	}
	return bleve.NewMemOnly(m)
}

// openDisk opens the index at path. fresh is true when the caller must
// (re)index: the index is new, damaged, or built from other labels.
func openDisk(path string, fp []byte, logger *slog.Logger) (idx bleve.Index, fresh bool, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := validateIndexIntegrity(path); err != nil {
		logger.Warn("label_index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, false, fmt.Errorf("label index corrupted at %s and cannot remove: %w", path, err)
		}
	}

	idx, err = bleve.Open(path)
	if err == nil {
		stored, gerr := idx.GetInternal(fingerprintKey)
		if gerr == nil && string(stored) == string(fp) {
			return idx, false, nil
		}
		logger.Info("label_index_stale", slog.String("path", path))
		_ = idx.Close()
		if err := os.RemoveAll(path); err != nil {
			return nil, false, fmt.Errorf("failed to clear stale label index: %w", err)
		}
	} else if err != bleve.ErrorIndexPathDoesNotExist {
		logger.Warn("label_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, false, fmt.Errorf("failed to clear label index: %w", err)
		}
	}

	m, err := createMapping()
	if err != nil {
		return nil, false, err
	}
	idx, err = bleve.New(path, m)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create label index: %w", err)
	}
	return idx, true, nil
}

// validateIndexIntegrity checks index_meta.json of an existing index.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func createMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(labelAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add label analyzer: %w", err)
	}
	m.DefaultAnalyzer = labelAnalyzerName
	return m, nil
}

func (li *Index) build(ctx context.Context, fp []byte) error {
	li.mu.Lock()
	defer li.mu.Unlock()

	batch := li.index.NewBatch()
	var buildErr error
	li.reg.GraphLabels(func(index int, _ int64, label string) {
		if buildErr != nil {
			return
		}
		if err := batch.Index(strconv.Itoa(index), labelDoc{Label: label}); err != nil {
			buildErr = fmt.Errorf("failed to index label %d: %w", index, err)
			return
		}
		if batch.Size() >= batchSize {
			if err := ctx.Err(); err != nil {
				buildErr = err
				return
			}
			if err := li.index.Batch(batch); err != nil {
				buildErr = fmt.Errorf("failed to execute batch: %w", err)
				return
			}
			batch.Reset()
		}
	})
	if buildErr != nil {
		return buildErr
	}
	if err := li.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return li.index.SetInternal(fingerprintKey, fp)
}

// Search returns up to limit graph concepts whose labels match text.
func (li *Index) Search(ctx context.Context, text string, limit int) ([]Match, error) {
	li.mu.RLock()
	defer li.mu.RUnlock()

	if li.closed {
		return nil, fmt.Errorf("label index is closed")
	}
	if strings.TrimSpace(text) == "" || limit <= 0 {
		return []Match{}, nil
	}

	q := bleve.NewMatchQuery(text)
	q.SetField(labelField)
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := li.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("label search failed: %w", err)
	}

	matches := make([]Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		idx, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		ext, _ := li.reg.Decode(idx)
		label, _ := li.reg.Label(idx)
		matches = append(matches, Match{Index: idx, ExternalID: ext, Label: label, Score: hit.Score})
	}
	return matches, nil
}

// Resolve maps a label to a graph index: an exact case-insensitive match
// wins, otherwise the best search hit.
func (li *Index) Resolve(ctx context.Context, label string) (int, error) {
	key := normalize(label)
	if key == "" {
		return 0, crerrors.InvalidParameter("seed label is empty")
	}
	if idx, ok := li.exact[key]; ok {
		return idx, nil
	}
	hits, err := li.Search(ctx, label, 1)
	if err != nil {
		return 0, err
	}
	if len(hits) == 0 {
		return 0, crerrors.InvalidParameter(fmt.Sprintf("no concept matches label %q", label)).
			WithSuggestion("Use 'conceptrank lookup' to search labels")
	}
	return hits[0].Index, nil
}

// Len returns the number of indexed labels.
func (li *Index) Len() int {
	li.mu.RLock()
	defer li.mu.RUnlock()
	if li.closed {
		return 0
	}
	n, _ := li.index.DocCount()
	return int(n)
}

// Close closes the index.
func (li *Index) Close() error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.closed {
		return nil
	}
	li.closed = true
	return li.index.Close()
}

// exactLabels maps normalized labels to the lowest graph index carrying them.
func exactLabels(reg *registry.Registry) map[string]int {
	m := make(map[string]int)
	reg.GraphLabels(func(index int, _ int64, label string) {
		key := normalize(label)
		if _, ok := m[key]; !ok && key != "" {
			m[key] = index
		}
	})
	return m
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// fingerprint identifies the labels an index was built from.
func fingerprint(reg *registry.Registry) []byte {
	h := fnv.New64a()
	var buf [8]byte
	reg.GraphLabels(func(index int, _ int64, label string) {
		binary.LittleEndian.PutUint64(buf[:], uint64(index))
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte(label))
		_, _ = h.Write([]byte{0})
	})
	binary.LittleEndian.PutUint64(buf[:], uint64(reg.GraphSize()))
	_, _ = h.Write(buf[:])
	return h.Sum(nil)
}
