// Package telemetry keeps in-process counters about ranking queries.
// Nothing leaves the process; the daemon exposes a snapshot over its
// status call.
package telemetry

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket maps a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// RankEvent describes one finished ranking query.
type RankEvent struct {
	QueryID    string
	Seeds      []int64
	Latency    time.Duration
	Results    int
	Cached     bool
	Degenerate bool
	// ErrCode is the error code of a failed query, empty on success.
	ErrCode string
}

// Failure is a recently failed query.
type Failure struct {
	QueryID string    `json:"query_id"`
	Code    string    `json:"code"`
	At      time.Time `json:"at"`
}

// SeedCount is how often a concept was used as a seed.
type SeedCount struct {
	ID    int64 `json:"id"`
	Count int64 `json:"count"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Since        time.Time               `json:"since"`
	Total        int64                   `json:"total"`
	Failed       int64                   `json:"failed"`
	CacheHits    int64                   `json:"cache_hits"`
	Degenerate   int64                   `json:"degenerate"`
	Latencies    map[LatencyBucket]int64 `json:"latencies"`
	ErrorCodes   map[string]int64        `json:"error_codes,omitempty"`
	TopSeeds     []SeedCount             `json:"top_seeds,omitempty"`
	RecentErrors []Failure               `json:"recent_errors,omitempty"`
}

// CacheHitRate is the fraction of successful queries served from cache.
func (s *Snapshot) CacheHitRate() float64 {
	ok := s.Total - s.Failed
	if ok <= 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(ok)
}

// Config sizes the bounded collections.
type Config struct {
	TopSeedsCapacity int
	FailuresCapacity int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		TopSeedsCapacity: 100,
		FailuresCapacity: 50,
	}
}

// Metrics collects ranking counters. Safe for concurrent use.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	total      int64
	failed     int64
	cacheHits  int64
	degenerate int64
	latencies  map[LatencyBucket]int64
	errorCodes map[string]int64
	seeds      *lru.Cache[int64, int64]
	failures   *CircularBuffer[Failure]
	now        func() time.Time
}

// New creates a collector with the default configuration.
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a collector.
func NewWithConfig(cfg Config) *Metrics {
	if cfg.TopSeedsCapacity <= 0 {
		cfg.TopSeedsCapacity = 100
	}
	if cfg.FailuresCapacity <= 0 {
		cfg.FailuresCapacity = 50
	}
	seeds, _ := lru.New[int64, int64](cfg.TopSeedsCapacity)
	return &Metrics{
		start:      time.Now(),
		latencies:  make(map[LatencyBucket]int64),
		errorCodes: make(map[string]int64),
		seeds:      seeds,
		failures:   NewCircularBuffer[Failure](cfg.FailuresCapacity),
		now:        time.Now,
	}
}

// Record adds ev to the counters.
func (m *Metrics) Record(ev RankEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if ev.ErrCode != "" {
		m.failed++
		m.errorCodes[ev.ErrCode]++
		m.failures.Add(Failure{QueryID: ev.QueryID, Code: ev.ErrCode, At: m.now()})
		return
	}

	m.latencies[LatencyToBucket(ev.Latency)]++
	if ev.Cached {
		m.cacheHits++
	}
	if ev.Degenerate {
		m.degenerate++
	}
	for _, id := range ev.Seeds {
		n, _ := m.seeds.Get(id)
		m.seeds.Add(id, n+1)
	}
}

// Snapshot copies the current counters. TopSeeds is sorted by count
// descending, then by id.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		Since:      m.start,
		Total:      m.total,
		Failed:     m.failed,
		CacheHits:  m.cacheHits,
		Degenerate: m.degenerate,
		Latencies:  make(map[LatencyBucket]int64, len(m.latencies)),
	}
	for k, v := range m.latencies {
		s.Latencies[k] = v
	}
	if len(m.errorCodes) > 0 {
		s.ErrorCodes = make(map[string]int64, len(m.errorCodes))
		for k, v := range m.errorCodes {
			s.ErrorCodes[k] = v
		}
	}
	for _, id := range m.seeds.Keys() {
		if n, ok := m.seeds.Peek(id); ok {
			s.TopSeeds = append(s.TopSeeds, SeedCount{ID: id, Count: n})
		}
	}
	sort.Slice(s.TopSeeds, func(i, j int) bool {
		if s.TopSeeds[i].Count != s.TopSeeds[j].Count {
			return s.TopSeeds[i].Count > s.TopSeeds[j].Count
		}
		return s.TopSeeds[i].ID < s.TopSeeds[j].ID
	})
	s.RecentErrors = m.failures.Items()
	return s
}
