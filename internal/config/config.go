package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Edge directions accepted by corpus.direction.
const (
	DirectionBoth     = "both"
	DirectionDirected = "directed"
)

// Config represents the complete conceptrank configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Corpus   CorpusConfig   `yaml:"corpus" json:"corpus"`
	Solver   SolverConfig   `yaml:"solver" json:"solver"`
	Ranking  RankingConfig  `yaml:"ranking" json:"ranking"`
	Labels   LabelsConfig   `yaml:"labels" json:"labels"`
	QueryLog QueryLogConfig `yaml:"querylog" json:"querylog"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// CorpusConfig locates the raw graph sources and their caches.
type CorpusConfig struct {
	// EdgesPath is the tab-delimited edge list (source, target).
	EdgesPath string `yaml:"edges_path" json:"edges_path"`
	// LabelsPath is the tab-delimited label list (id, ignored, label).
	LabelsPath string `yaml:"labels_path" json:"labels_path"`
	// CacheDir holds the four corpus artifacts. Defaults to ~/.conceptrank/cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Direction is "both" (every edge inserted in both directions) or
	// "directed" (edges kept as given, sinks pruned iteratively).
	Direction string `yaml:"direction" json:"direction"`

	// Workers is the number of parser goroutines (default: NumCPU).
	Workers int `yaml:"workers" json:"workers"`
	// BatchLines is the number of lines handed to a parser goroutine at once.
	BatchLines int `yaml:"batch_lines" json:"batch_lines"`
	// ProgressInterval logs parse progress every N lines (0 disables).
	ProgressInterval int `yaml:"progress_interval" json:"progress_interval"`
	// MaxLineWarnings caps individually logged malformed lines.
	MaxLineWarnings int `yaml:"max_line_warnings" json:"max_line_warnings"`

	// Compression is the cache payload codec: "zstd" or "none".
	Compression string `yaml:"compression" json:"compression"`
}

// SolverConfig tunes the stationary distribution solver.
type SolverConfig struct {
	// Damping is the restart probability alpha in [0, 1].
	Damping float64 `yaml:"damping" json:"damping"`
	// Method is "arnoldi" (default) or "power".
	Method string `yaml:"method" json:"method"`
	// Eigenpairs is "single" (request one eigenpair) or "seeds" (request one per seed).
	Eigenpairs string `yaml:"eigenpairs" json:"eigenpairs"`
	// Tolerance is the relative distance from 1.0 accepted for the stationary eigenvalue.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
	// KrylovDim is the Arnoldi subspace size.
	KrylovDim int `yaml:"krylov_dim" json:"krylov_dim"`
	// MaxRestarts bounds Arnoldi restarts.
	MaxRestarts int `yaml:"max_restarts" json:"max_restarts"`
	// MaxIterations bounds power iteration.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	// Convergence is the residual norm at which an eigenpair is accepted.
	Convergence float64 `yaml:"convergence" json:"convergence"`
	// Timeout is the per-query deadline (e.g. "30s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// RankingConfig configures result shaping and the result cache.
type RankingConfig struct {
	TopN      int `yaml:"top_n" json:"top_n"`
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// Workers bounds concurrent queries in a batch.
	Workers int `yaml:"workers" json:"workers"`
}

// LabelsConfig configures the label search index.
type LabelsConfig struct {
	// Index is "memory" (default), "disk" (persisted under the cache dir) or "off".
	Index string `yaml:"index" json:"index"`
}

// QueryLogConfig configures the query history sink and request queue.
type QueryLogConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn" json:"dsn"`
	// MaxFailures opens the sink's circuit breaker after N consecutive failures.
	MaxFailures int `yaml:"max_failures" json:"max_failures"`
}

// ServerConfig configures the serving process.
type ServerConfig struct {
	Transport    string `yaml:"transport" json:"transport"`
	LogLevel     string `yaml:"log_level" json:"log_level"`
	SocketPath   string `yaml:"socket_path" json:"socket_path"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	PollBatch    int    `yaml:"poll_batch" json:"poll_batch"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Corpus: CorpusConfig{
			CacheDir:         filepath.Join(DataDir(), "cache"),
			Direction:        DirectionBoth,
			Workers:          runtime.NumCPU(),
			BatchLines:       65536,
			ProgressInterval: 1_000_000,
			MaxLineWarnings:  20,
			Compression:      "zstd",
		},
		Solver: SolverConfig{
			Damping:       0.2,
			Method:        "arnoldi",
			Eigenpairs:    "single",
			Tolerance:     1e-6,
			KrylovDim:     20,
			MaxRestarts:   300,
			MaxIterations: 10000,
			Convergence:   1e-10,
			Timeout:       "60s",
		},
		Ranking: RankingConfig{
			TopN:      20,
			CacheSize: 256,
			Workers:   runtime.NumCPU(),
		},
		Labels: LabelsConfig{
			Index: "memory",
		},
		QueryLog: QueryLogConfig{
			Enabled:     false,
			Driver:      "sqlite",
			DSN:         filepath.Join(DataDir(), "querylog.db"),
			MaxFailures: 5,
		},
		Server: ServerConfig{
			Transport:    "stdio",
			LogLevel:     "info",
			SocketPath:   filepath.Join(DataDir(), "conceptrank.sock"),
			PollInterval: "2s",
			PollBatch:    16,
		},
	}
}

// DataDir returns ~/.conceptrank, the home of caches, logs and sockets.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".conceptrank")
	}
	return filepath.Join(home, ".conceptrank")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/conceptrank/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/conceptrank/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "conceptrank", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "conceptrank", "config.yaml")
	}
	return filepath.Join(home, ".config", "conceptrank", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig returns nil, nil when there is no user config.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parsed.readYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	parsed.resolvePaths(filepath.Dir(configPath))
	return &parsed, nil
}

// Load loads configuration for the given directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/conceptrank/config.yaml)
//  3. Project config (.conceptrank.yaml in dir)
//  4. Environment variables (CONCEPTRANK_*)
//
// Relative paths in a config file are resolved against that file's directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads .conceptrank.yaml or .conceptrank.yml from dir.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".conceptrank.yaml", ".conceptrank.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := parsed.readYAML(path); err != nil {
			return err
		}
		parsed.resolvePaths(dir)
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func (c *Config) readYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Corpus.EdgesPath = abs(c.Corpus.EdgesPath)
	c.Corpus.LabelsPath = abs(c.Corpus.LabelsPath)
	c.Corpus.CacheDir = abs(c.Corpus.CacheDir)
	if c.QueryLog.Driver != "postgres" {
		c.QueryLog.DSN = abs(c.QueryLog.DSN)
	}
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Corpus
	if other.Corpus.EdgesPath != "" {
		c.Corpus.EdgesPath = other.Corpus.EdgesPath
	}
	if other.Corpus.LabelsPath != "" {
		c.Corpus.LabelsPath = other.Corpus.LabelsPath
	}
	if other.Corpus.CacheDir != "" {
		c.Corpus.CacheDir = other.Corpus.CacheDir
	}
	if other.Corpus.Direction != "" {
		c.Corpus.Direction = other.Corpus.Direction
	}
	if other.Corpus.Workers != 0 {
		c.Corpus.Workers = other.Corpus.Workers
	}
	if other.Corpus.BatchLines != 0 {
		c.Corpus.BatchLines = other.Corpus.BatchLines
	}
	if other.Corpus.ProgressInterval != 0 {
		c.Corpus.ProgressInterval = other.Corpus.ProgressInterval
	}
	if other.Corpus.MaxLineWarnings != 0 {
		c.Corpus.MaxLineWarnings = other.Corpus.MaxLineWarnings
	}
	if other.Corpus.Compression != "" {
		c.Corpus.Compression = other.Corpus.Compression
	}

	// Solver. A damping of exactly 0 can only be set through CONCEPTRANK_DAMPING
	// or per query.
	if other.Solver.Damping != 0 {
		c.Solver.Damping = other.Solver.Damping
	}
	if other.Solver.Method != "" {
		c.Solver.Method = other.Solver.Method
	}
	if other.Solver.Eigenpairs != "" {
		c.Solver.Eigenpairs = other.Solver.Eigenpairs
	}
	if other.Solver.Tolerance != 0 {
		c.Solver.Tolerance = other.Solver.Tolerance
	}
	if other.Solver.KrylovDim != 0 {
		c.Solver.KrylovDim = other.Solver.KrylovDim
	}
	if other.Solver.MaxRestarts != 0 {
		c.Solver.MaxRestarts = other.Solver.MaxRestarts
	}
	if other.Solver.MaxIterations != 0 {
		c.Solver.MaxIterations = other.Solver.MaxIterations
	}
	if other.Solver.Convergence != 0 {
		c.Solver.Convergence = other.Solver.Convergence
	}
	if other.Solver.Timeout != "" {
		c.Solver.Timeout = other.Solver.Timeout
	}

	// Ranking
	if other.Ranking.TopN != 0 {
		c.Ranking.TopN = other.Ranking.TopN
	}
	if other.Ranking.CacheSize != 0 {
		c.Ranking.CacheSize = other.Ranking.CacheSize
	}
	if other.Ranking.Workers != 0 {
		c.Ranking.Workers = other.Ranking.Workers
	}

	if other.Labels.Index != "" {
		c.Labels.Index = other.Labels.Index
	}

	// Query log
	if other.QueryLog.Enabled {
		c.QueryLog.Enabled = true
	}
	if other.QueryLog.Driver != "" {
		c.QueryLog.Driver = other.QueryLog.Driver
	}
	if other.QueryLog.DSN != "" {
		c.QueryLog.DSN = other.QueryLog.DSN
	}
	if other.QueryLog.MaxFailures != 0 {
		c.QueryLog.MaxFailures = other.QueryLog.MaxFailures
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.SocketPath != "" {
		c.Server.SocketPath = other.Server.SocketPath
	}
	if other.Server.PollInterval != "" {
		c.Server.PollInterval = other.Server.PollInterval
	}
	if other.Server.PollBatch != 0 {
		c.Server.PollBatch = other.Server.PollBatch
	}
}

// applyEnvOverrides applies CONCEPTRANK_* variables.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"CONCEPTRANK_EDGES":            &c.Corpus.EdgesPath,
		"CONCEPTRANK_LABELS":           &c.Corpus.LabelsPath,
		"CONCEPTRANK_CACHE_DIR":        &c.Corpus.CacheDir,
		"CONCEPTRANK_DIRECTION":        &c.Corpus.Direction,
		"CONCEPTRANK_SOLVER_METHOD":    &c.Solver.Method,
		"CONCEPTRANK_EIGENPAIRS":       &c.Solver.Eigenpairs,
		"CONCEPTRANK_SOLVER_TIMEOUT":   &c.Solver.Timeout,
		"CONCEPTRANK_LABEL_INDEX":      &c.Labels.Index,
		"CONCEPTRANK_QUERYLOG_DRIVER":  &c.QueryLog.Driver,
		"CONCEPTRANK_QUERYLOG_DSN":     &c.QueryLog.DSN,
		"CONCEPTRANK_LOG_LEVEL":        &c.Server.LogLevel,
		"CONCEPTRANK_SOCKET":           &c.Server.SocketPath,
		"CONCEPTRANK_POLL_INTERVAL":    &c.Server.PollInterval,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"CONCEPTRANK_DAMPING":   &c.Solver.Damping,
		"CONCEPTRANK_TOLERANCE": &c.Solver.Tolerance,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := parseFloat64(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"CONCEPTRANK_WORKERS": &c.Corpus.Workers,
		"CONCEPTRANK_TOP_N":   &c.Ranking.TopN,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: invalid integer %q", key, v)
			}
			*dst = n
		}
	}

	if v := os.Getenv("CONCEPTRANK_QUERYLOG"); v != "" {
		c.QueryLog.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func parseFloat64(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch c.Corpus.Direction {
	case DirectionBoth, DirectionDirected:
	default:
		return fmt.Errorf("corpus.direction must be 'both' or 'directed', got %s", c.Corpus.Direction)
	}
	if c.Corpus.Workers < 1 {
		return fmt.Errorf("corpus.workers must be positive, got %d", c.Corpus.Workers)
	}
	if c.Corpus.BatchLines < 1 {
		return fmt.Errorf("corpus.batch_lines must be positive, got %d", c.Corpus.BatchLines)
	}
	if c.Corpus.Compression != "zstd" && c.Corpus.Compression != "none" {
		return fmt.Errorf("corpus.compression must be 'zstd' or 'none', got %s", c.Corpus.Compression)
	}

	if math.IsNaN(c.Solver.Damping) || c.Solver.Damping < 0 || c.Solver.Damping > 1 {
		return fmt.Errorf("solver.damping must be between 0 and 1, got %f", c.Solver.Damping)
	}
	if c.Solver.Method != "arnoldi" && c.Solver.Method != "power" {
		return fmt.Errorf("solver.method must be 'arnoldi' or 'power', got %s", c.Solver.Method)
	}
	if c.Solver.Eigenpairs != "single" && c.Solver.Eigenpairs != "seeds" {
		return fmt.Errorf("solver.eigenpairs must be 'single' or 'seeds', got %s", c.Solver.Eigenpairs)
	}
	if c.Solver.Tolerance < 1e-12 || c.Solver.Tolerance > 1e-1 {
		return fmt.Errorf("solver.tolerance must be between 1e-12 and 1e-1, got %g", c.Solver.Tolerance)
	}
	if c.Solver.KrylovDim < 2 {
		return fmt.Errorf("solver.krylov_dim must be at least 2, got %d", c.Solver.KrylovDim)
	}
	if c.Solver.MaxRestarts < 1 || c.Solver.MaxIterations < 1 {
		return fmt.Errorf("solver.max_restarts and solver.max_iterations must be positive")
	}
	if c.Solver.Convergence <= 0 {
		return fmt.Errorf("solver.convergence must be positive, got %g", c.Solver.Convergence)
	}
	if _, err := c.Solver.TimeoutDuration(); err != nil {
		return err
	}

	if c.Ranking.TopN < 1 {
		return fmt.Errorf("ranking.top_n must be positive, got %d", c.Ranking.TopN)
	}
	if c.Ranking.CacheSize < 0 {
		return fmt.Errorf("ranking.cache_size must be non-negative, got %d", c.Ranking.CacheSize)
	}
	if c.Ranking.Workers < 1 {
		return fmt.Errorf("ranking.workers must be positive, got %d", c.Ranking.Workers)
	}

	switch c.Labels.Index {
	case "memory", "disk", "off":
	default:
		return fmt.Errorf("labels.index must be 'memory', 'disk' or 'off', got %s", c.Labels.Index)
	}

	if c.QueryLog.Driver != "sqlite" && c.QueryLog.Driver != "postgres" {
		return fmt.Errorf("querylog.driver must be 'sqlite' or 'postgres', got %s", c.QueryLog.Driver)
	}
	if c.QueryLog.Enabled && c.QueryLog.DSN == "" {
		return fmt.Errorf("querylog.dsn is required when the query log is enabled")
	}

	validTransports := map[string]bool{"stdio": true, "socket": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'socket', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	if _, err := c.Server.PollIntervalDuration(); err != nil {
		return err
	}
	if c.Server.PollBatch < 1 {
		return fmt.Errorf("server.poll_batch must be positive, got %d", c.Server.PollBatch)
	}
	return nil
}

// Symmetrize reports whether edges are inserted in both directions.
func (c CorpusConfig) Symmetrize() bool {
	return c.Direction == DirectionBoth
}

// TimeoutDuration parses solver.timeout.
func (s SolverConfig) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("solver.timeout must be a positive duration, got %q", s.Timeout)
	}
	return d, nil
}

// PollIntervalDuration parses server.poll_interval.
func (s ServerConfig) PollIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(s.PollInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("server.poll_interval must be a positive duration, got %q", s.PollInterval)
	}
	return d, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
