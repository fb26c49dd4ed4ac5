// Package daemon serves ranking queries from a long-running process: a
// Unix-socket JSON-RPC server for the CLI and a poller that drains the
// request queue. The corpus stays loaded between requests.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/conceptrank/internal/config"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	PIDPath string

	// Timeout bounds one client-daemon exchange.
	Timeout time.Duration

	// PollInterval is the delay between request queue polls.
	PollInterval time.Duration

	// PollBatch is the maximum number of requests claimed per poll.
	PollBatch int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	dir := config.DataDir()
	return Config{
		SocketPath:   filepath.Join(dir, "conceptrank.sock"),
		PIDPath:      filepath.Join(dir, "conceptrank.pid"),
		Timeout:      90 * time.Second,
		PollInterval: 2 * time.Second,
		PollBatch:    16,
	}
}

// FromConfig derives the daemon settings from the application config.
func FromConfig(cfg *config.Config) (Config, error) {
	d := DefaultConfig()
	if cfg.Server.SocketPath != "" {
		d.SocketPath = cfg.Server.SocketPath
		d.PIDPath = filepath.Join(filepath.Dir(cfg.Server.SocketPath), "conceptrank.pid")
	}
	interval, err := cfg.Server.PollIntervalDuration()
	if err != nil {
		return Config{}, err
	}
	d.PollInterval = interval
	d.PollBatch = cfg.Server.PollBatch
	if solve, err := cfg.Solver.TimeoutDuration(); err == nil && solve+10*time.Second > d.Timeout {
		d.Timeout = solve + 10*time.Second
	}
	return d, d.Validate()
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.PollBatch <= 0 {
		return fmt.Errorf("poll batch must be positive")
	}
	return nil
}

// EnsureDir creates the directories of the socket and PID files.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
