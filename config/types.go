// Package config loads loader settings from defaults, files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
)

const (
	mb = 1 << 20

	// DefaultEnvPrefix prefixes environment overrides:
	// IMGCACHE_MEMORY__MAXSIZE=1048576 sets memory.maxSize.
	DefaultEnvPrefix = "IMGCACHE"
)

// Config is the full loader configuration.
type Config struct {
	Memory        MemoryConfig   `koanf:"memory"`
	ResultCache   DiskConfig     `koanf:"resultCache"`
	DownloadCache DiskConfig     `koanf:"downloadCache"`
	Executor      ExecutorConfig `koanf:"executor"`
	HTTP          HTTPConfig     `koanf:"http"`
	Decode        DecodeConfig   `koanf:"decode"`
	Logging       LoggingConfig  `koanf:"logging"`
	Metrics       MetricsConfig  `koanf:"metrics"`
}

// MemoryConfig sizes the decoded-image memory cache.
type MemoryConfig struct {
	MaxSize int64 `koanf:"maxSize"`
	// ValueLimitRatio caps a single image at this fraction of MaxSize.
	ValueLimitRatio float64 `koanf:"valueLimitRatio"`
	// Policy is "lru" or "2q".
	Policy string `koanf:"policy"`
}

// DiskConfig describes one disk cache tier.
type DiskConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Dir        string `koanf:"dir"`
	MaxSize    int64  `koanf:"maxSize"`
	AppVersion int    `koanf:"appVersion"`
}

// ExecutorConfig sizes the worker pools; zero derives them from the CPU count.
type ExecutorConfig struct {
	NetworkParallelism int `koanf:"networkParallelism"`
	DecodeParallelism  int `koanf:"decodeParallelism"`
}

// HTTPConfig tunes the network fetcher.
type HTTPConfig struct {
	UserAgent      string `koanf:"userAgent"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
}

// DecodeConfig bounds decoding.
type DecodeConfig struct {
	MaxPixels int64 `koanf:"maxPixels"`
}

// LoggingConfig selects slog level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig controls Prometheus export.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

// DefaultConfig mirrors the usual mobile defaults: a 128 MiB memory
// cache, 200 MiB of results and 300 MiB of downloads on disk.
func DefaultConfig() Config {
	root := filepath.Join(os.TempDir(), "imgcache")
	if dir, err := os.UserCacheDir(); err == nil {
		root = filepath.Join(dir, "imgcache")
	}
	return Config{
		Memory: MemoryConfig{
			MaxSize:         128 * mb,
			ValueLimitRatio: 0.8,
			Policy:          "lru",
		},
		ResultCache: DiskConfig{
			Enabled:    true,
			Dir:        filepath.Join(root, "result"),
			MaxSize:    200 * mb,
			AppVersion: 1,
		},
		DownloadCache: DiskConfig{
			Enabled:    true,
			Dir:        filepath.Join(root, "download"),
			MaxSize:    300 * mb,
			AppVersion: 1,
		},
		HTTP: HTTPConfig{
			UserAgent:      "imgcache/1",
			TimeoutSeconds: 30,
		},
		Decode: DecodeConfig{
			MaxPixels: 64 * mb,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "imgcache",
		},
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Memory.MaxSize <= 0 {
		errs = append(errs, errors.New("memory.maxSize must be positive"))
	}
	if c.Memory.ValueLimitRatio <= 0 || c.Memory.ValueLimitRatio > 1 {
		errs = append(errs, fmt.Errorf("memory.valueLimitRatio must be within (0, 1], got %v", c.Memory.ValueLimitRatio))
	}
	switch strings.ToLower(c.Memory.Policy) {
	case "", "lru", "2q":
	default:
		errs = append(errs, fmt.Errorf("memory.policy %q is not lru or 2q", c.Memory.Policy))
	}
	errs = append(errs, c.ResultCache.validate("resultCache")...)
	errs = append(errs, c.DownloadCache.validate("downloadCache")...)
	if c.Executor.NetworkParallelism < 0 || c.Executor.DecodeParallelism < 0 {
		errs = append(errs, errors.New("executor parallelism must not be negative"))
	}
	if c.HTTP.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("http.timeoutSeconds must not be negative"))
	}
	if c.Decode.MaxPixels < 0 {
		errs = append(errs, errors.New("decode.maxPixels must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return platformerrors.Wrap(errors.Join(errs...), platformerrors.CodeInvalidConfig, "invalid configuration")
}

func (d DiskConfig) validate(name string) []error {
	if !d.Enabled {
		return nil
	}
	var errs []error
	if d.Dir == "" {
		errs = append(errs, fmt.Errorf("%s.dir is required when enabled", name))
	}
	if d.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("%s.maxSize must be positive", name))
	}
	if d.AppVersion < 0 {
		errs = append(errs, fmt.Errorf("%s.appVersion must not be negative", name))
	}
	return errs
}
