package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader builds a Config with env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader returns a loader reading files in order (later files win)
// and then environment variables starting with envPrefix. An empty
// prefix disables environment overrides.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{envPrefix: envPrefix, files: files}
}

// Files returns the configured file paths.
func (l *Loader) Files() []string { return append([]string(nil), l.files...) }

// Load assembles and validates the effective configuration.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(structToMap(DefaultConfig()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}
	// Environment keys arrive lower-cased; map them back to the
	// camelCase keys the defaults define.
	canonical := make(map[string]string)
	for _, key := range k.Keys() {
		canonical[strings.ToLower(key)] = key
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Config{}, err
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		transform := func(s string) string {
			// Double underscores nest: IMGCACHE_RESULTCACHE__MAXSIZE -> resultCache.maxSize.
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if mapped, ok := canonical[key]; ok {
				return mapped
			}
			return key
		}
		if err := k.Load(env.Provider(l.envPrefix+"_", ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension %q", ext)
	}
}

// structToMap converts a Config into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	disk := func(d DiskConfig) map[string]any {
		return map[string]any{
			"enabled":    d.Enabled,
			"dir":        d.Dir,
			"maxSize":    d.MaxSize,
			"appVersion": d.AppVersion,
		}
	}
	return map[string]any{
		"memory": map[string]any{
			"maxSize":         cfg.Memory.MaxSize,
			"valueLimitRatio": cfg.Memory.ValueLimitRatio,
			"policy":          cfg.Memory.Policy,
		},
		"resultCache":   disk(cfg.ResultCache),
		"downloadCache": disk(cfg.DownloadCache),
		"executor": map[string]any{
			"networkParallelism": cfg.Executor.NetworkParallelism,
			"decodeParallelism":  cfg.Executor.DecodeParallelism,
		},
		"http": map[string]any{
			"userAgent":      cfg.HTTP.UserAgent,
			"timeoutSeconds": cfg.HTTP.TimeoutSeconds,
		},
		"decode": map[string]any{
			"maxPixels": cfg.Decode.MaxPixels,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
		"metrics": map[string]any{
			"enabled":   cfg.Metrics.Enabled,
			"namespace": cfg.Metrics.Namespace,
		},
	}
}
