package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.8, cfg.Memory.ValueLimitRatio)
	assert.True(t, cfg.ResultCache.Enabled)
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Parallel()
	cfg, err := NewLoader("").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileFormats(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	files := map[string]string{
		"c.yaml": "memory:\n  maxSize: 1048576\n  policy: 2q\nresultCache:\n  dir: /tmp/r\n",
		"c.json": `{"memory": {"maxSize": 1048576, "policy": "2q"}, "resultCache": {"dir": "/tmp/r"}}`,
		"c.toml": "[memory]\nmaxSize = 1048576\npolicy = \"2q\"\n[resultCache]\ndir = \"/tmp/r\"\n",
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			writeFile(t, path, body)
			cfg, err := NewLoader("", path).Load(context.Background())
			require.NoError(t, err)
			assert.EqualValues(t, 1<<20, cfg.Memory.MaxSize)
			assert.Equal(t, "2q", cfg.Memory.Policy)
			assert.Equal(t, "/tmp/r", cfg.ResultCache.Dir)
			assert.Equal(t, 0.8, cfg.Memory.ValueLimitRatio, "unset keys keep defaults")
		})
	}
}

func TestLoad_LaterFilesWin(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	base, override := filepath.Join(dir, "base.yaml"), filepath.Join(dir, "override.yaml")
	writeFile(t, base, "memory:\n  maxSize: 1000\n  policy: 2q\n")
	writeFile(t, override, "memory:\n  maxSize: 2000\n")

	cfg, err := NewLoader("", base, override).Load(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2000, cfg.Memory.MaxSize)
	assert.Equal(t, "2q", cfg.Memory.Policy)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	writeFile(t, path, "memory:\n  maxSize: 1000\ndownloadCache:\n  maxSize: 5000\n")
	t.Setenv("IMGCACHETEST_MEMORY__MAXSIZE", "4096")
	t.Setenv("IMGCACHETEST_DOWNLOADCACHE__ENABLED", "false")
	t.Setenv("IMGCACHETEST_EXECUTOR__NETWORK_PARALLELISM", "7")

	cfg, err := NewLoader("IMGCACHETEST", path).Load(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4096, cfg.Memory.MaxSize)
	assert.False(t, cfg.DownloadCache.Enabled)
	assert.EqualValues(t, 5000, cfg.DownloadCache.MaxSize)
	assert.Equal(t, 7, cfg.Executor.NetworkParallelism)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := NewLoader("", filepath.Join(dir, "missing.yaml")).Load(context.Background())
	require.ErrorContains(t, err, "not found")

	ini := filepath.Join(dir, "c.ini")
	writeFile(t, ini, "x=1")
	_, err = NewLoader("", ini).Load(context.Background())
	require.ErrorContains(t, err, "unsupported file extension")

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "memory:\n  maxSize: -1\n  valueLimitRatio: 1.5\n  policy: arc\n")
	_, err = NewLoader("", bad).Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
	assert.ErrorContains(t, err, "memory.maxSize")
	assert.ErrorContains(t, err, "valueLimitRatio")
	assert.ErrorContains(t, err, "arc")
}

func TestValidate_DisabledTierSkipsChecks(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.ResultCache = DiskConfig{Enabled: false}
	require.NoError(t, cfg.Validate())
	cfg.ResultCache.Enabled = true
	require.Error(t, cfg.Validate())
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	writeFile(t, path, "memory:\n  maxSize: 1000\n")

	changes := make(chan Config, 4)
	errs := make(chan error, 4)
	w, err := NewLoader("", path).Watch(ctx, func(c Config) { changes <- c }, func(err error) { errs <- err })
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, path, "memory:\n  maxSize: 2000\n")
	select {
	case cfg := <-changes:
		assert.EqualValues(t, 2000, cfg.Memory.MaxSize)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	writeFile(t, path, "memory:\n  maxSize: -5\n")
	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "memory.maxSize")
	case cfg := <-changes:
		t.Fatalf("invalid config must not be delivered: %+v", cfg)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for validation error")
	}
}

func TestWatch_RequiresFiles(t *testing.T) {
	t.Parallel()
	_, err := NewLoader("").Watch(context.Background(), func(Config) {}, nil)
	require.Error(t, err)
	_, err = NewLoader("", "x.yaml").Watch(context.Background(), nil, nil)
	require.Error(t, err)
}
