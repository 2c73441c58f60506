package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()

	require.NoError(t, cmd.ParseFlags([]string{
		"--config", "cspserve.yaml",
		"--addr", ":9000",
		"--root", "public",
		"--log-level", "debug",
	}))

	configPath, err := cmd.Flags().GetString("config")
	require.NoError(t, err)
	assert.Equal(t, "cspserve.yaml", configPath)

	addr, err := cmd.Flags().GetString("addr")
	require.NoError(t, err)
	assert.Equal(t, ":9000", addr)
}

func TestBuildConfigSourceWithoutFile(t *testing.T) {
	source, closeSource, err := buildConfigSource("", ":9000", "public", slog.Default())
	require.NoError(t, err)
	defer closeSource()

	cfg := source.Current()
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "public", cfg.Server.Root)
}

func TestBuildConfigSourceDefaults(t *testing.T) {
	source, closeSource, err := buildConfigSource("", "", "", slog.Default())
	require.NoError(t, err)
	defer closeSource()

	cfg := source.Current()
	assert.Equal(t, ":4200", cfg.Server.Address)
	assert.True(t, cfg.Policy.IsEnabled())
}

func TestBuildConfigSourceWithFileReappliesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cspserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":4200\"\n"), 0o644))

	source, closeSource, err := buildConfigSource(path, ":9000", "public", slog.Default())
	require.NoError(t, err)
	defer closeSource()

	// The flag overrides win over the file's values.
	assert.Equal(t, ":9000", source.Current().Server.Address)
	assert.Equal(t, "public", source.Current().Server.Root)

	// A reload republishes the config with the flags still applied.
	// The logging level is not flag-controlled, so it signals that the
	// reload actually happened.
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":5000\"\nlogging:\n  level: \"debug\"\n"), 0o644))

	require.Eventually(t, func() bool {
		return source.Current().Logging.Level == "debug"
	}, 5*time.Second, 25*time.Millisecond)
	assert.Equal(t, ":9000", source.Current().Server.Address)
	assert.Equal(t, "public", source.Current().Server.Root)
}
