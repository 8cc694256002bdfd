package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-g", "terrain.hcl"}, &out)
		require.NoError(t, err)
		require.False(t, exit)

		assert.Equal(t, "terrain.hcl", cfg.GraphPath)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "full", cfg.Scope)
		assert.Empty(t, cfg.SavePath)
		assert.Zero(t, cfg.NodeTimeout)
	})

	t.Run("positional graph path", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"terrain.hcl"}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		assert.Equal(t, "terrain.hcl", cfg.GraphPath)
	})

	t.Run("all flags", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{
			"--graph", "terrain.hcl",
			"--save", "out.json",
			"--log-format", "text",
			"--log-level", "debug",
			"--workers", "8",
			"--cache-entries", "64",
			"--node-timeout", "750ms",
			"--scope", "dirty",
		}, &out)
		require.NoError(t, err)
		require.False(t, exit)

		assert.Equal(t, "terrain.hcl", cfg.GraphPath)
		assert.Equal(t, "out.json", cfg.SavePath)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 8, cfg.Workers)
		assert.Equal(t, 64, cfg.CacheEntries)
		assert.Equal(t, 750*time.Millisecond, cfg.NodeTimeout)
		assert.Equal(t, "dirty", cfg.Scope)
	})

	t.Run("no path prints usage and exits cleanly", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse(nil, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("help exits cleanly", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"--help"}, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
	})
}

func TestParseConfigFile(t *testing.T) {
	writeConfig := func(t *testing.T, src string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "engine.hcl")
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
		return path
	}

	t.Run("file values fill unset options", func(t *testing.T) {
		path := writeConfig(t, `
workers       = 8
cache_entries = 4096
node_timeout  = "30s"
log_level     = "debug"
log_format    = "text"
scope         = "dirty"
`)
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-g", "terrain.hcl", "--config", path}, &out)
		require.NoError(t, err)
		require.False(t, exit)

		assert.Equal(t, 8, cfg.Workers)
		assert.Equal(t, 4096, cfg.CacheEntries)
		assert.Equal(t, 30*time.Second, cfg.NodeTimeout)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, "dirty", cfg.Scope)
	})

	t.Run("flags win over the file", func(t *testing.T) {
		path := writeConfig(t, `
workers   = 8
log_level = "debug"
`)
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-g", "terrain.hcl", "--config", path, "--workers", "2"}, &out)
		require.NoError(t, err)
		require.False(t, exit)

		assert.Equal(t, 2, cfg.Workers)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("file values are still validated", func(t *testing.T) {
		path := writeConfig(t, `scope = "partial"`)
		var out bytes.Buffer
		_, _, err := Parse([]string{"-g", "terrain.hcl", "--config", path}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Error(), "invalid scope")
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeConfig(t, `node_timeout = "soon"`)
		var out bytes.Buffer
		_, _, err := Parse([]string{"-g", "terrain.hcl", "--config", path}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Error(), "node_timeout")
	})

	t.Run("unknown attribute", func(t *testing.T) {
		path := writeConfig(t, `turbo = true`)
		var out bytes.Buffer
		_, _, err := Parse([]string{"-g", "terrain.hcl", "--config", path}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-g", "terrain.hcl", "--config", "nope.hcl"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})
}

func TestParseRejections(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"invalid log format", []string{"-g", "x.hcl", "--log-format", "xml"}, "invalid log-format"},
		{"invalid log level", []string{"-g", "x.hcl", "--log-level", "loud"}, "invalid log-level"},
		{"invalid scope", []string{"-g", "x.hcl", "--scope", "partial"}, "invalid scope"},
		{"unknown flag", []string{"-g", "x.hcl", "--turbo"}, "flag provided but not defined"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			_, _, err := Parse(tc.args, &out)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Error(), tc.want)
		})
	}
}
