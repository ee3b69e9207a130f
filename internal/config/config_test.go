package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gridstone.dev/internal/spec"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridstone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:7777/world", cfg.Server)
	require.Equal(t, "gridstone", cfg.ClientName)
	require.Equal(t, "summary", cfg.Run.Report)
	require.Equal(t, 48, cfg.Packing.CellSize)
	require.True(t, cfg.Tests.Recursive)
	require.Equal(t, spec.Vec3i{X: 0, Y: 64, Z: 0}, cfg.PackOrigin())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server: wss://world.example:7777/world
tests:
  dir: contraptions
  tags: [redstone]
run:
  fail_fast: true
  report: tap
packing:
  origin: [100, 60, -50]
  cell_size: 32
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "wss://world.example:7777/world", cfg.Server)
	require.Equal(t, "contraptions", cfg.Tests.Dir)
	require.Equal(t, []string{"redstone"}, cfg.Tests.Tags)
	require.True(t, cfg.Run.FailFast)
	require.Equal(t, "tap", cfg.Run.Report)
	require.Equal(t, spec.Vec3i{X: 100, Y: 60, Z: -50}, cfg.PackOrigin())
	require.Equal(t, 32, cfg.Packing.CellSize)
	// Untouched sections keep their defaults.
	require.Equal(t, 16, cfg.Record.Radius)
}

func TestLoadRejectsBadServer(t *testing.T) {
	_, err := Load(writeConfig(t, "server: http://not-a-websocket\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "ws://")
}

func TestLoadRejectsUnknownReport(t *testing.T) {
	_, err := Load(writeConfig(t, "run:\n  report: xml\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "run.report")
}

func TestNormalizeFillsBlanks(t *testing.T) {
	cfg, err := Load(writeConfig(t, "client_name: \"\"\npacking:\n  cell_size: 0\n"))
	require.NoError(t, err)
	require.Equal(t, "gridstone", cfg.ClientName)
	require.Equal(t, 48, cfg.Packing.CellSize)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
