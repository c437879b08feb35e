package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/anchorpoint/internal/config"
	"github.com/banshee-data/anchorpoint/internal/journal"
	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/spatial"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.DefaultPlacementConfig()
	applyOverrides(cfg, overrides{})
	assert.Equal(t, "localhost:8088", cfg.GetHTTPListen())
	assert.False(t, cfg.GetDebugLogging())

	applyOverrides(cfg, overrides{
		HTTPListen:  ":9000",
		GRPCListen:  ":9001",
		JournalPath: "/tmp/j.db",
		TraceDir:    "/tmp/traces",
		Debug:       true,
	})
	assert.Equal(t, ":9000", cfg.GetHTTPListen())
	assert.Equal(t, ":9001", cfg.GetGRPCListen())
	assert.Equal(t, "/tmp/j.db", cfg.GetJournalPath())
	assert.Equal(t, "/tmp/traces", cfg.GetTraceDir())
	assert.True(t, cfg.GetDebugLogging())
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, "", *configPath)
	assert.False(t, *autoEnter)
	assert.InDelta(t, 0.75, *tableHeight, 1e-12)
}

func TestDemoScene(t *testing.T) {
	assert.Len(t, demoPlanes(0), 1)
	assert.Len(t, demoPlanes(0.75), 2)

	for _, d := range []time.Duration{0, 3 * time.Second, 17 * time.Second} {
		p := demoViewer(d)
		require.NoError(t, spatial.Validate(p))
		assert.Less(t, p.Forward().Y, 0.0, "viewer looks down at %s", d)
	}
}

func TestRun_JournalsASession(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultPlacementConfig()
	applyOverrides(cfg, overrides{
		JournalPath: filepath.Join(dir, "journal.db"),
		TraceDir:    filepath.Join(dir, "traces"),
	})
	empty := ""
	cfg.HTTPListen = &empty
	cfg.GRPCListen = &empty
	rate := 200.0
	cfg.FrameRateHz = &rate

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, run(ctx, cfg, options{autoEnter: true, table: 0.75}))

	j, err := journal.Open(cfg.GetJournalPath())
	require.NoError(t, err)
	defer j.Close()
	rows, err := j.RecentSessions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "exited", rows[0].Reason)

	plots, err := filepath.Glob(filepath.Join(dir, "traces", "*.png"))
	require.NoError(t, err)
	assert.Len(t, plots, 2)
}
