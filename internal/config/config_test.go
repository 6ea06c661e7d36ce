package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeusphere/internal/core/agents"
	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/optimizer"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	assert.Equal(t, 1e-4, cfg.Projection.CullThreshold)
	assert.Equal(t, 60.0, cfg.Optimizer.TargetFPS)
	assert.Equal(t, 30.0, cfg.Optimizer.AlertFPS)
	assert.Equal(t, time.Second, cfg.Scheduler.MonitorInterval)
	assert.Equal(t, []string{"solid", "liquid", "gas", "plasma"}, cfg.Physics.Phases)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  tick_rate: 30
  ticks: 120
  agents:
    physics: 4
physics:
  seed: 99
  phases: [solid, liquid]
scheduler:
  dispatch_timeout: 20ms
optimizer:
  level: 5
  adaptive: false
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.Engine.TickRate)
	assert.Equal(t, uint64(120), cfg.Engine.Ticks)
	assert.Equal(t, 20*time.Millisecond, cfg.Scheduler.DispatchTimeout)
	assert.Equal(t, DefaultConfig().Scheduler.QueueSize, cfg.Scheduler.QueueSize, "untouched keys keep their default")
	assert.Equal(t, log.LevelDebug, cfg.Log.Level)

	counts, err := cfg.AgentCounts()
	require.NoError(t, err)
	assert.Equal(t, 4, counts[agents.KindPhysics])
	assert.Equal(t, 1, counts[agents.KindRender], "the agents map is merged, not replaced")

	mc, err := cfg.MatterConfig()
	require.NoError(t, err)
	assert.InDelta(t, 1.0/30, mc.Timestep, 1e-15)
	assert.Equal(t, uint64(99), mc.Seed)
	assert.Equal(t, matter.NewPhaseSet(matter.Solid, matter.Liquid), mc.Enabled)

	oc := cfg.OptimizerConfig()
	assert.Equal(t, optimizer.Level(5), oc.Initial)
	assert.False(t, oc.Adaptive)

	sc := cfg.SchedulerConfig()
	assert.Equal(t, 30.0, sc.TickRate)
	assert.Equal(t, uint64(1), sc.CheckpointEvery)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "engine:\n  tick_rat: 30\n", "tick_rat"},
		{"bad phase", "physics:\n  phases: [slime]\n", "slime"},
		{"bad kind", "engine:\n  agents:\n    wizard: 1\n", "wizard"},
		{"no render", "engine:\n  agents:\n    render: 0\n", "render"},
		{"bad level", "optimizer:\n  level: 7\n", "level 7"},
		{"alert above target", "optimizer:\n  alert_fps: 90\n", "alert fps"},
		{"negative cull", "projection:\n  cull_threshold: -1\n", "cull threshold"},
		{"persist without cadence", "checkpoint:\n  dir: /tmp/x\n", "persist_every"},
		{"bad log level", "log:\n  level: loud\n", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
