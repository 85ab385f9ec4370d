package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "jumptrainer", cfg.Logger.ServiceName)
	assert.Equal(t, 4, cfg.Simulation.AgentCount)
	assert.Equal(t, 60, cfg.Simulation.EpisodeBudget)
	assert.Equal(t, 60, cfg.Simulation.TicksPerSecond)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, "jumptrainer.db", cfg.Store.DBPath)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30, cfg.Server.MaxFPS)
	assert.Equal(t, 4, cfg.Evaluate.Workers)
	assert.Empty(t, cfg.Sentry.DSN)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	t.Run("unknown store kind", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Store.Kind = "postgres"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store.kind must be one of memory|sqlite")
	})

	t.Run("sqlite without path", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Store.DBPath = " "
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store.db_path is required")
	})

	t.Run("memory store ignores path", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Store.Kind = "memory"
		cfg.Store.DBPath = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("empty server address", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Server.Addr = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative workers", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Evaluate.Workers = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log format", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Logger.Format = "xml"
		assert.Error(t, cfg.Validate())
	})

	t.Run("simulation values are never rejected", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Simulation.AgentCount = 500
		cfg.Simulation.EpisodeBudget = -4
		cfg.Simulation.TicksPerSecond = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestNewConfigFromViperYAML(t *testing.T) {
	yamlBytes := []byte(`
simulation:
  agent_count: 9
  seed: 77
store:
  kind: memory
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Simulation.AgentCount)
	assert.Equal(t, int64(77), cfg.Simulation.Seed)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, 60, cfg.Simulation.EpisodeBudget)
}

func TestLoadReadsExplicitFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jumptrainer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  episode_budget: 5\n"), 0o644))
	t.Setenv("JUMPTRAINER_SIMULATION_AGENT_COUNT", "12")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Simulation.EpisodeBudget)
	assert.Equal(t, 12, cfg.Simulation.AgentCount)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadWithoutDefaultFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Simulation.AgentCount)
}
