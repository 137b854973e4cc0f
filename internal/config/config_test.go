package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, 0.95, cfg.Engine.DuplicateThreshold)
	assert.Equal(t, 5, cfg.Engine.MaxNamespaceDepth)
	assert.Equal(t, 0.1, cfg.Confidence.Boost)
	assert.Equal(t, 0.2, cfg.Confidence.Penalty)
	assert.Equal(t, 3, cfg.Confidence.DiversityMaxTypes)
	assert.Equal(t, 1.0, cfg.Confidence.InstanceTrust)
	assert.Equal(t, 300*time.Second, cfg.Confidence.CacheTTL)
	assert.Equal(t, 4*time.Hour, cfg.Confidence.HalfLifeEphemeral)
	assert.Equal(t, 3*24*time.Hour, cfg.Confidence.HalfLifeTask)
	assert.Equal(t, 4*7*24*time.Hour, cfg.Confidence.HalfLifeProject)
	assert.Equal(t, 6*30*24*time.Hour, cfg.Confidence.HalfLifePermanent)
	assert.Equal(t, 30*24*time.Hour, cfg.Janitor.GCRetention)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOSWELL_DUPLICATE_THRESHOLD", "0.9")
	t.Setenv("BOSWELL_EMBEDDING_DIMENSION", "384")
	t.Setenv("BOSWELL_STALENESS_HALF_LIFE_TASK", "48h")
	t.Setenv("BOSWELL_LLM_PROVIDER", "static")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Engine.DuplicateThreshold)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 48*time.Hour, cfg.Confidence.HalfLifeTask)
	assert.Equal(t, "static", cfg.LLM.Provider)
}

func TestLoad_YAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boswell.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  engine: sqlite
  database_path: /var/lib/boswell/claims.db
engine:
  duplicate_threshold: 0.85
`), 0o644))

	t.Setenv("BOSWELL_DUPLICATE_THRESHOLD", "0.8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/boswell/claims.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.8, cfg.Engine.DuplicateThreshold, "env overrides the file")
}

func TestLoad_InvalidConfig(t *testing.T) {
	t.Run("bad engine", func(t *testing.T) {
		t.Setenv("BOSWELL_STORAGE_ENGINE", "cassandra")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("bad threshold", func(t *testing.T) {
		t.Setenv("BOSWELL_DUPLICATE_THRESHOLD", "1.5")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/does/not/exist.yaml")
		assert.Error(t, err)
	})
}

func TestHalfLife_PerTier(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, cfg.Confidence.HalfLifeEphemeral, cfg.Confidence.HalfLife("ephemeral"))
	assert.Equal(t, cfg.Confidence.HalfLifeTask, cfg.Confidence.HalfLife("task"))
	assert.Equal(t, cfg.Confidence.HalfLifeProject, cfg.Confidence.HalfLife("project"))
	assert.Equal(t, cfg.Confidence.HalfLifePermanent, cfg.Confidence.HalfLife("permanent"))
	assert.Equal(t, cfg.Confidence.HalfLifeTask, cfg.Confidence.HalfLife("unknown"))
}
