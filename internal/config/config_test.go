package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"COACH_DATA_DIR", "OPENAI_API_KEY", "OPENAI_BASE_URL", "COACH_MODEL"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "coach_data", cfg.DataDir)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout.Std())
	assert.Equal(t, filepath.Join("coach_data", "graph.json"), cfg.GraphPath())
	assert.Equal(t, filepath.Join("coach_data", "weekly", "context_memory.json"), cfg.WeeklyContextPath())
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "coach.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /tmp/coach
llm:
  model: local-model
  base_url: http://localhost:8080/v1
  timeout: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/coach", cfg.DataDir)
	assert.Equal(t, "local-model", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:8080/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout.Std())
	assert.Equal(t, 3, cfg.LLM.MaxRetries, "unset fields keep defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "coach.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: from-file\n"), 0o644))

	t.Setenv("COACH_DATA_DIR", "from-env")
	t.Setenv("COACH_MODEL", "env-model")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.DataDir)
	assert.Equal(t, "env-model", cfg.LLM.Model)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "coach.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: [unclosed\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
