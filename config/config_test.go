package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentweave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "mock", cfg.Model.Provider)
	assert.Equal(t, 8, cfg.Agent.MaxToolDepth)
	assert.Equal(t, "none", cfg.Elicit.Mode)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Elicit.WaitTimeout)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  shutdown_timeout: 5s
model:
  provider: anthropic
  name: claude-3-5-sonnet-20241022
  temperature: 0.2
workflow:
  max_iterations: 3
  step_timeout: 45s
elicit:
  mode: forms
  wait_timeout: 90s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Model.Name)
	assert.InDelta(t, 0.2, cfg.Model.Temperature, 1e-9)
	assert.Equal(t, 3, cfg.Workflow.MaxIterations)
	assert.Equal(t, 45*time.Second, cfg.Workflow.StepTimeout)
	assert.Equal(t, "forms", cfg.Elicit.Mode)
	assert.Equal(t, 90*time.Second, cfg.Elicit.WaitTimeout)

	// File must not clobber untouched defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
model:
  provider: openai
`)

	t.Setenv("AGENTWEAVE_SERVER_ADDR", ":7777")
	t.Setenv("AGENTWEAVE_MODEL_PROVIDER", "mock")
	t.Setenv("AGENTWEAVE_AGENT_MAX_TOOL_DEPTH", "12")
	t.Setenv("AGENTWEAVE_ELICIT_WAIT_TIMEOUT", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "mock", cfg.Model.Provider)
	assert.Equal(t, 12, cfg.Agent.MaxToolDepth)
	assert.Equal(t, 30*time.Second, cfg.Elicit.WaitTimeout)
}

func TestEnvIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("AGENTWEAVE_AGENT_MAX_TOOL_DEPTH", "not-a-number")
	t.Setenv("AGENTWEAVE_MODEL_TIMEOUT", "eventually")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Agent.MaxToolDepth)
	assert.Equal(t, 2*time.Minute, cfg.Model.Timeout)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, "model:\n  provider: crystal-ball\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crystal-ball")
}

func TestValidateRejectsIncompleteStore(t *testing.T) {
	for name, body := range map[string]string{
		"file without dir":  "store:\n  backend: file\n",
		"redis without url": "store:\n  backend: redis\n",
		"unknown backend":   "store:\n  backend: carrier-pigeon\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestAPIKeyComesFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-anthropic")

	assert.Equal(t, "sk-test-openai", ModelConfig{Provider: "openai"}.APIKey())
	assert.Equal(t, "sk-test-anthropic", ModelConfig{Provider: "anthropic"}.APIKey())
	assert.Empty(t, ModelConfig{Provider: "mock"}.APIKey())
}
