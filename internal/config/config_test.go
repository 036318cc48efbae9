package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sales-coach", cfg.Chat.DefaultAgentSlug)
	assert.Equal(t, "v1", cfg.Chat.DefaultPromptVersion)
	assert.Equal(t, 4000, cfg.Chat.MaxContentLength)
	assert.Equal(t, 100, cfg.RateLimit.UserHourlyLimit)
	assert.Equal(t, 25, cfg.RateLimit.UserBurstLimit)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.UserBurstWindow)
	assert.Equal(t, 1250, cfg.RateLimit.GlobalHourlyLimit)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, 800, cfg.LLM.Generation.StreamMaxTokens)
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "server:\n  port: \"9090\"\nrate_limit:\n  user_burst_limit: 5\nllm:\n  timeout: 30s\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("FVC_LLM_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.RateLimit.UserBurstLimit)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
