package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.Discord.Prefix)
	assert.Equal(t, 10, cfg.Agent.MaxHistory)
	assert.Equal(t, 2, cfg.Agent.MaxToolCalls)
	assert.Equal(t, 8, cfg.Agent.RecursionLimit)
	assert.Equal(t, "sqlite", cfg.Storage.Checkpoint.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Tools.CacheTTL)
	assert.Len(t, cfg.Providers.Groq.Models, 4)
	assert.Nil(t, cfg.Discord.RestrictedChannels())
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address)
	assert.False(t, cfg.Server.ExposeHistory)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AHD_DISCORD_TOKEN", "token-b")
	t.Setenv("GROQ_API_KEY", "gsk")
	t.Setenv("OPENAI_API_KEY", "a4f-key")
	t.Setenv("CHANNEL_ID_BOT_TESTING", "1")
	t.Setenv("CHANNEL_ID_EXP", "2")
	t.Setenv("AHD_CHANNEL_ID", "3")
	t.Setenv("ROAST_USER_IDS", "42,43")
	t.Setenv("LATTICE_AGENT_MAX_HISTORY", "6")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "token-b", cfg.Discord.Token)
	assert.Equal(t, "gsk", cfg.Providers.Groq.APIKey)
	assert.Equal(t, "a4f-key", cfg.Providers.A4F.APIKey)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.Discord.RestrictedChannels())
	assert.Equal(t, []string{"42", "43"}, cfg.Discord.RoastTargets)
	assert.Equal(t, 6, cfg.Agent.MaxHistory)
	require.NoError(t, cfg.Validate())
}

func TestPrefixedEnvironmentWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISCORD_TOKEN", "legacy")
	t.Setenv("LATTICE_DISCORD_TOKEN", "prefixed")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Discord.Token)
}

func TestLoadFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GOOGLE_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GOOGLE_API_KEY") })
	path := filepath.Join(dir, "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discord:
  prefix: "?"
  token: abc
agent:
  max_tool_calls: 3
storage:
  checkpoint:
    driver: memory
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "?", cfg.Discord.Prefix)
	assert.Equal(t, 3, cfg.Agent.MaxToolCalls)
	assert.Equal(t, "memory", cfg.Storage.Checkpoint.Driver)
	assert.Equal(t, "from-dotenv", cfg.Providers.Gemini.APIKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Enabled: true}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord token")
	assert.Contains(t, err.Error(), "no LLM provider")
	assert.Contains(t, err.Error(), "server.address")
}

func TestLLMProvidersOrder(t *testing.T) {
	cfg := &Config{}
	cfg.Providers.Groq.APIKey = "k"
	got := cfg.LLMProviders()
	require.Len(t, got, 5)
	assert.Equal(t, "gemini", got[0].Name)
	assert.Equal(t, "k", got[1].APIKey)
	require.NoError(t, cfg.ValidateLLM())
}
