// File path: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicodishanthj/testcase_agent/internal/attachment"
	"github.com/nicodishanthj/testcase_agent/internal/llm"
	"github.com/nicodishanthj/testcase_agent/internal/sqlite"
	"github.com/nicodishanthj/testcase_agent/internal/stream"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TESTCASE_CONFIG_FILE", "TESTCASE_ADDR", "TESTCASE_SHUTDOWN_TIMEOUT",
		"OPENAI_API_KEY", "OPENAI_ENDPOINT", "OPENAI_CHAT_MODEL", "MODEL", "OPENAI_HTTP_TIMEOUT",
		"LLM_TEMPERATURE", "RELAY_FRAGMENT_SIZE", "RELAY_FRAGMENT_DELAY",
		"AGENT_MEMORY_THREADS", "AGENT_STREAM_MODE", "AGENT_SYSTEM_PROMPT_FILE", "ATTACHMENT_MAX_BYTES", "ATTACHMENT_STRICT_UTF8",
		"SQLITE_CONFIG_FILE", "SQLITE_PATH", "SQLITE_MAX_OPEN_CONNS", "SQLITE_MAX_IDLE_CONNS",
		"SQLITE_CONN_MAX_LIFETIME", "SQLITE_CONN_MAX_IDLE_TIME", "SQLITE_BUSY_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, sqlite.DefaultPath, cfg.SQLite.Path)
	assert.Equal(t, llm.DefaultTemperature, cfg.LLM.TemperatureOrDefault())
	assert.Equal(t, stream.DefaultFragmentSize, cfg.Relay.FragmentSize)
	assert.Equal(t, stream.DefaultFragmentDelay, *cfg.Relay.FragmentDelay)
	assert.Equal(t, attachment.DefaultMaxBytes, cfg.Attachment.MaxBytes)
	assert.Equal(t, "updates", cfg.Agent.StreamMode)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
sqlite:
  path: /tmp/from-file.db
  busy_timeout: 2s
llm:
  model: gpt-file
  temperature: 0.2
relay:
  fragment_size: 20
agent:
  memory_threads: 8
`), 0o600))

	t.Setenv("TESTCASE_ADDR", ":9100")
	t.Setenv("MODEL", "gpt-env")
	t.Setenv("RELAY_FRAGMENT_DELAY", "0s")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "env.db"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, filepath.Join(dir, "env.db"), cfg.SQLite.Path)
	assert.Equal(t, 2*time.Second, cfg.SQLite.BusyTimeout)
	assert.Equal(t, "gpt-env", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.TemperatureOrDefault(), 1e-9)
	assert.Equal(t, 20, cfg.Relay.FragmentSize)
	assert.Equal(t, time.Duration(0), *cfg.Relay.FragmentDelay)
	assert.Equal(t, 8, cfg.Agent.MemoryThreads)
}

func TestChatModelPrefersOpenAIVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_CHAT_MODEL", "gpt-primary")
	t.Setenv("MODEL", "gpt-legacy")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-primary", cfg.LLM.Model)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_FRAGMENT_SIZE", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "RELAY_FRAGMENT_SIZE")

	clearEnv(t)
	t.Setenv("AGENT_STREAM_MODE", "debug")
	_, err = Load("")
	assert.ErrorContains(t, err, "stream_mode")

	clearEnv(t)
	t.Setenv("LLM_TEMPERATURE", "3.5")
	_, err = Load("")
	assert.ErrorContains(t, err, "temperature")

	clearEnv(t)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSystemPromptOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("custom prompt"), 0o600))

	prompt, err := Config{Agent: AgentConfig{SystemPromptFile: path}}.SystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, "custom prompt", prompt)

	prompt, err = Config{}.SystemPrompt()
	require.NoError(t, err)
	assert.Empty(t, prompt)
}

func TestAttachmentStrategies(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Len(t, cfg.AttachmentStrategies(), len(attachment.DefaultStrategies()))

	t.Setenv("ATTACHMENT_STRICT_UTF8", "true")
	cfg, err = Load("")
	require.NoError(t, err)
	strategies := cfg.AttachmentStrategies()
	require.Len(t, strategies, 1)
	assert.Equal(t, attachment.UTF8.Name, strategies[0].Name)
}
