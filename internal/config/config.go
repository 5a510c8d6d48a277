// File path: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nicodishanthj/testcase_agent/internal/agent"
	"github.com/nicodishanthj/testcase_agent/internal/attachment"
	"github.com/nicodishanthj/testcase_agent/internal/llm"
	"github.com/nicodishanthj/testcase_agent/internal/sqlite"
	"github.com/nicodishanthj/testcase_agent/internal/stream"
)

const (
	DefaultAddr            = ":8000"
	DefaultShutdownTimeout = 15 * time.Second
)

// RelayConfig controls chunk pacing on streaming endpoints.
type RelayConfig struct {
	FragmentSize  int            `yaml:"fragment_size"`
	FragmentDelay *time.Duration `yaml:"fragment_delay"`
}

// AgentConfig controls the agent graph.
type AgentConfig struct {
	MemoryThreads    int    `yaml:"memory_threads"`
	StreamMode       string `yaml:"stream_mode"`
	SystemPromptFile string `yaml:"system_prompt_file"`
}

// AttachmentConfig bounds uploads.
type AttachmentConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	// StrictUTF8 drops the Latin-1 fallback so undecodable uploads are
	// reported as binary.
	StrictUTF8 bool `yaml:"strict_utf8"`
}

// Config is the service configuration. Sources are layered: defaults, then
// the YAML file, then environment variables, then command-line flags.
type Config struct {
	Addr            string           `yaml:"addr"`
	ShutdownTimeout time.Duration    `yaml:"shutdown_timeout"`
	SQLite          sqlite.Config    `yaml:"sqlite"`
	LLM             llm.Config       `yaml:"llm"`
	Relay           RelayConfig      `yaml:"relay"`
	Agent           AgentConfig      `yaml:"agent"`
	Attachment      AttachmentConfig `yaml:"attachment"`
}

// Merge overlays the set fields of override onto c.
func (c Config) Merge(override Config) Config {
	result := c
	if addr := strings.TrimSpace(override.Addr); addr != "" {
		result.Addr = addr
	}
	if override.ShutdownTimeout > 0 {
		result.ShutdownTimeout = override.ShutdownTimeout
	}
	result.SQLite = result.SQLite.Merge(override.SQLite)

	if v := strings.TrimSpace(override.LLM.APIKey); v != "" {
		result.LLM.APIKey = v
	}
	if v := strings.TrimSpace(override.LLM.Endpoint); v != "" {
		result.LLM.Endpoint = v
	}
	if v := strings.TrimSpace(override.LLM.Model); v != "" {
		result.LLM.Model = v
	}
	if override.LLM.Timeout > 0 {
		result.LLM.Timeout = override.LLM.Timeout
	}
	if override.LLM.Temperature != nil {
		result.LLM.Temperature = override.LLM.Temperature
	}
	if override.LLM.MaxRetries != nil {
		result.LLM.MaxRetries = override.LLM.MaxRetries
	}

	if override.Relay.FragmentSize > 0 {
		result.Relay.FragmentSize = override.Relay.FragmentSize
	}
	if override.Relay.FragmentDelay != nil {
		result.Relay.FragmentDelay = override.Relay.FragmentDelay
	}
	if override.Agent.MemoryThreads > 0 {
		result.Agent.MemoryThreads = override.Agent.MemoryThreads
	}
	if v := strings.TrimSpace(override.Agent.StreamMode); v != "" {
		result.Agent.StreamMode = v
	}
	if v := strings.TrimSpace(override.Agent.SystemPromptFile); v != "" {
		result.Agent.SystemPromptFile = v
	}
	if override.Attachment.MaxBytes > 0 {
		result.Attachment.MaxBytes = override.Attachment.MaxBytes
	}
	if override.Attachment.StrictUTF8 {
		result.Attachment.StrictUTF8 = true
	}
	return result
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = DefaultAddr
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	c.SQLite.ApplyDefaults()
	if c.LLM.Temperature == nil {
		t := llm.DefaultTemperature
		c.LLM.Temperature = &t
	}
	if c.Relay.FragmentSize <= 0 {
		c.Relay.FragmentSize = stream.DefaultFragmentSize
	}
	if c.Relay.FragmentDelay == nil {
		d := stream.DefaultFragmentDelay
		c.Relay.FragmentDelay = &d
	}
	if c.Agent.MemoryThreads <= 0 {
		c.Agent.MemoryThreads = agent.DefaultMemoryThreads
	}
	if strings.TrimSpace(c.Agent.StreamMode) == "" {
		c.Agent.StreamMode = string(agent.ModeUpdates)
	}
	if c.Attachment.MaxBytes <= 0 {
		c.Attachment.MaxBytes = attachment.DefaultMaxBytes
	}
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if _, err := agent.ParseStreamMode(c.Agent.StreamMode); err != nil {
		return fmt.Errorf("agent.stream_mode: %w", err)
	}
	if c.Relay.FragmentDelay != nil && *c.Relay.FragmentDelay < 0 {
		return fmt.Errorf("relay.fragment_delay must not be negative")
	}
	if t := c.LLM.TemperatureOrDefault(); t < 0 || t > 2 {
		return fmt.Errorf("llm.temperature %.2f out of range [0,2]", t)
	}
	return nil
}

// Load builds the configuration from path (or TESTCASE_CONFIG_FILE when path
// is empty), SQLITE_CONFIG_FILE and the environment.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("TESTCASE_CONFIG_FILE"))
	}
	if path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	sqliteCfg, err := sqlite.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	cfg.SQLite = cfg.SQLite.Merge(sqliteCfg)

	envCfg, err := loadEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func loadEnv() (Config, error) {
	cfg := Config{
		Addr: env("TESTCASE_ADDR"),
		LLM: llm.Config{
			APIKey:   env("OPENAI_API_KEY"),
			Endpoint: env("OPENAI_ENDPOINT"),
			Model:    firstNonEmpty(env("OPENAI_CHAT_MODEL"), env("MODEL")),
		},
		Agent: AgentConfig{
			StreamMode:       env("AGENT_STREAM_MODE"),
			SystemPromptFile: env("AGENT_SYSTEM_PROMPT_FILE"),
		},
	}

	durations := map[string]*time.Duration{
		"TESTCASE_SHUTDOWN_TIMEOUT": &cfg.ShutdownTimeout,
		"OPENAI_HTTP_TIMEOUT":       &cfg.LLM.Timeout,
	}
	for key, dst := range durations {
		raw := env(key)
		if raw == "" {
			continue
		}
		value, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = value
	}
	if raw := env("RELAY_FRAGMENT_DELAY"); raw != "" {
		value, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse RELAY_FRAGMENT_DELAY: %w", err)
		}
		cfg.Relay.FragmentDelay = &value
	}
	if raw := env("LLM_TEMPERATURE"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse LLM_TEMPERATURE: %w", err)
		}
		cfg.LLM.Temperature = &value
	}

	ints := map[string]*int{
		"RELAY_FRAGMENT_SIZE":  &cfg.Relay.FragmentSize,
		"AGENT_MEMORY_THREADS": &cfg.Agent.MemoryThreads,
	}
	for key, dst := range ints {
		raw := env(key)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = value
	}
	if raw := env("ATTACHMENT_MAX_BYTES"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse ATTACHMENT_MAX_BYTES: %w", err)
		}
		cfg.Attachment.MaxBytes = value
	}
	if raw := env("ATTACHMENT_STRICT_UTF8"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ATTACHMENT_STRICT_UTF8: %w", err)
		}
		cfg.Attachment.StrictUTF8 = value
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// AttachmentStrategies returns the decoder chain for uploads.
func (c Config) AttachmentStrategies() []attachment.Strategy {
	if c.Attachment.StrictUTF8 {
		return []attachment.Strategy{attachment.UTF8}
	}
	return attachment.DefaultStrategies()
}

// SystemPrompt returns the prompt override file contents, or "" when none is
// configured.
func (c Config) SystemPrompt() (string, error) {
	path := strings.TrimSpace(c.Agent.SystemPromptFile)
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return string(data), nil
}
