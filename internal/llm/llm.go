// File path: internal/llm/llm.go
package llm

import (
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/tmc/langchaingo/llms"

	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/llm/providers"
)

// DefaultTemperature matches the sampling temperature the agent was tuned
// with.
const DefaultTemperature = 0.7

// Config selects and configures the chat model.
type Config struct {
	APIKey      string        `yaml:"api_key" json:"api_key"`
	Endpoint    string        `yaml:"endpoint" json:"endpoint"`
	Model       string        `yaml:"model" json:"model"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Temperature *float64      `yaml:"temperature" json:"temperature"`
	MaxRetries  *int          `yaml:"max_retries" json:"max_retries"`
}

// TemperatureOrDefault returns the configured temperature or the default.
func (c Config) TemperatureOrDefault() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// NewProvider returns an OpenAI-backed model when an API key is configured
// and the local echo model otherwise.
func NewProvider(cfg Config) llms.Model {
	logger := common.Logger()
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		logger.Warn("llm: OPENAI_API_KEY not set; falling back to local provider")
		return providers.NewLocal()
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.Timeout > 0 {
		logger.Info("llm: configuring OpenAI client with custom HTTP timeout", "timeout", cfg.Timeout)
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		logger.Info("llm: configuring OpenAI client with custom endpoint", "endpoint", endpoint)
		opts = append(opts, option.WithBaseURL(endpoint))
	} else {
		logger.Debug("llm: using default OpenAI endpoint")
	}
	client := openai.NewClient(opts...)
	logger.Info("llm: OpenAI provider selected")
	return providers.NewOpenAI(client, strings.TrimSpace(cfg.Model), cfg.TemperatureOrDefault())
}

// Name reports the provider name for models that expose one.
func Name(model llms.Model) string {
	if named, ok := model.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "unknown"
}
