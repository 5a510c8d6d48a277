// File path: internal/llm/llm_test.go
package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProviderFallsBackToLocal(t *testing.T) {
	model := NewProvider(Config{})
	assert.Equal(t, "local", Name(model))
}

func TestNewProviderSelectsOpenAI(t *testing.T) {
	model := NewProvider(Config{APIKey: "sk-test", Endpoint: "http://127.0.0.1:1/v1/", Model: "gpt-4o-mini"})
	assert.Equal(t, "openai", Name(model))
}

func TestTemperatureOrDefault(t *testing.T) {
	assert.Equal(t, DefaultTemperature, Config{}.TemperatureOrDefault())
	zero := 0.0
	assert.Equal(t, 0.0, Config{Temperature: &zero}.TemperatureOrDefault())
}
