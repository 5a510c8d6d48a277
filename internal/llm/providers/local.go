// File path: internal/llm/providers/local.go
package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Local echoes the last human message. It keeps the service usable without
// an API key.
type Local struct{}

var _ llms.Model = (*Local)(nil)

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, l, prompt, options...)
}

func (l *Local) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages provided")
	}
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llms.ChatMessageTypeHuman {
			last = joinText(messages[i].Parts)
			break
		}
	}
	if last == "" {
		last = joinText(messages[len(messages)-1].Parts)
	}
	content := "[local-stub] " + strings.TrimSpace(last)

	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	if opts.StreamingFunc != nil {
		if err := opts.StreamingFunc(ctx, []byte(content)); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content, StopReason: "stop"}}}, nil
}

func joinText(parts []llms.ContentPart) string {
	var texts []string
	for _, part := range parts {
		if text, ok := part.(llms.TextContent); ok && text.Text != "" {
			texts = append(texts, text.Text)
		}
	}
	return strings.Join(texts, "\n")
}
