// File path: internal/llm/providers/openai.go
package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go/v2"
	"github.com/tmc/langchaingo/llms"

	"github.com/nicodishanthj/testcase_agent/internal/common"
)

// DefaultChatModel is used when no model name is configured.
const DefaultChatModel = "gpt-4o"

// OpenAI adapts the official OpenAI client to the langchaingo model
// interface so the agent graph can drive it.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
}

var _ llms.Model = (*OpenAI)(nil)

func NewOpenAI(client openai.Client, model string, temperature float64) *OpenAI {
	if model == "" {
		model = DefaultChatModel
	}
	common.Logger().Info("llm: OpenAI provider configured", "chat_model", model, "temperature", temperature)
	return &OpenAI{client: client, model: model, temperature: temperature}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

func (o *OpenAI) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{Temperature: o.temperature}
	for _, opt := range options {
		opt(&opts)
	}
	params, err := o.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	logger := common.Logger()
	logger.Debug("llm: sending chat completion request", "model", params.Model, "messages", len(params.Messages), "tools", len(params.Tools))

	var completion *openai.ChatCompletion
	if opts.StreamingFunc != nil {
		completion, err = o.stream(ctx, params, opts.StreamingFunc)
	} else {
		completion, err = o.client.Chat.Completions.New(ctx, params)
	}
	if err != nil {
		logger.Error("llm: chat completion failed", "error", err)
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	logger.Debug("llm: chat completion succeeded", "finish_reason", completion.Choices[0].FinishReason)
	return toContentResponse(completion), nil
}

func (o *OpenAI) stream(ctx context.Context, params openai.ChatCompletionNewParams, fn func(context.Context, []byte) error) (*openai.ChatCompletion, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := fn(ctx, []byte(chunk.Choices[0].Delta.Content)); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &acc.ChatCompletion, nil
}

func (o *OpenAI) buildParams(messages []llms.MessageContent, opts llms.CallOptions) (openai.ChatCompletionNewParams, error) {
	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	for _, msg := range messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, converted...)
	}
	for _, tool := range opts.Tools {
		if tool.Function == nil {
			continue
		}
		def := openai.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
		}
		if schema, ok := tool.Function.Parameters.(map[string]any); ok {
			def.Parameters = openai.FunctionParameters(schema)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(def))
	}
	return params, nil
}

func convertMessage(msg llms.MessageContent) ([]openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case llms.ChatMessageTypeSystem:
		return []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(joinText(msg.Parts))}, nil
	case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
		return []openai.ChatCompletionMessageParamUnion{userMessage(msg.Parts)}, nil
	case llms.ChatMessageTypeAI:
		return []openai.ChatCompletionMessageParamUnion{assistantMessage(msg.Parts)}, nil
	case llms.ChatMessageTypeTool:
		var out []openai.ChatCompletionMessageParamUnion
		for _, part := range msg.Parts {
			if resp, ok := part.(llms.ToolCallResponse); ok {
				out = append(out, openai.ToolMessage(resp.Content, resp.ToolCallID))
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported message role %q", msg.Role)
	}
}

func userMessage(parts []llms.ContentPart) openai.ChatCompletionMessageParamUnion {
	hasMedia := false
	for _, part := range parts {
		switch part.(type) {
		case llms.ImageURLContent, llms.BinaryContent:
			hasMedia = true
		}
	}
	if !hasMedia {
		return openai.UserMessage(joinText(parts))
	}
	content := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case llms.TextContent:
			content = append(content, openai.TextContentPart(p.Text))
		case llms.ImageURLContent:
			content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: p.URL}))
		case llms.BinaryContent:
			url := fmt.Sprintf("data:%s;base64,%s", p.MIMEType, base64.StdEncoding.EncodeToString(p.Data))
			content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
		}
	}
	return openai.UserMessage(content)
}

func assistantMessage(parts []llms.ContentPart) openai.ChatCompletionMessageParamUnion {
	var calls []openai.ChatCompletionMessageToolCallUnionParam
	for _, part := range parts {
		call, ok := part.(llms.ToolCall)
		if !ok || call.FunctionCall == nil {
			continue
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.FunctionCall.Name,
					Arguments: call.FunctionCall.Arguments,
				},
			},
		})
	}
	if len(calls) == 0 {
		return openai.AssistantMessage(joinText(parts))
	}
	param := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if text := joinText(parts); text != "" {
		param.Content.OfString = openai.String(text)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}
}

func toContentResponse(completion *openai.ChatCompletion) *llms.ContentResponse {
	resp := &llms.ContentResponse{Choices: make([]*llms.ContentChoice, 0, len(completion.Choices))}
	for _, choice := range completion.Choices {
		out := &llms.ContentChoice{
			Content:    choice.Message.Content,
			StopReason: choice.FinishReason,
		}
		for _, call := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, llms.ToolCall{
				ID:   call.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		resp.Choices = append(resp.Choices, out)
	}
	return resp
}
