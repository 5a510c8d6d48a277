// File path: internal/agent/graph.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langgraphgo/graph"

	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/common/telemetry"
	"github.com/nicodishanthj/testcase_agent/internal/turn"
)

const (
	nodeTools   = "tools"
	nodeRespond = "respond"
)

// maxToolRounds bounds the model calls that may request tools in one run.
const maxToolRounds = 4

// StreamMode selects the record shape a Graph yields.
type StreamMode string

const (
	// ModeUpdates yields one Wrapped record per node that produced output.
	ModeUpdates StreamMode = "updates"
	// ModeValues yields a single Flat record with the new messages once the
	// run completes.
	ModeValues StreamMode = "values"
)

// ParseStreamMode maps a configuration value to a StreamMode.
func ParseStreamMode(raw string) (StreamMode, error) {
	switch StreamMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeUpdates:
		return ModeUpdates, nil
	case ModeValues:
		return ModeValues, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q", raw)
	}
}

// Graph is a tool-calling agent: the model answers, requested tools run and
// the model is called again until it replies without tool calls. Message history is checkpointed
// per thread.
type Graph struct {
	model   llms.Model
	saver   *TestCaseSaver
	memory  *Checkpoints
	mode    StreamMode
	prompt  string
	metrics *telemetry.Metrics
}

var _ Runtime = (*Graph)(nil)

type Option func(*Graph)

func WithCheckpoints(c *Checkpoints) Option {
	return func(g *Graph) { g.memory = c }
}

func WithStreamMode(mode StreamMode) Option {
	return func(g *Graph) {
		if mode != "" {
			g.mode = mode
		}
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(g *Graph) {
		if strings.TrimSpace(prompt) != "" {
			g.prompt = prompt
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Graph) { g.metrics = m }
}

func NewGraph(model llms.Model, saver *TestCaseSaver, opts ...Option) *Graph {
	g := &Graph{
		model:  model,
		saver:  saver,
		mode:   ModeUpdates,
		prompt: systemPrompt,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.memory == nil {
		g.memory = NewCheckpoints(DefaultMemoryThreads)
	}
	return g
}

// Forget drops the checkpointed history of threadID.
func (g *Graph) Forget(threadID string) {
	g.memory.Forget(threadID)
}

// Stream runs the graph on a helper goroutine. Stopping the iteration
// cancels the run and waits for the goroutine to finish.
func (g *Graph) Stream(ctx context.Context, inputs []turn.Input, threadID string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		records := make(chan Record)
		errc := make(chan error, 1)
		go func() {
			defer close(records)
			errc <- g.run(ctx, inputs, threadID, func(rec Record) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				select {
				case records <- rec:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}()

		for rec := range records {
			g.metrics.RecordAgentRecord(rec.Shape())
			if !yield(rec, nil) {
				cancel()
				for range records {
				}
				return
			}
		}
		if err := <-errc; err != nil {
			yield(nil, err)
		}
	}
}

func (g *Graph) run(ctx context.Context, inputs []turn.Input, threadID string, emit func(Record) error) error {
	if g.model == nil {
		return errors.New("agent: no model configured")
	}
	if len(inputs) == 0 {
		return errors.New("agent: no input messages")
	}
	ctx, end := telemetry.StartSpan(ctx, "agent.run")
	logger := common.Logger()

	history := g.memory.Load(threadID)
	promptChars := 0
	for _, in := range inputs {
		promptChars += len(in.PlainText())
	}
	logger.Debug("agent: run started", "thread_id", threadID, "history", len(history), "prompt_chars", promptChars)
	state := make([]llms.MessageContent, 0, len(history)+len(inputs)+1)
	state = append(state, llms.TextParts(llms.ChatMessageTypeSystem, g.prompt))
	state = append(state, history...)
	state = append(state, ToMessageContents(inputs)...)
	start := len(state)

	runnable, err := g.compile(threadID, emit)
	if err != nil {
		end("error", err)
		return fmt.Errorf("agent: compile graph: %w", err)
	}
	final, err := runnable.Invoke(ctx, state)
	if err != nil {
		end("error", err)
		logger.Warn("agent: run failed", "thread_id", threadID, "error", err)
		return fmt.Errorf("agent: %w", err)
	}
	// An abandoned run leaves no checkpoint.
	if err := ctx.Err(); err != nil {
		end("error", err)
		return err
	}
	if len(final) > 0 {
		g.memory.Save(threadID, final[1:])
	}
	end("messages", len(final))
	logger.Debug("agent: run finished", "thread_id", threadID, "history", len(final)-1)

	if g.mode == ModeValues && len(final) > start {
		return emit(Flat{Messages: assistantMessages(final[start:])})
	}
	return nil
}

func (g *Graph) compile(threadID string, emit func(Record) error) (*graph.Runnable, error) {
	var tools []llms.Tool
	if g.saver != nil {
		tools = append(tools, g.saver.Definition())
	}
	updates := g.mode == ModeUpdates

	mg := graph.NewMessageGraph()
	mg.AddNode(NodeAgent, func(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
		reply, err := g.generate(ctx, state, tools)
		if err != nil {
			return nil, err
		}
		state = append(state, reply)
		if updates {
			if err := emit(Wrapped{Node: NodeAgent, Messages: assistantMessages([]llms.MessageContent{reply})}); err != nil {
				return nil, err
			}
		}
		return state, nil
	})
	mg.AddNode(nodeTools, func(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
		return g.runTools(ctx, threadID, state, updates, emit)
	})
	// respond answers tool results and keeps executing tool calls until the
	// model stops asking for them. The last round offers no tools.
	mg.AddNode(nodeRespond, func(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
		for round := 1; ; round++ {
			if len(state) == 0 || state[len(state)-1].Role != llms.ChatMessageTypeTool {
				return state, nil
			}
			var offered []llms.Tool
			if round < maxToolRounds {
				offered = tools
			}
			reply, err := g.generate(ctx, state, offered)
			if err != nil {
				return nil, err
			}
			state = append(state, reply)
			if updates {
				if err := emit(Wrapped{Node: NodeAgent, Messages: assistantMessages([]llms.MessageContent{reply})}); err != nil {
					return nil, err
				}
			}
			if len(offered) == 0 {
				return state, nil
			}
			if state, err = g.runTools(ctx, threadID, state, updates, emit); err != nil {
				return nil, err
			}
		}
	})
	mg.AddNode(graph.END, func(_ context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
		return state, nil
	})

	mg.AddEdge(NodeAgent, nodeTools)
	mg.AddEdge(nodeTools, nodeRespond)
	mg.AddEdge(nodeRespond, graph.END)
	mg.SetEntryPoint(NodeAgent)
	return mg.Compile()
}

func (g *Graph) runTools(ctx context.Context, threadID string, state []llms.MessageContent, updates bool, emit func(Record) error) ([]llms.MessageContent, error) {
	calls := pendingToolCalls(state)
	if len(calls) == 0 {
		return state, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var produced []Message
	for _, call := range calls {
		content := g.callTool(ctx, threadID, call)
		state = append(state, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       call.FunctionCall.Name,
				Content:    content,
			}},
		})
		produced = append(produced, Message{Role: "tool", Content: content})
	}
	if updates {
		if err := emit(Wrapped{Node: nodeTools, Messages: produced}); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (g *Graph) generate(ctx context.Context, state []llms.MessageContent, tools []llms.Tool) (llms.MessageContent, error) {
	var opts []llms.CallOption
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	resp, err := g.model.GenerateContent(ctx, state, opts...)
	if err != nil {
		return llms.MessageContent{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llms.MessageContent{}, errors.New("model returned no choices")
	}
	choice := resp.Choices[0]
	reply := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if choice.Content != "" {
		reply.Parts = append(reply.Parts, llms.TextContent{Text: choice.Content})
	}
	for _, call := range choice.ToolCalls {
		reply.Parts = append(reply.Parts, call)
	}
	return reply, nil
}

func (g *Graph) callTool(ctx context.Context, threadID string, call llms.ToolCall) string {
	name := call.FunctionCall.Name
	if name != SaveTestCasesTool || g.saver == nil {
		common.Logger().Warn("agent: model requested unknown tool", "tool", name)
		return fmt.Sprintf(`{"success":false,"message":"unknown tool %s","error":"unknown tool"}`, name)
	}
	return g.saver.Execute(ctx, threadID, call.FunctionCall.Arguments)
}

func pendingToolCalls(state []llms.MessageContent) []llms.ToolCall {
	if len(state) == 0 {
		return nil
	}
	last := state[len(state)-1]
	if last.Role != llms.ChatMessageTypeAI {
		return nil
	}
	var calls []llms.ToolCall
	for _, part := range last.Parts {
		if call, ok := part.(llms.ToolCall); ok && call.FunctionCall != nil {
			calls = append(calls, call)
		}
	}
	return calls
}

func assistantMessages(messages []llms.MessageContent) []Message {
	var out []Message
	for _, msg := range messages {
		if msg.Role != llms.ChatMessageTypeAI {
			continue
		}
		out = append(out, Message{Role: "assistant", Content: textOf(msg.Parts)})
	}
	return out
}

func textOf(parts []llms.ContentPart) string {
	var texts []string
	for _, part := range parts {
		if text, ok := part.(llms.TextContent); ok && text.Text != "" {
			texts = append(texts, text.Text)
		}
	}
	return strings.Join(texts, "\n")
}
