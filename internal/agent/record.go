// File path: internal/agent/record.go
package agent

import (
	"context"
	"iter"
	"strings"

	"github.com/nicodishanthj/testcase_agent/internal/turn"
)

// NodeAgent is the graph node whose output is the assistant's answer.
const NodeAgent = "agent"

// Message is an assistant-visible message decoded from the runtime output.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record is one output item of an agent run. It is exactly one of
// Wrapped, Flat or Unknown.
type Record interface {
	Shape() string
}

// Wrapped carries the messages a single graph node produced.
type Wrapped struct {
	Node     string
	Messages []Message
}

// Flat carries a bare message list without node attribution.
type Flat struct {
	Messages []Message
}

// Unknown is any output the relay cannot interpret.
type Unknown struct {
	Raw any
}

func (Wrapped) Shape() string { return "wrapped" }
func (Flat) Shape() string    { return "flat" }
func (Unknown) Shape() string { return "unknown" }

// Runtime runs the agent for one turn. Records are yielded as nodes finish;
// a non-nil error is always the last item. Breaking out of the sequence
// abandons the run.
type Runtime interface {
	Stream(ctx context.Context, inputs []turn.Input, threadID string) iter.Seq2[Record, error]
}

// Collect drains a run and returns the last non-empty assistant answer.
func Collect(ctx context.Context, rt Runtime, inputs []turn.Input, threadID string) (string, error) {
	var answer string
	for rec, err := range rt.Stream(ctx, inputs, threadID) {
		if err != nil {
			return "", err
		}
		switch r := rec.(type) {
		case Wrapped:
			if r.Node != NodeAgent {
				continue
			}
			if text := lastContent(r.Messages); text != "" {
				answer = text
			}
		case Flat:
			if text := lastContent(r.Messages); text != "" {
				answer = text
			}
		}
	}
	return answer, nil
}

func lastContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content
		}
	}
	return ""
}
