// File path: internal/agent/tools.go
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/session"
)

// SaveTestCasesTool is the function name the model calls to deliver test
// cases.
const SaveTestCasesTool = "save_testcases"

type saveTestCasesArgs struct {
	Titles []string `json:"testcase_titles"`
	Steps  []string `json:"testcase_steps"`
}

// ToolResult is the JSON payload returned to the model after a tool call.
type ToolResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Error   string       `json:"error,omitempty"`
	Data    *SaveSummary `json:"data,omitempty"`
}

type SaveSummary struct {
	SavedCount     int    `json:"saved_count"`
	TotalCount     int    `json:"total_count"`
	ConversationID string `json:"conversation_id"`
}

// TestCaseSaver persists the test cases produced by the model.
type TestCaseSaver struct {
	store session.TestCaseStore
}

func NewTestCaseSaver(store session.TestCaseStore) *TestCaseSaver {
	return &TestCaseSaver{store: store}
}

func (s *TestCaseSaver) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        SaveTestCasesTool,
			Description: "Always use this tool to deliver the generated test cases. Each title pairs with the steps entry at the same index.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"testcase_titles": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Short summary of what each test case verifies.",
					},
					"testcase_steps": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Numbered steps for each test case, every step with an action and an expected_result.",
					},
				},
				"required": []string{"testcase_titles", "testcase_steps"},
			},
		},
	}
}

// Execute runs a save_testcases call and returns the result as JSON. Failures
// are reported to the model in the result instead of aborting the run.
func (s *TestCaseSaver) Execute(ctx context.Context, threadID, arguments string) string {
	result := s.execute(ctx, threadID, arguments)
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"message":"encode result","error":%q}`, err.Error())
	}
	return string(payload)
}

func (s *TestCaseSaver) execute(ctx context.Context, threadID, arguments string) ToolResult {
	logger := common.Logger()
	var args saveTestCasesArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ToolResult{Message: "Could not parse the tool arguments", Error: err.Error()}
	}
	if len(args.Titles) == 0 || len(args.Steps) == 0 {
		return ToolResult{Message: "The test case lists must not be empty", Error: "Empty testcase lists"}
	}
	if len(args.Titles) != len(args.Steps) {
		return ToolResult{
			Message: fmt.Sprintf("Number of titles (%d) does not match number of steps (%d)", len(args.Titles), len(args.Steps)),
			Error:   "Mismatched titles and steps count",
		}
	}
	if s == nil || s.store == nil {
		return ToolResult{Message: "No test case store is configured", Error: "store unavailable"}
	}

	conversationID := threadID
	if strings.TrimSpace(conversationID) == "" || session.IsTemporaryThread(conversationID) {
		conversationID = session.DefaultTestCaseConversation
	}
	inputs := make([]session.TestCaseInput, len(args.Titles))
	for i := range args.Titles {
		inputs[i] = session.TestCaseInput{Title: strings.TrimSpace(args.Titles[i]), Steps: strings.TrimSpace(args.Steps[i])}
	}
	created, err := s.store.CreateTestCases(ctx, conversationID, inputs)
	if err != nil {
		logger.Warn("agent: save_testcases failed", "conversation_id", conversationID, "error", err)
		return ToolResult{Message: "Saving the test cases failed: " + err.Error(), Error: err.Error()}
	}
	logger.Info("agent: test cases saved", "conversation_id", conversationID, "count", len(created))
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Saved %d test cases", len(created)),
		Data: &SaveSummary{
			SavedCount:     len(created),
			TotalCount:     len(inputs),
			ConversationID: conversationID,
		},
	}
}
