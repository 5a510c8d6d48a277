// File path: internal/agent/tools_test.go
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/nicodishanthj/testcase_agent/internal/session"
)

func decodeResult(t *testing.T, raw string) ToolResult {
	t.Helper()
	var result ToolResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	return result
}

func TestSaveTestCasesValidation(t *testing.T) {
	saver := NewTestCaseSaver(&memoryTestCases{})
	ctx := context.Background()

	empty := decodeResult(t, saver.Execute(ctx, "conv_a", `{"testcase_titles":[],"testcase_steps":["x"]}`))
	assert.False(t, empty.Success)
	assert.Equal(t, "Empty testcase lists", empty.Error)

	mismatch := decodeResult(t, saver.Execute(ctx, "conv_a", `{"testcase_titles":["a","b"],"testcase_steps":["x"]}`))
	assert.False(t, mismatch.Success)
	assert.Equal(t, "Mismatched titles and steps count", mismatch.Error)
	assert.Contains(t, mismatch.Message, "(2)")

	malformed := decodeResult(t, saver.Execute(ctx, "conv_a", `not json`))
	assert.False(t, malformed.Success)
}

func TestSaveTestCasesUsesSentinelForAnonymousThreads(t *testing.T) {
	store := &memoryTestCases{}
	saver := NewTestCaseSaver(store)

	for _, thread := range []string{"", "temp_1700000000"} {
		result := decodeResult(t, saver.Execute(context.Background(), thread, `{"testcase_titles":["a"],"testcase_steps":["b"]}`))
		require.True(t, result.Success)
		assert.Equal(t, session.DefaultTestCaseConversation, result.Data.ConversationID)
	}
	assert.Len(t, store.saved[session.DefaultTestCaseConversation], 2)
}

func TestSaveTestCasesReportsStoreErrors(t *testing.T) {
	saver := NewTestCaseSaver(&memoryTestCases{err: errors.New("disk full")})
	result := decodeResult(t, saver.Execute(context.Background(), "conv_a", `{"testcase_titles":["a"],"testcase_steps":["b"]}`))
	assert.False(t, result.Success)
	assert.Equal(t, "disk full", result.Error)
}

func TestSaveTestCasesDefinition(t *testing.T) {
	def := NewTestCaseSaver(nil).Definition()
	require.NotNil(t, def.Function)
	assert.Equal(t, SaveTestCasesTool, def.Function.Name)
	params := def.Function.Parameters.(map[string]any)
	assert.Equal(t, []string{"testcase_titles", "testcase_steps"}, params["required"])
}

func TestCheckpointsEvictLeastRecentlyUsed(t *testing.T) {
	c := NewCheckpoints(2)
	msg := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "x")}
	c.Save("a", msg)
	c.Save("b", msg)
	require.Len(t, c.Load("a"), 1)
	c.Save("c", msg)

	assert.Equal(t, 2, c.Len())
	assert.Nil(t, c.Load("b"))
	assert.Len(t, c.Load("a"), 1)
	c.Forget("a")
	assert.Nil(t, c.Load("a"))
}
