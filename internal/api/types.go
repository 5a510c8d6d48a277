// File path: internal/api/types.go
package api

import (
	"github.com/nicodishanthj/testcase_agent/internal/session"
	"github.com/nicodishanthj/testcase_agent/internal/turn"
)

type chatRequest struct {
	Messages []turn.ChatMessage `json:"messages"`
	Stream   *bool              `json:"stream"`
}

type chatResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type createRequestBody struct {
	Title          string `json:"title"`
	PBIRequirement string `json:"pbi_requirement"`
}

type testCaseList struct {
	TestCases []session.TestCase `json:"test_cases"`
	Total     int                `json:"total"`
}

type messageResponse struct {
	Message string `json:"message"`
}
