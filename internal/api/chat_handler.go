// File path: internal/api/chat_handler.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nicodishanthj/testcase_agent/internal/agent"
	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/session"
	"github.com/nicodishanthj/testcase_agent/internal/stream"
	"github.com/nicodishanthj/testcase_agent/internal/turn"
)

// handleChat runs a stateless exchange. Nothing is persisted and no thread
// memory is used.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("api: chat decode failed", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inputs := turn.FromChat(req.Messages)
	if len(inputs) == 0 {
		logger.Warn("api: chat messages missing")
		writeError(w, http.StatusBadRequest, fmt.Errorf("messages required"))
		return
	}
	streaming := req.Stream == nil || *req.Stream
	logger.Info("api: chat request received", "messages", len(inputs), "stream", streaming)

	if streaming {
		writeEvents(w, s.relay.Run(r.Context(), stream.Request{Inputs: inputs}))
		return
	}
	answer, err := agent.Collect(r.Context(), s.runtime, inputs, "")
	if err != nil {
		logger.Error("api: chat completion failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	logger.Info("api: chat completion succeeded", "answer_length", len(answer))
	writeJSON(w, http.StatusOK, chatResponse{Role: session.RoleAssistant, Content: answer})
}
