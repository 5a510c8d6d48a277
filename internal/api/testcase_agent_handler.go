// File path: internal/api/testcase_agent_handler.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nicodishanthj/testcase_agent/internal/attachment"
	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/session"
	"github.com/nicodishanthj/testcase_agent/internal/stream"
	"github.com/nicodishanthj/testcase_agent/internal/turn"
)

const attachmentField = "file_attachment"

// handleAgentTestCase starts a requirement analysis. The user turn and the
// answer are stored only when the client names a conversation; a named
// conversation that does not exist yet is created from the form.
func (s *Server) handleAgentTestCase(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	if err := s.parseForm(r); err != nil {
		logger.Warn("api: agent-testcase form invalid", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	requirement := strings.TrimSpace(r.FormValue("pbi_requirement"))
	if title == "" || requirement == "" {
		logger.Warn("api: agent-testcase fields missing", "title", title != "", "pbi_requirement", requirement != "")
		writeError(w, http.StatusBadRequest, fmt.Errorf("title and pbi_requirement required"))
		return
	}
	conversationID := strings.TrimSpace(r.FormValue("conversation_id"))
	if conversationID != "" {
		_, created, err := s.store.EnsureConversation(r.Context(), conversationID, title, requirement)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if created {
			logger.Info("api: conversation created on first turn", "conversation_id", conversationID)
		}
	}

	att, err := s.readAttachment(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	composed := turn.ComposeNew(title, requirement, att)
	threadID := session.ResolveThreadID(conversationID, s.now)
	logger.Info("api: agent-testcase started", "conversation_id", conversationID, "thread_id", threadID, "attachment", att != nil)

	writeEvents(w, s.relay.Run(r.Context(), stream.Request{
		Inputs:         []turn.Input{composed.Input},
		ThreadID:       threadID,
		ConversationID: conversationID,
		UserRecord:     composed.Record,
	}))
}

// handleAgentTestCaseEdit continues an existing conversation with an edit
// request composed from its stored history.
func (s *Server) handleAgentTestCaseEdit(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	if err := s.parseForm(r); err != nil {
		logger.Warn("api: agent-testcase edit form invalid", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	conversationID := strings.TrimSpace(r.FormValue("conversation_id"))
	prompt := strings.TrimSpace(r.FormValue("prompt"))
	if conversationID == "" || prompt == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("conversation_id and prompt required"))
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	history, err := s.store.Messages(ctx, conversationID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	att, err := s.readAttachment(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	composed := turn.ComposeEdit(history, prompt, att)
	logger.Info("api: agent-testcase edit started", "conversation_id", conversationID, "history", len(history), "attachment", att != nil)

	writeEvents(w, s.relay.Run(ctx, stream.Request{
		Inputs:         []turn.Input{composed.Input},
		ThreadID:       conversationID,
		ConversationID: conversationID,
		UserRecord:     composed.Record,
	}))
}

// parseForm accepts both multipart and urlencoded bodies.
func (s *Server) parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(s.cfg.MaxFormMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return fmt.Errorf("parse form: %w", err)
	}
	return nil
}

// readAttachment preprocesses the uploaded file, if any. Read failures are
// folded into the descriptor rather than returned.
func (s *Server) readAttachment(r *http.Request) (*attachment.Descriptor, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[attachmentField]) == 0 {
		return nil, nil
	}
	header := r.MultipartForm.File[attachmentField][0]
	if header.Filename == "" {
		return nil, nil
	}
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", attachmentField, err)
	}
	defer file.Close()
	desc := s.attachments.Process(file, header.Filename, header.Header.Get("Content-Type"))
	common.Logger().Debug("api: attachment processed", "file", desc.FileName, "kind", desc.Kind)
	return &desc, nil
}
