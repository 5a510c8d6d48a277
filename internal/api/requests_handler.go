// File path: internal/api/requests_handler.go
package api

import (
	"encoding/json"
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"github.com/nicodishanthj/testcase_agent/internal/common"
)

// threadForgetter is implemented by runtimes that keep per-thread memory.
type threadForgetter interface {
	Forget(threadID string)
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("api: request decode failed", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	conv, err := s.store.CreateConversation(r.Context(), body.Title, body.PBIRequirement)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	logger.Info("api: request created", "conversation_id", conv.ConversationID)
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleRequestMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "conversationID")
	if _, err := s.store.GetConversation(ctx, id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	messages, err := s.store.Messages(ctx, id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if err := s.store.DeleteConversation(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if f, ok := s.runtime.(threadForgetter); ok {
		f.Forget(id)
	}
	common.Logger().Info("api: request deleted", "conversation_id", id)
	writeJSON(w, http.StatusOK, messageResponse{Message: "request deleted"})
}
