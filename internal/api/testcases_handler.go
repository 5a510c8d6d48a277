// File path: internal/api/testcases_handler.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/session"
)

func (s *Server) handleListTestCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.store.ListTestCases(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, testCaseList{TestCases: cases, Total: len(cases)})
}

func (s *Server) handleSearchTestCases(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("keyword required"))
		return
	}
	cases, err := s.store.SearchTestCases(r.Context(), keyword)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, testCaseList{TestCases: cases, Total: len(cases)})
}

func (s *Server) handleGetTestCase(w http.ResponseWriter, r *http.Request) {
	id, err := testCaseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tc, err := s.store.GetTestCase(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleUpdateTestCase(w http.ResponseWriter, r *http.Request) {
	id, err := testCaseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var patch session.TestCasePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tc, err := s.store.UpdateTestCase(r.Context(), id, patch)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	common.Logger().Info("api: test case updated", "id", id)
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleDeleteTestCase(w http.ResponseWriter, r *http.Request) {
	id, err := testCaseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteTestCase(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	common.Logger().Info("api: test case deleted", "id", id)
	writeJSON(w, http.StatusOK, messageResponse{Message: "test case deleted"})
}

func testCaseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid test case id %q", raw)
	}
	return id, nil
}
