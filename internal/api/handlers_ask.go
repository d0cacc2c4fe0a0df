package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// maxQuestionRunes bounds a single question.
const maxQuestionRunes = 4000

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(question) > maxQuestionRunes {
		jsonError(w, "question is too long", http.StatusRequestEntityTooLarge)
		return
	}

	start := time.Now()
	res := s.asker.HandleQuestion(r.Context(), question)
	s.metrics.observeAsk(res.Outcome, time.Since(start))

	writeJSON(w, http.StatusOK, res)
}
