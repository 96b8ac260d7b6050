package api

import (
	"encoding/json"
	"net/http"

	"github.com/bull/rag-server/internal/domain"
)

type chatRequest struct {
	Query               string           `json:"query"`
	TopK                int              `json:"top_k,omitempty"`
	MaxContextTokens    int              `json:"max_context_tokens,omitempty"`
	ConversationHistory []domain.Message `json:"conversation_history,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, bodyError(err))
		return
	}

	answer, err := s.answerer.Answer(r.Context(), domain.ChatQuery{
		Text:             req.Query,
		TopK:             req.TopK,
		MaxContextTokens: req.MaxContextTokens,
		History:          req.ConversationHistory,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}
