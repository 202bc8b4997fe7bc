package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/w-h-a/therapist/chat"
	"github.com/w-h-a/therapist/internal/service/session"
	"github.com/w-h-a/therapist/memory"
)

type startSessionRequest struct {
	UserId string `json:"user_id"`
}

type sessionResponse struct {
	SessionId string        `json:"session_id"`
	UserId    string        `json:"user_id"`
	Greeting  string        `json:"greeting,omitempty"`
	Turns     []memory.Turn `json:"turns,omitempty"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Reply string `json:"reply"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func (s *httpServer) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body must be JSON"})
		return
	}

	sess, err := s.sessions.Start(r.Context(), req.UserId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionId: sess.ID(),
		UserId:    sess.UserID(),
		Greeting:  chat.Greeting(sess.UserID()),
	})
}

func (s *httpServer) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse[string]{Items: s.sessions.List(r.Context())})
}

func (s *httpServer) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionId: sess.ID(),
		UserId:    sess.UserID(),
		Turns:     sess.History(),
	})
}

func (s *httpServer) endSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) sendMessage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body must be JSON"})
		return
	}

	reply, err := s.bot.Respond(r.Context(), sess, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Reply: reply})
}

// searchMemories searches the memory of the session's user only.
func (s *httpServer) searchMemories(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	query := r.URL.Query().Get("q")

	var turns []memory.Turn
	if raw := r.URL.Query().Get("k"); len(raw) > 0 {
		topK, convErr := strconv.Atoi(raw)
		if convErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be an integer"})
			return
		}
		turns, err = s.memory.Retrieve(r.Context(), sess.UserID(), query, topK)
	} else {
		turns, err = s.memory.RetrieveDefault(r.Context(), sess.UserID(), query)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse[memory.Turn]{Items: turns})
}

func (s *httpServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		writeJSON(w, status, map[string]string{"error": "an error occurred while processing your request"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrMissingUserId),
		errors.Is(err, chat.ErrEmptyMessage),
		memory.IsKind(err, memory.KindInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrGeneration),
		errors.Is(err, chat.ErrEmptyReply),
		memory.IsKind(err, memory.KindEmbeddingFailure),
		memory.IsKind(err, memory.KindRetrievalFailure),
		memory.IsKind(err, memory.KindStoreFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
