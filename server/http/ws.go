package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/w-h-a/therapist/chat"
	"github.com/w-h-a/therapist/internal/service/session"
)

const (
	frameMessage = "message"
	frameError   = "error"
)

type inboundFrame struct {
	Text string `json:"text"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionId string `json:"session_id,omitempty"`
}

// chatSocket runs one chat over a websocket. Until a user id is known (from
// the user_id query parameter or the first message) no turn is recorded.
func (s *httpServer) chatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	var sess *session.Session
	defer func() {
		if sess != nil {
			_ = s.sessions.End(context.WithoutCancel(ctx), sess.ID())
		}
	}()

	if userId := strings.TrimSpace(r.URL.Query().Get("user_id")); len(userId) > 0 {
		if sess, err = s.greet(ctx, conn, userId); err != nil {
			return
		}
	} else if err := conn.WriteJSON(outboundFrame{Type: frameMessage, Text: chat.Welcome}); err != nil {
		return
	}

	for {
		var in inboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "websocket read ended", "error", err)
			}
			return
		}

		if sess == nil {
			if sess, err = s.greet(ctx, conn, in.Text); err != nil {
				if errors.Is(err, session.ErrMissingUserId) {
					continue
				}
				return
			}
			continue
		}

		reply, err := s.bot.Respond(ctx, sess, in.Text)
		if err != nil {
			slog.ErrorContext(ctx, "failed to respond", "error", err, "session_id", sess.ID())
			msg := "An error occurred while processing your message."
			if errors.Is(err, chat.ErrEmptyMessage) {
				msg = err.Error()
			}
			if err := conn.WriteJSON(outboundFrame{Type: frameError, Error: msg}); err != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(outboundFrame{Type: frameMessage, Text: reply, SessionId: sess.ID()}); err != nil {
			return
		}
	}
}

// greet starts a session for userId and says hello. An empty user id is
// reported to the client and returned as session.ErrMissingUserId.
func (s *httpServer) greet(ctx context.Context, conn *websocket.Conn, userId string) (*session.Session, error) {
	sess, err := s.sessions.Start(ctx, userId)
	if err != nil {
		if werr := conn.WriteJSON(outboundFrame{Type: frameError, Error: "No user ID provided. Please type your user ID."}); werr != nil {
			return nil, werr
		}
		return nil, err
	}

	if err := conn.WriteJSON(outboundFrame{Type: frameMessage, Text: chat.Greeting(sess.UserID()), SessionId: sess.ID()}); err != nil {
		return nil, err
	}

	return sess, nil
}
