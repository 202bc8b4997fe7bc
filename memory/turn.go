package memory

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is fixed width so that lexical order is chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

const (
	KeyUserId    = "user_id"
	KeySessionId = "session_id"
	KeyTimestamp = "timestamp"
	KeySpeaker   = "speaker"
	KeyText      = "text"
)

type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerBot
}

type Turn struct {
	Id        string  `json:"id"`
	UserId    string  `json:"user_id"`
	SessionId string  `json:"session_id"`
	Speaker   Speaker `json:"speaker"`
	Text      string  `json:"text"`
	Timestamp string  `json:"timestamp"`
}

func (t Turn) Validate() error {
	if len(strings.TrimSpace(t.UserId)) == 0 {
		return fmt.Errorf("%w: user id is required", ErrInvalidTurn)
	}
	if len(strings.TrimSpace(t.Text)) == 0 {
		return fmt.Errorf("%w: text is required", ErrInvalidTurn)
	}
	if !t.Speaker.Valid() {
		return fmt.Errorf("%w: unknown speaker %q", ErrInvalidTurn, t.Speaker)
	}
	return nil
}

// Metadata is the sanitized projection stored next to the turn's vector.
func (t Turn) Metadata() map[string]any {
	return SanitizeMetadata(map[string]any{
		KeyUserId:    t.UserId,
		KeySessionId: t.SessionId,
		KeyTimestamp: t.Timestamp,
		KeySpeaker:   string(t.Speaker),
		KeyText:      t.Text,
	})
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
