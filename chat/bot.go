package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/w-h-a/therapist/generator"
	"github.com/w-h-a/therapist/internal/observability"
	"github.com/w-h-a/therapist/memory"
)

const (
	DefaultSystemPrompt = "You are a helpful, supportive, and empathetic therapy chatbot. " +
		"Always respond with kindness and understanding. " +
		"Do not provide medical advice or make diagnoses. " +
		"Encourage users to seek professional help if they mention serious issues."

	Welcome = "Welcome to the Therapy Bot! Please enter your user ID:"
)

var (
	ErrEmptyMessage = errors.New("message is required")
	ErrEmptyReply   = errors.New("model returned an empty reply")
	ErrGeneration   = errors.New("generate reply")
)

// Conversation is the session a turn belongs to.
type Conversation interface {
	ID() string
	UserID() string
	Append(turns ...memory.Turn)
}

type Bot struct {
	memory       memory.Memory
	generator    generator.Generator
	metrics      *observability.Metrics
	systemPrompt string
	contextSize  int
}

func Greeting(userId string) string {
	return fmt.Sprintf("Hello, %s! How can I help you today?", userId)
}

// Respond records the user's message, answers it with the help of related
// past turns, and records the answer.
func (b *Bot) Respond(ctx context.Context, conv Conversation, text string) (string, error) {
	if len(strings.TrimSpace(text)) == 0 {
		b.metrics.ObserveChatTurn("rejected")
		return "", ErrEmptyMessage
	}

	conv.Append(b.record(ctx, conv, memory.SpeakerUser, text))

	related, err := b.memory.Retrieve(ctx, conv.UserID(), text, b.contextSize)
	if err != nil {
		slog.WarnContext(ctx, "answering without related turns", "error", err, "session_id", conv.ID())
		related = nil
	}

	reply, err := b.generator.Generate(ctx, b.buildPrompt(related, text))
	if err != nil {
		b.metrics.ObserveChatTurn("error")
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	reply = strings.TrimSpace(reply)
	if len(reply) == 0 {
		b.metrics.ObserveChatTurn("error")
		return "", ErrEmptyReply
	}

	conv.Append(b.record(ctx, conv, memory.SpeakerBot, reply))

	b.metrics.ObserveChatTurn("ok")

	return reply, nil
}

// record stores a turn. A failure is logged and the turn is still returned
// for the local transcript, so the conversation can go on.
func (b *Bot) record(ctx context.Context, conv Conversation, speaker memory.Speaker, text string) memory.Turn {
	turn := memory.Turn{
		UserId:    conv.UserID(),
		SessionId: conv.ID(),
		Speaker:   speaker,
		Text:      text,
	}

	stored, err := b.memory.Record(ctx, turn)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record turn", "error", err, "session_id", conv.ID(), "speaker", speaker)
		return turn
	}

	return stored
}

func (b *Bot) buildPrompt(related []memory.Turn, text string) string {
	var sb bytes.Buffer
	sb.WriteString(b.systemPrompt)
	sb.WriteString("\n")

	for _, turn := range related {
		sb.WriteString(fmt.Sprintf("%s: %s\n", turn.Speaker, turn.Text))
	}

	sb.WriteString(fmt.Sprintf("user: %s\nbot:", text))

	return sb.String()
}

func New(
	memory memory.Memory,
	generator generator.Generator,
	metrics *observability.Metrics,
	systemPrompt string,
	contextSize int,
) *Bot {
	if memory == nil {
		panic("memory is required")
	}

	if generator == nil {
		panic("generator is required")
	}

	if contextSize <= 0 {
		contextSize = 5
	}

	if len(strings.TrimSpace(systemPrompt)) == 0 {
		systemPrompt = DefaultSystemPrompt
	}

	return &Bot{
		memory:       memory,
		generator:    generator,
		metrics:      metrics,
		systemPrompt: systemPrompt,
		contextSize:  contextSize,
	}
}
