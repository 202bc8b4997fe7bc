package semantic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/w-h-a/therapist/memory"
	"github.com/w-h-a/therapist/memory/providers/index"
	getsafe "github.com/w-h-a/therapist/util/get_safe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/w-h-a/therapist/memory/semantic"

type semanticMemory struct {
	options memory.Options
}

func (m *semanticMemory) Record(ctx context.Context, turn memory.Turn) (memory.Turn, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "memory.Record")
	defer span.End()

	span.SetAttributes(
		attribute.String("memory.session_id", turn.SessionId),
		attribute.String("memory.speaker", string(turn.Speaker)),
	)

	start := time.Now()
	stored, err := m.record(ctx, turn)
	m.finish(span, "record", start, err)

	return stored, err
}

func (m *semanticMemory) record(ctx context.Context, turn memory.Turn) (memory.Turn, error) {
	if err := turn.Validate(); err != nil {
		return memory.Turn{}, memory.NewError(memory.KindInvalidInput, "record", err)
	}

	vec, err := m.embed(ctx, turn.Text)
	if err != nil {
		return memory.Turn{}, memory.NewError(memory.KindEmbeddingFailure, "record", err)
	}

	turn.Id = uuid.New().String()
	turn.Timestamp = memory.FormatTimestamp(m.options.Clock())

	upsertCtx, cancel := context.WithTimeout(ctx, m.options.Timeout)
	defer cancel()

	if err := m.options.Index.Upsert(upsertCtx, turn.Id, vec, turn.Metadata()); err != nil {
		return memory.Turn{}, memory.NewError(memory.KindStoreFailure, "record", err)
	}

	return turn, nil
}

func (m *semanticMemory) Retrieve(ctx context.Context, userId string, queryText string, topK int) ([]memory.Turn, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "memory.Retrieve")
	defer span.End()

	span.SetAttributes(attribute.Int("memory.top_k", topK))

	start := time.Now()
	turns, err := m.retrieve(ctx, userId, queryText, topK)
	m.finish(span, "retrieve", start, err)

	span.SetAttributes(attribute.Int("memory.results", len(turns)))

	return turns, err
}

func (m *semanticMemory) RetrieveDefault(ctx context.Context, userId string, queryText string) ([]memory.Turn, error) {
	return m.Retrieve(ctx, userId, queryText, m.options.TopK)
}

func (m *semanticMemory) retrieve(ctx context.Context, userId string, queryText string, topK int) ([]memory.Turn, error) {
	switch {
	case len(strings.TrimSpace(userId)) == 0:
		return nil, memory.NewError(memory.KindInvalidInput, "retrieve", fmt.Errorf("%w: user id is required", memory.ErrInvalidQuery))
	case len(strings.TrimSpace(queryText)) == 0:
		return nil, memory.NewError(memory.KindInvalidInput, "retrieve", fmt.Errorf("%w: query text is required", memory.ErrInvalidQuery))
	case topK < 1:
		return nil, memory.NewError(memory.KindInvalidInput, "retrieve", fmt.Errorf("%w: top k must be positive, got %d", memory.ErrInvalidQuery, topK))
	}

	vec, err := m.embed(ctx, queryText)
	if err != nil {
		return nil, memory.NewError(memory.KindEmbeddingFailure, "retrieve", err)
	}

	owner := memory.Sanitize(userId)

	queryCtx, cancel := context.WithTimeout(ctx, m.options.Timeout)
	defer cancel()

	matches, err := m.options.Index.Query(queryCtx, vec, topK, index.Filter{memory.KeyUserId: owner})
	if err != nil {
		return nil, memory.NewError(memory.KindRetrievalFailure, "retrieve", err)
	}

	turns := make([]memory.Turn, 0, len(matches))

	for _, match := range matches {
		// the index filter is trusted for ranking only, never for isolation
		if getsafe.String(match.Metadata, memory.KeyUserId) != userId {
			continue
		}
		turns = append(turns, turnFromMatch(match))
		if len(turns) == topK {
			break
		}
	}

	// similarity rank is discarded once the top k set is fixed
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp < turns[j].Timestamp
	})

	return turns, nil
}

func (m *semanticMemory) embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, m.options.Timeout)
	defer cancel()

	vec, err := m.options.Embedder.Embed(embedCtx, text)
	if err != nil {
		return nil, err
	}

	if len(vec) == 0 {
		return nil, errors.New("empty embedding")
	}

	return vec, nil
}

func (m *semanticMemory) finish(span trace.Span, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var merr *memory.Error
		if errors.As(err, &merr) {
			outcome = strings.ToLower(string(merr.Kind))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.options.Metrics.ObserveMemory(op, outcome, time.Since(start))
}

func turnFromMatch(match index.Match) memory.Turn {
	return memory.Turn{
		Id:        match.Id,
		UserId:    getsafe.String(match.Metadata, memory.KeyUserId),
		SessionId: getsafe.String(match.Metadata, memory.KeySessionId),
		Speaker:   memory.Speaker(getsafe.String(match.Metadata, memory.KeySpeaker)),
		Text:      getsafe.String(match.Metadata, memory.KeyText),
		Timestamp: getsafe.String(match.Metadata, memory.KeyTimestamp),
	}
}

func NewMemory(opts ...memory.Option) memory.Memory {
	options := memory.NewOptions(opts...)

	if options.Embedder == nil {
		panic("embedder is required")
	}

	if options.Index == nil {
		panic("index is required")
	}

	return &semanticMemory{
		options: options,
	}
}
