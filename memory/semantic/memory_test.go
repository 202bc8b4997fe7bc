package semantic_test

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w-h-a/therapist/internal/observability"
	"github.com/w-h-a/therapist/memory"
	"github.com/w-h-a/therapist/memory/providers/index"
	memoryindex "github.com/w-h-a/therapist/memory/providers/index/memory"
	"github.com/w-h-a/therapist/memory/semantic"
)

// wordEmbedder hashes words into a small vector so that texts sharing words
// land close together.
type wordEmbedder struct {
	dims  int
	err   error
	mtx   sync.Mutex
	calls int
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mtx.Lock()
	e.calls++
	e.mtx.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, e.dims)
	vec[0] = 0.01
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32())%e.dims]++
	}
	return vec, nil
}

type fakeIndex struct {
	upsertErr error
	queryErr  error
	matches   []index.Match
	upserts   int
	filter    index.Filter
	topK      int
}

func (i *fakeIndex) Upsert(_ context.Context, _ string, _ []float32, _ map[string]any) error {
	if i.upsertErr != nil {
		return i.upsertErr
	}
	i.upserts++
	return nil
}

func (i *fakeIndex) Query(_ context.Context, _ []float32, topK int, filter index.Filter) ([]index.Match, error) {
	i.filter = filter
	i.topK = topK
	if i.queryErr != nil {
		return nil, i.queryErr
	}
	return i.matches, nil
}

type tickingClock struct {
	now time.Time
	mtx sync.Mutex
}

func (c *tickingClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newClock() *tickingClock {
	return &tickingClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func newMemory(t *testing.T, idx index.Index, opts ...memory.Option) memory.Memory {
	t.Helper()
	base := []memory.Option{
		memory.WithEmbedder(&wordEmbedder{dims: 16}),
		memory.WithIndex(idx),
		memory.WithClock(newClock().Now),
	}
	return semantic.NewMemory(append(base, opts...)...)
}

func record(t *testing.T, m memory.Memory, userId, sessionId string, speaker memory.Speaker, text string) memory.Turn {
	t.Helper()
	turn, err := m.Record(context.Background(), memory.Turn{
		UserId:    userId,
		SessionId: sessionId,
		Speaker:   speaker,
		Text:      text,
	})
	require.NoError(t, err)
	return turn
}

func TestRecordAssignsIdAndTimestamp(t *testing.T) {
	idx := memoryindex.NewIndex()
	m := newMemory(t, idx)

	first := record(t, m, "u1", "s1", memory.SpeakerUser, "hello there")
	second := record(t, m, "u1", "s1", memory.SpeakerUser, "hello there")

	require.NotEmpty(t, first.Id)
	require.NotEqual(t, first.Id, second.Id)
	require.Equal(t, "2024-05-01T12:00:01.000000Z", first.Timestamp)
	require.Less(t, first.Timestamp, second.Timestamp)
	require.Equal(t, 2, memoryindex.Len(idx))
}

func TestRecordRejectsInvalidTurns(t *testing.T) {
	idx := &fakeIndex{}
	m := newMemory(t, idx)

	tests := []struct {
		name string
		turn memory.Turn
	}{
		{"blank text", memory.Turn{UserId: "u1", Speaker: memory.SpeakerUser, Text: "   "}},
		{"missing user", memory.Turn{Speaker: memory.SpeakerUser, Text: "hi"}},
		{"unknown speaker", memory.Turn{UserId: "u1", Speaker: "narrator", Text: "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Record(context.Background(), tt.turn)
			require.Error(t, err)
			require.True(t, memory.IsKind(err, memory.KindInvalidInput))
			require.ErrorIs(t, err, memory.ErrInvalidTurn)
		})
	}
	require.Zero(t, idx.upserts)
}

func TestRecordEmbeddingFailureWritesNothing(t *testing.T) {
	idx := &fakeIndex{}
	m := semantic.NewMemory(
		memory.WithEmbedder(&wordEmbedder{dims: 4, err: errors.New("provider unavailable")}),
		memory.WithIndex(idx),
	)

	_, err := m.Record(context.Background(), memory.Turn{UserId: "u1", Speaker: memory.SpeakerUser, Text: "hi"})
	require.Error(t, err)
	require.True(t, memory.IsKind(err, memory.KindEmbeddingFailure))
	require.Zero(t, idx.upserts)
}

func TestRecordStoreFailure(t *testing.T) {
	cause := errors.New("index down")
	m := newMemory(t, &fakeIndex{upsertErr: cause})

	_, err := m.Record(context.Background(), memory.Turn{UserId: "u1", Speaker: memory.SpeakerBot, Text: "hi"})
	require.Error(t, err)
	require.True(t, memory.IsKind(err, memory.KindStoreFailure))
	require.ErrorIs(t, err, cause)
}

func TestRetrieveScenario(t *testing.T) {
	m := newMemory(t, memoryindex.NewIndex())

	t0 := record(t, m, "u1", "s1", memory.SpeakerUser, "I feel anxious")
	t1 := record(t, m, "u1", "s1", memory.SpeakerBot, "Let's talk about coping strategies")
	record(t, m, "u2", "s2", memory.SpeakerUser, "unrelated")

	turns, err := m.Retrieve(context.Background(), "u1", "anxiety", 5)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, t0.Id, turns[0].Id)
	require.Equal(t, t1.Id, turns[1].Id)
	require.Equal(t, memory.SpeakerUser, turns[0].Speaker)
	require.Equal(t, "I feel anxious", turns[0].Text)
	require.Equal(t, memory.SpeakerBot, turns[1].Speaker)
	for _, turn := range turns {
		require.Equal(t, "u1", turn.UserId)
	}
}

func TestRetrieveNeverCrossesUsers(t *testing.T) {
	m := newMemory(t, memoryindex.NewIndex())

	for i := range 10 {
		record(t, m, "alice", "a", memory.SpeakerUser, fmt.Sprintf("shared words number %d", i))
		record(t, m, "bob", "b", memory.SpeakerUser, fmt.Sprintf("shared words number %d", i))
	}

	for _, k := range []int{1, 3, 10, 50} {
		turns, err := m.Retrieve(context.Background(), "alice", "shared words", k)
		require.NoError(t, err)
		for _, turn := range turns {
			require.Equal(t, "alice", turn.UserId)
		}
	}
}

func TestRetrieveDropsLeakedMatches(t *testing.T) {
	idx := &fakeIndex{matches: []index.Match{
		{Id: "1", Metadata: map[string]any{memory.KeyUserId: "u2", memory.KeyTimestamp: "2024-01-01T00:00:00.000000Z"}},
		{Id: "2", Metadata: map[string]any{memory.KeyUserId: "u1", memory.KeyTimestamp: "2024-01-02T00:00:00.000000Z"}},
	}}
	m := newMemory(t, idx)

	turns, err := m.Retrieve(context.Background(), "u1", "anything", 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "2", turns[0].Id)
	require.Equal(t, index.Filter{memory.KeyUserId: "u1"}, idx.filter)
	require.Equal(t, 5, idx.topK)
}

func TestRetrieveSortsChronologically(t *testing.T) {
	idx := &fakeIndex{matches: []index.Match{
		{Id: "late", Score: 0.9, Metadata: map[string]any{memory.KeyUserId: "u1", memory.KeyTimestamp: "2024-01-03T00:00:00.000000Z"}},
		{Id: "early", Score: 0.8, Metadata: map[string]any{memory.KeyUserId: "u1", memory.KeyTimestamp: "2024-01-01T00:00:00.000000Z"}},
		{Id: "middle", Score: 0.7, Metadata: map[string]any{memory.KeyUserId: "u1", memory.KeyTimestamp: "2024-01-02T00:00:00.000000Z"}},
	}}
	m := newMemory(t, idx)

	turns, err := m.Retrieve(context.Background(), "u1", "q", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"early", "middle", "late"}, ids(turns))
}

func TestRetrieveToleratesMalformedMetadata(t *testing.T) {
	idx := &fakeIndex{matches: []index.Match{
		{Id: "ok", Metadata: map[string]any{memory.KeyUserId: "u1", memory.KeyTimestamp: "2024-01-01T00:00:00.000000Z", memory.KeyText: "hello"}},
		{Id: "no-timestamp", Metadata: map[string]any{memory.KeyUserId: "u1", memory.KeyText: 42.0}},
		{Id: "bad-types", Metadata: map[string]any{memory.KeyUserId: "u1", memory.KeyTimestamp: nil, memory.KeySpeaker: []string{"x"}}},
	}}
	m := newMemory(t, idx)

	turns, err := m.Retrieve(context.Background(), "u1", "q", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"no-timestamp", "bad-types", "ok"}, ids(turns))
	require.Equal(t, "42", turns[0].Text)
	require.Empty(t, turns[1].Speaker)
}

func TestRetrieveBoundsResultSize(t *testing.T) {
	m := newMemory(t, memoryindex.NewIndex())
	for i := range 8 {
		record(t, m, "u1", "s1", memory.SpeakerUser, fmt.Sprintf("turn %d", i))
	}

	for _, k := range []int{1, 2, 5, 8, 20} {
		turns, err := m.Retrieve(context.Background(), "u1", "turn", k)
		require.NoError(t, err)
		require.LessOrEqual(t, len(turns), k)
	}
}

func TestRetrieveTruncatesOversizedIndexResponse(t *testing.T) {
	matches := make([]index.Match, 0, 6)
	for i := range 6 {
		matches = append(matches, index.Match{Id: fmt.Sprint(i), Metadata: map[string]any{memory.KeyUserId: "u1"}})
	}
	m := newMemory(t, &fakeIndex{matches: matches})

	turns, err := m.Retrieve(context.Background(), "u1", "q", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
}

func TestRetrieveDefaultUsesConfiguredTopK(t *testing.T) {
	idx := &fakeIndex{}
	m := newMemory(t, idx, memory.WithTopK(2))
	for i := range 6 {
		record(t, m, "u1", "s1", memory.SpeakerUser, fmt.Sprintf("hi %d", i))
	}
	for i := range 6 {
		idx.matches = append(idx.matches, index.Match{Id: fmt.Sprint(i), Metadata: map[string]any{memory.KeyUserId: "u1"}})
	}

	turns, err := m.RetrieveDefault(context.Background(), "u1", "hi")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, 2, idx.topK)
}

func TestRetrieveDefaultFallsBackToDefaultTopK(t *testing.T) {
	idx := &fakeIndex{}
	m := newMemory(t, idx, memory.WithTopK(0))

	_, err := m.RetrieveDefault(context.Background(), "u1", "hi")
	require.NoError(t, err)
	require.Equal(t, memory.DefaultTopK, idx.topK)
}

func TestRetrieveEmptyHistory(t *testing.T) {
	m := newMemory(t, memoryindex.NewIndex())

	turns, err := m.Retrieve(context.Background(), "nobody", "anything", 5)
	require.NoError(t, err)
	require.NotNil(t, turns)
	require.Empty(t, turns)
}

func TestRetrieveValidatesInput(t *testing.T) {
	m := newMemory(t, &fakeIndex{})

	_, err := m.Retrieve(context.Background(), "", "q", 5)
	require.ErrorIs(t, err, memory.ErrInvalidQuery)
	_, err = m.Retrieve(context.Background(), "u1", " ", 5)
	require.ErrorIs(t, err, memory.ErrInvalidQuery)
	_, err = m.Retrieve(context.Background(), "u1", "q", 0)
	require.True(t, memory.IsKind(err, memory.KindInvalidInput))
}

func TestRetrieveFailures(t *testing.T) {
	m := semantic.NewMemory(
		memory.WithEmbedder(&wordEmbedder{dims: 4, err: errors.New("input too long")}),
		memory.WithIndex(&fakeIndex{}),
	)
	_, err := m.Retrieve(context.Background(), "u1", "q", 5)
	require.True(t, memory.IsKind(err, memory.KindEmbeddingFailure))

	m = newMemory(t, &fakeIndex{queryErr: context.DeadlineExceeded})
	_, err = m.Retrieve(context.Background(), "u1", "q", 5)
	require.True(t, memory.IsKind(err, memory.KindRetrievalFailure))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentRecordAndRetrieve(t *testing.T) {
	m := newMemory(t, memoryindex.NewIndex())

	var wg sync.WaitGroup
	for u := range 4 {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for i := range 5 {
				_, err := m.Record(context.Background(), memory.Turn{UserId: user, SessionId: "s", Speaker: memory.SpeakerUser, Text: fmt.Sprintf("message %d", i)})
				assert.NoError(t, err)
			}
		}(fmt.Sprintf("user-%d", u))
	}
	wg.Wait()

	turns, err := m.Retrieve(context.Background(), "user-2", "message", 10)
	require.NoError(t, err)
	require.Len(t, turns, 5)
	for i := 1; i < len(turns); i++ {
		require.LessOrEqual(t, turns[i-1].Timestamp, turns[i].Timestamp)
	}
}

func TestMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	m := newMemory(t, &fakeIndex{queryErr: errors.New("boom")}, memory.WithMetrics(metrics))

	_, err := m.Record(context.Background(), memory.Turn{UserId: "u1", Speaker: memory.SpeakerUser, Text: "hi"})
	require.NoError(t, err)
	_, err = m.Retrieve(context.Background(), "u1", "hi", 5)
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.MemoryOps.WithLabelValues("record", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.MemoryOps.WithLabelValues("retrieve", "retrieval_failure")))
}

func ids(turns []memory.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, turn := range turns {
		out = append(out, turn.Id)
	}
	return out
}
