package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/w-h-a/therapist/memory"
)

func TestStartGetEnd(t *testing.T) {
	ctx := context.Background()
	svc := New()

	s, err := svc.Start(ctx, "  alice ")
	require.NoError(t, err)
	require.Equal(t, "alice", s.UserID())
	require.NotEmpty(t, s.ID())

	got, err := svc.Get(ctx, s.ID())
	require.NoError(t, err)
	require.Same(t, s, got)
	require.Equal(t, []string{s.ID()}, svc.List(ctx))

	require.NoError(t, svc.End(ctx, s.ID()))
	_, err = svc.Get(ctx, s.ID())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.End(ctx, s.ID()), ErrNotFound)
}

func TestStartRequiresUser(t *testing.T) {
	_, err := New().Start(context.Background(), "   ")
	require.ErrorIs(t, err, ErrMissingUserId)
}

func TestSessionsAreDistinct(t *testing.T) {
	ctx := context.Background()
	svc := New()

	a, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	b, err := svc.Start(ctx, "alice")
	require.NoError(t, err)

	require.NotEqual(t, a.ID(), b.ID())
}

func TestHistoryIsACopy(t *testing.T) {
	s, err := New().Start(context.Background(), "alice")
	require.NoError(t, err)

	s.Append(memory.Turn{Text: "one"}, memory.Turn{Text: "two"})

	history := s.History()
	require.Len(t, history, 2)
	history[0].Text = "changed"
	require.Equal(t, "one", s.History()[0].Text)
}
