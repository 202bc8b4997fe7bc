package memory

import "context"

// Memory is an append-only, per-user store of conversation turns that can be
// searched by semantic similarity.
type Memory interface {
	// Record persists a new turn and returns it with its id and timestamp.
	Record(ctx context.Context, turn Turn) (Turn, error)
	// Retrieve returns at most topK of the user's turns closest to queryText,
	// oldest first.
	Retrieve(ctx context.Context, userId string, queryText string, topK int) ([]Turn, error)
	// RetrieveDefault is Retrieve with the configured default topK.
	RetrieveDefault(ctx context.Context, userId string, queryText string) ([]Turn, error)
}
