package index

import "context"

// Filter is an exact-match predicate over stored metadata: a match must carry
// every key with an equal value.
type Filter map[string]any

type Match struct {
	Id       string
	Score    float32
	Metadata map[string]any
}

type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
}
