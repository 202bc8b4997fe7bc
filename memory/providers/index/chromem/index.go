package chromem

import (
	"context"
	"fmt"
	"log/slog"

	chromem "github.com/philippgille/chromem-go"
	"github.com/w-h-a/therapist/memory/providers/index"
)

const defaultCollection = "turns"

type chromemIndex struct {
	options    index.Options
	db         *chromem.DB
	collection *chromem.Collection
}

func (i *chromemIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	meta := index.StringMetadata(metadata)

	// chromem refuses documents without content even when the embedding is set
	content := meta["text"]
	if len(content) == 0 {
		content = id
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: vector,
		Metadata:  meta,
	}

	if err := i.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	return nil
}

func (i *chromemIndex) Query(ctx context.Context, vector []float32, topK int, filter index.Filter) ([]index.Match, error) {
	if topK < 1 {
		return nil, nil
	}

	// nResults may not exceed the collection size
	count := i.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	var where map[string]string
	if len(filter) > 0 {
		where = index.StringFilter(filter)
	}

	results, err := i.collection.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	matches := make([]index.Match, 0, len(results))

	for _, result := range results {
		metadata := make(map[string]any, len(result.Metadata))
		for k, v := range result.Metadata {
			metadata[k] = v
		}
		matches = append(matches, index.Match{
			Id:       result.ID,
			Score:    result.Similarity,
			Metadata: metadata,
		})
	}

	return matches, nil
}

// openDB returns a compressed on-disk database under location, or an
// in-memory one when location is empty.
func openDB(location string) (*chromem.DB, error) {
	if len(location) == 0 {
		return chromem.NewDB(), nil
	}
	return chromem.NewPersistentDB(location, true)
}

// NewIndex opens an embedded chromem database. Location, when set, is the
// directory used to persist it.
func NewIndex(opts ...index.Option) index.Index {
	options := index.NewOptions(opts...)

	if len(options.Collection) == 0 {
		options.Collection = defaultCollection
	}

	db, err := openDB(options.Location)
	if err != nil {
		detail := "failed to open persistent chromem index"
		slog.ErrorContext(options.Context, detail, "error", err, "location", options.Location)
		panic(detail)
	}

	collection, err := db.GetOrCreateCollection(options.Collection, nil, nil)
	if err != nil {
		detail := "failed to create chromem collection"
		slog.ErrorContext(options.Context, detail, "error", err, "collection", options.Collection)
		panic(detail)
	}

	return &chromemIndex{
		options:    options,
		db:         db,
		collection: collection,
	}
}
