package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/w-h-a/therapist/memory/providers/index"
)

type record struct {
	id       string
	vector   []float32
	metadata map[string]any
}

type memoryIndex struct {
	options index.Options
	records map[string]record
	mtx     sync.RWMutex
}

func (i *memoryIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	cpy := make([]float32, len(vector))
	copy(cpy, vector)

	i.records[id] = record{
		id:       id,
		vector:   cpy,
		metadata: maps.Clone(metadata),
	}

	return nil
}

func (i *memoryIndex) Query(ctx context.Context, vector []float32, topK int, filter index.Filter) ([]index.Match, error) {
	if topK < 1 {
		return nil, nil
	}

	i.mtx.RLock()
	defer i.mtx.RUnlock()

	candidates := make([]index.Match, 0, len(i.records))

	for _, rec := range i.records {
		if !index.Matches(rec.metadata, filter) {
			continue
		}
		candidates = append(candidates, index.Match{
			Id:       rec.id,
			Score:    float32(index.CosineSimilarity(vector, rec.vector)),
			Metadata: maps.Clone(rec.metadata),
		})
	}

	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	return candidates, nil
}

// Len reports how many records idx holds, or -1 when idx is not an
// in-memory index.
func Len(idx index.Index) int {
	i, ok := idx.(*memoryIndex)
	if !ok {
		return -1
	}

	i.mtx.RLock()
	defer i.mtx.RUnlock()

	return len(i.records)
}

func NewIndex(opts ...index.Option) index.Index {
	options := index.NewOptions(opts...)

	return &memoryIndex{
		options: options,
		records: map[string]record{},
		mtx:     sync.RWMutex{},
	}
}
