package embedder

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyEmbedding    = errors.New("provider returned no embedding")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// CheckDimension rejects empty vectors and, when dimension is set, vectors of
// any other length.
func CheckDimension(vec []float32, dimension int) error {
	if len(vec) == 0 {
		return ErrEmptyEmbedding
	}

	if dimension > 0 && len(vec) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dimension)
	}

	return nil
}
