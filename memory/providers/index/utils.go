package index

import (
	"fmt"
	"math"
)

// Matches evaluates filter against metadata. Values are compared by their
// string form so that numbers decoded from JSON still match their originals.
func Matches(metadata map[string]any, filter Filter) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// StringMetadata flattens metadata for stores that only keep string values.
func StringMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

func StringFilter(filter Filter) map[string]string {
	return StringMetadata(filter)
}
