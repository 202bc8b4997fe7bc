package getsafe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	payload := map[string]any{
		"text":    "hi",
		"nil":     nil,
		"flag":    true,
		"decoded": float64(42),
		"ratio":   float32(0.5),
		"count":   int64(7),
		"list":    []string{"a"},
	}

	assert.Equal(t, "hi", String(payload, "text"))
	assert.Equal(t, "", String(payload, "nil"))
	assert.Equal(t, "", String(payload, "absent"))
	assert.Equal(t, "true", String(payload, "flag"))
	assert.Equal(t, "42", String(payload, "decoded"))
	assert.Equal(t, "0.5", String(payload, "ratio"))
	assert.Equal(t, "7", String(payload, "count"))
	assert.Equal(t, "", String(payload, "list"))
	assert.Equal(t, "", String(nil, "text"))
}
