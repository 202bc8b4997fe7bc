package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/w-h-a/therapist/memory/providers/index"
)

func TestContainment(t *testing.T) {
	bs, err := containment(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(bs))

	bs, err = containment(index.Filter{"user_id": "u1", "flag": true})
	require.NoError(t, err)
	require.JSONEq(t, `{"user_id":"u1","flag":true}`, string(bs))
}
