package memory

import (
	"fmt"
	"math"
	"strconv"
)

// Sanitize projects v onto the primitive kinds a vector index accepts as
// metadata: string, int64, float64 and bool. nil becomes the empty string and
// anything else is stringified.
func Sanitize(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint:
		return fromUnsigned(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return fromUnsigned(val)
	case float32:
		return float64(val)
	case float64:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// fromUnsigned keeps v numeric while it fits in an int64.
func fromUnsigned(v uint64) any {
	if v > math.MaxInt64 {
		return strconv.FormatUint(v, 10)
	}
	return int64(v)
}

func SanitizeMetadata(metadata map[string]any) map[string]any {
	sanitized := make(map[string]any, len(metadata))
	for k, v := range metadata {
		sanitized[k] = Sanitize(v)
	}
	return sanitized
}
