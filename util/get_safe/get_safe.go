package getsafe

import (
	"fmt"
	"strconv"
)

// String reads key from payload as a string. Absent or nil values yield "",
// other primitives are formatted so a mistyped field still reads back.
func String(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int32, int64:
		return fmt.Sprint(val)
	default:
		return ""
	}
}
