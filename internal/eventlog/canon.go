package eventlog

import (
	"encoding/json"
	"math/big"
	"sort"
	"time"
)

// M is an ordered-key-safe payload builder: encoding/json already emits
// map[string]any keys in sorted order, which is what makes payloadJSON
// byte-stable across runs (§4.1). Big integers must always be handed in as
// *big.Int (rendered as decimal strings) or string; floats are never
// permitted in a signed payload.
type M map[string]any

// Canonicalize renders m as the byte-stable JSON string that gets signed.
// Nested maps and slices of maps are walked and normalized recursively.
func Canonicalize(m M) (string, error) {
	normalized := normalize(m)
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case M:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = normalize(t[k])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []M:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case *big.Int:
		if t == nil {
			return nil
		}
		return t.String()
	case time.Time:
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	case float32, float64:
		// Floating point is never signable per §4.1; callers must convert
		// to *big.Int or string before reaching here.
		panic("eventlog: float value in signed payload")
	default:
		return t
	}
}
