package output

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// NormalizeJSONValue turns a decoded CBOR value into something
// encoding/json accepts: interface-keyed maps get string keys, typed
// array tags are summarized instead of dumped and non-finite floats
// become strings.
func NormalizeJSONValue(value any) any {
	switch v := value.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[fmt.Sprint(key)] = NormalizeJSONValue(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = NormalizeJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = NormalizeJSONValue(val)
		}
		return out
	case []byte:
		return map[string]any{"bytes": len(v)}
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case cbor.Tag:
		return normalizeTag(v)
	default:
		return v
	}
}

func normalizeTag(tag cbor.Tag) any {
	if tag.Number == tagMultiDimArray {
		if items, ok := tag.Content.([]any); ok && len(items) == 2 {
			out := map[string]any{"shape": NormalizeJSONValue(items[0])}
			if inner, ok := items[1].(cbor.Tag); ok {
				out["dtype"] = dtypeName(inner.Number)
				if data, ok := inner.Content.([]byte); ok {
					out["bytes"] = len(data)
				}
			}
			return out
		}
	}
	if data, ok := tag.Content.([]byte); ok {
		return map[string]any{"dtype": dtypeName(tag.Number), "bytes": len(data)}
	}
	return map[string]any{"tag": tag.Number, "content": NormalizeJSONValue(tag.Content)}
}

func dtypeName(tag uint64) string {
	switch tag {
	case tagUint8:
		return "uint8"
	case tagUint16LE:
		return "uint16"
	case tagUint32LE:
		return "uint32"
	case tagFloat32LE:
		return "float32"
	case tagFloat64LE:
		return "float64"
	default:
		return fmt.Sprintf("tag%d", tag)
	}
}

func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return v
}
