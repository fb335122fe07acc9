package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"quicklook-go/internal/types"
)

// RFC 8746 tags.
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
	tagUint32LE      = 70
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

var errDimensionMismatch = errors.New("dimension mismatch")

// decodeMultiDimArray decodes tag 40 wrapping a typed array of any rank.
func decodeMultiDimArray(value any) (types.NDArray, error) {
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != tagMultiDimArray {
		return types.NDArray{}, fmt.Errorf("expected multidim tag 40")
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return types.NDArray{}, fmt.Errorf("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) == 0 {
		return types.NDArray{}, fmt.Errorf("invalid multidim dimensions")
	}

	shape := make([]int, len(dimsRaw))
	total := 1
	for i, d := range dimsRaw {
		n, err := toInt(d)
		if err != nil {
			return types.NDArray{}, err
		}
		if n < 0 {
			return types.NDArray{}, fmt.Errorf("negative dimension %d", n)
		}
		shape[i] = n
		total *= n
	}

	flat, n, err := decodeTypedArray(items[1])
	if err != nil {
		return types.NDArray{}, err
	}
	if n != total {
		return types.NDArray{}, fmt.Errorf("%w: shape %v holds %d elements, payload %d", errDimensionMismatch, shape, total, n)
	}
	return types.NDArray{Shape: shape, Values: flat}, nil
}

// decodeTypedArray returns the flat slice and its element count.
func decodeTypedArray(value any) (any, int, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, 0, fmt.Errorf("expected typed array tag")
	}

	dataBytes, err := extractBytes(tag)
	if err != nil {
		return nil, 0, err
	}

	switch tag.Number {
	case tagUint8:
		return dataBytes, len(dataBytes), nil
	case tagUint16LE:
		v := bytesToUint16(dataBytes)
		return v, len(v), nil
	case tagUint32LE:
		v := bytesToUint32(dataBytes)
		return v, len(v), nil
	case tagFloat32LE:
		v := bytesToFloat32(dataBytes)
		return v, len(v), nil
	case tagFloat64LE:
		v := bytesToFloat64(dataBytes)
		return v, len(v), nil
	default:
		return nil, 0, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func extractBytes(tag cbor.Tag) ([]byte, error) {
	switch v := tag.Content.(type) {
	case []byte:
		return v, nil
	case cbor.Tag:
		return nil, fmt.Errorf("unsupported nested tag %d", v.Number)
	default:
		return nil, fmt.Errorf("unsupported typed array content %T", v)
	}
}

func bytesToUint16(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := 0; i < len(out); i++ {
		out[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
	}
	return out
}

func bytesToUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := 0; i < len(out); i++ {
		out[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return out
}

func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := 0; i < len(out); i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func bytesToFloat64(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := 0; i < len(out); i++ {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		out[i] = math.Float64frombits(bits)
	}
	return out
}

// stringMap accepts both map shapes the CBOR decoder produces for
// interface values.
func stringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}

func toFloatSlice(v any) ([]float64, error) {
	switch s := v.(type) {
	case []any:
		out := make([]float64, len(s))
		for i, item := range s {
			f, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case cbor.Tag:
		flat, _, err := decodeTypedArray(s)
		if err != nil {
			return nil, err
		}
		if f, ok := flat.([]float64); ok {
			return f, nil
		}
		return nil, fmt.Errorf("times must be float64, got %T", flat)
	default:
		return nil, fmt.Errorf("unsupported list type %T", v)
	}
}

func toNoise(v any) (*types.NoiseParams, error) {
	m, ok := stringMap(v)
	if !ok {
		return nil, fmt.Errorf("invalid noise field %T", v)
	}
	var p types.NoiseParams
	var err error
	if p.ReadNoise, err = toFloat(m["read_noise"]); err != nil {
		return nil, fmt.Errorf("read_noise: %w", err)
	}
	if p.Gain, err = toFloat(m["gain"]); err != nil {
		return nil, fmt.Errorf("gain: %w", err)
	}
	if sat, ok := m["saturation"]; ok {
		if p.Saturation, err = toFloat(sat); err != nil {
			return nil, fmt.Errorf("saturation: %w", err)
		}
	}
	return &p, nil
}
