package processing

import (
	"fmt"
	"math"
	"reflect"

	"quicklook-go/internal/noise"
	"quicklook-go/internal/types"
)

// ProcessRawRead converts a streamed read into counts for a rows x cols frame.
func ProcessRawRead(raw types.RawRead, rows, cols int) (types.ReadFrame, bool) {
	if raw.ReadIndex < 0 {
		return types.ReadFrame{}, false
	}
	counts, ok := Samples(raw.Data.Values)
	if !ok || len(counts) != rows*cols {
		return types.ReadFrame{}, false
	}
	return types.ReadFrame{
		ExposureID: raw.ExposureID,
		ReadIndex:  raw.ReadIndex,
		Time:       raw.Time,
		Counts:     counts,
	}, true
}

// Samples flattens a decoded array payload into float64 counts.
func Samples(payload any) ([]float64, bool) {
	switch v := payload.(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, true
	case []float32:
		return convert(v), true
	case []uint8:
		return convert(v), true
	case []uint16:
		return convert(v), true
	case []uint32:
		return convert(v), true
	case []uint64:
		return convert(v), true
	case []int:
		return convert(v), true
	case []int64:
		return convert(v), true
	case [][]uint16:
		return convert(flatten(v)), true
	case [][]uint32:
		return convert(flatten(v)), true
	case [][]float32:
		return convert(flatten(v)), true
	case [][]float64:
		return flatten(v), true
	case []any:
		return samplesAny(v)
	case [][]any:
		return samplesAny(flatten(v))
	default:
		rv := reflect.ValueOf(payload)
		if rv.Kind() == reflect.Slice {
			return samplesAny(sliceToAny(rv))
		}
		return nil, false
	}
}

type number interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int | ~int64 | ~float32 | ~float64
}

func convert[T number](values []T) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

func flatten[T any](values [][]T) []T {
	n := 0
	for _, row := range values {
		n += len(row)
	}
	flat := make([]T, 0, n)
	for _, row := range values {
		flat = append(flat, row...)
	}
	return flat
}

func samplesAny(values []any) ([]float64, bool) {
	out := make([]float64, len(values))
	for i, v := range values {
		switch n := v.(type) {
		case uint64:
			out[i] = float64(n)
		case uint32:
			out[i] = float64(n)
		case uint16:
			out[i] = float64(n)
		case uint8:
			out[i] = float64(n)
		case int64:
			out[i] = float64(n)
		case int:
			out[i] = float64(n)
		case float64:
			out[i] = n
		case float32:
			out[i] = float64(n)
		default:
			return nil, false
		}
	}
	return out, true
}

func sliceToAny(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// BuildExposure converts a decoded exposure file into fit inputs.
func BuildExposure(raw types.RawExposure) (types.Exposure, error) {
	shape := raw.Counts.Shape
	if len(shape) != 3 {
		return types.Exposure{}, fmt.Errorf("%w: counts must be 3-D, got shape %v", ErrShapeMismatch, shape)
	}
	data, ok := Samples(raw.Counts.Values)
	if !ok {
		return types.Exposure{}, fmt.Errorf("%w: unsupported counts payload %T", ErrShapeMismatch, raw.Counts.Values)
	}
	cube := types.Cube{Reads: shape[0], Rows: shape[1], Cols: shape[2], Data: data}

	var mask []bool
	if raw.Mask != nil {
		values, ok := Samples(raw.Mask.Values)
		if !ok {
			return types.Exposure{}, fmt.Errorf("%w: unsupported mask payload %T", ErrShapeMismatch, raw.Mask.Values)
		}
		mask = make([]bool, len(values))
		for i, v := range values {
			mask[i] = v != 0
		}
	}

	times := append([]float64(nil), raw.Times...)
	if len(times) == 0 && raw.ReadTime > 0 {
		times = UniformTimes(cube.Reads, raw.ReadTime)
	}

	exp := types.Exposure{
		ID:    raw.ExposureID,
		Cube:  cube,
		Times: times,
		Mask:  mask,
		Noise: raw.Noise,
	}
	if err := CheckShape(exp.Cube, exp.Times, exp.Mask); err != nil {
		return types.Exposure{}, err
	}
	return exp, nil
}

// ResolveModel returns the exposure's own noise parameters when present,
// otherwise fallback.
func ResolveModel(params *types.NoiseParams, fallback noise.Model) (noise.Model, error) {
	if params == nil {
		return fallback, nil
	}
	saturation := params.Saturation
	if saturation == 0 {
		saturation = math.Inf(1)
	}
	return noise.New(params.ReadNoise, params.Gain, saturation)
}
