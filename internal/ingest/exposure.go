package ingest

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"quicklook-go/internal/types"
)

// Document types written to disk.
const (
	DocumentExposure = "exposure"
	DocumentResult   = "result"
)

// DecodeExposure decodes an exposure document:
//
//	{"type": "exposure", "exposure_id": 1, "times": [...] or 1.5,
//	 "counts": <tag 40 [reads, rows, cols]>, "mask": <tag 40 [rows, cols]>,
//	 "noise": {"read_noise": 5, "gain": 1, "saturation": 65535}}
//
// A scalar times value, or a read_time key in place of times, gives a
// uniform read interval. mask and noise are optional.
func DecodeExposure(data []byte) (types.RawExposure, error) {
	payload, err := decodeDocument(data, DocumentExposure)
	if err != nil {
		return types.RawExposure{}, err
	}

	var raw types.RawExposure
	if raw.ExposureID, err = toInt(payload["exposure_id"]); err != nil {
		return types.RawExposure{}, fmt.Errorf("exposure: invalid exposure_id: %w", err)
	}
	if err := decodeTimes(payload, &raw); err != nil {
		return types.RawExposure{}, fmt.Errorf("exposure: %w", err)
	}
	if raw.Counts, err = decodeMultiDimArray(payload["counts"]); err != nil {
		return types.RawExposure{}, fmt.Errorf("exposure: invalid counts: %w", err)
	}
	if m, ok := payload["mask"]; ok && m != nil {
		mask, err := decodeMultiDimArray(m)
		if err != nil {
			return types.RawExposure{}, fmt.Errorf("exposure: invalid mask: %w", err)
		}
		raw.Mask = &mask
	}
	if n, ok := payload["noise"]; ok && n != nil {
		if raw.Noise, err = toNoise(n); err != nil {
			return types.RawExposure{}, fmt.Errorf("exposure: %w", err)
		}
	}
	return raw, nil
}

func decodeTimes(payload map[string]any, raw *types.RawExposure) error {
	value, ok := payload["times"]
	if !ok || value == nil {
		value, ok = payload["read_time"]
	}
	if !ok || value == nil {
		return fmt.Errorf("missing times")
	}
	if dt, err := toFloat(value); err == nil {
		if !(dt > 0) {
			return fmt.Errorf("invalid read interval %v", dt)
		}
		raw.ReadTime = dt
		return nil
	}
	times, err := toFloatSlice(value)
	if err != nil {
		return fmt.Errorf("invalid times: %w", err)
	}
	raw.Times = times
	return nil
}

// ReadExposureFile reads and decodes an exposure document from path.
func ReadExposureFile(path string) (types.RawExposure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.RawExposure{}, err
	}
	return DecodeExposure(data)
}

// DecodeResult decodes a result document written by the output package.
func DecodeResult(data []byte) (types.FrameResult, error) {
	payload, err := decodeDocument(data, DocumentResult)
	if err != nil {
		return types.FrameResult{}, err
	}

	var res types.FrameResult
	if res.ExposureID, err = toInt(payload["exposure_id"]); err != nil {
		return types.FrameResult{}, fmt.Errorf("result: invalid exposure_id: %w", err)
	}
	if res.Rows, err = toInt(payload["rows"]); err != nil {
		return types.FrameResult{}, fmt.Errorf("result: invalid rows: %w", err)
	}
	if res.Cols, err = toInt(payload["cols"]); err != nil {
		return types.FrameResult{}, fmt.Errorf("result: invalid cols: %w", err)
	}
	n := res.Rows * res.Cols

	images := []struct {
		key string
		dst *[]float64
	}{
		{"rate", &res.Rate},
		{"variance", &res.Variance},
		{"chi_square", &res.ChiSquare},
	}
	for _, img := range images {
		arr, err := decodeMultiDimArray(payload[img.key])
		if err != nil {
			return types.FrameResult{}, fmt.Errorf("result: invalid %s: %w", img.key, err)
		}
		values, ok := arr.Values.([]float64)
		if !ok || len(values) != n {
			return types.FrameResult{}, fmt.Errorf("result: %s must hold %d float64 values", img.key, n)
		}
		*img.dst = values
	}

	flags, err := decodeMultiDimArray(payload["flags"])
	if err != nil {
		return types.FrameResult{}, fmt.Errorf("result: invalid flags: %w", err)
	}
	flagValues, ok := flags.Values.([]byte)
	if !ok || len(flagValues) != n {
		return types.FrameResult{}, fmt.Errorf("result: flags must hold %d uint8 values", n)
	}
	res.Flags = flagValues

	if ex, ok := payload["excluded"]; ok && ex != nil {
		if res.Excluded, err = decodeExcluded(ex, n); err != nil {
			return types.FrameResult{}, fmt.Errorf("result: %w", err)
		}
	}
	return res, nil
}

// ReadResultFile reads and decodes a result document from path.
func ReadResultFile(path string) (types.FrameResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.FrameResult{}, err
	}
	return DecodeResult(data)
}

// DocumentType returns the "type" field of a CBOR document.
func DocumentType(data []byte) (string, error) {
	var head struct {
		Type string `cbor:"type"`
	}
	if err := cbor.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("CBOR decode: %w", err)
	}
	return head.Type, nil
}

func decodeDocument(data []byte, want string) (map[string]any, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%s: CBOR decode: %w", want, err)
	}
	if got, _ := payload["type"].(string); got != want {
		return nil, fmt.Errorf("%s: unexpected document type %q", want, got)
	}
	return payload, nil
}

func decodeExcluded(v any, pixels int) ([][]int, error) {
	m, ok := v.(map[any]any)
	if !ok {
		return nil, fmt.Errorf("invalid excluded field %T", v)
	}
	out := make([][]int, pixels)
	for k, val := range m {
		pixel, err := toInt(k)
		if err != nil || pixel < 0 || pixel >= pixels {
			return nil, fmt.Errorf("invalid excluded pixel %v", k)
		}
		list, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("invalid excluded list for pixel %d", pixel)
		}
		idx := make([]int, len(list))
		for i, item := range list {
			if idx[i], err = toInt(item); err != nil {
				return nil, fmt.Errorf("excluded pixel %d: %w", pixel, err)
			}
		}
		out[pixel] = idx
	}
	return out, nil
}
