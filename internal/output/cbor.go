package output

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"quicklook-go/internal/types"
)

// RFC 8746 tags, mirrored from the ingest decoder.
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
	tagUint32LE      = 70
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

// EncodeArray wraps a flat typed slice in a tag 40 multidimensional array.
func EncodeArray(arr types.NDArray) (cbor.Tag, error) {
	var (
		tagNumber uint64
		payload   []byte
		count     int
	)
	switch v := arr.Values.(type) {
	case []uint8:
		tagNumber, payload, count = tagUint8, append([]byte(nil), v...), len(v)
	case []uint16:
		payload = make([]byte, 2*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint16(payload[i*2:], x)
		}
		tagNumber, count = tagUint16LE, len(v)
	case []uint32:
		payload = make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(payload[i*4:], x)
		}
		tagNumber, count = tagUint32LE, len(v)
	case []float32:
		payload = make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(x))
		}
		tagNumber, count = tagFloat32LE, len(v)
	case []float64:
		payload = make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(payload[i*8:], math.Float64bits(x))
		}
		tagNumber, count = tagFloat64LE, len(v)
	default:
		return cbor.Tag{}, fmt.Errorf("unsupported array type %T", arr.Values)
	}

	total := 1
	shape := make([]any, len(arr.Shape))
	for i, d := range arr.Shape {
		total *= d
		shape[i] = d
	}
	if total != count {
		return cbor.Tag{}, fmt.Errorf("shape %v holds %d elements, payload %d", arr.Shape, total, count)
	}
	return cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			shape,
			cbor.Tag{Number: tagNumber, Content: payload},
		},
	}, nil
}

// EncodeExposure encodes a raw exposure as an exposure document.
func EncodeExposure(raw types.RawExposure) ([]byte, error) {
	counts, err := EncodeArray(raw.Counts)
	if err != nil {
		return nil, fmt.Errorf("encode counts: %w", err)
	}
	doc := map[string]any{
		"type":        "exposure",
		"exposure_id": raw.ExposureID,
		"times":       raw.Times,
		"counts":      counts,
	}
	if len(raw.Times) == 0 && raw.ReadTime > 0 {
		doc["times"] = raw.ReadTime
	}
	if raw.Mask != nil {
		mask, err := EncodeArray(*raw.Mask)
		if err != nil {
			return nil, fmt.Errorf("encode mask: %w", err)
		}
		doc["mask"] = mask
	}
	if raw.Noise != nil {
		doc["noise"] = noiseMap(*raw.Noise)
	}
	return cbor.Marshal(doc)
}

// EncodeResult encodes a fitted frame as a result document.
func EncodeResult(res types.FrameResult) ([]byte, error) {
	shape := []int{res.Rows, res.Cols}
	doc := map[string]any{
		"type":        "result",
		"exposure_id": res.ExposureID,
		"rows":        res.Rows,
		"cols":        res.Cols,
	}
	images := []struct {
		key    string
		values any
	}{
		{"rate", res.Rate},
		{"variance", res.Variance},
		{"chi_square", res.ChiSquare},
		{"flags", res.Flags},
	}
	for _, img := range images {
		tag, err := EncodeArray(types.NDArray{Shape: shape, Values: img.values})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", img.key, err)
		}
		doc[img.key] = tag
	}
	if res.Excluded != nil {
		excluded := make(map[int][]int)
		for pixel, idx := range res.Excluded {
			if len(idx) > 0 {
				excluded[pixel] = idx
			}
		}
		doc["excluded"] = excluded
	}
	return cbor.Marshal(doc)
}

// WriteResult writes res to <outputDir>/<runTimestamp>_exposure_<id>_result.cbor.
func WriteResult(outputDir, runTimestamp string, res types.FrameResult) (string, error) {
	data, err := EncodeResult(res)
	if err != nil {
		return "", err
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_exposure_%d_result.cbor", runTimestamp, res.ExposureID))
	return filename, writeFile(filename, data)
}

// WriteExposure writes an exposure document to path.
func WriteExposure(path string, raw types.RawExposure) error {
	data, err := EncodeExposure(raw)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// EncodeStart encodes a stream start message.
func EncodeStart(start types.StreamStart) ([]byte, error) {
	msg := map[string]any{
		"type":        "start",
		"exposure_id": start.ExposureID,
		"n_reads":     start.Reads,
		"rows":        start.Rows,
		"cols":        start.Cols,
	}
	if start.Noise != nil {
		msg["noise"] = noiseMap(*start.Noise)
	}
	return cbor.Marshal(msg)
}

// EncodeRead encodes a stream read message.
func EncodeRead(read types.RawRead) ([]byte, error) {
	data, err := EncodeArray(read.Data)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(map[string]any{
		"type":         "read",
		"exposure_id":  read.ExposureID,
		"read_index":   read.ReadIndex,
		"elapsed_time": read.Time,
		"data":         data,
	})
}

// EncodeEnd encodes a stream end message.
func EncodeEnd(exposureID int) ([]byte, error) {
	return cbor.Marshal(map[string]any{
		"type":        "end",
		"exposure_id": exposureID,
	})
}

func noiseMap(p types.NoiseParams) map[string]any {
	m := map[string]any{
		"read_noise": p.ReadNoise,
		"gain":       p.Gain,
	}
	if p.Saturation > 0 && !math.IsInf(p.Saturation, 1) {
		m["saturation"] = p.Saturation
	}
	return m
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
