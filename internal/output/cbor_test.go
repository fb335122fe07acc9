package output

import (
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"quicklook-go/internal/ingest"
	"quicklook-go/internal/types"
)

func TestExposureDocument(t *testing.T) {
	raw := types.RawExposure{
		ExposureID: 12,
		Times:      []float64{0, 1.5, 3},
		Counts:     types.NDArray{Shape: []int{3, 1, 2}, Values: []uint16{0, 1, 100, 101, 200, 65535}},
		Mask:       &types.NDArray{Shape: []int{1, 2}, Values: []uint8{0, 1}},
		Noise:      &types.NoiseParams{ReadNoise: 5, Gain: 1.5, Saturation: 60000},
	}
	path := filepath.Join(t.TempDir(), "exp.cbor")
	if err := WriteExposure(path, raw); err != nil {
		t.Fatalf("WriteExposure error: %v", err)
	}

	got, err := ingest.ReadExposureFile(path)
	if err != nil {
		t.Fatalf("ReadExposureFile error: %v", err)
	}
	if !reflect.DeepEqual(got, raw) {
		t.Fatalf("exposure mismatch:\n got %+v\nwant %+v", got, raw)
	}
}

func TestExposureDocumentReadTime(t *testing.T) {
	raw := types.RawExposure{
		ExposureID: 13,
		ReadTime:   2.5,
		Counts:     types.NDArray{Shape: []int{2, 1, 1}, Values: []uint16{10, 35}},
	}
	data, err := EncodeExposure(raw)
	if err != nil {
		t.Fatalf("EncodeExposure error: %v", err)
	}
	got, err := ingest.DecodeExposure(data)
	if err != nil {
		t.Fatalf("DecodeExposure error: %v", err)
	}
	if got.ReadTime != 2.5 || got.Times != nil {
		t.Fatalf("got read time %v times %v, want 2.5 and none", got.ReadTime, got.Times)
	}
}

func TestResultDocument(t *testing.T) {
	res := types.FrameResult{
		ExposureID: 4,
		Rows:       1,
		Cols:       3,
		Rate:       []float64{1.5, 0, 2},
		Variance:   []float64{0.25, math.Inf(1), 0.5},
		ChiSquare:  []float64{1, 0, 0.75},
		Flags:      []uint8{0, 4, 2},
		Excluded:   [][]int{nil, nil, {3}},
	}
	data, err := EncodeResult(res)
	if err != nil {
		t.Fatalf("EncodeResult error: %v", err)
	}
	kind, err := ingest.DocumentType(data)
	if err != nil || kind != ingest.DocumentResult {
		t.Fatalf("DocumentType = %q, %v", kind, err)
	}

	got, err := ingest.DecodeResult(data)
	if err != nil {
		t.Fatalf("DecodeResult error: %v", err)
	}
	if !reflect.DeepEqual(got, res) {
		t.Fatalf("result mismatch:\n got %+v\nwant %+v", got, res)
	}
}

func TestStreamMessages(t *testing.T) {
	start := types.StreamStart{ExposureID: 2, Reads: 4, Rows: 2, Cols: 2, Noise: &types.NoiseParams{ReadNoise: 3, Gain: 2}}
	payload, err := EncodeStart(start)
	if err != nil {
		t.Fatalf("EncodeStart error: %v", err)
	}
	msg, err := ingest.DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage error: %v", err)
	}
	if !reflect.DeepEqual(msg.Start, start) {
		t.Fatalf("start mismatch: got %+v want %+v", msg.Start, start)
	}

	read := types.RawRead{ExposureID: 2, ReadIndex: 1, Time: 0.5, Data: types.NDArray{Shape: []int{2, 2}, Values: []float32{1, 2, 3, 4}}}
	payload, err = EncodeRead(read)
	if err != nil {
		t.Fatalf("EncodeRead error: %v", err)
	}
	msg, err = ingest.DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage error: %v", err)
	}
	if !reflect.DeepEqual(msg.Read, read) {
		t.Fatalf("read mismatch: got %+v want %+v", msg.Read, read)
	}

	payload, err = EncodeEnd(2)
	if err != nil {
		t.Fatalf("EncodeEnd error: %v", err)
	}
	if msg, err = ingest.DecodeMessage(payload); err != nil || msg.Type != ingest.MessageEnd || msg.ExposureID != 2 {
		t.Fatalf("end = %+v, %v", msg, err)
	}
}

func TestEncodeArrayShapeMismatch(t *testing.T) {
	if _, err := EncodeArray(types.NDArray{Shape: []int{2, 2}, Values: []float64{1}}); err == nil {
		t.Fatalf("expected shape error")
	}
	if _, err := EncodeArray(types.NDArray{Shape: []int{1}, Values: []int8{1}}); err == nil {
		t.Fatalf("expected type error")
	}
}
