package ingest

import (
	"reflect"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func exposureDoc(extra map[string]any) map[string]any {
	doc := map[string]any{
		"type":        DocumentExposure,
		"exposure_id": 5,
		"counts": cbor.Tag{
			Number: tagMultiDimArray,
			Content: []any{
				[]any{3, 1, 1},
				cbor.Tag{Number: tagUint16LE, Content: []byte{1, 0, 2, 0, 3, 0}},
			},
		},
	}
	for k, v := range extra {
		doc[k] = v
	}
	return doc
}

func TestDecodeExposureTimes(t *testing.T) {
	tests := []struct {
		name     string
		extra    map[string]any
		times    []float64
		readTime float64
		wantErr  bool
	}{
		{name: "list", extra: map[string]any{"times": []any{0.0, 1.5, 3.0}}, times: []float64{0, 1.5, 3}},
		{name: "scalar", extra: map[string]any{"times": 1.5}, readTime: 1.5},
		{name: "integer scalar", extra: map[string]any{"times": 2}, readTime: 2},
		{name: "read_time key", extra: map[string]any{"read_time": 0.25}, readTime: 0.25},
		{name: "zero interval", extra: map[string]any{"times": 0.0}, wantErr: true},
		{name: "negative interval", extra: map[string]any{"read_time": -1.0}, wantErr: true},
		{name: "missing", extra: nil, wantErr: true},
		{name: "string", extra: map[string]any{"times": "fast"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := cbor.Marshal(exposureDoc(tt.extra))
			if err != nil {
				t.Fatalf("marshal error: %v", err)
			}
			raw, err := DecodeExposure(data)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeExposure accepted %v", tt.extra)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeExposure error: %v", err)
			}
			if !reflect.DeepEqual(raw.Times, tt.times) {
				t.Fatalf("times = %v, want %v", raw.Times, tt.times)
			}
			if raw.ReadTime != tt.readTime {
				t.Fatalf("read time = %v, want %v", raw.ReadTime, tt.readTime)
			}
			if !reflect.DeepEqual(raw.Counts.Shape, []int{3, 1, 1}) {
				t.Fatalf("counts shape = %v", raw.Counts.Shape)
			}
		})
	}
}
