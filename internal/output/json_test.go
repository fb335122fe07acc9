package output

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"quicklook-go/internal/types"
)

func TestNormalizeJSONValueReadMessage(t *testing.T) {
	payload, err := EncodeRead(types.RawRead{
		ExposureID: 3,
		ReadIndex:  1,
		Time:       1.5,
		Data:       types.NDArray{Shape: []int{2, 2}, Values: []uint16{1, 2, 3, 4}},
	})
	if err != nil {
		t.Fatalf("EncodeRead error: %v", err)
	}
	var decoded any
	if err := cbor.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("cbor.Unmarshal error: %v", err)
	}

	data, err := json.Marshal(NormalizeJSONValue(decoded))
	if err != nil {
		t.Fatalf("json.Marshal error: %v", err)
	}
	var got struct {
		Type string `json:"type"`
		Data struct {
			Shape []int  `json:"shape"`
			Dtype string `json:"dtype"`
			Bytes int    `json:"bytes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if got.Type != "read" || got.Data.Dtype != "uint16" || got.Data.Bytes != 8 {
		t.Fatalf("unexpected summary %s", data)
	}
	if len(got.Data.Shape) != 2 || got.Data.Shape[0] != 2 || got.Data.Shape[1] != 2 {
		t.Fatalf("shape = %v, want [2 2]", got.Data.Shape)
	}
}

func TestNormalizeJSONValueNonFinite(t *testing.T) {
	in := map[any]any{"variance": math.Inf(1), "rate": 2.5, "nested": []any{math.NaN()}}
	out := NormalizeJSONValue(in).(map[string]any)
	if out["variance"] != "+Inf" || out["rate"] != 2.5 {
		t.Fatalf("unexpected %v", out)
	}
	if _, err := json.Marshal(out); err != nil {
		t.Fatalf("json.Marshal error: %v", err)
	}
}
