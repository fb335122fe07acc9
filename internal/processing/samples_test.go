package processing

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"quicklook-go/internal/noise"
	"quicklook-go/internal/types"
)

func TestSamples(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    []float64
		ok      bool
	}{
		{"uint16", []uint16{1, 65535}, []float64{1, 65535}, true},
		{"float32", []float32{1.5, -2}, []float64{1.5, -2}, true},
		{"nested", [][]uint32{{1, 2}, {3}}, []float64{1, 2, 3}, true},
		{"any", []any{uint64(4), 2.5}, []float64{4, 2.5}, true},
		{"int8 via reflect", []int8{1, 2}, nil, false},
		{"string", "nope", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Samples(tt.payload)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Samples = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildExposure(t *testing.T) {
	raw := types.RawExposure{
		ExposureID: 3,
		Times:      []float64{0, 1},
		Counts:     types.NDArray{Shape: []int{2, 1, 2}, Values: []uint16{1, 2, 3, 4}},
		Mask:       &types.NDArray{Shape: []int{1, 2}, Values: []uint8{0, 1}},
	}
	exp, err := BuildExposure(raw)
	if err != nil {
		t.Fatalf("BuildExposure error: %v", err)
	}
	if exp.Cube.Reads != 2 || exp.Cube.Rows != 1 || exp.Cube.Cols != 2 {
		t.Fatalf("cube shape = %dx%dx%d", exp.Cube.Reads, exp.Cube.Rows, exp.Cube.Cols)
	}
	if !reflect.DeepEqual(exp.Mask, []bool{false, true}) {
		t.Fatalf("mask = %v", exp.Mask)
	}

	raw.Times = []float64{0}
	if _, err := BuildExposure(raw); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestBuildExposureUniformReadTime(t *testing.T) {
	raw := types.RawExposure{
		ExposureID: 4,
		ReadTime:   1.5,
		Counts:     types.NDArray{Shape: []int{4, 1, 1}, Values: []uint16{0, 150, 300, 450}},
	}
	exp, err := BuildExposure(raw)
	if err != nil {
		t.Fatalf("BuildExposure error: %v", err)
	}
	if want := []float64{0, 1.5, 3, 4.5}; !reflect.DeepEqual(exp.Times, want) {
		t.Fatalf("times = %v, want %v", exp.Times, want)
	}

	raw.ReadTime = 0
	if _, err := BuildExposure(raw); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("no times: err = %v, want ErrShapeMismatch", err)
	}
}

func TestResolveModel(t *testing.T) {
	fallback, _ := noise.New(5, 1, 100)
	m, err := ResolveModel(nil, fallback)
	if err != nil || m != fallback {
		t.Fatalf("ResolveModel(nil) = %v, %v", m, err)
	}
	m, err = ResolveModel(&types.NoiseParams{ReadNoise: 3, Gain: 2}, fallback)
	if err != nil {
		t.Fatalf("ResolveModel error: %v", err)
	}
	if !math.IsInf(m.Saturation(), 1) || m.Gain() != 2 {
		t.Fatalf("model = %+v", m)
	}
	if _, err := ResolveModel(&types.NoiseParams{ReadNoise: -1, Gain: 2}, fallback); !errors.Is(err, noise.ErrInvalidNoiseModel) {
		t.Fatalf("err = %v, want ErrInvalidNoiseModel", err)
	}
}
