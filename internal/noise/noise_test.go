package noise

import (
	"errors"
	"math"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		readNoise  float64
		gain       float64
		saturation float64
		wantErr    bool
	}{
		{name: "valid", readNoise: 5, gain: 1, saturation: 65535},
		{name: "saturation disabled", readNoise: 5, gain: 1, saturation: math.Inf(1)},
		{name: "zero read noise", readNoise: 0, gain: 1, saturation: 100, wantErr: true},
		{name: "negative gain", readNoise: 5, gain: -1, saturation: 100, wantErr: true},
		{name: "zero saturation", readNoise: 5, gain: 1, saturation: 0, wantErr: true},
		{name: "nan read noise", readNoise: math.NaN(), gain: 1, saturation: 100, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.readNoise, tt.gain, tt.saturation)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidNoiseModel) {
					t.Errorf("error %v is not ErrInvalidNoiseModel", err)
				}
				return
			}
			if !m.Valid() {
				t.Errorf("Valid() = false for %+v", m)
			}
		})
	}
}

func TestVarianceOf(t *testing.T) {
	m, err := New(5, 2, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := m.VarianceOf(100); got != 25+200 {
		t.Errorf("VarianceOf(100) = %v, want 225", got)
	}
	if got := m.VarianceOf(-40); got != 25 {
		t.Errorf("VarianceOf(-40) = %v, want 25", got)
	}
	if got := m.DifferenceVariance(100); got != 200+2*25 {
		t.Errorf("DifferenceVariance(100) = %v, want 250", got)
	}
	if got := m.DifferenceVariance(-40); got != 50 {
		t.Errorf("DifferenceVariance(-40) = %v, want 50", got)
	}
	if !m.Saturated(1000) || m.Saturated(999.9) {
		t.Errorf("Saturated threshold mismatch")
	}
}
