package simulator

import (
	"context"
	"math"
	"testing"
	"time"

	"quicklook-go/internal/noise"
	"quicklook-go/internal/processing"
	"quicklook-go/internal/ramp"
)

func TestExposureFitsBackToTruth(t *testing.T) {
	p := DefaultParams()
	p.Rows, p.Cols = 8, 8
	p.CosmicRate = 0.2
	p.CosmicAmplitude = 5000
	gen := NewGenerator(p)

	raw, truth := gen.Exposure(1)
	exp, err := processing.BuildExposure(raw)
	if err != nil {
		t.Fatalf("BuildExposure error: %v", err)
	}
	model, err := noise.New(p.ReadNoise, p.Gain, p.Saturation)
	if err != nil {
		t.Fatalf("noise.New error: %v", err)
	}
	d, err := processing.NewDispatcher(model, processing.WithDiagnostics(true))
	if err != nil {
		t.Fatalf("NewDispatcher error: %v", err)
	}
	res, err := d.FitExposure(exp)
	if err != nil {
		t.Fatalf("FitExposure error: %v", err)
	}

	for pixel, rate := range truth.Rate {
		flags := ramp.Flags(res.Flags[pixel])
		if flags.Has(ramp.InsufficientReads) {
			continue
		}
		sigma := math.Sqrt(res.Variance[pixel])
		if math.Abs(res.Rate[pixel]-rate) > 6*sigma {
			t.Errorf("pixel %d: rate %v, truth %v, sigma %v, flags %v", pixel, res.Rate[pixel], rate, sigma, flags)
		}
	}
	for pixel, read := range truth.Jumps {
		if !ramp.Flags(res.Flags[pixel]).Has(ramp.JumpDetected) {
			t.Errorf("pixel %d: jump at read %d not detected, flags %v", pixel, read, ramp.Flags(res.Flags[pixel]))
			continue
		}
		found := false
		for _, idx := range res.Excluded[pixel] {
			found = found || idx == read
		}
		if !found {
			t.Errorf("pixel %d: excluded %v, want read %d", pixel, res.Excluded[pixel], read)
		}
	}
}

func TestGeneratorIsSeeded(t *testing.T) {
	p := DefaultParams()
	p.Rows, p.Cols, p.Reads = 4, 4, 3
	a, _ := NewGenerator(p).Exposure(1)
	b, _ := NewGenerator(p).Exposure(1)
	av := a.Counts.Values.([]uint16)
	bv := b.Counts.Values.([]uint16)
	for i := range av {
		if av[i] != bv[i] {
			t.Fatalf("sample %d differs: %d vs %d", i, av[i], bv[i])
		}
	}
}

func TestStreamSequence(t *testing.T) {
	p := DefaultParams()
	p.Rows, p.Cols, p.Reads = 2, 3, 3
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs := Stream(ctx, p, 1000)
	want := []string{"start", "read", "read", "read", "end", "start"}
	for i, kind := range want {
		msg, ok := <-msgs
		if !ok {
			t.Fatalf("stream closed after %d messages", i)
		}
		if msg.Type != kind {
			t.Fatalf("message %d type %q, want %q", i, msg.Type, kind)
		}
		if len(msg.Payload) == 0 {
			t.Fatalf("message %d has no payload", i)
		}
		if kind == "read" && msg.Read.ReadIndex != i-1 {
			t.Fatalf("message %d read index %d", i, msg.Read.ReadIndex)
		}
	}
	cancel()
	for range msgs {
	}
}
