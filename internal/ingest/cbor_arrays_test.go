package ingest

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestDecodeMultiDimArrayUint8(t *testing.T) {
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{2, 2},
			cbor.Tag{
				Number:  tagUint8,
				Content: []byte{1, 2, 3, 4},
			},
		},
	}

	got, err := decodeMultiDimArray(value)
	if err != nil {
		t.Fatalf("decodeMultiDimArray error: %v", err)
	}

	if !reflect.DeepEqual(got.Shape, []int{2, 2}) {
		t.Fatalf("shape mismatch: got %v", got.Shape)
	}
	if !reflect.DeepEqual(got.Values, []uint8{1, 2, 3, 4}) {
		t.Fatalf("values mismatch: got %#v", got.Values)
	}
}

func TestDecodeMultiDimArrayFloat64Cube(t *testing.T) {
	want := []float64{0, 1.5, -2, math.MaxFloat64, 4, 5, 6, 7}
	buf := make([]byte, 8*len(want))
	for i, v := range want {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{uint64(2), uint64(2), uint64(2)},
			cbor.Tag{Number: tagFloat64LE, Content: buf},
		},
	}

	got, err := decodeMultiDimArray(value)
	if err != nil {
		t.Fatalf("decodeMultiDimArray error: %v", err)
	}
	if !reflect.DeepEqual(got.Shape, []int{2, 2, 2}) {
		t.Fatalf("shape mismatch: got %v", got.Shape)
	}
	if !reflect.DeepEqual(got.Values, want) {
		t.Fatalf("values mismatch: got %#v want %#v", got.Values, want)
	}
}

func TestDecodeMultiDimArrayUint16Mismatch(t *testing.T) {
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{2, 3},
			cbor.Tag{Number: tagUint16LE, Content: []byte{1, 0, 2, 0}},
		},
	}
	if _, err := decodeMultiDimArray(value); !errors.Is(err, errDimensionMismatch) {
		t.Fatalf("err = %v, want dimension mismatch", err)
	}
}

func TestDecodeTypedArrayUnsupported(t *testing.T) {
	if _, _, err := decodeTypedArray(cbor.Tag{Number: 56500, Content: []byte{}}); err == nil {
		t.Fatalf("expected error for unsupported tag")
	}
	if _, _, err := decodeTypedArray(cbor.Tag{Number: tagUint8, Content: cbor.Tag{Number: 1}}); err == nil {
		t.Fatalf("expected error for nested tag")
	}
}
