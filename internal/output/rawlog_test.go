package output

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestRawLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRawLogWriter(dir, "raw_cbor")
	if err != nil {
		t.Fatalf("NewRawLogWriter error: %v", err)
	}
	records := [][]byte{{1, 2, 3}, {}, []byte("hello")}
	for _, rec := range records {
		if err := w.Record(rec); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := w.Record([]byte{9}); err == nil {
		t.Fatalf("Record after Close succeeded")
	}

	var got [][]byte
	err = ReadRawLog(w.Path(), func(ts time.Time, payload []byte) error {
		if ts.IsZero() {
			t.Errorf("zero timestamp")
		}
		got = append(got, payload)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadRawLog error: %v", err)
	}
	if !reflect.DeepEqual(got, records) {
		t.Fatalf("records mismatch: got %v want %v", got, records)
	}
}

func TestReadRawLogRejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.bin")
	if err := os.WriteFile(path, []byte("STXMRAW1"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := ReadRawLog(path, func(time.Time, []byte) error { return nil })
	if !errors.Is(err, ErrBadRawLog) {
		t.Fatalf("err = %v, want ErrBadRawLog", err)
	}
}
