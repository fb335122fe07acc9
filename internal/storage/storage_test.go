package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndFetchRun(t *testing.T) {
	s := openTestStore(t)
	created := time.Unix(1700000000, 123)
	rec := RunRecord{
		Source:     "fit",
		ExposureID: 42,
		Reads:      10,
		Rows:       4,
		Cols:       5,
		Workers:    2,
		Pixels:     20,
		Clean:      17,
		Jumps:      2,
		Masked:     1,
		MeanRate:   12.5,
		Duration:   1500 * time.Microsecond,
		OutputPath: "/tmp/out.cbor",
		CreatedAt:  created,
	}
	id, err := s.RecordRun(rec)
	if err != nil {
		t.Fatalf("RecordRun error: %v", err)
	}

	got, err := s.Run(id)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	rec.ID = id
	rec.Status = StatusOK
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, created)
	}
	got.CreatedAt = created
	rec.CreatedAt = created
	if got != rec {
		t.Fatalf("run mismatch:\n got %+v\nwant %+v", got, rec)
	}
}

func TestRecentRunsOrder(t *testing.T) {
	s := openTestStore(t)
	base := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		if _, err := s.RecordRun(RunRecord{Source: "watch", ExposureID: i, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("RecordRun error: %v", err)
		}
	}
	if _, err := s.RecordRun(RunRecord{Source: "watch", ExposureID: 9, Status: StatusError, Error: "boom", CreatedAt: base.Add(-time.Hour)}); err != nil {
		t.Fatalf("RecordRun error: %v", err)
	}

	runs, err := s.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(runs) != 2 || runs[0].ExposureID != 2 || runs[1].ExposureID != 1 {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	all, err := s.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	last := all[len(all)-1]
	if last.Status != StatusError || last.Error != "boom" {
		t.Fatalf("unexpected oldest run: %+v", last)
	}
}

func TestRunNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Run(99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestNilStore(t *testing.T) {
	var s *Store
	if id, err := s.RecordRun(RunRecord{}); err != nil || id != 0 {
		t.Fatalf("nil RecordRun = %d, %v", id, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("nil Close error: %v", err)
	}
}
