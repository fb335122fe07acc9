package processing

import (
	"errors"
	"fmt"
	"time"

	"quicklook-go/internal/types"
)

var (
	ErrReadRejected  = errors.New("processing: read rejected")
	ErrStartRejected = errors.New("processing: exposure start rejected")
)

// DefaultMaxSamples caps reads*rows*cols of a streamed exposure.
const DefaultMaxSamples = 1 << 26

// Aggregator collects the streamed reads of one exposure into a cube.
type Aggregator struct {
	limit    int
	start    types.StreamStart
	cube     types.Cube
	times    []float64
	seen     []bool
	received int
}

// NewAggregator returns an empty aggregator accepting exposures of at most
// maxSamples samples. Values below one mean DefaultMaxSamples.
func NewAggregator(maxSamples int) *Aggregator {
	if maxSamples < 1 {
		maxSamples = DefaultMaxSamples
	}
	return &Aggregator{limit: maxSamples}
}

// Begin discards any partial exposure and prepares for start. A start
// with a negative or oversized shape is refused before anything is
// allocated; reads for it are then rejected until the next valid start.
func (a *Aggregator) Begin(start types.StreamStart) error {
	if err := a.checkShape(start); err != nil {
		a.start = types.StreamStart{ExposureID: start.ExposureID}
		a.allocate(0, 0, 0)
		return err
	}
	a.start = start
	a.allocate(start.Reads, start.Rows, start.Cols)
	return nil
}

func (a *Aggregator) checkShape(start types.StreamStart) error {
	dims := []int{start.Reads, start.Rows, start.Cols}
	total := 1
	for _, d := range dims {
		if d < 0 {
			return fmt.Errorf("%w: negative shape %dx%dx%d", ErrStartRejected, start.Reads, start.Rows, start.Cols)
		}
		if d != 0 && total > a.limit/d {
			return fmt.Errorf("%w: shape %dx%dx%d exceeds %d samples",
				ErrStartRejected, start.Reads, start.Rows, start.Cols, a.limit)
		}
		total *= d
	}
	return nil
}

func (a *Aggregator) allocate(reads, rows, cols int) {
	a.cube = types.NewCube(reads, rows, cols)
	a.times = make([]float64, reads)
	a.seen = make([]bool, reads)
	a.received = 0
}

// AddRead stores one read and reports whether the exposure is complete.
func (a *Aggregator) AddRead(frame types.ReadFrame) (bool, error) {
	if frame.ExposureID != a.start.ExposureID {
		return false, fmt.Errorf("%w: exposure %d, collecting %d", ErrReadRejected, frame.ExposureID, a.start.ExposureID)
	}
	if frame.ReadIndex < 0 || frame.ReadIndex >= a.cube.Reads {
		return false, fmt.Errorf("%w: read index %d outside [0,%d)", ErrReadRejected, frame.ReadIndex, a.cube.Reads)
	}
	if len(frame.Counts) != a.cube.Pixels() {
		return false, fmt.Errorf("%w: %d samples for %dx%d frame", ErrReadRejected, len(frame.Counts), a.cube.Rows, a.cube.Cols)
	}
	if a.seen[frame.ReadIndex] {
		return false, fmt.Errorf("%w: duplicate read %d", ErrReadRejected, frame.ReadIndex)
	}

	copy(a.cube.Read(frame.ReadIndex), frame.Counts)
	a.times[frame.ReadIndex] = frame.Time
	a.seen[frame.ReadIndex] = true
	a.received++
	return a.Complete(), nil
}

func (a *Aggregator) Complete() bool {
	return a.cube.Reads > 0 && a.received >= a.cube.Reads
}

func (a *Aggregator) Received() int { return a.received }

func (a *Aggregator) Expected() int { return a.cube.Reads }

func (a *Aggregator) Start() types.StreamStart { return a.start }

// Reset clears the collected reads of the current exposure.
func (a *Aggregator) Reset() {
	a.allocate(a.cube.Reads, a.cube.Rows, a.cube.Cols)
}

// Exposure returns a copy of the collected exposure. It fails unless every
// read has arrived.
func (a *Aggregator) Exposure() (types.Exposure, error) {
	if !a.Complete() {
		return types.Exposure{}, fmt.Errorf("%w: %d of %d reads received", ErrShapeMismatch, a.received, a.cube.Reads)
	}
	data := make([]float64, len(a.cube.Data))
	copy(data, a.cube.Data)
	cube := a.cube
	cube.Data = data
	return types.Exposure{
		ID:    a.start.ExposureID,
		Cube:  cube,
		Times: append([]float64(nil), a.times...),
		Noise: a.start.Noise,
	}, nil
}

func Timestamp() string {
	return time.Now().Format("20060102_150405")
}
