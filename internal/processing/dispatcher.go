package processing

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quicklook-go/internal/noise"
	"quicklook-go/internal/ramp"
	"quicklook-go/internal/types"
)

var (
	ErrShapeMismatch = errors.New("processing: shape mismatch")
	ErrInvalidTimes  = errors.New("processing: read times must be strictly increasing")
)

// Dispatcher fits every pixel of a read cube on a fixed worker pool.
//
// Pixels are cut into contiguous blocks of BlockSize row-major indices.
// Workers read the shared cube and write only the output entries of the
// blocks they take, so no locking is needed on the result and a pixel's
// values do not depend on how the frame was partitioned.
type Dispatcher struct {
	model       noise.Model
	detector    ramp.JumpDetector
	workers     int
	blockSize   int
	diagnostics bool
	logger      zerolog.Logger
}

type Option func(*Dispatcher)

// WithWorkers sets the pool size. Values below one mean runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(d *Dispatcher) { d.workers = n }
}

// WithBlockSize sets the number of pixels per work unit. Zero means one
// detector row.
func WithBlockSize(pixels int) Option {
	return func(d *Dispatcher) { d.blockSize = pixels }
}

func WithJumpThreshold(threshold float64) Option {
	return func(d *Dispatcher) { d.detector.Threshold = threshold }
}

func WithFitter(f ramp.Fitter) Option {
	return func(d *Dispatcher) { d.detector.Fitter = f }
}

// WithDiagnostics keeps the excluded read indices of every pixel.
func WithDiagnostics(on bool) Option {
	return func(d *Dispatcher) { d.diagnostics = on }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func NewDispatcher(model noise.Model, opts ...Option) (*Dispatcher, error) {
	if !model.Valid() {
		return nil, fmt.Errorf("dispatcher: %w", noise.ErrInvalidNoiseModel)
	}
	d := &Dispatcher{
		model:    model,
		detector: ramp.NewJumpDetector(ramp.DefaultJumpThreshold),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 1 {
		d.workers = runtime.NumCPU()
	}
	return d, nil
}

func (d *Dispatcher) Model() noise.Model { return d.model }

func (d *Dispatcher) Workers() int { return d.workers }

// UniformTimes returns read times 0, dt, 2dt, ... for a scalar read interval.
func UniformTimes(reads int, dt float64) []float64 {
	times := make([]float64, reads)
	for i := range times {
		times[i] = float64(i) * dt
	}
	return times
}

// CheckShape validates the structural inputs of a fit.
func CheckShape(cube types.Cube, times []float64, mask []bool) error {
	if cube.Reads < 0 || cube.Rows < 0 || cube.Cols < 0 {
		return fmt.Errorf("%w: negative dimension %dx%dx%d", ErrShapeMismatch, cube.Reads, cube.Rows, cube.Cols)
	}
	if want := cube.Reads * cube.Rows * cube.Cols; len(cube.Data) != want {
		return fmt.Errorf("%w: cube holds %d samples, shape %dx%dx%d needs %d",
			ErrShapeMismatch, len(cube.Data), cube.Reads, cube.Rows, cube.Cols, want)
	}
	if len(times) != cube.Reads {
		return fmt.Errorf("%w: %d read times for %d reads", ErrShapeMismatch, len(times), cube.Reads)
	}
	for i := 1; i < len(times); i++ {
		if !(times[i] > times[i-1]) {
			return fmt.Errorf("%w: time %d is %v after %v", ErrInvalidTimes, i, times[i], times[i-1])
		}
	}
	if mask != nil && len(mask) != cube.Pixels() {
		return fmt.Errorf("%w: mask has %d entries for %d pixels", ErrShapeMismatch, len(mask), cube.Pixels())
	}
	return nil
}

// FitExposure fits exp with the dispatcher's noise model.
func (d *Dispatcher) FitExposure(exp types.Exposure) (types.FrameResult, error) {
	res, err := d.FitFrame(exp.Cube, exp.Times, exp.Mask)
	if err != nil {
		return types.FrameResult{}, err
	}
	res.ExposureID = exp.ID
	return res, nil
}

// FitFrame fits all pixels of cube. Structural problems fail the whole
// call before any work starts; per-pixel problems only show up as flags.
func (d *Dispatcher) FitFrame(cube types.Cube, times []float64, mask []bool) (types.FrameResult, error) {
	if err := CheckShape(cube, times, mask); err != nil {
		return types.FrameResult{}, err
	}
	start := time.Now()
	res := types.NewFrameResult(cube.Rows, cube.Cols, d.diagnostics)
	pixels := cube.Pixels()

	blockSize := d.blockSize
	if blockSize < 1 {
		blockSize = cube.Cols
	}
	if blockSize < 1 {
		blockSize = 1
	}
	blocks := (pixels + blockSize - 1) / blockSize
	workers := d.workers
	if workers > blocks {
		workers = blocks
	}

	jobs := make(chan int, blocks)
	for b := 0; b < blocks; b++ {
		jobs <- b
	}
	close(jobs)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			reads := make([]ramp.ReadFrame, cube.Reads)
			for b := range jobs {
				lo := b * blockSize
				hi := lo + blockSize
				if hi > pixels {
					hi = pixels
				}
				for p := lo; p < hi; p++ {
					d.fitPixel(cube, times, mask, p, reads, &res)
				}
			}
		}()
	}
	wg.Wait()

	if d.logger.GetLevel() <= zerolog.DebugLevel {
		stats := Summarize(res)
		d.logger.Debug().
			Int("pixels", stats.Pixels).
			Int("clean", stats.Clean).
			Int("jumps", stats.Jumps).
			Int("saturated", stats.Saturated).
			Int("insufficient", stats.Insufficient).
			Int("masked", stats.Masked).
			Int("workers", workers).
			Int("block_size", blockSize).
			Dur("elapsed", time.Since(start)).
			Msg("frame fitted")
	}
	return res, nil
}

// fitPixel writes pixel p's entries of res. reads is worker-local scratch.
func (d *Dispatcher) fitPixel(cube types.Cube, times []float64, mask []bool, p int, reads []ramp.ReadFrame, res *types.FrameResult) {
	var fit ramp.FitResult
	if mask != nil && mask[p] {
		fit = ramp.Sentinel(ramp.Masked, nil)
	} else {
		for r := range reads {
			reads[r] = ramp.ReadFrame{Index: r, Time: times[r], Counts: cube.At(r, p)}
		}
		fit = d.detector.Fit(ramp.Ramp{Reads: reads}, d.model)
	}
	res.Rate[p] = fit.Rate
	res.Variance[p] = fit.Variance
	res.ChiSquare[p] = fit.ChiSquare
	res.Flags[p] = uint8(fit.Flags)
	if res.Excluded != nil {
		res.Excluded[p] = fit.Excluded
	}
}
