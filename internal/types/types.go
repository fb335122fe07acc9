package types

// NoiseParams carries detector noise parameters as they appear on the wire
// and in configuration.
type NoiseParams struct {
	ReadNoise  float64 `json:"read_noise" cbor:"read_noise" toml:"read_noise"`
	Gain       float64 `json:"gain" cbor:"gain" toml:"gain"`
	Saturation float64 `json:"saturation" cbor:"saturation" toml:"saturation"`
}

// NDArray is a decoded RFC 8746 array: a shape and a flat typed slice
// ([]uint8, []uint16, []uint32, []float32 or []float64) in row-major order.
type NDArray struct {
	Shape  []int
	Values any
}

// StreamStart announces an exposure on the read stream.
type StreamStart struct {
	ExposureID int          `json:"exposure_id"`
	Reads      int          `json:"n_reads"`
	Rows       int          `json:"rows"`
	Cols       int          `json:"cols"`
	Noise      *NoiseParams `json:"noise,omitempty"`
}

// RawRead is one undecoded detector read as it arrives from the stream.
type RawRead struct {
	ExposureID int
	ReadIndex  int
	Time       float64
	Data       NDArray
}

// RawMessage is one decoded stream message. Exactly one of the payload
// fields is meaningful, selected by Type ("start", "read" or "end").
type RawMessage struct {
	Type       string
	ExposureID int
	Start      StreamStart
	Read       RawRead
	Payload    []byte
}

// ReadFrame is one full-frame read converted to counts.
type ReadFrame struct {
	ExposureID int
	ReadIndex  int
	Time       float64
	Counts     []float64
}

// RawExposure is a decoded exposure file before sample conversion.
type RawExposure struct {
	ExposureID int
	Times      []float64
	// ReadTime is a uniform read interval in seconds, used when Times is empty.
	ReadTime float64
	Counts   NDArray
	Mask     *NDArray
	Noise    *NoiseParams
}

// Cube holds read-major samples: Data[(read*Rows+row)*Cols+col].
type Cube struct {
	Reads int
	Rows  int
	Cols  int
	Data  []float64
}

// NewCube allocates a zeroed cube.
func NewCube(reads, rows, cols int) Cube {
	return Cube{Reads: reads, Rows: rows, Cols: cols, Data: make([]float64, reads*rows*cols)}
}

func (c Cube) Pixels() int { return c.Rows * c.Cols }

// At returns the sample of pixel (row-major index) at read.
func (c Cube) At(read, pixel int) float64 {
	return c.Data[read*c.Rows*c.Cols+pixel]
}

// Read returns the frame of one read, aliasing Data.
func (c Cube) Read(read int) []float64 {
	n := c.Rows * c.Cols
	return c.Data[read*n : (read+1)*n]
}

// Exposure is everything needed to fit one exposure.
type Exposure struct {
	ID    int
	Cube  Cube
	Times []float64
	// Mask marks bad pixels; nil means no pixel is masked.
	Mask  []bool
	Noise *NoiseParams
}

// FrameResult holds the assembled per-pixel fit images, row-major.
type FrameResult struct {
	ExposureID int
	Rows       int
	Cols       int
	Rate       []float64
	Variance   []float64
	Flags      []uint8
	ChiSquare  []float64
	// Excluded is nil unless diagnostics were requested; then entry i is
	// nil for pixels without excluded reads.
	Excluded [][]int
}

// NewFrameResult allocates the output images for rows x cols pixels.
func NewFrameResult(rows, cols int, diagnostics bool) FrameResult {
	n := rows * cols
	res := FrameResult{
		Rows:      rows,
		Cols:      cols,
		Rate:      make([]float64, n),
		Variance:  make([]float64, n),
		Flags:     make([]uint8, n),
		ChiSquare: make([]float64, n),
	}
	if diagnostics {
		res.Excluded = make([][]int, n)
	}
	return res
}

func (r FrameResult) Pixels() int { return r.Rows * r.Cols }
