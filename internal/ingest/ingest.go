package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"
	"github.com/rs/zerolog"

	"quicklook-go/internal/types"
)

// Stream message types.
const (
	MessageStart = "start"
	MessageRead  = "read"
	MessageEnd   = "end"
)

var ErrUnknownMessage = errors.New("ingest: unknown message type")

// RawRecorder receives every message payload before decoding.
type RawRecorder interface {
	Record(payload []byte) error
}

// StreamOptions configures Stream.
type StreamOptions struct {
	// LogEvery samples decode and receive errors: only every Nth is logged.
	LogEvery int
	Recorder RawRecorder
	Logger   zerolog.Logger
}

var (
	decodeFailures atomic.Uint64
	decodeCount    atomic.Uint64
	decodeNanos    atomic.Uint64
)

// DecodeFailures returns the number of stream messages that failed to decode.
func DecodeFailures() uint64 { return decodeFailures.Load() }

// DecodeTiming returns the number of decoded messages and the time spent.
func DecodeTiming() (uint64, uint64) { return decodeCount.Load(), decodeNanos.Load() }

// Stream connects a ZMQ PULL socket to endpoint and returns decoded
// messages. Messages look like
//
//	{"type": "start", "exposure_id": 1, "n_reads": 10, "rows": 64, "cols": 64}
//	{"type": "read", "exposure_id": 1, "read_index": 0, "elapsed_time": 0.0, "data": <tag 40>}
//	{"type": "end", "exposure_id": 1}
//
// The channel closes when ctx is done.
func Stream(ctx context.Context, endpoint string, opts StreamOptions) (<-chan types.RawMessage, error) {
	if opts.LogEvery < 1 {
		opts.LogEvery = 1
	}
	logger := opts.Logger.With().Str("component", "ingest").Str("endpoint", endpoint).Logger()
	sampled := logger.Sample(&zerolog.BasicSampler{N: uint32(opts.LogEvery)})

	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	// Wake up periodically so cancellation is noticed without traffic.
	if err := socket.SetRcvtimeo(250 * time.Millisecond); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}
	logger.Info().Msg("ingest connected")

	out := make(chan types.RawMessage, 128)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
					continue
				}
				sampled.Warn().Err(err).Msg("ingest recv error")
				continue
			}
			if opts.Recorder != nil {
				if err := opts.Recorder.Record(msg); err != nil {
					sampled.Warn().Err(err).Msg("raw log record failed")
				}
			}

			raw, err := DecodeMessage(msg)
			if err != nil {
				sampled.Warn().Err(err).Msg("ingest decode skipped message")
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- raw:
			}
		}
	}()

	return out, nil
}

// DecodeMessage decodes one stream message.
func DecodeMessage(msg []byte) (types.RawMessage, error) {
	start := time.Now()
	raw, err := decodeMessage(msg)
	decodeCount.Add(1)
	decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		decodeFailures.Add(1)
		return types.RawMessage{}, err
	}
	raw.Payload = msg
	return raw, nil
}

func decodeMessage(msg []byte) (types.RawMessage, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return types.RawMessage{}, fmt.Errorf("CBOR decode: %w", err)
	}

	msgType, _ := payload["type"].(string)
	exposureID, err := toInt(payload["exposure_id"])
	if err != nil {
		return types.RawMessage{}, fmt.Errorf("invalid exposure_id: %w", err)
	}
	raw := types.RawMessage{Type: msgType, ExposureID: exposureID}

	switch msgType {
	case MessageStart:
		start := types.StreamStart{ExposureID: exposureID}
		if start.Reads, err = toInt(payload["n_reads"]); err != nil {
			return types.RawMessage{}, fmt.Errorf("invalid n_reads: %w", err)
		}
		if start.Rows, err = toInt(payload["rows"]); err != nil {
			return types.RawMessage{}, fmt.Errorf("invalid rows: %w", err)
		}
		if start.Cols, err = toInt(payload["cols"]); err != nil {
			return types.RawMessage{}, fmt.Errorf("invalid cols: %w", err)
		}
		if n, ok := payload["noise"]; ok {
			if start.Noise, err = toNoise(n); err != nil {
				return types.RawMessage{}, err
			}
		}
		raw.Start = start
	case MessageRead:
		read := types.RawRead{ExposureID: exposureID}
		if read.ReadIndex, err = toInt(payload["read_index"]); err != nil {
			return types.RawMessage{}, fmt.Errorf("invalid read_index: %w", err)
		}
		if read.Time, err = toFloat(payload["elapsed_time"]); err != nil {
			return types.RawMessage{}, fmt.Errorf("invalid elapsed_time: %w", err)
		}
		if read.Data, err = decodeMultiDimArray(payload["data"]); err != nil {
			return types.RawMessage{}, fmt.Errorf("invalid data: %w", err)
		}
		raw.Read = read
	case MessageEnd:
	default:
		return types.RawMessage{}, fmt.Errorf("%w %q", ErrUnknownMessage, msgType)
	}
	return raw, nil
}
