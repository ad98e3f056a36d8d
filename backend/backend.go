// Package backend defines the contract every native audio subsystem
// adapter (JACK, ASIO, CoreAudio, Android, the no-op Dummy) implements, and
// the stable block-handler indirection the stream engine hands a backend
// at Open time so the backend's real-time thread can reach back into the
// engine.
package backend

import (
	"context"

	"github.com/orchestra-audio/streamengine/pkg/channel"
	"github.com/orchestra-audio/streamengine/pkg/device"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

// Side selects which half of a (possibly duplex) stream an operation
// applies to. Output is 0, input is 1.
type Side int

const (
	Output Side = 0
	Input  Side = 1
)

func (s Side) String() string {
	if s == Input {
		return "input"
	}
	return "output"
}

// NativeBuffer is the backend's view of one side's hardware buffer for one
// block. Exactly one of Interleaved or Planar is populated, matching the
// Layout the backend reported from Open.
type NativeBuffer struct {
	Interleaved []byte   // channels interleaved in one span
	Planar      [][]byte // one span per channel
}

func (b NativeBuffer) Empty() bool {
	return b.Interleaved == nil && b.Planar == nil
}

// BlockHandler is the stream engine's single entry point for one delivered
// block of audio. A backend captures it once at Open and calls it from its
// own real-time thread for every block until the stream stops. xrun
// reports events observed since the previous call; the backend clears its
// internal flags once it has passed them along. A false return means the
// engine hit an unrecoverable condition and the backend should cease
// calling back (mirrors RtAudio/JACK's callback-returns-nonzero contract).
type BlockHandler func(out, in NativeBuffer, frames uint32, xrun device.StatusSet) bool

// OpenResult reports the native format a backend chose for one side, which
// the engine uses to compute its ConvertInfo and convert_buffer flag.
type OpenResult struct {
	Format        sampleformat.Format
	Layout        channel.Layout
	ByteSwap      bool
	TotalChannels int // width of the backend's native buffer, for channel-offset routing
	Latency       uint64
}

// Backend is the contract the stream engine drives every adapter through.
// Implementations keep their own notion of which sides are
// already open so a duplex stream's second Open call can attach to state
// from the first rather than re-probing the device, exactly as the
// reference JACK backend does.
type Backend interface {
	Name() string

	// Enumerate returns a snapshot of currently visible devices. It may
	// open and close a short-lived connection to the native subsystem.
	Enumerate(ctx context.Context) ([]device.Info, error)

	DefaultInput() (device.ID, bool)
	DefaultOutput() (device.ID, bool)

	// Open probes and reserves a device for one side of the stream.
	// bufferFrames is read as the caller's suggestion (0 means "pick the
	// minimum") and written back with the value actually in effect.
	Open(
		ctx context.Context,
		side Side,
		params device.StreamParameters,
		sampleRate uint32,
		bufferFrames *uint32,
		opts device.StreamOptions,
		handler BlockHandler,
	) (OpenResult, error)

	Start() error
	// Stop halts block delivery. Draining pending output is done by the
	// stream engine's handshake before it calls Stop, not by the backend.
	Stop() error
	// Abort halts block delivery without any drain.
	Abort() error
	Close() error
}
