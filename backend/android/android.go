// Package android implements backend.Backend against a host-owned Android
// audio service through a narrow bridge interface, per audio-orchestra's
// api/AndroidNativeInterface.hpp (ORCHESTRA_BUILD_JAVA): query device count
// and device properties, open a device returning an integer stream id,
// start/stop/abort/close by id, and receive push/pull calls carrying a raw
// 16-bit buffer. The actual JNI/gomobile FFI that implements HostBridge is
// out of scope here — this package only defines the narrow seam and the
// Backend that adapts it to backend.Backend, with the device format fixed
// to s16 planar-per-call as the design note requires.
package android

import (
	"context"
	"fmt"
	"sync"

	"github.com/orchestra-audio/streamengine/backend"
	"github.com/orchestra-audio/streamengine/pkg/channel"
	"github.com/orchestra-audio/streamengine/pkg/device"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

// NativeFormat is fixed by the Android host bridge contract.
const NativeFormat = sampleformat.Int16

// HostBridge is the narrow surface a concrete JNI/gomobile binding
// implements. Every method call crosses into host-owned Java/Kotlin code;
// none of them may block the caller for long, mirroring AAudio/OpenSL's own
// non-blocking device query calls.
type HostBridge interface {
	// DeviceCount returns the number of audio devices the host currently
	// exposes.
	DeviceCount() int
	// DeviceInfo returns the host's JSON-encoded device properties for one
	// device index, decoded by the caller into device.Info.
	DeviceInfo(index int) ([]byte, error)
	// OpenStream opens one side of a device and returns a host-assigned
	// stream id used by every subsequent call.
	OpenStream(deviceID device.ID, input bool, channels int, firstChannel int, sampleRate uint32, bufferFrames int) (int32, error)
	StartStream(id int32) error
	StopStream(id int32) error
	AbortStream(id int32) error
	CloseStream(id int32) error
}

// deviceJSON is the wire shape HostBridge.DeviceInfo is expected to produce.
type deviceJSON struct {
	Name       string `json:"name"`
	IsInput    bool   `json:"isInput"`
	Channels   int    `json:"channels"`
	SampleRate uint32 `json:"sampleRate"`
	IsDefault  bool   `json:"isDefault"`
}

// Backend adapts one HostBridge to backend.Backend. The zero value is not
// usable; construct with New.
type Backend struct {
	bridge HostBridge

	mu       sync.Mutex
	streamID [2]int32
	opened   [2]bool
	channels [2]int
	handler  backend.BlockHandler
	frames   int
}

// New wraps a concrete HostBridge implementation.
func New(bridge HostBridge) *Backend {
	return &Backend{bridge: bridge, streamID: [2]int32{-1, -1}}
}

func (b *Backend) Name() string { return "android" }

func (b *Backend) Enumerate(ctx context.Context) ([]device.Info, error) {
	n := b.bridge.DeviceCount()
	out := make([]device.Info, 0, n)
	for i := 0; i < n; i++ {
		raw, err := b.bridge.DeviceInfo(i)
		if err != nil {
			continue
		}
		var d deviceJSON
		if err := decodeDeviceJSON(raw, &d); err != nil {
			continue
		}
		out = append(out, device.Info{
			ID:              device.ID(i),
			Name:            d.Name,
			Description:     "Android device " + d.Name,
			IsInput:         d.IsInput,
			Channels:        []channel.Tag{channel.Unknown},
			SampleRates:     []uint32{d.SampleRate},
			NativeFormats:   []sampleformat.Format{NativeFormat},
			IsDefault:       d.IsDefault,
			ProbeSuccessful: true,
		})
	}
	return out, nil
}

func (b *Backend) DefaultInput() (device.ID, bool) {
	return b.findDefault(true)
}

func (b *Backend) DefaultOutput() (device.ID, bool) {
	return b.findDefault(false)
}

func (b *Backend) findDefault(input bool) (device.ID, bool) {
	infos, err := b.Enumerate(context.Background())
	if err != nil {
		return 0, false
	}
	for _, d := range infos {
		if d.IsInput == input && d.IsDefault {
			return d.ID, true
		}
	}
	return 0, false
}

func (b *Backend) Open(
	ctx context.Context,
	side backend.Side,
	params device.StreamParameters,
	sampleRate uint32,
	bufferFrames *uint32,
	opts device.StreamOptions,
	handler backend.BlockHandler,
) (backend.OpenResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if *bufferFrames == 0 {
		*bufferFrames = 480 // 10ms at 48kHz, a common AAudio default
	}
	id, err := b.bridge.OpenStream(params.DeviceID, side == backend.Input, int(params.NumChannels), int(params.FirstChannel), sampleRate, int(*bufferFrames))
	if err != nil {
		return backend.OpenResult{}, fmt.Errorf("android: open stream: %w", err)
	}

	b.streamID[side] = id
	b.opened[side] = true
	b.channels[side] = int(params.NumChannels)
	b.handler = handler
	b.frames = int(*bufferFrames)

	return backend.OpenResult{
		Format:        NativeFormat,
		Layout:        channel.Planar,
		ByteSwap:      false,
		TotalChannels: int(params.NumChannels),
		Latency:       uint64(*bufferFrames),
	}, nil
}

// Pull is called by the host bridge on its own audio thread when the
// output stream needs another block filled. out is one planar span per
// channel, each of length matching the buffer size negotiated at Open.
func (b *Backend) Pull(id int32, out [][]int16) {
	b.mu.Lock()
	handler := b.handler
	frames := b.frames
	b.mu.Unlock()
	if handler == nil {
		return
	}
	planar := make([][]byte, len(out))
	for i, ch := range out {
		planar[i] = int16BytesView(ch)
	}
	handler(backend.NativeBuffer{Planar: planar}, backend.NativeBuffer{}, uint32(frames), device.StatusSet{})
}

// Push is called by the host bridge when a captured input block is ready.
func (b *Backend) Push(id int32, in [][]int16) {
	b.mu.Lock()
	handler := b.handler
	frames := b.frames
	b.mu.Unlock()
	if handler == nil {
		return
	}
	planar := make([][]byte, len(in))
	for i, ch := range in {
		planar[i] = int16BytesView(ch)
	}
	handler(backend.NativeBuffer{}, backend.NativeBuffer{Planar: planar}, uint32(frames), device.StatusSet{})
}

func (b *Backend) Start() error { return b.forEachOpen(b.bridge.StartStream) }
func (b *Backend) Stop() error  { return b.forEachOpen(b.bridge.StopStream) }
func (b *Backend) Abort() error { return b.forEachOpen(b.bridge.AbortStream) }

func (b *Backend) Close() error {
	err := b.forEachOpen(b.bridge.CloseStream)
	b.mu.Lock()
	b.opened = [2]bool{}
	b.handler = nil
	b.mu.Unlock()
	return err
}

func (b *Backend) forEachOpen(op func(int32) error) error {
	b.mu.Lock()
	ids := b.streamID
	opened := b.opened
	b.mu.Unlock()
	for side, isOpen := range opened {
		if !isOpen {
			continue
		}
		if err := op(ids[side]); err != nil {
			return err
		}
	}
	return nil
}
