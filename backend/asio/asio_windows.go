//go:build windows

package asio

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/gordonklaus/portaudio"

	"github.com/orchestra-audio/streamengine/backend"
	"github.com/orchestra-audio/streamengine/pkg/channel"
	"github.com/orchestra-audio/streamengine/pkg/device"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

// float32BytesView reinterprets a PortAudio sample slice as the raw bytes
// the conversion core expects, without copying.
func float32BytesView(s []float32) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}

// NativeFormat is what this backend always asks PortAudio to deliver; ASIO
// drivers are free to run at higher internal precision, but float32 is the
// format PortAudio's ASIO host api normalizes every driver to.
const NativeFormat = sampleformat.Float32

func newPlatform() (backend.Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("asio: portaudio init: %w", err)
	}
	return &Backend{}, nil
}

// Backend drives one ASIO device through PortAudio's ASIO host API.
type Backend struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	handler backend.BlockHandler

	outChannels int
	inChannels  int
	frames      int
}

func (b *Backend) Name() string { return "asio" }

func asioHostAPI() (*portaudio.HostApiInfo, error) {
	apis, err := portaudio.HostApis()
	if err != nil {
		return nil, err
	}
	for _, a := range apis {
		if a.Type == portaudio.ASIO {
			return a, nil
		}
	}
	return nil, fmt.Errorf("asio: no ASIO host api available")
}

func (b *Backend) Enumerate(ctx context.Context) ([]device.Info, error) {
	api, err := asioHostAPI()
	if err != nil {
		return nil, nil
	}
	var out []device.Info
	for i, d := range api.Devices {
		out = append(out, device.Info{
			ID:              device.ID(i),
			Name:            d.Name,
			Description:     "ASIO device " + d.Name,
			IsInput:         d.MaxInputChannels > 0,
			Channels:        []channel.Tag{channel.Unknown},
			SampleRates:     []uint32{uint32(d.DefaultSampleRate)},
			NativeFormats:   []sampleformat.Format{NativeFormat},
			IsDefault:       d == api.DefaultInputDevice || d == api.DefaultOutputDevice,
			ProbeSuccessful: true,
		})
	}
	return out, nil
}

func (b *Backend) deviceByIndex(i int) (*portaudio.DeviceInfo, error) {
	api, err := asioHostAPI()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(api.Devices) {
		return nil, device.InvalidUse("asio: device index out of range")
	}
	return api.Devices[i], nil
}

func (b *Backend) DefaultInput() (device.ID, bool) {
	api, err := asioHostAPI()
	if err != nil || api.DefaultInputDevice == nil {
		return 0, false
	}
	for i, d := range api.Devices {
		if d == api.DefaultInputDevice {
			return device.ID(i), true
		}
	}
	return 0, false
}

func (b *Backend) DefaultOutput() (device.ID, bool) {
	api, err := asioHostAPI()
	if err != nil || api.DefaultOutputDevice == nil {
		return 0, false
	}
	for i, d := range api.Devices {
		if d == api.DefaultOutputDevice {
			return device.ID(i), true
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

	dev, err := b.deviceByIndex(int(params.DeviceID))
	if err != nil {
		return backend.OpenResult{}, err
	}

	b.handler = handler
	if *bufferFrames == 0 {
		*bufferFrames = 512
	}
	b.frames = int(*bufferFrames)

	switch side {
	case backend.Output:
		b.outChannels = int(params.NumChannels)
	case backend.Input:
		b.inChannels = int(params.NumChannels)
	}

	if b.stream != nil {
		// Second Open for the other side of a duplex stream: the stream
		// is reopened below with both channel counts now known.
		b.stream.Close()
		b.stream = nil
	}

	streamParams := portaudio.StreamParameters{
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: b.frames,
	}
	if b.outChannels > 0 {
		streamParams.Output = portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: b.outChannels,
			Latency:  dev.DefaultLowOutputLatency,
		}
	}
	if b.inChannels > 0 {
		streamParams.Input = portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: b.inChannels,
			Latency:  dev.DefaultLowInputLatency,
		}
	}

	cb := func(in, out []float32) {
		b.deliver(in, out)
	}
	stream, err := portaudio.OpenStream(streamParams, cb)
	if err != nil {
		return backend.OpenResult{}, fmt.Errorf("asio: open stream: %w", err)
	}
	b.stream = stream

	channels := b.outChannels
	if side == backend.Input {
		channels = b.inChannels
	}
	latency := dev.DefaultLowOutputLatency
	if side == backend.Input {
		latency = dev.DefaultLowInputLatency
	}
	return backend.OpenResult{
		Format:        NativeFormat,
		Layout:        channel.Interleaved,
		ByteSwap:      false,
		TotalChannels: channels,
		Latency:       uint64(latency.Seconds() * float64(sampleRate)),
	}, nil
}

func (b *Backend) deliver(in, out []float32) {
	handler := b.handler
	if handler == nil {
		return
	}
	var nOut, nIn backend.NativeBuffer
	if len(out) > 0 {
		nOut = backend.NativeBuffer{Interleaved: float32BytesView(out)}
	}
	if len(in) > 0 {
		nIn = backend.NativeBuffer{Interleaved: float32BytesView(in)}
	}
	handler(nOut, nIn, uint32(b.frames), device.StatusSet{})
}

func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return fmt.Errorf("asio: stream not open")
	}
	return b.stream.Start()
}

func (b *Backend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return nil
	}
	return b.stream.Stop()
}

func (b *Backend) Abort() error { return b.Stop() }

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return nil
	}
	err := b.stream.Close()
	b.stream = nil
	b.handler = nil
	return err
}
