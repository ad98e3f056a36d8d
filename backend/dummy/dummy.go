// Package dummy implements a functional, hardware-free backend.Backend used
// for tests and as the last-resort fallback when no native subsystem is
// available. The reference audio-orchestra Dummy backend is intentionally
// non-functional (Dummy.cpp: open always returns false, zero devices); this
// one diverges deliberately so every stream-engine scenario in the testable
// properties section can run in CI without JACK/ASIO/CoreAudio hardware.
// It drives its callback from a time.Ticker goroutine standing in for a
// native real-time thread, and lets tests inject xruns and fixed capture
// samples.
package dummy

import (
	"context"
	"sync"
	"time"

	"github.com/orchestra-audio/streamengine/backend"
	"github.com/orchestra-audio/streamengine/pkg/channel"
	"github.com/orchestra-audio/streamengine/pkg/device"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

const (
	DeviceID device.ID = 0

	// NativeFormat is the only format this backend ever presents: a
	// fixed-format bridge backend is a legitimate backend shape, the same
	// way Android's s16-only JNI bridge is.
	NativeFormat = sampleformat.Int16
)

// Backend is a software loop that stands in for a native audio subsystem.
// The zero value is not usable; construct with New.
type Backend struct {
	mu      sync.Mutex
	running bool
	handler backend.BlockHandler

	sampleRate  uint32
	blockFrames uint32
	outChannels int
	inChannels  int
	outputOpen  bool
	inputOpen   bool
	outLayout   channel.Layout
	inLayout    channel.Layout

	// forceOutputPlanar/forceInputPlanar simulate a device that is always
	// planar regardless of the caller's own buffer-layout preference, the
	// way JACK is: set via ForcePlanarOutput/ForcePlanarInput.
	forceOutputPlanar bool
	forceInputPlanar  bool

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup

	// Injected test fixtures, guarded by mu.
	captureSamples []int16 // fed to the input side, one per channel sample, repeating across blocks
	captureCursor  int
	injectXrun     device.StatusSet

	lastOutput   []byte
	blocksPlayed int
}

// New returns an unopened Dummy backend.
func New() *Backend {
	return &Backend{stopCh: make(chan struct{})}
}

func (b *Backend) Name() string { return "dummy" }

func (b *Backend) Enumerate(ctx context.Context) ([]device.Info, error) {
	return []device.Info{{
		ID:              DeviceID,
		Name:            "dummy",
		Description:     "software loopback, no hardware",
		IsInput:         true,
		Channels:        []channel.Tag{channel.FrontLeft, channel.FrontRight},
		SampleRates:     []uint32{44100, 48000},
		NativeFormats:   []sampleformat.Format{NativeFormat},
		IsDefault:       true,
		ProbeSuccessful: true,
	}}, nil
}

func (b *Backend) DefaultInput() (device.ID, bool)  { return DeviceID, true }
func (b *Backend) DefaultOutput() (device.ID, bool) { return DeviceID, true }

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

	if params.DeviceID != DeviceID {
		return backend.OpenResult{}, device.InvalidUse("dummy backend only has device 0")
	}
	if *bufferFrames == 0 {
		*bufferFrames = 256
	}
	b.sampleRate = sampleRate
	b.blockFrames = *bufferFrames
	b.handler = handler

	layout := channel.Interleaved
	if opts.Has(device.FlagNonInterleaved) {
		layout = channel.Planar
	}

	channels := b.outChannels
	switch side {
	case backend.Output:
		b.outputOpen = true
		b.outChannels = int(params.NumChannels)
		if b.forceOutputPlanar {
			layout = channel.Planar
		}
		b.outLayout = layout
		channels = b.outChannels
	case backend.Input:
		b.inputOpen = true
		b.inChannels = int(params.NumChannels)
		if b.forceInputPlanar {
			layout = channel.Planar
		}
		b.inLayout = layout
		channels = b.inChannels
	}
	return backend.OpenResult{
		Format:        NativeFormat,
		Layout:        layout,
		ByteSwap:      false,
		TotalChannels: channels,
		Latency:       uint64(b.blockFrames),
	}, nil
}

// ForcePlanarOutput makes Open report a planar output layout regardless of
// the caller's FlagNonInterleaved preference, simulating a device like JACK
// that is always planar.
func (b *Backend) ForcePlanarOutput() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forceOutputPlanar = true
}

// ForcePlanarInput is ForcePlanarOutput for the input side.
func (b *Backend) ForcePlanarInput() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forceInputPlanar = true
}

// InjectCaptureSamples sets a fixed, repeating sequence of native s16
// samples to feed the input side, for deterministic capture tests.
func (b *Backend) InjectCaptureSamples(samples []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.captureSamples = samples
	b.captureCursor = 0
}

// InjectXrunOnce arranges for the next delivered block's status to include
// the given flag exactly once.
func (b *Backend) InjectXrunOnce(st device.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.injectXrun.Set(st)
}

func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	b.running = true
	b.stopCh = make(chan struct{})
	period := time.Second * time.Duration(b.blockFrames) / time.Duration(b.sampleRate)
	if period <= 0 {
		period = time.Millisecond
	}
	b.ticker = time.NewTicker(period)
	b.wg.Add(1)
	go b.pump(b.ticker, b.stopCh)
	return nil
}

func (b *Backend) pump(ticker *time.Ticker, stop chan struct{}) {
	defer b.wg.Done()
	for {
		select {
		case <-stop:
			ticker.Stop()
			return
		case <-ticker.C:
			if !b.deliverBlock() {
				ticker.Stop()
				return
			}
		}
	}
}

func (b *Backend) deliverBlock() bool {
	b.mu.Lock()
	handler := b.handler
	frames := b.blockFrames
	var out, in backend.NativeBuffer
	if b.outputOpen {
		if b.outLayout == channel.Planar {
			out = backend.NativeBuffer{Planar: makePlanar(b.outChannels, int(frames))}
		} else {
			out = backend.NativeBuffer{Interleaved: make([]byte, int(frames)*b.outChannels*NativeFormat.Bytes())}
		}
	}
	if b.inputOpen {
		if b.inLayout == channel.Planar {
			in = backend.NativeBuffer{Planar: b.fillCapturePlanar(int(frames))}
		} else {
			in = backend.NativeBuffer{Interleaved: b.fillCapture(int(frames))}
		}
	}
	xrun := b.injectXrun
	b.injectXrun = device.StatusSet{}
	b.mu.Unlock()

	if handler == nil {
		return true
	}
	keepGoing := handler(out, in, frames, xrun)

	b.mu.Lock()
	switch {
	case out.Interleaved != nil:
		b.lastOutput = append([]byte(nil), out.Interleaved...)
	case len(out.Planar) > 0:
		b.lastOutput = concatPlanar(out.Planar)
	}
	b.blocksPlayed++
	b.mu.Unlock()

	return keepGoing
}

// makePlanar allocates one native span per channel, each one block long.
func makePlanar(channels, frames int) [][]byte {
	planar := make([][]byte, channels)
	for c := range planar {
		planar[c] = make([]byte, frames*NativeFormat.Bytes())
	}
	return planar
}

// concatPlanar flattens a planar native buffer channel by channel, for
// LastOutputBlock's test-facing view.
func concatPlanar(planar [][]byte) []byte {
	total := 0
	for _, p := range planar {
		total += len(p)
	}
	flat := make([]byte, total)
	off := 0
	for _, p := range planar {
		off += copy(flat[off:], p)
	}
	return flat
}

// LastOutputBlock returns a copy of the most recently delivered output
// block's bytes, for test assertions. Returns nil if no output block has
// been delivered yet; the last block is kept after Stop and Close.
func (b *Backend) LastOutputBlock() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.lastOutput...)
}

// BlocksPlayed returns the number of blocks delivered to the handler so far.
func (b *Backend) BlocksPlayed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocksPlayed
}

func (b *Backend) fillCapture(frames int) []byte {
	buf := make([]byte, frames*b.inChannels*NativeFormat.Bytes())
	if len(b.captureSamples) == 0 {
		return buf
	}
	for i := 0; i < frames*b.inChannels; i++ {
		v := b.captureSamples[b.captureCursor%len(b.captureSamples)]
		b.captureCursor++
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(uint16(v) >> 8)
	}
	return buf
}

// fillCapturePlanar is fillCapture's planar counterpart: same (frame,
// channel) draw order from captureSamples, laid out one span per channel
// instead of interleaved.
func (b *Backend) fillCapturePlanar(frames int) [][]byte {
	planar := makePlanar(b.inChannels, frames)
	if len(b.captureSamples) == 0 {
		return planar
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < b.inChannels; c++ {
			v := b.captureSamples[b.captureCursor%len(b.captureSamples)]
			b.captureCursor++
			planar[c][2*f] = byte(v)
			planar[c][2*f+1] = byte(uint16(v) >> 8)
		}
	}
	return planar
}

func (b *Backend) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

func (b *Backend) Abort() error {
	return b.Stop()
}

func (b *Backend) Close() error {
	_ = b.Stop()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputOpen = false
	b.inputOpen = false
	b.handler = nil
	return nil
}
