// Package stream implements the engine's state machine: the client-facing
// Open/Start/Stop/Abort/Close lifecycle, and handleBlock, the single
// function a backend's real-time thread calls for every block. Both halves
// are grounded in audio-orchestra's api/Jack.cpp, the reference backend's
// callbackEvent function, generalized from one hard-coded backend to any
// implementation of backend.Backend.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/orchestra-audio/streamengine/backend"
	"github.com/orchestra-audio/streamengine/pkg/channel"
	"github.com/orchestra-audio/streamengine/pkg/convert"
	"github.com/orchestra-audio/streamengine/pkg/device"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

// Callback is the client's per-block handler. in and out are nil (IsNil) for
// the absent side of a non-duplex stream. status reports overflow/underflow
// events observed since the previous call. The returned Action tells the
// engine what to do after this block.
type Callback func(out, in Buffer, outTime, inTime time.Duration, status device.StatusSet) Action

// sideState holds everything the engine needs to service one side (input or
// output) of an open stream, computed once at Open and then read-only on
// the audio thread except for the buffers themselves.
type sideState struct {
	active        bool
	deviceFormat  sampleformat.Format
	deviceLayout  channel.Layout
	byteSwap      bool
	totalChannels int
	channels      int
	firstChannel  uint32
	latencyFrames uint64

	userFormat sampleformat.Format
	userLayout channel.Layout
	userBuffer []byte // one block, in userFormat/userLayout

	needsConvert bool
	convertInfo  convert.Info
}

// Stream is one opened audio connection: zero, one, or two sides (input
// and/or output) bound to a single backend, driven by that backend's
// real-time thread through handleBlock.
type Stream struct {
	id     string
	logger *slog.Logger

	backend backend.Backend
	state   atomic.Int32 // State
	mode    Mode

	sides [2]sideState // indexed by backend.Output / backend.Input

	// scratch is the shared device-format staging buffer gather/scatter
	// concatenate planar native buffers into (and scatter them back out
	// of), sized at Open to the larger side's requirement. Interleaved
	// sides never touch it: their native buffer already is one flat span.
	scratch []byte

	sampleRate uint32
	blockSize  uint32
	callback   Callback

	// drain implements the reference backend's D counter (0..3+): 0 means
	// not draining, 1 means the client requested a drain and this is its
	// last block of real output, 2-3 flush silence while the handshake
	// completes, >3 triggers the actual stop. internalDrain distinguishes
	// a client-requested drain (ActionDrain) from an engine-internal one.
	drain         atomic.Int32
	internalDrain atomic.Bool

	// stopSemaphore is a single-permit channel: the helper goroutine started
	// by triggerAsyncStop performs the backend Stop off the audio thread
	// (the backend's Stop may block waiting for that very thread to idle)
	// and then sends (non-blocking); Stop and Abort receive to wait for it.
	// Start discards a permit that no Stop or Abort consumed.
	stopSemaphore chan struct{}

	// framesDelivered accumulates frames across the stream's lifetime,
	// paused-but-not-reset by Stop and reset only by Open (so a Close ->
	// Open cycle starts from zero): stream time resumes across Stop ->
	// Start. Read and written without a lock since
	// the audio thread is the sole writer.
	framesDelivered atomic.Uint64

	mu sync.Mutex // guards Open/Start/Stop/Abort/Close transitions
}

// New constructs an unopened Stream bound to the given backend. logger may
// be nil, in which case slog.Default() is used.
func New(b backend.Backend, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Stream{
		id:            id,
		logger:        logger.With("stream_id", id, "backend", b.Name()),
		backend:       b,
		stopSemaphore: make(chan struct{}, 1),
	}
	s.state.Store(int32(StateClosed))
	return s
}

func (s *Stream) State() State { return State(s.state.Load()) }
func (s *Stream) Mode() Mode   { return s.mode }

// OpenParams configures one call to Open. Output and/or Input may be nil;
// exactly one present means a simplex stream, both present means duplex,
// neither is invalid.
type OpenParams struct {
	Output     *device.StreamParameters
	Input      *device.StreamParameters
	SampleRate uint32
	// BufferFrames is the caller's suggestion; 0 asks the backend to pick
	// its minimum. The value actually negotiated is reported back.
	BufferFrames uint32
	Options      device.StreamOptions
	UserFormat   sampleformat.Format
	Callback     Callback
}

// Open reserves the requested device(s) and transitions the stream from
// Closed to Stopped. It is invalid to call Open on a stream that is not
// currently Closed.
func (s *Stream) Open(ctx context.Context, p OpenParams) error {
	if p.Output == nil && p.Input == nil {
		return device.InvalidUse("open requires at least one of Output or Input")
	}
	if p.Callback == nil {
		return device.InvalidUse("open requires a callback")
	}
	if p.Output != nil && p.Input != nil && p.Output.DeviceID != p.Input.DeviceID {
		return device.InvalidUse("duplex open requires the same device id on both sides")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) != StateClosed {
		return device.InvalidUse("open called on a stream that is not closed")
	}

	userLayout := channel.Interleaved
	if p.Options.Has(device.FlagNonInterleaved) {
		userLayout = channel.Planar
	}

	bufferFrames := p.BufferFrames

	if p.Output != nil {
		res, oerr := s.backend.Open(ctx, backend.Output, *p.Output, p.SampleRate, &bufferFrames, p.Options, s.handleBlock)
		if oerr != nil {
			return device.SystemError("opening output device", oerr)
		}
		s.sides[backend.Output] = sideState{
			active:        true,
			deviceFormat:  res.Format,
			deviceLayout:  res.Layout,
			byteSwap:      res.ByteSwap,
			totalChannels: res.TotalChannels,
			channels:      int(p.Output.NumChannels),
			firstChannel:  p.Output.FirstChannel,
			latencyFrames: res.Latency,
			userFormat:    p.UserFormat,
			userLayout:    userLayout,
		}
	}
	if p.Input != nil {
		res, ierr := s.backend.Open(ctx, backend.Input, *p.Input, p.SampleRate, &bufferFrames, p.Options, s.handleBlock)
		if ierr != nil {
			_ = s.backend.Close()
			return device.SystemError("opening input device", ierr)
		}
		s.sides[backend.Input] = sideState{
			active:        true,
			deviceFormat:  res.Format,
			deviceLayout:  res.Layout,
			byteSwap:      res.ByteSwap,
			totalChannels: res.TotalChannels,
			channels:      int(p.Input.NumChannels),
			firstChannel:  p.Input.FirstChannel,
			latencyFrames: res.Latency,
			userFormat:    p.UserFormat,
			userLayout:    userLayout,
		}
	}

	switch {
	case p.Output != nil && p.Input != nil:
		s.mode = ModeDuplex
	case p.Output != nil:
		s.mode = ModeOutputOnly
	default:
		s.mode = ModeInputOnly
	}

	s.sampleRate = p.SampleRate
	s.blockSize = bufferFrames
	s.callback = p.Callback

	var scratchSize int
	for side := range s.sides {
		ss := &s.sides[side]
		if !ss.active {
			continue
		}
		ss.userBuffer = make([]byte, ss.channels*int(s.blockSize)*ss.userFormat.Bytes())
		ss.needsConvert = convert.NeedsConversion(ss.userFormat, ss.deviceFormat, ss.userLayout, ss.deviceLayout, ss.byteSwap)
		if backend.Side(side) == backend.Output {
			ss.convertInfo = convert.NewInfo(ss.channels, int(s.blockSize),
				ss.userFormat, ss.userLayout, ss.channels, 0, false,
				ss.deviceFormat, ss.deviceLayout, ss.totalChannels, int(ss.firstChannel), ss.byteSwap)
		} else {
			ss.convertInfo = convert.NewInfo(ss.channels, int(s.blockSize),
				ss.deviceFormat, ss.deviceLayout, ss.totalChannels, int(ss.firstChannel), ss.byteSwap,
				ss.userFormat, ss.userLayout, ss.channels, 0, false)
		}
		// Planar device buffers arrive as one native span per channel;
		// converting or copying them requires a flat, channel-concatenated
		// view first. The scratch buffer backing that view is shared by
		// both sides and sized once here to the larger side's needs, so
		// gather/scatter never allocates on the audio thread.
		if ss.deviceLayout == channel.Planar {
			if n := deviceBytesNeeded(ss, s.blockSize); n > scratchSize {
				scratchSize = n
			}
		}
	}
	s.scratch = make([]byte, scratchSize)

	s.drain.Store(0)
	s.internalDrain.Store(false)
	s.framesDelivered.Store(0)
	s.state.Store(int32(StateStopped))
	s.logger.Info("stream opened", "mode", s.mode.String(), "sample_rate", s.sampleRate, "block_size", s.blockSize)
	return nil
}

// Start transitions Stopped -> Running and tells the backend to begin
// delivering blocks.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) != StateStopped {
		return device.InvalidUse("start called on a stream that is not stopped")
	}
	if err := s.backend.Start(); err != nil {
		return device.SystemError("starting backend", err)
	}
	// A stop the callback requested itself (drain, stop-immediately, or an
	// input-only stop) leaves a permit nobody waited for; drop it so the
	// next Stop waits for its own handshake.
	select {
	case <-s.stopSemaphore:
	default:
	}
	s.state.Store(int32(StateRunning))
	s.logger.Info("stream started")
	return nil
}

// Stop requests a graceful drain (output is flushed) before the stream
// comes to rest in Stopped. It blocks until the audio thread has finished
// the handshake.
func (s *Stream) Stop() error {
	return s.stopInternal(false)
}

// Abort discards any pending output and stops immediately.
func (s *Stream) Abort() error {
	return s.stopInternal(true)
}

func (s *Stream) stopInternal(immediate bool) error {
	s.mu.Lock()
	switch State(s.state.Load()) {
	case StateStopped, StateClosed:
		s.mu.Unlock()
		return nil
	case StateRunning:
		if immediate || s.mode == ModeInputOnly {
			s.state.Store(int32(StateStopping))
			s.mu.Unlock()
			s.triggerAsyncStop()
		} else {
			// ask the audio thread to drain; it advances the state and
			// triggers the async stop itself once D overflows.
			s.drain.Store(1)
			s.mu.Unlock()
		}
	case StateStopping:
		s.mu.Unlock()
	}

	<-s.stopSemaphore
	return nil
}

// triggerAsyncStop performs the actual backend teardown off the audio
// thread: it acquires the stream mutex (which the audio thread never
// holds), so it is always run in its own goroutine, never called directly
// from handleBlock.
func (s *Stream) triggerAsyncStop() {
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch State(s.state.Load()) {
		case StateStopped, StateClosed:
			return
		}
		if err := s.backend.Stop(); err != nil {
			s.logger.Error("backend stop failed", "error", err)
		}
		s.state.Store(int32(StateStopped))
		s.drain.Store(0)
		s.internalDrain.Store(false)
		s.logger.Info("stream stopped")
		select {
		case s.stopSemaphore <- struct{}{}:
		default:
		}
	}()
}

// Close releases the device(s) and returns the stream to Closed. The stream
// must be Stopped first.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State(s.state.Load())
	if st == StateClosed {
		return nil
	}
	if st != StateStopped {
		return device.InvalidUse("close called on a stream that is not stopped")
	}
	if err := s.backend.Close(); err != nil {
		return device.SystemError("closing backend", err)
	}
	s.sides[backend.Output] = sideState{}
	s.sides[backend.Input] = sideState{}
	s.mode = ModeUnknown
	s.state.Store(int32(StateClosed))
	s.logger.Info("stream closed")
	return nil
}

// StreamTime reports the audio time delivered since the stream was opened.
// It is NOT reset by an intervening Stop; only the next Open resets it, and
// it still reports the last value after Close.
func (s *Stream) StreamTime() time.Duration {
	if s.sampleRate == 0 {
		return 0
	}
	frames := s.framesDelivered.Load()
	return time.Duration(frames) * time.Second / time.Duration(s.sampleRate)
}

// Latency reports the backend-reported latency for the given side, in
// frames, as captured at Open time.
func (s *Stream) Latency(side backend.Side) uint64 {
	return s.sides[side].latencyFrames
}

func (s *Stream) SampleRate() uint32 { return s.sampleRate }

// handleBlock is the BlockHandler passed to the backend at Open. It is
// invoked from the backend's own real-time thread once per block. Its
// control flow is a direct generalization of audio-orchestra's Jack.cpp
// callbackEvent to an arbitrary backend.Backend, with two deliberate
// departures from that original, recorded in the design ledger:
//
//  1. On Stopped/Stopping the original returns immediately without
//     touching the output buffer; here the output buffer is zeroed first,
//     matching the callback contract's text that a stopped stream's
//     output is silent rather than whatever the hardware last held.
//  2. For an input-only stream, the original's drain counter never
//     advances (the increment is nested inside the output/duplex branch),
//     so a drain request on an input-only stream stalls forever; here an
//     input-only stream treats both ActionDrain and ActionStopImmediately
//     as an immediate stop, matching the callback contract's text that
//     input-only streams deactivate immediately on either request.
func (s *Stream) handleBlock(out, in backend.NativeBuffer, frames uint32, xrun device.StatusSet) bool {
	state := State(s.state.Load())
	if state == StateStopped || state == StateStopping {
		zeroNative(out)
		return true
	}

	if s.mode == ModeInputOnly {
		return s.handleInputOnlyBlock(in, frames, xrun)
	}

	d := s.drain.Load()
	if d == 0 {
		return s.handleSteadyBlock(out, in, frames, xrun)
	}
	return s.handleDrainingBlock(out, d, frames)
}

func (s *Stream) handleInputOnlyBlock(in backend.NativeBuffer, frames uint32, xrun device.StatusSet) bool {
	ss := &s.sides[backend.Input]
	s.gatherInput(ss, in, frames)

	outBuf := Buffer{}
	inBuf := Buffer{data: ss.userBuffer, format: ss.userFormat}
	action := s.callback(outBuf, inBuf, 0, s.StreamTime(), xrun)
	s.advanceTime(frames)

	if action == ActionDrain || action == ActionStopImmediately {
		s.state.Store(int32(StateStopping))
		s.triggerAsyncStop()
		return true
	}
	return true
}

func (s *Stream) handleSteadyBlock(out, in backend.NativeBuffer, frames uint32, xrun device.StatusSet) bool {
	outSS := &s.sides[backend.Output]
	inSS := &s.sides[backend.Input]

	if inSS.active {
		s.gatherInput(inSS, in, frames)
	}

	var outBuf, inBuf Buffer
	if outSS.active {
		outBuf = Buffer{data: outSS.userBuffer, format: outSS.userFormat}
	}
	if inSS.active {
		inBuf = Buffer{data: inSS.userBuffer, format: inSS.userFormat}
	}

	action := s.callback(outBuf, inBuf, s.StreamTime(), s.StreamTime(), xrun)

	switch action {
	case ActionStopImmediately:
		s.state.Store(int32(StateStopping))
		s.drain.Store(2)
		s.triggerAsyncStop()
		// The final block's output is not emitted, mirroring the
		// reference implementation's early return on this path.
		s.advanceTime(frames)
		return true
	case ActionDrain:
		s.drain.Store(1)
		s.internalDrain.Store(true)
	}

	if outSS.active {
		s.scatterOutput(outSS, out, frames)
	}
	s.advanceTime(frames)
	return true
}

// handleDrainingBlock implements the D-counter handshake: D==1 is the
// client's last real block (already produced by handleSteadyBlock before
// D was set, so this path only runs for D>=1 on the *next* block onward),
// D in [2,3] flushes silence while input is skipped entirely, and D>3
// triggers the actual async stop.
func (s *Stream) handleDrainingBlock(out backend.NativeBuffer, d int32, frames uint32) bool {
	if d > 3 {
		s.state.Store(int32(StateStopping))
		s.triggerAsyncStop()
		return true
	}
	if d >= 2 {
		zeroNative(out)
	}
	s.advanceTime(frames)
	s.drain.Add(1)
	return true
}

func (s *Stream) gatherInput(ss *sideState, in backend.NativeBuffer, frames uint32) {
	flat := s.flatten(in, ss, frames)
	if !ss.needsConvert {
		copy(ss.userBuffer, flat)
		return
	}
	convert.Buffer(ss.userBuffer, flat, int(frames), ss.convertInfo)
}

func (s *Stream) scatterOutput(ss *sideState, out backend.NativeBuffer, frames uint32) {
	if out.Interleaved != nil {
		if !ss.needsConvert {
			copy(out.Interleaved, ss.userBuffer)
			return
		}
		convert.Buffer(out.Interleaved, ss.userBuffer, int(frames), ss.convertInfo)
		return
	}
	dst := s.scratch[:deviceBytesNeeded(ss, frames)]
	if !ss.needsConvert {
		copy(dst, ss.userBuffer)
	} else {
		convert.Buffer(dst, ss.userBuffer, int(frames), ss.convertInfo)
	}
	scatterPlanar(out.Planar, dst)
}

func (s *Stream) advanceTime(frames uint32) {
	s.framesDelivered.Add(uint64(frames))
}

func zeroNative(b backend.NativeBuffer) {
	if b.Interleaved != nil {
		clearBytes(b.Interleaved)
	}
	for _, p := range b.Planar {
		clearBytes(p)
	}
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// deviceBytesNeeded is the size, in bytes, of one side's device-format flat
// representation: every channel the device exposes, one block's worth of
// frames each.
func deviceBytesNeeded(ss *sideState, frames uint32) int {
	return ss.totalChannels * int(frames) * ss.deviceFormat.Bytes()
}

// flatten returns the single byte span convert.Buffer (or a plain copy)
// expects. Interleaved buffers already are one such span, returned as-is.
// Planar buffers are concatenated channel by channel into the stream's
// shared scratch buffer, allocated once at Open so this never allocates on
// the audio thread.
func (s *Stream) flatten(b backend.NativeBuffer, ss *sideState, frames uint32) []byte {
	if b.Interleaved != nil {
		return b.Interleaved
	}
	flat := s.scratch[:deviceBytesNeeded(ss, frames)]
	off := 0
	for _, p := range b.Planar {
		off += copy(flat[off:], p)
	}
	return flat
}

// scatterPlanar is flatten's inverse: it distributes a flat, channel-
// concatenated span back across each channel's own native buffer.
func scatterPlanar(dst [][]byte, flat []byte) {
	off := 0
	for _, p := range dst {
		off += copy(p, flat[off:])
	}
}

func (s *Stream) String() string {
	return fmt.Sprintf("stream(%s, %s, %s)", s.id, s.backend.Name(), s.State())
}
