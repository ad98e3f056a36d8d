package stream

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-audio/streamengine/backend/dummy"
	"github.com/orchestra-audio/streamengine/pkg/device"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition did not become true within %s", timeout)
}

func noopCallback(out, in Buffer, outTime, inTime time.Duration, status device.StatusSet) Action {
	return ActionContinue
}

// scenario 1: playback silence.
func TestStream_PlaybackSilence(t *testing.T) {
	b := dummy.New()
	s := New(b, nil)

	var blocks atomic.Int64
	cb := func(out, in Buffer, outTime, inTime time.Duration, status device.StatusSet) Action {
		blocks.Add(1)
		return ActionContinue
	}

	err := s.Open(context.Background(), OpenParams{
		Output:       &device.StreamParameters{DeviceID: dummy.DeviceID, NumChannels: 2},
		SampleRate:   48000,
		BufferFrames: 256,
		UserFormat:   sampleformat.Float32,
		Callback:     cb,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	waitUntil(t, 2*time.Second, func() bool { return blocks.Load() >= 20 })
	require.NoError(t, s.Stop())

	assert.InDelta(t, float64(20*256)/48000.0, s.StreamTime().Seconds(), 0.05)
	require.NoError(t, s.Close())
}

// scenario 2: capture with format upconversion.
func TestStream_CaptureUpconversion(t *testing.T) {
	b := dummy.New()
	b.InjectCaptureSamples([]int16{math.MaxInt16, 0, math.MinInt16, 0})
	s := New(b, nil)

	var mu sync.Mutex
	var got []float32
	gotOnce := false
	cb := func(out, in Buffer, outTime, inTime time.Duration, status device.StatusSet) Action {
		mu.Lock()
		defer mu.Unlock()
		if !gotOnce {
			f := in.Float32()
			got = append([]float32(nil), f[:4]...)
			gotOnce = true
		}
		return ActionContinue
	}

	err := s.Open(context.Background(), OpenParams{
		Input:        &device.StreamParameters{DeviceID: dummy.DeviceID, NumChannels: 1},
		SampleRate:   44100,
		BufferFrames: 64,
		UserFormat:   sampleformat.Float32,
		Callback:     cb,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotOnce
	})
	require.NoError(t, s.Stop())
	require.NoError(t, s.Close())

	require.Len(t, got, 4)
	want := []float32{1.0, 0.0, -1.0, 0.0}
	for i, w := range want {
		assert.InDelta(t, w, got[i], 1.0/float64(1<<15))
	}
}

// scenario 3: duplex loopback convert — the callback copies captured
// samples straight to the output side; the dummy backend's native format is
// fixed s16 on both sides, so round-tripping through the f32 user buffers
// must reproduce the fed samples within s16 quantization.
func TestStream_DuplexLoopbackConvert(t *testing.T) {
	b := dummy.New()
	b.InjectCaptureSamples([]int16{1000, -1000, 2000, -2000})
	s := New(b, nil)

	var blocks atomic.Int64
	cb := func(out, in Buffer, outTime, inTime time.Duration, status device.StatusSet) Action {
		copy(out.Float32(), in.Float32())
		blocks.Add(1)
		return ActionContinue
	}

	err := s.Open(context.Background(), OpenParams{
		Output:       &device.StreamParameters{DeviceID: dummy.DeviceID, NumChannels: 2},
		Input:        &device.StreamParameters{DeviceID: dummy.DeviceID, NumChannels: 2},
		SampleRate:   48000,
		BufferFrames: 64,
		UserFormat:   sampleformat.Float32,
		Callback:     cb,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	waitUntil(t, 2*time.Second, func() bool { return blocks.Load() >= 10 })
	// Sample the output while running: Stop's drain handshake ends with
	// blocks that carry no client output.
	out := b.LastOutputBlock()
	require.NoError(t, s.Stop())
	require.NoError(t, s.Close())

	require.NotEmpty(t, out)
	readI16 := func(i int) int16 { return int16(uint16(out[2*i]) | uint16(out[2*i+1])<<8) }
	assert.InDelta(t, 1000, readI16(0), 1)
	assert.InDelta(t, -1000, readI16(1), 1)
}

// scenario 4: drain on client request — Stop (not Abort) lets the audio
// thread flush its handshake before the stream settles in Stopped, and a
// subsequent Start resumes rather than erroring.
func TestStream_DrainOnRequest(t *testing.T) {
	b := dummy.New()
	s := New(b, nil)

	var blocks atomic.Int64
	cb := func(out, in Buffer, outTime, inTime time.Duration, status device.StatusSet) Action {
		n := blocks.Add(1)
		if n == 5 {
			return ActionDrain
		}
		return ActionContinue
	}

	err := s.Open(context.Background(), OpenParams{
		Output:       &device.StreamParameters{DeviceID: dummy.DeviceID, NumChannels: 1},
		SampleRate:   48000,
		BufferFrames: 64,
		UserFormat:   sampleformat.Float32,
		Callback:     cb,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	waitUntil(t, 2*time.Second, func() bool { return s.State() == StateStopped })

	require.NoError(t, s.Start())
	assert.Equal(t, StateRunning, s.State())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Close())
}

// scenario 5: underflow reporting — an injected xrun appears in exactly one
// callback's status and is gone from the next.
func TestStream_UnderflowReporting(t *testing.T) {
	b := dummy.New()
	s := New(b, nil)

	var mu sync.Mutex
	var seen []bool
	cb := func(out, in Buffer, outTime, inTime time.Duration, status device.StatusSet) Action {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) < 4 {
			seen = append(seen, status.Has(device.StatusOutputUnderflow))
		}
		return ActionContinue
	}

	err := s.Open(context.Background(), OpenParams{
		Output:       &device.StreamParameters{DeviceID: dummy.DeviceID, NumChannels: 1},
		SampleRate:   48000,
		BufferFrames: 64,
		UserFormat:   sampleformat.Float32,
		Callback:     cb,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 1
	})
	b.InjectXrunOnce(device.StatusOutputUnderflow)
	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 4
	})

	require.NoError(t, s.Stop())
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	found := false
	for i, v := range seen {
		if v {
			assert.False(t, found, "underflow flag must appear in exactly one callback")
			found = true
			if i+1 < len(seen) {
				assert.False(t, seen[i+1], "underflow flag must not persist into the next callback")
			}
		}
	}
	assert.True(t, found, "expected the injected underflow to surface in some callback")
}

// scenario 6: abort discards pending output immediately, without the
// drain handshake's extra silent blocks.
func TestStream_AbortDiscards(t *testing.T) {
	b := dummy.New()
	s := New(b, nil)

	var blocks atomic.Int64
	cb := func(out, in Buffer, outTime, inTime time.Duration, status device.StatusSet) Action {
		blocks.Add(1)
		return ActionContinue
	}

	err := s.Open(context.Background(), OpenParams{
		Output:       &device.StreamParameters{DeviceID: dummy.DeviceID, NumChannels: 1},
		SampleRate:   48000,
		BufferFrames: 64,
		UserFormat:   sampleformat.Float32,
		Callback:     cb,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	waitUntil(t, 2*time.Second, func() bool { return blocks.Load() >= 5 })
	require.NoError(t, s.Abort())

	assert.Equal(t, StateStopped, s.State())
	afterAbort := blocks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, afterAbort, blocks.Load(), "no further callback invocations after abort")

	require.NoError(t, s.Close())
}

// A device that negotiates a planar native layout (JACK's own buffers are
// always one span per channel) must have converted samples scattered back
// into each channel's own span, not dropped into a throwaway buffer.
func TestStream_ScatterToPlanarOutput(t *testing.T) {
	b := dummy.New()
	b.ForcePlanarOutput()
	s := New(b, nil)

	var blocks atomic.Int64
	cb := func(out, in Buffer, outTime, inTime time.Duration, status device.StatusSet) Action {
		f := out.Float32()
		for i := range f {
			if i%2 == 0 {
				f[i] = 0.5
			} else {
				f[i] = -0.5
			}
		}
		blocks.Add(1)
		return ActionContinue
	}

	err := s.Open(context.Background(), OpenParams{
		Output:       &device.StreamParameters{DeviceID: dummy.DeviceID, NumChannels: 2},
		SampleRate:   48000,
		BufferFrames: 64,
		UserFormat:   sampleformat.Float32,
		Callback:     cb,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	waitUntil(t, 2*time.Second, func() bool { return blocks.Load() >= 5 })
	// Sample the output while running, before Stop's silent drain blocks.
	out := b.LastOutputBlock()
	require.NoError(t, s.Stop())
	require.NoError(t, s.Close())

	require.NotEmpty(t, out)
	readI16 := func(i int) int16 { return int16(uint16(out[2*i]) | uint16(out[2*i+1])<<8) }

	// Planar-concatenated: all of channel 0's frames, then all of channel 1's.
	const frames = 64
	for f := 0; f < frames; f++ {
		assert.InDelta(t, int16(0.5*(1<<15)), readI16(f), 1)
		assert.InDelta(t, int16(-0.5*(1<<15)), readI16(frames+f), 1)
	}
}

func TestStream_OpenRejectsCrossDeviceDuplex(t *testing.T) {
	b := dummy.New()
	s := New(b, nil)
	err := s.Open(context.Background(), OpenParams{
		Output:     &device.StreamParameters{DeviceID: 0},
		Input:      &device.StreamParameters{DeviceID: 1},
		SampleRate: 48000,
		UserFormat: sampleformat.Float32,
		Callback:   noopCallback,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrInvalidUse)
}

func TestStream_LifecycleInvariants(t *testing.T) {
	b := dummy.New()
	s := New(b, nil)
	assert.Equal(t, StateClosed, s.State())

	assert.Error(t, s.Start(), "start before open must fail")
	assert.NoError(t, s.Close(), "close on an already-closed stream is a no-op")

	err := s.Open(context.Background(), OpenParams{
		Output:       &device.StreamParameters{DeviceID: dummy.DeviceID, NumChannels: 1},
		SampleRate:   48000,
		BufferFrames: 64,
		UserFormat:   sampleformat.Float32,
		Callback:     noopCallback,
	})
	require.NoError(t, err)
	assert.Equal(t, StateStopped, s.State())
	assert.Error(t, s.Open(context.Background(), OpenParams{}), "double open must fail")
	assert.NoError(t, s.Close(), "close while stopped must succeed")
	assert.Equal(t, StateClosed, s.State())
}
