package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/orchestra-audio/streamengine/pkg/channel"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

func TestBuffer_IdentityInterleaved(t *testing.T) {
	const channels, frames = 2, 4
	info := NewInfo(channels, frames,
		sampleformat.Float32, channel.Interleaved, channels, 0, false,
		sampleformat.Float32, channel.Interleaved, channels, 0, false,
	)
	src := make([]byte, channels*frames*sampleformat.Float32.Bytes())
	for i := range src {
		src[i] = byte(i + 1)
	}
	dst := make([]byte, len(src))
	Buffer(dst, src, frames, info)
	assert.Equal(t, src, dst)
}

func TestBuffer_InterleavedToPlanar(t *testing.T) {
	const channels, frames = 2, 3
	info := NewInfo(channels, frames,
		sampleformat.Int16, channel.Interleaved, channels, 0, false,
		sampleformat.Int16, channel.Planar, channels, 0, false,
	)
	// interleaved: L0 R0 L1 R1 L2 R2
	src := make([]byte, channels*frames*2)
	vals := []int16{10, -10, 20, -20, 30, -30}
	for i, v := range vals {
		src[2*i] = byte(v)
		src[2*i+1] = byte(v >> 8)
	}
	dst := make([]byte, len(src))
	Buffer(dst, src, frames, info)

	readI16 := func(b []byte, i int) int16 { return int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8) }
	// planar: L0 L1 L2 R0 R1 R2
	require.Equal(t, int16(10), readI16(dst, 0))
	require.Equal(t, int16(20), readI16(dst, 1))
	require.Equal(t, int16(30), readI16(dst, 2))
	require.Equal(t, int16(-10), readI16(dst, 3))
	require.Equal(t, int16(-20), readI16(dst, 4))
	require.Equal(t, int16(-30), readI16(dst, 5))
}

func TestBuffer_ChannelOffsetRouting(t *testing.T) {
	// A mono stream selected at first-channel=1 within a 2-channel
	// interleaved device buffer must land in the right slot and leave the
	// other channel untouched.
	const deviceChannels = 2
	info := NewInfo(1, 2,
		sampleformat.Float32, channel.Interleaved, 1, 0, false,
		sampleformat.Float32, channel.Interleaved, deviceChannels, 1, false,
	)
	src := make([]byte, 1*2*4)
	encodeSample(src, 0, sampleformat.Float32, false, 0.5)
	encodeSample(src, 4, sampleformat.Float32, false, -0.5)

	dst := make([]byte, deviceChannels*2*4)
	for i := range dst {
		dst[i] = 0xAB // sentinel for "untouched"
	}
	Buffer(dst, src, 2, info)

	assert.Equal(t, byte(0xAB), dst[0])
	assert.Equal(t, byte(0xAB), dst[1])
	assert.InDelta(t, 0.5, decodeSample(dst, 4, sampleformat.Float32, false), 1e-6)
	assert.InDelta(t, -0.5, decodeSample(dst, 12, sampleformat.Float32, false), 1e-6)
}

func TestCaptureUpconversion(t *testing.T) {
	// s16 device samples upconverted to f32 user samples.
	deviceSamples := []int16{math.MaxInt16, 0, math.MinInt16, 0}
	src := make([]byte, len(deviceSamples)*2)
	for i, v := range deviceSamples {
		src[2*i] = byte(v)
		src[2*i+1] = byte(v >> 8)
	}
	info := NewInfo(1, len(deviceSamples),
		sampleformat.Int16, channel.Interleaved, 1, 0, false,
		sampleformat.Float32, channel.Interleaved, 1, 0, false,
	)
	dst := make([]byte, len(deviceSamples)*4)
	Buffer(dst, src, len(deviceSamples), info)

	want := []float64{1.0, 0.0, -1.0, 0.0}
	for i, w := range want {
		got := decodeSample(dst, i*4, sampleformat.Float32, false)
		assert.InDelta(t, w, got, 1.0/float64(scale16))
	}
}

func TestBuffer_ByteSwapOnDeviceSide(t *testing.T) {
	// A device that reports ByteSwap=true delivers samples in the opposite
	// byte order from the host; Buffer must undo that on the way in and
	// redo it on the way out, not just route the conversion path.
	const frames = 3
	vals := []int16{1, -2, 32767}

	bigEndian := make([]byte, frames*2)
	for i, v := range vals {
		bigEndian[2*i] = byte(uint16(v) >> 8)
		bigEndian[2*i+1] = byte(v)
	}

	toHost := NewInfo(1, frames,
		sampleformat.Int16, channel.Interleaved, 1, 0, true,
		sampleformat.Int16, channel.Interleaved, 1, 0, false,
	)
	host := make([]byte, frames*2)
	Buffer(host, bigEndian, frames, toHost)
	for i, v := range vals {
		got := int16(uint16(host[2*i]) | uint16(host[2*i+1])<<8)
		assert.Equal(t, v, got)
	}

	toDevice := NewInfo(1, frames,
		sampleformat.Int16, channel.Interleaved, 1, 0, false,
		sampleformat.Int16, channel.Interleaved, 1, 0, true,
	)
	roundTripped := make([]byte, frames*2)
	Buffer(roundTripped, host, frames, toDevice)
	assert.Equal(t, bigEndian, roundTripped)
}

func TestByteSwap_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(t, "n")
		buf := rapid.SliceOfN(rapid.Byte(), n*4, n*4).Draw(t, "buf")
		original := append([]byte(nil), buf...)

		ByteSwap(buf, n, sampleformat.Float32)
		want := make([]byte, len(original))
		for i := 0; i < len(original); i += 4 {
			want[i], want[i+1], want[i+2], want[i+3] = original[i+3], original[i+2], original[i+1], original[i]
		}
		assert.Equal(t, want, buf, "swap must reverse the bytes of every sample")
		ByteSwap(buf, n, sampleformat.Float32)
		assert.Equal(t, original, buf, "double byte-swap must be the identity")
	})
}

func TestRoundTrip_WiderFormatIsIdentity(t *testing.T) {
	// Format conversion A -> B -> A reproduces A exactly when B has >= the
	// bit depth of A, using s16 -> f32 -> s16.
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int16().Draw(t, "v")
		src := []byte{byte(v), byte(v >> 8)}

		wide := make([]byte, 4)
		toWide := NewInfo(1, 1, sampleformat.Int16, channel.Interleaved, 1, 0, false, sampleformat.Float32, channel.Interleaved, 1, 0, false)
		Buffer(wide, src, 1, toWide)

		back := make([]byte, 2)
		toNarrow := NewInfo(1, 1, sampleformat.Float32, channel.Interleaved, 1, 0, false, sampleformat.Int16, channel.Interleaved, 1, 0, false)
		Buffer(back, wide, 1, toNarrow)

		got := int16(uint16(back[0]) | uint16(back[1])<<8)
		assert.Equal(t, v, got, "s16->f32->s16 must reproduce the original exactly")
	})
}

func TestNeedsConversion(t *testing.T) {
	assert.False(t, NeedsConversion(sampleformat.Float32, sampleformat.Float32, channel.Interleaved, channel.Interleaved, false))
	assert.True(t, NeedsConversion(sampleformat.Float32, sampleformat.Int16, channel.Interleaved, channel.Interleaved, false))
	assert.True(t, NeedsConversion(sampleformat.Float32, sampleformat.Float32, channel.Interleaved, channel.Planar, false))
	assert.True(t, NeedsConversion(sampleformat.Float32, sampleformat.Float32, channel.Interleaved, channel.Interleaved, true))
}
