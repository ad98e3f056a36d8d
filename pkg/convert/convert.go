// Package convert implements the stream engine's conversion core: pure,
// non-allocating transforms between a client's logical buffer shape and a
// device's native buffer shape. Buffer and ByteSwap operate on
// caller-supplied byte spans and never block or allocate, so they are safe
// to call from the audio thread's steady-state path; NewInfo allocates its
// offset tables and the stream engine calls it only at Open.
package convert

import (
	"github.com/orchestra-audio/streamengine/pkg/channel"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

// Info is the per-side conversion plan computed once at stream Open and
// reused by every callback for that side.
type Info struct {
	Channels  int
	InJump    int // stride in samples, not bytes
	OutJump   int
	InFormat  sampleformat.Format
	OutFormat sampleformat.Format
	InOffset  []int // per-channel base offset in samples
	OutOffset []int
	InSwap    bool // side's native byte order differs from host order
	OutSwap   bool
}

// sideLayout computes the stride and per-channel base offsets for one side
// of a conversion. totalChannels is the channel count of the underlying
// buffer (which may exceed channels when only a sub-range starting at
// firstChannel is selected); blockFrames is only used for planar layouts,
// where each channel's frames are laid out back to back.
func sideLayout(channels, totalChannels, firstChannel int, layout channel.Layout, blockFrames int) (jump int, offsets []int) {
	offsets = make([]int, channels)
	if layout == channel.Interleaved {
		jump = totalChannels
		for c := 0; c < channels; c++ {
			offsets[c] = firstChannel + c
		}
		return jump, offsets
	}
	jump = 1
	for c := 0; c < channels; c++ {
		offsets[c] = (firstChannel + c) * blockFrames
	}
	return jump, offsets
}

// NewInfo builds a conversion plan for `channels` channels shared by both
// sides. The input and output sides are described independently since they
// may have different formats, layouts, total channel counts (device buffers
// are often wider than the channel range a stream selects), and first-
// channel offsets.
func NewInfo(
	channels, blockFrames int,
	inFormat sampleformat.Format, inLayout channel.Layout, inTotalChannels, inFirstChannel int, inSwap bool,
	outFormat sampleformat.Format, outLayout channel.Layout, outTotalChannels, outFirstChannel int, outSwap bool,
) Info {
	inJump, inOffset := sideLayout(channels, inTotalChannels, inFirstChannel, inLayout, blockFrames)
	outJump, outOffset := sideLayout(channels, outTotalChannels, outFirstChannel, outLayout, blockFrames)
	return Info{
		Channels:  channels,
		InJump:    inJump,
		OutJump:   outJump,
		InFormat:  inFormat,
		OutFormat: outFormat,
		InOffset:  inOffset,
		OutOffset: outOffset,
		InSwap:    inSwap,
		OutSwap:   outSwap,
	}
}

// Buffer performs channel routing and format conversion for one block of
// `frames` sample-frames, reading from src and writing into dst. dst and src
// must be large enough for every sample position the plan addresses
// (offset + frame*jump), which exceeds info.Channels*frames when a side's
// buffer is wider than the selected channels; Buffer never allocates and
// never resizes them.
func Buffer(dst, src []byte, frames int, info Info) {
	inBytes := info.InFormat.Bytes()
	outBytes := info.OutFormat.Bytes()
	for c := 0; c < info.Channels; c++ {
		inBase := info.InOffset[c]
		outBase := info.OutOffset[c]
		for frame := 0; frame < frames; frame++ {
			inIdx := (inBase + frame*info.InJump) * inBytes
			outIdx := (outBase + frame*info.OutJump) * outBytes
			convertSample(dst, outIdx, info.OutFormat, info.OutSwap, src, inIdx, info.InFormat, info.InSwap)
		}
	}
}

// ByteSwap reverses the byte order of `samples` consecutive samples of
// format f in place. Formats of 1 byte are untouched.
func ByteSwap(buf []byte, samples int, f sampleformat.Format) {
	n := f.Bytes()
	if n <= 1 {
		return
	}
	for i := 0; i < samples; i++ {
		off := i * n
		for j := 0; j < n/2; j++ {
			buf[off+j], buf[off+n-1-j] = buf[off+n-1-j], buf[off+j]
		}
	}
}

// NeedsConversion reports whether a side requires the conversion path at
// all: identical format, layout, and byte order is the zero-copy path.
func NeedsConversion(userFormat, deviceFormat sampleformat.Format, userLayout, deviceLayout channel.Layout, byteSwap bool) bool {
	return userFormat != deviceFormat || userLayout != deviceLayout || byteSwap
}
