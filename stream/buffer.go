package stream

import (
	"unsafe"

	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

// Buffer is the user-visible view of one side's buffer for a single block,
// passed to the client Callback. It is a thin, zero-copy veneer over the
// stream's own byte storage for that side: Float32/Int16/etc reinterpret
// the underlying bytes in place rather than copying, since the callback
// contract forbids allocation on the audio thread.
type Buffer struct {
	data   []byte
	format sampleformat.Format
}

// Format reports the sample format backing this buffer.
func (b Buffer) Format() sampleformat.Format { return b.format }

// Bytes returns the raw backing storage, valid for any format.
func (b Buffer) Bytes() []byte { return b.data }

// IsNil reports whether this side of the stream is absent: nil for the
// output buffer on an input-only stream, or the input buffer on an
// output-only stream.
func (b Buffer) IsNil() bool { return b.data == nil }

// Float32 reinterprets the buffer as float32 samples. Returns nil unless
// Format() == sampleformat.Float32.
func (b Buffer) Float32() []float32 {
	if b.format != sampleformat.Float32 || len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.data[0])), len(b.data)/4)
}

// Float64 reinterprets the buffer as float64 samples.
func (b Buffer) Float64() []float64 {
	if b.format != sampleformat.Float64 || len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b.data[0])), len(b.data)/8)
}

// Int16 reinterprets the buffer as int16 samples.
func (b Buffer) Int16() []int16 {
	if b.format != sampleformat.Int16 || len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&b.data[0])), len(b.data)/2)
}

// Int32 reinterprets the buffer as int32 samples.
func (b Buffer) Int32() []int32 {
	if b.format != sampleformat.Int32 || len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b.data[0])), len(b.data)/4)
}

// Int8 reinterprets the buffer as int8 samples.
func (b Buffer) Int8() []int8 {
	if b.format != sampleformat.Int8 || len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&b.data[0])), len(b.data))
}
