package convert

import (
	"math"

	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

// canonical scaling: integer full-scale maps to [-1, 1].
const (
	scale8  = 1 << 7
	scale16 = 1 << 15
	scale24 = 1 << 23
	scale32 = 1 << 31
)

// swapped copies the n bytes at buf[off:off+n] into a fixed-size array,
// reversing their order when swap is set. The array is stack-allocated: it
// never escapes, so this stays safe to call from the audio thread.
func swapped(buf []byte, off, n int, swap bool) [8]byte {
	var b [8]byte
	if !swap {
		copy(b[:n], buf[off:off+n])
		return b
	}
	for j := 0; j < n; j++ {
		b[j] = buf[off+n-1-j]
	}
	return b
}

// decodeSample reads one sample at byte offset off of format f from buf and
// returns it as a canonical float64 in [-1, 1] (wider than strictly needed so
// f64 round-trips exactly through the canonical representation). swap
// reverses the sample's byte order before interpreting it, for devices that
// report a native byte order opposite the host's.
func decodeSample(buf []byte, off int, f sampleformat.Format, swap bool) float64 {
	b := swapped(buf, off, f.Bytes(), swap)
	switch f {
	case sampleformat.Int8:
		v := int8(b[0])
		return float64(v) / scale8
	case sampleformat.Int16:
		v := int16(uint16(b[0]) | uint16(b[1])<<8)
		return float64(v) / scale16
	case sampleformat.Int24:
		u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
		if u&0x800000 != 0 {
			u |= 0xFF000000
		}
		return float64(int32(u)) / scale24
	case sampleformat.Int32:
		u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return float64(int32(u)) / scale32
	case sampleformat.Float32:
		u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return float64(math.Float32frombits(u))
	case sampleformat.Float64:
		u := uint64(0)
		for i := 0; i < 8; i++ {
			u |= uint64(b[i]) << (8 * i)
		}
		return math.Float64frombits(u)
	default:
		return 0
	}
}

// encodeSample writes the canonical value v (in [-1, 1] for integer formats)
// into buf at byte offset off using format f. swap reverses the sample's
// byte order after encoding, for devices that expect the opposite of host
// byte order.
func encodeSample(buf []byte, off int, f sampleformat.Format, swap bool, v float64) {
	var b [8]byte
	switch f {
	case sampleformat.Int8:
		b[0] = byte(int8(clampScale(v, scale8)))
	case sampleformat.Int16:
		s := int16(clampScale(v, scale16))
		b[0] = byte(s)
		b[1] = byte(s >> 8)
	case sampleformat.Int24:
		s := int32(clampScale(v, scale24))
		b[0] = byte(s)
		b[1] = byte(s >> 8)
		b[2] = byte(s >> 16)
	case sampleformat.Int32:
		s := int32(clampScale(v, scale32))
		b[0] = byte(s)
		b[1] = byte(s >> 8)
		b[2] = byte(s >> 16)
		b[3] = byte(s >> 24)
	case sampleformat.Float32:
		u := math.Float32bits(float32(v))
		b[0] = byte(u)
		b[1] = byte(u >> 8)
		b[2] = byte(u >> 16)
		b[3] = byte(u >> 24)
	case sampleformat.Float64:
		u := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			b[i] = byte(u >> (8 * i))
		}
	}
	n := f.Bytes()
	if !swap {
		copy(buf[off:off+n], b[:n])
		return
	}
	for j := 0; j < n; j++ {
		buf[off+j] = b[n-1-j]
	}
}

func clampScale(v float64, scale float64) float64 {
	x := v * scale
	max := scale - 1
	min := -scale
	if x > max {
		return max
	}
	if x < min {
		return min
	}
	return math.Round(x)
}

// convertSample moves one sample between two formats via the canonical
// float representation. When src and dst formats match and neither side
// needs its byte order reversed, the raw bytes are copied directly so
// float64<->float64 and identical-format paths are exact and don't pay
// bit-rounding cost.
func convertSample(dst []byte, dstOff int, dstFormat sampleformat.Format, dstSwap bool, src []byte, srcOff int, srcFormat sampleformat.Format, srcSwap bool) {
	if dstFormat == srcFormat && !dstSwap && !srcSwap {
		copy(dst[dstOff:dstOff+dstFormat.Bytes()], src[srcOff:srcOff+srcFormat.Bytes()])
		return
	}
	encodeSample(dst, dstOff, dstFormat, dstSwap, decodeSample(src, srcOff, srcFormat, srcSwap))
}
