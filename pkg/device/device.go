// Package device holds the value types shared between the stream engine and
// every backend adapter: device descriptors, stream parameters/options, and
// the status flags a callback can observe.
package device

import (
	"github.com/orchestra-audio/streamengine/pkg/channel"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
)

// ID identifies a device within one backend's enumeration. IDs are only
// meaningful relative to the backend that produced them.
type ID uint32

// Info is an immutable snapshot of one device's capabilities, obtained from
// a backend at query time. It may go stale between queries as devices
// appear or disappear.
type Info struct {
	ID            ID
	Name          string
	Description   string
	IsInput       bool
	Channels      []channel.Tag
	SampleRates   []uint32
	NativeFormats []sampleformat.Format
	IsDefault     bool

	// ProbeSuccessful is false for devices the backend could enumerate but
	// not interrogate further; the field is advisory. Such a device may
	// still be opened, and must then either report capabilities via a
	// follow-up query or fail at Open.
	ProbeSuccessful bool
}

// StreamParameters describes one side (input or output) of a stream to open.
type StreamParameters struct {
	DeviceID     ID
	NumChannels  uint32
	FirstChannel uint32
}

// Flags are OR'ed bits recognized by StreamOptions.Flags. Unknown flags are
// ignored by backends that don't understand them.
type Flags uint32

const (
	FlagMinimizeLatency Flags = 1 << iota
	FlagScheduleRealtime
	FlagNonInterleaved
	FlagHogDevice
)

// StreamOptions carries the advisory, backend-independent knobs for Open.
type StreamOptions struct {
	Flags           Flags
	NumberOfBuffers uint32
	StreamName      string
}

func (o StreamOptions) Has(f Flags) bool { return o.Flags&f != 0 }

// Status is one event a backend can report for a block it just delivered.
type Status int

const (
	StatusInputOverflow Status = iota
	StatusOutputUnderflow
)

func (s Status) String() string {
	if s == StatusInputOverflow {
		return "input-overflow"
	}
	return "output-underflow"
}

// StatusSet is a small fixed set of Status values observed in one callback.
// It never grows past two members (one per side) so it is passed by value.
type StatusSet struct {
	bits uint8
}

func (s StatusSet) Has(st Status) bool { return s.bits&(1<<uint(st)) != 0 }
func (s *StatusSet) Set(st Status)     { s.bits |= 1 << uint(st) }
func (s StatusSet) Empty() bool        { return s.bits == 0 }

func (s StatusSet) Slice() []Status {
	var out []Status
	if s.Has(StatusInputOverflow) {
		out = append(out, StatusInputOverflow)
	}
	if s.Has(StatusOutputUnderflow) {
		out = append(out, StatusOutputUnderflow)
	}
	return out
}
