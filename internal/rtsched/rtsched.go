// Package rtsched applies the advisory "schedule-realtime" stream flag to
// the calling OS thread. Real-time scheduling is never a hard requirement
// for a stream to run: callers log and continue on failure.
package rtsched

import "runtime"

// DefaultPriority is the SCHED_FIFO priority requested when a backend does
// not have a more specific value to offer. It sits comfortably below the
// range audio servers like jackd and pipewire reserve for themselves.
const DefaultPriority = 10

// Apply locks the calling goroutine to its current OS thread and asks the
// kernel to schedule it FIFO at priority. The lock is intentional and
// permanent: the goroutine calling this is expected to be a backend's
// real-time callback, which already runs pinned to one OS thread by virtue
// of being entered from C via cgo.
func Apply(priority int) error {
	runtime.LockOSThread()
	return platformApply(priority)
}
