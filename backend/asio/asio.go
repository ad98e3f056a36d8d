// Package asio implements backend.Backend against Steinberg's ASIO host API
// on Windows, matching the Windows-only scope of audio-orchestra's
// api/Asio.hpp (guarded there by ORCHESTRA_BUILD_ASIO). Rather than binding
// directly to the proprietary ASIO SDK — unavailable as a fetchable
// dependency — this backend drives ASIO through PortAudio's ASIO host API,
// the same library the rest of this example corpus reaches for when it
// needs a cross-platform native audio transport
// (github.com/gordonklaus/portaudio). On any OS other than Windows this
// package's New still returns a Backend, but Open always fails: ASIO simply
// does not exist there, the same way Asio.hpp's whole translation unit
// compiles to nothing without ORCHESTRA_BUILD_ASIO.
package asio

import "github.com/orchestra-audio/streamengine/backend"

// New returns an unopened ASIO backend for the current platform. On
// non-Windows builds it is permanently unusable; callers that want the
// dispatcher to skip it gracefully should call Enumerate or Open, whose
// platform-specific implementations report the failure cleanly instead of
// panicking.
func New() (backend.Backend, error) {
	return newPlatform()
}
