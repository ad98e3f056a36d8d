// Package coreaudio implements backend.Backend against Apple's CoreAudio on
// macOS and iOS, matching audio-orchestra's api/CoreIos.h scope. As with
// backend/asio, this binds through PortAudio's CoreAudio host API
// (github.com/gordonklaus/portaudio) rather than hand-rolled AudioToolbox
// cgo, reusing the same dependency the rest of the example corpus already
// leans on for native audio transport. Outside Darwin this package's
// Backend is a permanently-unusable placeholder.
package coreaudio

import "github.com/orchestra-audio/streamengine/backend"

// New returns an unopened CoreAudio backend for the current platform.
func New() (backend.Backend, error) {
	return newPlatform()
}
