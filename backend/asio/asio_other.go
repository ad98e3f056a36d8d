//go:build !windows

package asio

import (
	"context"
	"fmt"

	"github.com/orchestra-audio/streamengine/backend"
	"github.com/orchestra-audio/streamengine/pkg/device"
)

// errUnavailable is returned by Open and Start on non-Windows builds; the
// other operations report no devices or do nothing. ASIO is a Windows-only
// API; there is nothing to bind to elsewhere.
var errUnavailable = fmt.Errorf("asio: not available on this platform")

func newPlatform() (backend.Backend, error) {
	return &Backend{}, nil
}

// Backend is a permanently-unusable placeholder outside Windows, kept so
// the dispatcher's preference order can still reference this package
// uniformly across platforms.
type Backend struct{}

func (b *Backend) Name() string { return "asio" }

func (b *Backend) Enumerate(ctx context.Context) ([]device.Info, error) { return nil, nil }

func (b *Backend) DefaultInput() (device.ID, bool)  { return 0, false }
func (b *Backend) DefaultOutput() (device.ID, bool) { return 0, false }

func (b *Backend) Open(
	ctx context.Context,
	side backend.Side,
	params device.StreamParameters,
	sampleRate uint32,
	bufferFrames *uint32,
	opts device.StreamOptions,
	handler backend.BlockHandler,
) (backend.OpenResult, error) {
	return backend.OpenResult{}, errUnavailable
}

func (b *Backend) Start() error { return errUnavailable }
func (b *Backend) Stop() error  { return nil }
func (b *Backend) Abort() error { return nil }
func (b *Backend) Close() error { return nil }
