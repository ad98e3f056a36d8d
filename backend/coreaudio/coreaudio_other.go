//go:build !darwin

package coreaudio

import (
	"context"
	"fmt"

	"github.com/orchestra-audio/streamengine/backend"
	"github.com/orchestra-audio/streamengine/pkg/device"
)

var errUnavailable = fmt.Errorf("coreaudio: not available on this platform")

func newPlatform() (backend.Backend, error) {
	return &Backend{}, nil
}

// Backend is a permanently-unusable placeholder outside Darwin.
type Backend struct{}

func (b *Backend) Name() string { return "coreaudio" }

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
