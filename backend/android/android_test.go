package android

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-audio/streamengine/backend"
	"github.com/orchestra-audio/streamengine/pkg/device"
)

type fakeBridge struct {
	devices []deviceJSON
	nextID  int32
	started map[int32]bool
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		devices: []deviceJSON{{Name: "speaker", IsInput: false, Channels: 2, SampleRate: 48000, IsDefault: true}},
		started: map[int32]bool{},
	}
}

func (f *fakeBridge) DeviceCount() int { return len(f.devices) }

func (f *fakeBridge) DeviceInfo(index int) ([]byte, error) {
	return json.Marshal(f.devices[index])
}

func (f *fakeBridge) OpenStream(deviceID device.ID, input bool, channels, firstChannel int, sampleRate uint32, bufferFrames int) (int32, error) {
	id := f.nextID
	f.nextID++
	return id, nil
}

func (f *fakeBridge) StartStream(id int32) error { f.started[id] = true; return nil }
func (f *fakeBridge) StopStream(id int32) error  { f.started[id] = false; return nil }
func (f *fakeBridge) AbortStream(id int32) error { f.started[id] = false; return nil }
func (f *fakeBridge) CloseStream(id int32) error { delete(f.started, id); return nil }

func TestEnumerate_DecodesHostJSON(t *testing.T) {
	b := New(newFakeBridge())
	infos, err := b.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "speaker", infos[0].Name)
	assert.True(t, infos[0].IsDefault)
}

func TestOpenStartStop_DriveHostBridge(t *testing.T) {
	bridge := newFakeBridge()
	b := New(bridge)

	bufferFrames := uint32(0)
	result, err := b.Open(context.Background(), backend.Output,
		device.StreamParameters{DeviceID: 0, NumChannels: 2}, 48000, &bufferFrames, device.StreamOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(480), bufferFrames)
	assert.Equal(t, NativeFormat, result.Format)

	require.NoError(t, b.Start())
	assert.True(t, bridge.started[0])
	require.NoError(t, b.Stop())
	assert.False(t, bridge.started[0])
	require.NoError(t, b.Close())
}

func TestPull_InvokesHandlerWithPlanarBuffer(t *testing.T) {
	bridge := newFakeBridge()
	b := New(bridge)

	var gotFrames uint32
	var gotChannels int
	bufferFrames := uint32(32)
	_, err := b.Open(context.Background(), backend.Output,
		device.StreamParameters{DeviceID: 0, NumChannels: 2}, 48000, &bufferFrames,
		device.StreamOptions{}, func(out, in backend.NativeBuffer, frames uint32, xrun device.StatusSet) bool {
			gotFrames = frames
			gotChannels = len(out.Planar)
			return true
		})
	require.NoError(t, err)

	out := [][]int16{make([]int16, 32), make([]int16, 32)}
	b.Pull(0, out)
	assert.Equal(t, uint32(32), gotFrames)
	assert.Equal(t, 2, gotChannels)
}
