package dispatcher

import (
	"log/slog"

	"github.com/orchestra-audio/streamengine/backend"
	"github.com/orchestra-audio/streamengine/backend/asio"
	"github.com/orchestra-audio/streamengine/backend/coreaudio"
	"github.com/orchestra-audio/streamengine/backend/dummy"
	"github.com/orchestra-audio/streamengine/backend/jack"
)

// NewDefaultRegistry registers every backend buildable on the current
// platform in preference order: jack, coreaudio, asio, android, dummy —
// dummy always last. android is omitted here since
// it requires a concrete HostBridge supplied by the embedding application
// (see backend/android); callers targeting Android register it themselves
// with Register before calling Instantiate.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register("jack", func() (backend.Backend, error) { return jack.New(), nil })
	r.Register("coreaudio", coreaudio.New)
	r.Register("asio", asio.New)
	r.Register("dummy", func() (backend.Backend, error) { return dummy.New(), nil })
	return r
}
