// Command streamctl is a demo CLI: enumerate devices on a chosen backend,
// open and run an output stream for a fixed duration, and report xruns as
// they occur. It is a thin driver over the stream/backend packages: a
// flag-parsed config path, viper-backed settings, slog logging configured
// up front.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/orchestra-audio/streamengine/dispatcher"
	"github.com/orchestra-audio/streamengine/internal/logging"
	"github.com/orchestra-audio/streamengine/pkg/device"
	"github.com/orchestra-audio/streamengine/pkg/sampleformat"
	"github.com/orchestra-audio/streamengine/stream"
)

func main() {
	configFilePath := pflag.String("config", "streamctl.yaml", "path to config file")
	backendName := pflag.String("backend", "", "backend name to use (jack, coreaudio, asio, dummy); empty picks the first available")
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)

	loadConfig(*configFilePath)

	logger, logFile, err := logging.Configure(viper.GetString("loglevel"), viper.GetString("logfile"), slog.HandlerOptions{})
	if err != nil {
		panic(err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	// --------------------------------------------------------------------------------

	registry := dispatcher.NewDefaultRegistry(logger)

	ctx := context.Background()
	b, err := registry.Instantiate(ctx, *backendName)
	if err != nil {
		logger.Error("no backend available", "error", err)
		return
	}
	logger.Info("backend selected", "backend", b.Name())

	devices, err := b.Enumerate(ctx)
	if err != nil {
		logger.Warn("enumerate failed", "error", err)
	}
	for _, d := range devices {
		logger.Info("device", "id", d.ID, "name", d.Name, "isInput", d.IsInput, "isDefault", d.IsDefault)
	}

	s := stream.New(b, logger)

	var xrunCount int
	cb := func(out, in stream.Buffer, outTime, inTime time.Duration, status device.StatusSet) stream.Action {
		if !status.Empty() {
			xrunCount++
			logger.Warn("xrun", "status", status.Slice())
		}
		return stream.ActionContinue
	}

	outDevice, _ := b.DefaultOutput()
	err = s.Open(ctx, stream.OpenParams{
		Output:       &device.StreamParameters{DeviceID: outDevice, NumChannels: uint32(viper.GetInt("channels"))},
		SampleRate:   uint32(viper.GetInt("samplerate")),
		BufferFrames: uint32(viper.GetInt("bufferframes")),
		UserFormat:   sampleformat.Float32,
		Callback:     cb,
	})
	if err != nil {
		logger.Error("open failed", "error", err)
		return
	}

	if err := s.Start(); err != nil {
		logger.Error("start failed", "error", err)
		return
	}
	logger.Info("stream running", "sampleRate", s.SampleRate())

	time.Sleep(time.Duration(viper.GetInt("seconds")) * time.Second)

	if err := s.Stop(); err != nil {
		logger.Error("stop failed", "error", err)
	}
	if err := s.Close(); err != nil {
		logger.Error("close failed", "error", err)
	}
	logger.Info("stream finished", "streamTime", s.StreamTime(), "xruns", xrunCount)
}
