// Package app assembles gpubench components from configuration, for the CLI and
// for the long running server.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/fxnlabs/gpubench/internal/bench"
	"github.com/fxnlabs/gpubench/internal/config"
	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/gpu/software"
	"github.com/fxnlabs/gpubench/internal/metrics"
	"github.com/fxnlabs/gpubench/internal/runtimes"
	"github.com/fxnlabs/gpubench/internal/server"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Home is the configuration directory relative paths are resolved against.
type Home string

// NewBackend creates the configured backend. The software backend honors the
// configured worker count.
func NewBackend(cfg *config.Config, logger *zap.Logger) (gpu.Backend, error) {
	if cfg.Device.Backend == software.Name {
		return software.New(software.Options{Workers: cfg.Device.Workers}, logger), nil
	}
	return gpu.NewBackend(cfg.Device.Backend, logger)
}

// OpenDevice negotiates a device with the configured backend and records it in the
// device metrics.
func OpenDevice(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gpu.Handle, error) {
	backend, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	disabled := make([]gpu.Feature, len(cfg.Device.DisabledFeatures))
	for i, f := range cfg.Device.DisabledFeatures {
		disabled[i] = gpu.Feature(f)
	}
	h, err := gpu.Negotiate(ctx, backend, gpu.NegotiateOptions{
		PowerPreference:  gpu.PowerPreference(cfg.Device.PowerPreference),
		DisabledFeatures: disabled,
		Label:            "gpubench",
	}, logger)
	if err != nil {
		return nil, err
	}

	caps := h.Capabilities()
	metrics.DeviceInfo.Reset()
	metrics.DeviceInfo.WithLabelValues(caps.Backend, caps.Vendor, caps.Device).Set(1)
	for _, f := range gpu.OptionalFeatures {
		v := 0.0
		if caps.Has(f) {
			v = 1
		}
		metrics.DeviceFeature.WithLabelValues(string(f)).Set(v)
	}
	return h, nil
}

// NewRunner applies the bench section of the configuration.
func NewRunner(cfg *config.Config, h *gpu.Handle, logger *zap.Logger) *bench.Runner {
	return bench.NewRunner(h, bench.RunnerOptions{
		Seed:                   cfg.Bench.Seed,
		PreferDeviceTimestamps: cfg.PreferDeviceTimestamps(),
		SpotCheck:              cfg.Bench.SpotCheck,
		Epsilon:                cfg.Bench.Epsilon,
	}, logger)
}

// LoadModelBackends reads model_backend.yaml. A missing file only disables
// end-to-end benchmarks.
func LoadModelBackends(cfg *config.Config, home Home, logger *zap.Logger) (*config.ModelBackendConfig, error) {
	path := cfg.ResolveModelBackendPath(string(home))
	backends, err := config.LoadModelBackendConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("No model backend config, end-to-end benchmarks are disabled", zap.String("path", path))
		return &config.ModelBackendConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded model backends", zap.String("path", path), zap.Strings("models", backends.Refs()))
	return backends, nil
}

func newHandle(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*gpu.Handle, error) {
	h, err := OpenDevice(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return h.Release()
		},
	})
	return h, nil
}

func newServer(cfg *config.Config, runner *bench.Runner, backends *config.ModelBackendConfig, logger *zap.Logger) *server.Server {
	return server.New(runner, server.Options{
		Trials:   cfg.Bench.Trials,
		Backends: backends,
		Runtimes: runtimes.Options{Logger: logger},
	}, logger)
}

// newListener binds the listen address before the HTTP server starts.
func newListener(lc fx.Lifecycle, cfg *config.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				return err
			}
			return nil
		},
	})
	return ln, nil
}

func newHTTPServer(lc fx.Lifecycle, cfg *config.Config, srv *server.Server, ln net.Listener, logger *zap.Logger) *http.Server {
	httpServer := &http.Server{Handler: srv.Handler()}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("Starting server", zap.String("address", ln.Addr().String()))
			go func() {
				if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			logger.Info("Stopping server")
			return httpServer.Shutdown(ctx)
		},
	})
	return httpServer
}

// Module wires the serve process: device, runner, model backends and the HTTP
// server. The device is released when the app stops.
func Module(cfg *config.Config, home string, logger *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, Home(home), logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Provide(
			newHandle,
			NewRunner,
			LoadModelBackends,
			newServer,
			newListener,
			newHTTPServer,
		),
		fx.Invoke(func(*http.Server) {}),
	)
}
