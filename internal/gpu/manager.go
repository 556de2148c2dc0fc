package gpu

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Capabilities is what negotiation settled on. It never changes after Negotiate returns.
type Capabilities struct {
	Backend         string          `json:"backend"`
	Vendor          string          `json:"vendor"`
	Architecture    string          `json:"architecture"`
	Device          string          `json:"device"`
	PowerPreference PowerPreference `json:"powerPreference"`
	Features        FeatureSet      `json:"features"`
	Limits          Limits          `json:"limits"`
}

// Has reports whether a feature was enabled on the device.
func (c Capabilities) Has(f Feature) bool {
	return c.Features.Has(f)
}

// NegotiateOptions tunes Negotiate
type NegotiateOptions struct {
	// PowerPreference is the first adapter preference tried. The default preference
	// is always tried as a fallback. Empty means high-performance.
	PowerPreference PowerPreference
	// DisabledFeatures are never requested even when the adapter offers them.
	DisabledFeatures []Feature
	Label            string
}

// Handle owns the negotiated device for the duration of a run. Other components
// borrow the device through it; Release ends the lifecycle.
type Handle struct {
	device   Device
	caps     Capabilities
	logger   *zap.Logger
	mu       sync.RWMutex
	released bool
}

// Negotiate discovers an adapter on backend, enables the optional features it
// supports and opens the device. Failures are fatal to the run and never retried.
func Negotiate(ctx context.Context, backend Backend, opts NegotiateOptions, logger *zap.Logger) (*Handle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrBackendUnavailable)
	}
	if !backend.IsAvailable() {
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, backend.Name())
	}

	adapter, pref, err := requestAdapter(ctx, backend, opts.PowerPreference, logger)
	if err != nil {
		return nil, err
	}

	disabled := make(map[Feature]bool, len(opts.DisabledFeatures))
	for _, f := range opts.DisabledFeatures {
		disabled[f] = true
	}
	var required []Feature
	for _, f := range OptionalFeatures {
		if disabled[f] {
			logger.Debug("Feature disabled by configuration", zap.String("feature", string(f)))
			continue
		}
		if adapter.HasFeature(f) {
			required = append(required, f)
		}
	}

	label := opts.Label
	if label == "" {
		label = "gpubench"
	}
	device, err := adapter.RequestDevice(ctx, DeviceDescriptor{Label: label, RequiredFeatures: required})
	if err != nil {
		return nil, fmt.Errorf("failed to request device from %s: %w", backend.Name(), err)
	}

	info := adapter.Info()
	caps := Capabilities{
		Backend:         backend.Name(),
		Vendor:          info.Vendor,
		Architecture:    info.Architecture,
		Device:          info.Device,
		PowerPreference: pref,
		Features:        device.Features(),
		Limits:          device.Limits(),
	}

	logger.Info("GPU device negotiated",
		zap.String("backend", caps.Backend),
		zap.String("vendor", caps.Vendor),
		zap.String("device", caps.Device),
		zap.String("power_preference", string(pref)),
		zap.Strings("features", caps.Features.Strings()))

	return &Handle{device: device, caps: caps, logger: logger}, nil
}

func requestAdapter(ctx context.Context, backend Backend, first PowerPreference, logger *zap.Logger) (Adapter, PowerPreference, error) {
	if first == "" {
		first = PowerPreferenceHighPerformance
	}
	prefs := []PowerPreference{first}
	if first != PowerPreferenceDefault {
		prefs = append(prefs, PowerPreferenceDefault)
	}
	for _, pref := range prefs {
		adapter, err := backend.RequestAdapter(ctx, pref)
		if err != nil {
			return nil, "", fmt.Errorf("failed to request %s adapter: %w", pref, err)
		}
		if adapter != nil {
			return adapter, pref, nil
		}
		logger.Debug("No adapter for power preference", zap.String("power_preference", string(pref)))
	}
	return nil, "", fmt.Errorf("%w on backend %s", ErrNoAdapter, backend.Name())
}

// Capabilities returns the negotiated capabilities.
func (h *Handle) Capabilities() Capabilities {
	return h.caps
}

// Device returns the borrowed device, or ErrDeviceReleased after Release.
func (h *Handle) Device() (Device, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return nil, ErrDeviceReleased
	}
	return h.device, nil
}

// Release destroys the device. It is safe to call more than once.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	h.device.Destroy()
	h.logger.Info("GPU device released", zap.String("backend", h.caps.Backend))
	return nil
}
