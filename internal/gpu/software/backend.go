// Package software is a reference GPU backend that executes the kernel catalog on the
// host CPU. It keeps real device semantics: an ordered queue drained by its own
// goroutine, deferred bind group validation at submit time, timestamp queries taken
// around each compute pass and workgroups executed in parallel.
package software

import (
	"context"
	"fmt"
	"runtime"

	"github.com/fxnlabs/gpubench/internal/gpu"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// Name is the registry name of this backend.
const Name = "software"

func init() {
	gpu.Register(Name, func(logger *zap.Logger) gpu.Backend {
		return New(Options{}, logger)
	})
}

// Options configures the software backend
type Options struct {
	// Features replaces host feature detection when non-nil.
	Features []gpu.Feature
	// Workers bounds how many workgroups run at once; zero means GOMAXPROCS.
	Workers int
	// Limits replaces DefaultLimits when non-nil.
	Limits *gpu.Limits
}

// DefaultLimits mirror the WebGPU baseline limits.
var DefaultLimits = gpu.Limits{
	MaxWorkgroupSizeX:          256,
	MaxWorkgroupSizeY:          256,
	MaxWorkgroupSizeZ:          64,
	MaxInvocationsPerWorkgroup: 256,
	MaxWorkgroupsPerDimension:  65535,
	MaxBufferSize:              1 << 30,
}

// Backend implements gpu.Backend on the host CPU
type Backend struct {
	opts   Options
	logger *zap.Logger
}

// New creates a software backend.
func New(opts Options, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{opts: opts, logger: logger.Named("software")}
}

// Name implements gpu.Backend
func (b *Backend) Name() string {
	return Name
}

// IsAvailable is always true; the host CPU is always present.
func (b *Backend) IsAvailable() bool {
	return true
}

// RequestAdapter returns the single host adapter for every power preference.
func (b *Backend) RequestAdapter(ctx context.Context, pref gpu.PowerPreference) (gpu.Adapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	features := b.opts.Features
	if features == nil {
		features = detectFeatures()
	}
	limits := DefaultLimits
	if b.opts.Limits != nil {
		limits = *b.opts.Limits
	}
	workers := b.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	b.logger.Debug("Adapter requested", zap.String("power_preference", string(pref)))
	return &Adapter{
		features: gpu.NewFeatureSet(features...),
		limits:   limits,
		workers:  workers,
		logger:   b.logger,
	}, nil
}

// Adapter implements gpu.Adapter
type Adapter struct {
	features gpu.FeatureSet
	limits   gpu.Limits
	workers  int
	logger   *zap.Logger
}

// Info implements gpu.Adapter
func (a *Adapter) Info() gpu.AdapterInfo {
	return gpu.AdapterInfo{
		Vendor:       Name,
		Architecture: runtime.GOARCH,
		Device:       fmt.Sprintf("CPU (%s, %d threads)", runtime.GOARCH, runtime.NumCPU()),
		Description:  "reference kernels executed on the host",
	}
}

// HasFeature implements gpu.Adapter
func (a *Adapter) HasFeature(f gpu.Feature) bool {
	return a.features.Has(f)
}

// Limits implements gpu.Adapter
func (a *Adapter) Limits() gpu.Limits {
	return a.limits
}

// RequestDevice implements gpu.Adapter
func (a *Adapter) RequestDevice(ctx context.Context, desc gpu.DeviceDescriptor) (gpu.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, f := range desc.RequiredFeatures {
		if !a.features.Has(f) {
			return nil, fmt.Errorf("%w: %s", gpu.ErrUnsupportedFeature, f)
		}
	}
	return newDevice(desc.Label, gpu.NewFeatureSet(desc.RequiredFeatures...), a.limits, a.workers, a.logger), nil
}

func detectFeatures() []gpu.Feature {
	features := []gpu.Feature{gpu.FeatureTimestampQuery}
	if hostHasHalfPrecision() {
		features = append(features, gpu.FeatureShaderF16)
	}
	return features
}

// hostHasHalfPrecision reports hardware half-precision conversion support. Every x86
// CPU with AVX2 and FMA also ships F16C.
func hostHasHalfPrecision() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAVX2 && cpu.X86.HasFMA
	case "arm64":
		return cpu.ARM64.HasFPHP && cpu.ARM64.HasASIMDHP
	}
	return false
}
