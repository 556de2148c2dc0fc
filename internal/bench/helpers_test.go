package bench

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/gpu/software"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var allFeatures = []gpu.Feature{gpu.FeatureShaderF16, gpu.FeatureTimestampQuery}

// countingBackend wraps the software backend so tests can see how many buffers
// were allocated and how many command buffers were submitted.
type countingBackend struct {
	*software.Backend
	buffers atomic.Int64
	device  *software.Device

	mu        sync.Mutex
	allocated []gpu.Buffer
	// failPipeline makes pipeline creation fail after every buffer was allocated.
	failPipeline bool
}

// created returns every buffer allocated so far.
func (b *countingBackend) created() []gpu.Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]gpu.Buffer(nil), b.allocated...)
}

func (b *countingBackend) RequestAdapter(ctx context.Context, pref gpu.PowerPreference) (gpu.Adapter, error) {
	a, err := b.Backend.RequestAdapter(ctx, pref)
	if err != nil || a == nil {
		return a, err
	}
	return &countingAdapter{Adapter: a, backend: b}, nil
}

type countingAdapter struct {
	gpu.Adapter
	backend *countingBackend
}

func (a *countingAdapter) RequestDevice(ctx context.Context, desc gpu.DeviceDescriptor) (gpu.Device, error) {
	dev, err := a.Adapter.RequestDevice(ctx, desc)
	if err != nil {
		return nil, err
	}
	a.backend.device = dev.(*software.Device)
	return &countingDevice{Device: dev, backend: a.backend}, nil
}

type countingDevice struct {
	gpu.Device
	backend *countingBackend
}

func (d *countingDevice) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	d.backend.buffers.Add(1)
	buf, err := d.Device.CreateBuffer(desc)
	if err == nil {
		d.backend.mu.Lock()
		d.backend.allocated = append(d.backend.allocated, buf)
		d.backend.mu.Unlock()
	}
	return buf, err
}

func (d *countingDevice) CreateComputePipeline(desc gpu.ComputePipelineDescriptor) (gpu.Pipeline, error) {
	if d.backend.failPipeline {
		return nil, errors.New("pipeline creation failed")
	}
	return d.Device.CreateComputePipeline(desc)
}

// newHandle negotiates a software device offering features. A nil list offers
// both shader-f16 and timestamp queries.
func newHandle(t *testing.T, features ...gpu.Feature) (*gpu.Handle, *countingBackend) {
	t.Helper()
	if features == nil {
		features = allFeatures
	}
	b := &countingBackend{Backend: software.New(software.Options{Features: features, Workers: 4}, zap.NewNop())}
	h, err := gpu.Negotiate(context.Background(), b, gpu.NegotiateOptions{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Release() })
	return h, b
}
