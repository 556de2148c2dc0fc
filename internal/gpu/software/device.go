package software

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"go.uber.org/zap"
)

// Device implements gpu.Device
type Device struct {
	label       string
	features    gpu.FeatureSet
	limits      gpu.Limits
	workers     int
	logger      *zap.Logger
	epoch       time.Time
	queue       *queue
	submissions atomic.Uint64
	destroyed   atomic.Bool
}

func newDevice(label string, features gpu.FeatureSet, limits gpu.Limits, workers int, logger *zap.Logger) *Device {
	d := &Device{
		label:    label,
		features: features,
		limits:   limits,
		workers:  workers,
		logger:   logger,
		epoch:    time.Now(),
	}
	d.queue = newQueue(d)
	return d
}

// Features implements gpu.Device
func (d *Device) Features() gpu.FeatureSet {
	return d.features
}

// Limits implements gpu.Device
func (d *Device) Limits() gpu.Limits {
	return d.limits
}

// Queue implements gpu.Device
func (d *Device) Queue() gpu.Queue {
	return d.queue
}

// Submissions counts command buffers accepted by the queue.
func (d *Device) Submissions() uint64 {
	return d.submissions.Load()
}

// Destroy implements gpu.Device
func (d *Device) Destroy() {
	if d.destroyed.Swap(true) {
		return
	}
	d.queue.close()
}

func (d *Device) alive() error {
	if d.destroyed.Load() {
		return fmt.Errorf("%w: device %q destroyed", gpu.ErrDeviceLost, d.label)
	}
	return nil
}

// timestamp is nanoseconds since the device was created.
func (d *Device) timestamp() uint64 {
	return uint64(time.Since(d.epoch).Nanoseconds())
}

// CreateBuffer implements gpu.Device
func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	switch {
	case desc.Size == 0:
		return nil, fmt.Errorf("%w: buffer %q has zero size", gpu.ErrValidation, desc.Label)
	case desc.Size > d.limits.MaxBufferSize:
		return nil, fmt.Errorf("%w: buffer %q of %d bytes exceeds limit %d", gpu.ErrValidation, desc.Label, desc.Size, d.limits.MaxBufferSize)
	case desc.Usage == 0:
		return nil, fmt.Errorf("%w: buffer %q has no usage", gpu.ErrValidation, desc.Label)
	case desc.Usage.Has(gpu.BufferUsageMapRead) && desc.Usage&^(gpu.BufferUsageMapRead|gpu.BufferUsageCopyDst) != 0:
		return nil, fmt.Errorf("%w: MapRead buffer %q may only be combined with CopyDst", gpu.ErrValidation, desc.Label)
	}
	return &buffer{
		dev:   d,
		label: desc.Label,
		usage: desc.Usage,
		data:  make([]byte, desc.Size),
	}, nil
}

// CreateComputePipeline implements gpu.Device
func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDescriptor) (gpu.Pipeline, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	prog := desc.Program
	kernel, ok := kernelImpls[prog.Op]
	if !ok || prog.Name == "" {
		return nil, fmt.Errorf("%w: no compiled program %q", gpu.ErrValidation, prog.Name)
	}
	if prog.Precision == kernels.F16 && !d.features.Has(gpu.FeatureShaderF16) {
		return nil, fmt.Errorf("%w: program %q needs %s", gpu.ErrUnsupportedFeature, prog.Name, gpu.FeatureShaderF16)
	}
	wg := prog.WorkgroupSize
	if wg[0] > d.limits.MaxWorkgroupSizeX || wg[1] > d.limits.MaxWorkgroupSizeY || wg[2] > d.limits.MaxWorkgroupSizeZ ||
		prog.Invocations() > d.limits.MaxInvocationsPerWorkgroup {
		return nil, fmt.Errorf("%w: program %q workgroup %v exceeds device limits", gpu.ErrValidation, prog.Name, wg)
	}

	constants := make(map[string]uint32, len(prog.Constants))
	for name, v := range prog.Constants {
		constants[name] = v
	}
	for name, v := range desc.Constants {
		if _, declared := prog.Constants[name]; !declared {
			return nil, fmt.Errorf("%w: program %q has no overridable constant %q", gpu.ErrValidation, prog.Name, name)
		}
		if v == 0 {
			return nil, fmt.Errorf("%w: constant %q must be positive", gpu.ErrValidation, name)
		}
		constants[name] = v
	}
	if prog.Op == kernels.OpMatmul {
		tm, tn, tk := constants["TM"], constants["TN"], constants["TK"]
		if tm > d.limits.MaxWorkgroupSizeY || tn > d.limits.MaxWorkgroupSizeX || tk > d.limits.MaxWorkgroupSizeX ||
			uint64(tm)*uint64(tn) > uint64(d.limits.MaxInvocationsPerWorkgroup) {
			return nil, fmt.Errorf("%w: program %q tiles %d/%d/%d exceed device limits", gpu.ErrValidation, prog.Name, tm, tn, tk)
		}
	}

	label := desc.Label
	if label == "" {
		label = prog.Name
	}
	return &pipeline{label: label, program: prog, constants: constants, kernel: kernel}, nil
}

// CreateBindGroup implements gpu.Device. Entries are checked against the pipeline
// layout when a dispatch using the group is submitted.
func (d *Device) CreateBindGroup(desc gpu.BindGroupDescriptor) (gpu.BindGroup, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if desc.Pipeline == nil {
		return nil, fmt.Errorf("%w: bind group %q without pipeline", gpu.ErrValidation, desc.Label)
	}
	entries := make([]gpu.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		if e.Buffer == nil {
			return nil, fmt.Errorf("%w: bind group %q entry %d has no buffer", gpu.ErrValidation, desc.Label, e.Binding)
		}
		if e.Size == 0 {
			e.Size = e.Buffer.Size() - e.Offset
		}
		if e.Offset+e.Size > e.Buffer.Size() {
			return nil, fmt.Errorf("%w: bind group %q entry %d out of bounds", gpu.ErrValidation, desc.Label, e.Binding)
		}
		entries[i] = e
	}
	return &bindGroup{label: desc.Label, entries: entries}, nil
}

// CreateQuerySet implements gpu.Device
func (d *Device) CreateQuerySet(desc gpu.QuerySetDescriptor) (gpu.QuerySet, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if desc.Type != gpu.QueryTypeTimestamp {
		return nil, fmt.Errorf("%w: unsupported query type %d", gpu.ErrValidation, desc.Type)
	}
	if !d.features.Has(gpu.FeatureTimestampQuery) {
		return nil, fmt.Errorf("%w: %s not enabled", gpu.ErrUnsupportedFeature, gpu.FeatureTimestampQuery)
	}
	if desc.Count == 0 || desc.Count > 4096 {
		return nil, fmt.Errorf("%w: query set count %d", gpu.ErrValidation, desc.Count)
	}
	return &querySet{typ: desc.Type, values: make([]uint64, desc.Count)}, nil
}

type buffer struct {
	dev       *Device
	label     string
	usage     gpu.BufferUsage
	data      []byte
	mu        sync.Mutex
	mapped    bool
	destroyed bool
}

func (b *buffer) Label() string          { return b.label }
func (b *buffer) Size() uint64           { return uint64(len(b.data)) }
func (b *buffer) Usage() gpu.BufferUsage { return b.usage }

func (b *buffer) Map(ctx context.Context, mode gpu.MapMode) error {
	want := gpu.BufferUsageMapRead
	if mode == gpu.MapModeWrite {
		want = gpu.BufferUsageMapWrite
	}
	if !b.usage.Has(want) {
		return fmt.Errorf("%w: buffer %q not mappable in mode %d", gpu.ErrValidation, b.label, mode)
	}
	b.mu.Lock()
	if b.destroyed || b.mapped {
		b.mu.Unlock()
		return fmt.Errorf("%w: buffer %q destroyed or already mapped", gpu.ErrValidation, b.label)
	}
	b.mu.Unlock()

	if err := b.dev.queue.idle(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: mapping %q: %v", gpu.ErrReadbackTimeout, b.label, err)
		}
		return err
	}

	b.mu.Lock()
	b.mapped = true
	b.mu.Unlock()
	return nil
}

func (b *buffer) MappedRange(offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.mapped {
		return nil, fmt.Errorf("%w: buffer %q is not mapped", gpu.ErrValidation, b.label)
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("%w: mapped range out of bounds", gpu.ErrValidation)
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

func (b *buffer) Unmap() {
	b.mu.Lock()
	b.mapped = false
	b.mu.Unlock()
}

func (b *buffer) isMapped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mapped
}

func (b *buffer) Destroy() {
	b.mu.Lock()
	b.destroyed = true
	b.mu.Unlock()
}

func (b *buffer) isDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

type pipeline struct {
	label     string
	program   kernels.Program
	constants map[string]uint32
	kernel    kernelFunc
}

func (p *pipeline) Label() string            { return p.label }
func (p *pipeline) Program() kernels.Program { return p.program }
func (p *pipeline) Destroy()                 {}

type bindGroup struct {
	label   string
	entries []gpu.BindGroupEntry
}

func (g *bindGroup) Label() string { return g.label }

func (g *bindGroup) Entries() []gpu.BindGroupEntry {
	out := make([]gpu.BindGroupEntry, len(g.entries))
	copy(out, g.entries)
	return out
}

func (g *bindGroup) Destroy() {}

type querySet struct {
	typ    gpu.QueryType
	values []uint64
}

func (q *querySet) Type() gpu.QueryType { return q.typ }
func (q *querySet) Count() uint32       { return uint32(len(q.values)) }
func (q *querySet) Destroy()            {}
