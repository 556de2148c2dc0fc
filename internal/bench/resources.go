package bench

import (
	"context"
	"fmt"

	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats/scalar"
)

// BuildOptions tunes Build
type BuildOptions struct {
	// Seed drives the random input fills; zero means DefaultSeed.
	Seed   uint64
	Logger *zap.Logger
}

// Resources is everything one benchmark run dispatches: buffers, the compiled
// pipeline and the bind group. It belongs to a single run and must be released.
type Resources struct {
	Descriptor KernelDescriptor
	Program    kernels.Program
	Grid       gpu.Grid

	device    gpu.Device
	pipeline  gpu.Pipeline
	bindGroup gpu.BindGroup
	buffers   []gpu.Buffer
	output    int
	inputs    map[int][]float32
	logger    *zap.Logger
	released  bool
}

// Build validates the descriptor against the negotiated capabilities, then
// allocates and uploads inputs, compiles the program and binds every slot in the
// order bindingOrder documents. Anything allocated before a failure is released.
func Build(ctx context.Context, h *gpu.Handle, d KernelDescriptor, opts BuildOptions) (_ *Resources, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = DefaultSeed
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	caps := h.Capabilities()
	if d.Precision == kernels.F16 && !caps.Has(gpu.FeatureShaderF16) {
		return nil, fmt.Errorf("%w: %s/%s needs %s, which %s does not offer",
			gpu.ErrUnsupportedPrecision, d.Op, d.Precision, gpu.FeatureShaderF16, caps.Device)
	}
	if err := checkLimits(d, caps.Limits); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prog, err := kernels.Lookup(d.Op, d.Precision)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	grid := DispatchGrid(d, prog)
	if err := checkGrid(grid, caps.Limits); err != nil {
		return nil, err
	}
	dev, err := h.Device()
	if err != nil {
		return nil, err
	}

	r := &Resources{
		Descriptor: d,
		Program:    prog,
		Grid:       grid,
		device:     dev,
		inputs:     make(map[int][]float32),
		output:     -1,
		logger:     logger,
	}
	r.Descriptor.Shape = d.Shape.clone()
	if d.Tiles != nil {
		tiles := *d.Tiles
		r.Descriptor.Tiles = &tiles
	}
	defer func() {
		if err != nil {
			r.Release()
		}
	}()

	queue := dev.Queue()
	layout := bindingOrder[d.Op]
	entries := make([]gpu.BindGroupEntry, len(layout))
	for slot, entry := range layout {
		var (
			data  []byte
			usage gpu.BufferUsage
		)
		elements, _ := entry.elements(d.Shape)
		switch entry.role {
		case roleInput:
			values := syntheticFill(entry.fill, elements, seed, slot)
			data = gpu.EncodeFloats(values, d.Precision)
			usage = gpu.BufferUsageStorage | gpu.BufferUsageCopyDst
			r.inputs[slot] = gpu.RoundToPrecision(values, d.Precision)
		case roleOutput:
			usage = gpu.BufferUsageStorage | gpu.BufferUsageCopySrc | gpu.BufferUsageCopyDst
			r.output = slot
		case roleDims:
			data = gpu.EncodeUint32s(entry.dims(d), 16)
			usage = gpu.BufferUsageUniform | gpu.BufferUsageCopyDst
		case roleScalar:
			data = make([]byte, 16)
			gpu.PutFloats(data, entry.scalars(d), d.Precision)
			usage = gpu.BufferUsageUniform | gpu.BufferUsageCopyDst
		}

		size := uint64(len(data))
		if entry.role == roleOutput {
			size = gpu.FloatBytes(elements, d.Precision)
		}
		buf, err := dev.CreateBuffer(gpu.BufferDescriptor{
			Label: fmt.Sprintf("%s.%s", prog.Name, entry.name),
			Size:  size,
			Usage: usage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to allocate %s buffer: %w", entry.name, err)
		}
		r.buffers = append(r.buffers, buf)
		if data != nil {
			if err := queue.WriteBuffer(buf, 0, data); err != nil {
				return nil, fmt.Errorf("failed to upload %s: %w", entry.name, err)
			}
		}
		entries[slot] = gpu.BindGroupEntry{Binding: uint32(slot), Buffer: buf}
	}

	var constants map[string]uint32
	if d.Op == kernels.OpMatmul {
		constants = d.tiles().constants()
	}
	r.pipeline, err = dev.CreateComputePipeline(gpu.ComputePipelineDescriptor{
		Label:     prog.Name,
		Program:   prog,
		Constants: constants,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", prog.Name, err)
	}
	r.bindGroup, err = dev.CreateBindGroup(gpu.BindGroupDescriptor{
		Label:    prog.Name,
		Pipeline: r.pipeline,
		Entries:  entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", prog.Name, err)
	}

	logger.Debug("Resources built",
		zap.String("program", prog.Name),
		zap.String("shape", d.Shape.Format(d.Op)),
		zap.Stringer("grid", grid),
		zap.Int("buffers", len(r.buffers)))
	return r, nil
}

// Device is the device the resources were allocated on.
func (r *Resources) Device() gpu.Device {
	return r.device
}

// record appends one dispatch of the program to a pass.
func (r *Resources) record(pass *gpu.ComputePassEncoder) {
	pass.SetPipeline(r.pipeline)
	pass.SetBindGroup(0, r.bindGroup)
	pass.DispatchWorkgroups(r.Grid.X, r.Grid.Y, r.Grid.Z)
}

// encode builds a command buffer holding a single invocation.
func (r *Resources) encode(label string) (*gpu.CommandBuffer, error) {
	enc := gpu.NewCommandEncoder(label)
	pass := enc.BeginComputePass(&gpu.ComputePassDescriptor{Label: r.Program.Name})
	r.record(pass)
	pass.End()
	return enc.Finish()
}

// SpotCheck reads the first output element back and compares it with the value
// computed on the host from the same inputs.
func (r *Resources) SpotCheck(ctx context.Context) (SpotCheck, error) {
	if r.released || r.output < 0 {
		return SpotCheck{}, fmt.Errorf("%w: resources released", gpu.ErrValidation)
	}
	width := uint64(r.Program.Precision.ByteWidth())
	size := gpu.AlignUp(width, 4)
	readback, err := r.device.CreateBuffer(gpu.BufferDescriptor{
		Label: r.Program.Name + ".check",
		Size:  size,
		Usage: gpu.BufferUsageMapRead | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return SpotCheck{}, err
	}
	defer readback.Destroy()

	enc := gpu.NewCommandEncoder("spot-check")
	enc.CopyBufferToBuffer(r.buffers[r.output], 0, readback, 0, size)
	cb, err := enc.Finish()
	if err != nil {
		return SpotCheck{}, err
	}
	if err := r.device.Queue().Submit(cb); err != nil {
		return SpotCheck{}, err
	}
	if err := readback.Map(ctx, gpu.MapModeRead); err != nil {
		return SpotCheck{}, err
	}
	data, err := readback.MappedRange(0, size)
	readback.Unmap()
	if err != nil {
		return SpotCheck{}, err
	}

	value := float64(gpu.DecodeFloats(data, 1, r.Program.Precision)[0])
	expected := expectedFirst(r.Descriptor, r.inputs)
	rel, abs := spotCheckTolerance(r.Program.Precision)
	check := SpotCheck{
		Value:    value,
		Expected: expected,
		OK:       scalar.EqualWithinAbsOrRel(value, expected, abs, rel),
	}
	if !check.OK {
		r.logger.Warn("Spot check mismatch",
			zap.String("program", r.Program.Name),
			zap.Float64("value", value),
			zap.Float64("expected", expected))
	}
	return check, nil
}

// Release destroys everything Build allocated. It is safe to call more than once.
func (r *Resources) Release() {
	if r.released {
		return
	}
	r.released = true
	if r.bindGroup != nil {
		r.bindGroup.Destroy()
	}
	if r.pipeline != nil {
		r.pipeline.Destroy()
	}
	for _, b := range r.buffers {
		b.Destroy()
	}
	r.buffers = nil
}
