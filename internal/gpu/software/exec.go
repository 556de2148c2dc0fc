package software

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// launch is the state one dispatch's workgroups share. Views are indexed by slot;
// floats holds Float bindings, uints holds Uint32 bindings.
type launch struct {
	program   kernels.Program
	constants map[string]uint32
	floats    [][]float32
	uints     [][]uint32
}

func (l *launch) constant(name string) int {
	return int(l.constants[name])
}

// kernelFunc runs a single workgroup.
type kernelFunc func(l *launch, x, y, z uint32)

func (d *Device) execute(cb *gpu.CommandBuffer) error {
	for _, cmd := range cb.Commands {
		switch c := cmd.(type) {
		case *gpu.ComputePass:
			if err := d.runPass(c); err != nil {
				return fmt.Errorf("command buffer %q: %w", cb.Label, err)
			}
		case *gpu.CopyBufferToBuffer:
			src, dst := c.Src.(*buffer), c.Dst.(*buffer)
			src.mu.Lock()
			chunk := make([]byte, c.Size)
			copy(chunk, src.data[c.SrcOffset:c.SrcOffset+c.Size])
			src.mu.Unlock()
			dst.mu.Lock()
			copy(dst.data[c.DstOffset:], chunk)
			dst.mu.Unlock()
		case *gpu.ResolveQuerySet:
			qs, dst := c.QuerySet.(*querySet), c.Dst.(*buffer)
			dst.mu.Lock()
			for i := uint32(0); i < c.QueryCount; i++ {
				off := c.DstOffset + uint64(i)*8
				binary.LittleEndian.PutUint64(dst.data[off:], qs.values[c.FirstQuery+i])
			}
			dst.mu.Unlock()
		}
	}
	return nil
}

func (d *Device) runPass(pass *gpu.ComputePass) error {
	var qs *querySet
	if pass.TimestampWrites != nil {
		qs = pass.TimestampWrites.QuerySet.(*querySet)
		qs.values[pass.TimestampWrites.BeginningIndex] = d.timestamp()
	}
	start := time.Now()
	for _, dispatch := range pass.Dispatches {
		if err := d.runDispatch(dispatch); err != nil {
			return err
		}
	}
	if qs != nil {
		end := d.timestamp()
		// The counter is monotonic but two reads may coincide on coarse clocks.
		if begin := qs.values[pass.TimestampWrites.BeginningIndex]; end <= begin {
			end = begin + 1
		}
		qs.values[pass.TimestampWrites.EndIndex] = end
	}
	d.logger.Debug("Compute pass finished",
		zap.String("pass", pass.Label),
		zap.Int("dispatches", len(pass.Dispatches)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (d *Device) runDispatch(dispatch gpu.Dispatch) error {
	p := dispatch.Pipeline.(*pipeline)
	g := dispatch.BindGroup.(*bindGroup)
	grid := dispatch.Grid
	if grid.Count() == 0 {
		return nil
	}

	l := &launch{
		program:   p.program,
		constants: p.constants,
		floats:    make([][]float32, len(p.program.Layout)),
		uints:     make([][]uint32, len(p.program.Layout)),
	}
	for _, e := range g.entries {
		decl, _ := p.program.Binding(e.Binding)
		b := e.Buffer.(*buffer)
		b.mu.Lock()
		raw := b.data[e.Offset : e.Offset+e.Size]
		if decl.Elem == kernels.Uint32 {
			l.uints[e.Binding] = gpu.DecodeUint32s(raw)
		} else {
			count := int(e.Size) / p.program.Precision.ByteWidth()
			l.floats[e.Binding] = gpu.DecodeFloats(raw, count, p.program.Precision)
		}
		b.mu.Unlock()
	}

	var eg errgroup.Group
	eg.SetLimit(d.workers)
	for z := uint32(0); z < grid.Z; z++ {
		for y := uint32(0); y < grid.Y; y++ {
			for x := uint32(0); x < grid.X; x++ {
				eg.Go(func() (err error) {
					defer func() {
						if r := recover(); r != nil {
							err = fmt.Errorf("%w: %s workgroup (%d,%d,%d) faulted: %v", gpu.ErrDeviceLost, p.program.Name, x, y, z, r)
						}
					}()
					p.kernel(l, x, y, z)
					return nil
				})
			}
		}
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, e := range g.entries {
		decl, _ := p.program.Binding(e.Binding)
		if decl.Kind != kernels.Storage || decl.Elem != kernels.Float {
			continue
		}
		b := e.Buffer.(*buffer)
		b.mu.Lock()
		gpu.PutFloats(b.data[e.Offset:e.Offset+e.Size], l.floats[e.Binding], p.program.Precision)
		b.mu.Unlock()
	}
	return nil
}
