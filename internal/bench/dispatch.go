package bench

import (
	"fmt"
	"math"

	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
)

// CeilDiv is the number of groups of size d needed to cover n. A trailing partial
// group counts as a whole one.
func CeilDiv(n, d int) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32((n + d - 1) / d)
}

// DispatchGrid is the workgroup grid covering the descriptor's whole problem.
func DispatchGrid(d KernelDescriptor, prog kernels.Program) gpu.Grid {
	s := d.Shape
	wg := prog.WorkgroupSize
	switch d.Op {
	case kernels.OpMatmul:
		t := d.tiles()
		return gpu.Grid{X: CeilDiv(s.Dim("N"), int(t.TN)), Y: CeilDiv(s.Dim("M"), int(t.TM)), Z: 1}
	case kernels.OpGEMV:
		return gpu.Grid{X: uint32(s.Dim("M")), Y: 1, Z: 1}
	case kernels.OpLayerNorm:
		return gpu.Grid{X: uint32(s.Dim("B")), Y: 1, Z: 1}
	case kernels.OpSoftmax:
		return gpu.Grid{X: uint32(s.Dim("rows")), Y: 1, Z: 1}
	case kernels.OpGELU:
		return gpu.Grid{X: CeilDiv(s.Dim("elements"), int(wg[0])), Y: 1, Z: 1}
	case kernels.OpAttentionScore:
		return gpu.Grid{X: CeilDiv(s.Dim("seq"), int(wg[0])), Y: CeilDiv(s.Dim("seq"), int(wg[1])), Z: 1}
	}
	return gpu.Grid{}
}

func checkGrid(g gpu.Grid, limits gpu.Limits) error {
	max := limits.MaxWorkgroupsPerDimension
	if max == 0 {
		return nil
	}
	if g.X > max || g.Y > max || g.Z > max {
		return fmt.Errorf("%w: dispatch %s exceeds the device limit of %d workgroups per dimension", ErrInvalidDescriptor, g, max)
	}
	return nil
}

// checkLimits rejects descriptors the device cannot hold. It runs before anything is
// allocated. A zero limit is unbounded.
func checkLimits(d KernelDescriptor, limits gpu.Limits) error {
	for _, name := range Dims(d.Op) {
		if v := d.Shape.Dim(name); uint64(v) > math.MaxUint32 {
			return fmt.Errorf("%w: %s %s=%d does not fit in 32 bits", ErrInvalidDescriptor, d.Op, name, v)
		}
	}
	width := uint64(d.Precision.ByteWidth())
	for _, entry := range bindingOrder[d.Op] {
		if entry.role != roleInput && entry.role != roleOutput {
			continue
		}
		n, ok := entry.elements(d.Shape)
		if !ok || uint64(n) > math.MaxUint64/width {
			return fmt.Errorf("%w: %s buffer of %s %s overflows", ErrInvalidDescriptor, entry.name, d.Op, d.Shape.Format(d.Op))
		}
		if size := uint64(n) * width; limits.MaxBufferSize > 0 && size > limits.MaxBufferSize {
			return fmt.Errorf("%w: %s buffer needs %d bytes, over the device limit of %d", ErrInvalidDescriptor, entry.name, size, limits.MaxBufferSize)
		}
	}
	if d.Op == kernels.OpMatmul {
		return checkTiles(d.tiles(), limits)
	}
	return nil
}

// checkTiles bounds a matmul blocking by the device's workgroup limits. One
// invocation computes one element of a TM×TN output tile.
func checkTiles(t TileConfig, limits gpu.Limits) error {
	if limits.MaxWorkgroupSizeX > 0 && t.TN > limits.MaxWorkgroupSizeX {
		return fmt.Errorf("%w: tile TN=%d exceeds the device limit of %d", ErrInvalidDescriptor, t.TN, limits.MaxWorkgroupSizeX)
	}
	if limits.MaxWorkgroupSizeY > 0 && t.TM > limits.MaxWorkgroupSizeY {
		return fmt.Errorf("%w: tile TM=%d exceeds the device limit of %d", ErrInvalidDescriptor, t.TM, limits.MaxWorkgroupSizeY)
	}
	if limits.MaxWorkgroupSizeX > 0 && t.TK > limits.MaxWorkgroupSizeX {
		return fmt.Errorf("%w: tile TK=%d exceeds the device limit of %d", ErrInvalidDescriptor, t.TK, limits.MaxWorkgroupSizeX)
	}
	if max := uint64(limits.MaxInvocationsPerWorkgroup); max > 0 && uint64(t.TM)*uint64(t.TN) > max {
		return fmt.Errorf("%w: tiles %s need %d invocations, over the device limit of %d",
			ErrInvalidDescriptor, t, uint64(t.TM)*uint64(t.TN), max)
	}
	return nil
}
