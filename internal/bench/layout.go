package bench

import (
	"math"
	"math/bits"

	"github.com/fxnlabs/gpubench/internal/kernels"
)

type slotRole int

const (
	roleInput slotRole = iota
	roleOutput
	roleDims
	roleScalar
)

type fillKind int

const (
	fillOnes fillKind = iota
	fillRandom
)

// slotSpec describes what the resource builder places in one binding slot.
type slotSpec struct {
	name string
	role slotRole
	// extent names the dimensions whose product is the float element count of
	// input and output slots.
	extent []string
	fill   fillKind
	// dims are the u32 values of a dims slot.
	dims func(d KernelDescriptor) []uint32
	// scalars are the kernel-precision values of a scalar slot.
	scalars func(d KernelDescriptor) []float32
}

func dim(name string) []string {
	return []string{name}
}

func product(a, b string) []string {
	return []string{a, b}
}

// elements is the slot's element count. ok is false when the product does not fit
// in an int.
func (e slotSpec) elements(s Shape) (n int, ok bool) {
	var total uint64 = 1
	for _, name := range e.extent {
		v := s.Dim(name)
		if v < 0 {
			return 0, false
		}
		hi, lo := bits.Mul64(total, uint64(v))
		if hi != 0 || lo > math.MaxInt {
			return 0, false
		}
		total = lo
	}
	return int(total), true
}

func u32s(d KernelDescriptor, names ...string) []uint32 {
	out := make([]uint32, len(names))
	for i, name := range names {
		out[i] = uint32(d.Shape.Dim(name))
	}
	return out
}

// bindingOrder is the single source of truth for how buffers are bound to each
// program. Position in the slice is the binding slot. Every compiled program in the
// kernel catalog declares the same order; the device rejects any other arrangement
// at dispatch time.
//
//	op        | 0          | 1          | 2                 | 3
//	----------+------------+------------+-------------------+------------------
//	matmul    | A  M×K  in | B  K×N  in | C  M×N  out       | dims u32 M,N,K,0
//	gemv      | A  M×K  in | x  K    in | y  M    out       | dims u32 M,K
//	layernorm | in B×N     | out B×N    | dims u32 B,N,aff  | eps (kernel prec)
//	softmax   | in R×C     | out R×C    | dims u32 rows,cols|
//	gelu      | in E       | out E      | dims u32 1,E      |
//	qk_score  | Q  S×D  in | K  S×D  in | scores S×S out    | dims u32 seq,dim
//
// Dims buffers are padded to 16 bytes. Matmul and GELU inputs are filled with ones
// so the first output element has a closed form; the rest use a seeded random fill.
var bindingOrder = map[kernels.Op][]slotSpec{
	kernels.OpMatmul: {
		{name: "a", role: roleInput, extent: product("M", "K"), fill: fillOnes},
		{name: "b", role: roleInput, extent: product("K", "N"), fill: fillOnes},
		{name: "c", role: roleOutput, extent: product("M", "N")},
		{name: "dims", role: roleDims, dims: func(d KernelDescriptor) []uint32 {
			return append(u32s(d, "M", "N", "K"), 0)
		}},
	},
	kernels.OpGEMV: {
		{name: "a", role: roleInput, extent: product("M", "K"), fill: fillRandom},
		{name: "x", role: roleInput, extent: dim("K"), fill: fillRandom},
		{name: "y", role: roleOutput, extent: dim("M")},
		{name: "dims", role: roleDims, dims: func(d KernelDescriptor) []uint32 { return u32s(d, "M", "K") }},
	},
	kernels.OpLayerNorm: {
		{name: "input", role: roleInput, extent: product("B", "N"), fill: fillRandom},
		{name: "output", role: roleOutput, extent: product("B", "N")},
		{name: "dims", role: roleDims, dims: func(d KernelDescriptor) []uint32 {
			affine := uint32(0)
			if d.Affine {
				affine = 1
			}
			return append(u32s(d, "B", "N"), affine)
		}},
		{name: "eps", role: roleScalar, scalars: func(d KernelDescriptor) []float32 { return []float32{d.epsilon()} }},
	},
	kernels.OpSoftmax: {
		{name: "input", role: roleInput, extent: product("rows", "cols"), fill: fillRandom},
		{name: "output", role: roleOutput, extent: product("rows", "cols")},
		{name: "dims", role: roleDims, dims: func(d KernelDescriptor) []uint32 { return u32s(d, "rows", "cols") }},
	},
	kernels.OpGELU: {
		{name: "input", role: roleInput, extent: dim("elements"), fill: fillOnes},
		{name: "output", role: roleOutput, extent: dim("elements")},
		{name: "dims", role: roleDims, dims: func(d KernelDescriptor) []uint32 {
			return append([]uint32{1}, u32s(d, "elements")...)
		}},
	},
	kernels.OpAttentionScore: {
		{name: "q", role: roleInput, extent: product("seq", "dim"), fill: fillRandom},
		{name: "k", role: roleInput, extent: product("seq", "dim"), fill: fillRandom},
		{name: "scores", role: roleOutput, extent: product("seq", "seq")},
		{name: "dims", role: roleDims, dims: func(d KernelDescriptor) []uint32 { return u32s(d, "seq", "dim") }},
	},
}

// kind is the binding kind a slot role must be declared with.
func (r slotRole) kind() kernels.BindingKind {
	switch r {
	case roleInput:
		return kernels.ReadOnlyStorage
	case roleOutput:
		return kernels.Storage
	}
	return kernels.Uniform
}
