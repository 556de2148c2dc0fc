// Package kernels is the closed catalog of compute programs the benchmark engine can
// dispatch. Programs are selected by (operation, precision); each entry declares the
// binding layout the compiled program expects so resource builders and backends agree
// on slot order.
package kernels

import (
	"fmt"
	"sort"
	"strings"
)

// Op names a benchmarked operation.
type Op string

const (
	OpMatmul            Op = "matmul"
	OpGEMV              Op = "gemv"
	OpLayerNorm         Op = "layernorm"
	OpSoftmax           Op = "softmax"
	OpGELU              Op = "gelu"
	OpAttentionScore    Op = "qk_score"
	OpEmbeddingPipeline Op = "embedding_pipeline"
	OpWholeModel        Op = "whole_model"
)

var allOps = []Op{
	OpMatmul, OpGEMV, OpLayerNorm, OpSoftmax, OpGELU, OpAttentionScore,
	OpEmbeddingPipeline, OpWholeModel,
}

// Ops returns every known operation in declaration order.
func Ops() []Op {
	out := make([]Op, len(allOps))
	copy(out, allOps)
	return out
}

// ParseOp converts a user supplied name into an Op.
func ParseOp(s string) (Op, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, op := range allOps {
		if string(op) == name {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation: %q", s)
}

// IsKernel reports whether the operation is a single GPU program rather than an
// end-to-end path through an external runtime.
func (o Op) IsKernel() bool {
	switch o {
	case OpEmbeddingPipeline, OpWholeModel:
		return false
	}
	for _, op := range allOps {
		if op == o {
			return true
		}
	}
	return false
}

// Precision is the element type a program computes in.
type Precision string

const (
	F32 Precision = "f32"
	F16 Precision = "f16"
)

// ParsePrecision converts "f32"/"f16" (case-insensitive) into a Precision.
// An empty string selects F32.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "f32", "fp32", "float32":
		return F32, nil
	case "f16", "fp16", "float16":
		return F16, nil
	}
	return "", fmt.Errorf("unknown precision: %q", s)
}

// ByteWidth is the size of one element in bytes.
func (p Precision) ByteWidth() int {
	if p == F16 {
		return 2
	}
	return 4
}

// BindingKind is the resource class of a binding slot.
type BindingKind int

const (
	Storage BindingKind = iota
	ReadOnlyStorage
	Uniform
)

func (k BindingKind) String() string {
	switch k {
	case Storage:
		return "storage"
	case ReadOnlyStorage:
		return "read-only-storage"
	case Uniform:
		return "uniform"
	}
	return fmt.Sprintf("BindingKind(%d)", int(k))
}

// ElemType is how a backend interprets the bytes of a binding.
type ElemType int

const (
	// Float elements use the program precision.
	Float ElemType = iota
	Uint32
)

// Binding is one slot of a program's bind group 0.
type Binding struct {
	Slot uint32
	Name string
	Kind BindingKind
	Elem ElemType
}

// Program describes one compiled kernel variant.
type Program struct {
	Name          string
	Op            Op
	Precision     Precision
	EntryPoint    string
	WorkgroupSize [3]uint32
	// Constants are the pipeline-overridable constants with their defaults.
	Constants map[string]uint32
	Layout    []Binding
}

// Invocations is the number of threads in one workgroup.
func (p Program) Invocations() uint32 {
	return p.WorkgroupSize[0] * p.WorkgroupSize[1] * p.WorkgroupSize[2]
}

// Binding returns the declared binding for a slot.
func (p Program) Binding(slot uint32) (Binding, bool) {
	for _, b := range p.Layout {
		if b.Slot == slot {
			return b, true
		}
	}
	return Binding{}, false
}

type key struct {
	op        Op
	precision Precision
}

var catalog = map[key]Program{}

func register(op Op, wg [3]uint32, constants map[string]uint32, layout ...Binding) {
	for i := range layout {
		layout[i].Slot = uint32(i)
	}
	for _, p := range []Precision{F32, F16} {
		l := make([]Binding, len(layout))
		copy(l, layout)
		catalog[key{op, p}] = Program{
			Name:          fmt.Sprintf("%s_%s", op, p),
			Op:            op,
			Precision:     p,
			EntryPoint:    "main",
			WorkgroupSize: wg,
			Constants:     constants,
			Layout:        l,
		}
	}
}

func init() {
	register(OpMatmul, [3]uint32{16, 16, 1}, map[string]uint32{"TM": 16, "TN": 16, "TK": 16},
		Binding{Name: "a", Kind: ReadOnlyStorage},
		Binding{Name: "b", Kind: ReadOnlyStorage},
		Binding{Name: "c", Kind: Storage},
		Binding{Name: "dims", Kind: Uniform, Elem: Uint32},
	)
	register(OpGEMV, [3]uint32{64, 1, 1}, nil,
		Binding{Name: "a", Kind: ReadOnlyStorage},
		Binding{Name: "x", Kind: ReadOnlyStorage},
		Binding{Name: "y", Kind: Storage},
		Binding{Name: "dims", Kind: Uniform, Elem: Uint32},
	)
	register(OpLayerNorm, [3]uint32{256, 1, 1}, nil,
		Binding{Name: "input", Kind: ReadOnlyStorage},
		Binding{Name: "output", Kind: Storage},
		Binding{Name: "dims", Kind: Uniform, Elem: Uint32},
		Binding{Name: "eps", Kind: Uniform},
	)
	register(OpSoftmax, [3]uint32{256, 1, 1}, nil,
		Binding{Name: "input", Kind: ReadOnlyStorage},
		Binding{Name: "output", Kind: Storage},
		Binding{Name: "dims", Kind: Uniform, Elem: Uint32},
	)
	register(OpGELU, [3]uint32{256, 1, 1}, nil,
		Binding{Name: "input", Kind: ReadOnlyStorage},
		Binding{Name: "output", Kind: Storage},
		Binding{Name: "dims", Kind: Uniform, Elem: Uint32},
	)
	register(OpAttentionScore, [3]uint32{16, 16, 1}, nil,
		Binding{Name: "q", Kind: ReadOnlyStorage},
		Binding{Name: "k", Kind: ReadOnlyStorage},
		Binding{Name: "scores", Kind: Storage},
		Binding{Name: "dims", Kind: Uniform, Elem: Uint32},
	)
}

// Lookup returns the program variant for an operation at a precision.
func Lookup(op Op, precision Precision) (Program, error) {
	p, ok := catalog[key{op, precision}]
	if !ok {
		return Program{}, fmt.Errorf("no kernel program for %s/%s", op, precision)
	}
	return p.clone(), nil
}

func (p Program) clone() Program {
	layout := make([]Binding, len(p.Layout))
	copy(layout, p.Layout)
	p.Layout = layout
	if p.Constants != nil {
		constants := make(map[string]uint32, len(p.Constants))
		for k, v := range p.Constants {
			constants[k] = v
		}
		p.Constants = constants
	}
	return p
}

// All lists every program sorted by name.
func All() []Program {
	out := make([]Program, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
