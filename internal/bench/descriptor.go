package bench

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fxnlabs/gpubench/internal/kernels"
)

// Shape maps a dimension name to its size, e.g. {M, N, K} or {B, N}.
type Shape map[string]int

// Dim returns a dimension, zero when absent.
func (s Shape) Dim(name string) int {
	return s[name]
}

// Elements is the product of every dimension.
func (s Shape) Elements() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, v := range s {
		n *= v
	}
	return n
}

// Format renders the shape as "17×19×23" in the operation's dimension order.
func (s Shape) Format(op kernels.Op) string {
	names := Dims(op)
	if len(names) == 0 {
		for name := range s {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprint(s[name]))
	}
	return strings.Join(parts, "×")
}

func (s Shape) clone() Shape {
	out := make(Shape, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

var opDims = map[kernels.Op][]string{
	kernels.OpMatmul:            {"M", "N", "K"},
	kernels.OpGEMV:              {"M", "K"},
	kernels.OpLayerNorm:         {"B", "N"},
	kernels.OpSoftmax:           {"rows", "cols"},
	kernels.OpGELU:              {"elements"},
	kernels.OpAttentionScore:    {"seq", "dim"},
	kernels.OpEmbeddingPipeline: {"batch"},
	kernels.OpWholeModel:        {"batch"},
}

// Dims lists the dimension names an operation's shape must carry.
func Dims(op kernels.Op) []string {
	d := opDims[op]
	out := make([]string, len(d))
	copy(out, d)
	return out
}

// DefaultShape is the problem size used when a caller does not pass one.
func DefaultShape(op kernels.Op) Shape {
	switch op {
	case kernels.OpMatmul:
		return Shape{"M": 512, "N": 512, "K": 512}
	case kernels.OpGEMV:
		return Shape{"M": 4096, "K": 4096}
	case kernels.OpLayerNorm:
		return Shape{"B": 512, "N": 768}
	case kernels.OpSoftmax:
		return Shape{"rows": 512, "cols": 512}
	case kernels.OpGELU:
		return Shape{"elements": 1 << 20}
	case kernels.OpAttentionScore:
		return Shape{"seq": 256, "dim": 64}
	case kernels.OpEmbeddingPipeline, kernels.OpWholeModel:
		return Shape{"batch": 1}
	}
	return Shape{}
}

// TileConfig is the (TM, TN, TK) blocking of the matmul program.
type TileConfig struct {
	TM uint32 `json:"tm" yaml:"tm"`
	TN uint32 `json:"tn" yaml:"tn"`
	TK uint32 `json:"tk" yaml:"tk"`
}

// DefaultTiles is the blocking the matmul program is compiled with.
var DefaultTiles = TileConfig{TM: 16, TN: 16, TK: 16}

func (t TileConfig) String() string {
	return fmt.Sprintf("%d/%d/%d", t.TM, t.TN, t.TK)
}

func (t TileConfig) constants() map[string]uint32 {
	return map[string]uint32{"TM": t.TM, "TN": t.TN, "TK": t.TK}
}

// KernelDescriptor selects what to benchmark.
type KernelDescriptor struct {
	Op        kernels.Op
	Precision kernels.Precision
	Shape     Shape
	// Tiles applies to matmul only; nil means DefaultTiles.
	Tiles *TileConfig
	// Epsilon and Affine parameterize layernorm.
	Epsilon float32
	Affine  bool
}

// DefaultEpsilon is the layernorm epsilon used when a descriptor leaves it zero.
const DefaultEpsilon = 1e-5

// Validate checks the descriptor is well formed. It does not look at device
// capabilities.
func (d KernelDescriptor) Validate() error {
	if !d.Op.IsKernel() {
		return fmt.Errorf("%w: %q is not a kernel operation", ErrInvalidDescriptor, d.Op)
	}
	if d.Precision != kernels.F32 && d.Precision != kernels.F16 {
		return fmt.Errorf("%w: unknown precision %q", ErrInvalidDescriptor, d.Precision)
	}
	for _, name := range Dims(d.Op) {
		if d.Shape.Dim(name) <= 0 {
			return fmt.Errorf("%w: %s needs a positive %s, got %d", ErrInvalidDescriptor, d.Op, name, d.Shape.Dim(name))
		}
	}
	if d.Tiles != nil {
		if d.Op != kernels.OpMatmul {
			return fmt.Errorf("%w: tile sizes only apply to matmul", ErrInvalidDescriptor)
		}
		if d.Tiles.TM == 0 || d.Tiles.TN == 0 || d.Tiles.TK == 0 {
			return fmt.Errorf("%w: tile sizes must be positive, got %s", ErrInvalidDescriptor, d.Tiles)
		}
	}
	if d.Epsilon < 0 {
		return fmt.Errorf("%w: epsilon must not be negative", ErrInvalidDescriptor)
	}
	return nil
}

func (d KernelDescriptor) tiles() TileConfig {
	if d.Tiles != nil {
		return *d.Tiles
	}
	return DefaultTiles
}

func (d KernelDescriptor) epsilon() float32 {
	if d.Epsilon == 0 {
		return DefaultEpsilon
	}
	return d.Epsilon
}
