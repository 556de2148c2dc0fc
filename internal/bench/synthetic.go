package bench

import (
	"math"
	"math/rand/v2"

	"github.com/fxnlabs/gpubench/internal/kernels"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultSeed seeds the random input fills.
const DefaultSeed uint64 = 0x9e3779b97f4a7c15

// syntheticFill produces deterministic input data. Random fills are uniform in [0, 1)
// and depend only on the seed and the slot.
func syntheticFill(kind fillKind, n int, seed uint64, slot int) []float32 {
	out := make([]float32, n)
	if kind == fillOnes {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	r := rand.New(rand.NewPCG(seed, uint64(slot)))
	for i := range out {
		out[i] = r.Float32()
	}
	return out
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// expectedFirst computes the first output element on the host from the uploaded
// inputs. inputs holds the values per slot exactly as the device sees them.
func expectedFirst(d KernelDescriptor, inputs map[int][]float32) float64 {
	s := d.Shape
	switch d.Op {
	case kernels.OpMatmul:
		K, N := s.Dim("K"), s.Dim("N")
		a, b := inputs[0], inputs[1]
		col := make([]float64, K)
		for k := range col {
			col[k] = float64(b[k*N])
		}
		return floats.Dot(toFloat64s(a[:K]), col)
	case kernels.OpGEMV:
		K := s.Dim("K")
		return floats.Dot(toFloat64s(inputs[0][:K]), toFloat64s(inputs[1][:K]))
	case kernels.OpLayerNorm:
		row := toFloat64s(inputs[0][:s.Dim("N")])
		mean, variance := stat.PopMeanVariance(row, nil)
		return (row[0] - mean) / math.Sqrt(variance+float64(d.epsilon()))
	case kernels.OpSoftmax:
		row := toFloat64s(inputs[0][:s.Dim("cols")])
		peak := floats.Max(row)
		var sum float64
		for _, v := range row {
			sum += math.Exp(v - peak)
		}
		return math.Exp(row[0]-peak) / sum
	case kernels.OpGELU:
		return gelu(float64(inputs[0][0]))
	case kernels.OpAttentionScore:
		D := s.Dim("dim")
		return floats.Dot(toFloat64s(inputs[0][:D]), toFloat64s(inputs[1][:D])) / math.Sqrt(float64(D))
	}
	return math.NaN()
}

// gelu is the tanh approximation the gelu programs implement.
func gelu(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
}

// spotCheckTolerance is the (relative, absolute) agreement required at a precision.
func spotCheckTolerance(p kernels.Precision) (rel, abs float64) {
	if p == kernels.F16 {
		return 1e-2, 1e-2
	}
	return 1e-3, 1e-4
}
