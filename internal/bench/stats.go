package bench

import (
	"fmt"
	"math"
	"sort"

	"github.com/fxnlabs/gpubench/internal/kernels"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes trial times in milliseconds.
type Stats struct {
	N    int     `json:"n"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Aggregate reduces samples to nearest-rank percentiles and the mean. The input is
// not modified.
func Aggregate(samples []float64) (Stats, error) {
	if len(samples) == 0 {
		return Stats{}, ErrNoSamples
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return Stats{
		N:    len(sorted),
		P50:  Percentile(sorted, 0.50),
		P95:  Percentile(sorted, 0.95),
		Mean: stat.Mean(sorted, nil),
		Min:  floats.Min(sorted),
		Max:  floats.Max(sorted),
	}, nil
}

// Percentile selects sorted[floor(p*(n-1))] without interpolation. sorted must be
// ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	idx := int(math.Floor(p * float64(n-1)))
	return sorted[max(0, min(n-1, idx))]
}

// Throughput is a normalized performance figure.
type Throughput struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

const (
	UnitGFLOPS      = "GFLOPS"
	UnitGBPerSecond = "GB/s"
	UnitItemsPerSec = "items/s"
)

func (t Throughput) String() string {
	return fmt.Sprintf("%.2f %s", t.Value, t.Unit)
}

// Flops is the floating point work of one invocation of a compute-bound operation.
func Flops(op kernels.Op, s Shape) float64 {
	switch op {
	case kernels.OpMatmul:
		return 2 * float64(s.Dim("M")) * float64(s.Dim("N")) * float64(s.Dim("K"))
	case kernels.OpAttentionScore:
		return 2 * float64(s.Dim("seq")) * float64(s.Dim("seq")) * float64(s.Dim("dim"))
	}
	return 0
}

// BytesMoved is the memory traffic of one invocation of a memory-bound operation.
func BytesMoved(op kernels.Op, s Shape, p kernels.Precision) float64 {
	w := float64(p.ByteWidth())
	switch op {
	case kernels.OpGEMV:
		m, k := float64(s.Dim("M")), float64(s.Dim("K"))
		return (m*k + k + m) * w
	case kernels.OpLayerNorm:
		return 5 * float64(s.Dim("B")) * float64(s.Dim("N")) * w
	case kernels.OpSoftmax:
		return 2 * float64(s.Dim("rows")) * float64(s.Dim("cols")) * w
	case kernels.OpGELU:
		return 2 * float64(s.Dim("elements")) * w
	}
	return 0
}

// ComputeThroughput derives throughput from the median latency. It depends only on
// its arguments.
func ComputeThroughput(op kernels.Op, s Shape, p kernels.Precision, p50Ms float64) Throughput {
	var t Throughput
	switch op {
	case kernels.OpMatmul, kernels.OpAttentionScore:
		t.Unit = UnitGFLOPS
		t.Value = Flops(op, s)
	case kernels.OpEmbeddingPipeline, kernels.OpWholeModel:
		t.Unit = UnitItemsPerSec
		if p50Ms > 0 {
			t.Value = float64(s.Dim("batch")) / (p50Ms / 1000)
		}
		return t
	default:
		t.Unit = UnitGBPerSecond
		t.Value = BytesMoved(op, s, p)
	}
	if p50Ms <= 0 {
		t.Value = 0
		return t
	}
	t.Value /= p50Ms * 1e6
	return t
}
