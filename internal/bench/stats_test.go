package bench

import (
	"testing"

	"github.com/fxnlabs/gpubench/internal/kernels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	testCases := []struct {
		name    string
		samples []float64
		want    Stats
	}{
		{
			name:    "nearest rank without interpolation",
			samples: []float64{5, 1, 3, 2, 4},
			want:    Stats{N: 5, P50: 3, P95: 4, Mean: 3, Min: 1, Max: 5},
		},
		{
			name:    "single sample collapses",
			samples: []float64{7.25},
			want:    Stats{N: 1, P50: 7.25, P95: 7.25, Mean: 7.25, Min: 7.25, Max: 7.25},
		},
		{
			name:    "two samples",
			samples: []float64{2, 1},
			want:    Stats{N: 2, P50: 1, P95: 1, Mean: 1.5, Min: 1, Max: 2},
		},
		{
			name:    "twenty samples",
			samples: []float64{20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
			want:    Stats{N: 20, P50: 10, P95: 19, Mean: 10.5, Min: 1, Max: 20},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := append([]float64(nil), tc.samples...)
			got, err := Aggregate(tc.samples)
			require.NoError(t, err)
			assert.Equal(t, tc.want.N, got.N)
			assert.Equal(t, tc.want.P50, got.P50)
			assert.Equal(t, tc.want.P95, got.P95)
			assert.InDelta(t, tc.want.Mean, got.Mean, 1e-12)
			assert.Equal(t, tc.want.Min, got.Min)
			assert.Equal(t, tc.want.Max, got.Max)
			assert.LessOrEqual(t, got.P50, got.P95)
			assert.Equal(t, input, tc.samples, "input must not be reordered")
		})
	}
}

func TestAggregate_Empty(t *testing.T) {
	_, err := Aggregate(nil)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = Aggregate([]float64{})
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestAggregate_P50NeverExceedsP95(t *testing.T) {
	samples := make([]float64, 0, 64)
	for n := 1; n <= 64; n++ {
		samples = append(samples, float64((n*37)%23))
		s, err := Aggregate(samples)
		require.NoError(t, err)
		assert.LessOrEqual(t, s.P50, s.P95, "n=%d", n)
		assert.LessOrEqual(t, s.Min, s.P50, "n=%d", n)
		assert.LessOrEqual(t, s.P95, s.Max, "n=%d", n)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	testCases := []struct {
		name string
		p    float64
		want float64
	}{
		{name: "zero", p: 0, want: 1},
		{name: "median", p: 0.5, want: 3},
		{name: "p95", p: 0.95, want: 4},
		{name: "max", p: 1, want: 5},
		{name: "clamped above", p: 1.5, want: 5},
		{name: "clamped below", p: -1, want: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Percentile(sorted, tc.p))
		})
	}
}

func TestComputeThroughput(t *testing.T) {
	testCases := []struct {
		name      string
		op        kernels.Op
		shape     Shape
		precision kernels.Precision
		p50       float64
		want      Throughput
	}{
		{
			name:      "matmul GFLOPS",
			op:        kernels.OpMatmul,
			shape:     Shape{"M": 1000, "N": 1000, "K": 1000},
			precision: kernels.F32,
			p50:       2,
			want:      Throughput{Value: 1000, Unit: UnitGFLOPS},
		},
		{
			name:      "qk_score GFLOPS",
			op:        kernels.OpAttentionScore,
			shape:     Shape{"seq": 1000, "dim": 500},
			precision: kernels.F32,
			p50:       1,
			want:      Throughput{Value: 1000, Unit: UnitGFLOPS},
		},
		{
			name:      "gemv f32 bandwidth",
			op:        kernels.OpGEMV,
			shape:     Shape{"M": 1000, "K": 1000},
			precision: kernels.F32,
			p50:       1,
			want:      Throughput{Value: (1000*1000 + 1000 + 1000) * 4 / 1e6, Unit: UnitGBPerSecond},
		},
		{
			name:      "layernorm f16 bandwidth",
			op:        kernels.OpLayerNorm,
			shape:     Shape{"B": 100, "N": 1000},
			precision: kernels.F16,
			p50:       1,
			want:      Throughput{Value: 5 * 100 * 1000 * 2 / 1e6, Unit: UnitGBPerSecond},
		},
		{
			name:      "softmax bandwidth",
			op:        kernels.OpSoftmax,
			shape:     Shape{"rows": 1000, "cols": 1000},
			precision: kernels.F32,
			p50:       4,
			want:      Throughput{Value: 2 * 1e6 * 4 / 4e6, Unit: UnitGBPerSecond},
		},
		{
			name:      "gelu bandwidth",
			op:        kernels.OpGELU,
			shape:     Shape{"elements": 1 << 20},
			precision: kernels.F32,
			p50:       1,
			want:      Throughput{Value: 2 * (1 << 20) * 4 / 1e6, Unit: UnitGBPerSecond},
		},
		{
			name:      "embedding pipeline items per second",
			op:        kernels.OpEmbeddingPipeline,
			shape:     Shape{"batch": 8},
			precision: kernels.F32,
			p50:       40,
			want:      Throughput{Value: 200, Unit: UnitItemsPerSec},
		},
		{
			name:      "whole model items per second",
			op:        kernels.OpWholeModel,
			shape:     Shape{"batch": 1},
			precision: kernels.F32,
			p50:       4,
			want:      Throughput{Value: 250, Unit: UnitItemsPerSec},
		},
		{
			name:      "zero latency reports zero",
			op:        kernels.OpMatmul,
			shape:     Shape{"M": 16, "N": 16, "K": 16},
			precision: kernels.F32,
			p50:       0,
			want:      Throughput{Value: 0, Unit: UnitGFLOPS},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeThroughput(tc.op, tc.shape, tc.precision, tc.p50)
			assert.Equal(t, tc.want.Unit, got.Unit)
			assert.InDelta(t, tc.want.Value, got.Value, 1e-9)
		})
	}
}

func TestComputeThroughput_IsPure(t *testing.T) {
	shape := Shape{"M": 128, "N": 64, "K": 32}
	first := ComputeThroughput(kernels.OpMatmul, shape, kernels.F32, 1.5)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ComputeThroughput(kernels.OpMatmul, shape, kernels.F32, 1.5))
	}
	assert.Equal(t, Shape{"M": 128, "N": 64, "K": 32}, shape)
}

func TestThroughput_String(t *testing.T) {
	assert.Equal(t, "12.35 GFLOPS", Throughput{Value: 12.346, Unit: UnitGFLOPS}.String())
}
