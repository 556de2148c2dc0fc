package bench

import (
	"context"
	"math"
	"testing"

	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var smallShapes = map[kernels.Op]Shape{
	kernels.OpMatmul:         {"M": 17, "N": 19, "K": 23},
	kernels.OpGEMV:           {"M": 33, "K": 40},
	kernels.OpLayerNorm:      {"B": 3, "N": 64},
	kernels.OpSoftmax:        {"rows": 5, "cols": 37},
	kernels.OpGELU:           {"elements": 300},
	kernels.OpAttentionScore: {"seq": 20, "dim": 16},
}

func TestBuild_SpotCheckEveryKernel(t *testing.T) {
	h, _ := newHandle(t)

	for _, precision := range []kernels.Precision{kernels.F32, kernels.F16} {
		for op, shape := range smallShapes {
			t.Run(string(op)+"_"+string(precision), func(t *testing.T) {
				d := KernelDescriptor{Op: op, Precision: precision, Shape: shape}
				r, err := Build(context.Background(), h, d, BuildOptions{Logger: zap.NewNop()})
				require.NoError(t, err)
				defer r.Release()

				require.NoError(t, warmUp(context.Background(), r))
				check, err := r.SpotCheck(context.Background())
				require.NoError(t, err)
				assert.True(t, check.OK, "got %v, expected %v", check.Value, check.Expected)
			})
		}
	}
}

func TestBuild_MatmulOnesHaveClosedForm(t *testing.T) {
	h, _ := newHandle(t)

	for _, tiles := range TileCandidates {
		t.Run(tiles.String(), func(t *testing.T) {
			d := KernelDescriptor{Op: kernels.OpMatmul, Precision: kernels.F32, Shape: Shape{"M": 17, "N": 19, "K": 23}, Tiles: &tiles}
			r, err := Build(context.Background(), h, d, BuildOptions{})
			require.NoError(t, err)
			defer r.Release()

			assert.Equal(t, DispatchGrid(d, r.Program), r.Grid)
			require.NoError(t, warmUp(context.Background(), r))
			check, err := r.SpotCheck(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 23.0, check.Expected)
			assert.InDelta(t, 23.0, check.Value, 1e-4)
		})
	}
}

func TestBuild_F16WithoutShaderF16(t *testing.T) {
	h, b := newHandle(t, gpu.FeatureTimestampQuery)
	before := b.device.Submissions()

	d := KernelDescriptor{Op: kernels.OpMatmul, Precision: kernels.F16, Shape: Shape{"M": 16, "N": 16, "K": 16}}
	r, err := Build(context.Background(), h, d, BuildOptions{})

	assert.Nil(t, r)
	assert.ErrorIs(t, err, gpu.ErrUnsupportedPrecision)
	assert.Zero(t, b.buffers.Load(), "no buffer may be allocated")
	assert.Equal(t, before, b.device.Submissions(), "nothing may be submitted")
}

func TestBuild_InvalidDescriptor(t *testing.T) {
	h, b := newHandle(t)

	testCases := []struct {
		name string
		d    KernelDescriptor
	}{
		{name: "zero dimension", d: KernelDescriptor{Op: kernels.OpGELU, Precision: kernels.F32, Shape: Shape{"elements": 0}}},
		{name: "runtime op", d: KernelDescriptor{Op: kernels.OpWholeModel, Precision: kernels.F32, Shape: Shape{"batch": 1}}},
		{name: "grid over the limit", d: KernelDescriptor{Op: kernels.OpGEMV, Precision: kernels.F32, Shape: Shape{"M": 70000, "K": 1}}},
		{name: "dimension over 32 bits", d: KernelDescriptor{Op: kernels.OpGEMV, Precision: kernels.F32, Shape: Shape{"M": 1<<32 + 1, "K": 1}}},
		{name: "element count overflows", d: KernelDescriptor{Op: kernels.OpMatmul, Precision: kernels.F32, Shape: Shape{"M": math.MaxUint32, "N": 1, "K": math.MaxUint32}}},
		{name: "f32 buffer over the limit", d: KernelDescriptor{Op: kernels.OpGELU, Precision: kernels.F32, Shape: Shape{"elements": 1 << 29}}},
		{name: "f16 buffer over the limit", d: KernelDescriptor{Op: kernels.OpSoftmax, Precision: kernels.F16, Shape: Shape{"rows": 1 << 15, "cols": 1 << 15}}},
		{name: "output over the limit", d: KernelDescriptor{Op: kernels.OpAttentionScore, Precision: kernels.F32, Shape: Shape{"seq": 1 << 15, "dim": 1}}},
		{name: "huge tiles", d: KernelDescriptor{Op: kernels.OpMatmul, Precision: kernels.F32, Shape: Shape{"M": 4, "N": 4, "K": 4}, Tiles: &TileConfig{TM: 1 << 31, TN: 1 << 31, TK: 16}}},
		{name: "tiles over invocation limit", d: KernelDescriptor{Op: kernels.OpMatmul, Precision: kernels.F32, Shape: Shape{"M": 64, "N": 64, "K": 4}, Tiles: &TileConfig{TM: 32, TN: 32, TK: 16}}},
		{name: "TK over workgroup width", d: KernelDescriptor{Op: kernels.OpMatmul, Precision: kernels.F32, Shape: Shape{"M": 4, "N": 4, "K": 4}, Tiles: &TileConfig{TM: 16, TN: 16, TK: 1024}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(context.Background(), h, tc.d, BuildOptions{})
			assert.ErrorIs(t, err, ErrInvalidDescriptor)
		})
	}
	assert.Zero(t, b.buffers.Load())
}

func TestBuild_CancelledContext(t *testing.T) {
	h, b := newHandle(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, h, KernelDescriptor{Op: kernels.OpGELU, Precision: kernels.F32, Shape: Shape{"elements": 4}}, BuildOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.buffers.Load())
}

func TestBuild_ReleasesOnFailure(t *testing.T) {
	h, b := newHandle(t)
	b.failPipeline = true

	_, err := Build(context.Background(), h, KernelDescriptor{Op: kernels.OpMatmul, Precision: kernels.F32, Shape: Shape{"M": 4, "N": 4, "K": 4}}, BuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile matmul_f32")

	created := b.created()
	require.Len(t, created, 4)
	dev, err := h.Device()
	require.NoError(t, err)
	for _, buf := range created {
		assert.ErrorIs(t, dev.Queue().WriteBuffer(buf, 0, make([]byte, 4)), gpu.ErrValidation, "buffer %s must be destroyed", buf.Label())
	}
}

func TestResources_Release(t *testing.T) {
	h, b := newHandle(t)

	r, err := Build(context.Background(), h, KernelDescriptor{Op: kernels.OpSoftmax, Precision: kernels.F32, Shape: Shape{"rows": 2, "cols": 8}}, BuildOptions{})
	require.NoError(t, err)
	assert.Len(t, b.created(), 3)

	r.Release()
	r.Release()

	_, err = r.SpotCheck(context.Background())
	assert.ErrorIs(t, err, gpu.ErrValidation)
}

func TestBuild_SeedIsDeterministic(t *testing.T) {
	h, _ := newHandle(t)
	d := KernelDescriptor{Op: kernels.OpGEMV, Precision: kernels.F32, Shape: Shape{"M": 8, "K": 8}}

	first, err := Build(context.Background(), h, d, BuildOptions{Seed: 7})
	require.NoError(t, err)
	defer first.Release()
	second, err := Build(context.Background(), h, d, BuildOptions{Seed: 7})
	require.NoError(t, err)
	defer second.Release()
	other, err := Build(context.Background(), h, d, BuildOptions{Seed: 8})
	require.NoError(t, err)
	defer other.Release()

	assert.Equal(t, first.inputs, second.inputs)
	assert.NotEqual(t, first.inputs[0], other.inputs[0])
}
