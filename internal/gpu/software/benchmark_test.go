package software

import (
	"context"
	"fmt"
	"testing"

	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
)

func BenchmarkMatmul(b *testing.B) {
	ctx := context.Background()
	adapter, _ := New(Options{Features: []gpu.Feature{gpu.FeatureTimestampQuery}}, nil).RequestAdapter(ctx, gpu.PowerPreferenceHighPerformance)
	dev, err := adapter.RequestDevice(ctx, gpu.DeviceDescriptor{})
	if err != nil {
		b.Fatal(err)
	}
	defer dev.Destroy()

	prog, err := kernels.Lookup(kernels.OpMatmul, kernels.F32)
	if err != nil {
		b.Fatal(err)
	}
	pipeline, err := dev.CreateComputePipeline(gpu.ComputePipelineDescriptor{Program: prog})
	if err != nil {
		b.Fatal(err)
	}

	for _, size := range []int{64, 128, 256} {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			matrix := make([]float32, size*size)
			for i := range matrix {
				matrix[i] = float32(i%100) / 100.0
			}
			entries := make([]gpu.BindGroupEntry, 4)
			for slot := 0; slot < 3; slot++ {
				buf, err := dev.CreateBuffer(gpu.BufferDescriptor{Size: gpu.FloatBytes(size*size, kernels.F32), Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst})
				if err != nil {
					b.Fatal(err)
				}
				if err := dev.Queue().WriteBuffer(buf, 0, gpu.EncodeFloats(matrix, kernels.F32)); err != nil {
					b.Fatal(err)
				}
				entries[slot] = gpu.BindGroupEntry{Binding: uint32(slot), Buffer: buf}
			}
			dims, _ := dev.CreateBuffer(gpu.BufferDescriptor{Size: 16, Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst})
			n := uint32(size)
			if err := dev.Queue().WriteBuffer(dims, 0, gpu.EncodeUint32s([]uint32{n, n, n, 0}, 16)); err != nil {
				b.Fatal(err)
			}
			entries[3] = gpu.BindGroupEntry{Binding: 3, Buffer: dims}
			group, err := dev.CreateBindGroup(gpu.BindGroupDescriptor{Pipeline: pipeline, Entries: entries})
			if err != nil {
				b.Fatal(err)
			}

			tiles := (n + 15) / 16
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				enc := gpu.NewCommandEncoder("bench")
				pass := enc.BeginComputePass(nil)
				pass.SetPipeline(pipeline)
				pass.SetBindGroup(0, group)
				pass.DispatchWorkgroups(tiles, tiles, 1)
				pass.End()
				cb, err := enc.Finish()
				if err != nil {
					b.Fatal(err)
				}
				if err := dev.Queue().Submit(cb); err != nil {
					b.Fatal(err)
				}
				if err := dev.Queue().OnSubmittedWorkDone(ctx); err != nil {
					b.Fatal(err)
				}
			}

			flops := float64(2*size*size*size) * float64(b.N)
			b.ReportMetric(flops/b.Elapsed().Seconds()/1e9, "GFLOPS")
			b.ReportMetric(float64(size*size*4*3)/(1<<20), "MB")
		})
	}
}
