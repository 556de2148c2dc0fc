package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/fxnlabs/gpubench/internal/gpu"
)

// TimingSource measures one invocation of a set of resources. A run picks one source
// up front and uses it for every trial.
type TimingSource interface {
	Kind() TimingKind
	// Measure submits a single invocation, waits for it and returns its elapsed
	// time in milliseconds.
	Measure(ctx context.Context, r *Resources) (float64, error)
	// Release frees anything the source allocated on the device.
	Release()
}

// SelectTimingSource returns the device timestamp source when the device supports
// timestamp queries and they were asked for, else the host clock.
func SelectTimingSource(dev gpu.Device, preferDevice bool) (TimingSource, error) {
	if !preferDevice || !dev.Features().Has(gpu.FeatureTimestampQuery) {
		return hostClock{}, nil
	}
	return newDeviceTimestamps(dev)
}

type hostClock struct{}

func (hostClock) Kind() TimingKind { return HostClock }
func (hostClock) Release()         {}

// Measure times submission through completion acknowledgement. The wait is not
// abandoned when ctx is cancelled so the trial is never left in flight.
func (hostClock) Measure(ctx context.Context, r *Resources) (float64, error) {
	cb, err := r.encode("trial")
	if err != nil {
		return 0, err
	}
	queue := r.device.Queue()
	start := time.Now()
	if err := queue.Submit(cb); err != nil {
		return 0, err
	}
	if err := queue.OnSubmittedWorkDone(context.WithoutCancel(ctx)); err != nil {
		return 0, err
	}
	return float64(time.Since(start).Nanoseconds()) / 1e6, nil
}

// deviceTimestamps records begin and end of pass timestamps into a two entry query
// set, resolves them and copies them to a host-mappable buffer.
type deviceTimestamps struct {
	querySet gpu.QuerySet
	resolve  gpu.Buffer
	readback gpu.Buffer
}

func newDeviceTimestamps(dev gpu.Device) (_ *deviceTimestamps, err error) {
	ts := &deviceTimestamps{}
	defer func() {
		if err != nil {
			ts.Release()
		}
	}()
	if ts.querySet, err = dev.CreateQuerySet(gpu.QuerySetDescriptor{Label: "trial-timestamps", Type: gpu.QueryTypeTimestamp, Count: 2}); err != nil {
		return nil, err
	}
	if ts.resolve, err = dev.CreateBuffer(gpu.BufferDescriptor{
		Label: "trial-timestamps.resolve",
		Size:  16,
		Usage: gpu.BufferUsageQueryResolve | gpu.BufferUsageCopySrc,
	}); err != nil {
		return nil, err
	}
	if ts.readback, err = dev.CreateBuffer(gpu.BufferDescriptor{
		Label: "trial-timestamps.readback",
		Size:  16,
		Usage: gpu.BufferUsageMapRead | gpu.BufferUsageCopyDst,
	}); err != nil {
		return nil, err
	}
	return ts, nil
}

func (t *deviceTimestamps) Kind() TimingKind { return DeviceTimestamp }

func (t *deviceTimestamps) Measure(ctx context.Context, r *Resources) (float64, error) {
	enc := gpu.NewCommandEncoder("trial")
	pass := enc.BeginComputePass(&gpu.ComputePassDescriptor{
		Label:           r.Program.Name,
		TimestampWrites: &gpu.TimestampWrites{QuerySet: t.querySet, BeginningIndex: 0, EndIndex: 1},
	})
	r.record(pass)
	pass.End()
	enc.ResolveQuerySet(t.querySet, 0, 2, t.resolve, 0)
	enc.CopyBufferToBuffer(t.resolve, 0, t.readback, 0, 16)
	cb, err := enc.Finish()
	if err != nil {
		return 0, err
	}

	queue := r.device.Queue()
	if err := queue.Submit(cb); err != nil {
		return 0, err
	}
	if err := queue.OnSubmittedWorkDone(context.WithoutCancel(ctx)); err != nil {
		return 0, err
	}
	if err := t.readback.Map(ctx, gpu.MapModeRead); err != nil {
		return 0, err
	}
	data, err := t.readback.MappedRange(0, 16)
	t.readback.Unmap()
	if err != nil {
		return 0, err
	}
	ts := gpu.DecodeUint64s(data)
	if ts[1] < ts[0] {
		return 0, fmt.Errorf("device timestamps went backwards: %d then %d", ts[0], ts[1])
	}
	return float64(ts[1]-ts[0]) / 1e6, nil
}

func (t *deviceTimestamps) Release() {
	if t.querySet != nil {
		t.querySet.Destroy()
	}
	if t.resolve != nil {
		t.resolve.Destroy()
	}
	if t.readback != nil {
		t.readback.Destroy()
	}
}

// TimeTrials submits one untimed warm-up invocation, waits for it, then measures
// trials invocations one after another. The warm-up never appears in the result.
// Cancellation is honored between trials only.
func TimeTrials(ctx context.Context, r *Resources, trials int, src TimingSource) ([]TrialMeasurement, error) {
	if trials < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTrialCount, trials)
	}
	if err := warmUp(ctx, r); err != nil {
		return nil, fmt.Errorf("warm-up failed: %w", err)
	}

	out := make([]TrialMeasurement, 0, trials)
	for i := 0; i < trials; i++ {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("stopped after %d of %d trials: %w", i, trials, err)
		}
		ms, err := src.Measure(ctx, r)
		if err != nil {
			return out, fmt.Errorf("trial %d: %w", i+1, err)
		}
		out = append(out, TrialMeasurement{Ms: ms, Source: src.Kind()})
	}
	return out, nil
}

func warmUp(ctx context.Context, r *Resources) error {
	cb, err := r.encode("warm-up")
	if err != nil {
		return err
	}
	queue := r.device.Queue()
	if err := queue.Submit(cb); err != nil {
		return err
	}
	return queue.OnSubmittedWorkDone(context.WithoutCancel(ctx))
}
