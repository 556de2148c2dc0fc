package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxnlabs/gpubench/internal/config"
	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"github.com/fxnlabs/gpubench/internal/metrics"
	"github.com/fxnlabs/gpubench/internal/runtimes"
	"go.uber.org/zap"
)

// ErrNoDevice is returned when a kernel benchmark is asked of a runner that was
// created without a device handle.
var ErrNoDevice = errors.New("runner has no gpu device")

type RunnerOptions struct {
	// Seed drives the random input fills; zero means DefaultSeed.
	Seed uint64
	// PreferDeviceTimestamps selects device timestamps whenever the device offers them.
	PreferDeviceTimestamps bool
	// SpotCheck reads back the first output element after every kernel run.
	SpotCheck bool
	// Epsilon is the layernorm epsilon for descriptors that leave it zero.
	Epsilon float32
}

// Runner executes benchmarks on one negotiated device. Invocations are serialized
// so the device only ever has one owner, while callers such as HTTP handlers may
// call it concurrently.
type Runner struct {
	handle *gpu.Handle
	opts   RunnerOptions
	logger *zap.Logger
	mu     sync.Mutex
}

// NewRunner creates a runner. A nil handle restricts it to runtime benchmarks.
func NewRunner(h *gpu.Handle, opts RunnerOptions, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{handle: h, opts: opts, logger: logger.Named("bench")}
}

// Capabilities returns the negotiated device capabilities, or false without a device.
func (r *Runner) Capabilities() (gpu.Capabilities, bool) {
	if r.handle == nil {
		return gpu.Capabilities{}, false
	}
	return r.handle.Capabilities(), true
}

// Run benchmarks one kernel descriptor: build, warm up, time trials, aggregate and
// optionally spot-check. Nothing partial is returned on failure.
func (r *Runner) Run(ctx context.Context, d KernelDescriptor, trials int) (BenchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx, d, trials)
}

// Autotune measures every matmul tile candidate for shape and ranks them.
func (r *Runner) Autotune(ctx context.Context, shape Shape, precision kernels.Precision, trials int) (TuneResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := NewAutotuner(r.run, r.logger).Tune(ctx, shape, precision, trials)
	if err != nil {
		return TuneResult{}, err
	}
	metrics.AutotuneCandidateP50.Reset()
	for _, c := range res.All {
		metrics.AutotuneCandidateP50.WithLabelValues(string(precision), c.Tiles.String()).Set(c.Stats.P50)
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, d KernelDescriptor, trials int) (result BenchResult, err error) {
	defer func() { r.record(d.Op, result, err) }()

	if r.handle == nil {
		return BenchResult{}, ErrNoDevice
	}
	if trials < 1 {
		return BenchResult{}, fmt.Errorf("%w: got %d", ErrInvalidTrialCount, trials)
	}
	if d.Op == kernels.OpLayerNorm && d.Epsilon == 0 {
		d.Epsilon = r.opts.Epsilon
	}

	res, err := Build(ctx, r.handle, d, BuildOptions{Seed: r.opts.Seed, Logger: r.logger})
	if err != nil {
		return BenchResult{}, err
	}
	defer res.Release()

	src, err := SelectTimingSource(res.Device(), r.opts.PreferDeviceTimestamps)
	if err != nil {
		return BenchResult{}, fmt.Errorf("failed to set up %s timing: %w", DeviceTimestamp, err)
	}
	defer src.Release()

	measured, err := TimeTrials(ctx, res, trials, src)
	if err != nil {
		return BenchResult{}, err
	}
	stats, err := Aggregate(samplesOf(measured))
	if err != nil {
		return BenchResult{}, err
	}

	caps := r.handle.Capabilities()
	result = BenchResult{
		Op:         d.Op,
		Backend:    caps.Backend,
		Vendor:     caps.Vendor,
		Precision:  d.Precision,
		Shape:      res.Descriptor.Shape.clone(),
		Timing:     src.Kind(),
		Trials:     measured,
		Stats:      stats,
		Throughput: ComputeThroughput(d.Op, d.Shape, d.Precision, stats.P50),
	}
	if d.Op == kernels.OpMatmul {
		tiles := d.tiles()
		result.Tiles = &tiles
	}
	if r.opts.SpotCheck {
		check, err := res.SpotCheck(ctx)
		if err != nil {
			return BenchResult{}, fmt.Errorf("spot check failed: %w", err)
		}
		result.Check = &check
	}

	r.logger.Info("Benchmark finished",
		zap.String("op", string(d.Op)),
		zap.String("precision", string(d.Precision)),
		zap.String("shape", d.Shape.Format(d.Op)),
		zap.String("timing", string(result.Timing)),
		zap.Float64("p50_ms", stats.P50),
		zap.Float64("p95_ms", stats.P95),
		zap.Stringer("throughput", result.Throughput))
	return result, nil
}

// RunRuntime benchmarks a whole model on an external runtime: one awaited warm-up
// call, then trials sequential calls timed on the host clock.
func (r *Runner) RunRuntime(ctx context.Context, rt runtimes.Runtime, modelRef string, in runtimes.Input, trials int) (result BenchResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op := kernels.OpWholeModel
	if rt.Name() == config.RuntimeEmbeddings {
		op = kernels.OpEmbeddingPipeline
	}
	defer func() { r.record(op, result, err) }()

	if trials < 1 {
		return BenchResult{}, fmt.Errorf("%w: got %d", ErrInvalidTrialCount, trials)
	}
	session, err := rt.Load(ctx, modelRef)
	if err != nil {
		return BenchResult{}, err
	}
	warm, err := rt.Run(ctx, session, in)
	if err != nil {
		return BenchResult{}, fmt.Errorf("warm-up failed: %w", err)
	}

	measured := make([]TrialMeasurement, 0, trials)
	for i := 0; i < trials; i++ {
		if err := ctx.Err(); err != nil {
			return BenchResult{}, fmt.Errorf("stopped after %d of %d trials: %w", i, trials, err)
		}
		start := time.Now()
		if _, err := rt.Run(ctx, session, in); err != nil {
			return BenchResult{}, fmt.Errorf("trial %d: %w", i+1, err)
		}
		measured = append(measured, TrialMeasurement{
			Ms:     float64(time.Since(start).Nanoseconds()) / 1e6,
			Source: HostClock,
		})
	}
	stats, err := Aggregate(samplesOf(measured))
	if err != nil {
		return BenchResult{}, err
	}

	shape := Shape{"batch": warm.Items}
	result = BenchResult{
		Op:         op,
		Backend:    rt.Name(),
		Precision:  kernels.F32,
		Shape:      shape,
		Timing:     HostClock,
		Trials:     measured,
		Stats:      stats,
		Throughput: ComputeThroughput(op, shape, kernels.F32, stats.P50),
		Model:      session.Model,
		InputShape: in.Shape,
	}
	if caps, ok := r.Capabilities(); ok {
		result.Vendor = caps.Vendor
	}

	r.logger.Info("Runtime benchmark finished",
		zap.String("runtime", rt.Name()),
		zap.String("model", session.Model),
		zap.Int("items", warm.Items),
		zap.Float64("p50_ms", stats.P50),
		zap.Stringer("throughput", result.Throughput))
	return result, nil
}

func (r *Runner) record(op kernels.Op, result BenchResult, err error) {
	if err != nil {
		metrics.BenchRuns.WithLabelValues(string(op), "error").Inc()
		r.logger.Warn("Benchmark failed", zap.String("op", string(op)), zap.Error(err))
		return
	}
	metrics.BenchRuns.WithLabelValues(string(op), "ok").Inc()
	precision := string(result.Precision)
	for _, t := range result.Trials {
		metrics.BenchTrialDuration.WithLabelValues(string(op), precision, string(t.Source)).Observe(t.Ms)
	}
	metrics.BenchP50.WithLabelValues(string(op), precision).Set(result.Stats.P50)
	metrics.BenchThroughput.WithLabelValues(string(op), precision, result.Throughput.Unit).Set(result.Throughput.Value)
}
