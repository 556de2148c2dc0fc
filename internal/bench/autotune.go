package bench

import (
	"context"
	"fmt"
	"sort"

	"github.com/fxnlabs/gpubench/internal/kernels"
	"go.uber.org/zap"
)

// TileCandidates are the matmul tilings the autotuner measures, in ranking
// tie-break order.
var TileCandidates = []TileConfig{
	{TM: 16, TN: 16, TK: 16},
	{TM: 32, TN: 8, TK: 16},
	{TM: 8, TN: 32, TK: 16},
}

// TuneResult is the ranked outcome of an autotune call. All keeps candidate order.
type TuneResult struct {
	Best BenchResult   `json:"best"`
	All  []BenchResult `json:"all"`
}

// RunFunc benchmarks one descriptor end to end.
type RunFunc func(ctx context.Context, d KernelDescriptor, trials int) (BenchResult, error)

// Autotuner measures each tile candidate for a matmul shape and picks the fastest.
type Autotuner struct {
	run    RunFunc
	logger *zap.Logger
}

func NewAutotuner(run RunFunc, logger *zap.Logger) *Autotuner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autotuner{run: run, logger: logger}
}

// Tune runs every candidate in isolation. The first failing candidate aborts the
// whole call and no partial ranking is returned. Best is the lowest p50; ties go
// to the candidate listed first.
func (a *Autotuner) Tune(ctx context.Context, shape Shape, precision kernels.Precision, trials int) (TuneResult, error) {
	if trials < 1 {
		return TuneResult{}, fmt.Errorf("%w: got %d", ErrInvalidTrialCount, trials)
	}

	all := make([]BenchResult, 0, len(TileCandidates))
	for _, tiles := range TileCandidates {
		if err := ctx.Err(); err != nil {
			return TuneResult{}, err
		}
		d := KernelDescriptor{
			Op:        kernels.OpMatmul,
			Precision: precision,
			Shape:     shape.clone(),
			Tiles:     &tiles,
		}
		res, err := a.run(ctx, d, trials)
		if err != nil {
			return TuneResult{}, fmt.Errorf("candidate %s: %w", tiles, err)
		}
		a.logger.Debug("Autotune candidate measured",
			zap.Stringer("tiles", tiles),
			zap.Float64("p50_ms", res.Stats.P50))
		all = append(all, res)
	}

	ranked := make([]int, len(all))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return all[ranked[i]].Stats.P50 < all[ranked[j]].Stats.P50
	})

	best := all[ranked[0]]
	a.logger.Info("Autotune finished",
		zap.String("shape", shape.Format(kernels.OpMatmul)),
		zap.String("precision", string(precision)),
		zap.Stringer("best_tiles", best.Tiles),
		zap.Float64("best_p50_ms", best.Stats.P50))
	return TuneResult{Best: best, All: all}, nil
}
