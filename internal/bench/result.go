package bench

import (
	"github.com/fxnlabs/gpubench/internal/kernels"
)

// TimingKind tags where a trial's elapsed time came from.
type TimingKind string

const (
	// HostClock is wall-clock time from submission to completion acknowledgement.
	HostClock TimingKind = "host-clock"
	// DeviceTimestamp is the delta of timestamps the device wrote around the pass.
	DeviceTimestamp TimingKind = "device-timestamp"
)

// TrialMeasurement is one measured trial.
type TrialMeasurement struct {
	Ms     float64    `json:"ms"`
	Source TimingKind `json:"source"`
}

// SpotCheck pairs the first output element with its host-computed expectation.
type SpotCheck struct {
	Value    float64 `json:"value"`
	Expected float64 `json:"expected"`
	OK       bool    `json:"ok"`
}

// BenchResult is the outcome of one benchmark invocation. It is built once and
// handed to the reporting layer by value.
type BenchResult struct {
	Op         kernels.Op         `json:"op"`
	Backend    string             `json:"backend"`
	Vendor     string             `json:"vendor"`
	Precision  kernels.Precision  `json:"precision"`
	Shape      Shape              `json:"shape"`
	Tiles      *TileConfig        `json:"tiles,omitempty"`
	Timing     TimingKind         `json:"timing"`
	Trials     []TrialMeasurement `json:"trials"`
	Stats      Stats              `json:"stats"`
	Throughput Throughput         `json:"throughput"`
	Check      *SpotCheck         `json:"check,omitempty"`

	// Model and InputShape are set for runtime benchmarks only.
	Model      string  `json:"model,omitempty"`
	InputShape []int64 `json:"inputShape,omitempty"`
}

// Samples returns the trial times in milliseconds, in trial order.
func (r BenchResult) Samples() []float64 {
	out := make([]float64, len(r.Trials))
	for i, t := range r.Trials {
		out[i] = t.Ms
	}
	return out
}

func samplesOf(trials []TrialMeasurement) []float64 {
	return BenchResult{Trials: trials}.Samples()
}
