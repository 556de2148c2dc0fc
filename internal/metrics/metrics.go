package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	EndpointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "endpoint_request_duration_seconds",
		Help:    "Time spent serving endpoint requests, including the benchmarks they ran",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"endpoint"})

	// Benchmark run metrics
	BenchTrialDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bench_trial_duration_ms",
		Help:    "Duration of measured benchmark trials in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20), // 10us to ~5s
	}, []string{"op", "precision", "timing"})

	BenchThroughput = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bench_throughput",
		Help: "Throughput of the last run of an operation, in the unit of its unit label",
	}, []string{"op", "precision", "unit"})

	BenchP50 = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bench_p50_ms",
		Help: "Median trial latency of the last run of an operation in milliseconds",
	}, []string{"op", "precision"})

	BenchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bench_runs_total",
		Help: "Total number of benchmark runs by operation and outcome",
	}, []string{"op", "status"})

	// Autotune metrics
	AutotuneCandidateP50 = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autotune_candidate_p50_ms",
		Help: "Median latency of each matmul tile candidate in the last autotune",
	}, []string{"precision", "tiles"})

	// Device metrics
	DeviceInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpu_device_info",
		Help: "Negotiated GPU device; always 1",
	}, []string{"backend", "vendor", "device"})

	DeviceFeature = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpu_device_feature",
		Help: "1 when an optional feature is enabled on the negotiated device, else 0",
	}, []string{"feature"})
)
