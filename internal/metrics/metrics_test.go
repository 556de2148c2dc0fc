package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBenchMetrics(t *testing.T) {
	t.Run("BenchTrialDuration", func(t *testing.T) {
		obs := BenchTrialDuration.WithLabelValues("matmul", "f32", "host-clock")
		assert.NotPanics(t, func() {
			obs.Observe(1.25)
			obs.Observe(0.75)
		})
	})

	t.Run("BenchThroughput", func(t *testing.T) {
		BenchThroughput.WithLabelValues("matmul", "f32", "GFLOPS").Set(123.45)
		value := testutil.ToFloat64(BenchThroughput.WithLabelValues("matmul", "f32", "GFLOPS"))
		assert.Equal(t, 123.45, value)
	})

	t.Run("BenchP50", func(t *testing.T) {
		BenchP50.WithLabelValues("gemv", "f16").Set(0.5)
		assert.Equal(t, 0.5, testutil.ToFloat64(BenchP50.WithLabelValues("gemv", "f16")))
	})

	t.Run("BenchRuns", func(t *testing.T) {
		before := testutil.ToFloat64(BenchRuns.WithLabelValues("softmax", "ok"))
		BenchRuns.WithLabelValues("softmax", "ok").Inc()
		BenchRuns.WithLabelValues("softmax", "ok").Inc()
		assert.Equal(t, before+2, testutil.ToFloat64(BenchRuns.WithLabelValues("softmax", "ok")))
	})

	t.Run("AutotuneCandidateP50", func(t *testing.T) {
		AutotuneCandidateP50.WithLabelValues("f32", "32/8/16").Set(9.5)
		assert.Equal(t, 9.5, testutil.ToFloat64(AutotuneCandidateP50.WithLabelValues("f32", "32/8/16")))
	})

	t.Run("DeviceInfo", func(t *testing.T) {
		DeviceInfo.WithLabelValues("software", "software", "cpu").Set(1)
		DeviceFeature.WithLabelValues("shader-f16").Set(0)
		assert.Equal(t, float64(1), testutil.ToFloat64(DeviceInfo.WithLabelValues("software", "software", "cpu")))
		assert.Equal(t, float64(0), testutil.ToFloat64(DeviceFeature.WithLabelValues("shader-f16")))
	})
}

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		EndpointResponses,
		EndpointDuration,
		BenchTrialDuration,
		BenchThroughput,
		BenchP50,
		BenchRuns,
		AutotuneCandidateP50,
		DeviceInfo,
		DeviceFeature,
	}

	for _, c := range collectors {
		err := prometheus.Register(c)
		assert.Error(t, err, "collector should already be registered")
		_, ok := err.(prometheus.AlreadyRegisteredError)
		assert.True(t, ok)
	}
}

func TestInstrument(t *testing.T) {
	handler := Instrument("/v1/test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(EndpointResponses.WithLabelValues("/v1/test", "418"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/test", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(EndpointResponses.WithLabelValues("/v1/test", "418")))
	assert.Equal(t, 1, testutil.CollectAndCount(EndpointDuration.WithLabelValues("/v1/test").(prometheus.Collector)))
}

func TestInstrument_ImplicitOK(t *testing.T) {
	handler := Instrument("/v1/implicit", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	before := testutil.ToFloat64(EndpointResponses.WithLabelValues("/v1/implicit", "200"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/implicit", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(EndpointResponses.WithLabelValues("/v1/implicit", "200")))
}
