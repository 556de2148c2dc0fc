// Package api holds the JSON documents exchanged with a gpubench server.
package api

const (
	PathBench    = "/v1/bench"
	PathAutotune = "/v1/autotune"
	PathE2E      = "/v1/e2e"
	PathDevice   = "/v1/device"
	PathMetrics  = "/metrics"
)

type Tiles struct {
	TM uint32 `json:"tm"`
	TN uint32 `json:"tn"`
	TK uint32 `json:"tk"`
}

// BenchRequest asks for one kernel benchmark. Empty fields take server defaults:
// f32, the operation's default shape and the configured trial count.
type BenchRequest struct {
	Op        string         `json:"op"`
	Precision string         `json:"precision,omitempty"`
	Shape     map[string]int `json:"shape,omitempty"`
	Tiles     *Tiles         `json:"tiles,omitempty"`
	Trials    int            `json:"trials,omitempty"`
	Epsilon   float32        `json:"epsilon,omitempty"`
	Affine    bool           `json:"affine,omitempty"`
}

type AutotuneRequest struct {
	Precision string         `json:"precision,omitempty"`
	Shape     map[string]int `json:"shape,omitempty"`
	Trials    int            `json:"trials,omitempty"`
}

// E2ERequest benchmarks a model served by an external runtime. Texts feed
// embedding models; Shape overrides the input shape of tensor models.
type E2ERequest struct {
	Model  string   `json:"model"`
	Texts  []string `json:"texts,omitempty"`
	Shape  []int64  `json:"shape,omitempty"`
	Trials int      `json:"trials,omitempty"`
}

type Trial struct {
	Ms     float64 `json:"ms"`
	Source string  `json:"source"`
}

type Stats struct {
	N    int     `json:"n"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

type Throughput struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type Check struct {
	Value    float64 `json:"value"`
	Expected float64 `json:"expected"`
	OK       bool    `json:"ok"`
}

// Result is one benchmark result as the server reports it.
type Result struct {
	Op         string         `json:"op"`
	Backend    string         `json:"backend"`
	Vendor     string         `json:"vendor"`
	Precision  string         `json:"precision"`
	Shape      map[string]int `json:"shape"`
	Tiles      *Tiles         `json:"tiles,omitempty"`
	Timing     string         `json:"timing"`
	Trials     []Trial        `json:"trials"`
	Stats      Stats          `json:"stats"`
	Throughput Throughput     `json:"throughput"`
	Check      *Check         `json:"check,omitempty"`
	Model      string         `json:"model,omitempty"`
	InputShape []int64        `json:"inputShape,omitempty"`
}

type AutotuneResponse struct {
	Best Result   `json:"best"`
	All  []Result `json:"all"`
}

type Limits struct {
	MaxWorkgroupSizeX          uint32 `json:"maxWorkgroupSizeX"`
	MaxWorkgroupSizeY          uint32 `json:"maxWorkgroupSizeY"`
	MaxWorkgroupSizeZ          uint32 `json:"maxWorkgroupSizeZ"`
	MaxInvocationsPerWorkgroup uint32 `json:"maxInvocationsPerWorkgroup"`
	MaxWorkgroupsPerDimension  uint32 `json:"maxWorkgroupsPerDimension"`
	MaxBufferSize              uint64 `json:"maxBufferSize"`
}

// Device describes the negotiated device of a server.
type Device struct {
	Backend         string   `json:"backend"`
	Vendor          string   `json:"vendor"`
	Architecture    string   `json:"architecture"`
	Device          string   `json:"device"`
	PowerPreference string   `json:"powerPreference"`
	Features        []string `json:"features"`
	Limits          Limits   `json:"limits"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
