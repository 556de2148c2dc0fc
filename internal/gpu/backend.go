package gpu

import (
	"context"

	"github.com/fxnlabs/gpubench/internal/kernels"
)

// PowerPreference selects between adapters when a host exposes more than one.
type PowerPreference string

const (
	PowerPreferenceDefault         PowerPreference = "default"
	PowerPreferenceHighPerformance PowerPreference = "high-performance"
	PowerPreferenceLowPower        PowerPreference = "low-power"
)

// AdapterInfo describes the physical device behind an adapter
type AdapterInfo struct {
	Vendor       string `json:"vendor"`
	Architecture string `json:"architecture"`
	Device       string `json:"device"`
	Description  string `json:"description"`
}

// Limits are the hardware limits a device enforces
type Limits struct {
	MaxWorkgroupSizeX          uint32 `json:"maxWorkgroupSizeX"`
	MaxWorkgroupSizeY          uint32 `json:"maxWorkgroupSizeY"`
	MaxWorkgroupSizeZ          uint32 `json:"maxWorkgroupSizeZ"`
	MaxInvocationsPerWorkgroup uint32 `json:"maxInvocationsPerWorkgroup"`
	MaxWorkgroupsPerDimension  uint32 `json:"maxWorkgroupsPerDimension"`
	MaxBufferSize              uint64 `json:"maxBufferSize"`
}

// Backend is the host environment's entry point to a GPU compute API.
//
// Implementation notes:
// - IsAvailable must be cheap and must not create devices
// - RequestAdapter returns (nil, nil) when no adapter matches the preference;
//   errors are reserved for backend failures
// - Devices created from one backend are independent of each other
type Backend interface {
	// Name identifies the backend in results and logs
	Name() string

	// IsAvailable reports whether the host supports GPU compute through this backend
	IsAvailable() bool

	// RequestAdapter looks up an adapter for the given power preference
	RequestAdapter(ctx context.Context, pref PowerPreference) (Adapter, error)
}

// Adapter is a physical device that has not been opened yet.
type Adapter interface {
	Info() AdapterInfo
	// HasFeature reports whether an optional feature can be requested
	HasFeature(f Feature) bool
	Limits() Limits
	// RequestDevice opens the adapter. Requesting a feature the adapter does not
	// support fails the whole request.
	RequestDevice(ctx context.Context, desc DeviceDescriptor) (Device, error)
}

// DeviceDescriptor configures RequestDevice
type DeviceDescriptor struct {
	Label            string
	RequiredFeatures []Feature
}

// Device is an opened GPU. A Device is owned by a single benchmark run at a time.
//
// Resources created from a Device must be destroyed before the Device itself.
// Validation of bind groups against the pipeline layout happens at Submit time, the
// same point a real driver rejects a malformed dispatch.
type Device interface {
	Features() FeatureSet
	Limits() Limits
	Queue() Queue

	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	CreateComputePipeline(desc ComputePipelineDescriptor) (Pipeline, error)
	CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error)
	CreateQuerySet(desc QuerySetDescriptor) (QuerySet, error)

	// Destroy releases the device; outstanding work is abandoned.
	Destroy()
}

// Queue orders uploads and command buffers for execution.
type Queue interface {
	// WriteBuffer schedules an upload ordered before any later submission.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// Submit schedules command buffers. It returns once the work is queued.
	Submit(cmds ...*CommandBuffer) error

	// OnSubmittedWorkDone blocks until everything submitted so far has completed.
	// It is the completion acknowledgement of the timing protocol.
	OnSubmittedWorkDone(ctx context.Context) error
}

// BufferUsage is a bitmask of the ways a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageMapRead BufferUsage = 1 << iota
	BufferUsageMapWrite
	BufferUsageCopySrc
	BufferUsageCopyDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageQueryResolve
)

// Has reports whether every bit of other is set.
func (u BufferUsage) Has(other BufferUsage) bool {
	return u&other == other
}

// BufferDescriptor configures CreateBuffer
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// MapMode selects host access for Buffer.Map
type MapMode int

const (
	MapModeRead MapMode = iota + 1
	MapModeWrite
)

// Buffer is a linear allocation in device memory.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() BufferUsage

	// Map waits until pending GPU work on the buffer finished and makes it host
	// visible. An expired context yields ErrReadbackTimeout.
	Map(ctx context.Context, mode MapMode) error
	// MappedRange returns a copy of the mapped bytes.
	MappedRange(offset, size uint64) ([]byte, error)
	Unmap()

	Destroy()
}

// ComputePipelineDescriptor configures CreateComputePipeline
type ComputePipelineDescriptor struct {
	Label   string
	Program kernels.Program
	// Constants override the program's overridable constants by name.
	Constants map[string]uint32
}

// Pipeline is a compiled program with its overrides applied.
type Pipeline interface {
	Label() string
	Program() kernels.Program
	Destroy()
}

// BindGroupEntry binds a buffer range to a slot
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Offset  uint64
	// Size of zero binds the rest of the buffer.
	Size uint64
}

// BindGroupDescriptor configures CreateBindGroup
type BindGroupDescriptor struct {
	Label    string
	Pipeline Pipeline
	Entries  []BindGroupEntry
}

// BindGroup is a set of bindings ready to be attached to a compute pass.
type BindGroup interface {
	Label() string
	Entries() []BindGroupEntry
	Destroy()
}

// QueryType is the kind of query a QuerySet records.
type QueryType int

const (
	QueryTypeTimestamp QueryType = iota + 1
)

// QuerySetDescriptor configures CreateQuerySet
type QuerySetDescriptor struct {
	Label string
	Type  QueryType
	Count uint32
}

// QuerySet holds device-written query results such as timestamps.
type QuerySet interface {
	Type() QueryType
	Count() uint32
	Destroy()
}
