package gpu

import (
	"fmt"
)

// Grid is a three dimensional count of workgroups.
type Grid struct {
	X, Y, Z uint32
}

// Count is the total number of workgroups.
func (g Grid) Count() uint64 {
	return uint64(g.X) * uint64(g.Y) * uint64(g.Z)
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%dx%d", g.X, g.Y, g.Z)
}

// Command is one recorded operation in a CommandBuffer.
type Command interface {
	isCommand()
}

// TimestampWrites asks the device to record timestamps at the start and end of a pass.
type TimestampWrites struct {
	QuerySet       QuerySet
	BeginningIndex uint32
	EndIndex       uint32
}

// ComputePassDescriptor configures BeginComputePass
type ComputePassDescriptor struct {
	Label           string
	TimestampWrites *TimestampWrites
}

// Dispatch is one DispatchWorkgroups call with the state bound at that time.
type Dispatch struct {
	Pipeline  Pipeline
	BindGroup BindGroup
	Grid      Grid
}

// ComputePass is a recorded compute pass.
type ComputePass struct {
	Label           string
	TimestampWrites *TimestampWrites
	Dispatches      []Dispatch
}

// CopyBufferToBuffer is a recorded buffer copy.
type CopyBufferToBuffer struct {
	Src       Buffer
	SrcOffset uint64
	Dst       Buffer
	DstOffset uint64
	Size      uint64
}

// ResolveQuerySet is a recorded query resolve into a buffer, one uint64 per query.
type ResolveQuerySet struct {
	QuerySet   QuerySet
	FirstQuery uint32
	QueryCount uint32
	Dst        Buffer
	DstOffset  uint64
}

func (*ComputePass) isCommand()        {}
func (*CopyBufferToBuffer) isCommand() {}
func (*ResolveQuerySet) isCommand()    {}

// CommandBuffer is a finished, submittable list of commands.
type CommandBuffer struct {
	Label    string
	Commands []Command
}

// CommandEncoder records commands. It is backend neutral; backends interpret the
// finished CommandBuffer. Recording errors are sticky and reported by Finish.
type CommandEncoder struct {
	label    string
	commands []Command
	open     *ComputePassEncoder
	err      error
	finished bool
}

// NewCommandEncoder starts recording a command buffer.
func NewCommandEncoder(label string) *CommandEncoder {
	return &CommandEncoder{label: label}
}

func (e *CommandEncoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
	}
}

func (e *CommandEncoder) ready() bool {
	if e.finished {
		e.fail("encoder %q already finished", e.label)
		return false
	}
	if e.open != nil {
		e.fail("encoder %q has an open compute pass", e.label)
		return false
	}
	return true
}

// BeginComputePass opens a compute pass. Only one pass may be open at a time.
func (e *CommandEncoder) BeginComputePass(desc *ComputePassDescriptor) *ComputePassEncoder {
	pass := &ComputePassEncoder{enc: e}
	if desc != nil {
		pass.pass.Label = desc.Label
		pass.pass.TimestampWrites = desc.TimestampWrites
	}
	if !e.ready() {
		pass.ended = true
		return pass
	}
	if tw := pass.pass.TimestampWrites; tw != nil {
		if tw.QuerySet == nil || tw.QuerySet.Type() != QueryTypeTimestamp {
			e.fail("timestamp writes need a timestamp query set")
		} else if tw.BeginningIndex >= tw.QuerySet.Count() || tw.EndIndex >= tw.QuerySet.Count() {
			e.fail("timestamp write index out of range")
		}
	}
	e.open = pass
	return pass
}

// CopyBufferToBuffer records a copy between buffers.
func (e *CommandEncoder) CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64) {
	if !e.ready() {
		return
	}
	switch {
	case src == nil || dst == nil:
		e.fail("copy with nil buffer")
	case !src.Usage().Has(BufferUsageCopySrc):
		e.fail("copy source %q lacks CopySrc usage", src.Label())
	case !dst.Usage().Has(BufferUsageCopyDst):
		e.fail("copy destination %q lacks CopyDst usage", dst.Label())
	case size%4 != 0 || srcOffset%4 != 0 || dstOffset%4 != 0:
		e.fail("copy offsets and size must be multiples of 4")
	case srcOffset+size > src.Size() || dstOffset+size > dst.Size():
		e.fail("copy of %d bytes out of bounds", size)
	}
	e.commands = append(e.commands, &CopyBufferToBuffer{
		Src: src, SrcOffset: srcOffset, Dst: dst, DstOffset: dstOffset, Size: size,
	})
}

// ResolveQuerySet records resolving queries into a buffer.
func (e *CommandEncoder) ResolveQuerySet(qs QuerySet, first, count uint32, dst Buffer, dstOffset uint64) {
	if !e.ready() {
		return
	}
	switch {
	case qs == nil || dst == nil:
		e.fail("resolve with nil query set or buffer")
	case first+count > qs.Count():
		e.fail("resolve range out of bounds")
	case !dst.Usage().Has(BufferUsageQueryResolve):
		e.fail("resolve destination %q lacks QueryResolve usage", dst.Label())
	case dstOffset%256 != 0:
		e.fail("resolve offset must be 256-byte aligned")
	case dstOffset+uint64(count)*8 > dst.Size():
		e.fail("resolve destination too small")
	}
	e.commands = append(e.commands, &ResolveQuerySet{
		QuerySet: qs, FirstQuery: first, QueryCount: count, Dst: dst, DstOffset: dstOffset,
	})
}

// Finish closes the encoder and returns the recorded commands.
func (e *CommandEncoder) Finish() (*CommandBuffer, error) {
	if e.open != nil {
		e.fail("encoder %q finished with an open compute pass", e.label)
	}
	if e.finished {
		e.fail("encoder %q already finished", e.label)
	}
	e.finished = true
	if e.err != nil {
		return nil, e.err
	}
	return &CommandBuffer{Label: e.label, Commands: e.commands}, nil
}

// ComputePassEncoder records dispatches into an open compute pass.
type ComputePassEncoder struct {
	enc       *CommandEncoder
	pass      ComputePass
	pipeline  Pipeline
	bindGroup BindGroup
	ended     bool
}

// SetPipeline selects the pipeline for later dispatches.
func (p *ComputePassEncoder) SetPipeline(pipeline Pipeline) {
	p.pipeline = pipeline
}

// SetBindGroup attaches a bind group. Only group 0 exists.
func (p *ComputePassEncoder) SetBindGroup(index uint32, group BindGroup) {
	if index != 0 {
		p.enc.fail("bind group index %d unsupported", index)
		return
	}
	p.bindGroup = group
}

// DispatchWorkgroups records a dispatch of x*y*z workgroups.
func (p *ComputePassEncoder) DispatchWorkgroups(x, y, z uint32) {
	if p.ended {
		p.enc.fail("dispatch on ended pass")
		return
	}
	if p.pipeline == nil || p.bindGroup == nil {
		p.enc.fail("dispatch without pipeline or bind group")
		return
	}
	p.pass.Dispatches = append(p.pass.Dispatches, Dispatch{
		Pipeline:  p.pipeline,
		BindGroup: p.bindGroup,
		Grid:      Grid{X: x, Y: y, Z: z},
	})
}

// End closes the pass and appends it to the encoder.
func (p *ComputePassEncoder) End() {
	if p.ended {
		return
	}
	p.ended = true
	if p.enc.open == p {
		p.enc.open = nil
		pass := p.pass
		p.enc.commands = append(p.enc.commands, &pass)
	}
}
