package software

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"go.uber.org/zap"
)

// queueDepth is how many uploads and submissions may be pending before Submit blocks.
const queueDepth = 64

type work struct {
	run  func() error
	done chan struct{}
}

// queue executes work in submission order on a single goroutine.
type queue struct {
	dev *Device

	sendMu sync.Mutex
	closed bool
	ops    chan work

	errMu sync.Mutex
	lost  error
}

func newQueue(dev *Device) *queue {
	q := &queue{dev: dev, ops: make(chan work, queueDepth)}
	go q.loop()
	return q
}

func (q *queue) loop() {
	for w := range q.ops {
		if w.run != nil && q.err() == nil {
			if err := w.run(); err != nil {
				q.dev.logger.Error("Device lost", zap.String("device", q.dev.label), zap.Error(err))
				q.setErr(err)
			}
		}
		if w.done != nil {
			close(w.done)
		}
	}
}

func (q *queue) err() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	return q.lost
}

func (q *queue) setErr(err error) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	if q.lost == nil {
		q.lost = err
	}
}

func (q *queue) enqueue(w work) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	if q.closed {
		return fmt.Errorf("%w: device %q destroyed", gpu.ErrDeviceLost, q.dev.label)
	}
	q.ops <- w
	return nil
}

func (q *queue) close() {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ops)
	}
}

// idle waits until everything enqueued so far has run.
func (q *queue) idle(ctx context.Context) error {
	done := make(chan struct{})
	if err := q.enqueue(work{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return q.err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteBuffer implements gpu.Queue
func (q *queue) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*buffer)
	if !ok || b.dev != q.dev {
		return fmt.Errorf("%w: buffer does not belong to this device", gpu.ErrValidation)
	}
	switch {
	case !b.usage.Has(gpu.BufferUsageCopyDst):
		return fmt.Errorf("%w: buffer %q lacks CopyDst usage", gpu.ErrValidation, b.label)
	case offset%4 != 0 || len(data)%4 != 0:
		return fmt.Errorf("%w: write to %q must be 4-byte aligned", gpu.ErrValidation, b.label)
	case offset+uint64(len(data)) > b.Size():
		return fmt.Errorf("%w: write of %d bytes at %d overflows %q", gpu.ErrValidation, len(data), offset, b.label)
	case b.isMapped() || b.isDestroyed():
		return fmt.Errorf("%w: buffer %q is mapped or destroyed", gpu.ErrValidation, b.label)
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return q.enqueue(work{run: func() error {
		b.mu.Lock()
		copy(b.data[offset:], payload)
		b.mu.Unlock()
		return nil
	}})
}

// Submit implements gpu.Queue. Every dispatch is validated against its pipeline's
// declared binding layout before anything is queued.
func (q *queue) Submit(cmds ...*gpu.CommandBuffer) error {
	if err := q.dev.alive(); err != nil {
		return err
	}
	for _, cb := range cmds {
		if cb == nil {
			return fmt.Errorf("%w: nil command buffer", gpu.ErrValidation)
		}
		if err := q.validate(cb); err != nil {
			return err
		}
	}
	for _, cb := range cmds {
		cb := cb
		if err := q.enqueue(work{run: func() error { return q.dev.execute(cb) }}); err != nil {
			return err
		}
		q.dev.submissions.Add(1)
	}
	return nil
}

// OnSubmittedWorkDone implements gpu.Queue
func (q *queue) OnSubmittedWorkDone(ctx context.Context) error {
	return q.idle(ctx)
}

func (q *queue) validate(cb *gpu.CommandBuffer) error {
	for _, cmd := range cb.Commands {
		switch c := cmd.(type) {
		case *gpu.ComputePass:
			if tw := c.TimestampWrites; tw != nil {
				if _, ok := tw.QuerySet.(*querySet); !ok {
					return fmt.Errorf("%w: foreign query set in pass %q", gpu.ErrValidation, c.Label)
				}
			}
			for _, d := range c.Dispatches {
				if err := q.validateDispatch(d); err != nil {
					return err
				}
			}
		case *gpu.CopyBufferToBuffer:
			for _, buf := range []gpu.Buffer{c.Src, c.Dst} {
				if err := q.usable(buf); err != nil {
					return err
				}
			}
		case *gpu.ResolveQuerySet:
			if _, ok := c.QuerySet.(*querySet); !ok {
				return fmt.Errorf("%w: foreign query set", gpu.ErrValidation)
			}
			if err := q.usable(c.Dst); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown command %T", gpu.ErrValidation, cmd)
		}
	}
	return nil
}

func (q *queue) usable(buf gpu.Buffer) error {
	b, ok := buf.(*buffer)
	if !ok || b.dev != q.dev {
		return fmt.Errorf("%w: buffer does not belong to this device", gpu.ErrValidation)
	}
	if b.isMapped() || b.isDestroyed() {
		return fmt.Errorf("%w: buffer %q is mapped or destroyed", gpu.ErrValidation, b.label)
	}
	return nil
}

func (q *queue) validateDispatch(d gpu.Dispatch) error {
	p, ok := d.Pipeline.(*pipeline)
	if !ok {
		return fmt.Errorf("%w: foreign pipeline", gpu.ErrValidation)
	}
	g, ok := d.BindGroup.(*bindGroup)
	if !ok {
		return fmt.Errorf("%w: foreign bind group", gpu.ErrValidation)
	}
	max := q.dev.limits.MaxWorkgroupsPerDimension
	if d.Grid.X > max || d.Grid.Y > max || d.Grid.Z > max {
		return fmt.Errorf("%w: dispatch %s exceeds %d workgroups per dimension", gpu.ErrValidation, d.Grid, max)
	}

	layout := p.program.Layout
	if len(g.entries) != len(layout) {
		return fmt.Errorf("%w: %s expects %d bindings, bind group %q has %d",
			gpu.ErrBindingLayoutMismatch, p.program.Name, len(layout), g.label, len(g.entries))
	}
	seen := make(map[uint32]bool, len(g.entries))
	for _, e := range g.entries {
		decl, ok := p.program.Binding(e.Binding)
		if !ok || seen[e.Binding] {
			return fmt.Errorf("%w: %s has no free slot %d", gpu.ErrBindingLayoutMismatch, p.program.Name, e.Binding)
		}
		seen[e.Binding] = true
		if err := q.usable(e.Buffer); err != nil {
			return err
		}
		want := gpu.BufferUsageStorage
		if decl.Kind == kernels.Uniform {
			want = gpu.BufferUsageUniform
		}
		if !e.Buffer.Usage().Has(want) {
			return fmt.Errorf("%w: %s slot %d (%s %q) bound to buffer %q without matching usage",
				gpu.ErrBindingLayoutMismatch, p.program.Name, e.Binding, decl.Kind, decl.Name, e.Buffer.Label())
		}
	}
	return nil
}
