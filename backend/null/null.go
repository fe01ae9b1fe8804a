// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package null provides a recording no-op device backend. It performs no
// GPU work; every call is recorded so callers can inspect the exact
// sequence of transitions, pass scopes, and submissions a schedule
// produced. It backs headless runs and tests.
package null

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/framegraph/backend"
)

func init() {
	backend.Register(backend.BackendNull, func() (backend.Device, error) {
		return New(), nil
	})
}

// OpKind identifies a recorded device operation.
type OpKind uint8

const (
	// OpTransition is a TransitionTextures batch.
	OpTransition OpKind = iota

	// OpBeginRenderPass is a render-pass open.
	OpBeginRenderPass

	// OpEndRenderPass is a render-pass close.
	OpEndRenderPass

	// OpBeginComputePass is a compute-pass open.
	OpBeginComputePass

	// OpEndComputePass is a compute-pass close.
	OpEndComputePass

	// OpSubmit is a queue submission boundary.
	OpSubmit

	// OpSignal is a fence signal attached to a submission.
	OpSignal

	// OpWait is a device fence wait.
	OpWait
)

// String returns the op kind name.
func (k OpKind) String() string {
	switch k {
	case OpTransition:
		return "Transition"
	case OpBeginRenderPass:
		return "BeginRenderPass"
	case OpEndRenderPass:
		return "EndRenderPass"
	case OpBeginComputePass:
		return "BeginComputePass"
	case OpEndComputePass:
		return "EndComputePass"
	case OpSubmit:
		return "Submit"
	case OpSignal:
		return "Signal"
	case OpWait:
		return "Wait"
	default:
		return "Unknown"
	}
}

// Op is one recorded device operation, in device-observed order.
// Submission order, not recording order, determines the sequence:
// an encoder's ops enter the log when its command buffer is submitted.
type Op struct {
	Kind     OpKind
	Label    string
	Queue    backend.QueueKind
	Barriers int    // transition count for OpTransition
	Value    uint64 // fence value for OpSignal/OpWait
}

// String formats the op for test failure messages.
func (o Op) String() string {
	switch o.Kind {
	case OpTransition:
		return fmt.Sprintf("%s(%d)", o.Kind, o.Barriers)
	case OpSignal, OpWait:
		return fmt.Sprintf("%s(%d)", o.Kind, o.Value)
	case OpSubmit:
		return fmt.Sprintf("%s[%s]", o.Kind, o.Queue)
	default:
		return fmt.Sprintf("%s(%q)", o.Kind, o.Label)
	}
}

// Texture is a recorded texture allocation.
type Texture struct {
	Desc backend.TextureDescriptor
	id   uint64
}

// Raw returns the texture itself; there is no underlying object.
func (t *Texture) Raw() any { return t }

// Buffer is a recorded buffer allocation.
type Buffer struct {
	Desc backend.BufferDescriptor
	id   uint64
}

// Raw returns the buffer itself.
func (b *Buffer) Raw() any { return b }

// TextureView is a recorded view over a Texture.
type TextureView struct {
	Texture *Texture
	Desc    backend.TextureViewDescriptor
	id      uint64
}

// Raw returns the view itself.
func (v *TextureView) Raw() any { return v }

// fence is a timeline fence signaled by Submit.
type fence struct {
	mu    sync.Mutex
	value uint64
}

// commandBuffer carries the ops an encoder recorded until submission.
type commandBuffer struct {
	ops []Op
}

// Device is a recording no-op implementation of backend.Device.
// It is safe for concurrent use.
type Device struct {
	mu     sync.Mutex
	nextID uint64
	ops    []Op

	texturesCreated   int
	texturesDestroyed int
	buffersCreated    int
	buffersDestroyed  int
	viewsCreated      int
	viewsDestroyed    int
	encodersCreated   int
	buffersFreed      int

	graphics *queue
	compute  *queue

	destroyed bool
}

// New creates an empty recording device.
func New() *Device {
	d := &Device{}
	d.graphics = &queue{device: d, kind: backend.QueueGraphics}
	d.compute = &queue{device: d, kind: backend.QueueCompute}
	return d
}

var _ backend.Device = (*Device)(nil)

// CreateTexture records the allocation and returns a placeholder texture.
func (d *Device) CreateTexture(desc *backend.TextureDescriptor) (backend.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, backend.ErrDestroyed
	}
	d.nextID++
	d.texturesCreated++
	return &Texture{Desc: *desc, id: d.nextID}, nil
}

// DestroyTexture records the release.
func (d *Device) DestroyTexture(backend.Texture) {
	d.mu.Lock()
	d.texturesDestroyed++
	d.mu.Unlock()
}

// CreateBuffer records the allocation and returns a placeholder buffer.
func (d *Device) CreateBuffer(desc *backend.BufferDescriptor) (backend.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, backend.ErrDestroyed
	}
	d.nextID++
	d.buffersCreated++
	return &Buffer{Desc: *desc, id: d.nextID}, nil
}

// DestroyBuffer records the release.
func (d *Device) DestroyBuffer(backend.Buffer) {
	d.mu.Lock()
	d.buffersDestroyed++
	d.mu.Unlock()
}

// CreateTextureView records the view creation.
func (d *Device) CreateTextureView(t backend.Texture, desc *backend.TextureViewDescriptor) (backend.TextureView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, backend.ErrDestroyed
	}
	nt, _ := t.(*Texture)
	d.nextID++
	d.viewsCreated++
	return &TextureView{Texture: nt, Desc: *desc, id: d.nextID}, nil
}

// DestroyTextureView records the release.
func (d *Device) DestroyTextureView(backend.TextureView) {
	d.mu.Lock()
	d.viewsDestroyed++
	d.mu.Unlock()
}

// CreateCommandEncoder returns a fresh recording encoder.
func (d *Device) CreateCommandEncoder(label string) (backend.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, backend.ErrDestroyed
	}
	d.encodersCreated++
	return &encoder{label: label}, nil
}

// FreeCommandBuffer records the release.
func (d *Device) FreeCommandBuffer(backend.CommandBuffer) {
	d.mu.Lock()
	d.buffersFreed++
	d.mu.Unlock()
}

// CreateFence returns a timeline fence starting at zero.
func (d *Device) CreateFence() (backend.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, backend.ErrDestroyed
	}
	return &fence{}, nil
}

// DestroyFence is a no-op.
func (d *Device) DestroyFence(backend.Fence) {}

// Wait returns true if the fence has reached value. The null device
// signals fences synchronously during Submit, so an unreached value means
// the schedule waited before submitting and Wait reports a timeout.
func (d *Device) Wait(f backend.Fence, value uint64, _ time.Duration) (bool, error) {
	nf, ok := f.(*fence)
	if !ok {
		return false, backend.ErrBackendNotAvailable
	}
	nf.mu.Lock()
	reached := nf.value >= value
	nf.mu.Unlock()

	d.mu.Lock()
	d.ops = append(d.ops, Op{Kind: OpWait, Value: value})
	d.mu.Unlock()
	return reached, nil
}

// Queue returns the recording queue of the given kind.
func (d *Device) Queue(kind backend.QueueKind) backend.Queue {
	if kind == backend.QueueCompute {
		return d.compute
	}
	return d.graphics
}

// Destroy marks the device destroyed; further creation calls fail.
func (d *Device) Destroy() {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}

// Ops returns a copy of the device-observed operation log.
func (d *Device) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Op, len(d.ops))
	copy(out, d.ops)
	return out
}

// CountOps returns how many logged ops have the given kind.
func (d *Device) CountOps(kind OpKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, op := range d.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// TexturesCreated returns the number of CreateTexture calls.
func (d *Device) TexturesCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.texturesCreated
}

// TexturesDestroyed returns the number of DestroyTexture calls.
func (d *Device) TexturesDestroyed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.texturesDestroyed
}

// BuffersCreated returns the number of CreateBuffer calls.
func (d *Device) BuffersCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffersCreated
}

// ViewsCreated returns the number of CreateTextureView calls.
func (d *Device) ViewsCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewsCreated
}

// ViewsDestroyed returns the number of DestroyTextureView calls.
func (d *Device) ViewsDestroyed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewsDestroyed
}

// queue appends submitted buffers' ops to the device log in submit order.
type queue struct {
	device *Device
	kind   backend.QueueKind
}

var _ backend.Queue = (*queue)(nil)

// Submit transfers each buffer's recorded ops into the device log, then
// signals the fence.
func (q *queue) Submit(buffers []backend.CommandBuffer, f backend.Fence, value uint64) error {
	q.device.mu.Lock()
	for _, b := range buffers {
		cb, ok := b.(*commandBuffer)
		if !ok {
			continue
		}
		q.device.ops = append(q.device.ops, cb.ops...)
	}
	q.device.ops = append(q.device.ops, Op{Kind: OpSubmit, Queue: q.kind})
	if f != nil {
		q.device.ops = append(q.device.ops, Op{Kind: OpSignal, Value: value})
	}
	q.device.mu.Unlock()

	if f != nil {
		if nf, ok := f.(*fence); ok {
			nf.mu.Lock()
			if value > nf.value {
				nf.value = value
			}
			nf.mu.Unlock()
		}
	}
	return nil
}

// encoder records ops into a private list until EndEncoding.
type encoder struct {
	label   string
	ops     []Op
	started bool
	ended   bool
}

var _ backend.CommandEncoder = (*encoder)(nil)

// BeginEncoding starts recording.
func (e *encoder) BeginEncoding(label string) error {
	e.label = label
	e.started = true
	return nil
}

// TransitionTextures records the batch size.
func (e *encoder) TransitionTextures(barriers []backend.TextureBarrier) {
	if len(barriers) == 0 {
		return
	}
	e.ops = append(e.ops, Op{Kind: OpTransition, Barriers: len(barriers)})
}

// BeginRenderPass records the open and returns a scope that records the close.
func (e *encoder) BeginRenderPass(desc *backend.RenderPassDescriptor) backend.RenderPassEncoder {
	e.ops = append(e.ops, Op{Kind: OpBeginRenderPass, Label: desc.Label})
	return &renderPass{encoder: e, label: desc.Label}
}

// BeginComputePass records the open and returns a scope that records the close.
func (e *encoder) BeginComputePass(label string) backend.ComputePassEncoder {
	e.ops = append(e.ops, Op{Kind: OpBeginComputePass, Label: label})
	return &computePass{encoder: e, label: label}
}

// EndEncoding hands the recorded ops to a command buffer.
func (e *encoder) EndEncoding() (backend.CommandBuffer, error) {
	e.ended = true
	ops := e.ops
	e.ops = nil
	return &commandBuffer{ops: ops}, nil
}

// DiscardEncoding drops everything recorded so far.
func (e *encoder) DiscardEncoding() {
	e.ops = nil
	e.ended = true
}

type renderPass struct {
	encoder *encoder
	label   string
}

func (r *renderPass) End() {
	r.encoder.ops = append(r.encoder.ops, Op{Kind: OpEndRenderPass, Label: r.label})
}

func (r *renderPass) Raw() any { return r }

type computePass struct {
	encoder *encoder
	label   string
}

func (c *computePass) End() {
	c.encoder.ops = append(c.encoder.ops, Op{Kind: OpEndComputePass, Label: c.label})
}

func (c *computePass) Raw() any { return c }
