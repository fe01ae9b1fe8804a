// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/backend"
)

func init() {
	backend.Register(backend.BackendWGPU, func() (backend.Device, error) {
		return Open()
	})
}

// Adapter errors.
var (
	// ErrNilDevice is returned when New is called with a nil device or queue.
	ErrNilDevice = errors.New("wgpu: device or queue is nil")

	// ErrNilProvider is returned when FromProvider is called with nil.
	ErrNilProvider = errors.New("wgpu: nil DeviceProvider")

	// ErrUnsupportedProvider is returned when a provider's device and queue
	// are not backed by wgpu/hal.
	ErrUnsupportedProvider = errors.New("wgpu: provider is not hal-backed")
)

// Device adapts a hal.Device/hal.Queue pair to backend.Device.
//
// wgpu exposes a single hardware queue, so both queue kinds submit to the
// same hal queue; cross-pipe ordering compiled into a schedule still holds
// because it is expressed through fence values, not queue identity.
type Device struct {
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance // set when the device was opened by this package
	q        *queueAdapter
}

var _ backend.Device = (*Device)(nil)

// New wraps an existing hal device/queue pair. The caller keeps ownership:
// Destroy releases only adapter state, not the hal device.
func New(device hal.Device, queue hal.Queue) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	d := &Device{device: device, queue: queue}
	d.q = &queueAdapter{queue: queue}
	return d, nil
}

// Open acquires a GPU through wgpu/hal and wraps it. The device is owned
// by the adapter and released by Destroy.
func Open() (*Device, error) {
	hb, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	d, err := New(openDev.Device, openDev.Queue)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	slogger().Info("wgpu: device opened", "adapter", selected.Info.Name)
	return d, nil
}

// FromProvider adapts a gpucontext.DeviceProvider whose device and queue
// are backed by wgpu/hal. Hosts built on gogpu hand their provider here to
// share one GPU device with the graph.
func FromProvider(p gpucontext.DeviceProvider) (*Device, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	hd, ok := p.Device().(hal.Device)
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	hq, ok := p.Queue().(hal.Queue)
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return New(hd, hq)
}

// SetLogger configures adapter logging. The graph propagates its logger
// here when one is set. Nil disables logging.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// texture wraps a hal.Texture together with its creation descriptor.
type texture struct {
	hal  hal.Texture
	desc backend.TextureDescriptor
}

// Raw returns the underlying hal.Texture.
func (t *texture) Raw() any { return t.hal }

// buffer wraps a hal.Buffer.
type buffer struct {
	hal  hal.Buffer
	desc backend.BufferDescriptor
}

// Raw returns the underlying hal.Buffer.
func (b *buffer) Raw() any { return b.hal }

// textureView wraps a hal.TextureView.
type textureView struct {
	hal hal.TextureView
}

// Raw returns the underlying hal.TextureView.
func (v *textureView) Raw() any { return v.hal }

// CreateTexture creates a hal texture. Zero mip, sample, and depth counts
// default to 1.
func (d *Device) CreateTexture(desc *backend.TextureDescriptor) (backend.Texture, error) {
	resolved := *desc
	if resolved.Depth == 0 {
		resolved.Depth = 1
	}
	if resolved.MipLevelCount == 0 {
		resolved.MipLevelCount = 1
	}
	if resolved.SampleCount == 0 {
		resolved.SampleCount = 1
	}
	halDesc := &hal.TextureDescriptor{
		Label: resolved.Label,
		Size: hal.Extent3D{
			Width:              resolved.Width,
			Height:             resolved.Height,
			DepthOrArrayLayers: resolved.Depth,
		},
		MipLevelCount: resolved.MipLevelCount,
		SampleCount:   resolved.SampleCount,
		Dimension:     resolved.Dimension,
		Format:        resolved.Format,
		Usage:         resolved.Usage,
	}
	halTex, err := d.device.CreateTexture(halDesc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture %q: %w", resolved.Label, err)
	}
	return &texture{hal: halTex, desc: resolved}, nil
}

// DestroyTexture releases the hal texture.
func (d *Device) DestroyTexture(t backend.Texture) {
	if wt, ok := t.(*texture); ok {
		d.device.DestroyTexture(wt.hal)
	}
}

// CreateBuffer creates a hal buffer.
func (d *Device) CreateBuffer(desc *backend.BufferDescriptor) (backend.Buffer, error) {
	halBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	return &buffer{hal: halBuf, desc: *desc}, nil
}

// DestroyBuffer releases the hal buffer.
func (d *Device) DestroyBuffer(b backend.Buffer) {
	if wb, ok := b.(*buffer); ok {
		d.device.DestroyBuffer(wb.hal)
	}
}

// CreateTextureView creates a hal view. Zero counts select all remaining
// levels and layers, matching hal semantics.
func (d *Device) CreateTextureView(t backend.Texture, desc *backend.TextureViewDescriptor) (backend.TextureView, error) {
	wt, ok := t.(*texture)
	if !ok {
		return nil, fmt.Errorf("wgpu: create view %q: foreign texture", desc.Label)
	}
	halDesc := &hal.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          desc.Format,
		Dimension:       desc.Dimension,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    desc.Range.BaseMipLevel,
		MipLevelCount:   desc.Range.MipLevelCount,
		BaseArrayLayer:  desc.Range.BaseArrayLayer,
		ArrayLayerCount: desc.Range.ArrayLayerCount,
	}
	halView, err := d.device.CreateTextureView(wt.hal, halDesc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create view %q: %w", desc.Label, err)
	}
	return &textureView{hal: halView}, nil
}

// DestroyTextureView releases the hal view.
func (d *Device) DestroyTextureView(v backend.TextureView) {
	if wv, ok := v.(*textureView); ok {
		d.device.DestroyTextureView(wv.hal)
	}
}

// CreateCommandEncoder creates a hal command encoder.
func (d *Device) CreateCommandEncoder(label string) (backend.CommandEncoder, error) {
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	return &encoder{hal: enc}, nil
}

// FreeCommandBuffer returns a command buffer to the hal device.
func (d *Device) FreeCommandBuffer(buf backend.CommandBuffer) {
	if cb, ok := buf.(hal.CommandBuffer); ok {
		d.device.FreeCommandBuffer(cb)
	}
}

// CreateFence creates an adapter timeline fence. hal queues manage their
// own synchronization and expose completion through submission indices, so
// the fence lives in the adapter and maps timeline values onto the indices
// returned by hal.Queue.Submit.
func (d *Device) CreateFence() (backend.Fence, error) {
	return &fence{}, nil
}

// DestroyFence releases the fence. Adapter fences hold no hal resources.
func (d *Device) DestroyFence(f backend.Fence) {}

// fencePollInterval is the sleep between hal.Queue.PollCompleted checks
// while waiting on a fence value.
const fencePollInterval = 100 * time.Microsecond

// Wait blocks until the fence reaches value or the timeout elapses.
// Completion is observed through hal.Queue.PollCompleted, the non-blocking
// retirement query paired with the submission index Submit returns.
func (d *Device) Wait(f backend.Fence, value uint64, timeout time.Duration) (bool, error) {
	wf, ok := f.(*fence)
	if !ok {
		return false, fmt.Errorf("wgpu: wait: foreign fence")
	}
	deadline := time.Now().Add(timeout)
	for {
		if idx, signaled := wf.indexFor(value); signaled {
			if d.q.queue.PollCompleted() >= idx {
				return true, nil
			}
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(fencePollInterval)
	}
}

// Queue returns the submission queue. Both kinds share the hal queue.
func (d *Device) Queue(backend.QueueKind) backend.Queue {
	return d.q
}

// Destroy releases the hal device when this adapter opened it.
func (d *Device) Destroy() {
	if d.instance != nil {
		d.device.Destroy()
		d.instance.Destroy()
		d.instance = nil
	}
}

// fence is the adapter's timeline fence. Each Submit that signals the
// fence records the (timeline value, hal submission index) pair; Wait
// resolves a value to its submission index and polls retirement.
type fence struct {
	mu      sync.Mutex
	signals []fenceSignal
}

type fenceSignal struct {
	value uint64
	index uint64
}

func (f *fence) record(value, index uint64) {
	f.mu.Lock()
	f.signals = append(f.signals, fenceSignal{value: value, index: index})
	f.mu.Unlock()
}

// indexFor returns the submission index of the earliest recorded signal
// that reaches v. Signal values are monotone per fence, so the first
// match is the cheapest submission to wait for.
func (f *fence) indexFor(v uint64) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.signals {
		if s.value >= v {
			return s.index, true
		}
	}
	return 0, false
}

// queueAdapter submits through the hal queue.
type queueAdapter struct {
	queue hal.Queue
}

var _ backend.Queue = (*queueAdapter)(nil)

// Submit unwraps the command buffers and submits them. hal.Queue.Submit
// takes no fence; it returns the submission index, which is recorded on
// the fence as the completion point for value.
func (q *queueAdapter) Submit(buffers []backend.CommandBuffer, f backend.Fence, value uint64) error {
	halBufs := make([]hal.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		cb, ok := b.(hal.CommandBuffer)
		if !ok {
			return fmt.Errorf("wgpu: submit: foreign command buffer")
		}
		halBufs = append(halBufs, cb)
	}
	var wf *fence
	if f != nil {
		var ok bool
		wf, ok = f.(*fence)
		if !ok {
			return fmt.Errorf("wgpu: submit: foreign fence")
		}
	}
	idx, err := q.queue.Submit(halBufs)
	if err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	if wf != nil {
		wf.record(value, idx)
	}
	return nil
}

// encoder adapts a hal.CommandEncoder.
type encoder struct {
	hal hal.CommandEncoder
}

var _ backend.CommandEncoder = (*encoder)(nil)

// BeginEncoding starts recording under the given label.
func (e *encoder) BeginEncoding(label string) error {
	if err := e.hal.BeginEncoding(label); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return nil
}

// TransitionTextures maps the batch onto hal texture barriers. hal
// transitions whole textures; subresource ranges collapse to the full
// resource here.
func (e *encoder) TransitionTextures(barriers []backend.TextureBarrier) {
	if len(barriers) == 0 {
		return
	}
	halBarriers := make([]hal.TextureBarrier, 0, len(barriers))
	for _, b := range barriers {
		ht, ok := b.Texture.Raw().(hal.Texture)
		if !ok {
			continue
		}
		halBarriers = append(halBarriers, hal.TextureBarrier{
			Texture: ht,
			Usage: hal.TextureUsageTransition{
				OldUsage: b.Before,
				NewUsage: b.After,
			},
		})
	}
	e.hal.TransitionTextures(halBarriers)
}

// BeginRenderPass opens a hal render-pass scope.
func (e *encoder) BeginRenderPass(desc *backend.RenderPassDescriptor) backend.RenderPassEncoder {
	halDesc := &hal.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: make([]hal.RenderPassColorAttachment, 0, len(desc.ColorAttachments)),
	}
	for _, att := range desc.ColorAttachments {
		halAtt := hal.RenderPassColorAttachment{
			LoadOp:     att.LoadOp,
			StoreOp:    att.StoreOp,
			ClearValue: att.ClearValue,
		}
		if att.View != nil {
			halAtt.View, _ = att.View.Raw().(hal.TextureView)
		}
		if att.ResolveTarget != nil {
			halAtt.ResolveTarget, _ = att.ResolveTarget.Raw().(hal.TextureView)
		}
		halDesc.ColorAttachments = append(halDesc.ColorAttachments, halAtt)
	}
	if ds := desc.DepthStencilAttachment; ds != nil {
		halDS := &hal.RenderPassDepthStencilAttachment{
			DepthLoadOp:       ds.DepthLoadOp,
			DepthStoreOp:      ds.DepthStoreOp,
			DepthClearValue:   ds.DepthClearValue,
			StencilLoadOp:     ds.StencilLoadOp,
			StencilStoreOp:    ds.StencilStoreOp,
			StencilClearValue: ds.StencilClearValue,
		}
		if ds.View != nil {
			halDS.View, _ = ds.View.Raw().(hal.TextureView)
		}
		halDesc.DepthStencilAttachment = halDS
	}
	rp := e.hal.BeginRenderPass(halDesc)
	return &renderPass{hal: rp}
}

// BeginComputePass opens a hal compute-pass scope.
func (e *encoder) BeginComputePass(label string) backend.ComputePassEncoder {
	cp := e.hal.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	return &computePass{hal: cp}
}

// EndEncoding finishes recording.
func (e *encoder) EndEncoding() (backend.CommandBuffer, error) {
	buf, err := e.hal.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	return buf, nil
}

// DiscardEncoding abandons recording.
func (e *encoder) DiscardEncoding() {
	e.hal.DiscardEncoding()
}

// renderPass adapts a hal render-pass encoder.
type renderPass struct {
	hal hal.RenderPassEncoder
}

func (r *renderPass) End() { r.hal.End() }

// Raw returns the hal.RenderPassEncoder for pass bodies that record draws.
func (r *renderPass) Raw() any { return r.hal }

// computePass adapts a hal compute-pass encoder.
type computePass struct {
	hal hal.ComputePassEncoder
}

func (c *computePass) End() { c.hal.End() }

// Raw returns the hal.ComputePassEncoder for pass bodies that dispatch.
func (c *computePass) Raw() any { return c.hal }
