// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu provides a GPU device backend using gogpu/wgpu.
//
// This backend adapts the gogpu/wgpu HAL to the backend.Device interface
// used by the frame graph scheduler. It uses the gogpu/wgpu Pure Go WebGPU
// implementation, which supports Vulkan, Metal, and DX12 depending on the
// platform.
//
// # Architecture Overview
//
// The wgpu backend is a thin adapter layer:
//
//	framegraph -> backend.Device -> hal.Device (gogpu/wgpu) -> Vulkan/Metal/DX12
//
// Key components:
//
//   - Device: backend.Device implementation wrapping a hal.Device and hal.Queue
//   - Open: adapter enumeration and device creation (discrete GPU preferred)
//   - New: wraps an existing hal device/queue pair without taking ownership
//   - FromProvider: bridges a gpucontext.DeviceProvider to this backend
//
// # Registration and Selection
//
// The wgpu backend is automatically registered when this package is imported:
//
//	import _ "github.com/gogpu/framegraph/backend/wgpu"
//
// The backend is preferred over the null backend when a GPU is available.
// If device creation fails, backend.Default falls through to the next
// registered backend.
//
// # Device Ownership
//
// Open creates and owns the HAL instance, adapter, and device; Destroy
// releases all of them. New and FromProvider borrow an existing device, so
// Destroy is a no-op and the caller remains responsible for teardown.
//
// # Queues
//
// gogpu/wgpu exposes a single hardware queue. Queue returns the same queue
// for both QueueGraphics and QueueCompute; cross-queue ordering declared
// by the scheduler is still expressed through fence signal and wait
// values, so schedules remain valid when a second queue appears.
//
// # Related Packages
//
//   - github.com/gogpu/framegraph: Frame graph scheduler
//   - github.com/gogpu/framegraph/backend: Device interface and registry
//   - github.com/gogpu/wgpu: Pure Go WebGPU implementation
package wgpu
