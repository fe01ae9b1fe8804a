// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"sync"
)

// Backend names used with Register and Get.
const (
	// BackendWGPU is the gogpu/wgpu hal-backed device.
	BackendWGPU = "wgpu"

	// BackendNull is the recording no-op device.
	BackendNull = "null"
)

// DeviceFactory creates a new device instance. Factories that acquire real
// hardware may fail; the registry skips failed factories during default
// selection.
type DeviceFactory func() (Device, error)

// registry holds registered device factories.
var (
	registryMu sync.RWMutex
	devices    = make(map[string]DeviceFactory)
	// Priority order for default selection (first available wins).
	devicePriority = []string{BackendWGPU, BackendNull}
)

// Register registers a device factory with the given name.
// This is typically called from init() functions in backend packages.
// If a factory with the same name is already registered, it is replaced.
func Register(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	devices[name] = factory
}

// Unregister removes a device factory from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(devices, name)
}

// Available returns a list of registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := devices[name]
	return ok
}

// Get creates a device by backend name.
// Returns ErrBackendNotAvailable if the name is not registered.
func Get(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := devices[name]
	registryMu.RUnlock()

	if !ok {
		return nil, ErrBackendNotAvailable
	}
	return factory()
}

// Default creates the best available device based on priority.
// Factories that fail (e.g. no GPU present) are skipped.
// Returns ErrBackendNotAvailable if no factory succeeds.
func Default() (Device, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range devicePriority {
		factory, ok := devices[name]
		if !ok {
			continue
		}
		if d, err := factory(); err == nil && d != nil {
			return d, nil
		}
	}

	// Fallback: first factory that succeeds.
	for _, factory := range devices {
		if d, err := factory(); err == nil && d != nil {
			return d, nil
		}
	}

	return nil, ErrBackendNotAvailable
}

// MustDefault returns the default device or panics.
func MustDefault() Device {
	d, err := Default()
	if err != nil {
		panic("backend: no device backend available")
	}
	return d
}
