package cgpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
)

// drivers holds registered backends. Priority order for backend selection
// (first available wins): Vulkan is the reference backend, the WebGPU HAL
// covers platforms without a Vulkan loader, null is for tests.
var drivers = gpucontext.NewRegistry[Driver](
	gpucontext.WithPriority(BackendVulkan, BackendWGPU, BackendNull),
)

// Register registers a backend driver under the given name.
// This is typically called from init() functions in backend packages.
// If a driver with the same name is already registered, it will be replaced.
func Register(name string, factory func() Driver) {
	drivers.Register(name, factory)
}

// Unregister removes a driver from the registry.
// This is useful for testing.
func Unregister(name string) {
	drivers.Unregister(name)
}

// Available returns the names of the registered drivers.
func Available() []string {
	return drivers.Available()
}

// IsRegistered reports whether a driver is registered under name.
func IsRegistered(name string) bool {
	return drivers.Has(name)
}

// DefaultBackend returns the name of the best registered driver, or "" when
// none is registered.
func DefaultBackend() string {
	return drivers.BestName()
}

// lookupDriver resolves name ("" means best available) to a driver.
func lookupDriver(name string) (string, Driver, error) {
	if name == "" {
		name = drivers.BestName()
		if name == "" {
			return "", nil, ErrNoBackend
		}
	}
	d := drivers.Get(name)
	if d == nil {
		return "", nil, fmt.Errorf("%w: %q", ErrNoBackend, name)
	}
	return name, d, nil
}
