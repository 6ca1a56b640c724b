package cgpu

import (
	"errors"
	"fmt"
)

// Sentinel errors. Backends return these (possibly wrapped) so the core can
// classify native results without knowing native error codes.
var (
	// ErrCreationFailed is matched by every *CreationError.
	ErrCreationFailed = errors.New("cgpu: object creation failed")

	// ErrOutOfDate reports a swapchain that no longer matches its surface.
	// The caller must recreate the swapchain and retry.
	ErrOutOfDate = errors.New("cgpu: swapchain out of date")

	// ErrDeviceLost reports a lost device. The flag is sticky.
	ErrDeviceLost = errors.New("cgpu: device lost")

	// ErrTimeout is returned by waits that did not complete in time.
	ErrTimeout = errors.New("cgpu: wait timed out")

	// ErrInvalidState is matched by every *StateError.
	ErrInvalidState = errors.New("cgpu: invalid state transition")

	// ErrNoBackend is returned when no driver is registered under the
	// requested name.
	ErrNoBackend = errors.New("cgpu: backend not available")

	// ErrNoQueue is returned when the adapter exposes no family for a queue type.
	ErrNoQueue = errors.New("cgpu: no queue family for requested type")

	// ErrNotFound is returned when a descriptor update names a resource the
	// parameter table does not contain.
	ErrNotFound = errors.New("cgpu: resource not found in parameter table")

	// ErrUnsupported is returned by backends for features they do not model.
	ErrUnsupported = errors.New("cgpu: unsupported by backend")
)

// CreationError reports a failed native object creation.
type CreationError struct {
	Op  string
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("cgpu: %s: creation failed: %v", e.Op, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCreationFailed) true for every CreationError.
func (e *CreationError) Is(target error) bool { return target == ErrCreationFailed }

func creationFailed(op string, err error) error {
	return &CreationError{Op: op, Err: err}
}

// StateError reports an illegal command buffer state transition.
type StateError struct {
	Op    string
	State CommandBufferState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cgpu: %s not allowed in state %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

// UnsupportedDescriptorTypeError is returned when a descriptor update targets
// a resource type that cannot be written into a descriptor set.
type UnsupportedDescriptorTypeError struct {
	Name    string
	Binding uint32
	Type    ResourceType
}

func (e *UnsupportedDescriptorTypeError) Error() string {
	return fmt.Sprintf("cgpu: descriptor %q (binding %d) has unsupported type %s", e.Name, e.Binding, e.Type)
}

// UnsupportedDynamicStateError is returned when a pipeline requests dynamic
// state the adapter does not support.
type UnsupportedDynamicStateError struct {
	Requested DynamicState
	Supported DynamicState
}

func (e *UnsupportedDynamicStateError) Error() string {
	return fmt.Sprintf("cgpu: dynamic state %s not supported (adapter supports %s)",
		e.Requested&^e.Supported, e.Supported)
}

// DescriptorRangeError reports an array write past a resource's declared size.
type DescriptorRangeError struct {
	Name      string
	Binding   uint32
	Index     uint32
	ArraySize uint32
}

func (e *DescriptorRangeError) Error() string {
	return fmt.Sprintf("cgpu: descriptor %q (binding %d) element %d out of range [0,%d)",
		e.Name, e.Binding, e.Index, e.ArraySize)
}

// DescriptorMismatchError is returned when a descriptor update carries
// resources of a kind the slot cannot hold, such as buffers for a texture.
type DescriptorMismatchError struct {
	Name    string
	Binding uint32
	Type    ResourceType
}

func (e *DescriptorMismatchError) Error() string {
	return fmt.Sprintf("cgpu: descriptor %q (binding %d) of type %s given resources of another kind",
		e.Name, e.Binding, e.Type)
}

// PoolConflictError is returned when a root signature cannot join a pool
// because another signature already claims one of its slots with a different
// binding shape.
type PoolConflictError struct {
	Set     uint32
	Binding uint32
}

func (e *PoolConflictError) Error() string {
	return fmt.Sprintf("cgpu: root signature pool conflict at set %d binding %d", e.Set, e.Binding)
}

func isDeviceLost(err error) bool { return errors.Is(err, ErrDeviceLost) }
