package cgpu

import (
	"errors"
	"slices"
	"time"
)

// Fence is a binary host-waitable fence. submitted is true between a submit
// (or acquire) that signals it and the wait that consumes it.
type Fence struct {
	device    *Device
	native    NativeFence
	submitted bool
}

// Semaphore is a binary GPU-side semaphore. signaled is host bookkeeping
// that keeps a never-signaled semaphore out of wait lists, avoiding hangs on
// double waits.
type Semaphore struct {
	device   *Device
	native   NativeSemaphore
	signaled bool
}

// CreateFence creates an unsignaled fence.
func (d *Device) CreateFence() (*Fence, error) {
	nf, err := d.native.CreateFence()
	if err != nil {
		return nil, creationFailed("CreateFence", logNative(d.log, "CreateFence", err))
	}
	return &Fence{device: d, native: nf}, nil
}

// Submitted reports whether the fence has pending work to wait on.
func (f *Fence) Submitted() bool { return f.submitted }

// Native returns the backend fence.
func (f *Fence) Native() NativeFence { return f.native }

// Status queries the fence without blocking.
func (f *Fence) Status() (FenceStatus, error) {
	if !f.submitted {
		return FenceNotSubmitted, nil
	}
	ok, err := f.device.native.FenceSignaled(f.native)
	if err != nil {
		return FenceIncomplete, f.device.classify("FenceStatus", err)
	}
	if ok {
		return FenceComplete, nil
	}
	return FenceIncomplete, nil
}

// Free destroys the fence.
func (f *Fence) Free() {
	if f.native != nil {
		f.native.Destroy()
		f.native = nil
	}
}

// CreateSemaphore creates an unsignaled semaphore.
func (d *Device) CreateSemaphore() (*Semaphore, error) {
	ns, err := d.native.CreateSemaphore()
	if err != nil {
		return nil, creationFailed("CreateSemaphore", logNative(d.log, "CreateSemaphore", err))
	}
	return &Semaphore{device: d, native: ns}, nil
}

// Signaled reports the host-side signaled flag.
func (s *Semaphore) Signaled() bool { return s.signaled }

// Native returns the backend semaphore.
func (s *Semaphore) Native() NativeSemaphore { return s.native }

// Free destroys the semaphore.
func (s *Semaphore) Free() {
	if s.native != nil {
		s.native.Destroy()
		s.native = nil
	}
}

// WaitFences blocks until every submitted fence in fences signals, then
// resets them. Fences that were never submitted are skipped; when none is
// submitted no native call is made. A timeout of 0 waits forever, otherwise
// ErrTimeout is returned and the fences stay submitted.
func (d *Device) WaitFences(fences []*Fence, timeout time.Duration) error {
	pending := make([]NativeFence, 0, len(fences))
	for _, f := range fences {
		if f != nil && f.submitted {
			pending = append(pending, f.native)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if err := d.native.WaitFences(pending, timeout); err != nil {
		if errors.Is(err, ErrTimeout) {
			return err
		}
		return d.classify("WaitFences", err)
	}
	if err := d.native.ResetFences(pending); err != nil {
		return d.classify("ResetFences", err)
	}
	for _, f := range fences {
		if f != nil {
			f.submitted = false
		}
	}
	return nil
}

func nativeSemaphores(list []*Semaphore) []NativeSemaphore {
	out := make([]NativeSemaphore, 0, len(list))
	for _, s := range list {
		out = append(out, s.native)
	}
	return out
}

// filterWaits keeps the semaphores that were signaled.
func filterWaits(list []*Semaphore) []*Semaphore {
	out := make([]*Semaphore, 0, len(list))
	for _, s := range list {
		if s != nil && s.signaled && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// filterSignals keeps the semaphores that are not already signaled or are
// consumed by waits of the same submission.
func filterSignals(list, waits []*Semaphore) []*Semaphore {
	out := make([]*Semaphore, 0, len(list))
	for _, s := range list {
		if s != nil && (!s.signaled || slices.Contains(waits, s)) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// setSignaled records the outcome of a queue operation once the native call
// accepted it.
func setSignaled(list []*Semaphore, signaled bool) {
	for _, s := range list {
		s.signaled = signaled
	}
}
