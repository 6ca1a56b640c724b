package cgpu

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// QueueGroup requests Count queues of one type.
type QueueGroup struct {
	Type  QueueType
	Count uint32
}

// DeviceDescriptor describes a logical device.
type DeviceDescriptor struct {
	Name   string
	Queues []QueueGroup
	// ThreadSafeQueues guards Submit and Present of every queue with a mutex.
	ThreadSafeQueues bool
	Extensions       []string
}

// Device is a logical connection to an Adapter. Exactly one Device per
// Adapter is assumed. Every object created from a Device must be freed
// before the Device.
type Device struct {
	adapter    *Adapter
	native     NativeDevice
	log        *slog.Logger
	alloc      Allocator
	threadSafe bool
	setName    bool
	lost       atomic.Bool

	mu     sync.Mutex
	queues map[queueKey]*Queue
}

type queueKey struct {
	t     QueueType
	index uint32
}

// CreateDevice creates a logical device with the requested queues.
func (a *Adapter) CreateDevice(desc *DeviceDescriptor) (*Device, error) {
	log := a.instance.log
	if desc == nil {
		desc = &DeviceDescriptor{Queues: []QueueGroup{{Type: QueueGraphics, Count: 1}}}
	}

	requests, err := a.queueRequests(desc.Queues)
	if err != nil {
		return nil, creationFailed("CreateDevice", err)
	}
	exts := append(append([]string(nil), a.instance.desc.DeviceExtensions...), desc.Extensions...)
	nd, err := a.native.CreateDevice(&NativeDeviceDescriptor{Queues: requests, Extensions: exts})
	if err != nil {
		return nil, creationFailed("CreateDevice", logNative(log, "CreateDevice", err))
	}

	d := &Device{
		adapter:    a,
		native:     nd,
		log:        log,
		alloc:      a.instance.alloc,
		threadSafe: desc.ThreadSafeQueues,
		setName:    a.instance.desc.EnableSetName,
		queues:     make(map[queueKey]*Queue),
	}
	if desc.Name != "" {
		d.SetName(nd, desc.Name)
	}
	log.Info("cgpu: device created", "adapter", a.String(), "queues", len(requests))
	return d, nil
}

// queueRequests merges queue groups into per-family requests, clamped to the
// family size.
func (a *Adapter) queueRequests(groups []QueueGroup) ([]QueueRequest, error) {
	var out []QueueRequest
	for _, g := range groups {
		fam, err := a.QueueFamilyIndex(g.Type)
		if err != nil {
			return nil, err
		}
		count := min(max(g.Count, 1), a.families[fam].Count)
		merged := false
		for i := range out {
			if out[i].Family == fam {
				out[i].Count = max(out[i].Count, count)
				merged = true
			}
		}
		if !merged {
			out = append(out, QueueRequest{Family: fam, Count: count})
		}
	}
	return out, nil
}

// Adapter returns the adapter the device was created from.
func (d *Device) Adapter() *Adapter { return d.adapter }

// Native returns the backend device.
func (d *Device) Native() NativeDevice { return d.native }

// Logger returns the device logger.
func (d *Device) Logger() *slog.Logger { return d.log }

// IsLost reports whether a submission detected device loss. The flag is
// sticky: every later operation is expected to fail and the device must be
// recreated.
func (d *Device) IsLost() bool { return d.lost.Load() }

func (d *Device) markLost(op string, err error) {
	if d.lost.CompareAndSwap(false, true) {
		d.log.Error("cgpu: device lost", "op", op, "err", err)
	}
}

// Queue returns queue index of type t, creating it on first use. Repeated
// calls with the same arguments return the same Queue.
func (d *Device) Queue(t QueueType, index uint32) (*Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := queueKey{t: t, index: index}
	if q, ok := d.queues[key]; ok {
		return q, nil
	}
	fam, err := d.adapter.QueueFamilyIndex(t)
	if err != nil {
		return nil, err
	}
	if index >= d.adapter.families[fam].Count {
		return nil, fmt.Errorf("%w: %s queue %d of %d", ErrNoQueue, t, index, d.adapter.families[fam].Count)
	}
	nq, err := d.native.Queue(fam, index)
	if err != nil {
		return nil, creationFailed("GetQueue", logNative(d.log, "GetQueue", err))
	}
	q, err := newQueue(d, t, index, fam, nq)
	if err != nil {
		return nil, err
	}
	d.queues[key] = q
	return q, nil
}

// SetName labels a native object for debuggers when the instance was
// created WithSetName.
func (d *Device) SetName(obj NativeObject, name string) {
	if d.setName && name != "" && obj != nil {
		d.native.SetObjectName(obj, name)
	}
}

// WaitIdle blocks until the device finished all submitted work.
func (d *Device) WaitIdle() error {
	return d.classify("WaitIdle", d.native.WaitIdle())
}

// Free releases the queues' scratch objects and the native device.
func (d *Device) Free() {
	d.mu.Lock()
	for k, q := range d.queues {
		q.free()
		delete(d.queues, k)
	}
	d.mu.Unlock()
	if d.native != nil {
		d.native.Destroy()
		d.native = nil
	}
}

// classify turns a native error into the documented taxonomy: device loss
// flips the sticky flag, everything else is logged with context. The
// returned error wraps the cause.
func (d *Device) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDeviceLost(err) {
		d.markLost(op, err)
		return fmt.Errorf("cgpu: %s: %w", op, err)
	}
	logNative(d.log, op, err)
	return fmt.Errorf("cgpu: %s: %w", op, err)
}
