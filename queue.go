package cgpu

import (
	"errors"
	"sync"
)

// submitWaitStage conservatively covers every consumer of a wait semaphore.
const submitWaitStage = PipelineStageColorAttachmentOutput | PipelineStageComputeShader | PipelineStageTransfer

// Queue is one hardware queue of a Device. It owns a scratch command pool,
// command buffer and fence for synchronous one-off work.
type Queue struct {
	device *Device
	native NativeQueue
	typ    QueueType
	index  uint32
	family uint32

	// mu guards Submit and Present when the device was created with
	// ThreadSafeQueues. nil otherwise.
	mu *sync.Mutex

	scratchPool  *CommandPool
	scratchCmd   *CommandBuffer
	scratchFence *Fence
}

func newQueue(d *Device, t QueueType, index, family uint32, nq NativeQueue) (*Queue, error) {
	q := &Queue{device: d, native: nq, typ: t, index: index, family: family}
	if d.threadSafe {
		q.mu = &sync.Mutex{}
	}
	pool, err := d.CreateCommandPool(q)
	if err != nil {
		return nil, err
	}
	cmd, err := pool.CreateCommandBuffer()
	if err != nil {
		pool.Free()
		return nil, err
	}
	fence, err := d.CreateFence()
	if err != nil {
		cmd.Free()
		pool.Free()
		return nil, err
	}
	q.scratchPool, q.scratchCmd, q.scratchFence = pool, cmd, fence
	return q, nil
}

// Type returns the queue type.
func (q *Queue) Type() QueueType { return q.typ }

// Index returns the queue index within its type.
func (q *Queue) Index() uint32 { return q.index }

// Family returns the native queue family index.
func (q *Queue) Family() uint32 { return q.family }

// Device returns the owning device.
func (q *Queue) Device() *Device { return q.device }

// Native returns the backend queue.
func (q *Queue) Native() NativeQueue { return q.native }

// TimestampPeriod returns nanoseconds per timestamp tick.
func (q *Queue) TimestampPeriod() float32 { return q.device.adapter.detail.TimestampPeriod }

func (q *Queue) lock() func() {
	if q.mu == nil {
		return func() {}
	}
	q.mu.Lock()
	return q.mu.Unlock
}

// QueueSubmitDescriptor is one submission.
type QueueSubmitDescriptor struct {
	CommandBuffers   []*CommandBuffer
	WaitSemaphores   []*Semaphore
	SignalSemaphores []*Semaphore
	SignalFence      *Fence
}

// Submit submits command buffers. Wait semaphores that were never signaled
// are dropped, signal semaphores that are already signaled are dropped, and
// semaphore flags and the fence change only after the native call succeeds.
// A device loss flips Device.IsLost and returns an error matching
// ErrDeviceLost.
func (q *Queue) Submit(desc *QueueSubmitDescriptor) error {
	unlock := q.lock()
	defer unlock()

	d := q.device
	if d.IsLost() {
		return ErrDeviceLost
	}
	cmds := make([]NativeCommandBuffer, 0, len(desc.CommandBuffers))
	for _, c := range desc.CommandBuffers {
		if c.state != CommandBufferExecutable {
			return &StateError{Op: "Submit", State: c.state}
		}
		cmds = append(cmds, c.native)
	}

	waits := filterWaits(desc.WaitSemaphores)
	signals := filterSignals(desc.SignalSemaphores, waits)
	ns := &NativeSubmit{
		CommandBuffers: cmds,
		Wait:           nativeSemaphores(waits),
		WaitStage:      submitWaitStage,
		Signal:         nativeSemaphores(signals),
	}
	if desc.SignalFence != nil {
		ns.Fence = desc.SignalFence.native
	}
	if err := q.native.Submit(ns); err != nil {
		return d.classify("Submit", err)
	}
	setSignaled(waits, false)
	setSignaled(signals, true)
	if desc.SignalFence != nil {
		desc.SignalFence.submitted = true
	}
	return nil
}

// QueuePresentDescriptor is one present request.
type QueuePresentDescriptor struct {
	Swapchain      *Swapchain
	WaitSemaphores []*Semaphore
	Index          uint32
}

// Present queues a swapchain image for display. An out-of-date swapchain is
// tolerated: ErrOutOfDate is returned and the caller recreates the
// swapchain.
func (q *Queue) Present(desc *QueuePresentDescriptor) error {
	unlock := q.lock()
	defer unlock()

	waits := filterWaits(desc.WaitSemaphores)
	err := q.native.Present(&NativePresent{
		Swapchain: desc.Swapchain.native,
		Index:     desc.Index,
		Wait:      nativeSemaphores(waits),
	})
	switch {
	case err == nil:
		setSignaled(waits, false)
		return nil
	case errors.Is(err, ErrOutOfDate):
		// the waits still execute on an out-of-date present
		setSignaled(waits, false)
		q.device.log.Warn("cgpu: present on out-of-date swapchain", "index", desc.Index)
		return ErrOutOfDate
	default:
		return q.device.classify("Present", err)
	}
}

// WaitIdle blocks until the queue finished all submitted work.
func (q *Queue) WaitIdle() error {
	return q.device.classify("WaitQueueIdle", q.native.WaitIdle())
}

// OneOff records fn into the queue's scratch command buffer, submits it and
// waits for completion. It is meant for uploads and layout transitions done
// outside the frame loop.
func (q *Queue) OneOff(fn func(cmd *CommandBuffer) error) error {
	if err := q.scratchPool.Reset(); err != nil {
		return err
	}
	cmd := q.scratchCmd
	if err := cmd.Begin(); err != nil {
		return err
	}
	if err := fn(cmd); err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}
	if err := q.Submit(&QueueSubmitDescriptor{
		CommandBuffers: []*CommandBuffer{cmd},
		SignalFence:    q.scratchFence,
	}); err != nil {
		return err
	}
	return q.device.WaitFences([]*Fence{q.scratchFence}, 0)
}

func (q *Queue) free() {
	if q.scratchFence != nil {
		q.scratchFence.Free()
	}
	if q.scratchCmd != nil {
		q.scratchCmd.Free()
	}
	if q.scratchPool != nil {
		q.scratchPool.Free()
	}
}
