package cgpu_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cgpu"
)

// recorded returns an executable, empty command buffer.
func (e *testEnv) recorded(t *testing.T) *cgpu.CommandBuffer {
	t.Helper()
	_, cmd := e.commandBuffer(t)
	require.NoError(t, cmd.Begin())
	require.NoError(t, cmd.End())
	return cmd
}

func TestFenceLifecycle(t *testing.T) {
	e := newEnv(t)
	f, err := e.dev.CreateFence()
	require.NoError(t, err)
	defer f.Free()

	st, err := f.Status()
	require.NoError(t, err)
	assert.Equal(t, cgpu.FenceNotSubmitted, st)

	cmd := e.recorded(t)
	require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{
		CommandBuffers: []*cgpu.CommandBuffer{cmd},
		SignalFence:    f,
	}))
	assert.True(t, f.Submitted())
	st, err = f.Status()
	require.NoError(t, err)
	assert.Equal(t, cgpu.FenceComplete, st)

	require.NoError(t, e.dev.WaitFences([]*cgpu.Fence{f}, time.Second))
	assert.False(t, f.Submitted())
	assert.Equal(t, 1, e.rec.Count("ResetFences"))

	// The fence can be submitted again.
	require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{SignalFence: f}))
	require.NoError(t, e.dev.WaitFences([]*cgpu.Fence{f}, 0))
}

func TestWaitFencesSkipsUnsubmitted(t *testing.T) {
	e := newEnv(t)
	f1, err := e.dev.CreateFence()
	require.NoError(t, err)
	defer f1.Free()
	f2, err := e.dev.CreateFence()
	require.NoError(t, err)
	defer f2.Free()

	require.NoError(t, e.dev.WaitFences([]*cgpu.Fence{f1, nil, f2}, 0))
	assert.Zero(t, e.rec.Count("WaitFences"))

	require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{SignalFence: f2}))
	require.NoError(t, e.dev.WaitFences([]*cgpu.Fence{f1, f2}, 0))
	calls := e.rec.Filter("WaitFences")
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].Arg(0))
}

func TestWaitFencesTimeoutKeepsSubmitted(t *testing.T) {
	e := newEnv(t)
	f, err := e.dev.CreateFence()
	require.NoError(t, err)
	defer f.Free()
	require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{SignalFence: f}))
	e.rec.Inject("WaitFences", cgpu.ErrTimeout)

	err = e.dev.WaitFences([]*cgpu.Fence{f}, time.Millisecond)
	assert.ErrorIs(t, err, cgpu.ErrTimeout)
	assert.True(t, f.Submitted())
	assert.False(t, e.dev.IsLost())
}

func TestSemaphoreFiltering(t *testing.T) {
	e := newEnv(t)
	s1, err := e.dev.CreateSemaphore()
	require.NoError(t, err)
	defer s1.Free()
	s2, err := e.dev.CreateSemaphore()
	require.NoError(t, err)
	defer s2.Free()

	// Waiting on never-signaled semaphores drops them instead of hanging.
	require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{
		WaitSemaphores:   []*cgpu.Semaphore{s1, nil},
		SignalSemaphores: []*cgpu.Semaphore{s1, s2},
	}))
	assert.True(t, s1.Signaled())
	assert.True(t, s2.Signaled())
	submit := e.rec.Filter("Submit")[0]
	assert.Equal(t, 0, submit.Arg(1), "unsignaled semaphore waited on")
	assert.Equal(t, 2, submit.Arg(2))

	// A signaled semaphore is not signaled twice, and a wait consumes it.
	require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{
		WaitSemaphores:   []*cgpu.Semaphore{s1},
		SignalSemaphores: []*cgpu.Semaphore{s2},
	}))
	submit = e.rec.Filter("Submit")[1]
	assert.Equal(t, 1, submit.Arg(1))
	assert.Equal(t, 0, submit.Arg(2))
	assert.False(t, s1.Signaled())
	assert.True(t, s2.Signaled())
}

func TestFailedSubmitKeepsSemaphoreFlags(t *testing.T) {
	e := newEnv(t)
	s1, err := e.dev.CreateSemaphore()
	require.NoError(t, err)
	defer s1.Free()
	s2, err := e.dev.CreateSemaphore()
	require.NoError(t, err)
	defer s2.Free()
	require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{SignalSemaphores: []*cgpu.Semaphore{s1}}))

	e.rec.Inject("Submit", errors.New("out of host memory"))
	err = e.queue.Submit(&cgpu.QueueSubmitDescriptor{
		WaitSemaphores:   []*cgpu.Semaphore{s1},
		SignalSemaphores: []*cgpu.Semaphore{s2},
	})
	require.Error(t, err)
	assert.False(t, e.dev.IsLost())
	assert.True(t, s1.Signaled(), "wait consumed by a failed submit")
	assert.False(t, s2.Signaled(), "signal recorded for a failed submit")

	// Waiting on and re-signaling the same semaphore in one submission.
	require.NoError(t, e.queue.Submit(&cgpu.QueueSubmitDescriptor{
		WaitSemaphores:   []*cgpu.Semaphore{s1},
		SignalSemaphores: []*cgpu.Semaphore{s1, s1},
	}))
	submit := e.rec.Filter("Submit")[2]
	assert.Equal(t, 1, submit.Arg(1))
	assert.Equal(t, 1, submit.Arg(2))
	assert.True(t, s1.Signaled())
}

func TestDeviceLostIsSticky(t *testing.T) {
	e := newEnv(t)
	f, err := e.dev.CreateFence()
	require.NoError(t, err)
	defer f.Free()
	e.rec.Inject("Submit", cgpu.ErrDeviceLost)

	err = e.queue.Submit(&cgpu.QueueSubmitDescriptor{SignalFence: f})
	assert.ErrorIs(t, err, cgpu.ErrDeviceLost)
	assert.True(t, e.dev.IsLost())
	assert.False(t, f.Submitted(), "fence marked submitted after a failed submit")

	before := e.rec.Count("Submit")
	err = e.queue.Submit(&cgpu.QueueSubmitDescriptor{})
	assert.True(t, errors.Is(err, cgpu.ErrDeviceLost))
	assert.Equal(t, before, e.rec.Count("Submit"))
}

func TestOneOffUsesScratchObjects(t *testing.T) {
	e := newEnv(t)
	src := e.buffer(t, "src", 8, cgpu.BufferFlagHostVisible)
	dst := e.buffer(t, "dst", 8, cgpu.BufferFlagHostVisible)
	m, err := src.Map()
	require.NoError(t, err)
	copy(m, "cgpu-one")
	src.Unmap()

	for range 2 {
		require.NoError(t, e.queue.OneOff(func(cmd *cgpu.CommandBuffer) error {
			return cmd.CopyBufferToBuffer(&cgpu.BufferToBufferCopy{Src: src, Dst: dst, Size: cgpu.WholeSize})
		}))
	}
	out, err := dst.Map()
	require.NoError(t, err)
	assert.Equal(t, "cgpu-one", string(out))
	assert.Equal(t, 2, e.rec.Count("Submit"))
	assert.Equal(t, 2, e.rec.Count("WaitFences"))

	boom := errors.New("boom")
	err = e.queue.OneOff(func(*cgpu.CommandBuffer) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, e.rec.Count("Submit"))
	require.NoError(t, e.queue.OneOff(func(*cgpu.CommandBuffer) error { return nil }),
		"scratch buffer not recyclable after a failed recording")
}
