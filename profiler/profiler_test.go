package profiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/backend/null"
)

func newDevice(t *testing.T) (*cgpu.Device, *cgpu.Queue) {
	t.Helper()
	drv := null.New(null.DefaultConfig())
	name := "null-" + strings.ReplaceAll(t.Name(), "/", "-")
	cgpu.Register(name, func() cgpu.Driver { return drv })
	t.Cleanup(func() { cgpu.Unregister(name) })

	inst, err := cgpu.CreateInstance(name)
	require.NoError(t, err)
	dev, err := inst.Adapters()[0].CreateDevice(&cgpu.DeviceDescriptor{
		Queues: []cgpu.QueueGroup{{Type: cgpu.QueueGraphics, Count: 1}},
	})
	require.NoError(t, err)
	q, err := dev.Queue(cgpu.QueueGraphics, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		dev.Free()
		inst.Free()
	})
	return dev, q
}

func submit(t *testing.T, q *cgpu.Queue, f *cgpu.Frame) {
	t.Helper()
	require.NoError(t, f.Cmd.End())
	require.NoError(t, q.Submit(&cgpu.QueueSubmitDescriptor{
		CommandBuffers: []*cgpu.CommandBuffer{f.Cmd},
		SignalFence:    f.Fence,
	}))
}

func TestProfilerFrames(t *testing.T) {
	dev, q := newDevice(t)
	ring, err := dev.CreateFrameRing(q, 2)
	require.NoError(t, err)
	defer ring.Free()

	p, err := New(dev, q, ring.Len())
	require.NoError(t, err)
	defer p.Free()

	// frame 0: two sections
	f, err := ring.Next()
	require.NoError(t, err)
	require.NoError(t, f.Cmd.Begin())
	last, err := p.Begin(f.Cmd, f.Index)
	require.NoError(t, err)
	assert.Nil(t, last, "slot never recorded")
	require.NoError(t, p.Mark(f.Cmd, f.Index, "shadows"))
	require.NoError(t, p.Mark(f.Cmd, f.Index, "main"))
	require.NoError(t, p.End(f.Cmd, f.Index))
	submit(t, q, f)

	// frame 1: one section in the other slot
	f, err = ring.Next()
	require.NoError(t, err)
	require.NoError(t, f.Cmd.Begin())
	last, err = p.Begin(f.Cmd, f.Index)
	require.NoError(t, err)
	assert.Nil(t, last)
	require.NoError(t, p.Mark(f.Cmd, f.Index, "blit"))
	require.NoError(t, p.End(f.Cmd, f.Index))
	submit(t, q, f)

	// frame 2 reuses slot 0 and sees frame 0's timing
	f, err = ring.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), f.Index)
	require.NoError(t, f.Cmd.Begin())
	last, err = p.Begin(f.Cmd, f.Index)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Len(t, last.Samples, 2)
	assert.Equal(t, "shadows", last.Samples[0].Label)
	assert.Equal(t, "main", last.Samples[1].Label)
	// the null queue ticks once per timestamp and reports 1ns per tick
	assert.InDelta(t, 0.001, last.Samples[0].Micros, 1e-9)
	assert.InDelta(t, 0.002, last.Total, 1e-9)
}

func TestProfilerFull(t *testing.T) {
	dev, q := newDevice(t)
	p, err := New(dev, q, 1)
	require.NoError(t, err)
	defer p.Free()

	pool, err := dev.CreateCommandPool(q)
	require.NoError(t, err)
	defer pool.Free()
	cmd, err := pool.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())

	require.Error(t, p.Mark(cmd, 0, "early"), "mark before Begin")
	_, err = p.Begin(cmd, 0)
	require.NoError(t, err)
	for i := 1; i < MaxTimestamps; i++ {
		require.NoError(t, p.Mark(cmd, 0, "section"))
	}
	require.ErrorIs(t, p.Mark(cmd, 0, "one too many"), ErrFull)
	require.NoError(t, p.End(cmd, 0))
}

func TestMicros(t *testing.T) {
	p := &Profiler{period: 83.333}
	tests := []struct {
		from, to uint64
		want     float64
	}{
		{0, 12, 12 * 83.333 / 1000},
		{100, 100, 0},
		{200, 100, 0},
	}
	for _, tt := range tests {
		if got := p.micros(tt.from, tt.to); got != tt.want {
			t.Errorf("micros(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNewNoFrames(t *testing.T) {
	dev, q := newDevice(t)
	_, err := New(dev, q, 0)
	require.Error(t, err)
}
