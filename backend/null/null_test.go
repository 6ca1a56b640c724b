package null

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/cgpu"
)

func newDevice(t *testing.T) (*Device, *Recorder) {
	t.Helper()
	drv := New(DefaultConfig())
	ni, err := drv.CreateInstance(&cgpu.InstanceDescriptor{})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	adapters, err := ni.Adapters()
	if err != nil || len(adapters) != 1 {
		t.Fatalf("Adapters() = %d, %v", len(adapters), err)
	}
	nd, err := adapters[0].CreateDevice(&cgpu.NativeDeviceDescriptor{
		Queues: []cgpu.QueueRequest{{Family: 0, Count: 1}},
	})
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	return nd.(*Device), drv.Recorder()
}

func TestRecorderInjectIsOneShot(t *testing.T) {
	rec := NewRecorder()
	boom := errors.New("boom")
	rec.Inject("Op", boom)

	if err := rec.record("Op"); !errors.Is(err, boom) {
		t.Fatalf("first call error = %v, want %v", err, boom)
	}
	if err := rec.record("Op"); err != nil {
		t.Fatalf("second call error = %v, want nil", err)
	}
	if got := rec.Count("Op"); got != 2 {
		t.Errorf("Count(Op) = %d, want 2", got)
	}
}

func TestRecorderReset(t *testing.T) {
	rec := NewRecorder()
	_ = rec.record("A")
	rec.Inject("B", errors.New("x"))
	rec.Reset()
	if len(rec.Calls()) != 0 {
		t.Errorf("Calls() after Reset = %v", rec.Ops())
	}
	if err := rec.record("B"); err != nil {
		t.Errorf("injection survived Reset: %v", err)
	}
}

func TestHandlesAreUnique(t *testing.T) {
	d, _ := newDevice(t)
	a, _ := d.CreateBuffer(&cgpu.BufferDescriptor{Size: 4})
	b, _ := d.CreateBuffer(&cgpu.BufferDescriptor{Size: 4})
	if a.NativeHandle() == b.NativeHandle() {
		t.Errorf("two buffers share handle %d", a.NativeHandle())
	}
}

func TestQueueRequestOutOfRange(t *testing.T) {
	d, _ := newDevice(t)
	if _, err := d.Queue(0, 1); err == nil {
		t.Error("Queue(0, 1) succeeded for a single requested queue")
	}
	if _, err := d.Queue(0, 0); err != nil {
		t.Errorf("Queue(0, 0) error = %v", err)
	}
}

func TestSubmitExecutesCopies(t *testing.T) {
	d, _ := newDevice(t)
	src, _ := d.CreateBuffer(&cgpu.BufferDescriptor{Size: 8})
	dst, _ := d.CreateBuffer(&cgpu.BufferDescriptor{Size: 8})
	copy(src.(*Buffer).Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8})

	pool, _ := d.CreateCommandPool(0)
	cmd, _ := pool.Allocate()
	if err := cmd.Begin(); err != nil {
		t.Fatal(err)
	}
	cmd.CopyBufferToBuffer(src, dst, []cgpu.BufferCopy{{SrcOffset: 2, DstOffset: 0, Size: 4}})
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}
	fence, _ := d.CreateFence()
	q, _ := d.Queue(0, 0)
	if err := q.Submit(&cgpu.NativeSubmit{CommandBuffers: []cgpu.NativeCommandBuffer{cmd}, Fence: fence}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	want := []byte{3, 4, 5, 6, 0, 0, 0, 0}
	if got := dst.(*Buffer).Bytes(); string(got) != string(want) {
		t.Errorf("dst = %v, want %v", got, want)
	}
	if !fence.(*Fence).Signaled() {
		t.Error("fence not signaled after Submit")
	}
}

func TestSubmitRejectsRecordingBuffer(t *testing.T) {
	d, _ := newDevice(t)
	pool, _ := d.CreateCommandPool(0)
	cmd, _ := pool.Allocate()
	_ = cmd.Begin()
	q, _ := d.Queue(0, 0)
	if err := q.Submit(&cgpu.NativeSubmit{CommandBuffers: []cgpu.NativeCommandBuffer{cmd}}); err == nil {
		t.Error("Submit() accepted a recording command buffer")
	}
}

func TestTimestampsResolveInOrder(t *testing.T) {
	d, _ := newDevice(t)
	qp, _ := d.CreateQueryPool(cgpu.QueryTypeTimestamp, 4)
	out, _ := d.CreateBuffer(&cgpu.BufferDescriptor{Size: 32})
	pool, _ := d.CreateCommandPool(0)
	cmd, _ := pool.Allocate()
	_ = cmd.Begin()
	cmd.WriteTimestamp(qp, 0)
	cmd.WriteTimestamp(qp, 1)
	cmd.ResolveQuery(qp, out, 0, 2)
	_ = cmd.End()
	q, _ := d.Queue(0, 0)
	if err := q.Submit(&cgpu.NativeSubmit{CommandBuffers: []cgpu.NativeCommandBuffer{cmd}}); err != nil {
		t.Fatal(err)
	}
	b := out.(*Buffer).Bytes()
	t0 := binary.LittleEndian.Uint64(b[0:])
	t1 := binary.LittleEndian.Uint64(b[8:])
	if t1 <= t0 {
		t.Errorf("timestamps %d, %d are not increasing", t0, t1)
	}
}

func TestWaitUnsignaledFenceTimesOut(t *testing.T) {
	d, _ := newDevice(t)
	f, _ := d.CreateFence()
	if err := d.WaitFences([]cgpu.NativeFence{f}, 0); !errors.Is(err, cgpu.ErrTimeout) {
		t.Errorf("WaitFences() error = %v, want ErrTimeout", err)
	}
}

func TestSwapchainAcquireRoundRobin(t *testing.T) {
	d, rec := newDevice(t)
	sc, err := d.CreateSwapchain(&cgpu.NativeSwapchainDescriptor{ImageCount: 3, Extent: cgpu.Extent2D{Width: 4, Height: 4}})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(sc.Images()); n != 3 {
		t.Fatalf("Images() = %d, want 3", n)
	}
	for want := range uint32(4) {
		idx, err := sc.Acquire(nil, nil, 0)
		if err != nil {
			t.Fatal(err)
		}
		if idx != want%3 {
			t.Errorf("Acquire() = %d, want %d", idx, want%3)
		}
	}

	rec.Inject("Acquire", cgpu.ErrOutOfDate)
	if _, err := sc.Acquire(nil, nil, 0); !errors.Is(err, cgpu.ErrOutOfDate) {
		t.Errorf("Acquire() error = %v, want ErrOutOfDate", err)
	}
}
