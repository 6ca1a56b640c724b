package cgpu_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/backend/null"
)

func TestCreateInstanceNullBackend(t *testing.T) {
	require.True(t, cgpu.IsRegistered(cgpu.BackendNull))

	inst, err := cgpu.CreateInstance(cgpu.BackendNull, cgpu.WithDebugLayer(true))
	require.NoError(t, err)
	defer inst.Free()

	assert.Equal(t, cgpu.BackendNull, inst.Backend())
	assert.Len(t, inst.Adapters(), 1)
	assert.True(t, inst.HasLayer(null.ValidationLayer))
	assert.NotNil(t, inst.Logger())
}

func TestCreateInstanceUnknownBackend(t *testing.T) {
	_, err := cgpu.CreateInstance("does-not-exist")
	assert.ErrorIs(t, err, cgpu.ErrNoBackend)
}

func TestCreateInstanceDriverFailure(t *testing.T) {
	name, drv := registerNull(t, null.DefaultConfig())
	drv.Recorder().Inject("CreateInstance", errors.New("no loader"))

	_, err := cgpu.CreateInstance(name)
	var ce *cgpu.CreationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "CreateInstance", ce.Op)
	assert.ErrorIs(t, err, cgpu.ErrCreationFailed)
}

func TestAdaptersSortedByType(t *testing.T) {
	adapter := func(name string, typ gputypes.DeviceType) null.AdapterConfig {
		a := null.DefaultAdapter()
		a.Detail.Info.Name = name
		a.Detail.Info.DeviceType = typ
		return a
	}
	name, _ := registerNull(t, null.Config{Adapters: []null.AdapterConfig{
		adapter("cpu", gputypes.DeviceTypeCPU),
		adapter("other", gputypes.DeviceTypeOther),
		adapter("discrete", gputypes.DeviceTypeDiscreteGPU),
		adapter("integrated-a", gputypes.DeviceTypeIntegratedGPU),
		adapter("virtual", gputypes.DeviceTypeVirtualGPU),
		adapter("integrated-b", gputypes.DeviceTypeIntegratedGPU),
	}})
	inst, err := cgpu.CreateInstance(name)
	require.NoError(t, err)
	defer inst.Free()

	var got []string
	for _, a := range inst.Adapters() {
		got = append(got, a.Info().Name)
	}
	assert.Equal(t, []string{"discrete", "integrated-a", "integrated-b", "virtual", "cpu", "other"}, got)
}

func TestQueueFamilySelection(t *testing.T) {
	e := newEnv(t)
	a := e.dev.Adapter()

	tests := []struct {
		typ  cgpu.QueueType
		want uint32
	}{
		{cgpu.QueueGraphics, 0},
		{cgpu.QueueCompute, 1},
		{cgpu.QueueTransfer, 2},
	}
	for _, tt := range tests {
		fam, err := a.QueueFamilyIndex(tt.typ)
		require.NoError(t, err, tt.typ.String())
		assert.Equal(t, tt.want, fam, tt.typ.String())
	}
	_, err := a.QueueFamilyIndex(cgpu.QueueTileMapping)
	assert.ErrorIs(t, err, cgpu.ErrNoQueue)
	assert.Equal(t, uint32(2), a.QueueCount(cgpu.QueueGraphics))
}

func TestDeviceQueueIsCached(t *testing.T) {
	e := newEnv(t)
	q1, err := e.dev.Queue(cgpu.QueueGraphics, 0)
	require.NoError(t, err)
	q2, err := e.dev.Queue(cgpu.QueueGraphics, 0)
	require.NoError(t, err)
	assert.Same(t, q1, q2)

	_, err = e.dev.Queue(cgpu.QueueGraphics, 5)
	assert.ErrorIs(t, err, cgpu.ErrNoQueue)

	cq, err := e.dev.Queue(cgpu.QueueCompute, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cq.Family())
}

func TestSetNameForwarded(t *testing.T) {
	e := newEnv(t)
	e.buffer(t, "vertices", 64, 0)
	var names []string
	for _, c := range e.rec.Filter("SetObjectName") {
		names = append(names, c.Arg(1).(string))
	}
	assert.Contains(t, names, "vertices")
}

func TestProviderReportsAdapter(t *testing.T) {
	e := newEnv(t)
	p := e.dev.Provider(e.queue, gputypes.TextureFormatBGRA8Unorm)
	assert.Same(t, e.dev, p.Device())
	assert.Same(t, e.queue, p.Queue())
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, p.SurfaceFormat())
	assert.Equal(t, "Null Adapter", p.AdapterInfo().Name)
}
