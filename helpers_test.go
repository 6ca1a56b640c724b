package cgpu_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/backend/null"
)

// testEnv is a device on a private null driver.
type testEnv struct {
	inst  *cgpu.Instance
	dev   *cgpu.Device
	queue *cgpu.Queue
	rec   *null.Recorder
	alloc *cgpu.CountingAllocator
}

func registerNull(t *testing.T, cfg null.Config) (string, *null.Driver) {
	t.Helper()
	drv := null.New(cfg)
	name := "null-" + strings.ReplaceAll(t.Name(), "/", "-")
	cgpu.Register(name, func() cgpu.Driver { return drv })
	t.Cleanup(func() { cgpu.Unregister(name) })
	return name, drv
}

func newEnvWith(t *testing.T, cfg null.Config, opts ...cgpu.InstanceOption) *testEnv {
	t.Helper()
	name, drv := registerNull(t, cfg)
	alloc := cgpu.NewCountingAllocator(nil)
	opts = append([]cgpu.InstanceOption{cgpu.WithAllocator(alloc), cgpu.WithSetName(true)}, opts...)
	inst, err := cgpu.CreateInstance(name, opts...)
	require.NoError(t, err)
	require.NotEmpty(t, inst.Adapters())

	dev, err := inst.Adapters()[0].CreateDevice(&cgpu.DeviceDescriptor{
		Name:   "test",
		Queues: []cgpu.QueueGroup{{Type: cgpu.QueueGraphics, Count: 1}, {Type: cgpu.QueueCompute, Count: 1}},
	})
	require.NoError(t, err)
	q, err := dev.Queue(cgpu.QueueGraphics, 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		dev.Free()
		inst.Free()
	})
	return &testEnv{inst: inst, dev: dev, queue: q, rec: drv.Recorder(), alloc: alloc}
}

func newEnv(t *testing.T) *testEnv {
	return newEnvWith(t, null.DefaultConfig())
}

// library creates a shader library with hand-written reflection.
func (e *testEnv) library(t *testing.T, name string, stage cgpu.ShaderStage, res ...cgpu.ShaderResource) *cgpu.ShaderLibrary {
	t.Helper()
	lib, err := e.dev.CreateShaderLibrary(&cgpu.ShaderLibraryDescriptor{
		Name: name,
		WGSL: "// " + name,
		Reflection: &cgpu.ShaderReflection{
			EntryPoints: []cgpu.EntryPoint{{Name: "main", Stage: stage}},
			Resources:   res,
		},
	})
	require.NoError(t, err)
	t.Cleanup(lib.Free)
	return lib
}

func shader(lib *cgpu.ShaderLibrary, stage cgpu.ShaderStage) cgpu.PipelineShader {
	return cgpu.PipelineShader{Library: lib, Stage: stage, Entry: "main"}
}

func (e *testEnv) buffer(t *testing.T, name string, size uint64, flags cgpu.BufferFlags) *cgpu.Buffer {
	t.Helper()
	b, err := e.dev.CreateBuffer(&cgpu.BufferDescriptor{
		Name:        name,
		Size:        size,
		Descriptors: cgpu.ResourceTypeRWBuffer | cgpu.ResourceTypeUniformBuffer,
		Flags:       flags,
	})
	require.NoError(t, err)
	t.Cleanup(b.Free)
	return b
}
