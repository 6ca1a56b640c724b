package cgpu_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/backend/null"
)

func materialSignature(t *testing.T, e *testEnv) *cgpu.RootSignature {
	t.Helper()
	fs := e.library(t, "material", cgpu.ShaderStageFragment,
		cgpu.ShaderResource{Name: "params", Binding: 0, Type: cgpu.ResourceTypeUniformBuffer},
		cgpu.ShaderResource{Name: "textures", Binding: 1, Type: cgpu.ResourceTypeTexture, ArraySize: 3},
		cgpu.ShaderResource{Name: "smp", Binding: 2, Type: cgpu.ResourceTypeSampler},
	)
	rs, err := e.dev.CreateRootSignature(&cgpu.RootSignatureDescriptor{
		Name:    "material",
		Shaders: []cgpu.PipelineShader{shader(fs, cgpu.ShaderStageFragment)},
	})
	require.NoError(t, err)
	t.Cleanup(rs.Free)
	return rs
}

func (e *testEnv) view(t *testing.T, name string) *cgpu.TextureView {
	t.Helper()
	tex, err := e.dev.CreateTexture(&cgpu.TextureDescriptor{
		Name: name, Width: 4, Height: 4,
		Format:      gputypes.TextureFormatRGBA8Unorm,
		Descriptors: cgpu.ResourceTypeTexture,
	})
	require.NoError(t, err)
	t.Cleanup(tex.Free)
	v, err := e.dev.CreateTextureView(&cgpu.TextureViewDescriptor{Name: name, Texture: tex})
	require.NoError(t, err)
	t.Cleanup(v.Free)
	return v
}

func record(records []byte, slot int) [3]uint64 {
	base := slot * 24
	return [3]uint64{
		binary.NativeEndian.Uint64(records[base:]),
		binary.NativeEndian.Uint64(records[base+8:]),
		binary.NativeEndian.Uint64(records[base+16:]),
	}
}

func TestDescriptorSetTemplateRecords(t *testing.T) {
	e := newEnv(t)
	rs := materialSignature(t, e)
	ubo := e.buffer(t, "params", 256, cgpu.BufferFlagNone)
	v0, v1 := e.view(t, "t0"), e.view(t, "t1")
	smp, err := e.dev.CreateSampler(&cgpu.SamplerDescriptor{Name: "smp"})
	require.NoError(t, err)
	defer smp.Free()

	ds, err := e.dev.CreateDescriptorSet(rs, 0)
	require.NoError(t, err)
	defer ds.Free()
	require.Len(t, ds.Records(), 5*24)

	err = ds.Update([]cgpu.DescriptorData{
		{Name: "params", Buffers: []*cgpu.Buffer{ubo}, Offsets: []uint64{64}, Sizes: []uint64{128}},
		{Name: "textures", Index: 1, Textures: []*cgpu.TextureView{v0, v1}},
		{Binding: 2, Type: cgpu.ResourceTypeSampler, Samplers: []*cgpu.Sampler{smp}},
	})
	require.NoError(t, err)

	recs := ds.Records()
	assert.Equal(t, [3]uint64{ubo.Native().NativeHandle(), 64, 128}, record(recs, 0))
	assert.Equal(t, [3]uint64{}, record(recs, 1), "untouched array element changed")
	assert.Equal(t, [3]uint64{0, v0.Native().NativeHandle(), uint64(cgpu.ImageLayoutShaderReadOnly)}, record(recs, 2))
	assert.Equal(t, [3]uint64{0, v1.Native().NativeHandle(), uint64(cgpu.ImageLayoutShaderReadOnly)}, record(recs, 3))
	assert.Equal(t, [3]uint64{smp.Native().NativeHandle(), 0, 0}, record(recs, 4))

	nds := ds.Native().(*null.DescriptorSet)
	assert.Equal(t, recs, nds.Records)
	assert.Zero(t, e.rec.Count("WriteDescriptorSet"))
}

func TestDescriptorSetUpdateIsIdempotent(t *testing.T) {
	e := newEnv(t)
	rs := materialSignature(t, e)
	ubo := e.buffer(t, "params", 64, cgpu.BufferFlagNone)
	ds, err := e.dev.CreateDescriptorSet(rs, 0)
	require.NoError(t, err)
	defer ds.Free()

	data := []cgpu.DescriptorData{{Name: "params", Buffers: []*cgpu.Buffer{ubo}}}
	require.NoError(t, ds.Update(data))
	first := append([]byte(nil), ds.Records()...)
	require.NoError(t, ds.Update(data))
	assert.Equal(t, first, ds.Records())
	assert.Equal(t, [3]uint64{ubo.Native().NativeHandle(), 0, cgpu.WholeSize}, record(first, 0))
	assert.Equal(t, 2, e.rec.Count("UpdateDescriptorSetWithTemplate"))
}

func TestDescriptorSetUpdateErrors(t *testing.T) {
	e := newEnv(t)
	rs := materialSignature(t, e)
	v := e.view(t, "t")
	ds, err := e.dev.CreateDescriptorSet(rs, 0)
	require.NoError(t, err)
	defer ds.Free()

	t.Run("unknown name", func(t *testing.T) {
		err := ds.Update([]cgpu.DescriptorData{{Name: "missing", Binding: 9}})
		assert.ErrorIs(t, err, cgpu.ErrNotFound)
	})
	t.Run("type narrows binding", func(t *testing.T) {
		err := ds.Update([]cgpu.DescriptorData{{Binding: 1, Type: cgpu.ResourceTypeSampler}})
		assert.ErrorIs(t, err, cgpu.ErrNotFound)
	})
	t.Run("array overflow", func(t *testing.T) {
		err := ds.Update([]cgpu.DescriptorData{{Name: "textures", Index: 2, Textures: []*cgpu.TextureView{v, v}}})
		var rerr *cgpu.DescriptorRangeError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, uint32(3), rerr.Index)
		assert.Equal(t, uint32(3), rerr.ArraySize)
	})
	t.Run("index wraps", func(t *testing.T) {
		before := append([]byte(nil), ds.Records()...)
		err := ds.Update([]cgpu.DescriptorData{{Name: "textures", Index: ^uint32(0), Textures: []*cgpu.TextureView{v}}})
		var rerr *cgpu.DescriptorRangeError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, ^uint32(0), rerr.Index)
		assert.Equal(t, before, ds.Records())
	})
	t.Run("mismatched resources", func(t *testing.T) {
		buf := e.buffer(t, "b", 64, cgpu.BufferFlagNone)
		smp, err := e.dev.CreateSampler(&cgpu.SamplerDescriptor{Name: "s"})
		require.NoError(t, err)
		defer smp.Free()

		before := append([]byte(nil), ds.Records()...)
		for _, dd := range []cgpu.DescriptorData{
			{Name: "textures", Buffers: []*cgpu.Buffer{buf}},
			{Name: "smp", Textures: []*cgpu.TextureView{v}},
			{Name: "params", Samplers: []*cgpu.Sampler{smp}},
			{Name: "params", Buffers: []*cgpu.Buffer{buf}, Textures: []*cgpu.TextureView{v}},
		} {
			err := ds.Update([]cgpu.DescriptorData{dd})
			var merr *cgpu.DescriptorMismatchError
			require.ErrorAs(t, err, &merr, dd.Name)
			assert.Equal(t, dd.Name, merr.Name)
		}
		assert.Equal(t, before, ds.Records())
	})
	t.Run("set out of range", func(t *testing.T) {
		_, err := e.dev.CreateDescriptorSet(rs, 4)
		assert.ErrorIs(t, err, cgpu.ErrCreationFailed)
	})
}

func TestDescriptorSetFallbackWritesBatch(t *testing.T) {
	cfg := null.DefaultConfig()
	cfg.Adapters[0].Detail.SupportsUpdateTemplates = false
	e := newEnvWith(t, cfg)

	var res []cgpu.ShaderResource
	for i := range 8 {
		res = append(res, cgpu.ShaderResource{Name: fmt.Sprintf("b%d", i), Binding: uint32(i), Type: cgpu.ResourceTypeUniformBuffer})
	}
	cs := e.library(t, "cs", cgpu.ShaderStageCompute, res...)
	rs, err := e.dev.CreateRootSignature(&cgpu.RootSignatureDescriptor{
		Shaders: []cgpu.PipelineShader{shader(cs, cgpu.ShaderStageCompute)},
	})
	require.NoError(t, err)
	defer rs.Free()

	ds, err := e.dev.CreateDescriptorSet(rs, 0)
	require.NoError(t, err)
	defer ds.Free()
	assert.Nil(t, ds.Records())

	ubo := e.buffer(t, "ubo", 64, cgpu.BufferFlagNone)
	var data []cgpu.DescriptorData
	for i := range 8 {
		data = append(data, cgpu.DescriptorData{Name: fmt.Sprintf("b%d", i), Buffers: []*cgpu.Buffer{ubo}})
	}
	require.NoError(t, ds.Update(data))

	calls := e.rec.Filter("WriteDescriptorSet")
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].Arg(0), 6)
	assert.Len(t, calls[1].Arg(0), 2)

	writes := ds.Native().(*null.DescriptorSet).Writes
	require.Len(t, writes, 8)
	for i, w := range writes {
		assert.Equal(t, uint32(i), w.Binding)
		assert.Equal(t, []cgpu.BufferInfo{{Buffer: ubo.Native().NativeHandle(), Range: cgpu.WholeSize}}, w.Buffers)
	}
	assert.Zero(t, e.rec.Count("UpdateDescriptorSetWithTemplate"))
}

func TestDescriptorSetFallbackImageLayouts(t *testing.T) {
	cfg := null.DefaultConfig()
	cfg.Adapters[0].Detail.SupportsUpdateTemplates = false
	e := newEnvWith(t, cfg)
	cs := e.library(t, "cs", cgpu.ShaderStageCompute,
		cgpu.ShaderResource{Name: "src", Binding: 0, Type: cgpu.ResourceTypeTexture},
		cgpu.ShaderResource{Name: "dst", Binding: 1, Type: cgpu.ResourceTypeRWTexture})
	rs, err := e.dev.CreateRootSignature(&cgpu.RootSignatureDescriptor{
		Shaders: []cgpu.PipelineShader{shader(cs, cgpu.ShaderStageCompute)},
	})
	require.NoError(t, err)
	defer rs.Free()
	ds, err := e.dev.CreateDescriptorSet(rs, 0)
	require.NoError(t, err)
	defer ds.Free()

	src, dst := e.view(t, "src"), e.view(t, "dst")
	require.NoError(t, ds.Update([]cgpu.DescriptorData{
		{Name: "src", Textures: []*cgpu.TextureView{src}},
		{Name: "dst", Textures: []*cgpu.TextureView{dst}},
	}))
	writes := ds.Native().(*null.DescriptorSet).Writes
	require.Len(t, writes, 2)
	assert.Equal(t, cgpu.ImageLayoutShaderReadOnly, writes[0].Images[0].Layout)
	assert.Equal(t, cgpu.ImageLayoutGeneral, writes[1].Images[0].Layout)
}

func TestDescriptorSetRecordsUseInstanceAllocator(t *testing.T) {
	e := newEnv(t)
	rs := materialSignature(t, e)
	liveBefore, _ := e.alloc.Live()

	ds, err := e.dev.CreateDescriptorSet(rs, 0)
	require.NoError(t, err)
	live, bytes := e.alloc.Live()
	assert.Equal(t, liveBefore+1, live)
	assert.GreaterOrEqual(t, bytes, int64(5*24))

	ds.Free()
	live, _ = e.alloc.Live()
	assert.Equal(t, liveBefore, live)
	assert.True(t, ds.Native() == nil)
}
