package reflection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/naga/ir"
)

const quadShader = `
struct Globals {
    scale: vec2<f32>,
    translate: vec2<f32>,
}

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@group(0) @binding(0) var<uniform> globals: Globals;
@group(1) @binding(1) var color_sampler: sampler;
@group(1) @binding(0) var color_texture: texture_2d<f32>;
@group(0) @binding(3) var unused_texture: texture_2d<f32>;

fn transform(p: vec2<f32>) -> vec2<f32> {
    return p * globals.scale + globals.translate;
}

@vertex
fn vs_main(@location(0) pos: vec2<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(transform(pos), 0.0, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(color_texture, color_sampler, in.uv);
}
`

const computeShader = `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<f32>;
@group(0) @binding(2) var out_image: texture_storage_2d<rgba8unorm, write>;
@group(0) @binding(3) var sky: texture_cube<f32>;
@group(0) @binding(4) var sky_sampler: sampler;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    dst[id.x] = src[id.x] * 2.0;
    let c = textureSampleLevel(sky, sky_sampler, vec3<f32>(1.0, 0.0, 0.0), 0.0);
    textureStore(out_image, vec2<i32>(i32(id.x), 0), c);
}
`

func TestReflectGraphics(t *testing.T) {
	r, err := Reflect(quadShader)
	require.NoError(t, err)

	require.Len(t, r.EntryPoints, 2)
	vs, ok := r.EntryPoint("vs_main")
	require.True(t, ok)
	assert.Equal(t, cgpu.ShaderStageVertex, vs.Stage)
	assert.Equal(t, cgpu.ShaderStageVertex|cgpu.ShaderStageFragment, r.Stages())

	require.Len(t, r.Resources, 3, "unused globals are not resources")
	globals := r.Resources[0]
	assert.Equal(t, "globals", globals.Name)
	assert.Equal(t, cgpu.ResourceTypeUniformBuffer, globals.Type)
	assert.Equal(t, cgpu.ShaderStageVertex, globals.Stages, "reached through transform()")
	assert.Equal(t, uint32(16), globals.Size)

	assert.Equal(t, "color_texture", r.Resources[1].Name)
	assert.Equal(t, uint32(1), r.Resources[1].Set)
	assert.Equal(t, uint32(0), r.Resources[1].Binding)
	assert.Equal(t, cgpu.ResourceTypeTexture, r.Resources[1].Type)
	assert.Equal(t, cgpu.ShaderStageFragment, r.Resources[1].Stages)

	assert.Equal(t, "color_sampler", r.Resources[2].Name)
	assert.Equal(t, cgpu.ResourceTypeSampler, r.Resources[2].Type)
	assert.Equal(t, uint32(1), r.Resources[2].ArraySize)
}

func TestReflectCompute(t *testing.T) {
	r, err := Reflect(computeShader)
	require.NoError(t, err)
	require.Len(t, r.EntryPoints, 1)
	assert.Equal(t, cgpu.ShaderStageCompute, r.EntryPoints[0].Stage)

	want := []struct {
		name string
		typ  cgpu.ResourceType
	}{
		{"src", cgpu.ResourceTypeBuffer},
		{"dst", cgpu.ResourceTypeRWBuffer},
		{"out_image", cgpu.ResourceTypeRWTexture},
		{"sky", cgpu.ResourceTypeTextureCube},
		{"sky_sampler", cgpu.ResourceTypeSampler},
	}
	require.Len(t, r.Resources, len(want))
	for i, w := range want {
		res := r.Resources[i]
		if res.Name != w.name || res.Type != w.typ {
			t.Errorf("resource %d = %s %v, want %s %v", i, res.Name, res.Type, w.name, w.typ)
		}
		if res.Binding != uint32(i) {
			t.Errorf("resource %s binding = %d, want %d", res.Name, res.Binding, i)
		}
		if res.Stages != cgpu.ShaderStageCompute {
			t.Errorf("resource %s stages = %v", res.Name, res.Stages)
		}
	}
}

func TestReflectSyntaxError(t *testing.T) {
	_, err := Reflect("@vertex fn main( {")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reflection:")
}

func TestDescriptor(t *testing.T) {
	desc, err := Descriptor("quad", quadShader)
	require.NoError(t, err)
	assert.Equal(t, "quad", desc.Name)
	assert.Equal(t, quadShader, desc.WGSL)
	require.NotNil(t, desc.Reflection)
	assert.Len(t, desc.Reflection.Resources, 3)

	_, err = Descriptor("broken", "fn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"broken"`)
}

func TestHandleType(t *testing.T) {
	tests := []struct {
		name string
		in   ir.TypeInner
		want cgpu.ResourceType
	}{
		{"sampler", ir.SamplerType{Comparison: true}, cgpu.ResourceTypeSampler},
		{"sampled", ir.ImageType{Dim: ir.Dim2D, Class: ir.ImageClassSampled}, cgpu.ResourceTypeTexture},
		{"depth", ir.ImageType{Dim: ir.Dim2D, Class: ir.ImageClassDepth}, cgpu.ResourceTypeTexture},
		{"storage", ir.ImageType{Dim: ir.Dim2D, Class: ir.ImageClassStorage}, cgpu.ResourceTypeRWTexture},
		{"cube", ir.ImageType{Dim: ir.DimCube, Class: ir.ImageClassSampled}, cgpu.ResourceTypeTextureCube},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := handleType(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("handleType() = %v, %v, want %v", got, err, tt.want)
			}
		})
	}

	_, err := handleType(ir.ScalarType{Kind: ir.ScalarFloat, Width: 4})
	require.ErrorIs(t, err, cgpu.ErrUnsupported)
}

func TestReflectCached(t *testing.T) {
	a, err := Reflect(quadShader)
	require.NoError(t, err)
	b, err := Reflect(quadShader)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// callers own their copy
	a.Resources[0].Name = "changed"
	c, err := Reflect(quadShader)
	require.NoError(t, err)
	assert.NotEqual(t, "changed", c.Resources[0].Name)
}
