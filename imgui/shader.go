package imgui

// Shader is the WGSL source of the UI pipeline. The projection is a push
// constant and the font sampler is static.
const Shader = `
struct Projection {
    scale: vec2<f32>,
    translate: vec2<f32>,
}

var<push_constant> projection: Projection;

@group(0) @binding(0) var ui_sampler: sampler;
@group(0) @binding(1) var ui_texture: texture_2d<f32>;

struct VertexInput {
    @location(0) pos: vec2<f32>,
    @location(1) uv: vec2<f32>,
    @location(2) color: vec4<f32>,
}

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
    @location(1) color: vec4<f32>,
}

@vertex
fn vs_main(v: VertexInput) -> VertexOutput {
    var o: VertexOutput;
    o.position = vec4<f32>(v.pos * projection.scale + projection.translate, 0.0, 1.0);
    o.uv = v.uv;
    o.color = v.color;
    return o;
}

@fragment
fn fs_main(f: VertexOutput) -> @location(0) vec4<f32> {
    return f.color * textureSample(ui_texture, ui_sampler, f.uv);
}
`

const (
	projectionName = "projection"
	samplerName    = "ui_sampler"
	textureName    = "ui_texture"
)
