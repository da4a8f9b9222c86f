// Package render composites mapped surfaces, layer-shell surfaces, and
// the cursor into each output's swapchain image. It owns no protocol
// state: callers hand it a layout.Space to walk and a texture.Cache to
// resolve surface textures from, and get back a FrameResult describing
// what was drawn so the caller can fire frame callbacks and
// presentation feedback.
package render

// quadShaderSource is the WGSL shader for a textured surface quad. It
// adapts the upstream textured-quad shader's transform+tint uniform to
// a push constant, since internal/gpu's Backend pushes a fresh
// transform before every surface draw rather than binding a per-surface
// uniform buffer.
const quadShaderSource = `
struct PushConstants {
    transform: mat4x4<f32>,
    alpha: f32,
    uvOffset: vec2<f32>,
    uvScale: vec2<f32>,
}

var<push_constant> pc: PushConstants;

@group(0) @binding(0) var quadSampler: sampler;
@group(0) @binding(1) var quadTexture: texture_2d<f32>;

struct VertexInput {
    @location(0) position: vec2<f32>,
    @location(1) uv: vec2<f32>,
}

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(input: VertexInput) -> VertexOutput {
    var output: VertexOutput;
    output.position = pc.transform * vec4<f32>(input.position, 0.0, 1.0);
    // uvOffset/uvScale crop the sampled texture to a wp_viewporter source
    // rect; the identity offset/scale (0,0)/(1,1) samples the whole
    // texture, matching the unscaled unit quad.
    output.uv = input.uv * pc.uvScale + pc.uvOffset;
    return output;
}

@fragment
fn fs_main(input: VertexOutput) -> @location(0) vec4<f32> {
    let texColor = textureSample(quadTexture, quadSampler, input.uv);
    return vec4<f32>(texColor.rgb, texColor.a * pc.alpha);
}
`

// QuadShader returns the WGSL source for the surface-quad pipeline.
func QuadShader() string { return quadShaderSource }
