package render

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/gpu"
)

// pushConstantSize is the per-draw payload: a 4x4 transform, an alpha
// scalar padded to a 16-byte boundary, and the uvOffset/uvScale pair a
// wp_viewporter source crop needs to sample less than the full texture.
const pushConstantSize = 4*16 + 16 + 16

// quadVertex is one vertex of the unit quad every surface draw reuses:
// position in [0,1]x[0,1] model space, scaled and translated into
// place by the per-draw transform instead of baked per surface.
type quadVertex struct {
	x, y, u, v float32
}

var unitQuad = [6]quadVertex{
	{0, 0, 0, 0},
	{0, 1, 0, 1},
	{1, 1, 1, 1},
	{0, 0, 0, 0},
	{1, 1, 1, 1},
	{1, 0, 1, 0},
}

// Pipeline is the single render pipeline every surface quad draw shares,
// built once per swapchain pixel format.
type Pipeline struct {
	backend gpu.Backend
	device  gpu.Device

	handle  gpu.RenderPipeline
	vbuf    gpu.Buffer
	sampler gpu.Sampler
	format  gpu.TextureFormat
}

// NewPipeline compiles the surface-quad shader and uploads the shared
// unit-quad vertex buffer for the given device and target format.
func NewPipeline(backend gpu.Backend, device gpu.Device, queue gpu.Queue, format gpu.TextureFormat) (*Pipeline, error) {
	mod, err := backend.CreateShaderModuleWGSL(device, quadShaderSource)
	if err != nil {
		return nil, fmt.Errorf("render: compiling quad shader: %w", err)
	}

	handle, err := backend.CreateRenderPipeline(device, &gpu.RenderPipelineDescriptor{
		VertexShader:     mod,
		VertexEntryPoint: "vs_main",
		FragmentShader:   mod,
		FragmentEntry:    "fs_main",
		TargetFormat:     format,
		PushConstantSize: pushConstantSize,
	})
	if err != nil {
		return nil, fmt.Errorf("render: creating quad pipeline: %w", err)
	}

	vbuf, err := backend.CreateBuffer(device, &gpu.BufferDescriptor{
		Label: "surface-quad-vertices",
		Size:  uint64(len(unitQuad) * 16),
		Usage: gpu.BufferUsageVertex | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("render: creating quad vertex buffer: %w", err)
	}
	backend.WriteBuffer(queue, vbuf, 0, quadVertexBytes())

	return &Pipeline{
		backend: backend,
		device:  device,
		handle:  handle,
		vbuf:    vbuf,
		sampler: backend.CreateSampler(device),
		format:  format,
	}, nil
}

func quadVertexBytes() []byte {
	buf := make([]byte, len(unitQuad)*16)
	for i, vtx := range unitQuad {
		off := i * 16
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(vtx.x))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(vtx.y))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(vtx.u))
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(vtx.v))
	}
	return buf
}

// pushConstants encodes the per-draw transform, alpha multiplier and UV
// offset/scale in the layout quadShaderSource's PushConstants struct
// expects. uvOffset/uvScale default to (0,0)/(1,1) to sample the whole
// texture when a draw has no wp_viewporter source crop.
func pushConstants(transform gmath.Mat4, alpha float32, uvOffset, uvScale gmath.Vec2) []byte {
	buf := make([]byte, pushConstantSize)
	for i, f := range transform {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(buf[64:], math.Float32bits(alpha))
	binary.LittleEndian.PutUint32(buf[80:], math.Float32bits(uvOffset.X))
	binary.LittleEndian.PutUint32(buf[84:], math.Float32bits(uvOffset.Y))
	binary.LittleEndian.PutUint32(buf[88:], math.Float32bits(uvScale.X))
	binary.LittleEndian.PutUint32(buf[92:], math.Float32bits(uvScale.Y))
	return buf
}

// Release frees the pipeline's vertex buffer. The render pipeline,
// sampler and shader module it created are not released.
func (p *Pipeline) Release() {
	p.backend.ReleaseBuffer(p.vbuf)
}

// Format reports the target texture format this pipeline was built for.
func (p *Pipeline) Format() gpu.TextureFormat { return p.format }
