package render

import (
	"testing"

	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/gpu"
	"github.com/wlcore/compositor/internal/layout"
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/texture"
)

// fakeBackend is a minimal gpu.Backend that records which texture views
// were bound for each draw, in order, without touching any real GPU API.
// It exists purely so renderer.go's stacking-order logic can be tested
// without a native wgpu library present.
type fakeBackend struct {
	nextHandle uintptr
	bound      []gpu.TextureView
}

func (f *fakeBackend) alloc() uintptr {
	f.nextHandle++
	return f.nextHandle
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Init() error   { return nil }
func (f *fakeBackend) Destroy()      {}

func (f *fakeBackend) CreateInstance() (gpu.Instance, error) { return gpu.Instance(f.alloc()), nil }
func (f *fakeBackend) RequestAdapter(gpu.Instance, *gpu.AdapterOptions) (gpu.Adapter, error) {
	return gpu.Adapter(f.alloc()), nil
}
func (f *fakeBackend) RequestDevice(gpu.Adapter, *gpu.DeviceOptions) (gpu.Device, error) {
	return gpu.Device(f.alloc()), nil
}
func (f *fakeBackend) GetQueue(gpu.Device) gpu.Queue { return gpu.Queue(f.alloc()) }

func (f *fakeBackend) CreateSurface(gpu.Instance, gpu.SurfaceHandle) (gpu.Surface, error) {
	return gpu.Surface(f.alloc()), nil
}
func (f *fakeBackend) ConfigureSurface(gpu.Surface, gpu.Device, *gpu.SurfaceConfig) {}
func (f *fakeBackend) GetCurrentTexture(gpu.Surface) (gpu.SurfaceTexture, error) {
	return gpu.SurfaceTexture{Texture: gpu.Texture(f.alloc()), Status: gpu.SurfaceStatusSuccess}, nil
}
func (f *fakeBackend) Present(gpu.Surface) {}

func (f *fakeBackend) CreateShaderModuleWGSL(gpu.Device, string) (gpu.ShaderModule, error) {
	return gpu.ShaderModule(f.alloc()), nil
}
func (f *fakeBackend) CreateRenderPipeline(gpu.Device, *gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	return gpu.RenderPipeline(f.alloc()), nil
}

func (f *fakeBackend) CreateBuffer(gpu.Device, *gpu.BufferDescriptor) (gpu.Buffer, error) {
	return gpu.Buffer(f.alloc()), nil
}
func (f *fakeBackend) WriteBuffer(gpu.Queue, gpu.Buffer, uint64, []byte) {}
func (f *fakeBackend) DestroyBuffer(gpu.Buffer)                          {}

func (f *fakeBackend) CreateTexture(gpu.Device, *gpu.TextureDescriptor) (gpu.Texture, error) {
	return gpu.Texture(f.alloc()), nil
}
func (f *fakeBackend) WriteTexture(gpu.Queue, gpu.Texture, []byte, gpu.TextureDataLayout, gpu.Extent3D) {
}
func (f *fakeBackend) ImportDMABUF(gpu.Device, *gpu.DMABUFImportDescriptor) (gpu.Texture, error) {
	return 0, gpu.ErrNotImplemented
}

func (f *fakeBackend) CreateCommandEncoder(gpu.Device) gpu.CommandEncoder {
	return gpu.CommandEncoder(f.alloc())
}
func (f *fakeBackend) BeginRenderPass(gpu.CommandEncoder, *gpu.RenderPassDescriptor) gpu.RenderPass {
	return gpu.RenderPass(f.alloc())
}
func (f *fakeBackend) EndRenderPass(gpu.RenderPass)                 {}
func (f *fakeBackend) FinishEncoder(gpu.CommandEncoder) gpu.CommandBuffer {
	return gpu.CommandBuffer(f.alloc())
}
func (f *fakeBackend) Submit(gpu.Queue, gpu.CommandBuffer) {}

func (f *fakeBackend) SetPipeline(gpu.RenderPass, gpu.RenderPipeline)    {}
func (f *fakeBackend) SetVertexBuffer(gpu.RenderPass, uint32, gpu.Buffer) {}
func (f *fakeBackend) SetBindGroup(pass gpu.RenderPass, index uint32, view gpu.TextureView) {
	f.bound = append(f.bound, view)
}
func (f *fakeBackend) SetPushConstants(gpu.RenderPass, []byte)                   {}
func (f *fakeBackend) SetViewportScissor(gpu.RenderPass, uint32, uint32, uint32, uint32) {}
func (f *fakeBackend) Draw(gpu.RenderPass, uint32, uint32, uint32, uint32)       {}

func (f *fakeBackend) CreateTextureView(gpu.Texture, *gpu.TextureViewDescriptor) gpu.TextureView {
	return gpu.TextureView(f.alloc())
}
func (f *fakeBackend) CreateSampler(gpu.Device) gpu.Sampler { return gpu.Sampler(f.alloc()) }
func (f *fakeBackend) ReleaseTextureView(gpu.TextureView)       {}
func (f *fakeBackend) ReleaseTexture(gpu.Texture)               {}
func (f *fakeBackend) ReleaseBuffer(gpu.Buffer)                 {}
func (f *fakeBackend) ReleaseCommandBuffer(gpu.CommandBuffer)   {}
func (f *fakeBackend) ReleaseCommandEncoder(gpu.CommandEncoder) {}
func (f *fakeBackend) ReleaseRenderPass(gpu.RenderPass)         {}

func (f *fakeBackend) WaitIdle(gpu.Device) {}

func commitSolidBuffer(t *testing.T, cache *texture.Cache, id surface.ID) {
	t.Helper()
	buf := &surface.Buffer{
		Kind:   surface.BufferKindSHM,
		Format: surface.FormatARGB8888,
		Data:   make([]byte, 4*4*4),
		Stride: 16,
		Width:  4,
		Height: 4,
	}
	if _, err := cache.OnCommit(id, buf, 1); err != nil {
		t.Fatalf("OnCommit(%d): %v", id, err)
	}
}

func TestRenderOutputDrawsBackToFrontWithCursorLast(t *testing.T) {
	backend := &fakeBackend{}
	device := gpu.Device(1)
	queue := gpu.Queue(1)
	cache := texture.NewCache(backend, device, queue)

	const (
		bg      surface.ID = 1
		win     surface.ID = 2
		overlay surface.ID = 3
		cursor  surface.ID = 4
	)
	for _, id := range []surface.ID{bg, win, overlay, cursor} {
		commitSolidBuffer(t, cache, id)
	}

	space := layout.NewSpace(gmath.NewRect(0, 0, 800, 600))
	space.MapLayer(&layout.LayerSurface{SurfaceID: bg, Layer: layout.LayerBackground, Size: gmath.NewVec2(800, 600)})
	space.MapLayer(&layout.LayerSurface{SurfaceID: overlay, Layer: layout.LayerOverlay, Size: gmath.NewVec2(200, 50)})
	space.Map(win, gmath.NewVec2(10, 10), gmath.NewVec2(300, 200), true)

	r := NewRenderer(backend, device, queue, cache)
	surf, err := backend.CreateSurface(gpu.Instance(0), gpu.SurfaceHandle{})
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	out, err := NewOutput(backend, device, queue, surf, layout.OutputID(1), gmath.NewRect(0, 0, 800, 600), true)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}

	result, err := r.RenderOutput(out, space, &Cursor{Surface: cursor, Position: gmath.NewVec2(50, 50)})
	if err != nil {
		t.Fatalf("RenderOutput: %v", err)
	}
	if !result.Presented {
		t.Fatal("result.Presented = false, want true")
	}

	want := []surface.ID{bg, win, overlay, cursor}
	if len(result.DrawnSurfaces) != len(want) {
		t.Fatalf("DrawnSurfaces = %v, want %v", result.DrawnSurfaces, want)
	}
	for i, id := range want {
		if result.DrawnSurfaces[i] != id {
			t.Errorf("DrawnSurfaces[%d] = %d, want %d", i, result.DrawnSurfaces[i], id)
		}
	}
}

func TestRenderOutputSkipsUncommittedCursor(t *testing.T) {
	backend := &fakeBackend{}
	device := gpu.Device(1)
	queue := gpu.Queue(1)
	cache := texture.NewCache(backend, device, queue)

	const win surface.ID = 1
	commitSolidBuffer(t, cache, win)

	space := layout.NewSpace(gmath.NewRect(0, 0, 800, 600))
	space.Map(win, gmath.NewVec2(0, 0), gmath.NewVec2(100, 100), true)

	r := NewRenderer(backend, device, queue, cache)
	surf, _ := backend.CreateSurface(gpu.Instance(0), gpu.SurfaceHandle{})
	out, err := NewOutput(backend, device, queue, surf, layout.OutputID(1), gmath.NewRect(0, 0, 800, 600), true)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}

	result, err := r.RenderOutput(out, space, &Cursor{Surface: surface.ID(99)})
	if err != nil {
		t.Fatalf("RenderOutput: %v", err)
	}
	if len(result.DrawnSurfaces) != 1 || result.DrawnSurfaces[0] != win {
		t.Errorf("DrawnSurfaces = %v, want [%d]", result.DrawnSurfaces, win)
	}
}

func TestRenderOutputEmptySwapchainNoOps(t *testing.T) {
	backend := &fakeBackend{}
	device := gpu.Device(1)
	queue := gpu.Queue(1)
	cache := texture.NewCache(backend, device, queue)

	space := layout.NewSpace(gmath.NewRect(0, 0, 0, 0))
	r := NewRenderer(backend, device, queue, cache)
	surf, _ := backend.CreateSurface(gpu.Instance(0), gpu.SurfaceHandle{})
	out, err := NewOutput(backend, device, queue, surf, layout.OutputID(1), gmath.NewRect(0, 0, 0, 0), true)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}

	result, err := r.RenderOutput(out, space, nil)
	if err != nil {
		t.Fatalf("RenderOutput: %v", err)
	}
	if result.Presented {
		t.Error("result.Presented = true, want false for an empty swapchain")
	}
}
