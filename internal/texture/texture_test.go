package texture

import (
	"errors"
	"testing"

	"github.com/wlcore/compositor/internal/gpu"
	"github.com/wlcore/compositor/internal/surface"
)

type fakeBackend struct {
	nextID        uintptr
	createFails   int
	dmabufSupport bool
	released      []gpu.Texture
}

func (f *fakeBackend) alloc() uintptr { f.nextID++; return f.nextID }

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) Init() error  { return nil }
func (f *fakeBackend) Destroy()     {}

func (f *fakeBackend) CreateInstance() (gpu.Instance, error)                        { return 1, nil }
func (f *fakeBackend) RequestAdapter(gpu.Instance, *gpu.AdapterOptions) (gpu.Adapter, error) {
	return 1, nil
}
func (f *fakeBackend) RequestDevice(gpu.Adapter, *gpu.DeviceOptions) (gpu.Device, error) { return 1, nil }
func (f *fakeBackend) GetQueue(gpu.Device) gpu.Queue                                    { return 1 }

func (f *fakeBackend) CreateSurface(gpu.Instance, gpu.SurfaceHandle) (gpu.Surface, error) {
	return 1, nil
}
func (f *fakeBackend) ConfigureSurface(gpu.Surface, gpu.Device, *gpu.SurfaceConfig) {}
func (f *fakeBackend) GetCurrentTexture(gpu.Surface) (gpu.SurfaceTexture, error)    { return gpu.SurfaceTexture{}, nil }
func (f *fakeBackend) Present(gpu.Surface)                                          {}

func (f *fakeBackend) CreateShaderModuleWGSL(gpu.Device, string) (gpu.ShaderModule, error) {
	return 1, nil
}
func (f *fakeBackend) CreateRenderPipeline(gpu.Device, *gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	return 1, nil
}

func (f *fakeBackend) CreateBuffer(gpu.Device, *gpu.BufferDescriptor) (gpu.Buffer, error) {
	return 1, nil
}
func (f *fakeBackend) WriteBuffer(gpu.Queue, gpu.Buffer, uint64, []byte) {}
func (f *fakeBackend) DestroyBuffer(gpu.Buffer)                         {}

func (f *fakeBackend) CreateTexture(gpu.Device, *gpu.TextureDescriptor) (gpu.Texture, error) {
	if f.createFails > 0 {
		f.createFails--
		return 0, errors.New("out of memory")
	}
	return gpu.Texture(f.alloc()), nil
}
func (f *fakeBackend) WriteTexture(gpu.Queue, gpu.Texture, []byte, gpu.TextureDataLayout, gpu.Extent3D) {
}
func (f *fakeBackend) ImportDMABUF(gpu.Device, *gpu.DMABUFImportDescriptor) (gpu.Texture, error) {
	if f.dmabufSupport {
		return gpu.Texture(f.alloc()), nil
	}
	return 0, gpu.ErrNotImplemented
}

func (f *fakeBackend) CreateCommandEncoder(gpu.Device) gpu.CommandEncoder { return 1 }
func (f *fakeBackend) BeginRenderPass(gpu.CommandEncoder, *gpu.RenderPassDescriptor) gpu.RenderPass {
	return 1
}
func (f *fakeBackend) EndRenderPass(gpu.RenderPass)                   {}
func (f *fakeBackend) FinishEncoder(gpu.CommandEncoder) gpu.CommandBuffer { return 1 }
func (f *fakeBackend) Submit(gpu.Queue, gpu.CommandBuffer)             {}

func (f *fakeBackend) SetPipeline(gpu.RenderPass, gpu.RenderPipeline)             {}
func (f *fakeBackend) SetVertexBuffer(gpu.RenderPass, uint32, gpu.Buffer)         {}
func (f *fakeBackend) SetBindGroup(gpu.RenderPass, uint32, gpu.TextureView)       {}
func (f *fakeBackend) SetPushConstants(gpu.RenderPass, []byte)                    {}
func (f *fakeBackend) SetViewportScissor(gpu.RenderPass, uint32, uint32, uint32, uint32) {}
func (f *fakeBackend) Draw(gpu.RenderPass, uint32, uint32, uint32, uint32)        {}

func (f *fakeBackend) CreateTextureView(gpu.Texture, *gpu.TextureViewDescriptor) gpu.TextureView {
	return gpu.TextureView(f.alloc())
}
func (f *fakeBackend) CreateSampler(gpu.Device) gpu.Sampler { return 1 }
func (f *fakeBackend) ReleaseTextureView(gpu.TextureView)   {}
func (f *fakeBackend) ReleaseTexture(tex gpu.Texture)       { f.released = append(f.released, tex) }
func (f *fakeBackend) ReleaseBuffer(gpu.Buffer)             {}
func (f *fakeBackend) ReleaseCommandBuffer(gpu.CommandBuffer)  {}
func (f *fakeBackend) ReleaseCommandEncoder(gpu.CommandEncoder) {}
func (f *fakeBackend) ReleaseRenderPass(gpu.RenderPass)        {}
func (f *fakeBackend) WaitIdle(gpu.Device)                     {}

func shmBuffer(w, h int32) *surface.Buffer {
	stride := w * 4
	data := make([]byte, stride*h)
	return &surface.Buffer{
		Kind:   surface.BufferKindSHM,
		Format: surface.FormatARGB8888,
		Data:   data,
		Stride: stride,
		Width:  w,
		Height: h,
	}
}

func TestOnCommitSHMUpload(t *testing.T) {
	fb := &fakeBackend{}
	c := NewCache(fb, 1, 1)

	warn, err := c.OnCommit(1, shmBuffer(4, 4), 1)
	if err != nil {
		t.Fatalf("OnCommit() error = %v", err)
	}
	if warn != nil {
		t.Errorf("OnCommit() warning = %v, want nil", warn)
	}
	e, ok := c.Lookup(1)
	if !ok {
		t.Fatal("Lookup() found = false after commit")
	}
	if e.Width != 4 || e.Height != 4 {
		t.Errorf("entry size = %dx%d, want 4x4", e.Width, e.Height)
	}
}

func TestOnCommitUnsupportedFormatUsesPlaceholder(t *testing.T) {
	fb := &fakeBackend{}
	c := NewCache(fb, 1, 1)
	buf := shmBuffer(2, 2)
	buf.Format = surface.FormatUnknown

	warn, err := c.OnCommit(1, buf, 1)
	if err != nil {
		t.Fatalf("OnCommit() error = %v", err)
	}
	if warn == nil {
		t.Error("OnCommit() warning = nil, want a format warning")
	}
	if _, ok := c.Lookup(1); !ok {
		t.Error("Lookup() found = false, want placeholder texture present")
	}
}

func TestOnCommitNilBufferEvicts(t *testing.T) {
	fb := &fakeBackend{}
	c := NewCache(fb, 1, 1)
	c.OnCommit(1, shmBuffer(2, 2), 1)

	if _, err := c.OnCommit(1, nil, 2); err != nil {
		t.Fatalf("OnCommit(nil) error = %v", err)
	}
	if _, ok := c.Lookup(1); ok {
		t.Error("Lookup() found = true after nil-buffer commit, want evicted")
	}
}

func TestOnCommitReplacesOldTexture(t *testing.T) {
	fb := &fakeBackend{}
	c := NewCache(fb, 1, 1)
	c.OnCommit(1, shmBuffer(2, 2), 1)
	first, _ := c.Lookup(1)
	firstTex := first.Texture

	c.OnCommit(1, shmBuffer(2, 2), 2)

	found := false
	for _, tex := range fb.released {
		if tex == firstTex {
			found = true
		}
	}
	if !found {
		t.Error("old texture was not released after replacement commit")
	}
}

func TestOnCommitAllocationFailureEvictsLRU(t *testing.T) {
	fb := &fakeBackend{}
	c := NewCache(fb, 1, 1)
	c.OnCommit(1, shmBuffer(2, 2), 1)
	c.OnCommit(2, shmBuffer(2, 2), 1)

	fb.createFails = 1 // first CreateTexture call for surface 3 fails
	warn, err := c.OnCommit(3, shmBuffer(2, 2), 1)
	if err != nil {
		t.Fatalf("OnCommit() error = %v, want LRU eviction to recover", err)
	}
	_ = warn
	if len(fb.released) == 0 {
		t.Error("expected an LRU eviction release on allocation failure")
	}
}

func TestOnCommitDMABUFUnsupportedFallsBackToPlaceholder(t *testing.T) {
	fb := &fakeBackend{dmabufSupport: false}
	c := NewCache(fb, 1, 1)
	buf := &surface.Buffer{Kind: surface.BufferKindDMABUF, Width: 2, Height: 2, FD: 3}

	warn, err := c.OnCommit(1, buf, 1)
	if err != nil {
		t.Fatalf("OnCommit() error = %v", err)
	}
	if warn == nil {
		t.Error("expected a warning when dma-buf import is unsupported")
	}
}
