package gpu

import "testing"

type fakeBackend struct {
	name           string
	presented      int
	currentStatus  SurfaceStatus
	waitIdleCalled bool
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Init() error  { return nil }
func (f *fakeBackend) Destroy()     {}

func (f *fakeBackend) CreateInstance() (Instance, error) { return 1, nil }
func (f *fakeBackend) RequestAdapter(Instance, *AdapterOptions) (Adapter, error) {
	return 1, nil
}
func (f *fakeBackend) RequestDevice(Adapter, *DeviceOptions) (Device, error) { return 1, nil }
func (f *fakeBackend) GetQueue(Device) Queue                                { return 1 }

func (f *fakeBackend) CreateSurface(Instance, SurfaceHandle) (Surface, error) { return 1, nil }
func (f *fakeBackend) ConfigureSurface(Surface, Device, *SurfaceConfig)       {}
func (f *fakeBackend) GetCurrentTexture(Surface) (SurfaceTexture, error) {
	return SurfaceTexture{Texture: 1, Status: f.currentStatus}, nil
}
func (f *fakeBackend) Present(Surface) { f.presented++ }

func (f *fakeBackend) CreateShaderModuleWGSL(Device, string) (ShaderModule, error) { return 1, nil }
func (f *fakeBackend) CreateRenderPipeline(Device, *RenderPipelineDescriptor) (RenderPipeline, error) {
	return 1, nil
}

func (f *fakeBackend) CreateBuffer(Device, *BufferDescriptor) (Buffer, error) { return 1, nil }
func (f *fakeBackend) WriteBuffer(Queue, Buffer, uint64, []byte)              {}
func (f *fakeBackend) DestroyBuffer(Buffer)                                   {}

func (f *fakeBackend) CreateTexture(Device, *TextureDescriptor) (Texture, error) { return 1, nil }
func (f *fakeBackend) WriteTexture(Queue, Texture, []byte, TextureDataLayout, Extent3D) {
}
func (f *fakeBackend) ImportDMABUF(Device, *DMABUFImportDescriptor) (Texture, error) {
	return 0, ErrNotImplemented
}

func (f *fakeBackend) CreateCommandEncoder(Device) CommandEncoder { return 1 }
func (f *fakeBackend) BeginRenderPass(CommandEncoder, *RenderPassDescriptor) RenderPass {
	return 1
}
func (f *fakeBackend) EndRenderPass(RenderPass)               {}
func (f *fakeBackend) FinishEncoder(CommandEncoder) CommandBuffer { return 1 }
func (f *fakeBackend) Submit(Queue, CommandBuffer)            {}

func (f *fakeBackend) SetPipeline(RenderPass, RenderPipeline)            {}
func (f *fakeBackend) SetVertexBuffer(RenderPass, uint32, Buffer)        {}
func (f *fakeBackend) SetBindGroup(RenderPass, uint32, TextureView)      {}
func (f *fakeBackend) SetPushConstants(RenderPass, []byte)               {}
func (f *fakeBackend) SetViewportScissor(RenderPass, uint32, uint32, uint32, uint32) {}
func (f *fakeBackend) Draw(RenderPass, uint32, uint32, uint32, uint32)   {}

func (f *fakeBackend) CreateTextureView(Texture, *TextureViewDescriptor) TextureView { return 1 }
func (f *fakeBackend) CreateSampler(Device) Sampler                                 { return 1 }
func (f *fakeBackend) ReleaseTextureView(TextureView)                                {}
func (f *fakeBackend) ReleaseTexture(Texture)                                        {}
func (f *fakeBackend) ReleaseBuffer(Buffer)                                          {}
func (f *fakeBackend) ReleaseCommandBuffer(CommandBuffer)                            {}
func (f *fakeBackend) ReleaseCommandEncoder(CommandEncoder)                          {}
func (f *fakeBackend) ReleaseRenderPass(RenderPass)                                  {}

func (f *fakeBackend) WaitIdle(Device) { f.waitIdleCalled = true }

func TestRegistrySelectsByPriority(t *testing.T) {
	RegisterBackend("webgpu", func() Backend { return &fakeBackend{name: "webgpu"} })
	RegisterBackend("pure-go", func() Backend { return &fakeBackend{name: "pure-go"} })
	defer UnregisterBackend("webgpu")
	defer UnregisterBackend("pure-go")

	b, err := SelectBackend(BackendAuto)
	if err != nil {
		t.Fatalf("SelectBackend(BackendAuto) error = %v", err)
	}
	if b.Name() != "webgpu" {
		t.Errorf("SelectBackend(BackendAuto) = %q, want webgpu (priority order)", b.Name())
	}
}

func TestRegistryFallsBackWithoutWebGPU(t *testing.T) {
	RegisterBackend("pure-go", func() Backend { return &fakeBackend{name: "pure-go"} })
	defer UnregisterBackend("pure-go")

	b, err := SelectBackend(BackendAuto)
	if err != nil {
		t.Fatalf("SelectBackend(BackendAuto) error = %v", err)
	}
	if b.Name() != "pure-go" {
		t.Errorf("SelectBackend(BackendAuto) = %q, want pure-go", b.Name())
	}
}

func TestRegistryNoneRegistered(t *testing.T) {
	if _, err := SelectBackend(BackendAuto); err != ErrNoBackendRegistered {
		t.Errorf("SelectBackend() error = %v, want ErrNoBackendRegistered", err)
	}
}

func TestSwapchainZeroAreaSkipsImages(t *testing.T) {
	fb := &fakeBackend{}
	sc, err := NewSwapchain(fb, 1, 1, 1, 0, 0, true)
	if err != nil {
		t.Fatalf("NewSwapchain() error = %v", err)
	}
	if !sc.Empty() {
		t.Error("Empty() = false for zero-area swapchain, want true")
	}
	if _, err := sc.AcquireNextImage(); err != ErrSurfaceOutOfDate {
		t.Errorf("AcquireNextImage() error = %v, want ErrSurfaceOutOfDate", err)
	}
	sc.Present()
	if fb.presented != 0 {
		t.Error("Present() on empty swapchain should not call backend.Present")
	}
}

func TestSwapchainAcquirePresent(t *testing.T) {
	fb := &fakeBackend{currentStatus: SurfaceStatusSuccess}
	sc, err := NewSwapchain(fb, 1, 1, 1, 1920, 1080, true)
	if err != nil {
		t.Fatalf("NewSwapchain() error = %v", err)
	}
	if sc.Empty() {
		t.Fatal("Empty() = true, want false")
	}
	if _, err := sc.AcquireNextImage(); err != nil {
		t.Fatalf("AcquireNextImage() error = %v", err)
	}
	sc.Present()
	if fb.presented != 1 {
		t.Errorf("backend.Present called %d times, want 1", fb.presented)
	}
}

func TestSwapchainOutOfDate(t *testing.T) {
	fb := &fakeBackend{currentStatus: SurfaceStatusOutdated}
	sc, _ := NewSwapchain(fb, 1, 1, 1, 1920, 1080, true)
	if _, err := sc.AcquireNextImage(); err != ErrSurfaceOutOfDate {
		t.Errorf("AcquireNextImage() error = %v, want ErrSurfaceOutOfDate", err)
	}
}

func TestSwapchainResizeWaitsIdle(t *testing.T) {
	fb := &fakeBackend{currentStatus: SurfaceStatusSuccess}
	sc, _ := NewSwapchain(fb, 1, 1, 1, 1920, 1080, true)
	if err := sc.Resize(3840, 2160, true); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if !fb.waitIdleCalled {
		t.Error("Resize() did not wait device idle before rebuilding")
	}
	if sc.width != 3840 || sc.height != 2160 {
		t.Errorf("after Resize: %dx%d, want 3840x2160", sc.width, sc.height)
	}
}
