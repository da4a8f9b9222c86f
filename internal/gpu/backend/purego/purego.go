// Package purego implements gpu.Backend on top of github.com/gogpu/wgpu,
// a pure-Go software rasterizer with no native library dependency. It is
// the fallback selected when wgpu-native is unavailable, and the forced
// choice under windowed/headless development mode.
//
// gogpu/wgpu's public surface used here mirrors the shape of its
// internal hal package (Instance/Adapter/Device/Queue, handle-returning
// resource creation) but through the project's higher-level root
// package rather than hal directly; hal is documented as an
// implementation-detail layer the public package wraps.
package purego

import (
	"fmt"
	"sync"

	wgpu "github.com/gogpu/wgpu"

	"github.com/wlcore/compositor/internal/gpu"
)

func init() {
	gpu.RegisterBackend("pure-go", func() gpu.Backend { return &Backend{} })
}

// Backend retains every object gogpu/wgpu hands back in a single handle
// table, identical in shape to the webgpu-native adapter, so the rest of
// the compositor is unaware which backend is active.
type Backend struct {
	mu      sync.Mutex
	objects map[uintptr]any
	nextID  uintptr

	instance *wgpu.Instance
}

func (b *Backend) Name() string { return "pure-go" }

func (b *Backend) Init() error {
	b.objects = make(map[uintptr]any)
	return nil
}

func (b *Backend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.instance != nil {
		b.instance.Destroy()
	}
	b.objects = nil
}

func (b *Backend) put(v any) uintptr {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.objects[b.nextID] = v
	return b.nextID
}

func (b *Backend) del(id uintptr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, id)
}

func (b *Backend) get(id uintptr) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[id]
}

func (b *Backend) CreateInstance() (gpu.Instance, error) {
	inst, err := wgpu.NewInstance()
	if err != nil {
		return 0, fmt.Errorf("purego: create instance: %w", err)
	}
	b.instance = inst
	return gpu.Instance(b.put(inst)), nil
}

func (b *Backend) RequestAdapter(instance gpu.Instance, opts *gpu.AdapterOptions) (gpu.Adapter, error) {
	inst, ok := b.get(uintptr(instance)).(*wgpu.Instance)
	if !ok {
		return 0, gpu.ErrBackendNotAvailable
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return 0, gpu.ErrBackendNotAvailable
	}
	// Software rasterizer: a single adapter is always reported regardless
	// of power preference.
	_ = opts
	return gpu.Adapter(b.put(adapters[0])), nil
}

func (b *Backend) RequestDevice(adapter gpu.Adapter, opts *gpu.DeviceOptions) (gpu.Device, error) {
	ad, ok := b.get(uintptr(adapter)).(wgpu.Adapter)
	if !ok {
		return 0, gpu.ErrBackendNotAvailable
	}
	opened, err := ad.Open(nil, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", gpu.ErrDeviceCreation, err)
	}
	_ = opts
	return gpu.Device(b.put(opened)), nil
}

func (b *Backend) GetQueue(device gpu.Device) gpu.Queue {
	opened, ok := b.get(uintptr(device)).(wgpu.OpenDevice)
	if !ok {
		return 0
	}
	return gpu.Queue(b.put(opened.Queue))
}

// CreateSurface targets the windowed development fallback exclusively:
// the software rasterizer has no direct KMS scanout path, so real
// outputs under purego are presented through a host window handle.
func (b *Backend) CreateSurface(instance gpu.Instance, handle gpu.SurfaceHandle) (gpu.Surface, error) {
	inst, ok := b.get(uintptr(instance)).(*wgpu.Instance)
	if !ok {
		return 0, gpu.ErrBackendNotAvailable
	}
	surf, err := inst.CreateSurface(handle.Instance, handle.Window)
	if err != nil {
		return 0, fmt.Errorf("purego: create surface: %w", err)
	}
	return gpu.Surface(b.put(surf)), nil
}

func (b *Backend) ConfigureSurface(surface gpu.Surface, device gpu.Device, config *gpu.SurfaceConfig) {
	surf, ok := b.get(uintptr(surface)).(wgpu.Surface)
	if !ok {
		return
	}
	opened, _ := b.get(uintptr(device)).(wgpu.OpenDevice)
	surf.Configure(opened.Device, &wgpu.SurfaceConfiguration{
		Width:  config.Width,
		Height: config.Height,
	})
}

func (b *Backend) GetCurrentTexture(surface gpu.Surface) (gpu.SurfaceTexture, error) {
	surf, ok := b.get(uintptr(surface)).(wgpu.Surface)
	if !ok {
		return gpu.SurfaceTexture{}, gpu.ErrBackendNotAvailable
	}
	tex, err := surf.AcquireTexture()
	if err != nil {
		return gpu.SurfaceTexture{Status: gpu.SurfaceStatusError}, nil
	}
	return gpu.SurfaceTexture{Texture: gpu.Texture(b.put(tex)), Status: gpu.SurfaceStatusSuccess}, nil
}

func (b *Backend) Present(surface gpu.Surface) {
	// gogpu/wgpu presents through the queue, not the surface directly;
	// the texture handle was already consumed by AcquireTexture's
	// caller, so nothing further is required here.
	_ = surface
}

func (b *Backend) WaitIdle(device gpu.Device) {
	opened, ok := b.get(uintptr(device)).(wgpu.OpenDevice)
	if !ok {
		return
	}
	fence, err := opened.Device.CreateFence()
	if err != nil {
		return
	}
	defer opened.Device.DestroyFence(fence)
	opened.Queue.Submit(nil, fence, 1)
	opened.Device.Wait(fence, 1, 0)
}

func (b *Backend) CreateShaderModuleWGSL(device gpu.Device, code string) (gpu.ShaderModule, error) {
	opened, ok := b.get(uintptr(device)).(wgpu.OpenDevice)
	if !ok {
		return 0, gpu.ErrBackendNotAvailable
	}
	mod, err := opened.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{WGSLSource: code})
	if err != nil {
		return 0, fmt.Errorf("purego: compile shader: %w", err)
	}
	return gpu.ShaderModule(b.put(mod)), nil
}

func (b *Backend) CreateRenderPipeline(device gpu.Device, desc *gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	opened, ok := b.get(uintptr(device)).(wgpu.OpenDevice)
	if !ok {
		return 0, gpu.ErrBackendNotAvailable
	}
	vs, _ := b.get(uintptr(desc.VertexShader)).(wgpu.ShaderModule)
	fs, _ := b.get(uintptr(desc.FragmentShader)).(wgpu.ShaderModule)
	pipeline, err := opened.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		VertexShader:   vs,
		FragmentShader: fs,
	})
	if err != nil {
		return 0, fmt.Errorf("purego: create render pipeline: %w", err)
	}
	return gpu.RenderPipeline(b.put(pipeline)), nil
}

func (b *Backend) CreateBuffer(device gpu.Device, desc *gpu.BufferDescriptor) (gpu.Buffer, error) {
	opened, ok := b.get(uintptr(device)).(wgpu.OpenDevice)
	if !ok {
		return 0, gpu.ErrBackendNotAvailable
	}
	buf, err := opened.Device.CreateBuffer(&wgpu.BufferDescriptor{Size: desc.Size})
	if err != nil {
		return 0, fmt.Errorf("purego: create buffer: %w", err)
	}
	return gpu.Buffer(b.put(buf)), nil
}

func (b *Backend) WriteBuffer(queue gpu.Queue, buffer gpu.Buffer, offset uint64, data []byte) {
	q, _ := b.get(uintptr(queue)).(wgpu.Queue)
	buf, ok := b.get(uintptr(buffer)).(wgpu.Buffer)
	if q == nil || !ok {
		return
	}
	q.WriteBuffer(buf, offset, data)
}

func (b *Backend) DestroyBuffer(buffer gpu.Buffer) {
	b.del(uintptr(buffer))
}

func (b *Backend) CreateTexture(device gpu.Device, desc *gpu.TextureDescriptor) (gpu.Texture, error) {
	opened, ok := b.get(uintptr(device)).(wgpu.OpenDevice)
	if !ok {
		return 0, gpu.ErrBackendNotAvailable
	}
	tex, err := opened.Device.CreateTexture(&wgpu.TextureDescriptor{
		Width:  desc.Size.Width,
		Height: desc.Size.Height,
	})
	if err != nil {
		return 0, fmt.Errorf("purego: create texture: %w", err)
	}
	return gpu.Texture(b.put(tex)), nil
}

func (b *Backend) WriteTexture(queue gpu.Queue, texture gpu.Texture, data []byte, layout gpu.TextureDataLayout, size gpu.Extent3D) {
	q, _ := b.get(uintptr(queue)).(wgpu.Queue)
	tex, ok := b.get(uintptr(texture)).(wgpu.Texture)
	if q == nil || !ok {
		return
	}
	q.WriteTexture(&wgpu.ImageCopyTexture{Texture: tex}, data,
		&wgpu.ImageDataLayout{Offset: layout.Offset, BytesPerRow: layout.BytesPerRow, RowsPerImage: layout.RowsPerImage},
		&wgpu.Extent3D{Width: size.Width, Height: size.Height})
}

// ImportDMABUF is unsupported: the software rasterizer has no external
// memory import path. The texture cache keeps the surface's previous
// texture, or uses a black placeholder when it has none.
func (b *Backend) ImportDMABUF(gpu.Device, *gpu.DMABUFImportDescriptor) (gpu.Texture, error) {
	return 0, gpu.ErrNotImplemented
}

func (b *Backend) CreateCommandEncoder(device gpu.Device) gpu.CommandEncoder {
	opened, ok := b.get(uintptr(device)).(wgpu.OpenDevice)
	if !ok {
		return 0
	}
	enc, err := opened.Device.CreateCommandEncoder(nil)
	if err != nil {
		return 0
	}
	return gpu.CommandEncoder(b.put(enc))
}

func (b *Backend) BeginRenderPass(encoder gpu.CommandEncoder, desc *gpu.RenderPassDescriptor) gpu.RenderPass {
	enc, ok := b.get(uintptr(encoder)).(wgpu.CommandEncoder)
	if !ok {
		return 0
	}
	pass := enc.BeginRenderPass(toRenderPassDescriptor(b, desc))
	return gpu.RenderPass(b.put(pass))
}

func (b *Backend) EndRenderPass(pass gpu.RenderPass) {
	if p, ok := b.get(uintptr(pass)).(wgpu.RenderPassEncoder); ok {
		p.End()
	}
}

func (b *Backend) FinishEncoder(encoder gpu.CommandEncoder) gpu.CommandBuffer {
	enc, ok := b.get(uintptr(encoder)).(wgpu.CommandEncoder)
	if !ok {
		return 0
	}
	cmd, err := enc.Finish()
	if err != nil {
		return 0
	}
	return gpu.CommandBuffer(b.put(cmd))
}

func (b *Backend) Submit(queue gpu.Queue, commands gpu.CommandBuffer) {
	q, _ := b.get(uintptr(queue)).(wgpu.Queue)
	cmd, ok := b.get(uintptr(commands)).(wgpu.CommandBuffer)
	if q == nil || !ok {
		return
	}
	q.Submit([]wgpu.CommandBuffer{cmd}, nil, 0)
}

func (b *Backend) SetPipeline(pass gpu.RenderPass, pipeline gpu.RenderPipeline) {
	p, _ := b.get(uintptr(pass)).(wgpu.RenderPassEncoder)
	pl, ok := b.get(uintptr(pipeline)).(wgpu.RenderPipeline)
	if p == nil || !ok {
		return
	}
	p.SetPipeline(pl)
}

func (b *Backend) SetVertexBuffer(pass gpu.RenderPass, slot uint32, buffer gpu.Buffer) {
	p, _ := b.get(uintptr(pass)).(wgpu.RenderPassEncoder)
	buf, ok := b.get(uintptr(buffer)).(wgpu.Buffer)
	if p == nil || !ok {
		return
	}
	p.SetVertexBuffer(slot, buf, 0)
}

func (b *Backend) SetBindGroup(pass gpu.RenderPass, index uint32, texture gpu.TextureView) {
	// The single combined-image-sampler bind group is resolved by the
	// render package, which looks up the texture view's owning bind
	// group before calling SetBindGroup; this software backend has no
	// separate bind group object, so the call is a no-op marker kept
	// for interface symmetry with the native backend.
	_ = pass
	_ = index
	_ = texture
}

func (b *Backend) SetPushConstants(pass gpu.RenderPass, data []byte) {
	if p, ok := b.get(uintptr(pass)).(wgpu.RenderPassEncoder); ok {
		p.SetPushConstants(data)
	}
}

func (b *Backend) SetViewportScissor(pass gpu.RenderPass, x, y, width, height uint32) {
	p, ok := b.get(uintptr(pass)).(wgpu.RenderPassEncoder)
	if !ok {
		return
	}
	p.SetViewport(float32(x), float32(y), float32(width), float32(height))
	p.SetScissor(x, y, width, height)
}

func (b *Backend) Draw(pass gpu.RenderPass, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if p, ok := b.get(uintptr(pass)).(wgpu.RenderPassEncoder); ok {
		p.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (b *Backend) CreateTextureView(texture gpu.Texture, desc *gpu.TextureViewDescriptor) gpu.TextureView {
	tex, ok := b.get(uintptr(texture)).(wgpu.Texture)
	if !ok {
		return 0
	}
	_ = desc
	view, err := func() (wgpu.TextureView, error) {
		opened, ok := b.findDeviceForTexture()
		if !ok {
			return nil, gpu.ErrBackendNotAvailable
		}
		return opened.Device.CreateTextureView(tex, nil)
	}()
	if err != nil {
		return 0
	}
	return gpu.TextureView(b.put(view))
}

// findDeviceForTexture returns whichever open device this backend
// created; gogpu/wgpu is single-device per process in practice for a
// compositor, so the first one found suffices.
func (b *Backend) findDeviceForTexture() (wgpu.OpenDevice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range b.objects {
		if opened, ok := v.(wgpu.OpenDevice); ok {
			return opened, true
		}
	}
	return wgpu.OpenDevice{}, false
}

func (b *Backend) CreateSampler(device gpu.Device) gpu.Sampler {
	opened, ok := b.get(uintptr(device)).(wgpu.OpenDevice)
	if !ok {
		return 0
	}
	sampler, err := opened.Device.CreateSampler(nil)
	if err != nil {
		return 0
	}
	return gpu.Sampler(b.put(sampler))
}

func (b *Backend) ReleaseTextureView(view gpu.TextureView)    { b.del(uintptr(view)) }
func (b *Backend) ReleaseTexture(texture gpu.Texture)         { b.del(uintptr(texture)) }
func (b *Backend) ReleaseBuffer(buffer gpu.Buffer)            { b.del(uintptr(buffer)) }
func (b *Backend) ReleaseCommandBuffer(cb gpu.CommandBuffer)  { b.del(uintptr(cb)) }
func (b *Backend) ReleaseCommandEncoder(e gpu.CommandEncoder) { b.del(uintptr(e)) }
func (b *Backend) ReleaseRenderPass(p gpu.RenderPass)         { b.del(uintptr(p)) }

func toRenderPassDescriptor(b *Backend, desc *gpu.RenderPassDescriptor) *wgpu.RenderPassDescriptor {
	attachments := make([]wgpu.RenderPassColorAttachment, len(desc.ColorAttachments))
	for i, a := range desc.ColorAttachments {
		view, _ := b.get(uintptr(a.View)).(wgpu.TextureView)
		attachments[i] = wgpu.RenderPassColorAttachment{
			View:       view,
			ClearColor: [4]float64{a.ClearColor.R, a.ClearColor.G, a.ClearColor.B, a.ClearColor.A},
			Load:       a.LoadOp == gpu.LoadOpLoad,
		}
	}
	return &wgpu.RenderPassDescriptor{ColorAttachments: attachments}
}
