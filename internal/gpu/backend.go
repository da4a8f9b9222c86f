// Package gpu is a thin adapter over a low-level graphics API: instance
// and adapter selection, logical device/queue creation, and a swapchain
// per output. It generalizes the single-window Backend abstraction of
// the upstream graphics toolkit to the compositor's per-output,
// many-surfaces-per-frame rendering model.
package gpu

import "errors"

// BackendType selects which GPU implementation is used.
type BackendType uint8

const (
	// BackendAuto probes available backends and picks the best match for
	// the configured GPU preference.
	BackendAuto BackendType = iota
	// BackendWebGPU uses wgpu-native via go-webgpu/webgpu. Maximum
	// performance; requires the native library to be present.
	BackendWebGPU
	// BackendPureGo uses the pure-Go gogpu/wgpu implementation. No
	// native dependency; used as the fallback when wgpu-native isn't
	// available, or when windowed/headless development mode is forced.
	BackendPureGo
)

func (b BackendType) String() string {
	switch b {
	case BackendWebGPU:
		return "WebGPU (wgpu-native)"
	case BackendPureGo:
		return "Pure Go"
	default:
		return "Auto"
	}
}

var (
	ErrBackendNotAvailable = errors.New("gpu: backend not available")
	ErrNotImplemented      = errors.New("gpu: not implemented")
	ErrDeviceCreation      = errors.New("gpu: device creation failed")
	ErrSurfaceOutOfDate    = errors.New("gpu: surface out of date")
	ErrSurfaceLost         = errors.New("gpu: surface lost")
)

// Backend is the interface that both the WebGPU-backed implementation
// and the pure-Go fallback satisfy, so the renderer and texture cache
// never depend on a concrete graphics API binding.
type Backend interface {
	Name() string
	Init() error
	Destroy()

	CreateInstance() (Instance, error)
	RequestAdapter(instance Instance, opts *AdapterOptions) (Adapter, error)
	RequestDevice(adapter Adapter, opts *DeviceOptions) (Device, error)
	GetQueue(device Device) Queue

	// CreateSurface binds a swapchain target to an output's native
	// window handle (a DRM/KMS plane handle under a real backend, or a
	// host-window handle under the windowed development fallback).
	CreateSurface(instance Instance, handle SurfaceHandle) (Surface, error)
	ConfigureSurface(surface Surface, device Device, config *SurfaceConfig)
	GetCurrentTexture(surface Surface) (SurfaceTexture, error)
	Present(surface Surface)

	CreateShaderModuleWGSL(device Device, code string) (ShaderModule, error)
	CreateRenderPipeline(device Device, desc *RenderPipelineDescriptor) (RenderPipeline, error)

	CreateBuffer(device Device, desc *BufferDescriptor) (Buffer, error)
	WriteBuffer(queue Queue, buffer Buffer, offset uint64, data []byte)
	DestroyBuffer(buffer Buffer)

	CreateTexture(device Device, desc *TextureDescriptor) (Texture, error)
	WriteTexture(queue Queue, texture Texture, data []byte, layout TextureDataLayout, size Extent3D)
	// ImportDMABUF imports an external DMA-BUF-backed image as a texture,
	// with no copy. Returns ErrNotImplemented on backends that cannot
	// import external memory (e.g. the windowed development fallback).
	ImportDMABUF(device Device, desc *DMABUFImportDescriptor) (Texture, error)

	CreateCommandEncoder(device Device) CommandEncoder
	BeginRenderPass(encoder CommandEncoder, desc *RenderPassDescriptor) RenderPass
	EndRenderPass(pass RenderPass)
	FinishEncoder(encoder CommandEncoder) CommandBuffer
	Submit(queue Queue, commands CommandBuffer)

	SetPipeline(pass RenderPass, pipeline RenderPipeline)
	SetVertexBuffer(pass RenderPass, slot uint32, buffer Buffer)
	SetBindGroup(pass RenderPass, index uint32, texture TextureView)
	SetPushConstants(pass RenderPass, data []byte)
	SetViewportScissor(pass RenderPass, x, y, width, height uint32)
	Draw(pass RenderPass, vertexCount, instanceCount, firstVertex, firstInstance uint32)

	CreateTextureView(texture Texture, desc *TextureViewDescriptor) TextureView
	CreateSampler(device Device) Sampler
	ReleaseTextureView(view TextureView)
	ReleaseTexture(texture Texture)
	ReleaseBuffer(buffer Buffer)
	ReleaseCommandBuffer(buffer CommandBuffer)
	ReleaseCommandEncoder(encoder CommandEncoder)
	ReleaseRenderPass(pass RenderPass)

	// WaitIdle blocks until all submitted work on device has completed.
	// Used before destroying resources referenced by in-flight frames.
	WaitIdle(device Device)
}

// Handle types are opaque, type-safe references to backend-specific
// objects. A uintptr rather than an interface keeps the Backend contract
// allocation-free on the hot per-frame path.
type (
	Instance       uintptr
	Adapter        uintptr
	Device         uintptr
	Queue          uintptr
	Surface        uintptr
	Texture        uintptr
	TextureView    uintptr
	Sampler        uintptr
	Buffer         uintptr
	ShaderModule   uintptr
	RenderPipeline uintptr
	CommandEncoder uintptr
	CommandBuffer  uintptr
	RenderPass     uintptr
)

// SurfaceTexture is the image acquired for the current frame, plus its
// acquisition status.
type SurfaceTexture struct {
	Texture Texture
	Status  SurfaceStatus
}

// SurfaceStatus indicates the result of GetCurrentTexture.
type SurfaceStatus uint32

const (
	SurfaceStatusSuccess SurfaceStatus = iota
	SurfaceStatusTimeout
	SurfaceStatusOutdated
	SurfaceStatusLost
	SurfaceStatusError
)

// SurfaceHandle contains the platform-specific target an output's
// swapchain presents to.
type SurfaceHandle struct {
	// DRM/KMS backend: connector + CRTC identifiers encoded as a handle.
	// Windowed fallback backend: host window system handle.
	Instance uintptr
	Window   uintptr
}

// AdapterOptions configures adapter selection.
type AdapterOptions struct {
	PowerPreference PowerPreference
}

// PowerPreference specifies the physical device class to prefer,
// mirroring performance.gpu_preference.
type PowerPreference uint32

const (
	PowerPreferenceAny PowerPreference = iota
	PowerPreferenceLowPower
	PowerPreferenceHighPerformance
)

// DeviceOptions configures logical device creation.
type DeviceOptions struct {
	Label string
}

// SurfaceConfig configures how a swapchain presents images.
type SurfaceConfig struct {
	Format      TextureFormat
	Usage       TextureUsage
	Width       uint32
	Height      uint32
	PresentMode PresentMode
	AlphaMode   AlphaMode
	// ImageCount is the requested swapchain image count (NewSwapchain
	// asks for 3).
	ImageCount uint32
}

// TextureFormat specifies texture pixel format.
type TextureFormat uint32

const (
	TextureFormatBGRA8UnormSRGB TextureFormat = iota
	TextureFormatRGBA8UnormSRGB
	TextureFormatBGRA8Unorm
	TextureFormatRGBA8Unorm
)

// TextureUsage specifies how a texture may be used, as a bitmask.
type TextureUsage uint32

const (
	TextureUsageRenderAttachment TextureUsage = 1 << iota
	TextureUsageTextureBinding
	TextureUsageCopyDst
	TextureUsageCopySrc
)

// PresentMode specifies swapchain presentation timing.
type PresentMode uint32

const (
	// PresentModeMailbox replaces a queued image with the newest one,
	// minimizing latency at the cost of dropped frames. Preferred when
	// available.
	PresentModeMailbox PresentMode = iota
	// PresentModeFifo is the vsync-locked fallback, always supported.
	PresentModeFifo
	PresentModeImmediate
)

// AlphaMode specifies how the swapchain composites with the OS/display
// alpha channel, if any.
type AlphaMode uint32

const (
	AlphaModeOpaque AlphaMode = iota
	AlphaModePreMultiplied
)

// TextureViewDescriptor describes how to create a texture view.
type TextureViewDescriptor struct {
	Format TextureFormat
}

// BufferUsage describes how a buffer will be used, as a bitmask.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageCopyDst
	BufferUsageCopySrc
)

// BufferDescriptor describes how to create a buffer.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// Extent3D is a 3D size, used for texture creation and copies.
type Extent3D struct {
	Width, Height, DepthOrArrayLayers uint32
}

// TextureDescriptor describes how to create a texture.
type TextureDescriptor struct {
	Label  string
	Size   Extent3D
	Format TextureFormat
	Usage  TextureUsage
}

// TextureDataLayout describes the memory layout of a staging upload.
type TextureDataLayout struct {
	Offset       uint64
	BytesPerRow  uint32
	RowsPerImage uint32
}

// DMABUFImportDescriptor describes a DMA-BUF to import as an external
// texture with no copy.
type DMABUFImportDescriptor struct {
	FD       int
	Modifier uint64
	Offset   uint32
	Stride   uint32
	Width    uint32
	Height   uint32
	Format   TextureFormat
}

// RenderPipelineDescriptor describes a render pipeline.
type RenderPipelineDescriptor struct {
	VertexShader     ShaderModule
	VertexEntryPoint string
	FragmentShader   ShaderModule
	FragmentEntry    string
	TargetFormat     TextureFormat
	// PushConstantSize reserves space for the per-draw transform/offset/
	// scale the surface pipeline pushes before each quad draw.
	PushConstantSize uint32
}

// RenderPassDescriptor describes a render pass.
type RenderPassDescriptor struct {
	ColorAttachments []ColorAttachment
}

// ColorAttachment describes a color render target.
type ColorAttachment struct {
	View       TextureView
	LoadOp     LoadOp
	StoreOp    StoreOp
	ClearColor Color
}

type LoadOp uint32

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
)

type StoreOp uint32

const (
	StoreOpStore StoreOp = iota
	StoreOpDiscard
)

// Color represents an RGBA color in the backend's native double
// precision form.
type Color struct {
	R, G, B, A float64
}

var activeBackend Backend

// SetBackend sets the process-wide active backend.
func SetBackend(b Backend) { activeBackend = b }

// GetBackend returns the process-wide active backend.
func GetBackend() Backend { return activeBackend }
