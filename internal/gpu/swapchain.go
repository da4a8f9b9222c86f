package gpu

import "fmt"

// Swapchain is a per-output ring of images with acquire/present
// semantics. One Swapchain binds to exactly one output's Surface.
type Swapchain struct {
	backend Backend
	device  Device
	queue   Queue
	surface Surface

	width, height uint32
	format        TextureFormat
	imageCount    uint32
}

// NewSwapchain configures the surface with the sRGB 8-bit BGRA format,
// FIFO presentation when vsync is true and mailbox presentation when it
// is false, and a fixed request of 3 images. It does not query the
// surface's supported formats, present modes or minimum image count, so
// there is no fallback when the chosen format or mode is unsupported. A
// zero-area surface (minimized or off-screen output) returns a Swapchain
// with no images; callers must check Empty().
func NewSwapchain(backend Backend, device Device, queue Queue, surface Surface, width, height uint32, vsync bool) (*Swapchain, error) {
	if width == 0 || height == 0 {
		return &Swapchain{backend: backend, device: device, queue: queue, surface: surface}, nil
	}

	presentMode := PresentModeMailbox
	if vsync {
		presentMode = PresentModeFifo
	}

	sc := &Swapchain{
		backend:    backend,
		device:     device,
		queue:      queue,
		surface:    surface,
		width:      width,
		height:     height,
		format:     TextureFormatBGRA8UnormSRGB,
		imageCount: 3,
	}

	backend.ConfigureSurface(surface, device, &SurfaceConfig{
		Format:      sc.format,
		Usage:       TextureUsageRenderAttachment,
		Width:       width,
		Height:      height,
		PresentMode: presentMode,
		AlphaMode:   AlphaModeOpaque,
		ImageCount:  sc.imageCount,
	})
	return sc, nil
}

// Empty reports whether the swapchain has no images (zero-area output).
func (s *Swapchain) Empty() bool { return s.width == 0 || s.height == 0 }

// Format returns the swapchain's chosen pixel format.
func (s *Swapchain) Format() TextureFormat { return s.format }

// ImageCount returns the number of swapchain images, and so the number
// of in-flight frame slots the renderer must maintain.
func (s *Swapchain) ImageCount() uint32 { return s.imageCount }

// AcquireNextImage acquires the next presentable image. Callers must
// rebuild the swapchain (via Resize) when the backend reports it is out
// of date.
func (s *Swapchain) AcquireNextImage() (SurfaceTexture, error) {
	if s.Empty() {
		return SurfaceTexture{}, ErrSurfaceOutOfDate
	}
	tex, err := s.backend.GetCurrentTexture(s.surface)
	if err != nil {
		return SurfaceTexture{}, err
	}
	switch tex.Status {
	case SurfaceStatusSuccess:
		return tex, nil
	case SurfaceStatusOutdated, SurfaceStatusTimeout:
		return tex, ErrSurfaceOutOfDate
	case SurfaceStatusLost:
		return tex, ErrSurfaceLost
	default:
		return tex, fmt.Errorf("gpu: acquire failed with status %d", tex.Status)
	}
}

// Present presents the currently acquired image.
func (s *Swapchain) Present() {
	if s.Empty() {
		return
	}
	s.backend.Present(s.surface)
}

// Resize destroys and rebuilds the swapchain at the new dimensions. It
// waits the device idle first so no in-flight frame references the old
// images.
func (s *Swapchain) Resize(width, height uint32, vsync bool) error {
	s.backend.WaitIdle(s.device)
	rebuilt, err := NewSwapchain(s.backend, s.device, s.queue, s.surface, width, height, vsync)
	if err != nil {
		return err
	}
	*s = *rebuilt
	return nil
}
