// Package texture bridges committed surface buffers to GPU textures: on
// each commit it uploads or imports the new buffer, and the renderer
// looks up the current texture for a surface by ID. It never holds a
// reference to a surface.Surface; everything is keyed by surface.ID so
// surfaces and textures can be destroyed independently.
package texture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/daaku/swizzle"
	"golang.org/x/image/draw"

	"github.com/wlcore/compositor/internal/gpu"
	"github.com/wlcore/compositor/internal/surface"
)

// Entry is a surface's current GPU-resident texture.
type Entry struct {
	Texture     gpu.Texture
	View        gpu.TextureView
	Width       int32
	Height      int32
	Generation  uint64
	lastCommit  time.Time
	// inFlight counts render passes that have bound this entry's View
	// but have not yet finished. OnCommit's replacement and LRU eviction
	// do not free an entry while inFlight > 0; Evict frees it regardless.
	inFlight int
}

// Cache maps surface.ID to its current texture, performing the SHM
// upload / DMA-BUF import on each commit and evicting entries under GPU
// memory pressure by least-recently-committed order.
type Cache struct {
	mu      sync.Mutex
	backend gpu.Backend
	device  gpu.Device
	queue   gpu.Queue
	entries map[surface.ID]*Entry
}

// NewCache creates a texture cache bound to a single device and queue.
func NewCache(backend gpu.Backend, device gpu.Device, queue gpu.Queue) *Cache {
	return &Cache{
		backend: backend,
		device:  device,
		queue:   queue,
		entries: make(map[surface.ID]*Entry),
	}
}

// Lookup returns the current texture entry for a surface, or false if
// none has been committed yet.
func (c *Cache) Lookup(id surface.ID) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

// Evict releases and removes a surface's texture, called on surface
// destruction.
func (c *Cache) Evict(id surface.ID) {
	c.mu.Lock()
	e, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()
	if ok {
		c.release(e)
	}
}

func (c *Cache) release(e *Entry) {
	if e.View != 0 {
		c.backend.ReleaseTextureView(e.View)
	}
	if e.Texture != 0 {
		c.backend.ReleaseTexture(e.Texture)
	}
}

// Retain marks a texture as referenced by an in-flight frame; Release
// must be called once that frame's command buffer has been waited on.
func (e *Entry) Retain() { e.inFlight++ }

// Release drops an in-flight reference.
func (e *Entry) Release() {
	if e.inFlight > 0 {
		e.inFlight--
	}
}

// OnCommit uploads a newly-committed buffer as this surface's current
// texture. A nil buffer (no new buffer attached this commit, or the
// surface attached a nil buffer to hide itself) evicts the entry.
// Unsupported formats and allocation failures never disconnect the
// client: they fall back to a black placeholder texture and a warning
// is returned alongside a successful result. A failed DMA-BUF import
// keeps the surface's previous texture when it has one.
func (c *Cache) OnCommit(id surface.ID, buf *surface.Buffer, generation uint64) (warning error, err error) {
	if buf == nil {
		c.Evict(id)
		return nil, nil
	}

	var (
		tex gpu.Texture
		w   uint32 = uint32(buf.Width)
		h   uint32 = uint32(buf.Height)
	)

	switch buf.Kind {
	case surface.BufferKindDMABUF:
		t, ierr := c.backend.ImportDMABUF(c.device, &gpu.DMABUFImportDescriptor{
			FD:       buf.FD,
			Modifier: buf.Modifier,
			Offset:   uint32(buf.Offset),
			Stride:   uint32(buf.Stride),
			Width:    w,
			Height:   h,
			Format:   toGPUFormat(buf.Format),
		})
		if ierr != nil {
			// Single-plane import failed or is unsupported. A DMA-BUF has
			// no CPU-mapped pixels to stage a copy from, so keep the last
			// good texture, or use the placeholder if there is none.
			c.mu.Lock()
			_, hasPrev := c.entries[id]
			c.mu.Unlock()
			if hasPrev {
				return fmt.Errorf("texture: dma-buf import failed for surface %d, keeping previous texture: %w", id, ierr), nil
			}
			tex, err = c.blackPlaceholder(w, h)
			warning = fmt.Errorf("texture: dma-buf import failed for surface %d, using placeholder: %w", id, ierr)
		} else {
			tex = t
		}
	case surface.BufferKindSHM:
		pixels, convWarn := toUploadablePixels(buf)
		if pixels == nil {
			tex, err = c.blackPlaceholder(w, h)
			warning = convWarn
			break
		}
		t, cerr := c.uploadSHM(w, h, pixels)
		if cerr != nil {
			return nil, cerr
		}
		tex = t
		warning = convWarn
	default:
		tex, err = c.blackPlaceholder(w, h)
		warning = fmt.Errorf("texture: unknown buffer kind for surface %d, using placeholder", id)
	}
	if err != nil {
		return warning, err
	}

	view := c.backend.CreateTextureView(tex, &gpu.TextureViewDescriptor{Format: gpu.TextureFormatRGBA8Unorm})

	c.mu.Lock()
	old := c.entries[id]
	c.entries[id] = &Entry{
		Texture:    tex,
		View:       view,
		Width:      buf.Width,
		Height:     buf.Height,
		Generation: generation,
		lastCommit: commitClock(),
	}
	c.mu.Unlock()

	if old != nil && old.inFlight == 0 {
		c.release(old)
	}
	return warning, nil
}

// commitClock is a seam so tests can control ordering without relying on
// wall-clock time across a whole test run; production always uses the
// real clock.
var commitClock = time.Now

func (c *Cache) uploadSHM(w, h uint32, pixels []byte) (gpu.Texture, error) {
	tex, err := c.backend.CreateTexture(c.device, &gpu.TextureDescriptor{
		Size:   gpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		Format: gpu.TextureFormatRGBA8Unorm,
		Usage:  gpu.TextureUsageTextureBinding | gpu.TextureUsageCopyDst,
	})
	if err != nil {
		if evicted := c.evictLRU(); evicted {
			return c.uploadSHM(w, h, pixels)
		}
		return 0, fmt.Errorf("texture: gpu allocation failed: %w", err)
	}
	c.backend.WriteTexture(c.queue, tex, pixels, gpu.TextureDataLayout{
		BytesPerRow:  w * 4,
		RowsPerImage: h,
	}, gpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1})
	return tex, nil
}

func (c *Cache) blackPlaceholder(w, h uint32) (gpu.Texture, error) {
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	pixels := make([]byte, w*h*4)
	for i := 3; i < len(pixels); i += 4 {
		pixels[i] = 0xff
	}
	return c.uploadSHM(w, h, pixels)
}

// evictLRU frees the least-recently-committed texture not currently
// referenced by an in-flight frame. Returns false if nothing could be
// freed, meaning the allocation failure is terminal for this commit.
func (c *Cache) evictLRU() bool {
	c.mu.Lock()
	var oldestID surface.ID
	var oldest *Entry
	for id, e := range c.entries {
		if e.inFlight > 0 {
			continue
		}
		if oldest == nil || e.lastCommit.Before(oldest.lastCommit) {
			oldest, oldestID = e, id
		}
	}
	if oldest != nil {
		delete(c.entries, oldestID)
	}
	c.mu.Unlock()
	if oldest == nil {
		return false
	}
	c.release(oldest)
	return true
}

// toUploadablePixels converts an SHM buffer's native pixel format to
// tightly-packed RGBA8 for upload, byte-swizzling channel order where
// the wire format differs. Returns nil with a warning for formats the
// compositor doesn't recognize.
func toUploadablePixels(buf *surface.Buffer) ([]byte, error) {
	bounds := image.Rect(0, 0, int(buf.Width), int(buf.Height))
	// buf.Data is strided (Stride may exceed Width*4 for a pool-backed
	// SHM buffer); wrapping it as an image.RGBA and using x/image/draw
	// to copy into a tightly-packed destination reuses a general strided-
	// copy routine instead of a hand-rolled per-row loop. Channel order
	// isn't RGBA yet at this point — that's fixed up by swizzle below —
	// draw.Draw with draw.Src only ever moves raw pixel bytes here.
	src := &image.RGBA{Pix: buf.Data, Stride: int(buf.Stride), Rect: bounds}
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, image.Point{}, draw.Src)
	out := dst.Pix

	switch buf.Format {
	case surface.FormatARGB8888:
		swizzle.BGRA(out) // ARGB little-endian on the wire reads as BGRA in memory
		return out, nil
	case surface.FormatXRGB8888:
		swizzle.BGRA(out)
		opaque(out)
		return out, nil
	case surface.FormatRGBA8888:
		return out, nil
	case surface.FormatRGBX8888:
		opaque(out)
		return out, nil
	default:
		return nil, fmt.Errorf("texture: unsupported buffer format %v", buf.Format)
	}
}

func opaque(pixels []byte) {
	for i := 3; i < len(pixels); i += 4 {
		pixels[i] = 0xff
	}
}

func toGPUFormat(f surface.BufferFormat) gpu.TextureFormat {
	switch f {
	case surface.FormatARGB8888, surface.FormatXRGB8888:
		return gpu.TextureFormatBGRA8Unorm
	default:
		return gpu.TextureFormatRGBA8Unorm
	}
}
