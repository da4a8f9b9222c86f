package render

import (
	"fmt"
	"sync"

	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/gpu"
	"github.com/wlcore/compositor/internal/layout"
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/texture"
)

// Output binds a layout.Space's geometry to a swapchain. internal/server
// creates one per enumerated output and keeps it alive across mode
// changes via Resize.
type Output struct {
	ID     layout.OutputID
	Bounds gmath.Rect
	Scale  int32

	chain *gpu.Swapchain
}

// NewOutput creates the swapchain a Renderer will present into for this
// output. vsync picks FIFO presentation; disabling it prefers mailbox.
func NewOutput(backend gpu.Backend, device gpu.Device, queue gpu.Queue, surf gpu.Surface, id layout.OutputID, bounds gmath.Rect, vsync bool) (*Output, error) {
	chain, err := gpu.NewSwapchain(backend, device, queue, surf, uint32(bounds.Width), uint32(bounds.Height), vsync)
	if err != nil {
		return nil, fmt.Errorf("render: creating swapchain for output %d: %w", id, err)
	}
	return &Output{ID: id, Bounds: bounds, Scale: 1, chain: chain}, nil
}

// Resize rebuilds the output's swapchain for a new mode or scale change.
func (o *Output) Resize(bounds gmath.Rect, vsync bool) error {
	o.Bounds = bounds
	return o.chain.Resize(uint32(bounds.Width), uint32(bounds.Height), vsync)
}

// Cursor describes the pointer's current drag image or shape, drawn as
// the final always-on-top pass of a frame.
type Cursor struct {
	Surface surface.ID
	// Position and Hotspot are both in the output's local coordinate
	// space; the quad is drawn at Position - Hotspot.
	Position gmath.Vec2
	Hotspot  gmath.Vec2
}

// FrameResult reports what a RenderOutput call drew, so the caller
// (internal/server) can fire frame callbacks and presentation feedback
// for exactly the surfaces that made it into the presented image.
type FrameResult struct {
	Presented     bool
	DrawnSurfaces []surface.ID
}

// Renderer draws the composited scene for every output, sharing one
// quad pipeline per swapchain pixel format and one texture cache across
// all of them.
type Renderer struct {
	backend  gpu.Backend
	device   gpu.Device
	queue    gpu.Queue
	textures *texture.Cache

	mu        sync.Mutex
	pipelines map[gpu.TextureFormat]*Pipeline

	// ClearColor is the color behind every output with no opaque
	// background layer surface mapped.
	ClearColor gpu.Color
}

// NewRenderer creates a Renderer bound to a single device, queue, and
// texture cache; internal/server constructs one of these for the whole
// compositor process.
func NewRenderer(backend gpu.Backend, device gpu.Device, queue gpu.Queue, textures *texture.Cache) *Renderer {
	return &Renderer{
		backend:    backend,
		device:     device,
		queue:      queue,
		textures:   textures,
		pipelines:  make(map[gpu.TextureFormat]*Pipeline),
		ClearColor: gpu.Color{R: 0.08, G: 0.08, B: 0.1, A: 1},
	}
}

// viewportUV converts a wp_viewporter source rect, in buffer pixels,
// into the normalized uvOffset/uvScale pair the quad shader applies to
// the unit quad's [0,1] texture coordinates. A nil src samples the
// whole texture (identity offset/scale).
func viewportUV(src *gmath.Rect, texWidth, texHeight int32) (offset, scale gmath.Vec2) {
	if src == nil || texWidth <= 0 || texHeight <= 0 {
		return gmath.Vec2{}, gmath.NewVec2(1, 1)
	}
	w, h := float32(texWidth), float32(texHeight)
	return gmath.NewVec2(float32(src.X)/w, float32(src.Y)/h),
		gmath.NewVec2(float32(src.Width)/w, float32(src.Height)/h)
}

func (r *Renderer) pipelineFor(format gpu.TextureFormat) (*Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipelines[format]; ok {
		return p, nil
	}
	p, err := NewPipeline(r.backend, r.device, r.queue, format)
	if err != nil {
		return nil, err
	}
	r.pipelines[format] = p
	return p, nil
}

// drawable is one surface-quad draw: its texture, its destination
// rectangle and alpha in output pixel space, and the buffer-pixel crop
// a wp_viewporter source rect selects from the texture (nil samples the
// whole texture).
type drawable struct {
	id          surface.ID
	position    gmath.Vec2
	size        gmath.Vec2
	alpha       float32
	viewportSrc *gmath.Rect
}

// RenderOutput composites space's layer surfaces and windows, in
// stacking order, into out's next swapchain image, followed by cursor
// as a final always-on-top pass, and presents the result. A nil cursor
// skips the cursor pass (no pointer capability, or no cursor surface
// assigned).
func (r *Renderer) RenderOutput(out *Output, space *layout.Space, cursor *Cursor) (FrameResult, error) {
	if out.chain.Empty() {
		return FrameResult{}, nil
	}

	pipeline, err := r.pipelineFor(out.chain.Format())
	if err != nil {
		return FrameResult{}, err
	}

	acquired, err := out.chain.AcquireNextImage()
	if err != nil {
		return FrameResult{}, err
	}

	view := r.backend.CreateTextureView(acquired.Texture, &gpu.TextureViewDescriptor{Format: out.chain.Format()})
	defer r.backend.ReleaseTextureView(view)

	encoder := r.backend.CreateCommandEncoder(r.device)
	pass := r.backend.BeginRenderPass(encoder, &gpu.RenderPassDescriptor{
		ColorAttachments: []gpu.ColorAttachment{
			{View: view, LoadOp: gpu.LoadOpClear, StoreOp: gpu.StoreOpStore, ClearColor: r.ClearColor},
		},
	})
	r.backend.SetPipeline(pass, pipeline.handle)
	r.backend.SetVertexBuffer(pass, 0, pipeline.vbuf)
	r.backend.SetViewportScissor(pass, 0, 0, uint32(out.Bounds.Width), uint32(out.Bounds.Height))

	proj := gmath.Orthographic(0, float32(out.Bounds.Width), float32(out.Bounds.Height), 0, -1, 1)

	var drawn []surface.ID
	draw := func(d drawable) {
		entry, ok := r.textures.Lookup(d.id)
		if !ok {
			return
		}
		entry.Retain()
		defer entry.Release()

		model := gmath.Translation(d.position.X, d.position.Y, 0).Mul(gmath.Scale(d.size.X, d.size.Y, 1))
		transform := proj.Mul(model)
		uvOffset, uvScale := viewportUV(d.viewportSrc, entry.Width, entry.Height)

		r.backend.SetBindGroup(pass, 0, entry.View)
		r.backend.SetPushConstants(pass, pushConstants(transform, d.alpha, uvOffset, uvScale))
		r.backend.Draw(pass, uint32(len(unitQuad)), 1, 0, 0)
		drawn = append(drawn, d.id)
	}

	for _, ls := range space.Layers() {
		if ls.Layer != layout.LayerBackground && ls.Layer != layout.LayerBottom {
			continue
		}
		draw(drawable{id: ls.SurfaceID, position: ls.Position, size: ls.Size, alpha: 1, viewportSrc: ls.ViewportSrc})
	}
	for _, w := range space.Windows() {
		if !w.Visible {
			continue
		}
		draw(drawable{id: w.SurfaceID, position: w.Position, size: w.Size, alpha: 1, viewportSrc: w.ViewportSrc})
	}
	for _, ls := range space.Layers() {
		if ls.Layer != layout.LayerTop && ls.Layer != layout.LayerOverlay {
			continue
		}
		draw(drawable{id: ls.SurfaceID, position: ls.Position, size: ls.Size, alpha: 1, viewportSrc: ls.ViewportSrc})
	}

	if cursor != nil {
		if entry, ok := r.textures.Lookup(cursor.Surface); ok {
			pos := cursor.Position.Sub(cursor.Hotspot)
			draw(drawable{
				id:       cursor.Surface,
				position: pos,
				size:     gmath.NewVec2(float32(entry.Width), float32(entry.Height)),
				alpha:    1,
			})
		}
	}

	r.backend.EndRenderPass(pass)
	cmd := r.backend.FinishEncoder(encoder)
	r.backend.Submit(r.queue, cmd)
	r.backend.ReleaseCommandBuffer(cmd)
	r.backend.ReleaseCommandEncoder(encoder)
	r.backend.ReleaseRenderPass(pass)

	out.chain.Present()

	return FrameResult{Presented: true, DrawnSurfaces: drawn}, nil
}

// Destroy releases every cached pipeline. Called once on shutdown, after
// WaitIdle has been called on the device.
func (r *Renderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pipelines {
		p.Release()
	}
	r.pipelines = nil
}
