package renderer

import (
	"voxel-terrain/internal/graphics"
	"voxel-terrain/internal/profiling"

	"github.com/go-gl/gl/v4.3-core/gl"
)

// Renderer clears the frame and runs each renderable in order.
type Renderer struct {
	renderables []Renderable
	camera      *graphics.Camera
}

// NewRenderer configures the GL state and initializes every renderable.
// Renderables that were initialized are disposed again if a later one fails.
func NewRenderer(camera *graphics.Camera, rs ...Renderable) (*Renderer, error) {
	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)
	gl.FrontFace(gl.CCW)

	for i, r := range rs {
		if err := r.Init(); err != nil {
			for j := i - 1; j >= 0; j-- {
				rs[j].Dispose()
			}
			return nil, err
		}
	}
	return &Renderer{renderables: rs, camera: camera}, nil
}

// Render draws one frame from the camera's point of view.
func (r *Renderer) Render(dt float64) {
	defer profiling.Track("renderer.Render")()
	gl.ClearColor(0.53, 0.70, 0.92, 1.0)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	view := r.camera.GetViewMatrix()
	proj := r.camera.GetProjectionMatrix()
	ctx := RenderContext{
		Camera:  r.camera,
		DT:      dt,
		View:    view,
		Proj:    proj,
		Frustum: graphics.NewFrustum(proj.Mul4(view)),
	}
	for _, renderable := range r.renderables {
		renderable.Render(ctx)
	}
}

// Dispose cleans up all renderables in reverse order
func (r *Renderer) Dispose() {
	for i := len(r.renderables) - 1; i >= 0; i-- {
		r.renderables[i].Dispose()
	}
}

// GetCamera returns the camera instance
func (r *Renderer) GetCamera() *graphics.Camera {
	return r.camera
}

// UpdateViewport updates the camera and every renderable for a new window size.
func (r *Renderer) UpdateViewport(width, height int) {
	r.camera.SetViewport(width, height)
	for _, renderable := range r.renderables {
		renderable.SetViewport(width, height)
	}
}
