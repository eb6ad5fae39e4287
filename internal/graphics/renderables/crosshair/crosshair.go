package crosshair

import (
	"path/filepath"

	"voxel-terrain/internal/graphics"
	renderer "voxel-terrain/internal/graphics/renderer"
	"voxel-terrain/internal/profiling"

	"github.com/go-gl/gl/v4.3-core/gl"
)

var Vertices = []float32{
	-0.02, 0.0,
	0.02, 0.0,
	0.0, -0.02,
	0.0, 0.02,
}

// Crosshair draws a small cross in the middle of the screen.
type Crosshair struct {
	shaderDir string
	shader    *graphics.Shader
	vao       uint32
	vbo       uint32
}

// NewCrosshair creates a crosshair that loads its shaders from shaderDir.
func NewCrosshair(shaderDir string) *Crosshair {
	return &Crosshair{shaderDir: shaderDir}
}

func (c *Crosshair) Init() error {
	var err error
	c.shader, err = graphics.NewShader(
		filepath.Join(c.shaderDir, "crosshair.vert"),
		filepath.Join(c.shaderDir, "crosshair.frag"))
	if err != nil {
		return err
	}

	gl.GenVertexArrays(1, &c.vao)
	gl.BindVertexArray(c.vao)

	gl.GenBuffers(1, &c.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, c.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(Vertices)*4, gl.Ptr(Vertices), gl.STATIC_DRAW)

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, 2*4, 0)
	gl.BindVertexArray(0)
	return nil
}

func (c *Crosshair) Render(ctx renderer.RenderContext) {
	defer profiling.Track("renderer.renderCrosshair")()
	c.shader.Use()
	c.shader.SetFloat("aspectRatio", ctx.Camera.AspectRatio)

	gl.Disable(gl.DEPTH_TEST)
	gl.BindVertexArray(c.vao)
	gl.LineWidth(1.0)
	gl.DrawArrays(gl.LINES, 0, 4)
	gl.Enable(gl.DEPTH_TEST)
}

func (c *Crosshair) SetViewport(width, height int) {}

func (c *Crosshair) Dispose() {
	if c.vao != 0 {
		gl.DeleteVertexArrays(1, &c.vao)
	}
	if c.vbo != 0 {
		gl.DeleteBuffers(1, &c.vbo)
	}
	if c.shader != nil {
		c.shader.Delete()
	}
}
