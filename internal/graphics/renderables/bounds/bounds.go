// Package bounds outlines the chunk the viewer stands in and the cube of
// chunks the streamer keeps loaded around it.
package bounds

import (
	"path/filepath"

	"voxel-terrain/internal/graphics"
	renderer "voxel-terrain/internal/graphics/renderer"
	"voxel-terrain/internal/profiling"
	vt "voxel-terrain/internal/terrain"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// Region is the streamed area. *terrain.Streamer satisfies it.
type Region interface {
	Center() vt.ChunkCoord
	Radius() int
}

// Box is an axis aligned box in world space.
type Box struct {
	Min  mgl32.Vec3
	Size float32
}

// Model scales and moves the unit cube onto b.
func (b Box) Model() mgl32.Mat4 {
	return mgl32.Translate3D(b.Min.X(), b.Min.Y(), b.Min.Z()).Mul4(mgl32.Scale3D(b.Size, b.Size, b.Size))
}

// Boxes returns the center chunk and the load cube of chunks within radius.
func Boxes(center vt.ChunkCoord, radius int) (chunk, load Box) {
	const dim = float32(vt.ChunkDimension)
	origin := center.Transform().Vec3()
	chunk = Box{Min: origin, Size: dim}
	r := float32(radius) * dim
	load = Box{Min: origin.Sub(mgl32.Vec3{r, r, r}), Size: float32(2*radius+1) * dim}
	return chunk, load
}

// unit cube edges as line pairs
var edges = []float32{
	0, 0, 1, 1, 0, 1,
	1, 0, 1, 1, 1, 1,
	1, 1, 1, 0, 1, 1,
	0, 1, 1, 0, 0, 1,

	0, 0, 0, 1, 0, 0,
	1, 0, 0, 1, 1, 0,
	1, 1, 0, 0, 1, 0,
	0, 1, 0, 0, 0, 0,

	0, 0, 1, 0, 0, 0,
	1, 0, 1, 1, 0, 0,
	1, 1, 1, 1, 1, 0,
	0, 1, 1, 0, 1, 0,
}

// Bounds draws the two outlines when Visible is set.
type Bounds struct {
	region    Region
	shaderDir string
	shader    *graphics.Shader
	vao       uint32
	vbo       uint32

	Visible bool
}

func NewBounds(region Region, shaderDir string) *Bounds {
	return &Bounds{region: region, shaderDir: shaderDir}
}

func (b *Bounds) Init() error {
	var err error
	b.shader, err = graphics.NewShader(
		filepath.Join(b.shaderDir, "bounds.vert"),
		filepath.Join(b.shaderDir, "bounds.frag"))
	if err != nil {
		return err
	}

	gl.GenVertexArrays(1, &b.vao)
	gl.BindVertexArray(b.vao)
	gl.GenBuffers(1, &b.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(edges)*4, gl.Ptr(edges), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, 3*4, 0)
	gl.BindVertexArray(0)
	return nil
}

func (b *Bounds) Render(ctx renderer.RenderContext) {
	if !b.Visible {
		return
	}
	defer profiling.Track("renderer.renderBounds")()

	b.shader.Use()
	b.shader.SetMatrix4("proj", &ctx.Proj[0])
	b.shader.SetMatrix4("view", &ctx.View[0])

	chunk, load := Boxes(b.region.Center(), b.region.Radius())
	gl.BindVertexArray(b.vao)
	b.draw(chunk, 1.0, 0.9, 0.2)
	b.draw(load, 0.2, 0.6, 1.0)
	gl.BindVertexArray(0)
}

func (b *Bounds) draw(box Box, r, g, bl float32) {
	model := box.Model()
	b.shader.SetMatrix4("model", &model[0])
	b.shader.SetVector3("color", r, g, bl)
	gl.DrawArrays(gl.LINES, 0, 24)
}

func (b *Bounds) SetViewport(width, height int) {}

func (b *Bounds) Dispose() {
	if b.vao != 0 {
		gl.DeleteVertexArrays(1, &b.vao)
	}
	if b.vbo != 0 {
		gl.DeleteBuffers(1, &b.vbo)
	}
	if b.shader != nil {
		b.shader.Delete()
	}
}
