// Package terrain draws the chunks held in the vertex cache: one draw call
// per cached entry, with the chunk transform as a per-draw uniform.
package terrain

import (
	"fmt"
	"iter"
	"path/filepath"

	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/graphics"
	renderer "voxel-terrain/internal/graphics/renderer"
	"voxel-terrain/internal/profiling"
	vt "voxel-terrain/internal/terrain"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	VertShader = "terrain.vert"
	FragShader = "terrain.frag"
)

// Source yields the entries to draw. *terrain.Streamer satisfies it.
type Source interface {
	Entries() iter.Seq[vt.CacheEntry]
}

// glBuffer is implemented by vertex buffers that already live in the GL
// context and can be bound as they are.
type glBuffer interface {
	GLBuffer() uint32
}

type upload struct {
	vbo  uint32
	seen uint64
}

// Terrain renders every cached chunk that intersects the view frustum.
// Buffers from the OpenGL backend are bound directly; buffers from other
// backends are read back once and mirrored into GL buffers, which are
// freed when their entry leaves the cache.
type Terrain struct {
	src       Source
	shaderDir string
	shader    *graphics.Shader
	vao       uint32

	Wireframe bool

	frame   uint64
	uploads map[gpu.Buffer]*upload
	visible []vt.CacheEntry

	drawn, culled int
}

func NewTerrain(src Source, shaderDir string) *Terrain {
	return &Terrain{
		src:       src,
		shaderDir: shaderDir,
		uploads:   make(map[gpu.Buffer]*upload),
		visible:   make([]vt.CacheEntry, 0, 1024),
	}
}

func (t *Terrain) Init() error {
	var err error
	t.shader, err = graphics.NewShader(
		filepath.Join(t.shaderDir, VertShader),
		filepath.Join(t.shaderDir, FragShader))
	if err != nil {
		return err
	}
	gl.GenVertexArrays(1, &t.vao)
	gl.BindVertexArray(t.vao)
	gl.EnableVertexAttribArray(0)
	gl.EnableVertexAttribArray(1)
	gl.BindVertexArray(0)
	return nil
}

// Stats returns how many chunks the last frame drew and culled.
func (t *Terrain) Stats() (drawn, culled int) { return t.drawn, t.culled }

func (t *Terrain) Render(ctx renderer.RenderContext) {
	defer profiling.Track("renderer.renderTerrain")()
	t.frame++

	func() {
		defer profiling.Track("renderer.renderTerrain.collectVisible")()
		t.visible, t.culled = Visible(t.markSeen(t.src.Entries()), &ctx.Frustum, t.visible[:0])
	}()

	t.shader.Use()
	t.shader.SetMatrix4("uProjection", &ctx.Proj[0])
	t.shader.SetMatrix4("uView", &ctx.View[0])
	light := mgl32.Vec3{-0.3, -1.0, -0.3}.Normalize()
	t.shader.SetVector3("uLightDir", light.X(), light.Y(), light.Z())
	p := ctx.Camera.Position
	t.shader.SetVector3("uCameraPos", p.X(), p.Y(), p.Z())

	if t.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
		defer gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}

	gl.BindVertexArray(t.vao)
	t.drawn = 0
	for _, e := range t.visible {
		vbo, err := t.vertexBuffer(e.Buffer)
		if err != nil {
			continue
		}
		gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
		gl.VertexAttribPointerWithOffset(0, 4, gl.FLOAT, false, gpu.VertexSize, 0)
		gl.VertexAttribPointerWithOffset(1, 4, gl.FLOAT, false, gpu.VertexSize, 16)
		o := e.Transform
		t.shader.SetVector4("uChunkOrigin", o[0], o[1], o[2], o[3])
		gl.DrawArrays(gl.TRIANGLES, 0, int32(e.VertexCount))
		t.drawn++
	}
	gl.BindVertexArray(0)
	t.prune()
}

// vertexBuffer returns a GL buffer name holding b's vertices.
func (t *Terrain) vertexBuffer(b gpu.Buffer) (uint32, error) {
	if g, ok := b.(glBuffer); ok {
		return g.GLBuffer(), nil
	}
	if u, ok := t.uploads[b]; ok {
		u.seen = t.frame
		return u.vbo, nil
	}
	r, ok := b.(gpu.Readable)
	if !ok {
		return 0, fmt.Errorf("terrain: %T cannot be read back", b)
	}
	data, err := r.ReadBack()
	if err != nil {
		return 0, err
	}
	defer profiling.Track("renderer.renderTerrain.upload")()
	u := &upload{seen: t.frame}
	gl.GenBuffers(1, &u.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, u.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(data), gl.Ptr(data), gl.STATIC_DRAW)
	t.uploads[b] = u
	profiling.Add("upload.bytes", int64(len(data)))
	return u.vbo, nil
}

// markSeen keeps the mirrors of every cached entry alive, drawn or not.
func (t *Terrain) markSeen(entries iter.Seq[vt.CacheEntry]) iter.Seq[vt.CacheEntry] {
	return func(yield func(vt.CacheEntry) bool) {
		for e := range entries {
			if u, ok := t.uploads[e.Buffer]; ok {
				u.seen = t.frame
			}
			if !yield(e) {
				return
			}
		}
	}
}

// prune drops mirrors whose entries have left the cache.
func (t *Terrain) prune() {
	for b, u := range t.uploads {
		if u.seen != t.frame {
			gl.DeleteBuffers(1, &u.vbo)
			delete(t.uploads, b)
		}
	}
}

func (t *Terrain) SetViewport(width, height int) {}

func (t *Terrain) Dispose() {
	for b, u := range t.uploads {
		gl.DeleteBuffers(1, &u.vbo)
		delete(t.uploads, b)
	}
	if t.vao != 0 {
		gl.DeleteVertexArrays(1, &t.vao)
	}
	if t.shader != nil {
		t.shader.Delete()
	}
}

// Visible appends the entries whose chunk bounds intersect fr to dst and
// returns it together with the number culled.
func Visible(entries iter.Seq[vt.CacheEntry], fr *graphics.Frustum, dst []vt.CacheEntry) ([]vt.CacheEntry, int) {
	const dim = float32(gpu.ChunkDimension)
	culled := 0
	for e := range entries {
		lo := e.Transform.Vec3()
		hi := lo.Add(mgl32.Vec3{dim, dim, dim})
		if !fr.IntersectsAABB(lo, hi) {
			culled++
			continue
		}
		dst = append(dst, e)
	}
	return dst, culled
}
