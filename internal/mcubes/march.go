// Package mcubes is the CPU marching-cubes mesher. It mirrors the meshing
// compute shader operation for operation and serves both as the software
// device's kernel and as the reference the GPU output is checked against.
package mcubes

import (
	"encoding/binary"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Sampler is a scalar density field. Positive values are solid.
type Sampler interface {
	Density(x, y, z float32) float32
}

// VertexSize is the byte size of one Vertex in GPU memory.
const VertexSize = 32

// Vertex matches the std430 vertex struct written by the meshing shader.
type Vertex struct {
	Position mgl32.Vec4
	Normal   mgl32.Vec4
}

// Put encodes v into dst, which must hold VertexSize bytes.
func (v Vertex) Put(dst []byte) {
	_ = dst[VertexSize-1]
	for i := range 4 {
		binary.LittleEndian.PutUint32(dst[i*4:], math32.Float32bits(v.Position[i]))
		binary.LittleEndian.PutUint32(dst[16+i*4:], math32.Float32bits(v.Normal[i]))
	}
}

// DecodeVertices decodes a tightly packed vertex buffer.
func DecodeVertices(b []byte) []Vertex {
	out := make([]Vertex, len(b)/VertexSize)
	for n := range out {
		rec := b[n*VertexSize:]
		for i := range 4 {
			out[n].Position[i] = math32.Float32frombits(binary.LittleEndian.Uint32(rec[i*4:]))
			out[n].Normal[i] = math32.Float32frombits(binary.LittleEndian.Uint32(rec[16+i*4:]))
		}
	}
	return out
}

// EncodeVertices packs vertices in GPU layout.
func EncodeVertices(vs []Vertex) []byte {
	out := make([]byte, len(vs)*VertexSize)
	for i, v := range vs {
		v.Put(out[i*VertexSize:])
	}
	return out
}

// SampleCorners evaluates f at the eight corners of the unit cell at base.
func SampleCorners(f Sampler, base mgl32.Vec3) [8]float32 {
	var d [8]float32
	for i, o := range CornerOffsets {
		d[i] = f.Density(base[0]+float32(o[0]), base[1]+float32(o[1]), base[2]+float32(o[2]))
	}
	return d
}

// CaseIndex returns the table row for a set of corner densities.
func CaseIndex(d *[8]float32) uint8 {
	var cube uint8
	for i, v := range d {
		if v > 0 {
			cube |= 1 << i
		}
	}
	return cube
}

const gradientStep = 0.5

// surfaceNormal points from solid towards empty space.
func surfaceNormal(f Sampler, p mgl32.Vec3) mgl32.Vec4 {
	gx := f.Density(p[0]+gradientStep, p[1], p[2]) - f.Density(p[0]-gradientStep, p[1], p[2])
	gy := f.Density(p[0], p[1]+gradientStep, p[2]) - f.Density(p[0], p[1]-gradientStep, p[2])
	gz := f.Density(p[0], p[1], p[2]+gradientStep) - f.Density(p[0], p[1], p[2]-gradientStep)
	l := math32.Sqrt(gx*gx + gy*gy + gz*gz)
	if l == 0 {
		return mgl32.Vec4{0, 1, 0, 0}
	}
	return mgl32.Vec4{-gx / l, -gy / l, -gz / l, 0}
}

func edgePoint(base mgl32.Vec3, d *[8]float32, e int32) mgl32.Vec3 {
	a, b := EdgeCorners[e][0], EdgeCorners[e][1]
	t := d[a] / (d[a] - d[b])
	pa, pb := CornerOffsets[a], CornerOffsets[b]
	return mgl32.Vec3{
		base[0] + float32(pa[0]) + t*float32(pb[0]-pa[0]),
		base[1] + float32(pa[1]) + t*float32(pb[1]-pa[1]),
		base[2] + float32(pa[2]) + t*float32(pb[2]-pa[2]),
	}
}

// Polygonise appends the triangles of one cell to dst. d holds the corner
// densities of the cell at base, as returned by SampleCorners.
func Polygonise(f Sampler, base mgl32.Vec3, d *[8]float32, dst []Vertex) []Vertex {
	cube := CaseIndex(d)
	if EdgeTable[cube] == 0 {
		return dst
	}
	row := &TriTable[cube]
	for i := 0; row[i] >= 0; i++ {
		p := edgePoint(base, d, row[i])
		dst = append(dst, Vertex{
			Position: p.Vec4(1),
			Normal:   surfaceNormal(f, p),
		})
	}
	return dst
}

// MeshChunk meshes a dim^3 cell block whose minimum corner is origin, walking
// cells with x fastest. It is the reference output for one meshing dispatch.
func MeshChunk(f Sampler, origin mgl32.Vec3, dim int) []Vertex {
	var out []Vertex
	for z := range dim {
		for y := range dim {
			for x := range dim {
				base := origin.Add(mgl32.Vec3{float32(x), float32(y), float32(z)})
				d := SampleCorners(f, base)
				out = Polygonise(f, base, &d, out)
			}
		}
	}
	return out
}
