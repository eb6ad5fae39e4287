package terrain

import (
	"fmt"

	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/mcubes"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ChunkDimension is the edge length of a chunk in cells.
const ChunkDimension = gpu.ChunkDimension

// VertexRecord is one meshed vertex as laid out in GPU memory.
type VertexRecord = mcubes.Vertex

// VertexSize is the byte size of a VertexRecord.
const VertexSize = mcubes.VertexSize

// ChunkCoord identifies a chunk on the chunk grid.
type ChunkCoord struct {
	X, Y, Z int
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Transform is the world-space origin of a chunk, with w = 1.
func (c ChunkCoord) Transform() mgl32.Vec4 {
	return mgl32.Vec4{
		float32(c.X * ChunkDimension),
		float32(c.Y * ChunkDimension),
		float32(c.Z * ChunkDimension),
		1,
	}
}

// Add offsets c by d.
func (c ChunkCoord) Add(d ChunkCoord) ChunkCoord {
	return ChunkCoord{X: c.X + d.X, Y: c.Y + d.Y, Z: c.Z + d.Z}
}

// Chebyshev returns the chessboard distance between two chunks.
func Chebyshev(a, b ChunkCoord) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y), abs(a.Z-b.Z))
}

// ChunkAt returns the chunk a viewer at p is considered to stand in. Each
// axis is rounded to the nearest chunk origin.
func ChunkAt(p mgl32.Vec3) ChunkCoord {
	return ChunkCoord{
		X: axisChunk(p[0]),
		Y: axisChunk(p[1]),
		Z: axisChunk(p[2]),
	}
}

func axisChunk(v float32) int {
	return floorDiv(int(math32.Floor(v))+ChunkDimension/2, ChunkDimension)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
