package mcubes

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

// Cell corner and edge numbering shared with assets/shaders/terrain_meshing*.comp.
// Bit i of a case index is set when corner i is solid (density > 0).

// CornerOffsets are the unit offsets of the eight cell corners.
var CornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// EdgeCorners lists the two corners joined by each of the twelve cell edges.
var EdgeCorners = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// cellFaces lists the corners of each face counter-clockwise as seen from
// outside the cell.
var cellFaces = [6][4]int{
	{0, 3, 2, 1}, // z = 0
	{4, 5, 6, 7}, // z = 1
	{0, 1, 5, 4}, // y = 0
	{3, 7, 6, 2}, // y = 1
	{0, 4, 7, 3}, // x = 0
	{1, 2, 6, 5}, // x = 1
}

const (
	// MaxTrianglesPerCell bounds the triangles any case emits.
	MaxTrianglesPerCell = 5
	// TriTableWidth is the row length of TriTable including the -1 terminator.
	TriTableWidth = 16
)

var (
	// EdgeTable holds, per case, a 12-bit mask of the edges the surface crosses.
	EdgeTable [256]int32
	// TriTable holds, per case, up to five triangles as edge-index triples,
	// terminated by -1. Triangles wind counter-clockwise seen from the empty side.
	TriTable [256][TriTableWidth]int32
)

func init() {
	for cube := range 256 {
		EdgeTable[cube], TriTable[cube] = buildCase(uint8(cube))
	}
}

func edgeBetween(a, b int) int {
	for e, c := range EdgeCorners {
		if (c[0] == a && c[1] == b) || (c[0] == b && c[1] == a) {
			return e
		}
	}
	panic("mcubes: corners do not share an edge")
}

// buildCase derives the table rows for one corner configuration.
//
// Every face contributes one directed segment per run of solid corners along
// its boundary, from the edge where the run starts to the edge where it ends.
// Solid corners that touch only diagonally are never joined, so neighbouring
// cells agree on every shared face and the mesh stays watertight. The
// segments chain into closed loops which are fanned into triangles.
func buildCase(cube uint8) (int32, [TriTableWidth]int32) {
	solid := func(c int) bool { return cube&(1<<c) != 0 }

	var mask int32
	for e, c := range EdgeCorners {
		if solid(c[0]) != solid(c[1]) {
			mask |= 1 << e
		}
	}

	next := [12]int{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	for _, f := range cellFaces {
		for k := range 4 {
			a, b := f[k], f[(k+1)%4]
			if solid(a) || !solid(b) {
				continue
			}
			entry := edgeBetween(a, b)
			for j := 1; j < 4; j++ {
				c, d := f[(k+j)%4], f[(k+j+1)%4]
				if solid(c) && !solid(d) {
					next[entry] = edgeBetween(c, d)
					break
				}
			}
		}
	}

	var row [TriTableWidth]int32
	for i := range row {
		row[i] = -1
	}
	n := 0
	var visited [12]bool
	for start := range 12 {
		if next[start] < 0 || visited[start] {
			continue
		}
		var loop []int
		for e := start; !visited[e]; e = next[e] {
			visited[e] = true
			loop = append(loop, e)
		}
		loop = fanStart(loop)
		for i := 1; i+1 < len(loop); i++ {
			row[n], row[n+1], row[n+2] = int32(loop[0]), int32(loop[i]), int32(loop[i+1])
			n += 3
		}
	}
	return mask, row
}

func edgeMidpoint(e int) mgl32.Vec3 {
	a, b := CornerOffsets[EdgeCorners[e][0]], CornerOffsets[EdgeCorners[e][1]]
	return mgl32.Vec3{
		float32(a[0]+b[0]) / 2,
		float32(a[1]+b[1]) / 2,
		float32(a[2]+b[2]) / 2,
	}
}

// fanStart rotates a loop so that a fan from its first vertex produces only
// triangles facing the same way as the loop as a whole. Loops on a cell are
// not planar and a badly placed fan folds over itself.
func fanStart(loop []int) []int {
	if len(loop) <= 3 {
		return loop
	}
	var normal mgl32.Vec3
	for i, e := range loop {
		normal = normal.Add(edgeMidpoint(e).Cross(edgeMidpoint(loop[(i+1)%len(loop)])))
	}
	for r := range loop {
		rotated := append(append([]int{}, loop[r:]...), loop[:r]...)
		origin := edgeMidpoint(rotated[0])
		ok := true
		for i := 1; i+1 < len(rotated); i++ {
			u := edgeMidpoint(rotated[i]).Sub(origin)
			v := edgeMidpoint(rotated[i+1]).Sub(origin)
			if u.Cross(v).Dot(normal) <= 1e-6 {
				ok = false
				break
			}
		}
		if ok {
			return rotated
		}
	}
	return loop
}

// TriangleCount returns how many triangles a case emits.
func TriangleCount(cube uint8) int {
	n := 0
	for n < MaxTrianglesPerCell && TriTable[cube][n*3] >= 0 {
		n++
	}
	return n
}

// TableBytes encodes the edge and triangle tables as little-endian int32
// arrays, the layout of the shader's table buffers.
func TableBytes() (edges, tris []byte) {
	edges = make([]byte, 0, len(EdgeTable)*4)
	for _, v := range EdgeTable {
		edges = binary.LittleEndian.AppendUint32(edges, uint32(v))
	}
	tris = make([]byte, 0, len(TriTable)*TriTableWidth*4)
	for _, row := range TriTable {
		for _, v := range row {
			tris = binary.LittleEndian.AppendUint32(tris, uint32(v))
		}
	}
	return edges, tris
}
