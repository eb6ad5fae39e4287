package mcubes

import (
	"encoding/binary"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// TestEmptyAndFullCases verifies cells entirely on one side emit nothing
func TestEmptyAndFullCases(t *testing.T) {
	for _, cube := range []uint8{0, 255} {
		if EdgeTable[cube] != 0 {
			t.Errorf("EdgeTable[%d] = %#x, want 0", cube, EdgeTable[cube])
		}
		if n := TriangleCount(cube); n != 0 {
			t.Errorf("TriangleCount(%d) = %d, want 0", cube, n)
		}
	}
}

// TestEdgeTableMatchesTriTable verifies every crossed edge carries a vertex and no other edge does
func TestEdgeTableMatchesTriTable(t *testing.T) {
	for cube := range 256 {
		var used int32
		row := TriTable[cube]
		for i := 0; row[i] >= 0; i++ {
			used |= 1 << row[i]
		}
		if used != EdgeTable[cube] {
			t.Errorf("case %d: tri table uses edges %#03x, edge table has %#03x", cube, used, EdgeTable[cube])
		}
	}
}

// TestComplementaryCasesCrossSameEdges verifies flipping every corner keeps the crossed edges
func TestComplementaryCasesCrossSameEdges(t *testing.T) {
	for cube := range 256 {
		if EdgeTable[cube] != EdgeTable[255-cube] {
			t.Errorf("case %d and %d disagree: %#03x vs %#03x", cube, 255-cube, EdgeTable[cube], EdgeTable[255-cube])
		}
	}
}

// TestTriangleBudget verifies the five-triangle bound the scratch buffer is sized for
func TestTriangleBudget(t *testing.T) {
	maxSeen := 0
	for cube := range 256 {
		row := TriTable[cube]
		n := 0
		for row[n] >= 0 {
			n++
		}
		if n%3 != 0 {
			t.Fatalf("case %d: %d indices is not a whole number of triangles", cube, n)
		}
		if n/3 > MaxTrianglesPerCell {
			t.Fatalf("case %d: %d triangles exceeds %d", cube, n/3, MaxTrianglesPerCell)
		}
		maxSeen = max(maxSeen, n/3)
	}
	if maxSeen != MaxTrianglesPerCell {
		t.Errorf("largest case has %d triangles, want %d", maxSeen, MaxTrianglesPerCell)
	}
}

// TestSingleCornerCase checks the simplest case by hand
func TestSingleCornerCase(t *testing.T) {
	if EdgeTable[1] != 1<<0|1<<3|1<<8 {
		t.Fatalf("EdgeTable[1] = %#03x, want edges 0, 3, 8", EdgeTable[1])
	}
	if TriangleCount(1) != 1 {
		t.Fatalf("TriangleCount(1) = %d, want 1", TriangleCount(1))
	}
	row := TriTable[1]
	a, b, c := edgeMidpoint(int(row[0])), edgeMidpoint(int(row[1])), edgeMidpoint(int(row[2]))
	n := b.Sub(a).Cross(c.Sub(a))
	// corner 0 is solid and sits at the origin, so the normal must point away from it
	if n.Dot(a) <= 0 {
		t.Errorf("triangle %v faces the solid corner (normal %v)", row[:3], n)
	}
}

// TestTrianglesFaceEmptySide verifies winding per case: summed over the case's
// triangles, normals point from the solid corners towards the empty ones
func TestTrianglesFaceEmptySide(t *testing.T) {
	for cube := 1; cube < 255; cube++ {
		row := TriTable[cube]
		var score float32
		for i := 0; row[i] >= 0; i += 3 {
			tri := [3]int{int(row[i]), int(row[i+1]), int(row[i+2])}
			a, b, c := edgeMidpoint(tri[0]), edgeMidpoint(tri[1]), edgeMidpoint(tri[2])
			n := b.Sub(a).Cross(c.Sub(a))
			for _, e := range tri {
				s := EdgeCorners[e][0]
				if cube&(1<<s) == 0 {
					s = EdgeCorners[e][1]
				}
				o := CornerOffsets[s]
				corner := mgl32.Vec3{float32(o[0]), float32(o[1]), float32(o[2])}
				score += n.Dot(edgeMidpoint(e).Sub(corner))
			}
		}
		if score <= 0 {
			t.Errorf("case %d: triangles face the solid side (score %f)", cube, score)
		}
	}
}

func TestTableBytes(t *testing.T) {
	edges, tris := TableBytes()
	if len(edges) != 256*4 || len(tris) != 256*TriTableWidth*4 {
		t.Fatalf("table sizes %d, %d", len(edges), len(tris))
	}
	if got := int32(binary.LittleEndian.Uint32(edges[1*4:])); got != EdgeTable[1] {
		t.Errorf("edge[1] = %d, want %d", got, EdgeTable[1])
	}
	// rows end in -1 padding
	if got := int32(binary.LittleEndian.Uint32(tris[(TriTableWidth-1)*4:])); got != -1 {
		t.Errorf("tri[0][15] = %d, want -1", got)
	}
}
