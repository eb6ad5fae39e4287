package bounds

import (
	"testing"

	vt "voxel-terrain/internal/terrain"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestBoxes(t *testing.T) {
	chunk, load := Boxes(vt.ChunkCoord{X: 1, Y: -1, Z: 0}, 2)

	assert.Equal(t, Box{Min: mgl32.Vec3{32, -32, 0}, Size: 32}, chunk)
	assert.Equal(t, Box{Min: mgl32.Vec3{-32, -96, -64}, Size: 160}, load)

	_, none := Boxes(vt.ChunkCoord{}, 0)
	assert.Equal(t, Box{Size: 32}, none, "radius 0 loads only the center chunk")
}

func TestBoxModel(t *testing.T) {
	m := Box{Min: mgl32.Vec3{32, -32, 0}, Size: 32}.Model()
	assert.Equal(t, mgl32.Vec4{32, -32, 0, 1}, m.Mul4x1(mgl32.Vec4{0, 0, 0, 1}))
	assert.Equal(t, mgl32.Vec4{64, 0, 32, 1}, m.Mul4x1(mgl32.Vec4{1, 1, 1, 1}))
	assert.Len(t, edges, 24*3)
}
