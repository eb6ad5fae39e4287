package terrain

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestChunkTransform(t *testing.T) {
	assert.Equal(t, mgl32.Vec4{64, -32, 160, 1}, ChunkCoord{2, -1, 5}.Transform())
	assert.Equal(t, mgl32.Vec4{0, 0, 0, 1}, ChunkCoord{}.Transform())
}

func TestChunkAt(t *testing.T) {
	cases := []struct {
		p    mgl32.Vec3
		want ChunkCoord
	}{
		{mgl32.Vec3{0, 0, 0}, ChunkCoord{0, 0, 0}},
		{mgl32.Vec3{15.9, -15.9, 0}, ChunkCoord{0, 0, 0}},
		{mgl32.Vec3{16, 47.9, 48}, ChunkCoord{1, 1, 2}},
		{mgl32.Vec3{-16, -16.5, -48.5}, ChunkCoord{0, -1, -2}},
		{mgl32.Vec3{64, -32, 160}, ChunkCoord{2, -1, 5}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ChunkAt(tc.p), "ChunkAt(%v)", tc.p)
	}
}

func TestChebyshev(t *testing.T) {
	assert.Equal(t, 0, Chebyshev(ChunkCoord{1, 2, 3}, ChunkCoord{1, 2, 3}))
	assert.Equal(t, 4, Chebyshev(ChunkCoord{0, 0, 0}, ChunkCoord{-4, 2, 1}))
	assert.Equal(t, 7, Chebyshev(ChunkCoord{3, -3, 0}, ChunkCoord{-1, 4, 2}))
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, 0, floorDiv(31, 32))
	assert.Equal(t, 1, floorDiv(32, 32))
	assert.Equal(t, -1, floorDiv(-1, 32))
	assert.Equal(t, -1, floorDiv(-32, 32))
	assert.Equal(t, -2, floorDiv(-33, 32))
}
