package main

import (
	"image/color"
	"testing"

	"voxel-terrain/internal/terrain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumns(t *testing.T) {
	ix := terrain.NewLoadedChunkIndex()
	center := terrain.ChunkCoord{X: 10, Y: 0, Z: -3}
	ix.Record(terrain.ChunkCoord{X: 11, Y: 0, Z: -3}, 0)
	ix.Record(terrain.ChunkCoord{X: 11, Y: 1, Z: -3}, 1)
	ix.Record(terrain.ChunkCoord{X: 9, Y: 0, Z: -2}, 2)
	ix.Record(terrain.ChunkCoord{X: 9, Y: 0, Z: -4}, terrain.EmptyChunk)
	ix.Record(terrain.ChunkCoord{X: 40, Y: 0, Z: 0}, 3) // outside

	m := Columns(ix, center, 1)
	require.Equal(t, 3, m.Bounds().Dx())
	require.Equal(t, 3, m.Bounds().Dy())

	assert.Equal(t, colorCenter, m.RGBAAt(1, 1))
	assert.Equal(t, colorEmpty, m.RGBAAt(0, 0))
	assert.Equal(t, colorMissing, m.RGBAAt(2, 2))

	full := m.RGBAAt(2, 1)
	half := m.RGBAAt(0, 2)
	assert.Equal(t, color.RGBA{0x30, 0xff, 0x30, 0xff}, full, "two of two")
	assert.Less(t, half.G, full.G)
}

func TestRenderScales(t *testing.T) {
	ix := terrain.NewLoadedChunkIndex()
	ix.Record(terrain.ChunkCoord{}, terrain.EmptyChunk)

	m := Render(ix, terrain.ChunkCoord{X: 1}, 1, 4)
	require.Equal(t, 12, m.Bounds().Dx())
	assert.Equal(t, colorEmpty, m.RGBAAt(1, 5), "column (0,0) covers pixels 0..3 x 4..7")
	assert.Equal(t, colorCenter, m.RGBAAt(7, 7))
	assert.Equal(t, colorMissing, m.RGBAAt(11, 0))
}
