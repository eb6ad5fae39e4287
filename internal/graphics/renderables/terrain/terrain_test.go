package terrain

import (
	"slices"
	"testing"

	"voxel-terrain/internal/graphics"
	vt "voxel-terrain/internal/terrain"

	"github.com/stretchr/testify/assert"
)

func entryAt(c vt.ChunkCoord) vt.CacheEntry {
	return vt.CacheEntry{VertexCount: 3, Transform: c.Transform()}
}

func TestVisibleCullsChunksBehindCamera(t *testing.T) {
	cam := graphics.NewCamera(100, 100)
	cam.Position = [3]float32{16, 16, 16}
	fr := graphics.NewFrustum(cam.GetProjectionMatrix().Mul4(cam.GetViewMatrix()))

	ahead := entryAt(vt.ChunkCoord{X: 0, Y: 0, Z: -3})
	behind := entryAt(vt.ChunkCoord{X: 0, Y: 0, Z: 3})
	around := entryAt(vt.ChunkCoord{})
	got, culled := Visible(slices.Values([]vt.CacheEntry{ahead, behind, around}), &fr, nil)

	assert.Equal(t, []vt.CacheEntry{ahead, around}, got)
	assert.Equal(t, 1, culled)
}

func TestVisibleAppends(t *testing.T) {
	cam := graphics.NewCamera(100, 100)
	fr := graphics.NewFrustum(cam.GetProjectionMatrix().Mul4(cam.GetViewMatrix()))
	dst := make([]vt.CacheEntry, 1, 4)

	got, culled := Visible(slices.Values([]vt.CacheEntry{entryAt(vt.ChunkCoord{Z: -1})}), &fr, dst)
	assert.Len(t, got, 2)
	assert.Zero(t, culled)
}
