package main

import (
	"io"
	"log"
	"testing"
	"time"

	"voxel-terrain/internal/config"
	"voxel-terrain/internal/density"
	"voxel-terrain/internal/gpu/software"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	got, err := parsePath(" 0,40,0  96.5, -8 ,1e2 ")
	require.NoError(t, err)
	assert.Equal(t, []mgl32.Vec3{{0, 40, 0}, {96.5, -8, 100}}, got)

	for _, bad := range []string{"", "1,2", "1,2,x", "1,2,3,4"} {
		_, err := parsePath(bad)
		assert.Error(t, err, "%q", bad)
	}
}

func TestRunHeadless(t *testing.T) {
	settings := config.Default()
	settings.SetLoadRadius(1)
	settings.SetEvictHysteresis(0)
	settings.SetFenceTimeout(5 * time.Second)

	dev := software.New(density.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 20}, software.Options{})
	defer dev.Close()

	logger := log.New(io.Discard, "", 0)
	st, err := runHeadless(dev, settings, []mgl32.Vec3{{0, 0, 0}, {320, 0, 0}}, logger)
	require.NoError(t, err)

	assert.Equal(t, 8, st.Generated)
	assert.Equal(t, 8, st.Evicted, "the sphere is out of range at the second stop")
	assert.Equal(t, 54, st.Requested)
	assert.Zero(t, dev.LiveBuffers(), "Close releases every buffer")
}

func TestSpawnPoint(t *testing.T) {
	ter := density.NewTerrain(density.DefaultTerrainParams())
	p := spawnPoint(ter)
	assert.Greater(t, p.Y(), ter.MaxSolidHeight())
	assert.Equal(t, mgl32.Vec3{16, 16, 64}, spawnPoint(density.Uniform(1)))
}
