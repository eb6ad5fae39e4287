package terrain

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"voxel-terrain/internal/config"
	"voxel-terrain/internal/density"
	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/gpu/software"
	"voxel-terrain/internal/mcubes"

	"github.com/go-gl/mathgl/mgl32"
)

// ball has a surface in exactly the eight chunks with coordinates in {-1, 0}.
var ball = density.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 20}

// slab is a horizontal surface at y = 10, non-empty in every chunk with Y = 0.
var slab = density.FieldFunc(func(_, y, _ float32) float32 { return 10 - y })

func newDevice(t *testing.T, field mcubes.Sampler, opts software.Options) *software.Device {
	t.Helper()
	dev := software.New(field, opts)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func testSettings(radius int) *config.Settings {
	s := config.Default()
	s.SetLoadRadius(radius)
	s.SetFenceTimeout(5 * time.Second)
	return s
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func vertexMultiset(vs []mcubes.Vertex) map[mcubes.Vertex]int {
	out := make(map[mcubes.Vertex]int, len(vs))
	for _, v := range vs {
		out[v]++
	}
	return out
}

// flakyDevice reports errors from fences whose work actually finished, the
// way a driver hiccup would. Each counter is the number of calls to fail.
type flakyDevice struct {
	*software.Device
	failWaits   int
	failSignals int
	failAlways  bool
}

var errHiccup = errors.New("driver hiccup")

func (d *flakyDevice) WaitFence(f gpu.Fence, timeout time.Duration) error {
	if err := d.Device.WaitFence(f, timeout); err != nil {
		return err
	}
	if d.failAlways {
		return errHiccup
	}
	if d.failWaits > 0 {
		d.failWaits--
		return errHiccup
	}
	return nil
}

func (d *flakyDevice) FenceSignaled(f gpu.Fence) (bool, error) {
	ok, err := d.Device.FenceSignaled(f)
	if err != nil || !ok {
		return ok, err
	}
	if d.failSignals > 0 {
		d.failSignals--
		return false, errHiccup
	}
	return true, nil
}
