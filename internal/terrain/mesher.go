package terrain

import (
	"fmt"
	"time"

	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/profiling"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesher runs the measure-then-copy protocol against a device: a compute
// dispatch fills the shared scratch buffer, the counter says how much of it
// is valid, and exactly that much is copied into a right-sized buffer.
type Mesher struct {
	dev     gpu.Device
	timeout time.Duration
}

// NewMesher creates a mesher; timeout bounds every fence wait.
func NewMesher(dev gpu.Device, timeout time.Duration) *Mesher {
	return &Mesher{dev: dev, timeout: timeout}
}

// SetTimeout changes the fence timeout for subsequent waits.
func (m *Mesher) SetTimeout(d time.Duration) { m.timeout = d }

// Generate meshes the chunk at transform into the scratch buffer and returns
// how many vertices it emitted. The counter is zeroed before returning.
func (m *Mesher) Generate(transform mgl32.Vec4) (uint32, error) {
	defer profiling.Track("terrain.mesh.generate")()
	f, err := m.dev.SubmitMeshing(transform)
	if err != nil {
		return 0, err
	}
	if err := m.settle(f); err != nil {
		return 0, m.drainAfter(f, true, err)
	}
	return m.readCount()
}

// Materialize copies the first count vertices of the scratch buffer into a
// new buffer of exactly that size. A zero count allocates nothing and
// reports ok = false.
func (m *Mesher) Materialize(count uint32, transform mgl32.Vec4) (entry CacheEntry, ok bool, err error) {
	if count == 0 {
		return CacheEntry{}, false, nil
	}
	defer profiling.Track("terrain.mesh.materialize")()
	buf, f, err := m.submitCopy(count)
	if err != nil {
		return CacheEntry{}, false, err
	}
	if err := m.settle(f); err != nil {
		err = m.drainAfter(f, false, err)
		m.dev.DestroyBuffer(buf)
		return CacheEntry{}, false, err
	}
	return CacheEntry{Buffer: buf, VertexCount: count, Transform: transform}, true, nil
}

func (m *Mesher) submitCopy(count uint32) (gpu.Buffer, gpu.Fence, error) {
	size := uint64(count) * VertexSize
	buf, err := m.dev.CreateVertexBuffer(size)
	if err != nil {
		return nil, 0, fmt.Errorf("allocate %d byte vertex buffer: %w", size, err)
	}
	f, err := m.dev.SubmitCopy(buf, size)
	if err != nil {
		m.dev.DestroyBuffer(buf)
		return nil, 0, err
	}
	profiling.Add("vertex.bytes", int64(size))
	return buf, f, nil
}

// settle waits for f and resets it for the next submission.
func (m *Mesher) settle(f gpu.Fence) error {
	if err := m.dev.WaitFence(f, m.timeout); err != nil {
		return err
	}
	return m.dev.ResetFence(f)
}

// drainAfter brings the device back to idle after cause interrupted work
// submitted on f: it waits for f, resets it and, for a meshing dispatch,
// zeroes the counter. cause comes back unchanged once the device is clean.
// A fatal cause is returned as is, and a failed drain is fatal.
func (m *Mesher) drainAfter(f gpu.Fence, compute bool, cause error) error {
	if gpu.IsFatal(cause) {
		return cause
	}
	if err := m.settle(f); err != nil {
		return fmt.Errorf("%w: fence %d did not drain: %v", gpu.ErrDeviceLost, f, err)
	}
	if compute {
		if _, err := m.readCount(); err != nil {
			return err
		}
	}
	return cause
}

// readCount is the only place the counter is read, and it always resets it.
// A counter that cannot be read cannot be trusted to be zero, so any device
// error here is fatal.
func (m *Mesher) readCount() (uint32, error) {
	n, err := m.dev.ReadResetCounter()
	if err != nil {
		if gpu.IsFatal(err) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: read vertex counter: %v", gpu.ErrDeviceLost, err)
	}
	if n > gpu.MaxVertices {
		return 0, fmt.Errorf("%w: dispatch reported %d vertices, scratch holds %d", gpu.ErrDeviceLost, n, gpu.MaxVertices)
	}
	return n, nil
}
