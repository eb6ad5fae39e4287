package software

import (
	"testing"
	"time"

	"voxel-terrain/internal/density"
	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/mcubes"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sphere = density.Sphere{Center: mgl32.Vec3{16, 16, 16}, Radius: 12}

func newDevice(t *testing.T, f mcubes.Sampler, opts Options) *Device {
	t.Helper()
	d := New(f, opts)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestImplementsDevice(t *testing.T) {
	var _ gpu.Device = (*Device)(nil)
	assert.Equal(t, "software", New(density.Uniform(1), Options{}).Name())
}

func TestDispatchMatchesReference(t *testing.T) {
	d := newDevice(t, sphere, Options{Workers: 1})
	f, err := d.SubmitMeshing(mgl32.Vec4{0, 0, 0, 1})
	require.NoError(t, err)
	require.NoError(t, d.WaitFence(f, time.Second))
	require.NoError(t, d.ResetFence(f))

	n, err := d.ReadResetCounter()
	require.NoError(t, err)
	want := mcubes.MeshChunk(sphere, mgl32.Vec3{}, gpu.ChunkDimension)
	require.EqualValues(t, len(want), n)

	got := mcubes.DecodeVertices(d.Scratch(uint64(n) * gpu.VertexSize))
	assert.ElementsMatch(t, want, got)
	assert.EqualValues(t, 1, d.Dispatches())
}

func TestFenceMustBeReset(t *testing.T) {
	d := newDevice(t, sphere, Options{})
	f, err := d.SubmitMeshing(mgl32.Vec4{0, 0, 0, 1})
	require.NoError(t, err)

	_, err = d.SubmitMeshing(mgl32.Vec4{0, 0, 0, 1})
	assert.ErrorIs(t, err, gpu.ErrFenceBusy)

	require.NoError(t, d.WaitFence(f, time.Second))
	signaled, err := d.FenceSignaled(f)
	require.NoError(t, err)
	assert.True(t, signaled)

	require.NoError(t, d.ResetFence(f))
	signaled, err = d.FenceSignaled(f)
	require.NoError(t, err)
	assert.False(t, signaled)

	_, err = d.ReadResetCounter()
	require.NoError(t, err)
	_, err = d.SubmitMeshing(mgl32.Vec4{32, 0, 0, 1})
	assert.NoError(t, err)
}

func TestResetBusyFence(t *testing.T) {
	d := newDevice(t, sphere, Options{Latency: 50 * time.Millisecond})
	f, err := d.SubmitMeshing(mgl32.Vec4{0, 0, 0, 1})
	require.NoError(t, err)
	assert.ErrorIs(t, d.ResetFence(f), gpu.ErrFenceBusy)
	require.NoError(t, d.WaitFence(f, time.Second))
	assert.NoError(t, d.ResetFence(f))
}

func TestWaitUnsubmittedFenceTimesOut(t *testing.T) {
	d := newDevice(t, sphere, Options{})
	err := d.WaitFence(computeFence, 10*time.Millisecond)
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)

	assert.ErrorIs(t, d.WaitFence(99, time.Millisecond), gpu.ErrUnknownFence)
	_, err = d.FenceSignaled(99)
	assert.ErrorIs(t, err, gpu.ErrUnknownFence)
}

func TestCopy(t *testing.T) {
	d := newDevice(t, sphere, Options{})
	f, err := d.SubmitMeshing(mgl32.Vec4{0, 0, 0, 1})
	require.NoError(t, err)
	require.NoError(t, d.WaitFence(f, time.Second))
	require.NoError(t, d.ResetFence(f))
	n, err := d.ReadResetCounter()
	require.NoError(t, err)

	size := uint64(n) * gpu.VertexSize
	buf, err := d.CreateVertexBuffer(size)
	require.NoError(t, err)
	assert.Equal(t, 1, d.LiveBuffers())

	_, err = d.SubmitCopy(buf, size+gpu.VertexSize)
	assert.Error(t, err)

	f, err = d.SubmitCopy(buf, size)
	require.NoError(t, err)
	require.NoError(t, d.WaitFence(f, time.Second))
	assert.Equal(t, d.Scratch(size), buf.(*Buffer).Bytes())
	assert.EqualValues(t, 1, d.Copies())

	back, err := buf.(gpu.Readable).ReadBack()
	require.NoError(t, err)
	assert.Equal(t, buf.(*Buffer).Bytes(), back)

	d.DestroyBuffer(buf)
	assert.Zero(t, d.LiveBuffers())
	_, err = buf.(gpu.Readable).ReadBack()
	assert.Error(t, err)
	_, err = d.CreateVertexBuffer(0)
	assert.Error(t, err)
}

func TestClosedDeviceRejectsWork(t *testing.T) {
	d := New(sphere, Options{})
	_, err := d.CreateVertexBuffer(64)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	assert.Zero(t, d.LiveBuffers())

	_, err = d.SubmitMeshing(mgl32.Vec4{0, 0, 0, 1})
	var se *gpu.SubmitError
	assert.ErrorAs(t, err, &se)
}
