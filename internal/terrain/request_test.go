package terrain

import (
	"errors"
	"testing"
	"time"

	"voxel-terrain/internal/density"
	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/gpu/software"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollUntil(t *testing.T, m *Mesher, req *Request, want RequestState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for req.State != want {
		require.False(t, req.State.Terminal(), "request ended %v: %v", req.State, req.Err)
		require.True(t, time.Now().Before(deadline), "stuck in %v", req.State)
		_, err := m.Advance(req, false)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
}

func TestRequestLifecycle(t *testing.T) {
	dev := newDevice(t, ball, software.Options{Latency: 5 * time.Millisecond})
	m := NewMesher(dev, 5*time.Second)

	blocking, err := m.Generate(ChunkCoord{-1, 0, -1}.Transform())
	require.NoError(t, err)

	req, err := m.Begin(ChunkCoord{-1, 0, -1})
	require.NoError(t, err)
	assert.Equal(t, RequestSubmitted, req.State)

	pollUntil(t, m, req, RequestComputeDone)
	assert.Equal(t, blocking, req.VertexCount)
	assert.Nil(t, req.Entry.Buffer)

	pollUntil(t, m, req, RequestCopied)
	require.NotNil(t, req.Entry.Buffer)
	assert.Equal(t, uint64(blocking)*VertexSize, req.Entry.Buffer.Size())
	assert.Equal(t, req.Transform, req.Entry.Transform)

	progressed, err := m.Advance(req, false)
	require.NoError(t, err)
	assert.False(t, progressed, "caching is the caller's job")
	assert.Equal(t, RequestCopied, req.State)
}

func TestRequestEmptyChunk(t *testing.T) {
	dev := newDevice(t, ball, software.Options{})
	m := NewMesher(dev, 5*time.Second)

	req, err := m.Begin(ChunkCoord{5, 5, 5})
	require.NoError(t, err)
	progressed, err := m.Advance(req, true)
	require.NoError(t, err)
	assert.True(t, progressed)
	assert.Equal(t, RequestEmpty, req.State)
	assert.Zero(t, dev.LiveBuffers())
}

func TestRequestAbandonDrainsDevice(t *testing.T) {
	dev := newDevice(t, ball, software.Options{Latency: 10 * time.Millisecond})
	m := NewMesher(dev, 5*time.Second)

	req, err := m.Begin(ChunkCoord{})
	require.NoError(t, err)
	require.NoError(t, m.Abandon(req, errors.New("viewer moved")))
	assert.Equal(t, RequestFailed, req.State)
	assert.EqualError(t, req.Err, "viewer moved")

	// the fence and counter are ready for the next chunk
	n, err := m.Generate(ChunkCoord{}.Transform())
	require.NoError(t, err)
	want, err := m.Generate(ChunkCoord{}.Transform())
	require.NoError(t, err)
	assert.Equal(t, want, n)

	req, err = m.Begin(ChunkCoord{})
	require.NoError(t, err)
	_, err = m.Advance(req, true)
	require.NoError(t, err)
	_, err = m.Advance(req, false)
	require.NoError(t, err)
	require.True(t, req.copying)
	require.NoError(t, m.Abandon(req, errors.New("pool full")))
	assert.Zero(t, dev.LiveBuffers())
	assert.Nil(t, req.Entry.Buffer)
}

func TestRequestPollingTimeout(t *testing.T) {
	dev := newDevice(t, density.Uniform(1), software.Options{Latency: 300 * time.Millisecond})
	m := NewMesher(dev, 20*time.Millisecond)

	req, err := m.Begin(ChunkCoord{})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err = m.Advance(req, false)
		if err != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.Equal(t, RequestFailed, req.State)
}

func TestRequestStateNames(t *testing.T) {
	assert.Equal(t, "compute-done", RequestComputeDone.String())
	assert.Equal(t, "unknown", RequestState(42).String())
	assert.True(t, RequestCached.Terminal())
	assert.False(t, RequestCopied.Terminal())
}
