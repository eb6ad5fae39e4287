package terrain

import (
	"testing"
	"time"

	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/gpu/software"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(c ChunkCoord) mgl32.Vec3 { return c.Transform().Vec3() }

func TestStreamerLoadsShells(t *testing.T) {
	dev := newDevice(t, ball, software.Options{})
	s := NewStreamer(dev, testSettings(1), quietLogger())

	require.NoError(t, s.Update(mgl32.Vec3{0, 0, 0}))
	st := s.Stats()
	assert.Equal(t, 27, st.Indexed)
	assert.Equal(t, 8, st.Resident)
	assert.Equal(t, 8, st.Generated)
	assert.Equal(t, 19, st.Empty)
	assert.EqualValues(t, 27, dev.Dispatches())
	assert.Equal(t, 8, dev.LiveBuffers())

	var drawn uint64
	for e := range s.Entries() {
		drawn += e.Bytes()
	}
	assert.Equal(t, st.ResidentBytes, drawn)
	assert.Len(t, s.AppendEntries(nil), 8)

	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			for z := -1; z <= 1; z++ {
				c := ChunkCoord{x, y, z}
				h, ok := s.Index().Lookup(c)
				require.True(t, ok, "%v not indexed", c)
				if x < 1 && y < 1 && z < 1 {
					e, ok := s.Pool().Entry(h)
					require.True(t, ok, "%v not cached", c)
					assert.Equal(t, c.Transform(), e.Transform)
				} else {
					assert.Equal(t, EmptyChunk, h, "%v", c)
				}
			}
		}
	}
}

func TestStreamerUpdateIsIdempotent(t *testing.T) {
	dev := newDevice(t, ball, software.Options{})
	s := NewStreamer(dev, testSettings(1), quietLogger())

	require.NoError(t, s.Update(mgl32.Vec3{0, 0, 0}))
	before := s.Stats()
	dispatches := dev.Dispatches()

	require.NoError(t, s.Update(mgl32.Vec3{0, 0, 0}))
	require.NoError(t, s.Update(mgl32.Vec3{5, -7, 3})) // same chunk
	assert.Equal(t, before, s.Stats())
	assert.Equal(t, dispatches, dev.Dispatches())
}

func TestStreamerEvictsWithHysteresis(t *testing.T) {
	dev := newDevice(t, ball, software.Options{})
	settings := testSettings(1)
	settings.SetEvictHysteresis(2)
	s := NewStreamer(dev, settings, quietLogger())

	require.NoError(t, s.Update(at(ChunkCoord{})))
	require.Equal(t, 8, s.Pool().Len())

	// one chunk over: the old chunks are within radius + hysteresis
	require.NoError(t, s.Update(at(ChunkCoord{1, 0, 0})))
	assert.Equal(t, 8, s.Pool().Len())
	assert.Zero(t, s.Stats().Evicted)
	assert.True(t, s.Index().Contains(ChunkCoord{-1, 0, 0}))

	// far enough that every cached chunk falls outside
	require.NoError(t, s.Update(at(ChunkCoord{5, 0, 0})))
	st := s.Stats()
	assert.Equal(t, 8, st.Evicted)
	assert.Zero(t, st.Resident)
	assert.Zero(t, dev.LiveBuffers())
	assert.False(t, s.Index().Contains(ChunkCoord{0, 0, 0}))
	for c := range s.Index().All() {
		assert.LessOrEqual(t, Chebyshev(c, ChunkCoord{5, 0, 0}), 3)
	}
}

func TestStreamerSkipsWhenPoolExhausted(t *testing.T) {
	dev := newDevice(t, ball, software.Options{})
	settings := testSettings(1)
	settings.SetPoolCapacity(3)
	s := NewStreamer(dev, settings, quietLogger())

	require.NoError(t, s.Update(mgl32.Vec3{}))
	st := s.Stats()
	assert.Equal(t, 3, st.Resident)
	assert.Equal(t, 5, st.Skipped)
	assert.Equal(t, 27-5, st.Indexed, "skipped chunks stay unindexed")
	assert.Equal(t, 3, dev.LiveBuffers())
}

func TestStreamerMakesRoomBeyondRadius(t *testing.T) {
	dev := newDevice(t, slab, software.Options{})
	settings := testSettings(1)
	settings.SetEvictHysteresis(2)
	settings.SetPoolCapacity(9)
	s := NewStreamer(dev, settings, quietLogger())

	require.NoError(t, s.Update(at(ChunkCoord{})))
	require.Equal(t, 9, s.Pool().Len())

	// the x = -1 column is kept by hysteresis until the pool runs out
	require.NoError(t, s.Update(at(ChunkCoord{1, 0, 0})))
	st := s.Stats()
	assert.Equal(t, 9, st.Resident)
	assert.Equal(t, 3, st.Evicted)
	assert.Zero(t, st.Skipped)
	for z := -1; z <= 1; z++ {
		assert.False(t, s.Index().Contains(ChunkCoord{-1, 0, z}))
		assert.True(t, s.Index().Contains(ChunkCoord{2, 0, z}))
	}
}

func TestStreamerBudget(t *testing.T) {
	dev := newDevice(t, ball, software.Options{})
	settings := testSettings(1)
	settings.SetMaxChunksPerTick(5)
	s := NewStreamer(dev, settings, quietLogger())

	require.NoError(t, s.Update(mgl32.Vec3{}))
	assert.Equal(t, 5, s.Index().Len())
	assert.True(t, s.Index().Contains(ChunkCoord{}), "the viewer's chunk comes first")
	assert.False(t, s.Settled())

	for range 5 {
		require.NoError(t, s.Update(mgl32.Vec3{}))
	}
	assert.Equal(t, 27, s.Index().Len())
	assert.EqualValues(t, 27, dev.Dispatches())
	assert.True(t, s.Settled())
}

func TestStreamerPollingMatchesBlocking(t *testing.T) {
	blockingDev := newDevice(t, ball, software.Options{})
	blocking := NewStreamer(blockingDev, testSettings(1), quietLogger())
	require.NoError(t, blocking.Update(mgl32.Vec3{}))

	pollingDev := newDevice(t, ball, software.Options{Latency: time.Millisecond})
	settings := testSettings(1)
	settings.SetPolling(true)
	polling := NewStreamer(pollingDev, settings, quietLogger())

	deadline := time.Now().Add(10 * time.Second)
	for !polling.Settled() {
		require.True(t, time.Now().Before(deadline), "polling stalled at %d chunks", polling.Index().Len())
		require.NoError(t, polling.Update(mgl32.Vec3{}))
		time.Sleep(time.Millisecond)
	}

	for c, h := range blocking.Index().All() {
		ph, ok := polling.Index().Lookup(c)
		require.True(t, ok, "%v", c)
		if h == EmptyChunk {
			assert.Equal(t, EmptyChunk, ph, "%v", c)
			continue
		}
		want, _ := blocking.Pool().Entry(h)
		got, ok := polling.Pool().Entry(ph)
		require.True(t, ok, "%v", c)
		assert.Equal(t, want.VertexCount, got.VertexCount, "%v", c)
	}
	assert.Equal(t, 27, polling.Index().Len())
	assert.Equal(t, blocking.Stats().Resident, polling.Stats().Resident)
}

func TestStreamerPollingDropsStaleChunks(t *testing.T) {
	dev := newDevice(t, ball, software.Options{Latency: 20 * time.Millisecond})
	settings := testSettings(0)
	settings.SetPolling(true)
	settings.SetEvictHysteresis(0)
	s := NewStreamer(dev, settings, quietLogger())

	require.NoError(t, s.Update(mgl32.Vec3{}))
	require.NotNil(t, s.inflight)

	// leave before the copy lands, then finish the request
	require.NoError(t, s.Update(at(ChunkCoord{10, 0, 0})))
	require.NoError(t, s.drain())
	assert.False(t, s.Index().Contains(ChunkCoord{}))
	assert.Zero(t, s.Pool().Len())
	assert.Zero(t, dev.LiveBuffers())

	// the same for a chunk with no surface
	far := ChunkCoord{5, 5, 5}
	require.NoError(t, s.Update(at(far)))
	require.NotNil(t, s.inflight)
	require.Equal(t, far, s.inflight.Coord)
	require.NoError(t, s.Update(at(ChunkCoord{15, 5, 5})))
	require.NoError(t, s.drain())
	assert.False(t, s.Index().Contains(far))
	for c := range s.Index().All() {
		assert.Equal(t, ChunkCoord{15, 5, 5}, c)
	}
}

func TestStreamerSurvivesFenceErrors(t *testing.T) {
	dev := &flakyDevice{Device: newDevice(t, ball, software.Options{}), failWaits: 1}
	s := NewStreamer(dev, testSettings(1), quietLogger())

	require.NoError(t, s.Update(mgl32.Vec3{}))
	st := s.Stats()
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 26, st.Indexed, "every chunk after the failed one is meshed")
	assert.Equal(t, 7, st.Generated)
	assert.Equal(t, 19, st.Empty)
	assert.False(t, s.Index().Contains(ChunkCoord{}))

	left, err := dev.ReadResetCounter()
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestStreamerPollingSurvivesFenceErrors(t *testing.T) {
	dev := &flakyDevice{Device: newDevice(t, ball, software.Options{}), failSignals: 1}
	settings := testSettings(1)
	settings.SetPolling(true)
	s := NewStreamer(dev, settings, quietLogger())

	deadline := time.Now().Add(10 * time.Second)
	for !s.Settled() {
		require.True(t, time.Now().Before(deadline), "polling stalled at %d chunks", s.Index().Len())
		require.NoError(t, s.Update(mgl32.Vec3{}))
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, s.Stats().Failed)
	assert.Equal(t, 26, s.Index().Len())
}

func TestStreamerUndrainableFenceIsFatal(t *testing.T) {
	dev := &flakyDevice{Device: newDevice(t, ball, software.Options{}), failAlways: true}
	s := NewStreamer(dev, testSettings(1), quietLogger())

	err := s.Update(mgl32.Vec3{})
	require.Error(t, err)
	assert.True(t, gpu.IsFatal(err))
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.Equal(t, 1, s.Stats().Requested)
}

func TestStreamerToggleGeneration(t *testing.T) {
	dev := newDevice(t, ball, software.Options{})
	s := NewStreamer(dev, testSettings(1), quietLogger())

	assert.True(t, s.Generating())
	assert.False(t, s.ToggleGeneration())
	require.NoError(t, s.Update(mgl32.Vec3{}))
	assert.Zero(t, dev.Dispatches())
	assert.Zero(t, s.Index().Len())

	assert.True(t, s.ToggleGeneration())
	require.NoError(t, s.Update(mgl32.Vec3{}))
	assert.Equal(t, 27, s.Index().Len())
}

func TestStreamerDeviceLostIsFatal(t *testing.T) {
	dev := newDevice(t, ball, software.Options{Latency: 500 * time.Millisecond})
	settings := testSettings(1)
	settings.SetFenceTimeout(100 * time.Millisecond)
	s := NewStreamer(dev, settings, quietLogger())

	err := s.Update(mgl32.Vec3{})
	require.Error(t, err)
	assert.True(t, gpu.IsFatal(err))
	assert.Equal(t, 1, s.Stats().Failed)
}

func TestStreamerClose(t *testing.T) {
	dev := newDevice(t, ball, software.Options{})
	s := NewStreamer(dev, testSettings(1), quietLogger())
	require.NoError(t, s.Update(mgl32.Vec3{}))
	require.NotZero(t, dev.LiveBuffers())

	require.NoError(t, s.Close())
	assert.Zero(t, dev.LiveBuffers())
	assert.Zero(t, s.Pool().Len())
	assert.Zero(t, s.Index().Len())
	assert.Contains(t, s.Stats().String(), "0 resident")
}
