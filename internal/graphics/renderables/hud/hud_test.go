package hud

import (
	"strings"
	"testing"
	"time"

	"voxel-terrain/internal/profiling"
	vt "voxel-terrain/internal/terrain"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotLines(t *testing.T) {
	s := Snapshot{
		Position: mgl32.Vec3{-20, 40, 70},
		Stats:    vt.Stats{Resident: 3, Indexed: 5},
		Drawn:    2,
		Culled:   1,
	}
	lines := s.Lines(false)
	require.Len(t, lines, 3)
	assert.Equal(t, "pos -20.0, 40.0, 70.0 | chunk (-1,1,2)", lines[0])
	assert.Equal(t, "generation paused [G] | 2 drawn, 1 culled", lines[1])
	assert.Equal(t, s.Stats.String(), lines[2])

	s.Generating = true
	assert.True(t, strings.HasPrefix(s.Lines(false)[1], "generation on"))
}

func TestSnapshotProfilingLines(t *testing.T) {
	profiling.ResetFrame()
	profiling.ResetCounters()
	t.Cleanup(profiling.ResetCounters)
	profiling.Add("chunks.generated", 1200)

	s := Snapshot{FrameAvg: 10 * time.Millisecond, FrameMax: 25 * time.Millisecond}
	lines := s.Lines(true)
	require.Len(t, lines, 5, "three base lines, frame times, counters")
	assert.Equal(t, "frame 10.00ms avg, 25.00ms max (100 fps)", lines[3])
	assert.Equal(t, "chunks.generated=1,200", lines[4])
}

func TestSnapshotMeshingLine(t *testing.T) {
	profiling.ResetFrame()
	t.Cleanup(profiling.ResetFrame)
	stop := profiling.Track("terrain.mesh.generate")
	time.Sleep(2 * time.Millisecond)
	stop()
	profiling.Track("terrain.mesh.materialize")()

	lines := Snapshot{}.Lines(true)
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Regexp(t, `^meshing \d+\.\d{2}ms this frame$`, lines[4])
}

func TestFrameTimes(t *testing.T) {
	h := &HUD{}
	avg, peak := h.frameTimes()
	assert.Zero(t, avg)
	assert.Zero(t, peak)

	for i := 1; i <= historyLen+10; i++ {
		h.record(time.Duration(i) * time.Millisecond)
	}
	assert.Len(t, h.history, historyLen)
	avg, peak = h.frameTimes()
	assert.Equal(t, time.Duration(historyLen+10)*time.Millisecond, peak)
	assert.Equal(t, 40500*time.Microsecond, avg, "mean of 11..70ms")
}
