package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"voxel-terrain/internal/config"
	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/profiling"
	"voxel-terrain/internal/terrain"

	"github.com/go-gl/mathgl/mgl32"
)

// maxTicksPerStop bounds how long the headless run waits for one position
// to settle.
const maxTicksPerStop = 100000

// parsePath reads space separated "x,y,z" triples.
func parsePath(s string) ([]mgl32.Vec3, error) {
	var out []mgl32.Vec3
	for _, field := range strings.Fields(s) {
		parts := strings.Split(field, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("path point %q: want x,y,z", field)
		}
		var p mgl32.Vec3
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
			if err != nil {
				return nil, fmt.Errorf("path point %q: %w", field, err)
			}
			p[i] = float32(v)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return out, nil
}

// runHeadless streams around each position in turn until the streamer
// settles there, logging stats after every stop.
func runHeadless(dev gpu.Device, settings *config.Settings, positions []mgl32.Vec3, logger *log.Logger) (terrain.Stats, error) {
	logger.Printf("device %s, load radius %d, pool %d", dev.Name(), settings.LoadRadius(), settings.PoolCapacity())
	s := terrain.NewStreamer(dev, settings, logger)
	defer s.Close()

	for _, p := range positions {
		profiling.ResetFrame()
		ticks := 0
		for ; ticks < maxTicksPerStop; ticks++ {
			if err := s.Update(p); err != nil {
				return s.Stats(), err
			}
			if s.Settled() || !s.Generating() {
				break
			}
		}
		logger.Printf("at %v (chunk %v) after %d ticks: %s", p, terrain.ChunkAt(p), ticks+1, s.Stats())
		logger.Printf("timings: %s", profiling.TopN(4))
	}
	logger.Printf("counters: %s", profiling.Counters())
	return s.Stats(), nil
}
