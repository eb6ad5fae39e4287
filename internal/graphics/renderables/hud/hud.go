// Package hud draws a text overlay with the viewer position, streaming
// state and, when enabled, the frame's profiling breakdown.
package hud

import (
	"fmt"
	"strings"
	"time"

	"voxel-terrain/internal/graphics"
	renderer "voxel-terrain/internal/graphics/renderer"
	"voxel-terrain/internal/profiling"
	vt "voxel-terrain/internal/terrain"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	fontPixels = 16
	lineStep   = 18
	historyLen = 60
)

// Source reports streaming state. *terrain.Streamer satisfies it.
type Source interface {
	Stats() vt.Stats
	Generating() bool
}

// DrawCounts reports what the terrain pass drew last frame.
type DrawCounts interface {
	Stats() (drawn, culled int)
}

// Snapshot is everything one overlay frame shows.
type Snapshot struct {
	Position      mgl32.Vec3
	Generating    bool
	Stats         vt.Stats
	Drawn, Culled int
	FrameAvg      time.Duration
	FrameMax      time.Duration
}

// Lines formats the overlay. The profiling lines come from the frame's
// tracked durations and the process counters.
func (s Snapshot) Lines(withProfiling bool) []string {
	gen := "on"
	if !s.Generating {
		gen = "paused"
	}
	p := s.Position
	lines := []string{
		fmt.Sprintf("pos %.1f, %.1f, %.1f | chunk %v", p.X(), p.Y(), p.Z(), vt.ChunkAt(p)),
		fmt.Sprintf("generation %s [G] | %d drawn, %d culled", gen, s.Drawn, s.Culled),
		s.Stats.String(),
	}
	if !withProfiling {
		return lines
	}
	fps := 0.0
	if s.FrameAvg > 0 {
		fps = float64(time.Second) / float64(s.FrameAvg)
	}
	lines = append(lines, fmt.Sprintf("frame %.2fms avg, %.2fms max (%.0f fps)",
		float64(s.FrameAvg.Microseconds())/1000.0, float64(s.FrameMax.Microseconds())/1000.0, fps))
	if mesh := profiling.SumWithPrefix("terrain.mesh."); mesh > 0 {
		lines = append(lines, fmt.Sprintf("meshing %.2fms this frame", float64(mesh.Microseconds())/1000.0))
	}
	if top := profiling.TopN(8); top != "" {
		for line := range strings.SplitSeq(top, ", ") {
			if !strings.HasSuffix(line, ":0.0ms") {
				lines = append(lines, line)
			}
		}
	}
	if c := profiling.Counters(); c != "" {
		lines = append(lines, c)
	}
	return lines
}

// HUD is the overlay renderable. It should be the last renderable.
type HUD struct {
	src       Source
	counts    DrawCounts
	shaderDir string
	width     int
	height    int
	font      *graphics.FontRenderer

	ShowProfiling bool

	history []time.Duration
	last    time.Time
}

func NewHUD(src Source, counts DrawCounts, shaderDir string, width, height int) *HUD {
	return &HUD{src: src, counts: counts, shaderDir: shaderDir, width: width, height: height}
}

func (h *HUD) Init() error {
	atlas, err := graphics.BakeFontAtlas(nil, fontPixels)
	if err != nil {
		return err
	}
	h.font, err = graphics.NewFontRenderer(atlas, h.shaderDir, h.width, h.height)
	return err
}

func (h *HUD) Render(ctx renderer.RenderContext) {
	defer profiling.Track("renderer.renderHUD")()
	now := time.Now()
	if !h.last.IsZero() {
		h.record(now.Sub(h.last))
	}
	h.last = now

	s := Snapshot{
		Position:   ctx.Camera.Position,
		Generating: h.src.Generating(),
		Stats:      h.src.Stats(),
	}
	s.Drawn, s.Culled = h.counts.Stats()
	s.FrameAvg, s.FrameMax = h.frameTimes()
	h.font.RenderLines(s.Lines(h.ShowProfiling), 10, 22, lineStep, 1, mgl32.Vec3{1, 1, 1})
}

// record keeps the last historyLen frame times.
func (h *HUD) record(d time.Duration) {
	if len(h.history) >= historyLen {
		h.history = h.history[1:]
	}
	h.history = append(h.history, d)
}

func (h *HUD) frameTimes() (avg, peak time.Duration) {
	if len(h.history) == 0 {
		return 0, 0
	}
	var total time.Duration
	for _, d := range h.history {
		total += d
		peak = max(peak, d)
	}
	return total / time.Duration(len(h.history)), peak
}

func (h *HUD) SetViewport(width, height int) {
	h.width, h.height = width, height
	if h.font != nil {
		h.font.SetViewport(width, height)
	}
}

func (h *HUD) Dispose() {
	if h.font != nil {
		h.font.Dispose()
	}
}
