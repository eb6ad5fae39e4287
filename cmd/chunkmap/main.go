// Command chunkmap streams terrain around a point with the software backend
// and writes a top-down PNG of the chunk columns it meshed.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"

	"voxel-terrain/internal/config"
	"voxel-terrain/internal/density"
	"voxel-terrain/internal/gpu/software"
	"voxel-terrain/internal/terrain"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"
	"golang.org/x/image/draw"
)

var (
	configPath = flag.String("config", "config.yaml", "settings file; defaults are used when it does not exist")
	out        = flag.String("o", "chunkmap.png", "output PNG")
	radius     = flag.Int("radius", 0, "load radius, 0 keeps the configured one")
	scale      = flag.Int("scale", 8, "pixels per chunk column")
	x          = flag.Float64("x", 0, "viewer x")
	y          = flag.Float64("y", 40, "viewer y")
	z          = flag.Float64("z", 0, "viewer z")
)

var (
	colorMissing = color.RGBA{0x20, 0x20, 0x20, 0xff}
	colorEmpty   = color.RGBA{0x3a, 0x5f, 0x9e, 0xff}
	colorCenter  = color.RGBA{0xe0, 0x40, 0x40, 0xff}
)

func main() {
	flag.Parse()
	defer closer.Close()

	logger := log.New(os.Stdout, "[chunkmap] ", log.LstdFlags)
	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("using defaults: %v", err)
		settings = config.Default()
	}
	if *radius > 0 {
		settings.SetLoadRadius(*radius)
	}

	field, err := density.New(settings.Field(), settings.Terrain())
	if err != nil {
		closer.Fatalln(err)
	}
	settings.SetGenerating(true)
	dev := software.New(field, software.Options{Workers: settings.Workers()})
	s := terrain.NewStreamer(dev, settings, logger)
	closer.Bind(func() {
		s.Close()
		dev.Close()
	})

	viewer := mgl32.Vec3{float32(*x), float32(*y), float32(*z)}
	for !s.Settled() {
		if err := s.Update(viewer); err != nil {
			closer.Fatalln(err)
		}
	}
	st := s.Stats()
	logger.Printf("%d chunks meshed, %d with geometry, %s resident",
		st.Indexed, st.Resident, humanize.IBytes(st.ResidentBytes))

	m := Render(s.Index(), s.Center(), settings.LoadRadius(), *scale)
	if err := writePNG(*out, m); err != nil {
		closer.Fatalln(err)
	}
	logger.Printf("wrote %s (%dx%d)", *out, m.Bounds().Dx(), m.Bounds().Dy())
}

// Columns builds one pixel per chunk column in the square of the given
// radius around center, +X to the right and +Z down. A column with
// geometry is shaded green by how many of its chunks have it; a column
// that was meshed with no geometry is blue; an unmeshed one is dark.
func Columns(index *terrain.LoadedChunkIndex, center terrain.ChunkCoord, radius int) *image.RGBA {
	side := 2*radius + 1
	filled := make([]int, side*side)
	meshed := make([]bool, side*side)
	maxFilled := 0
	for c, h := range index.All() {
		dx, dz := c.X-center.X+radius, c.Z-center.Z+radius
		if dx < 0 || dz < 0 || dx >= side || dz >= side {
			continue
		}
		i := dz*side + dx
		meshed[i] = true
		if h != terrain.EmptyChunk {
			filled[i]++
			maxFilled = max(maxFilled, filled[i])
		}
	}

	m := image.NewRGBA(image.Rect(0, 0, side, side))
	for i := range filled {
		px, py := i%side, i/side
		switch {
		case filled[i] > 0:
			g := 0x60 + 0x9f*filled[i]/maxFilled
			m.SetRGBA(px, py, color.RGBA{0x30, uint8(g), 0x30, 0xff})
		case meshed[i]:
			m.SetRGBA(px, py, colorEmpty)
		default:
			m.SetRGBA(px, py, colorMissing)
		}
	}
	m.SetRGBA(radius, radius, colorCenter)
	return m
}

// Render builds the column map and scales it up by scale pixels per column.
func Render(index *terrain.LoadedChunkIndex, center terrain.ChunkCoord, radius, scale int) *image.RGBA {
	src := Columns(index, center, radius)
	if scale <= 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func writePNG(path string, m image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, m); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
