// Package density holds the scalar fields the terrain is meshed from.
// Positive density is solid, negative or zero is air.
package density

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Field is a scalar density field over world space.
type Field interface {
	Density(x, y, z float32) float32
}

// FieldFunc adapts a function to Field.
type FieldFunc func(x, y, z float32) float32

func (f FieldFunc) Density(x, y, z float32) float32 { return f(x, y, z) }

// TerrainParams tune the terrain field. They are uploaded as-is to the GPU
// backends, so the shader and the CPU agree on the surface.
type TerrainParams struct {
	Seed             uint32
	Scale            float32 // noise frequency
	BaseHeight       float32 // target surface level
	GradientStrength float32 // altitude density gradient
	Octaves          int
	Persistence      float32
	Lacunarity       float32
}

// DefaultTerrainParams returns rolling hills around y = 0.
func DefaultTerrainParams() TerrainParams {
	return TerrainParams{
		Seed:             1337,
		Scale:            1.0 / 64.0,
		BaseHeight:       0,
		GradientStrength: 32,
		Octaves:          4,
		Persistence:      0.5,
		Lacunarity:       2.0,
	}
}

// Terrain combines 3D octave noise with a height gradient, which gives
// overhangs and floating formations instead of a pure heightmap.
type Terrain struct {
	p TerrainParams
}

// NewTerrain creates a terrain field.
func NewTerrain(p TerrainParams) *Terrain {
	if p.GradientStrength == 0 {
		p.GradientStrength = 1
	}
	return &Terrain{p: p}
}

// Params returns the parameters the field was built with.
func (t *Terrain) Params() TerrainParams { return t.p }

func (t *Terrain) Density(x, y, z float32) float32 {
	n := octaveNoise3D(x*t.p.Scale, y*t.p.Scale, z*t.p.Scale, t.p.Seed, t.p.Octaves, t.p.Persistence, t.p.Lacunarity)
	// higher altitude = more negative
	return n*2 - 1 + (t.p.BaseHeight-y)/t.p.GradientStrength
}

// MaxSolidHeight is the altitude above which the field is always air.
func (t *Terrain) MaxSolidHeight() float32 {
	return t.p.BaseHeight + t.p.GradientStrength
}

// Sphere is solid inside the ball of Radius around Center.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

func (s Sphere) Density(x, y, z float32) float32 {
	return s.Radius - mgl32.Vec3{x, y, z}.Sub(s.Center).Len()
}

// Uniform has the same density everywhere and never produces a surface.
type Uniform float32

func (u Uniform) Density(_, _, _ float32) float32 { return float32(u) }

// Named field kinds accepted in configuration.
const (
	KindTerrain = "terrain"
	KindSphere  = "sphere"
	KindSolid   = "solid"
	KindEmpty   = "empty"
)

// New builds the field named by kind.
func New(kind string, p TerrainParams) (Field, error) {
	switch kind {
	case "", KindTerrain:
		return NewTerrain(p), nil
	case KindSphere:
		return Sphere{Center: mgl32.Vec3{16, 16, 16}, Radius: 12}, nil
	case KindSolid:
		return Uniform(1), nil
	case KindEmpty:
		return Uniform(-1), nil
	}
	return nil, fmt.Errorf("unknown density field %q", kind)
}
