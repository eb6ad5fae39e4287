package density

import (
	"encoding/binary"
	"fmt"

	"github.com/chewxy/math32"
)

// Field kinds as the meshing shaders number them.
const (
	ShaderTerrain uint32 = iota
	ShaderSphere
	ShaderUniform
)

// ShaderParamsSize is the std140 size of the FieldParams block.
const ShaderParamsSize = 48

// ShaderParams is the FieldParams uniform block read by the meshing
// shaders. Sphere holds center and radius; a uniform field keeps its value
// in Sphere[3].
type ShaderParams struct {
	Kind        uint32
	Seed        uint32
	Octaves     int32
	Scale       float32
	BaseHeight  float32
	Gradient    float32
	Persistence float32
	Lacunarity  float32
	Sphere      [4]float32
}

// ShaderParamsFor describes f for the GPU. Only the built-in fields have a
// shader counterpart.
func ShaderParamsFor(f Field) (ShaderParams, error) {
	switch f := f.(type) {
	case *Terrain:
		p := f.Params()
		return ShaderParams{
			Kind:        ShaderTerrain,
			Seed:        p.Seed,
			Octaves:     int32(p.Octaves),
			Scale:       p.Scale,
			BaseHeight:  p.BaseHeight,
			Gradient:    p.GradientStrength,
			Persistence: p.Persistence,
			Lacunarity:  p.Lacunarity,
		}, nil
	case Sphere:
		return ShaderParams{
			Kind:   ShaderSphere,
			Sphere: [4]float32{f.Center[0], f.Center[1], f.Center[2], f.Radius},
		}, nil
	case Uniform:
		return ShaderParams{Kind: ShaderUniform, Sphere: [4]float32{3: float32(f)}}, nil
	}
	return ShaderParams{}, fmt.Errorf("density field %T has no shader implementation", f)
}

// Bytes encodes p in std140 layout.
func (p ShaderParams) Bytes() []byte {
	out := make([]byte, ShaderParamsSize)
	le := binary.LittleEndian
	le.PutUint32(out[0:], p.Kind)
	le.PutUint32(out[4:], p.Seed)
	le.PutUint32(out[8:], uint32(p.Octaves))
	le.PutUint32(out[12:], math32.Float32bits(p.Scale))
	le.PutUint32(out[16:], math32.Float32bits(p.BaseHeight))
	le.PutUint32(out[20:], math32.Float32bits(p.Gradient))
	le.PutUint32(out[24:], math32.Float32bits(p.Persistence))
	le.PutUint32(out[28:], math32.Float32bits(p.Lacunarity))
	for i, v := range p.Sphere {
		le.PutUint32(out[32+i*4:], math32.Float32bits(v))
	}
	return out
}
