package density

import (
	"encoding/binary"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShaderParamsTerrain(t *testing.T) {
	p, err := ShaderParamsFor(NewTerrain(DefaultTerrainParams()))
	require.NoError(t, err)
	assert.Equal(t, ShaderTerrain, p.Kind)
	assert.EqualValues(t, 1337, p.Seed)
	assert.EqualValues(t, 4, p.Octaves)

	b := p.Bytes()
	require.Len(t, b, ShaderParamsSize)
	assert.EqualValues(t, 1337, binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, float32(32), math32.Float32frombits(binary.LittleEndian.Uint32(b[20:])))
}

func TestShaderParamsSphere(t *testing.T) {
	p, err := ShaderParamsFor(Sphere{Center: mgl32.Vec3{1, 2, 3}, Radius: 9})
	require.NoError(t, err)
	b := p.Bytes()
	assert.Equal(t, ShaderSphere, binary.LittleEndian.Uint32(b))
	assert.Equal(t, float32(9), math32.Float32frombits(binary.LittleEndian.Uint32(b[44:])))
}

func TestShaderParamsUnsupported(t *testing.T) {
	_, err := ShaderParamsFor(FieldFunc(func(x, y, z float32) float32 { return x }))
	assert.Error(t, err)

	p, err := ShaderParamsFor(Uniform(-1))
	require.NoError(t, err)
	assert.Equal(t, ShaderUniform, p.Kind)
	assert.Equal(t, float32(-1), p.Sphere[3])
}
