package density

import "github.com/chewxy/math32"

// Deterministic 3D value noise with multiple octaves. Everything is 32-bit so
// the compute shaders reproduce it with plain uint and float arithmetic.

// fade function is used for smoothing (6t^5 - 15t^4 + 10t^3)
func fade(t float32) float32 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float32) float32 {
	return a + t*(b-a)
}

func hash3(x, y, z int32, seed uint32) uint32 {
	// Per-axis odd multipliers, then a murmur-style finalizer
	h := uint32(x)*0x8DA6B343 ^ uint32(y)*0xD8163841 ^ uint32(z)*0xCB1AB31F ^ seed*0x9E3779B9
	h ^= h >> 16
	h *= 0x7FEB352D
	h ^= h >> 15
	h *= 0x846CA68B
	h ^= h >> 16
	return h
}

// latticeValue3D maps a lattice point to [0,1]. 24 bits keep the result exact in float32.
func latticeValue3D(x, y, z int32, seed uint32) float32 {
	return float32(hash3(x, y, z, seed)&0xFFFFFF) / float32(0xFFFFFF)
}

func valueNoise3D(x, y, z float32, seed uint32) float32 {
	x0 := math32.Floor(x)
	y0 := math32.Floor(y)
	z0 := math32.Floor(z)
	ix, iy, iz := int32(x0), int32(y0), int32(z0)

	fx := fade(x - x0)
	fy := fade(y - y0)
	fz := fade(z - z0)

	v000 := latticeValue3D(ix, iy, iz, seed)
	v100 := latticeValue3D(ix+1, iy, iz, seed)
	v010 := latticeValue3D(ix, iy+1, iz, seed)
	v110 := latticeValue3D(ix+1, iy+1, iz, seed)
	v001 := latticeValue3D(ix, iy, iz+1, seed)
	v101 := latticeValue3D(ix+1, iy, iz+1, seed)
	v011 := latticeValue3D(ix, iy+1, iz+1, seed)
	v111 := latticeValue3D(ix+1, iy+1, iz+1, seed)

	i00 := lerp(v000, v100, fx)
	i10 := lerp(v010, v110, fx)
	i01 := lerp(v001, v101, fx)
	i11 := lerp(v011, v111, fx)

	i0 := lerp(i00, i10, fy)
	i1 := lerp(i01, i11, fy)

	return lerp(i0, i1, fz) // [0,1]
}

func octaveNoise3D(x, y, z float32, seed uint32, octaves int, persistence, lacunarity float32) float32 {
	amplitude := float32(1)
	frequency := float32(1)
	var sum, norm float32
	for i := range octaves {
		v := valueNoise3D(x*frequency, y*frequency, z*frequency, seed+uint32(i*131))
		sum += v * amplitude
		norm += amplitude
		amplitude *= persistence
		frequency *= lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm // [0,1]
}
