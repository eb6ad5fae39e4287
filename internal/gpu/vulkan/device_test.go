package vulkan

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"voxel-terrain/internal/density"
	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/mcubes"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestFindMemoryType(t *testing.T) {
	props := vk.PhysicalDeviceMemoryProperties{MemoryTypeCount: 3}
	props.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	props.MemoryTypes[1].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	props.MemoryTypes[2].PropertyFlags = vk.MemoryPropertyFlags(hostCoherent)

	i, ok := findMemoryType(props, 0b111, hostCoherent)
	require.True(t, ok)
	assert.EqualValues(t, 2, i, "host visible alone is not coherent")

	i, ok = findMemoryType(props, 0b111, vk.MemoryPropertyDeviceLocalBit)
	require.True(t, ok)
	assert.EqualValues(t, 0, i)

	_, ok = findMemoryType(props, 0b011, hostCoherent)
	assert.False(t, ok, "type 2 is excluded by the requirement bits")

	i, ok = findMemoryType(props, 0b110, 0)
	require.True(t, ok)
	assert.EqualValues(t, 1, i)
}

func TestLoadSPIRV(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "ok.spv")
	require.NoError(t, os.WriteFile(good, []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}, 0o644))
	words, err := loadSPIRV(good)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 0x00010000}, words)

	bad := filepath.Join(dir, "bad.spv")
	require.NoError(t, os.WriteFile(bad, []byte{1, 2, 3}, 0o644))
	_, err = loadSPIRV(bad)
	assert.Error(t, err)

	_, err = loadSPIRV(filepath.Join(dir, "missing.spv"))
	assert.Error(t, err)
}

func TestNewError(t *testing.T) {
	assert.NoError(t, NewError(vk.Success))
	assert.Error(t, NewError(vk.ErrorOutOfDeviceMemory))
	assert.Contains(t, NewError(vk.ErrorDeviceLost).Error(), "vulkan error")
}

// TestDeviceMatchesReference runs the real pipeline. It needs a Vulkan
// driver and the compiled shader, so it only runs with VOXEL_TERRAIN_GPU set.
func TestDeviceMatchesReference(t *testing.T) {
	if os.Getenv("VOXEL_TERRAIN_GPU") == "" {
		t.Skip("set VOXEL_TERRAIN_GPU=1 to run against a Vulkan driver")
	}
	runtime.LockOSThread()
	require.NoError(t, glfw.Init())
	defer glfw.Terminate()
	require.NoError(t, Init())

	sphere := density.Sphere{Center: mgl32.Vec3{16.3, 15.7, 16.1}, Radius: 10}
	dev, err := New(sphere, Options{ShaderDir: "../../../assets/shaders"})
	require.NoError(t, err)
	defer dev.Close()

	f, err := dev.SubmitMeshing(mgl32.Vec4{0, 0, 0, 1})
	require.NoError(t, err)
	require.NoError(t, dev.WaitFence(f, 2*time.Second))
	require.NoError(t, dev.ResetFence(f))
	n, err := dev.ReadResetCounter()
	require.NoError(t, err)

	want := mcubes.MeshChunk(sphere, mgl32.Vec3{}, gpu.ChunkDimension)
	require.EqualValues(t, len(want), n)

	buf, err := dev.CreateVertexBuffer(uint64(n) * gpu.VertexSize)
	require.NoError(t, err)
	f, err = dev.SubmitCopy(buf, buf.Size())
	require.NoError(t, err)
	require.NoError(t, dev.WaitFence(f, 2*time.Second))
	require.NoError(t, dev.ResetFence(f))

	data, err := buf.(gpu.Readable).ReadBack()
	require.NoError(t, err)
	got := mcubes.DecodeVertices(data)
	for i := range got {
		// GPU arithmetic may differ from the CPU in the last bits
		assert.InDelta(t, 0, got[i].Normal.Len()-1, 1e-3)
	}
	assert.Len(t, got, len(want))
}
