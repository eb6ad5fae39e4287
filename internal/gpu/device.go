// Package gpu defines the device context the terrain mesher drives. A Device
// owns the meshing pipeline, the scratch buffers and the fences; backends
// live in the software, vulkan and opengl subpackages.
package gpu

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Fixed dispatch geometry of the meshing pipeline.
const (
	ChunkDimension = 32
	LocalSize      = 4
	GroupsPerAxis  = (ChunkDimension + LocalSize - 1) / LocalSize

	// VertexSize is the std430 size of one output vertex (two vec4).
	VertexSize = 32
	// MaxVertices is the worst case a single dispatch can emit:
	// 5 triangles per cell, 3 vertices per triangle.
	MaxVertices = 5 * 3 * ChunkDimension * ChunkDimension * ChunkDimension
	// ScratchSize is the byte size of the scratch vertex buffer.
	ScratchSize = MaxVertices * VertexSize
	// CounterSize is the byte size of the vertex counter buffer.
	CounterSize = 4
	// PushConstantSize is the chunk transform pushed per dispatch.
	PushConstantSize = 16
)

// Fence identifies a device fence. The zero value is never a valid fence.
type Fence uint32

// Buffer is a device-local vertex buffer created by a Device.
type Buffer interface {
	Size() uint64
}

// Readable is a Buffer whose contents the host can copy out, which is how
// a renderer on another API gets at the vertices.
type Readable interface {
	Buffer
	ReadBack() ([]byte, error)
}

// Device is the GPU context a Mesher drives. Only one meshing dispatch may
// be in flight at a time because every dispatch writes the same scratch
// buffers.
type Device interface {
	// Name identifies the backend in logs.
	Name() string

	// SubmitMeshing records and submits one marching-cubes dispatch of
	// GroupsPerAxis^3 workgroups with transform as the push constant.
	SubmitMeshing(transform mgl32.Vec4) (Fence, error)
	// SubmitCopy copies the first size bytes of the scratch vertex buffer
	// into dst on a transfer-capable queue.
	SubmitCopy(dst Buffer, size uint64) (Fence, error)

	// WaitFence blocks until f signals. If timeout elapses first the error
	// wraps ErrDeviceLost.
	WaitFence(f Fence, timeout time.Duration) error
	// FenceSignaled polls f without blocking.
	FenceSignaled(f Fence) (bool, error)
	// ResetFence returns f to the unsignaled state so it can be reused.
	ResetFence(f Fence) error

	// ReadResetCounter maps the counter buffer, reads the number of vertices
	// the last dispatch emitted and writes 0 back before unmapping.
	ReadResetCounter() (uint32, error)

	// CreateVertexBuffer allocates a permanent vertex buffer of size bytes.
	CreateVertexBuffer(size uint64) (Buffer, error)
	// DestroyBuffer frees a buffer from CreateVertexBuffer.
	DestroyBuffer(b Buffer)

	// Close waits for the device to go idle and frees everything it owns.
	Close() error
}
