// Package opengl implements gpu.Device on OpenGL 4.3 compute shaders. It
// shares the context of the window it renders into, so every method must be
// called on the goroutine that made that context current.
package opengl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"time"
	"unsafe"

	"voxel-terrain/internal/density"
	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/graphics"
	"voxel-terrain/internal/mcubes"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// ShaderFile is the GLSL meshing shader, relative to Options.ShaderDir.
const ShaderFile = "terrain_meshing_gl.comp"

const (
	computeFence gpu.Fence = 1
	copyFence    gpu.Fence = 2
)

// Binding points, matching the layout qualifiers in ShaderFile.
const (
	bindCounter   = 0
	bindVertices  = 1
	bindEdgeTable = 2
	bindTriTable  = 3
	bindField     = 4
)

// barriers issued after every dispatch so the counter can be mapped and the
// scratch buffer copied once the fence signals.
const dispatchBarriers = gl.SHADER_STORAGE_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT | gl.VERTEX_ATTRIB_ARRAY_BARRIER_BIT

// GLSync is the handle returned by glFenceSync.
type GLSync = uintptr

type Options struct {
	ShaderDir string
}

// Buffer is a GL buffer object holding one chunk's vertices. The renderer
// binds it directly as a vertex buffer.
type Buffer struct {
	dev  *Device
	id   uint32
	size uint64
}

func (b *Buffer) Size() uint64 { return b.size }

// GLBuffer returns the buffer object name.
func (b *Buffer) GLBuffer() uint32 { return b.id }

// ReadBack copies the buffer contents to host memory.
func (b *Buffer) ReadBack() ([]byte, error) {
	if b.id == 0 {
		return nil, errors.New("opengl: buffer destroyed")
	}
	out := make([]byte, b.size)
	gl.BindBuffer(gl.COPY_READ_BUFFER, b.id)
	gl.GetBufferSubData(gl.COPY_READ_BUFFER, 0, int(b.size), gl.Ptr(out))
	gl.BindBuffer(gl.COPY_READ_BUFFER, 0)
	return out, nil
}

// Device is an OpenGL implementation of gpu.Device.
type Device struct {
	name    string
	program *graphics.Shader

	counter  uint32
	scratch  uint32
	tables   [2]uint32
	fieldUBO uint32

	syncs   map[gpu.Fence]GLSync
	buffers map[*Buffer]struct{}
}

// New compiles the meshing shader and creates the scratch buffers for field.
// The caller must have a current 4.3 context and have called gl.Init.
func New(field density.Field, opts Options) (*Device, error) {
	params, err := density.ShaderParamsFor(field)
	if err != nil {
		return nil, err
	}
	program, err := graphics.NewComputeShader(filepath.Join(opts.ShaderDir, ShaderFile))
	if err != nil {
		return nil, fmt.Errorf("meshing shader: %w", err)
	}

	d := &Device{
		name:    "opengl: " + gl.GoStr(gl.GetString(gl.RENDERER)),
		program: program,
		syncs:   map[gpu.Fence]GLSync{computeFence: 0, copyFence: 0},
		buffers: make(map[*Buffer]struct{}),
	}

	d.counter = newStorage(gl.SHADER_STORAGE_BUFFER, gpu.CounterSize, make([]byte, gpu.CounterSize), gl.DYNAMIC_READ)
	d.scratch = newStorage(gl.SHADER_STORAGE_BUFFER, gpu.ScratchSize, nil, gl.DYNAMIC_COPY)

	edges, tris := mcubes.TableBytes()
	d.tables[0] = newStorage(gl.SHADER_STORAGE_BUFFER, len(edges), edges, gl.STATIC_DRAW)
	d.tables[1] = newStorage(gl.SHADER_STORAGE_BUFFER, len(tris), tris, gl.STATIC_DRAW)
	d.fieldUBO = newStorage(gl.UNIFORM_BUFFER, density.ShaderParamsSize, params.Bytes(), gl.STATIC_DRAW)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		d.Close()
		return nil, fmt.Errorf("opengl: scratch buffers: error 0x%x", code)
	}
	return d, nil
}

// newStorage creates a buffer of size bytes, filled from data when it is
// not nil.
func newStorage(target uint32, size int, data []byte, usage uint32) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(target, id)
	var ptr unsafe.Pointer
	if data != nil {
		ptr = gl.Ptr(data)
	}
	gl.BufferData(target, size, ptr, usage)
	return id
}

func (d *Device) Name() string { return d.name }

// submit records the fence for work already issued on the context.
func (d *Device) submit(op string, f gpu.Fence) (gpu.Fence, error) {
	if code := gl.GetError(); code != gl.NO_ERROR {
		if code == gl.OUT_OF_MEMORY {
			return 0, fmt.Errorf("%s submit: out of memory: %w", op, gpu.ErrDeviceLost)
		}
		return 0, &gpu.SubmitError{Op: op, Err: fmt.Errorf("gl error 0x%x", code)}
	}
	d.syncs[f] = gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	gl.Flush()
	return f, nil
}

func (d *Device) busy(op string, f gpu.Fence) error {
	if d.syncs[f] != 0 {
		return &gpu.SubmitError{Op: op, Err: gpu.ErrFenceBusy}
	}
	return nil
}

func (d *Device) SubmitMeshing(transform mgl32.Vec4) (gpu.Fence, error) {
	if err := d.busy("meshing", computeFence); err != nil {
		return 0, err
	}
	d.program.Use()
	d.program.SetVector4("uTransform", transform[0], transform[1], transform[2], transform[3])
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindCounter, d.counter)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindVertices, d.scratch)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindEdgeTable, d.tables[0])
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindTriTable, d.tables[1])
	gl.BindBufferBase(gl.UNIFORM_BUFFER, bindField, d.fieldUBO)

	gl.DispatchCompute(gpu.GroupsPerAxis, gpu.GroupsPerAxis, gpu.GroupsPerAxis)
	gl.MemoryBarrier(dispatchBarriers)
	return d.submit("meshing", computeFence)
}

func (d *Device) SubmitCopy(dst gpu.Buffer, size uint64) (gpu.Fence, error) {
	b, ok := dst.(*Buffer)
	if !ok || b.dev != d {
		return 0, &gpu.SubmitError{Op: "copy", Err: gpu.ErrForeignBuffer}
	}
	if size > b.size || size > gpu.ScratchSize {
		return 0, &gpu.SubmitError{Op: "copy", Err: fmt.Errorf("copy of %d bytes exceeds buffer of %d", size, b.size)}
	}
	if err := d.busy("copy", copyFence); err != nil {
		return 0, err
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, d.scratch)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.id)
	gl.CopyBufferSubData(gl.COPY_READ_BUFFER, gl.COPY_WRITE_BUFFER, 0, 0, int(size))
	gl.BindBuffer(gl.COPY_READ_BUFFER, 0)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return d.submit("copy", copyFence)
}

func (d *Device) sync(f gpu.Fence) (GLSync, error) {
	s, ok := d.syncs[f]
	if !ok {
		return 0, fmt.Errorf("%w: %d", gpu.ErrUnknownFence, f)
	}
	return s, nil
}

// waitResult maps a glClientWaitSync return value.
func waitResult(f gpu.Fence, ret uint32) (bool, error) {
	switch ret {
	case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
		return true, nil
	case gl.TIMEOUT_EXPIRED:
		return false, nil
	case gl.WAIT_FAILED:
		return false, fmt.Errorf("wait fence %d: %w", f, gpu.ErrDeviceLost)
	}
	return false, fmt.Errorf("wait fence %d: unexpected result 0x%x", f, ret)
}

func (d *Device) WaitFence(f gpu.Fence, timeout time.Duration) error {
	s, err := d.sync(f)
	if err != nil {
		return err
	}
	if s == 0 {
		// nothing submitted; an unsignaled fence never signals
		return gpu.FenceTimeout(f, timeout)
	}
	ok, err := waitResult(f, gl.ClientWaitSync(s, gl.SYNC_FLUSH_COMMANDS_BIT, uint64(timeout.Nanoseconds())))
	if err != nil {
		return err
	}
	if !ok {
		return gpu.FenceTimeout(f, timeout)
	}
	return nil
}

func (d *Device) FenceSignaled(f gpu.Fence) (bool, error) {
	s, err := d.sync(f)
	if err != nil || s == 0 {
		return false, err
	}
	return waitResult(f, gl.ClientWaitSync(s, gl.SYNC_FLUSH_COMMANDS_BIT, 0))
}

func (d *Device) ResetFence(f gpu.Fence) error {
	s, err := d.sync(f)
	if err != nil {
		return err
	}
	if s == 0 {
		return nil
	}
	ok, err := waitResult(f, gl.ClientWaitSync(s, 0, 0))
	if err != nil {
		return err
	}
	if !ok {
		return gpu.ErrFenceBusy
	}
	gl.DeleteSync(s)
	d.syncs[f] = 0
	return nil
}

func (d *Device) ReadResetCounter() (uint32, error) {
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, d.counter)
	defer gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	ptr := gl.MapBufferRange(gl.SHADER_STORAGE_BUFFER, 0, gpu.CounterSize, gl.MAP_READ_BIT|gl.MAP_WRITE_BIT)
	if ptr == nil {
		return 0, fmt.Errorf("opengl: map counter: error 0x%x", gl.GetError())
	}
	b := unsafe.Slice((*byte)(ptr), gpu.CounterSize)
	n := binary.LittleEndian.Uint32(b)
	binary.LittleEndian.PutUint32(b, 0)
	if !gl.UnmapBuffer(gl.SHADER_STORAGE_BUFFER) {
		return 0, fmt.Errorf("%w: counter buffer contents lost", gpu.ErrDeviceLost)
	}
	return n, nil
}

func (d *Device) CreateVertexBuffer(size uint64) (gpu.Buffer, error) {
	if size == 0 {
		return nil, errors.New("opengl: zero sized vertex buffer")
	}
	b := &Buffer{dev: d, size: size}
	gl.GenBuffers(1, &b.id)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.id)
	gl.BufferData(gl.COPY_WRITE_BUFFER, int(size), nil, gl.STATIC_DRAW)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteBuffers(1, &b.id)
		return nil, fmt.Errorf("opengl: allocate %d bytes: error 0x%x", size, code)
	}
	d.buffers[b] = struct{}{}
	return b, nil
}

func (d *Device) DestroyBuffer(buf gpu.Buffer) {
	b, ok := buf.(*Buffer)
	if !ok || b.dev != d || b.id == 0 {
		return
	}
	delete(d.buffers, b)
	gl.DeleteBuffers(1, &b.id)
	b.id = 0
}

// Close waits for outstanding work and deletes every GL object.
func (d *Device) Close() error {
	gl.Finish()
	for f, s := range d.syncs {
		if s != 0 {
			gl.DeleteSync(s)
		}
		d.syncs[f] = 0
	}
	for b := range d.buffers {
		gl.DeleteBuffers(1, &b.id)
		b.id = 0
	}
	clear(d.buffers)
	for _, id := range []*uint32{&d.counter, &d.scratch, &d.tables[0], &d.tables[1], &d.fieldUBO} {
		if *id != 0 {
			gl.DeleteBuffers(1, id)
			*id = 0
		}
	}
	if d.program != nil {
		d.program.Delete()
	}
	return nil
}
