// Package vulkan implements gpu.Device with a Vulkan compute pipeline: a
// marching-cubes shader writes into a shared scratch buffer and a counter,
// and a transfer command copies the valid prefix into right-sized buffers.
package vulkan

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"voxel-terrain/internal/density"
	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/mcubes"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// ShaderFile is the compiled meshing shader, relative to Options.ShaderDir.
const ShaderFile = "terrain_meshing.comp.spv"

const (
	computeFence gpu.Fence = 1
	copyFence    gpu.Fence = 2
)

// Options configure a Vulkan device.
type Options struct {
	AppName   string
	ShaderDir string
}

// submission is a command pool with one primary buffer and the fence its
// submissions signal.
type submission struct {
	pool     vk.CommandPool
	cmd      vk.CommandBuffer
	fence    vk.Fence
	inFlight bool
}

// Device is a Vulkan implementation of gpu.Device.
type Device struct {
	ctx      *Context
	pipeline *pipeline

	counter  *Buffer
	scratch  *Buffer
	tables   [2]*Buffer
	fieldBuf *Buffer

	mu      sync.Mutex
	subs    map[gpu.Fence]*submission
	buffers map[*Buffer]struct{}
}

// New creates the context, the scratch buffers and the meshing pipeline
// for field. Every failure here is a setup failure.
func New(field density.Field, opts Options) (*Device, error) {
	params, err := density.ShaderParamsFor(field)
	if err != nil {
		return nil, err
	}
	if opts.AppName == "" {
		opts.AppName = "voxel-terrain"
	}
	ctx, err := NewContext(opts.AppName)
	if err != nil {
		return nil, err
	}
	d := &Device{
		ctx:     ctx,
		subs:    make(map[gpu.Fence]*submission),
		buffers: make(map[*Buffer]struct{}),
	}
	if err := d.init(params, filepath.Join(opts.ShaderDir, ShaderFile)); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) init(params density.ShaderParams, shaderPath string) error {
	c := d.ctx
	var err error

	d.counter, err = c.newBuffer(gpu.CounterSize,
		vk.BufferUsageStorageBufferBit, hostCoherent, hostCoherent)
	if err != nil {
		return fmt.Errorf("counter buffer: %w", err)
	}
	if err := d.counter.upload(make([]byte, gpu.CounterSize)); err != nil {
		return fmt.Errorf("counter buffer: %w", err)
	}

	d.scratch, err = c.newBuffer(gpu.ScratchSize,
		vk.BufferUsageStorageBufferBit|vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyDeviceLocalBit, 0)
	if err != nil {
		return fmt.Errorf("scratch buffer: %w", err)
	}

	edges, tris := mcubes.TableBytes()
	for i, data := range [][]byte{edges, tris} {
		b, err := c.newBuffer(uint64(len(data)), vk.BufferUsageStorageBufferBit, hostCoherent, hostCoherent)
		if err != nil {
			return fmt.Errorf("table buffer: %w", err)
		}
		d.tables[i] = b
		if err := b.upload(data); err != nil {
			return fmt.Errorf("table buffer: %w", err)
		}
	}

	d.fieldBuf, err = c.newBuffer(density.ShaderParamsSize, vk.BufferUsageUniformBufferBit, hostCoherent, hostCoherent)
	if err != nil {
		return fmt.Errorf("field buffer: %w", err)
	}
	if err := d.fieldBuf.upload(params.Bytes()); err != nil {
		return fmt.Errorf("field buffer: %w", err)
	}

	d.pipeline, err = newPipeline(c, shaderPath)
	if err != nil {
		return err
	}
	d.pipeline.bind([bindingCount]*Buffer{
		bindCounter:   d.counter,
		bindVertices:  d.scratch,
		bindEdgeTable: d.tables[0],
		bindTriTable:  d.tables[1],
		bindField:     d.fieldBuf,
	})

	for _, f := range []gpu.Fence{computeFence, copyFence} {
		s, err := d.newSubmission()
		if err != nil {
			return err
		}
		d.subs[f] = s
	}
	return nil
}

func (d *Device) newSubmission() (*submission, error) {
	dev := d.ctx.Device
	s := &submission{}

	var pool vk.CommandPool
	err := NewError(vk.CreateCommandPool(dev, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.ctx.QueueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}, nil, &pool))
	if err != nil {
		return nil, fmt.Errorf("create command pool: %w", err)
	}
	s.pool = pool

	cmds := make([]vk.CommandBuffer, 1)
	err = NewError(vk.AllocateCommandBuffers(dev, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds))
	if err != nil {
		vk.DestroyCommandPool(dev, pool, nil)
		return nil, fmt.Errorf("allocate command buffer: %w", err)
	}
	s.cmd = cmds[0]

	var fence vk.Fence
	err = NewError(vk.CreateFence(dev, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &fence))
	if err != nil {
		vk.DestroyCommandPool(dev, pool, nil)
		return nil, fmt.Errorf("create fence: %w", err)
	}
	s.fence = fence
	return s, nil
}

func (d *Device) Name() string { return "vulkan: " + d.ctx.Name }

// submit resets the pool behind f, records with rec and submits.
func (d *Device) submit(op string, f gpu.Fence, rec func(cmd vk.CommandBuffer)) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.subs[f]
	if s.inFlight {
		return 0, &gpu.SubmitError{Op: op, Err: gpu.ErrFenceBusy}
	}
	dev := d.ctx.Device

	if err := NewError(vk.ResetCommandPool(dev, s.pool, 0)); err != nil {
		return 0, &gpu.SubmitError{Op: op, Err: err}
	}
	err := NewError(vk.BeginCommandBuffer(s.cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}))
	if err != nil {
		return 0, &gpu.SubmitError{Op: op, Err: err}
	}
	rec(s.cmd)
	if err := NewError(vk.EndCommandBuffer(s.cmd)); err != nil {
		return 0, &gpu.SubmitError{Op: op, Err: err}
	}

	ret := vk.QueueSubmit(d.ctx.Queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{s.cmd},
	}}, s.fence)
	if ret == vk.ErrorDeviceLost {
		return 0, fmt.Errorf("%s submit: %w", op, gpu.ErrDeviceLost)
	}
	if err := NewError(ret); err != nil {
		return 0, &gpu.SubmitError{Op: op, Err: err}
	}
	s.inFlight = true
	return f, nil
}

// hostBarrier makes writes from stage visible to the host and to later
// transfers once the fence has signaled.
func hostBarrier(cmd vk.CommandBuffer, stage vk.PipelineStageFlagBits, access vk.AccessFlagBits) {
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(stage),
		vk.PipelineStageFlags(vk.PipelineStageHostBit|vk.PipelineStageTransferBit),
		0,
		1, []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(access),
			DstAccessMask: vk.AccessFlags(vk.AccessHostReadBit | vk.AccessHostWriteBit | vk.AccessTransferReadBit),
		}},
		0, nil, 0, nil)
}

func (d *Device) SubmitMeshing(transform mgl32.Vec4) (gpu.Fence, error) {
	push := [4]float32(transform)
	return d.submit("meshing", computeFence, func(cmd vk.CommandBuffer) {
		d.pipeline.record(cmd, &push)
		hostBarrier(cmd, vk.PipelineStageComputeShaderBit, vk.AccessShaderWriteBit)
	})
}

func (d *Device) SubmitCopy(dst gpu.Buffer, size uint64) (gpu.Fence, error) {
	b, ok := dst.(*Buffer)
	if !ok || b.ctx != d.ctx {
		return 0, &gpu.SubmitError{Op: "copy", Err: gpu.ErrForeignBuffer}
	}
	if size > b.size || size > gpu.ScratchSize {
		return 0, &gpu.SubmitError{Op: "copy", Err: fmt.Errorf("copy of %d bytes exceeds buffer of %d", size, b.size)}
	}
	f, err := d.submit("copy", copyFence, func(cmd vk.CommandBuffer) {
		vk.CmdCopyBuffer(cmd, d.scratch.buffer, b.buffer, 1, []vk.BufferCopy{{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      vk.DeviceSize(size),
		}})
		hostBarrier(cmd, vk.PipelineStageTransferBit, vk.AccessTransferWriteBit)
	})
	return f, err
}

func (d *Device) sub(f gpu.Fence) (*submission, error) {
	s, ok := d.subs[f]
	if !ok {
		return nil, fmt.Errorf("%w: %d", gpu.ErrUnknownFence, f)
	}
	return s, nil
}

func (d *Device) WaitFence(f gpu.Fence, timeout time.Duration) error {
	d.mu.Lock()
	s, err := d.sub(f)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	ret := vk.WaitForFences(d.ctx.Device, 1, []vk.Fence{s.fence}, vk.True, uint64(timeout.Nanoseconds()))
	switch ret {
	case vk.Success:
		return nil
	case vk.Timeout:
		return gpu.FenceTimeout(f, timeout)
	case vk.ErrorDeviceLost:
		return fmt.Errorf("wait fence %d: %w", f, gpu.ErrDeviceLost)
	}
	return fmt.Errorf("wait fence %d: %w", f, NewError(ret))
}

func (d *Device) FenceSignaled(f gpu.Fence) (bool, error) {
	d.mu.Lock()
	s, err := d.sub(f)
	d.mu.Unlock()
	if err != nil {
		return false, err
	}
	switch ret := vk.GetFenceStatus(d.ctx.Device, s.fence); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	case vk.ErrorDeviceLost:
		return false, fmt.Errorf("fence %d status: %w", f, gpu.ErrDeviceLost)
	default:
		return false, fmt.Errorf("fence %d status: %w", f, NewError(ret))
	}
}

func (d *Device) ResetFence(f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.sub(f)
	if err != nil {
		return err
	}
	if s.inFlight && vk.GetFenceStatus(d.ctx.Device, s.fence) != vk.Success {
		return gpu.ErrFenceBusy
	}
	if err := NewError(vk.ResetFences(d.ctx.Device, 1, []vk.Fence{s.fence})); err != nil {
		return fmt.Errorf("reset fence %d: %w", f, err)
	}
	if f == copyFence {
		// the copy command buffer is one-shot; give its memory back now
		vk.ResetCommandPool(d.ctx.Device, s.pool, 0)
	}
	s.inFlight = false
	return nil
}

func (d *Device) ReadResetCounter() (uint32, error) {
	var n uint32
	err := d.counter.mapped(func(b []byte) {
		n = binary.LittleEndian.Uint32(b)
		binary.LittleEndian.PutUint32(b, 0)
	})
	return n, err
}

// CreateVertexBuffer allocates a vertex buffer, host visible when the
// device allows so a renderer on another API can read it back.
func (d *Device) CreateVertexBuffer(size uint64) (gpu.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("vulkan: zero sized vertex buffer")
	}
	b, err := d.ctx.newBuffer(size,
		vk.BufferUsageVertexBufferBit|vk.BufferUsageStorageBufferBit|vk.BufferUsageTransferDstBit,
		vk.MemoryPropertyDeviceLocalBit|hostCoherent, hostCoherent)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.buffers[b] = struct{}{}
	d.mu.Unlock()
	return b, nil
}

func (d *Device) DestroyBuffer(buf gpu.Buffer) {
	b, ok := buf.(*Buffer)
	if !ok || b.ctx != d.ctx {
		return
	}
	d.mu.Lock()
	delete(d.buffers, b)
	d.mu.Unlock()
	b.destroy()
}

// Close waits for the queue to drain and frees every object.
func (d *Device) Close() error {
	if d.ctx == nil || d.ctx.Device == nil {
		return nil
	}
	dev := d.ctx.Device
	vk.DeviceWaitIdle(dev)

	d.mu.Lock()
	defer d.mu.Unlock()
	for b := range d.buffers {
		b.destroy()
	}
	clear(d.buffers)
	for _, s := range d.subs {
		vk.DestroyFence(dev, s.fence, nil)
		vk.DestroyCommandPool(dev, s.pool, nil)
	}
	clear(d.subs)
	if d.pipeline != nil {
		d.pipeline.destroy()
	}
	for _, b := range []*Buffer{d.counter, d.scratch, d.tables[0], d.tables[1], d.fieldBuf} {
		if b != nil {
			b.destroy()
		}
	}
	d.ctx.Destroy()
	return nil
}
