// Package software implements gpu.Device on the CPU. Each meshing dispatch
// runs the marching-cubes kernel once per invocation across a bounded set
// of goroutines, with the same counter and scratch-buffer discipline as the
// compute shader. It backs the headless tools and the test suite.
package software

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/mcubes"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

const (
	computeFence gpu.Fence = 1
	copyFence    gpu.Fence = 2
)

// Options tune the software device.
type Options struct {
	// Workers bounds the goroutines running workgroups. Zero means NumCPU.
	Workers int
	// Latency delays every fence signal, emulating a slow device.
	Latency time.Duration
}

type fence struct {
	inFlight bool
	done     chan struct{}
}

// Buffer is a permanent vertex buffer in host memory.
type Buffer struct {
	dev  *Device
	data []byte
}

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte { return b.data }

// ReadBack returns a copy of the buffer contents.
func (b *Buffer) ReadBack() ([]byte, error) {
	if b.data == nil {
		return nil, fmt.Errorf("software: buffer was destroyed")
	}
	return append([]byte(nil), b.data...), nil
}

// Device is a CPU implementation of gpu.Device.
type Device struct {
	field mcubes.Sampler
	opts  Options

	counter atomic.Uint32
	scratch []byte

	mu      sync.Mutex
	fences  map[gpu.Fence]*fence
	buffers map[*Buffer]struct{}
	pending sync.WaitGroup
	closed  bool

	dispatches atomic.Int64
	copies     atomic.Int64
}

// New creates a software device meshing field.
func New(field mcubes.Sampler, opts Options) *Device {
	if opts.Workers <= 0 {
		opts.Workers = max(runtime.NumCPU(), 1)
	}
	return &Device{
		field:   field,
		opts:    opts,
		scratch: make([]byte, gpu.ScratchSize),
		fences: map[gpu.Fence]*fence{
			computeFence: {},
			copyFence:    {},
		},
		buffers: make(map[*Buffer]struct{}),
	}
}

func (d *Device) Name() string { return "software" }

// begin marks f in flight and runs work in the background, signaling f
// once work returns.
func (d *Device) begin(op string, f gpu.Fence, work func()) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, &gpu.SubmitError{Op: op, Err: fmt.Errorf("device closed")}
	}
	fc := d.fences[f]
	if fc.inFlight {
		return 0, &gpu.SubmitError{Op: op, Err: gpu.ErrFenceBusy}
	}
	fc.inFlight = true
	fc.done = make(chan struct{})
	done := fc.done

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		work()
		if d.opts.Latency > 0 {
			time.Sleep(d.opts.Latency)
		}
		close(done)
	}()
	return f, nil
}

func (d *Device) SubmitMeshing(transform mgl32.Vec4) (gpu.Fence, error) {
	return d.begin("meshing", computeFence, func() {
		d.dispatch(transform.Vec3())
		d.dispatches.Add(1)
	})
}

// dispatch runs GroupsPerAxis^3 workgroups of LocalSize^3 invocations.
func (d *Device) dispatch(origin mgl32.Vec3) {
	var g errgroup.Group
	g.SetLimit(d.opts.Workers)
	for gz := range gpu.GroupsPerAxis {
		for gy := range gpu.GroupsPerAxis {
			for gx := range gpu.GroupsPerAxis {
				g.Go(func() error {
					d.workgroup(origin, gx, gy, gz)
					return nil
				})
			}
		}
	}
	_ = g.Wait()
}

func (d *Device) workgroup(origin mgl32.Vec3, gx, gy, gz int) {
	tris := make([]mcubes.Vertex, 0, mcubes.MaxTrianglesPerCell*3)
	for lz := range gpu.LocalSize {
		for ly := range gpu.LocalSize {
			for lx := range gpu.LocalSize {
				cell := mgl32.Vec3{
					float32(gx*gpu.LocalSize + lx),
					float32(gy*gpu.LocalSize + ly),
					float32(gz*gpu.LocalSize + lz),
				}
				base := origin.Add(cell)
				corners := mcubes.SampleCorners(d.field, base)
				tris = mcubes.Polygonise(d.field, base, &corners, tris[:0])
				if len(tris) == 0 {
					continue
				}
				// reserve a contiguous range the way atomicAdd does in the shader
				n := uint32(len(tris))
				first := d.counter.Add(n) - n
				if first+n > gpu.MaxVertices {
					continue
				}
				for i, v := range tris {
					v.Put(d.scratch[(int(first)+i)*gpu.VertexSize:])
				}
			}
		}
	}
}

func (d *Device) SubmitCopy(dst gpu.Buffer, size uint64) (gpu.Fence, error) {
	b, ok := dst.(*Buffer)
	if !ok || b.dev != d {
		return 0, &gpu.SubmitError{Op: "copy", Err: gpu.ErrForeignBuffer}
	}
	if size > b.Size() || size > gpu.ScratchSize {
		return 0, &gpu.SubmitError{Op: "copy", Err: fmt.Errorf("copy of %d bytes exceeds buffer of %d", size, b.Size())}
	}
	return d.begin("copy", copyFence, func() {
		copy(b.data[:size], d.scratch[:size])
		d.copies.Add(1)
	})
}

func (d *Device) fence(f gpu.Fence) (*fence, error) {
	fc, ok := d.fences[f]
	if !ok {
		return nil, fmt.Errorf("%w: %d", gpu.ErrUnknownFence, f)
	}
	return fc, nil
}

func (d *Device) WaitFence(f gpu.Fence, timeout time.Duration) error {
	d.mu.Lock()
	fc, err := d.fence(f)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	done := fc.done
	d.mu.Unlock()
	if done == nil {
		// nothing submitted: an unsignaled fence never signals
		time.Sleep(timeout)
		return gpu.FenceTimeout(f, timeout)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return gpu.FenceTimeout(f, timeout)
	}
}

func (d *Device) FenceSignaled(f gpu.Fence) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fc, err := d.fence(f)
	if err != nil || fc.done == nil {
		return false, err
	}
	select {
	case <-fc.done:
		return true, nil
	default:
		return false, nil
	}
}

func (d *Device) ResetFence(f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fc, err := d.fence(f)
	if err != nil {
		return err
	}
	if fc.done != nil {
		select {
		case <-fc.done:
		default:
			return gpu.ErrFenceBusy
		}
	}
	fc.inFlight = false
	fc.done = nil
	return nil
}

func (d *Device) ReadResetCounter() (uint32, error) {
	return d.counter.Swap(0), nil
}

func (d *Device) CreateVertexBuffer(size uint64) (gpu.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("software: zero sized vertex buffer")
	}
	b := &Buffer{dev: d, data: make([]byte, size)}
	d.mu.Lock()
	d.buffers[b] = struct{}{}
	d.mu.Unlock()
	return b, nil
}

func (d *Device) DestroyBuffer(buf gpu.Buffer) {
	b, ok := buf.(*Buffer)
	if !ok {
		return
	}
	d.mu.Lock()
	delete(d.buffers, b)
	d.mu.Unlock()
	b.data = nil
}

// Close waits for outstanding work and frees every buffer.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.pending.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	for b := range d.buffers {
		b.data = nil
	}
	clear(d.buffers)
	return nil
}

// Scratch returns the first n bytes of the scratch vertex buffer.
func (d *Device) Scratch(n uint64) []byte {
	out := make([]byte, n)
	copy(out, d.scratch[:n])
	return out
}

// LiveBuffers reports how many vertex buffers are allocated.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// Dispatches reports how many meshing dispatches have completed.
func (d *Device) Dispatches() int64 { return d.dispatches.Load() }

// Copies reports how many scratch copies have completed.
func (d *Device) Copies() int64 { return d.copies.Load() }
