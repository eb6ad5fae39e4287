package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Buffer is a VkBuffer with its own memory allocation.
type Buffer struct {
	ctx    *Context
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	host   bool // memory is host visible and coherent
}

func (b *Buffer) Size() uint64 { return b.size }

// findMemoryType returns the first memory type allowed by typeBits that has
// every flag in want.
func findMemoryType(props vk.PhysicalDeviceMemoryProperties, typeBits uint32, want vk.MemoryPropertyFlagBits) (uint32, bool) {
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		props.MemoryTypes[i].Deref()
		flags := props.MemoryTypes[i].PropertyFlags
		if flags&vk.MemoryPropertyFlags(want) == vk.MemoryPropertyFlags(want) {
			return i, true
		}
	}
	return 0, false
}

const hostCoherent = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit

// newBuffer creates a buffer of size bytes backed by memory with the given
// properties. If prefer cannot be satisfied, fallback is tried.
func (c *Context) newBuffer(size uint64, usage vk.BufferUsageFlagBits, prefer, fallback vk.MemoryPropertyFlagBits) (*Buffer, error) {
	var buffer vk.Buffer
	err := NewError(vk.CreateBuffer(c.Device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer))
	if err != nil {
		return nil, fmt.Errorf("create buffer of %d bytes: %w", size, err)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(c.Device, buffer, &reqs)
	reqs.Deref()

	props := prefer
	memType, ok := findMemoryType(c.MemProps, reqs.MemoryTypeBits, prefer)
	if !ok {
		props = fallback
		memType, ok = findMemoryType(c.MemProps, reqs.MemoryTypeBits, fallback)
	}
	if !ok {
		vk.DestroyBuffer(c.Device, buffer, nil)
		return nil, fmt.Errorf("no memory type for buffer usage %#x", usage)
	}

	var memory vk.DeviceMemory
	err = NewError(vk.AllocateMemory(c.Device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memType,
	}, nil, &memory))
	if err != nil {
		vk.DestroyBuffer(c.Device, buffer, nil)
		return nil, fmt.Errorf("allocate %d bytes: %w", reqs.Size, err)
	}
	if err := NewError(vk.BindBufferMemory(c.Device, buffer, memory, 0)); err != nil {
		vk.FreeMemory(c.Device, memory, nil)
		vk.DestroyBuffer(c.Device, buffer, nil)
		return nil, fmt.Errorf("bind buffer memory: %w", err)
	}
	return &Buffer{
		ctx:    c,
		buffer: buffer,
		memory: memory,
		size:   size,
		host:   props&hostCoherent == hostCoherent,
	}, nil
}

// mapped maps the whole buffer, calls fn with its contents and unmaps it.
func (b *Buffer) mapped(fn func(data []byte)) error {
	if !b.host {
		return fmt.Errorf("vulkan: buffer of %d bytes is not host visible", b.size)
	}
	var ptr unsafe.Pointer
	if err := NewError(vk.MapMemory(b.ctx.Device, b.memory, 0, vk.DeviceSize(b.size), 0, &ptr)); err != nil {
		return fmt.Errorf("map memory: %w", err)
	}
	fn(unsafe.Slice((*byte)(ptr), b.size))
	vk.UnmapMemory(b.ctx.Device, b.memory)
	return nil
}

// upload copies data into a host visible buffer.
func (b *Buffer) upload(data []byte) error {
	return b.mapped(func(dst []byte) { copy(dst, data) })
}

// ReadBack copies the buffer contents to host memory. Only host visible
// buffers can be read.
func (b *Buffer) ReadBack() ([]byte, error) {
	var out []byte
	err := b.mapped(func(src []byte) { out = append([]byte(nil), src...) })
	return out, err
}

func (b *Buffer) destroy() {
	if b.ctx == nil {
		return
	}
	vk.DestroyBuffer(b.ctx.Device, b.buffer, nil)
	vk.FreeMemory(b.ctx.Device, b.memory, nil)
	b.ctx = nil
}
