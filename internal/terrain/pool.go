package terrain

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"voxel-terrain/internal/gpu"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrPoolExhausted is returned by Allocate when every slot is occupied.
	ErrPoolExhausted = errors.New("terrain: vertex cache pool exhausted")
	// ErrInvalidSlot is returned for out of range or already free handles.
	ErrInvalidSlot = errors.New("terrain: invalid pool slot")
)

// SlotHandle indexes a slot of a VertexCachePool.
type SlotHandle int32

// noSlot terminates the free list.
const noSlot SlotHandle = -1

// CacheEntry is the permanent geometry of one non-empty chunk.
type CacheEntry struct {
	Buffer      gpu.Buffer
	VertexCount uint32
	Transform   mgl32.Vec4
}

// Bytes is the size of the entry's vertex data.
func (e CacheEntry) Bytes() uint64 {
	return uint64(e.VertexCount) * VertexSize
}

type poolSlot struct {
	entry CacheEntry
	next  SlotHandle
}

// BufferReleaser frees vertex buffers on release.
type BufferReleaser interface {
	DestroyBuffer(b gpu.Buffer)
}

// VertexCachePool is a fixed-capacity arena of chunk vertex buffers with an
// index-linked free list. Allocate and Release are O(1).
//
// Writers take the write lock; the occupied-entry scans hold the read lock,
// so a render pass never observes a slot mid-release.
type VertexCachePool struct {
	mu       sync.RWMutex
	slots    []poolSlot
	freeHead SlotHandle
	occupied int
	bytes    uint64
	releaser BufferReleaser
}

// NewVertexCachePool creates a pool of capacity slots. Released buffers are
// handed to r.
func NewVertexCachePool(capacity int, r BufferReleaser) *VertexCachePool {
	p := &VertexCachePool{
		slots:    make([]poolSlot, capacity),
		freeHead: noSlot,
		releaser: r,
	}
	// push in reverse so slot 0 is handed out first
	for i := capacity - 1; i >= 0; i-- {
		p.slots[i].next = p.freeHead
		p.freeHead = SlotHandle(i)
	}
	return p
}

// Allocate stores e in a free slot.
func (p *VertexCachePool) Allocate(e CacheEntry) (SlotHandle, error) {
	if e.VertexCount == 0 || e.Buffer == nil {
		return noSlot, fmt.Errorf("terrain: refusing to cache an empty entry")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freeHead == noSlot {
		return noSlot, fmt.Errorf("%w (capacity %d)", ErrPoolExhausted, len(p.slots))
	}
	h := p.freeHead
	s := &p.slots[h]
	p.freeHead = s.next
	s.entry = e
	s.next = noSlot
	p.occupied++
	p.bytes += e.Bytes()
	return h, nil
}

// Release destroys the slot's buffer and returns the slot to the free list.
func (p *VertexCachePool) Release(h SlotHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseLocked(h)
}

// Evict releases h and calls unindex while still holding the write lock, so
// a reader never sees the slot freed while its chunk is still indexed.
// unindex runs even when h is invalid.
func (p *VertexCachePool) Evict(h SlotHandle, unindex func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.releaseLocked(h)
	unindex()
	return err
}

func (p *VertexCachePool) releaseLocked(h SlotHandle) error {
	if h < 0 || int(h) >= len(p.slots) || p.slots[h].entry.VertexCount == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, h)
	}
	s := &p.slots[h]
	if p.releaser != nil {
		p.releaser.DestroyBuffer(s.entry.Buffer)
	}
	p.bytes -= s.entry.Bytes()
	p.occupied--
	s.entry = CacheEntry{}
	s.next = p.freeHead
	p.freeHead = h
	return nil
}

// ReleaseAll frees every occupied slot.
func (p *VertexCachePool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if p.slots[i].entry.VertexCount > 0 {
			_ = p.releaseLocked(SlotHandle(i))
		}
	}
}

// Entry returns the entry stored at h.
func (p *VertexCachePool) Entry(h SlotHandle) (CacheEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if h < 0 || int(h) >= len(p.slots) || p.slots[h].entry.VertexCount == 0 {
		return CacheEntry{}, false
	}
	return p.slots[h].entry, true
}

// Cap returns the number of slots.
func (p *VertexCachePool) Cap() int { return len(p.slots) }

// Len returns the number of occupied slots.
func (p *VertexCachePool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.occupied
}

// Free returns the number of free slots.
func (p *VertexCachePool) Free() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.slots) - p.occupied
}

// ResidentBytes is the total vertex data held by occupied slots.
func (p *VertexCachePool) ResidentBytes() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bytes
}

// All scans the slot array and yields occupied slots with their handles.
// The read lock is held for the whole scan; the loop body must not call
// Allocate or Release.
func (p *VertexCachePool) All() iter.Seq2[SlotHandle, CacheEntry] {
	return func(yield func(SlotHandle, CacheEntry) bool) {
		p.mu.RLock()
		defer p.mu.RUnlock()
		for i := range p.slots {
			if p.slots[i].entry.VertexCount == 0 {
				continue
			}
			if !yield(SlotHandle(i), p.slots[i].entry) {
				return
			}
		}
	}
}

// OccupiedEntries yields every occupied entry. See All for locking.
func (p *VertexCachePool) OccupiedEntries() iter.Seq[CacheEntry] {
	return func(yield func(CacheEntry) bool) {
		for _, e := range p.All() {
			if !yield(e) {
				return
			}
		}
	}
}

// AppendOccupied appends a snapshot of the occupied entries to dst, for
// consumers that must not hold the pool lock while drawing.
func (p *VertexCachePool) AppendOccupied(dst []CacheEntry) []CacheEntry {
	for e := range p.OccupiedEntries() {
		dst = append(dst, e)
	}
	return dst
}

// freeListLen walks the free list. broken is set when the list loops or
// links an occupied slot.
func (p *VertexCachePool) freeListLen() (n int, broken bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for h := p.freeHead; h != noSlot; h = p.slots[h].next {
		if p.slots[h].entry.VertexCount != 0 {
			return n, true
		}
		n++
		if n > len(p.slots) {
			return n, true
		}
	}
	return n, false
}
