package terrain

import "iter"

// EmptyChunk marks a chunk that was meshed and produced no geometry.
const EmptyChunk SlotHandle = -2

// LoadedChunkIndex maps chunk coordinates to their pool slot, or EmptyChunk.
// It has a single writer, the Streamer, and is not safe for concurrent use.
type LoadedChunkIndex struct {
	slots map[ChunkCoord]SlotHandle
}

// NewLoadedChunkIndex creates an empty index.
func NewLoadedChunkIndex() *LoadedChunkIndex {
	return &LoadedChunkIndex{slots: make(map[ChunkCoord]SlotHandle)}
}

// Contains reports whether c has been meshed.
func (ix *LoadedChunkIndex) Contains(c ChunkCoord) bool {
	_, ok := ix.slots[c]
	return ok
}

// Record stores the outcome of meshing c.
func (ix *LoadedChunkIndex) Record(c ChunkCoord, h SlotHandle) {
	ix.slots[c] = h
}

// Lookup returns the slot recorded for c.
func (ix *LoadedChunkIndex) Lookup(c ChunkCoord) (SlotHandle, bool) {
	h, ok := ix.slots[c]
	return h, ok
}

// Remove forgets c.
func (ix *LoadedChunkIndex) Remove(c ChunkCoord) {
	delete(ix.slots, c)
}

// Len returns the number of indexed chunks, empty ones included.
func (ix *LoadedChunkIndex) Len() int { return len(ix.slots) }

// All yields every indexed chunk. Removing the current chunk during the
// loop is allowed.
func (ix *LoadedChunkIndex) All() iter.Seq2[ChunkCoord, SlotHandle] {
	return func(yield func(ChunkCoord, SlotHandle) bool) {
		for c, h := range ix.slots {
			if !yield(c, h) {
				return
			}
		}
	}
}
