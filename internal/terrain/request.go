package terrain

import (
	"time"

	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/profiling"

	"github.com/go-gl/mathgl/mgl32"
)

// RequestState is the progress of one chunk through the meshing protocol.
type RequestState uint8

const (
	// RequestSubmitted: the compute dispatch is queued.
	RequestSubmitted RequestState = iota
	// RequestComputeDone: the vertex count is known; the copy may be in flight.
	RequestComputeDone
	// RequestCopied: the permanent buffer holds the chunk's vertices.
	RequestCopied
	// RequestCached: the entry is in the pool.
	RequestCached
	// RequestEmpty: the chunk has no surface.
	RequestEmpty
	// RequestFailed: the request was abandoned, see Request.Err.
	RequestFailed
)

var requestStateNames = [...]string{"submitted", "compute-done", "copied", "cached", "empty", "failed"}

func (s RequestState) String() string {
	if int(s) < len(requestStateNames) {
		return requestStateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transitions happen from s.
func (s RequestState) Terminal() bool {
	return s == RequestCached || s == RequestEmpty || s == RequestFailed
}

// Request tracks one chunk's meshing without blocking the caller.
type Request struct {
	Coord     ChunkCoord
	Transform mgl32.Vec4
	State     RequestState

	VertexCount uint32
	Entry       CacheEntry // set once the copy is submitted
	Slot        SlotHandle // set once cached
	Err         error

	fence    gpu.Fence
	copying  bool
	deadline time.Time
}

// Begin submits the compute dispatch for c.
func (m *Mesher) Begin(c ChunkCoord) (*Request, error) {
	t := c.Transform()
	f, err := m.dev.SubmitMeshing(t)
	if err != nil {
		return nil, err
	}
	return &Request{
		Coord:     c,
		Transform: t,
		State:     RequestSubmitted,
		Slot:      noSlot,
		fence:     f,
		deadline:  time.Now().Add(m.timeout),
	}, nil
}

// Advance moves req forward by at most one state. With block set it waits
// on the pending fence; otherwise it only polls, and reports the device
// lost once the fence is overdue. The returned flag is true when the state
// changed. Copied is the last state Advance produces; caching belongs to
// the owner of the pool.
func (m *Mesher) Advance(req *Request, block bool) (bool, error) {
	defer profiling.Track("terrain.mesh.advance")()
	switch req.State {
	case RequestSubmitted:
		ready, err := m.await(req, block)
		if err != nil {
			return false, m.fail(req, m.drainAfter(req.fence, true, err))
		}
		if !ready {
			return false, nil
		}
		n, err := m.readCount()
		if err != nil {
			return false, m.fail(req, err)
		}
		req.VertexCount = n
		if n == 0 {
			req.State = RequestEmpty
		} else {
			req.State = RequestComputeDone
		}
		return true, nil

	case RequestComputeDone:
		if !req.copying {
			buf, f, err := m.submitCopy(req.VertexCount)
			if err != nil {
				return false, m.fail(req, err)
			}
			req.Entry = CacheEntry{Buffer: buf, VertexCount: req.VertexCount, Transform: req.Transform}
			req.fence = f
			req.copying = true
			req.deadline = time.Now().Add(m.timeout)
		}
		ready, err := m.await(req, block)
		if err != nil {
			err = m.drainAfter(req.fence, false, err)
			m.dev.DestroyBuffer(req.Entry.Buffer)
			req.Entry = CacheEntry{}
			return false, m.fail(req, err)
		}
		if !ready {
			return false, nil
		}
		req.State = RequestCopied
		return true, nil
	}
	return false, nil
}

// Abandon fails req, draining any GPU work it still has in flight and
// freeing its buffer. The error is non-nil only when the device could not
// be drained, and is then fatal.
func (m *Mesher) Abandon(req *Request, err error) error {
	if req.State.Terminal() {
		return nil
	}
	var drainErr error
	switch {
	case req.State == RequestSubmitted:
		drainErr = m.drainAfter(req.fence, true, nil)
	case req.State == RequestComputeDone && req.copying:
		drainErr = m.drainAfter(req.fence, false, nil)
	}
	if req.Entry.Buffer != nil {
		m.dev.DestroyBuffer(req.Entry.Buffer)
		req.Entry = CacheEntry{}
	}
	_ = m.fail(req, err)
	return drainErr
}

func (m *Mesher) await(req *Request, block bool) (bool, error) {
	if block {
		return true, m.settle(req.fence)
	}
	signaled, err := m.dev.FenceSignaled(req.fence)
	if err != nil {
		return false, err
	}
	if !signaled {
		if time.Now().After(req.deadline) {
			return false, gpu.FenceTimeout(req.fence, m.timeout)
		}
		return false, nil
	}
	return true, m.dev.ResetFence(req.fence)
}

func (m *Mesher) fail(req *Request, err error) error {
	req.State = RequestFailed
	req.Err = err
	return err
}
