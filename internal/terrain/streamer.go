package terrain

import (
	"errors"
	"fmt"
	"iter"
	"log"

	"voxel-terrain/internal/config"
	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/profiling"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl32"
)

// Stats summarises what the streamer has done since it was created.
type Stats struct {
	Requested int // generation requests issued
	Generated int // non-empty chunks cached
	Empty     int // chunks with no surface
	Evicted   int // cached chunks released for distance
	Skipped   int // chunks dropped because the pool was full
	Failed    int // chunks abandoned after a device error

	Indexed       int
	Resident      int
	ResidentBytes uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("chunks %d resident (%s), %d indexed | generated %d, empty %d, evicted %d, skipped %d, failed %d",
		s.Resident, humanize.IBytes(s.ResidentBytes), s.Indexed,
		s.Generated, s.Empty, s.Evicted, s.Skipped, s.Failed)
}

// Streamer keeps the chunks around a viewer meshed. Call Update once per
// tick with the viewer position; render from Pool.
type Streamer struct {
	dev      gpu.Device
	settings *config.Settings
	logger   *log.Logger

	mesher *Mesher
	pool   *VertexCachePool
	index  *LoadedChunkIndex
	cursor *ShellCursor

	started  bool
	center   ChunkCoord
	radius   int
	inflight *Request

	stats Stats
}

// NewStreamer creates a streamer over dev. The pool capacity is read from
// settings once; everything else is re-read every Update.
func NewStreamer(dev gpu.Device, settings *config.Settings, logger *log.Logger) *Streamer {
	if logger == nil {
		logger = log.Default()
	}
	return &Streamer{
		dev:      dev,
		settings: settings,
		logger:   logger,
		mesher:   NewMesher(dev, settings.FenceTimeout()),
		pool:     NewVertexCachePool(settings.PoolCapacity(), dev),
		index:    NewLoadedChunkIndex(),
		cursor:   NewShellCursor(ChunkCoord{}, settings.LoadRadius()),
	}
}

// Pool returns the vertex cache the renderer draws from.
func (s *Streamer) Pool() *VertexCachePool { return s.pool }

// Index returns the loaded-chunk index.
func (s *Streamer) Index() *LoadedChunkIndex { return s.index }

// Center returns the chunk the last Update was centred on.
func (s *Streamer) Center() ChunkCoord { return s.center }

// Radius returns the load radius the last Update streamed with.
func (s *Streamer) Radius() int { return s.radius }

// Settled reports whether every chunk within the load radius of the last
// Update has been visited and no request is in flight.
func (s *Streamer) Settled() bool { return s.started && s.inflight == nil && s.cursor.Done() }

// Generating reports whether Update does any work.
func (s *Streamer) Generating() bool { return s.settings.Generating() }

// ToggleGeneration flips the generation switch and returns the new value.
func (s *Streamer) ToggleGeneration() bool {
	on := !s.settings.Generating()
	s.settings.SetGenerating(on)
	s.logger.Printf("generation %s", map[bool]string{true: "enabled", false: "paused"}[on])
	return on
}

// Stats returns the current counters.
func (s *Streamer) Stats() Stats {
	st := s.stats
	st.Indexed = s.index.Len()
	st.Resident = s.pool.Len()
	st.ResidentBytes = s.pool.ResidentBytes()
	return st
}

// Update streams chunks around viewer. Chunks are visited in increasing
// Chebyshev shells and each missing one is meshed and cached, at most
// MaxChunksPerTick per call. Chunks already indexed are never requested
// again. The returned error is fatal (device lost); per-chunk failures are
// logged and skipped.
func (s *Streamer) Update(viewer mgl32.Vec3) error {
	defer profiling.Track("terrain.Update")()
	if !s.settings.Generating() {
		return nil
	}
	s.mesher.SetTimeout(s.settings.FenceTimeout())

	center := ChunkAt(viewer)
	radius := s.settings.LoadRadius()
	if !s.started || center != s.center || radius != s.radius {
		s.started = true
		s.center, s.radius = center, radius
		s.cursor.Reset(center, radius)
		if n := s.evict(s.settings.EvictRadius()); n > 0 {
			s.logger.Printf("evicted %d chunks around %v", n, center)
		}
	}

	budget := s.settings.MaxChunksPerTick()
	if s.settings.Polling() {
		return s.pump(budget)
	}
	if s.inflight != nil {
		if err := s.drain(); err != nil {
			return err
		}
	}
	return s.stream(budget)
}

// stream meshes missing chunks one at a time, blocking on every fence.
func (s *Streamer) stream(budget int) error {
	loaded := 0
	for coord := range s.cursor.Remaining() {
		if s.index.Contains(coord) {
			continue
		}
		if err := s.load(coord); err != nil {
			if gpu.IsFatal(err) {
				return err
			}
			s.logger.Printf("chunk %v skipped: %v", coord, err)
		}
		loaded++
		if budget > 0 && loaded >= budget {
			break
		}
	}
	return nil
}

func (s *Streamer) load(coord ChunkCoord) error {
	s.stats.Requested++
	profiling.Add("chunks.requested", 1)
	t := coord.Transform()

	count, err := s.mesher.Generate(t)
	if err != nil {
		s.stats.Failed++
		return fmt.Errorf("generate %v: %w", coord, err)
	}
	if count == 0 {
		s.recordEmpty(coord)
		return nil
	}
	if err := s.makeRoom(); err != nil {
		s.stats.Skipped++
		return err
	}
	entry, _, err := s.mesher.Materialize(count, t)
	if err != nil {
		s.stats.Failed++
		return fmt.Errorf("materialize %v: %w", coord, err)
	}
	_, err = s.cache(coord, entry)
	return err
}

func (s *Streamer) recordEmpty(coord ChunkCoord) {
	s.index.Record(coord, EmptyChunk)
	s.stats.Empty++
}

func (s *Streamer) cache(coord ChunkCoord, entry CacheEntry) (SlotHandle, error) {
	h, err := s.pool.Allocate(entry)
	if err != nil {
		s.dev.DestroyBuffer(entry.Buffer)
		s.stats.Skipped++
		return noSlot, err
	}
	s.index.Record(coord, h)
	s.stats.Generated++
	profiling.Add("chunks.generated", 1)
	return h, nil
}

// makeRoom frees pool slots when the pool is full by evicting everything
// beyond the load radius, ignoring hysteresis.
func (s *Streamer) makeRoom() error {
	if s.pool.Free() > 0 {
		return nil
	}
	if n := s.evict(s.radius); n > 0 {
		s.logger.Printf("pool full, evicted %d chunks beyond radius %d", n, s.radius)
	}
	if s.pool.Free() == 0 {
		return fmt.Errorf("%w (capacity %d)", ErrPoolExhausted, s.pool.Cap())
	}
	return nil
}

// evict releases every indexed chunk farther than limit from the current
// center and returns how many pool slots were freed.
func (s *Streamer) evict(limit int) int {
	defer profiling.Track("terrain.evict")()
	n := 0
	for coord, h := range s.index.All() {
		if Chebyshev(coord, s.center) <= limit {
			continue
		}
		if h == EmptyChunk {
			s.index.Remove(coord)
			continue
		}
		if err := s.pool.Evict(h, func() { s.index.Remove(coord) }); err != nil {
			s.logger.Printf("release %v: %v", coord, err)
			continue
		}
		n++
	}
	s.stats.Evicted += n
	return n
}

// pump drives at most one request at a time without blocking.
func (s *Streamer) pump(budget int) error {
	started := 0
	for {
		if s.inflight != nil {
			done, err := s.step(false)
			if err != nil {
				return err
			}
			if !done {
				return nil
			}
		}
		if budget > 0 && started >= budget {
			return nil
		}
		coord, ok := s.nextMissing()
		if !ok {
			return nil
		}
		s.stats.Requested++
		profiling.Add("chunks.requested", 1)
		req, err := s.mesher.Begin(coord)
		if err != nil {
			s.stats.Failed++
			if gpu.IsFatal(err) {
				return err
			}
			s.logger.Printf("chunk %v skipped: %v", coord, err)
			continue
		}
		s.inflight = req
		started++
	}
}

func (s *Streamer) nextMissing() (ChunkCoord, bool) {
	for coord := range s.cursor.Remaining() {
		if s.index.Contains(coord) {
			continue
		}
		if s.inflight != nil && s.inflight.Coord == coord {
			continue
		}
		return coord, true
	}
	return ChunkCoord{}, false
}

// step advances the in-flight request as far as its fences allow and
// reports whether it is finished.
func (s *Streamer) step(block bool) (bool, error) {
	req := s.inflight
	for {
		if req.State == RequestComputeDone && !req.copying {
			if err := s.makeRoom(); err != nil {
				s.inflight = nil
				s.stats.Skipped++
				s.logger.Printf("chunk %v skipped: %v", req.Coord, err)
				return true, s.mesher.Abandon(req, err)
			}
		}

		progressed, err := s.mesher.Advance(req, block)
		if err != nil {
			s.inflight = nil
			s.stats.Failed++
			if gpu.IsFatal(err) {
				return true, fmt.Errorf("chunk %v: %w", req.Coord, err)
			}
			s.logger.Printf("chunk %v skipped: %v", req.Coord, err)
			return true, nil
		}

		switch req.State {
		case RequestEmpty, RequestCopied:
			s.inflight = nil
			if Chebyshev(req.Coord, s.center) > s.settings.EvictRadius() {
				// the viewer moved on while this chunk was in flight
				return true, s.mesher.Abandon(req, errors.New("out of range"))
			}
			if req.State == RequestEmpty {
				s.recordEmpty(req.Coord)
				return true, nil
			}
			h, err := s.cache(req.Coord, req.Entry)
			if err != nil {
				req.State, req.Err = RequestFailed, err
				s.logger.Printf("chunk %v skipped: %v", req.Coord, err)
				return true, nil
			}
			req.State, req.Slot = RequestCached, h
			return true, nil
		}
		if !progressed {
			return false, nil
		}
	}
}

// drain blocks until the in-flight request, if any, is finished.
func (s *Streamer) drain() error {
	for s.inflight != nil {
		if _, err := s.step(true); err != nil {
			return err
		}
	}
	return nil
}

// Close finishes outstanding work and releases every cached chunk.
func (s *Streamer) Close() error {
	err := s.drain()
	s.pool.ReleaseAll()
	for coord := range s.index.All() {
		s.index.Remove(coord)
	}
	return err
}

// Entries yields the cached chunks for drawing. See VertexCachePool.All
// for locking.
func (s *Streamer) Entries() iter.Seq[CacheEntry] { return s.pool.OccupiedEntries() }

// AppendEntries appends a snapshot of the cached chunks to dst.
func (s *Streamer) AppendEntries(dst []CacheEntry) []CacheEntry {
	return s.pool.AppendOccupied(dst)
}
