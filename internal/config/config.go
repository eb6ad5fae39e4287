package config

import (
	"runtime"
	"sync"
	"time"

	"voxel-terrain/internal/density"
)

// Backend names accepted by Settings.SetBackend.
const (
	BackendSoftware = "software"
	BackendVulkan   = "vulkan"
	BackendOpenGL   = "opengl"
)

// Settings holds the runtime configuration. It is created once by the
// entry point and passed to every component that needs it; all accessors
// are safe for concurrent use so the file watcher can update it live.
type Settings struct {
	mu sync.RWMutex

	backend   string
	shaderDir string
	field     string
	terrain   density.TerrainParams
	workers   int

	loadRadius       int // in chunks, inclusive
	evictHysteresis  int // in chunks beyond loadRadius
	maxChunksPerTick int // 0 = unbounded
	poolCapacity     int
	fenceTimeout     time.Duration
	polling          bool
	generating       bool

	windowWidth  int
	windowHeight int
	fov          float32
	fpsLimit     int
}

// Default returns settings matching a five-shell streaming radius and a
// 3000-slot vertex cache.
func Default() *Settings {
	return &Settings{
		backend:          BackendSoftware,
		shaderDir:        "assets/shaders",
		field:            density.KindTerrain,
		terrain:          density.DefaultTerrainParams(),
		workers:          max(runtime.NumCPU(), 1),
		loadRadius:       4,
		evictHysteresis:  2,
		maxChunksPerTick: 0,
		poolCapacity:     3000,
		fenceTimeout:     2 * time.Second,
		generating:       true,
		windowWidth:      900,
		windowHeight:     600,
		fov:              60,
		fpsLimit:         120,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Backend returns the GPU backend name
func (s *Settings) Backend() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// SetBackend selects the GPU backend. Unknown names fall back to software.
func (s *Settings) SetBackend(name string) {
	switch name {
	case BackendSoftware, BackendVulkan, BackendOpenGL:
	default:
		name = BackendSoftware
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = name
}

// ShaderDir returns the directory holding compiled and source shaders
func (s *Settings) ShaderDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shaderDir
}

// Field returns the density field kind
func (s *Settings) Field() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.field
}

// Terrain returns the terrain field parameters
func (s *Settings) Terrain() density.TerrainParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terrain
}

// Workers returns the goroutine budget of the software backend
func (s *Settings) Workers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workers
}

// LoadRadius returns the streaming radius in chunks
func (s *Settings) LoadRadius() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadRadius
}

// SetLoadRadius sets the streaming radius in chunks
func (s *Settings) SetLoadRadius(r int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadRadius = clamp(r, 0, 16)
}

// EvictHysteresis returns how far past the load radius chunks are kept
func (s *Settings) EvictHysteresis() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evictHysteresis
}

// SetEvictHysteresis sets how far past the load radius chunks are kept
func (s *Settings) SetEvictHysteresis(h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictHysteresis = clamp(h, 0, 8)
}

// EvictRadius returns the distance past which chunks are evicted
func (s *Settings) EvictRadius() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadRadius + s.evictHysteresis
}

// MaxChunksPerTick returns the per-update generation budget, 0 = unbounded
func (s *Settings) MaxChunksPerTick() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxChunksPerTick
}

// SetMaxChunksPerTick sets the per-update generation budget
func (s *Settings) SetMaxChunksPerTick(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxChunksPerTick = clamp(n, 0, 4096)
}

// PoolCapacity returns the number of vertex cache slots
func (s *Settings) PoolCapacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poolCapacity
}

// SetPoolCapacity sets the number of vertex cache slots. Only read at startup.
func (s *Settings) SetPoolCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolCapacity = clamp(n, 1, 1<<16)
}

// FenceTimeout returns how long a fence may stay unsignaled before the device is considered lost
func (s *Settings) FenceTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fenceTimeout
}

// SetFenceTimeout sets the fence timeout
func (s *Settings) SetFenceTimeout(d time.Duration) {
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fenceTimeout = d
}

// Polling reports whether meshing requests are polled instead of waited on
func (s *Settings) Polling() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.polling
}

// SetPolling switches between polled and blocking meshing
func (s *Settings) SetPolling(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polling = enabled
}

// Generating reports whether chunk generation is enabled
func (s *Settings) Generating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generating
}

// SetGenerating enables or disables chunk generation
func (s *Settings) SetGenerating(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = enabled
}

// WindowSize returns the viewer window size in pixels
func (s *Settings) WindowSize() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windowWidth, s.windowHeight
}

// FOV returns the vertical field of view in degrees
func (s *Settings) FOV() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fov
}

// FPSLimit returns the frame cap, 0 = uncapped
func (s *Settings) FPSLimit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fpsLimit
}
