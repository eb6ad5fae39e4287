package config

import (
	"fmt"
	"os"
	"time"

	"voxel-terrain/internal/density"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of Settings.
type File struct {
	Backend   string        `yaml:"backend"`
	ShaderDir string        `yaml:"shader_dir"`
	Field     string        `yaml:"field"`
	Workers   int           `yaml:"workers"`
	Streaming StreamingFile `yaml:"streaming"`
	Terrain   TerrainFile   `yaml:"terrain"`
	Window    WindowFile    `yaml:"window"`
}

type StreamingFile struct {
	LoadRadius       int           `yaml:"load_radius"`
	EvictHysteresis  int           `yaml:"evict_hysteresis"`
	MaxChunksPerTick int           `yaml:"max_chunks_per_tick"`
	PoolCapacity     int           `yaml:"pool_capacity"`
	FenceTimeout     time.Duration `yaml:"fence_timeout"`
	Polling          bool          `yaml:"polling"`
	Generating       bool          `yaml:"generating"`
}

type TerrainFile struct {
	Seed             uint32  `yaml:"seed"`
	Scale            float32 `yaml:"scale"`
	BaseHeight       float32 `yaml:"base_height"`
	GradientStrength float32 `yaml:"gradient_strength"`
	Octaves          int     `yaml:"octaves"`
	Persistence      float32 `yaml:"persistence"`
	Lacunarity       float32 `yaml:"lacunarity"`
}

type WindowFile struct {
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	FOV      float32 `yaml:"fov"`
	FPSLimit int     `yaml:"fps_limit"`
}

// File returns the current settings in file form.
func (s *Settings) File() File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return File{
		Backend:   s.backend,
		ShaderDir: s.shaderDir,
		Field:     s.field,
		Workers:   s.workers,
		Streaming: StreamingFile{
			LoadRadius:       s.loadRadius,
			EvictHysteresis:  s.evictHysteresis,
			MaxChunksPerTick: s.maxChunksPerTick,
			PoolCapacity:     s.poolCapacity,
			FenceTimeout:     s.fenceTimeout,
			Polling:          s.polling,
			Generating:       s.generating,
		},
		Terrain: TerrainFile(s.terrain),
		Window: WindowFile{
			Width:    s.windowWidth,
			Height:   s.windowHeight,
			FOV:      s.fov,
			FPSLimit: s.fpsLimit,
		},
	}
}

// Apply replaces every setting with the values in f, clamped.
func (s *Settings) Apply(f File) {
	s.SetBackend(f.Backend)
	s.SetPoolCapacity(f.Streaming.PoolCapacity)
	s.applyStreaming(f.Streaming)

	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ShaderDir != "" {
		s.shaderDir = f.ShaderDir
	}
	if f.Field != "" {
		s.field = f.Field
	}
	if f.Workers > 0 {
		s.workers = f.Workers
	}
	s.terrain = density.TerrainParams(f.Terrain)
	s.windowWidth = clamp(f.Window.Width, 320, 7680)
	s.windowHeight = clamp(f.Window.Height, 240, 4320)
	s.fov = f.Window.FOV
	if s.fov < 30 || s.fov > 120 {
		s.fov = 60
	}
	s.fpsLimit = clamp(f.Window.FPSLimit, 0, 1000)
}

// applyStreaming updates the fields that may change while running.
func (s *Settings) applyStreaming(f StreamingFile) {
	s.SetLoadRadius(f.LoadRadius)
	s.SetEvictHysteresis(f.EvictHysteresis)
	s.SetMaxChunksPerTick(f.MaxChunksPerTick)
	s.SetFenceTimeout(f.FenceTimeout)
	s.SetPolling(f.Polling)
	s.SetGenerating(f.Generating)
}

func decode(path string, into *File) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Load reads a YAML settings file. Keys missing from the file keep their
// default values.
func Load(path string) (*Settings, error) {
	s := Default()
	f := s.File()
	if err := decode(path, &f); err != nil {
		return nil, err
	}
	s.Apply(f)
	return s, nil
}

// Reload re-reads path and applies its streaming section. Backend, pool
// capacity and terrain parameters only take effect on restart.
func (s *Settings) Reload(path string) error {
	f := s.File()
	if err := decode(path, &f); err != nil {
		return err
	}
	s.applyStreaming(f.Streaming)
	return nil
}

// Save writes the settings as YAML.
func (s *Settings) Save(path string) error {
	raw, err := yaml.Marshal(s.File())
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
