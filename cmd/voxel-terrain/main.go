// Command voxel-terrain streams marching-cubes terrain around a fly camera,
// or around a scripted path with -headless.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"runtime"

	"voxel-terrain/internal/config"
	"voxel-terrain/internal/density"
	"voxel-terrain/internal/gpu"
	"voxel-terrain/internal/gpu/opengl"
	"voxel-terrain/internal/gpu/software"
	"voxel-terrain/internal/gpu/vulkan"
	"voxel-terrain/internal/terrain"
	"voxel-terrain/internal/viewer"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"
)

func init() {
	runtime.LockOSThread()
}

var (
	configPath = flag.String("config", "config.yaml", "settings file; defaults are used when it does not exist")
	backend    = flag.String("backend", "", "override the GPU backend: software, vulkan or opengl")
	headless   = flag.Bool("headless", false, "stream along -path without opening a window")
	path       = flag.String("path", "0,40,0 96,40,0 96,40,96", "headless viewer positions, space separated x,y,z")
	watch      = flag.Bool("watch", true, "reload streaming settings when the config file changes")
)

func main() {
	flag.Parse()
	defer closer.Close()

	logger := log.New(os.Stdout, "[voxel-terrain] ", log.LstdFlags|log.Lmicroseconds)

	settings, err := loadSettings(*configPath, logger)
	if err != nil {
		closer.Fatalln(err)
	}
	if *backend != "" {
		settings.SetBackend(*backend)
	}
	if *watch {
		ctx, cancel := context.WithCancel(context.Background())
		closer.Bind(cancel)
		if err := config.Watch(ctx, *configPath, settings, logger); err != nil {
			logger.Printf("config watch disabled: %v", err)
		}
	}

	field, err := density.New(settings.Field(), settings.Terrain())
	if err != nil {
		closer.Fatalln(err)
	}

	if *headless {
		positions, err := parsePath(*path)
		if err != nil {
			closer.Fatalln(err)
		}
		err = withDevice(settings, field, false, func(dev gpu.Device, _ *glfw.Window) error {
			_, err := runHeadless(dev, settings, positions, logger)
			return err
		})
		if err != nil {
			closer.Fatalln(err)
		}
		return
	}

	err = withDevice(settings, field, true, func(dev gpu.Device, window *glfw.Window) error {
		return runViewer(dev, window, settings, field, logger)
	})
	if err != nil {
		closer.Fatalln(err)
	}
}

func loadSettings(path string, logger *log.Logger) (*config.Settings, error) {
	s, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Printf("%s not found, using defaults", path)
		return config.Default(), nil
	}
	return s, err
}

// withDevice creates the configured backend, runs fn and tears everything
// down. Every backend but software needs glfw: for the Vulkan loader or for
// a GL context. The window is created before the device so the OpenGL
// backend shares its context; headless OpenGL runs in a hidden one and fn
// gets a nil window.
func withDevice(settings *config.Settings, field density.Field, interactive bool, fn func(gpu.Device, *glfw.Window) error) error {
	name := settings.Backend()
	var window *glfw.Window
	if interactive || name != config.BackendSoftware {
		if err := glfw.Init(); err != nil {
			return fmt.Errorf("glfw: %w", err)
		}
		defer glfw.Terminate()
	}
	if interactive || name == config.BackendOpenGL {
		if !interactive {
			glfw.WindowHint(glfw.Visible, glfw.False)
		}
		w, h := settings.WindowSize()
		win, err := viewer.SetupWindow(w, h, "voxel-terrain")
		if err != nil {
			return err
		}
		defer win.Destroy()
		if interactive {
			window = win
		}
	}

	var dev gpu.Device
	switch name {
	case config.BackendSoftware:
		dev = software.New(field, software.Options{Workers: settings.Workers()})
	case config.BackendVulkan:
		if err := vulkan.Init(); err != nil {
			return err
		}
		d, err := vulkan.New(field, vulkan.Options{AppName: "voxel-terrain", ShaderDir: settings.ShaderDir()})
		if err != nil {
			return fmt.Errorf("vulkan backend: %w", err)
		}
		dev = d
	case config.BackendOpenGL:
		d, err := opengl.New(field, opengl.Options{ShaderDir: settings.ShaderDir()})
		if err != nil {
			return fmt.Errorf("opengl backend: %w", err)
		}
		dev = d
	default:
		return fmt.Errorf("unknown backend %q", name)
	}
	defer dev.Close()
	return fn(dev, window)
}

func runViewer(dev gpu.Device, window *glfw.Window, settings *config.Settings, field density.Field, logger *log.Logger) error {
	logger.Printf("device %s, load radius %d, pool %d", dev.Name(), settings.LoadRadius(), settings.PoolCapacity())
	streamer := terrain.NewStreamer(dev, settings, logger)
	defer streamer.Close()

	app, err := viewer.NewApp(window, settings, streamer, spawnPoint(field), logger)
	if err != nil {
		return err
	}
	defer app.Dispose()
	return app.Run()
}

// spawnPoint puts the camera above the highest solid ground of a terrain
// field, or outside the test shapes.
func spawnPoint(f density.Field) mgl32.Vec3 {
	if t, ok := f.(*density.Terrain); ok {
		return mgl32.Vec3{0, t.MaxSolidHeight() + 8, 0}
	}
	return mgl32.Vec3{16, 16, 64}
}
