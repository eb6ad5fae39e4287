// Package viewer is the interactive front end: a window with a fly camera
// that streams terrain around itself and draws the vertex cache.
package viewer

import (
	"fmt"
	"log"
	"time"

	"voxel-terrain/internal/config"
	"voxel-terrain/internal/graphics"
	"voxel-terrain/internal/graphics/renderables/bounds"
	"voxel-terrain/internal/graphics/renderables/crosshair"
	"voxel-terrain/internal/graphics/renderables/hud"
	tr "voxel-terrain/internal/graphics/renderables/terrain"
	"voxel-terrain/internal/graphics/renderer"
	"voxel-terrain/internal/input"
	"voxel-terrain/internal/profiling"
	"voxel-terrain/internal/terrain"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	flySpeed         = 24.0 // world units per second
	sprintMultiplier = 4.0
	mouseSensitivity = 0.1
	slowFrame        = 16 * time.Millisecond
)

type App struct {
	window   *glfw.Window
	input    *input.InputManager
	settings *config.Settings
	streamer *terrain.Streamer
	logger   *log.Logger

	camera   *graphics.Camera
	renderer *renderer.Renderer
	terrain  *tr.Terrain
	bounds   *bounds.Bounds
	hud      *hud.HUD

	fpsLimiter *FPSLimiter
	lastTime   time.Time

	captured   bool
	firstMouse bool
	lastX      float64
	lastY      float64

	showProfiling bool
	frames        int
	lastTitle     time.Time
}

// NewApp builds the renderer for window and places the camera at spawn.
// The window's GL context must be current.
func NewApp(window *glfw.Window, settings *config.Settings, streamer *terrain.Streamer, spawn mgl32.Vec3, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	width, height := window.GetSize()
	camera := graphics.NewCamera(width, height)
	camera.Position = spawn
	camera.Pitch = -20
	camera.FOV = settings.FOV()

	terrainRenderer := tr.NewTerrain(streamer, settings.ShaderDir())
	boundsRenderer := bounds.NewBounds(streamer, settings.ShaderDir())
	fbWidth, fbHeight := window.GetFramebufferSize()
	overlay := hud.NewHUD(streamer, terrainRenderer, settings.ShaderDir(), fbWidth, fbHeight)
	r, err := renderer.NewRenderer(camera,
		terrainRenderer,
		boundsRenderer,
		crosshair.NewCrosshair(settings.ShaderDir()),
		overlay,
	)
	if err != nil {
		return nil, err
	}

	a := &App{
		window:     window,
		input:      input.NewInputManager(),
		settings:   settings,
		streamer:   streamer,
		logger:     logger,
		camera:     camera,
		renderer:   r,
		terrain:    terrainRenderer,
		bounds:     boundsRenderer,
		hud:        overlay,
		fpsLimiter: NewFPSLimiter(),
		lastTime:   time.Now(),
		lastTitle:  time.Now(),
	}
	a.setCaptured(true)
	SetupInputHandlers(a)
	return a, nil
}

// Run drives frames until the window closes or streaming fails fatally.
func (a *App) Run() error {
	for !a.window.ShouldClose() {
		if err := a.tick(); err != nil {
			return err
		}
	}
	return nil
}

// Dispose frees the renderer's GL objects. The streamer is owned by the caller.
func (a *App) Dispose() {
	a.renderer.Dispose()
}

func (a *App) tick() error {
	profiling.ResetFrame()
	startTick := time.Now()
	dt := startTick.Sub(a.lastTime).Seconds()
	a.lastTime = startTick

	glfw.PollEvents()
	a.handleActions()
	a.move(dt)

	if err := a.streamer.Update(a.camera.Position); err != nil {
		return fmt.Errorf("streaming: %w", err)
	}

	a.renderer.Render(dt)
	a.window.SwapBuffers()

	if d := time.Since(startTick); d > slowFrame {
		a.logger.Printf("slow frame: %v. top tasks: %s", d, profiling.TopN(5))
	}
	a.frames++
	if time.Since(a.lastTitle) >= time.Second {
		a.updateTitle()
	}

	a.input.PostUpdate()
	a.fpsLimiter.Wait(a.settings.FPSLimit())
	return nil
}

// handleActions runs the toggles bound to keys. G is the generation switch.
func (a *App) handleActions() {
	im := a.input
	if im.JustPressed(input.ActionQuit) {
		a.window.SetShouldClose(true)
	}
	if im.JustPressed(input.ActionToggleGeneration) {
		a.streamer.ToggleGeneration()
		a.updateTitle()
	}
	if im.JustPressed(input.ActionToggleWireframe) {
		a.terrain.Wireframe = !a.terrain.Wireframe
	}
	if im.JustPressed(input.ActionToggleBounds) {
		a.bounds.Visible = !a.bounds.Visible
	}
	if im.JustPressed(input.ActionToggleProfiling) {
		a.showProfiling = !a.showProfiling
		a.hud.ShowProfiling = a.showProfiling
	}
	if im.JustPressed(input.ActionToggleCursor) {
		a.setCaptured(!a.captured)
	}
}

func (a *App) move(dt float64) {
	im := a.input
	speed := float32(flySpeed * dt)
	if im.IsActive(input.ActionSprint) {
		speed *= sprintMultiplier
	}
	a.camera.Move(
		im.Axis(input.ActionMoveBackward, input.ActionMoveForward)*speed,
		im.Axis(input.ActionMoveLeft, input.ActionMoveRight)*speed,
		im.Axis(input.ActionMoveDown, input.ActionMoveUp)*speed,
	)
}

func (a *App) look(xpos, ypos float64) {
	if !a.captured {
		return
	}
	if a.firstMouse {
		a.lastX, a.lastY = xpos, ypos
		a.firstMouse = false
	}
	dx := (xpos - a.lastX) * mouseSensitivity
	dy := (a.lastY - ypos) * mouseSensitivity
	a.lastX, a.lastY = xpos, ypos
	a.camera.Look(float32(dx), float32(dy))
}

func (a *App) setCaptured(captured bool) {
	a.captured = captured
	if captured {
		a.window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
		a.firstMouse = true
	} else {
		a.window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	}
}

// updateTitle shows frame rate and streaming state in the title bar, and
// logs the slowest tasks when profiling output is on.
func (a *App) updateTitle() {
	elapsed := time.Since(a.lastTitle).Seconds()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(a.frames) / elapsed
	}
	a.frames = 0
	a.lastTitle = time.Now()

	gen := "on"
	if !a.streamer.Generating() {
		gen = "paused"
	}
	drawn, culled := a.terrain.Stats()
	st := a.streamer.Stats()
	a.window.SetTitle(fmt.Sprintf("voxel-terrain | %.0f fps | generation %s [G] | %d drawn, %d culled | %s",
		fps, gen, drawn, culled, st))
	if a.showProfiling {
		a.logger.Printf("frame: %s | %s", profiling.TopN(8), profiling.Counters())
	}
}

// RefreshRender repaints during window resizes.
func (a *App) RefreshRender() {
	a.renderer.Render(0)
	a.window.SwapBuffers()
}
