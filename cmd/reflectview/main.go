// Command reflectview shows a normal-mapped reflection in a window.
//
// Arrow keys move the environment shift, -/+ change the strength, and F
// toggles offloading. The destination map is tiled across the window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"
	"github.com/SpookyIluha/normalmap-ucodetest/backend/opencl"
	_ "github.com/SpookyIluha/normalmap-ucodetest/gpu" // registers the wgpu offloader
	"github.com/SpookyIluha/normalmap-ucodetest/internal/synth"
)

var (
	sizeFlag     = flag.Int("size", 5, "log2 of the destination side (3-9 for offload)")
	strengthFlag = flag.Int("strength", 5, "initial normal strength (0-8)")
	widthFlag    = flag.Int("width", 640, "window width")
	heightFlag   = flag.Int("height", 480, "window height")
	openCLFlag   = flag.Bool("opencl", false, "use the OpenCL offloader instead of wgpu")
	verboseFlag  = flag.Bool("v", false, "verbose logging")
)

type viewer struct {
	renderer *normalmap.Renderer
	cpu      *normalmap.Renderer
	size     int

	shiftX, shiftY int
	strength       int
	useOffload     bool

	tile      *ebiten.Image
	pixels    []byte
	lastFrame time.Duration
	lastPath  string
	lastErr   error
	width     int
	height    int
}

func newViewer(size, strength, width, height int) (*viewer, error) {
	n := 1 << size
	normal := synth.Waves(size, 2, 0.8)
	env, err := normalmap.Env16FromImage(synth.Checker(n, max(n/4, 1)))
	if err != nil {
		return nil, err
	}
	r, err := normalmap.NewRenderer(normal, env, size)
	if err != nil {
		return nil, err
	}
	cpu, err := normalmap.NewRenderer(normal, env, size,
		normalmap.WithCPUOnly(), normalmap.WithWorkers(runtime.GOMAXPROCS(0)))
	if err != nil {
		return nil, err
	}
	return &viewer{
		renderer:   r,
		cpu:        cpu,
		size:       size,
		strength:   strength,
		useOffload: true,
		tile:       ebiten.NewImage(n, n),
		pixels:     make([]byte, 4*n*n),
		width:      width,
		height:     height,
	}, nil
}

func (v *viewer) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		v.shiftX--
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		v.shiftX++
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		v.shiftY--
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		v.shiftY++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyMinus) || inpututil.IsKeyJustPressed(ebiten.KeyKPSubtract) {
		v.strength = max(v.strength-1, 0)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyKPAdd) {
		v.strength = min(v.strength+1, normalmap.MaxStrength)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF) {
		v.useOffload = !v.useOffload
	}

	r := v.cpu
	if v.useOffload {
		r = v.renderer
	}
	start := time.Now()
	dst, err := r.Render(context.Background(), v.shiftX, v.shiftY, v.strength)
	v.lastFrame = time.Since(start)
	v.lastErr = err
	if err != nil {
		return nil
	}
	v.lastPath = r.LastPath()
	for i, t := range dst {
		v.pixels[i*4], v.pixels[i*4+1], v.pixels[i*4+2], v.pixels[i*4+3] = t.RGBA()
	}
	v.tile.WritePixels(v.pixels)
	return nil
}

func (v *viewer) Draw(screen *ebiten.Image) {
	n := 1 << v.size
	for y := 0; y < v.height; y += n {
		for x := 0; x < v.width; x += n {
			op := &ebiten.DrawImageOptions{}
			op.GeoM.Translate(float64(x), float64(y))
			screen.DrawImage(v.tile, op)
		}
	}

	msg := fmt.Sprintf("shift %d,%d  strength %d  path %s  %dus  FPS %.0f",
		v.shiftX, v.shiftY, v.strength, v.lastPath, v.lastFrame.Microseconds(), ebiten.ActualFPS())
	if v.lastErr != nil {
		msg += "\nerror: " + v.lastErr.Error()
	}
	ebitenutil.DebugPrint(screen, msg)
}

func (v *viewer) Layout(_, _ int) (int, int) {
	return v.width, v.height
}

func main() {
	flag.Parse()
	if *verboseFlag {
		normalmap.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if *openCLFlag {
		if err := opencl.Register(); err != nil {
			log.Printf("OpenCL offloader unavailable: %v", err)
		}
	}
	defer normalmap.UnregisterOffloader()

	v, err := newViewer(*sizeFlag, *strengthFlag, *widthFlag, *heightFlag)
	if err != nil {
		log.Fatalf("Failed to create viewer: %v", err)
	}
	ebiten.SetWindowSize(v.width, v.height)
	ebiten.SetWindowTitle("Normal-mapped reflection")
	if err := ebiten.RunGame(v); err != nil {
		log.Fatalf("Viewer stopped: %v", err)
	}
}
