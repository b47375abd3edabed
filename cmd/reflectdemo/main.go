// Command reflectdemo renders a sequence of normal-mapped reflection frames
// to PNG files.
//
// Each frame advances the environment shift by (-dx, -dy). 32-bit frames are
// rendered in parallel, one destination per frame. 16-bit frames go through
// normalmap.Renderer and may be offloaded.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"
	"github.com/SpookyIluha/normalmap-ucodetest/backend/opencl"
	gpuimpl "github.com/SpookyIluha/normalmap-ucodetest/internal/gpu"
	"github.com/SpookyIluha/normalmap-ucodetest/internal/synth"
)

type config struct {
	size, strength, filter int
	frames, dx, dy         int
	depth                  int
	outDir                 string
	normalPath, envPath    string
	offload                string
	workers                int
	verbose                bool
}

func main() {
	var cfg config
	flag.IntVar(&cfg.size, "size", 5, "log2 of the destination side")
	flag.IntVar(&cfg.strength, "strength", 5, "normal strength (0-8)")
	flag.IntVar(&cfg.filter, "filter", 0, "log2 environment magnification (0 = unfiltered)")
	flag.IntVar(&cfg.frames, "frames", 8, "number of frames")
	flag.IntVar(&cfg.dx, "dx", 1, "horizontal shift per frame")
	flag.IntVar(&cfg.dy, "dy", 1, "vertical shift per frame")
	flag.IntVar(&cfg.depth, "depth", 16, "texel depth: 16 or 32")
	flag.StringVar(&cfg.outDir, "out", "frames", "output directory")
	flag.StringVar(&cfg.normalPath, "normal", "", "normal map PNG (default: procedural waves)")
	flag.StringVar(&cfg.envPath, "env", "", "environment map PNG (default: procedural checker)")
	flag.StringVar(&cfg.offload, "offload", "none", "offloader for 16-bit frames: none, cpu, gpu, opencl")
	flag.IntVar(&cfg.workers, "workers", runtime.GOMAXPROCS(0), "parallel workers for frames and CPU row bands")
	flag.BoolVar(&cfg.verbose, "v", false, "verbose logging")
	flag.Parse()

	if cfg.verbose {
		normalmap.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	normal, envImg, err := loadAssets(cfg)
	if err != nil {
		log.Fatalf("Failed to load assets: %v", err)
	}

	start := time.Now()
	switch cfg.depth {
	case 32:
		err = render32(cfg, normal, envImg)
	case 16:
		err = render16(cfg, normal, envImg)
	default:
		err = fmt.Errorf("unsupported depth %d", cfg.depth)
	}
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}
	log.Printf("Rendered %d frames (%dx%d) to %s in %v\n",
		cfg.frames, 1<<cfg.size, 1<<cfg.size, cfg.outDir, time.Since(start))
}

// loadAssets returns the normal map and the environment image, magnified by
// 2^filter when filtering is requested.
func loadAssets(cfg config) ([]normalmap.Texel32, image.Image, error) {
	var normal []normalmap.Texel32
	if cfg.normalPath != "" {
		img, err := readPNG(cfg.normalPath)
		if err != nil {
			return nil, nil, err
		}
		var size int
		normal, size, err = normalmap.NormalMapFromImage(img)
		if err != nil {
			return nil, nil, err
		}
		if size != cfg.size {
			return nil, nil, fmt.Errorf("normal map is 2^%d wide, -size is %d", size, cfg.size)
		}
	} else {
		normal = synth.Waves(cfg.size, 3, 0.6)
	}

	var env image.Image
	if cfg.envPath != "" {
		img, err := readPNG(cfg.envPath)
		if err != nil {
			return nil, nil, err
		}
		env = img
	} else {
		env = synth.Checker(1<<cfg.size, max(1<<cfg.size/8, 1))
	}
	if cfg.filter > 0 {
		magnified, err := normalmap.MagnifyEnvironment(env, cfg.filter, nil)
		if err != nil {
			return nil, nil, err
		}
		env = magnified
	}
	return normal, env, nil
}

func render32(cfg config, normal []normalmap.Texel32, envImg image.Image) error {
	env, err := normalmap.Env32FromImage(envImg)
	if err != nil {
		return err
	}
	variant := normalmap.Opt32
	if cfg.filter > 0 {
		variant = normalmap.Filt32
	}

	var g errgroup.Group
	g.SetLimit(max(cfg.workers, 1))
	for f := 0; f < cfg.frames; f++ {
		g.Go(func() error {
			dst := make([]normalmap.Texel32, len(normal))
			p := normalmap.Params{
				Size: cfg.size, FilterFactor: cfg.filter,
				ShiftX: -f * cfg.dx, ShiftY: -f * cfg.dy, Strength: cfg.strength,
			}
			if err := normalmap.Reflect(variant, normal, env, dst, p); err != nil {
				return fmt.Errorf("frame %d: %w", f, err)
			}
			img, err := normalmap.Image32(dst, cfg.size)
			if err != nil {
				return fmt.Errorf("frame %d: %w", f, err)
			}
			return writePNG(framePath(cfg.outDir, f), img)
		})
	}
	return g.Wait()
}

func render16(cfg config, normal []normalmap.Texel32, envImg image.Image) error {
	env, err := normalmap.Env16FromImage(envImg)
	if err != nil {
		return err
	}
	if err := registerOffloader(cfg.offload); err != nil {
		return err
	}
	defer normalmap.UnregisterOffloader()

	opts := []normalmap.RendererOption{
		normalmap.WithFilterFactor(cfg.filter),
		normalmap.WithWorkers(cfg.workers),
	}
	if cfg.offload == "none" {
		opts = append(opts, normalmap.WithCPUOnly())
	}
	r, err := normalmap.NewRenderer(normal, env, cfg.size, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	// Frames share the renderer's destination; only encoding runs in parallel.
	var g errgroup.Group
	g.SetLimit(max(cfg.workers, 1))
	ctx := context.Background()
	for f := 0; f < cfg.frames; f++ {
		frameStart := time.Now()
		dst, err := r.Render(ctx, -f*cfg.dx, -f*cfg.dy, cfg.strength)
		if err != nil {
			_ = g.Wait()
			return fmt.Errorf("frame %d: %w", f, err)
		}
		normalmap.Logger().Debug("frame rendered",
			"frame", f, "path", r.LastPath(), "us", time.Since(frameStart).Microseconds())
		img, err := normalmap.Image16(dst, cfg.size)
		if err != nil {
			_ = g.Wait()
			return fmt.Errorf("frame %d: %w", f, err)
		}
		g.Go(func() error {
			return writePNG(framePath(cfg.outDir, f), img)
		})
	}
	return g.Wait()
}

func registerOffloader(name string) error {
	switch name {
	case "none":
		return nil
	case "cpu":
		return normalmap.RegisterOffloader(normalmap.NewCPUOffloader(0))
	case "gpu":
		return normalmap.RegisterOffloader(gpuimpl.NewReflectOffloader())
	case "opencl":
		return opencl.Register()
	default:
		return fmt.Errorf("unknown offloader %q", name)
	}
}

func framePath(dir string, frame int) string {
	return filepath.Join(dir, fmt.Sprintf("frame_%04d.png", frame))
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
