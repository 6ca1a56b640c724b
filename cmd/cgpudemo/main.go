// Command cgpudemo opens a window and draws a spinning triangle with a GPU
// timing overlay through the cgpu device layer.
//
// Settings come from a TOML or YAML file (see package config) that is
// watched while the demo runs; log level changes apply immediately.
//
//	cgpudemo -config cgpu.toml -frames 600
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gogpu/naga"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/backend/vulkan"
	"github.com/gogpu/cgpu/config"

	_ "github.com/gogpu/cgpu/backend/wgpu"
)

func init() {
	// glfw and presentation must stay on the main thread
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.String("config", "", "TOML or YAML settings file")
		frames     = flag.Int("frames", 0, "exit after this many frames (0 runs until the window closes)")
	)
	flag.Parse()

	level := new(slog.LevelVar)
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(log, level, *configPath, *frames); err != nil {
		log.Error("cgpudemo: failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.File, error) {
	if path == "" {
		f := config.Default()
		return &f, nil
	}
	return config.Load(path)
}

func run(log *slog.Logger, level *slog.LevelVar, configPath string, frames int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	l, _ := cfg.LogLevel()
	level.Set(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if configPath != "" {
		err := config.Watch(ctx, configPath, log, func(f *config.File, err error) {
			if err != nil {
				log.Warn("cgpudemo: config reload", "err", err)
				return
			}
			if l, err := f.LogLevel(); err == nil {
				level.Set(l)
			}
			log.Info("cgpudemo: config reloaded", "log_level", f.Debug.LogLevel)
		})
		if err != nil {
			return err
		}
	}

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw: %w", err)
	}
	defer glfw.Terminate()
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(int(cfg.Swapchain.Width), int(cfg.Swapchain.Height), "cgpu demo", nil, nil)
	if err != nil {
		return fmt.Errorf("glfw: %w", err)
	}
	defer window.Destroy()

	// the loader glfw found takes precedence over the system library
	cgpu.Register(cgpu.BackendVulkan, func() cgpu.Driver {
		return vulkan.New(vulkan.Config{ProcAddr: glfw.GetVulkanGetInstanceProcAddress(), AppName: "cgpudemo"})
	})

	a, err := newApp(log, cfg, window)
	if err != nil {
		return err
	}
	defer a.free()

	for n := 0; !window.ShouldClose() && (frames == 0 || n < frames); n++ {
		glfw.PollEvents()
		if err := a.frame(); err != nil {
			return err
		}
	}
	return a.dev.WaitIdle()
}

// compileSPIRV compiles WGSL for backends that only accept SPIR-V.
func compileSPIRV(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words, nil
}
