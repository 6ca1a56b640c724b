// Package config loads device layer settings from a TOML or YAML file and
// turns them into cgpu options and descriptors.
//
// The format is picked by extension: .toml, or .yaml and .yml. Keys left out
// of the file keep the values of Default.
//
//	backend = "vulkan"
//
//	[debug]
//	layer = true
//	log_level = "debug"
//
//	[swapchain]
//	width = 1280
//	height = 720
//	vsync = true
//	format = "bgra8unorm"
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for files that are neither TOML nor YAML.
var ErrUnknownFormat = errors.New("config: unknown file format")

// Debug holds validation and diagnostics settings.
type Debug struct {
	Layer         bool   `toml:"layer" yaml:"layer"`
	GPUValidation bool   `toml:"gpu_validation" yaml:"gpu_validation"`
	SetNames      bool   `toml:"set_names" yaml:"set_names"`
	LogLevel      string `toml:"log_level" yaml:"log_level"`
}

// Device selects the adapter and the queues to create.
type Device struct {
	Name               string   `toml:"name" yaml:"name"`
	Adapter            int      `toml:"adapter" yaml:"adapter"`
	GraphicsQueues     uint32   `toml:"graphics_queues" yaml:"graphics_queues"`
	ComputeQueues      uint32   `toml:"compute_queues" yaml:"compute_queues"`
	TransferQueues     uint32   `toml:"transfer_queues" yaml:"transfer_queues"`
	ThreadSafeQueues   bool     `toml:"thread_safe_queues" yaml:"thread_safe_queues"`
	Extensions         []string `toml:"extensions" yaml:"extensions"`
	InstanceExtensions []string `toml:"instance_extensions" yaml:"instance_extensions"`
	InstanceLayers     []string `toml:"instance_layers" yaml:"instance_layers"`
}

// Swapchain describes the presentation surface.
type Swapchain struct {
	Width          uint32 `toml:"width" yaml:"width"`
	Height         uint32 `toml:"height" yaml:"height"`
	ImageCount     uint32 `toml:"image_count" yaml:"image_count"`
	FramesInFlight uint32 `toml:"frames_in_flight" yaml:"frames_in_flight"`
	Vsync          bool   `toml:"vsync" yaml:"vsync"`
	Format         string `toml:"format" yaml:"format"`
}

// File is the content of a configuration file.
type File struct {
	Backend   string    `toml:"backend" yaml:"backend"`
	Profile   bool      `toml:"profile" yaml:"profile"`
	Debug     Debug     `toml:"debug" yaml:"debug"`
	Device    Device    `toml:"device" yaml:"device"`
	Swapchain Swapchain `toml:"swapchain" yaml:"swapchain"`
}

// Default returns the settings used for keys a file leaves out.
func Default() File {
	return File{
		Debug: Debug{LogLevel: "info"},
		Device: Device{
			Name:           "cgpu",
			GraphicsQueues: 1,
		},
		Swapchain: Swapchain{
			Width:          1280,
			Height:         720,
			ImageCount:     3,
			FramesInFlight: 2,
			Vsync:          true,
			Format:         "BGRA8Unorm",
		},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(filepath.Ext(path), data)
}

// Parse decodes data in the format named by ext (".toml", ".yaml", ".yml").
func Parse(ext string, data []byte) (*File, error) {
	f := Default()
	var err error
	switch strings.ToLower(ext) {
	case ".toml":
		err = toml.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the values that cannot be checked by the device layer.
func (f *File) Validate() error {
	if _, err := f.LogLevel(); err != nil {
		return err
	}
	if _, err := f.SwapchainFormat(); err != nil {
		return err
	}
	if f.Device.Adapter < 0 {
		return fmt.Errorf("config: negative adapter index %d", f.Device.Adapter)
	}
	if f.Device.GraphicsQueues+f.Device.ComputeQueues+f.Device.TransferQueues == 0 {
		return errors.New("config: no queues requested")
	}
	if f.Swapchain.FramesInFlight == 0 {
		return errors.New("config: frames_in_flight must be at least 1")
	}
	return nil
}

// LogLevel parses Debug.LogLevel.
func (f *File) LogLevel() (slog.Level, error) {
	var l slog.Level
	if f.Debug.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(f.Debug.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}

// SwapchainFormat parses Swapchain.Format, ignoring case. An empty format
// is undefined and lets the swapchain pick.
func (f *File) SwapchainFormat() (gputypes.TextureFormat, error) {
	if f.Swapchain.Format == "" {
		return gputypes.TextureFormatUndefined, nil
	}
	for tf := gputypes.TextureFormatUndefined; tf <= gputypes.TextureFormatASTC12x12UnormSrgb; tf++ {
		if strings.EqualFold(tf.String(), f.Swapchain.Format) {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("config: unknown swapchain format %q", f.Swapchain.Format)
}

// InstanceOptions returns the options for cgpu.CreateInstance. log may be
// nil.
func (f *File) InstanceOptions(log *slog.Logger) []cgpu.InstanceOption {
	opts := []cgpu.InstanceOption{
		cgpu.WithDebugLayer(f.Debug.Layer),
		cgpu.WithGPUBasedValidation(f.Debug.GPUValidation),
		cgpu.WithSetName(f.Debug.SetNames),
	}
	if log != nil {
		opts = append(opts, cgpu.WithLogger(log))
	}
	if len(f.Device.InstanceExtensions) > 0 {
		opts = append(opts, cgpu.WithInstanceExtensions(f.Device.InstanceExtensions...))
	}
	if len(f.Device.InstanceLayers) > 0 {
		opts = append(opts, cgpu.WithInstanceLayers(f.Device.InstanceLayers...))
	}
	return opts
}

// DeviceDescriptor returns the device request.
func (f *File) DeviceDescriptor() *cgpu.DeviceDescriptor {
	d := &cgpu.DeviceDescriptor{
		Name:             f.Device.Name,
		ThreadSafeQueues: f.Device.ThreadSafeQueues,
		Extensions:       f.Device.Extensions,
	}
	for _, g := range []cgpu.QueueGroup{
		{Type: cgpu.QueueGraphics, Count: f.Device.GraphicsQueues},
		{Type: cgpu.QueueCompute, Count: f.Device.ComputeQueues},
		{Type: cgpu.QueueTransfer, Count: f.Device.TransferQueues},
	} {
		if g.Count > 0 {
			d.Queues = append(d.Queues, g)
		}
	}
	return d
}

// Adapter picks the configured adapter of inst.
func (f *File) Adapter(inst *cgpu.Instance) (*cgpu.Adapter, error) {
	as := inst.Adapters()
	if f.Device.Adapter >= len(as) {
		return nil, fmt.Errorf("config: adapter %d of %d", f.Device.Adapter, len(as))
	}
	return as[f.Device.Adapter], nil
}

// SwapchainDescriptor returns the swapchain request for surface, presented
// from queues. The format was checked by Validate.
func (f *File) SwapchainDescriptor(surface *cgpu.Surface, queues ...*cgpu.Queue) *cgpu.SwapchainDescriptor {
	format, _ := f.SwapchainFormat()
	return &cgpu.SwapchainDescriptor{
		Surface:       surface,
		PresentQueues: queues,
		ImageCount:    f.Swapchain.ImageCount,
		Width:         f.Swapchain.Width,
		Height:        f.Swapchain.Height,
		EnableVsync:   f.Swapchain.Vsync,
		Format:        format,
	}
}
