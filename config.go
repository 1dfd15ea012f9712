// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that is written as a string
// (e.g., "250ms") in configuration files.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// The strings "none" and "-1" mean no timeout.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "none" || s == "-1" {
		*d = -1
		return nil
	}
	x, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("rhi: invalid duration %q: %w", s, err)
	}
	*d = Duration(x)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Present modes.
const (
	PresentFIFO    = "fifo"
	PresentMailbox = "mailbox"
)

// Config configures a Device.
type Config struct {
	// Backend selects the driver whose name contains
	// this string, ignoring case.
	// If empty, the first registered driver that opens
	// successfully is used.
	Backend string `toml:"backend" yaml:"backend"`
	// FramesInFlight is the number of frames of an
	// offscreen Device.
	// Devices that present use the swapchain's image
	// count instead.
	FramesInFlight int `toml:"frames_in_flight" yaml:"frames_in_flight"`
	// ImageCount is the number of swapchain images
	// requested. The driver may clamp it.
	ImageCount int `toml:"image_count" yaml:"image_count"`
	// DescBatch is the number of bind groups that a
	// bind group layout's pool grows by.
	DescBatch int `toml:"desc_batch" yaml:"desc_batch"`
	// SlabCap is the slab capacity of the allocators
	// that store bind groups and commands.
	SlabCap int `toml:"slab_cap" yaml:"slab_cap"`
	// AcquireTimeout bounds the wait for a swapchain
	// image when acquiring with a zero timeout.
	AcquireTimeout Duration `toml:"acquire_timeout" yaml:"acquire_timeout"`
	// FenceTimeout bounds the wait for the GPU to
	// finish a frame when beginning one with a zero
	// timeout.
	FenceTimeout Duration `toml:"fence_timeout" yaml:"fence_timeout"`
	// ResetSingleCmd requests command pools that can
	// free single command buffers.
	ResetSingleCmd bool `toml:"reset_single_cmd" yaml:"reset_single_cmd"`
	// PresentMode is either "mailbox" or "fifo".
	PresentMode string `toml:"present_mode" yaml:"present_mode"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FramesInFlight: 2,
		ImageCount:     2,
		DescBatch:      16,
		SlabCap:        64,
		AcquireTimeout: Duration(2 * time.Second),
		FenceTimeout:   Duration(2 * time.Second),
		ResetSingleCmd: true,
		PresentMode:    PresentMailbox,
	}
}

// ErrConfig means that a configuration is invalid.
var ErrConfig = errors.New("rhi: invalid configuration")

// Validate checks that c is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.FramesInFlight < 1 || c.FramesInFlight > 8 {
		errs = append(errs, fmt.Errorf("frames_in_flight must be in [1, 8], have %d", c.FramesInFlight))
	}
	if c.ImageCount < 1 || c.ImageCount > 8 {
		errs = append(errs, fmt.Errorf("image_count must be in [1, 8], have %d", c.ImageCount))
	}
	if c.DescBatch < 1 {
		errs = append(errs, fmt.Errorf("desc_batch must be positive, have %d", c.DescBatch))
	}
	if c.SlabCap < 1 {
		errs = append(errs, fmt.Errorf("slab_cap must be positive, have %d", c.SlabCap))
	}
	switch c.PresentMode {
	case PresentFIFO, PresentMailbox:
	default:
		errs = append(errs, fmt.Errorf("present_mode must be %q or %q, have %q", PresentFIFO, PresentMailbox, c.PresentMode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// ParseConfig decodes a configuration in the given format
// ("toml" or "yaml").
// Fields absent from data keep their default values.
func ParseConfig(data []byte, format string) (Config, error) {
	cfg := DefaultConfig()
	var err error
	switch strings.ToLower(format) {
	case "toml":
		err = toml.Unmarshal(data, &cfg)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: unknown format %q", ErrConfig, format)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a configuration file.
// The format is chosen from the file extension.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), err
	}
	return ParseConfig(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// Encode encodes c in the given format.
func (c *Config) Encode(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "toml":
		return toml.Marshal(c)
	case "yaml", "yml":
		return yaml.Marshal(c)
	}
	return nil, fmt.Errorf("%w: unknown format %q", ErrConfig, format)
}
