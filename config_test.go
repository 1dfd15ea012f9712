// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Config.Validate:\nhave %v\nwant nil", err)
	}
	if cfg.Backend != "" {
		t.Fatalf("Config.Backend:\nhave %q\nwant \"\"", cfg.Backend)
	}
	if cfg.FramesInFlight != 2 {
		t.Fatalf("Config.FramesInFlight:\nhave %d\nwant 2", cfg.FramesInFlight)
	}
	if cfg.PresentMode != PresentMailbox {
		t.Fatalf("Config.PresentMode:\nhave %q\nwant %q", cfg.PresentMode, PresentMailbox)
	}
}

func TestParseConfig(t *testing.T) {
	const tomlData = `
backend = "vulkan"
frames_in_flight = 3
desc_batch = 32
acquire_timeout = "250ms"
fence_timeout = "none"
present_mode = "fifo"
`
	const yamlData = `
backend: vulkan
frames_in_flight: 3
desc_batch: 32
acquire_timeout: 250ms
fence_timeout: none
present_mode: fifo
`
	want := DefaultConfig()
	want.Backend = "vulkan"
	want.FramesInFlight = 3
	want.DescBatch = 32
	want.AcquireTimeout = Duration(250 * time.Millisecond)
	want.FenceTimeout = -1
	want.PresentMode = PresentFIFO

	cases := [...]struct{ data, format string }{
		{tomlData, "toml"},
		{yamlData, "yaml"},
	}
	for _, c := range cases {
		cfg, err := ParseConfig([]byte(c.data), c.format)
		if err != nil {
			t.Fatalf("ParseConfig (%s):\nhave %v\nwant nil", c.format, err)
		}
		// Absent fields keep their defaults.
		if cfg != want {
			t.Fatalf("ParseConfig (%s):\nhave %+v\nwant %+v", c.format, cfg, want)
		}
		if x := cfg.FenceTimeout.Std(); x != -1 {
			t.Fatalf("Duration.Std (%s):\nhave %v\nwant -1", c.format, x)
		}
	}
}

func TestParseConfigErrors(t *testing.T) {
	cases := [...]struct{ data, format string }{
		{`frames_in_flight = 0`, "toml"},
		{`present_mode = "immediate"`, "toml"},
		{`acquire_timeout = "soon"`, "toml"},
		{`slab_cap: -4`, "yaml"},
		{`desc_batch: [1]`, "yaml"},
		{`{}`, "json"},
	}
	for _, c := range cases {
		if _, err := ParseConfig([]byte(c.data), c.format); !errors.Is(err, ErrConfig) {
			t.Errorf("ParseConfig (%s: %s):\nhave %v\nwant %v", c.format, c.data, err, ErrConfig)
		}
	}
}

func TestConfigEncode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "null"
	cfg.ImageCount = 3
	cfg.AcquireTimeout = Duration(5 * time.Millisecond)
	for _, format := range [...]string{"toml", "yaml"} {
		data, err := cfg.Encode(format)
		if err != nil {
			t.Fatalf("Config.Encode (%s):\nhave %v\nwant nil", format, err)
		}
		if !strings.Contains(string(data), "5ms") {
			t.Fatalf("Config.Encode (%s):\nhave %s\nwant 5ms in output", format, data)
		}
		got, err := ParseConfig(data, format)
		if err != nil {
			t.Fatalf("ParseConfig (%s):\nhave %v\nwant nil", format, err)
		}
		if got != cfg {
			t.Fatalf("ParseConfig (%s):\nhave %+v\nwant %+v", format, got, cfg)
		}
	}
	if _, err := cfg.Encode("ini"); !errors.Is(err, ErrConfig) {
		t.Fatalf("Config.Encode (ini):\nhave %v\nwant %v", err, ErrConfig)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rhi.yml")
	if err := os.WriteFile(path, []byte("image_count: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig:\nhave %v\nwant nil", err)
	}
	if cfg.ImageCount != 4 {
		t.Fatalf("Config.ImageCount:\nhave %d\nwant 4", cfg.ImageCount)
	}

	if _, err = LoadConfig(filepath.Join(dir, "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadConfig (missing):\nhave %v\nwant %v", err, os.ErrNotExist)
	}
}
