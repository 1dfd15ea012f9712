// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Command rhictl inspects and exercises rhi devices.
//
// Usage:
//
//	rhictl [--config file] [--backend name] info
//	rhictl [--config file] [--backend name] frames [-n count]
//	rhictl [--config file] config [--format toml|yaml]
//
// When no backend is named, the hardware backends are
// tried before the null one.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gviegas/rhi"
	_ "github.com/gviegas/rhi/driver/null"
	_ "github.com/gviegas/rhi/driver/vk"
	_ "github.com/gviegas/rhi/driver/wgpu"
)

// Backends tried when none is configured.
var preferred = []string{"vulkan", "wgpu", "null"}

type globals struct {
	config  string
	backend string
	verbose bool
}

// loadConfig returns the configuration selected by the
// global flags.
func (g *globals) loadConfig() (rhi.Config, error) {
	cfg := rhi.DefaultConfig()
	if g.config != "" {
		var err error
		if cfg, err = rhi.LoadConfig(g.config); err != nil {
			return cfg, err
		}
	}
	if g.backend != "" {
		cfg.Backend = g.backend
	}
	return cfg, cfg.Validate()
}

// open opens a Device for cfg.
func open(cfg rhi.Config) (*rhi.Device, error) {
	if cfg.Backend != "" {
		return rhi.Open(rhi.NewContext(), &cfg)
	}
	var errs []error
	for _, name := range preferred {
		cfg.Backend = name
		d, err := rhi.Open(rhi.NewContext(), &cfg)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

func newCommand(stdout, stderr io.Writer) *cobra.Command {
	var g globals
	root := &cobra.Command{
		Use:           "rhictl",
		Short:         "Inspect and exercise rhi devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.verbose {
				rhi.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	pf := root.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "configuration file (.toml or .yaml)")
	pf.StringVarP(&g.backend, "backend", "b", "", "backend name (overrides the configuration)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log debug messages")
	root.AddCommand(newInfoCommand(&g), newFramesCommand(&g), newConfigCommand(&g))
	return root
}

// run executes the command with args and returns the
// exit status.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newCommand(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "rhictl:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
