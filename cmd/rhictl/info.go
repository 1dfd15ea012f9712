// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gviegas/rhi"
)

func newInfoCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the selected backend and its limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			d, err := open(cfg)
			if err != nil {
				return err
			}
			defer d.Close()
			return printInfo(cmd.OutOrStdout(), d)
		},
	}
}

// deviceName returns the adapter name, if the GPU has
// one.
func deviceName(d *rhi.Device) string {
	switch x := d.GPU().(type) {
	case interface{ DeviceName() string }:
		return x.DeviceName()
	case interface{ Name() string }:
		return x.Name()
	}
	return "-"
}

func printInfo(w io.Writer, d *rhi.Device) error {
	lim := d.Limits()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		key string
		val any
	}{
		{"backend", d.GPU().Driver().Name()},
		{"device", deviceName(d)},
		{"frames in flight", d.FrameCount()},
		{"max buffer descriptors", lim.MaxDescBuffer},
		{"max image descriptors", lim.MaxDescImage},
		{"max constant descriptors", lim.MaxDescConstant},
		{"max texture descriptors", lim.MaxDescTexture},
		{"max sampler descriptors", lim.MaxDescSampler},
		{"max descriptor heaps", lim.MaxDescHeaps},
		{"max buffer size", lim.MaxBufferSize},
		{"max image 2D", lim.MaxImage2D},
		{"max layers", lim.MaxLayers},
		{"max vertex inputs", lim.MaxVertexIn},
		{"max dispatch", fmt.Sprintf("%d x %d x %d", lim.MaxDispatch[0], lim.MaxDispatch[1], lim.MaxDispatch[2])},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%v\n", r.key, r.val)
	}
	return tw.Flush()
}
