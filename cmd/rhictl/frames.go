// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/gviegas/rhi"
	"github.com/gviegas/rhi/driver"
)

type frameOptions struct {
	count  int
	size   int64
	groups int
}

func newFramesCommand(g *globals) *cobra.Command {
	opt := frameOptions{count: 60, size: 4096, groups: 4}
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Drive offscreen frames and report pool statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case opt.count < 1:
				return errors.New("frame count must be positive")
			case opt.size < 4 || opt.size%4 != 0:
				return errors.New("buffer size must be a positive multiple of 4")
			case opt.groups < 0:
				return errors.New("bind group count must not be negative")
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			d, err := open(cfg)
			if err != nil {
				return err
			}
			defer d.Close()
			return runFrames(cmd.OutOrStdout(), d, &opt)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opt.count, "count", "n", opt.count, "number of frames")
	f.Int64Var(&opt.size, "size", opt.size, "size in bytes of the copied buffer")
	f.IntVar(&opt.groups, "groups", opt.groups, "bind groups required per frame")
	return cmd
}

// runFrames records, in each frame, a fill of a source
// buffer followed by a copy to a destination buffer, and
// requires bind groups that are released right after
// submission.
func runFrames(w io.Writer, d *rhi.Device, opt *frameOptions) error {
	usg := driver.UCopySrc | driver.UCopyDst | driver.UShaderRead
	src, err := d.CreateBuffer(&rhi.BufferDesc{Size: opt.size, Usage: usg, Mem: rhi.MemGPU})
	if err != nil {
		return err
	}
	defer src.Release()
	dst, err := d.CreateBuffer(&rhi.BufferDesc{Size: opt.size, Usage: usg, Mem: rhi.MemGPU})
	if err != nil {
		return err
	}
	defer dst.Release()
	layout, err := d.CreateBindGroupLayout(&rhi.BindGroupLayoutDesc{
		Entries: []driver.Descriptor{{Type: driver.DBuffer, Stages: driver.SCompute, Nr: 0, Len: 1}},
		Label:   "frames",
	})
	if err != nil {
		return err
	}
	defer layout.Release()

	start := time.Now()
	var value byte
	for i := range opt.count {
		value = byte(i + 1)
		if err := d.BeginFrame(0); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		for range opt.groups {
			bg, err := layout.RequireBindGroup(&rhi.BindGroupDesc{
				Entries: []rhi.BindGroupEntry{{Binding: 0, Buffer: src}},
			})
			if err != nil {
				d.EndFrame()
				return fmt.Errorf("frame %d: %w", i, err)
			}
			bg.Release()
		}
		enc, err := d.CreateCommandEncoder()
		if err != nil {
			d.EndFrame()
			return fmt.Errorf("frame %d: %w", i, err)
		}
		enc.FillBuffer(src, 0, value, opt.size)
		enc.Barrier(driver.Barrier{
			SyncBefore:   driver.SCopy,
			SyncAfter:    driver.SCopy,
			AccessBefore: driver.ACopyWrite,
			AccessAfter:  driver.ACopyRead,
		})
		enc.CopyBufferToBuffer(src, 0, dst, 0, opt.size)
		cmd, err := enc.Finish()
		if err != nil {
			d.EndFrame()
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := d.Submit(cmd); err != nil {
			d.EndFrame()
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := d.EndFrame(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	got, err := dst.Read(0, opt.size)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{value}, int(opt.size))) {
		return fmt.Errorf("destination buffer does not hold %#02x", value)
	}

	fmt.Fprintf(w, "backend: %s\n", d.GPU().Driver().Name())
	fmt.Fprintf(w, "frames: %d in %v (%.1f/s)\n", opt.count, elapsed.Round(time.Microsecond), float64(opt.count)/elapsed.Seconds())
	fmt.Fprintf(w, "serial: %d completed: %d\n", d.Serial(), d.CompletedSerial())
	fmt.Fprintf(w, "bind groups: pool %d free %d batches %d pending %d\n",
		layout.PoolSize(), layout.FreeCount(), layout.Batches(), layout.PendingCount())
	pool := d.CommandPool()
	fmt.Fprintf(w, "command pool: epoch %d commands %d blocks %d pending %d\n",
		pool.Epoch(), pool.Len(), pool.BlockCount(), pool.PendingCount())
	fmt.Fprintf(w, "resources: live %d retired %d\n", d.LiveCount(), d.RetireCount())
	return nil
}
