// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Command shaderc compiles WGSL source into a SPIR-V
// module.
//
// Usage:
//
//	shaderc [flags] file.wgsl
//
// The module is written to file.spv unless -o is given.
// An output of "-" writes the module to stdout.
// The exit status is 1 for usage errors and 2 when the
// source fails to compile.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gviegas/rhi"
	"github.com/gviegas/rhi/shader"
)

const (
	exitOK = iota
	exitUsage
	exitCompile
)

// compileError marks failures that happen after the
// command line was accepted.
type compileError struct{ err error }

func (e compileError) Error() string { return e.err.Error() }
func (e compileError) Unwrap() error { return e.err }

type options struct {
	output  string
	check   bool
	info    bool
	verbose bool
}

func newCommand(stdout, stderr io.Writer) *cobra.Command {
	var opt options
	cmd := &cobra.Command{
		Use:           "shaderc [flags] file.wgsl",
		Short:         "Compile WGSL to SPIR-V",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return compile(cmd.OutOrStdout(), args[0], &opt)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	f := cmd.Flags()
	f.StringVarP(&opt.output, "output", "o", "", `output file ("-" for stdout)`)
	f.BoolVar(&opt.check, "check", false, "compile without writing output")
	f.BoolVar(&opt.info, "info", false, "print the module header")
	f.BoolVarP(&opt.verbose, "verbose", "v", false, "log debug messages")
	return cmd
}

func compile(stdout io.Writer, path string, opt *options) error {
	if opt.verbose {
		rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return compileError{err}
	}
	code, err := shader.Compile(string(src))
	if err != nil {
		return compileError{fmt.Errorf("%s: %w", path, err)}
	}
	if opt.info {
		h, err := shader.ParseHeader(code)
		if err != nil {
			return compileError{err}
		}
		fmt.Fprintf(stdout, "%s: SPIR-V %d.%d, generator %#08x, bound %d, %d bytes\n",
			path, h.Major, h.Minor, h.Generator, h.Bound, len(code))
	}
	if opt.check {
		return nil
	}
	out := opt.output
	switch out {
	case "":
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".spv"
	case "-":
		_, err := stdout.Write(code)
		return err
	}
	if err := os.WriteFile(out, code, 0o644); err != nil {
		return compileError{err}
	}
	return nil
}

// run executes the command with args and returns the
// exit status.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newCommand(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, "shaderc:", err)
	var cerr compileError
	if errors.As(err, &cerr) {
		return exitCompile
	}
	fmt.Fprintln(stderr, cmd.UseLine())
	return exitUsage
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
