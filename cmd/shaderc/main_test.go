// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rhi/shader"
)

const src = `
@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

func writeSrc(t *testing.T, name, s string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(s), 0o644))
	return path
}

func exec(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestDefaultOutput(t *testing.T) {
	in := writeSrc(t, "comp.wgsl", src)
	code, _, stderr := exec(in)
	require.Equal(t, exitOK, code, stderr)

	out, err := os.ReadFile(filepath.Join(filepath.Dir(in), "comp.spv"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out), 20)
	assert.Equal(t, uint32(shader.Magic), binary.LittleEndian.Uint32(out))
}

func TestOutputFlag(t *testing.T) {
	in := writeSrc(t, "comp.wgsl", src)
	out := filepath.Join(t.TempDir(), "x.bin")
	code, _, stderr := exec("-o", out, in)
	require.Equal(t, exitOK, code, stderr)
	_, err := os.Stat(out)
	assert.NoError(t, err)

	code, stdout, _ := exec("--output", "-", in)
	require.Equal(t, exitOK, code)
	_, err = shader.ParseHeader([]byte(stdout))
	assert.NoError(t, err)
}

func TestCheckInfo(t *testing.T) {
	in := writeSrc(t, "comp.wgsl", src)
	code, stdout, _ := exec("--check", "--info", in)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "SPIR-V 1.")
	_, err := os.Stat(filepath.Join(filepath.Dir(in), "comp.spv"))
	assert.True(t, os.IsNotExist(err))
}

func TestUsage(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"a.wgsl", "b.wgsl"},
		{"--no-such-flag", "a.wgsl"},
	} {
		code, _, stderr := exec(args...)
		assert.Equal(t, exitUsage, code, "%v", args)
		assert.Contains(t, stderr, "shaderc:", "%v", args)
	}
}

func TestCompileFailure(t *testing.T) {
	in := writeSrc(t, "bad.wgsl", "fn main( {")
	code, _, stderr := exec(in)
	assert.Equal(t, exitCompile, code)
	assert.Contains(t, stderr, "bad.wgsl")
	_, err := os.Stat(filepath.Join(filepath.Dir(in), "bad.spv"))
	assert.True(t, os.IsNotExist(err))

	code, _, _ = exec(filepath.Join(t.TempDir(), "missing.wgsl"))
	assert.Equal(t, exitCompile, code)
}
