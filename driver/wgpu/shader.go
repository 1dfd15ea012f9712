// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

const spirvMagic = 0x07230203

var errSPIRV = errors.New("wgpu: invalid SPIR-V binary")

// shaderCode implements driver.ShaderCode.
type shaderCode struct {
	g   *GPU
	mod hal.ShaderModule
}

// NewShaderCode creates a new shader code.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, errSPIRV
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.NativeEndian.Uint32(data[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, errSPIRV
	}
	mod, err := g.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader module: %w", err)
	}
	return &shaderCode{g: g, mod: mod}, nil
}

// Destroy destroys s.
func (s *shaderCode) Destroy() {
	if s == nil || s.mod == nil {
		return
	}
	s.g.dev.DestroyShaderModule(s.mod)
	*s = shaderCode{}
}
