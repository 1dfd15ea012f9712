// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"encoding/binary"
	"errors"

	"github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// shaderCode implements driver.ShaderCode.
type shaderCode struct {
	d   *Driver
	mod vulkan.ShaderModule
}

// NewShaderCode creates a new shader code.
func (d *Driver) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	n := len(data)
	// Code size must be a multiple of four.
	if n == 0 || n&3 != 0 {
		return nil, errors.New("vk: invalid shader code size")
	}
	words := make([]uint32, n/4)
	for i := range words {
		words[i] = binary.NativeEndian.Uint32(data[i*4:])
	}
	info := vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(n),
		PCode:    words,
	}
	var mod vulkan.ShaderModule
	if err := checkResult(vulkan.CreateShaderModule(d.dev, &info, nil, &mod)); err != nil {
		return nil, err
	}
	return &shaderCode{
		d:   d,
		mod: mod,
	}, nil
}

// Destroy destroys the shader code.
func (c *shaderCode) Destroy() {
	if c == nil {
		return
	}
	if c.d != nil {
		vulkan.DestroyShaderModule(c.d.dev, c.mod, nil)
	}
	*c = shaderCode{}
}
