// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package shader compiles WGSL sources to SPIR-V and
// inspects SPIR-V binaries.
//
// Binaries are handled as byte slices in little-endian
// word order, which is what the drivers consume.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gviegas/rhi/internal/logger"
)

// Magic is the first word of every SPIR-V binary.
const Magic = 0x07230203

// headerSize is the size in bytes of the SPIR-V header.
const headerSize = 20

var (
	// ErrCompile means that a WGSL source failed to compile.
	ErrCompile = errors.New("shader: compilation failed")
	// ErrSPIRV means that a binary is not valid SPIR-V.
	ErrSPIRV = errors.New("shader: invalid SPIR-V binary")
)

// Header is the SPIR-V module header.
type Header struct {
	Major     int
	Minor     int
	Generator uint32
	Bound     uint32
}

// Compile compiles a WGSL source to a SPIR-V binary.
func Compile(src string) ([]byte, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	hdr, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	logger.Get().Debug("shader compiled", "bytes", len(b), "version", fmt.Sprintf("%d.%d", hdr.Major, hdr.Minor), "bound", hdr.Bound)
	return b, nil
}

// ParseHeader validates the size and header of a SPIR-V
// binary and returns the header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < headerSize || len(b)%4 != 0 {
		return Header{}, fmt.Errorf("%w: size %d", ErrSPIRV, len(b))
	}
	if m := binary.LittleEndian.Uint32(b); m != Magic {
		if binary.BigEndian.Uint32(b) == Magic {
			return Header{}, fmt.Errorf("%w: big-endian word order", ErrSPIRV)
		}
		return Header{}, fmt.Errorf("%w: magic %#08x", ErrSPIRV, m)
	}
	vers := binary.LittleEndian.Uint32(b[4:])
	hdr := Header{
		Major:     int(vers >> 16 & 0xff),
		Minor:     int(vers >> 8 & 0xff),
		Generator: binary.LittleEndian.Uint32(b[8:]),
		Bound:     binary.LittleEndian.Uint32(b[12:]),
	}
	if hdr.Major != 1 || vers&0xff0000ff != 0 {
		return Header{}, fmt.Errorf("%w: version word %#08x", ErrSPIRV, vers)
	}
	if hdr.Bound == 0 {
		return Header{}, fmt.Errorf("%w: zero id bound", ErrSPIRV)
	}
	if s := binary.LittleEndian.Uint32(b[16:]); s != 0 {
		return Header{}, fmt.Errorf("%w: reserved schema %d", ErrSPIRV, s)
	}
	return hdr, nil
}

// Words packs a SPIR-V binary into words.
func Words(b []byte) ([]uint32, error) {
	if _, err := ParseHeader(b); err != nil {
		return nil, err
	}
	w := make([]uint32, len(b)/4)
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return w, nil
}

// Bytes unpacks SPIR-V words into a binary.
func Bytes(w []uint32) []byte {
	b := make([]byte, len(w)*4)
	for i, x := range w {
		binary.LittleEndian.PutUint32(b[i*4:], x)
	}
	return b
}
