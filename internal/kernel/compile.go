package kernel

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// CompileError is returned when the WGSL front end rejects generated source.
// Log holds the compiler diagnostic.
type CompileError struct {
	Log string
	Err error
}

func (e *CompileError) Error() string {
	return "kernel: compile: " + e.Log
}

func (e *CompileError) Unwrap() error { return e.Err }

// Module is a compiled compute shader.
type Module struct {
	// Config is the configuration the module was generated from.
	Config Config

	// WGSL is the generated source text.
	WGSL string

	// SPIRV is the compiled module as little-endian 32-bit words.
	SPIRV []uint32
}

// Build renders and compiles the kernel for c.
func Build(c Config) (*Module, error) {
	src, err := Source(c)
	if err != nil {
		return nil, err
	}
	spirv, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return &Module{Config: c, WGSL: src, SPIRV: spirv}, nil
}

// Compile compiles WGSL source to SPIR-V words.
func Compile(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, &CompileError{Log: err.Error(), Err: err}
	}
	if len(spirvBytes) == 0 || len(spirvBytes)%4 != 0 {
		return nil, &CompileError{Log: fmt.Sprintf("invalid SPIR-V length %d", len(spirvBytes))}
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}
