package gpucount

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucount/internal/gpu"
	"github.com/gogpu/gpucount/internal/kernel"
)

// Process exit codes of the command line tool.
const (
	ExitOK           = 0
	ExitUsage        = -1 // wrong argument count or invalid flag
	ExitGraphicsInit = -2 // backend lookup or instance creation
	ExitAdapter      = -3 // no usable headless adapter
	ExitDevice       = -4 // device and queue could not be opened
	ExitDecode       = -5 // image could not be read or decoded
	ExitCompile      = -6 // shader did not compile
	ExitLink         = -7 // pipeline could not be built
	ExitRuntime      = -8 // GPU call failed during allocation, dispatch or readback
)

// ArgumentError reports an invalid command line or configuration.
type ArgumentError struct {
	Err error
}

func (e *ArgumentError) Error() string { return "invalid argument: " + e.Err.Error() }
func (e *ArgumentError) Unwrap() error { return e.Err }

// ContextInitError reports a failure to set up the compute context.
type ContextInitError struct {
	Stage gpu.Stage
	Err   error
}

func (e *ContextInitError) Error() string {
	return fmt.Sprintf("compute context init (%s): %v", e.Stage, e.Err)
}
func (e *ContextInitError) Unwrap() error { return e.Err }

// DecodeError reports an unreadable or undecodable image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("load %s: %v", e.Path, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// CompileError reports a shader compilation failure. Log holds the
// compiler diagnostic.
type CompileError struct {
	Log string
	Err error
}

func (e *CompileError) Error() string { return "shader compilation error: " + e.Log }
func (e *CompileError) Unwrap() error { return e.Err }

// LinkError reports a failure to build the compute pipeline.
type LinkError struct {
	Err error
}

func (e *LinkError) Error() string { return "shader linking error: " + e.Err.Error() }
func (e *LinkError) Unwrap() error { return e.Err }

// RuntimeError reports a GPU call failure after setup.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *RuntimeError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for err: ExitOK for nil and
// ExitRuntime for errors outside the taxonomy.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		argErr     *ArgumentError
		initErr    *ContextInitError
		decodeErr  *DecodeError
		compileErr *CompileError
		linkErr    *LinkError
	)
	switch {
	case errors.As(err, &argErr):
		return ExitUsage
	case errors.As(err, &initErr):
		switch initErr.Stage {
		case gpu.StageAdapter:
			return ExitAdapter
		case gpu.StageDevice:
			return ExitDevice
		default:
			return ExitGraphicsInit
		}
	case errors.As(err, &decodeErr):
		return ExitDecode
	case errors.As(err, &compileErr):
		return ExitCompile
	case errors.As(err, &linkErr):
		return ExitLink
	default:
		return ExitRuntime
	}
}

// classify maps an error from the internal packages onto the taxonomy.
// op names the operation for RuntimeError.
func classify(op string, err error) error {
	var (
		kerr *kernel.CompileError
		gerr *gpu.Error
	)
	switch {
	case errors.Is(err, kernel.ErrInvalidThreshold), errors.Is(err, kernel.ErrInvalidWorkgroup):
		return &ArgumentError{Err: err}
	case errors.As(err, &kerr):
		return &CompileError{Log: kerr.Log, Err: err}
	case errors.As(err, &gerr):
		switch gerr.Stage {
		case gpu.StageInstance, gpu.StageAdapter, gpu.StageDevice:
			return &ContextInitError{Stage: gerr.Stage, Err: err}
		case gpu.StageShader:
			return &CompileError{Log: gerr.Err.Error(), Err: err}
		case gpu.StageLink:
			return &LinkError{Err: err}
		}
	}
	return &RuntimeError{Op: op, Err: err}
}
