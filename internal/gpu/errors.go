package gpu

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNoAdapters is returned when the instance exposes no adapter.
	ErrNoAdapters = errors.New("gpu: no GPU adapters found")

	// ErrBackendUnavailable is returned when the requested backend is not
	// registered in this build.
	ErrBackendUnavailable = errors.New("gpu: backend not available")

	// ErrClosed is returned when using a Context after Close.
	ErrClosed = errors.New("gpu: context closed")

	// ErrFenceTimeout is returned when the GPU does not signal completion
	// within the configured timeout.
	ErrFenceTimeout = errors.New("gpu: fence wait timed out")

	// ErrInvalidProvider is returned by FromProvider when the host provider
	// does not expose HAL device and queue.
	ErrInvalidProvider = errors.New("gpu: provider does not expose HAL types")
)

// Stage identifies where a GPU operation failed.
type Stage int

const (
	// StageInstance covers backend lookup and instance creation.
	StageInstance Stage = iota

	// StageAdapter covers headless adapter enumeration and selection.
	StageAdapter

	// StageDevice covers opening the logical device and queue.
	StageDevice

	// StageShader covers shader module creation.
	StageShader

	// StageLink covers bind group layout, pipeline layout and pipeline creation.
	StageLink

	// StageRuntime covers buffer allocation, upload, dispatch and readback.
	StageRuntime
)

// String returns a human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageInstance:
		return "instance"
	case StageAdapter:
		return "adapter"
	case StageDevice:
		return "device"
	case StageShader:
		return "shader"
	case StageLink:
		return "link"
	case StageRuntime:
		return "runtime"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Error is a failed GPU API call.
type Error struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gpu: %s: %s: %v", e.Stage, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stageError(stage Stage, op string, err error) *Error {
	return &Error{Stage: stage, Op: op, Err: err}
}
