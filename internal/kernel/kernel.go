// Package kernel generates and compiles the WGSL compute shader that counts
// subpixels at or above a threshold.
//
// Source generation is a pure function of Config, so parameter substitution
// can be tested without a GPU. Compile runs the naga front end and returns
// SPIR-V ready for hal.ShaderSource.
package kernel

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// Binding slots shared between the shader and the host (group 0).
const (
	// BindingParams is the uniform buffer holding the image size.
	BindingParams = 0

	// BindingPixels is the RGBA8Unorm image texture, read with textureLoad.
	BindingPixels = 1

	// BindingCounter is the read-write storage buffer holding the atomic counter.
	BindingCounter = 2
)

// EntryPoint is the compute entry point of the generated shader.
const EntryPoint = "main"

// ParamsSize is the size in bytes of the Params uniform (width, height, two
// padding words).
const ParamsSize = 16

// Workgroup limits for a default WebGPU device.
const (
	// MaxWorkgroupDim is the largest allowed size of one workgroup dimension.
	MaxWorkgroupDim = 256

	// MaxWorkgroupInvocations is the largest allowed WorkgroupX*WorkgroupY.
	MaxWorkgroupInvocations = 256
)

// Configuration errors.
var (
	// ErrInvalidThreshold is returned when the threshold is outside [0, 255].
	ErrInvalidThreshold = errors.New("kernel: threshold must be in [0, 255]")

	// ErrInvalidWorkgroup is returned for non-positive or oversized workgroups.
	ErrInvalidWorkgroup = errors.New("kernel: invalid workgroup size")
)

//go:embed shaders/threshold.wgsl.tmpl
var thresholdTemplate string

var sourceTemplate = template.Must(template.New("threshold").Parse(thresholdTemplate))

// Config drives shader generation.
type Config struct {
	// Threshold is the inclusive cutoff in [0, 255].
	Threshold int

	// WorkgroupX and WorkgroupY are the workgroup tile dimensions.
	WorkgroupX int
	WorkgroupY int
}

// DefaultConfig returns the configuration used by the command line tool:
// threshold 254 with 16x16 tiles.
func DefaultConfig() Config {
	return Config{Threshold: 254, WorkgroupX: 16, WorkgroupY: 16}
}

// Validate reports whether c can be turned into a valid kernel.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 255 {
		return fmt.Errorf("%w: got %d", ErrInvalidThreshold, c.Threshold)
	}
	if c.WorkgroupX <= 0 || c.WorkgroupY <= 0 {
		return fmt.Errorf("%w: %dx%d must be positive", ErrInvalidWorkgroup, c.WorkgroupX, c.WorkgroupY)
	}
	if c.WorkgroupX > MaxWorkgroupDim || c.WorkgroupY > MaxWorkgroupDim {
		return fmt.Errorf("%w: %dx%d exceeds %d per dimension",
			ErrInvalidWorkgroup, c.WorkgroupX, c.WorkgroupY, MaxWorkgroupDim)
	}
	if c.WorkgroupX*c.WorkgroupY > MaxWorkgroupInvocations {
		return fmt.Errorf("%w: %dx%d exceeds %d invocations",
			ErrInvalidWorkgroup, c.WorkgroupX, c.WorkgroupY, MaxWorkgroupInvocations)
	}
	return nil
}

// DispatchSize returns the number of workgroups needed to cover a
// width x height image (ceiling division on each axis).
func (c Config) DispatchSize(width, height int) (x, y, z uint32) {
	x = uint32((width + c.WorkgroupX - 1) / c.WorkgroupX)  //nolint:gosec // image dimensions fit uint32
	y = uint32((height + c.WorkgroupY - 1) / c.WorkgroupY) //nolint:gosec // image dimensions fit uint32
	return x, y, 1
}

// templateData is the view of Config exposed to the WGSL template.
type templateData struct {
	Config
	ThresholdLiteral string
	BindingParams    int
	BindingPixels    int
	BindingCounter   int
}

// Source renders the WGSL source for c.
func Source(c Config) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	var sb strings.Builder
	err := sourceTemplate.Execute(&sb, templateData{
		Config:           c,
		ThresholdLiteral: fmt.Sprintf("%d.0", c.Threshold),
		BindingParams:    BindingParams,
		BindingPixels:    BindingPixels,
		BindingCounter:   BindingCounter,
	})
	if err != nil {
		return "", fmt.Errorf("kernel: render source: %w", err)
	}
	return sb.String(), nil
}

// ThresholdFraction returns the normalized threshold the kernel compares
// against, computed in float32 as on the GPU.
func (c Config) ThresholdFraction() float32 {
	return float32(c.Threshold) / 255.0
}
