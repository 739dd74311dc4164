package gpucount

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CountResult holds the counts of one run.
type CountResult struct {
	GPU           uint32 // first pass
	GPUSecondPass uint32
	CPU           uint64

	// Boundary is the number of subpixels exactly equal to the threshold.
	// Float rounding on the GPU may count these differently from the CPU,
	// so it bounds the allowed GPU/CPU difference.
	Boundary uint64

	ResetBetweenPasses bool
}

// Agrees reports whether the first GPU pass matches the CPU count within
// the boundary tolerance.
func (r CountResult) Agrees() bool {
	return absDiff(uint64(r.GPU), r.CPU) <= r.Boundary
}

// SecondPassExpected returns what the second readback should hold: the
// first count again when the counter is reset, twice it otherwise.
func (r CountResult) SecondPassExpected() uint64 {
	if r.ResetBetweenPasses {
		return uint64(r.GPU)
	}
	return 2 * uint64(r.GPU)
}

// SecondPassAsExpected reports whether the second readback equals
// SecondPassExpected. A 32-bit counter that wrapped never matches.
func (r CountResult) SecondPassAsExpected() bool {
	return uint64(r.GPUSecondPass) == r.SecondPassExpected()
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Report is the complete outcome of a successful run.
type Report struct {
	Threshold  int
	Width      int
	Height     int
	WorkgroupX int
	WorkgroupY int
	Backend    string
	Adapter    string
	DeviceType string

	// GPUBytes is the peak size of the device buffers of the run.
	GPUBytes uint64

	Timings []TimingSample
	Counts  CountResult
}

// Timing returns the sample recorded under label.
func (r *Report) Timing(label string) (TimingSample, bool) {
	for _, s := range r.Timings {
		if s.Label == label {
			return s, true
		}
	}
	return TimingSample{}, false
}

// WriteTo prints the report in human-readable form: the device, one line per
// timed phase, the counts and the verdict lines.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	p := message.NewPrinter(language.English)
	var buf bytes.Buffer

	p.Fprintf(&buf, "Device: %s (%s, %s backend)\n", r.Adapter, r.DeviceType, r.Backend)
	// Dimensions are printed without digit grouping.
	p.Fprintf(&buf, "Image: %s, %d subpixels, workgroup %dx%d, threshold %d\n",
		fmt.Sprintf("%dx%d", r.Width, r.Height), r.Width*r.Height*3, r.WorkgroupX, r.WorkgroupY, r.Threshold)
	p.Fprintf(&buf, "GPU buffers: %d bytes\n", r.GPUBytes)
	for _, s := range r.Timings {
		p.Fprintf(&buf, "It took %d microseconds: %s\n", s.Micros(), s.Label)
	}

	c := r.Counts
	p.Fprintf(&buf, "GPU counted %d subpixels with value above %d\n", c.GPU, r.Threshold)
	p.Fprintf(&buf, "GPU counted %d subpixels with value above %d (2nd pass)\n", c.GPUSecondPass, r.Threshold)
	p.Fprintf(&buf, "CPU counted %d subpixels with value above %d\n", c.CPU, r.Threshold)

	if c.Agrees() {
		p.Fprintf(&buf, "GPU and CPU agree (tolerance %d)\n", c.Boundary)
	} else {
		p.Fprintf(&buf, "GPU and CPU DISAGREE by %d (tolerance %d)\n", absDiff(uint64(c.GPU), c.CPU), c.Boundary)
	}
	mode := "accumulated"
	if c.ResetBetweenPasses {
		mode = "reset"
	}
	if c.SecondPassAsExpected() {
		p.Fprintf(&buf, "Second pass as expected (%s counter)\n", mode)
	} else {
		p.Fprintf(&buf, "Second pass UNEXPECTED: got %d, want %d (%s counter)\n",
			c.GPUSecondPass, c.SecondPassExpected(), mode)
	}

	return buf.WriteTo(w)
}
