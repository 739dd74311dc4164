package gpucount

import "time"

// Phase labels, in the order Run records them.
const (
	PhaseUpload         = "image upload"
	PhaseAllocate       = "buffer allocation"
	PhaseDispatch       = "dispatch"
	PhaseReadback       = "readback"
	PhaseDispatchSecond = "dispatch (2nd pass)"
	PhaseReadbackSecond = "readback (2nd pass)"
	PhaseCPU            = "cpu pass"
)

// TimingSample is the wall-clock duration of one named phase.
type TimingSample struct {
	Label    string
	Duration time.Duration
}

// Micros returns the duration in whole microseconds.
func (s TimingSample) Micros() uint64 {
	if s.Duration < 0 {
		return 0
	}
	return uint64(s.Duration.Microseconds())
}

// Recorder times phases in arrival order.
type Recorder struct {
	samples []TimingSample
	now     func() time.Time
}

// NewRecorder returns a Recorder using the monotonic wall clock.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Measure runs fn and records its duration under label. Nothing is recorded
// when fn fails.
func (r *Recorder) Measure(label string, fn func() error) error {
	start := r.now()
	if err := fn(); err != nil {
		return err
	}
	d := r.now().Sub(start)
	r.samples = append(r.samples, TimingSample{Label: label, Duration: d})
	Logger().Info("phase timed", "phase", label, "us", d.Microseconds())
	return nil
}

// Samples returns a copy of the recorded samples.
func (r *Recorder) Samples() []TimingSample {
	out := make([]TimingSample, len(r.samples))
	copy(out, r.samples)
	return out
}
