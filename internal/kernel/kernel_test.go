package kernel

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/gogpu/gpucount/internal/cpu"
	"github.com/gogpu/gpucount/internal/image"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"default", DefaultConfig(), nil},
		{"threshold zero", Config{Threshold: 0, WorkgroupX: 8, WorkgroupY: 8}, nil},
		{"threshold max", Config{Threshold: 255, WorkgroupX: 1, WorkgroupY: 1}, nil},
		{"one dimensional", Config{Threshold: 10, WorkgroupX: 256, WorkgroupY: 1}, nil},
		{"negative threshold", Config{Threshold: -1, WorkgroupX: 8, WorkgroupY: 8}, ErrInvalidThreshold},
		{"threshold too big", Config{Threshold: 256, WorkgroupX: 8, WorkgroupY: 8}, ErrInvalidThreshold},
		{"zero workgroup x", Config{Threshold: 10, WorkgroupX: 0, WorkgroupY: 8}, ErrInvalidWorkgroup},
		{"negative workgroup y", Config{Threshold: 10, WorkgroupX: 8, WorkgroupY: -2}, ErrInvalidWorkgroup},
		{"too many invocations", Config{Threshold: 10, WorkgroupX: 32, WorkgroupY: 32}, ErrInvalidWorkgroup},
		{"dimension too big", Config{Threshold: 10, WorkgroupX: 512, WorkgroupY: 1}, ErrInvalidWorkgroup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDispatchSize(t *testing.T) {
	tests := []struct {
		w, h, wx, wy int
		gx, gy       uint32
	}{
		{64, 64, 16, 16, 4, 4},
		{65, 64, 16, 16, 5, 4},
		{1, 1, 16, 16, 1, 1},
		{100, 37, 8, 4, 13, 10},
	}
	for _, tt := range tests {
		cfg := Config{Threshold: 1, WorkgroupX: tt.wx, WorkgroupY: tt.wy}
		gx, gy, gz := cfg.DispatchSize(tt.w, tt.h)
		if gx != tt.gx || gy != tt.gy || gz != 1 {
			t.Errorf("DispatchSize(%d, %d) with %dx%d = (%d, %d, %d), want (%d, %d, 1)",
				tt.w, tt.h, tt.wx, tt.wy, gx, gy, gz, tt.gx, tt.gy)
		}
	}
}

func TestSourceSubstitution(t *testing.T) {
	src, err := Source(Config{Threshold: 200, WorkgroupX: 8, WorkgroupY: 4})
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	required := []string{
		"@compute",
		"@workgroup_size(8, 4, 1)",
		"const THRESHOLD: f32 = 200.0 / 255.0;",
		"@group(0) @binding(0) var<uniform> params: Params;",
		"@group(0) @binding(1) var pixels: texture_2d<f32>;",
		"textureLoad(pixels, vec2<i32>(gid.xy), 0)",
		"@group(0) @binding(2) var<storage, read_write> counter: atomic<u32>;",
		"gid.x < params.width && gid.y < params.height",
		"atomicAdd(&counter, 1u)",
		"fn " + EntryPoint + "(",
	}
	for _, s := range required {
		if !strings.Contains(src, s) {
			t.Errorf("source missing %q", s)
		}
	}
	// Alpha must never be compared.
	if strings.Contains(src, "texel.a") {
		t.Error("source reads the alpha channel")
	}
	if n := strings.Count(src, "atomicAdd"); n != 3 {
		t.Errorf("atomicAdd count = %d, want 3 (one per color channel)", n)
	}
}

func TestSourceThresholdZero(t *testing.T) {
	src, err := Source(Config{Threshold: 0, WorkgroupX: 1, WorkgroupY: 1})
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if !strings.Contains(src, "= 0.0 / 255.0;") {
		t.Error("threshold 0 not rendered as a float literal")
	}
}

func TestSourceRejectsInvalidConfig(t *testing.T) {
	if _, err := Source(Config{Threshold: 300, WorkgroupX: 1, WorkgroupY: 1}); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("Source() error = %v, want ErrInvalidThreshold", err)
	}
}

func TestBuild(t *testing.T) {
	m, err := Build(DefaultConfig())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(m.SPIRV) == 0 {
		t.Fatal("Build() produced empty SPIR-V")
	}
	// SPIR-V magic number.
	if m.SPIRV[0] != 0x07230203 {
		t.Errorf("SPIR-V magic = %#x, want 0x07230203", m.SPIRV[0])
	}
	if m.Config != DefaultConfig() {
		t.Errorf("Module.Config = %+v, want %+v", m.Config, DefaultConfig())
	}
}

func TestCompileError(t *testing.T) {
	_, err := Compile("@compute @workgroup_size(1) fn main( {")
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Compile(bad) error = %v, want *CompileError", err)
	}
	if ce.Log == "" {
		t.Error("CompileError.Log is empty")
	}
	if !strings.HasPrefix(ce.Error(), "kernel: compile: ") {
		t.Errorf("Error() = %q, want kernel: compile: prefix", ce.Error())
	}
}

func randomPixels(t *testing.T, seed int64, w, h int) *image.PixelBuffer {
	t.Helper()
	data := make([]byte, w*h*image.Channels)
	rand.New(rand.NewSource(seed)).Read(data)
	pix, err := image.NewPixelBuffer(w, h, data)
	if err != nil {
		t.Fatalf("NewPixelBuffer() error = %v", err)
	}
	return pix
}

func TestEmulateExample(t *testing.T) {
	pix, _ := image.NewPixelBuffer(2, 2, []byte{
		255, 0, 0, 255,
		0, 255, 0, 255,
		0, 0, 255, 255,
		10, 10, 10, 255,
	})
	cfg := Config{Threshold: 254, WorkgroupX: 16, WorkgroupY: 16}
	if got := Emulate(pix, cfg); got != 3 {
		t.Errorf("Emulate(2x2, 254) = %d, want 3", got)
	}
}

// The float comparison on normalized channels agrees with the integer
// comparison for every byte value and threshold.
func TestNormalizedComparisonMatchesInteger(t *testing.T) {
	for th := 0; th <= 255; th++ {
		frac := Config{Threshold: th}.ThresholdFraction()
		for v := 0; v <= 255; v++ {
			gpu := float32(v)/255.0 >= frac
			host := v >= th
			if gpu != host {
				t.Fatalf("value %d threshold %d: float %v, integer %v", v, th, gpu, host)
			}
		}
	}
}

func TestEmulateMatchesCPU(t *testing.T) {
	pix := randomPixels(t, 3, 45, 23)
	for _, th := range []int{0, 1, 64, 128, 254, 255} {
		cfg := Config{Threshold: th, WorkgroupX: 16, WorkgroupY: 16}
		got := uint64(Emulate(pix, cfg))
		want := cpu.Count(pix, uint8(th))
		if got != want {
			t.Errorf("threshold %d: Emulate() = %d, cpu.Count() = %d", th, got, want)
		}
	}
}

// Images that do not tile evenly must not be over- or under-counted by the
// padding invocations of the last workgroup row and column.
func TestEmulatePartialTiles(t *testing.T) {
	full := randomPixels(t, 11, 64, 32)
	cfg := Config{Threshold: 128, WorkgroupX: 16, WorkgroupY: 16}

	for _, sz := range [][2]int{{64, 32}, {63, 32}, {64, 31}, {50, 17}, {1, 1}} {
		w, h := sz[0], sz[1]
		data := make([]byte, 0, w*h*image.Channels)
		for y := range h {
			row := full.Bytes()[y*full.Width()*image.Channels:]
			data = append(data, row[:w*image.Channels]...)
		}
		crop, err := image.NewPixelBuffer(w, h, data)
		if err != nil {
			t.Fatalf("NewPixelBuffer() error = %v", err)
		}
		if got, want := uint64(Emulate(crop, cfg)), cpu.Count(crop, 128); got != want {
			t.Errorf("%dx%d: Emulate() = %d, cpu.Count() = %d", w, h, got, want)
		}
		// Same count with a tile that divides the image exactly.
		exact := Config{Threshold: 128, WorkgroupX: 1, WorkgroupY: 1}
		if a, b := Emulate(crop, cfg), Emulate(crop, exact); a != b {
			t.Errorf("%dx%d: 16x16 tiles = %d, 1x1 tiles = %d", w, h, a, b)
		}
	}
}
