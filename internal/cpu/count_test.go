package cpu

import (
	stdimage "image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/gogpu/gpucount/internal/image"
)

func mustBuffer(t *testing.T, w, h int, data []byte) *image.PixelBuffer {
	t.Helper()
	buf, err := image.NewPixelBuffer(w, h, data)
	if err != nil {
		t.Fatalf("NewPixelBuffer() error = %v", err)
	}
	return buf
}

func randomBuffer(t *testing.T, seed int64, w, h int) *image.PixelBuffer {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, w*h*image.Channels)
	rng.Read(data)
	return mustBuffer(t, w, h, data)
}

// referenceCount walks pixels through the standard library color model,
// independently of the byte-stride loop in Count.
func referenceCount(pix *image.PixelBuffer, threshold uint8) uint64 {
	img := &stdimage.NRGBA{
		Pix:    pix.Bytes(),
		Stride: pix.Width() * image.Channels,
		Rect:   stdimage.Rect(0, 0, pix.Width(), pix.Height()),
	}
	var n uint64
	for y := range pix.Height() {
		for x := range pix.Width() {
			c := img.At(x, y).(color.NRGBA)
			for _, v := range []uint8{c.R, c.G, c.B} {
				if v >= threshold {
					n++
				}
			}
		}
	}
	return n
}

func TestCountExample(t *testing.T) {
	pix := mustBuffer(t, 2, 2, []byte{
		255, 0, 0, 255,
		0, 255, 0, 255,
		0, 0, 255, 255,
		10, 10, 10, 255,
	})
	if got := Count(pix, 254); got != 3 {
		t.Errorf("Count(2x2, 254) = %d, want 3", got)
	}
}

func TestCountIgnoresAlpha(t *testing.T) {
	pix := mustBuffer(t, 1, 1, []byte{0, 0, 0, 255})
	if got := Count(pix, 1); got != 0 {
		t.Errorf("Count() = %d, want 0 (alpha must not count)", got)
	}
}

func TestCountMatchesReference(t *testing.T) {
	sizes := [][2]int{{1, 1}, {7, 3}, {33, 17}, {64, 64}}
	thresholds := []uint8{0, 1, 127, 128, 200, 254, 255}
	for i, sz := range sizes {
		pix := randomBuffer(t, int64(i+1), sz[0], sz[1])
		for _, th := range thresholds {
			if got, want := Count(pix, th), referenceCount(pix, th); got != want {
				t.Errorf("%dx%d threshold %d: Count() = %d, reference = %d", sz[0], sz[1], th, got, want)
			}
		}
	}
}

func TestCountIdempotent(t *testing.T) {
	pix := randomBuffer(t, 42, 50, 40)
	first := Count(pix, 100)
	second := Count(pix, 100)
	if first != second {
		t.Errorf("Count() not idempotent: %d then %d", first, second)
	}
}

func TestCountThresholdEdges(t *testing.T) {
	pix := randomBuffer(t, 7, 31, 29)

	if got, want := Count(pix, 0), uint64(pix.Subpixels()); got != want {
		t.Errorf("Count(threshold=0) = %d, want %d", got, want)
	}

	var maxed uint64
	data := pix.Bytes()
	for i := 0; i < len(data); i += image.Channels {
		for c := range 3 {
			if data[i+c] == 255 {
				maxed++
			}
		}
	}
	if got := Count(pix, 255); got != maxed {
		t.Errorf("Count(threshold=255) = %d, want %d", got, maxed)
	}
	if got := CountAt(pix, 255); got != maxed {
		t.Errorf("CountAt(255) = %d, want %d", got, maxed)
	}
}

func TestCountAt(t *testing.T) {
	pix := mustBuffer(t, 2, 1, []byte{
		10, 20, 10, 10,
		10, 30, 40, 10,
	})
	if got := CountAt(pix, 10); got != 3 {
		t.Errorf("CountAt(10) = %d, want 3", got)
	}
	// Count(t) - Count(t+1) is exactly the number of values equal to t.
	if got, want := Count(pix, 10)-Count(pix, 11), CountAt(pix, 10); got != want {
		t.Errorf("Count difference = %d, want CountAt = %d", got, want)
	}
}

func BenchmarkCount(b *testing.B) {
	data := make([]byte, 1920*1080*image.Channels)
	rand.New(rand.NewSource(1)).Read(data)
	pix, _ := image.NewPixelBuffer(1920, 1080, data)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for range b.N {
		_ = Count(pix, 254)
	}
}
