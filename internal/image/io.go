package image

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// LoadOptions controls how a decoded image is turned into a PixelBuffer.
type LoadOptions struct {
	// FlipVertical stores rows bottom to top, the origin convention of
	// GPU texture uploads. Subpixel counts do not depend on it.
	FlipVertical bool
}

// Load decodes the image file at path into an RGBA8 PixelBuffer.
// Supported formats: PNG, JPEG, GIF, BMP, TIFF, WebP.
func Load(path string, opts LoadOptions) (*PixelBuffer, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f, opts)
}

// LoadFromBytes decodes an in-memory encoded image.
func LoadFromBytes(data []byte, opts LoadOptions) (*PixelBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return Decode(bytes.NewReader(data), opts)
}

// Decode decodes an image from r, auto-detecting the format.
func Decode(r io.Reader, opts LoadOptions) (*PixelBuffer, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("image: decode: %w", err)
	}
	buf, err := FromStdImage(img)
	if err != nil {
		return nil, fmt.Errorf("image: convert %s: %w", format, err)
	}
	if opts.FlipVertical {
		buf = buf.FlipVertical()
	}
	return buf, nil
}

// FromStdImage converts a standard library image into a non-premultiplied
// RGBA8 PixelBuffer.
func FromStdImage(img image.Image) (*PixelBuffer, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}

	// Fast path: NRGBA already has the target layout.
	if nrgba, ok := img.(*image.NRGBA); ok {
		return fromNRGBA(nrgba, width, height), nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return fromNRGBA(dst, width, height), nil
}

func fromNRGBA(src *image.NRGBA, width, height int) *PixelBuffer {
	rowBytes := width * Channels
	data := make([]byte, rowBytes*height)
	if src.Stride == rowBytes && src.Rect.Min == (image.Point{}) {
		copy(data, src.Pix[:rowBytes*height])
	} else {
		for y := range height {
			start := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
			copy(data[y*rowBytes:], src.Pix[start:start+rowBytes])
		}
	}
	return &PixelBuffer{data: data, width: width, height: height}
}
