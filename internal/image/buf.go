// Package image provides the decoded pixel source for gpucount.
//
// Every image, whatever its file format, is normalized into a tightly packed
// non-premultiplied RGBA8 buffer. Both the GPU kernel and the CPU counter
// read the same bytes.
package image

import (
	"errors"
	"fmt"
)

// Channels is the fixed number of bytes per pixel (R, G, B, A).
const Channels = 4

// Common errors for pixel buffers.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrDataSize is returned when raw data does not hold exactly width*height*4 bytes.
	ErrDataSize = errors.New("image: data size does not match dimensions")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("image: empty data")
)

// PixelBuffer is an immutable width x height RGBA8 image.
//
// Rows are stored top to bottom (or bottom to top after a vertical flip)
// with no padding, so the byte at (y*width + x)*4 + c is channel c of the
// pixel in column x of row y.
type PixelBuffer struct {
	data   []byte
	width  int
	height int
}

// NewPixelBuffer copies data into a new PixelBuffer.
// The length of data must be exactly width*height*4.
func NewPixelBuffer(width, height int, data []byte) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if len(data) != width*height*Channels {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrDataSize, len(data), width*height*Channels)
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	return &PixelBuffer{data: owned, width: width, height: height}, nil
}

// Width returns the image width in pixels.
func (b *PixelBuffer) Width() int { return b.width }

// Height returns the image height in pixels.
func (b *PixelBuffer) Height() int { return b.height }

// Pixels returns the number of pixels.
func (b *PixelBuffer) Pixels() int { return b.width * b.height }

// Subpixels returns the number of color channels that can be counted
// (three per pixel, alpha excluded).
func (b *PixelBuffer) Subpixels() int { return b.width * b.height * 3 }

// Bytes returns the raw RGBA8 data.
// Callers must not modify the returned slice.
func (b *PixelBuffer) Bytes() []byte { return b.data }

// ByteSize returns the size of the pixel data in bytes.
func (b *PixelBuffer) ByteSize() int { return len(b.data) }

// RGBA returns the channels of the pixel at (x, y).
// Returns zeros if the coordinates are out of bounds.
func (b *PixelBuffer) RGBA(x, y int) (r, g, bl, a uint8) {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return 0, 0, 0, 0
	}
	off := (y*b.width + x) * Channels
	return b.data[off], b.data[off+1], b.data[off+2], b.data[off+3]
}

// FlipVertical returns a copy of b with its rows in reverse order.
func (b *PixelBuffer) FlipVertical() *PixelBuffer {
	rowBytes := b.width * Channels
	out := make([]byte, len(b.data))
	for y := range b.height {
		src := b.data[y*rowBytes : (y+1)*rowBytes]
		dst := out[(b.height-1-y)*rowBytes:]
		copy(dst[:rowBytes], src)
	}
	return &PixelBuffer{data: out, width: b.width, height: b.height}
}
