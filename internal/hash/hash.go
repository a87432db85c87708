// Package hash provides the fixed-width perceptual fingerprint used to
// compare sampled video frames for near-duplicate detection.
package hash

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"
)

// Width is the fingerprint width in bits.
const Width = 64

// Fingerprint is a 64-bit difference hash of a frame image. Two visually
// similar frames produce fingerprints with a small Hamming distance.
type Fingerprint uint64

// String renders the fingerprint as a fixed-width lowercase hex string.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Parse converts a 16-digit hex string into a Fingerprint.
func Parse(value string) (Fingerprint, error) {
	if len(value) != Width/4 {
		return 0, fmt.Errorf("fingerprint must be %d hex digits, got %d", Width/4, len(value))
	}
	v, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", value, err)
	}
	return Fingerprint(v), nil
}

// Similarity returns a normalized score in [0, 1]: 1.0 for identical
// fingerprints, 0.0 for maximally different ones. Symmetric by construction.
func Similarity(a, b Fingerprint) float64 {
	diff := bits.OnesCount64(uint64(a ^ b))
	return 1.0 - float64(diff)/float64(Width)
}

// Distance returns the raw Hamming distance between two fingerprints.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Compute derives a difference hash from a decoded image: the image is
// reduced to a 9x8 grayscale grid by box averaging and each bit records
// whether luminance increases left to right.
func Compute(img image.Image) Fingerprint {
	const cols, rows = 9, 8
	grid := downsampleGray(img, cols, rows)

	var fp uint64
	bit := 0
	for y := 0; y < rows; y++ {
		for x := 0; x < cols-1; x++ {
			if grid[y*cols+x] < grid[y*cols+x+1] {
				fp |= 1 << uint(bit)
			}
			bit++
		}
	}
	return Fingerprint(fp)
}

// downsampleGray box-averages the image luminance into a cols x rows grid.
func downsampleGray(img image.Image, cols, rows int) []float64 {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	grid := make([]float64, cols*rows)
	if w == 0 || h == 0 {
		return grid
	}

	for gy := 0; gy < rows; gy++ {
		y0 := bounds.Min.Y + gy*h/rows
		y1 := bounds.Min.Y + (gy+1)*h/rows
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for gx := 0; gx < cols; gx++ {
			x0 := bounds.Min.X + gx*w/cols
			x1 := bounds.Min.X + (gx+1)*w/cols
			if x1 <= x0 {
				x1 = x0 + 1
			}
			var sum float64
			var count int
			for y := y0; y < y1 && y < bounds.Max.Y; y++ {
				for x := x0; x < x1 && x < bounds.Max.X; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					// ITU-R BT.601 luma weights on 16-bit channels.
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
					count++
				}
			}
			if count > 0 {
				grid[gy*cols+gx] = sum / float64(count)
			}
		}
	}
	return grid
}
