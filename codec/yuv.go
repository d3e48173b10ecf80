package codec

import (
	"fmt"
	"math"
)

// YUVFrame is one decoded planar video frame. Plane buffers hold raw
// bytes as produced by the decoder: one byte per sample for 8-bit
// formats, two little-endian bytes for 10-bit formats.
type YUVFrame struct {
	PixelFormat string // "yuv420p", "yuv420p10le" or "yuv422p10le"
	Width       int
	Height      int

	Y, U, V                   []byte
	YStride, UStride, VStride int // in bytes
}

// Rec.2020 luma coefficients.
const (
	kr2020 = 0.2627
	kg2020 = 0.6780
	kb2020 = 0.0593
)

// ToRGB16 converts the frame to full-range interleaved 16-bit RGB using
// the Rec.2020 matrix with limited-range unscaling.
func (f *YUVFrame) ToRGB16() ([]uint16, error) {
	var is10bit bool
	var chromaHeightDiv int

	switch f.PixelFormat {
	case "yuv420p":
		is10bit = false
		chromaHeightDiv = 2
	case "yuv420p10le":
		is10bit = true
		chromaHeightDiv = 2
	case "yuv422p10le":
		is10bit = true
		chromaHeightDiv = 1
	default:
		return nil, fmt.Errorf("unsupported pixel format %q", f.PixelFormat)
	}

	// Limited-range bounds scaled to the sample depth: 10-bit code values
	// are the 8-bit ones shifted left by two bits (luma 64..940).
	depthScale := 1.0
	if is10bit {
		depthScale = 4.0
	}

	yMin := 16.0 * depthScale
	yMax := 235.0 * depthScale
	cMin := 16.0 * depthScale
	cMax := 240.0 * depthScale

	read := func(plane []byte, stride, x, y int) float64 {
		if is10bit {
			off := y*stride + x*2
			return float64(uint16(plane[off]) | uint16(plane[off+1])<<8)
		}
		return float64(plane[y*stride+x])
	}

	rgb := make([]uint16, f.Width*f.Height*3)

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			yVal := read(f.Y, f.YStride, x, y)

			chromaX := x / 2
			chromaY := y / chromaHeightDiv
			uVal := read(f.U, f.UStride, chromaX, chromaY)
			vVal := read(f.V, f.VStride, chromaX, chromaY)

			yNorm := (yVal - yMin) / (yMax - yMin)
			uNorm := (uVal-cMin)/(cMax-cMin) - 0.5
			vNorm := (vVal-cMin)/(cMax-cMin) - 0.5

			yNorm = math.Max(0, math.Min(1, yNorm))

			r := yNorm + 2*(1-kr2020)*vNorm
			g := yNorm - 2*kb2020*(1-kb2020)/kg2020*uNorm - 2*kr2020*(1-kr2020)/kg2020*vNorm
			b := yNorm + 2*(1-kb2020)*uNorm

			r = math.Max(0, math.Min(1, r))
			g = math.Max(0, math.Min(1, g))
			b = math.Max(0, math.Min(1, b))

			idx := (y*f.Width + x) * 3
			rgb[idx] = uint16(r*65535 + 0.5)
			rgb[idx+1] = uint16(g*65535 + 0.5)
			rgb[idx+2] = uint16(b*65535 + 0.5)
		}
	}

	return rgb, nil
}

// ApplyInverseHLG converts HLG-encoded RGB samples to linear in place.
// The inverse OECF uses the quadratic branch below 0.5 and the
// exponential branch above.
func ApplyInverseHLG(rgb []uint16) {
	for i, s := range rgb {
		normalized := float64(s) / 65535.0

		var linear float64
		if normalized <= 0.5 {
			linear = normalized * normalized / 3.0
		} else {
			linear = (math.Exp((normalized-0.55991073)/0.17883277) + 0.28466892) / 12.0
		}

		rgb[i] = uint16(math.Max(0, math.Min(65535, linear*65535)))
	}
}
