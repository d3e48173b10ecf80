package codec

import "github.com/LeonardSander/motioncam-fs/data"

// RemosaicRGBToBayer collapses an interleaved RGB16 plane into a
// single-channel Bayer plane. For every output position the channel
// dictated by the 2x2 CFA phase is selected from the RGB pixel at the
// same position; nothing is interpolated.
func RemosaicRGBToBayer(rgb []uint16, width, height int, phase data.CFAPattern) []uint16 {
	out := make([]uint16, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			channel := phase[(y%2)*2+(x%2)]
			out[y*width+x] = rgb[(y*width+x)*3+int(channel)]
		}
	}

	return out
}
