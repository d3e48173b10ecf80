// Package render turns a decoded source frame plus metadata into a
// compliant DNG byte stream: deterministic per-pixel preprocessing, bit
// packing and TIFF/DNG assembly.
package render

import (
	"math"

	"github.com/LeonardSander/motioncam-fs/codec"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/dng"
)

// Preprocessed is the outcome of the per-pixel transform: a 16-bit plane
// ready for packing plus the final level assignment.
type Preprocessed struct {
	Data   []uint16
	Width  int
	Height int

	BlackLevel [4]uint16
	WhiteLevel uint16
	UsedBits   int

	// Linearization maps stored codes back to linear 16-bit values when a
	// log curve was applied.
	Linearization []uint16

	// GainMaps carries the lens-shading map as DNG opcodes when the
	// correction was not baked into the pixels.
	GainMaps []dng.GainMap

	// Left and Top locate the processed rectangle inside the uncropped
	// sensor frame.
	Left, Top int
}

const (
	// Log curve constant: u' = log2(1 + 60u) / log2(61).
	logK = 60.0
)

var logDenominator = math.Log2(1 + logK)

// Preprocess runs the §-deterministic pixel transform: scale, centered
// crop, level resolution, optional shading correction, optional log
// encoding with triangular dither, and bit-budget selection.
func Preprocess(raw []uint16, width, height int, meta *data.FrameMetadata, config *data.CameraConfig, rc *data.RenderConfig) *Preprocessed {
	scale := rc.Scale()

	cfaSize := 1
	if meta.NeedRemosaic {
		cfaSize = 2
	}

	// Crop resolution. Oversized or malformed targets disable cropping.
	cropWidth, cropHeight := 0, 0
	if rc.Flags.Has(data.FlagCropping) && rc.CropTarget != "" {
		if w, h, ok := data.ParseCrop(rc.CropTarget); ok {
			cropWidth, cropHeight = w, h
		}
	}

	var newWidth, newHeight int
	if cropWidth > 0 && cropHeight > 0 && cropWidth <= width && cropHeight <= height {
		newWidth = cropWidth / scale
		newHeight = cropHeight / scale
	} else {
		cropWidth, cropHeight = 0, 0
		newWidth = width / scale
		newHeight = height / scale
	}

	// Align down to a multiple of 4: Bayer quads plus packing groups.
	newWidth = (newWidth / 4) * 4
	newHeight = (newHeight / 4) * 4

	srcBlack, srcWhite := data.ResolveLevels(rc.Levels, meta, config)

	// Quad-Bayer binning sums four same-color samples per output sample.
	if cfaSize > 1 && scale == 2 {
		srcWhite *= 4
		for i := range srcBlack {
			srcBlack[i] *= 4
		}
	}

	var linear [4]float64
	for i := range linear {
		linear[i] = 1 / (srcWhite - srcBlack[i])
	}

	dstBlack := srcBlack
	dstWhite := srcWhite

	// Shading coordinates stay referenced to the uncropped sensor frame.
	fullWidth := meta.OriginalWidth
	fullHeight := meta.OriginalHeight
	if fullWidth <= 0 || fullHeight <= 0 {
		fullWidth, fullHeight = width, height
	}

	var left, top int
	if cropWidth > 0 && cropHeight > 0 {
		left = (fullWidth - cropWidth) / 2
		top = (fullHeight - cropHeight) / 2
	} else {
		left = (fullWidth - width) / 2
		top = (fullHeight - height) / 2
	}

	scaleX := 1 / float64(fullWidth)
	scaleY := 1 / float64(fullHeight)

	applyShading := rc.Flags.Has(data.FlagVignetteCorrection)
	colorOnly := rc.Flags.Has(data.FlagVignetteOnlyColor)
	normalize := rc.Flags.Has(data.FlagNormalizeShading)
	debug := rc.Flags.Has(data.FlagDebugShading)
	reduction, logActive := rc.LogReduction()
	keepInput := logActive && reduction == 0

	shadingMap := &codec.ShadingMap{
		Gains:  meta.LensShadingMap,
		Width:  meta.LensShadingMapWidth,
		Height: meta.LensShadingMapHeight,
	}
	if !shadingMap.Valid() {
		applyShading = false
		debug = false
	} else if applyShading {
		shadingMap = shadingMap.Clone()
		if colorOnly {
			shadingMap.ColorOnly()
		}
	}

	// Bit-budget selection.
	b0 := codec.BitsNeeded(uint16(math.Min(srcWhite, 65535)))
	useBits := b0
	zeroBlack := false

	switch {
	case applyShading && normalize:
		shadingMap.Normalize()
		useBits = min16(b0 + 4)
		zeroBlack = true
	case applyShading && debug:
		shadingMap.Invert()
		useBits = min16(b0 + 2)
		zeroBlack = true
	case applyShading && logActive && reduction > 0:
		useBits = min16(maxInt(1, b0-reduction))
		zeroBlack = true
	case applyShading:
		// Shading without normalization, with or without "Keep Input".
		useBits = min16(b0 + 2)
		zeroBlack = true
	case logActive && reduction > 0:
		useBits = min16(maxInt(1, b0-reduction))
		zeroBlack = true
	}

	if zeroBlack {
		dstWhite = math.Pow(2, float64(useBits)) - 1
		for i := range dstBlack {
			dstBlack[i] = 0
		}
	}

	result := &Preprocessed{
		Width:      newWidth,
		Height:     newHeight,
		WhiteLevel: uint16(math.Round(dstWhite)),
		UsedBits:   useBits,
		Left:       left,
		Top:        top,
	}
	for i := range dstBlack {
		result.BlackLevel[i] = uint16(math.Round(dstBlack[i]))
	}

	// Lens shading travels as a GainMap opcode when not applied here.
	if !applyShading && shadingMap.Valid() {
		result.GainMaps = buildShadingGainMaps(meta, width, height, left, top)
	}

	dst := make([]uint16, newWidth*newHeight)

	sampleShade := func(px, py float64, channel int) float64 {
		if !applyShading {
			return 1
		}
		return shadingMap.Sample(px*scaleX, py*scaleY, channel)
	}

	quadPath := cfaSize == 2 && scale == 1

	blockStep := 2
	if quadPath {
		blockStep = 4
	}

	dstOffset := 0
	for y := 0; y < newHeight; y += blockStep {
		for x := 0; x < newWidth; x += blockStep {
			srcX := x * scale
			srcY := y * scale

			if !quadPath {
				var s [4]float64
				if cfaSize == 2 && scale == 2 {
					for q := 0; q < 4; q++ {
						qx := srcX + (q%2)*2
						qy := srcY + (q/2)*2
						s[q] = float64(raw[qy*width+qx]) + float64(raw[qy*width+qx+1]) +
							float64(raw[(qy+1)*width+qx]) + float64(raw[(qy+1)*width+qx+1])
					}
				} else {
					s[0] = float64(raw[srcY*width+srcX])
					s[1] = float64(raw[srcY*width+srcX+cfaSize])
					s[2] = float64(raw[(srcY+cfaSize)*width+srcX])
					s[3] = float64(raw[(srcY+cfaSize)*width+srcX+cfaSize])
				}

				var shade [4]float64
				shade[0] = sampleShade(float64(srcX+left), float64(srcY+top), 0)
				shade[1] = sampleShade(float64(srcX+left+scale), float64(srcY+top), 1)
				shade[2] = sampleShade(float64(srcX+left), float64(srcY+top+scale), 2)
				shade[3] = sampleShade(float64(srcX+left+scale), float64(srcY+top+scale), 3)

				var p [4]float64
				switch {
				case debug:
					for i := 0; i < 4; i++ {
						p[i] = math.Max(0, linear[i]*(srcWhite-srcBlack[i])*shade[i]) * (dstWhite - dstBlack[i])
					}
				case logActive:
					for i := 0; i < 4; i++ {
						u := math.Max(0, linear[i]*(s[i]-srcBlack[i])*shade[i])
						logValue := math.Log2(1+logK*u) / logDenominator
						p[i] = logValue*dstWhite + dither(x, y, i)
					}
				default:
					for i := 0; i < 4; i++ {
						p[i] = math.Max(0, linear[i]*(s[i]-srcBlack[i])*shade[i]) * (dstWhite - dstBlack[i])
					}
				}

				var out [4]uint16
				for i := 0; i < 4; i++ {
					out[i] = uint16(clamp(math.Round(p[i]+dstBlack[i]), 0, dstWhite))
				}

				dst[dstOffset] = out[0]
				dst[dstOffset+1] = out[1]
				dst[dstOffset+newWidth] = out[2]
				dst[dstOffset+newWidth+1] = out[3]
				dstOffset += 2
				continue
			}

			// Quad-Bayer at full resolution: a 4x4 block of four
			// same-color quads, transformed in place without demosaic.
			var s [16]float64
			var shade [16]float64
			offsets := [16][2]int{
				{0, 0}, {1, 0}, {0, 1}, {1, 1},
				{2, 0}, {3, 0}, {2, 1}, {3, 1},
				{0, 2}, {1, 2}, {0, 3}, {1, 3},
				{2, 2}, {3, 2}, {2, 3}, {3, 3},
			}
			for i, off := range offsets {
				s[i] = float64(raw[(srcY+off[1])*width+srcX+off[0]])
				shade[i] = sampleShade(float64(srcX+left+off[0]), float64(srcY+top+off[1]), i/4)
			}

			var p [16]float64
			for i := 0; i < 16; i++ {
				p[i] = linear[i%4] * (s[i] - srcBlack[i%4]) * shade[i]
			}

			if logActive {
				for i := 0; i < 16; i++ {
					logValue := math.Log2(1+logK*math.Max(0, p[i])) / logDenominator
					p[i] = logValue*dstWhite + dither(x, y, i%4)
				}
			} else {
				for i := 0; i < 16; i++ {
					p[i] = math.Max(0, p[i]) * (dstWhite - dstBlack[i%4])
				}
			}

			writes := [16]int{
				0, 1, newWidth, newWidth + 1,
				2, 3, newWidth + 2, newWidth + 3,
				2 * newWidth, 2*newWidth + 1, 3 * newWidth, 3*newWidth + 1,
				2*newWidth + 2, 2*newWidth + 3, 3*newWidth + 2, 3*newWidth + 3,
			}
			for i := 0; i < 16; i++ {
				dst[dstOffset+writes[i]] = uint16(clamp(math.Round(p[i]+dstBlack[i%4]), 0, dstWhite))
			}
			dstOffset += 4
		}

		if quadPath {
			dstOffset += newWidth * 3
		} else {
			dstOffset += newWidth
		}
	}

	result.Data = dst

	if logActive && !(keepInput && !applyShading) {
		result.Linearization = BuildLinearizationTable(int(math.Round(dstWhite)))
	}

	return result
}

// BuildLinearizationTable inverts the log curve for stored codes
// 0..whiteLevel: L[0]=0, L[white]=65535, monotone in between.
func BuildLinearizationTable(whiteLevel int) []uint16 {
	table := make([]uint16, whiteLevel+1)
	for i := range table {
		switch i {
		case 0:
			table[i] = 0
		case whiteLevel:
			table[i] = 65535
		default:
			normalized := float64(i) / float64(whiteLevel)
			linearValue := (math.Pow(2, normalized*logDenominator) - 1) / logK
			linearValue = clamp(linearValue, 0, 1)
			table[i] = uint16(math.Round(linearValue * 65535))
		}
	}
	return table
}

// dither derives a triangular dither in [-0.5, 0.5] from a fixed hash of
// the block position and pixel index, so renders stay reproducible.
func dither(x, y, i int) float64 {
	seed := uint32((x+(i&1))*1664525+(y+(i>>1))*1013904223) ^ 0xdeadbeef
	seed ^= seed >> 16
	seed *= 0x85ebca6b
	seed ^= seed >> 13
	seed *= 0xc2b2ae35
	seed ^= seed >> 16

	r1 := float64(seed&0xffff) / 65535
	r2 := float64((seed>>16)&0xffff) / 65535
	return (r1 + r2 - 1) * 0.5
}

// buildShadingGainMaps converts the frame's shading map into a sanitized
// DNG GainMap opcode covering the processed rectangle.
func buildShadingGainMaps(meta *data.FrameMetadata, imageWidth, imageHeight, left, top int) []dng.GainMap {
	pointsV := uint32(meta.LensShadingMapHeight)
	pointsH := uint32(meta.LensShadingMapWidth)
	if pointsV == 0 || pointsH == 0 || len(meta.LensShadingMap) == 0 {
		return nil
	}

	planes := uint32(len(meta.LensShadingMap))
	switch {
	case planes >= 4:
		planes = 4
	case planes >= 3:
		planes = 3
	default:
		planes = 1
	}

	rows := uint32(imageHeight)
	cols := uint32(imageWidth)

	rowPitch := rows
	if pointsV > 1 {
		rowPitch = maxUint32(1, (rows-1)/(pointsV-1))
	}
	colPitch := cols
	if pointsH > 1 {
		colPitch = maxUint32(1, (cols-1)/(pointsH-1))
	}

	g := dng.GainMap{
		Top:         uint32(maxInt(0, top)),
		Left:        uint32(maxInt(0, left)),
		Bottom:      uint32(maxInt(0, top) + imageHeight),
		Right:       uint32(maxInt(0, left) + imageWidth),
		Plane:       0,
		Planes:      planes,
		RowPitch:    rowPitch,
		ColPitch:    colPitch,
		MapPointsV:  pointsV,
		MapPointsH:  pointsH,
		MapSpacingV: float64(rowPitch) / float64(rows),
		MapSpacingH: float64(colPitch) / float64(cols),
		MapOriginV:  float64(maxInt(0, top)) / float64(rows),
		MapOriginH:  float64(maxInt(0, left)) / float64(cols),
		MapPlanes:   planes,
	}

	perPlane := int(pointsV) * int(pointsH)
	g.Gains = make([]float32, 0, perPlane*int(planes))
	for p := uint32(0); p < planes; p++ {
		srcPlane := int(p)
		if srcPlane >= len(meta.LensShadingMap) {
			srcPlane = 0
		}
		channel := meta.LensShadingMap[srcPlane]
		for i := 0; i < perPlane; i++ {
			gain := float32(1)
			if i < len(channel) {
				gain = float32(channel[i])
				if math.IsNaN(float64(gain)) || math.IsInf(float64(gain), 0) || gain <= 0 {
					gain = 1
				} else if gain > 16 {
					gain = 16
				}
			}
			g.Gains = append(g.Gains, gain)
		}
	}

	return []dng.GainMap{g}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func min16(bits int) int {
	if bits > 16 {
		return 16
	}
	return bits
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
