package dng

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

var le = binary.LittleEndian

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte // little-endian encoded value bytes
}

type encoder struct {
	entries []ifdEntry
}

func (e *encoder) add(tag, typ uint16, count uint32, data []byte) {
	e.entries = append(e.entries, ifdEntry{tag: tag, typ: typ, count: count, data: data})
}

func (e *encoder) addShorts(tag uint16, vals ...uint16) {
	buf := make([]byte, len(vals)*2)
	for i, v := range vals {
		le.PutUint16(buf[i*2:], v)
	}
	e.add(tag, typeShort, uint32(len(vals)), buf)
}

func (e *encoder) addLongs(tag uint16, vals ...uint32) {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		le.PutUint32(buf[i*4:], v)
	}
	e.add(tag, typeLong, uint32(len(vals)), buf)
}

func (e *encoder) addBytes(tag uint16, typ uint16, vals []byte) {
	e.add(tag, typ, uint32(len(vals)), vals)
}

func (e *encoder) addASCII(tag uint16, s string) {
	buf := append([]byte(s), 0)
	e.add(tag, typeASCII, uint32(len(buf)), buf)
}

func (e *encoder) addRationals(tag uint16, vals ...[2]uint32) {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		le.PutUint32(buf[i*8:], v[0])
		le.PutUint32(buf[i*8+4:], v[1])
	}
	e.add(tag, typeRational, uint32(len(vals)), buf)
}

func (e *encoder) addSRationals(tag uint16, vals ...[2]int32) {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		le.PutUint32(buf[i*8:], uint32(v[0]))
		le.PutUint32(buf[i*8+4:], uint32(v[1]))
	}
	e.add(tag, typeSRational, uint32(len(vals)), buf)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// unsignedRational approximates a non-negative float with denominator up
// to 1e6, reduced to lowest terms.
func unsignedRational(v float64) [2]uint32 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return [2]uint32{0, 1}
	}
	den := int64(1000000)
	num := int64(math.Round(v * float64(den)))
	if num == 0 {
		return [2]uint32{0, 1}
	}
	d := gcd(num, den)
	return [2]uint32{uint32(num / d), uint32(den / d)}
}

func signedRational(v float64) [2]int32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return [2]int32{0, 1}
	}
	den := int64(10000)
	num := int64(math.Round(v * float64(den)))
	d := gcd(num, den)
	if d == 0 {
		return [2]int32{0, 1}
	}
	return [2]int32{int32(num / d), int32(den / d)}
}

func matrixRationals(m []float64) [][2]int32 {
	out := make([][2]int32, len(m))
	for i, v := range m {
		out[i] = signedRational(v)
	}
	return out
}

// FrameRateFraction expresses a frame rate as an exact-ish fraction over
// base 1001, so 29.97 becomes 30000/1001 and integer rates reduce fully.
func FrameRateFraction(fps float64) (int32, int32) {
	if fps <= 0 {
		return 0, 1
	}
	num := int64(math.Round(fps * 1001))
	den := int64(1001)
	d := gcd(num, den)
	return int32(num / d), int32(den / d)
}

// Encode serializes the image as a little-endian TIFF stream with a
// single IFD followed by the value area and the image strip.
func (img *Image) Encode() ([]byte, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("dng: invalid dimensions %dx%d", img.Width, img.Height)
	}
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("dng: no image data")
	}
	spp := img.SamplesPerPixel
	if spp != 1 && spp != 3 {
		return nil, fmt.Errorf("dng: samples per pixel must be 1 or 3, got %d", spp)
	}

	var e encoder

	e.addLongs(tagNewSubfileType, 0)
	e.addLongs(tagImageWidth, uint32(img.Width))
	e.addLongs(tagImageLength, uint32(img.Height))

	bps := make([]uint16, spp)
	sampleFormat := make([]uint16, spp)
	for i := range bps {
		bps[i] = uint16(img.BitsPerSample)
		sampleFormat[i] = 1
	}
	e.addShorts(tagBitsPerSample, bps...)
	e.addShorts(tagSampleFormat, sampleFormat...)

	e.addShorts(tagCompression, compressionNone)
	e.addShorts(tagPhotometric, uint16(img.Photometric))
	e.addShorts(tagSamplesPerPixel, uint16(spp))
	e.addLongs(tagRowsPerStrip, uint32(img.Height))
	e.addShorts(tagPlanarConfiguration, planarChunky)
	e.addRationals(tagXResolution, [2]uint32{300, 1})
	e.addRationals(tagYResolution, [2]uint32{300, 1})
	e.addShorts(tagResolutionUnit, 2)

	// Strip location is patched once the layout is known.
	e.addLongs(tagStripOffsets, 0)
	e.addLongs(tagStripByteCounts, uint32(len(img.Data)))

	if img.Orientation > 0 {
		e.addShorts(tagOrientation, uint16(img.Orientation))
	}
	if img.ImageDescription != "" {
		e.addASCII(tagImageDescription, img.ImageDescription)
	}
	if img.Make != "" {
		e.addASCII(tagMake, img.Make)
	}
	if img.Model != "" {
		e.addASCII(tagModel, img.Model)
	}
	if img.Software != "" {
		e.addASCII(tagSoftware, img.Software)
	}

	if len(img.CFAPattern) == 4 {
		e.addShorts(tagCFARepeatPatternDim, 2, 2)
		e.addBytes(tagCFAPattern, typeByte, img.CFAPattern)
		e.addShorts(tagCFALayout, cfaLayoutRectangular)
	}

	if img.ExposureTimeSec > 0 {
		e.addRationals(tagExposureTime, unsignedRational(img.ExposureTimeSec))
	}
	if img.ISO > 0 {
		e.addShorts(tagISOSpeedRatings, uint16(img.ISO))
	}

	e.addBytes(tagDNGVersion, typeByte, []byte{1, 4, 0, 0})
	e.addBytes(tagDNGBackwardVersion, typeByte, []byte{1, 1, 0, 0})

	if img.UniqueCameraModel != "" {
		e.addASCII(tagUniqueCameraModel, img.UniqueCameraModel)
	}

	if len(img.LinearizationTable) > 0 {
		e.addShorts(tagLinearizationTable, img.LinearizationTable...)
	}

	e.addShorts(tagBlackLevelRepeatDim, 2, 2)
	e.addShorts(tagBlackLevel, img.BlackLevel[0], img.BlackLevel[1], img.BlackLevel[2], img.BlackLevel[3])
	e.addLongs(tagWhiteLevel, img.WhiteLevel)

	if len(img.ColorMatrix1) == 9 {
		e.addSRationals(tagColorMatrix1, matrixRationals(img.ColorMatrix1)...)
	}
	if len(img.ColorMatrix2) == 9 {
		e.addSRationals(tagColorMatrix2, matrixRationals(img.ColorMatrix2)...)
	}
	if len(img.CameraCalibration1) == 9 {
		e.addSRationals(tagCameraCalibration1, matrixRationals(img.CameraCalibration1)...)
	}
	if len(img.CameraCalibration2) == 9 {
		e.addSRationals(tagCameraCalibration2, matrixRationals(img.CameraCalibration2)...)
	}
	if len(img.ForwardMatrix1) == 9 {
		e.addSRationals(tagForwardMatrix1, matrixRationals(img.ForwardMatrix1)...)
	}
	if len(img.ForwardMatrix2) == 9 {
		e.addSRationals(tagForwardMatrix2, matrixRationals(img.ForwardMatrix2)...)
	}
	if len(img.AsShotNeutral) == 3 {
		e.addRationals(tagAsShotNeutral,
			unsignedRational(img.AsShotNeutral[0]),
			unsignedRational(img.AsShotNeutral[1]),
			unsignedRational(img.AsShotNeutral[2]))
	}

	e.addSRationals(tagBaselineExposure, signedRational(img.BaselineExposure))

	if img.CalibrationIlluminant1 > 0 {
		e.addShorts(tagCalibrationIllum1, uint16(img.CalibrationIlluminant1))
	}
	if img.CalibrationIlluminant2 > 0 {
		e.addShorts(tagCalibrationIllum2, uint16(img.CalibrationIlluminant2))
	}

	if img.ActiveArea != [4]uint32{} {
		e.addLongs(tagActiveArea, img.ActiveArea[0], img.ActiveArea[1], img.ActiveArea[2], img.ActiveArea[3])
	}

	if len(img.OpcodeList2) > 0 {
		e.addBytes(tagOpcodeList2, typeUndefined, img.OpcodeList2)
	}

	if len(img.TimeCode) == 8 {
		e.addBytes(tagTimeCodes, typeByte, img.TimeCode)
	}
	if img.FrameRate > 0 {
		num, den := FrameRateFraction(img.FrameRate)
		e.addSRationals(tagFrameRate, [2]int32{num, den})
	}

	return e.serialize(img.Data)
}

// serialize lays out header, IFD, out-of-line values and the strip.
func (e *encoder) serialize(strip []byte) ([]byte, error) {
	sort.Slice(e.entries, func(i, j int) bool { return e.entries[i].tag < e.entries[j].tag })

	const headerSize = 8
	ifdSize := 2 + len(e.entries)*12 + 4
	valueStart := headerSize + ifdSize

	// Assign out-of-line offsets, keeping everything word aligned.
	cursor := valueStart
	offsets := make([]int, len(e.entries))
	for i, entry := range e.entries {
		if len(entry.data) > 4 {
			if cursor%2 == 1 {
				cursor++
			}
			offsets[i] = cursor
			cursor += len(entry.data)
		}
	}
	if cursor%2 == 1 {
		cursor++
	}
	stripOffset := cursor

	// Patch the strip offset now that it is known.
	for i := range e.entries {
		if e.entries[i].tag == tagStripOffsets {
			le.PutUint32(e.entries[i].data, uint32(stripOffset))
		}
	}

	out := make([]byte, stripOffset+len(strip))
	out[0] = 'I'
	out[1] = 'I'
	le.PutUint16(out[2:], 42)
	le.PutUint32(out[4:], headerSize)

	le.PutUint16(out[headerSize:], uint16(len(e.entries)))
	pos := headerSize + 2
	for i, entry := range e.entries {
		le.PutUint16(out[pos:], entry.tag)
		le.PutUint16(out[pos+2:], entry.typ)
		le.PutUint32(out[pos+4:], entry.count)
		if len(entry.data) > 4 {
			le.PutUint32(out[pos+8:], uint32(offsets[i]))
			copy(out[offsets[i]:], entry.data)
		} else {
			copy(out[pos+8:pos+12], entry.data)
		}
		pos += 12
	}
	// Next-IFD offset stays zero: single image.

	copy(out[stripOffset:], strip)

	return out, nil
}
