package render

import (
	"fmt"
	"math"

	"github.com/LeonardSander/motioncam-fs/codec"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/dng"
)

// VideoParams drives the RGB render path used by the log-video ingest.
type VideoParams struct {
	RC          *data.RenderConfig
	Calibration *data.CalibrationData

	// CFAPhase applies when remosaicing is enabled; the ingest resolves
	// the precedence (sidecar, configuration, default).
	CFAPhase data.CFAPattern
	Remosaic bool

	FPS         float64
	FrameIndex  int
	TotalFrames int

	Keyframes *data.ExposureKeyframes
	IsHLG     bool
}

// logVideoBaseBits is the bit depth the log curve compresses full-range
// video into before any further reduction.
const logVideoBaseBits = 12

// RenderVideoDNG converts one full-range RGB16 frame from a log video
// into a DNG: optional log re-encoding with bit reduction, optional
// remosaic to a Bayer CFA, packing and assembly.
func RenderVideoDNG(rgb []uint16, width, height int, p *VideoParams) ([]byte, error) {
	if len(rgb) != width*height*3 {
		return nil, fmt.Errorf("render: rgb plane is %d samples, want %d", len(rgb), width*height*3)
	}

	reduction, logActive := p.RC.LogReduction()

	samples := rgb
	whiteLevel := 65535.0
	useBits := 16

	if logActive {
		useBits = maxInt(1, logVideoBaseBits-reduction)
		whiteLevel = math.Pow(2, float64(useBits)) - 1

		samples = make([]uint16, len(rgb))
		for i, s := range rgb {
			normalized := float64(s) / 65535
			logValue := math.Log2(1+logK*normalized) / logDenominator
			samples[i] = uint16(clamp(math.Round(logValue*whiteLevel), 0, whiteLevel))
		}
	}

	samplesPerPixel := 3
	photometric := dng.PhotometricRGB
	var cfaPattern []byte

	if p.Remosaic {
		samples = codec.RemosaicRGBToBayer(samples, width, height, p.CFAPhase)
		samplesPerPixel = 1
		photometric = dng.PhotometricCFA
		cfaPattern = []byte{p.CFAPhase[0], p.CFAPhase[1], p.CFAPhase[2], p.CFAPhase[3]}
	}

	encodeBits := codec.RoundUpBits(useBits)
	rowSamples := width * samplesPerPixel
	if group := packGroup(encodeBits); rowSamples%group != 0 {
		// Row would not end on a byte boundary; fall back to 16-bit.
		encodeBits = 16
	}
	packed := codec.PackBits(samples, rowSamples, height, encodeBits)

	img := &dng.Image{
		Width:           width,
		Height:          height,
		BitsPerSample:   encodeBits,
		SamplesPerPixel: samplesPerPixel,
		Photometric:     photometric,
		CFAPattern:      cfaPattern,
		Software:        SoftwareTag,
		TimeCode:        TimeCode(p.FrameIndex, p.FPS),
		FrameRate:       p.FPS,
		ActiveArea:      [4]uint32{0, 0, uint32(height), uint32(width)},
		ImageDescription: videoDescription(p, useBits),
		Data:            packed,
	}

	applyVideoCameraModel(img, p.RC)
	applyVideoColorTags(img, p.Calibration)
	img.BaselineExposure = videoBaselineExposure(p)

	if logActive {
		img.LinearizationTable = BuildLinearizationTable(int(whiteLevel))
		img.BlackLevel = [4]uint16{}
		img.WhiteLevel = 65534
	} else {
		img.BlackLevel = [4]uint16{}
		img.WhiteLevel = 65535
	}

	out, err := img.Encode()
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return out, nil
}

func packGroup(bits int) int {
	switch bits {
	case 2, 6, 10, 14:
		return 4
	case 4, 12:
		return 2
	default:
		return 1
	}
}

func videoDescription(p *VideoParams, useBits int) string {
	desc := fmt.Sprintf("Frame %d from log video", p.FrameIndex)
	if p.IsHLG {
		desc += " (HLG to Linear)"
	}
	if _, logActive := p.RC.LogReduction(); logActive {
		desc += fmt.Sprintf(" (Log %d-bit)", useBits)
	}
	if p.Remosaic {
		desc += fmt.Sprintf(" (Remosaiced %s)", p.CFAPhase)
	}
	return desc
}

func applyVideoCameraModel(img *dng.Image, rc *data.RenderConfig) {
	model := ""
	if rc.Flags.Has(data.FlagCameraModelOverride) {
		model = rc.CameraModel
	}

	switch model {
	case "":
		img.UniqueCameraModel = "Log Video"
	case "Blackmagic":
		img.UniqueCameraModel = "Blackmagic Pocket Cinema Camera 4K"
	case "Panasonic":
		img.UniqueCameraModel = "Panasonic Varicam RAW"
	case "Fujifilm", "Fujifilm X-T5":
		img.UniqueCameraModel = "Fujifilm X-T5"
		img.Make = "Fujifilm"
		img.Model = "X-T5"
	default:
		img.UniqueCameraModel = model
	}
}

func applyVideoColorTags(img *dng.Image, cal *data.CalibrationData) {
	if cal == nil {
		return
	}
	if cal.HasColorMatrix1 {
		img.ColorMatrix1 = cal.ColorMatrix1[:]
	}
	if cal.HasColorMatrix2 {
		img.ColorMatrix2 = cal.ColorMatrix2[:]
	}
	if cal.HasForwardMatrix1 {
		img.ForwardMatrix1 = cal.ForwardMatrix1[:]
	}
	if cal.HasForwardMatrix2 {
		img.ForwardMatrix2 = cal.ForwardMatrix2[:]
	}
	if cal.HasAsShotNeutral {
		img.AsShotNeutral = cal.AsShotNeutral[:]
	}
}

func videoBaselineExposure(p *VideoParams) float64 {
	exposure := 0.0
	if p.RC.Flags.Has(data.FlagCameraModelOverride) && p.RC.CameraModel == "Panasonic" {
		exposure -= 2
	}
	if p.Keyframes != nil {
		exposure += p.Keyframes.GetExposureAtFrame(p.FrameIndex, p.TotalFrames)
	} else {
		exposure += p.RC.StaticExposure()
	}
	return exposure
}
