package render

import (
	"fmt"
	"math"

	"github.com/LeonardSander/motioncam-fs/codec"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/dng"
)

// SoftwareTag identifies the renderer in every emitted DNG.
const SoftwareTag = "MotionCam Tools"

// Params collects everything RenderDNG needs besides the pixel plane.
type Params struct {
	Meta        *data.FrameMetadata
	Config      *data.CameraConfig
	Calibration *data.CalibrationData // optional sidecar override
	RC          *data.RenderConfig

	FPS         float64
	FrameIndex  int
	TotalFrames int

	// BaselineExpValue is min(iso * exposureNs) over the whole capture,
	// used by exposure normalization.
	BaselineExpValue float64

	Keyframes *data.ExposureKeyframes
}

// RenderDNG runs the full pipeline for one raw Bayer frame: preprocess,
// pack, assemble tags, serialize.
func RenderDNG(raw []uint16, p *Params) ([]byte, error) {
	cfa, err := data.ParseCFA(p.Config.SensorArrangement)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	pre := Preprocess(raw, p.Meta.Width, p.Meta.Height, p.Meta, p.Config, p.RC)

	encodeBits := codec.RoundUpBits(pre.UsedBits)
	packed := codec.PackBits(pre.Data, pre.Width, pre.Height, encodeBits)

	img := &dng.Image{
		Width:           pre.Width,
		Height:          pre.Height,
		BitsPerSample:   encodeBits,
		SamplesPerPixel: 1,
		Photometric:     dng.PhotometricCFA,
		CFAPattern:      []byte{cfa[0], cfa[1], cfa[2], cfa[3]},
		Orientation:     p.Meta.Orientation.DNGOrientation(p.Config.Flipped),
		Software:        SoftwareTag,
		ISO:             p.Meta.ISO,
		ExposureTimeSec: p.Meta.ExposureTime / 1e9,
		TimeCode:        TimeCode(p.FrameIndex, p.FPS),
		FrameRate:       p.FPS,
		ActiveArea:      [4]uint32{0, 0, uint32(pre.Height), uint32(pre.Width)},
		Data:            packed,
	}

	applyCameraModel(img, p)
	applyColorTags(img, p)
	img.BaselineExposure = baselineExposure(p)

	if len(pre.Linearization) > 0 {
		img.LinearizationTable = pre.Linearization
		img.BlackLevel = [4]uint16{}
		img.WhiteLevel = 65534
	} else {
		img.BlackLevel = pre.BlackLevel
		img.WhiteLevel = uint32(pre.WhiteLevel)
	}

	if len(pre.GainMaps) > 0 {
		img.OpcodeList2 = dng.BuildOpcodeList(pre.GainMaps)
	}

	out, err := img.Encode()
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return out, nil
}

// applyCameraModel resolves the identification tags from the override
// presets or the recorded build model.
func applyCameraModel(img *dng.Image, p *Params) {
	model := ""
	if p.RC.Flags.Has(data.FlagCameraModelOverride) {
		model = p.RC.CameraModel
	}

	switch model {
	case "":
		img.UniqueCameraModel = p.Config.BuildModel
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

// applyColorTags fills calibration matrices and neutral point, with
// sidecar overrides taking precedence over the container configuration.
// All-zero matrices are skipped.
func applyColorTags(img *dng.Image, p *Params) {
	colorMatrix1 := p.Config.ColorMatrix1
	colorMatrix2 := p.Config.ColorMatrix2
	forwardMatrix1 := p.Config.ForwardMatrix1
	forwardMatrix2 := p.Config.ForwardMatrix2
	asShot := p.Meta.AsShotNeutral

	if cal := p.Calibration; cal != nil {
		if cal.HasColorMatrix1 {
			colorMatrix1 = cal.ColorMatrix1
		}
		if cal.HasColorMatrix2 {
			colorMatrix2 = cal.ColorMatrix2
		}
		if cal.HasForwardMatrix1 {
			forwardMatrix1 = cal.ForwardMatrix1
		}
		if cal.HasForwardMatrix2 {
			forwardMatrix2 = cal.ForwardMatrix2
		}
		if cal.HasAsShotNeutral {
			asShot = cal.AsShotNeutral
		}
	}

	if !data.IsZeroMatrix(colorMatrix1) {
		img.ColorMatrix1 = colorMatrix1[:]
	}
	if !data.IsZeroMatrix(colorMatrix2) {
		img.ColorMatrix2 = colorMatrix2[:]
	}
	if !data.IsZeroMatrix(forwardMatrix1) {
		img.ForwardMatrix1 = forwardMatrix1[:]
	}
	if !data.IsZeroMatrix(forwardMatrix2) {
		img.ForwardMatrix2 = forwardMatrix2[:]
	}

	img.CameraCalibration1 = dng.Identity3x3
	img.CameraCalibration2 = dng.Identity3x3
	img.AsShotNeutral = asShot[:]

	img.CalibrationIlluminant1 = data.ParseIlluminant(p.Config.ColorIlluminant1)
	img.CalibrationIlluminant2 = data.ParseIlluminant(p.Config.ColorIlluminant2)
}

// baselineExposure combines exposure normalization, the camera-model
// preset offset and the per-frame compensation ramp.
func baselineExposure(p *Params) float64 {
	exposure := 0.0

	if p.RC.Flags.Has(data.FlagCameraModelOverride) && p.RC.CameraModel == "Panasonic" {
		exposure -= 2
	}

	if p.RC.Flags.Has(data.FlagNormalizeExposure) && p.BaselineExpValue > 0 {
		sceneValue := float64(p.Meta.ISO) * p.Meta.ExposureTime
		if sceneValue > 0 {
			exposure += math.Log2(p.BaselineExpValue / sceneValue)
		}
	}

	if p.Keyframes != nil {
		exposure += p.Keyframes.GetExposureAtFrame(p.FrameIndex, p.TotalFrames)
	} else {
		exposure += p.RC.StaticExposure()
	}

	return exposure
}

// TimeCode encodes hh:mm:ss:ff as 8-byte SMPTE BCD for the frame index
// at the chosen rate.
func TimeCode(frameIndex int, fps float64) []byte {
	code := make([]byte, 8)
	if fps <= 0 {
		return code
	}

	seconds := float64(frameIndex) / fps
	hours := int(seconds) / 3600
	minutes := (int(seconds) / 60) % 60
	secs := int(seconds) % 60

	frames := 0
	if fps > 1 {
		frames = frameIndex % int(math.Round(fps))
	}

	code[0] = bcd(frames) & 0x3F
	code[1] = bcd(secs) & 0x7F
	code[2] = bcd(minutes) & 0x7F
	code[3] = bcd(hours) & 0x3F

	return code
}

func bcd(value int) byte {
	return byte((value/10)<<4 | value%10)
}
