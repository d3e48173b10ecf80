package data

import (
	"strconv"
	"strings"
)

// RenderFlags is the bitset of render options for a mount. Flags are
// combined with Set and queried with Has; the zero value renders frames
// exactly as captured.
type RenderFlags uint32

const (
	FlagDraft RenderFlags = 1 << iota
	FlagVignetteCorrection
	FlagNormalizeShading
	FlagDebugShading
	FlagVignetteOnlyColor
	FlagNormalizeExposure
	FlagFramerateConversion
	FlagCropping
	FlagCameraModelOverride
	FlagLogTransform
	FlagRemosaic
)

func (f RenderFlags) Has(flag RenderFlags) bool { return f&flag != 0 }

func (f RenderFlags) Set(flag RenderFlags) RenderFlags { return f | flag }

func (f RenderFlags) Clear(flag RenderFlags) RenderFlags { return f &^ flag }

func (f RenderFlags) String() string {
	if f == 0 {
		return "NONE"
	}

	names := []struct {
		flag RenderFlags
		name string
	}{
		{FlagDraft, "DRAFT"},
		{FlagVignetteCorrection, "VIGNETTE_CORRECTION"},
		{FlagVignetteOnlyColor, "VIGNETTE_ONLY_COLOR"},
		{FlagNormalizeShading, "NORMALIZE_SHADING_MAP"},
		{FlagDebugShading, "DEBUG_SHADING_MAP"},
		{FlagNormalizeExposure, "NORMALIZE_EXPOSURE"},
		{FlagFramerateConversion, "FRAMERATE_CONVERSION"},
		{FlagCropping, "CROPPING"},
		{FlagCameraModelOverride, "CAMMODEL_OVERRIDE"},
		{FlagLogTransform, "LOG_TRANSFORM"},
		{FlagRemosaic, "REMOSAIC"},
	}

	var parts []string
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}

	return strings.Join(parts, " | ")
}

// RenderConfig carries every per-mount render setting. It is replaced
// atomically on option updates; a replacement triggers a full rebuild of
// the synthetic entry table.
type RenderConfig struct {
	Flags      RenderFlags
	DraftScale int

	// CFRTarget selects the constant-frame-rate target: one of the named
	// policies or a literal frame rate.
	CFRTarget string

	// CropTarget is a centered crop as "WxH", empty for no crop.
	CropTarget string

	// CameraModel overrides the camera identification tags.
	CameraModel string

	// Levels overrides black/white level resolution: "Dynamic", "Static",
	// "W/B" or "W/B1,B2,B3,B4".
	Levels string

	// LogTransform selects the log curve: "", "Keep Input" or
	// "Reduce by Nbit" with N in {2,4,6,8}.
	LogTransform string

	// ExposureCompensation is either a static "Nev" value or a keyframe
	// list "pos:value, pos:value, ...".
	ExposureCompensation string

	QuadBayer string
	CFAPhase  string
}

// DefaultRenderConfig mirrors the defaults the desktop UI starts with.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		DraftScale:           1,
		CFRTarget:            "Prefer Drop Frame",
		CameraModel:          "Panasonic",
		Levels:               "Dynamic",
		LogTransform:         "Keep Input",
		ExposureCompensation: "0ev",
		QuadBayer:            "Remosaic",
		CFAPhase:             "bggr",
	}
}

// Scale resolves the effective downscale factor. Draft mode uses the
// configured scale clamped down to an even value; otherwise 1.
func (c *RenderConfig) Scale() int {
	if !c.Flags.Has(FlagDraft) {
		return 1
	}
	if c.DraftScale > 1 {
		return (c.DraftScale / 2) * 2
	}
	return 1
}

// LogReduction returns the bit reduction requested by the log transform
// and whether any log transform is active at all.
func (c *RenderConfig) LogReduction() (int, bool) {
	if !c.Flags.Has(FlagLogTransform) || c.LogTransform == "" {
		return 0, false
	}
	switch c.LogTransform {
	case "Reduce by 2bit":
		return 2, true
	case "Reduce by 4bit":
		return 4, true
	case "Reduce by 6bit":
		return 6, true
	case "Reduce by 8bit":
		return 8, true
	default:
		// "Keep Input" and anything unrecognized keep the input range.
		return 0, true
	}
}

// StaticExposure parses a static "Nev" exposure compensation. Keyframe
// lists and malformed values yield 0.
func (c *RenderConfig) StaticExposure() float64 {
	s := strings.TrimSpace(strings.TrimSuffix(strings.ToLower(c.ExposureCompensation), "ev"))
	if s == "" || strings.Contains(s, ":") {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseCrop parses a "WxH" crop target. ok is false for anything that is
// not two positive integers separated by 'x'.
func ParseCrop(target string) (width, height int, ok bool) {
	sep := strings.IndexByte(target, 'x')
	if sep < 0 {
		return 0, 0, false
	}

	w, err := strconv.Atoi(strings.TrimSpace(target[:sep]))
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(target[sep+1:]))
	if err != nil || h <= 0 {
		return 0, 0, false
	}

	return w, h, true
}

// ResolveLevels chooses the source black and white levels for a frame.
// "Dynamic" (and anything unparseable) uses the frame metadata, "Static"
// the camera configuration, and "W/B" or "W/B1,B2,B3,B4" literal values.
func ResolveLevels(levels string, meta *FrameMetadata, config *CameraConfig) (black [4]float64, white float64) {
	black = meta.DynamicBlackLevel
	white = meta.DynamicWhiteLevel

	switch {
	case levels == "" || levels == "Dynamic":
		return black, white

	case levels == "Static":
		for i, b := range config.BlackLevel {
			black[i] = float64(b)
		}
		return black, config.WhiteLevel
	}

	sep := strings.IndexByte(levels, '/')
	if sep < 0 {
		return black, white
	}

	w, err := strconv.ParseFloat(strings.TrimSpace(levels[:sep]), 64)
	if err != nil {
		return black, white
	}

	blackPart := levels[sep+1:]
	if strings.Contains(blackPart, ",") {
		parts := strings.Split(blackPart, ",")
		var values [4]float64
		for i := 0; i < len(parts) && i < 4; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
			if err != nil {
				return black, white
			}
			values[i] = v
		}
		return values, w
	}

	b, err := strconv.ParseFloat(strings.TrimSpace(blackPart), 64)
	if err != nil {
		return black, white
	}

	return [4]float64{b, b, b, b}, w
}
