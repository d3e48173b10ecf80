package data

import (
	"encoding/json"
	"fmt"
)

// FrameMetadata is the per-frame capture metadata decoded from the
// container. All fields are read-only once parsed.
type FrameMetadata struct {
	Width  int
	Height int

	ISO          int
	ExposureTime float64 // nanoseconds

	DynamicBlackLevel [4]float64
	DynamicWhiteLevel float64
	AsShotNeutral     [3]float64

	LensShadingMap       [][]float64 // four channels, row-major W*H each
	LensShadingMapWidth  int
	LensShadingMapHeight int

	Orientation    Orientation
	OriginalWidth  int
	OriginalHeight int

	NeedRemosaic bool
	RowStride    int
	PixelFormat  string
}

type frameMetadataWire struct {
	AsShotNeutral        []float64   `json:"asShotNeutral"`
	DynamicBlackLevel    []float64   `json:"dynamicBlackLevel"`
	DynamicWhiteLevel    float64     `json:"dynamicWhiteLevel"`
	ExposureTime         float64     `json:"exposureTime"`
	Height               int         `json:"height"`
	ISO                  int         `json:"iso"`
	LensShadingMap       [][]float64 `json:"lensShadingMap"`
	LensShadingMapHeight int         `json:"lensShadingMapHeight"`
	LensShadingMapWidth  int         `json:"lensShadingMapWidth"`
	NeedRemosaic         bool        `json:"needRemosaic"`
	Orientation          *int        `json:"orientation"`
	OriginalHeight       int         `json:"originalHeight"`
	OriginalWidth        int         `json:"originalWidth"`
	PixelFormat          string      `json:"pixelFormat"`
	RowStride            int         `json:"rowStride"`
	Width                int         `json:"width"`
}

// ParseFrameMetadata decodes the JSON metadata block attached to a frame.
// Missing fields keep their zero defaults, except a missing or
// out-of-range orientation, which becomes OrientationInvalid; only
// malformed JSON fails.
func ParseFrameMetadata(raw []byte) (*FrameMetadata, error) {
	var wire frameMetadataWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("frame metadata: %w", err)
	}

	meta := &FrameMetadata{
		Width:                wire.Width,
		Height:               wire.Height,
		ISO:                  wire.ISO,
		ExposureTime:         wire.ExposureTime,
		DynamicWhiteLevel:    wire.DynamicWhiteLevel,
		LensShadingMap:       wire.LensShadingMap,
		LensShadingMapWidth:  wire.LensShadingMapWidth,
		LensShadingMapHeight: wire.LensShadingMapHeight,
		OriginalWidth:        wire.OriginalWidth,
		OriginalHeight:       wire.OriginalHeight,
		NeedRemosaic:         wire.NeedRemosaic,
		RowStride:            wire.RowStride,
		PixelFormat:          wire.PixelFormat,
	}

	for i := 0; i < len(wire.AsShotNeutral) && i < 3; i++ {
		meta.AsShotNeutral[i] = wire.AsShotNeutral[i]
	}
	for i := 0; i < len(wire.DynamicBlackLevel) && i < 4; i++ {
		meta.DynamicBlackLevel[i] = wire.DynamicBlackLevel[i]
	}

	meta.Orientation = OrientationInvalid
	if wire.Orientation != nil && *wire.Orientation >= 0 && *wire.Orientation < int(OrientationInvalid) {
		meta.Orientation = Orientation(*wire.Orientation)
	}

	return meta, nil
}

// ParseFrameExposure decodes only the exposure-relevant fields. Used by
// the mount-time baseline exposure scan, which touches every frame.
func ParseFrameExposure(raw []byte) (iso int, exposureNs float64, err error) {
	var wire struct {
		ExposureTime float64 `json:"exposureTime"`
		ISO          int     `json:"iso"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return 0, 0, fmt.Errorf("frame metadata: %w", err)
	}
	return wire.ISO, wire.ExposureTime, nil
}

// CameraConfig is the static per-recording camera configuration decoded
// from the container metadata.
type CameraConfig struct {
	BlackLevel [4]uint16
	WhiteLevel float64

	ColorMatrix1   [9]float64
	ColorMatrix2   [9]float64
	ForwardMatrix1 [9]float64
	ForwardMatrix2 [9]float64

	ColorIlluminant1 string
	ColorIlluminant2 string

	SensorArrangement string
	Flipped           bool
	BuildModel        string

	AudioChannels   int
	AudioSampleRate int
}

type cameraConfigWire struct {
	BlackLevel       []float64 `json:"blackLevel"`
	WhiteLevel       float64   `json:"whiteLevel"`
	ColorMatrix1     []float64 `json:"colorMatrix1"`
	ColorMatrix2     []float64 `json:"colorMatrix2"`
	ForwardMatrix1   []float64 `json:"forwardMatrix1"`
	ForwardMatrix2   []float64 `json:"forwardMatrix2"`
	ColorIlluminant1 string    `json:"colorIlluminant1"`
	ColorIlluminant2 string    `json:"colorIlluminant2"`
	SensorArrangement string   `json:"sensorArrangement"`
	ExtraData        struct {
		AudioChannels       int `json:"audioChannels"`
		AudioSampleRate     int `json:"audioSampleRate"`
		PostProcessSettings struct {
			Flipped  bool `json:"flipped"`
			Metadata struct {
				BuildModel string `json:"buildModel"`
			} `json:"metadata"`
		} `json:"postProcessSettings"`
	} `json:"extraData"`
}

// ParseCameraConfig decodes the container-level camera configuration.
func ParseCameraConfig(raw []byte) (*CameraConfig, error) {
	var wire cameraConfigWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("camera configuration: %w", err)
	}

	config := &CameraConfig{
		WhiteLevel:        wire.WhiteLevel,
		ColorIlluminant1:  wire.ColorIlluminant1,
		ColorIlluminant2:  wire.ColorIlluminant2,
		SensorArrangement: wire.SensorArrangement,
		Flipped:           wire.ExtraData.PostProcessSettings.Flipped,
		BuildModel:        wire.ExtraData.PostProcessSettings.Metadata.BuildModel,
		AudioChannels:     wire.ExtraData.AudioChannels,
		AudioSampleRate:   wire.ExtraData.AudioSampleRate,
	}

	for i := 0; i < len(wire.BlackLevel) && i < 4; i++ {
		config.BlackLevel[i] = uint16(wire.BlackLevel[i])
	}
	copyMatrix(&config.ColorMatrix1, wire.ColorMatrix1)
	copyMatrix(&config.ColorMatrix2, wire.ColorMatrix2)
	copyMatrix(&config.ForwardMatrix1, wire.ForwardMatrix1)
	copyMatrix(&config.ForwardMatrix2, wire.ForwardMatrix2)

	return config, nil
}

func copyMatrix(dst *[9]float64, src []float64) {
	for i := 0; i < len(src) && i < 9; i++ {
		dst[i] = src[i]
	}
}

// IsZeroMatrix reports whether every coefficient is zero. Zero matrices
// are skipped when assembling DNG color tags.
func IsZeroMatrix(m [9]float64) bool {
	for _, v := range m {
		if v != 0 {
			return false
		}
	}
	return true
}
