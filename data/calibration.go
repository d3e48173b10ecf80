package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// CalibrationData is the optional sidecar override for color processing.
// It is loaded from a JSON file with the same basename as the source and
// only takes effect when at least one field is present. Matrix values may
// be given either as JSON arrays or as whitespace-separated strings, and
// the file may contain comments.
type CalibrationData struct {
	ColorMatrix1   [9]float64
	ColorMatrix2   [9]float64
	ForwardMatrix1 [9]float64
	ForwardMatrix2 [9]float64
	AsShotNeutral  [3]float64

	HasColorMatrix1   bool
	HasColorMatrix2   bool
	HasForwardMatrix1 bool
	HasForwardMatrix2 bool
	HasAsShotNeutral  bool

	CFAPhase string
}

// SidecarPath returns the calibration sidecar path for a source file:
// same directory, same basename, ".json" extension.
func SidecarPath(srcPath string) string {
	base := filepath.Base(srcPath)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	return filepath.Join(filepath.Dir(srcPath), base+".json")
}

// LoadCalibration reads the sidecar for srcPath. A missing file is not an
// error; both return values are nil.
func LoadCalibration(srcPath string) (*CalibrationData, error) {
	raw, err := os.ReadFile(SidecarPath(srcPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("calibration sidecar: %w", err)
	}
	return ParseCalibration(raw)
}

// ParseCalibration parses calibration JSON. Returns nil (no error) when no
// recognized field is present.
func ParseCalibration(raw []byte) (*CalibrationData, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(raw), &fields); err != nil {
		return nil, fmt.Errorf("calibration sidecar: %w", err)
	}

	var cal CalibrationData

	if v, ok := fields["colorMatrix1"]; ok {
		cal.HasColorMatrix1 = parseFloats(v, cal.ColorMatrix1[:])
	}
	if v, ok := fields["colorMatrix2"]; ok {
		cal.HasColorMatrix2 = parseFloats(v, cal.ColorMatrix2[:])
	}
	if v, ok := fields["forwardMatrix1"]; ok {
		cal.HasForwardMatrix1 = parseFloats(v, cal.ForwardMatrix1[:])
	}
	if v, ok := fields["forwardMatrix2"]; ok {
		cal.HasForwardMatrix2 = parseFloats(v, cal.ForwardMatrix2[:])
	}
	if v, ok := fields["asShotNeutral"]; ok {
		cal.HasAsShotNeutral = parseFloats(v, cal.AsShotNeutral[:])
	}
	if v, ok := fields["cfaPhase"]; ok {
		var phase string
		if err := json.Unmarshal(v, &phase); err == nil {
			cal.CFAPhase = strings.ToLower(strings.TrimSpace(phase))
		}
	}

	if !cal.HasColorMatrix1 && !cal.HasColorMatrix2 &&
		!cal.HasForwardMatrix1 && !cal.HasForwardMatrix2 &&
		!cal.HasAsShotNeutral && cal.CFAPhase == "" {
		return nil, nil
	}

	return &cal, nil
}

// parseFloats fills dst from either a JSON number array or a
// whitespace-separated string. Partial input fills a prefix.
func parseFloats(raw json.RawMessage, dst []float64) bool {
	var values []float64
	if err := json.Unmarshal(raw, &values); err == nil {
		for i := 0; i < len(values) && i < len(dst); i++ {
			dst[i] = values[i]
		}
		return len(values) > 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}

	parts := strings.Fields(s)
	n := 0
	for i := 0; i < len(parts) && n < len(dst); i++ {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			break
		}
		dst[n] = v
		n++
	}
	return n > 0
}

// ExampleCalibrationJSON is written next to a source on request so users
// have a template to edit. Underscored keys are ignored by the parser.
const ExampleCalibrationJSON = `{
  "_comment": "Calibration data for DNG color processing",
  "_comment2": "Matrix values can be separated by comma or space",
  "_comment3": "Remove the leading _ from a key to enable the override.",
  "_colorMatrix1": [0.7643, -0.2137, -0.0822, -0.5013, 1.3478, 0.1644, -0.1315, 0.1972, 0.5588],
  "_colorMatrix2": [0.9329, -0.3914, -0.0326, -0.5806, 1.4092, 0.1827, -0.0913, 0.1761, 0.5872],
  "_forwardMatrix1": [0.6484, 0.2734, 0.0469, 0.2344, 0.8984, -0.1328, 0.0469, -0.1797, 0.9609],
  "_forwardMatrix2": [0.6875, 0.1563, 0.125, 0.2734, 0.7578, -0.0313, 0.0859, -0.4688, 1.2109],
  "_asShotNeutral": [0.5, 1.0, 0.5],
  "_comment4": "Remosaic Bayer phases: rggb grbg gbrg bggr (default bggr)",
  "_cfaPhase": "bggr"
}`
