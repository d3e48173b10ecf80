package data

import "testing"

func TestRenderFlags_SetHasClear(t *testing.T) {
	var f RenderFlags

	f = f.Set(FlagDraft).Set(FlagLogTransform)
	if !f.Has(FlagDraft) || !f.Has(FlagLogTransform) {
		t.Fatalf("flags not set: %s", f)
	}
	if f.Has(FlagCropping) {
		t.Error("unexpected flag set")
	}

	f = f.Clear(FlagDraft)
	if f.Has(FlagDraft) {
		t.Error("flag not cleared")
	}
	if !f.Has(FlagLogTransform) {
		t.Error("clear removed unrelated flag")
	}
}

func TestRenderFlags_String(t *testing.T) {
	if got := RenderFlags(0).String(); got != "NONE" {
		t.Errorf("zero flags = %q, want NONE", got)
	}

	f := FlagDraft | FlagCropping
	got := f.String()
	if got != "DRAFT | CROPPING" {
		t.Errorf("String() = %q", got)
	}
}

func TestRenderConfig_Scale(t *testing.T) {
	tests := []struct {
		flags RenderFlags
		scale int
		want  int
	}{
		{0, 4, 1},
		{FlagDraft, 1, 1},
		{FlagDraft, 2, 2},
		{FlagDraft, 4, 4},
		{FlagDraft, 5, 4},
		{FlagDraft, 8, 8},
	}

	for _, tt := range tests {
		c := RenderConfig{Flags: tt.flags, DraftScale: tt.scale}
		if got := c.Scale(); got != tt.want {
			t.Errorf("Scale(flags=%s, draft=%d) = %d, want %d", tt.flags, tt.scale, got, tt.want)
		}
	}
}

func TestRenderConfig_LogReduction(t *testing.T) {
	tests := []struct {
		transform string
		flags     RenderFlags
		reduction int
		active    bool
	}{
		{"", FlagLogTransform, 0, false},
		{"Keep Input", 0, 0, false},
		{"Keep Input", FlagLogTransform, 0, true},
		{"Reduce by 2bit", FlagLogTransform, 2, true},
		{"Reduce by 4bit", FlagLogTransform, 4, true},
		{"Reduce by 6bit", FlagLogTransform, 6, true},
		{"Reduce by 8bit", FlagLogTransform, 8, true},
		{"bogus", FlagLogTransform, 0, true},
	}

	for _, tt := range tests {
		c := RenderConfig{Flags: tt.flags, LogTransform: tt.transform}
		reduction, active := c.LogReduction()
		if reduction != tt.reduction || active != tt.active {
			t.Errorf("LogReduction(%q, %s) = (%d, %v), want (%d, %v)",
				tt.transform, tt.flags, reduction, active, tt.reduction, tt.active)
		}
	}
}

func TestRenderConfig_StaticExposure(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"0ev", 0},
		{"1.5ev", 1.5},
		{"-2ev", -2},
		{"3", 3},
		{"0:-2, 1:2", 0},
		{"junk", 0},
	}

	for _, tt := range tests {
		c := RenderConfig{ExposureCompensation: tt.input}
		if got := c.StaticExposure(); got != tt.want {
			t.Errorf("StaticExposure(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseCrop(t *testing.T) {
	tests := []struct {
		input  string
		w, h   int
		wantOK bool
	}{
		{"1920x1080", 1920, 1080, true},
		{"4096x2160", 4096, 2160, true},
		{"", 0, 0, false},
		{"1920", 0, 0, false},
		{"0x100", 0, 0, false},
		{"axb", 0, 0, false},
	}

	for _, tt := range tests {
		w, h, ok := ParseCrop(tt.input)
		if ok != tt.wantOK || w != tt.w || h != tt.h {
			t.Errorf("ParseCrop(%q) = (%d, %d, %v), want (%d, %d, %v)",
				tt.input, w, h, ok, tt.w, tt.h, tt.wantOK)
		}
	}
}

func TestResolveLevels(t *testing.T) {
	meta := &FrameMetadata{
		DynamicBlackLevel: [4]float64{64, 64, 64, 64},
		DynamicWhiteLevel: 1023,
	}
	config := &CameraConfig{
		BlackLevel: [4]uint16{60, 60, 60, 60},
		WhiteLevel: 4095,
	}

	tests := []struct {
		levels    string
		wantBlack [4]float64
		wantWhite float64
	}{
		{"Dynamic", [4]float64{64, 64, 64, 64}, 1023},
		{"", [4]float64{64, 64, 64, 64}, 1023},
		{"Static", [4]float64{60, 60, 60, 60}, 4095},
		{"1023/64", [4]float64{64, 64, 64, 64}, 1023},
		{"4095/63.5", [4]float64{63.5, 63.5, 63.5, 63.5}, 4095},
		{"1023/60,61,62,63", [4]float64{60, 61, 62, 63}, 1023},
		{"garbage", [4]float64{64, 64, 64, 64}, 1023},
		{"1023/one", [4]float64{64, 64, 64, 64}, 1023},
	}

	for _, tt := range tests {
		black, white := ResolveLevels(tt.levels, meta, config)
		if black != tt.wantBlack || white != tt.wantWhite {
			t.Errorf("ResolveLevels(%q) = (%v, %v), want (%v, %v)",
				tt.levels, black, white, tt.wantBlack, tt.wantWhite)
		}
	}
}

func TestParseCFA(t *testing.T) {
	for _, name := range []string{"rggb", "bggr", "grbg", "gbrg"} {
		p, err := ParseCFA(name)
		if err != nil {
			t.Fatalf("ParseCFA(%q): %v", name, err)
		}
		if p.String() != name {
			t.Errorf("round trip %q -> %q", name, p.String())
		}
	}

	if _, err := ParseCFA("xyzw"); err == nil {
		t.Error("expected error for invalid arrangement")
	}
}

func TestDNGOrientation(t *testing.T) {
	tests := []struct {
		orientation Orientation
		flipped     bool
		want        int
	}{
		{OrientationPortrait, false, DNGOrientationRotate90CW},
		{OrientationPortrait, true, DNGOrientationMirror90CW},
		{OrientationReversePortrait, false, DNGOrientationRotate90CCW},
		{OrientationReversePortrait, true, DNGOrientationMirror90CCW},
		{OrientationLandscape, false, DNGOrientationNormal},
		{OrientationLandscape, true, DNGOrientationMirror},
		{OrientationReverseLandscape, false, DNGOrientationRotate180},
		{OrientationReverseLandscape, true, DNGOrientationMirror180},
		{OrientationInvalid, false, DNGOrientationUnknown},
	}

	for _, tt := range tests {
		if got := tt.orientation.DNGOrientation(tt.flipped); got != tt.want {
			t.Errorf("DNGOrientation(%v, %v) = %d, want %d", tt.orientation, tt.flipped, got, tt.want)
		}
	}
}
