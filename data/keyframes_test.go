package data

import (
	"math"
	"testing"
)

func TestParseKeyframes_Basic(t *testing.T) {
	kf, dropped := ParseKeyframes("0:-2, 0.5:0, 1:2")
	if kf == nil {
		t.Fatal("expected keyframes, got nil")
	}
	if len(dropped) != 0 {
		t.Errorf("unexpected dropped pairs: %v", dropped)
	}
	if len(kf.Keyframes()) != 3 {
		t.Fatalf("expected 3 keyframes, got %d", len(kf.Keyframes()))
	}
}

func TestParseKeyframes_StartEndSynonyms(t *testing.T) {
	kf, _ := ParseKeyframes("start:-1, end:1")
	if kf == nil {
		t.Fatal("expected keyframes, got nil")
	}

	kfs := kf.Keyframes()
	if kfs[0].Position != 0 || kfs[1].Position != 1 {
		t.Errorf("start/end not mapped to 0/1: %+v", kfs)
	}
}

func TestParseKeyframes_DropsInvalid(t *testing.T) {
	kf, dropped := ParseKeyframes("0:0, 1.5:2, abc:1, 0.5:xyz, 1:1")
	if kf == nil {
		t.Fatal("expected keyframes, got nil")
	}
	if len(kf.Keyframes()) != 2 {
		t.Errorf("expected 2 surviving keyframes, got %d", len(kf.Keyframes()))
	}
	if len(dropped) != 3 {
		t.Errorf("expected 3 dropped pairs, got %v", dropped)
	}
}

func TestParseKeyframes_EmptyAndStatic(t *testing.T) {
	if kf, _ := ParseKeyframes(""); kf != nil {
		t.Error("empty input should yield nil")
	}
	if kf, _ := ParseKeyframes("0ev"); kf != nil {
		t.Error("static EV input should yield nil")
	}
}

func TestGetExposureAt_HitsKeyframeValues(t *testing.T) {
	kf, _ := ParseKeyframes("0:-2, 0.25:1, 0.5:0, 1:2")
	for _, want := range kf.Keyframes() {
		got := kf.GetExposureAt(want.Position)
		if math.Abs(got-want.Value) > 1e-9 {
			t.Errorf("GetExposureAt(%v) = %v, want %v", want.Position, got, want.Value)
		}
	}
}

func TestGetExposureAt_ClampsOutsideSpan(t *testing.T) {
	kf, _ := ParseKeyframes("0.25:1, 0.75:3")
	if got := kf.GetExposureAt(0); got != 1 {
		t.Errorf("before first keyframe: got %v, want 1", got)
	}
	if got := kf.GetExposureAt(1); got != 3 {
		t.Errorf("after last keyframe: got %v, want 3", got)
	}
}

func TestGetExposureAt_SingleKeyframeConstant(t *testing.T) {
	kf, _ := ParseKeyframes("0.5:-3")
	for _, pos := range []float64{0, 0.25, 0.5, 0.75, 1} {
		if got := kf.GetExposureAt(pos); got != -3 {
			t.Errorf("GetExposureAt(%v) = %v, want -3", pos, got)
		}
	}
}

func TestGetExposureAtFrame_MidpointOfRamp(t *testing.T) {
	kf, _ := ParseKeyframes("0:-2, 0.5:0, 1:2")

	// Frame 25 of 51 lands exactly on the middle keyframe.
	got := kf.GetExposureAtFrame(25, 51)
	if math.Abs(got) > 1e-9 {
		t.Errorf("GetExposureAtFrame(25, 51) = %v, want 0", got)
	}
}

func TestGetExposureAt_Continuity(t *testing.T) {
	kf, _ := ParseKeyframes("0:0, 0.5:2, 1:0")

	// Sample densely; adjacent samples must not jump.
	prev := kf.GetExposureAt(0)
	for i := 1; i <= 1000; i++ {
		pos := float64(i) / 1000
		cur := kf.GetExposureAt(pos)
		if math.Abs(cur-prev) > 0.05 {
			t.Fatalf("discontinuity at %v: %v -> %v", pos, prev, cur)
		}
		prev = cur
	}
}

func TestComputeDerivatives_SmoothExtremum(t *testing.T) {
	kf, _ := ParseKeyframes("0:0, 0.5:2, 1:0")
	mid := kf.Keyframes()[1]
	if mid.Derivative != 0 {
		t.Errorf("extremum derivative = %v, want 0", mid.Derivative)
	}
}

func TestComputeDerivatives_MonotoneInterior(t *testing.T) {
	kf, _ := ParseKeyframes("0:0, 0.5:1, 1:4")
	mid := kf.Keyframes()[1]

	// Average of neighbor slopes: (2 + 6) / 2 = 4.
	if math.Abs(mid.Derivative-4) > 1e-9 {
		t.Errorf("monotone interior derivative = %v, want 4", mid.Derivative)
	}
}
