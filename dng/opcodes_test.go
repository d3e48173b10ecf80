package dng

import (
	"encoding/binary"
	"testing"
)

func testGainMap() GainMap {
	g := GainMap{
		Top: 0, Left: 0, Bottom: 1080, Right: 1920,
		Plane: 0, Planes: 4,
		RowPitch: 108, ColPitch: 120,
		MapPointsV: 3, MapPointsH: 4,
		MapSpacingV: 0.1, MapSpacingH: 0.0625,
		MapOriginV: 0, MapOriginH: 0,
		MapPlanes: 4,
	}
	g.Gains = make([]float32, 4*3*4)
	for i := range g.Gains {
		g.Gains[i] = 1 + float32(i)*0.01
	}
	return g
}

func TestOpcodeList_RoundTrip(t *testing.T) {
	want := testGainMap()
	list := BuildOpcodeList([]GainMap{want})

	maps, err := ParseGainMaps(list)
	if err != nil {
		t.Fatalf("ParseGainMaps: %v", err)
	}
	if len(maps) != 1 {
		t.Fatalf("parsed %d maps, want 1", len(maps))
	}

	got := maps[0]
	if got.Bottom != want.Bottom || got.Right != want.Right {
		t.Errorf("bounds = %d,%d want %d,%d", got.Bottom, got.Right, want.Bottom, want.Right)
	}
	if got.MapPointsV != want.MapPointsV || got.MapPointsH != want.MapPointsH {
		t.Errorf("grid = %dx%d, want %dx%d", got.MapPointsH, got.MapPointsV, want.MapPointsH, want.MapPointsV)
	}
	if got.MapSpacingV != want.MapSpacingV {
		t.Errorf("spacing = %v, want %v", got.MapSpacingV, want.MapSpacingV)
	}
	if len(got.Gains) != len(want.Gains) {
		t.Fatalf("gains length = %d, want %d", len(got.Gains), len(want.Gains))
	}
	for i := range want.Gains {
		if got.Gains[i] != want.Gains[i] {
			t.Fatalf("gain %d = %v, want %v", i, got.Gains[i], want.Gains[i])
		}
	}
}

func TestParseGainMaps_SkipsUnknownOpcodes(t *testing.T) {
	g := testGainMap()

	// List with an unknown opcode before the gain map.
	unknownPayload := []byte{1, 2, 3, 4, 5, 6}
	gainList := BuildOpcodeList([]GainMap{g})

	list := make([]byte, 4)
	binary.BigEndian.PutUint32(list, 2)

	header := make([]byte, 16)
	binary.BigEndian.PutUint32(header, 99) // unknown id
	copy(header[4:], []byte{1, 3, 0, 0})
	binary.BigEndian.PutUint32(header[12:], uint32(len(unknownPayload)))
	list = append(list, header...)
	list = append(list, unknownPayload...)
	list = append(list, gainList[4:]...) // opcode entries of the built list

	maps, err := ParseGainMaps(list)
	if err != nil {
		t.Fatalf("ParseGainMaps: %v", err)
	}
	if len(maps) != 1 {
		t.Fatalf("parsed %d maps, want 1", len(maps))
	}
}

func TestParseGainMaps_RejectsOversizedOpcode(t *testing.T) {
	list := make([]byte, 4+16)
	binary.BigEndian.PutUint32(list, 1)
	binary.BigEndian.PutUint32(list[4:], OpcodeGainMap)
	// Declared size far beyond the list bounds.
	binary.BigEndian.PutUint32(list[16:], 1<<20)

	if _, err := ParseGainMaps(list); err == nil {
		t.Error("expected error for oversized opcode")
	}
}

func TestParseGainMaps_RejectsTruncatedGains(t *testing.T) {
	g := testGainMap()
	list := BuildOpcodeList([]GainMap{g})

	// Cut the gains short but keep the declared opcode size intact by
	// truncating the whole list.
	truncated := list[:len(list)-8]
	if _, err := ParseGainMaps(truncated); err == nil {
		t.Error("expected error for truncated opcode list")
	}
}

func TestParseGainMaps_EmptyList(t *testing.T) {
	var empty [4]byte
	maps, err := ParseGainMaps(empty[:])
	if err != nil {
		t.Fatalf("ParseGainMaps: %v", err)
	}
	if len(maps) != 0 {
		t.Errorf("parsed %d maps from empty list", len(maps))
	}

	if _, err := ParseGainMaps([]byte{1, 2}); err == nil {
		t.Error("expected error for short list")
	}
}
