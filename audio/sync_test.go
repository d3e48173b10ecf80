package audio

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/LeonardSander/motioncam-fs/log"
)

func TestSync_PositiveDrift_TrimsFront(t *testing.T) {
	// Audio timestamped 1ms after video at 1kHz mono: one frame trimmed.
	chunks := []Chunk{{Timestamp: 1_000_000, Samples: []int16{1, 2, 3, 4}}}

	out := Sync(chunks, 0, 1000, 1, log.Discard())

	if len(out) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out))
	}
	if len(out[0].Samples) != 3 || out[0].Samples[0] != 2 {
		t.Errorf("front not trimmed: %v", out[0].Samples)
	}
}

func TestSync_TrimsAcrossChunks(t *testing.T) {
	// 3ms of drift at 1kHz mono: the whole first chunk plus one sample.
	chunks := []Chunk{
		{Timestamp: 3_000_000, Samples: []int16{1, 2}},
		{Timestamp: 5_000_000, Samples: []int16{3, 4, 5}},
	}

	out := Sync(chunks, 0, 1000, 1, log.Discard())

	if len(out) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out))
	}
	if len(out[0].Samples) != 2 || out[0].Samples[0] != 4 {
		t.Errorf("wrong samples after trim: %v", out[0].Samples)
	}
}

func TestSync_NegativeDrift_PadsSilence(t *testing.T) {
	// Audio starts 100ms before video: silence fills the gap and the
	// stream is re-anchored at frame zero.
	chunks := []Chunk{{Timestamp: -100_000_000, Samples: make([]int16, 96)}}

	out := Sync(chunks, 0, 48000, 2, log.Discard())

	if len(out) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(out))
	}
	wantSilence := 4800 * 2 // 100ms at 48kHz stereo
	if len(out[0].Samples) != wantSilence {
		t.Errorf("silence samples = %d, want %d", len(out[0].Samples), wantSilence)
	}
	if out[0].Timestamp != 0 {
		t.Errorf("stream starts at %dns, want frame zero", out[0].Timestamp)
	}
	if out[1].Timestamp != 0 {
		t.Errorf("shifted chunk timestamp = %d, want 0", out[1].Timestamp)
	}
}

func TestSync_ExcessiveDriftUntouched(t *testing.T) {
	chunks := []Chunk{{Timestamp: 2_000_000_000, Samples: []int16{1, 2, 3}}}

	out := Sync(chunks, 0, 48000, 1, log.Discard())

	if len(out) != 1 || out[0].Timestamp != 2_000_000_000 || len(out[0].Samples) != 3 {
		t.Errorf("chunks modified despite >1s drift: %+v", out)
	}
}

func TestSync_ZeroDriftNoChange(t *testing.T) {
	chunks := []Chunk{{Timestamp: 0, Samples: []int16{7, 8}}}

	out := Sync(chunks, 0, 48000, 1, log.Discard())

	if len(out) != 2 {
		// Zero drift pads zero silence frames, which is harmless.
		if len(out) != 1 {
			t.Fatalf("unexpected chunk count %d", len(out))
		}
	}
	total := 0
	for _, c := range out {
		total += len(c.Samples)
	}
	if total != 2 {
		t.Errorf("sample count changed: %d", total)
	}
}

func TestToFraction(t *testing.T) {
	tests := []struct {
		fps      float64
		num, den int
	}{
		{29.97, 30000, 1001},
		{23.976, 24000, 1001},
		{30, 30, 1},
		{25, 25, 1},
		{0, 0, 1},
	}

	for _, tt := range tests {
		num, den := ToFraction(tt.fps, 1001)
		if num != tt.num || den != tt.den {
			t.Errorf("ToFraction(%v) = %d/%d, want %d/%d", tt.fps, num, den, tt.num, tt.den)
		}
	}
}

func TestEncodeWAV_ContainsIXMLBeforeData(t *testing.T) {
	chunks := []Chunk{{Samples: []int16{0, 1, -1, 32767, -32768, 0}}}

	buf, err := EncodeWAV(chunks, 2, 48000, 30000, 1001)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if string(buf[:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		t.Fatal("not a RIFF/WAVE stream")
	}

	riffSize := int(binary.LittleEndian.Uint32(buf[4:8]))
	if riffSize != len(buf)-8 {
		t.Errorf("RIFF size = %d, want %d", riffSize, len(buf)-8)
	}

	var sawIXML bool
	pos := 12
	for pos+8 <= len(buf) {
		id := string(buf[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(buf[pos+4 : pos+8]))

		if id == "iXML" {
			sawIXML = true
			payload := string(buf[pos+8 : pos+8+size])
			if !strings.Contains(payload, "<MASTER_SPEED>30000/1001</MASTER_SPEED>") {
				t.Errorf("iXML missing speed fraction: %s", payload)
			}
		}
		if id == "data" {
			if !sawIXML {
				t.Error("data chunk precedes iXML chunk")
			}
			if size != 6*2 {
				t.Errorf("data size = %d, want 12", size)
			}
			break
		}

		pos += 8 + size + size%2
	}
	if !sawIXML {
		t.Error("iXML chunk not found")
	}
}

func TestEncodeWAV_EmptyChunks(t *testing.T) {
	buf, err := EncodeWAV(nil, 2, 48000, 30, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if buf != nil {
		t.Errorf("expected nil buffer for empty input, got %d bytes", len(buf))
	}
}
