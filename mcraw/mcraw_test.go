package mcraw

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, path string) {
	t.Helper()

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	config := []byte(`{"sensorArrangement":"rggb","whiteLevel":1023}`)
	if err := w.WriteContainerMetadata(config, 2, 48000); err != nil {
		t.Fatalf("WriteContainerMetadata: %v", err)
	}

	// Frames deliberately out of order; the reader sorts.
	for _, ts := range []int64{33_333_333, 0, 66_666_666} {
		meta := []byte(`{"iso":400,"exposureTime":20000000,"width":4,"height":4}`)
		plane := make([]uint16, 16)
		for i := range plane {
			plane[i] = uint16(ts/1_000_000) + uint16(i)
		}
		if err := w.WriteFrame(ts, meta, plane); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	if err := w.WriteAudio(0, []int16{1, -1, 2, -2}); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}
	if err := w.WriteAudio(1_000_000, []int16{3, -3}); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReader_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	writeFixture(t, path)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	frames := r.Frames()
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	for i := 1; i < len(frames); i++ {
		if frames[i] <= frames[i-1] {
			t.Fatal("frames not sorted")
		}
	}

	raw, meta, err := r.LoadFrame(33_333_333)
	if err != nil {
		t.Fatalf("LoadFrame: %v", err)
	}
	plane := RawToPlane(raw)
	if len(plane) != 16 {
		t.Fatalf("plane = %d samples, want 16", len(plane))
	}
	if plane[0] != 33 || plane[15] != 33+15 {
		t.Errorf("plane content wrong: %v", plane)
	}
	if len(meta) == 0 {
		t.Error("empty frame metadata")
	}

	onlyMeta, err := r.LoadFrameMetadata(0)
	if err != nil {
		t.Fatalf("LoadFrameMetadata: %v", err)
	}
	if string(onlyMeta) != `{"iso":400,"exposureTime":20000000,"width":4,"height":4}` {
		t.Errorf("metadata = %s", onlyMeta)
	}

	if _, _, err := r.LoadFrame(42); !errors.Is(err, ErrNoFrame) {
		t.Errorf("missing frame error = %v, want ErrNoFrame", err)
	}

	idx, err := r.FrameIndexOf(66_666_666)
	if err != nil || idx != 2 {
		t.Errorf("FrameIndexOf = %d, %v, want 2", idx, err)
	}
}

func TestReader_Audio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	writeFixture(t, path)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.NumAudioChannels() != 2 || r.AudioSampleRate() != 48000 {
		t.Errorf("audio params = %d ch @ %d Hz", r.NumAudioChannels(), r.AudioSampleRate())
	}

	chunks, err := r.LoadAudio()
	if err != nil {
		t.Fatalf("LoadAudio: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].Samples[1] != -1 || chunks[1].Samples[0] != 3 {
		t.Errorf("sample content wrong: %+v", chunks)
	}
}

func TestReader_ContainerMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	writeFixture(t, path)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if string(r.ContainerMetadata()) != `{"sensorArrangement":"rggb","whiteLevel":1023}` {
		t.Errorf("container metadata = %s", r.ContainerMetadata())
	}
}

func TestOpen_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.mcraw")
	if err := os.WriteFile(path, []byte("this is not a container file"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); !errors.Is(err, ErrBadMagic) {
		t.Errorf("Open garbage = %v, want ErrBadMagic", err)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.mcraw")); err == nil {
		t.Error("expected error for missing file")
	}
}
