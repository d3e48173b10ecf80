package mounts

import (
	"bytes"
	"math"
	"path/filepath"
	"sync"
	"testing"

	mcfs "github.com/LeonardSander/motioncam-fs"
	"github.com/LeonardSander/motioncam-fs/cache"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/log"
	"github.com/LeonardSander/motioncam-fs/mcraw"
)

func testEnv(t *testing.T) *mcfs.Env {
	t.Helper()

	env := &mcfs.Env{
		IO:         mcfs.NewWorkerPool(2),
		Processing: mcfs.NewWorkerPool(2),
		Cache:      cache.New(0, 0, 0),
		Log:        log.Discard(),
	}
	t.Cleanup(func() {
		env.IO.Close()
		env.Processing.Close()
	})
	return env
}

const containerConfigJSON = `{
	"sensorArrangement": "rggb",
	"whiteLevel": 1023,
	"blackLevel": [64, 64, 64, 64],
	"colorIlluminant1": "standarda",
	"colorIlluminant2": "d65",
	"extraData": {
		"audioChannels": 2,
		"audioSampleRate": 48000,
		"postProcessSettings": {
			"flipped": false,
			"metadata": {"buildModel": "Test Phone"}
		}
	}
}`

const frameMetadataJSON = `{
	"iso": 400,
	"exposureTime": 20000000,
	"width": 8,
	"height": 8,
	"originalWidth": 8,
	"originalHeight": 8,
	"orientation": 2,
	"dynamicBlackLevel": [64, 64, 64, 64],
	"dynamicWhiteLevel": 1023,
	"asShotNeutral": [0.5, 1.0, 0.5]
}`

func writeContainer(t *testing.T, path string, timestamps []int64, withAudio bool) {
	t.Helper()

	w, err := mcraw.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteContainerMetadata([]byte(containerConfigJSON), 2, 48000); err != nil {
		t.Fatalf("WriteContainerMetadata: %v", err)
	}

	plane := make([]uint16, 64)
	for i := range plane {
		plane[i] = uint16(64 + i*8)
	}
	for _, ts := range timestamps {
		if err := w.WriteFrame(ts, []byte(frameMetadataJSON), plane); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	if withAudio {
		if err := w.WriteAudio(timestamps[0], make([]int16, 96)); err != nil {
			t.Fatalf("WriteAudio: %v", err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMCRAW_EntryTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	writeContainer(t, path, []int64{0, 33_333_333, 66_666_666}, true)

	m, err := NewMCRAW(testEnv(t), path, data.DefaultRenderConfig())
	if err != nil {
		t.Fatalf("NewMCRAW: %v", err)
	}
	defer m.Close()

	entries := m.ListFiles("")
	var dngs, wavs int
	for _, e := range entries {
		switch {
		case e.Name == "audio.wav":
			wavs++
		case filepath.Ext(e.Name) == ".dng":
			dngs++
		}
	}
	if dngs != 3 {
		t.Errorf("dng entries = %d, want 3", dngs)
	}
	if wavs != 1 {
		t.Errorf("wav entries = %d, want 1", wavs)
	}

	if _, ok := m.FindEntry("clip-000000.dng"); !ok {
		t.Error("clip-000000.dng not found")
	}
	if _, ok := m.FindEntry("clip-000042.dng"); ok {
		t.Error("nonexistent frame found")
	}

	filtered := m.ListFiles("000001")
	if len(filtered) != 1 || filtered[0].Name != "clip-000001.dng" {
		t.Errorf("filter result = %+v", filtered)
	}
}

func TestMCRAW_FileInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	writeContainer(t, path, []int64{0, 33_333_333, 66_666_666}, false)

	cfg := data.DefaultRenderConfig()
	cfg.Flags = data.FlagFramerateConversion

	m, err := NewMCRAW(testEnv(t), path, cfg)
	if err != nil {
		t.Fatalf("NewMCRAW: %v", err)
	}
	defer m.Close()

	info := m.FileInfo()
	if math.Abs(info.FPS-29.97) > 0.001 {
		t.Errorf("FPS = %v, want 29.97 (Prefer Drop Frame at 30fps median)", info.FPS)
	}
	if info.TotalFrames != 3 || info.DroppedFrames != 0 || info.DuplicatedFrames != 0 {
		t.Errorf("counts = %d/%d/%d", info.TotalFrames, info.DroppedFrames, info.DuplicatedFrames)
	}
	if info.Width != 8 || info.Height != 8 {
		t.Errorf("dims = %dx%d", info.Width, info.Height)
	}
}

func TestMCRAW_ReadFrameSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	writeContainer(t, path, []int64{0, 33_333_333}, false)

	m, err := NewMCRAW(testEnv(t), path, data.DefaultRenderConfig())
	if err != nil {
		t.Fatalf("NewMCRAW: %v", err)
	}
	defer m.Close()

	entry, ok := m.FindEntry("clip-000000.dng")
	if !ok {
		t.Fatal("entry not found")
	}

	dst := make([]byte, entry.Size)
	var cbN, cbCode int
	n := m.ReadFile(entry, 0, dst, func(n, code int) { cbN, cbCode = n, code }, false)

	if cbCode != mcfs.ReadOK {
		t.Fatalf("callback code = %d", cbCode)
	}
	if n != cbN || n == 0 {
		t.Fatalf("n = %d, callback n = %d", n, cbN)
	}
	if !bytes.HasPrefix(dst, []byte{'I', 'I', 42, 0}) {
		t.Errorf("frame content is not a TIFF stream: % x", dst[:4])
	}
}

func TestMCRAW_ConcurrentReadsShareProducer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	writeContainer(t, path, []int64{0, 33_333_333}, false)

	env := testEnv(t)
	m, err := NewMCRAW(env, path, data.DefaultRenderConfig())
	if err != nil {
		t.Fatalf("NewMCRAW: %v", err)
	}
	defer m.Close()

	entry, _ := m.FindEntry("clip-000001.dng")

	const readers = 4
	results := make([][]byte, readers)
	var wg sync.WaitGroup

	for i := 0; i < readers; i++ {
		wg.Add(1)
		dst := make([]byte, entry.Size)
		results[i] = dst
		go func(dst []byte) {
			m.ReadFile(entry, 0, dst, func(n, code int) {
				if code != mcfs.ReadOK {
					t.Errorf("read failed: %d", code)
				}
				wg.Done()
			}, true)
		}(dst)
	}
	wg.Wait()

	for i := 1; i < readers; i++ {
		if !bytes.Equal(results[0], results[i]) {
			t.Fatalf("reader %d saw different bytes", i)
		}
	}

	// The shared cache holds exactly one rendered frame for the entry.
	if env.Cache.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", env.Cache.Len())
	}
}

func TestMCRAW_AudioServedInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	writeContainer(t, path, []int64{0, 33_333_333}, true)

	m, err := NewMCRAW(testEnv(t), path, data.DefaultRenderConfig())
	if err != nil {
		t.Fatalf("NewMCRAW: %v", err)
	}
	defer m.Close()

	entry, ok := m.FindEntry("audio.wav")
	if !ok {
		t.Fatal("audio.wav not found")
	}

	dst := make([]byte, 4)
	n := m.ReadFile(entry, 0, dst, func(int, int) {}, false)
	if n != 4 || string(dst) != "RIFF" {
		t.Errorf("audio read = %d bytes %q", n, dst)
	}
}

func TestMCRAW_UpdateOptionsRebuilds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	// 30fps cadence with one frame missing: conversion duplicates into the gap.
	writeContainer(t, path, []int64{0, 33_333_333, 100_000_000}, false)

	m, err := NewMCRAW(testEnv(t), path, data.DefaultRenderConfig())
	if err != nil {
		t.Fatalf("NewMCRAW: %v", err)
	}
	defer m.Close()

	before := m.FileInfo()
	if before.DuplicatedFrames != 0 {
		t.Fatalf("conversion off but duplicated = %d", before.DuplicatedFrames)
	}

	cfg := data.DefaultRenderConfig()
	cfg.Flags = data.FlagFramerateConversion
	cfg.CFRTarget = "30"
	if err := m.UpdateOptions(cfg); err != nil {
		t.Fatalf("UpdateOptions: %v", err)
	}

	after := m.FileInfo()
	if after.TotalFrames != 4 || after.DuplicatedFrames != 1 {
		t.Errorf("after conversion: total=%d duplicated=%d, want 4/1", after.TotalFrames, after.DuplicatedFrames)
	}

	// The rebuilt table gains slot 3, which the late frame fills along
	// with slot 2.
	if _, ok := m.FindEntry("clip-000003.dng"); !ok {
		t.Error("rebuilt table missing duplicated slot")
	}
}

func TestMCRAW_ClosedRefusesReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mcraw")
	writeContainer(t, path, []int64{0, 33_333_333}, false)

	m, err := NewMCRAW(testEnv(t), path, data.DefaultRenderConfig())
	if err != nil {
		t.Fatalf("NewMCRAW: %v", err)
	}

	entry, _ := m.FindEntry("clip-000000.dng")
	m.Close()

	var code int
	m.ReadFile(entry, 0, make([]byte, 16), func(_, c int) { code = c }, false)
	if code != mcfs.ReadErrNotFound {
		t.Errorf("read after close = %d, want ReadErrNotFound", code)
	}
}

func TestMCRAW_EmptyContainerRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mcraw")
	w, err := mcraw.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.WriteContainerMetadata([]byte(containerConfigJSON), 0, 0)
	w.Close()

	if _, err := NewMCRAW(testEnv(t), path, data.DefaultRenderConfig()); err == nil {
		t.Fatal("expected error for container without frames")
	}
}
