package mounts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	mcfs "github.com/LeonardSander/motioncam-fs"
	"github.com/LeonardSander/motioncam-fs/data"
)

func TestNew_DispatchesByType(t *testing.T) {
	dir := t.TempDir()

	containerPath := filepath.Join(dir, "clip.mcraw")
	writeContainer(t, containerPath, []int64{0, 33_333_333}, false)

	seqDir := filepath.Join(dir, "seq")
	mkdir(t, seqDir)
	writeSequence(t, seqDir, []string{"take-000000.dng"})

	env := testEnv(t)

	m, err := New(context.Background(), env, containerPath, data.DefaultRenderConfig())
	if err != nil {
		t.Fatalf("New(mcraw): %v", err)
	}
	if _, ok := m.(*MCRAWMount); !ok {
		t.Errorf("mcraw source built %T", m)
	}
	m.Close()

	m, err = New(context.Background(), env, seqDir, data.DefaultRenderConfig())
	if err != nil {
		t.Fatalf("New(folder): %v", err)
	}
	if _, ok := m.(*DNGSequenceMount); !ok {
		t.Errorf("folder source built %T", m)
	}
	m.Close()
}

func TestNew_MissingSource(t *testing.T) {
	env := testEnv(t)
	if _, err := New(context.Background(), env, filepath.Join(t.TempDir(), "absent.mcraw"), data.DefaultRenderConfig()); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestNew_UnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	writeFile(t, path, []byte("hello"))

	env := testEnv(t)
	if _, err := New(context.Background(), env, path, data.DefaultRenderConfig()); !errors.Is(err, mcfs.ErrUnsupported) {
		t.Fatalf("unsupported source error = %v, want ErrUnsupported", err)
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/clips/take1.mcraw", "take1"},
		{"take1.mp4", "take1"},
		{"/clips/folder", "folder"},
		{`C:\clips\take1.mcraw`, "take1"},
	}
	for _, tt := range tests {
		if got := baseName(tt.path); got != tt.want {
			t.Errorf("baseName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFrameFilename(t *testing.T) {
	if got := frameFilename("clip", 42); got != "clip-000042.dng" {
		t.Errorf("frameFilename = %q", got)
	}
	if got := frameFilename("clip", 1234567); got != "clip-1234567.dng" {
		t.Errorf("frameFilename widens past six digits: %q", got)
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}
