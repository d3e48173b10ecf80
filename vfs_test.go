package mcfs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeonardSander/motioncam-fs/data"
)

// stubDirectory is a minimal VirtualDirectory for manager tests.
type stubDirectory struct {
	mu      sync.Mutex
	updated []data.RenderConfig
	closed  bool
}

func (s *stubDirectory) ListFiles(string) []Entry       { return nil }
func (s *stubDirectory) FindEntry(string) (Entry, bool) { return Entry{}, false }
func (s *stubDirectory) FileInfo() FileInfo             { return FileInfo{TotalFrames: 7} }

func (s *stubDirectory) ReadFile(_ Entry, _ int64, _ []byte, result ReadResult, _ bool) int {
	result(0, ReadErrNotFound)
	return 0
}

func (s *stubDirectory) UpdateOptions(cfg data.RenderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, cfg)
	return nil
}

func (s *stubDirectory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(WithIOWorkers(1), WithProcessingWorkers(1))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func TestManager_MountAssignsDenseIDs(t *testing.T) {
	m := newTestManager(t)

	id0, err := m.Mount(&stubDirectory{}, "/clips/a.mcraw", "/mnt/a")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	id1, err := m.Mount(&stubDirectory{}, "/clips/b.mcraw", "/mnt/b")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if id0 != 0 || id1 != 1 {
		t.Errorf("ids = %d, %d, want 0, 1", id0, id1)
	}
}

func TestManager_DuplicateSourceRefused(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Mount(&stubDirectory{}, "/clips/a.mcraw", "/mnt/a"); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if _, err := m.Mount(&stubDirectory{}, "/clips/a.mcraw", "/mnt/b"); !errors.Is(err, ErrAlreadyMounted) {
		t.Errorf("duplicate mount error = %v, want ErrAlreadyMounted", err)
	}
}

func TestManager_UnmountClosesDirectory(t *testing.T) {
	m := newTestManager(t)
	dir := &stubDirectory{}

	id, _ := m.Mount(dir, "/clips/a.mcraw", "/mnt/a")
	if err := m.Unmount(id); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	if !dir.closed {
		t.Error("directory not closed on unmount")
	}
	if _, ok := m.Directory(id); ok {
		t.Error("directory still resolvable after unmount")
	}
	if err := m.Unmount(id); !errors.Is(err, ErrNotMounted) {
		t.Errorf("second unmount = %v, want ErrNotMounted", err)
	}
}

func TestManager_UpdateOptionsRoutes(t *testing.T) {
	m := newTestManager(t)
	dir := &stubDirectory{}

	id, _ := m.Mount(dir, "/clips/a.mcraw", "/mnt/a")

	cfg := data.DefaultRenderConfig()
	cfg.CropTarget = "1920x1080"
	if err := m.UpdateOptions(id, cfg); err != nil {
		t.Fatalf("UpdateOptions: %v", err)
	}

	if len(dir.updated) != 1 || dir.updated[0].CropTarget != "1920x1080" {
		t.Errorf("updates = %+v", dir.updated)
	}
}

func TestManager_FileInfoAndSessions(t *testing.T) {
	m := newTestManager(t)

	id, _ := m.Mount(&stubDirectory{}, "/clips/a.mcraw", "/mnt/a")

	info, err := m.FileInfo(id)
	if err != nil || info.TotalFrames != 7 {
		t.Errorf("FileInfo = %+v, %v", info, err)
	}

	sessions := m.Sessions()
	if len(sessions) != 1 || sessions[0].SourcePath != "/clips/a.mcraw" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestManager_ShutdownRefusesNewMounts(t *testing.T) {
	m, err := NewManager(WithIOWorkers(1), WithProcessingWorkers(1))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	dir := &stubDirectory{}
	m.Mount(dir, "/clips/a.mcraw", "/mnt/a")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if !dir.closed {
		t.Error("directory not closed on shutdown")
	}
	if _, err := m.Mount(&stubDirectory{}, "/clips/b.mcraw", "/mnt/b"); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("mount after shutdown = %v, want ErrShuttingDown", err)
	}
}
