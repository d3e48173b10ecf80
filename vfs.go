package mcfs

import (
	"context"
	"fmt"
	"sync"

	"github.com/LeonardSander/motioncam-fs/cache"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/log"
	"github.com/LeonardSander/motioncam-fs/registry"
)

// MountID identifies one mounted source. Ids are dense small integers
// assigned in mount order.
type MountID int

// InvalidMountID is returned from failed mounts.
const InvalidMountID MountID = -1

// Env bundles the shared resources every ingest variant runs on: the
// two worker pools, the frame cache and the logger.
type Env struct {
	IO         *WorkerPool
	Processing *WorkerPool
	Cache      *cache.Cache
	Log        *log.Logger
}

// Session ties a mount id to its virtual directory and paths.
type Session struct {
	ID         MountID
	SourcePath string
	TargetPath string
	Directory  VirtualDirectory
}

// Manager is the session manager: it owns the pools and cache, assigns
// mount ids and routes adapter callbacks to the owning directory.
type Manager struct {
	mu     sync.RWMutex
	mounts map[MountID]*Session
	nextID MountID

	env *Env
	reg *registry.Registry

	closed bool
}

// NewManager builds a session manager with the given options.
func NewManager(opts ...Option) (*Manager, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	m := &Manager{
		mounts: make(map[MountID]*Session),
		env: &Env{
			IO:         NewWorkerPool(options.IOWorkers),
			Processing: NewWorkerPool(options.ProcessingWorkers),
			Cache:      cache.New(options.CacheBytes, options.CacheEntries, options.FailureCooldown),
			Log:        options.Logger,
		},
	}

	if options.RegistryPath != "" {
		reg, err := registry.Open(options.RegistryPath)
		if err != nil {
			m.env.IO.Close()
			m.env.Processing.Close()
			return nil, fmt.Errorf("mcfs: session registry: %w", err)
		}
		m.reg = reg
	}

	return m, nil
}

// Env exposes the shared resources for ingest construction.
func (m *Manager) Env() *Env { return m.env }

// Mount registers a constructed virtual directory and assigns it a
// mount id.
func (m *Manager) Mount(dir VirtualDirectory, srcPath, dstPath string) (MountID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return InvalidMountID, ErrShuttingDown
	}
	for _, s := range m.mounts {
		if s.SourcePath == srcPath {
			return InvalidMountID, fmt.Errorf("%w: %s", ErrAlreadyMounted, srcPath)
		}
	}

	id := m.nextID
	m.nextID++

	m.mounts[id] = &Session{
		ID:         id,
		SourcePath: srcPath,
		TargetPath: dstPath,
		Directory:  dir,
	}

	m.env.Log.Info("mounted %s at %s (id=%d)", srcPath, dstPath, id)

	if m.reg != nil {
		if err := m.reg.RecordMount(int(id), srcPath, dstPath); err != nil {
			m.env.Log.Warn("session registry: %v", err)
		}
	}

	return id, nil
}

// Unmount stops the session: new lookups fail immediately, in-flight
// reads drain, then the ingest is released and its cached frames
// dropped.
func (m *Manager) Unmount(id MountID) error {
	m.mu.Lock()
	session, ok := m.mounts[id]
	if ok {
		delete(m.mounts, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrNotMounted, id)
	}

	err := session.Directory.Close()
	m.env.Cache.Clear()

	m.env.Log.Info("unmounted %s (id=%d)", session.SourcePath, id)

	if m.reg != nil {
		if regErr := m.reg.RecordUnmount(int(id)); regErr != nil {
			m.env.Log.Warn("session registry: %v", regErr)
		}
	}

	return err
}

// UpdateOptions atomically replaces the render configuration of a mount.
func (m *Manager) UpdateOptions(id MountID, cfg data.RenderConfig) error {
	m.mu.RLock()
	session, ok := m.mounts[id]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrNotMounted, id)
	}
	return session.Directory.UpdateOptions(cfg)
}

// Directory resolves a mount id for adapter callbacks.
func (m *Manager) Directory(id MountID) (VirtualDirectory, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.mounts[id]
	if !ok {
		return nil, false
	}
	return session.Directory, true
}

// FileInfo returns the display snapshot of a mount.
func (m *Manager) FileInfo(id MountID) (FileInfo, error) {
	m.mu.RLock()
	session, ok := m.mounts[id]
	m.mu.RUnlock()

	if !ok {
		return FileInfo{}, fmt.Errorf("%w: %d", ErrNotMounted, id)
	}
	return session.Directory.FileInfo(), nil
}

// Sessions lists the live mounts in id order.
func (m *Manager) Sessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.mounts))
	for id := MountID(0); id < m.nextID; id++ {
		if s, ok := m.mounts[id]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// Registry exposes the persistent session registry, nil when disabled.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// Shutdown unmounts everything and joins the worker pools.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.mounts))
	for _, s := range m.mounts {
		sessions = append(sessions, s)
	}
	m.mounts = make(map[MountID]*Session)
	m.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Directory.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if m.reg != nil {
			if err := m.reg.RecordUnmount(int(s.ID)); err != nil {
				m.env.Log.Warn("session registry: %v", err)
			}
		}
	}

	done := make(chan struct{})
	go func() {
		m.env.IO.Close()
		m.env.Processing.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if m.reg != nil {
		if err := m.reg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
