package mcfs

import (
	"io"
	"sync"
)

// HandleCache keeps per-worker decoder handles keyed by source path, so
// each IO worker reuses its own container reader instead of reopening
// the file per frame. Handles are closed when the worker exits.
type HandleCache struct {
	handles map[string]io.Closer
}

// Get returns the cached handle for key, opening it on first use.
func (h *HandleCache) Get(key string, open func() (io.Closer, error)) (io.Closer, error) {
	if handle, ok := h.handles[key]; ok {
		return handle, nil
	}

	handle, err := open()
	if err != nil {
		return nil, err
	}
	h.handles[key] = handle
	return handle, nil
}

// Drop closes and forgets the handle for key, forcing a reopen on the
// next use. Called after a read error that may indicate a stale handle.
func (h *HandleCache) Drop(key string) {
	if handle, ok := h.handles[key]; ok {
		handle.Close()
		delete(h.handles, key)
	}
}

// Task is one unit of pool work. IO tasks use the worker's handle cache;
// processing tasks typically ignore it.
type Task func(handles *HandleCache)

// WorkerPool is a fixed set of workers draining a shared task queue.
type WorkerPool struct {
	tasks chan Task
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool starts workers goroutines.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}

	p := &WorkerPool{tasks: make(chan Task, 256)}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}

	return p
}

func (p *WorkerPool) run() {
	defer p.wg.Done()

	handles := &HandleCache{handles: make(map[string]io.Closer)}
	defer func() {
		for _, h := range handles.handles {
			h.Close()
		}
	}()

	for task := range p.tasks {
		task(handles)
	}
}

// Submit enqueues a task. Returns false when the pool is shutting down;
// the task is not run in that case.
func (p *WorkerPool) Submit(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.tasks <- task
	return true
}

// Close stops accepting tasks, drains the queue and joins the workers.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
