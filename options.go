package mcfs

import (
	"runtime"
	"time"

	"github.com/LeonardSander/motioncam-fs/log"
)

// Options configures a session manager. Zero cache values pick the
// defaults noted on each field. The worker counts take their defaults
// unless an option sets them; a count below one runs a single worker.
type Options struct {
	// CacheBytes bounds the frame cache size (default 1 GiB).
	CacheBytes int64
	// CacheEntries bounds the frame cache entry count (default 64).
	CacheEntries int
	// FailureCooldown is how long a failed frame refuses retries
	// (default 5s).
	FailureCooldown time.Duration

	// IOWorkers sizes the decode pool (default 4). Each worker keeps its
	// own container handles.
	IOWorkers int
	// ProcessingWorkers sizes the render pool (default GOMAXPROCS).
	ProcessingWorkers int

	// RegistryPath enables the persistent session registry when set.
	RegistryPath string

	Logger *log.Logger
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		IOWorkers:         4,
		ProcessingWorkers: runtime.GOMAXPROCS(0),
		Logger:            log.Discard(),
	}
}

func WithCacheBytes(bytes int64) Option {
	return func(o *Options) { o.CacheBytes = bytes }
}

func WithCacheEntries(entries int) Option {
	return func(o *Options) { o.CacheEntries = entries }
}

func WithFailureCooldown(cooldown time.Duration) Option {
	return func(o *Options) { o.FailureCooldown = cooldown }
}

func WithIOWorkers(workers int) Option {
	return func(o *Options) { o.IOWorkers = workers }
}

func WithProcessingWorkers(workers int) Option {
	return func(o *Options) { o.ProcessingWorkers = workers }
}

func WithRegistry(path string) Option {
	return func(o *Options) { o.RegistryPath = path }
}

func WithLogger(logger *log.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}
