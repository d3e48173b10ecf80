package mcfs

import (
	"github.com/LeonardSander/motioncam-fs/data"
)

// Read error codes delivered through ReadResult. Zero is success; the
// host adapter forwards non-zero codes to the OS as read failures.
const (
	ReadOK          = 0
	ReadErrGeneric  = -1
	ReadErrNotFound = -2
	ReadErrDecode   = -3
	ReadErrRender   = -4
)

// ReadResult delivers the outcome of a ReadFile call. It is invoked
// exactly once per call, possibly on a worker goroutine.
type ReadResult func(bytesWritten int, errorCode int)

// VirtualDirectory is the contract every ingest variant implements: a
// flat synthetic directory whose file contents are rendered on demand.
type VirtualDirectory interface {
	// ListFiles returns entries whose name contains filter; an empty
	// filter lists everything.
	ListFiles(filter string) []Entry

	// FindEntry resolves a full path to its entry.
	FindEntry(fullPath string) (Entry, bool)

	// ReadFile copies up to len(dst) bytes of the entry's content
	// starting at pos. With async true it schedules the work and returns
	// 0 immediately; the byte count arrives through result. With async
	// false it completes inline. result is invoked exactly once either
	// way.
	ReadFile(entry Entry, pos int64, dst []byte, result ReadResult, async bool) int

	// UpdateOptions atomically replaces the render configuration,
	// rebuilds the entry table and invalidates cached frames.
	UpdateOptions(cfg data.RenderConfig) error

	// FileInfo returns a snapshot of dimensions, rate statistics and
	// transform summaries for UI display.
	FileInfo() FileInfo

	// Close drains in-flight reads and releases source handles.
	Close() error
}
