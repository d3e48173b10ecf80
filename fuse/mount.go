// Package fuse presents a virtual directory at a host filesystem path
// through FUSE. Only the four forwarded operations exist: enumerate,
// stat, read and mount lifecycle — the tree is read-only by design of
// the virtual directory contract.
package fuse

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	mcfs "github.com/LeonardSander/motioncam-fs"
	"github.com/LeonardSander/motioncam-fs/log"
)

// Options configures one FUSE mount.
type Options struct {
	// Mountpoint is created if missing.
	Mountpoint string

	// Directory is the virtual directory to expose.
	Directory mcfs.VirtualDirectory

	// AllowOther permits other users to read the mount; requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostics; nil discards them.
	Logger *log.Logger
}

// Mount exposes the directory at the mountpoint. The caller must call
// Unmount on the returned server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("fuse: mountpoint is required")
	}
	if options.Directory == nil {
		return nil, fmt.Errorf("fuse: directory is required")
	}
	if options.Logger == nil {
		options.Logger = log.Discard()
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("fuse: creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{dir: options.Directory, logger: options.Logger}

	entryTimeout := time.Second
	attrTimeout := time.Second

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "motioncam-fs",
			Name:       "mcfs",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fuse: mounting at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("fuse mount ready at %s", options.Mountpoint)
	return server, nil
}

// rootNode is the flat synthetic directory.
type rootNode struct {
	gofuse.Inode
	dir    mcfs.VirtualDirectory
	logger *log.Logger
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeReaddirer = (*rootNode)(nil)
var _ gofuse.NodeLookuper = (*rootNode)(nil)

func (r *rootNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries := r.dir.ListFiles("")

	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		if e.Type == mcfs.EntryTypeDirectory {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}

	return gofuse.NewListDirStream(out), 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	entry, ok := r.dir.FindEntry(name)
	if !ok {
		return nil, syscall.ENOENT
	}

	node := &fileNode{dir: r.dir, entry: entry, logger: r.logger}
	out.Attr.Mode = fuse.S_IFREG | 0o444
	out.Attr.Size = uint64(entry.Size)

	return r.NewInode(ctx, node, gofuse.StableAttr{Mode: fuse.S_IFREG}), 0
}

// fileNode serves one synthetic file.
type fileNode struct {
	gofuse.Inode
	dir    mcfs.VirtualDirectory
	entry  mcfs.Entry
	logger *log.Logger
}

var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFREG | 0o444
	out.Size = uint64(f.entry.Size)
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	// Sizes of rendered entries are estimates; disable kernel caching of
	// short reads beyond them.
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (f *fileNode) Read(ctx context.Context, fh gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	type outcome struct {
		n    int
		code int
	}
	done := make(chan outcome, 1)

	f.dir.ReadFile(f.entry, off, dest, func(n, code int) {
		done <- outcome{n: n, code: code}
	}, true)

	var result outcome
	select {
	case result = <-done:
	case <-ctx.Done():
		return nil, syscall.EINTR
	}

	if result.code != mcfs.ReadOK {
		f.logger.Warn("read %s at %d failed: %d", f.entry.Name, off, result.code)
		return nil, syscall.EIO
	}

	return fuse.ReadResultData(dest[:result.n]), 0
}
