package mcfs

import "errors"

// Standard errors shared by the session manager and the ingest variants.
var (
	// Mount lifecycle errors
	ErrNotMounted     = errors.New("mcfs: mount id not found")
	ErrAlreadyMounted = errors.New("mcfs: source already mounted")
	ErrNoFrames       = errors.New("mcfs: source contains no frames")
	ErrUnsupported    = errors.New("mcfs: unsupported source type")

	// Read path errors
	ErrNotFound     = errors.New("mcfs: no entry matches path")
	ErrDecodeFailed = errors.New("mcfs: failed to decode source frame")
	ErrRenderFailed = errors.New("mcfs: failed to render frame")
	ErrShuttingDown = errors.New("mcfs: session is shutting down")
)
