// Package mcfs exposes camera recordings as virtual directories of
// per-frame DNG files plus a synchronized WAV track. The session manager
// owns the worker pools and the shared frame cache and routes host
// filesystem callbacks to the ingest that owns each mount.
package mcfs

import (
	"path"
	"strings"
)

// EntryType classifies synthetic directory entries.
type EntryType int

const (
	EntryTypeFile EntryType = iota
	EntryTypeDirectory
	// EntryTypeHidden marks host-shell helper files such as desktop.ini.
	EntryTypeHidden
)

// EntryData is the tagged per-entry payload: a source frame timestamp, an
// audio chunk id, or nothing.
type EntryData struct {
	kind  entryDataKind
	value int64
}

type entryDataKind int

const (
	entryDataNone entryDataKind = iota
	entryDataTimestamp
	entryDataChunk
)

// TimestampData tags an entry with the source capture timestamp it
// renders from.
func TimestampData(timestamp int64) EntryData {
	return EntryData{kind: entryDataTimestamp, value: timestamp}
}

// ChunkData tags an entry with an audio chunk id.
func ChunkData(id int) EntryData {
	return EntryData{kind: entryDataChunk, value: int64(id)}
}

// Timestamp returns the tagged source timestamp, if any.
func (d EntryData) Timestamp() (int64, bool) {
	return d.value, d.kind == entryDataTimestamp
}

// Chunk returns the tagged audio chunk id, if any.
func (d EntryData) Chunk() (int, bool) {
	return int(d.value), d.kind == entryDataChunk
}

// Entry is one synthetic directory entry. Entries are values; the
// virtual directory rebuilds the whole table on configuration changes.
type Entry struct {
	Type      EntryType
	PathParts []string
	Name      string
	Size      int64
	Data      EntryData
}

// FullPath joins the path parts and the name with forward slashes.
func (e *Entry) FullPath() string {
	if len(e.PathParts) == 0 {
		return e.Name
	}
	return path.Join(append(append([]string{}, e.PathParts...), e.Name)...)
}

// Key is the cache identity of an entry: type, path parts and name.
// Sizes and payloads deliberately stay out of the identity.
func (e *Entry) Key() string {
	var b strings.Builder
	switch e.Type {
	case EntryTypeDirectory:
		b.WriteString("d|")
	case EntryTypeHidden:
		b.WriteString("h|")
	default:
		b.WriteString("f|")
	}
	for _, part := range e.PathParts {
		b.WriteString(part)
		b.WriteByte('/')
	}
	b.WriteString(e.Name)
	return b.String()
}
