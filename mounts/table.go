package mounts

import (
	"strings"

	"github.com/tidwall/btree"

	mcfs "github.com/LeonardSander/motioncam-fs"
)

// entryTable is an immutable snapshot of a directory's synthetic
// entries: the ordered list plus a path index. Virtual directories swap
// whole tables under their lock so readers never observe a partial
// rebuild.
type entryTable struct {
	list  []mcfs.Entry
	index btree.Map[string, int]
}

func newEntryTable(entries []mcfs.Entry) *entryTable {
	t := &entryTable{list: entries}
	for i, e := range entries {
		t.index.Set(e.FullPath(), i)
	}
	return t
}

// find resolves a full path to its entry.
func (t *entryTable) find(fullPath string) (mcfs.Entry, bool) {
	i, ok := t.index.Get(fullPath)
	if !ok {
		return mcfs.Entry{}, false
	}
	return t.list[i], true
}

// filter lists entries whose name contains the substring; empty matches
// everything.
func (t *entryTable) filter(substr string) []mcfs.Entry {
	if substr == "" {
		return append([]mcfs.Entry(nil), t.list...)
	}

	var out []mcfs.Entry
	for _, e := range t.list {
		if strings.Contains(e.Name, substr) {
			out = append(out, e)
		}
	}
	return out
}

func (t *entryTable) len() int {
	return len(t.list)
}
