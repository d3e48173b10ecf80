package mounts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	mcfs "github.com/LeonardSander/motioncam-fs"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/dng"
	"github.com/LeonardSander/motioncam-fs/log"
	"github.com/LeonardSander/motioncam-fs/timemodel"
)

// nominalSequenceFPS is assumed when a DNG folder carries no timing
// beyond its frame numbers.
const nominalSequenceFPS = 30.0

var frameNumberPattern = regexp.MustCompile(`(\d{6,})`)

// sequenceFrame is one file of a DNG folder.
type sequenceFrame struct {
	path      string
	size      int64
	number    int
	timestamp int64
}

// DNGSequenceMount passes an existing DNG sequence through unchanged.
// Frames are read straight from disk on demand; no re-assembly happens.
type DNGSequenceMount struct {
	env *mcfs.Env
	log *log.Logger

	dirPath  string
	baseName string

	mu     sync.RWMutex
	cfg    data.RenderConfig
	table  *entryTable
	frames []sequenceFrame
	byName map[string]*sequenceFrame
	info   mcfs.FileInfo

	inflight sync.WaitGroup
	closemu  sync.Mutex
	closed   bool
}

// NewDNGSequence scans a folder (or the folder of a given .dng file) and
// builds the pass-through directory.
func NewDNGSequence(env *mcfs.Env, srcPath string, cfg data.RenderConfig) (*DNGSequenceMount, error) {
	dirPath := srcPath
	if info, err := os.Stat(srcPath); err != nil {
		return nil, fmt.Errorf("mounts: %w", err)
	} else if !info.IsDir() {
		dirPath = filepath.Dir(srcPath)
	}

	m := &DNGSequenceMount{
		env:      env,
		log:      env.Log.Named("dngseq"),
		dirPath:  dirPath,
		baseName: baseName(dirPath),
	}

	if err := m.rebuild(cfg); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *DNGSequenceMount) rebuild(cfg data.RenderConfig) error {
	dirEntries, err := os.ReadDir(m.dirPath)
	if err != nil {
		return fmt.Errorf("mounts: %w", err)
	}

	var frames []sequenceFrame
	for _, de := range dirEntries {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".dng") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}

		frame := sequenceFrame{
			path: filepath.Join(m.dirPath, de.Name()),
			size: info.Size(),
		}

		// Prefer the 6+-digit frame number for ordering and timing.
		if match := frameNumberPattern.FindString(de.Name()); match != "" {
			if n, err := strconv.Atoi(match); err == nil {
				frame.number = n
			}
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return fmt.Errorf("%w: no DNG files in %s", mcfs.ErrNoFrames, m.dirPath)
	}

	sort.Slice(frames, func(i, j int) bool {
		if frames[i].number != frames[j].number {
			return frames[i].number < frames[j].number
		}
		return frames[i].path < frames[j].path
	})
	for i := range frames {
		frames[i].timestamp = int64(float64(frames[i].number) * 1e9 / nominalSequenceFPS)
	}

	timestamps := make([]int64, len(frames))
	for i, f := range frames {
		timestamps[i] = f.timestamp
	}
	stats := timemodel.ComputeStats(timestamps)

	fps := stats.MedianFPS
	if fps <= 0 {
		fps = nominalSequenceFPS
	}

	entries := make([]mcfs.Entry, 0, len(frames)+1)
	byName := make(map[string]*sequenceFrame, len(frames))

	if includeDesktopIni {
		entries = append(entries, mcfs.Entry{
			Type: mcfs.EntryTypeHidden,
			Name: "desktop.ini",
			Size: int64(len(DesktopIni)),
		})
	}
	for i := range frames {
		f := &frames[i]
		name := frameFilename(m.baseName, i)
		entries = append(entries, mcfs.Entry{
			Type: mcfs.EntryTypeFile,
			Name: name,
			Size: f.size,
			Data: mcfs.TimestampData(f.timestamp),
		})
		byName[name] = f
	}

	info := mcfs.FileInfo{
		FPS:         fps,
		MedianFPS:   stats.MedianFPS,
		AverageFPS:  stats.AverageFPS,
		TotalFrames: len(frames),
		DataType:    "DNG pass-through",
		Levels:      "as recorded",
	}
	if fps > 0 {
		info.RuntimeSeconds = float64(len(frames)) / fps
	}

	// A gain map in the first frame is worth reporting: the sequence
	// already carries its own vignette correction.
	if maps, err := readOpcodeGainMaps(frames[0].path); err == nil && len(maps) > 0 {
		g := maps[0]
		info.DataType = fmt.Sprintf("DNG pass-through (GainMap %dx%d)", g.MapPointsH, g.MapPointsV)
		m.log.Info("%s: embedded gain map %dx%d, %d planes", m.baseName, g.MapPointsH, g.MapPointsV, g.MapPlanes)
	}

	m.mu.Lock()
	m.cfg = cfg
	m.frames = frames
	m.byName = byName
	m.table = newEntryTable(entries)
	m.info = info
	m.mu.Unlock()

	m.log.Info("%s: %d DNG files", m.baseName, len(frames))

	return nil
}

// ListFiles implements VirtualDirectory.
func (m *DNGSequenceMount) ListFiles(filter string) []mcfs.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.filter(filter)
}

// FindEntry implements VirtualDirectory.
func (m *DNGSequenceMount) FindEntry(fullPath string) (mcfs.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.find(strings.TrimPrefix(fullPath, "/"))
}

// ReadFile implements VirtualDirectory: a plain ranged read of the
// backing file.
func (m *DNGSequenceMount) ReadFile(entry mcfs.Entry, pos int64, dst []byte, result mcfs.ReadResult, async bool) int {
	if entry.Name == "desktop.ini" {
		n := copyRange(dst, []byte(DesktopIni), pos)
		result(n, mcfs.ReadOK)
		return n
	}

	m.mu.RLock()
	frame, ok := m.byName[entry.Name]
	m.mu.RUnlock()
	if !ok {
		result(0, mcfs.ReadErrNotFound)
		return 0
	}

	m.closemu.Lock()
	if m.closed {
		m.closemu.Unlock()
		result(0, mcfs.ReadErrNotFound)
		return 0
	}
	m.inflight.Add(1)
	m.closemu.Unlock()

	job := func() int {
		defer m.inflight.Done()

		f, err := os.Open(frame.path)
		if err != nil {
			m.log.Error("%s: %v", entry.Name, err)
			result(0, mcfs.ReadErrDecode)
			return 0
		}
		defer f.Close()

		n, err := f.ReadAt(dst, pos)
		if n == 0 && err != nil && !errors.Is(err, io.EOF) {
			result(0, mcfs.ReadErrDecode)
			return 0
		}
		result(n, mcfs.ReadOK)
		return n
	}

	if !async {
		return job()
	}

	if !m.env.Processing.Submit(func(*mcfs.HandleCache) { job() }) {
		m.inflight.Done()
		result(0, mcfs.ReadErrGeneric)
	}
	return 0
}

// UpdateOptions implements VirtualDirectory. The configuration has no
// pixel-level effect on a pass-through sequence, but the table rebuild
// picks up files added to the folder.
func (m *DNGSequenceMount) UpdateOptions(cfg data.RenderConfig) error {
	if err := m.rebuild(cfg); err != nil {
		return err
	}
	m.env.Cache.Clear()
	return nil
}

// FileInfo implements VirtualDirectory.
func (m *DNGSequenceMount) FileInfo() mcfs.FileInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

// Close drains in-flight reads.
func (m *DNGSequenceMount) Close() error {
	m.closemu.Lock()
	if m.closed {
		m.closemu.Unlock()
		return nil
	}
	m.closed = true
	m.closemu.Unlock()

	m.inflight.Wait()
	return nil
}

// readOpcodeGainMaps extracts GainMap opcodes from a DNG file's
// OpcodeList2/3 tags, for reporting only.
func readOpcodeGainMaps(path string) ([]dng.GainMap, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(buf) < 8 {
		return nil, fmt.Errorf("mounts: %s: not a TIFF file", path)
	}

	var order binary.ByteOrder
	switch {
	case buf[0] == 'I' && buf[1] == 'I':
		order = binary.LittleEndian
	case buf[0] == 'M' && buf[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("mounts: %s: bad byte order mark", path)
	}
	if order.Uint16(buf[2:]) != 42 {
		return nil, fmt.Errorf("mounts: %s: bad TIFF magic", path)
	}

	const (
		tagOpcodeList2 = 51009
		tagOpcodeList3 = 51022
	)

	ifdOffset := int64(order.Uint32(buf[4:]))
	for ifdOffset != 0 && ifdOffset+2 <= int64(len(buf)) {
		numEntries := int(order.Uint16(buf[ifdOffset:]))
		entryOffset := ifdOffset + 2

		for i := 0; i < numEntries && entryOffset+12 <= int64(len(buf)); i++ {
			tag := order.Uint16(buf[entryOffset:])
			count := int64(order.Uint32(buf[entryOffset+4:]))
			valueOffset := int64(order.Uint32(buf[entryOffset+8:]))

			if tag == tagOpcodeList2 || tag == tagOpcodeList3 {
				if valueOffset >= 0 && valueOffset+count <= int64(len(buf)) {
					if maps, err := dng.ParseGainMaps(buf[valueOffset : valueOffset+count]); err == nil && len(maps) > 0 {
						return maps, nil
					}
				}
			}
			entryOffset += 12
		}

		if entryOffset+4 > int64(len(buf)) {
			break
		}
		ifdOffset = int64(order.Uint32(buf[entryOffset:]))
	}

	return nil, nil
}
