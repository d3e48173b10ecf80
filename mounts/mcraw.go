package mounts

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	mcfs "github.com/LeonardSander/motioncam-fs"
	"github.com/LeonardSander/motioncam-fs/audio"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/log"
	"github.com/LeonardSander/motioncam-fs/mcraw"
	"github.com/LeonardSander/motioncam-fs/render"
	"github.com/LeonardSander/motioncam-fs/timemodel"
)

// MCRAWMount exposes a MotionCam container as a directory of per-frame
// DNGs plus the synchronized audio track.
type MCRAWMount struct {
	env *mcfs.Env
	log *log.Logger

	srcPath  string
	baseName string

	// baselineExp is min(iso * exposureNs) over the capture, scanned
	// once at mount time for exposure normalization.
	baselineExp float64

	mu        sync.RWMutex
	cfg       data.RenderConfig
	cal       *data.CalibrationData
	keyframes *data.ExposureKeyframes
	table     *entryTable
	stats     timemodel.Stats
	fps       float64
	mapping   timemodel.Mapping
	audioWav  []byte
	info      mcfs.FileInfo

	inflight sync.WaitGroup
	closemu  sync.Mutex
	closed   bool
}

// NewMCRAW opens a container, scans its exposure range and builds the
// initial entry table.
func NewMCRAW(env *mcfs.Env, srcPath string, cfg data.RenderConfig) (*MCRAWMount, error) {
	m := &MCRAWMount{
		env:      env,
		log:      env.Log.Named("mcraw"),
		srcPath:  srcPath,
		baseName: baseName(srcPath),
	}

	r, err := mcraw.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	frames := r.Frames()
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s", mcfs.ErrNoFrames, srcPath)
	}

	m.baselineExp = math.MaxFloat64
	for _, ts := range frames {
		metaJSON, err := r.LoadFrameMetadata(ts)
		if err != nil {
			return nil, err
		}
		iso, exposure, err := data.ParseFrameExposure(metaJSON)
		if err != nil {
			continue
		}
		if v := float64(iso) * exposure; v > 0 && v < m.baselineExp {
			m.baselineExp = v
		}
	}
	if m.baselineExp == math.MaxFloat64 {
		m.baselineExp = 0
	}

	if err := m.rebuild(r, cfg); err != nil {
		return nil, err
	}

	return m, nil
}

// rebuild recomputes everything derived from the render configuration:
// fps, entry mapping, audio mux and the sample DNG size. Callers hold no
// lock; the new table is swapped in atomically at the end.
func (m *MCRAWMount) rebuild(r *mcraw.Reader, cfg data.RenderConfig) error {
	frames := r.Frames()

	cal, err := data.LoadCalibration(m.srcPath)
	if err != nil {
		m.log.Warn("calibration sidecar: %v", err)
	} else if cal != nil {
		m.log.Info("loaded calibration sidecar for %s", m.srcPath)
	}

	keyframes, dropped := data.ParseKeyframes(cfg.ExposureCompensation)
	for _, pair := range dropped {
		m.log.Warn("ignoring malformed exposure keyframe %q", pair)
	}

	stats := timemodel.ComputeStats(frames)
	conversion := cfg.Flags.Has(data.FlagFramerateConversion)
	fps := timemodel.ResolveTarget(stats, cfg.CFRTarget, conversion)
	if fps <= 0 {
		fps = stats.MedianFPS
	}
	mapping := timemodel.BuildMapping(frames, fps, conversion)

	config, err := data.ParseCameraConfig(r.ContainerMetadata())
	if err != nil {
		return err
	}

	// One sample render sizes every synthetic entry.
	raw, metaJSON, err := r.LoadFrame(frames[0])
	if err != nil {
		return err
	}
	meta, err := data.ParseFrameMetadata(metaJSON)
	if err != nil {
		return err
	}

	sample, err := render.RenderDNG(mcraw.RawToPlane(raw), &render.Params{
		Meta:             meta,
		Config:           config,
		Calibration:      cal,
		RC:               &cfg,
		FPS:              fps,
		FrameIndex:       0,
		TotalFrames:      len(mapping.Frames),
		BaselineExpValue: m.baselineExp,
		Keyframes:        keyframes,
	})
	if err != nil {
		return err
	}
	typicalSize := int64(len(sample))

	// Mux audio once; it is served from memory afterwards.
	var wavData []byte
	chunks, err := r.LoadAudio()
	if err != nil {
		m.log.Warn("audio track unreadable: %v", err)
	} else if len(chunks) > 0 {
		synced := audio.Sync(toAudioChunks(chunks), frames[0], r.AudioSampleRate(), r.NumAudioChannels(), m.log)
		num, den := audio.ToFraction(fps, 1001)
		wavData, err = audio.EncodeWAV(synced, r.NumAudioChannels(), r.AudioSampleRate(), num, den)
		if err != nil {
			m.log.Warn("audio mux failed: %v", err)
			wavData = nil
		}
	}

	entries := make([]mcfs.Entry, 0, len(mapping.Frames)+2)

	if includeDesktopIni {
		entries = append(entries, mcfs.Entry{
			Type: mcfs.EntryTypeHidden,
			Name: "desktop.ini",
			Size: int64(len(DesktopIni)),
		})
	}
	if len(wavData) > 0 {
		entries = append(entries, mcfs.Entry{
			Type: mcfs.EntryTypeFile,
			Name: "audio.wav",
			Size: int64(len(wavData)),
		})
	}
	for _, f := range mapping.Frames {
		entries = append(entries, mcfs.Entry{
			Type: mcfs.EntryTypeFile,
			Name: frameFilename(m.baseName, f.Index),
			Size: typicalSize,
			Data: mcfs.TimestampData(f.Timestamp),
		})
	}

	info := mcfs.FileInfo{
		Width:            meta.Width,
		Height:           meta.Height,
		FPS:              fps,
		MedianFPS:        stats.MedianFPS,
		AverageFPS:       stats.AverageFPS,
		TotalFrames:      len(mapping.Frames),
		DroppedFrames:    mapping.Dropped,
		DuplicatedFrames: mapping.Duplicated,
		DataType:         fmt.Sprintf("%d-bit Bayer (%s)", dataBits(meta), config.SensorArrangement),
		Levels:           levelSummary(cfg.Levels, meta, config),
	}
	if fps > 0 {
		info.RuntimeSeconds = float64(len(mapping.Frames)) / fps
	}

	m.mu.Lock()
	m.cfg = cfg
	m.cal = cal
	m.keyframes = keyframes
	m.stats = stats
	m.fps = fps
	m.mapping = mapping
	m.audioWav = wavData
	m.table = newEntryTable(entries)
	m.info = info
	m.mu.Unlock()

	m.log.Info("%s: %d entries at %.3f fps (dropped %d, duplicated %d)",
		m.baseName, len(mapping.Frames), fps, mapping.Dropped, mapping.Duplicated)

	return nil
}

func toAudioChunks(chunks []mcraw.AudioChunk) []audio.Chunk {
	out := make([]audio.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = audio.Chunk{Timestamp: c.Timestamp, Samples: c.Samples}
	}
	return out
}

func dataBits(meta *data.FrameMetadata) int {
	bits := 0
	for w := int(meta.DynamicWhiteLevel); w > 0; w >>= 1 {
		bits++
	}
	if bits == 0 {
		bits = 16
	}
	return bits
}

func levelSummary(levels string, meta *data.FrameMetadata, config *data.CameraConfig) string {
	black, white := data.ResolveLevels(levels, meta, config)
	name := levels
	if name == "" {
		name = "Dynamic"
	}
	return fmt.Sprintf("%s -> %.0f..%.0f", name, black[0], white)
}

// ListFiles implements VirtualDirectory.
func (m *MCRAWMount) ListFiles(filter string) []mcfs.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.filter(filter)
}

// FindEntry implements VirtualDirectory.
func (m *MCRAWMount) FindEntry(fullPath string) (mcfs.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.find(strings.TrimPrefix(fullPath, "/"))
}

// ReadFile implements VirtualDirectory. Static entries (desktop.ini,
// audio.wav) are served inline regardless of async; frame entries are
// rendered through the cache on the worker pools.
func (m *MCRAWMount) ReadFile(entry mcfs.Entry, pos int64, dst []byte, result mcfs.ReadResult, async bool) int {
	if entry.Name == "desktop.ini" {
		n := copyRange(dst, []byte(DesktopIni), pos)
		result(n, mcfs.ReadOK)
		return n
	}
	if strings.HasSuffix(entry.Name, ".wav") {
		m.mu.RLock()
		wav := m.audioWav
		m.mu.RUnlock()

		n := copyRange(dst, wav, pos)
		result(n, mcfs.ReadOK)
		return n
	}
	if !strings.HasSuffix(entry.Name, ".dng") {
		result(0, mcfs.ReadErrNotFound)
		return 0
	}

	if !m.beginRead() {
		result(0, mcfs.ReadErrNotFound)
		return 0
	}

	job := func() int {
		defer m.inflight.Done()

		buf, code := m.renderFrame(entry)
		if code != mcfs.ReadOK {
			result(0, code)
			return 0
		}

		n := copyRange(dst, buf, pos)
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

func (m *MCRAWMount) beginRead() bool {
	m.closemu.Lock()
	defer m.closemu.Unlock()
	if m.closed {
		return false
	}
	m.inflight.Add(1)
	return true
}

// decodedFrame is the IO-pool result handed to the render stage.
type decodedFrame struct {
	index  int
	meta   *data.FrameMetadata
	config *data.CameraConfig
	plane  []uint16
	err    error
}

// renderFrame produces the DNG bytes for an entry, coalescing
// concurrent requests for the same entry into one decode and one render.
func (m *MCRAWMount) renderFrame(entry mcfs.Entry) ([]byte, int) {
	timestamp, ok := entry.Data.Timestamp()
	if !ok {
		return nil, mcfs.ReadErrNotFound
	}

	key := m.srcPath + "|" + entry.Key()

	buf, err := m.env.Cache.GetOrProduce(key, func() ([]byte, error) {
		d := m.decodeFrame(timestamp)
		if d.err != nil {
			return nil, fmt.Errorf("%w: %v", mcfs.ErrDecodeFailed, d.err)
		}

		m.mu.RLock()
		cfg := m.cfg
		cal := m.cal
		keyframes := m.keyframes
		fps := m.fps
		total := len(m.mapping.Frames)
		m.mu.RUnlock()

		out, err := render.RenderDNG(d.plane, &render.Params{
			Meta:             d.meta,
			Config:           d.config,
			Calibration:      cal,
			RC:               &cfg,
			FPS:              fps,
			FrameIndex:       d.index,
			TotalFrames:      total,
			BaselineExpValue: m.baselineExp,
			Keyframes:        keyframes,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", mcfs.ErrRenderFailed, err)
		}
		return out, nil
	})
	if err != nil {
		m.log.Error("frame %s: %v", entry.Name, err)
		if errors.Is(err, mcfs.ErrDecodeFailed) {
			return nil, mcfs.ReadErrDecode
		}
		return nil, mcfs.ReadErrRender
	}

	return buf, mcfs.ReadOK
}

// decodeFrame runs on the IO pool, reusing the worker's container
// handle.
func (m *MCRAWMount) decodeFrame(timestamp int64) decodedFrame {
	ch := make(chan decodedFrame, 1)

	submitted := m.env.IO.Submit(func(handles *mcfs.HandleCache) {
		handle, err := handles.Get(m.srcPath, func() (io.Closer, error) {
			return mcraw.Open(m.srcPath)
		})
		if err != nil {
			ch <- decodedFrame{err: err}
			return
		}
		r := handle.(*mcraw.Reader)

		index, err := r.FrameIndexOf(timestamp)
		if err != nil {
			ch <- decodedFrame{err: err}
			return
		}

		raw, metaJSON, err := r.LoadFrame(timestamp)
		if err != nil {
			handles.Drop(m.srcPath)
			ch <- decodedFrame{err: err}
			return
		}

		meta, err := data.ParseFrameMetadata(metaJSON)
		if err != nil {
			ch <- decodedFrame{err: err}
			return
		}
		config, err := data.ParseCameraConfig(r.ContainerMetadata())
		if err != nil {
			ch <- decodedFrame{err: err}
			return
		}

		ch <- decodedFrame{
			index:  index,
			meta:   meta,
			config: config,
			plane:  mcraw.RawToPlane(raw),
		}
	})
	if !submitted {
		return decodedFrame{err: mcfs.ErrShuttingDown}
	}

	return <-ch
}

// UpdateOptions implements VirtualDirectory: full rebuild plus cache
// invalidation.
func (m *MCRAWMount) UpdateOptions(cfg data.RenderConfig) error {
	r, err := mcraw.Open(m.srcPath)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := m.rebuild(r, cfg); err != nil {
		return err
	}

	m.env.Cache.Clear()
	return nil
}

// FileInfo implements VirtualDirectory.
func (m *MCRAWMount) FileInfo() mcfs.FileInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

// Close refuses new reads and drains the in-flight ones.
func (m *MCRAWMount) Close() error {
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
