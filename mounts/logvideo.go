package mounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	mcfs "github.com/LeonardSander/motioncam-fs"
	"github.com/LeonardSander/motioncam-fs/codec"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/log"
	"github.com/LeonardSander/motioncam-fs/render"
	"github.com/LeonardSander/motioncam-fs/timemodel"
	"github.com/LeonardSander/motioncam-fs/video"
)

// LogVideoMount exposes an HLG/log H.265 video as a directory of DNG
// frames: per-read the frame is decoded to YUV, converted to RGB16
// (linearized for HLG sources) and re-encoded, optionally remosaiced to a
// Bayer CFA.
type LogVideoMount struct {
	env *mcfs.Env
	log *log.Logger

	srcPath  string
	baseName string
	decoder  video.Decoder

	mu        sync.RWMutex
	cfg       data.RenderConfig
	cal       *data.CalibrationData
	keyframes *data.ExposureKeyframes
	table     *entryTable
	stats     timemodel.Stats
	fps       float64
	mapping   timemodel.Mapping
	cfaPhase  data.CFAPattern
	remosaic  bool
	info      mcfs.FileInfo

	inflight sync.WaitGroup
	closemu  sync.Mutex
	closed   bool
}

// NewLogVideo probes the source with ffmpeg and builds the directory.
func NewLogVideo(ctx context.Context, env *mcfs.Env, srcPath string, cfg data.RenderConfig) (*LogVideoMount, error) {
	dec, err := video.OpenFFmpeg(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	return NewLogVideoFrom(env, srcPath, cfg, dec)
}

// NewLogVideoFrom builds the mount on an already-open decoder. Tests
// inject synthetic decoders here.
func NewLogVideoFrom(env *mcfs.Env, srcPath string, cfg data.RenderConfig, dec video.Decoder) (*LogVideoMount, error) {
	if len(dec.Frames()) == 0 {
		dec.Close()
		return nil, fmt.Errorf("%w: %s", mcfs.ErrNoFrames, srcPath)
	}

	m := &LogVideoMount{
		env:      env,
		log:      env.Log.Named("logvideo"),
		srcPath:  srcPath,
		baseName: baseName(srcPath),
		decoder:  dec,
	}

	if err := m.rebuild(cfg); err != nil {
		dec.Close()
		return nil, err
	}

	return m, nil
}

func (m *LogVideoMount) rebuild(cfg data.RenderConfig) error {
	frames := m.decoder.Frames()
	streamInfo := m.decoder.Info()

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

	timestamps := make([]int64, len(frames))
	for i, f := range frames {
		timestamps[i] = f.Timestamp
	}

	stats := timemodel.ComputeStats(timestamps)
	conversion := cfg.Flags.Has(data.FlagFramerateConversion)
	fps := timemodel.ResolveTarget(stats, cfg.CFRTarget, conversion)
	if fps <= 0 {
		fps = stats.MedianFPS
	}
	mapping := timemodel.BuildMapping(timestamps, fps, conversion)

	cfaPhase, remosaic := resolveCFAPhase(cfg, cal)

	// Sample render to size the entries; estimate on failure.
	typicalSize := int64(streamInfo.Width)*int64(streamInfo.Height)*3*2 + 1<<20
	if sample, err := m.renderByNumber(0, cfg, cal, keyframes, fps, len(mapping.Frames), cfaPhase, remosaic); err == nil {
		typicalSize = int64(len(sample))
	} else {
		m.log.Warn("sample render failed, using size estimate: %v", err)
	}

	entries := make([]mcfs.Entry, 0, len(mapping.Frames)+1)
	if includeDesktopIni {
		entries = append(entries, mcfs.Entry{
			Type: mcfs.EntryTypeHidden,
			Name: "desktop.ini",
			Size: int64(len(DesktopIni)),
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

	dataType := fmt.Sprintf("%s RGB", streamInfo.PixelFormat)
	if remosaic {
		dataType = fmt.Sprintf("%s remosaic (%s)", streamInfo.PixelFormat, cfaPhase)
	}
	if streamInfo.IsHLG {
		dataType += ", HLG"
	}

	info := mcfs.FileInfo{
		Width:            streamInfo.Width,
		Height:           streamInfo.Height,
		FPS:              fps,
		MedianFPS:        stats.MedianFPS,
		AverageFPS:       stats.AverageFPS,
		TotalFrames:      len(mapping.Frames),
		DroppedFrames:    mapping.Dropped,
		DuplicatedFrames: mapping.Duplicated,
		DataType:         dataType,
		Levels:           "full range",
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
	m.cfaPhase = cfaPhase
	m.remosaic = remosaic
	m.table = newEntryTable(entries)
	m.info = info
	m.mu.Unlock()

	m.log.Info("%s: %d entries at %.3f fps (dropped %d, duplicated %d)",
		m.baseName, len(mapping.Frames), fps, mapping.Dropped, mapping.Duplicated)

	return nil
}

// resolveCFAPhase picks the remosaic phase: the sidecar wins, then the
// configured value unless opted out, then the bggr default.
func resolveCFAPhase(cfg data.RenderConfig, cal *data.CalibrationData) (data.CFAPattern, bool) {
	remosaic := cfg.Flags.Has(data.FlagRemosaic) || cfg.QuadBayer == "Remosaic"

	phaseName := "bggr"
	if cal != nil && cal.CFAPhase != "" {
		phaseName = cal.CFAPhase
	} else if cfg.CFAPhase != "" && cfg.CFAPhase != "Don't override CFA" {
		phaseName = strings.ToLower(cfg.CFAPhase)
	}

	phase, err := data.ParseCFA(phaseName)
	if err != nil {
		phase = data.CFABGGR
	}
	return phase, remosaic
}

// ListFiles implements VirtualDirectory.
func (m *LogVideoMount) ListFiles(filter string) []mcfs.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.filter(filter)
}

// FindEntry implements VirtualDirectory.
func (m *LogVideoMount) FindEntry(fullPath string) (mcfs.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.find(strings.TrimPrefix(fullPath, "/"))
}

// ReadFile implements VirtualDirectory.
func (m *LogVideoMount) ReadFile(entry mcfs.Entry, pos int64, dst []byte, result mcfs.ReadResult, async bool) int {
	if entry.Name == "desktop.ini" {
		n := copyRange(dst, []byte(DesktopIni), pos)
		result(n, mcfs.ReadOK)
		return n
	}
	if !strings.HasSuffix(entry.Name, ".dng") {
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

func (m *LogVideoMount) renderFrame(entry mcfs.Entry) ([]byte, int) {
	timestamp, ok := entry.Data.Timestamp()
	if !ok {
		return nil, mcfs.ReadErrNotFound
	}

	frameNumber := -1
	for _, f := range m.decoder.Frames() {
		if f.Timestamp == timestamp {
			frameNumber = f.Number
			break
		}
	}
	if frameNumber < 0 {
		return nil, mcfs.ReadErrNotFound
	}

	m.mu.RLock()
	cfg := m.cfg
	cal := m.cal
	keyframes := m.keyframes
	fps := m.fps
	total := len(m.mapping.Frames)
	cfaPhase := m.cfaPhase
	remosaic := m.remosaic
	m.mu.RUnlock()

	key := m.srcPath + "|" + entry.Key()
	buf, err := m.env.Cache.GetOrProduce(key, func() ([]byte, error) {
		return m.renderByNumber(frameNumber, cfg, cal, keyframes, fps, total, cfaPhase, remosaic)
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

// renderByNumber decodes one frame on the IO pool and renders it on the
// calling goroutine.
func (m *LogVideoMount) renderByNumber(frameNumber int, cfg data.RenderConfig, cal *data.CalibrationData,
	keyframes *data.ExposureKeyframes, fps float64, total int, cfaPhase data.CFAPattern, remosaic bool) ([]byte, error) {

	type extracted struct {
		frame *codec.YUVFrame
		err   error
	}
	ch := make(chan extracted, 1)

	submitted := m.env.IO.Submit(func(*mcfs.HandleCache) {
		frame, err := m.decoder.ExtractFrame(context.Background(), frameNumber)
		ch <- extracted{frame: frame, err: err}
	})
	if !submitted {
		return nil, mcfs.ErrShuttingDown
	}

	ex := <-ch
	if ex.err != nil {
		return nil, fmt.Errorf("%w: %v", mcfs.ErrDecodeFailed, ex.err)
	}

	rgb, err := ex.frame.ToRGB16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mcfs.ErrDecodeFailed, err)
	}

	streamInfo := m.decoder.Info()
	if streamInfo.IsHLG {
		codec.ApplyInverseHLG(rgb)
	}

	out, err := render.RenderVideoDNG(rgb, ex.frame.Width, ex.frame.Height, &render.VideoParams{
		RC:          &cfg,
		Calibration: cal,
		CFAPhase:    cfaPhase,
		Remosaic:    remosaic,
		FPS:         fps,
		FrameIndex:  frameNumber,
		TotalFrames: total,
		Keyframes:   keyframes,
		IsHLG:       streamInfo.IsHLG,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mcfs.ErrRenderFailed, err)
	}
	return out, nil
}

// UpdateOptions implements VirtualDirectory.
func (m *LogVideoMount) UpdateOptions(cfg data.RenderConfig) error {
	if err := m.rebuild(cfg); err != nil {
		return err
	}
	m.env.Cache.Clear()
	return nil
}

// FileInfo implements VirtualDirectory.
func (m *LogVideoMount) FileInfo() mcfs.FileInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

// Close drains reads and releases the decoder.
func (m *LogVideoMount) Close() error {
	m.closemu.Lock()
	if m.closed {
		m.closemu.Unlock()
		return nil
	}
	m.closed = true
	m.closemu.Unlock()

	m.inflight.Wait()
	return m.decoder.Close()
}
