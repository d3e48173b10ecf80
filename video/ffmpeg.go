package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/LeonardSander/motioncam-fs/codec"
)

// FFmpegDecoder drives the ffprobe/ffmpeg executables. Opening probes
// the stream and enumerates every packet's PTS; extraction decodes a
// single frame to raw planar YUV.
type FFmpegDecoder struct {
	path   string
	info   Info
	frames []FrameInfo

	ffmpegPath  string
	ffprobePath string
}

type ffprobeOutput struct {
	Streams []struct {
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		PixFmt    string `json:"pix_fmt"`
		TimeBase  string `json:"time_base"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Packets []struct {
		PTS     int64  `json:"pts"`
		PTSTime string `json:"pts_time"`
	} `json:"packets"`
}

// OpenFFmpeg probes path and builds the frame index.
func OpenFFmpeg(ctx context.Context, path string) (*FFmpegDecoder, error) {
	d := &FFmpegDecoder{
		path:        path,
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}

	out, err := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,pix_fmt,time_base,duration",
		"-show_entries", "packet=pts,pts_time",
		"-of", "json",
		path,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("video: ffprobe %s: %w", path, err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("video: ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("video: %s has no video stream", path)
	}

	s := probe.Streams[0]
	switch s.PixFmt {
	case "yuv420p", "yuv420p10le", "yuv422p10le":
	default:
		return nil, fmt.Errorf("video: unsupported pixel format %q", s.PixFmt)
	}

	d.info = Info{
		Width:       s.Width,
		Height:      s.Height,
		PixelFormat: s.PixFmt,
		IsHLG:       IsHLGSource(path),
	}
	if v, err := strconv.ParseFloat(s.Duration, 64); err == nil {
		d.info.Duration = v
	}

	for _, p := range probe.Packets {
		t, err := strconv.ParseFloat(p.PTSTime, 64)
		if err != nil {
			continue
		}
		d.frames = append(d.frames, FrameInfo{
			PTS:       p.PTS,
			Timestamp: int64(t * 1e9),
		})
	}

	// Packets arrive in decode order; presentation order is by PTS.
	sort.Slice(d.frames, func(i, j int) bool { return d.frames[i].PTS < d.frames[j].PTS })
	for i := range d.frames {
		d.frames[i].Number = i
	}
	d.info.TotalFrames = len(d.frames)

	return d, nil
}

// Info returns the probed stream description.
func (d *FFmpegDecoder) Info() Info { return d.info }

// Frames returns every frame in presentation order.
func (d *FFmpegDecoder) Frames() []FrameInfo { return d.frames }

// ExtractFrame decodes one frame to raw planar YUV in the stream's own
// pixel format.
func (d *FFmpegDecoder) ExtractFrame(ctx context.Context, frameNumber int) (*codec.YUVFrame, error) {
	if frameNumber < 0 || frameNumber >= len(d.frames) {
		return nil, fmt.Errorf("video: frame %d out of range (0..%d)", frameNumber, len(d.frames)-1)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-v", "error",
		"-i", d.path,
		"-map", "0:v:0",
		"-vf", fmt.Sprintf("select=eq(n\\,%d)", frameNumber),
		"-vframes", "1",
		"-f", "rawvideo",
		"-pix_fmt", d.info.PixelFormat,
		"-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("video: ffmpeg frame %d: %w (%s)", frameNumber, err, strings.TrimSpace(stderr.String()))
	}

	return splitPlanes(stdout.Bytes(), d.info)
}

// splitPlanes slices one rawvideo frame into its Y/U/V planes.
func splitPlanes(raw []byte, info Info) (*codec.YUVFrame, error) {
	bytesPerSample := 1
	if strings.HasSuffix(info.PixelFormat, "10le") {
		bytesPerSample = 2
	}

	chromaW := info.Width / 2
	chromaH := info.Height / 2
	if info.PixelFormat == "yuv422p10le" {
		chromaH = info.Height
	}

	ySize := info.Width * info.Height * bytesPerSample
	cSize := chromaW * chromaH * bytesPerSample

	if len(raw) < ySize+2*cSize {
		return nil, fmt.Errorf("video: short rawvideo frame: %d bytes, want %d", len(raw), ySize+2*cSize)
	}

	return &codec.YUVFrame{
		PixelFormat: info.PixelFormat,
		Width:       info.Width,
		Height:      info.Height,
		Y:           raw[:ySize],
		U:           raw[ySize : ySize+cSize],
		V:           raw[ySize+cSize : ySize+2*cSize],
		YStride:     info.Width * bytesPerSample,
		UStride:     chromaW * bytesPerSample,
		VStride:     chromaW * bytesPerSample,
	}, nil
}

// Close satisfies Decoder; the exec-based decoder holds no resources.
func (d *FFmpegDecoder) Close() error { return nil }
