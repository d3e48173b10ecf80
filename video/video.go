// Package video enumerates and decodes frames of H.265/HLG log videos.
// The decoding itself is delegated to the ffmpeg/ffprobe executables so
// the module stays pure Go; Decoder is the seam the log-video ingest
// programs against.
package video

import (
	"context"
	"strings"

	"github.com/LeonardSander/motioncam-fs/codec"
)

// FrameInfo locates one video frame on the presentation timeline.
type FrameInfo struct {
	Number    int
	PTS       int64
	Timestamp int64 // nanoseconds
}

// Info describes the video stream of a source file.
type Info struct {
	Width       int
	Height      int
	PixelFormat string
	TotalFrames int
	Duration    float64
	IsHLG       bool
}

// Decoder is the log-video access contract: stream introspection, frame
// enumeration with timestamps, and per-frame YUV extraction.
type Decoder interface {
	Info() Info
	Frames() []FrameInfo
	ExtractFrame(ctx context.Context, frameNumber int) (*codec.YUVFrame, error)
	Close() error
}

// IsHLGSource reports whether a file should be treated as HLG, based on
// the capture app's naming convention.
func IsHLGSource(path string) bool {
	return strings.Contains(strings.ToUpper(path), "HLG_NATIVE")
}

// VideoExtensions lists the source suffixes handled by the log-video
// ingest.
var VideoExtensions = []string{".mp4", ".mov", ".mkv"}

// IsVideoSource reports whether path looks like a log-video source.
func IsVideoSource(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range VideoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
