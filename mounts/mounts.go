// Package mounts implements the three ingest variants behind the
// VirtualDirectory contract: MotionCam containers (raw Bayer), folders
// of existing DNG files (pass-through) and HLG/log H.265 videos
// (decode + optional remosaic).
package mounts

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	mcfs "github.com/LeonardSander/motioncam-fs"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/video"
)

// DesktopIni suppresses shell thumbnailing of the synthetic directory on
// Windows hosts.
const DesktopIni = `[.ShellClassInfo]
ConfirmFileOp=0

[ViewState]
Mode=4
Vid={137E7700-3573-11CF-AE69-08002B2E1262}
FolderType=Generic

[{5984FFE0-28D4-11CF-AE66-08002B2E1262}]
Mode=4
LogicalViewMode=1
IconSize=16

[LocalizedFileNames]
`

// includeDesktopIni is only set on Windows hosts.
var includeDesktopIni = runtime.GOOS == "windows"

// New detects the source type and constructs the matching ingest.
func New(ctx context.Context, env *mcfs.Env, srcPath string, cfg data.RenderConfig) (mcfs.VirtualDirectory, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("mounts: %w", err)
	}

	switch {
	case info.IsDir():
		return NewDNGSequence(env, srcPath, cfg)
	case strings.HasSuffix(strings.ToLower(srcPath), ".mcraw"):
		return NewMCRAW(env, srcPath, cfg)
	case strings.HasSuffix(strings.ToLower(srcPath), ".dng"):
		return NewDNGSequence(env, srcPath, cfg)
	case video.IsVideoSource(srcPath):
		return NewLogVideo(ctx, env, srcPath, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", mcfs.ErrUnsupported, srcPath)
	}
}

// baseName strips directory and extension from a source path.
func baseName(srcPath string) string {
	base := srcPath
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '\\'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// frameFilename builds "<base>-NNNNNN.dng" entry names.
func frameFilename(base string, frameNumber int) string {
	return fmt.Sprintf("%s-%06d.dng", base, frameNumber)
}

// copyRange copies a window of src into dst and returns the byte count.
func copyRange(dst []byte, src []byte, pos int64) int {
	if pos < 0 || pos >= int64(len(src)) {
		return 0
	}
	return copy(dst, src[pos:])
}
