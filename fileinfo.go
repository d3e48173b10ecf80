package mcfs

import "fmt"

// FileInfo is the display snapshot of a mounted source.
type FileInfo struct {
	Width  int
	Height int

	FPS        float64
	MedianFPS  float64
	AverageFPS float64

	TotalFrames      int
	DroppedFrames    int
	DuplicatedFrames int

	// DataType describes the emitted sample layout, e.g.
	// "10-bit Bayer (rggb)" or "12-bit RGB".
	DataType string

	// Levels summarizes the active level transform, e.g.
	// "Dynamic -> 0..1023".
	Levels string

	RuntimeSeconds float64
}

// Runtime formats the clip length as m:ss.
func (i FileInfo) Runtime() string {
	total := int(i.RuntimeSeconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
