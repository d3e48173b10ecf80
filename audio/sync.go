// Package audio aligns the recorded PCM track with video frame zero and
// muxes it into a single WAV buffer at mount time.
package audio

import (
	"math"

	"github.com/LeonardSander/motioncam-fs/log"
)

// Chunk is one run of interleaved 16-bit PCM samples with the capture
// timestamp of its first sample.
type Chunk struct {
	Timestamp int64 // nanoseconds
	Samples   []int16
}

// maxDriftMs bounds the correction window: larger drifts indicate a
// broken recording and are left untouched.
const maxDriftMs = 1000.0

// Sync trims or pre-pads the chunk list so that audio sample zero aligns
// with the first video frame. Timestamps of surviving chunks are advanced
// accordingly. A correction builds a new slice; when nothing is corrected
// (no chunks, invalid format, or drift beyond maxDriftMs) the input slice
// is returned as is.
func Sync(chunks []Chunk, firstFrameTs int64, sampleRate, numChannels int, logger *log.Logger) []Chunk {
	if len(chunks) == 0 || sampleRate <= 0 || numChannels <= 0 {
		return chunks
	}

	driftMs := float64(chunks[0].Timestamp-firstFrameTs) * 1e-6
	if math.Abs(driftMs) > maxDriftMs {
		logger.Warn("audio drift %.1fms exceeds %.0fms, not syncing", driftMs, maxDriftMs)
		return chunks
	}

	if driftMs > 0 {
		return trimFront(chunks, driftMs, sampleRate, numChannels)
	}
	return padFront(chunks, -driftMs, firstFrameTs, sampleRate, numChannels)
}

// trimFront removes audio that precedes the first video frame.
func trimFront(chunks []Chunk, driftMs float64, sampleRate, numChannels int) []Chunk {
	framesToRemove := int(math.Round(driftMs * float64(sampleRate) / 1000))
	samplesToRemove := framesToRemove * numChannels

	out := make([]Chunk, 0, len(chunks))
	removed := 0

	for _, c := range chunks {
		if removed >= samplesToRemove {
			out = append(out, c)
			continue
		}

		remaining := samplesToRemove - removed
		if len(c.Samples) <= remaining {
			removed += len(c.Samples)
			continue
		}

		trimmed := Chunk{
			Timestamp: c.Timestamp + int64(remaining/numChannels)*1e9/int64(sampleRate),
			Samples:   c.Samples[remaining:],
		}
		out = append(out, trimmed)
		removed = samplesToRemove
	}

	return out
}

// padFront prepends silence so audio starts exactly at the first frame.
func padFront(chunks []Chunk, silenceMs float64, firstFrameTs int64, sampleRate, numChannels int) []Chunk {
	silenceFrames := int(math.Round(silenceMs * float64(sampleRate) / 1000))
	silence := Chunk{
		Timestamp: firstFrameTs,
		Samples:   make([]int16, silenceFrames*numChannels),
	}

	shiftNs := int64(math.Round(silenceMs * 1e6))
	out := make([]Chunk, 0, len(chunks)+1)
	out = append(out, silence)
	for _, c := range chunks {
		out = append(out, Chunk{Timestamp: c.Timestamp + shiftNs, Samples: c.Samples})
	}

	return out
}

// ToFraction expresses a frame rate as a fraction over the given base,
// reduced to lowest terms. Base 1001 yields the broadcast ratios
// (30000/1001 for 29.97).
func ToFraction(frameRate float64, base int) (num, den int) {
	if frameRate <= 0 || base <= 0 {
		return 0, 1
	}

	num = int(math.Round(frameRate * float64(base)))
	den = base

	d := gcd(num, den)
	return num / d, den / d
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
