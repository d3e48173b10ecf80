// Package timemodel derives frame-rate statistics from capture
// timestamps, resolves the constant-frame-rate target and maps source
// frames onto the output index space, duplicating stalled frames and
// dropping redundant ones.
package timemodel

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Stats summarizes the cadence of a capture.
type Stats struct {
	MedianFPS  float64
	AverageFPS float64
}

// ComputeStats derives median and average frame rates from sorted capture
// timestamps in nanoseconds. Non-positive intervals are ignored.
func ComputeStats(timestamps []int64) Stats {
	if len(timestamps) < 2 {
		return Stats{}
	}

	intervals := make([]float64, 0, len(timestamps)-1)
	sum := 0.0
	for i := 1; i < len(timestamps); i++ {
		d := float64(timestamps[i] - timestamps[i-1])
		if d > 0 {
			intervals = append(intervals, d)
			sum += d
		}
	}
	if len(intervals) == 0 {
		return Stats{}
	}

	sort.Float64s(intervals)
	mid := len(intervals) / 2
	var median float64
	if len(intervals)%2 == 0 {
		median = (intervals[mid-1] + intervals[mid]) / 2
	} else {
		median = intervals[mid]
	}

	return Stats{
		MedianFPS:  1e9 / median,
		AverageFPS: 1e9 / (sum / float64(len(intervals))),
	}
}

// bands is the rounding table, one row per band with its integer and
// drop-frame targets. A band matches when lo < fps < hi; anything
// unmatched passes through.
type band struct {
	lo, hi    float64
	integer   float64
	dropFrame float64
}

var bands = []band{
	{23, 24.5, 24, 23.976},
	{24.5, 26, 25, 25},
	{26, 33, 30, 29.97},
	{33, 49, 48, 47.952},
	{49, 52, 50, 50},
	{56, 63, 60, 59.94},
	{112, 125, 120, 119.88},
	{224, 250, 240, 240},
	{448, 500, 480, 480},
	{896, 1000, 960, 960},
}

// ResolveTarget resolves the constant-frame-rate target from the
// configured policy. With conversion disabled the policy is only used
// for naming and timecode: a literal parses, anything else yields the
// average rate.
func ResolveTarget(stats Stats, cfrTarget string, conversion bool) float64 {
	if !conversion {
		if fps, err := strconv.ParseFloat(strings.TrimSpace(cfrTarget), 64); err == nil && fps > 0 {
			return fps
		}
		return stats.AverageFPS
	}

	switch cfrTarget {
	case "Prefer Integer":
		return roundToBand(stats.MedianFPS, false)
	case "Prefer Drop Frame":
		return roundToBand(stats.MedianFPS, true)
	case "Median (Slowmotion)":
		return stats.MedianFPS
	case "Average (Testing)":
		return stats.AverageFPS
	default:
		if fps, err := strconv.ParseFloat(strings.TrimSpace(cfrTarget), 64); err == nil && fps > 0 {
			return fps
		}
		return stats.MedianFPS
	}
}

func roundToBand(fps float64, dropFrame bool) float64 {
	if fps <= 23 || fps >= 1000 {
		return fps
	}
	for _, b := range bands {
		if fps > b.lo && fps < b.hi {
			if dropFrame {
				return b.dropFrame
			}
			return b.integer
		}
	}
	return fps
}

// MappedFrame associates one output slot with the source timestamp that
// fills it.
type MappedFrame struct {
	Index     int
	Timestamp int64
}

// Mapping is the full output-index plan for a capture.
type Mapping struct {
	Frames     []MappedFrame
	Dropped    int
	Duplicated int
}

// BuildMapping assigns every source timestamp an output slot at the
// target rate. Gaps are filled by duplicating the next frame; sources
// that land on an already-emitted slot are dropped. With conversion
// disabled frames map 1:1 onto consecutive indices.
func BuildMapping(timestamps []int64, fps float64, conversion bool) Mapping {
	var m Mapping
	if len(timestamps) == 0 {
		return m
	}

	if !conversion || fps <= 0 {
		m.Frames = make([]MappedFrame, len(timestamps))
		for i, ts := range timestamps {
			m.Frames[i] = MappedFrame{Index: i, Timestamp: ts}
		}
		return m
	}

	m.Frames = make([]MappedFrame, 0, len(timestamps))
	lastEmitted := -1

	for _, ts := range timestamps {
		slot := int(math.Round(float64(ts-timestamps[0]) * fps / 1e9))

		switch {
		case slot <= lastEmitted:
			m.Dropped++
		default:
			m.Duplicated += slot - lastEmitted - 1
			for idx := lastEmitted + 1; idx <= slot; idx++ {
				m.Frames = append(m.Frames, MappedFrame{Index: idx, Timestamp: ts})
			}
			lastEmitted = slot
		}
	}

	return m
}
