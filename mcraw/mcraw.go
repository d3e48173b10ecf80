// Package mcraw reads MotionCam recording containers: a header followed
// by a stream of typed records carrying raw sensor frames with JSON
// metadata, PCM audio chunks and the container-level camera
// configuration. The reader indexes the stream once at open time and
// serves random access by capture timestamp afterwards.
package mcraw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

var magic = [8]byte{'M', 'C', 'R', 'A', 'W', 'B', 'I', 'N'}

const formatVersion = 1

// Record types in the container stream.
const (
	recordFrame    = 'F'
	recordAudio    = 'A'
	recordMetadata = 'M'
)

var (
	ErrBadMagic   = errors.New("mcraw: not a container file")
	ErrBadVersion = errors.New("mcraw: unsupported container version")
	ErrNoFrame    = errors.New("mcraw: no frame at timestamp")
)

// AudioChunk is one run of interleaved PCM samples.
type AudioChunk struct {
	Timestamp int64
	Samples   []int16
}

type frameIndex struct {
	timestamp  int64
	metaOffset int64
	metaLen    int
	dataOffset int64
	dataLen    int
}

// Reader provides random access to a container file. It is safe for use
// by one goroutine at a time; the IO pool keeps one Reader per worker.
type Reader struct {
	f      *os.File
	frames []frameIndex

	audio []audioIndex

	containerMeta []byte

	audioChannels   int
	audioSampleRate int
}

type audioIndex struct {
	timestamp int64
	offset    int64
	samples   int
}

// Open indexes the container at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mcraw: %w", err)
	}

	r := &Reader{f: f}
	if err := r.index(); err != nil {
		f.Close()
		return nil, err
	}

	return r, nil
}

func (r *Reader) index() error {
	var header [16]byte
	if _, err := io.ReadFull(r.f, header[:]); err != nil {
		return fmt.Errorf("mcraw: header: %w", err)
	}
	if [8]byte(header[:8]) != magic {
		return ErrBadMagic
	}
	if binary.LittleEndian.Uint32(header[8:]) != formatVersion {
		return ErrBadVersion
	}
	// header[12:16] reserved.

	pos := int64(16)
	var kind [1]byte

	for {
		if _, err := r.f.ReadAt(kind[:], pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("mcraw: record at %d: %w", pos, err)
		}
		pos++

		switch kind[0] {
		case recordFrame:
			var hdr [16]byte
			if _, err := r.f.ReadAt(hdr[:], pos); err != nil {
				return fmt.Errorf("mcraw: frame record at %d: %w", pos, err)
			}
			ts := int64(binary.LittleEndian.Uint64(hdr[:8]))
			metaLen := int(binary.LittleEndian.Uint32(hdr[8:12]))
			dataLen := int(binary.LittleEndian.Uint32(hdr[12:16]))

			r.frames = append(r.frames, frameIndex{
				timestamp:  ts,
				metaOffset: pos + 16,
				metaLen:    metaLen,
				dataOffset: pos + 16 + int64(metaLen),
				dataLen:    dataLen,
			})
			pos += 16 + int64(metaLen) + int64(dataLen)

		case recordAudio:
			var hdr [12]byte
			if _, err := r.f.ReadAt(hdr[:], pos); err != nil {
				return fmt.Errorf("mcraw: audio record at %d: %w", pos, err)
			}
			ts := int64(binary.LittleEndian.Uint64(hdr[:8]))
			samples := int(binary.LittleEndian.Uint32(hdr[8:12]))

			r.audio = append(r.audio, audioIndex{timestamp: ts, offset: pos + 12, samples: samples})
			pos += 12 + int64(samples)*2

		case recordMetadata:
			var hdr [12]byte
			if _, err := r.f.ReadAt(hdr[:], pos); err != nil {
				return fmt.Errorf("mcraw: metadata record at %d: %w", pos, err)
			}
			r.audioChannels = int(binary.LittleEndian.Uint16(hdr[:2]))
			r.audioSampleRate = int(binary.LittleEndian.Uint32(hdr[2:6]))
			metaLen := int(binary.LittleEndian.Uint32(hdr[8:12]))

			r.containerMeta = make([]byte, metaLen)
			if _, err := r.f.ReadAt(r.containerMeta, pos+12); err != nil {
				return fmt.Errorf("mcraw: container metadata: %w", err)
			}
			pos += 12 + int64(metaLen)

		default:
			return fmt.Errorf("mcraw: unknown record type %q at %d", kind[0], pos-1)
		}
	}

	sort.Slice(r.frames, func(i, j int) bool { return r.frames[i].timestamp < r.frames[j].timestamp })

	return nil
}

// Frames returns the sorted capture timestamps.
func (r *Reader) Frames() []int64 {
	out := make([]int64, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.timestamp
	}
	return out
}

func (r *Reader) find(timestamp int64) (*frameIndex, int, error) {
	i := sort.Search(len(r.frames), func(i int) bool { return r.frames[i].timestamp >= timestamp })
	if i >= len(r.frames) || r.frames[i].timestamp != timestamp {
		return nil, 0, fmt.Errorf("%w: %d", ErrNoFrame, timestamp)
	}
	return &r.frames[i], i, nil
}

// FrameIndexOf resolves a timestamp to its position in the sorted frame
// list.
func (r *Reader) FrameIndexOf(timestamp int64) (int, error) {
	_, i, err := r.find(timestamp)
	return i, err
}

// LoadFrame reads the raw sensor plane and the metadata JSON for a
// capture timestamp.
func (r *Reader) LoadFrame(timestamp int64) (raw []byte, metadata []byte, err error) {
	fi, _, err := r.find(timestamp)
	if err != nil {
		return nil, nil, err
	}

	metadata = make([]byte, fi.metaLen)
	if _, err := r.f.ReadAt(metadata, fi.metaOffset); err != nil {
		return nil, nil, fmt.Errorf("mcraw: frame metadata: %w", err)
	}

	raw = make([]byte, fi.dataLen)
	if _, err := r.f.ReadAt(raw, fi.dataOffset); err != nil {
		return nil, nil, fmt.Errorf("mcraw: frame data: %w", err)
	}

	return raw, metadata, nil
}

// LoadFrameMetadata reads only the metadata JSON for a capture timestamp.
func (r *Reader) LoadFrameMetadata(timestamp int64) ([]byte, error) {
	fi, _, err := r.find(timestamp)
	if err != nil {
		return nil, err
	}

	metadata := make([]byte, fi.metaLen)
	if _, err := r.f.ReadAt(metadata, fi.metaOffset); err != nil {
		return nil, fmt.Errorf("mcraw: frame metadata: %w", err)
	}
	return metadata, nil
}

// LoadAudio reads every PCM chunk in stream order.
func (r *Reader) LoadAudio() ([]AudioChunk, error) {
	out := make([]AudioChunk, 0, len(r.audio))

	for _, a := range r.audio {
		buf := make([]byte, a.samples*2)
		if _, err := r.f.ReadAt(buf, a.offset); err != nil {
			return nil, fmt.Errorf("mcraw: audio chunk: %w", err)
		}

		samples := make([]int16, a.samples)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
		}
		out = append(out, AudioChunk{Timestamp: a.timestamp, Samples: samples})
	}

	return out, nil
}

// NumAudioChannels returns the channel count from the container metadata.
func (r *Reader) NumAudioChannels() int { return r.audioChannels }

// AudioSampleRate returns the sample rate in Hz.
func (r *Reader) AudioSampleRate() int { return r.audioSampleRate }

// ContainerMetadata returns the camera configuration JSON.
func (r *Reader) ContainerMetadata() []byte { return r.containerMeta }

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// RawToPlane reinterprets little-endian frame bytes as 16-bit samples.
func RawToPlane(raw []byte) []uint16 {
	plane := make([]uint16, len(raw)/2)
	for i := range plane {
		plane[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return plane
}
