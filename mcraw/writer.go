package mcraw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// Writer produces container files record by record. It backs the test
// fixtures and small capture tools; records may be written in any order.
type Writer struct {
	f *os.File
	w *bufio.Writer
}

// Create starts a new container at path, truncating any existing file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("mcraw: %w", err)
	}

	w := &Writer{f: f, w: bufio.NewWriter(f)}

	var header [16]byte
	copy(header[:8], magic[:])
	binary.LittleEndian.PutUint32(header[8:], formatVersion)
	if _, err := w.w.Write(header[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("mcraw: %w", err)
	}

	return w, nil
}

// WriteContainerMetadata records the camera configuration and the audio
// stream parameters.
func (w *Writer) WriteContainerMetadata(configJSON []byte, audioChannels, audioSampleRate int) error {
	var hdr [13]byte
	hdr[0] = recordMetadata
	binary.LittleEndian.PutUint16(hdr[1:], uint16(audioChannels))
	binary.LittleEndian.PutUint32(hdr[3:], uint32(audioSampleRate))
	binary.LittleEndian.PutUint32(hdr[9:], uint32(len(configJSON)))

	if _, err := w.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("mcraw: %w", err)
	}
	if _, err := w.w.Write(configJSON); err != nil {
		return fmt.Errorf("mcraw: %w", err)
	}
	return nil
}

// WriteFrame records one raw sensor plane with its metadata JSON.
func (w *Writer) WriteFrame(timestamp int64, metadataJSON []byte, plane []uint16) error {
	var hdr [17]byte
	hdr[0] = recordFrame
	binary.LittleEndian.PutUint64(hdr[1:], uint64(timestamp))
	binary.LittleEndian.PutUint32(hdr[9:], uint32(len(metadataJSON)))
	binary.LittleEndian.PutUint32(hdr[13:], uint32(len(plane)*2))

	if _, err := w.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("mcraw: %w", err)
	}
	if _, err := w.w.Write(metadataJSON); err != nil {
		return fmt.Errorf("mcraw: %w", err)
	}

	buf := make([]byte, len(plane)*2)
	for i, s := range plane {
		binary.LittleEndian.PutUint16(buf[i*2:], s)
	}
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("mcraw: %w", err)
	}
	return nil
}

// WriteAudio records one PCM chunk.
func (w *Writer) WriteAudio(timestamp int64, samples []int16) error {
	var hdr [13]byte
	hdr[0] = recordAudio
	binary.LittleEndian.PutUint64(hdr[1:], uint64(timestamp))
	binary.LittleEndian.PutUint32(hdr[9:], uint32(len(samples)))

	if _, err := w.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("mcraw: %w", err)
	}

	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("mcraw: %w", err)
	}
	return nil
}

// Close flushes and closes the container.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("mcraw: %w", err)
	}
	return w.f.Close()
}
