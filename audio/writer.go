package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const ixmlTemplate = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<BWFXML>` +
	`<IXML_VERSION>1.5</IXML_VERSION>` +
	`<PROJECT>RAW Video</PROJECT>` +
	`<NOTE>-</NOTE>` +
	`<CIRCLED>FALSE</CIRCLED>` +
	`<TAPE>1</TAPE>` +
	`<SCENE>1</SCENE>` +
	`<TAKE>1</TAKE>` +
	`<SPEED>` +
	`<MASTER_SPEED>%d/%d</MASTER_SPEED>` +
	`<CURRENT_SPEED>%d/%d</CURRENT_SPEED>` +
	`<TIMECODE_RATE>%d/%d</TIMECODE_RATE>` +
	`<TIMECODE_FLAG>NDF</TIMECODE_FLAG>` +
	`</SPEED>` +
	`</BWFXML>`

// EncodeWAV muxes synced chunks into a 16-bit PCM WAV buffer carrying a
// BWF iXML chunk that links the audio speed to the video frame rate.
func EncodeWAV(chunks []Chunk, numChannels, sampleRate int, fpsNum, fpsDen int) ([]byte, error) {
	if numChannels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid format %d ch @ %d Hz", numChannels, sampleRate)
	}

	total := 0
	for _, c := range chunks {
		total += len(c.Samples)
	}
	if total == 0 {
		return nil, nil
	}

	buf := &memWriteSeeker{}
	enc := wav.NewEncoder(buf, sampleRate, 16, numChannels, 1)

	ints := make([]int, total)
	pos := 0
	for _, c := range chunks {
		for _, s := range c.Samples {
			ints[pos] = int(s)
			pos++
		}
	}

	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           ints,
	}); err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}

	ixml := fmt.Sprintf(ixmlTemplate, fpsNum, fpsDen, fpsNum, fpsDen, fpsNum, fpsDen)
	return spliceChunk(buf.data, "iXML", []byte(ixml))
}

// spliceChunk inserts a RIFF chunk before the data chunk and fixes the
// RIFF size header.
func spliceChunk(wavData []byte, id string, payload []byte) ([]byte, error) {
	if len(wavData) < 12 || string(wavData[:4]) != "RIFF" || string(wavData[8:12]) != "WAVE" {
		return nil, fmt.Errorf("audio: not a RIFF/WAVE stream")
	}

	// Walk chunks until data.
	pos := 12
	for pos+8 <= len(wavData) {
		chunkID := string(wavData[pos : pos+4])
		chunkLen := int(binary.LittleEndian.Uint32(wavData[pos+4 : pos+8]))

		if chunkID == "data" {
			chunk := make([]byte, 8+len(payload)+len(payload)%2)
			copy(chunk, id)
			binary.LittleEndian.PutUint32(chunk[4:], uint32(len(payload)))
			copy(chunk[8:], payload)

			out := make([]byte, 0, len(wavData)+len(chunk))
			out = append(out, wavData[:pos]...)
			out = append(out, chunk...)
			out = append(out, wavData[pos:]...)

			binary.LittleEndian.PutUint32(out[4:], uint32(len(out)-8))
			return out, nil
		}

		pos += 8 + chunkLen + chunkLen%2
	}

	return nil, fmt.Errorf("audio: data chunk not found")
}

// memWriteSeeker adapts an in-memory buffer to the io.WriteSeeker the
// WAV encoder needs for its header back-patching.
type memWriteSeeker struct {
	data []byte
	pos  int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.data) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = m.pos + int(offset)
	case io.SeekEnd:
		next = len(m.data) + int(offset)
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("audio: negative seek position")
	}
	m.pos = next
	return int64(next), nil
}
