package dng

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Opcode ids defined by the DNG specification.
const OpcodeGainMap = 9

// Opcode list data is always serialized big-endian, independent of the
// byte order of the enclosing TIFF stream.
var be = binary.BigEndian

// GainMap is a DNG OpcodeList GainMap: a per-plane gain grid applied over
// a rectangle of the active area.
type GainMap struct {
	Top, Left, Bottom, Right uint32
	Plane, Planes            uint32
	RowPitch, ColPitch       uint32
	MapPointsV, MapPointsH   uint32
	MapSpacingV, MapSpacingH float64
	MapOriginV, MapOriginH   float64
	MapPlanes                uint32

	// Gains holds MapPlanes * MapPointsV * MapPointsH values in
	// plane-major, row-major order.
	Gains []float32
}

const gainMapHeaderSize = 4*11 + 8*4

// payloadSize is the serialized opcode-data length for this map.
func (g *GainMap) payloadSize() int {
	return gainMapHeaderSize + 4*len(g.Gains)
}

// BuildOpcodeList serializes gain maps into an OpcodeList2/3 blob:
// a count followed by (id, version, flags, size, data) per opcode.
func BuildOpcodeList(maps []GainMap) []byte {
	size := 4
	for i := range maps {
		size += 16 + maps[i].payloadSize()
	}

	out := make([]byte, size)
	be.PutUint32(out, uint32(len(maps)))

	pos := 4
	for i := range maps {
		g := &maps[i]

		be.PutUint32(out[pos:], OpcodeGainMap)
		copy(out[pos+4:], []byte{1, 3, 0, 0}) // DNG spec version of the opcode
		be.PutUint32(out[pos+8:], 0)          // flags: required, no skip
		be.PutUint32(out[pos+12:], uint32(g.payloadSize()))
		pos += 16

		be.PutUint32(out[pos:], g.Top)
		be.PutUint32(out[pos+4:], g.Left)
		be.PutUint32(out[pos+8:], g.Bottom)
		be.PutUint32(out[pos+12:], g.Right)
		be.PutUint32(out[pos+16:], g.Plane)
		be.PutUint32(out[pos+20:], g.Planes)
		be.PutUint32(out[pos+24:], g.RowPitch)
		be.PutUint32(out[pos+28:], g.ColPitch)
		be.PutUint32(out[pos+32:], g.MapPointsV)
		be.PutUint32(out[pos+36:], g.MapPointsH)
		be.PutUint64(out[pos+40:], math.Float64bits(g.MapSpacingV))
		be.PutUint64(out[pos+48:], math.Float64bits(g.MapSpacingH))
		be.PutUint64(out[pos+56:], math.Float64bits(g.MapOriginV))
		be.PutUint64(out[pos+64:], math.Float64bits(g.MapOriginH))
		be.PutUint32(out[pos+72:], g.MapPlanes)
		pos += gainMapHeaderSize

		for _, gain := range g.Gains {
			be.PutUint32(out[pos:], math.Float32bits(gain))
			pos += 4
		}
	}

	return out
}

// ParseGainMaps walks an opcode list and returns every GainMap opcode.
// The remaining byte budget of the outer list is tracked separately from
// each opcode's declared size, so a short or oversized opcode aborts
// instead of misreading its successors. Unknown opcodes are skipped.
func ParseGainMaps(list []byte) ([]GainMap, error) {
	if len(list) < 4 {
		return nil, fmt.Errorf("dng: opcode list truncated (%d bytes)", len(list))
	}

	numOpcodes := be.Uint32(list)
	pos := 4

	var maps []GainMap

	for i := uint32(0); i < numOpcodes; i++ {
		if len(list)-pos < 16 {
			return nil, fmt.Errorf("dng: opcode %d header exceeds list bounds", i)
		}

		opcodeID := be.Uint32(list[pos:])
		opcodeLen := int(be.Uint32(list[pos+12:]))
		pos += 16

		if opcodeLen < 0 || len(list)-pos < opcodeLen {
			return nil, fmt.Errorf("dng: opcode %d declares %d bytes, %d remain", i, opcodeLen, len(list)-pos)
		}

		if opcodeID == OpcodeGainMap {
			g, err := parseGainMap(list[pos : pos+opcodeLen])
			if err != nil {
				return nil, fmt.Errorf("dng: opcode %d: %w", i, err)
			}
			maps = append(maps, g)
		}

		pos += opcodeLen
	}

	return maps, nil
}

func parseGainMap(data []byte) (GainMap, error) {
	if len(data) < gainMapHeaderSize {
		return GainMap{}, fmt.Errorf("gain map header truncated (%d bytes)", len(data))
	}

	g := GainMap{
		Top:         be.Uint32(data),
		Left:        be.Uint32(data[4:]),
		Bottom:      be.Uint32(data[8:]),
		Right:       be.Uint32(data[12:]),
		Plane:       be.Uint32(data[16:]),
		Planes:      be.Uint32(data[20:]),
		RowPitch:    be.Uint32(data[24:]),
		ColPitch:    be.Uint32(data[28:]),
		MapPointsV:  be.Uint32(data[32:]),
		MapPointsH:  be.Uint32(data[36:]),
		MapSpacingV: math.Float64frombits(be.Uint64(data[40:])),
		MapSpacingH: math.Float64frombits(be.Uint64(data[48:])),
		MapOriginV:  math.Float64frombits(be.Uint64(data[56:])),
		MapOriginH:  math.Float64frombits(be.Uint64(data[64:])),
		MapPlanes:   be.Uint32(data[72:]),
	}

	count := int(g.MapPlanes) * int(g.MapPointsV) * int(g.MapPointsH)
	if count < 0 || len(data)-gainMapHeaderSize < count*4 {
		return GainMap{}, fmt.Errorf("gain map data truncated: want %d gains, have %d bytes",
			count, len(data)-gainMapHeaderSize)
	}

	g.Gains = make([]float32, count)
	for i := range g.Gains {
		g.Gains[i] = math.Float32frombits(be.Uint32(data[gainMapHeaderSize+i*4:]))
	}

	return g, nil
}
