package codec

import "math"

// ShadingMap is a low-resolution per-channel gain surface for lens
// vignetting. Gains carries four channels indexed by CFA position, each a
// row-major Width*Height grid.
type ShadingMap struct {
	Gains  [][]float64
	Width  int
	Height int
}

// Valid reports whether the map has four complete channels.
func (m *ShadingMap) Valid() bool {
	if m == nil || m.Width <= 0 || m.Height <= 0 || len(m.Gains) < 4 {
		return false
	}
	for _, ch := range m.Gains {
		if len(ch) < m.Width*m.Height {
			return false
		}
	}
	return true
}

// Clone deep-copies the map so mutators never touch frame metadata.
func (m *ShadingMap) Clone() *ShadingMap {
	out := &ShadingMap{Width: m.Width, Height: m.Height, Gains: make([][]float64, len(m.Gains))}
	for i, ch := range m.Gains {
		out.Gains[i] = append([]float64(nil), ch...)
	}
	return out
}

// Sample bilinearly interpolates the gain for one channel at normalized
// coordinates. Coordinates are clamped to the unit square first.
func (m *ShadingMap) Sample(x, y float64, channel int) float64 {
	x = math.Max(0, math.Min(1, x))
	y = math.Max(0, math.Min(1, y))

	mapX := x * float64(m.Width-1)
	mapY := y * float64(m.Height-1)

	x0 := int(math.Floor(mapX))
	y0 := int(math.Floor(mapY))
	x1 := x0 + 1
	if x1 > m.Width-1 {
		x1 = m.Width - 1
	}
	y1 := y0 + 1
	if y1 > m.Height-1 {
		y1 = m.Height - 1
	}

	wx := mapX - float64(x0)
	wy := mapY - float64(y0)

	ch := m.Gains[channel]
	val00 := ch[y0*m.Width+x0]
	val01 := ch[y0*m.Width+x1]
	val10 := ch[y1*m.Width+x0]
	val11 := ch[y1*m.Width+x1]

	top := val00*(1-wx) + val01*wx
	bottom := val10*(1-wx) + val11*wx

	return top*(1-wy) + bottom*wy
}

// Normalize divides every gain by the global maximum so the brightest
// point of the map becomes 1. A zero map is left untouched.
func (m *ShadingMap) Normalize() {
	maxValue := 0.0
	for _, ch := range m.Gains {
		for _, v := range ch {
			if v > maxValue {
				maxValue = v
			}
		}
	}
	if maxValue == 0 {
		return
	}
	for _, ch := range m.Gains {
		for i := range ch {
			ch[i] /= maxValue
		}
	}
}

// Invert replaces every gain with its reciprocal, producing the debug
// view of the map itself. Maps with non-positive entries are left alone.
func (m *ShadingMap) Invert() {
	for _, ch := range m.Gains {
		for _, v := range ch {
			if v <= 0 {
				return
			}
		}
	}
	for _, ch := range m.Gains {
		for i := range ch {
			ch[i] = 1 / ch[i]
		}
	}
}

// ColorOnly removes the common (luminance) part of the vignette so only
// the chromatic component remains: at every grid position the four
// channel gains are divided by their local minimum. Must run before
// Normalize when both are requested.
func (m *ShadingMap) ColorOnly() {
	maxValue := 0.0
	for _, ch := range m.Gains {
		for _, v := range ch {
			if v > maxValue {
				maxValue = v
			}
		}
	}
	if maxValue == 0 {
		return
	}

	for j := 0; j < m.Height; j++ {
		for i := 0; i < m.Width; i++ {
			idx := j*m.Width + i

			local := m.Gains[0][idx]
			for c := 1; c < 4; c++ {
				if m.Gains[c][idx] < local {
					local = m.Gains[c][idx]
				}
			}
			if local == 0 {
				continue
			}
			for c := 0; c < 4; c++ {
				m.Gains[c][idx] /= local
			}
		}
	}
}
