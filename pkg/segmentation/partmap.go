package segmentation

import (
	"fmt"
	"sort"
)

// Part identifies a body part. Background pixels are PartNone.
type Part int8

// PartNone marks a pixel that belongs to no body part.
const PartNone Part = -1

// NumParts is the number of BodyPix part classes.
const NumParts = 24

// PartNames lists the BodyPix part names indexed by Part.
var PartNames = [NumParts]string{
	"left_face",
	"right_face",
	"left_upper_arm_front",
	"left_upper_arm_back",
	"right_upper_arm_front",
	"right_upper_arm_back",
	"left_lower_arm_front",
	"left_lower_arm_back",
	"right_lower_arm_front",
	"right_lower_arm_back",
	"left_hand",
	"right_hand",
	"torso_front",
	"torso_back",
	"left_upper_leg_front",
	"left_upper_leg_back",
	"right_upper_leg_front",
	"right_upper_leg_back",
	"left_lower_leg_front",
	"left_lower_leg_back",
	"right_lower_leg_front",
	"right_lower_leg_back",
	"left_foot",
	"right_foot",
}

// String returns the BodyPix name of the part.
func (p Part) String() string {
	if p < 0 || int(p) >= NumParts {
		return "background"
	}
	return PartNames[p]
}

// Valid reports whether p is a body part (not background).
func (p Part) Valid() bool {
	return p >= 0 && int(p) < NumParts
}

// PartMap holds one part id per pixel, row-major.
type PartMap struct {
	Width  int
	Height int
	Data   []Part
}

// NewPartMap returns a w x h map filled with PartNone.
func NewPartMap(w, h int) *PartMap {
	data := make([]Part, w*h)
	for i := range data {
		data[i] = PartNone
	}
	return &PartMap{Width: w, Height: h, Data: data}
}

// Validate checks that the data matches the dimensions.
func (m *PartMap) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("segmentation: invalid part map size %dx%d", m.Width, m.Height)
	}
	if len(m.Data) != m.Width*m.Height {
		return fmt.Errorf("segmentation: part map has %d entries, want %d", len(m.Data), m.Width*m.Height)
	}
	return nil
}

// At returns the part at (x, y), or PartNone outside the map.
func (m *PartMap) At(x, y int) Part {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return PartNone
	}
	return m.Data[y*m.Width+x]
}

// Set assigns the part at (x, y). Out-of-range coordinates are ignored.
func (m *PartMap) Set(x, y int, p Part) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Data[y*m.Width+x] = p
}

// Counts returns the number of pixels per body part.
func (m *PartMap) Counts() map[Part]int {
	counts := make(map[Part]int)
	for _, p := range m.Data {
		if p.Valid() {
			counts[p]++
		}
	}
	return counts
}

// Coverage returns the fraction of pixels assigned to any body part.
func (m *PartMap) Coverage() float64 {
	if len(m.Data) == 0 {
		return 0
	}
	n := 0
	for _, p := range m.Data {
		if p.Valid() {
			n++
		}
	}
	return float64(n) / float64(len(m.Data))
}

// DominantPart returns the part covering the most pixels, or PartNone.
// Ties go to the lower part id.
func (m *PartMap) DominantPart() Part {
	counts := m.Counts()
	if len(counts) == 0 {
		return PartNone
	}
	parts := make([]Part, 0, len(counts))
	for p := range counts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool {
		if counts[parts[i]] != counts[parts[j]] {
			return counts[parts[i]] > counts[parts[j]]
		}
		return parts[i] < parts[j]
	})
	return parts[0]
}

// Scale returns a nearest-neighbour resampled copy of size w x h.
func (m *PartMap) Scale(w, h int) *PartMap {
	if w == m.Width && h == m.Height {
		out := &PartMap{Width: w, Height: h, Data: make([]Part, len(m.Data))}
		copy(out.Data, m.Data)
		return out
	}
	out := NewPartMap(w, h)
	for y := 0; y < h; y++ {
		sy := y * m.Height / h
		for x := 0; x < w; x++ {
			sx := x * m.Width / w
			out.Data[y*w+x] = m.Data[sy*m.Width+sx]
		}
	}
	return out
}
