package voxel

import "fmt"

// CompactCell indexes the spans of one column in a compact heightfield.
type CompactCell struct {
	Index int // index of the first span in the column
	Count int // number of spans in the column
}

// CompactSpan is one interval of unobstructed space above a walkable
// surface.
type CompactSpan struct {
	Y   int    // lower extent, vx, measured from the field base
	H   int    // height of the open interval, vx
	Reg int    // region id, 0 when unassigned
	con uint32 // packed neighbour connections, 6 bits per direction
}

// Con returns the neighbour span layer index in the given direction, or
// notConnected.
func (s *CompactSpan) Con(dir int) int {
	return int(s.con>>(uint(dir)*6)) & 0x3f
}

func (s *CompactSpan) setCon(dir, layer int) {
	shift := uint(dir) * 6
	s.con = (s.con &^ (0x3f << shift)) | uint32(layer&0x3f)<<shift
}

// CompactHeightfield is the neighbour-linked form of a heightfield,
// optimized for region growth, erosion and contour tracing.
type CompactHeightfield struct {
	Width          int
	Height         int
	SpanCount      int
	WalkableHeight int
	WalkableClimb  int
	BorderSize     int
	MaxDistance    int // maximum distance field value
	MaxRegions     int // highest region id assigned
	BMin           [3]float32
	BMax           [3]float32
	Cs             float32
	Ch             float32
	Cells          []CompactCell
	Spans          []CompactSpan
	Dist           []int // distance-to-boundary field, watershed only
	Areas          []uint8
}

// BuildCompactHeightfield converts a filtered solid heightfield into the
// compact representation and links each walkable span to the reachable
// neighbour spans in the four cardinal directions.
func BuildCompactHeightfield(walkableHeight, walkableClimb int, hf *Heightfield) (*CompactHeightfield, error) {
	w := hf.Width
	h := hf.Height
	spanCount := hf.SpanCount()

	chf := &CompactHeightfield{
		Width:          w,
		Height:         h,
		SpanCount:      spanCount,
		WalkableHeight: walkableHeight,
		WalkableClimb:  walkableClimb,
		BMin:           hf.BMin,
		BMax:           hf.BMax,
		Cs:             hf.Cs,
		Ch:             hf.Ch,
		Cells:          make([]CompactCell, w*h),
		Spans:          make([]CompactSpan, spanCount),
		Areas:          make([]uint8, spanCount),
	}
	chf.BMax[1] += float32(walkableHeight) * hf.Ch

	// Fill in cells and spans.
	idx := 0
	for col := 0; col < w*h; col++ {
		s := hf.Spans[col]
		if s == nil {
			continue
		}
		cell := &chf.Cells[col]
		cell.Index = idx
		for ; s != nil; s = s.Next {
			if s.Area == NullArea {
				continue
			}
			bot := s.SMax
			top := maxHeight
			if s.Next != nil {
				top = s.Next.SMin
			}
			chf.Spans[idx].Y = clamp(bot, 0, maxHeight)
			chf.Spans[idx].H = clamp(top-bot, 0, 0xff)
			chf.Areas[idx] = s.Area
			idx++
			cell.Count++
		}
	}

	// Find neighbour connections.
	const maxLayers = notConnected - 1
	tooHighLayer := 0
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				for dir := 0; dir < 4; dir++ {
					s.setCon(dir, notConnected)
					nx := x + dirOffsetX[dir]
					nz := z + dirOffsetZ[dir]
					if nx < 0 || nz < 0 || nx >= w || nz >= h {
						continue
					}
					nc := chf.Cells[nx+nz*w]
					for k := nc.Index; k < nc.Index+nc.Count; k++ {
						ns := &chf.Spans[k]
						bot := max(s.Y, ns.Y)
						top := min(s.Y+s.H, ns.Y+ns.H)
						if top-bot >= walkableHeight && abs(ns.Y-s.Y) <= walkableClimb {
							layer := k - nc.Index
							if layer < 0 || layer > maxLayers {
								tooHighLayer = max(tooHighLayer, layer)
								continue
							}
							s.setCon(dir, layer)
							break
						}
					}
				}
			}
		}
	}

	if tooHighLayer > maxLayers {
		return nil, fmt.Errorf("voxel: heightfield has too many layers %d (max %d)", tooHighLayer, maxLayers)
	}
	return chf, nil
}
