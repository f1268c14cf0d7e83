package voxel

import (
	"fmt"
	"math"
)

const spansPerPool = 2048

// Span is one solid vertical interval in a heightfield column.
type Span struct {
	SMin int   // lower limit, vx
	SMax int   // upper limit, vx, <= spanMaxHeight
	Area uint8 // area id; NullArea means un-walkable
	Next *Span // next span higher up the column
}

type spanPool struct {
	next  *spanPool
	items [spansPerPool]Span
}

// Heightfield is the solid voxel representation of the rasterized input
// geometry: a grid of columns, each an ordered list of spans.
type Heightfield struct {
	Width  int
	Height int
	BMin   [3]float32
	BMax   [3]float32
	Cs     float32
	Ch     float32
	Spans  []*Span

	pools    *spanPool
	freelist *Span
}

// NewHeightfield allocates an empty heightfield covering the given grid.
func NewHeightfield(width, height int, bmin, bmax [3]float32, cs, ch float32) *Heightfield {
	return &Heightfield{
		Width:  width,
		Height: height,
		BMin:   bmin,
		BMax:   bmax,
		Cs:     cs,
		Ch:     ch,
		Spans:  make([]*Span, width*height),
	}
}

// allocSpan pops a span from the pooled freelist, growing it by a page
// when exhausted.
func (hf *Heightfield) allocSpan() *Span {
	if hf.freelist == nil {
		pool := &spanPool{next: hf.pools}
		hf.pools = pool
		for i := spansPerPool - 1; i >= 0; i-- {
			pool.items[i].Next = hf.freelist
			hf.freelist = &pool.items[i]
		}
	}
	s := hf.freelist
	hf.freelist = s.Next
	return s
}

func (hf *Heightfield) freeSpan(s *Span) {
	if s == nil {
		return
	}
	s.Next = hf.freelist
	hf.freelist = s
}

// SpanCount returns the number of walkable-tagged spans in the field.
func (hf *Heightfield) SpanCount() int {
	n := 0
	for _, s := range hf.Spans {
		for ; s != nil; s = s.Next {
			if s.Area != NullArea {
				n++
			}
		}
	}
	return n
}

// AddSpan inserts a span into column (x,z), merging it with any spans it
// overlaps. Area ids of spans whose tops are within flagMergeThr of each
// other are merged by taking the higher id.
func (hf *Heightfield) AddSpan(x, z, smin, smax int, area uint8, flagMergeThr int) {
	newSpan := hf.allocSpan()
	newSpan.SMin = smin
	newSpan.SMax = smax
	newSpan.Area = area
	newSpan.Next = nil

	column := x + z*hf.Width
	var prev *Span
	cur := hf.Spans[column]

	for cur != nil {
		if cur.SMin > newSpan.SMax {
			// Current span is completely after the new span.
			break
		}
		if cur.SMax < newSpan.SMin {
			// Current span is completely before the new span.
			prev = cur
			cur = cur.Next
			continue
		}
		// Overlap: merge into newSpan and unlink cur.
		if cur.SMin < newSpan.SMin {
			newSpan.SMin = cur.SMin
		}
		if cur.SMax > newSpan.SMax {
			newSpan.SMax = cur.SMax
		}
		if abs(newSpan.SMax-cur.SMax) <= flagMergeThr && cur.Area > newSpan.Area {
			newSpan.Area = cur.Area
		}
		next := cur.Next
		hf.freeSpan(cur)
		if prev != nil {
			prev.Next = next
		} else {
			hf.Spans[column] = next
		}
		cur = next
	}

	if prev != nil {
		newSpan.Next = prev.Next
		prev.Next = newSpan
	} else {
		newSpan.Next = hf.Spans[column]
		hf.Spans[column] = newSpan
	}
}

// MarkWalkableTriangles classifies every triangle by the angle of its
// face normal against the up axis and returns one area id per triangle:
// WalkableArea when the slope is within walkableSlopeAngle, NullArea
// otherwise.
func MarkWalkableTriangles(walkableSlopeAngle float32, verts []float32, tris []int32) []uint8 {
	walkableThr := float32(math.Cos(float64(walkableSlopeAngle) / 180 * math.Pi))
	areas := make([]uint8, len(tris)/3)
	var norm [3]float32
	for i := range areas {
		v0 := verts[tris[i*3]*3:]
		v1 := verts[tris[i*3+1]*3:]
		v2 := verts[tris[i*3+2]*3:]
		calcTriNormal(v0, v1, v2, &norm)
		if norm[1] > walkableThr {
			areas[i] = WalkableArea
		}
	}
	return areas
}

func calcTriNormal(v0, v1, v2 []float32, n *[3]float32) {
	e0 := [3]float32{v1[0] - v0[0], v1[1] - v0[1], v1[2] - v0[2]}
	e1 := [3]float32{v2[0] - v0[0], v2[1] - v0[1], v2[2] - v0[2]}
	n[0] = e0[1]*e1[2] - e0[2]*e1[1]
	n[1] = e0[2]*e1[0] - e0[0]*e1[2]
	n[2] = e0[0]*e1[1] - e0[1]*e1[0]
	d := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
	if d > 0 {
		inv := 1 / d
		n[0] *= inv
		n[1] *= inv
		n[2] *= inv
	}
}

// RasterizeTriangles rasterizes every triangle into the heightfield,
// inserting one span per covered column. Un-walkable triangles still
// contribute spans so they obstruct space; they just carry NullArea.
func RasterizeTriangles(verts []float32, tris []int32, areas []uint8, hf *Heightfield, flagMergeThr int) error {
	invCs := 1 / hf.Cs
	invCh := 1 / hf.Ch
	for i := 0; i < len(tris)/3; i++ {
		v0 := verts[tris[i*3]*3:]
		v1 := verts[tris[i*3+1]*3:]
		v2 := verts[tris[i*3+2]*3:]
		if err := rasterizeTri(v0, v1, v2, areas[i], hf, invCs, invCh, flagMergeThr); err != nil {
			return fmt.Errorf("triangle %d: %w", i, err)
		}
	}
	return nil
}

type clipAxis int

const (
	axisX clipAxis = 0
	axisZ clipAxis = 2
)

// rasterizeTri clips one triangle against each grid row, then each cell
// in the row, and records the vertical extent of every resulting piece.
func rasterizeTri(v0, v1, v2 []float32, area uint8, hf *Heightfield, invCs, invCh float32, flagMergeThr int) error {
	var triMin, triMax [3]float32
	for c := 0; c < 3; c++ {
		triMin[c] = min(v0[c], min(v1[c], v2[c]))
		triMax[c] = max(v0[c], max(v1[c], v2[c]))
	}
	if !overlapBounds(triMin, triMax, hf.BMin, hf.BMax) {
		return nil
	}

	w := hf.Width
	h := hf.Height
	by := hf.BMax[1] - hf.BMin[1]

	z0 := int((triMin[2] - hf.BMin[2]) * invCs)
	z1 := int((triMax[2] - hf.BMin[2]) * invCs)
	// Clamp z0 to -1 rather than 0 so the polygon is still clipped
	// correctly at the grid edge.
	z0 = clamp(z0, -1, h-1)
	z1 = clamp(z1, 0, h-1)

	// A clipped triangle has at most 7 vertices per division; four
	// buffers are rotated through the row/column clipping below.
	buf := make([]float32, 7*3*4)
	in := buf
	inRow := buf[7*3:]
	p1 := inRow[7*3:]
	p2 := p1[7*3:]

	copy(in, v0[:3])
	copy(in[3:], v1[:3])
	copy(in[6:], v2[:3])
	nvIn := 3

	for z := z0; z <= z1; z++ {
		cellZ := hf.BMin[2] + float32(z)*hf.Cs
		var nvRow int
		nvRow, nvIn = dividePoly(in, nvIn, inRow, p1, cellZ+hf.Cs, axisZ)
		in, p1 = p1, in
		if nvRow < 3 || z < 0 {
			continue
		}

		minX := inRow[0]
		maxX := inRow[0]
		for v := 1; v < nvRow; v++ {
			minX = min(minX, inRow[v*3])
			maxX = max(maxX, inRow[v*3])
		}
		x0 := int((minX - hf.BMin[0]) * invCs)
		x1 := int((maxX - hf.BMin[0]) * invCs)
		if x1 < 0 || x0 >= w {
			continue
		}
		x0 = clamp(x0, -1, w-1)
		x1 = clamp(x1, 0, w-1)

		nv2 := nvRow
		for x := x0; x <= x1; x++ {
			cellX := hf.BMin[0] + float32(x)*hf.Cs
			var nv int
			nv, nv2 = dividePoly(inRow, nv2, p1, p2, cellX+hf.Cs, axisX)
			inRow, p2 = p2, inRow
			if nv < 3 || x < 0 {
				continue
			}

			spanMin := p1[1]
			spanMax := p1[1]
			for v := 1; v < nv; v++ {
				spanMin = min(spanMin, p1[v*3+1])
				spanMax = max(spanMax, p1[v*3+1])
			}
			spanMin -= hf.BMin[1]
			spanMax -= hf.BMin[1]
			if spanMax < 0 || spanMin > by {
				continue
			}
			if spanMin < 0 {
				spanMin = 0
			}
			if spanMax > by {
				spanMax = by
			}

			smin := clamp(int(math.Floor(float64(spanMin*invCh))), 0, spanMaxHeight)
			smax := clamp(int(math.Ceil(float64(spanMax*invCh))), smin+1, spanMaxHeight)
			hf.AddSpan(x, z, smin, smax, area, flagMergeThr)
		}
	}
	return nil
}

func overlapBounds(aMin, aMax, bMin, bMax [3]float32) bool {
	return aMin[0] <= bMax[0] && aMax[0] >= bMin[0] &&
		aMin[1] <= bMax[1] && aMax[1] >= bMin[1] &&
		aMin[2] <= bMax[2] && aMax[2] >= bMin[2]
}

// dividePoly splits a convex polygon (max 12 verts) across an axis-aligned
// line, writing the piece below the offset to out1 and the rest to out2.
func dividePoly(in []float32, nin int, out1, out2 []float32, axisOffset float32, axis clipAxis) (n1, n2 int) {
	var delta [12]float32
	for i := 0; i < nin; i++ {
		delta[i] = axisOffset - in[i*3+int(axis)]
	}

	a := 0
	b := nin - 1
	for ; a < nin; b, a = a, a+1 {
		sameSide := (delta[a] >= 0) == (delta[b] >= 0)
		if !sameSide {
			s := delta[b] / (delta[b] - delta[a])
			out1[n1*3+0] = in[b*3+0] + (in[a*3+0]-in[b*3+0])*s
			out1[n1*3+1] = in[b*3+1] + (in[a*3+1]-in[b*3+1])*s
			out1[n1*3+2] = in[b*3+2] + (in[a*3+2]-in[b*3+2])*s
			copy(out2[n2*3:], out1[n1*3:n1*3+3])
			n1++
			n2++
			// Points on the dividing line were already emitted above.
			if delta[a] > 0 {
				copy(out1[n1*3:], in[a*3:a*3+3])
				n1++
			} else if delta[a] < 0 {
				copy(out2[n2*3:], in[a*3:a*3+3])
				n2++
			}
		} else {
			if delta[a] >= 0 {
				copy(out1[n1*3:], in[a*3:a*3+3])
				n1++
				if delta[a] != 0 {
					continue
				}
			}
			copy(out2[n2*3:], in[a*3:a*3+3])
			n2++
		}
	}
	return n1, n2
}
