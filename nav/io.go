package nav

import (
	"encoding/binary"
	"fmt"
	"math"
)

// The blob layout is little-endian: the fixed-size header followed by
// the vertex, polygon, detail, BV tree and off-mesh connection arrays,
// each sized by its header count.

type wireWriter struct {
	buf []byte
}

func (w *wireWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *wireWriter) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *wireWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *wireWriter) i32(v int32)  { w.u32(uint32(v)) }
func (w *wireWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

type wireReader struct {
	buf []byte
	off int
	err error
}

func (r *wireReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("nav: truncated data at offset %d", r.off)
		return false
	}
	return true
}

func (r *wireReader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *wireReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *wireReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *wireReader) i32() int32   { return int32(r.u32()) }
func (r *wireReader) f32() float32 { return math.Float32frombits(r.u32()) }

func writeHeader(w *wireWriter, h *MeshHeader) {
	w.i32(h.Magic)
	w.i32(h.Version)
	w.i32(h.X)
	w.i32(h.Y)
	w.i32(h.Layer)
	w.u32(h.UserID)
	w.i32(h.PolyCount)
	w.i32(h.VertCount)
	w.i32(h.MaxLinkCount)
	w.i32(h.DetailMeshCount)
	w.i32(h.DetailVertCount)
	w.i32(h.DetailTriCount)
	w.i32(h.BvNodeCount)
	w.i32(h.OffMeshConCount)
	w.i32(h.OffMeshBase)
	w.f32(h.WalkableHeight)
	w.f32(h.WalkableRadius)
	w.f32(h.WalkableClimb)
	for _, v := range h.BMin {
		w.f32(v)
	}
	for _, v := range h.BMax {
		w.f32(v)
	}
	w.f32(h.BvQuantFactor)
}

func readHeader(r *wireReader, h *MeshHeader) {
	h.Magic = r.i32()
	h.Version = r.i32()
	h.X = r.i32()
	h.Y = r.i32()
	h.Layer = r.i32()
	h.UserID = r.u32()
	h.PolyCount = r.i32()
	h.VertCount = r.i32()
	h.MaxLinkCount = r.i32()
	h.DetailMeshCount = r.i32()
	h.DetailVertCount = r.i32()
	h.DetailTriCount = r.i32()
	h.BvNodeCount = r.i32()
	h.OffMeshConCount = r.i32()
	h.OffMeshBase = r.i32()
	h.WalkableHeight = r.f32()
	h.WalkableRadius = r.f32()
	h.WalkableClimb = r.f32()
	for i := range h.BMin {
		h.BMin[i] = r.f32()
	}
	for i := range h.BMax {
		h.BMax[i] = r.f32()
	}
	h.BvQuantFactor = r.f32()
}

// Marshal serializes the tile data into the portable blob format.
func (d *MeshData) Marshal() ([]byte, error) {
	if d.Header.Magic != navMeshMagic {
		return nil, ErrMagic
	}
	w := &wireWriter{buf: make([]byte, 0, 1024)}
	writeHeader(w, &d.Header)

	for _, v := range d.Verts {
		w.f32(v)
	}
	for i := range d.Polys {
		p := &d.Polys[i]
		w.u32(p.FirstLink)
		for _, v := range p.Verts {
			w.u16(v)
		}
		for _, v := range p.Neis {
			w.u16(v)
		}
		w.u16(p.Flags)
		w.u8(p.VertCount)
		w.u8(p.areaAndType)
	}
	for i := range d.DetailMeshes {
		m := &d.DetailMeshes[i]
		w.u32(m.VertBase)
		w.u32(m.TriBase)
		w.u8(m.VertCount)
		w.u8(m.TriCount)
	}
	for _, v := range d.DetailVerts {
		w.f32(v)
	}
	w.buf = append(w.buf, d.DetailTris...)
	for i := range d.BvTree {
		nd := &d.BvTree[i]
		for _, v := range nd.BMin {
			w.u16(v)
		}
		for _, v := range nd.BMax {
			w.u16(v)
		}
		w.i32(nd.I)
	}
	for i := range d.OffMeshCons {
		c := &d.OffMeshCons[i]
		for _, v := range c.Pos {
			w.f32(v)
		}
		w.f32(c.Rad)
		w.u16(c.Poly)
		w.u8(c.Flags)
		w.u8(c.Side)
		w.u32(c.UserID)
	}
	return w.buf, nil
}

// Unmarshal parses a blob produced by Marshal.
func Unmarshal(buf []byte) (*MeshData, error) {
	r := &wireReader{buf: buf}
	d := &MeshData{}
	readHeader(r, &d.Header)
	if r.err != nil {
		return nil, r.err
	}
	if d.Header.Magic != navMeshMagic {
		return nil, ErrMagic
	}
	if d.Header.Version != navMeshVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, d.Header.Version)
	}
	h := &d.Header
	if h.PolyCount < 0 || h.VertCount < 0 || h.DetailMeshCount < 0 ||
		h.DetailVertCount < 0 || h.DetailTriCount < 0 || h.BvNodeCount < 0 || h.OffMeshConCount < 0 {
		return nil, fmt.Errorf("%w: negative count in header", ErrInvalidParam)
	}

	d.Verts = make([]float32, h.VertCount*3)
	for i := range d.Verts {
		d.Verts[i] = r.f32()
	}
	d.Polys = make([]Poly, h.PolyCount)
	for i := range d.Polys {
		p := &d.Polys[i]
		p.FirstLink = r.u32()
		for j := range p.Verts {
			p.Verts[j] = r.u16()
		}
		for j := range p.Neis {
			p.Neis[j] = r.u16()
		}
		p.Flags = r.u16()
		p.VertCount = r.u8()
		p.areaAndType = r.u8()
	}
	d.DetailMeshes = make([]PolyDetail, h.DetailMeshCount)
	for i := range d.DetailMeshes {
		m := &d.DetailMeshes[i]
		m.VertBase = r.u32()
		m.TriBase = r.u32()
		m.VertCount = r.u8()
		m.TriCount = r.u8()
	}
	d.DetailVerts = make([]float32, h.DetailVertCount*3)
	for i := range d.DetailVerts {
		d.DetailVerts[i] = r.f32()
	}
	d.DetailTris = make([]uint8, h.DetailTriCount*4)
	for i := range d.DetailTris {
		d.DetailTris[i] = r.u8()
	}
	d.BvTree = make([]BVNode, h.BvNodeCount)
	for i := range d.BvTree {
		nd := &d.BvTree[i]
		for j := range nd.BMin {
			nd.BMin[j] = r.u16()
		}
		for j := range nd.BMax {
			nd.BMax[j] = r.u16()
		}
		nd.I = r.i32()
	}
	d.OffMeshCons = make([]OffMeshConnection, h.OffMeshConCount)
	for i := range d.OffMeshCons {
		c := &d.OffMeshCons[i]
		for j := range c.Pos {
			c.Pos[j] = r.f32()
		}
		c.Rad = r.f32()
		c.Poly = r.u16()
		c.Flags = r.u8()
		c.Side = r.u8()
		c.UserID = r.u32()
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(buf) {
		return nil, fmt.Errorf("nav: %d trailing bytes", len(buf)-r.off)
	}
	return d, nil
}
