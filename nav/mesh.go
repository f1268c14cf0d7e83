package nav

import (
	"fmt"
	"math"
)

// MeshTile is one loaded tile of navigation data together with its
// runtime link state.
type MeshTile struct {
	Salt          uint32
	Header        *MeshHeader
	Polys         []Poly
	Verts         []float32
	Links         []Link
	DetailMeshes  []PolyDetail
	DetailVerts   []float32
	DetailTris    []uint8
	BvTree        []BVNode
	OffMeshCons   []OffMeshConnection
	Flags         TileFlags
	Data          *MeshData
	linksFreeList uint32
}

// NavMesh is the runtime navigation mesh. It currently hosts a single
// tile built from one solo bake.
type NavMesh struct {
	orig     [3]float32
	tile     *MeshTile
	saltBits uint
	tileBits uint
	polyBits uint
}

func ilog2(v uint32) uint {
	var r uint
	for v > 1 {
		v >>= 1
		r++
	}
	return r
}

func nextPow2(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

// NewNavMesh initializes a navigation mesh from one tile of data. With
// TileFreeData the mesh takes ownership of the data and releases it on
// Close.
func NewNavMesh(data *MeshData, flags TileFlags) (*NavMesh, error) {
	if data == nil {
		return nil, ErrInvalidParam
	}
	h := &data.Header
	if h.Magic != navMeshMagic {
		return nil, ErrMagic
	}
	if h.Version != navMeshVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}

	m := &NavMesh{
		orig:     h.BMin,
		tileBits: 1,
		polyBits: ilog2(nextPow2(uint32(max(h.PolyCount, 1)))),
	}
	if m.polyBits == 0 {
		m.polyBits = 1
	}
	m.saltBits = min(31, 64-m.tileBits-m.polyBits)

	tile := &MeshTile{
		Salt:         1,
		Header:       h,
		Polys:        data.Polys,
		Verts:        data.Verts,
		Links:        make([]Link, h.MaxLinkCount),
		DetailMeshes: data.DetailMeshes,
		DetailVerts:  data.DetailVerts,
		DetailTris:   data.DetailTris,
		BvTree:       data.BvTree,
		OffMeshCons:  data.OffMeshCons,
		Flags:        flags,
		Data:         data,
	}

	// Chain the free links.
	tile.linksFreeList = 0
	if len(tile.Links) == 0 {
		tile.linksFreeList = nullLink
	}
	for i := range tile.Links {
		tile.Links[i].Next = uint32(i + 1)
	}
	if len(tile.Links) > 0 {
		tile.Links[len(tile.Links)-1].Next = nullLink
	}

	m.tile = tile
	m.connectIntLinks(tile)
	m.baseOffMeshLinks(tile)
	m.connectOffMeshEndpoints(tile)
	return m, nil
}

// Close releases the tile. With TileFreeData the underlying mesh data
// is dropped as well. Close is safe to call more than once.
func (m *NavMesh) Close() {
	t := m.tile
	if t == nil {
		return
	}
	t.Salt++
	if t.Flags&TileFreeData != 0 {
		t.Data = nil
	}
	m.tile = nil
}

// Tile returns the loaded tile, or nil after Close.
func (m *NavMesh) Tile() *MeshTile { return m.tile }

// polyRefBase returns the reference of polygon 0 in the tile.
func (m *NavMesh) polyRefBase(tile *MeshTile) PolyRef {
	return m.encodePolyID(tile.Salt, 0, 0)
}

func (m *NavMesh) encodePolyID(salt uint32, it, ip uint32) PolyRef {
	return PolyRef(salt)<<(m.polyBits+m.tileBits) | PolyRef(it)<<m.polyBits | PolyRef(ip)
}

func (m *NavMesh) decodePolyID(ref PolyRef) (salt, it, ip uint32) {
	saltMask := PolyRef(1)<<m.saltBits - 1
	tileMask := PolyRef(1)<<m.tileBits - 1
	polyMask := PolyRef(1)<<m.polyBits - 1
	salt = uint32(ref >> (m.polyBits + m.tileBits) & saltMask)
	it = uint32(ref >> m.polyBits & tileMask)
	ip = uint32(ref & polyMask)
	return salt, it, ip
}

// IsValidPolyRef reports whether the reference points at a live polygon.
func (m *NavMesh) IsValidPolyRef(ref PolyRef) bool {
	_, _, err := m.tileAndPolyByRef(ref)
	return err == nil
}

func (m *NavMesh) tileAndPolyByRef(ref PolyRef) (*MeshTile, *Poly, error) {
	if ref == 0 {
		return nil, nil, ErrInvalidParam
	}
	salt, it, ip := m.decodePolyID(ref)
	if it != 0 || m.tile == nil {
		return nil, nil, ErrInvalidParam
	}
	tile := m.tile
	if salt != tile.Salt || tile.Header == nil {
		return nil, nil, ErrInvalidParam
	}
	if ip >= uint32(tile.Header.PolyCount) {
		return nil, nil, ErrInvalidParam
	}
	return tile, &tile.Polys[ip], nil
}

func (t *MeshTile) allocLink() uint32 {
	if t.linksFreeList == nullLink {
		return nullLink
	}
	link := t.linksFreeList
	t.linksFreeList = t.Links[link].Next
	return link
}

// connectIntLinks wires the polygon adjacency recorded in the bake into
// the runtime link lists.
func (m *NavMesh) connectIntLinks(tile *MeshTile) {
	base := m.polyRefBase(tile)
	for i := range tile.Polys {
		poly := &tile.Polys[i]
		poly.FirstLink = nullLink
		if poly.Type() == polyTypeOffMeshConn {
			continue
		}
		// Build edge links backwards so the list runs from the lowest
		// edge index up.
		for j := int(poly.VertCount) - 1; j >= 0; j-- {
			if poly.Neis[j] == 0 || poly.Neis[j]&extLink != 0 {
				continue
			}
			idx := tile.allocLink()
			if idx == nullLink {
				continue
			}
			link := &tile.Links[idx]
			link.Ref = base | PolyRef(poly.Neis[j]-1)
			link.Edge = uint8(j)
			link.Side = 0xff
			link.BMin = 0
			link.BMax = 0
			link.Next = poly.FirstLink
			poly.FirstLink = idx
		}
	}
}

// baseOffMeshLinks connects the start point of every stored off-mesh
// connection to the polygon under it.
func (m *NavMesh) baseOffMeshLinks(tile *MeshTile) {
	base := m.polyRefBase(tile)
	for i := range tile.OffMeshCons {
		con := &tile.OffMeshCons[i]
		poly := &tile.Polys[con.Poly]

		halfExtents := [3]float32{con.Rad, tile.Header.WalkableClimb, con.Rad}
		p := con.Pos[:3]
		var nearestPt [3]float32
		ref := m.findNearestPolyInTile(tile, p, halfExtents[:], nearestPt[:])
		if ref == 0 {
			continue
		}
		// findNearestPolyInTile may clamp generously; enforce the
		// connection radius on the xz-plane.
		if sqr(nearestPt[0]-p[0])+sqr(nearestPt[2]-p[2]) > sqr(con.Rad) {
			continue
		}
		// Snap the stored endpoint onto the mesh.
		copy(tile.Verts[poly.Verts[0]*3:], nearestPt[:])

		// Off-mesh start to ground polygon.
		if idx := tile.allocLink(); idx != nullLink {
			link := &tile.Links[idx]
			link.Ref = ref
			link.Edge = 0
			link.Side = 0xff
			link.BMin = 0
			link.BMax = 0
			link.Next = poly.FirstLink
			poly.FirstLink = idx
		}

		// Ground polygon back to off-mesh start.
		if idx := tile.allocLink(); idx != nullLink {
			_, _, landPolyIdx := m.decodePolyID(ref)
			landPoly := &tile.Polys[landPolyIdx]
			link := &tile.Links[idx]
			link.Ref = base | PolyRef(con.Poly)
			link.Edge = 0xff
			link.Side = 0xff
			link.BMin = 0
			link.BMax = 0
			link.Next = landPoly.FirstLink
			landPoly.FirstLink = idx
		}
	}
}

// connectOffMeshEndpoints links the far endpoint of every in-tile
// off-mesh connection to the polygon under it.
func (m *NavMesh) connectOffMeshEndpoints(tile *MeshTile) {
	base := m.polyRefBase(tile)
	for i := range tile.OffMeshCons {
		con := &tile.OffMeshCons[i]
		if con.Side != 0xff {
			continue
		}
		conPoly := &tile.Polys[con.Poly]
		// Skip connections whose start never landed on the mesh.
		if conPoly.FirstLink == nullLink {
			continue
		}

		halfExtents := [3]float32{con.Rad, tile.Header.WalkableClimb, con.Rad}
		p := con.Pos[3:6]
		var nearestPt [3]float32
		ref := m.findNearestPolyInTile(tile, p, halfExtents[:], nearestPt[:])
		if ref == 0 {
			continue
		}
		if sqr(nearestPt[0]-p[0])+sqr(nearestPt[2]-p[2]) > sqr(con.Rad) {
			continue
		}
		copy(tile.Verts[conPoly.Verts[1]*3:], nearestPt[:])

		// Off-mesh end to ground polygon.
		if idx := tile.allocLink(); idx != nullLink {
			link := &tile.Links[idx]
			link.Ref = ref
			link.Edge = 1
			link.Side = 0xff
			link.BMin = 0
			link.BMax = 0
			link.Next = conPoly.FirstLink
			conPoly.FirstLink = idx
		}

		// Ground polygon back to the off-mesh connection when it is
		// bidirectional.
		if con.Flags&offMeshConBidir != 0 {
			if idx := tile.allocLink(); idx != nullLink {
				_, _, landPolyIdx := m.decodePolyID(ref)
				landPoly := &tile.Polys[landPolyIdx]
				link := &tile.Links[idx]
				link.Ref = base | PolyRef(con.Poly)
				link.Edge = 0xff
				link.Side = 0xff
				link.BMin = 0
				link.BMax = 0
				link.Next = landPoly.FirstLink
				landPoly.FirstLink = idx
			}
		}
	}
}

func sqr(v float32) float32 { return v * v }

func vlenSqr(v []float32) float32 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}

func vlerp(dst, a, b []float32, t float32) {
	dst[0] = a[0] + (b[0]-a[0])*t
	dst[1] = a[1] + (b[1]-a[1])*t
	dst[2] = a[2] + (b[2]-a[2])*t
}

func distPtSegSqr2D(pt, p, q []float32) (d, t float32) {
	pqx := q[0] - p[0]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dz := pt[2] - p[2]
	dd := pqx*pqx + pqz*pqz
	t = pqx*dx + pqz*dz
	if dd > 0 {
		t /= dd
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	dx = p[0] + t*pqx - pt[0]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dz*dz, t
}

func pointInPolygon(pt []float32, verts []float32, nverts int) bool {
	c := false
	for i, j := 0, nverts-1; i < nverts; j, i = i, i+1 {
		vi := verts[i*3:]
		vj := verts[j*3:]
		if (vi[2] > pt[2]) != (vj[2] > pt[2]) &&
			pt[0] < (vj[0]-vi[0])*(pt[2]-vi[2])/(vj[2]-vi[2])+vi[0] {
			c = !c
		}
	}
	return c
}

func closestHeightPointTriangle(p, a, b, c []float32) (h float32, ok bool) {
	const eps = 1e-6
	v0 := [3]float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	v1 := [3]float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	v2 := [3]float32{p[0] - a[0], p[1] - a[1], p[2] - a[2]}

	// Scaled barycentric coordinates keep the test division-free until
	// the triangle is known to contain the point.
	denom := v0[0]*v1[2] - v0[2]*v1[0]
	if float32(math.Abs(float64(denom))) < eps {
		return 0, false
	}
	u := v1[2]*v2[0] - v1[0]*v2[2]
	v := v0[0]*v2[2] - v0[2]*v2[0]
	if denom < 0 {
		denom = -denom
		u = -u
		v = -v
	}
	if u >= 0 && v >= 0 && u+v <= denom {
		return a[1] + (v0[1]*u+v1[1]*v)/denom, true
	}
	return 0, false
}

// detailTriEdgeFlags extracts the flags of one edge of a detail
// triangle.
func detailTriEdgeFlags(triFlags uint8, edge int) uint8 {
	return (triFlags >> (uint(edge) * 2)) & 0x3
}

const detailEdgeBoundary = 0x1

// closestPointOnDetailEdges returns the closest point to pos on the
// detail edges of the polygon. With onlyBoundary only hull edges are
// considered.
func closestPointOnDetailEdges(tile *MeshTile, poly *Poly, ip int, pos []float32, onlyBoundary bool, closest []float32) {
	pd := &tile.DetailMeshes[ip]

	dmin := float32(math.MaxFloat32)
	var tmin float32
	var pmin, pmax []float32

	anyBoundaryEdge := uint8(detailEdgeBoundary<<0 | detailEdgeBoundary<<2 | detailEdgeBoundary<<4)
	for i := 0; i < int(pd.TriCount); i++ {
		tris := tile.DetailTris[(int(pd.TriBase)+i)*4:]
		if onlyBoundary && tris[3]&anyBoundaryEdge == 0 {
			continue
		}

		var v [3][]float32
		for j := 0; j < 3; j++ {
			if tris[j] < poly.VertCount {
				v[j] = tile.Verts[int(poly.Verts[tris[j]])*3:]
			} else {
				v[j] = tile.DetailVerts[(int(pd.VertBase)+int(tris[j])-int(poly.VertCount))*3:]
			}
		}

		for k, j := 0, 2; k < 3; j, k = k, k+1 {
			if detailTriEdgeFlags(tris[3], j)&detailEdgeBoundary == 0 &&
				(onlyBoundary || tris[j] < tris[k]) {
				// Interior edge: skipped on boundary-only queries, and
				// visited once otherwise.
				continue
			}
			d, t := distPtSegSqr2D(pos, v[j], v[k])
			if d < dmin {
				dmin = d
				tmin = t
				pmin = v[j]
				pmax = v[k]
			}
		}
	}
	if pmin != nil {
		vlerp(closest, pmin, pmax, tmin)
	}
}

// polyHeight returns the detail surface height under pos, which must be
// within the polygon on the xz-plane.
func (m *NavMesh) polyHeight(tile *MeshTile, poly *Poly, ip int, pos []float32) (float32, bool) {
	if poly.Type() == polyTypeOffMeshConn {
		return 0, false
	}

	var verts [VertsPerPolygon * 3]float32
	nv := int(poly.VertCount)
	for i := 0; i < nv; i++ {
		copy(verts[i*3:], tile.Verts[int(poly.Verts[i])*3:int(poly.Verts[i])*3+3])
	}
	if !pointInPolygon(pos, verts[:], nv) {
		return 0, false
	}

	pd := &tile.DetailMeshes[ip]
	for j := 0; j < int(pd.TriCount); j++ {
		t := tile.DetailTris[(int(pd.TriBase)+j)*4:]
		var v [3][]float32
		for k := 0; k < 3; k++ {
			if t[k] < poly.VertCount {
				v[k] = tile.Verts[int(poly.Verts[t[k]])*3:]
			} else {
				v[k] = tile.DetailVerts[(int(pd.VertBase)+int(t[k])-int(poly.VertCount))*3:]
			}
		}
		if h, ok := closestHeightPointTriangle(pos, v[0], v[1], v[2]); ok {
			return h, true
		}
	}

	// The point is exactly on an edge; degenerate detail triangles can
	// miss it, so fall back to the closest edge height.
	var closest [3]float32
	copy(closest[:], pos[:3])
	closestPointOnDetailEdges(tile, poly, ip, pos, false, closest[:])
	return closest[1], true
}

// closestPointOnPoly projects pos onto the polygon surface. posOverPoly
// reports whether pos was directly above the polygon.
func (m *NavMesh) closestPointOnPoly(ref PolyRef, pos []float32, closest []float32) (posOverPoly bool) {
	tile, poly, err := m.tileAndPolyByRef(ref)
	if err != nil {
		return false
	}
	_, _, ip := m.decodePolyID(ref)

	copy(closest, pos[:3])
	if h, ok := m.polyHeight(tile, poly, int(ip), pos); ok {
		closest[1] = h
		return true
	}

	// Off-mesh connections are segments, not surfaces.
	if poly.Type() == polyTypeOffMeshConn {
		v0 := tile.Verts[int(poly.Verts[0])*3:]
		v1 := tile.Verts[int(poly.Verts[1])*3:]
		_, t := distPtSegSqr2D(pos, v0, v1)
		vlerp(closest, v0, v1, t)
		return false
	}

	closestPointOnDetailEdges(tile, poly, int(ip), pos, true, closest)
	return false
}

func overlapQuantBounds(amin, amax, bmin, bmax *[3]uint16) bool {
	return amin[0] <= bmax[0] && amax[0] >= bmin[0] &&
		amin[1] <= bmax[1] && amax[1] >= bmin[1] &&
		amin[2] <= bmax[2] && amax[2] >= bmin[2]
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// queryPolygonsInTile collects up to maxPolys polygon refs overlapping
// the box.
func (m *NavMesh) queryPolygonsInTile(tile *MeshTile, qmin, qmax []float32, polys []PolyRef) int {
	// The quantization below clamps the box into the tile bounds, so a
	// box fully outside must be rejected first.
	for c := 0; c < 3; c++ {
		if qmax[c] < tile.Header.BMin[c] || qmin[c] > tile.Header.BMax[c] {
			return 0
		}
	}

	base := m.polyRefBase(tile)
	n := 0

	if len(tile.BvTree) > 0 {
		h := tile.Header
		// Quantize the query box into BV tree space, snapping outward.
		var bmin, bmax [3]uint16
		qfac := h.BvQuantFactor
		for c := 0; c < 3; c++ {
			minc := clampf(qmin[c], h.BMin[c], h.BMax[c]) - h.BMin[c]
			maxc := clampf(qmax[c], h.BMin[c], h.BMax[c]) - h.BMin[c]
			bmin[c] = uint16(qfac*minc) & 0xfffe
			bmax[c] = uint16(qfac*maxc+1) | 1
		}

		node := 0
		end := int(h.BvNodeCount)
		for node < end {
			nd := &tile.BvTree[node]
			overlap := overlapQuantBounds(&bmin, &bmax, &nd.BMin, &nd.BMax)
			isLeaf := nd.I >= 0

			if isLeaf && overlap && n < len(polys) {
				polys[n] = base | PolyRef(nd.I)
				n++
			}

			if overlap || isLeaf {
				node++
			} else {
				node += int(-nd.I)
			}
		}
		return n
	}

	for i := range tile.Polys {
		p := &tile.Polys[i]
		if p.Type() == polyTypeOffMeshConn {
			continue
		}
		// Poly bounds.
		v := tile.Verts[int(p.Verts[0])*3:]
		var pbmin, pbmax [3]float32
		copy(pbmin[:], v[:3])
		copy(pbmax[:], v[:3])
		for j := 1; j < int(p.VertCount); j++ {
			v := tile.Verts[int(p.Verts[j])*3:]
			for c := 0; c < 3; c++ {
				if v[c] < pbmin[c] {
					pbmin[c] = v[c]
				}
				if v[c] > pbmax[c] {
					pbmax[c] = v[c]
				}
			}
		}
		if qmin[0] <= pbmax[0] && qmax[0] >= pbmin[0] &&
			qmin[1] <= pbmax[1] && qmax[1] >= pbmin[1] &&
			qmin[2] <= pbmax[2] && qmax[2] >= pbmin[2] && n < len(polys) {
			polys[n] = base | PolyRef(i)
			n++
		}
	}
	return n
}

// findNearestPolyInTile returns the polygon closest to center within
// the search box, writing the projected point to nearestPt.
func (m *NavMesh) findNearestPolyInTile(tile *MeshTile, center, halfExtents, nearestPt []float32) PolyRef {
	bmin := []float32{center[0] - halfExtents[0], center[1] - halfExtents[1], center[2] - halfExtents[2]}
	bmax := []float32{center[0] + halfExtents[0], center[1] + halfExtents[1], center[2] + halfExtents[2]}

	var polys [128]PolyRef
	polyCount := m.queryPolygonsInTile(tile, bmin, bmax, polys[:])

	var nearest PolyRef
	nearestDistSqr := float32(math.MaxFloat32)
	for i := 0; i < polyCount; i++ {
		ref := polys[i]
		var closest [3]float32
		posOverPoly := m.closestPointOnPoly(ref, center, closest[:])

		// Points directly over a polygon within climb reach beat a
		// straight-line nearest point.
		diff := [3]float32{center[0] - closest[0], center[1] - closest[1], center[2] - closest[2]}
		var d float32
		if posOverPoly {
			d = float32(math.Abs(float64(diff[1]))) - tile.Header.WalkableClimb
			if d > 0 {
				d = d * d
			} else {
				d = 0
			}
		} else {
			d = vlenSqr(diff[:])
		}

		if d < nearestDistSqr {
			copy(nearestPt, closest[:])
			nearestDistSqr = d
			nearest = ref
		}
	}
	return nearest
}
