package nav

import (
	"fmt"
	"math"
	"sort"
)

const meshNullIdx = 0xffff

// CreateParams carries everything needed to assemble the navigation
// data of one tile from a baked polygon mesh.
type CreateParams struct {
	// Polygon mesh attributes (voxel units relative to BMin).
	Verts     []uint16 // VertCount*3
	VertCount int
	Polys     []uint16 // PolyCount*2*Nvp
	PolyAreas []uint8
	PolyFlags []uint16
	PolyCount int
	Nvp       int

	// Detail mesh attributes, optional.
	DetailMeshes    []uint32
	DetailVerts     []float32
	DetailVertCount int
	DetailTris      []uint8
	DetailTriCount  int

	// Off-mesh connections, optional. OffMeshConVerts holds two
	// endpoints per connection.
	OffMeshConVerts  []float32
	OffMeshConRad    []float32
	OffMeshConFlags  []uint16
	OffMeshConAreas  []uint8
	OffMeshConDir    []uint8 // offMeshConBidir for two-way
	OffMeshConUserID []uint32
	OffMeshConCount  int

	// Tile attributes.
	UserID    uint32
	TileX     int32
	TileY     int32
	TileLayer int32
	BMin      [3]float32
	BMax      [3]float32

	// Agent attributes in world units.
	WalkableHeight float32
	WalkableRadius float32
	WalkableClimb  float32

	Cs float32
	Ch float32

	BuildBvTree bool
}

const xpMask = 0xff

// classifyOffMeshPoint assigns a point to the tile side it leaves
// through, or 0xff when it stays inside the tile.
func classifyOffMeshPoint(pt, bmin, bmax []float32) uint8 {
	const xp = 1 << 0
	const zp = 1 << 1
	const xm = 1 << 2
	const zm = 1 << 3

	outcode := 0
	if pt[0] >= bmax[0] {
		outcode |= xp
	}
	if pt[2] >= bmax[2] {
		outcode |= zp
	}
	if pt[0] < bmin[0] {
		outcode |= xm
	}
	if pt[2] < bmin[2] {
		outcode |= zm
	}

	switch outcode {
	case xp:
		return 0
	case xp | zp:
		return 1
	case zp:
		return 2
	case xm | zp:
		return 3
	case xm:
		return 4
	case xm | zm:
		return 5
	case zm:
		return 6
	case xp | zm:
		return 7
	}
	return xpMask
}

type bvItem struct {
	bmin [3]uint16
	bmax [3]uint16
	i    int32
}

func calcItemExtents(items []bvItem, imin, imax int, bmin, bmax *[3]uint16) {
	*bmin = items[imin].bmin
	*bmax = items[imin].bmax
	for i := imin + 1; i < imax; i++ {
		for c := 0; c < 3; c++ {
			if items[i].bmin[c] < bmin[c] {
				bmin[c] = items[i].bmin[c]
			}
			if items[i].bmax[c] > bmax[c] {
				bmax[c] = items[i].bmax[c]
			}
		}
	}
}

func longestAxis(x, y, z uint16) int {
	axis := 0
	maxAxis := x
	if y > maxAxis {
		axis = 1
		maxAxis = y
	}
	if z > maxAxis {
		axis = 2
	}
	return axis
}

func subdivide(items []bvItem, imin, imax int, curNode *int, nodes []BVNode) {
	inum := imax - imin
	icur := *curNode

	node := &nodes[*curNode]
	*curNode++

	if inum == 1 {
		node.BMin = items[imin].bmin
		node.BMax = items[imin].bmax
		node.I = items[imin].i
		return
	}

	calcItemExtents(items, imin, imax, &node.BMin, &node.BMax)
	axis := longestAxis(node.BMax[0]-node.BMin[0], node.BMax[1]-node.BMin[1], node.BMax[2]-node.BMin[2])
	sub := items[imin:imax]
	sort.SliceStable(sub, func(a, b int) bool { return sub[a].bmin[axis] < sub[b].bmin[axis] })

	isplit := imin + inum/2
	subdivide(items, imin, isplit, curNode, nodes)
	subdivide(items, isplit, imax, curNode, nodes)

	node.I = -int32(*curNode - icur)
}

func createBVTree(params *CreateParams, nodes []BVNode) int {
	quantFactor := 1 / params.Cs
	items := make([]bvItem, params.PolyCount)
	for i := 0; i < params.PolyCount; i++ {
		it := &items[i]
		it.i = int32(i)

		// Polygon bounds come from the detail mesh when present, since
		// detail vertices can poke outside the base polygon.
		if params.DetailMeshes != nil {
			vb := int(params.DetailMeshes[i*4])
			ndv := int(params.DetailMeshes[i*4+1])
			var bmin, bmax [3]float32
			dv := params.DetailVerts[vb*3:]
			copy(bmin[:], dv[:3])
			copy(bmax[:], dv[:3])
			for j := 1; j < ndv; j++ {
				for c := 0; c < 3; c++ {
					bmin[c] = float32(math.Min(float64(bmin[c]), float64(dv[j*3+c])))
					bmax[c] = float32(math.Max(float64(bmax[c]), float64(dv[j*3+c])))
				}
			}
			// The BV tree is quantized with cs on all axes.
			for c := 0; c < 3; c++ {
				it.bmin[c] = uint16(clampInt(int((bmin[c]-params.BMin[c])*quantFactor), 0, 0x7fff))
				it.bmax[c] = uint16(clampInt(int((bmax[c]-params.BMin[c])*quantFactor), 0, 0x7fff))
			}
		} else {
			p := params.Polys[i*params.Nvp*2:]
			v := params.Verts[p[0]*3:]
			it.bmin = [3]uint16{v[0], v[1], v[2]}
			it.bmax = it.bmin
			for j := 1; j < params.Nvp; j++ {
				if p[j] == meshNullIdx {
					break
				}
				v := params.Verts[p[j]*3:]
				for c := 0; c < 3; c++ {
					if v[c] < it.bmin[c] {
						it.bmin[c] = v[c]
					}
					if v[c] > it.bmax[c] {
						it.bmax[c] = v[c]
					}
				}
			}
			// Remap y from ch to cs.
			it.bmin[1] = uint16(math.Floor(float64(it.bmin[1]) * float64(params.Ch) / float64(params.Cs)))
			it.bmax[1] = uint16(math.Ceil(float64(it.bmax[1]) * float64(params.Ch) / float64(params.Cs)))
		}
	}

	curNode := 0
	subdivide(items, 0, params.PolyCount, &curNode, nodes)
	return curNode
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CreateNavMeshData assembles the runtime navigation data for one tile:
// world-unit vertices, linked polygons, compressed detail meshes, the
// bounding volume tree and stored off-mesh connections.
func CreateNavMeshData(params *CreateParams) (*MeshData, error) {
	if params.Nvp > VertsPerPolygon {
		return nil, fmt.Errorf("%w: nvp %d exceeds %d", ErrInvalidParam, params.Nvp, VertsPerPolygon)
	}
	if params.VertCount >= 0xffff {
		return nil, fmt.Errorf("%w: vertex count %d exceeds %d", ErrInvalidParam, params.VertCount, 0xffff)
	}
	if params.VertCount == 0 || params.Verts == nil {
		return nil, fmt.Errorf("%w: no vertices", ErrInvalidParam)
	}
	if params.PolyCount == 0 || params.Polys == nil {
		return nil, fmt.Errorf("%w: no polygons", ErrInvalidParam)
	}

	nvp := params.Nvp

	// Classify off-mesh connection endpoints; only connections whose
	// start point lands inside the tile are stored.
	var offMeshConClass []uint8
	storedOffMeshConCount := 0
	offMeshConLinkCount := 0
	if params.OffMeshConCount > 0 {
		offMeshConClass = make([]uint8, params.OffMeshConCount*2)

		// Tight height bounds used for the containment test.
		hmin := float32(math.MaxFloat32)
		hmax := float32(-math.MaxFloat32)
		if params.DetailVerts != nil && params.DetailVertCount > 0 {
			for i := 0; i < params.DetailVertCount; i++ {
				h := params.DetailVerts[i*3+1]
				hmin = float32(math.Min(float64(hmin), float64(h)))
				hmax = float32(math.Max(float64(hmax), float64(h)))
			}
		} else {
			for i := 0; i < params.VertCount; i++ {
				h := params.BMin[1] + float32(params.Verts[i*3+1])*params.Ch
				hmin = float32(math.Min(float64(hmin), float64(h)))
				hmax = float32(math.Max(float64(hmax), float64(h)))
			}
		}
		hmin -= params.WalkableClimb
		hmax += params.WalkableClimb
		bmin := params.BMin
		bmax := params.BMax
		bmin[1] = hmin
		bmax[1] = hmax

		for i := 0; i < params.OffMeshConCount; i++ {
			p0 := params.OffMeshConVerts[(i*2)*3:]
			p1 := params.OffMeshConVerts[(i*2+1)*3:]
			offMeshConClass[i*2] = classifyOffMeshPoint(p0, bmin[:], bmax[:])
			offMeshConClass[i*2+1] = classifyOffMeshPoint(p1, bmin[:], bmax[:])

			// Cull start points that cannot touch the mesh vertically.
			if offMeshConClass[i*2] == xpMask {
				if p0[1] < bmin[1] || p0[1] > bmax[1] {
					offMeshConClass[i*2] = 0
				}
			}

			if offMeshConClass[i*2] == xpMask {
				storedOffMeshConCount++
				offMeshConLinkCount++
			}
			if offMeshConClass[i*2+1] == xpMask {
				offMeshConLinkCount++
			}
		}
	}

	totPolyCount := params.PolyCount + storedOffMeshConCount
	totVertCount := params.VertCount + storedOffMeshConCount*2

	// Count edges and portal edges.
	edgeCount := 0
	portalCount := 0
	for i := 0; i < params.PolyCount; i++ {
		p := params.Polys[i*2*nvp:]
		for j := 0; j < nvp; j++ {
			if p[j] == meshNullIdx {
				break
			}
			edgeCount++
			if p[nvp+j]&0x8000 != 0 {
				if dir := p[nvp+j] & 0xf; dir != 0xf {
					portalCount++
				}
			}
		}
	}
	maxLinkCount := edgeCount + portalCount*2 + offMeshConLinkCount*2

	// Detail mesh sizes.
	uniqueDetailVertCount := 0
	detailTriCount := 0
	if params.DetailMeshes != nil {
		detailTriCount = params.DetailTriCount
		for i := 0; i < params.PolyCount; i++ {
			p := params.Polys[i*nvp*2:]
			ndv := int(params.DetailMeshes[i*4+1])
			nv := 0
			for j := 0; j < nvp; j++ {
				if p[j] == meshNullIdx {
					break
				}
				nv++
			}
			uniqueDetailVertCount += ndv - nv
		}
	} else {
		for i := 0; i < params.PolyCount; i++ {
			p := params.Polys[i*nvp*2:]
			nv := 0
			for j := 0; j < nvp; j++ {
				if p[j] == meshNullIdx {
					break
				}
				nv++
			}
			detailTriCount += nv - 2
		}
	}

	data := &MeshData{
		Verts:        make([]float32, totVertCount*3),
		Polys:        make([]Poly, totPolyCount),
		DetailMeshes: make([]PolyDetail, params.PolyCount),
		DetailVerts:  make([]float32, uniqueDetailVertCount*3),
		DetailTris:   make([]uint8, detailTriCount*4),
		OffMeshCons:  make([]OffMeshConnection, storedOffMeshConCount),
	}
	bvNodeCount := 0
	if params.BuildBvTree {
		data.BvTree = make([]BVNode, params.PolyCount*2)
	}

	h := &data.Header
	h.Magic = navMeshMagic
	h.Version = navMeshVersion
	h.X = params.TileX
	h.Y = params.TileY
	h.Layer = params.TileLayer
	h.UserID = params.UserID
	h.PolyCount = int32(totPolyCount)
	h.VertCount = int32(totVertCount)
	h.MaxLinkCount = int32(maxLinkCount)
	h.BMin = params.BMin
	h.BMax = params.BMax
	h.DetailMeshCount = int32(params.PolyCount)
	h.DetailVertCount = int32(uniqueDetailVertCount)
	h.DetailTriCount = int32(detailTriCount)
	h.BvQuantFactor = 1 / params.Cs
	h.OffMeshBase = int32(params.PolyCount)
	h.WalkableHeight = params.WalkableHeight
	h.WalkableRadius = params.WalkableRadius
	h.WalkableClimb = params.WalkableClimb
	h.OffMeshConCount = int32(storedOffMeshConCount)

	offMeshVertsBase := params.VertCount
	offMeshPolyBase := params.PolyCount

	// Mesh vertices.
	for i := 0; i < params.VertCount; i++ {
		iv := params.Verts[i*3:]
		v := data.Verts[i*3:]
		v[0] = params.BMin[0] + float32(iv[0])*params.Cs
		v[1] = params.BMin[1] + float32(iv[1])*params.Ch
		v[2] = params.BMin[2] + float32(iv[2])*params.Cs
	}
	// Off-mesh link vertices.
	n := 0
	for i := 0; i < params.OffMeshConCount; i++ {
		if offMeshConClass[i*2] != xpMask {
			continue
		}
		linkv := params.OffMeshConVerts[i*2*3:]
		v := data.Verts[(offMeshVertsBase+n*2)*3:]
		copy(v[:3], linkv[:3])
		copy(v[3:6], linkv[3:6])
		n++
	}

	// Mesh polygons.
	for i := 0; i < params.PolyCount; i++ {
		p := &data.Polys[i]
		src := params.Polys[i*2*nvp:]
		p.FirstLink = nullLink
		p.Flags = params.PolyFlags[i]
		p.SetArea(params.PolyAreas[i])
		p.SetType(polyTypeGround)
		for j := 0; j < nvp; j++ {
			if src[j] == meshNullIdx {
				break
			}
			p.Verts[j] = src[j]
			if src[nvp+j]&0x8000 != 0 {
				// Border or portal edge.
				switch src[nvp+j] & 0xf {
				case 0xf: // border
					p.Neis[j] = 0
				case 0: // portal x-
					p.Neis[j] = extLink | 4
				case 1: // portal z+
					p.Neis[j] = extLink | 2
				case 2: // portal x+
					p.Neis[j] = extLink
				case 3: // portal z-
					p.Neis[j] = extLink | 6
				}
			} else {
				// Normal connection.
				p.Neis[j] = src[nvp+j] + 1
			}
			p.VertCount++
		}
	}
	// Off-mesh connection polygons.
	n = 0
	for i := 0; i < params.OffMeshConCount; i++ {
		if offMeshConClass[i*2] != xpMask {
			continue
		}
		p := &data.Polys[offMeshPolyBase+n]
		p.FirstLink = nullLink
		p.VertCount = 2
		p.Verts[0] = uint16(offMeshVertsBase + n*2)
		p.Verts[1] = uint16(offMeshVertsBase + n*2 + 1)
		p.Flags = params.OffMeshConFlags[i]
		p.SetArea(params.OffMeshConAreas[i])
		p.SetType(polyTypeOffMeshConn)
		n++
	}

	// Detail meshes: detail vertices shared with the base polygon are
	// not duplicated.
	if params.DetailMeshes != nil {
		vbase := uint32(0)
		for i := 0; i < params.PolyCount; i++ {
			dtl := &data.DetailMeshes[i]
			vb := int(params.DetailMeshes[i*4])
			ndv := int(params.DetailMeshes[i*4+1])
			nv := int(data.Polys[i].VertCount)
			dtl.VertBase = vbase
			dtl.VertCount = uint8(ndv - nv)
			dtl.TriBase = params.DetailMeshes[i*4+2]
			dtl.TriCount = uint8(params.DetailMeshes[i*4+3])
			if ndv-nv > 0 {
				copy(data.DetailVerts[vbase*3:], params.DetailVerts[(vb+nv)*3:(vb+ndv)*3])
				vbase += uint32(ndv - nv)
			}
		}
		copy(data.DetailTris, params.DetailTris[:detailTriCount*4])
	} else {
		// Triangulate each polygon as a fan.
		tbase := 0
		for i := 0; i < params.PolyCount; i++ {
			dtl := &data.DetailMeshes[i]
			nv := int(data.Polys[i].VertCount)
			dtl.VertBase = 0
			dtl.VertCount = 0
			dtl.TriBase = uint32(tbase)
			dtl.TriCount = uint8(nv - 2)
			for j := 2; j < nv; j++ {
				t := data.DetailTris[tbase*4:]
				t[0] = 0
				t[1] = uint8(j - 1)
				t[2] = uint8(j)
				// Bit for each edge that belongs to the poly boundary.
				t[3] = 1 << 2
				if j == 2 {
					t[3] |= 1 << 0
				}
				if j == nv-1 {
					t[3] |= 1 << 4
				}
				tbase++
			}
		}
	}

	if params.BuildBvTree {
		bvNodeCount = createBVTree(params, data.BvTree)
		data.BvTree = data.BvTree[:bvNodeCount]
	}
	h.BvNodeCount = int32(bvNodeCount)

	// Off-mesh connection records.
	n = 0
	for i := 0; i < params.OffMeshConCount; i++ {
		if offMeshConClass[i*2] != xpMask {
			continue
		}
		con := &data.OffMeshCons[n]
		con.Poly = uint16(offMeshPolyBase + n)
		linkv := params.OffMeshConVerts[i*2*3:]
		copy(con.Pos[:3], linkv[:3])
		copy(con.Pos[3:], linkv[3:6])
		con.Rad = params.OffMeshConRad[i]
		if params.OffMeshConDir[i] != 0 {
			con.Flags = offMeshConBidir
		}
		con.Side = offMeshConClass[i*2+1]
		if params.OffMeshConUserID != nil {
			con.UserID = params.OffMeshConUserID[i]
		}
		n++
	}

	return data, nil
}
