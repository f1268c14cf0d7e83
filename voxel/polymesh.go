package voxel

import "fmt"

const (
	meshNullIdx = 0xffff

	// multipleRegs marks polygons whose triangles came from different
	// regions after vertex removal.
	multipleRegs = 0

	vertexBucketCount = 1 << 12
)

// PolyMesh is the convex polygon mesh built from region contours. Verts
// are voxel coordinates relative to BMin; each polygon occupies 2*Nvp
// entries in Polys: the first Nvp are vertex indices, the second Nvp are
// neighbour polygon indices (meshNullIdx for none, 0x8000|dir for a
// portal edge on the grid border).
type PolyMesh struct {
	Verts        []uint16 // NVerts*3
	Polys        []uint16 // NPolys*2*Nvp
	Regs         []uint16 // per polygon region id
	Flags        []uint16 // per polygon user flags
	Areas        []uint8  // per polygon area id
	NVerts       int
	NPolys       int
	Nvp          int
	BMin         [3]float32
	BMax         [3]float32
	Cs           float32
	Ch           float32
	BorderSize   int
	MaxEdgeError float32
}

func prevIndex(i, n int) int {
	if i-1 >= 0 {
		return i - 1
	}
	return n - 1
}

func nextIndex(i, n int) int {
	if i+1 < n {
		return i + 1
	}
	return 0
}

const (
	earFlag = 0x80000000
	earMask = 0x0fffffff
)

func vequal2D(a, b []int32) bool {
	return a[0] == b[0] && a[2] == b[2]
}

// diagonalie reports whether the segment (i,j) is a proper internal or
// external diagonal of the polygon, ignoring edges incident to i and j.
func diagonalie(i, j, n int, verts []int32, indices []uint32) bool {
	d0 := verts[(indices[i]&earMask)*4:]
	d1 := verts[(indices[j]&earMask)*4:]

	for k := 0; k < n; k++ {
		k1 := nextIndex(k, n)
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := verts[(indices[k]&earMask)*4:]
		p1 := verts[(indices[k1]&earMask)*4:]
		if vequal2D(d0, p0) || vequal2D(d1, p0) || vequal2D(d0, p1) || vequal2D(d1, p1) {
			continue
		}
		if intersectSeg(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

// inCone reports whether the diagonal (i,j) is strictly internal to the
// polygon in the neighbourhood of vertex i.
func inCone(i, j, n int, verts []int32, indices []uint32) bool {
	pi := verts[(indices[i]&earMask)*4:]
	pj := verts[(indices[j]&earMask)*4:]
	pi1 := verts[(indices[nextIndex(i, n)]&earMask)*4:]
	pin1 := verts[(indices[prevIndex(i, n)]&earMask)*4:]

	if leftOn(pin1, pi, pi1) {
		return left2(pi, pj, pin1) && left2(pj, pi, pi1)
	}
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

func diagonal(i, j, n int, verts []int32, indices []uint32) bool {
	return inCone(i, j, n, verts, indices) && diagonalie(i, j, n, verts, indices)
}

func diagonalieLoose(i, j, n int, verts []int32, indices []uint32) bool {
	d0 := verts[(indices[i]&earMask)*4:]
	d1 := verts[(indices[j]&earMask)*4:]

	for k := 0; k < n; k++ {
		k1 := nextIndex(k, n)
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := verts[(indices[k]&earMask)*4:]
		p1 := verts[(indices[k1]&earMask)*4:]
		if vequal2D(d0, p0) || vequal2D(d1, p0) || vequal2D(d0, p1) || vequal2D(d1, p1) {
			continue
		}
		if intersectProp(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

func inConeLoose(i, j, n int, verts []int32, indices []uint32) bool {
	pi := verts[(indices[i]&earMask)*4:]
	pj := verts[(indices[j]&earMask)*4:]
	pi1 := verts[(indices[nextIndex(i, n)]&earMask)*4:]
	pin1 := verts[(indices[prevIndex(i, n)]&earMask)*4:]

	if leftOn(pin1, pi, pi1) {
		return leftOn(pi, pj, pin1) && leftOn(pj, pi, pi1)
	}
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

func diagonalLoose(i, j, n int, verts []int32, indices []uint32) bool {
	return inConeLoose(i, j, n, verts, indices) && diagonalieLoose(i, j, n, verts, indices)
}

// triangulate ear-clips the polygon described by indices into tris
// (three indices per triangle). Returns the triangle count, negated when
// the polygon could not be fully clipped and the partial result was kept.
func triangulate(n int, verts []int32, indices []uint32, tris []int32) int {
	ntris := 0

	// Mark removable vertices.
	for i := 0; i < n; i++ {
		i1 := nextIndex(i, n)
		i2 := nextIndex(i1, n)
		if diagonal(i, i2, n, verts, indices) {
			indices[i1] |= earFlag
		}
	}

	for n > 3 {
		minLen := -1
		mini := -1
		for i := 0; i < n; i++ {
			i1 := nextIndex(i, n)
			if indices[i1]&earFlag != 0 {
				p0 := verts[(indices[i]&earMask)*4:]
				p2 := verts[(indices[nextIndex(i1, n)]&earMask)*4:]
				dx := int(p2[0] - p0[0])
				dz := int(p2[2] - p0[2])
				l := dx*dx + dz*dz
				if minLen < 0 || l < minLen {
					minLen = l
					mini = i
				}
			}
		}

		if mini == -1 {
			// The contour is messed up, try looser tests that allow the
			// diagonal to graze the boundary.
			for i := 0; i < n; i++ {
				i1 := nextIndex(i, n)
				i2 := nextIndex(i1, n)
				if diagonalLoose(i, i2, n, verts, indices) {
					p0 := verts[(indices[i]&earMask)*4:]
					p2 := verts[(indices[nextIndex(i2, n)]&earMask)*4:]
					dx := int(p2[0] - p0[0])
					dz := int(p2[2] - p0[2])
					l := dx*dx + dz*dz
					if minLen < 0 || l < minLen {
						minLen = l
						mini = i
					}
				}
			}
			if mini == -1 {
				return -ntris
			}
		}

		i := mini
		i1 := nextIndex(i, n)
		i2 := nextIndex(i1, n)

		tris[ntris*3] = int32(indices[i] & earMask)
		tris[ntris*3+1] = int32(indices[i1] & earMask)
		tris[ntris*3+2] = int32(indices[i2] & earMask)
		ntris++

		// Remove vertex i1.
		n--
		for k := i1; k < n; k++ {
			indices[k] = indices[k+1]
		}
		if i1 >= n {
			i1 = 0
		}
		i = prevIndex(i1, n)
		if diagonal(prevIndex(i, n), i1, n, verts, indices) {
			indices[i] |= earFlag
		} else {
			indices[i] &= earMask
		}
		if diagonal(i, nextIndex(i1, n), n, verts, indices) {
			indices[i1] |= earFlag
		} else {
			indices[i1] &= earMask
		}
	}

	tris[ntris*3] = int32(indices[0] & earMask)
	tris[ntris*3+1] = int32(indices[1] & earMask)
	tris[ntris*3+2] = int32(indices[2] & earMask)
	ntris++
	return ntris
}

func computeVertexHash(x, y, z int32) int {
	const h1 = 0x8da6b343
	const h2 = 0xd8163841
	const h3 = 0xcb1ab31f
	n := uint32(h1)*uint32(x) + uint32(h2)*uint32(y) + uint32(h3)*uint32(z)
	return int(n & (vertexBucketCount - 1))
}

// addVertex deduplicates vertices through a spatial hash; vertices with
// equal x,z and nearly equal height fold into one.
func addVertex(x, y, z uint16, verts []uint16, firstVert, nextVert []int, nv *int) uint16 {
	bucket := computeVertexHash(int32(x), 0, int32(z))
	for i := firstVert[bucket]; i != -1; i = nextVert[i] {
		v := verts[i*3:]
		if v[0] == x && abs(int(v[1])-int(y)) <= 2 && v[2] == z {
			return uint16(i)
		}
	}

	i := *nv
	*nv++
	verts[i*3] = x
	verts[i*3+1] = y
	verts[i*3+2] = z
	nextVert[i] = firstVert[bucket]
	firstVert[bucket] = i
	return uint16(i)
}

func countPolyVerts(p []uint16, nvp int) int {
	for i := 0; i < nvp; i++ {
		if p[i] == meshNullIdx {
			return i
		}
	}
	return nvp
}

func uleft(a, b, c []uint16) bool {
	return (int(b[0])-int(a[0]))*(int(c[2])-int(a[2]))-(int(c[0])-int(a[0]))*(int(b[2])-int(a[2])) < 0
}

// getPolyMergeValue returns the squared length of the edge shared by the
// two polygons when merging them yields a valid convex polygon within
// nvp vertices, or -1 when they cannot merge.
func getPolyMergeValue(pa, pb []uint16, verts []uint16, nvp int) (ea, eb, value int) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)

	if na+nb-2 > nvp {
		return -1, -1, -1
	}

	ea, eb = -1, -1
	for i := 0; i < na; i++ {
		va0 := pa[i]
		va1 := pa[(i+1)%na]
		if va0 > va1 {
			va0, va1 = va1, va0
		}
		for j := 0; j < nb; j++ {
			vb0 := pb[j]
			vb1 := pb[(j+1)%nb]
			if vb0 > vb1 {
				vb0, vb1 = vb1, vb0
			}
			if va0 == vb0 && va1 == vb1 {
				ea = i
				eb = j
				break
			}
		}
	}
	if ea == -1 || eb == -1 {
		return -1, -1, -1
	}

	// The merged polygon must stay convex at the stitch corners.
	va := pa[(ea+na-1)%na]
	vb := pa[ea]
	vc := pb[(eb+2)%nb]
	if !uleft(verts[va*3:], verts[vb*3:], verts[vc*3:]) {
		return -1, -1, -1
	}
	va = pb[(eb+nb-1)%nb]
	vb = pb[eb]
	vc = pa[(ea+2)%na]
	if !uleft(verts[va*3:], verts[vb*3:], verts[vc*3:]) {
		return -1, -1, -1
	}

	va = pa[ea]
	vb = pa[(ea+1)%na]
	dx := int(verts[va*3]) - int(verts[vb*3])
	dz := int(verts[va*3+2]) - int(verts[vb*3+2])
	return ea, eb, dx*dx + dz*dz
}

func mergePolyVerts(pa, pb []uint16, ea, eb int, tmp []uint16, nvp int) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)

	for i := range tmp[:nvp] {
		tmp[i] = meshNullIdx
	}
	n := 0
	for i := 0; i < na-1; i++ {
		tmp[n] = pa[(ea+1+i)%na]
		n++
	}
	for i := 0; i < nb-1; i++ {
		tmp[n] = pb[(eb+1+i)%nb]
		n++
	}
	copy(pa[:nvp], tmp[:nvp])
}

// buildMeshAdjacency fills in the neighbour half of every polygon by
// matching shared edges.
func buildMeshAdjacency(polys []uint16, npolys, nverts, vertsPerPoly int) {
	maxEdgeCount := npolys * vertsPerPoly
	firstEdge := make([]uint16, nverts)
	nextEdge := make([]uint16, maxEdgeCount)

	type meshEdge struct {
		vert     [2]uint16
		polyEdge [2]uint16
		poly     [2]uint16
	}
	edges := make([]meshEdge, 0, maxEdgeCount)

	for i := range firstEdge {
		firstEdge[i] = meshNullIdx
	}

	for i := 0; i < npolys; i++ {
		t := polys[i*vertsPerPoly*2:]
		for j := 0; j < vertsPerPoly; j++ {
			if t[j] == meshNullIdx {
				break
			}
			v0 := t[j]
			v1 := t[0]
			if j+1 < vertsPerPoly && t[j+1] != meshNullIdx {
				v1 = t[j+1]
			}
			if v0 < v1 {
				e := meshEdge{
					vert: [2]uint16{v0, v1},
					poly: [2]uint16{uint16(i), uint16(i)},
					polyEdge: [2]uint16{uint16(j), 0},
				}
				nextEdge[len(edges)] = firstEdge[v0]
				firstEdge[v0] = uint16(len(edges))
				edges = append(edges, e)
			}
		}
	}

	for i := 0; i < npolys; i++ {
		t := polys[i*vertsPerPoly*2:]
		for j := 0; j < vertsPerPoly; j++ {
			if t[j] == meshNullIdx {
				break
			}
			v0 := t[j]
			v1 := t[0]
			if j+1 < vertsPerPoly && t[j+1] != meshNullIdx {
				v1 = t[j+1]
			}
			if v0 > v1 {
				for e := firstEdge[v1]; e != meshNullIdx; e = nextEdge[e] {
					edge := &edges[e]
					if edge.vert[1] == v0 && edge.poly[0] == edge.poly[1] {
						edge.poly[1] = uint16(i)
						edge.polyEdge[1] = uint16(j)
						break
					}
				}
			}
		}
	}

	for i := range edges {
		e := &edges[i]
		if e.poly[0] == e.poly[1] {
			continue
		}
		p0 := polys[int(e.poly[0])*vertsPerPoly*2:]
		p1 := polys[int(e.poly[1])*vertsPerPoly*2:]
		p0[vertsPerPoly+int(e.polyEdge[0])] = e.poly[1]
		p1[vertsPerPoly+int(e.polyEdge[1])] = e.poly[0]
	}
}

func canRemoveVertex(mesh *PolyMesh, rem uint16) bool {
	nvp := mesh.Nvp

	// Count how many edges would remain after removal.
	numTouchedVerts := 0
	numRemainingEdges := 0
	for i := 0; i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		numRemoved := 0
		for j := 0; j < nv; j++ {
			if p[j] == rem {
				numTouchedVerts++
				numRemoved++
			}
		}
		if numRemoved > 0 {
			numRemainingEdges += nv - (numRemoved + 1)
		}
	}
	if numRemainingEdges <= 2 {
		return false
	}

	// Collect the edges incident to the removed vertex; the hole can be
	// filled only when at most two of them are open.
	type edgeCount struct {
		a, b  uint16
		count int
	}
	edges := make([]edgeCount, 0, numTouchedVerts*2)
	for i := 0; i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		for j, k := 0, nv-1; j < nv; k, j = j, j+1 {
			if p[j] != rem && p[k] != rem {
				continue
			}
			a, b := p[j], p[k]
			if b == rem {
				a, b = b, a
			}
			exists := false
			for m := range edges {
				if edges[m].b == b {
					edges[m].count++
					exists = true
				}
			}
			if !exists {
				edges = append(edges, edgeCount{a, b, 1})
			}
		}
	}

	numOpenEdges := 0
	for i := range edges {
		if edges[i].count < 2 {
			numOpenEdges++
		}
	}
	return numOpenEdges <= 2
}

func removeVertex(mesh *PolyMesh, rem uint16, maxTris int) error {
	nvp := mesh.Nvp

	numRemovedVerts := 0
	for i := 0; i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		for j := 0; j < nv; j++ {
			if p[j] == rem {
				numRemovedVerts++
			}
		}
	}

	edges := make([]int32, 0, numRemovedVerts*nvp*4)
	var hole, hreg, harea []int32

	for i := 0; i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		hasRem := false
		for j := 0; j < nv; j++ {
			if p[j] == rem {
				hasRem = true
				break
			}
		}
		if !hasRem {
			continue
		}
		// Collect edges which do not touch the removed vertex.
		for j, k := 0, nv-1; j < nv; k, j = j, j+1 {
			if p[j] != rem && p[k] != rem {
				edges = append(edges, int32(p[k]), int32(p[j]), int32(mesh.Regs[i]), int32(mesh.Areas[i]))
			}
		}
		// Remove the polygon.
		p2 := mesh.Polys[(mesh.NPolys-1)*nvp*2:]
		copy(p[:nvp], p2[:nvp])
		for j := nvp; j < nvp*2; j++ {
			p[j] = meshNullIdx
		}
		mesh.Regs[i] = mesh.Regs[mesh.NPolys-1]
		mesh.Areas[i] = mesh.Areas[mesh.NPolys-1]
		mesh.NPolys--
		i--
	}

	// Remove the vertex and adjust all indices above it.
	for i := int(rem); i < mesh.NVerts-1; i++ {
		mesh.Verts[i*3] = mesh.Verts[(i+1)*3]
		mesh.Verts[i*3+1] = mesh.Verts[(i+1)*3+1]
		mesh.Verts[i*3+2] = mesh.Verts[(i+1)*3+2]
	}
	mesh.NVerts--
	for i := 0; i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		for j := 0; j < nv; j++ {
			if p[j] > rem {
				p[j]--
			}
		}
	}
	for i := 0; i < len(edges)/4; i++ {
		if edges[i*4] > int32(rem) {
			edges[i*4]--
		}
		if edges[i*4+1] > int32(rem) {
			edges[i*4+1]--
		}
	}
	if len(edges) == 0 {
		return nil
	}

	// Chain the loose edges into a closed hole loop.
	hole = append(hole, edges[0])
	hreg = append(hreg, edges[2])
	harea = append(harea, edges[3])
	for len(edges) > 0 {
		match := false
		for i := 0; i < len(edges)/4; i++ {
			ea := edges[i*4]
			eb := edges[i*4+1]
			r := edges[i*4+2]
			a := edges[i*4+3]
			add := false
			if hole[0] == eb {
				hole = append([]int32{ea}, hole...)
				hreg = append([]int32{r}, hreg...)
				harea = append([]int32{a}, harea...)
				add = true
			} else if hole[len(hole)-1] == ea {
				hole = append(hole, eb)
				hreg = append(hreg, r)
				harea = append(harea, a)
				add = true
			}
			if add {
				n := len(edges)/4 - 1
				copy(edges[i*4:], edges[n*4:])
				edges = edges[:n*4]
				match = true
				i--
			}
		}
		if !match {
			break
		}
	}

	nhole := len(hole)
	tris := make([]int32, nhole*3)
	tverts := make([]int32, nhole*4)
	thole := make([]uint32, nhole)
	for i := 0; i < nhole; i++ {
		pi := hole[i]
		tverts[i*4] = int32(mesh.Verts[pi*3])
		tverts[i*4+1] = int32(mesh.Verts[pi*3+1])
		tverts[i*4+2] = int32(mesh.Verts[pi*3+2])
		thole[i] = uint32(i)
	}

	ntris := triangulate(nhole, tverts, thole, tris)
	if ntris < 0 {
		ntris = -ntris
	}

	polys := make([]uint16, ntris*nvp)
	pregs := make([]uint16, ntris)
	pareas := make([]uint8, ntris)
	tmpPoly := make([]uint16, nvp)
	for i := range polys {
		polys[i] = meshNullIdx
	}

	npolys := 0
	for j := 0; j < ntris; j++ {
		t := tris[j*3:]
		if t[0] == t[1] || t[0] == t[2] || t[1] == t[2] {
			continue
		}
		polys[npolys*nvp] = uint16(hole[t[0]])
		polys[npolys*nvp+1] = uint16(hole[t[1]])
		polys[npolys*nvp+2] = uint16(hole[t[2]])
		if hreg[t[0]] != hreg[t[1]] || hreg[t[1]] != hreg[t[2]] {
			pregs[npolys] = multipleRegs
		} else {
			pregs[npolys] = uint16(hreg[t[0]])
		}
		pareas[npolys] = uint8(harea[t[0]])
		npolys++
	}
	if npolys == 0 {
		return nil
	}

	if nvp > 3 {
		for {
			bestMergeVal := 0
			bestPa, bestPb, bestEa, bestEb := 0, 0, 0, 0
			for j := 0; j < npolys-1; j++ {
				pj := polys[j*nvp:]
				for k := j + 1; k < npolys; k++ {
					pk := polys[k*nvp:]
					ea, eb, v := getPolyMergeValue(pj, pk, mesh.Verts, nvp)
					if v > bestMergeVal {
						bestMergeVal = v
						bestPa, bestPb, bestEa, bestEb = j, k, ea, eb
					}
				}
			}
			if bestMergeVal <= 0 {
				break
			}
			pa := polys[bestPa*nvp:]
			pb := polys[bestPb*nvp:]
			mergePolyVerts(pa, pb, bestEa, bestEb, tmpPoly, nvp)
			if pregs[bestPa] != pregs[bestPb] {
				pregs[bestPa] = multipleRegs
			}
			last := polys[(npolys-1)*nvp:]
			if &pb[0] != &last[0] {
				copy(pb[:nvp], last[:nvp])
			}
			pregs[bestPb] = pregs[npolys-1]
			pareas[bestPb] = pareas[npolys-1]
			npolys--
		}
	}

	for i := 0; i < npolys; i++ {
		if mesh.NPolys >= maxTris {
			return fmt.Errorf("voxel: too many polygons %d (max %d)", mesh.NPolys, maxTris)
		}
		p := mesh.Polys[mesh.NPolys*nvp*2:]
		for j := 0; j < nvp*2; j++ {
			p[j] = meshNullIdx
		}
		for j := 0; j < nvp; j++ {
			p[j] = polys[i*nvp+j]
		}
		mesh.Regs[mesh.NPolys] = pregs[i]
		mesh.Areas[mesh.NPolys] = pareas[i]
		mesh.NPolys++
	}
	return nil
}

// BuildPolyMesh triangulates the simplified contours and merges the
// triangles into convex polygons with at most nvp vertices each.
func BuildPolyMesh(cset *ContourSet, nvp int) (*PolyMesh, error) {
	mesh := &PolyMesh{
		BMin:         cset.BMin,
		BMax:         cset.BMax,
		Cs:           cset.Cs,
		Ch:           cset.Ch,
		BorderSize:   cset.BorderSize,
		MaxEdgeError: cset.MaxError,
		Nvp:          nvp,
	}

	maxVertices := 0
	maxTris := 0
	maxVertsPerCont := 0
	for i := range cset.Conts {
		nv := len(cset.Conts[i].Verts) / 4
		if nv < 3 {
			continue
		}
		maxVertices += nv
		maxTris += nv - 2
		maxVertsPerCont = max(maxVertsPerCont, nv)
	}
	if maxVertices >= meshNullIdx {
		return nil, fmt.Errorf("voxel: too many vertices %d (max %d)", maxVertices, meshNullIdx-1)
	}

	vflags := make([]uint8, maxVertices)

	mesh.Verts = make([]uint16, maxVertices*3)
	mesh.Polys = make([]uint16, maxTris*nvp*2)
	mesh.Regs = make([]uint16, maxTris)
	mesh.Areas = make([]uint8, maxTris)
	for i := range mesh.Polys {
		mesh.Polys[i] = meshNullIdx
	}

	nextVert := make([]int, maxVertices)
	firstVert := make([]int, vertexBucketCount)
	for i := range firstVert {
		firstVert[i] = -1
	}

	indices := make([]uint32, maxVertsPerCont)
	tris := make([]int32, maxVertsPerCont*3)
	polys := make([]uint16, (maxVertsPerCont+1)*nvp)
	tmpPoly := make([]uint16, nvp)

	for ci := range cset.Conts {
		cont := &cset.Conts[ci]
		nverts := len(cont.Verts) / 4
		if nverts < 3 {
			continue
		}

		for j := 0; j < nverts; j++ {
			indices[j] = uint32(j)
		}
		ntris := triangulate(nverts, cont.Verts, indices[:nverts], tris)
		if ntris <= 0 {
			// Keep what could be triangulated.
			ntris = -ntris
		}

		// Add and merge vertices.
		for j := 0; j < nverts; j++ {
			v := cont.Verts[j*4:]
			indices[j] = uint32(addVertex(uint16(v[0]), uint16(v[1]), uint16(v[2]), mesh.Verts, firstVert, nextVert, &mesh.NVerts))
			if v[3]&borderVertexFlag != 0 {
				// Remove the vertex later.
				vflags[indices[j]] = 1
			}
		}

		// Build initial polygons.
		npolys := 0
		for i := range polys {
			polys[i] = meshNullIdx
		}
		for j := 0; j < ntris; j++ {
			t := tris[j*3:]
			if t[0] != t[1] && t[0] != t[2] && t[1] != t[2] {
				polys[npolys*nvp] = uint16(indices[t[0]])
				polys[npolys*nvp+1] = uint16(indices[t[1]])
				polys[npolys*nvp+2] = uint16(indices[t[2]])
				npolys++
			}
		}
		if npolys == 0 {
			continue
		}

		// Merge polygons.
		if nvp > 3 {
			for {
				bestMergeVal := 0
				bestPa, bestPb, bestEa, bestEb := 0, 0, 0, 0
				for j := 0; j < npolys-1; j++ {
					pj := polys[j*nvp:]
					for k := j + 1; k < npolys; k++ {
						pk := polys[k*nvp:]
						ea, eb, v := getPolyMergeValue(pj, pk, mesh.Verts, nvp)
						if v > bestMergeVal {
							bestMergeVal = v
							bestPa, bestPb, bestEa, bestEb = j, k, ea, eb
						}
					}
				}
				if bestMergeVal <= 0 {
					break
				}
				pa := polys[bestPa*nvp:]
				pb := polys[bestPb*nvp:]
				mergePolyVerts(pa, pb, bestEa, bestEb, tmpPoly, nvp)
				last := polys[(npolys-1)*nvp:]
				if &pb[0] != &last[0] {
					copy(pb[:nvp], last[:nvp])
				}
				npolys--
			}
		}

		// Store polygons.
		for j := 0; j < npolys; j++ {
			if mesh.NPolys >= maxTris {
				return nil, fmt.Errorf("voxel: too many polygons %d (max %d)", mesh.NPolys, maxTris)
			}
			p := mesh.Polys[mesh.NPolys*nvp*2:]
			for k := 0; k < nvp; k++ {
				p[k] = polys[j*nvp+k]
			}
			mesh.Regs[mesh.NPolys] = uint16(cont.Reg)
			mesh.Areas[mesh.NPolys] = cont.Area
			mesh.NPolys++
		}
	}

	// Remove edge vertices created at region borders.
	for i := 0; i < mesh.NVerts; i++ {
		if vflags[i] == 0 {
			continue
		}
		if !canRemoveVertex(mesh, uint16(i)) {
			continue
		}
		if err := removeVertex(mesh, uint16(i), maxTris); err != nil {
			return nil, err
		}
		copy(vflags[i:], vflags[i+1:mesh.NVerts+1])
		i--
	}

	buildMeshAdjacency(mesh.Polys, mesh.NPolys, mesh.NVerts, nvp)

	// Mark portal edges on the grid border.
	if mesh.BorderSize > 0 {
		w := cset.Width
		h := cset.Height
		for i := 0; i < mesh.NPolys; i++ {
			p := mesh.Polys[i*2*nvp:]
			for j := 0; j < nvp; j++ {
				if p[j] == meshNullIdx {
					break
				}
				if p[nvp+j] != meshNullIdx {
					continue
				}
				nj := j + 1
				if nj >= nvp || p[nj] == meshNullIdx {
					nj = 0
				}
				va := mesh.Verts[p[j]*3:]
				vb := mesh.Verts[p[nj]*3:]
				switch {
				case int(va[0]) == 0 && int(vb[0]) == 0:
					p[nvp+j] = 0x8000 | 0
				case int(va[2]) == h && int(vb[2]) == h:
					p[nvp+j] = 0x8000 | 1
				case int(va[0]) == w && int(vb[0]) == w:
					p[nvp+j] = 0x8000 | 2
				case int(va[2]) == 0 && int(vb[2]) == 0:
					p[nvp+j] = 0x8000 | 3
				}
			}
		}
	}

	mesh.Flags = make([]uint16, mesh.NPolys)

	if mesh.NVerts > meshNullIdx {
		return nil, fmt.Errorf("voxel: vertex count %d exceeds %d", mesh.NVerts, meshNullIdx)
	}
	if mesh.NPolys > meshNullIdx {
		return nil, fmt.Errorf("voxel: polygon count %d exceeds %d", mesh.NPolys, meshNullIdx)
	}
	return mesh, nil
}
