package voxel

import "math"

const (
	unsetHeight = 0xffff

	detailMaxVerts        = 127
	detailMaxTris         = 255
	detailMaxVertsPerEdge = 32

	evUndef = -1
	evHull  = -2
)

// PolyMeshDetail carries the triangle meshes that give each polygon of a
// PolyMesh its accurate surface height. Meshes holds 4 values per
// polygon: base vertex, vertex count, base triangle, triangle count.
type PolyMeshDetail struct {
	Meshes []uint32  // NMeshes*4
	Verts  []float32 // NVerts*3, world units
	Tris   []uint8   // NTris*4: three vertex indices plus edge flags
	NMeshes int
	NVerts  int
	NTris   int
}

type heightPatch struct {
	data   []uint16
	xmin   int
	ymin   int
	width  int
	height int
}

func getJitterX(i int) float32 {
	return float32((i*0x8da6b343)&0xffff)/65535.0*2.0 - 1.0
}

func getJitterY(i int) float32 {
	return float32((i*0xd8163841)&0xffff)/65535.0*2.0 - 1.0
}

func vcross2(p1, p2, p3 []float32) float32 {
	u1 := p2[0] - p1[0]
	v1 := p2[2] - p1[2]
	u2 := p3[0] - p1[0]
	v2 := p3[2] - p1[2]
	return u1*v2 - v1*u2
}

func vdot2(a, b []float32) float32 {
	return a[0]*b[0] + a[2]*b[2]
}

func vdistSq2(p, q []float32) float32 {
	dx := q[0] - p[0]
	dz := q[2] - p[2]
	return dx*dx + dz*dz
}

func vdist2(p, q []float32) float32 {
	return float32(math.Sqrt(float64(vdistSq2(p, q))))
}

func circumCircle(p1, p2, p3 []float32, c []float32) (r float32, ok bool) {
	const eps = 1e-6
	// Calculate the circle relative to p1 to avoid precision issues.
	v1 := []float32{0, 0, 0}
	v2 := []float32{p2[0] - p1[0], p2[1] - p1[1], p2[2] - p1[2]}
	v3 := []float32{p3[0] - p1[0], p3[1] - p1[1], p3[2] - p1[2]}

	cp := vcross2(v1, v2, v3)
	if abs(cp) > eps {
		v2Sq := vdot2(v2, v2)
		v3Sq := vdot2(v3, v3)
		c[0] = (v2Sq*(v3[2]-v1[2]) + v3Sq*(v1[2]-v2[2])) / (2 * cp)
		c[1] = 0
		c[2] = (v2Sq*(v1[0]-v3[0]) + v3Sq*(v2[0]-v1[0])) / (2 * cp)
		r = vdist2(c, v1)
		c[0] += p1[0]
		c[1] += p1[1]
		c[2] += p1[2]
		return r, true
	}
	copy(c, p1[:3])
	return 0, false
}

func distPtTri(p, a, b, c []float32) float32 {
	v0 := []float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	v1 := []float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	v2 := []float32{p[0] - a[0], p[1] - a[1], p[2] - a[2]}

	dot00 := vdot2(v0, v0)
	dot01 := vdot2(v0, v1)
	dot02 := vdot2(v0, v2)
	dot11 := vdot2(v1, v1)
	dot12 := vdot2(v1, v2)

	invDenom := 1 / (dot00*dot11 - dot01*dot01)
	u := (dot11*dot02 - dot01*dot12) * invDenom
	v := (dot00*dot12 - dot01*dot02) * invDenom

	// If the point lies inside the triangle, return the interpolated
	// height difference.
	const eps = 1e-4
	if u >= -eps && v >= -eps && u+v <= 1+eps {
		y := a[1] + v0[1]*u + v1[1]*v
		return abs(y - p[1])
	}
	return float32(math.MaxFloat32)
}

func distancePtSeg(pt, p, q []float32) float32 {
	pqx := q[0] - p[0]
	pqy := q[1] - p[1]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dy := pt[1] - p[1]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqy*pqy + pqz*pqz
	t := pqx*dx + pqy*dy + pqz*dz
	if d > 0 {
		t /= d
	}
	t = clamp(t, 0, 1)

	dx = p[0] + t*pqx - pt[0]
	dy = p[1] + t*pqy - pt[1]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dy*dy + dz*dz
}

func distancePtSeg2d(pt, p, q []float32) float32 {
	pqx := q[0] - p[0]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = clamp(t, 0, 1)

	dx = p[0] + t*pqx - pt[0]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dz*dz
}

func distToTriMesh(p, verts []float32, tris []int32, ntris int) float32 {
	dmin := float32(math.MaxFloat32)
	for i := 0; i < ntris; i++ {
		va := verts[tris[i*4]*3:]
		vb := verts[tris[i*4+1]*3:]
		vc := verts[tris[i*4+2]*3:]
		d := distPtTri(p, va, vb, vc)
		if d < dmin {
			dmin = d
		}
	}
	if dmin == math.MaxFloat32 {
		return -1
	}
	return dmin
}

func distToPoly(nvert int, verts []float32, p []float32) float32 {
	dmin := float32(math.MaxFloat32)
	c := false
	for i, j := 0, nvert-1; i < nvert; j, i = i, i+1 {
		vi := verts[i*3:]
		vj := verts[j*3:]
		if (vi[2] > p[2]) != (vj[2] > p[2]) &&
			p[0] < (vj[0]-vi[0])*(p[2]-vi[2])/(vj[2]-vi[2])+vi[0] {
			c = !c
		}
		dmin = min(dmin, distancePtSeg2d(p, vj, vi))
	}
	if c {
		return -dmin
	}
	return dmin
}

// getHeight samples the height patch at a world position, spiralling
// outward up to radius cells when the exact cell is unset.
func getHeight(fx, fy, fz, cs, ics, ch float32, radius int, hp *heightPatch) uint16 {
	ix := int(math.Floor(float64(fx*ics + 0.01)))
	iz := int(math.Floor(float64(fz*ics + 0.01)))
	ix = clamp(ix-hp.xmin, 0, hp.width-1)
	iz = clamp(iz-hp.ymin, 0, hp.height-1)
	h := hp.data[ix+iz*hp.width]
	if h != unsetHeight {
		return h
	}

	// Spiral search for the nearest set cell, stopping at the first
	// fully searched ring that produced a hit.
	x, z, dx, dz := 1, 0, 1, 0
	maxSize := radius*2 + 1
	maxIter := maxSize*maxSize - 1

	nextRingIterStart := 8
	nextRingIters := 16

	dmin := float32(math.MaxFloat32)
	for i := 0; i < maxIter; i++ {
		nx := ix + x
		nz := iz + z
		if nx >= 0 && nz >= 0 && nx < hp.width && nz < hp.height {
			nh := hp.data[nx+nz*hp.width]
			if nh != unsetHeight {
				d := abs(float32(nh)*ch - fy)
				if d < dmin {
					h = nh
					dmin = d
				}
			}
		}

		if i+1 == nextRingIterStart {
			if h != unsetHeight {
				break
			}
			nextRingIterStart += nextRingIters
			nextRingIters += 8
		}

		if x == z || (x < 0 && x == -z) || (x > 0 && x == 1-z) {
			dx, dz = -dz, dx
		}
		x += dx
		z += dz
	}
	return h
}

func findEdge(edges []int32, nedges, s, t int) int {
	for i := 0; i < nedges; i++ {
		e := edges[i*4:]
		if (e[0] == int32(s) && e[1] == int32(t)) || (e[0] == int32(t) && e[1] == int32(s)) {
			return i
		}
	}
	return evUndef
}

func addEdge(edges []int32, nedges *int, maxEdges, s, t, l, r int) {
	if *nedges >= maxEdges {
		return
	}
	if findEdge(edges, *nedges, s, t) == evUndef {
		e := edges[*nedges*4:]
		e[0] = int32(s)
		e[1] = int32(t)
		e[2] = int32(l)
		e[3] = int32(r)
		*nedges++
	}
}

func updateLeftFace(e []int32, s, t, f int) {
	if e[0] == int32(s) && e[1] == int32(t) && e[2] == evUndef {
		e[2] = int32(f)
	} else if e[1] == int32(s) && e[0] == int32(t) && e[3] == evUndef {
		e[3] = int32(f)
	}
}

func overlapSegSeg2d(a, b, c, d []float32) bool {
	a1 := vcross2(a, b, d)
	a2 := vcross2(a, b, c)
	if a1*a2 < 0 {
		a3 := vcross2(c, d, a)
		a4 := a3 + a2 - a1
		if a3*a4 < 0 {
			return true
		}
	}
	return false
}

func overlapEdges(pts []float32, edges []int32, nedges, s1, t1 int) bool {
	for i := 0; i < nedges; i++ {
		s0 := int(edges[i*4])
		t0 := int(edges[i*4+1])
		if s0 == s1 || s0 == t1 || t0 == s1 || t0 == t1 {
			continue
		}
		if overlapSegSeg2d(pts[s0*3:], pts[t0*3:], pts[s1*3:], pts[t1*3:]) {
			return true
		}
	}
	return false
}

func completeFacet(pts []float32, npts int, edges []int32, nedges *int, maxEdges int, nfaces *int, e int) {
	const eps = 1e-5

	edge := edges[e*4:]

	var s, t int
	if edge[2] == evUndef {
		s, t = int(edge[0]), int(edge[1])
	} else if edge[3] == evUndef {
		s, t = int(edge[1]), int(edge[0])
	} else {
		// Edge already completed.
		return
	}

	// Find the best point on the left of the edge.
	pt := npts
	c := []float32{0, 0, 0}
	var r float32 = -1
	for u := 0; u < npts; u++ {
		if u == s || u == t {
			continue
		}
		if vcross2(pts[s*3:], pts[t*3:], pts[u*3:]) <= eps {
			continue
		}
		if r < 0 {
			pt = u
			r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c)
			continue
		}
		d := vdist2(c, pts[u*3:])
		const tol = 0.001
		if d > r*(1+tol) {
			// Outside current circumcircle.
			continue
		}
		if d < r*(1-tol) {
			pt = u
			r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c)
			continue
		}
		// Inside epsilon circumcircle, do extra tests to make sure the
		// edge is valid.
		if overlapEdges(pts, edges, *nedges, s, u) || overlapEdges(pts, edges, *nedges, t, u) {
			continue
		}
		pt = u
		r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c)
	}

	if pt < npts {
		updateLeftFace(edges[e*4:], s, t, *nfaces)
		if ee := findEdge(edges, *nedges, pt, s); ee == evUndef {
			addEdge(edges, nedges, maxEdges, pt, s, *nfaces, evUndef)
		} else {
			updateLeftFace(edges[ee*4:], pt, s, *nfaces)
		}
		if ee := findEdge(edges, *nedges, t, pt); ee == evUndef {
			addEdge(edges, nedges, maxEdges, t, pt, *nfaces, evUndef)
		} else {
			updateLeftFace(edges[ee*4:], t, pt, *nfaces)
		}
		*nfaces++
	} else {
		updateLeftFace(edges[e*4:], s, t, evHull)
	}
}

func delaunayHull(npts int, pts []float32, nhull int, hull []int) (tris []int32) {
	nfaces := 0
	nedges := 0
	maxEdges := npts * 10
	edges := make([]int32, maxEdges*4)

	for i, j := 0, nhull-1; i < nhull; j, i = i, i+1 {
		addEdge(edges, &nedges, maxEdges, hull[j], hull[i], evHull, evUndef)
	}

	for currentEdge := 0; currentEdge < nedges; currentEdge++ {
		if edges[currentEdge*4+2] == evUndef {
			completeFacet(pts, npts, edges, &nedges, maxEdges, &nfaces, currentEdge)
		}
		if edges[currentEdge*4+3] == evUndef {
			completeFacet(pts, npts, edges, &nedges, maxEdges, &nfaces, currentEdge)
		}
	}

	tris = make([]int32, nfaces*4)
	for i := range tris {
		tris[i] = -1
	}
	for i := 0; i < nedges; i++ {
		e := edges[i*4:]
		if e[3] >= 0 {
			// Left face.
			t := tris[e[3]*4:]
			if t[0] == -1 {
				t[0] = e[0]
				t[1] = e[1]
			} else if t[0] == e[1] {
				t[2] = e[0]
			} else if t[1] == e[0] {
				t[2] = e[1]
			}
		}
		if e[2] >= 0 {
			// Right face.
			t := tris[e[2]*4:]
			if t[0] == -1 {
				t[0] = e[1]
				t[1] = e[0]
			} else if t[0] == e[0] {
				t[2] = e[1]
			} else if t[1] == e[1] {
				t[2] = e[0]
			}
		}
	}
	for i := 0; i < len(tris)/4; i++ {
		t := tris[i*4:]
		if t[0] < 0 || t[1] < 0 || t[2] < 0 {
			n := len(tris)/4 - 1
			copy(t[:4], tris[n*4:])
			tris = tris[:n*4]
			i--
		}
	}
	return tris
}

// polyMinExtent returns the shortest distance across the polygon, used
// to detect slivers that should not receive interior samples.
func polyMinExtent(verts []float32, nverts int) float32 {
	minDist := float32(math.MaxFloat32)
	for i := 0; i < nverts; i++ {
		ni := (i + 1) % nverts
		p1 := verts[i*3:]
		p2 := verts[ni*3:]
		var maxEdgeDist float32
		for j := 0; j < nverts; j++ {
			if j == i || j == ni {
				continue
			}
			d := distancePtSeg2d(verts[j*3:], p1, p2)
			maxEdgeDist = max(maxEdgeDist, d)
		}
		minDist = min(minDist, maxEdgeDist)
	}
	return float32(math.Sqrt(float64(minDist)))
}

func triangulateHull(verts []float32, nhull int, hull []int, nin int) (tris []int32) {
	start, left, right := 0, 1, nhull-1

	// Start from the ear with the shortest perimeter. Only original
	// vertices can be ear centres.
	dmin := float32(math.MaxFloat32)
	for i := 0; i < nhull; i++ {
		if hull[i] >= nin {
			continue
		}
		pi := prevIndex(i, nhull)
		ni := nextIndex(i, nhull)
		pv := verts[hull[pi]*3:]
		cv := verts[hull[i]*3:]
		nv := verts[hull[ni]*3:]
		d := vdist2(pv, cv) + vdist2(cv, nv) + vdist2(nv, pv)
		if d < dmin {
			start = i
			left = ni
			right = pi
			dmin = d
		}
	}

	tris = append(tris, int32(hull[start]), int32(hull[left]), int32(hull[right]), 0)

	// Triangulate the rest toward the shorter perimeter side.
	for nextIndex(left, nhull) != right {
		nleft := nextIndex(left, nhull)
		nright := prevIndex(right, nhull)

		cvleft := verts[hull[left]*3:]
		nvleft := verts[hull[nleft]*3:]
		cvright := verts[hull[right]*3:]
		nvright := verts[hull[nright]*3:]
		dleft := vdist2(cvleft, nvleft) + vdist2(nvleft, cvright)
		dright := vdist2(cvright, nvright) + vdist2(cvleft, nvright)

		if dleft < dright {
			tris = append(tris, int32(hull[left]), int32(hull[nleft]), int32(hull[right]), 0)
			left = nleft
		} else {
			tris = append(tris, int32(hull[left]), int32(hull[nright]), int32(hull[right]), 0)
			right = nright
		}
	}
	return tris
}

// buildPolyDetail tessellates one polygon: outline samples keep heights
// seamless across polygon boundaries, then interior samples are inserted
// greedily until the surface error drops below sampleMaxError.
func buildPolyDetail(in []float32, nin int, sampleDist, sampleMaxError float32, heightSearchRadius int, chf *CompactHeightfield, hp *heightPatch, verts []float32) (nverts int, tris []int32) {
	var edge [(detailMaxVertsPerEdge + 1) * 3]float32
	var hull [detailMaxVerts]int
	nhull := 0

	nverts = nin
	copy(verts, in[:nin*3])

	cs := chf.Cs
	ics := 1 / cs

	minExtent := polyMinExtent(verts, nverts)

	// Tessellate the outline.
	if sampleDist > 0 {
		for i, j := 0, nin-1; i < nin; j, i = i, i+1 {
			vj := in[j*3:]
			vi := in[i*3:]
			swapped := false
			// Make sure the segments are always handled in the same
			// order so matching edges of neighbouring polygons produce
			// identical samples.
			if abs(vj[0]-vi[0]) < 1e-6 {
				if vj[2] > vi[2] {
					vj, vi = vi, vj
					swapped = true
				}
			} else if vj[0] > vi[0] {
				vj, vi = vi, vj
				swapped = true
			}

			dx := vi[0] - vj[0]
			dy := vi[1] - vj[1]
			dz := vi[2] - vj[2]
			d := float32(math.Sqrt(float64(dx*dx + dz*dz)))
			nn := 1 + int(math.Floor(float64(d/sampleDist)))
			if nn >= detailMaxVertsPerEdge {
				nn = detailMaxVertsPerEdge - 1
			}
			if nverts+nn >= detailMaxVerts {
				nn = detailMaxVerts - 1 - nverts
			}

			for k := 0; k <= nn; k++ {
				u := float32(k) / float32(nn)
				pos := edge[k*3:]
				pos[0] = vj[0] + dx*u
				pos[1] = vj[1] + dy*u
				pos[2] = vj[2] + dz*u
				pos[1] = float32(getHeight(pos[0], pos[1], pos[2], cs, ics, chf.Ch, heightSearchRadius, hp)) * chf.Ch
			}

			// Simplify the edge samples.
			var idx [detailMaxVertsPerEdge]int
			idx[0] = 0
			idx[1] = nn
			nidx := 2
			for k := 0; k < nidx-1; {
				a := idx[k]
				b := idx[k+1]
				va := edge[a*3:]
				vb := edge[b*3:]
				var maxd float32
				maxi := -1
				for m := a + 1; m < b; m++ {
					dev := distancePtSeg(edge[m*3:], va, vb)
					if dev > maxd {
						maxd = dev
						maxi = m
					}
				}
				if maxi != -1 && maxd > sqr(sampleMaxError) {
					copy(idx[k+2:nidx+1], idx[k+1:nidx])
					idx[k+1] = maxi
					nidx++
				} else {
					k++
				}
			}

			hull[nhull] = j
			nhull++
			if swapped {
				for k := nidx - 2; k > 0; k-- {
					copy(verts[nverts*3:], edge[idx[k]*3:idx[k]*3+3])
					hull[nhull] = nverts
					nhull++
					nverts++
				}
			} else {
				for k := 1; k < nidx-1; k++ {
					copy(verts[nverts*3:], edge[idx[k]*3:idx[k]*3+3])
					hull[nhull] = nverts
					nhull++
					nverts++
				}
			}
		}
	}

	// Slivers get no interior samples.
	if minExtent < sampleDist*2 {
		return nverts, triangulateHull(verts, nhull, hull[:], nin)
	}

	tris = triangulateHull(verts, nhull, hull[:], nin)
	if len(tris) == 0 {
		return nverts, tris
	}

	if sampleDist > 0 {
		// Create interior sample locations on a grid.
		var bmin, bmax [3]float32
		copy(bmin[:], in[:3])
		copy(bmax[:], in[:3])
		for i := 1; i < nin; i++ {
			for c := 0; c < 3; c++ {
				bmin[c] = min(bmin[c], in[i*3+c])
				bmax[c] = max(bmax[c], in[i*3+c])
			}
		}
		x0 := int(math.Floor(float64(bmin[0] / sampleDist)))
		x1 := int(math.Ceil(float64(bmax[0] / sampleDist)))
		z0 := int(math.Floor(float64(bmin[2] / sampleDist)))
		z1 := int(math.Ceil(float64(bmax[2] / sampleDist)))

		var samples []int32
		for z := z0; z < z1; z++ {
			for x := x0; x < x1; x++ {
				pt := []float32{float32(x) * sampleDist, (bmax[1] + bmin[1]) * 0.5, float32(z) * sampleDist}
				// Skip samples too close to the edges.
				if distToPoly(nin, in, pt) > -sampleDist/2 {
					continue
				}
				y := getHeight(pt[0], pt[1], pt[2], cs, ics, chf.Ch, heightSearchRadius, hp)
				samples = append(samples, int32(x), int32(y), int32(z), 0)
			}
		}

		// Add the samples starting from the one with the largest error.
		nsamples := len(samples) / 4
		for iter := 0; iter < nsamples; iter++ {
			if nverts >= detailMaxVerts {
				break
			}

			var bestpt [3]float32
			var bestd float32
			besti := -1
			for i := 0; i < nsamples; i++ {
				s := samples[i*4:]
				if s[3] != 0 {
					continue
				}
				// Jitter the sample to avoid degenerate triangulations
				// from the symmetric grid.
				pt := []float32{
					float32(s[0])*sampleDist + getJitterX(i)*cs*0.1,
					float32(s[1]) * chf.Ch,
					float32(s[2])*sampleDist + getJitterY(i)*cs*0.1,
				}
				d := distToTriMesh(pt, verts, tris, len(tris)/4)
				if d < 0 {
					continue
				}
				if d > bestd {
					bestd = d
					besti = i
					copy(bestpt[:], pt)
				}
			}
			if besti == -1 || bestd <= sampleMaxError {
				break
			}
			samples[besti*4+3] = 1

			copy(verts[nverts*3:], bestpt[:])
			nverts++

			// Full rebuild keeps the triangulation Delaunay.
			tris = delaunayHull(nverts, verts, nhull, hull[:])
		}
	}

	if len(tris)/4 > detailMaxTris {
		tris = tris[:detailMaxTris*4]
	}
	return nverts, tris
}

func getDirForOffset(x, z int) int {
	dirs := [5]int{3, 0, -1, 2, 1}
	return dirs[((z+1)<<1)+x]
}

func push3(queue []int, v1, v2, v3 int) []int {
	return append(queue, v1, v2, v3)
}

func seedArrayWithPolyCenter(chf *CompactHeightfield, poly []uint16, npoly int, verts []uint16, bs int, hp *heightPatch, queue []int) []int {
	// Reads of the compact heightfield are offset by the border size
	// since it was already removed from the polymesh vertices.
	offset := [9 * 2]int{0, 0, -1, -1, 0, -1, 1, -1, 1, 0, 1, 1, 0, 1, -1, 1, -1, 0}

	// Find the cell closest to a polygon vertex.
	startCellX, startCellY, startSpanIndex := 0, 0, -1
	dmin := unsetHeight
	for j := 0; j < npoly && dmin > 0; j++ {
		for k := 0; k < 9 && dmin > 0; k++ {
			ax := int(verts[poly[j]*3]) + offset[k*2]
			ay := int(verts[poly[j]*3+1])
			az := int(verts[poly[j]*3+2]) + offset[k*2+1]
			if ax < hp.xmin || ax >= hp.xmin+hp.width || az < hp.ymin || az >= hp.ymin+hp.height {
				continue
			}
			c := chf.Cells[(ax+bs)+(az+bs)*chf.Width]
			for i := c.Index; i < c.Index+c.Count && dmin > 0; i++ {
				s := &chf.Spans[i]
				d := abs(ay - s.Y)
				if d < dmin {
					startCellX = ax
					startCellY = az
					startSpanIndex = i
					dmin = d
				}
			}
		}
	}
	if startSpanIndex == -1 {
		return queue[:0]
	}

	// Polygon centre.
	pcx, pcy := 0, 0
	for j := 0; j < npoly; j++ {
		pcx += int(verts[poly[j]*3])
		pcy += int(verts[poly[j]*3+2])
	}
	pcx /= npoly
	pcy /= npoly

	// DFS toward the centre, preferring the direct direction.
	queue = queue[:0]
	queue = push3(queue, startCellX, startCellY, startSpanIndex)
	dirs := [4]int{0, 1, 2, 3}
	for i := range hp.data {
		hp.data[i] = 0
	}
	cx, cy, ci := -1, -1, -1
	for {
		if len(queue) < 3 {
			break
		}
		ci = queue[len(queue)-1]
		cy = queue[len(queue)-2]
		cx = queue[len(queue)-3]
		queue = queue[:len(queue)-3]

		if cx == pcx && cy == pcy {
			break
		}

		var directDir int
		if cx == pcx {
			dz := -1
			if pcy > cy {
				dz = 1
			}
			directDir = getDirForOffset(0, dz)
		} else {
			dx := -1
			if pcx > cx {
				dx = 1
			}
			directDir = getDirForOffset(dx, 0)
		}

		// Push the direct dir last so it is popped first.
		dirs[directDir], dirs[3] = dirs[3], dirs[directDir]

		cs := &chf.Spans[ci]
		for i := 0; i < 4; i++ {
			dir := dirs[i]
			if cs.Con(dir) == notConnected {
				continue
			}
			newX := cx + dirOffsetX[dir]
			newY := cy + dirOffsetZ[dir]
			hpx := newX - hp.xmin
			hpy := newY - hp.ymin
			if hpx < 0 || hpx >= hp.width || hpy < 0 || hpy >= hp.height {
				continue
			}
			if hp.data[hpx+hpy*hp.width] != 0 {
				continue
			}
			hp.data[hpx+hpy*hp.width] = 1
			queue = push3(queue, newX, newY, chf.Cells[(newX+bs)+(newY+bs)*chf.Width].Index+cs.Con(dir))
		}

		dirs[directDir], dirs[3] = dirs[3], dirs[directDir]
	}

	// Seed the flood fill with the centre span; the queue coordinates
	// keep their border offsets.
	queue = queue[:0]
	queue = push3(queue, cx+bs, cy+bs, ci)
	for i := range hp.data {
		hp.data[i] = unsetHeight
	}
	cs := &chf.Spans[ci]
	hp.data[cx-hp.xmin+(cy-hp.ymin)*hp.width] = uint16(cs.Y)
	return queue
}

func getHeightData(chf *CompactHeightfield, poly []uint16, npoly int, verts []uint16, bs int, hp *heightPatch, region uint16) {
	queue := make([]int, 0, 512)
	for i := range hp.data {
		hp.data[i] = unsetHeight
	}

	empty := true

	// Copy the height from spans that were used to build the region of
	// the polygon. Border spans of the region seed the flood fill.
	if region != multipleRegs {
		for hy := 0; hy < hp.height; hy++ {
			y := hp.ymin + hy + bs
			for hx := 0; hx < hp.width; hx++ {
				x := hp.xmin + hx + bs
				c := chf.Cells[x+y*chf.Width]
				for i := c.Index; i < c.Index+c.Count; i++ {
					s := &chf.Spans[i]
					if s.Reg != int(region) {
						continue
					}
					hp.data[hx+hy*hp.width] = uint16(s.Y)
					empty = false

					border := false
					for dir := 0; dir < 4; dir++ {
						if s.Con(dir) == notConnected {
							continue
						}
						ax := x + dirOffsetX[dir]
						az := y + dirOffsetZ[dir]
						ai := chf.Cells[ax+az*chf.Width].Index + s.Con(dir)
						if chf.Spans[ai].Reg != int(region) {
							border = true
							break
						}
					}
					if border {
						queue = push3(queue, x, y, i)
					}
					break
				}
			}
		}
	}

	// A polygon built from removed-vertex triangles can span multiple
	// regions; seed from its centre instead.
	if empty {
		queue = seedArrayWithPolyCenter(chf, poly, npoly, verts, bs, hp, queue)
	}

	// BFS outward from the seeds to fill cells not covered by the
	// region.
	const retractSize = 256
	head := 0
	for head*3 < len(queue) {
		cx := queue[head*3]
		cy := queue[head*3+1]
		ci := queue[head*3+2]
		head++
		if head >= retractSize {
			head = 0
			queue = append(queue[:0], queue[retractSize*3:]...)
		}

		cs := &chf.Spans[ci]
		for dir := 0; dir < 4; dir++ {
			if cs.Con(dir) == notConnected {
				continue
			}
			ax := cx + dirOffsetX[dir]
			az := cy + dirOffsetZ[dir]
			hx := ax - hp.xmin - bs
			hy := az - hp.ymin - bs
			if hx < 0 || hx >= hp.width || hy < 0 || hy >= hp.height {
				continue
			}
			if hp.data[hx+hy*hp.width] != unsetHeight {
				continue
			}
			ai := chf.Cells[ax+az*chf.Width].Index + cs.Con(dir)
			hp.data[hx+hy*hp.width] = uint16(chf.Spans[ai].Y)
			queue = push3(queue, ax, az, ai)
		}
	}
}

func getEdgeFlags(va, vb, vpoly []float32, npoly int) uint8 {
	// An edge on the polygon boundary gets flagged so the runtime can
	// distinguish hull edges from interior detail edges.
	const thrSqr = 0.001 * 0.001
	for i, j := 0, npoly-1; i < npoly; j, i = i, i+1 {
		if distancePtSeg2d(va, vpoly[j*3:], vpoly[i*3:]) < thrSqr &&
			distancePtSeg2d(vb, vpoly[j*3:], vpoly[i*3:]) < thrSqr {
			return 1
		}
	}
	return 0
}

func getTriFlags(va, vb, vc, vpoly []float32, npoly int) uint8 {
	var flags uint8
	flags |= getEdgeFlags(va, vb, vpoly, npoly) << 0
	flags |= getEdgeFlags(vb, vc, vpoly, npoly) << 2
	flags |= getEdgeFlags(vc, va, vpoly, npoly) << 4
	return flags
}

// BuildPolyMeshDetail builds the per-polygon height detail meshes.
// sampleDist and sampleMaxError are in world units; sampleDist of 0
// disables height sampling entirely.
func BuildPolyMeshDetail(mesh *PolyMesh, chf *CompactHeightfield, sampleDist, sampleMaxError float32) (*PolyMeshDetail, error) {
	dmesh := &PolyMeshDetail{}
	if mesh.NVerts == 0 || mesh.NPolys == 0 {
		return dmesh, nil
	}

	nvp := mesh.Nvp
	cs := mesh.Cs
	ch := mesh.Ch
	orig := mesh.BMin
	borderSize := mesh.BorderSize
	heightSearchRadius := max(1, int(math.Ceil(float64(mesh.MaxEdgeError))))

	bounds := make([]int, mesh.NPolys*4)
	poly := make([]float32, nvp*3)

	// Find the bounding boxes of all polygons in cell coordinates.
	nPolyVerts := 0
	maxhw, maxhh := 0, 0
	for i := 0; i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		xmin, xmax := chf.Width, 0
		ymin, ymax := chf.Height, 0
		for j := 0; j < nvp; j++ {
			if p[j] == meshNullIdx {
				break
			}
			v := mesh.Verts[p[j]*3:]
			xmin = min(xmin, int(v[0]))
			xmax = max(xmax, int(v[0]))
			ymin = min(ymin, int(v[2]))
			ymax = max(ymax, int(v[2]))
			nPolyVerts++
		}
		xmin = max(0, xmin-1)
		xmax = min(chf.Width, xmax+1)
		ymin = max(0, ymin-1)
		ymax = min(chf.Height, ymax+1)
		bounds[i*4] = xmin
		bounds[i*4+1] = xmax
		bounds[i*4+2] = ymin
		bounds[i*4+3] = ymax
		if xmin >= xmax || ymin >= ymax {
			continue
		}
		maxhw = max(maxhw, xmax-xmin)
		maxhh = max(maxhh, ymax-ymin)
	}

	hp := &heightPatch{data: make([]uint16, maxhw*maxhh)}
	tmpVerts := make([]float32, detailMaxVerts*3)

	dmesh.NMeshes = mesh.NPolys
	dmesh.Meshes = make([]uint32, dmesh.NMeshes*4)

	vcap := nPolyVerts + nPolyVerts/2
	tcap := vcap * 2
	dmesh.Verts = make([]float32, 0, vcap*3)
	dmesh.Tris = make([]uint8, 0, tcap*4)

	for i := 0; i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]

		// Store polygon vertices for processing.
		npoly := 0
		for j := 0; j < nvp; j++ {
			if p[j] == meshNullIdx {
				break
			}
			v := mesh.Verts[p[j]*3:]
			poly[j*3] = float32(v[0]) * cs
			poly[j*3+1] = float32(v[1]) * ch
			poly[j*3+2] = float32(v[2]) * cs
			npoly++
		}

		// Get the height data from the area of the polygon.
		hp.xmin = bounds[i*4]
		hp.ymin = bounds[i*4+2]
		hp.width = bounds[i*4+1] - bounds[i*4]
		hp.height = bounds[i*4+3] - bounds[i*4+2]
		getHeightData(chf, p, npoly, mesh.Verts, borderSize, hp, mesh.Regs[i])

		nverts, tris := buildPolyDetail(poly, npoly, sampleDist, sampleMaxError, heightSearchRadius, chf, hp, tmpVerts)

		// Move detail verts to world space.
		for j := 0; j < nverts; j++ {
			tmpVerts[j*3] += orig[0]
			tmpVerts[j*3+1] += orig[1] + chf.Ch
			tmpVerts[j*3+2] += orig[2]
		}
		for j := 0; j < npoly; j++ {
			poly[j*3] += orig[0]
			poly[j*3+1] += orig[1]
			poly[j*3+2] += orig[2]
		}

		ntris := len(tris) / 4
		dmesh.Meshes[i*4] = uint32(dmesh.NVerts)
		dmesh.Meshes[i*4+1] = uint32(nverts)
		dmesh.Meshes[i*4+2] = uint32(dmesh.NTris)
		dmesh.Meshes[i*4+3] = uint32(ntris)

		dmesh.Verts = append(dmesh.Verts, tmpVerts[:nverts*3]...)
		dmesh.NVerts += nverts

		for j := 0; j < ntris; j++ {
			t := tris[j*4:]
			dmesh.Tris = append(dmesh.Tris,
				uint8(t[0]), uint8(t[1]), uint8(t[2]),
				getTriFlags(tmpVerts[t[0]*3:], tmpVerts[t[1]*3:], tmpVerts[t[2]*3:], poly, npoly))
		}
		dmesh.NTris += ntris
	}
	return dmesh, nil
}
