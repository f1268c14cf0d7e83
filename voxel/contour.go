package voxel

import "fmt"

// Contour vertex flags stored in the fourth component of each vertex.
const (
	contourRegMask   = 0xffff
	borderVertexFlag = 0x10000
	areaBorderFlag   = 0x20000
)

// Tessellation flags for BuildContours.
const (
	TessWallEdges = 1 << 0 // split outer edges longer than maxEdgeLen
	TessAreaEdges = 1 << 1 // split area boundary edges too
)

// Contour is one simplified region outline.
type Contour struct {
	Verts    []int32 // simplified vertices, 4 ints each: x,y,z,flags
	RawVerts []int32 // raw boundary vertices, 4 ints each
	Reg      int
	Area     uint8
}

// ContourSet holds the outlines of every region in a compact
// heightfield.
type ContourSet struct {
	Conts      []Contour
	BMin       [3]float32
	BMax       [3]float32
	Cs         float32
	Ch         float32
	Width      int
	Height     int
	BorderSize int
	MaxError   float32
}

// getCornerHeight returns the voxel height of the contour corner at the
// far end of edge dir, and reports whether the corner sits on a border
// vertex shared with an adjacent tile region.
func getCornerHeight(x, z, i, dir int, chf *CompactHeightfield) (height int, isBorderVertex bool) {
	w := chf.Width
	s := &chf.Spans[i]
	height = s.Y
	dirp := (dir + 1) & 3

	var regs [4]int
	regs[0] = chf.Spans[i].Reg | int(chf.Areas[i])<<16

	if s.Con(dir) != notConnected {
		ax := x + dirOffsetX[dir]
		az := z + dirOffsetZ[dir]
		ai := chf.Cells[ax+az*w].Index + s.Con(dir)
		as := &chf.Spans[ai]
		height = max(height, as.Y)
		regs[1] = as.Reg | int(chf.Areas[ai])<<16
		if as.Con(dirp) != notConnected {
			ax2 := ax + dirOffsetX[dirp]
			az2 := az + dirOffsetZ[dirp]
			ai2 := chf.Cells[ax2+az2*w].Index + as.Con(dirp)
			as2 := &chf.Spans[ai2]
			height = max(height, as2.Y)
			regs[2] = as2.Reg | int(chf.Areas[ai2])<<16
		}
	}
	if s.Con(dirp) != notConnected {
		ax := x + dirOffsetX[dirp]
		az := z + dirOffsetZ[dirp]
		ai := chf.Cells[ax+az*w].Index + s.Con(dirp)
		as := &chf.Spans[ai]
		height = max(height, as.Y)
		regs[3] = as.Reg | int(chf.Areas[ai])<<16
		if as.Con(dir) != notConnected {
			ax2 := ax + dirOffsetX[dir]
			az2 := az + dirOffsetZ[dir]
			ai2 := chf.Cells[ax2+az2*w].Index + as.Con(dir)
			as2 := &chf.Spans[ai2]
			height = max(height, as2.Y)
			regs[2] = as2.Reg | int(chf.Areas[ai2])<<16
		}
	}

	// The vertex is a border vertex when two of the surrounding regions
	// are the same tile border and the other two are interior regions of
	// the same area.
	for j := 0; j < 4; j++ {
		a := j
		b := (j + 1) & 3
		c := (j + 2) & 3
		d := (j + 3) & 3

		twoSameExts := regs[a]&regs[b]&borderReg != 0 && regs[a] == regs[b]
		twoInts := (regs[c]|regs[d])&borderReg == 0
		intsSameArea := regs[c]>>16 == regs[d]>>16
		noZeros := regs[a] != 0 && regs[b] != 0 && regs[c] != 0 && regs[d] != 0
		if twoSameExts && twoInts && intsSameArea && noZeros {
			isBorderVertex = true
			break
		}
	}
	return height, isBorderVertex
}

// walkBoundary traces the raw boundary of the region containing span i,
// clearing visited edge flags as it goes and collecting one vertex per
// boundary edge.
func walkBoundary(x, z, i, dir int, chf *CompactHeightfield, flags []uint8, points *[]int32) {
	startDir := dir
	starti := i
	area := chf.Areas[i]
	w := chf.Width

	for iter := 0; iter < 40000; iter++ {
		if flags[i]&(1<<uint(dir)) != 0 {
			isAreaBorder := false
			px := x
			py, isBorderVertex := getCornerHeight(x, z, i, dir, chf)
			pz := z
			switch dir {
			case 0:
				pz++
			case 1:
				px++
				pz++
			case 2:
				px++
			}
			r := 0
			s := &chf.Spans[i]
			if s.Con(dir) != notConnected {
				ax := x + dirOffsetX[dir]
				az := z + dirOffsetZ[dir]
				ai := chf.Cells[ax+az*w].Index + s.Con(dir)
				r = chf.Spans[ai].Reg
				if area != chf.Areas[ai] {
					isAreaBorder = true
				}
			}
			if isBorderVertex {
				r |= borderVertexFlag
			}
			if isAreaBorder {
				r |= areaBorderFlag
			}
			*points = append(*points, int32(px), int32(py), int32(pz), int32(r))

			flags[i] &^= 1 << uint(dir)
			dir = (dir + 1) & 3 // rotate CW
		} else {
			ni := -1
			nx := x + dirOffsetX[dir]
			nz := z + dirOffsetZ[dir]
			s := &chf.Spans[i]
			if s.Con(dir) != notConnected {
				ni = chf.Cells[nx+nz*w].Index + s.Con(dir)
			}
			if ni == -1 {
				// Should not happen.
				return
			}
			x = nx
			z = nz
			i = ni
			dir = (dir + 3) & 3 // rotate CCW
		}

		if starti == i && startDir == dir {
			break
		}
	}
}

func distancePtSeg2D(x, z, px, pz, qx, qz int) float32 {
	pqx := float32(qx - px)
	pqz := float32(qz - pz)
	dx := float32(x - px)
	dz := float32(z - pz)
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = clamp(t, 0, 1)

	dx = float32(px) + t*pqx - float32(x)
	dz = float32(pz) + t*pqz - float32(z)
	return dx*dx + dz*dz
}

// simplifyContour reduces the raw boundary to the significant corners,
// keeping the deviation from the raw outline within maxError and
// splitting long edges per the tessellation flags.
func simplifyContour(points []int32, maxError float32, maxEdgeLen int, buildFlags int) []int32 {
	var simplified []int32

	// Keep every point where the neighbouring region changes; a contour
	// with no such point is a closed island outline and gets seeded with
	// its lower-left and upper-right extremes.
	hasConnections := false
	for i := 0; i < len(points); i += 4 {
		if points[i+3]&contourRegMask != 0 {
			hasConnections = true
			break
		}
	}

	pn := len(points) / 4
	if hasConnections {
		for i := 0; i < pn; i++ {
			ii := (i + 1) % pn
			differentRegs := points[i*4+3]&contourRegMask != points[ii*4+3]&contourRegMask
			areaBorders := points[i*4+3]&areaBorderFlag != points[ii*4+3]&areaBorderFlag
			if differentRegs || areaBorders {
				simplified = append(simplified, points[i*4], points[i*4+1], points[i*4+2], int32(i))
			}
		}
	}
	if len(simplified) == 0 {
		llx, llz, lli := points[0], points[2], 0
		urx, urz, uri := points[0], points[2], 0
		for i := 0; i < pn; i++ {
			x := points[i*4]
			z := points[i*4+2]
			if x < llx || (x == llx && z < llz) {
				llx, llz, lli = x, z, i
			}
			if x > urx || (x == urx && z > urz) {
				urx, urz, uri = x, z, i
			}
		}
		simplified = append(simplified, llx, points[lli*4+1], llz, int32(lli))
		simplified = append(simplified, urx, points[uri*4+1], urz, int32(uri))
	}

	// Add points until all raw points are within maxError of the
	// simplified shape.
	for i := 0; i < len(simplified)/4; {
		ii := (i + 1) % (len(simplified) / 4)

		ax := int(simplified[i*4])
		az := int(simplified[i*4+2])
		ai := int(simplified[i*4+3])
		bx := int(simplified[ii*4])
		bz := int(simplified[ii*4+2])
		bi := int(simplified[ii*4+3])

		var maxd float32
		maxi := -1
		var ci, cinc, endi int
		// Traverse the segment in lexicographic order so the result is
		// the same regardless of winding.
		if bx > ax || (bx == ax && bz > az) {
			cinc = 1
			ci = (ai + cinc) % pn
			endi = bi
		} else {
			cinc = pn - 1
			ci = (bi + cinc) % pn
			endi = ai
			ax, bx = bx, ax
			az, bz = bz, az
		}

		// Tessellate only outer edges or edges between areas.
		if points[ci*4+3]&contourRegMask == 0 || points[ci*4+3]&areaBorderFlag != 0 {
			for ci != endi {
				d := distancePtSeg2D(int(points[ci*4]), int(points[ci*4+2]), ax, az, bx, bz)
				if d > maxd {
					maxd = d
					maxi = ci
				}
				ci = (ci + cinc) % pn
			}
		}

		if maxi != -1 && maxd > maxError*maxError {
			simplified = insertPoint(simplified, i+1, points[maxi*4], points[maxi*4+1], points[maxi*4+2], int32(maxi))
		} else {
			i++
		}
	}

	// Split long edges.
	if maxEdgeLen > 0 && buildFlags&(TessWallEdges|TessAreaEdges) != 0 {
		for i := 0; i < len(simplified)/4; {
			ii := (i + 1) % (len(simplified) / 4)

			ax := int(simplified[i*4])
			az := int(simplified[i*4+2])
			ai := int(simplified[i*4+3])
			bx := int(simplified[ii*4])
			bz := int(simplified[ii*4+2])
			bi := int(simplified[ii*4+3])

			maxi := -1
			ci := (ai + 1) % pn

			tess := false
			if buildFlags&TessWallEdges != 0 && points[ci*4+3]&contourRegMask == 0 {
				tess = true
			}
			if buildFlags&TessAreaEdges != 0 && points[ci*4+3]&areaBorderFlag != 0 {
				tess = true
			}
			if tess {
				dx := bx - ax
				dz := bz - az
				if dx*dx+dz*dz > maxEdgeLen*maxEdgeLen {
					// Round the split point based on the segment
					// direction so matching edges of neighbouring
					// regions split at the same vertex.
					n := bi - ai
					if bi < ai {
						n = bi + pn - ai
					}
					if n > 1 {
						if bx > ax || (bx == ax && bz > az) {
							maxi = (ai + n/2) % pn
						} else {
							maxi = (ai + (n+1)/2) % pn
						}
					}
				}
			}

			if maxi != -1 {
				simplified = insertPoint(simplified, i+1, points[maxi*4], points[maxi*4+1], points[maxi*4+2], int32(maxi))
			} else {
				i++
			}
		}
	}

	// Rewrite the stored raw indices into edge flags: the neighbour
	// region comes from the raw point after the corner, the border
	// vertex flag from the corner itself.
	for i := 0; i < len(simplified)/4; i++ {
		ai := (int(simplified[i*4+3]) + 1) % pn
		bi := int(simplified[i*4+3])
		simplified[i*4+3] = points[ai*4+3]&(contourRegMask|areaBorderFlag) | points[bi*4+3]&borderVertexFlag
	}
	return simplified
}

func insertPoint(verts []int32, idx int, x, y, z, f int32) []int32 {
	verts = append(verts, 0, 0, 0, 0)
	copy(verts[(idx+1)*4:], verts[idx*4:])
	verts[idx*4] = x
	verts[idx*4+1] = y
	verts[idx*4+2] = z
	verts[idx*4+3] = f
	return verts
}

func removeDegenerateSegments(simplified []int32) []int32 {
	// Remove adjacent vertices that are equal on the xz-plane.
	for i := 0; i < len(simplified)/4; {
		ni := (i + 1) % (len(simplified) / 4)
		if simplified[i*4] == simplified[ni*4] && simplified[i*4+2] == simplified[ni*4+2] {
			simplified = append(simplified[:i*4], simplified[(i+1)*4:]...)
		} else {
			i++
		}
	}
	return simplified
}

func calcAreaOfPolygon2D(verts []int32) int {
	area := 0
	n := len(verts) / 4
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi := verts[i*4:]
		vj := verts[j*4:]
		area += int(vi[0]*vj[2] - vj[0]*vi[2])
	}
	return (area + 1) / 2
}

// BuildContours traces and simplifies the outline of every region in the
// compact heightfield. maxError is the maximum deviation from the raw
// boundary in world units; maxEdgeLen is the maximum simplified edge
// length in voxels (0 disables splitting).
func BuildContours(chf *CompactHeightfield, maxError float32, maxEdgeLen int, buildFlags int) (*ContourSet, error) {
	w := chf.Width
	h := chf.Height
	borderSize := chf.BorderSize

	cset := &ContourSet{
		BMin:       chf.BMin,
		BMax:       chf.BMax,
		Cs:         chf.Cs,
		Ch:         chf.Ch,
		Width:      w - borderSize*2,
		Height:     h - borderSize*2,
		BorderSize: borderSize,
		MaxError:   maxError,
	}
	if borderSize > 0 {
		pad := float32(borderSize) * chf.Cs
		cset.BMin[0] += pad
		cset.BMin[2] += pad
		cset.BMax[0] -= pad
		cset.BMax[2] -= pad
	}

	// Mark region boundary edges on every span.
	flags := make([]uint8, chf.SpanCount)
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				if s.Reg == 0 || s.Reg&borderReg != 0 {
					continue
				}
				var res uint8
				for dir := 0; dir < 4; dir++ {
					r := 0
					if s.Con(dir) != notConnected {
						ax := x + dirOffsetX[dir]
						az := z + dirOffsetZ[dir]
						ai := chf.Cells[ax+az*w].Index + s.Con(dir)
						r = chf.Spans[ai].Reg
					}
					if r == s.Reg {
						res |= 1 << uint(dir)
					}
				}
				flags[i] = res ^ 0xf // flag non-connected edges
			}
		}
	}

	var points []int32
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if flags[i] == 0 || flags[i] == 0xf {
					flags[i] = 0
					continue
				}
				reg := chf.Spans[i].Reg
				if reg == 0 || reg&borderReg != 0 {
					continue
				}
				area := chf.Areas[i]

				dir := 0
				for flags[i]&(1<<uint(dir)) == 0 {
					dir++
				}

				points = points[:0]
				walkBoundary(x, z, i, dir, chf, flags, &points)
				if len(points) == 0 {
					continue
				}

				simplified := simplifyContour(points, maxError, maxEdgeLen, buildFlags)
				simplified = removeDegenerateSegments(simplified)

				if len(simplified)/4 < 3 {
					continue
				}

				cont := Contour{
					Verts:    make([]int32, len(simplified)),
					RawVerts: make([]int32, len(points)),
					Reg:      reg,
					Area:     area,
				}
				copy(cont.Verts, simplified)
				copy(cont.RawVerts, points)
				if borderSize > 0 {
					// Translate out of the padded bounding box.
					for j := 0; j < len(cont.Verts); j += 4 {
						cont.Verts[j] -= int32(borderSize)
						cont.Verts[j+2] -= int32(borderSize)
					}
					for j := 0; j < len(cont.RawVerts); j += 4 {
						cont.RawVerts[j] -= int32(borderSize)
						cont.RawVerts[j+2] -= int32(borderSize)
					}
				}
				cset.Conts = append(cset.Conts, cont)
			}
		}
	}

	// Merge holes (contours with negative winding) into the outline of
	// the region that contains them.
	if err := mergeRegionHoles(cset); err != nil {
		return nil, err
	}
	return cset, nil
}

type contourHole struct {
	contour          *Contour
	minx, minz, leftmost int
}

type contourRegion struct {
	outline *Contour
	holes   []contourHole
}

func mergeRegionHoles(cset *ContourSet) error {
	nholes := 0
	maxReg := 0
	for i := range cset.Conts {
		cont := &cset.Conts[i]
		if calcAreaOfPolygon2D(cont.Verts) < 0 {
			nholes++
		}
		maxReg = max(maxReg, cont.Reg)
	}
	if nholes == 0 {
		return nil
	}

	regions := make([]contourRegion, maxReg+1)
	for i := range cset.Conts {
		cont := &cset.Conts[i]
		if calcAreaOfPolygon2D(cont.Verts) > 0 {
			if regions[cont.Reg].outline != nil {
				return fmt.Errorf("voxel: region %d has multiple outlines", cont.Reg)
			}
			regions[cont.Reg].outline = cont
		} else {
			regions[cont.Reg].holes = append(regions[cont.Reg].holes, contourHole{contour: cont})
		}
	}

	for ri := range regions {
		reg := &regions[ri]
		if len(reg.holes) == 0 {
			continue
		}
		if reg.outline == nil {
			return fmt.Errorf("voxel: region %d has holes but no outline", ri)
		}
		mergeHolesIntoOutline(reg)
	}
	return nil
}

func findLeftMostVertex(cont *Contour) (minx, minz, leftmost int) {
	minx = int(cont.Verts[0])
	minz = int(cont.Verts[2])
	leftmost = 0
	for i := 1; i < len(cont.Verts)/4; i++ {
		x := int(cont.Verts[i*4])
		z := int(cont.Verts[i*4+2])
		if x < minx || (x == minx && z < minz) {
			minx = x
			minz = z
			leftmost = i
		}
	}
	return minx, minz, leftmost
}

func area2(a, b, c []int32) int32 {
	return (b[0]-a[0])*(c[2]-a[2]) - (c[0]-a[0])*(b[2]-a[2])
}

func xorb(x, y bool) bool { return x != y }

func left2(a, b, c []int32) bool   { return area2(a, b, c) < 0 }
func leftOn(a, b, c []int32) bool  { return area2(a, b, c) <= 0 }
func collinear(a, b, c []int32) bool { return area2(a, b, c) == 0 }

func intersectProp(a, b, c, d []int32) bool {
	if collinear(a, b, c) || collinear(a, b, d) || collinear(c, d, a) || collinear(c, d, b) {
		return false
	}
	return xorb(left2(a, b, c), left2(a, b, d)) && xorb(left2(c, d, a), left2(c, d, b))
}

func betweenSeg(a, b, c []int32) bool {
	if !collinear(a, b, c) {
		return false
	}
	if a[0] != b[0] {
		return (a[0] <= c[0] && c[0] <= b[0]) || (a[0] >= c[0] && c[0] >= b[0])
	}
	return (a[2] <= c[2] && c[2] <= b[2]) || (a[2] >= c[2] && c[2] >= b[2])
}

func intersectSeg(a, b, c, d []int32) bool {
	if intersectProp(a, b, c, d) {
		return true
	}
	return betweenSeg(a, b, c) || betweenSeg(a, b, d) || betweenSeg(c, d, a) || betweenSeg(c, d, b)
}

func intersectSegContour(d0, d1 []int32, i int, verts []int32) bool {
	n := len(verts) / 4
	for k := 0; k < n; k++ {
		k1 := (k + 1) % n
		if i == k || i == k1 {
			continue
		}
		p0 := verts[k*4:]
		p1 := verts[k1*4:]
		if (d0[0] == p0[0] && d0[2] == p0[2]) || (d1[0] == p0[0] && d1[2] == p0[2]) ||
			(d0[0] == p1[0] && d0[2] == p1[2]) || (d1[0] == p1[0] && d1[2] == p1[2]) {
			continue
		}
		if intersectSeg(d0, d1, p0, p1) {
			return true
		}
	}
	return false
}

func inConeVert(i int, verts []int32, pj []int32) bool {
	n := len(verts) / 4
	pi := verts[i*4:]
	pi1 := verts[((i+1)%n)*4:]
	pin1 := verts[((i+n-1)%n)*4:]

	if leftOn(pin1, pi, pi1) {
		return left2(pi, pj, pin1) && left2(pj, pi, pi1)
	}
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

func mergeContours(ca, cb *Contour, ia, ib int) {
	na := len(ca.Verts) / 4
	nb := len(cb.Verts) / 4
	verts := make([]int32, 0, (na+nb+2)*4)

	for i := 0; i <= na; i++ {
		src := ca.Verts[((ia+i)%na)*4:]
		verts = append(verts, src[0], src[1], src[2], src[3])
	}
	for i := 0; i <= nb; i++ {
		src := cb.Verts[((ib+i)%nb)*4:]
		verts = append(verts, src[0], src[1], src[2], src[3])
	}

	ca.Verts = verts
	cb.Verts = nil
}

// mergeHolesIntoOutline stitches each hole into the region outline at the
// closest mutually visible vertex pair, trying hole vertices in order of
// increasing distance until a non-intersecting diagonal is found.
func mergeHolesIntoOutline(reg *contourRegion) {
	for i := range reg.holes {
		h := &reg.holes[i]
		h.minx, h.minz, h.leftmost = findLeftMostVertex(h.contour)
	}
	// Merge left to right so earlier merges cannot occlude later ones.
	for i := 1; i < len(reg.holes); i++ {
		for j := i; j > 0; j-- {
			a, b := &reg.holes[j-1], &reg.holes[j]
			if b.minx < a.minx || (b.minx == a.minx && b.minz < a.minz) {
				*a, *b = *b, *a
			} else {
				break
			}
		}
	}

	for i := range reg.holes {
		hole := reg.holes[i].contour
		outline := reg.outline

		bestVertex := reg.holes[i].leftmost
		index := -1
		for iter := 0; iter < len(hole.Verts)/4; iter++ {
			// Find potential diagonals from the hole vertex to outline
			// vertices whose cone contains it, nearest first.
			type diag struct {
				vert int
				dist int32
			}
			var diags []diag
			corner := hole.Verts[bestVertex*4:]
			for j := 0; j < len(outline.Verts)/4; j++ {
				if inConeVert(j, outline.Verts, corner) {
					dx := outline.Verts[j*4] - corner[0]
					dz := outline.Verts[j*4+2] - corner[2]
					diags = append(diags, diag{j, dx*dx + dz*dz})
				}
			}
			for a := 1; a < len(diags); a++ {
				for b := a; b > 0 && diags[b].dist < diags[b-1].dist; b-- {
					diags[b], diags[b-1] = diags[b-1], diags[b]
				}
			}

			index = -1
			for j := range diags {
				pt := outline.Verts[diags[j].vert*4:]
				intersect := intersectSegContour(pt, corner, diags[j].vert, outline.Verts)
				for k := i; k < len(reg.holes) && !intersect; k++ {
					intersect = intersectSegContour(pt, corner, -1, reg.holes[k].contour.Verts)
				}
				if !intersect {
					index = diags[j].vert
					break
				}
			}
			if index != -1 {
				break
			}
			// All diagonals are blocked, retry from the next vertex.
			bestVertex = (bestVertex + 1) % (len(hole.Verts) / 4)
		}

		if index == -1 {
			continue
		}
		mergeContours(reg.outline, hole, index, bestVertex)
	}
}
