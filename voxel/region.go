package voxel

import "fmt"

// BuildDistanceField computes the distance-to-boundary field required by
// watershed partitioning and stores it on the compact heightfield. The
// raw two-pass chamfer distance is smoothed with a box blur.
func BuildDistanceField(chf *CompactHeightfield) error {
	src := make([]int, chf.SpanCount)
	dst := make([]int, chf.SpanCount)

	chf.MaxDistance = calculateDistanceField(chf, src)
	chf.Dist = boxBlur(chf, 1, src, dst)
	return nil
}

func calculateDistanceField(chf *CompactHeightfield, src []int) (maxDist int) {
	w := chf.Width
	h := chf.Height

	for i := range src {
		src[i] = maxHeight
	}

	// Mark boundary cells: any span missing a same-area neighbour.
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				area := chf.Areas[i]
				nc := 0
				for dir := 0; dir < 4; dir++ {
					if s.Con(dir) == notConnected {
						continue
					}
					ax := x + dirOffsetX[dir]
					az := z + dirOffsetZ[dir]
					ai := chf.Cells[ax+az*w].Index + s.Con(dir)
					if area == chf.Areas[ai] {
						nc++
					}
				}
				if nc != 4 {
					src[i] = 0
				}
			}
		}
	}

	// Pass 1.
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				chamfer(chf, src, s, i, x, z, 0, 3)
				chamfer(chf, src, s, i, x, z, 3, 2)
			}
		}
	}

	// Pass 2.
	for z := h - 1; z >= 0; z-- {
		for x := w - 1; x >= 0; x-- {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				chamfer(chf, src, s, i, x, z, 2, 1)
				chamfer(chf, src, s, i, x, z, 1, 0)
			}
		}
	}

	for i := 0; i < chf.SpanCount; i++ {
		maxDist = max(maxDist, src[i])
	}
	return maxDist
}

// chamfer relaxes span i against its cardinal neighbour in dir (cost 2)
// and the diagonal reached through dir then dir2 (cost 3).
func chamfer(chf *CompactHeightfield, src []int, s *CompactSpan, i, x, z, dir, dir2 int) {
	if s.Con(dir) == notConnected {
		return
	}
	w := chf.Width
	ax := x + dirOffsetX[dir]
	az := z + dirOffsetZ[dir]
	ai := chf.Cells[ax+az*w].Index + s.Con(dir)
	if src[ai]+2 < src[i] {
		src[i] = src[ai] + 2
	}
	as := &chf.Spans[ai]
	if as.Con(dir2) == notConnected {
		return
	}
	bx := ax + dirOffsetX[dir2]
	bz := az + dirOffsetZ[dir2]
	bi := chf.Cells[bx+bz*w].Index + as.Con(dir2)
	if src[bi]+3 < src[i] {
		src[i] = src[bi] + 3
	}
}

func boxBlur(chf *CompactHeightfield, thr int, src, dst []int) []int {
	w := chf.Width
	h := chf.Height
	thr *= 2

	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				cd := src[i]
				if cd <= thr {
					dst[i] = cd
					continue
				}
				d := cd
				for dir := 0; dir < 4; dir++ {
					if s.Con(dir) == notConnected {
						d += cd * 2
						continue
					}
					ax := x + dirOffsetX[dir]
					az := z + dirOffsetZ[dir]
					ai := chf.Cells[ax+az*w].Index + s.Con(dir)
					d += src[ai]

					as := &chf.Spans[ai]
					dir2 := (dir + 1) & 3
					if as.Con(dir2) == notConnected {
						d += cd
						continue
					}
					bx := ax + dirOffsetX[dir2]
					bz := az + dirOffsetZ[dir2]
					bi := chf.Cells[bx+bz*w].Index + as.Con(dir2)
					d += src[bi]
				}
				dst[i] = (d + 5) / 9
			}
		}
	}
	return dst
}

type levelStackEntry struct {
	x, z, index int
}

// floodRegion grows a new region from seed span i across connected
// same-area spans at or above the current water level. Returns false if
// the seed was swallowed by an existing region.
func floodRegion(x, z, i, level, r int, chf *CompactHeightfield, srcReg, srcDist []int, stack *[]levelStackEntry) bool {
	w := chf.Width
	area := chf.Areas[i]

	*stack = (*stack)[:0]
	*stack = append(*stack, levelStackEntry{x, z, i})
	srcReg[i] = r
	srcDist[i] = 0

	lev := 0
	if level >= 2 {
		lev = level - 2
	}
	count := 0

	for len(*stack) > 0 {
		back := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		cx, cz, ci := back.x, back.z, back.index
		cs := &chf.Spans[ci]

		// If any 8-connected neighbour already belongs to another
		// region, give this span up to it.
		ar := 0
		for dir := 0; dir < 4; dir++ {
			if cs.Con(dir) == notConnected {
				continue
			}
			ax := cx + dirOffsetX[dir]
			az := cz + dirOffsetZ[dir]
			ai := chf.Cells[ax+az*w].Index + cs.Con(dir)
			if chf.Areas[ai] != area {
				continue
			}
			nr := srcReg[ai]
			if nr&borderReg != 0 {
				continue
			}
			if nr != 0 && nr != r {
				ar = nr
				break
			}

			as := &chf.Spans[ai]
			dir2 := (dir + 1) & 3
			if as.Con(dir2) == notConnected {
				continue
			}
			bx := ax + dirOffsetX[dir2]
			bz := az + dirOffsetZ[dir2]
			bi := chf.Cells[bx+bz*w].Index + as.Con(dir2)
			if chf.Areas[bi] != area {
				continue
			}
			nr2 := srcReg[bi]
			if nr2 != 0 && nr2 != r {
				ar = nr2
				break
			}
		}
		if ar != 0 {
			srcReg[ci] = 0
			continue
		}
		count++

		for dir := 0; dir < 4; dir++ {
			if cs.Con(dir) == notConnected {
				continue
			}
			ax := cx + dirOffsetX[dir]
			az := cz + dirOffsetZ[dir]
			ai := chf.Cells[ax+az*w].Index + cs.Con(dir)
			if chf.Areas[ai] != area {
				continue
			}
			if chf.Dist[ai] >= lev && srcReg[ai] == 0 {
				srcReg[ai] = r
				srcDist[ai] = 0
				*stack = append(*stack, levelStackEntry{ax, az, ai})
			}
		}
	}
	return count > 0
}

type dirtyEntry struct {
	index    int
	region   int
	distance int
}

// expandRegions pushes existing regions outward into unassigned spans
// revealed at the current level. With fillStack it scans the whole field
// for candidates, otherwise it consumes the provided stack.
func expandRegions(maxIter, level int, chf *CompactHeightfield, srcReg, srcDist []int, stack *[]levelStackEntry, fillStack bool) {
	w := chf.Width
	h := chf.Height

	if fillStack {
		*stack = (*stack)[:0]
		for z := 0; z < h; z++ {
			for x := 0; x < w; x++ {
				c := chf.Cells[x+z*w]
				for i := c.Index; i < c.Index+c.Count; i++ {
					if chf.Dist[i] >= level && srcReg[i] == 0 && chf.Areas[i] != NullArea {
						*stack = append(*stack, levelStackEntry{x, z, i})
					}
				}
			}
		}
	} else {
		for j := range *stack {
			if srcReg[(*stack)[j].index] != 0 {
				(*stack)[j].index = -1
			}
		}
	}

	var dirty []dirtyEntry
	iter := 0
	for len(*stack) > 0 {
		failed := 0
		dirty = dirty[:0]

		for j := range *stack {
			x := (*stack)[j].x
			z := (*stack)[j].z
			i := (*stack)[j].index
			if i < 0 {
				failed++
				continue
			}

			r := srcReg[i]
			d2 := maxHeight
			area := chf.Areas[i]
			s := &chf.Spans[i]
			for dir := 0; dir < 4; dir++ {
				if s.Con(dir) == notConnected {
					continue
				}
				ax := x + dirOffsetX[dir]
				az := z + dirOffsetZ[dir]
				ai := chf.Cells[ax+az*w].Index + s.Con(dir)
				if chf.Areas[ai] != area {
					continue
				}
				if srcReg[ai] > 0 && srcReg[ai]&borderReg == 0 {
					if srcDist[ai]+2 < d2 {
						r = srcReg[ai]
						d2 = srcDist[ai] + 2
					}
				}
			}
			if r > 0 {
				(*stack)[j].index = -1
				dirty = append(dirty, dirtyEntry{i, r, d2})
			} else {
				failed++
			}
		}

		// Apply after the sweep so the pass reads a consistent state.
		for _, e := range dirty {
			srcReg[e.index] = e.region
			srcDist[e.index] = e.distance
		}

		if failed == len(*stack) {
			break
		}
		if level > 0 {
			iter++
			if iter >= maxIter {
				break
			}
		}
	}
}

func sortCellsByLevel(startLevel int, chf *CompactHeightfield, srcReg []int, stacks [][]levelStackEntry, logLevelsPerStack int) {
	w := chf.Width
	h := chf.Height
	startLevel >>= logLevelsPerStack

	for j := range stacks {
		stacks[j] = stacks[j][:0]
	}

	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if chf.Areas[i] == NullArea || srcReg[i] != 0 {
					continue
				}
				level := chf.Dist[i] >> logLevelsPerStack
				sID := startLevel - level
				if sID >= len(stacks) {
					continue
				}
				if sID < 0 {
					sID = 0
				}
				stacks[sID] = append(stacks[sID], levelStackEntry{x, z, i})
			}
		}
	}
}

func appendStacks(src []levelStackEntry, dst *[]levelStackEntry, srcReg []int) {
	for _, e := range src {
		if e.index < 0 || srcReg[e.index] != 0 {
			continue
		}
		*dst = append(*dst, e)
	}
}

// region is the bookkeeping record used while merging and filtering
// candidate regions.
type region struct {
	spanCount        int
	id               int
	areaType         uint8
	remap            bool
	visited          bool
	overlap          bool
	connectsToBorder bool
	ymin, ymax       int
	connections      []int
	floors           []int
}

func newRegion(id int) *region {
	return &region{id: id, ymin: maxHeight}
}

func (reg *region) removeAdjacentNeighbours() {
	for i := 0; i < len(reg.connections) && len(reg.connections) > 1; {
		ni := (i + 1) % len(reg.connections)
		if reg.connections[i] == reg.connections[ni] {
			reg.connections = append(reg.connections[:i], reg.connections[i+1:]...)
		} else {
			i++
		}
	}
}

func (reg *region) replaceNeighbour(oldID, newID int) {
	changed := false
	for i := range reg.connections {
		if reg.connections[i] == oldID {
			reg.connections[i] = newID
			changed = true
		}
	}
	for i := range reg.floors {
		if reg.floors[i] == oldID {
			reg.floors[i] = newID
		}
	}
	if changed {
		reg.removeAdjacentNeighbours()
	}
}

func (reg *region) addUniqueFloor(n int) {
	for _, f := range reg.floors {
		if f == n {
			return
		}
	}
	reg.floors = append(reg.floors, n)
}

func (reg *region) addUniqueConnection(n int) {
	for _, c := range reg.connections {
		if c == n {
			return
		}
	}
	reg.connections = append(reg.connections, n)
}

func (reg *region) connectedToBorder() bool {
	for _, c := range reg.connections {
		if c == 0 {
			return true
		}
	}
	return false
}

func canMergeWithRegion(rega, regb *region) bool {
	if rega.areaType != regb.areaType {
		return false
	}
	n := 0
	for _, c := range rega.connections {
		if c == regb.id {
			n++
		}
	}
	if n > 1 {
		return false
	}
	for _, f := range rega.floors {
		if f == regb.id {
			return false
		}
	}
	return true
}

func mergeRegionInto(rega, regb *region) bool {
	aid := rega.id
	bid := regb.id

	acon := make([]int, len(rega.connections))
	copy(acon, rega.connections)
	bcon := regb.connections

	insa := -1
	for i, c := range acon {
		if c == bid {
			insa = i
			break
		}
	}
	if insa == -1 {
		return false
	}
	insb := -1
	for i, c := range bcon {
		if c == aid {
			insb = i
			break
		}
	}
	if insb == -1 {
		return false
	}

	// Stitch the two connection rings together at the shared edge.
	rega.connections = rega.connections[:0]
	for i, n := 0, len(acon); i < n-1; i++ {
		rega.connections = append(rega.connections, acon[(insa+1+i)%n])
	}
	for i, n := 0, len(bcon); i < n-1; i++ {
		rega.connections = append(rega.connections, bcon[(insb+1+i)%n])
	}
	rega.removeAdjacentNeighbours()

	for _, f := range regb.floors {
		rega.addUniqueFloor(f)
	}
	rega.spanCount += regb.spanCount
	regb.spanCount = 0
	regb.connections = regb.connections[:0]
	return true
}

func isSolidEdge(chf *CompactHeightfield, srcReg []int, x, z, i, dir int) bool {
	s := &chf.Spans[i]
	r := 0
	if s.Con(dir) != notConnected {
		ax := x + dirOffsetX[dir]
		az := z + dirOffsetZ[dir]
		ai := chf.Cells[ax+az*chf.Width].Index + s.Con(dir)
		r = srcReg[ai]
	}
	return r != srcReg[i]
}

// regionWalkContour walks the boundary of a region and records the
// sequence of neighbouring region ids along it.
func regionWalkContour(x, z, i, dir int, chf *CompactHeightfield, srcReg []int, cont *[]int) {
	startDir := dir
	starti := i
	w := chf.Width

	ss := &chf.Spans[i]
	curReg := 0
	if ss.Con(dir) != notConnected {
		ax := x + dirOffsetX[dir]
		az := z + dirOffsetZ[dir]
		ai := chf.Cells[ax+az*w].Index + ss.Con(dir)
		curReg = srcReg[ai]
	}
	*cont = append(*cont, curReg)

	for iter := 0; iter < 40000; iter++ {
		s := &chf.Spans[i]

		if isSolidEdge(chf, srcReg, x, z, i, dir) {
			r := 0
			if s.Con(dir) != notConnected {
				ax := x + dirOffsetX[dir]
				az := z + dirOffsetZ[dir]
				ai := chf.Cells[ax+az*w].Index + s.Con(dir)
				r = srcReg[ai]
			}
			if r != curReg {
				curReg = r
				*cont = append(*cont, curReg)
			}
			dir = (dir + 1) & 3 // rotate CW
		} else {
			ni := -1
			nx := x + dirOffsetX[dir]
			nz := z + dirOffsetZ[dir]
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

	// Remove adjacent duplicates.
	if len(*cont) > 1 {
		for j := 0; j < len(*cont); {
			nj := (j + 1) % len(*cont)
			if (*cont)[j] == (*cont)[nj] {
				*cont = append((*cont)[:j], (*cont)[j+1:]...)
			} else {
				j++
			}
		}
	}
}

// mergeAndFilterRegions discards connected region groups smaller than
// minRegionArea, merges regions up to mergeRegionSize into neighbours,
// and compresses region ids to a dense range. Returns the ids of regions
// found to overlap vertically.
func mergeAndFilterRegions(minRegionArea, mergeRegionSize int, maxRegionID *int, chf *CompactHeightfield, srcReg []int) (overlaps []int, err error) {
	w := chf.Width
	h := chf.Height

	nreg := *maxRegionID + 1
	regions := make([]*region, nreg)
	for i := range regions {
		regions[i] = newRegion(i)
	}

	// Find region edges and the connections around each contour.
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				r := srcReg[i]
				if r == 0 || r >= nreg {
					continue
				}
				reg := regions[r]
				reg.spanCount++

				// Update floors: other regions stacked in this column.
				for j := c.Index; j < c.Index+c.Count; j++ {
					if i == j {
						continue
					}
					floorID := srcReg[j]
					if floorID == 0 || floorID >= nreg {
						continue
					}
					if floorID == r {
						reg.overlap = true
					}
					reg.addUniqueFloor(floorID)
				}

				if len(reg.connections) > 0 {
					continue
				}
				reg.areaType = chf.Areas[i]

				ndir := -1
				for dir := 0; dir < 4; dir++ {
					if isSolidEdge(chf, srcReg, x, z, i, dir) {
						ndir = dir
						break
					}
				}
				if ndir != -1 {
					regionWalkContour(x, z, i, ndir, chf, srcReg, &reg.connections)
				}
			}
		}
	}

	// Remove groups of connected regions whose combined size is below
	// the minimum. Regions touching a tile border are never removed.
	var stack, trace []int
	for i := 0; i < nreg; i++ {
		reg := regions[i]
		if reg.id == 0 || reg.id&borderReg != 0 || reg.spanCount == 0 || reg.visited {
			continue
		}

		connectsToBorder := false
		spanCount := 0
		stack = stack[:0]
		trace = trace[:0]
		reg.visited = true
		stack = append(stack, i)

		for len(stack) > 0 {
			ri := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			creg := regions[ri]

			spanCount += creg.spanCount
			trace = append(trace, ri)

			for _, conn := range creg.connections {
				if conn&borderReg != 0 {
					connectsToBorder = true
					continue
				}
				neireg := regions[conn]
				if neireg.visited || neireg.id == 0 || neireg.id&borderReg != 0 {
					continue
				}
				stack = append(stack, neireg.id)
				neireg.visited = true
			}
		}

		if spanCount < minRegionArea && !connectsToBorder {
			for _, t := range trace {
				regions[t].spanCount = 0
				regions[t].id = 0
			}
		}
	}

	// Merge small regions into their smallest mergeable neighbour until
	// a pass makes no progress.
	for {
		mergeCount := 0
		for i := 0; i < nreg; i++ {
			reg := regions[i]
			if reg.id == 0 || reg.id&borderReg != 0 || reg.overlap || reg.spanCount == 0 {
				continue
			}
			if reg.spanCount > mergeRegionSize && reg.connectedToBorder() {
				continue
			}

			smallest := int(^uint(0) >> 1)
			mergeID := reg.id
			for _, conn := range reg.connections {
				if conn&borderReg != 0 {
					continue
				}
				mreg := regions[conn]
				if mreg.id == 0 || mreg.id&borderReg != 0 || mreg.overlap {
					continue
				}
				if mreg.spanCount < smallest && canMergeWithRegion(reg, mreg) && canMergeWithRegion(mreg, reg) {
					smallest = mreg.spanCount
					mergeID = mreg.id
				}
			}
			if mergeID == reg.id {
				continue
			}
			oldID := reg.id
			if mergeRegionInto(regions[mergeID], reg) {
				for j := 0; j < nreg; j++ {
					if regions[j].id == 0 || regions[j].id&borderReg != 0 {
						continue
					}
					if regions[j].id == oldID {
						regions[j].id = mergeID
					}
					regions[j].replaceNeighbour(oldID, mergeID)
				}
				mergeCount++
			}
		}
		if mergeCount == 0 {
			break
		}
	}

	compressRegionIDs(regions, maxRegionID)

	for i := 0; i < chf.SpanCount; i++ {
		if srcReg[i]&borderReg == 0 {
			srcReg[i] = regions[srcReg[i]].id
		}
	}

	for _, reg := range regions {
		if reg.overlap {
			overlaps = append(overlaps, reg.id)
		}
	}
	return overlaps, nil
}

func compressRegionIDs(regions []*region, maxRegionID *int) {
	for _, reg := range regions {
		reg.remap = reg.id != 0 && reg.id&borderReg == 0 && reg.spanCount > 0
	}
	gen := 0
	for i, reg := range regions {
		if !reg.remap {
			continue
		}
		oldID := reg.id
		gen++
		for j := i; j < len(regions); j++ {
			if regions[j].id == oldID {
				regions[j].id = gen
				regions[j].remap = false
			}
		}
	}
	*maxRegionID = gen
}

// mergeAndFilterLayerRegions collapses monotone sweep regions into
// non-overlapping 2D layers and removes layers below the minimum area.
func mergeAndFilterLayerRegions(minRegionArea int, maxRegionID *int, chf *CompactHeightfield, srcReg []int) error {
	w := chf.Width
	h := chf.Height

	nreg := *maxRegionID + 1
	regions := make([]*region, nreg)
	for i := range regions {
		regions[i] = newRegion(i)
	}

	// Find region neighbours and overlapping regions.
	var lregs []int
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			lregs = lregs[:0]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				ri := srcReg[i]
				if ri == 0 || ri >= nreg {
					continue
				}
				reg := regions[ri]
				reg.spanCount++
				reg.ymin = min(reg.ymin, s.Y)
				reg.ymax = max(reg.ymax, s.Y)
				lregs = append(lregs, ri)

				for dir := 0; dir < 4; dir++ {
					if s.Con(dir) == notConnected {
						continue
					}
					ax := x + dirOffsetX[dir]
					az := z + dirOffsetZ[dir]
					ai := chf.Cells[ax+az*w].Index + s.Con(dir)
					rai := srcReg[ai]
					if rai > 0 && rai < nreg && rai != ri {
						reg.addUniqueConnection(rai)
					}
					if rai&borderReg != 0 {
						reg.connectsToBorder = true
					}
				}
			}

			for i := 0; i < len(lregs)-1; i++ {
				for j := i + 1; j < len(lregs); j++ {
					if lregs[i] != lregs[j] {
						regions[lregs[i]].addUniqueFloor(lregs[j])
						regions[lregs[j]].addUniqueFloor(lregs[i])
					}
				}
			}
		}
	}

	// Create 2D layers from the sweep regions: breadth-first merge of
	// connected regions that do not share a column.
	layerID := 1
	for i := 0; i < nreg; i++ {
		regions[i].id = 0
	}

	var stack []int
	for i := 1; i < nreg; i++ {
		root := regions[i]
		if root.id != 0 {
			continue
		}
		root.id = layerID
		stack = append(stack[:0], i)

		for len(stack) > 0 {
			reg := regions[stack[0]]
			stack = stack[1:]

			for _, nei := range reg.connections {
				regn := regions[nei]
				if regn.id != 0 {
					continue
				}
				overlap := false
				for _, f := range root.floors {
					if f == nei {
						overlap = true
						break
					}
				}
				if overlap {
					continue
				}
				stack = append(stack, nei)

				regn.id = layerID
				for _, f := range regn.floors {
					root.addUniqueFloor(f)
				}
				root.ymin = min(root.ymin, regn.ymin)
				root.ymax = max(root.ymax, regn.ymax)
				root.spanCount += regn.spanCount
				regn.spanCount = 0
				root.connectsToBorder = root.connectsToBorder || regn.connectsToBorder
			}
		}
		layerID++
	}

	// Remove small layers.
	for i := 0; i < nreg; i++ {
		if regions[i].spanCount > 0 && regions[i].spanCount < minRegionArea && !regions[i].connectsToBorder {
			id := regions[i].id
			for j := 0; j < nreg; j++ {
				if regions[j].id == id {
					regions[j].id = 0
				}
			}
		}
	}

	compressRegionIDs(regions, maxRegionID)

	for i := 0; i < chf.SpanCount; i++ {
		if srcReg[i]&borderReg == 0 {
			srcReg[i] = regions[srcReg[i]].id
		}
	}
	return nil
}

func paintRectRegion(minx, maxx, minz, maxz, regID int, chf *CompactHeightfield, srcReg []int) {
	w := chf.Width
	for z := minz; z < maxz; z++ {
		for x := minx; x < maxx; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if chf.Areas[i] != NullArea {
					srcReg[i] = regID
				}
			}
		}
	}
}

func markBorderRegions(borderSize int, chf *CompactHeightfield, srcReg []int, id *int) {
	if borderSize <= 0 {
		return
	}
	w := chf.Width
	h := chf.Height
	bw := min(w, borderSize)
	bh := min(h, borderSize)
	paintRectRegion(0, bw, 0, h, *id|borderReg, chf, srcReg)
	*id++
	paintRectRegion(w-bw, w, 0, h, *id|borderReg, chf, srcReg)
	*id++
	paintRectRegion(0, w, 0, bh, *id|borderReg, chf, srcReg)
	*id++
	paintRectRegion(0, w, h-bh, h, *id|borderReg, chf, srcReg)
	*id++
}

// BuildRegions partitions the walkable surface with watershed growth
// seeded at the maxima of the distance field. BuildDistanceField must
// have been run first.
func BuildRegions(chf *CompactHeightfield, borderSize, minRegionArea, mergeRegionArea int) error {
	if chf.Dist == nil {
		return fmt.Errorf("voxel: watershed partitioning requires a distance field")
	}

	buf := make([]int, chf.SpanCount*2)
	srcReg := buf[:chf.SpanCount]
	srcDist := buf[chf.SpanCount:]

	const logNBStacks = 3
	const nbStacks = 1 << logNBStacks
	lvlStacks := make([][]levelStackEntry, nbStacks)
	var stack []levelStackEntry

	regionID := 1
	level := (chf.MaxDistance + 1) &^ 1

	const expandIters = 8

	markBorderRegions(borderSize, chf, srcReg, &regionID)
	chf.BorderSize = borderSize

	sID := -1
	for level > 0 {
		if level >= 2 {
			level -= 2
		} else {
			level = 0
		}
		sID = (sID + 1) & (nbStacks - 1)
		if sID == 0 {
			sortCellsByLevel(level, chf, srcReg, lvlStacks, 1)
		} else {
			appendStacks(lvlStacks[sID-1], &lvlStacks[sID], srcReg)
		}

		// Expand current regions until no empty connected cells found.
		expandRegions(expandIters, level, chf, srcReg, srcDist, &lvlStacks[sID], false)

		// Mark new regions with IDs.
		for _, e := range lvlStacks[sID] {
			if e.index >= 0 && srcReg[e.index] == 0 {
				if floodRegion(e.x, e.z, e.index, level, regionID, chf, srcReg, srcDist, &stack) {
					if regionID == 0xffff {
						return fmt.Errorf("voxel: region id overflow")
					}
					regionID++
				}
			}
		}
	}

	// Final pass over the whole field.
	expandRegions(expandIters*8, 0, chf, srcReg, srcDist, &stack, true)

	chf.MaxRegions = regionID
	if _, err := mergeAndFilterRegions(minRegionArea, mergeRegionArea, &chf.MaxRegions, chf, srcReg); err != nil {
		return err
	}

	for i := 0; i < chf.SpanCount; i++ {
		chf.Spans[i].Reg = srcReg[i]
	}
	return nil
}

// BuildRegionsMonotone partitions the walkable surface by sweeping rows
// into monotone strips. No distance field is needed.
func BuildRegionsMonotone(chf *CompactHeightfield, borderSize, minRegionArea, mergeRegionArea int) error {
	srcReg, id, err := sweepRegions(chf, borderSize)
	if err != nil {
		return err
	}
	chf.MaxRegions = id
	if _, err := mergeAndFilterRegions(minRegionArea, mergeRegionArea, &chf.MaxRegions, chf, srcReg); err != nil {
		return err
	}
	for i := 0; i < chf.SpanCount; i++ {
		chf.Spans[i].Reg = srcReg[i]
	}
	return nil
}

// BuildRegionsLayer partitions the walkable surface into flat layers for
// multi-level geometry.
func BuildRegionsLayer(chf *CompactHeightfield, borderSize, minRegionArea int) error {
	srcReg, id, err := sweepRegions(chf, borderSize)
	if err != nil {
		return err
	}
	chf.MaxRegions = id
	if err := mergeAndFilterLayerRegions(minRegionArea, &chf.MaxRegions, chf, srcReg); err != nil {
		return err
	}
	for i := 0; i < chf.SpanCount; i++ {
		chf.Spans[i].Reg = srcReg[i]
	}
	return nil
}

const nullNei = 0xffff

type sweepSpan struct {
	rid int // row id
	id  int // region id
	ns  int // number of samples
	nei int // neighbour id
}

// sweepRegions performs the row sweep shared by monotone and layer
// partitioning, returning the raw per-span region labels and the next
// free region id.
func sweepRegions(chf *CompactHeightfield, borderSize int) (srcReg []int, id int, err error) {
	w := chf.Width
	h := chf.Height
	id = 1
	srcReg = make([]int, chf.SpanCount)
	sweeps := make([]sweepSpan, max(w, h)+1)

	markBorderRegions(borderSize, chf, srcReg, &id)
	chf.BorderSize = borderSize

	var prev []int
	for z := borderSize; z < h-borderSize; z++ {
		if len(prev) < id+1 {
			prev = make([]int, id+1)
		} else {
			prev = prev[:id+1]
		}
		for i := range prev {
			prev[i] = 0
		}
		rid := 1

		for x := borderSize; x < w-borderSize; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				if chf.Areas[i] == NullArea {
					continue
				}

				// -x neighbour continues its run.
				previd := 0
				if s.Con(0) != notConnected {
					ax := x + dirOffsetX[0]
					az := z + dirOffsetZ[0]
					ai := chf.Cells[ax+az*w].Index + s.Con(0)
					if srcReg[ai]&borderReg == 0 && chf.Areas[i] == chf.Areas[ai] {
						previd = srcReg[ai]
					}
				}
				if previd == 0 {
					previd = rid
					rid++
					if rid >= len(sweeps) {
						return nil, 0, fmt.Errorf("voxel: sweep overflow in row %d", z)
					}
					sweeps[previd].rid = previd
					sweeps[previd].ns = 0
					sweeps[previd].nei = 0
				}

				// -z neighbour votes for a region to continue.
				if s.Con(3) != notConnected {
					ax := x + dirOffsetX[3]
					az := z + dirOffsetZ[3]
					ai := chf.Cells[ax+az*w].Index + s.Con(3)
					if srcReg[ai] > 0 && srcReg[ai]&borderReg == 0 && chf.Areas[i] == chf.Areas[ai] {
						nr := srcReg[ai]
						if sweeps[previd].nei == 0 || sweeps[previd].nei == nr {
							sweeps[previd].nei = nr
							sweeps[previd].ns++
							if nr < len(prev) {
								prev[nr]++
							}
						} else {
							sweeps[previd].nei = nullNei
						}
					}
				}

				srcReg[i] = previd
			}
		}

		// A sweep keeps its previous-row region only when that region
		// voted for it unanimously.
		for i := 1; i < rid; i++ {
			if sweeps[i].nei != nullNei && sweeps[i].nei != 0 && sweeps[i].nei < len(prev) && prev[sweeps[i].nei] == sweeps[i].ns {
				sweeps[i].id = sweeps[i].nei
			} else {
				sweeps[i].id = id
				id++
			}
		}

		for x := borderSize; x < w-borderSize; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if srcReg[i] > 0 && srcReg[i] < rid {
					srcReg[i] = sweeps[srcReg[i]].id
				}
			}
		}
	}
	return srcReg, id, nil
}
