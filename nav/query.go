package nav

import (
	"container/heap"
	"fmt"
	"math"
)

const (
	nodeOpen   = 1 << 0
	nodeClosed = 1 << 1

	// heuristicScale keeps the A* heuristic slightly admissible.
	heuristicScale = 0.999

	maxQueryNodes = 65535
)

type node struct {
	pos   [3]float32
	cost  float32
	total float32
	pidx  int32 // parent node index plus one, 0 for none
	flags uint8
	ref   PolyRef
}

// nodePool hands out at most maxNodes search nodes per query and maps
// polygon refs back to their node.
type nodePool struct {
	nodes    []node
	nodeMap  map[PolyRef]int32
	maxNodes int
}

func newNodePool(maxNodes int) *nodePool {
	return &nodePool{
		nodes:    make([]node, 0, maxNodes),
		nodeMap:  make(map[PolyRef]int32, maxNodes),
		maxNodes: maxNodes,
	}
}

func (p *nodePool) clear() {
	p.nodes = p.nodes[:0]
	for k := range p.nodeMap {
		delete(p.nodeMap, k)
	}
}

func (p *nodePool) get(ref PolyRef) *node {
	if i, ok := p.nodeMap[ref]; ok {
		return &p.nodes[i]
	}
	if len(p.nodes) >= p.maxNodes {
		return nil
	}
	p.nodes = append(p.nodes, node{ref: ref})
	p.nodeMap[ref] = int32(len(p.nodes) - 1)
	return &p.nodes[len(p.nodes)-1]
}

func (p *nodePool) index(n *node) int32 {
	return p.nodeMap[n.ref]
}

type openList struct {
	pool *nodePool
	heap []int32
}

func (o *openList) Len() int { return len(o.heap) }
func (o *openList) Less(i, j int) bool {
	return o.pool.nodes[o.heap[i]].total < o.pool.nodes[o.heap[j]].total
}
func (o *openList) Swap(i, j int)       { o.heap[i], o.heap[j] = o.heap[j], o.heap[i] }
func (o *openList) Push(x interface{})  { o.heap = append(o.heap, x.(int32)) }
func (o *openList) Pop() interface{} {
	x := o.heap[len(o.heap)-1]
	o.heap = o.heap[:len(o.heap)-1]
	return x
}

// NavMeshQuery answers spatial and pathfinding queries against a
// NavMesh. It is not safe for concurrent use; create one query per
// goroutine.
type NavMeshQuery struct {
	nav  *NavMesh
	pool *nodePool
	open *openList
}

// NewNavMeshQuery creates a query object with a bounded search node
// pool.
func NewNavMeshQuery(nav *NavMesh, maxNodes int) (*NavMeshQuery, error) {
	if nav == nil {
		return nil, ErrInvalidParam
	}
	if maxNodes <= 0 || maxNodes > maxQueryNodes {
		return nil, fmt.Errorf("%w: maxNodes %d", ErrInvalidParam, maxNodes)
	}
	pool := newNodePool(maxNodes)
	return &NavMeshQuery{
		nav:  nav,
		pool: pool,
		open: &openList{pool: pool},
	}, nil
}

// NavMesh returns the mesh this query operates on.
func (q *NavMeshQuery) NavMesh() *NavMesh { return q.nav }

// QueryPolygons collects polygons overlapping the box around center
// that pass the filter.
func (q *NavMeshQuery) QueryPolygons(center, halfExtents []float32, filter *QueryFilter, polys []PolyRef) (int, error) {
	if q.nav.tile == nil {
		return 0, ErrInvalidParam
	}
	bmin := []float32{center[0] - halfExtents[0], center[1] - halfExtents[1], center[2] - halfExtents[2]}
	bmax := []float32{center[0] + halfExtents[0], center[1] + halfExtents[1], center[2] + halfExtents[2]}

	n := q.nav.queryPolygonsInTile(q.nav.tile, bmin, bmax, polys)

	// Filter in place.
	kept := 0
	for i := 0; i < n; i++ {
		_, poly, err := q.nav.tileAndPolyByRef(polys[i])
		if err != nil {
			continue
		}
		if filter.PassFilter(poly) {
			polys[kept] = polys[i]
			kept++
		}
	}
	return kept, nil
}

// FindNearestPoly returns the polygon nearest to center within the
// search box and the point on it closest to center. A zero ref means no
// polygon was found.
func (q *NavMeshQuery) FindNearestPoly(center, halfExtents []float32, filter *QueryFilter) (PolyRef, [3]float32, error) {
	var nearestPt [3]float32
	var polys [128]PolyRef
	polyCount, err := q.QueryPolygons(center, halfExtents, filter, polys[:])
	if err != nil {
		return 0, nearestPt, err
	}

	tile := q.nav.tile
	var nearest PolyRef
	nearestDistSqr := float32(math.MaxFloat32)
	for i := 0; i < polyCount; i++ {
		ref := polys[i]
		var closest [3]float32
		posOverPoly := q.nav.closestPointOnPoly(ref, center, closest[:])

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
			nearestPt = closest
			nearestDistSqr = d
			nearest = ref
		}
	}
	return nearest, nearestPt, nil
}

// ClosestPointOnPoly projects pos onto the polygon. posOverPoly reports
// whether pos lay directly above it.
func (q *NavMeshQuery) ClosestPointOnPoly(ref PolyRef, pos []float32) (closest [3]float32, posOverPoly bool, err error) {
	if !q.nav.IsValidPolyRef(ref) {
		return closest, false, ErrInvalidParam
	}
	posOverPoly = q.nav.closestPointOnPoly(ref, pos, closest[:])
	return closest, posOverPoly, nil
}

// GetPolyHeight returns the detail surface height at pos, which must be
// within the polygon on the xz-plane.
func (q *NavMeshQuery) GetPolyHeight(ref PolyRef, pos []float32) (float32, error) {
	tile, poly, err := q.nav.tileAndPolyByRef(ref)
	if err != nil {
		return 0, err
	}
	if poly.Type() == polyTypeOffMeshConn {
		v0 := tile.Verts[int(poly.Verts[0])*3:]
		v1 := tile.Verts[int(poly.Verts[1])*3:]
		_, t := distPtSegSqr2D(pos, v0, v1)
		return v0[1] + (v1[1]-v0[1])*t, nil
	}
	_, _, ip := q.nav.decodePolyID(ref)
	h, ok := q.nav.polyHeight(tile, poly, int(ip), pos)
	if !ok {
		return 0, fmt.Errorf("%w: position outside polygon", ErrInvalidParam)
	}
	return h, nil
}

func vdist(a, b []float32) float32 {
	dx := b[0] - a[0]
	dy := b[1] - a[1]
	dz := b[2] - a[2]
	return float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}

// getPortalPoints returns the shared edge between two linked polygons.
func (q *NavMeshQuery) getPortalPoints(from PolyRef, fromPoly *Poly, fromTile *MeshTile, to PolyRef, toPoly *Poly, toTile *MeshTile, left, right []float32) error {
	var link *Link
	for i := fromPoly.FirstLink; i != nullLink; i = fromTile.Links[i].Next {
		if fromTile.Links[i].Ref == to {
			link = &fromTile.Links[i]
			break
		}
	}
	if link == nil {
		return ErrInvalidParam
	}

	// Off-mesh connections are crossed at their endpoints.
	if fromPoly.Type() == polyTypeOffMeshConn {
		v := int(fromPoly.Verts[link.Edge]) * 3
		copy(left, fromTile.Verts[v:v+3])
		copy(right, fromTile.Verts[v:v+3])
		return nil
	}
	if toPoly.Type() == polyTypeOffMeshConn {
		for i := toPoly.FirstLink; i != nullLink; i = toTile.Links[i].Next {
			if toTile.Links[i].Ref == from {
				v := int(toPoly.Verts[toTile.Links[i].Edge]) * 3
				copy(left, toTile.Verts[v:v+3])
				copy(right, toTile.Verts[v:v+3])
				return nil
			}
		}
		return ErrInvalidParam
	}

	v0 := int(fromPoly.Verts[link.Edge]) * 3
	v1 := int(fromPoly.Verts[(int(link.Edge)+1)%int(fromPoly.VertCount)]) * 3
	copy(left, fromTile.Verts[v0:v0+3])
	copy(right, fromTile.Verts[v1:v1+3])
	return nil
}

func (q *NavMeshQuery) getEdgeMidPoint(from PolyRef, fromPoly *Poly, fromTile *MeshTile, to PolyRef, toPoly *Poly, toTile *MeshTile, mid []float32) error {
	var left, right [3]float32
	if err := q.getPortalPoints(from, fromPoly, fromTile, to, toPoly, toTile, left[:], right[:]); err != nil {
		return err
	}
	mid[0] = (left[0] + right[0]) * 0.5
	mid[1] = (left[1] + right[1]) * 0.5
	mid[2] = (left[2] + right[2]) * 0.5
	return nil
}

// FindPath searches for a polygon corridor from startRef to endRef with
// A* over the polygon links. The path holds at most maxPath refs
// starting with startRef; when the node pool runs out before reaching
// the end, the path to the closest visited polygon is returned along
// with ErrOutOfNodes.
func (q *NavMeshQuery) FindPath(startRef, endRef PolyRef, startPos, endPos []float32, filter *QueryFilter, maxPath int) ([]PolyRef, error) {
	if !q.nav.IsValidPolyRef(startRef) || !q.nav.IsValidPolyRef(endRef) {
		return nil, ErrInvalidParam
	}
	if maxPath <= 0 {
		return nil, ErrInvalidParam
	}
	if startRef == endRef {
		return []PolyRef{startRef}, nil
	}

	q.pool.clear()
	q.open.heap = q.open.heap[:0]

	startNode := q.pool.get(startRef)
	copy(startNode.pos[:], startPos[:3])
	startNode.cost = 0
	startNode.total = vdist(startPos, endPos) * heuristicScale
	startNode.flags = nodeOpen
	heap.Push(q.open, q.pool.index(startNode))

	lastBest := startNode
	lastBestTotal := startNode.total
	outOfNodes := false

	for q.open.Len() > 0 {
		bestIdx := heap.Pop(q.open).(int32)
		best := &q.pool.nodes[bestIdx]
		best.flags &^= nodeOpen
		best.flags |= nodeClosed

		if best.ref == endRef {
			lastBest = best
			break
		}

		bestTile, bestPoly, err := q.nav.tileAndPolyByRef(best.ref)
		if err != nil {
			continue
		}

		for i := bestPoly.FirstLink; i != nullLink; i = bestTile.Links[i].Next {
			neighbourRef := bestTile.Links[i].Ref
			if neighbourRef == 0 {
				continue
			}
			// Do not go back the way we came.
			if best.pidx != 0 && q.pool.nodes[best.pidx-1].ref == neighbourRef {
				continue
			}

			neiTile, neiPoly, err := q.nav.tileAndPolyByRef(neighbourRef)
			if err != nil {
				continue
			}
			if !filter.PassFilter(neiPoly) {
				continue
			}

			neighbourNode := q.pool.get(neighbourRef)
			if neighbourNode == nil {
				outOfNodes = true
				continue
			}

			if neighbourNode.flags == 0 {
				var mid [3]float32
				if err := q.getEdgeMidPoint(best.ref, bestPoly, bestTile, neighbourRef, neiPoly, neiTile, mid[:]); err == nil {
					neighbourNode.pos = mid
				}
			}

			cost := best.cost + vdist(best.pos[:], neighbourNode.pos[:])*filter.AreaCost[bestPoly.Area()]
			var heuristicCost float32
			if neighbourRef == endRef {
				cost += vdist(neighbourNode.pos[:], endPos) * filter.AreaCost[neiPoly.Area()]
			} else {
				heuristicCost = vdist(neighbourNode.pos[:], endPos) * heuristicScale
			}
			total := cost + heuristicCost

			if neighbourNode.flags&nodeOpen != 0 && total >= neighbourNode.total {
				continue
			}
			if neighbourNode.flags&nodeClosed != 0 && total >= neighbourNode.total {
				continue
			}

			neighbourNode.pidx = bestIdx + 1
			neighbourNode.cost = cost
			neighbourNode.total = total
			neighbourNode.flags &^= nodeClosed

			if neighbourNode.flags&nodeOpen != 0 {
				heap.Init(q.open)
			} else {
				neighbourNode.flags |= nodeOpen
				heap.Push(q.open, q.pool.index(neighbourNode))
			}

			if heuristicCost > 0 && total < lastBestTotal {
				lastBestTotal = total
				lastBest = neighbourNode
			}
		}
	}

	// Walk the parents back to the start.
	var path []PolyRef
	for n := lastBest; n != nil; {
		path = append(path, n.ref)
		if n.pidx == 0 {
			break
		}
		n = &q.pool.nodes[n.pidx-1]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	if len(path) > maxPath {
		path = path[:maxPath]
	}
	if lastBest.ref != endRef {
		if outOfNodes {
			return path, ErrOutOfNodes
		}
		return path, fmt.Errorf("nav: partial path, end not reached")
	}
	return path, nil
}
