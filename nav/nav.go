// Package nav builds and serves runtime navigation meshes. The bake
// side turns a polygon mesh into a navigation blob; the runtime side
// loads the blob into a NavMesh and answers spatial queries against it.
package nav

import "errors"

const (
	// Magic and version identify a serialized navigation blob ("DNAV").
	navMeshMagic   = 'D'<<24 | 'N'<<16 | 'A'<<8 | 'V'
	navMeshVersion = 7

	// VertsPerPolygon is the maximum number of vertices a navigation
	// polygon can carry.
	VertsPerPolygon = 6

	// extLink marks a polygon edge that crosses a tile boundary.
	extLink = 0x8000

	// nullLink is the terminator of a polygon's link list.
	nullLink = 0xffffffff

	maxAreas = 64
)

// Polygon types.
const (
	polyTypeGround      = 0
	polyTypeOffMeshConn = 1
)

// offMeshConBidir marks an off-mesh connection traversable in both
// directions.
const offMeshConBidir = 1

// TileFlags control tile ownership.
type TileFlags uint8

const (
	// TileFreeData transfers ownership of the mesh data to the NavMesh;
	// the data is released together with the tile.
	TileFreeData TileFlags = 1 << 0
)

// PolyRef identifies a polygon in a NavMesh. Zero is never a valid
// reference.
type PolyRef uint64

var (
	ErrInvalidParam = errors.New("nav: invalid parameter")
	ErrOutOfNodes   = errors.New("nav: node pool exhausted")
	ErrMagic        = errors.New("nav: bad magic")
	ErrVersion      = errors.New("nav: unsupported version")
)

// MeshHeader describes the contents of one navigation tile.
type MeshHeader struct {
	Magic           int32
	Version         int32
	X               int32
	Y               int32
	Layer           int32
	UserID          uint32
	PolyCount       int32
	VertCount       int32
	MaxLinkCount    int32
	DetailMeshCount int32
	DetailVertCount int32
	DetailTriCount  int32
	BvNodeCount     int32
	OffMeshConCount int32
	OffMeshBase     int32
	WalkableHeight  float32
	WalkableRadius  float32
	WalkableClimb   float32
	BMin            [3]float32
	BMax            [3]float32
	BvQuantFactor   float32
}

// Poly is one navigation polygon.
type Poly struct {
	FirstLink uint32
	Verts     [VertsPerPolygon]uint16
	Neis      [VertsPerPolygon]uint16
	Flags     uint16
	VertCount uint8
	// areaAndType packs the area id (low 6 bits) and polygon type
	// (high 2 bits).
	areaAndType uint8
}

func (p *Poly) SetArea(a uint8) { p.areaAndType = p.areaAndType&0xc0 | a&0x3f }
func (p *Poly) SetType(t uint8) { p.areaAndType = p.areaAndType&0x3f | t<<6 }
func (p *Poly) Area() uint8     { return p.areaAndType & 0x3f }
func (p *Poly) Type() uint8     { return p.areaAndType >> 6 }

// PolyDetail points into the detail sub-mesh of a polygon.
type PolyDetail struct {
	VertBase  uint32
	TriBase   uint32
	VertCount uint8
	TriCount  uint8
}

// Link connects a polygon edge to a neighbour polygon.
type Link struct {
	Ref  PolyRef
	Next uint32
	Edge uint8
	Side uint8
	BMin uint8
	BMax uint8
}

// BVNode is one node of a tile's bounding volume tree. Leaf nodes carry
// the polygon index in I; internal nodes carry the negated escape
// offset.
type BVNode struct {
	BMin [3]uint16
	BMax [3]uint16
	I    int32
}

// OffMeshConnection is a point-to-point shortcut such as a jump-down or
// ladder.
type OffMeshConnection struct {
	Pos    [6]float32 // start and end position
	Rad    float32
	Poly   uint16
	Flags  uint8
	Side   uint8
	UserID uint32
}

// MeshData is the complete navigation data of one tile in memory. It is
// what CreateNavMeshData produces, what Marshal/Unmarshal move to and
// from the wire format, and what NavMesh consumes.
type MeshData struct {
	Header       MeshHeader
	Verts        []float32
	Polys        []Poly
	DetailMeshes []PolyDetail
	DetailVerts  []float32
	DetailTris   []uint8
	BvTree       []BVNode
	OffMeshCons  []OffMeshConnection
}

// QueryFilter selects which polygons a query may use and how much each
// area costs to cross.
type QueryFilter struct {
	AreaCost     [maxAreas]float32
	IncludeFlags uint16
	ExcludeFlags uint16
}

// NewQueryFilter returns a filter that accepts every flagged polygon
// with unit area cost.
func NewQueryFilter() *QueryFilter {
	f := &QueryFilter{
		IncludeFlags: 0xffff,
	}
	for i := range f.AreaCost {
		f.AreaCost[i] = 1
	}
	return f
}

// PassFilter reports whether a polygon is usable under this filter.
func (f *QueryFilter) PassFilter(p *Poly) bool {
	return p.Flags&f.IncludeFlags != 0 && p.Flags&f.ExcludeFlags == 0
}
