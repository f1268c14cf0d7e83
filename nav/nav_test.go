package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoSquareParams describes two 10x10 squares sharing the edge at x=10,
// quantized with cs=ch=1.
func twoSquareParams() *CreateParams {
	return &CreateParams{
		Verts: []uint16{
			0, 0, 0,
			10, 0, 0,
			10, 0, 10,
			0, 0, 10,
			20, 0, 0,
			20, 0, 10,
		},
		VertCount: 6,
		Polys: []uint16{
			// Square 0: shares edge 1-2 with square 1.
			0, 1, 2, 3, meshNullIdx, meshNullIdx,
			meshNullIdx, 1, meshNullIdx, meshNullIdx, meshNullIdx, meshNullIdx,
			// Square 1: shares edge 2-1 with square 0.
			1, 4, 5, 2, meshNullIdx, meshNullIdx,
			meshNullIdx, meshNullIdx, meshNullIdx, 0, meshNullIdx, meshNullIdx,
		},
		PolyAreas:      []uint8{0, 0},
		PolyFlags:      []uint16{1, 1},
		PolyCount:      2,
		Nvp:            6,
		BMin:           [3]float32{0, 0, 0},
		BMax:           [3]float32{20, 1, 10},
		WalkableHeight: 2,
		WalkableRadius: 0.6,
		WalkableClimb:  0.9,
		Cs:             1,
		Ch:             1,
		BuildBvTree:    true,
	}
}

func TestCreateNavMeshData(t *testing.T) {
	data, err := CreateNavMeshData(twoSquareParams())
	require.NoError(t, err)

	h := &data.Header
	assert.Equal(t, int32(navMeshMagic), h.Magic)
	assert.Equal(t, int32(navMeshVersion), h.Version)
	assert.Equal(t, int32(2), h.PolyCount)
	assert.Equal(t, int32(6), h.VertCount)

	// Vertices are dequantized into world units.
	assert.Equal(t, float32(10), data.Verts[1*3+0])
	assert.Equal(t, float32(10), data.Verts[2*3+2])

	// Without a detail mesh each quad is fan-triangulated.
	assert.Equal(t, int32(4), h.DetailTriCount)
	require.Len(t, data.DetailMeshes, 2)
	assert.Equal(t, uint8(2), data.DetailMeshes[0].TriCount)
	assert.Equal(t, uint8(0), data.DetailMeshes[0].VertCount)

	// Shared edge adjacency: neighbour indices are stored 1-based.
	assert.Equal(t, uint16(2), data.Polys[0].Neis[1])
	assert.Equal(t, uint16(1), data.Polys[1].Neis[3])
	assert.Equal(t, uint16(0), data.Polys[0].Neis[0], "border edges carry no neighbour")

	assert.Greater(t, h.BvNodeCount, int32(0))
}

func TestCreateNavMeshDataValidation(t *testing.T) {
	p := twoSquareParams()
	p.Nvp = VertsPerPolygon + 1
	_, err := CreateNavMeshData(p)
	assert.ErrorIs(t, err, ErrInvalidParam)

	p = twoSquareParams()
	p.Verts = nil
	p.VertCount = 0
	_, err = CreateNavMeshData(p)
	assert.ErrorIs(t, err, ErrInvalidParam)

	p = twoSquareParams()
	p.Polys = nil
	p.PolyCount = 0
	_, err = CreateNavMeshData(p)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := CreateNavMeshData(twoSquareParams())
	require.NoError(t, err)

	blob, err := data.Marshal()
	require.NoError(t, err)

	back, err := Unmarshal(blob)
	require.NoError(t, err)
	assert.Equal(t, data, back)

	// Serialization is stable.
	blob2, err := back.Marshal()
	require.NoError(t, err)
	assert.Equal(t, blob, blob2)
}

func TestUnmarshalRejectsBadData(t *testing.T) {
	data, err := CreateNavMeshData(twoSquareParams())
	require.NoError(t, err)
	blob, err := data.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(blob[:10])
	assert.Error(t, err)

	bad := append([]byte(nil), blob...)
	bad[0] ^= 0xff
	_, err = Unmarshal(bad)
	assert.ErrorIs(t, err, ErrMagic)

	bad = append([]byte(nil), blob...)
	bad[4] ^= 0xff
	_, err = Unmarshal(bad)
	assert.ErrorIs(t, err, ErrVersion)

	_, err = Unmarshal(append(append([]byte(nil), blob...), 0))
	assert.Error(t, err, "trailing bytes are rejected")
}

func newTestMesh(t *testing.T) *NavMesh {
	t.Helper()
	data, err := CreateNavMeshData(twoSquareParams())
	require.NoError(t, err)
	m, err := NewNavMesh(data, 0)
	require.NoError(t, err)
	return m
}

func TestNewNavMesh(t *testing.T) {
	m := newTestMesh(t)
	tile := m.Tile()
	require.NotNil(t, tile)

	base := m.polyRefBase(tile)
	assert.True(t, m.IsValidPolyRef(base))
	assert.True(t, m.IsValidPolyRef(base|1))
	assert.False(t, m.IsValidPolyRef(base|2), "only two polygons exist")
	assert.False(t, m.IsValidPolyRef(0))

	// The shared edge produced one internal link per side.
	assert.NotEqual(t, uint32(nullLink), tile.Polys[0].FirstLink)
	assert.NotEqual(t, uint32(nullLink), tile.Polys[1].FirstLink)
}

func TestNavMeshClose(t *testing.T) {
	m := newTestMesh(t)
	base := m.polyRefBase(m.Tile())
	require.True(t, m.IsValidPolyRef(base))

	m.Close()
	assert.False(t, m.IsValidPolyRef(base), "salt bump invalidates old refs")
	m.Close() // second close is a no-op
}

func TestFindNearestPoly(t *testing.T) {
	m := newTestMesh(t)
	q, err := NewNavMeshQuery(m, 128)
	require.NoError(t, err)
	filter := NewQueryFilter()

	ref, pt, err := q.FindNearestPoly([]float32{5, 0.2, 5}, []float32{2, 2, 2}, filter)
	require.NoError(t, err)
	require.NotZero(t, ref)
	assert.InDelta(t, 5, pt[0], 0.01)
	assert.InDelta(t, 0, pt[1], 0.01)
	assert.InDelta(t, 5, pt[2], 0.01)

	// Nothing within the search box.
	ref, _, err = q.FindNearestPoly([]float32{100, 0, 100}, []float32{1, 1, 1}, filter)
	require.NoError(t, err)
	assert.Zero(t, ref)

	// A box far above the tile finds nothing either.
	ref, _, err = q.FindNearestPoly([]float32{5, 50, 5}, []float32{1, 1, 1}, filter)
	require.NoError(t, err)
	assert.Zero(t, ref)

	// The search box must not degenerate onto the tile border: a far
	// box returns zero polygons outright.
	var polys [8]PolyRef
	n, err := q.QueryPolygons([]float32{99, 0, 99}, []float32{1, 1, 1}, filter, polys[:])
	require.NoError(t, err)
	assert.Zero(t, n)

	// Excluded flags hide every polygon.
	filter.ExcludeFlags = 1
	ref, _, err = q.FindNearestPoly([]float32{5, 0, 5}, []float32{2, 2, 2}, filter)
	require.NoError(t, err)
	assert.Zero(t, ref)
}

func TestClosestPointOnPoly(t *testing.T) {
	m := newTestMesh(t)
	q, err := NewNavMeshQuery(m, 128)
	require.NoError(t, err)
	filter := NewQueryFilter()

	ref, _, err := q.FindNearestPoly([]float32{5, 0, 5}, []float32{2, 2, 2}, filter)
	require.NoError(t, err)
	require.NotZero(t, ref)

	closest, over, err := q.ClosestPointOnPoly(ref, []float32{5, 1, 5})
	require.NoError(t, err)
	assert.True(t, over)
	assert.InDelta(t, 0, closest[1], 0.01)

	// A point beyond the border clamps onto the edge.
	closest, over, err = q.ClosestPointOnPoly(ref, []float32{-5, 0, 5})
	require.NoError(t, err)
	assert.False(t, over)
	assert.InDelta(t, 0, closest[0], 0.01)
	assert.InDelta(t, 5, closest[2], 0.01)
}

func TestGetPolyHeight(t *testing.T) {
	m := newTestMesh(t)
	q, err := NewNavMeshQuery(m, 128)
	require.NoError(t, err)
	filter := NewQueryFilter()

	ref, _, err := q.FindNearestPoly([]float32{5, 0, 5}, []float32{2, 2, 2}, filter)
	require.NoError(t, err)

	h, err := q.GetPolyHeight(ref, []float32{5, 3, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0, h, 0.01)
}

func TestFindPath(t *testing.T) {
	m := newTestMesh(t)
	q, err := NewNavMeshQuery(m, 128)
	require.NoError(t, err)
	filter := NewQueryFilter()

	start := []float32{5, 0, 5}
	end := []float32{15, 0, 5}
	startRef, _, err := q.FindNearestPoly(start, []float32{2, 2, 2}, filter)
	require.NoError(t, err)
	endRef, _, err := q.FindNearestPoly(end, []float32{2, 2, 2}, filter)
	require.NoError(t, err)
	require.NotZero(t, startRef)
	require.NotZero(t, endRef)
	require.NotEqual(t, startRef, endRef)

	path, err := q.FindPath(startRef, endRef, start, end, filter, 16)
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, startRef, path[0])
	assert.Equal(t, endRef, path[1])

	// Same start and end is a single-polygon path.
	path, err = q.FindPath(startRef, startRef, start, start, filter, 16)
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.Equal(t, startRef, path[0])
}
