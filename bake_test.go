package navbake_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lnkwrm/navbake"
	"github.com/lnkwrm/navbake/geom"
	"github.com/lnkwrm/navbake/nav"
	"github.com/lnkwrm/navbake/voxel"
)

// planeMesh builds a flat square of side 2*half centred on the origin,
// wound so the face normals point up.
func planeMesh(half float32) *geom.TriMesh {
	return &geom.TriMesh{
		Verts: []float32{
			-half, 0, -half,
			half, 0, -half,
			half, 0, half,
			-half, 0, half,
		},
		Tris: []int32{0, 2, 1, 0, 3, 2},
	}
}

// steepMesh builds a single ramp far beyond the walkable slope limit.
func steepMesh() *geom.TriMesh {
	return &geom.TriMesh{
		Verts: []float32{
			0, 0, 0,
			10, 0, 0,
			10, 20, 3,
			0, 20, 3,
		},
		Tris: []int32{0, 2, 1, 0, 3, 2},
	}
}

func TestBakeFlatPlane(t *testing.T) {
	res := navbake.Bake(planeMesh(10), navbake.DefaultBakeOptions(), zap.NewNop())
	require.Equal(t, navbake.Success, res.Outcome, "bake error: %v", res.Err)
	require.NotNil(t, res.Component)
	defer res.Component.Close()

	assert.Greater(t, res.Stats.GridWidth, 0)
	assert.Greater(t, res.Stats.SpanCount, 0)
	assert.Equal(t, 1, res.Stats.RegionCount, "a flat plane is one region")
	assert.Greater(t, res.Stats.PolyCount, 0)
	assert.Greater(t, res.Stats.DetailTris, 0)

	c := res.Component
	require.NotNil(t, c.Data)
	require.NotNil(t, c.Mesh)
	require.NotNil(t, c.Query)

	filter := nav.NewQueryFilter()
	ref, pt, err := c.Query.FindNearestPoly([]float32{0, 0, 0}, []float32{2, 2, 2}, filter)
	require.NoError(t, err)
	require.NotZero(t, ref, "the plane centre is on the mesh")
	assert.InDelta(t, 0, pt[0], 0.5)
	assert.InDelta(t, 0, pt[1], 0.5)
	assert.InDelta(t, 0, pt[2], 0.5)

	h, err := c.Query.GetPolyHeight(ref, []float32{0, 1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, h, 0.5)
}

func TestBakeBlobRoundTrip(t *testing.T) {
	res := navbake.Bake(planeMesh(10), navbake.DefaultBakeOptions(), nil)
	require.Equal(t, navbake.Success, res.Outcome, "bake error: %v", res.Err)
	defer res.Component.Close()

	blob, err := res.Component.Data.Marshal()
	require.NoError(t, err)

	data, err := nav.Unmarshal(blob)
	require.NoError(t, err)
	assert.Equal(t, res.Component.Data.Header, data.Header)

	// The parsed blob stands up a working mesh of its own.
	m, err := nav.NewNavMesh(data, nav.TileFreeData)
	require.NoError(t, err)
	q, err := nav.NewNavMeshQuery(m, 128)
	require.NoError(t, err)
	ref, _, err := q.FindNearestPoly([]float32{0, 0, 0}, []float32{2, 2, 2}, nav.NewQueryFilter())
	require.NoError(t, err)
	assert.NotZero(t, ref)
	m.Close()
}

func TestBakeDeterministic(t *testing.T) {
	res1 := navbake.Bake(planeMesh(10), navbake.DefaultBakeOptions(), nil)
	require.Equal(t, navbake.Success, res1.Outcome)
	defer res1.Component.Close()
	res2 := navbake.Bake(planeMesh(10), navbake.DefaultBakeOptions(), nil)
	require.Equal(t, navbake.Success, res2.Outcome)
	defer res2.Component.Close()

	blob1, err := res1.Component.Data.Marshal()
	require.NoError(t, err)
	blob2, err := res2.Component.Data.Marshal()
	require.NoError(t, err)
	assert.Equal(t, blob1, blob2, "identical input bakes byte-identical data")
}

func TestBakePartitions(t *testing.T) {
	regions := map[voxel.Partition]int{}
	for _, p := range []voxel.Partition{voxel.PartitionWatershed, voxel.PartitionMonotone, voxel.PartitionLayer} {
		opts := navbake.DefaultBakeOptions()
		opts.Partition = p
		res := navbake.Bake(planeMesh(10), opts, nil)
		require.Equal(t, navbake.Success, res.Outcome, "partition %v: %v", p, res.Err)
		assert.GreaterOrEqual(t, res.Stats.RegionCount, 1, "partition %v", p)
		assert.Greater(t, res.Stats.PolyCount, 0, "partition %v", p)
		regions[p] = res.Stats.RegionCount
		res.Component.Close()
	}

	// Monotone sweeping can only split regions the watershed would keep
	// whole, and a single flat surface is one layer.
	assert.GreaterOrEqual(t, regions[voxel.PartitionMonotone], regions[voxel.PartitionWatershed])
	assert.Equal(t, 1, regions[voxel.PartitionLayer])
}

func TestBakeFailsOnInvalidMesh(t *testing.T) {
	res := navbake.Bake(&geom.TriMesh{}, navbake.DefaultBakeOptions(), nil)
	assert.Equal(t, navbake.Failed, res.Outcome)
	assert.Equal(t, "validate", res.Stage)
	assert.Error(t, res.Err)
	assert.Nil(t, res.Component)

	res = navbake.Bake(nil, navbake.DefaultBakeOptions(), nil)
	assert.Equal(t, navbake.Failed, res.Outcome)
	assert.Equal(t, "validate", res.Stage)
}

func TestBakeFailsOnUnwalkableGeometry(t *testing.T) {
	res := navbake.Bake(steepMesh(), navbake.DefaultBakeOptions(), nil)
	assert.Equal(t, navbake.Failed, res.Outcome, "a cliff face yields no walkable surface")
	assert.Error(t, res.Err)
	assert.Nil(t, res.Component)
}

func TestBakeSkipsUnsupportedPolySize(t *testing.T) {
	opts := navbake.DefaultBakeOptions()
	opts.MaxVertsPerPoly = 8
	res := navbake.Bake(planeMesh(10), opts, nil)
	assert.Equal(t, navbake.Skipped, res.Outcome)
	assert.ErrorIs(t, res.Err, navbake.ErrTooManyPolyVerts)
	assert.Nil(t, res.Component)
	res.Component.Close() // nil-safe
}

func TestComponentClose(t *testing.T) {
	res := navbake.Bake(planeMesh(10), navbake.DefaultBakeOptions(), nil)
	require.Equal(t, navbake.Success, res.Outcome)
	c := res.Component

	assert.False(t, c.Closed())
	c.Close()
	assert.True(t, c.Closed())
	assert.Nil(t, c.Query)
	assert.Nil(t, c.Mesh)
	assert.Nil(t, c.Data)
	c.Close() // idempotent
	assert.True(t, c.Closed())
}
