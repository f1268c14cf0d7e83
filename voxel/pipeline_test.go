package voxel

import (
	"testing"
)

// flatField builds a compact heightfield for a fully walkable size x size
// patch at span height 1.
func flatField(t *testing.T, size int) *CompactHeightfield {
	t.Helper()
	hf := NewHeightfield(size, size, [3]float32{}, [3]float32{float32(size), 4, float32(size)}, 1, 1)
	for z := 0; z < size; z++ {
		for x := 0; x < size; x++ {
			hf.AddSpan(x, z, 0, 1, WalkableArea, 1)
		}
	}
	chf, err := BuildCompactHeightfield(2, 1, hf)
	if err != nil {
		t.Fatalf("BuildCompactHeightfield: %v", err)
	}
	return chf
}

func TestBuildRegionsFlat(t *testing.T) {
	chf := flatField(t, 10)
	if err := BuildDistanceField(chf); err != nil {
		t.Fatalf("BuildDistanceField: %v", err)
	}
	if err := BuildRegions(chf, 0, 8, 20); err != nil {
		t.Fatalf("BuildRegions: %v", err)
	}

	assertTrue(t, chf.MaxRegions == 1, "a flat patch is one region")
	for i := 0; i < chf.SpanCount; i++ {
		assertTrue(t, chf.Spans[i].Reg == 1, "every span belongs to the region")
	}
}

func TestBuildRegionsMonotoneFlat(t *testing.T) {
	chf := flatField(t, 10)
	if err := BuildRegionsMonotone(chf, 0, 8, 20); err != nil {
		t.Fatalf("BuildRegionsMonotone: %v", err)
	}
	assertTrue(t, chf.MaxRegions >= 1, "monotone partitioning produces regions")
	for i := 0; i < chf.SpanCount; i++ {
		assertTrue(t, chf.Spans[i].Reg != 0, "every span is assigned")
	}
}

func TestBuildRegionsLayerFlat(t *testing.T) {
	chf := flatField(t, 10)
	if err := BuildRegionsLayer(chf, 0, 8); err != nil {
		t.Fatalf("BuildRegionsLayer: %v", err)
	}
	assertTrue(t, chf.MaxRegions == 1, "a single flat layer is one region")
}

func TestBuildRegionsDropsSmallIslands(t *testing.T) {
	// A 10x10 patch plus a detached 2x2 island below the minimum region
	// area; the island must not survive.
	size := 16
	hf := NewHeightfield(size, size, [3]float32{}, [3]float32{float32(size), 4, float32(size)}, 1, 1)
	for z := 0; z < 10; z++ {
		for x := 0; x < 10; x++ {
			hf.AddSpan(x, z, 0, 1, WalkableArea, 1)
		}
	}
	for z := 13; z < 15; z++ {
		for x := 13; x < 15; x++ {
			hf.AddSpan(x, z, 0, 1, WalkableArea, 1)
		}
	}
	chf, err := BuildCompactHeightfield(2, 1, hf)
	if err != nil {
		t.Fatalf("BuildCompactHeightfield: %v", err)
	}
	if err := BuildDistanceField(chf); err != nil {
		t.Fatalf("BuildDistanceField: %v", err)
	}
	if err := BuildRegions(chf, 0, 8, 20); err != nil {
		t.Fatalf("BuildRegions: %v", err)
	}

	assertTrue(t, chf.MaxRegions == 1, "the island falls below the area threshold")
	island := chf.Cells[13+13*size]
	assertTrue(t, chf.Spans[island.Index].Reg == 0, "island spans end up unassigned")
}

func TestBuildContoursFlat(t *testing.T) {
	chf := flatField(t, 10)
	if err := BuildDistanceField(chf); err != nil {
		t.Fatalf("BuildDistanceField: %v", err)
	}
	if err := BuildRegions(chf, 0, 8, 20); err != nil {
		t.Fatalf("BuildRegions: %v", err)
	}

	cset, err := BuildContours(chf, 1.3, 12, TessWallEdges)
	if err != nil {
		t.Fatalf("BuildContours: %v", err)
	}
	assertTrue(t, len(cset.Conts) == 1, "one region, one contour")

	c := &cset.Conts[0]
	assertTrue(t, len(c.Verts)/4 >= 4, "a square outline keeps at least its corners")
	assertTrue(t, c.Reg == 1, "contour carries its region id")
	assertTrue(t, c.Area == WalkableArea, "contour carries its area")
}

func TestBuildPolyMeshFlat(t *testing.T) {
	chf := flatField(t, 10)
	if err := BuildDistanceField(chf); err != nil {
		t.Fatalf("BuildDistanceField: %v", err)
	}
	if err := BuildRegions(chf, 0, 8, 20); err != nil {
		t.Fatalf("BuildRegions: %v", err)
	}
	cset, err := BuildContours(chf, 1.3, 12, TessWallEdges)
	if err != nil {
		t.Fatalf("BuildContours: %v", err)
	}

	pm, err := BuildPolyMesh(cset, 6)
	if err != nil {
		t.Fatalf("BuildPolyMesh: %v", err)
	}
	assertTrue(t, pm.NPolys >= 1, "the patch produces polygons")
	assertTrue(t, pm.NVerts >= 4, "the patch produces vertices")
	assertTrue(t, pm.Nvp == 6, "nvp is carried through")
	for i := 0; i < pm.NPolys; i++ {
		assertTrue(t, pm.Areas[i] == WalkableArea, "polygons keep the walkable area")
		nv := 0
		for j := 0; j < pm.Nvp; j++ {
			if pm.Polys[i*pm.Nvp*2+j] != 0xffff {
				nv++
			}
		}
		assertTrue(t, nv >= 3, "polygons have at least three vertices")
	}
}

func TestBuildPolyMeshDetailFlat(t *testing.T) {
	chf := flatField(t, 10)
	if err := BuildDistanceField(chf); err != nil {
		t.Fatalf("BuildDistanceField: %v", err)
	}
	if err := BuildRegions(chf, 0, 8, 20); err != nil {
		t.Fatalf("BuildRegions: %v", err)
	}
	cset, err := BuildContours(chf, 1.3, 12, TessWallEdges)
	if err != nil {
		t.Fatalf("BuildContours: %v", err)
	}
	pm, err := BuildPolyMesh(cset, 6)
	if err != nil {
		t.Fatalf("BuildPolyMesh: %v", err)
	}

	dm, err := BuildPolyMeshDetail(pm, chf, 6, 1)
	if err != nil {
		t.Fatalf("BuildPolyMeshDetail: %v", err)
	}
	assertTrue(t, dm.NMeshes == pm.NPolys, "one detail mesh per polygon")
	assertTrue(t, dm.NVerts >= pm.NVerts, "detail at least covers the polygon corners")
	assertTrue(t, dm.NTris >= pm.NPolys, "every polygon is triangulated")
}
