package voxel

import (
	"testing"
)

func assertTrue(t *testing.T, value bool, msg string) {
	t.Helper()
	if !value {
		t.Errorf(msg)
	}
}

func TestCalcGridSize(t *testing.T) {
	bmin := [3]float32{0, 2, 3}
	bmax := [3]float32{1, 2, 6}

	w, h := CalcGridSize(bmin, bmax, 1.5)
	if w != 1 {
		t.Errorf("computes the size of an x & z axis grid")
	}
	if h != 2 {
		t.Errorf("computes the size of an x & z axis grid")
	}
}

func TestNewConfigCeilsVoxelUnits(t *testing.T) {
	s := DefaultSettings()
	cfg, err := NewConfig(s, [3]float32{0, 0, 0}, [3]float32{10, 2, 10})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	// 2.0 / 0.2 = 10, 0.9 / 0.2 = 4.5 -> 5, 0.6 / 0.3 = 2.
	assertTrue(t, cfg.WalkableHeight == 10, "agent height in voxels")
	assertTrue(t, cfg.WalkableClimb == 5, "agent climb rounds up")
	assertTrue(t, cfg.WalkableRadius == 2, "agent radius in voxels")

	// 10 / 0.3 = 33.3 -> 34 cells either way.
	assertTrue(t, cfg.Width == 34, "grid width covers the bounds")
	assertTrue(t, cfg.Height == 34, "grid height covers the bounds")
}

func TestNewConfigRejectsBadSettings(t *testing.T) {
	s := DefaultSettings()
	s.CellSize = 0
	if _, err := NewConfig(s, [3]float32{}, [3]float32{1, 1, 1}); err == nil {
		t.Errorf("zero cell size must be rejected")
	}

	s = DefaultSettings()
	s.MaxVertsPerPoly = 2
	if _, err := NewConfig(s, [3]float32{}, [3]float32{1, 1, 1}); err == nil {
		t.Errorf("polygons need at least three vertices")
	}
}

func TestNewConfigDisablesSmallDetailDist(t *testing.T) {
	s := DefaultSettings()
	s.DetailSampleDist = 0.5
	cfg, err := NewConfig(s, [3]float32{}, [3]float32{1, 1, 1})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	assertTrue(t, cfg.DetailSampleDist == 0, "sample distances below 0.9 disable sampling")
}

func TestMarkWalkableTriangles(t *testing.T) {
	verts := []float32{
		0, 0, 0,
		1, 0, 0,
		0, 0, -1,
	}
	walkableTri := []int32{0, 1, 2}
	unwalkableTri := []int32{0, 2, 1}

	areas := MarkWalkableTriangles(45, verts, walkableTri)
	if areas[0] != WalkableArea {
		t.Errorf("One walkable triangle")
	}

	areas = MarkWalkableTriangles(45, verts, unwalkableTri)
	if areas[0] != NullArea {
		t.Errorf("One non-walkable triangle")
	}

	areas = MarkWalkableTriangles(0, verts, walkableTri)
	if areas[0] != NullArea {
		t.Errorf("Slopes equal to the max slope are considered unwalkable.")
	}
}

func TestAddSpan(t *testing.T) {
	newHf := func() *Heightfield {
		return NewHeightfield(2, 2, [3]float32{0, 0, 0}, [3]float32{3, 4, 3}, 1.5, 2)
	}
	const area = 42

	hf := newHf()
	hf.AddSpan(0, 0, 0, 1, area, 1)
	s := hf.Spans[0]
	assertTrue(t, s != nil, "Add a span to an empty heightfield.")
	assertTrue(t, s.SMin == 0 && s.SMax == 1, "Add a span to an empty heightfield.")
	assertTrue(t, s.Area == area, "Add a span to an empty heightfield.")

	// Overlapping spans merge in place.
	hf.AddSpan(0, 0, 1, 2, area, 1)
	s = hf.Spans[0]
	assertTrue(t, s.SMin == 0 && s.SMax == 2, "Add a span that gets merged with an existing span.")
	assertTrue(t, s.Next == nil, "Add a span that gets merged with an existing span.")

	// A span bridging two disjoint spans collapses all three.
	hf = newHf()
	hf.AddSpan(0, 0, 0, 1, area, 1)
	hf.AddSpan(0, 0, 2, 3, area, 1)
	assertTrue(t, hf.Spans[0].Next != nil, "Disjoint spans stay separate.")
	hf.AddSpan(0, 0, 1, 2, area, 1)
	s = hf.Spans[0]
	assertTrue(t, s.SMin == 0 && s.SMax == 3, "Add a span that merges with two spans above and below.")
	assertTrue(t, s.Next == nil, "Add a span that merges with two spans above and below.")
}

func TestRasterizeTriangle(t *testing.T) {
	verts := []float32{
		0, 0, 0,
		1, 0, 0,
		0, 0, -1,
	}
	tris := []int32{0, 1, 2}
	areas := []uint8{42}

	bmin := [3]float32{0, 0, -1}
	bmax := [3]float32{1, 0, 0}
	w, h := CalcGridSize(bmin, bmax, 0.5)
	hf := NewHeightfield(w, h, bmin, bmax, 0.5, 0.5)

	if err := RasterizeTriangles(verts, tris, areas, hf, 1); err != nil {
		t.Fatalf("RasterizeTriangles: %v", err)
	}

	msg := "Rasterize a triangle"
	assertTrue(t, hf.Spans[0+0*w] != nil, msg)
	assertTrue(t, hf.Spans[1+0*w] == nil, msg)
	assertTrue(t, hf.Spans[0+1*w] != nil, msg)
	assertTrue(t, hf.Spans[1+1*w] != nil, msg)

	for _, col := range []int{0 + 0*w, 0 + 1*w, 1 + 1*w} {
		s := hf.Spans[col]
		assertTrue(t, s.SMin == 0, msg)
		assertTrue(t, s.SMax == 1, msg)
		assertTrue(t, s.Area == 42, msg)
		assertTrue(t, s.Next == nil, msg)
	}
}

func TestRasterizeTriangleOutsideGrid(t *testing.T) {
	// Bounding boxes overlap but the triangle itself lies outside the
	// grid; no spans may be produced.
	bmin := [3]float32{0, 0, 0}
	bmax := [3]float32{10, 10, 10}
	hf := NewHeightfield(10, 10, bmin, bmax, 1, 1)

	verts := []float32{
		-10, 5.5, -10,
		-10, 5.5, 3,
		3, 5.5, -10,
	}
	tris := []int32{0, 1, 2}
	areas := []uint8{42}

	if err := RasterizeTriangles(verts, tris, areas, hf, 1); err != nil {
		t.Fatalf("RasterizeTriangles: %v", err)
	}
	for i, s := range hf.Spans {
		if s != nil {
			t.Fatalf("span leaked into column %d", i)
		}
	}
}

func TestFilterLowHangingWalkableObstacles(t *testing.T) {
	hf := NewHeightfield(1, 1, [3]float32{}, [3]float32{1, 10, 1}, 1, 1)
	hf.AddSpan(0, 0, 0, 1, WalkableArea, 1)
	hf.AddSpan(0, 0, 2, 3, NullArea, 1)

	FilterLowHangingWalkableObstacles(2, hf)
	s := hf.Spans[0].Next
	assertTrue(t, s.Area == WalkableArea, "low obstacle above a walkable span becomes walkable")

	// Out of climb reach: stays an obstacle.
	hf = NewHeightfield(1, 1, [3]float32{}, [3]float32{1, 10, 1}, 1, 1)
	hf.AddSpan(0, 0, 0, 1, WalkableArea, 1)
	hf.AddSpan(0, 0, 5, 6, NullArea, 1)

	FilterLowHangingWalkableObstacles(2, hf)
	s = hf.Spans[0].Next
	assertTrue(t, s.Area == NullArea, "high obstacle keeps its area")
}

func TestFilterLedgeSpans(t *testing.T) {
	// A lone pillar high above empty neighbour columns is a ledge.
	hf := NewHeightfield(3, 3, [3]float32{}, [3]float32{3, 20, 3}, 1, 1)
	hf.AddSpan(1, 1, 0, 10, WalkableArea, 1)

	FilterLedgeSpans(2, 2, hf)
	assertTrue(t, hf.Spans[1+1*3].Area == NullArea, "pillar top is a ledge")

	// A flat patch has no ledges in its interior.
	hf = NewHeightfield(3, 3, [3]float32{}, [3]float32{3, 20, 3}, 1, 1)
	for z := 0; z < 3; z++ {
		for x := 0; x < 3; x++ {
			hf.AddSpan(x, z, 0, 1, WalkableArea, 1)
		}
	}
	FilterLedgeSpans(2, 2, hf)
	assertTrue(t, hf.Spans[1+1*3].Area == WalkableArea, "flat interior is not a ledge")
}

func TestFilterWalkableLowHeightSpans(t *testing.T) {
	hf := NewHeightfield(1, 1, [3]float32{}, [3]float32{1, 10, 1}, 1, 1)
	hf.AddSpan(0, 0, 0, 1, WalkableArea, 1)
	hf.AddSpan(0, 0, 3, 4, WalkableArea, 1)

	FilterWalkableLowHeightSpans(5, hf)
	assertTrue(t, hf.Spans[0].Area == NullArea, "span under a low ceiling loses the flag")
	assertTrue(t, hf.Spans[0].Next.Area == WalkableArea, "top span keeps the flag")
}

func TestBuildCompactHeightfield(t *testing.T) {
	hf := NewHeightfield(3, 3, [3]float32{}, [3]float32{3, 4, 3}, 1, 1)
	for z := 0; z < 3; z++ {
		for x := 0; x < 3; x++ {
			hf.AddSpan(x, z, 0, 1, WalkableArea, 1)
		}
	}

	chf, err := BuildCompactHeightfield(2, 1, hf)
	if err != nil {
		t.Fatalf("BuildCompactHeightfield: %v", err)
	}
	assertTrue(t, chf.SpanCount == 9, "every walkable span survives")

	// The centre cell sees all four neighbours; a corner sees two.
	centre := &chf.Spans[chf.Cells[1+1*3].Index]
	connected := 0
	for dir := 0; dir < 4; dir++ {
		if centre.Con(dir) != notConnected {
			connected++
		}
	}
	assertTrue(t, connected == 4, "interior span connects in all directions")

	corner := &chf.Spans[chf.Cells[0].Index]
	connected = 0
	for dir := 0; dir < 4; dir++ {
		if corner.Con(dir) != notConnected {
			connected++
		}
	}
	assertTrue(t, connected == 2, "corner span connects along the two inside edges")
}

func TestErodeWalkableArea(t *testing.T) {
	hf := NewHeightfield(5, 5, [3]float32{}, [3]float32{5, 4, 5}, 1, 1)
	for z := 0; z < 5; z++ {
		for x := 0; x < 5; x++ {
			hf.AddSpan(x, z, 0, 1, WalkableArea, 1)
		}
	}
	chf, err := BuildCompactHeightfield(2, 1, hf)
	if err != nil {
		t.Fatalf("BuildCompactHeightfield: %v", err)
	}
	if err := ErodeWalkableArea(1, chf); err != nil {
		t.Fatalf("ErodeWalkableArea: %v", err)
	}

	// Eroding by one cell strips the outer ring and keeps the 3x3 core.
	walkable := 0
	for _, a := range chf.Areas {
		if a != NullArea {
			walkable++
		}
	}
	assertTrue(t, walkable == 9, "erosion keeps the interior core")
	assertTrue(t, chf.Areas[chf.Cells[2+2*5].Index] != NullArea, "centre survives erosion")
	assertTrue(t, chf.Areas[chf.Cells[0].Index] == NullArea, "border cell is eroded")
}
