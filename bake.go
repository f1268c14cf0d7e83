// Package navbake bakes triangle geometry into a navigation mesh with a
// ready-to-use spatial query. The pipeline voxelizes the input, filters
// and partitions the walkable surface, traces it into convex polygons
// with height detail and serializes the result into runtime navigation
// data.
package navbake

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lnkwrm/navbake/geom"
	"github.com/lnkwrm/navbake/nav"
	"github.com/lnkwrm/navbake/voxel"
)

// Polygon flags assigned to baked polygons.
const (
	// FlagWalk marks polygons an agent may stand on. Queries with the
	// default filter only see flagged polygons.
	FlagWalk uint16 = 0x01
)

// queryMaxNodes bounds the search node pool of the baked query object.
const queryMaxNodes = 2048

// ErrTooManyPolyVerts reports a max-verts-per-poly setting above what
// the runtime navigation format supports. The bake is skipped, not
// failed.
var ErrTooManyPolyVerts = errors.New("navbake: max verts per poly exceeds the navigation format limit")

// BakeOptions are the caller-facing tuning knobs of a bake.
type BakeOptions struct {
	voxel.Settings
}

// DefaultBakeOptions returns options tuned for human-scaled agents.
func DefaultBakeOptions() BakeOptions {
	return BakeOptions{Settings: voxel.DefaultSettings()}
}

// Outcome classifies how a bake ended.
type Outcome int

const (
	// Success: the component carries a live mesh and query.
	Success Outcome = iota
	// Skipped: the inputs were valid but outside what the runtime
	// format supports; no component was produced and nothing failed.
	Skipped
	// Failed: a pipeline stage reported an error; Result.Stage and
	// Result.Err identify it.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Stats summarize a finished bake.
type Stats struct {
	GridWidth    int
	GridHeight   int
	SpanCount    int
	RegionCount  int
	ContourCount int
	PolyCount    int
	VertCount    int
	DetailVerts  int
	DetailTris   int
	Duration     time.Duration
}

// Result is the full report of one bake attempt.
type Result struct {
	Outcome   Outcome
	Stage     string
	Err       error
	Component *Component
	Stats     Stats
}

func failed(stage string, err error) Result {
	return Result{
		Outcome: Failed,
		Stage:   stage,
		Err:     fmt.Errorf("%s: %w", stage, err),
	}
}

// Bake runs the whole pipeline over the mesh. Stage errors surface as
// the Failed outcome; settings the navigation format cannot represent
// surface as Skipped. A nil logger disables logging.
func Bake(mesh *geom.TriMesh, opts BakeOptions, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	// Precondition: geometry must be resident and well-formed. This is
	// a recoverable input error for this bake attempt, not a crash.
	if err := mesh.Validate(); err != nil {
		return failed("validate", err)
	}

	bounds := geom.CalcBounds(mesh)
	bmin := [3]float32{bounds.Min[0], bounds.Min[1], bounds.Min[2]}
	bmax := [3]float32{bounds.Max[0], bounds.Max[1], bounds.Max[2]}

	cfg, err := voxel.NewConfig(opts.Settings, bmin, bmax)
	if err != nil {
		return failed("config", err)
	}
	logger.Debug("configured bake grid",
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Int("tris", mesh.TriCount()),
		zap.Stringer("partition", opts.Partition))

	// Stage 2: rasterize the triangles into a solid heightfield.
	hf := voxel.NewHeightfield(cfg.Width, cfg.Height, cfg.BMin, cfg.BMax, cfg.Cs, cfg.Ch)
	areas := voxel.MarkWalkableTriangles(cfg.WalkableSlopeAngle, mesh.Verts, mesh.Tris)
	if err := voxel.RasterizeTriangles(mesh.Verts, mesh.Tris, areas, hf, cfg.WalkableClimb); err != nil {
		return failed("rasterize", err)
	}

	// Stage 3: filter out unwalkable spans.
	voxel.FilterLowHangingWalkableObstacles(cfg.WalkableClimb, hf)
	voxel.FilterLedgeSpans(cfg.WalkableHeight, cfg.WalkableClimb, hf)
	voxel.FilterWalkableLowHeightSpans(cfg.WalkableHeight, hf)

	// Stage 4: compact representation plus agent-radius erosion. The
	// solid heightfield is no longer needed once compacted.
	chf, err := voxel.BuildCompactHeightfield(cfg.WalkableHeight, cfg.WalkableClimb, hf)
	if err != nil {
		return failed("compact", err)
	}
	hf = nil
	if err := voxel.ErodeWalkableArea(cfg.WalkableRadius, chf); err != nil {
		return failed("erode", err)
	}
	logger.Debug("compacted heightfield", zap.Int("spans", chf.SpanCount))

	// Stage 5: partition the walkable surface into regions.
	switch opts.Partition {
	case voxel.PartitionWatershed:
		if err := voxel.BuildDistanceField(chf); err != nil {
			return failed("partition", err)
		}
		if err := voxel.BuildRegions(chf, 0, cfg.MinRegionArea, cfg.MergeRegionArea); err != nil {
			return failed("partition", err)
		}
	case voxel.PartitionMonotone:
		if err := voxel.BuildRegionsMonotone(chf, 0, cfg.MinRegionArea, cfg.MergeRegionArea); err != nil {
			return failed("partition", err)
		}
	case voxel.PartitionLayer:
		if err := voxel.BuildRegionsLayer(chf, 0, cfg.MinRegionArea); err != nil {
			return failed("partition", err)
		}
	default:
		return failed("partition", fmt.Errorf("unknown partition %v", opts.Partition))
	}
	logger.Debug("partitioned surface", zap.Int("regions", chf.MaxRegions))

	// Stage 6: trace and simplify region contours.
	cset, err := voxel.BuildContours(chf, cfg.MaxSimplificationError, cfg.MaxEdgeLen, voxel.TessWallEdges)
	if err != nil {
		return failed("contour", err)
	}

	// Stage 7: convex polygon mesh.
	pm, err := voxel.BuildPolyMesh(cset, cfg.MaxVertsPerPoly)
	if err != nil {
		return failed("polymesh", err)
	}

	// Stage 8: per-polygon height detail. The compact heightfield and
	// contours are released afterwards.
	dm, err := voxel.BuildPolyMeshDetail(pm, chf, cfg.DetailSampleDist, cfg.DetailSampleMaxError)
	if err != nil {
		return failed("detail", err)
	}

	stats := Stats{
		GridWidth:    cfg.Width,
		GridHeight:   cfg.Height,
		SpanCount:    chf.SpanCount,
		RegionCount:  chf.MaxRegions,
		ContourCount: len(cset.Conts),
		PolyCount:    pm.NPolys,
		VertCount:    pm.NVerts,
		DetailVerts:  dm.NVerts,
		DetailTris:   dm.NTris,
	}
	chf = nil
	cset = nil

	// The runtime format stores at most nav.VertsPerPolygon vertices
	// per polygon. A larger setting is a warning, not an error.
	if pm.Nvp > nav.VertsPerPolygon {
		logger.Warn("skipping navigation data build",
			zap.Int("maxVertsPerPoly", pm.Nvp),
			zap.Int("limit", nav.VertsPerPolygon))
		stats.Duration = time.Since(start)
		return Result{Outcome: Skipped, Err: ErrTooManyPolyVerts, Stats: stats}
	}

	// Remap bake areas to runtime areas and flags so the default query
	// filter passes walkable polygons.
	for i := 0; i < pm.NPolys; i++ {
		if pm.Areas[i] == voxel.WalkableArea {
			pm.Areas[i] = 0
			pm.Flags[i] = FlagWalk
		}
	}

	// Stage 9: serialize into navigation data and stand up the runtime.
	params := &nav.CreateParams{
		Verts:           pm.Verts,
		VertCount:       pm.NVerts,
		Polys:           pm.Polys,
		PolyAreas:       pm.Areas,
		PolyFlags:       pm.Flags,
		PolyCount:       pm.NPolys,
		Nvp:             pm.Nvp,
		DetailMeshes:    dm.Meshes,
		DetailVerts:     dm.Verts,
		DetailVertCount: dm.NVerts,
		DetailTris:      dm.Tris,
		DetailTriCount:  dm.NTris,
		BMin:            pm.BMin,
		BMax:            pm.BMax,
		WalkableHeight:  opts.Agent.Height,
		WalkableRadius:  opts.Agent.Radius,
		WalkableClimb:   opts.Agent.MaxClimb,
		Cs:              cfg.Cs,
		Ch:              cfg.Ch,
		BuildBvTree:     true,
	}
	data, err := nav.CreateNavMeshData(params)
	if err != nil {
		return failed("serialize", err)
	}

	navMesh, err := nav.NewNavMesh(data, nav.TileFreeData)
	if err != nil {
		return failed("navmesh", err)
	}
	query, err := nav.NewNavMeshQuery(navMesh, queryMaxNodes)
	if err != nil {
		return failed("query", err)
	}

	stats.Duration = time.Since(start)
	logger.Info("bake finished",
		zap.Int("polys", pm.NPolys),
		zap.Int("verts", pm.NVerts),
		zap.Duration("took", stats.Duration))

	return Result{
		Outcome: Success,
		Stats:   stats,
		Component: &Component{
			Data:  data,
			Mesh:  navMesh,
			Query: query,
		},
	}
}
