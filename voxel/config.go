package voxel

import (
	"fmt"
	"math"
)

// Partition selects the region partitioning strategy used in stage 5.
type Partition int

const (
	// PartitionWatershed grows regions from the maxima of a
	// distance-to-boundary field. Slowest, nicest tessellation.
	PartitionWatershed Partition = iota
	// PartitionMonotone sweeps rows directly into monotone regions.
	// Fastest, but produces long thin polygons.
	PartitionMonotone
	// PartitionLayer groups cells into height-consistent layers, meant
	// for stacked multi-level geometry.
	PartitionLayer
)

func (p Partition) String() string {
	switch p {
	case PartitionWatershed:
		return "watershed"
	case PartitionMonotone:
		return "monotone"
	case PartitionLayer:
		return "layer"
	}
	return fmt.Sprintf("partition(%d)", int(p))
}

// AgentProfile describes the locomotion envelope the mesh is baked for.
// All values are in world units except MaxSlope, which is in degrees.
type AgentProfile struct {
	Height   float32
	Radius   float32
	MaxClimb float32
	MaxSlope float32
}

// Config is the voxelization configuration derived from agent parameters
// and cell dimensions. Voxel-unit fields (vx) are ceiling conversions of
// the corresponding world-unit (wu) inputs.
type Config struct {
	Width  int // grid width along x, vx
	Height int // grid height along z, vx

	Cs float32 // cell size on the xz-plane, wu
	Ch float32 // cell height along y, wu

	BMin [3]float32
	BMax [3]float32

	WalkableSlopeAngle     float32 // degrees
	WalkableHeight         int     // vx
	WalkableClimb          int     // vx
	WalkableRadius         int     // vx
	MaxEdgeLen             int     // vx
	MaxSimplificationError float32 // vx
	MinRegionArea          int     // vx^2
	MergeRegionArea        int     // vx^2
	MaxVertsPerPoly        int
	DetailSampleDist       float32 // wu
	DetailSampleMaxError   float32 // wu
}

// Settings are the caller-facing tuning knobs the config is derived from.
// World-unit values; region sizes are minimum dimensions in cells whose
// squares become the area thresholds.
type Settings struct {
	CellSize   float32
	CellHeight float32

	Agent AgentProfile

	MaxEdgeLen             float32
	MaxSimplificationError float32
	RegionMinSize          float32
	RegionMergeSize        float32
	MaxVertsPerPoly        int
	DetailSampleDist       float32
	DetailSampleMaxError   float32

	Partition Partition
}

// DefaultSettings mirror the common defaults for human-scaled agents.
func DefaultSettings() Settings {
	return Settings{
		CellSize:   0.3,
		CellHeight: 0.2,
		Agent: AgentProfile{
			Height:   2.0,
			Radius:   0.6,
			MaxClimb: 0.9,
			MaxSlope: 45,
		},
		MaxEdgeLen:             12,
		MaxSimplificationError: 1.3,
		RegionMinSize:          8,
		RegionMergeSize:        20,
		MaxVertsPerPoly:        6,
		DetailSampleDist:       6,
		DetailSampleMaxError:   1,
		Partition:              PartitionWatershed,
	}
}

// NewConfig derives the voxelization configuration from the settings and
// the navigation bounds. The grid is sized by ceiling division so it
// fully covers the bounds.
func NewConfig(s Settings, bmin, bmax [3]float32) (*Config, error) {
	if s.CellSize <= 0 || s.CellHeight <= 0 {
		return nil, fmt.Errorf("voxel: cell size %g and cell height %g must be positive", s.CellSize, s.CellHeight)
	}
	if s.Agent.Height <= 0 || s.Agent.Radius < 0 || s.Agent.MaxClimb < 0 {
		return nil, fmt.Errorf("voxel: invalid agent profile %+v", s.Agent)
	}
	if s.MaxVertsPerPoly < 3 {
		return nil, fmt.Errorf("voxel: max verts per poly %d < 3", s.MaxVertsPerPoly)
	}

	cfg := &Config{
		Cs:                     s.CellSize,
		Ch:                     s.CellHeight,
		BMin:                   bmin,
		BMax:                   bmax,
		WalkableSlopeAngle:     s.Agent.MaxSlope,
		WalkableHeight:         int(math.Ceil(float64(s.Agent.Height / s.CellHeight))),
		WalkableClimb:          int(math.Ceil(float64(s.Agent.MaxClimb / s.CellHeight))),
		WalkableRadius:         int(math.Ceil(float64(s.Agent.Radius / s.CellSize))),
		MaxEdgeLen:             int(s.MaxEdgeLen / s.CellSize),
		MaxSimplificationError: s.MaxSimplificationError,
		MinRegionArea:          int(sqr(s.RegionMinSize)),
		MergeRegionArea:        int(sqr(s.RegionMergeSize)),
		MaxVertsPerPoly:        s.MaxVertsPerPoly,
		DetailSampleMaxError:   s.CellHeight * s.DetailSampleMaxError,
	}
	// Sample distances below 0.9 disable detail sampling entirely.
	if s.DetailSampleDist >= 0.9 {
		cfg.DetailSampleDist = s.CellSize * s.DetailSampleDist
	}
	cfg.Width, cfg.Height = CalcGridSize(bmin, bmax, s.CellSize)
	return cfg, nil
}

// CalcGridSize returns the voxel grid dimensions covering the bounds.
func CalcGridSize(bmin, bmax [3]float32, cs float32) (w, h int) {
	w = int(math.Ceil(float64((bmax[0] - bmin[0]) / cs)))
	h = int(math.Ceil(float64((bmax[2] - bmin[2]) / cs)))
	return w, h
}
