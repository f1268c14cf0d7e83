// Package voxel implements the voxelization half of the navigation mesh
// bake: heightfield rasterization, span filtering, compact heightfield
// construction and erosion, region partitioning, contour tracing, and
// polygon/detail mesh building. Structures flow strictly forward from one
// stage to the next; each stage owns its output and nothing else.
package voxel

const (
	// WalkableArea is the default area id for walkable spans. It is also
	// the maximum area id recognized by the build steps.
	WalkableArea = 63

	// NullArea marks a span or cell as un-walkable.
	NullArea = 0

	// notConnected is stored in a compact span's packed connection field
	// for directions without a reachable neighbour.
	notConnected = 0x3f

	// borderReg flags a region id as a border region whose spans are
	// considered un-walkable during contour generation.
	borderReg = 0x8000

	// spanHeightBits is the number of bits available for span heights.
	spanHeightBits = 13
	spanMaxHeight  = (1 << spanHeightBits) - 1

	maxHeight = 0xffff
)

// Direction offsets for the four cardinal neighbours, in the order
// (-1,0), (0,1), (1,0), (0,-1).
var dirOffsetX = [4]int{-1, 0, 1, 0}
var dirOffsetZ = [4]int{0, 1, 0, -1}

func min[T int | float32 | float64](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func max[T int | float32 | float64](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func abs[T int | float32 | float64](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

func clamp[T int | float32 | float64](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sqr[T int | float32 | float64](a T) T { return a * a }
