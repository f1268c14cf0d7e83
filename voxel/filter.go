package voxel

// FilterLowHangingWalkableObstacles marks non-walkable spans as walkable
// when a walkable span directly below is within climb reach, so kerbs and
// low steps do not break the surface. The walkable flag only propagates
// across a single obstacle.
func FilterLowHangingWalkableObstacles(walkableClimb int, hf *Heightfield) {
	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			var prev *Span
			prevWalkable := false
			prevArea := uint8(NullArea)

			for s := hf.Spans[x+z*hf.Width]; s != nil; s = s.Next {
				walkable := s.Area != NullArea
				if !walkable && prevWalkable {
					if abs(s.SMax-prev.SMax) <= walkableClimb {
						s.Area = prevArea
					}
				}
				prevWalkable = walkable
				prevArea = s.Area
				prev = s
			}
		}
	}
}

// FilterLedgeSpans removes the walkable flag from spans at ledges: spans
// whose drop to some neighbour exceeds walkableClimb, or whose accessible
// neighbours differ in height by more than walkableClimb (steep slope).
func FilterLedgeSpans(walkableHeight, walkableClimb int, hf *Heightfield) {
	w := hf.Width
	h := hf.Height

	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			for s := hf.Spans[x+z*w]; s != nil; s = s.Next {
				if s.Area == NullArea {
					continue
				}

				bot := s.SMax
				top := maxHeight
				if s.Next != nil {
					top = s.Next.SMin
				}

				minNeighborHeight := maxHeight
				accessibleMin := s.SMax
				accessibleMax := s.SMax

				for dir := 0; dir < 4; dir++ {
					dx := x + dirOffsetX[dir]
					dz := z + dirOffsetZ[dir]
					if dx < 0 || dz < 0 || dx >= w || dz >= h {
						minNeighborHeight = min(minNeighborHeight, -walkableClimb-bot)
						continue
					}

					// The gap from minus infinity up to the first
					// neighbour span.
					ns := hf.Spans[dx+dz*w]
					neighborBot := -walkableClimb
					neighborTop := maxHeight
					if ns != nil {
						neighborTop = ns.SMin
					}
					if min(top, neighborTop)-max(bot, neighborBot) > walkableHeight {
						minNeighborHeight = min(minNeighborHeight, neighborBot-bot)
					}

					for ; ns != nil; ns = ns.Next {
						neighborBot = ns.SMax
						neighborTop = maxHeight
						if ns.Next != nil {
							neighborTop = ns.Next.SMin
						}
						if min(top, neighborTop)-max(bot, neighborBot) <= walkableHeight {
							continue
						}
						minNeighborHeight = min(minNeighborHeight, neighborBot-bot)
						if abs(neighborBot-bot) <= walkableClimb {
							accessibleMin = min(accessibleMin, neighborBot)
							accessibleMax = max(accessibleMax, neighborBot)
						}
					}
				}

				if minNeighborHeight < -walkableClimb {
					s.Area = NullArea
				} else if accessibleMax-accessibleMin > walkableClimb {
					s.Area = NullArea
				}
			}
		}
	}
}

// FilterWalkableLowHeightSpans removes the walkable flag from spans with
// less clearance above them than the agent's walkable height.
func FilterWalkableLowHeightSpans(walkableHeight int, hf *Heightfield) {
	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			for s := hf.Spans[x+z*hf.Width]; s != nil; s = s.Next {
				bot := s.SMax
				top := maxHeight
				if s.Next != nil {
					top = s.Next.SMin
				}
				if top-bot < walkableHeight {
					s.Area = NullArea
				}
			}
		}
	}
}
