package voxel

// ErodeWalkableArea shrinks the walkable area inward by the given radius
// (in cells) so any remaining walkable cell can hold the agent's full
// footprint. The distance transform is a two-pass chamfer over the span
// graph with boundary cells seeded at zero.
func ErodeWalkableArea(radius int, chf *CompactHeightfield) error {
	w := chf.Width
	h := chf.Height

	dist := make([]int, chf.SpanCount)
	for i := range dist {
		dist[i] = 0xff
	}

	// Seed boundary cells.
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if chf.Areas[i] == NullArea {
					dist[i] = 0
					continue
				}
				s := &chf.Spans[i]
				neighbors := 0
				for dir := 0; dir < 4; dir++ {
					con := s.Con(dir)
					if con == notConnected {
						break
					}
					nx := x + dirOffsetX[dir]
					nz := z + dirOffsetZ[dir]
					ni := chf.Cells[nx+nz*w].Index + con
					if chf.Areas[ni] == NullArea {
						break
					}
					neighbors++
				}
				if neighbors != 4 {
					dist[i] = 0
				}
			}
		}
	}

	relax := func(i, ni, cost int) {
		if d := min(dist[ni]+cost, 255); d < dist[i] {
			dist[i] = d
		}
	}

	// Pass 1: top-left to bottom-right.
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]

				if s.Con(0) != notConnected {
					// (-1,0)
					ax := x + dirOffsetX[0]
					az := z + dirOffsetZ[0]
					ai := chf.Cells[ax+az*w].Index + s.Con(0)
					relax(i, ai, 2)
					// (-1,-1)
					as := &chf.Spans[ai]
					if as.Con(3) != notConnected {
						bx := ax + dirOffsetX[3]
						bz := az + dirOffsetZ[3]
						bi := chf.Cells[bx+bz*w].Index + as.Con(3)
						relax(i, bi, 3)
					}
				}
				if s.Con(3) != notConnected {
					// (0,-1)
					ax := x + dirOffsetX[3]
					az := z + dirOffsetZ[3]
					ai := chf.Cells[ax+az*w].Index + s.Con(3)
					relax(i, ai, 2)
					// (1,-1)
					as := &chf.Spans[ai]
					if as.Con(2) != notConnected {
						bx := ax + dirOffsetX[2]
						bz := az + dirOffsetZ[2]
						bi := chf.Cells[bx+bz*w].Index + as.Con(2)
						relax(i, bi, 3)
					}
				}
			}
		}
	}

	// Pass 2: bottom-right to top-left.
	for z := h - 1; z >= 0; z-- {
		for x := w - 1; x >= 0; x-- {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]

				if s.Con(2) != notConnected {
					// (1,0)
					ax := x + dirOffsetX[2]
					az := z + dirOffsetZ[2]
					ai := chf.Cells[ax+az*w].Index + s.Con(2)
					relax(i, ai, 2)
					// (1,1)
					as := &chf.Spans[ai]
					if as.Con(1) != notConnected {
						bx := ax + dirOffsetX[1]
						bz := az + dirOffsetZ[1]
						bi := chf.Cells[bx+bz*w].Index + as.Con(1)
						relax(i, bi, 3)
					}
				}
				if s.Con(1) != notConnected {
					// (0,1)
					ax := x + dirOffsetX[1]
					az := z + dirOffsetZ[1]
					ai := chf.Cells[ax+az*w].Index + s.Con(1)
					relax(i, ai, 2)
					// (-1,1)
					as := &chf.Spans[ai]
					if as.Con(0) != notConnected {
						bx := ax + dirOffsetX[0]
						bz := az + dirOffsetZ[0]
						bi := chf.Cells[bx+bz*w].Index + as.Con(0)
						relax(i, bi, 3)
					}
				}
			}
		}
	}

	// Cardinal steps cost 2, so the footprint threshold is twice the
	// radius.
	thr := radius * 2
	for i := 0; i < chf.SpanCount; i++ {
		if dist[i] < thr {
			chf.Areas[i] = NullArea
		}
	}
	return nil
}
