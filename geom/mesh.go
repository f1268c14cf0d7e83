// Package geom holds the input geometry consumed by the bake pipeline:
// position-only vertex buffers, triangle index triples and axis-aligned
// bounds. Only positions are consumed here; normals and UVs from richer
// asset formats are projected away before the mesh reaches this package.
package geom

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// TriMesh is a system-memory resident triangle soup. Verts is a flat
// [x,y,z]*VertCount buffer, Tris holds VertCount indices per triangle
// corner, three per triangle.
type TriMesh struct {
	Verts []float32
	Tris  []int32
}

// VertCount returns the number of vertices in the mesh.
func (m *TriMesh) VertCount() int { return len(m.Verts) / 3 }

// TriCount returns the number of triangles in the mesh.
func (m *TriMesh) TriCount() int { return len(m.Tris) / 3 }

// Vert returns the i-th vertex position.
func (m *TriMesh) Vert(i int) mgl32.Vec3 {
	return mgl32.Vec3{m.Verts[i*3], m.Verts[i*3+1], m.Verts[i*3+2]}
}

// Validate checks the structural preconditions the pipeline relies on.
func (m *TriMesh) Validate() error {
	if m == nil || len(m.Verts) == 0 {
		return fmt.Errorf("geom: mesh has no resident vertex data")
	}
	if len(m.Verts)%3 != 0 {
		return fmt.Errorf("geom: vertex buffer length %d is not a multiple of 3", len(m.Verts))
	}
	if len(m.Tris) == 0 || len(m.Tris)%3 != 0 {
		return fmt.Errorf("geom: index buffer length %d is not a multiple of 3", len(m.Tris))
	}
	n := int32(m.VertCount())
	for i, idx := range m.Tris {
		if idx < 0 || idx >= n {
			return fmt.Errorf("geom: triangle corner %d references vertex %d of %d", i, idx, n)
		}
	}
	return nil
}

// AABB is an axis-aligned bounding box in world units.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// CalcBounds computes the tight axis-aligned bounds of the mesh.
func CalcBounds(m *TriMesh) AABB {
	b := AABB{Min: m.Vert(0), Max: m.Vert(0)}
	for i := 1; i < m.VertCount(); i++ {
		v := m.Vert(i)
		for c := 0; c < 3; c++ {
			if v[c] < b.Min[c] {
				b.Min[c] = v[c]
			}
			if v[c] > b.Max[c] {
				b.Max[c] = v[c]
			}
		}
	}
	return b
}
