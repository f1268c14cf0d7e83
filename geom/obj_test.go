package geom

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOBJ(t *testing.T) {
	src := `# a unit quad
v 0 0 0
v 1 0 0
v 1 0 1
v 0 0 1
f 1 2 3 4
`
	m, err := ReadOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 4, m.VertCount())
	assert.Equal(t, 2, m.TriCount(), "quads fan-triangulate")
	assert.Equal(t, []int32{0, 1, 2, 0, 2, 3}, m.Tris)
}

func TestReadOBJCornerForms(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 0 1
f 1/1 2/2/2 3//3
`
	m, err := ReadOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, m.Tris)
}

func TestReadOBJNegativeIndices(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 0 1
f -3 -2 -1
`
	m, err := ReadOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, m.Tris)
}

func TestReadOBJErrors(t *testing.T) {
	_, err := ReadOBJ(strings.NewReader("v 0 0\n"))
	assert.Error(t, err, "short vertex record")

	_, err = ReadOBJ(strings.NewReader("v 0 0 0\nf 1 2 3\n"))
	assert.Error(t, err, "face index out of range")

	_, err = ReadOBJ(strings.NewReader("f 1 2\n"))
	assert.Error(t, err, "degenerate face")

	_, err = ReadOBJ(strings.NewReader("# nothing\n"))
	assert.Error(t, err, "empty geometry fails validation")
}

func TestLoadOBJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.obj")
	require.NoError(t, os.WriteFile(path, []byte("v 0 0 0\nv 1 0 0\nv 0 0 1\nf 1 2 3\n"), 0o644))

	m, err := LoadOBJ(path)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TriCount())

	_, err = LoadOBJ(filepath.Join(t.TempDir(), "missing.obj"))
	assert.Error(t, err)
}

func TestCalcBounds(t *testing.T) {
	m := &TriMesh{
		Verts: []float32{1, 2, 3, 0, 2, 5, -1, 4, 3},
		Tris:  []int32{0, 1, 2},
	}
	b := CalcBounds(m)
	assert.Equal(t, float32(-1), b.Min[0])
	assert.Equal(t, float32(2), b.Min[1])
	assert.Equal(t, float32(3), b.Min[2])
	assert.Equal(t, float32(1), b.Max[0])
	assert.Equal(t, float32(4), b.Max[1])
	assert.Equal(t, float32(5), b.Max[2])
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&TriMesh{}).Validate())
	assert.Error(t, (&TriMesh{Verts: []float32{0, 0}}).Validate())

	m := &TriMesh{Verts: []float32{0, 0, 0, 1, 0, 0, 0, 0, 1}, Tris: []int32{0, 1, 2}}
	assert.NoError(t, m.Validate())
}
