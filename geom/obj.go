package geom

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadOBJ reads a Wavefront OBJ file and returns its triangle soup.
// Faces with more than three corners are fan-triangulated. Only "v" and
// "f" records are consumed.
func LoadOBJ(path string) (*TriMesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("geom: %s: %w", path, err)
	}
	return m, nil
}

// ReadOBJ parses OBJ-formatted geometry from r.
func ReadOBJ(r io.Reader) (*TriMesh, error) {
	mesh := &TriMesh{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: short vertex record", line)
			}
			for _, s := range fields[1:4] {
				v, err := strconv.ParseFloat(s, 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				mesh.Verts = append(mesh.Verts, float32(v))
			}
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face with fewer than 3 corners", line)
			}
			idx := make([]int32, 0, len(fields)-1)
			for _, s := range fields[1:] {
				i, err := parseFaceIndex(s, mesh.VertCount())
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				idx = append(idx, i)
			}
			for i := 2; i < len(idx); i++ {
				mesh.Tris = append(mesh.Tris, idx[0], idx[i-1], idx[i])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	return mesh, nil
}

// parseFaceIndex handles "v", "v/vt", "v//vn" and "v/vt/vn" corner forms.
// OBJ indices are 1-based; negative indices count back from the end.
func parseFaceIndex(s string, nverts int) (int32, error) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		v += nverts
	} else {
		v--
	}
	if v < 0 || v >= nverts {
		return 0, fmt.Errorf("face index %s out of range", s)
	}
	return int32(v), nil
}
