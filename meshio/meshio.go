// Package meshio loads and saves meshes as OBJ, OFF or binary STL files.
package meshio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/stl"
	"github.com/go-gl/mathgl/mgl64"
)

// Format is a mesh file format.
type Format string

const (
	OBJ Format = "obj"
	OFF Format = "off"
	STL Format = "stl"
)

// Formats lists every supported format.
var Formats = []Format{OBJ, OFF, STL}

// ParseFormat parses a format name such as "obj" or ".OFF".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(s, ".")))
	switch f {
	case OBJ, OFF, STL:
		return f, nil
	}
	return "", fmt.Errorf("unknown mesh format %q", s)
}

// FormatFromPath returns the format implied by a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Ext returns the file extension of the format, including the dot.
func (f Format) Ext() string { return "." + string(f) }

// Load reads the mesh at path, choosing the format by extension.
func Load(path string) (*mesh.Mesh, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	return LoadFormat(path, f)
}

// LoadFormat reads the mesh at path in the given format.
func LoadFormat(path string, f Format) (*mesh.Mesh, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var m *mesh.Mesh
	switch f {
	case OBJ:
		m, err = ReadOBJ(r)
	case OFF:
		m, err = ReadOFF(r)
	case STL:
		var tris [][3]mgl64.Vec3
		tris, err = stl.Read(r)
		if err == nil {
			m = mesh.FromTriangles(tris)
		}
	default:
		return nil, fmt.Errorf("Load: unknown mesh format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("Load %v: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("Load %v: %w", path, err)
	}
	return m, nil
}

// Save writes m to path in the given format, replacing any existing file.
func Save(path string, m *mesh.Mesh, f Format) error {
	if f == STL {
		return saveSTL(path, m)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	switch f {
	case OBJ:
		err = WriteOBJ(w, m)
	case OFF:
		err = WriteOFF(w, m)
	default:
		err = fmt.Errorf("unknown mesh format %q", f)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("Save %v: %w", path, err)
	}
	return nil
}

func saveSTL(path string, m *mesh.Mesh) error {
	if err := stl.Save(path, m); err != nil {
		return fmt.Errorf("Save %v: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteOBJ writes m as a Wavefront OBJ stream.
func WriteOBJ(w io.Writer, m *mesh.Mesh) error {
	for _, v := range m.Vertices {
		if _, err := fmt.Fprintf(w, "v %v %v %v\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2])); err != nil {
			return err
		}
	}
	for _, f := range m.Faces {
		// OBJ indices are 1-based.
		if _, err := fmt.Fprintf(w, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1); err != nil {
			return err
		}
	}
	return nil
}

// ReadOBJ parses the vertices and faces of a Wavefront OBJ stream.
// Polygons are fan-triangulated; texture and normal indices are ignored.
func ReadOBJ(r io.Reader) (*mesh.Mesh, error) {
	m := &mesh.Mesh{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		words := strings.Fields(scanner.Text())
		if len(words) == 0 {
			continue
		}

		switch words[0] {
		case "v":
			if len(words) < 4 {
				return nil, fmt.Errorf("line %v: vertices must be 3D", line)
			}
			v, err := parseVec3(words[1:4])
			if err != nil {
				return nil, fmt.Errorf("line %v: %v", line, err)
			}
			m.Vertices = append(m.Vertices, v)

		case "f":
			if len(words) < 4 {
				return nil, fmt.Errorf("line %v: face needs at least 3 vertices", line)
			}
			poly := make([]int, 0, len(words)-1)
			for _, word := range words[1:] {
				idx, err := strconv.Atoi(strings.SplitN(word, "/", 2)[0])
				if err != nil {
					return nil, fmt.Errorf("line %v: %v", line, err)
				}
				switch {
				case idx > 0:
					idx--
				case idx < 0:
					idx += len(m.Vertices)
				default:
					return nil, fmt.Errorf("line %v: face index 0", line)
				}
				poly = append(poly, idx)
			}
			m.Faces = appendFan(m.Faces, poly)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteOFF writes m as an Object File Format stream.
func WriteOFF(w io.Writer, m *mesh.Mesh) error {
	if _, err := fmt.Fprintf(w, "OFF\n%d %d 0\n", len(m.Vertices), len(m.Faces)); err != nil {
		return err
	}
	for _, v := range m.Vertices {
		if _, err := fmt.Fprintf(w, "%v %v %v\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2])); err != nil {
			return err
		}
	}
	for _, f := range m.Faces {
		if _, err := fmt.Fprintf(w, "3 %d %d %d\n", f[0], f[1], f[2]); err != nil {
			return err
		}
	}
	return nil
}

// ReadOFF parses an Object File Format stream. Polygons are
// fan-triangulated and per-face colors are ignored.
func ReadOFF(r io.Reader) (*mesh.Mesh, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var tokens []string
	line := 0
	next := func() ([]string, error) {
		for scanner.Scan() {
			line++
			text := scanner.Text()
			if i := strings.IndexByte(text, '#'); i >= 0 {
				text = text[:i]
			}
			if words := strings.Fields(text); len(words) > 0 {
				return words, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}

	words, err := next()
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(words[0], "OFF") {
		return nil, fmt.Errorf("line %v: missing OFF header", line)
	}
	// The counts may follow the keyword on the same line.
	tokens = words[1:]
	if len(tokens) == 0 {
		if tokens, err = next(); err != nil {
			return nil, err
		}
	}
	if len(tokens) < 2 {
		return nil, fmt.Errorf("line %v: expected vertex and face counts", line)
	}
	nv, err := strconv.Atoi(tokens[0])
	if err != nil {
		return nil, fmt.Errorf("line %v: %v", line, err)
	}
	nf, err := strconv.Atoi(tokens[1])
	if err != nil {
		return nil, fmt.Errorf("line %v: %v", line, err)
	}
	if nv < 0 || nf < 0 {
		return nil, fmt.Errorf("line %v: negative counts", line)
	}

	m := &mesh.Mesh{Vertices: make([]mgl64.Vec3, 0, nv), Faces: make([][3]int, 0, nf)}
	for i := 0; i < nv; i++ {
		words, err := next()
		if err != nil {
			return nil, fmt.Errorf("vertex %v: %w", i, err)
		}
		if len(words) < 3 {
			return nil, fmt.Errorf("line %v: vertices must be 3D", line)
		}
		v, err := parseVec3(words[:3])
		if err != nil {
			return nil, fmt.Errorf("line %v: %v", line, err)
		}
		m.Vertices = append(m.Vertices, v)
	}
	for i := 0; i < nf; i++ {
		words, err := next()
		if err != nil {
			return nil, fmt.Errorf("face %v: %w", i, err)
		}
		n, err := strconv.Atoi(words[0])
		if err != nil {
			return nil, fmt.Errorf("line %v: %v", line, err)
		}
		if n < 3 || len(words) < n+1 {
			return nil, fmt.Errorf("line %v: malformed face", line)
		}
		poly := make([]int, n)
		for j := range poly {
			if poly[j], err = strconv.Atoi(words[j+1]); err != nil {
				return nil, fmt.Errorf("line %v: %v", line, err)
			}
		}
		m.Faces = appendFan(m.Faces, poly)
	}
	return m, nil
}

func parseVec3(words []string) (mgl64.Vec3, error) {
	var v mgl64.Vec3
	for i := range v {
		f, err := strconv.ParseFloat(words[i], 64)
		if err != nil {
			return v, err
		}
		v[i] = f
	}
	return v, nil
}

func appendFan(faces [][3]int, poly []int) [][3]int {
	for i := 1; i+1 < len(poly); i++ {
		faces = append(faces, [3]int{poly[0], poly[i], poly[i+1]})
	}
	return faces
}
