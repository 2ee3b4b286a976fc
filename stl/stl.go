// Package stl encodes meshes as binary STL and decodes both the binary
// and the ASCII encodings.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/gmlewis/watertight/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	headerSize = 80
	triSize    = 50
)

// facet is the on-disk record of one binary STL triangle.
type facet struct {
	Normal   [3]float32
	Vertices [3][3]float32
	_        uint16 // attribute byte count
}

func newFacet(a, b, c mgl64.Vec3) facet {
	n := b.Sub(a).Cross(c.Sub(a))
	if l := n.Len(); l > 0 {
		n = n.Mul(1 / l)
	}
	return facet{Normal: vec32(n), Vertices: [3][3]float32{vec32(a), vec32(b), vec32(c)}}
}

func vec32(v mgl64.Vec3) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

// WriteMesh writes m to w as binary STL. Each facet normal follows the
// winding of its face; degenerate faces get a zero normal.
func WriteMesh(w io.Writer, m *mesh.Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	var header [headerSize]byte
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Faces))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, f := range m.Faces {
		rec := newFacet(m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]])
		if err := binary.Write(bw, binary.LittleEndian, &rec); err != nil {
			return fmt.Errorf("write face %v: %w", i, err)
		}
	}
	return bw.Flush()
}

// Save writes m to filename as binary STL.
func Save(filename string, m *mesh.Mesh) (err error) {
	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteMesh(out, m)
}
