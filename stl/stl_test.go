package stl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmlewis/watertight/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

func TestWriteMesh(t *testing.T) {
	tests := []struct {
		name string
		m    *mesh.Mesh
	}{
		{
			name: "no triangles",
			m:    &mesh.Mesh{},
		},
		{
			name: "unit cube",
			m:    mesh.UnitCube(),
		},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteMesh(&buf, tt.m); err != nil {
				t.Fatalf("WriteMesh: %v", err)
			}
			data := buf.Bytes()
			if want := headerSize + 4 + triSize*tt.m.NumFaces(); len(data) != want {
				t.Fatalf("wrote %v bytes, want %v", len(data), want)
			}
			if got := binary.LittleEndian.Uint32(data[headerSize:]); int(got) != tt.m.NumFaces() {
				t.Errorf("count = %v, want %v", got, tt.m.NumFaces())
			}
		})
	}
}

func TestWriteMeshErrors(t *testing.T) {
	bad := mesh.New([]mgl64.Vec3{{0, 0, 0}}, [][3]int{{0, 1, 2}})
	if err := WriteMesh(io.Discard, bad); err == nil {
		t.Error("WriteMesh: expected error for out of range face")
	}

	w := &failingWriter{}
	if err := WriteMesh(w, mesh.UnitCube()); !errors.Is(err, errDiskFull) {
		t.Errorf("WriteMesh = %v, want %v", err, errDiskFull)
	}
}

func TestFacetNormal(t *testing.T) {
	f := newFacet(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 0, 0}, mgl64.Vec3{0, 2, 0})
	if want := [3]float32{0, 0, 1}; f.Normal != want {
		t.Errorf("Normal = %v, want %v", f.Normal, want)
	}

	degenerate := newFacet(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{2, 0, 0})
	if want := [3]float32{}; degenerate.Normal != want {
		t.Errorf("degenerate Normal = %v, want %v", degenerate.Normal, want)
	}
}

func TestRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "tri.stl")
	want := [][3]mgl64.Vec3{
		{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		{{0.5, 0.25, -1}, {1, 0, 0}, {0, 1, 0}},
	}
	if err := Save(filename, mesh.FromTriangles(want)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := Read(f)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %v triangles, want %v", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("triangle %v = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadASCII(t *testing.T) {
	const src = `solid cube
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 1 0 0
      vertex 0 1 0
    endloop
  endfacet
endsolid cube
`
	got, err := Read(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := [3]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Read = %v, want [%v]", got, want)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "garbage", src: "not an stl file"},
		{name: "short facet", src: "solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 0 0\nendloop\nendfacet\nendsolid x\n"},
		{name: "bad number", src: "solid x\nfacet normal 0 0 1\nvertex 0 a 0\n"},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			if _, err := Read(strings.NewReader(tt.src)); err == nil {
				t.Error("Read: expected error")
			}
		})
	}
}

var errDiskFull = errors.New("disk full")

// failingWriter fails once writes go past the header and count.
type failingWriter struct {
	n int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > headerSize+4 {
		return 0, errDiskFull
	}
	w.n += len(p)
	return len(p), nil
}
