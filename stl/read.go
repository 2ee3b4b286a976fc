package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Read parses an STL stream and returns its triangles. Binary files are
// recognized by their size matching the triangle count in the header;
// anything else starting with "solid" is parsed as ASCII.
func Read(r io.Reader) ([][3]mgl64.Vec3, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Read: %v", err)
	}
	if len(data) >= headerSize+4 {
		n := binary.LittleEndian.Uint32(data[headerSize:])
		if int64(len(data)) == headerSize+4+int64(n)*triSize {
			return readBinary(data[headerSize+4:], int(n))
		}
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid")) {
		return readASCII(data)
	}
	return nil, fmt.Errorf("Read: neither a binary nor an ASCII STL stream (%v bytes)", len(data))
}

func readBinary(data []byte, n int) ([][3]mgl64.Vec3, error) {
	tris := make([][3]mgl64.Vec3, n)
	buf := bytes.NewReader(data)
	var t facet
	for i := range tris {
		if err := binary.Read(buf, binary.LittleEndian, &t); err != nil {
			return nil, fmt.Errorf("read triangle %v: %v", i, err)
		}
		tris[i] = [3]mgl64.Vec3{vec64(t.Vertices[0]), vec64(t.Vertices[1]), vec64(t.Vertices[2])}
	}
	return tris, nil
}

func vec64(v [3]float32) mgl64.Vec3 {
	return mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
}

func readASCII(data []byte) ([][3]mgl64.Vec3, error) {
	var tris [][3]mgl64.Vec3
	var cur [3]mgl64.Vec3
	var nv int

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		words := strings.Fields(scanner.Text())
		if len(words) == 0 {
			continue
		}
		switch words[0] {
		case "facet":
			nv = 0
		case "vertex":
			if len(words) != 4 {
				return nil, fmt.Errorf("line %v: vertex must have 3 coordinates", line)
			}
			if nv == 3 {
				return nil, fmt.Errorf("line %v: facet has more than 3 vertices", line)
			}
			for i := 0; i < 3; i++ {
				v, err := strconv.ParseFloat(words[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %v: %v", line, err)
				}
				cur[nv][i] = v
			}
			nv++
		case "endfacet":
			if nv != 3 {
				return nil, fmt.Errorf("line %v: facet has %v vertices", line, nv)
			}
			tris = append(tris, cur)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tris, nil
}
