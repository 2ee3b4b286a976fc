// Package zipper writes depth maps and volume slices as PNG images
// collected in ZIP files.
package zipper

import (
	"archive/zip"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"sort"
	"time"

	"github.com/gmlewis/watertight/depth"
)

// DepthScale is the number of 16-bit gray levels per unit of depth.
// Zero encodes pixels without a valid depth.
const DepthScale = 10000

// zipper creates PNG entries in a ZIP file.
type zipper struct {
	w *zip.Writer
}

func (zp *zipper) writePNG(name, comment string, img image.Image) error {
	fh := &zip.FileHeader{
		Name:     name,
		Comment:  comment,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	f, err := zp.w.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("Unable to create ZIP file %q: %v", name, err)
	}
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("PNG encode: %v", err)
	}
	return nil
}

// create runs fn against a new ZIP file.
func create(filename string, fn func(zp *zipper) error) error {
	zf, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("Create: %v", err)
	}
	zp := &zipper{w: zip.NewWriter(zf)}
	if err := fn(zp); err != nil {
		zf.Close()
		return err
	}
	if err := zp.w.Close(); err != nil {
		zf.Close()
		return fmt.Errorf("Unable to close ZIP writer: %v", err)
	}
	if err := zf.Close(); err != nil {
		return fmt.Errorf("Unable to close ZIP file: %v", err)
	}
	return nil
}

// WriteDepthMaps writes one 16-bit grayscale PNG per depth map, named
// view0000.png, view0001.png and so on.
func WriteDepthMaps(filename string, maps []*depth.Map) error {
	return create(filename, func(zp *zipper) error {
		for n, m := range maps {
			img := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
			for y := 0; y < m.Height; y++ {
				for x := 0; x < m.Width; x++ {
					img.SetGray16(x, y, color.Gray16{Y: encodeDepth(m.At(x, y))})
				}
			}
			name := fmt.Sprintf("view%04d.png", n)
			if err := zp.writePNG(name, fmt.Sprintf("view=%v", n), img); err != nil {
				return err
			}
		}
		return nil
	})
}

func encodeDepth(d float64) uint16 {
	if !depth.Valid(d) {
		return 0
	}
	return uint16(math.Max(1, math.Min(math.MaxUint16, math.Round(d*DepthScale))))
}

// ReadDepthMaps reads the depth maps written by WriteDepthMaps, quantized
// to 1/DepthScale.
func ReadDepthMaps(filename string) ([]*depth.Map, error) {
	r, err := zip.OpenReader(filename)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	files := append([]*zip.File(nil), r.File...)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var maps []*depth.Map
	for _, f := range files {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		img, err := png.Decode(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%v: %v", f.Name, err)
		}

		b := img.Bounds()
		m := depth.NewMap(b.Dx(), b.Dy())
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				v := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y
				if v != 0 {
					m.Set(x, y, float64(v)/DepthScale)
				}
			}
		}
		maps = append(maps, m)
	}
	return maps, nil
}
