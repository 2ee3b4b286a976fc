package zipper

import (
	"archive/zip"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/gmlewis/watertight/tsdf"
)

// WriteSVX writes the voxels of vol inside the surface as an SVX file:
// one 8-bit density slice per z plus a manifest. voxelSize is the edge
// length of one voxel in meters.
func WriteSVX(filename string, vol *tsdf.Volume, voxelSize float64, author string) error {
	return create(filename, func(zp *zipper) error {
		if err := zp.writeManifest(vol, voxelSize, author); err != nil {
			return err
		}
		r := vol.Resolution
		for k := 0; k < r; k++ {
			img := image.NewGray(image.Rect(0, 0, r, r))
			for j := 0; j < r; j++ {
				for i := 0; i < r; i++ {
					if vol.At(i, j, k) < 0 {
						img.SetGray(i, j, color.Gray{Y: 255})
					}
				}
			}
			name := fmt.Sprintf("density/slice%04d.png", k)
			if err := zp.writePNG(name, fmt.Sprintf("z=%v", k), img); err != nil {
				return err
			}
		}
		return nil
	})
}

func (zp *zipper) writeManifest(vol *tsdf.Volume, voxelSize float64, author string) error {
	fh := &zip.FileHeader{
		Name:     "manifest.xml",
		Modified: time.Now(),
	}
	f, err := zp.w.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("Unable to create ZIP file %q: %v", fh.Name, err)
	}

	r := vol.Resolution
	_, err = fmt.Fprintf(f, manifestFmt, r, r, r, voxelSize, author, time.Now().Format("2006-01-02"))
	return err
}

var manifestFmt = `<?xml version="1.0"?>

<grid version="1.0" gridSizeX="%v" gridSizeY="%v" gridSizeZ="%v"
   voxelSize="%v" subvoxelBits="8" slicesOrientation="Z" >

    <channels>
        <channel type="DENSITY" bits="8" slices="density/slice%%04d.png" />
    </channels>

    <materials>
        <material id="1" urn="urn:shapeways:materials/1" />
    </materials>

    <metadata>
        <entry key="author" value=%q />
        <entry key="creationDate" value=%q />
    </metadata>
</grid>`
