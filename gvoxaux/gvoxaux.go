// Package gvoxaux provides auxiliary helpers for planner developers:
// rendering voxel grid slices to images for visual debugging and
// loading machine tool shape catalogs from YAML definitions.
// Applications with stricter needs should implement their own
// rendering and configuration.
package gvoxaux

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/chewxy/math32"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/soypat/gvox/voxel"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"
)

// SliceConfig controls grid slice rendering.
type SliceConfig struct {
	// Scale multiplies image dimensions. Zero or negative defaults to 1.
	Scale int
	// Caption is stamped on the image lower-left when FontTTF is set.
	Caption string
	// FontTTF is a TrueType font file used for the caption.
	FontTTF []byte
	// FontSizePt is the caption size in points. Zero defaults to 12.
	FontSizePt float64
}

// SliceImage renders the z-th XY slice of a grid to a grayscale image.
// Cell values are normalized against the grid maximum; negative values
// render black. Image y grows downwards while grid y grows upwards, so
// the slice is flipped vertically to read as a plan view.
func SliceImage[T voxel.Cell](g *voxel.Grid[T], iz int, cfg SliceConfig) (image.Image, error) {
	hdr := g.Hdr()
	if iz < 0 || iz >= hdr.Nz {
		return nil, fmt.Errorf("gvoxaux: slice index %d out of grid depth %d", iz, hdr.Nz)
	}
	maxv := float32(g.Max())
	if maxv <= 0 {
		maxv = 1
	}
	img := image.NewGray(image.Rect(0, 0, hdr.Nx, hdr.Ny))
	for iy := 0; iy < hdr.Ny; iy++ {
		for ix := 0; ix < hdr.Nx; ix++ {
			v := float32(g.Get(ix, iy, iz)) / maxv
			v = math32.Max(0, math32.Min(1, v))
			img.SetGray(ix, hdr.Ny-1-iy, color.Gray{Y: uint8(v*254.9 + 0.5)})
		}
	}
	scale := cfg.Scale
	if scale <= 0 {
		scale = 1
	}
	var canvas draw.Image = img
	if scale > 1 {
		dst := image.NewGray(image.Rect(0, 0, hdr.Nx*scale, hdr.Ny*scale))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		canvas = dst
	}
	if cfg.Caption != "" && cfg.FontTTF != nil {
		if err := stampCaption(canvas, cfg); err != nil {
			return nil, err
		}
	}
	return canvas, nil
}

// WriteSlicePNG renders a slice and PNG-encodes it to w.
func WriteSlicePNG[T voxel.Cell](w io.Writer, g *voxel.Grid[T], iz int, cfg SliceConfig) error {
	img, err := SliceImage(g, iz, cfg)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func stampCaption(dst draw.Image, cfg SliceConfig) error {
	fnt, err := truetype.Parse(cfg.FontTTF)
	if err != nil {
		return fmt.Errorf("gvoxaux: parsing caption font: %w", err)
	}
	size := cfg.FontSizePt
	if size == 0 {
		size = 12
	}
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(fnt)
	c.SetFontSize(size)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(image.White)
	pt := fixed.P(2, dst.Bounds().Dy()-4)
	_, err = c.DrawString(cfg.Caption, pt)
	if err != nil {
		return fmt.Errorf("gvoxaux: drawing caption: %w", err)
	}
	return nil
}
