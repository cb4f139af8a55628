package processing

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/idphoto/pkg/types"
)

// ErrEmptyRegion is returned when a crop rectangle does not overlap the image
var ErrEmptyRegion = errors.New("empty crop region")

// CropRegion extracts the pixels covered by rect, expressed relative to the
// image's top-left corner. The region is clipped to the image bounds.
func CropRegion(img image.Image, rect types.Rectangle) (*image.NRGBA, error) {
	b := img.Bounds()
	r := rect.Image().Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	return imaging.Crop(img, r), nil
}

// TargetPixels returns the exact pixel size a physical photo size needs at dpi
func TargetPixels(size types.SizeSpec, dpi float64) (int, int) {
	return types.MMToPixels(size.WidthMM, dpi), types.MMToPixels(size.HeightMM, dpi)
}

// ExactCrop samples rect from img and resamples it to the exact pixel size of
// size at dpi with a Lanczos filter. The output size depends only on size and
// dpi, never on the pixel size of rect.
func ExactCrop(img image.Image, rect types.Rectangle, size types.SizeSpec, dpi float64) (*image.NRGBA, error) {
	w, h := TargetPixels(size, dpi)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d for %s at %.0f dpi", w, h, size.ID, dpi)
	}
	region, err := CropRegion(img, rect)
	if err != nil {
		return nil, err
	}
	return imaging.Resize(region, w, h, imaging.Lanczos), nil
}

// ApplyBackground composites img over a flat background. The result is fully
// opaque; alpha in img is treated as the subject matte.
func ApplyBackground(img image.Image, bg color.Color) *image.NRGBA {
	src := imaging.Clone(img)
	nb := color.NRGBAModel.Convert(bg).(color.NRGBA)
	back := [3]uint32{uint32(nb.R), uint32(nb.G), uint32(nb.B)}

	out := image.NewNRGBA(src.Bounds())
	for i := 0; i+3 < len(src.Pix); i += 4 {
		a := uint32(src.Pix[i+3])
		for c := 0; c < 3; c++ {
			v := uint32(src.Pix[i+c])*a + back[c]*(255-a)
			out.Pix[i+c] = uint8((v + 127) / 255)
		}
		out.Pix[i+3] = 255
	}
	return out
}

// Thumbnail scales img so its longer side is at most maxSide, keeping the
// aspect ratio. Images already small enough are copied unchanged.
func Thumbnail(img image.Image, maxSide int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) || w == 0 || h == 0 {
		return imaging.Clone(img)
	}
	tw, th := maxSide, maxSide
	if w >= h {
		th = max(1, h*maxSide/w)
	} else {
		tw = max(1, w*maxSide/h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
