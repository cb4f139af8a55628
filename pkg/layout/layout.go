// Package layout arranges copies of an ID photo on a printable sheet.
package layout

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/idphoto/pkg/types"
)

// MinGutterMM is the minimum empty space between adjacent copies
const MinGutterMM = 5.0

// Compute plans a grid of size copies on paper at dpi. Margins shrink the
// printable area; when nothing is left the plan holds zero copies. When a
// single copy is larger than the printable area the plan still holds one copy
// and Fits is false.
func Compute(paper types.PaperSpec, size types.SizeSpec, dpi float64, margins types.Margins) types.LayoutPlan {
	if dpi <= 0 {
		return types.LayoutPlan{}
	}
	m := margins.Clamped()

	sheetW, sheetH := paper.PixelsAt(dpi)
	top := types.MMToPixels(m.Top, dpi)
	bottom := types.MMToPixels(m.Bottom, dpi)
	left := types.MMToPixels(m.Left, dpi)
	right := types.MMToPixels(m.Right, dpi)

	photoW := types.MMToPixels(size.WidthMM, dpi)
	photoH := types.MMToPixels(size.HeightMM, dpi)

	plan := types.LayoutPlan{
		PhotoWidthPx:  photoW,
		PhotoHeightPx: photoH,
		SheetWidthPx:  sheetW,
		SheetHeightPx: sheetH,
	}

	printableW := sheetW - left - right
	printableH := sheetH - top - bottom
	if printableW <= 0 || printableH <= 0 || photoW <= 0 || photoH <= 0 {
		return plan
	}

	gutter := types.MMToPixels(MinGutterMM, dpi)

	cols := max(1, printableW/(photoW+gutter))
	rows := max(1, printableH/(photoH+gutter))

	plan.Columns = cols
	plan.Rows = rows
	plan.TotalCount = cols * rows
	plan.GutterX = distribute(printableW, photoW, cols)
	plan.GutterY = distribute(printableH, photoH, rows)
	plan.OriginX = left + plan.GutterX
	plan.OriginY = top + plan.GutterY
	plan.Fits = photoW <= printableW && photoH <= printableH

	return plan
}

// distribute spreads the leftover space evenly: between and around copies when
// there are several, on both sides of a single one. Overflow yields zero.
func distribute(printable, photo, n int) int {
	leftover := printable - n*photo
	if leftover <= 0 {
		return 0
	}
	if n > 1 {
		return leftover / (n + 1)
	}
	return leftover / 2
}

// RenderOptions controls sheet rendering
type RenderOptions struct {
	Background color.Color
	CutGuides  bool
	GuideColor color.Color
}

// DefaultRenderOptions renders copies on white paper without guides
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Background: color.White,
		GuideColor: color.NRGBA{R: 160, G: 160, B: 160, A: 255},
	}
}

// Render draws every copy of photo on a sheet sized by the plan. The photo is
// expected to already match the plan's photo pixel size; it is scaled when not.
func Render(plan types.LayoutPlan, photo image.Image, opts RenderOptions) image.Image {
	w, h := plan.SheetWidthPx, plan.SheetHeightPx
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	bg := opts.Background
	if bg == nil {
		bg = color.White
	}

	sheet := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(sheet, sheet.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)

	if plan.TotalCount == 0 || photo == nil {
		return sheet
	}

	tile := photo
	if b := photo.Bounds(); b.Dx() != plan.PhotoWidthPx || b.Dy() != plan.PhotoHeightPx {
		scaled := image.NewNRGBA(image.Rect(0, 0, plan.PhotoWidthPx, plan.PhotoHeightPx))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), photo, b, xdraw.Src, nil)
		tile = scaled
	}

	for r := 0; r < plan.Rows; r++ {
		for c := 0; c < plan.Columns; c++ {
			dst := plan.CopyRect(c, r)
			xdraw.Draw(sheet, dst, tile, tile.Bounds().Min, xdraw.Over)
		}
	}

	if !opts.CutGuides {
		return sheet
	}
	return drawCutGuides(sheet, plan, opts.GuideColor)
}

// drawCutGuides outlines every copy with a thin dashed line
func drawCutGuides(sheet image.Image, plan types.LayoutPlan, c color.Color) image.Image {
	if c == nil {
		c = DefaultRenderOptions().GuideColor
	}
	dc := gg.NewContextForImage(sheet)
	dc.SetColor(c)
	dc.SetLineWidth(1)
	dc.SetDash(6, 4)
	for r := 0; r < plan.Rows; r++ {
		for col := 0; col < plan.Columns; col++ {
			rect := plan.CopyRect(col, r)
			dc.DrawRectangle(float64(rect.Min.X)-0.5, float64(rect.Min.Y)-0.5,
				float64(rect.Dx())+1, float64(rect.Dy())+1)
			dc.Stroke()
		}
	}
	return dc.Image()
}
