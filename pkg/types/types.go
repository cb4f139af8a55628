package types

import (
	"image"
	"math"
)

// MMPerInch converts between millimeters and inches
const MMPerInch = 25.4

// ReferenceDPI is the resolution the paper catalog pixel sizes are expressed at
const ReferenceDPI = 300

// Rectangle is a region in source-image pixel space
type Rectangle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the rectangle
func (r Rectangle) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// AspectRatio returns width / height, or 0 for a degenerate rectangle
func (r Rectangle) AspectRatio() float64 {
	if r.Height <= 0 {
		return 0
	}
	return r.Width / r.Height
}

// Empty reports whether the rectangle has no area
func (r Rectangle) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within reports whether the rectangle lies inside [0,w]x[0,h]
func (r Rectangle) Within(w, h int) bool {
	const eps = 1e-9
	return r.X >= -eps && r.Y >= -eps &&
		r.X+r.Width <= float64(w)+eps && r.Y+r.Height <= float64(h)+eps
}

// Image converts the rectangle to integer pixel bounds by rounding its edges
func (r Rectangle) Image() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return image.Rect(x0, y0, x1, y1)
}

// FaceBox is a detected face in pixel coordinates
type FaceBox struct {
	Rectangle
	Confidence float64 `json:"confidence"`
}

// SizeSpec is a physical target photo size
type SizeSpec struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`
}

// AspectRatio returns width / height of the physical size
func (s SizeSpec) AspectRatio() float64 {
	return s.WidthMM / s.HeightMM
}

// Supported photo sizes
var (
	Size25x35 = SizeSpec{ID: "25x35", Name: "25 x 35 mm", WidthMM: 25, HeightMM: 35}
	Size35x49 = SizeSpec{ID: "35x49", Name: "35 x 49 mm", WidthMM: 35, HeightMM: 49}
	Size35x52 = SizeSpec{ID: "35x52", Name: "35 x 52 mm", WidthMM: 35, HeightMM: 52}
)

// SizeSpecs returns the supported photo sizes
func SizeSpecs() []SizeSpec {
	return []SizeSpec{Size25x35, Size35x49, Size35x52}
}

// LookupSize finds a photo size by ID
func LookupSize(id string) (SizeSpec, bool) {
	for _, s := range SizeSpecs() {
		if s.ID == id {
			return s, true
		}
	}
	return SizeSpec{}, false
}

// PaperSpec is a printable sheet, with pixel dimensions at ReferenceDPI
type PaperSpec struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`
	WidthPx  int     `json:"width_px"`
	HeightPx int     `json:"height_px"`
}

// PixelsAt returns the sheet size in pixels at the given DPI
func (p PaperSpec) PixelsAt(dpi float64) (int, int) {
	if dpi == ReferenceDPI {
		return p.WidthPx, p.HeightPx
	}
	return MMToPixels(p.WidthMM, dpi), MMToPixels(p.HeightMM, dpi)
}

// Supported papers
var (
	Paper4x6 = PaperSpec{ID: "4x6", Name: "4 x 6 in", WidthMM: 101.6, HeightMM: 152.4, WidthPx: 1200, HeightPx: 1800}
	PaperA4  = PaperSpec{ID: "a4", Name: "A4", WidthMM: 210, HeightMM: 297, WidthPx: 2480, HeightPx: 3508}
)

// PaperSpecs returns the supported papers
func PaperSpecs() []PaperSpec {
	return []PaperSpec{Paper4x6, PaperA4}
}

// LookupPaper finds a paper by ID
func LookupPaper(id string) (PaperSpec, bool) {
	for _, p := range PaperSpecs() {
		if p.ID == id {
			return p, true
		}
	}
	return PaperSpec{}, false
}

// Margins are non-printable borders of a sheet, in millimeters
type Margins struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// Clamped returns the margins with negative values replaced by zero
func (m Margins) Clamped() Margins {
	return Margins{
		Top:    math.Max(0, m.Top),
		Bottom: math.Max(0, m.Bottom),
		Left:   math.Max(0, m.Left),
		Right:  math.Max(0, m.Right),
	}
}

// LayoutPlan describes how copies of a photo are arranged on a sheet
type LayoutPlan struct {
	Columns       int  `json:"columns"`
	Rows          int  `json:"rows"`
	PhotoWidthPx  int  `json:"photo_width_px"`
	PhotoHeightPx int  `json:"photo_height_px"`
	GutterX       int  `json:"gutter_x"`
	GutterY       int  `json:"gutter_y"`
	OriginX       int  `json:"origin_x"`
	OriginY       int  `json:"origin_y"`
	TotalCount    int  `json:"total_count"`
	SheetWidthPx  int  `json:"sheet_width_px"`
	SheetHeightPx int  `json:"sheet_height_px"`
	Fits          bool `json:"fits"`
}

// CopyRect returns the pixel bounds of the copy at column c, row r
func (p LayoutPlan) CopyRect(c, r int) image.Rectangle {
	x := p.OriginX + c*(p.PhotoWidthPx+p.GutterX)
	y := p.OriginY + r*(p.PhotoHeightPx+p.GutterY)
	return image.Rect(x, y, x+p.PhotoWidthPx, y+p.PhotoHeightPx)
}

// UsedWidth returns the horizontal extent covered by the grid
func (p LayoutPlan) UsedWidth() int {
	if p.Columns == 0 {
		return 0
	}
	return p.Columns*p.PhotoWidthPx + (p.Columns-1)*p.GutterX
}

// UsedHeight returns the vertical extent covered by the grid
func (p LayoutPlan) UsedHeight() int {
	if p.Rows == 0 {
		return 0
	}
	return p.Rows*p.PhotoHeightPx + (p.Rows-1)*p.GutterY
}

// MMToPixels converts a physical length to a whole pixel count at dpi
func MMToPixels(mm, dpi float64) int {
	return int(math.Round(mm / MMPerInch * dpi))
}

// FaceAnalysis is the face list returned by a vision model, in normalized [0,1] coordinates
type FaceAnalysis struct {
	Faces       []NormalizedFace `json:"faces"`
	Description string           `json:"description"`
}

// NormalizedFace is a face box with coordinates relative to image size
type NormalizedFace struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Confidence float64 `json:"confidence"`
}
