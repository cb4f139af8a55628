// Package resolution computes the effective print resolution of a crop.
package resolution

import (
	"math"

	"github.com/menta2k/idphoto/pkg/types"
)

// ThresholdDPI is the minimum resolution accepted for printing
const ThresholdDPI = 300

// Measurement holds the effective DPI along each axis
type Measurement struct {
	HorizontalDPI float64 `json:"horizontal_dpi"`
	VerticalDPI   float64 `json:"vertical_dpi"`
	MinDPI        float64 `json:"min_dpi"`
}

// Measure returns the DPI obtained when widthPx x heightPx pixels are printed
// at widthMM x heightMM. A non-positive physical size yields zero on that axis.
func Measure(widthPx, heightPx, widthMM, heightMM float64) Measurement {
	h := perInch(widthPx, widthMM)
	v := perInch(heightPx, heightMM)
	return Measurement{
		HorizontalDPI: h,
		VerticalDPI:   v,
		MinDPI:        math.Min(h, v),
	}
}

// ForSize measures a crop rectangle against a photo size
func ForSize(crop types.Rectangle, size types.SizeSpec) Measurement {
	return Measure(crop.Width, crop.Height, size.WidthMM, size.HeightMM)
}

// Rounded returns MinDPI as a whole number
func (m Measurement) Rounded() int {
	return int(math.Round(m.MinDPI))
}

// Sufficient reports whether the rounded minimum DPI reaches threshold
func (m Measurement) Sufficient(threshold float64) bool {
	return float64(m.Rounded()) >= threshold
}

func perInch(px, mm float64) float64 {
	if mm <= 0 || px <= 0 {
		return 0
	}
	return px / (mm / types.MMPerInch)
}
