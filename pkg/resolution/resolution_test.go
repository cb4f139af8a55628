package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menta2k/idphoto/pkg/types"
)

func TestMeasure(t *testing.T) {
	tests := []struct {
		name       string
		w, h       float64
		wmm, hmm   float64
		wantMin    int
		sufficient bool
	}{
		{name: "boundary", w: 295, h: 413, wmm: 25, hmm: 35, wantMin: 300, sufficient: true},
		{name: "too small", w: 200, h: 280, wmm: 25, hmm: 35, wantMin: 203, sufficient: false},
		{name: "large", w: 1000, h: 1400, wmm: 25, hmm: 35, wantMin: 1016, sufficient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Measure(tt.w, tt.h, tt.wmm, tt.hmm)
			assert.Equal(t, tt.wantMin, m.Rounded())
			assert.Equal(t, tt.sufficient, m.Sufficient(ThresholdDPI))
			assert.LessOrEqual(t, m.MinDPI, m.HorizontalDPI)
			assert.LessOrEqual(t, m.MinDPI, m.VerticalDPI)
		})
	}
}

func TestMeasureUsesWeakerAxis(t *testing.T) {
	m := Measure(600, 413, 25, 35)
	assert.InDelta(t, 609.6, m.HorizontalDPI, 0.01)
	assert.InDelta(t, m.VerticalDPI, m.MinDPI, 1e-9)
}

func TestMeasureZeroPhysicalSize(t *testing.T) {
	m := Measure(100, 100, 0, 35)
	assert.Zero(t, m.HorizontalDPI)
	assert.Zero(t, m.MinDPI)
	assert.False(t, m.Sufficient(ThresholdDPI))
}

func TestForSize(t *testing.T) {
	crop := types.Rectangle{X: 10, Y: 10, Width: 413, Height: 579}
	m := ForSize(crop, types.Size35x49)
	assert.Equal(t, 300, m.Rounded())
}
