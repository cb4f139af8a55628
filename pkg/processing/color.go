package processing

import (
	"fmt"
	"image/color"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Background presets commonly required for identification photos
var backgroundPresets = map[string]string{
	"white":      "#ffffff",
	"light-blue": "#d6e6f5",
	"blue":       "#438edb",
	"red":        "#d9352f",
	"grey":       "#d3d3d3",
}

// BackgroundPresets returns the preset names in sorted order
func BackgroundPresets() []string {
	names := make([]string, 0, len(backgroundPresets))
	for name := range backgroundPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseColor accepts a preset name or a #rrggbb / #rgb hex value
func ParseColor(s string) (color.NRGBA, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "gray" {
		key = "grey"
	}
	if hex, ok := backgroundPresets[key]; ok {
		key = hex
	}
	if !strings.HasPrefix(key, "#") {
		key = "#" + key
	}
	c, err := colorful.Hex(key)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// HexColor formats c as #rrggbb
func HexColor(c color.Color) string {
	cc, _ := colorful.MakeColor(c)
	return cc.Hex()
}
