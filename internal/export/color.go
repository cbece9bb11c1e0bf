package export

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/annosuite/annotator/internal/document"
)

var namedColors = map[string]string{
	"black":  "#000000",
	"white":  "#ffffff",
	"red":    "#ff0000",
	"green":  "#008000",
	"blue":   "#0000ff",
	"yellow": "#ffff00",
	"orange": "#ffa500",
	"purple": "#800080",
	"gray":   "#808080",
	"grey":   "#808080",
}

// ParseColor resolves a stroke color given as #rgb, #rrggbb or a basic
// CSS name. Unknown values fall back to the default stroke color.
func ParseColor(s string) colorful.Color {
	s = strings.ToLower(strings.TrimSpace(s))
	if hex, ok := namedColors[s]; ok {
		s = hex
	}
	if len(s) == 4 && s[0] == '#' {
		s = "#" + strings.Repeat(s[1:2], 2) + strings.Repeat(s[2:3], 2) + strings.Repeat(s[3:4], 2)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		c, _ = colorful.Hex(document.DefaultStroke)
	}
	return c
}

// RGB returns the 8-bit channels of a stroke color.
func RGB(s string) (r, g, b int) {
	r8, g8, b8 := ParseColor(s).RGB255()
	return int(r8), int(g8), int(b8)
}
