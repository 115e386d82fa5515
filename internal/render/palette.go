package render

import (
	"hash/fnv"

	"github.com/lucasb-eyer/go-colorful"
)

// ClassColor returns a stable "#rrggbb" color for a class name.
func ClassColor(class string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(class))
	hue := float64(h.Sum32() % 360)
	return colorful.Hsv(hue, 0.85, 0.95).Clamped().Hex()
}
