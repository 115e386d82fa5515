package tesseract

import (
	"context"
	"testing"

	"github.com/otiai10/gosseract/v2"
)

func TestMeanConfidence(t *testing.T) {
	cases := []struct {
		name  string
		boxes []gosseract.BoundingBox
		want  float64
	}{
		{"none", nil, 0},
		{"all zero", []gosseract.BoundingBox{{Confidence: 0}, {Confidence: -1}}, 0},
		{"mixed", []gosseract.BoundingBox{{Confidence: 90}, {Confidence: 0}, {Confidence: 70}}, 80},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := meanConfidence(tc.boxes); got != tc.want {
				t.Errorf("meanConfidence = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInitializeRejectsUnsupportedEngine(t *testing.T) {
	if _, err := (Backend{}).Initialize(context.Background(), "eng", 0); err == nil {
		t.Fatal("expected error for legacy engine mode")
	}
}
