package snapshot_test

import (
	"bytes"
	"errors"
	"image/png"
	"testing"

	"github.com/euforicio/docsite/internal/viewer"
	"github.com/euforicio/docsite/internal/viewer/snapshot"
)

const square = `<svg xmlns="http://www.w3.org/2000/svg" width="100" height="50" viewBox="0 0 100 50">` +
	`<rect x="0" y="0" width="100" height="50" fill="#336699"/></svg>`

func TestPNGAppliesClampedScale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		scale float64
		w, h  int
	}{
		{name: "identity", scale: 1, w: 100, h: 50},
		{name: "zoomed", scale: 2, w: 200, h: 100},
		{name: "clamped high", scale: 10, w: 300, h: 150},
		{name: "clamped low", scale: 0.01, w: 50, h: 25},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data, err := snapshot.PNG(square, viewer.Viewport{Scale: tc.scale})
			if err != nil {
				t.Fatalf("PNG returned error: %v", err)
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("decode png: %v", err)
			}
			b := img.Bounds()
			if b.Dx() != tc.w || b.Dy() != tc.h {
				t.Fatalf("expected %dx%d, got %dx%d", tc.w, tc.h, b.Dx(), b.Dy())
			}
		})
	}
}

func TestPNGTranslateShiftsDrawing(t *testing.T) {
	t.Parallel()

	data, err := snapshot.PNG(square, viewer.Viewport{Scale: 1, TranslateX: 60})
	if err != nil {
		t.Fatalf("PNG returned error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if _, _, _, a := img.At(10, 25).RGBA(); a != 0 {
		t.Fatalf("expected transparent pixel left of the panned rect, alpha=%d", a)
	}
	if _, _, _, a := img.At(80, 25).RGBA(); a == 0 {
		t.Fatalf("expected painted pixel inside the panned rect")
	}
}

func TestPNGRejectsEmptyGraphic(t *testing.T) {
	t.Parallel()
	if _, err := snapshot.PNG(" ", viewer.NewViewport()); !errors.Is(err, snapshot.ErrEmptyGraphic) {
		t.Fatalf("expected ErrEmptyGraphic, got %v", err)
	}
}
