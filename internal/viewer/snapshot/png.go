// Package snapshot rasterizes server-rendered diagrams as PNG images with a
// viewport transform applied.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/euforicio/docsite/internal/viewer"
)

// MaxSide bounds either canvas dimension.
const MaxSide = 8192

// ErrEmptyGraphic is returned when there is no SVG to rasterize.
var ErrEmptyGraphic = errors.New("empty svg graphic")

// PNG renders svg at the viewport's scale, offset by its translation. The
// canvas is the scaled diagram size, so panning moves the diagram within a
// fixed frame the same way the in-page widget does.
func PNG(svg string, v viewer.Viewport) ([]byte, error) {
	if strings.TrimSpace(svg) == "" {
		return nil, ErrEmptyGraphic
	}

	icon, err := oksvg.ReadIconStream(strings.NewReader(svg), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}

	viewbox := icon.ViewBox
	baseW, baseH := viewbox.W, viewbox.H
	if baseW <= 0 || baseH <= 0 {
		baseW, baseH = 800, 600
	}

	vp := viewer.NewViewport()
	vp.SetScale(v.Scale)
	vp.Translate(v.TranslateX, v.TranslateY)

	width := int(math.Ceil(baseW * vp.Scale))
	height := int(math.Ceil(baseH * vp.Scale))
	if width > MaxSide || height > MaxSide {
		return nil, fmt.Errorf("canvas %dx%d exceeds %d pixels per side", width, height, MaxSide)
	}

	icon.SetTarget(vp.TranslateX, vp.TranslateY, baseW*vp.Scale, baseH*vp.Scale)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, canvas, canvas.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
