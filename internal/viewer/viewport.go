// Package viewer turns rendered diagram placeholders into interactive
// pan/zoom widgets and models the per-widget gesture state.
//
// The package has two halves. The state half (Viewport, DragSession, Widget,
// Dispatcher) is pure and holds no references to the HTML tree. The tree half
// (AttachAll, AttachHTML) rewrites a parsed page and hands mount targets to the
// diagram engines.
package viewer

import (
	"math"
	"strconv"
)

// Scale limits and step sizes. Button zoom and wheel zoom use different steps.
const (
	MinScale  = 0.5
	MaxScale  = 3.0
	ZoomStep  = 0.25
	WheelStep = 0.1
)

// Viewport is the combined scale and translation applied to a widget's inner
// container. Scale is kept within [MinScale, MaxScale] by every mutator.
type Viewport struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
}

// NewViewport returns the identity transform.
func NewViewport() Viewport {
	return Viewport{Scale: 1}
}

// ZoomIn increases the scale by one button step.
func (v *Viewport) ZoomIn() {
	v.Scale = math.Min(v.Scale+ZoomStep, MaxScale)
}

// ZoomOut decreases the scale by one button step.
func (v *Viewport) ZoomOut() {
	v.Scale = math.Max(v.Scale-ZoomStep, MinScale)
}

// Reset restores the identity transform.
func (v *Viewport) Reset() {
	*v = NewViewport()
}

// Wheel applies one wheel notch. A positive deltaY (scrolling down) zooms out,
// anything else zooms in.
func (v *Viewport) Wheel(deltaY float64) {
	delta := WheelStep
	if deltaY > 0 {
		delta = -WheelStep
	}
	v.SetScale(v.Scale + delta)
}

// SetScale assigns a clamped scale. NaN resets the scale to 1.
func (v *Viewport) SetScale(scale float64) {
	if math.IsNaN(scale) {
		v.Scale = 1
		return
	}
	v.Scale = clamp(scale, MinScale, MaxScale)
}

// Translate sets the absolute translation.
func (v *Viewport) Translate(x, y float64) {
	v.TranslateX = x
	v.TranslateY = y
}

// Transform renders the CSS transform for the inner container. Translation is
// applied before scale.
func (v Viewport) Transform() string {
	return "translate(" + formatFloat(v.TranslateX) + "px, " + formatFloat(v.TranslateY) + "px) scale(" + formatFloat(v.Scale) + ")"
}

// Style is the inline style attribute value carrying Transform.
func (v Viewport) Style() string {
	return "transform: " + v.Transform() + ";"
}

func clamp(value, lo, hi float64) float64 {
	return math.Min(math.Max(value, lo), hi)
}

func formatFloat(f float64) string {
	// Rounding keeps repeated 0.1 wheel steps from leaking float noise into CSS.
	rounded := math.Round(f*1e6) / 1e6
	if rounded == 0 {
		rounded = 0 // normalise -0
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
