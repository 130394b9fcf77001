package viewer

import (
	"fmt"
	"strconv"
)

// Action names a control bar button. The string value is the button's
// data-action attribute.
type Action string

// Control bar actions.
const (
	ActionZoomIn     Action = "zoom-in"
	ActionZoomOut    Action = "zoom-out"
	ActionReset      Action = "reset"
	ActionFullscreen Action = "fullscreen"
)

// Actions lists the control bar buttons in display order.
func Actions() []Action {
	return []Action{ActionZoomIn, ActionZoomOut, ActionReset, ActionFullscreen}
}

// ParseAction validates a data-action value.
func ParseAction(raw string) (Action, error) {
	for _, a := range Actions() {
		if string(a) == raw {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", raw)
}

// Title is the button tooltip.
func (a Action) Title() string {
	switch a {
	case ActionZoomIn:
		return "Zoom In"
	case ActionZoomOut:
		return "Zoom Out"
	case ActionReset:
		return "Reset"
	case ActionFullscreen:
		return "Fullscreen"
	default:
		return string(a)
	}
}

// Effect describes what the host must do after a gesture was applied.
type Effect struct {
	// Transform is set when the inner container must be restyled.
	Transform string
	// FullscreenToggle asks the host to request or exit fullscreen on the
	// widget wrapper. Denial by the host leaves the widget unchanged.
	FullscreenToggle bool
	// PreventDefault asks the host to suppress the native handling of the
	// event (page scroll for wheel events).
	PreventDefault bool
}

// Changed reports whether the effect requires any host work.
func (e Effect) Changed() bool {
	return e.Transform != "" || e.FullscreenToggle
}

// Widget is one interactive diagram: its viewport, its drag session and the
// diagram it wraps.
type Widget struct {
	Index    int
	Language string
	Source   string
	Viewport Viewport
	drag     DragSession
}

// NewWidget returns a widget in the identity transform.
func NewWidget(index int, language, source string) *Widget {
	return &Widget{
		Index:    index,
		Language: language,
		Source:   source,
		Viewport: NewViewport(),
	}
}

// ID is the wrapper element id.
func (w *Widget) ID() string {
	return WrapperID(w.Index)
}

// MountID is the mount target element id.
func (w *Widget) MountID() string {
	return MountID(w.Index)
}

// Drag returns a copy of the drag session.
func (w *Widget) Drag() DragSession {
	return w.drag
}

// Apply runs a control bar action.
func (w *Widget) Apply(action Action) Effect {
	switch action {
	case ActionZoomIn:
		w.Viewport.ZoomIn()
	case ActionZoomOut:
		w.Viewport.ZoomOut()
	case ActionReset:
		w.Viewport.Reset()
	case ActionFullscreen:
		return Effect{FullscreenToggle: true}
	default:
		return Effect{}
	}
	return w.restyle()
}

// Wheel applies a wheel notch and always suppresses page scroll.
func (w *Widget) Wheel(deltaY float64) Effect {
	w.Viewport.Wheel(deltaY)
	eff := w.restyle()
	eff.PreventDefault = true
	return eff
}

// PointerDown begins a drag session.
func (w *Widget) PointerDown(x, y float64) {
	w.drag.Begin(w.Viewport, x, y)
}

// PointerMove pans while dragging.
func (w *Widget) PointerMove(x, y float64) Effect {
	if !w.drag.Move(&w.Viewport, x, y) {
		return Effect{}
	}
	return w.restyle()
}

// PointerUp ends the drag session.
func (w *Widget) PointerUp() {
	w.drag.End()
}

func (w *Widget) restyle() Effect {
	return Effect{Transform: w.Viewport.Transform()}
}

// WrapperID is the element id of the widget wrapper with the given index.
func WrapperID(index int) string {
	return "mermaid-wrapper-" + strconv.Itoa(index)
}

// MountID is the element id of the mount target with the given index.
func MountID(index int) string {
	return "mermaid-" + strconv.Itoa(index)
}
