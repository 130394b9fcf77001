package viewer

// DragState is the state of a widget's drag session.
type DragState int

// Drag session states.
const (
	Idle DragState = iota
	Dragging
)

func (s DragState) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// DragSession tracks one drag gesture. StartX and StartY hold the anchor
// (pointer minus translation at pointer-down) and are only meaningful while
// the session is Dragging.
type DragSession struct {
	State  DragState
	StartX float64
	StartY float64
}

// Begin starts a drag at the pointer position relative to the current
// translation.
func (d *DragSession) Begin(v Viewport, pointerX, pointerY float64) {
	d.State = Dragging
	d.StartX = pointerX - v.TranslateX
	d.StartY = pointerY - v.TranslateY
}

// Move recomputes the absolute translation from the anchor. It reports false
// and leaves v untouched when no drag is in progress.
func (d *DragSession) Move(v *Viewport, pointerX, pointerY float64) bool {
	if d.State != Dragging {
		return false
	}
	v.Translate(pointerX-d.StartX, pointerY-d.StartY)
	return true
}

// End stops the session and clears the anchor.
func (d *DragSession) End() {
	*d = DragSession{}
}

// Active reports whether a drag is in progress.
func (d DragSession) Active() bool {
	return d.State == Dragging
}
