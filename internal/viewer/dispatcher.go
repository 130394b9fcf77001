package viewer

// EventKind identifies a low-level host event.
type EventKind int

// Event kinds routed by the Dispatcher.
const (
	EventClick EventKind = iota + 1
	EventWheel
	EventPointerDown
	EventPointerMove
	EventPointerUp
)

// Event is a host event. Widget addresses click, wheel and pointer-down
// events; pointer-move and pointer-up are document-level and ignore it.
type Event struct {
	Kind   EventKind
	Widget int
	Action Action
	X, Y   float64
	DeltaY float64
}

// Dispatcher routes events for one page's widgets. It owns the reference to
// the widget currently being dragged so that document-level move and up
// events reach only that widget. A Dispatcher is not safe for concurrent use.
type Dispatcher struct {
	widgets  []*Widget
	byIndex  map[int]*Widget
	dragging *Widget
}

// NewDispatcher creates a dispatcher over widgets, addressed by their Index.
func NewDispatcher(widgets []*Widget) *Dispatcher {
	d := &Dispatcher{byIndex: make(map[int]*Widget, len(widgets))}
	for _, w := range widgets {
		d.Add(w)
	}
	return d
}

// Add registers a widget under its Index. Indices need not be contiguous but
// must be unique within the page.
func (d *Dispatcher) Add(w *Widget) {
	d.widgets = append(d.widgets, w)
	d.byIndex[w.Index] = w
}

// Widget returns the widget with the given index.
func (d *Dispatcher) Widget(index int) (*Widget, bool) {
	w, ok := d.byIndex[index]
	return w, ok
}

// Len is the number of widgets.
func (d *Dispatcher) Len() int {
	return len(d.widgets)
}

// Dragging returns the widget with an active drag session, if any.
func (d *Dispatcher) Dragging() (*Widget, bool) {
	return d.dragging, d.dragging != nil
}

// Dispatch applies evt and returns the effect for the affected widget along
// with that widget's index (-1 when nothing was affected).
func (d *Dispatcher) Dispatch(evt Event) (int, Effect) {
	switch evt.Kind {
	case EventClick:
		w, ok := d.Widget(evt.Widget)
		if !ok {
			return -1, Effect{}
		}
		return w.Index, w.Apply(evt.Action)
	case EventWheel:
		w, ok := d.Widget(evt.Widget)
		if !ok {
			return -1, Effect{}
		}
		return w.Index, w.Wheel(evt.DeltaY)
	case EventPointerDown:
		w, ok := d.Widget(evt.Widget)
		if !ok {
			return -1, Effect{}
		}
		if d.dragging != nil && d.dragging != w {
			d.dragging.PointerUp()
		}
		w.PointerDown(evt.X, evt.Y)
		d.dragging = w
		return w.Index, Effect{}
	case EventPointerMove:
		if d.dragging == nil {
			return -1, Effect{}
		}
		return d.dragging.Index, d.dragging.PointerMove(evt.X, evt.Y)
	case EventPointerUp:
		if d.dragging == nil {
			return -1, Effect{}
		}
		w := d.dragging
		w.PointerUp()
		d.dragging = nil
		return w.Index, Effect{}
	default:
		return -1, Effect{}
	}
}
