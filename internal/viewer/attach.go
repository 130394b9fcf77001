package viewer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Structural class names shared with the stylesheet and the browser runtime.
const (
	ClassWrapper   = "mermaid-wrapper"
	ClassContainer = "mermaid-svg-container"
	ClassControls  = "mermaid-controls"
	ClassButton    = "mermaid-btn"
	ClassError     = "diagram-error"

	placeholderPrefix = "language-"
)

var (
	// ErrNoEngines is returned when AttachAll is called without any engine.
	ErrNoEngines = errors.New("no diagram engines configured")
	// ErrNilRoot is returned when AttachAll is given no tree.
	ErrNilRoot = errors.New("nil root node")
)

// Engine renders diagram descriptions into the mount targets of one page.
type Engine interface {
	// Language is the fence language handled by the engine; placeholders
	// carry the class "language-<Language>".
	Language() string
	// Marker is the class attached to mount targets owned by the engine.
	Marker() string
	// Run renders every mount of a page in one batch.
	Run(ctx context.Context, mounts []*Mount) error
}

// Mount is the element a diagram engine renders into.
type Mount struct {
	Index    int
	Language string
	Source   string

	node    *html.Node
	graphic string
	failure string
}

// ID is the mount element id.
func (m *Mount) ID() string {
	return MountID(m.Index)
}

// SetGraphic replaces the mount's children with rendered markup. The markup is
// written verbatim when the tree is rendered.
func (m *Mount) SetGraphic(markup string) {
	m.graphic = markup
	m.failure = ""
	clearChildren(m.node)
	m.node.AppendChild(&html.Node{Type: html.RawNode, Data: markup})
}

// Fail replaces the mount's children with an error notice.
func (m *Mount) Fail(message string) {
	m.graphic = ""
	m.failure = message
	clearChildren(m.node)
	notice := element(atom.Div, attr("class", ClassError))
	notice.AppendChild(&html.Node{Type: html.TextNode, Data: message})
	m.node.AppendChild(notice)
}

// Graphic returns markup set by SetGraphic. It is empty for diagrams rendered
// by the browser and for failed renders.
func (m *Mount) Graphic() string {
	return m.graphic
}

// Failure returns the message recorded by Fail.
func (m *Mount) Failure() string {
	return m.failure
}

// Page is the result of one attach pass: the widgets found on a rendered page
// and the dispatcher routing their gestures.
type Page struct {
	*Dispatcher
	mounts map[int]*Mount
}

// Mount returns the mount target for the widget with the given index.
func (p *Page) Mount(index int) (*Mount, bool) {
	m, ok := p.mounts[index]
	return m, ok
}

// Widgets returns the widgets in document order.
func (p *Page) Widgets() []*Widget {
	return append([]*Widget(nil), p.widgets...)
}

// AttachAll replaces every diagram placeholder under root with an interactive
// widget, then runs each engine once over the mounts it owns. A widget's index
// is the placeholder's position among all matched placeholders, so skipped
// placeholders still take a slot. Engine errors are returned unchanged. Running AttachAll again over the same tree attaches
// nothing, since no placeholders remain.
func AttachAll(ctx context.Context, root *html.Node, engines ...Engine) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrNilRoot
	}
	if len(engines) == 0 {
		return nil, ErrNoEngines
	}

	seen := make(map[string]struct{}, len(engines))
	selectors := make([]string, 0, len(engines))
	for _, e := range engines {
		lang := strings.ToLower(e.Language())
		if _, dup := seen[lang]; dup {
			return nil, fmt.Errorf("duplicate engine for language %q", lang)
		}
		seen[lang] = struct{}{}
		selectors = append(selectors, "."+placeholderPrefix+lang)
	}

	page := &Page{Dispatcher: NewDispatcher(nil), mounts: make(map[int]*Mount)}
	owned := make([][]*Mount, len(engines))

	doc := goquery.NewDocumentFromNode(root)
	doc.Find(strings.Join(selectors, ", ")).Each(func(index int, placeholder *goquery.Selection) {
		node := placeholder.Get(0)
		// Nested placeholders are detached once their ancestor is replaced.
		if !attachedTo(root, node) {
			return
		}
		code := placeholder.Find("code").First()
		if code.Length() == 0 {
			return
		}
		slot := engineFor(placeholder, engines)
		if slot < 0 {
			return
		}
		engine := engines[slot]

		widget := NewWidget(index, strings.ToLower(engine.Language()), code.Text())
		wrapper, mountNode := buildWrapper(widget, engine.Marker())
		node.Parent.InsertBefore(wrapper, node)
		node.Parent.RemoveChild(node)

		mount := &Mount{Index: index, Language: widget.Language, Source: widget.Source, node: mountNode}
		page.Add(widget)
		page.mounts[index] = mount
		owned[slot] = append(owned[slot], mount)
	})

	for slot, mounts := range owned {
		if len(mounts) == 0 {
			continue
		}
		if err := engines[slot].Run(ctx, mounts); err != nil {
			return page, err
		}
	}
	return page, nil
}

// AttachHTML runs AttachAll over an HTML fragment and returns the rewritten
// fragment.
func AttachHTML(ctx context.Context, fragment string, engines ...Engine) (string, *Page, error) {
	container := element(atom.Div)
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		return "", nil, fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}

	page, err := AttachAll(ctx, container, engines...)
	if err != nil {
		return "", page, err
	}

	var buf strings.Builder
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", page, fmt.Errorf("render fragment: %w", err)
		}
	}
	return buf.String(), page, nil
}

func attachedTo(root, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func engineFor(placeholder *goquery.Selection, engines []Engine) int {
	for i, e := range engines {
		if placeholder.HasClass(placeholderPrefix + strings.ToLower(e.Language())) {
			return i
		}
	}
	return -1
}

// buildWrapper creates wrapper > container > mount plus the control bar and
// returns the wrapper and the mount node.
func buildWrapper(w *Widget, marker string) (*html.Node, *html.Node) {
	wrapper := element(atom.Div,
		attr("class", ClassWrapper),
		attr("id", w.ID()),
		attr("data-diagram-index", strconv.Itoa(w.Index)),
		attr("data-diagram-language", w.Language),
		attr("data-zoom-step", formatFloat(ZoomStep)),
		attr("data-wheel-step", formatFloat(WheelStep)),
		attr("data-min-scale", formatFloat(MinScale)),
		attr("data-max-scale", formatFloat(MaxScale)),
	)
	container := element(atom.Div,
		attr("class", ClassContainer),
		attr("style", w.Viewport.Style()),
	)
	mount := element(atom.Div,
		attr("class", marker),
		attr("id", w.MountID()),
	)
	mount.AppendChild(&html.Node{Type: html.TextNode, Data: w.Source})

	container.AppendChild(mount)
	wrapper.AppendChild(container)
	wrapper.AppendChild(buildControls())
	return wrapper, mount
}

func buildControls() *html.Node {
	controls := element(atom.Div, attr("class", ClassControls))
	for _, action := range Actions() {
		button := element(atom.Button,
			attr("type", "button"),
			attr("class", ClassButton),
			attr("data-action", string(action)),
			attr("title", action.Title()),
			attr("aria-label", action.Title()),
		)
		button.AppendChild(&html.Node{Type: html.RawNode, Data: icons[action]})
		controls.AppendChild(button)
	}
	return controls
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func clearChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

const iconPrefix = `<svg width="16" height="16" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2" aria-hidden="true">`

var icons = map[Action]string{
	ActionZoomIn: iconPrefix +
		`<circle cx="11" cy="11" r="8"></circle><line x1="21" y1="21" x2="16.65" y2="16.65"></line>` +
		`<line x1="11" y1="8" x2="11" y2="14"></line><line x1="8" y1="11" x2="14" y2="11"></line></svg>`,
	ActionZoomOut: iconPrefix +
		`<circle cx="11" cy="11" r="8"></circle><line x1="21" y1="21" x2="16.65" y2="16.65"></line>` +
		`<line x1="8" y1="11" x2="14" y2="11"></line></svg>`,
	ActionReset: iconPrefix +
		`<path d="M3 12a9 9 0 1 0 9-9 9.75 9.75 0 0 0-6.74 2.74L3 8"></path><path d="M3 3v5h5"></path></svg>`,
	ActionFullscreen: iconPrefix +
		`<path d="M8 3H5a2 2 0 0 0-2 2v3m18 0V5a2 2 0 0 0-2-2h-3m0 18h3a2 2 0 0 0 2-2v-3M3 16v3a2 2 0 0 0 2 2h3"></path></svg>`,
}
