package server

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/euforicio/docsite/internal/content/tree"
	"github.com/euforicio/docsite/internal/renderer"
	"github.com/euforicio/docsite/internal/viewer"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

type templateRenderer struct {
	tmpl *template.Template
}

func newTemplateRenderer() (*templateRenderer, error) {
	funcs := template.FuncMap{
		"dict": func(values ...any) (map[string]any, error) {
			if len(values)%2 != 0 {
				return nil, fmt.Errorf("dict requires an even number of args")
			}
			m := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict keys must be strings")
				}
				m[key] = values[i+1]
			}
			return m, nil
		},
		"isActive": strings.EqualFold,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("Jan 2, 2006 3:04 PM")
		},
		"hasMetadata": func(meta renderer.Metadata) bool {
			return !meta.IsZero()
		},
		"viewerConfig": func() map[string]float64 {
			return map[string]float64{
				"minScale":  viewer.MinScale,
				"maxScale":  viewer.MaxScale,
				"zoomStep":  viewer.ZoomStep,
				"wheelStep": viewer.WheelStep,
			}
		},
	}

	base, err := template.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}

	return &templateRenderer{tmpl: base}, nil
}

func (r *templateRenderer) render(w io.Writer, name string, data any) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}

type homeViewData struct { //nolint:govet // struct fields grouped for template readability
	Tree          *tree.Node
	ActivePath    string
	Page          pageViewData
	HasDocument   bool
	DarkMode      bool
	CustomCSSURLs []string
}

type pageViewData struct {
	Path        string
	Title       string
	HTML        template.HTML
	Metadata    renderer.Metadata
	Modified    time.Time
	Breadcrumbs []breadcrumb
	Diagrams    []diagramView
	Missing     bool
}

// diagramView summarizes one attached widget for JSON clients and templates.
type diagramView struct {
	Index          int    `json:"index"`
	ID             string `json:"id"`
	Language       string `json:"language"`
	Transform      string `json:"transform"`
	ServerRendered bool   `json:"serverRendered"`
	Error          string `json:"error,omitempty"`
}

type treeViewData struct {
	Root   *tree.Node
	Active string
}

type breadcrumb struct {
	Title string
	Path  string
}
