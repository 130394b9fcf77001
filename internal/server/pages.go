package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/euforicio/docsite/internal/content/tree"
	"github.com/euforicio/docsite/internal/renderer"
	"github.com/euforicio/docsite/internal/viewer"
)

// pathHeader echoes the resolved document path on fragment answers so the
// shell can update the address bar.
const pathHeader = "X-Docsite-Path"

type pageJSON struct {
	Metadata renderer.Metadata `json:"metadata"`
	Modified time.Time         `json:"modified"`
	Path     string            `json:"path"`
	HTML     string            `json:"html"`
	Diagrams []diagramView     `json:"diagrams"`
}

type rawJSON struct {
	Metadata renderer.Metadata `json:"metadata"`
	Modified time.Time         `json:"modified"`
	Path     string            `json:"path"`
	Raw      string            `json:"raw"`
}

type treeJSON struct {
	GeneratedAt time.Time  `json:"generatedAt"`
	Root        *tree.Node `json:"root"`
}

// navTree loads the navigation snapshot or answers 500 itself.
func (s *Server) navTree(w http.ResponseWriter, r *http.Request) (*tree.Node, bool) {
	root, err := s.content.CurrentTree(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "load content tree failed", slog.Any("err", err))
		http.Error(w, "failed to load content tree", http.StatusInternalServerError)
		return nil, false
	}
	return root, true
}

func (s *Server) layout(root *tree.Node, active string) homeViewData {
	return homeViewData{
		Tree:          root,
		ActivePath:    active,
		CustomCSSURLs: s.customCSSURLs(),
		DarkMode:      s.cfg.DarkModeFirst,
	}
}

// handleRoot redirects to the first document, or shows the empty shell when
// the docs root holds none.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	root, ok := s.navTree(w, r)
	if !ok {
		return
	}
	if first := root.FirstDocument(); first != "" {
		http.Redirect(w, r, "/page/"+first, http.StatusFound)
		return
	}
	s.renderTemplate(w, r, "layout", s.layout(root, ""))
}

// handlePageRoute renders the full shell around one document. A missing
// document still gets the shell, with a notice in place of the article.
func (s *Server) handlePageRoute(w http.ResponseWriter, r *http.Request) {
	docPath, err := parseWildcardPath(r.PathValue("path"))
	if err != nil {
		respondError(w, err)
		return
	}
	root, ok := s.navTree(w, r)
	if !ok {
		return
	}

	data := s.layout(root, docPath)
	page, _, err := s.loadPage(r.Context(), root, docPath)
	switch {
	case err == nil:
		data.Page, data.HasDocument = page, true
	case errors.Is(err, os.ErrNotExist):
		data.Page = missingPage(docPath)
	default:
		s.logger.WarnContext(r.Context(), "page load failed", slog.String("path", docPath), slog.Any("err", err))
		respondError(w, err)
		return
	}
	s.renderTemplate(w, r, "layout", data)
}

// handlePage answers /api/page/{path...}. HTMX requests get the article
// fragment, ?format=raw the markdown source, everyone else JSON.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docPath, err := parseWildcardPath(r.PathValue("path"))
	if err != nil {
		respondError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "raw", "markdown":
		s.respondRaw(w, r, docPath)
		return
	}

	fragment := htmx(r)
	var root *tree.Node
	if fragment {
		// Breadcrumbs only; a stale tree is better than none.
		root, _ = s.content.CurrentTree(ctx)
	}

	page, _, err := s.loadPage(ctx, root, docPath)
	switch {
	case err == nil && fragment:
		trigger(w, "pageLoaded", map[string]any{"path": docPath, "title": page.Title, "diagrams": len(page.Diagrams)})
		w.Header().Set(pathHeader, docPath)
		s.renderTemplate(w, r, "page", page)
	case err == nil:
		respondJSON(w, http.StatusOK, pageJSON{
			Metadata: page.Metadata,
			Modified: page.Modified,
			Path:     docPath,
			HTML:     string(page.HTML),
			Diagrams: page.Diagrams,
		})
	case fragment && errors.Is(err, os.ErrNotExist):
		trigger(w, "pageLoaded", map[string]any{"path": docPath, "missing": true})
		w.Header().Set(pathHeader, docPath)
		s.renderTemplate(w, r, "page", missingPage(docPath))
	default:
		s.logger.WarnContext(ctx, "load page failed", slog.String("path", docPath), slog.Any("err", err))
		respondError(w, err)
	}
}

func (s *Server) respondRaw(w http.ResponseWriter, r *http.Request, docPath string) {
	doc, err := s.content.Document(r.Context(), docPath)
	if err != nil {
		s.logger.WarnContext(r.Context(), "load raw page failed", slog.String("path", docPath), slog.Any("err", err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rawJSON{
		Metadata: doc.Metadata,
		Modified: doc.Modified,
		Path:     docPath,
		Raw:      doc.Raw,
	})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	node, err := s.content.CurrentTree(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "fetch tree failed", slog.Any("err", err))
		respondJSON(w, http.StatusInternalServerError, apiError{Error: "failed to load tree"})
		return
	}
	if htmx(r) {
		active := r.URL.Query().Get("current")
		trigger(w, "treeUpdated", map[string]any{"active": active})
		s.renderTemplate(w, r, "tree", treeViewData{Root: node, Active: active})
		return
	}
	respondJSON(w, http.StatusOK, treeJSON{GeneratedAt: time.Now(), Root: node})
}

// loadPage renders the document at docPath and attaches a viewer widget to
// every diagram placeholder. root is used for breadcrumbs and may be nil.
func (s *Server) loadPage(ctx context.Context, root *tree.Node, docPath string) (pageViewData, *viewer.Page, error) {
	doc, err := s.content.Document(ctx, docPath)
	if err != nil {
		return pageViewData{}, nil, err
	}

	fragment, attached, err := viewer.AttachHTML(ctx, doc.HTML, s.engines()...)
	if err != nil {
		return pageViewData{}, attached, fmt.Errorf("attach diagrams: %w", err)
	}
	diagrams := diagramViews(attached)
	languages := make([]string, len(diagrams))
	for i, d := range diagrams {
		languages[i] = d.Language
	}
	s.metrics.ObserveAttach(languages)

	return pageViewData{
		Path:        docPath,
		Title:       documentTitle(doc.Metadata.Title, docPath),
		HTML:        template.HTML(fragment), //nolint:gosec // produced by the renderer and the viewer
		Metadata:    doc.Metadata,
		Modified:    doc.Modified,
		Breadcrumbs: breadcrumbsFor(root, docPath),
		Diagrams:    diagrams,
	}, attached, nil
}

func documentTitle(title, docPath string) string {
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	return titleFromPath(docPath)
}

func diagramViews(page *viewer.Page) []diagramView {
	if page == nil {
		return nil
	}
	views := make([]diagramView, 0, page.Len())
	for _, w := range page.Widgets() {
		view := diagramView{
			Index:     w.Index,
			ID:        w.ID(),
			Language:  w.Language,
			Transform: w.Viewport.Transform(),
		}
		if m, ok := page.Mount(w.Index); ok {
			view.ServerRendered = m.Graphic() != ""
			view.Error = m.Failure()
		}
		views = append(views, view)
	}
	return views
}

func missingPage(docPath string) pageViewData {
	return pageViewData{
		Path:    docPath,
		Title:   titleFromPath(docPath) + " (missing)",
		Missing: true,
	}
}

// titleFromPath turns "getting-started.md" into "Getting Started".
func titleFromPath(p string) string {
	name := path.Base(strings.ReplaceAll(p, `\`, "/"))
	name = strings.TrimSuffix(name, path.Ext(name))
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return "Untitled Document"
	}
	for i, w := range words {
		w = strings.ToLower(w)
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToTitle(first)) + w[size:]
	}
	return strings.Join(words, " ")
}

func breadcrumbsFor(root *tree.Node, target string) []breadcrumb {
	nodes := root.PathTo(target)
	if len(nodes) == 0 {
		nodes = root.PathTo(target + ".md")
	}
	if len(nodes) < 2 {
		return nil
	}
	crumbs := make([]breadcrumb, 0, len(nodes)-1)
	for _, n := range nodes[1:] {
		crumbs = append(crumbs, breadcrumb{Title: n.Title, Path: n.RelativePath})
	}
	return crumbs
}

// renderTemplate buffers the whole template so a failure halfway through
// still produces a clean 500.
func (s *Server) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.render(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "render template failed", slog.String("template", name), slog.Any("err", err))
		http.Error(w, "failed to render template", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.WarnContext(r.Context(), "write template response failed", slog.Any("err", err))
	}
}
