package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/euforicio/docsite/internal/config"
	"github.com/euforicio/docsite/internal/content"
	"github.com/euforicio/docsite/internal/metrics"
	"github.com/euforicio/docsite/internal/renderer"
	"github.com/euforicio/docsite/internal/renderer/d2"
)

const diagramsPage = "guides/diagrams.md"

func TestRootRedirectsToFirstDocument(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/page/guides/advanced_topics.md" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	for _, target := range []string{"/does-not-exist", "/guides/diagrams.md"} {
		rec := srv.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "" {
			t.Fatalf("%s: unexpected redirect to %q", target, loc)
		}
	}
}

func TestPageRouteAttachesDiagramWidgets(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/page/"+diagramsPage, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()

	for _, want := range []string{
		"<html",
		`id="nav-tree"`,
		`id="mermaid-wrapper-0"`,
		`id="mermaid-wrapper-1"`,
		`data-diagram-language="mermaid"`,
		`data-diagram-language="d2"`,
		`class="mermaid" id="mermaid-0"`,
		`class="d2-diagram" id="mermaid-1"`,
		`data-action="zoom-in"`,
		`data-action="fullscreen"`,
		`transform: translate(0px, 0px) scale(1);`,
		"/static/js/diagram-viewer.js",
		"Diagrams",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in page body", want)
		}
	}
	if strings.Contains(body, `class="language-mermaid"`) || strings.Contains(body, `class="language-d2"`) {
		t.Fatalf("placeholders should be replaced by widgets")
	}
	if got := strings.Count(body, `class="mermaid-wrapper"`); got != 2 {
		t.Fatalf("expected 2 widgets, got %d", got)
	}
}

func TestPageRouteMissingDocument(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/page/guides/nope.md", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected layout for missing page, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "was not found") {
		t.Fatalf("expected missing notice")
	}
}

func TestAPIPageJSON(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/page/"+diagramsPage, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Path     string        `json:"path"`
		HTML     string        `json:"html"`
		Diagrams []diagramView `json:"diagrams"`
		Metadata struct {
			Title string
		} `json:"metadata"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Path != diagramsPage || resp.Metadata.Title != "Diagrams" {
		t.Fatalf("unexpected page %q / %q", resp.Path, resp.Metadata.Title)
	}
	if len(resp.Diagrams) != 2 {
		t.Fatalf("expected 2 diagrams, got %d", len(resp.Diagrams))
	}

	mermaid, d2view := resp.Diagrams[0], resp.Diagrams[1]
	if mermaid.Language != "mermaid" || mermaid.ServerRendered || mermaid.ID != "mermaid-wrapper-0" {
		t.Fatalf("unexpected mermaid diagram %+v", mermaid)
	}
	if d2view.Language != "d2" || !d2view.ServerRendered || d2view.Error != "" {
		t.Fatalf("unexpected d2 diagram %+v", d2view)
	}
	if mermaid.Transform != "translate(0px, 0px) scale(1)" {
		t.Fatalf("unexpected initial transform %q", mermaid.Transform)
	}
	if !strings.Contains(resp.HTML, "<svg") {
		t.Fatalf("expected server-rendered svg in html")
	}
}

func TestAPIPageHTMXAndRaw(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/page/"+diagramsPage, nil)
	req.Header.Set("HX-Request", "true")
	rec := srv.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "<html") || !strings.Contains(rec.Body.String(), "<article") {
		t.Fatalf("expected page fragment")
	}
	trigger := rec.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, "pageLoaded") || !strings.Contains(trigger, `"diagrams":2`) {
		t.Fatalf("unexpected HX-Trigger %q", trigger)
	}
	if got := rec.Header().Get("X-Docsite-Path"); got != diagramsPage {
		t.Fatalf("unexpected path header %q", got)
	}

	raw := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/page/"+diagramsPage+"?format=raw", nil))
	if raw.Code != http.StatusOK || !strings.Contains(raw.Body.String(), "```mermaid") {
		t.Fatalf("expected raw markdown, got %d", raw.Code)
	}

	missing := httptest.NewRequest(http.MethodGet, "/api/page/nope.md", nil)
	missing.Header.Set("HX-Request", "true")
	if rec := srv.do(t, missing); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "was not found") {
		t.Fatalf("expected missing fragment, got %d", rec.Code)
	}
	if rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/page/nope.md", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing page, got %d", rec.Code)
	}
}

func TestAPIPageRejectsTraversal(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/page/x", nil)
	req.SetPathValue("path", "../secret.md")
	rec := httptest.NewRecorder()
	srv.handlePage(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for traversal, got %d", rec.Code)
	}
}

func TestTreeEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/tree", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Root struct {
			Children []struct {
				Name string `json:"name"`
			} `json:"children"`
		} `json:"root"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if len(resp.Root.Children) == 0 {
		t.Fatalf("expected tree children")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tree?current="+diagramsPage, nil)
	req.Header.Set("HX-Request", "true")
	frag := srv.do(t, req)
	if !strings.Contains(frag.Body.String(), `class="tree-file active"`) {
		t.Fatalf("expected active entry in tree fragment")
	}
}

func TestDiagramPNG(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	width := func(scale string) int {
		t.Helper()
		rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/diagram/1/png?page="+diagramsPage+"&scale="+scale, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("scale %s: expected 200, got %d: %s", scale, rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
			t.Fatalf("unexpected content type %q", ct)
		}
		img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
		if err != nil {
			t.Fatalf("decode png: %v", err)
		}
		return img.Bounds().Dx()
	}

	base, zoomed, clamped := width("1"), width("2"), width("50")
	if zoomed <= base {
		t.Fatalf("expected zoomed snapshot wider than base: %d <= %d", zoomed, base)
	}
	if clamped != width("3") {
		t.Fatalf("expected scale 50 to clamp to the maximum")
	}

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "client rendered", target: "/api/diagram/0/png?page=" + diagramsPage, status: http.StatusUnprocessableEntity},
		{name: "index out of range", target: "/api/diagram/7/png?page=" + diagramsPage, status: http.StatusNotFound},
		{name: "bad index", target: "/api/diagram/one/png?page=" + diagramsPage, status: http.StatusBadRequest},
		{name: "missing page param", target: "/api/diagram/1/png", status: http.StatusBadRequest},
		{name: "bad scale", target: "/api/diagram/1/png?page=" + diagramsPage + "&scale=big", status: http.StatusBadRequest},
		{name: "unknown page", target: "/api/diagram/0/png?page=nope.md", status: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, httptest.NewRequest(http.MethodGet, tc.target, nil))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestViewportFromQuery(t *testing.T) {
	t.Parallel()

	vp, err := viewportFromQuery("", "", "")
	if err != nil || vp.Scale != 1 || vp.TranslateX != 0 || vp.TranslateY != 0 {
		t.Fatalf("expected identity viewport, got %+v (%v)", vp, err)
	}
	vp, err = viewportFromQuery("0.1", "-12.5", "40")
	if err != nil || vp.Scale != 0.5 || vp.TranslateX != -12.5 || vp.TranslateY != 40 {
		t.Fatalf("unexpected viewport %+v (%v)", vp, err)
	}
	if _, err := viewportFromQuery("1", "left", ""); err == nil {
		t.Fatalf("expected error for invalid tx")
	}
}

func TestMediaAndStatic(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	if err := os.WriteFile(filepath.Join(srv.content.Root(), "guides", "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/media/guides/notes.txt", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Fatalf("expected media file, got %d %q", rec.Code, rec.Body.String())
	}
	if rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/media/.drafts/unpublished.md", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected hidden media to be 404, got %d", rec.Code)
	}
	if rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/media/guides", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected directory to be rejected, got %d", rec.Code)
	}

	js := srv.do(t, httptest.NewRequest(http.MethodGet, "/static/js/diagram-viewer.js", nil))
	if js.Code != http.StatusOK || !strings.Contains(js.Body.String(), "mermaid-wrapper") {
		t.Fatalf("expected viewer runtime, got %d", js.Code)
	}

	if rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}
}

func TestGzipSkipsSnapshots(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tree", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := srv.do(t, req)
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoded tree")
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	if data, err := io.ReadAll(zr); err != nil || !bytes.Contains(data, []byte(`"root"`)) {
		t.Fatalf("unexpected gzip body: %v", err)
	}

	pngReq := httptest.NewRequest(http.MethodGet, "/api/diagram/1/png?page="+diagramsPage, nil)
	pngReq.Header.Set("Accept-Encoding", "gzip")
	if rec := srv.do(t, pngReq); rec.Header().Get("Content-Encoding") != "" {
		t.Fatalf("png snapshots should not be gzip encoded")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	srv.do(t, httptest.NewRequest(http.MethodGet, "/api/page/"+diagramsPage, nil))
	srv.do(t, httptest.NewRequest(http.MethodGet, "/api/diagram/0/png?page="+diagramsPage, nil))

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`docsite_widgets_attached_total{language="mermaid"} 2`,
		`docsite_widgets_attached_total{language="d2"} 2`,
		`docsite_snapshots_total{result="client_rendered"} 1`,
		"docsite_d2_render_duration_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestRecoverPanics(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), recoverPanics(logger))

	page := httptest.NewRecorder()
	h.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/page/index.md", nil))
	if page.Code != http.StatusInternalServerError || strings.Contains(page.Header().Get("Content-Type"), "json") {
		t.Fatalf("expected plain 500 for pages, got %d %q", page.Code, page.Header().Get("Content-Type"))
	}

	api := httptest.NewRecorder()
	h.ServeHTTP(api, httptest.NewRequest(http.MethodGet, "/api/tree", nil))
	if api.Code != http.StatusInternalServerError || !strings.Contains(api.Body.String(), `"error"`) {
		t.Fatalf("expected JSON 500 for api, got %d %q", api.Code, api.Body.String())
	}
}

func TestLogRequestsRecordsRoutePattern(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/page/{path...}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	quiet := wrap(mux, logRequests(logger, false))
	quiet.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Fatalf("successful requests should not be logged unless verbose: %s", buf.String())
	}
	quiet.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/page/guides/diagrams.md", nil))
	if line := buf.String(); !strings.Contains(line, "level=ERROR") || !strings.Contains(line, `route="GET /api/page/{path...}"`) || !strings.Contains(line, "status=500") {
		t.Fatalf("unexpected log line %q", line)
	}

	buf.Reset()
	verbose := wrap(mux, logRequests(logger, true))
	verbose.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if line := buf.String(); !strings.Contains(line, "route=\"GET /healthz\"") || !strings.Contains(line, "bytes_out=2") {
		t.Fatalf("unexpected verbose log line %q", line)
	}
}

func TestEventsHandlerSendsReadyComment(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleEvents(rec, req)
		close(done)
	}()

	// Give the handler a moment to write the ready comment.
	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, ": ready\n\n") {
		t.Fatalf("expected ready comment in body, got %q", body)
	}
}

func TestTitleFromPath(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"guides/getting-started.md": "Getting Started",
		"advanced_topics.md":        "Advanced Topics",
		"API.md":                    "Api",
		"émoji-guide.md":            "Émoji Guide",
		"über_uns.md":               "Über Uns",
		".md":                       "Untitled Document",
	}
	for in, want := range tests {
		if got := titleFromPath(in); got != want {
			t.Fatalf("titleFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

type testServer struct {
	*Server
	handler http.Handler
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tempRoot := t.TempDir()
	copyDir(t, filepath.Join("..", "..", "testdata", "docs"), tempRoot)

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	contentSvc, err := content.NewService(context.Background(), tempRoot, renderer.NewService(logger), logger, content.Options{DisableWatch: true})
	if err != nil {
		t.Fatalf("content service init failed: %v", err)
	}
	t.Cleanup(func() { _ = contentSvc.Close() })

	d2Renderer, err := d2.New(context.Background(), logger, &d2.Options{Timeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("d2 renderer init failed: %v", err)
	}

	cfg := config.Default()
	cfg.RootDir = tempRoot
	cfg.AutoOpen = false
	cfg.AssetsDir = filepath.Join(tempRoot, "no-assets")

	srv, err := New(cfg, logger, contentSvc, d2Renderer, metrics.New(nil))
	if err != nil {
		t.Fatalf("server init failed: %v", err)
	}
	return &testServer{Server: srv, handler: srv.Handler()}
}

func copyDir(t *testing.T, src, dst string) {
	t.Helper()
	if err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	}); err != nil {
		t.Fatalf("copyDir failed: %v", err)
	}
}
