package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/euforicio/docsite/internal/viewer"
	"github.com/euforicio/docsite/internal/viewer/snapshot"
)

// handleDiagramPNG rasterizes one server-rendered diagram of a page with the
// requested viewport applied. Query: page (required), scale, tx, ty.
func (s *Server) handleDiagramPNG(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, apiError{Error: "invalid diagram index"})
		return
	}

	query := r.URL.Query()
	path, err := parseWildcardPath(query.Get("page"))
	if err != nil {
		respondError(w, err)
		return
	}

	vp, err := viewportFromQuery(query.Get("scale"), query.Get("tx"), query.Get("ty"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	_, attached, err := s.loadPage(ctx, nil, path)
	if err != nil {
		s.logger.WarnContext(ctx, "load page for snapshot failed", slog.Any("err", err), slog.String("path", path))
		respondError(w, err)
		return
	}

	svg, err := snapshot.Graphic(attached, index)
	if err != nil {
		status, result := http.StatusUnprocessableEntity, "failed"
		switch {
		case errors.Is(err, snapshot.ErrNoDiagram):
			status, result = http.StatusNotFound, "not_found"
		case errors.Is(err, snapshot.ErrClientRendered):
			result = "client_rendered"
		}
		s.metrics.ObserveSnapshot(result, 0)
		respondJSON(w, status, apiError{Error: err.Error()})
		return
	}

	start := time.Now()
	data, err := snapshot.PNG(svg, vp)
	if err != nil {
		s.metrics.ObserveSnapshot("failed", 0)
		s.logger.WarnContext(ctx, "rasterize diagram failed", slog.Any("err", err), slog.String("path", path), slog.Int("index", index))
		respondJSON(w, http.StatusInternalServerError, apiError{Error: "failed to rasterize diagram"})
		return
	}

	s.metrics.ObserveSnapshot("ok", time.Since(start))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", snapshotFilename(path, index)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.WarnContext(ctx, "write snapshot failed", slog.Any("err", err))
	}
}

// viewportFromQuery parses optional viewport values. Missing values keep the
// identity transform; the scale is clamped like any widget zoom.
func viewportFromQuery(scale, tx, ty string) (viewer.Viewport, error) {
	vp := viewer.NewViewport()
	parse := func(name, raw string, fallback float64) (float64, error) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return fallback, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value", name)
		}
		return v, nil
	}

	sc, err := parse("scale", scale, vp.Scale)
	if err != nil {
		return vp, err
	}
	x, err := parse("tx", tx, 0)
	if err != nil {
		return vp, err
	}
	y, err := parse("ty", ty, 0)
	if err != nil {
		return vp, err
	}

	vp.SetScale(sc)
	vp.Translate(x, y)
	return vp, nil
}

func snapshotFilename(path string, index int) string {
	base := strings.TrimSuffix(path, ".md")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	return fmt.Sprintf("%s-diagram-%d.png", strings.Trim(base, "-"), index)
}
