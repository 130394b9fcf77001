package server

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/euforicio/docsite/static"
)

// staticFS serves --assets when it names a directory and the embedded
// bundle otherwise.
func (s *Server) staticFS() http.FileSystem {
	if dir := strings.TrimSpace(s.cfg.AssetsDir); dir != "" {
		info, err := os.Stat(dir)
		switch {
		case err == nil && info.IsDir():
			s.logger.Debug("serving assets from filesystem", slog.String("dir", dir))
			return http.Dir(dir)
		case err != nil && !errors.Is(err, os.ErrNotExist):
			s.logger.Warn("assets dir check failed", slog.String("dir", dir), slog.Any("err", err))
		}
	}
	return static.HTTP()
}

// handleMedia serves images and attachments referenced from documents. Files
// are opened through an os.Root so nothing outside the docs root, symlinks
// included, can be reached.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name, err := parseWildcardPath(r.PathValue("path"))
	if err != nil {
		respondError(w, err)
		return
	}
	name = strings.TrimPrefix(name, "/")
	if !fs.ValidPath(name) {
		s.logger.WarnContext(ctx, "invalid media path", slog.String("path", name))
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	if !s.cfg.IncludeHidden && hiddenPath(name) {
		http.NotFound(w, r)
		return
	}

	root, err := os.OpenRoot(s.content.Root())
	if err != nil {
		s.logger.ErrorContext(ctx, "open docs root failed", slog.Any("err", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer root.Close()

	info, err := root.Stat(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "media lookup failed", slog.String("path", name), slog.Any("err", err))
		}
		http.NotFound(w, r)
		return
	}
	if info.IsDir() {
		http.Error(w, "Path is a directory", http.StatusBadRequest)
		return
	}

	http.ServeFileFS(w, r, root.FS(), name)
}

func hiddenPath(name string) bool {
	for part := range strings.SplitSeq(name, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
