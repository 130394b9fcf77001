package server

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// themeDirName is the folder, under the home directory and under the docs
// root, whose stylesheets are linked after the built-in ones.
const themeDirName = ".docsite"

const maxThemeSize = 1 << 20

// themeSheet is one custom stylesheet, addressed as a file name inside a
// theme directory so it can be reopened through an os.Root on every request.
type themeSheet struct {
	dir  string
	name string
}

func (t themeSheet) String() string {
	return filepath.Join(t.dir, t.name)
}

// themeDirs lists the theme folders in cascade order: user-wide first, then
// per-project, so project rules win.
func (s *Server) themeDirs() []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, themeDirName))
	}
	if s.cfg.RootDir != "" {
		dirs = append(dirs, filepath.Join(s.cfg.RootDir, themeDirName))
	}
	return dirs
}

// discoverThemes collects the *.css files of each dir, sorted by name within a
// dir. Files that resolve outside their dir are ignored.
func (s *Server) discoverThemes(dirs ...string) []themeSheet {
	var sheets []themeSheet
	for _, dir := range dirs {
		root, err := os.OpenRoot(dir)
		if err != nil {
			continue
		}
		names, err := fs.Glob(root.FS(), "*.css")
		if err != nil {
			s.logger.Warn("list theme dir failed", slog.String("dir", dir), slog.Any("err", err))
		}
		slices.Sort(names)
		for _, name := range names {
			info, err := root.Stat(name)
			if err != nil || !info.Mode().IsRegular() {
				s.logger.Warn("skipping theme file", slog.String("dir", dir), slog.String("name", name), slog.Any("err", err))
				continue
			}
			sheets = append(sheets, themeSheet{dir: dir, name: name})
		}
		_ = root.Close()
	}
	if len(sheets) > 0 {
		s.logger.Info("custom theme enabled", slog.Int("stylesheets", len(sheets)))
	}
	return sheets
}

// handleCustomCSS serves one discovered stylesheet with Last-Modified
// revalidation.
func (s *Server) handleCustomCSS(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "Invalid theme index", http.StatusBadRequest)
		return
	}
	if index < 0 || index >= len(s.themes) {
		http.NotFound(w, r)
		return
	}
	sheet := s.themes[index]

	root, err := os.OpenRoot(sheet.dir)
	if err != nil {
		s.logger.WarnContext(r.Context(), "open theme dir failed", slog.String("sheet", sheet.String()), slog.Any("err", err))
		http.NotFound(w, r)
		return
	}
	defer root.Close()

	f, err := root.Open(sheet.name)
	if err != nil {
		s.logger.WarnContext(r.Context(), "open theme file failed", slog.String("sheet", sheet.String()), slog.Any("err", err))
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if info.Size() > maxThemeSize {
		s.logger.WarnContext(r.Context(), "theme file too large", slog.String("sheet", sheet.String()), slog.Int64("size", info.Size()))
		http.Error(w, "Stylesheet too large", http.StatusRequestEntityTooLarge)
		return
	}

	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=60, must-revalidate")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, sheet.name, info.ModTime(), f)
}

func (s *Server) customCSSURLs() []string {
	urls := make([]string, len(s.themes))
	for i := range s.themes {
		urls[i] = fmt.Sprintf("/custom-theme/%d", i)
	}
	return urls
}
