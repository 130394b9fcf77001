// Package static embeds and serves frontend assets: the stylesheet, the
// chroma highlighting theme and the diagram viewer runtime.
package static

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed css/*.css js/*.js
var assets embed.FS

// FS exposes the embedded static assets.
func FS() fs.FS {
	return assets
}

// HTTP returns an http.FileSystem backed by the embedded assets.
func HTTP() http.FileSystem {
	return http.FS(assets)
}

// Has reports whether the given relative path exists in the embedded assets.
func Has(name string) bool {
	name = strings.TrimPrefix(name, "/")
	f, err := assets.Open(name)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
