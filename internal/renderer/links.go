package renderer

import (
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var docPathKey = parser.NewContextKey()

// Route prefixes the server mounts documents and media under.
const (
	pageRoute  = "/page/"
	mediaRoute = "/media/"
)

// linkRewriter points relative markdown links at page routes and relative
// images at the media route, resolved against the current document's folder.
type linkRewriter struct{}

func (linkRewriter) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	current, _ := pc.Get(docPathKey).(string)
	dir := path.Dir(current)

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			if dest, ok := pageLink(string(node.Destination), dir); ok {
				node.Destination = []byte(dest)
			}
		case *ast.Image:
			if dest, ok := mediaLink(string(node.Destination), dir); ok {
				node.Destination = []byte(dest)
			}
		}
		return ast.WalkContinue, nil
	})
}

// pageLink rewrites guide.md#install to /page/<dir>/guide.md#install.
func pageLink(dest, dir string) (string, bool) {
	u, ok := localURL(dest)
	if !ok || !isMarkdownFile(u.Path) || strings.HasPrefix(u.Path, pageRoute) {
		return "", false
	}
	out := pageRoute + resolve(u.Path, dir)
	if u.Fragment != "" {
		out += "#" + u.Fragment
	}
	return out, true
}

func mediaLink(dest, dir string) (string, bool) {
	u, ok := localURL(dest)
	if !ok || strings.HasPrefix(u.Path, mediaRoute) || strings.HasPrefix(u.Path, "/static/") {
		return "", false
	}
	return mediaRoute + resolve(u.Path, dir), true
}

// localURL parses dest and reports whether it points inside the docs tree.
// Anything with a scheme or host (https:, mailto:, data:) is left alone.
func localURL(dest string) (*url.URL, bool) {
	if dest == "" || strings.HasPrefix(dest, "#") {
		return nil, false
	}
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return nil, false
	}
	return u, true
}

func resolve(p, dir string) string {
	if !strings.HasPrefix(p, "/") && dir != "." && dir != "" {
		p = path.Join(dir, p)
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func isMarkdownFile(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".md" || ext == ".markdown"
}
