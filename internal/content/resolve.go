package content

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ErrInvalidPath reports a document path that is empty, absolute or climbs
// out of the docs root.
var ErrInvalidPath = errors.New("invalid document path")

// documentPath turns a request path such as "guides/setup" into the
// slash-separated file name under the root, adding .md when no markdown
// extension is present.
func documentPath(raw string) (string, error) {
	p := strings.TrimSpace(strings.ReplaceAll(raw, `\`, "/"))
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, ":") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	for part := range strings.SplitSeq(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
		}
	}
	p = path.Clean(p)
	if p == "." || !fs.ValidPath(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	if !isMarkdownPath(p) {
		p += ".md"
	}
	return p, nil
}

func isMarkdownPath(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".md" || ext == ".markdown"
}
