package snapshot

import (
	"errors"
	"fmt"

	"github.com/euforicio/docsite/internal/viewer"
)

var (
	// ErrNoDiagram is returned when a page has no widget at the requested index.
	ErrNoDiagram = errors.New("no diagram at index")
	// ErrClientRendered is returned for widgets whose graphic only exists in the browser.
	ErrClientRendered = errors.New("diagram is rendered by the browser")
)

// Graphic returns the server-rendered markup of widget index on page.
func Graphic(page *viewer.Page, index int) (string, error) {
	if page == nil {
		return "", fmt.Errorf("%w: %d", ErrNoDiagram, index)
	}
	mount, ok := page.Mount(index)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrNoDiagram, index)
	}
	if failure := mount.Failure(); failure != "" {
		return "", fmt.Errorf("diagram %d failed to render: %s", index, failure)
	}
	if mount.Graphic() == "" {
		return "", fmt.Errorf("%w: %s diagram %d", ErrClientRendered, mount.Language, index)
	}
	return mount.Graphic(), nil
}
