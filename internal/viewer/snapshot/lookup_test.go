package snapshot_test

import (
	"context"
	"errors"
	"testing"

	"github.com/euforicio/docsite/internal/viewer"
	"github.com/euforicio/docsite/internal/viewer/snapshot"
)

type staticEngine struct{}

func (staticEngine) Language() string { return "static" }
func (staticEngine) Marker() string   { return "static-diagram" }
func (staticEngine) Run(_ context.Context, mounts []*viewer.Mount) error {
	for _, m := range mounts {
		if m.Source == "broken" {
			m.Fail("cannot draw")
			continue
		}
		m.SetGraphic(square)
	}
	return nil
}

func TestGraphicSelectsServerRenderedWidgets(t *testing.T) {
	t.Parallel()

	fragment := `<div class="language-static"><pre><code>ok</code></pre></div>` +
		`<div class="language-mermaid"><pre><code>graph TD; A-->B</code></pre></div>` +
		`<div class="language-static"><pre><code>broken</code></pre></div>`
	_, page, err := viewer.AttachHTML(context.Background(), fragment, staticEngine{}, viewer.Mermaid())
	if err != nil {
		t.Fatalf("AttachHTML returned error: %v", err)
	}

	svg, err := snapshot.Graphic(page, 0)
	if err != nil || svg != square {
		t.Fatalf("expected graphic for widget 0, got %q (%v)", svg, err)
	}
	if _, err := snapshot.Graphic(page, 1); !errors.Is(err, snapshot.ErrClientRendered) {
		t.Fatalf("expected ErrClientRendered, got %v", err)
	}
	if _, err := snapshot.Graphic(page, 2); err == nil || errors.Is(err, snapshot.ErrClientRendered) {
		t.Fatalf("expected render failure for widget 2, got %v", err)
	}
	for _, idx := range []int{-1, 3} {
		if _, err := snapshot.Graphic(page, idx); !errors.Is(err, snapshot.ErrNoDiagram) {
			t.Fatalf("index %d: expected ErrNoDiagram, got %v", idx, err)
		}
	}
	if _, err := snapshot.Graphic(nil, 0); !errors.Is(err, snapshot.ErrNoDiagram) {
		t.Fatalf("nil page: expected ErrNoDiagram, got %v", err)
	}
}
