package content_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/euforicio/docsite/internal/content"
	"github.com/euforicio/docsite/internal/renderer"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestServiceEmitsEventsOnFileChange(t *testing.T) {
	t.Parallel()
	dst := t.TempDir()
	copyDir(t, filepath.Join("..", "..", "testdata", "docs"), dst)

	ctx, cancel := context.WithCancel(context.Background())
	svc, err := content.NewService(ctx, dst, renderer.NewService(quietLogger()), quietLogger(), content.Options{})
	if err != nil {
		cancel()
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
		cancel()
	})

	subCtx, subCancel := context.WithCancel(context.Background())
	ch := svc.Subscribe(subCtx)
	t.Cleanup(subCancel)

	// Give the watcher time to attach.
	time.Sleep(200 * time.Millisecond)

	indexPath := filepath.Join(dst, "index.md")
	if err := os.WriteFile(indexPath, []byte("---\ntitle: Welcome\n---\n\n# Updated\n"), 0o644); err != nil {
		t.Fatalf("failed to write test document: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Type == content.EventPageUpdated && evt.Path == "index.md" {
				// Several write events may arrive for one save; wait for the final content.
				doc, err := svc.Document(context.Background(), "index.md")
				if err == nil && doc.Raw == "---\ntitle: Welcome\n---\n\n# Updated\n" {
					return
				}
			}
		case <-timeout:
			t.Fatalf("did not receive expected pageUpdated event")
		}
	}
}

func TestDocumentResolvesPaths(t *testing.T) {
	t.Parallel()
	root := filepath.Join("..", "..", "testdata", "docs")

	svc, err := content.NewService(context.Background(), root, renderer.NewService(quietLogger()), quietLogger(), content.Options{DisableWatch: true})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	doc, err := svc.Document(context.Background(), "guides/diagrams")
	if err != nil {
		t.Fatalf("expected extension-less path to resolve: %v", err)
	}
	if doc.Metadata.Title != "Diagrams" {
		t.Fatalf("unexpected title %q", doc.Metadata.Title)
	}

	if _, err := svc.Document(context.Background(), "guides/missing.md"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}

	for _, bad := range []string{"", "../secrets.md", "/etc/passwd", "guides/../../x.md", "guides"} {
		if _, err := svc.Document(context.Background(), bad); !errors.Is(err, content.ErrInvalidPath) && !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("path %q: expected rejection, got %v", bad, err)
		}
	}

	if _, err := svc.Document(context.Background(), "../secrets.md"); !errors.Is(err, content.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for traversal, got %v", err)
	}
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
