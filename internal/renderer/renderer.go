// Package renderer turns markdown documents into HTML fragments ready for the
// diagram viewer: fenced diagrams come out as placeholders, other code blocks
// are highlighted with chroma.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/jellydator/ttlcache/v3"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"

	"github.com/euforicio/docsite/internal/renderer/transform"
)

// HighlightStyle is the chroma style used for code blocks. static/css/chroma.css
// is generated from the same style.
const HighlightStyle = "github-dark"

// cacheCapacity bounds the number of rendered documents kept in memory.
const cacheCapacity = 1024

// Document is a rendered markdown file. HTML still carries diagram
// placeholders; the viewer attaches widgets per request.
//
//nolint:govet // field order optimized for readability, not memory
type Document struct {
	HTML     string
	Metadata Metadata
	Modified time.Time
	Raw      string
}

type cached struct {
	modTime time.Time
	doc     Document
}

// Service renders markdown. Results are cached per path and reused while the
// file's modification time is unchanged.
type Service struct {
	md     goldmark.Markdown
	logger *slog.Logger
	cache  *ttlcache.Cache[string, cached]
}

// NewService builds the goldmark pipeline: GFM, YAML frontmatter, heading
// anchors, chroma highlighting, link rewriting and diagram placeholders for
// the fence languages in transform.DefaultDiagramLanguages. A nil logger
// falls back to slog.Default.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			goldmarkmeta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle(HighlightStyle),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
			&anchor.Extender{Position: anchor.After},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithAttribute(),
			parser.WithASTTransformers(
				util.Prioritized(linkRewriter{}, 100),
				util.Prioritized(transform.NewDiagramTransformer(), 50),
			),
		),
		goldmark.WithRendererOptions(
			// Documentation content is trusted; raw HTML passes through.
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
			renderer.WithNodeRenderers(
				util.Prioritized(transform.NewDiagramBlockRenderer(), 100),
			),
		),
	)

	return &Service{
		md:     md,
		logger: logger.With("component", "renderer"),
		cache: ttlcache.New[string, cached](
			ttlcache.WithCapacity[string, cached](cacheCapacity),
			ttlcache.WithDisableTouchOnHit[string, cached](),
		),
	}
}

// Render converts content to HTML. docPath is the slash-separated path
// relative to the docs root; it keys the cache and anchors relative links.
func (s *Service) Render(ctx context.Context, docPath string, modTime time.Time, content []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if item := s.cache.Get(docPath); item != nil {
		if hit := item.Value(); !hit.modTime.IsZero() && hit.modTime.Equal(modTime) {
			return hit.doc, nil
		}
	}

	pc := parser.NewContext()
	pc.Set(docPathKey, docPath)

	var buf bytes.Buffer
	if err := s.md.Convert(content, &buf, parser.WithContext(pc)); err != nil {
		return Document{}, fmt.Errorf("render markdown %s: %w", docPath, err)
	}

	doc := Document{
		HTML:     buf.String(),
		Metadata: metadataFrom(goldmarkmeta.Get(pc)),
		Modified: modTime,
		Raw:      string(content),
	}
	s.cache.Set(docPath, cached{modTime: modTime, doc: doc}, ttlcache.NoTTL)
	s.logger.DebugContext(ctx, "rendered document", slog.String("path", docPath), slog.Int("bytes", buf.Len()))
	return doc, nil
}

// Invalidate drops the cached rendering of docPath.
func (s *Service) Invalidate(docPath string) {
	s.cache.Delete(docPath)
}
