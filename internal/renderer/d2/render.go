// Package d2 compiles D2 diagram descriptions to SVG on the server and exposes
// the compiler as a viewer engine.
package d2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"
)

// Result captures the outcome of a render attempt.
type Result struct {
	SVG      string
	Duration time.Duration
	Cached   bool
}

// ErrEmptyDiagram is returned when the supplied diagram body is empty.
var ErrEmptyDiagram = errors.New("empty d2 diagram")

// Renderer performs server-side D2 compilation using the embedded D2 compiler.
// Layout choices are left to the source diagram (via D2 config blocks).
// Successful renders are cached by source hash.
type Renderer struct {
	logger  *slog.Logger
	timeout time.Duration
	cache   *ttlcache.Cache[string, string]
}

// Options configure the renderer.
type Options struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	// CacheSize caps the number of cached diagrams.
	CacheSize uint64
}

// New creates a renderer instance.
func New(_ context.Context, logger *slog.Logger, opts *Options) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Options{
		Timeout:   12 * time.Second,
		CacheTTL:  30 * time.Minute,
		CacheSize: 256,
	}
	if opts != nil {
		if opts.Timeout > 0 {
			cfg.Timeout = opts.Timeout
		}
		if opts.CacheTTL > 0 {
			cfg.CacheTTL = opts.CacheTTL
		}
		if opts.CacheSize > 0 {
			cfg.CacheSize = opts.CacheSize
		}
	}

	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](cfg.CacheTTL),
		ttlcache.WithCapacity[string, string](cfg.CacheSize),
	)

	return &Renderer{
		logger:  logger.With("component", "d2"),
		timeout: cfg.Timeout,
		cache:   cache,
	}, nil
}

// Render compiles the given D2 script into SVG, respecting any layout directives
// defined inside the document itself.
func (r *Renderer) Render(ctx context.Context, source string) (Result, error) {
	if strings.TrimSpace(source) == "" {
		return Result{}, ErrEmptyDiagram
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := sourceKey(source)
	if item := r.cache.Get(key); item != nil {
		return Result{SVG: item.Value(), Cached: true}, nil
	}

	ctx = d2log.With(ctx, r.logger)
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return Result{}, fmt.Errorf("init ruler: %w", err)
	}

	themeID := d2themescatalog.DarkFlagshipTerrastruct.ID
	darkThemeID := d2themescatalog.DarkFlagshipTerrastruct.ID
	pad := int64(d2svg.DEFAULT_PADDING)
	renderOpts := &d2svg.RenderOpts{
		ThemeID:     &themeID,
		DarkThemeID: &darkThemeID,
		Pad:         &pad,
	}

	start := time.Now()
	compileOpts := &d2lib.CompileOptions{
		Ruler:          ruler,
		LayoutResolver: r.layoutResolver,
	}

	diagram, _, err := d2lib.Compile(ctx, source, compileOpts, renderOpts)
	if err != nil {
		return Result{}, err
	}
	if diagram == nil {
		return Result{}, errors.New("d2 compiler returned nil diagram")
	}

	svg, err := d2svg.Render(diagram, renderOpts)
	if err != nil {
		return Result{}, fmt.Errorf("render svg: %w", err)
	}

	r.cache.Set(key, string(svg), ttlcache.DefaultTTL)
	return Result{
		SVG:      string(svg),
		Duration: time.Since(start),
	}, nil
}

// Purge drops every cached diagram.
func (r *Renderer) Purge() {
	r.cache.DeleteAll()
}

// CacheLen reports the number of cached diagrams.
func (r *Renderer) CacheLen() int {
	return r.cache.Len()
}

func (r *Renderer) layoutResolver(engine string) (d2graph.LayoutGraph, error) {
	switch strings.ToLower(engine) {
	case "", "dagre":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2dagrelayout.Layout(ctx, g, nil)
		}, nil
	case "elk":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2elklayout.Layout(ctx, g, nil)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported D2 layout %q (install plugin for advanced engines)", engine)
	}
}

func sourceKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
