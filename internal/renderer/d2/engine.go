package d2

import (
	"context"
	"log/slog"

	"github.com/euforicio/docsite/internal/viewer"
)

// Marker is the class carried by d2 mount targets.
const Marker = "d2-diagram"

// Engine renders ```d2 widgets on the server. Compile failures are reported
// inside the mount rather than returned.
type Engine struct {
	renderer *Renderer
	logger   *slog.Logger
	observe  func(Result, error)
}

// NewEngine wraps r as a viewer engine.
func NewEngine(r *Renderer) *Engine {
	return &Engine{renderer: r, logger: r.logger}
}

// WithObserver returns a copy of e that reports every render attempt to fn.
func (e *Engine) WithObserver(fn func(Result, error)) *Engine {
	c := *e
	c.observe = fn
	return &c
}

// Language implements viewer.Engine.
func (e *Engine) Language() string { return "d2" }

// Marker implements viewer.Engine.
func (e *Engine) Marker() string { return Marker }

// Run implements viewer.Engine.
func (e *Engine) Run(ctx context.Context, mounts []*viewer.Mount) error {
	for _, m := range mounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := e.renderer.Render(ctx, m.Source)
		if e.observe != nil {
			e.observe(res, err)
		}
		if err != nil {
			e.logger.WarnContext(ctx, "d2: render failed", slog.String("mount", m.ID()), slog.Any("err", err))
			m.Fail(err.Error())
			continue
		}
		m.SetGraphic(res.SVG)
		e.logger.DebugContext(ctx, "d2: rendered",
			slog.String("mount", m.ID()),
			slog.Bool("cached", res.Cached),
			slog.Duration("runtime", res.Duration),
		)
	}
	return nil
}
