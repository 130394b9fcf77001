package viewer

import "context"

// ClientEngine is an engine whose rendering happens in the browser. The
// mount keeps the diagram text and the page runtime renders every element
// carrying Marker in a single pass.
type ClientEngine struct {
	language string
	marker   string
}

// NewClientEngine returns a browser-rendered engine.
func NewClientEngine(language, marker string) *ClientEngine {
	return &ClientEngine{language: language, marker: marker}
}

// Mermaid is the engine for ```mermaid fences, rendered by mermaid.run().
func Mermaid() *ClientEngine {
	return NewClientEngine("mermaid", "mermaid")
}

// Language implements Engine.
func (e *ClientEngine) Language() string { return e.language }

// Marker implements Engine.
func (e *ClientEngine) Marker() string { return e.marker }

// Run implements Engine. Nothing is rendered on the server.
func (e *ClientEngine) Run(ctx context.Context, _ []*Mount) error {
	return ctx.Err()
}
