// Package transform provides custom rendering transformations for markdown elements.
package transform

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// DefaultDiagramLanguages are the fence languages turned into placeholders.
var DefaultDiagramLanguages = []string{"mermaid", "d2"}

// DiagramTransformer replaces fenced diagram blocks with DiagramBlock nodes so
// they bypass syntax highlighting and render as viewer placeholders.
type DiagramTransformer struct {
	languages map[string]struct{}
}

// NewDiagramTransformer constructs an AST transformer for the given fence
// languages. With no languages it uses DefaultDiagramLanguages.
func NewDiagramTransformer(languages ...string) parser.ASTTransformer {
	if len(languages) == 0 {
		languages = DefaultDiagramLanguages
	}
	set := make(map[string]struct{}, len(languages))
	for _, lang := range languages {
		if lang = strings.ToLower(strings.TrimSpace(lang)); lang != "" {
			set[lang] = struct{}{}
		}
	}
	return &DiagramTransformer{languages: set}
}

// Transform implements parser.ASTTransformer.
func (t *DiagramTransformer) Transform(node *ast.Document, reader text.Reader, _ parser.Context) {
	if node == nil || len(t.languages) == 0 {
		return
	}
	t.walk(node, reader)
}

func (t *DiagramTransformer) walk(parent ast.Node, reader text.Reader) {
	for child := parent.FirstChild(); child != nil; {
		next := child.NextSibling()

		if block, ok := child.(*ast.FencedCodeBlock); ok {
			if lang, ok := t.diagramLanguage(block, reader.Source()); ok {
				replacement := &DiagramBlock{
					Language: lang,
					Source:   blockSource(block, reader),
				}
				replacement.SetBlankPreviousLines(block.HasBlankPreviousLines())
				copyAttributes(block, replacement)
				parent.ReplaceChild(parent, block, replacement)
				child = next
				continue
			}
		}

		if child.HasChildren() {
			t.walk(child, reader)
		}
		child = next
	}
}

func (t *DiagramTransformer) diagramLanguage(block *ast.FencedCodeBlock, source []byte) (string, bool) {
	lang := strings.ToLower(strings.TrimSpace(string(block.Language(source))))
	_, ok := t.languages[lang]
	return lang, ok
}

func blockSource(block *ast.FencedCodeBlock, reader text.Reader) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		segment := block.Lines().At(i)
		buf.Write(segment.Value(reader.Source()))
	}
	return buf.String()
}

func copyAttributes(src ast.Node, dst ast.Node) {
	if src == nil || dst == nil {
		return
	}
	if src.Attributes() == nil {
		return
	}
	for _, attr := range src.Attributes() {
		dst.SetAttribute(attr.Name, attr.Value)
	}
}

// DiagramBlock is a diagram placeholder included directly in the AST.
type DiagramBlock struct {
	ast.BaseBlock
	Language string
	Source   string
}

// KindDiagramBlock represents a diagram placeholder node kind.
var KindDiagramBlock = ast.NewNodeKind("DiagramBlock")

// Kind implements ast.Node.
func (b *DiagramBlock) Kind() ast.NodeKind {
	return KindDiagramBlock
}

// IsRaw marks the node as raw HTML.
func (b *DiagramBlock) IsRaw() bool {
	return true
}

// Dump aids debugging.
func (b *DiagramBlock) Dump(source []byte, level int) {
	ast.DumpHelper(b, source, level, map[string]string{
		"Language": b.Language,
		"Source":   fmt.Sprintf("%d bytes", len(b.Source)),
	}, nil)
}

// DiagramBlockRenderer writes placeholders of the form
// <div class="language-X"><pre><code>source</code></pre></div>.
type DiagramBlockRenderer struct{}

// NewDiagramBlockRenderer returns a renderer for diagram nodes.
func NewDiagramBlockRenderer() renderer.NodeRenderer {
	return &DiagramBlockRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *DiagramBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDiagramBlock, r.renderDiagramBlock)
}

func (r *DiagramBlockRenderer) renderDiagramBlock(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	block := node.(*DiagramBlock)

	if _, err := w.WriteString(`<div class="language-`); err != nil {
		return ast.WalkStop, err
	}
	if _, err := w.Write(util.EscapeHTML([]byte(block.Language))); err != nil {
		return ast.WalkStop, err
	}
	if _, err := w.WriteString(`"><pre><code>`); err != nil {
		return ast.WalkStop, err
	}
	if _, err := w.Write(util.EscapeHTML([]byte(block.Source))); err != nil {
		return ast.WalkStop, err
	}
	if _, err := w.WriteString("</code></pre></div>\n"); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}
