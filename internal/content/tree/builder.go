// Package tree builds the navigation tree shown beside every page.
package tree

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/euforicio/docsite/internal/renderer"
)

// Kind tells directories and documents apart.
type Kind string

// Node kinds.
const (
	KindDirectory Kind = "directory"
	KindFile      Kind = "file"
)

// Node is one navigation entry. RelativePath uses forward slashes and is
// empty for the root.
type Node struct {
	Metadata     *renderer.Metadata `json:"metadata,omitempty"`
	Type         Kind               `json:"type"`
	Name         string             `json:"name"`
	Title        string             `json:"title"`
	RelativePath string             `json:"relativePath"`
	Children     []*Node            `json:"children,omitempty"`
	Order        int                `json:"order,omitempty"`
}

// FirstDocument returns the relative path of the first file in navigation
// order, or "" when the tree holds no documents.
func (n *Node) FirstDocument() string {
	if n == nil {
		return ""
	}
	if n.Type == KindFile {
		return n.RelativePath
	}
	for _, child := range n.Children {
		if p := child.FirstDocument(); p != "" {
			return p
		}
	}
	return ""
}

// PathTo returns the chain of nodes from n down to the node whose relative
// path matches target (case-insensitive), or nil when absent.
func (n *Node) PathTo(target string) []*Node {
	if n == nil {
		return nil
	}
	if strings.EqualFold(n.RelativePath, target) {
		return []*Node{n}
	}
	for _, child := range n.Children {
		if chain := child.PathTo(target); len(chain) > 0 {
			return append([]*Node{n}, chain...)
		}
	}
	return nil
}

// Options control which entries make it into the tree.
type Options struct {
	// Renderer supplies frontmatter titles and order. Without it nodes are
	// named after their files.
	Renderer *renderer.Service
	// ExcludeDirs are directory names skipped at any depth, compared
	// case-insensitively.
	ExcludeDirs []string
	// IncludeHidden keeps dot-prefixed entries such as .drafts.
	IncludeHidden bool
}

// dependencyDirs never hold site documentation.
var dependencyDirs = []string{"node_modules", "vendor"}

// SkipsDir reports whether directories called name are left out of the tree.
func (o Options) SkipsDir(name string) bool {
	if strings.HasPrefix(name, ".") && !o.IncludeHidden {
		return true
	}
	for _, excluded := range slices.Concat(dependencyDirs, o.ExcludeDirs) {
		if strings.EqualFold(strings.TrimSpace(excluded), name) {
			return true
		}
	}
	return false
}

// Build walks root and returns its markdown documents grouped by directory.
// Directories without documents are dropped.
func Build(ctx context.Context, root string, opts Options) (*Node, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}

	w := walker{fsys: os.DirFS(abs), opts: opts}

	node, err := w.dir(ctx, ".")
	if err != nil {
		return nil, err
	}
	if node == nil {
		node = &Node{Type: KindDirectory}
	}
	node.Name = filepath.Base(abs)
	node.Title = node.Name
	node.RelativePath = ""
	return node, nil
}

type walker struct {
	fsys fs.FS
	opts Options
}

func (w *walker) dir(ctx context.Context, dir string) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(w.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var children []*Node
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") && !w.opts.IncludeHidden {
			continue
		}
		rel := path.Join(dir, name)

		var child *Node
		switch {
		case entry.IsDir():
			if w.opts.SkipsDir(name) {
				continue
			}
			child, err = w.dir(ctx, rel)
		case isMarkdown(name):
			child, err = w.file(ctx, rel, entry)
		}
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}

	if len(children) == 0 {
		return nil, nil
	}
	slices.SortStableFunc(children, compareNodes)

	label := strings.TrimSpace(strings.ReplaceAll(path.Base(dir), "_", " "))
	return &Node{
		Type:         KindDirectory,
		Name:         label,
		Title:        label,
		RelativePath: dir,
		Children:     children,
	}, nil
}

func (w *walker) file(ctx context.Context, rel string, entry fs.DirEntry) (*Node, error) {
	node := &Node{
		Type:         KindFile,
		Name:         displayName(entry.Name()),
		RelativePath: rel,
	}
	node.Title = node.Name
	if w.opts.Renderer == nil {
		return node, nil
	}

	info, err := entry.Info()
	if err != nil {
		return nil, fmt.Errorf("stat file %s: %w", rel, err)
	}
	data, err := fs.ReadFile(w.fsys, rel)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", rel, err)
	}
	doc, err := w.opts.Renderer.Render(ctx, rel, info.ModTime(), data)
	if err != nil {
		return nil, fmt.Errorf("render metadata for %s: %w", rel, err)
	}
	if meta := doc.Metadata; !meta.IsZero() {
		node.Metadata = &meta
		node.Order = meta.Order
		if meta.Title != "" {
			node.Title = meta.Title
		}
	}
	return node, nil
}

// compareNodes puts directories first, then frontmatter order, then title.
func compareNodes(a, b *Node) int {
	if a.Type != b.Type {
		if a.Type == KindDirectory {
			return -1
		}
		return 1
	}
	return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.Title, b.Title))
}

func isMarkdown(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".md" || ext == ".markdown"
}

func displayName(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	return strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
}
