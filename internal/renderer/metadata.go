package renderer

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata is the frontmatter of a document. Raw keeps every key; the named
// fields are the ones the navigation tree and page header use.
type Metadata struct {
	Raw         map[string]any
	Title       string
	Description string
	Tags        []string
	Order       int
}

// IsZero reports whether the document had no frontmatter worth showing.
func (m Metadata) IsZero() bool {
	return m.Title == "" && m.Description == "" && len(m.Tags) == 0 && m.Order == 0 && len(m.Raw) == 0
}

// Accepted frontmatter keys per field; the first key present wins.
var (
	titleKeys       = []string{"title"}
	descriptionKeys = []string{"description", "summary"}
	tagKeys         = []string{"tags", "keywords"}
	orderKeys       = []string{"order", "weight", "nav_order"}
)

func metadataFrom(raw map[string]any) Metadata {
	if len(raw) == 0 {
		return Metadata{}
	}
	meta := Metadata{Raw: make(map[string]any, len(raw))}
	for k, v := range raw {
		meta.Raw[k] = v
	}
	if v, ok := first(raw, titleKeys); ok {
		meta.Title, _ = scalar(v)
	}
	if v, ok := first(raw, descriptionKeys); ok {
		meta.Description, _ = scalar(v)
	}
	if v, ok := first(raw, tagKeys); ok {
		meta.Tags = list(v)
	}
	if v, ok := first(raw, orderKeys); ok {
		meta.Order = integer(v)
	}
	return meta
}

func first(raw map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func scalar(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case fmt.Stringer:
		return val.String(), true
	case int, int64, float64, bool:
		return fmt.Sprint(val), true
	default:
		return "", false
	}
}

// list accepts a YAML sequence or a comma-separated string.
func list(v any) []string {
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	case string:
		for _, s := range strings.Split(val, ",") {
			items = append(items, s)
		}
	default:
		items = []any{val}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := scalar(item); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func integer(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case uint64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(val))
		return n
	default:
		return 0
	}
}
