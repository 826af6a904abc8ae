// Package markdown converts post markdown to HTML.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts markdown to HTML with a fixed goldmark engine. It holds
// no per-call state and is safe for concurrent use.
type Renderer struct {
	engine goldmark.Markdown
}

var extensionRegistry = map[string]goldmark.Extender{
	"gfm":           extension.GFM,
	"table":         extension.Table,
	"tables":        extension.Table,
	"strikethrough": extension.Strikethrough,
	"linkify":       extension.Linkify,
	"autolink":      extension.Linkify,
	"tasklist":      extension.TaskList,
	"footnote":      extension.Footnote,
}

// NewRenderer builds a CommonMark renderer. Raw HTML in the source is not
// passed through. Extension names not in the registry are rejected.
func NewRenderer(extensions ...string) (*Renderer, error) {
	exts, err := collectExtensions(extensions)
	if err != nil {
		return nil, err
	}
	opts := []goldmark.Option{}
	if len(exts) > 0 {
		opts = append(opts, goldmark.WithExtensions(exts...))
	}
	return &Renderer{engine: goldmark.New(opts...)}, nil
}

func (r *Renderer) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.engine.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("markdown render: %w", err)
	}
	return buf.String(), nil
}

func collectExtensions(names []string) ([]goldmark.Extender, error) {
	var out []goldmark.Extender
	seen := map[string]struct{}{}
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		ext, ok := extensionRegistry[key]
		if !ok {
			return nil, fmt.Errorf("markdown: unknown extension %q", name)
		}
		out = append(out, ext)
		seen[key] = struct{}{}
	}
	return out, nil
}
