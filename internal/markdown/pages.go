package markdown

import (
	"strings"

	g "github.com/maragudk/gomponents"
	h "github.com/maragudk/gomponents/html"
)

// NotFoundPage is served when a post slug has no markdown file.
func NotFoundPage() string {
	return renderNodes(
		h.H1(g.Text("Post not found")),
		h.P(g.Text("The requested post could not be found.")),
	)
}

// ErrorPage is served when a post exists but could not be read or rendered.
func ErrorPage() string {
	return renderNodes(
		h.H1(g.Text("Something went wrong")),
		h.P(g.Text("The requested post could not be loaded. Please try again later.")),
	)
}

func renderNodes(nodes ...g.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		_ = n.Render(&b)
	}
	return b.String()
}
