package fetch

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// boilerplate holds elements whose subtree never contributes readable text.
var boilerplate = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Aside:    true,
	atom.Header:   true,
	atom.Footer:   true,
}

// extractReadable parses HTML and returns the page title and its visible
// text with boilerplate removed.
func extractReadable(raw string) (string, string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", tidy(textOnly(raw))
	}

	var title string
	var b strings.Builder
	walk(doc, &b, &title)
	return title, tidy(b.String())
}

// walk collects visible text into b, capturing the first <title> along
// the way. Boilerplate subtrees are pruned entirely.
func walk(n *html.Node, b *strings.Builder, title *string) {
	switch n.Type {
	case html.ElementNode:
		if n.DataAtom == atom.Title && *title == "" {
			var t strings.Builder
			collectText(n, &t)
			*title = strings.TrimSpace(t.String())
			return
		}
		if boilerplate[n.DataAtom] {
			return
		}
		if blockLevel(n.DataAtom) && b.Len() > 0 {
			b.WriteString("\n\n")
		}
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			b.WriteString(text)
			b.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b, title)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li || n.DataAtom == atom.Tr) {
		b.WriteByte('\n')
	}
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func blockLevel(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Dl, atom.Figure, atom.Figcaption, atom.Details, atom.Summary, atom.Hr:
		return true
	}
	return false
}

// tidy collapses intra-line whitespace and runs of blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// textOnly is the parse-failure fallback: tokenize and keep text tokens.
func textOnly(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return b.String()
			}
			return b.String()
		case html.TextToken:
			b.WriteString(z.Token().Data)
			b.WriteByte(' ')
		}
	}
}
