package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// droppedElements never contribute text.
var droppedElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Button:   true,
}

// droppedClasses mark wiki chrome: citation markers, edit links, and
// navigation boxes.
var droppedClasses = []string{"reference", "mw-editsection", "navbox", "noprint"}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Ul: true, atom.Ol: true, atom.Dl: true,
	atom.Dt: true, atom.Dd: true, atom.Table: true, atom.Caption: true,
	atom.Figure: true, atom.Figcaption: true, atom.Details: true, atom.Summary: true, atom.Hr: true,
}

// extractHTML returns the page title and its readable text. When the
// page marks a <main> or <article> region only that region is used.
// Table rows come out one per line with cells joined by " | ".
func extractHTML(raw string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", stripTags(raw)
	}

	if t := findFirst(doc, atom.Title); t != nil {
		title = strings.Join(strings.Fields(nodeText(t)), " ")
	}

	root := doc
	for _, a := range []atom.Atom{atom.Main, atom.Article} {
		if n := findFirst(doc, a); n != nil && strings.TrimSpace(nodeText(n)) != "" {
			root = n
			break
		}
	}

	var r renderer
	r.walk(root)
	return title, cleanWhitespace(r.String())
}

// renderer accumulates visible text. Table cells are buffered per row
// so the separator only goes between cells.
type renderer struct {
	strings.Builder
	row []string
	cell *strings.Builder
}

func (r *renderer) write(s string) {
	if r.cell != nil {
		r.cell.WriteString(s)
		return
	}
	r.WriteString(s)
}

func (r *renderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			r.write(t + " ")
		}
		return
	case html.ElementNode:
		if droppedElements[n.DataAtom] || hasAnyClass(n, droppedClasses) {
			return
		}
	}

	switch n.DataAtom {
	case atom.Tr:
		r.row = r.row[:0]
	case atom.Td, atom.Th:
		r.cell = &strings.Builder{}
	default:
		if blockElements[n.DataAtom] && r.cell == nil && r.Len() > 0 {
			r.WriteString("\n\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}

	switch n.DataAtom {
	case atom.Td, atom.Th:
		r.row = append(r.row, strings.Join(strings.Fields(r.cell.String()), " "))
		r.cell = nil
	case atom.Tr:
		r.WriteString("\n" + strings.Join(r.row, " | ") + "\n")
	case atom.Br, atom.Li:
		r.write("\n")
	}
}

// findFirst returns the first element of type a in document order.
func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

func hasAnyClass(n *html.Node, classes []string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, have := range strings.Fields(attr.Val) {
			for _, want := range classes {
				if have == want {
					return true
				}
			}
		}
	}
	return false
}

// cleanWhitespace collapses spaces within lines and runs of blank
// lines down to one.
func cleanWhitespace(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" && blank {
			continue
		}
		blank = line == ""
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripTags is the tokenizer fallback for markup html.Parse rejects.
func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return cleanWhitespace(b.String())
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}
