package extractor

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped subtrees never contribute visible text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
}

// blocks start a new paragraph in the extracted text.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Nav: true,
	atom.Aside: true, atom.Blockquote: true, atom.Pre: true, atom.Ul: true,
	atom.Ol: true, atom.Li: true, atom.Table: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Form: true, atom.Figure: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Br: true, atom.Hr: true,
}

// visibleText approximates innerText for documents rendered without a
// browser. Block elements are separated by blank lines so paragraph
// statistics still work.
func visibleText(root *html.Node) string {
	w := &textWalker{}
	start := findBody(root)
	if start == nil {
		start = root
	}
	w.walk(start)
	w.flush()
	return strings.Join(w.paragraphs, "\n\n")
}

type textWalker struct {
	paragraphs []string
	current    strings.Builder
}

func (w *textWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.current.WriteString(n.Data)
		w.current.WriteByte(' ')
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
		if blocks[n.DataAtom] {
			w.flush()
			defer w.flush()
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *textWalker) flush() {
	text := strings.Join(strings.Fields(w.current.String()), " ")
	w.current.Reset()
	if text != "" {
		w.paragraphs = append(w.paragraphs, text)
	}
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findBody(c); found != nil {
			return found
		}
	}
	return nil
}
