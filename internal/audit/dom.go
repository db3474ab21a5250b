package audit

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is one parsed HTML file.
type Document struct {
	Path string
	Root *html.Node
}

// Elements returns every element with tag a, in document order.
func (d *Document) Elements(a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.Root)
	return out
}

// First returns the first element with tag a, or nil.
func (d *Document) First(a atom.Atom) *html.Node {
	if els := d.Elements(a); len(els) > 0 {
		return els[0]
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// metaContent returns the content of <meta name=name>.
func (d *Document) metaContent(name string) (string, bool) {
	for _, m := range d.Elements(atom.Meta) {
		if v, _ := attr(m, "name"); strings.EqualFold(v, name) {
			c, _ := attr(m, "content")
			return strings.TrimSpace(c), true
		}
	}
	return "", false
}
