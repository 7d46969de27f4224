package epub

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jackzampolin/narrate/internal/book"
)

// block is a narratable block extracted from one XHTML document.
type block struct {
	text    string
	role    book.Role
	anchors []string
}

// blockAtoms are elements that start a new block.
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Li: true, atom.Blockquote: true,
	atom.Dt: true, atom.Dd: true, atom.Pre: true, atom.Figcaption: true,
	atom.Caption: true, atom.Address: true, atom.Div: true, atom.Section: true,
	atom.Article: true, atom.Aside: true, atom.Header: true, atom.Footer: true,
	atom.Main: true, atom.Nav: true, atom.Ul: true, atom.Ol: true, atom.Dl: true,
	atom.Table: true, atom.Thead: true, atom.Tbody: true, atom.Tfoot: true,
	atom.Tr: true, atom.Td: true, atom.Th: true, atom.Figure: true, atom.Hr: true,
	atom.Body: true, atom.Hgroup: true, atom.Details: true, atom.Summary: true,
}

// droppedAtoms are never narrated.
var droppedAtoms = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Img: true,
	atom.Svg: true, atom.Math: true, atom.Audio: true, atom.Video: true,
	atom.Object: true, atom.Iframe: true, atom.Noscript: true, atom.Template: true,
	atom.Canvas: true, atom.Hr: true, atom.Rt: true, atom.Rp: true,
}

// flattener walks a parsed document and emits blocks in document order.
type flattener struct {
	blocks []block
	// pending holds ids of dropped elements; they attach to the next block.
	pending []string
}

// flattenDocument turns a content document into its narratable blocks.
func flattenDocument(data []byte, mediaType string) ([]block, error) {
	root, err := parseMarkup(data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	body := findElement(root, atom.Body)
	if body == nil {
		body = root
	}
	f := &flattener{}
	f.element(body, book.RoleParagraph)
	return f.blocks, nil
}

// container walks n's children, emitting leaf blocks and grouping loose
// inline content between blocks into implicit paragraphs.
func (f *flattener) container(n *html.Node, role book.Role) {
	var run []*html.Node
	flush := func() {
		if len(run) > 0 {
			f.emit(run, role)
			run = nil
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			run = append(run, c)
		case html.ElementNode:
			if f.dropped(c) {
				continue
			}
			if !blockAtoms[c.DataAtom] {
				run = append(run, c)
				continue
			}
			flush()
			f.element(c, role)
		}
	}
	flush()
}

// element handles a block-level element.
func (f *flattener) element(n *html.Node, inherited book.Role) {
	role := roleFor(n, inherited)
	if hasBlockChild(n) {
		if id := attr(n, "id"); id != "" {
			f.pending = append(f.pending, id)
		}
		f.container(n, role)
		return
	}
	f.emit([]*html.Node{n}, role)
}

// dropped reports whether c is a non-narratable element and records its
// anchors so they are not lost.
func (f *flattener) dropped(c *html.Node) bool {
	if !droppedAtoms[c.DataAtom] && !isPageBreak(c) {
		return false
	}
	f.pending = append(f.pending, collectIDs(c)...)
	return true
}

func (f *flattener) emit(nodes []*html.Node, role book.Role) {
	var sb strings.Builder
	var anchors []string
	for _, n := range nodes {
		collectText(n, &sb, &anchors)
	}
	text := collapseSpace(sb.String())
	if text == "" {
		f.pending = append(f.pending, anchors...)
		return
	}
	all := append(f.pending, anchors...)
	f.pending = nil
	f.blocks = append(f.blocks, block{text: text, role: role, anchors: all})
}

func roleFor(n *html.Node, inherited book.Role) book.Role {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return book.RoleHeading
	case atom.Li, atom.Dt, atom.Dd:
		return book.RoleListItem
	case atom.Blockquote:
		return book.RoleBlockquote
	case atom.Body, atom.Html:
		return book.RoleParagraph
	}
	if inherited == "" {
		return book.RoleParagraph
	}
	// Paragraphs inside a list item or quote keep the enclosing role.
	return inherited
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && blockAtoms[c.DataAtom] && !droppedAtoms[c.DataAtom] {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func isPageBreak(n *html.Node) bool {
	return hasProperty(attr(n, "epub:type"), "pagebreak") || attr(n, "role") == "doc-pagebreak"
}

// collectText appends the text of n and its inline descendants, recording
// element ids as anchors.
func collectText(n *html.Node, sb *strings.Builder, anchors *[]string) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if droppedAtoms[n.DataAtom] || isPageBreak(n) {
			*anchors = append(*anchors, collectIDs(n)...)
			return
		}
		if id := attr(n, "id"); id != "" {
			*anchors = append(*anchors, id)
		}
		if n.DataAtom == atom.Br {
			sb.WriteByte(' ')
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb, anchors)
	}
}

func collectIDs(n *html.Node) []string {
	var ids []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id := attr(n, "id"); id != "" {
				ids = append(ids, id)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return ids
}

var invisible = strings.NewReplacer(
	"\u00ad", "", // soft hyphen
	"\u200b", "", // zero width space
	"\ufeff", "",
)

// collapseSpace removes invisible characters and collapses whitespace runs.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(invisible.Replace(s)), " ")
}
