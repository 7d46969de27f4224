package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jackzampolin/narrate/internal/book"
)

// navEntry is a parsed navigation entry before target resolution.
type navEntry struct {
	label    string
	href     string // container path
	fragment string
	children []navEntry
}

// parseNavDocument reads an EPUB3 navigation document and returns the
// entries of its toc nav. When no nav is typed as toc, the first nav wins.
func parseNavDocument(data []byte, docPath, mediaType string) ([]navEntry, error) {
	root, err := parseMarkup(data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse navigation document %s: %w", docPath, err)
	}

	var first, toc *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if toc != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
			if first == nil {
				first = n
			}
			if hasProperty(attr(n, "epub:type"), "toc") || attr(n, "role") == "doc-toc" {
				toc = n
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(root)

	nav := toc
	if nav == nil {
		nav = first
	}
	if nav == nil {
		return nil, nil
	}
	list := firstChildElement(nav, atom.Ol, atom.Ul)
	if list == nil {
		return nil, nil
	}
	return navList(list, docPath), nil
}

func navList(list *html.Node, docPath string) []navEntry {
	var out []navEntry
	for li := list.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		var e navEntry
		if a := firstChildElement(li, atom.A, atom.Span); a != nil {
			e.label = collapseSpace(textContent(a))
			if href := attr(a, "href"); href != "" {
				e.href, e.fragment = resolveHref(docPath, href)
			}
		}
		if sub := firstChildElement(li, atom.Ol, atom.Ul); sub != nil {
			e.children = navList(sub, docPath)
		}
		out = append(out, e)
	}
	return out
}

type ncxDocument struct {
	NavMap struct {
		Points []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Points []ncxNavPoint `xml:"navPoint"`
}

// parseNCX reads a legacy NCX document.
func parseNCX(data []byte, docPath string) ([]navEntry, error) {
	var doc ncxDocument
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX %s: %w", docPath, err)
	}

	var convert func([]ncxNavPoint) []navEntry
	convert = func(points []ncxNavPoint) []navEntry {
		out := make([]navEntry, 0, len(points))
		for _, p := range points {
			e := navEntry{label: collapseSpace(p.Label)}
			if p.Content.Src != "" {
				e.href, e.fragment = resolveHref(docPath, p.Content.Src)
			}
			e.children = convert(p.Points)
			out = append(out, e)
		}
		return out
	}
	return convert(doc.NavMap.Points), nil
}

// buildTOC resolves entries against the manifest and fills toc. An entry whose
// path is not in the manifest is dropped and its children are lifted to its
// parent.
func buildTOC(toc *book.TOC, entries []navEntry, byPath map[string]string, logger *slog.Logger) {
	var add func(parent int, entries []navEntry)
	add = func(parent int, entries []navEntry) {
		for _, e := range entries {
			target := ""
			if e.href != "" {
				id, ok := byPath[e.href]
				if !ok {
					logger.Warn("dropping toc entry with unknown target", "label", e.label, "href", e.href)
					add(parent, e.children)
					continue
				}
				target = id
			}
			if target == "" && len(e.children) == 0 {
				continue
			}
			node := toc.Add(parent, e.label, target, e.fragment)
			add(node, e.children)
		}
	}
	add(book.RootNode, entries)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key || (a.Namespace != "" && a.Namespace+":"+a.Key == key) {
			return a.Val
		}
	}
	return ""
}

func firstChildElement(n *html.Node, atoms ...atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		for _, a := range atoms {
			if c.DataAtom == a {
				return c
			}
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
