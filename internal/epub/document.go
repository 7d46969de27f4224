package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const mediaTypeHTML = "text/html"

// xmlPrefixes maps well known namespace URIs to the prefix attr lookups use.
var xmlPrefixes = map[string]string{
	"http://www.idpf.org/2007/ops":         "epub",
	"http://www.w3.org/XML/1998/namespace": "xml",
	"http://www.w3.org/1999/xlink":         "xlink",
}

// parseMarkup parses a content or navigation document into a node tree.
// XHTML goes through encoding/xml so self-closing tags such as <title/> and
// <script/> close where they are written. text/html, and XHTML that does
// not decode as XML, use the HTML5 parser.
func parseMarkup(data []byte, mediaType string) (*html.Node, error) {
	if mediaType != mediaTypeHTML {
		if root, err := parseXHTML(data); err == nil {
			return root, nil
		}
	}
	return html.Parse(bytes.NewReader(data))
}

// parseXHTML decodes an XHTML document leniently: unclosed void elements
// and HTML entities are accepted.
func parseXHTML(data []byte) (*html.Node, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity

	prefixes := make(map[string]string, len(xmlPrefixes))
	for uri, p := range xmlPrefixes {
		prefixes[uri] = p
	}

	root := &html.Node{Type: html.DocumentNode}
	stack := []*html.Node{root}
	sawElement := false
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			sawElement = true
			n := xmlElement(t, prefixes)
			top.AppendChild(n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 1 {
				return nil, fmt.Errorf("unexpected end element %s", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			top.AppendChild(&html.Node{Type: html.TextNode, Data: string(t)})
		}
	}
	if !sawElement {
		return nil, fmt.Errorf("no elements")
	}
	return root, nil
}

func xmlElement(t xml.StartElement, prefixes map[string]string) *html.Node {
	// Declarations first so prefixed attributes on the same element resolve.
	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" {
			prefixes[a.Value] = a.Name.Local
		}
	}

	name := strings.ToLower(t.Name.Local)
	n := &html.Node{Type: html.ElementNode, Data: name, DataAtom: atom.Lookup([]byte(name))}
	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		key := a.Name.Local
		switch {
		case a.Name.Space == "":
		case prefixes[a.Name.Space] != "":
			key = prefixes[a.Name.Space] + ":" + key
		case !strings.Contains(a.Name.Space, "/"):
			// Undeclared prefix, left untranslated by the decoder.
			key = a.Name.Space + ":" + key
		}
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: a.Value})
	}
	return n
}
