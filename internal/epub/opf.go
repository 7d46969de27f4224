package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/jackzampolin/narrate/internal/book"
)

const (
	nsDublinCore   = "http://purl.org/dc/elements/1.1/"
	mediaTypeNCX   = "application/x-dtbncx+xml"
	mediaTypeOPF   = "application/oebps-package+xml"
	containerEntry = "META-INF/container.xml"
)

type containerXML struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest []opfItem   `xml:"manifest>item"`
	Spine    opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	Elements []opfElement `xml:",any"`
}

type opfElement struct {
	XMLName  xml.Name
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Scheme   string `xml:"scheme,attr"`
	Value    string `xml:",chardata"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	TOC      string `xml:"toc,attr"`
	Itemrefs []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"itemref"`
}

// findPackage reads container.xml and returns the package document path.
func findPackage(a *archive) (string, error) {
	data, err := a.read(containerEntry)
	if err != nil {
		return "", &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: a.name,
			Detail: "missing " + containerEntry}
	}

	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: containerEntry,
			Detail: fmt.Sprintf("invalid container descriptor: %v", err)}
	}

	var fallback string
	for _, rf := range c.Rootfiles {
		if rf.FullPath == "" {
			continue
		}
		if rf.MediaType == mediaTypeOPF {
			return rf.FullPath, nil
		}
		if fallback == "" {
			fallback = rf.FullPath
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: containerEntry,
		Detail: "no package document declared"}
}

func parsePackage(data []byte, opfPath string) (*opfPackage, error) {
	var pkg opfPackage
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&pkg); err != nil {
		return nil, &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: opfPath,
			Detail: fmt.Sprintf("invalid package document: %v", err)}
	}
	return &pkg, nil
}

// resolveHref joins an href found in base's directory into a container path.
// The fragment, if any, is returned separately.
func resolveHref(base, href string) (string, string) {
	frag := ""
	if i := strings.IndexByte(href, '#'); i >= 0 {
		frag = href[i+1:]
		href = href[:i]
	}
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	if href == "" {
		return "", frag
	}
	return path.Clean(path.Join(path.Dir(base), href)), frag
}

// readMetadata maps package metadata into book.Metadata. Values keep
// document order so that the first dc:title wins.
func readMetadata(pkg *opfPackage, md book.Metadata) {
	refines := map[string][]opfElement{}
	for _, el := range pkg.Metadata.Elements {
		if el.XMLName.Local == "meta" && el.Refines != "" {
			id := strings.TrimPrefix(el.Refines, "#")
			refines[id] = append(refines[id], el)
		}
	}

	for _, el := range pkg.Metadata.Elements {
		value := strings.TrimSpace(el.Value)
		if el.XMLName.Space == nsDublinCore || (el.XMLName.Space == "" && isDublinCore(el.XMLName.Local)) {
			readDublinCore(el, value, md)
			continue
		}
		if el.XMLName.Local != "meta" || el.Refines != "" {
			continue
		}

		switch {
		case el.Name == "calibre:series":
			md.Add(book.KeySeries, strings.TrimSpace(el.Content))
		case el.Name == "calibre:series_index":
			md.Add(book.KeySeriesIndex, strings.TrimSpace(el.Content))
		case el.Name == "cover":
			md.Add(book.KeyCover, strings.TrimSpace(el.Content))
		case el.Property == "dcterms:modified":
			md.Add(book.KeyModified, value)
		case el.Property == "belongs-to-collection":
			md.Add(book.KeySeries, value)
			for _, r := range refines[el.ID] {
				if r.Property == "group-position" {
					md.Add(book.KeySeriesIndex, strings.TrimSpace(r.Value))
				}
			}
		}
	}

	for _, item := range pkg.Manifest {
		if hasProperty(item.Properties, "cover-image") && !contains(md[book.KeyCover], item.ID) {
			md.Add(book.KeyCover, item.ID)
		}
	}
}

func isDublinCore(local string) bool {
	switch local {
	case "title", "creator", "contributor", "language", "publisher", "identifier",
		"date", "description", "subject", "rights":
		return true
	}
	return false
}

func readDublinCore(el opfElement, value string, md book.Metadata) {
	switch el.XMLName.Local {
	case "title":
		md.Add(book.KeyTitle, value)
	case "creator":
		md.Add(book.KeyCreator, value)
	case "contributor":
		md.Add(book.KeyContributor, value)
	case "language":
		md.Add(book.KeyLanguage, value)
	case "publisher":
		md.Add(book.KeyPublisher, value)
	case "date":
		md.Add(book.KeyDate, value)
	case "description":
		md.Add(book.KeyDescription, value)
	case "subject":
		md.Add(book.KeySubject, value)
	case "rights":
		md.Add(book.KeyRights, value)
	case "identifier":
		md.Add(book.KeyIdentifier, value)
		if isbn := isbnFrom(el.Scheme, value); isbn != "" {
			md.Add(book.KeyISBN, isbn)
		}
	}
}

// isbnFrom extracts an ISBN from an identifier declared with an ISBN scheme
// or a urn:isbn: prefix.
func isbnFrom(scheme, value string) string {
	lower := strings.ToLower(value)
	switch {
	case strings.EqualFold(scheme, "isbn"):
	case strings.HasPrefix(lower, "urn:isbn:"):
		value = value[len("urn:isbn:"):]
	case strings.HasPrefix(lower, "isbn:"):
		value = value[len("isbn:"):]
	default:
		return ""
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == 'X' || r == 'x' {
			return r
		}
		return -1
	}, value)
	if len(digits) != 10 && len(digits) != 13 {
		return ""
	}
	return strings.ToUpper(digits)
}

func hasProperty(props, want string) bool {
	for _, p := range strings.Fields(props) {
		if p == want {
			return true
		}
	}
	return false
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
