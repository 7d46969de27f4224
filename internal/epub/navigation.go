package epub

import (
	"fmt"
	"strings"
)

// tocHref is the link written for a chapter in nav and NCX documents.
func tocHref(ch Chapter) string {
	href := chapterHref(ch)
	if ch.Anchor != "" {
		href += "#" + ch.Anchor
	}
	return href
}

// generateNavigation creates the nav.xhtml navigation document.
func (b *Builder) generateNavigation() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Table of Contents</title>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>Table of Contents</h1>
    <ol>
`)

	entries := b.tocChapters()
	var i int
	for i < len(entries) {
		ch := entries[i]
		sb.WriteString(fmt.Sprintf("      <li><a href=\"%s\">%s</a>", tocHref(ch), escapeXML(ch.Title)))

		// Level 2 entries nest under the preceding level 1 entry
		j := i + 1
		if ch.Level <= 1 {
			for j < len(entries) && entries[j].Level > 1 {
				j++
			}
		}
		if j > i+1 {
			sb.WriteString("\n        <ol>\n")
			for _, nch := range entries[i+1 : j] {
				sb.WriteString(fmt.Sprintf("          <li><a href=\"%s\">%s</a></li>\n", tocHref(nch), escapeXML(nch.Title)))
			}
			sb.WriteString("        </ol>\n      ")
		}
		sb.WriteString("</li>\n")
		i = j
	}

	sb.WriteString(`    </ol>
  </nav>
</body>
</html>
`)

	return sb.String()
}

// generateNCX creates the toc.ncx for ePub 2 compatibility.
func (b *Builder) generateNCX() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="`)
	sb.WriteString(b.identifier())
	sb.WriteString(`"/>
    <meta name="dtb:depth" content="2"/>
  </head>
  <docTitle>
    <text>`)
	sb.WriteString(escapeXML(b.book.Title))
	sb.WriteString(`</text>
  </docTitle>
  <navMap>
`)

	order := 0
	open := false
	for _, ch := range b.tocChapters() {
		order++
		if ch.Level <= 1 && open {
			sb.WriteString("    </navPoint>\n")
			open = false
		}
		indent := "    "
		if ch.Level > 1 && open {
			indent = "      "
		}
		sb.WriteString(fmt.Sprintf("%s<navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", indent, order, order))
		sb.WriteString(fmt.Sprintf("%s  <navLabel><text>%s</text></navLabel>\n", indent, escapeXML(ch.Title)))
		sb.WriteString(fmt.Sprintf("%s  <content src=\"%s\"/>\n", indent, tocHref(ch)))
		if ch.Level <= 1 {
			open = true
			continue
		}
		sb.WriteString(indent + "</navPoint>\n")
	}
	if open {
		sb.WriteString("    </navPoint>\n")
	}

	sb.WriteString(`  </navMap>
</ncx>
`)

	return sb.String()
}

func (b *Builder) tocChapters() []Chapter {
	out := make([]Chapter, 0, len(b.chapters))
	for _, ch := range b.chapters {
		if !ch.NoTOC {
			out = append(out, ch)
		}
	}
	return out
}
