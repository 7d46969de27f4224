package epub

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/narrate/internal/book"
)

// generateChapterXHTML renders a chapter's blocks as an XHTML document.
func (b *Builder) generateChapterXHTML(ch Chapter) string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>`)
	sb.WriteString(escapeXML(ch.Title))
	sb.WriteString(`</title>
</head>
<body>
`)

	if ch.Body != "" {
		sb.WriteString(ch.Body)
	} else {
		sb.WriteString(blocksToXHTML(ch.Blocks, ch.Level))
	}

	sb.WriteString("\n</body>\n</html>\n")

	return sb.String()
}

// blocksToXHTML renders blocks, grouping consecutive list items in one list.
func blocksToXHTML(blocks []Block, level int) string {
	var out strings.Builder
	inList := false

	heading := "h1"
	if level > 1 {
		heading = "h2"
	}

	for _, blk := range blocks {
		if blk.Role != book.RoleListItem && inList {
			out.WriteString("</ul>\n")
			inList = false
		}

		id := ""
		if blk.ID != "" {
			id = fmt.Sprintf(" id=\"%s\"", escapeXML(blk.ID))
		}
		text := escapeXML(blk.Text)

		switch blk.Role {
		case book.RoleHeading:
			out.WriteString(fmt.Sprintf("<%s%s>%s</%s>\n", heading, id, text, heading))
		case book.RoleListItem:
			if !inList {
				out.WriteString("<ul>\n")
				inList = true
			}
			out.WriteString(fmt.Sprintf("  <li%s>%s</li>\n", id, text))
		case book.RoleBlockquote:
			out.WriteString(fmt.Sprintf("<blockquote%s>%s</blockquote>\n", id, text))
		default:
			out.WriteString(fmt.Sprintf("<p%s>%s</p>\n", id, text))
		}
	}
	if inList {
		out.WriteString("</ul>\n")
	}
	return out.String()
}
