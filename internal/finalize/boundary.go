package finalize

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackzampolin/narrate/internal/book"
)

// Boundary marks where a chapter starts in reading order.
type Boundary struct {
	Node     int // TOC node index, -1 when synthesized
	Position book.Position
	Label    string
	Path     []string
	Depth    int
}

// Boundaries resolves the TOC into chapter start positions, sorted by
// position. A node without a target takes the position of its first
// resolvable descendant. When two nodes start at the same position the
// deeper one wins. A book without a usable TOC falls back to one boundary
// per spine document.
func Boundaries(b *book.GeneralBook, logger *slog.Logger) []Boundary {
	if logger == nil {
		logger = slog.Default()
	}
	anchors := anchorIndex(b)

	var out []Boundary
	for _, id := range b.TOC.Preorder() {
		pos, ok := resolveNode(b, anchors, id)
		if !ok {
			logger.Debug("toc entry has no position", "label", b.TOC.Node(id).Label)
			continue
		}
		out = append(out, Boundary{
			Node:     id,
			Position: pos,
			Label:    b.TOC.Node(id).Label,
			Path:     b.TOC.Path(id),
			Depth:    b.TOC.Depth(id),
		})
	}

	if len(out) == 0 {
		logger.Warn("no usable table of contents, using spine documents as chapters")
		return spineBoundaries(b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position.Compare(out[j].Position) < 0
	})

	deduped := out[:0]
	for _, bd := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Position == bd.Position {
			if bd.Depth > deduped[n-1].Depth {
				deduped[n-1] = bd
			}
			continue
		}
		deduped = append(deduped, bd)
	}
	return deduped
}

// anchorIndex maps spine index and anchor id to the owning block.
func anchorIndex(b *book.GeneralBook) map[int]map[string]int {
	idx := map[int]map[string]int{}
	for _, u := range b.Content {
		if len(u.Anchors) == 0 {
			continue
		}
		pos, err := book.ParseUnitID(u.UnitID)
		if err != nil {
			continue
		}
		m := idx[pos.Spine]
		if m == nil {
			m = map[string]int{}
			idx[pos.Spine] = m
		}
		for _, a := range u.Anchors {
			if _, seen := m[a]; !seen {
				m[a] = pos.Block
			}
		}
	}
	return idx
}

func resolveNode(b *book.GeneralBook, anchors map[int]map[string]int, id int) (book.Position, bool) {
	node := b.TOC.Node(id)
	if node.TargetID == "" {
		for _, c := range node.Children {
			if pos, ok := resolveNode(b, anchors, c); ok {
				return pos, true
			}
		}
		return book.Position{}, false
	}

	spine, ok := b.SpineIndex(node.TargetID)
	if !ok {
		return book.Position{}, false
	}
	pos := book.Position{Spine: spine}
	if node.Fragment != "" {
		if block, ok := anchors[spine][node.Fragment]; ok {
			pos.Block = block
		}
	}
	return pos, true
}

func spineBoundaries(b *book.GeneralBook) []Boundary {
	var out []Boundary
	seen := map[int]bool{}
	for _, u := range b.Content {
		pos, err := book.ParseUnitID(u.UnitID)
		if err != nil || seen[pos.Spine] {
			continue
		}
		seen[pos.Spine] = true

		label := fmt.Sprintf("Section %d", len(out)+1)
		if u.Role == book.RoleHeading {
			label = u.Text
		}
		out = append(out, Boundary{
			Node:     -1,
			Position: book.Position{Spine: pos.Spine},
			Label:    label,
			Path:     []string{label},
			Depth:    1,
		})
	}
	return out
}

// locate returns the index of the boundary containing pos, or -1.
func locate(bounds []Boundary, pos book.Position) int {
	i := sort.Search(len(bounds), func(i int) bool {
		return bounds[i].Position.Compare(pos) > 0
	})
	return i - 1
}
