package book

import (
	"encoding/json"
	"fmt"
)

// RootNode is the index of the synthetic TOC root.
const RootNode = 0

// TOCNode is one entry of the navigation tree. Nodes live in an arena
// owned by TOC and link to each other by index.
type TOCNode struct {
	Label    string
	TargetID string // manifest id, empty for the root
	Fragment string
	Parent   int // -1 for the root
	Children []int
}

// TOC is the table of contents stored as an arena of nodes.
// Node 0 is always the synthetic root.
type TOC struct {
	Nodes []TOCNode
}

// NewTOC returns a TOC holding only the root.
func NewTOC() *TOC {
	t := &TOC{}
	t.ensureRoot()
	return t
}

func (t *TOC) ensureRoot() {
	if len(t.Nodes) == 0 {
		t.Nodes = append(t.Nodes, TOCNode{Parent: -1})
	}
}

// Add appends a child under parent and returns its index.
func (t *TOC) Add(parent int, label, targetID, fragment string) int {
	t.ensureRoot()
	if parent < 0 || parent >= len(t.Nodes) {
		parent = RootNode
	}
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, TOCNode{
		Label:    label,
		TargetID: targetID,
		Fragment: fragment,
		Parent:   parent,
	})
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, id)
	return id
}

// Len returns the number of entries excluding the root.
func (t *TOC) Len() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	return len(t.Nodes) - 1
}

// Node returns the node at id.
func (t *TOC) Node(id int) TOCNode {
	return t.Nodes[id]
}

// Preorder returns every non-root node index in document (preorder) order.
func (t *TOC) Preorder() []int {
	if len(t.Nodes) == 0 {
		return nil
	}
	out := make([]int, 0, len(t.Nodes)-1)
	var walk func(int)
	walk = func(id int) {
		for _, c := range t.Nodes[id].Children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(RootNode)
	return out
}

// Depth returns 1 for top-level entries, 0 for the root.
func (t *TOC) Depth(id int) int {
	d := 0
	for id > RootNode {
		id = t.Nodes[id].Parent
		d++
	}
	return d
}

// Path returns the labels from the top-level ancestor down to id.
func (t *TOC) Path(id int) []string {
	var rev []string
	for id > RootNode {
		rev = append(rev, t.Nodes[id].Label)
		id = t.Nodes[id].Parent
	}
	out := make([]string, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

// tocJSON is the nested on-disk form of the tree.
type tocJSON struct {
	Label    string    `json:"label,omitempty"`
	TargetID string    `json:"targetId,omitempty"`
	Fragment string    `json:"fragment,omitempty"`
	Children []tocJSON `json:"children"`
}

// MarshalJSON writes the arena as a nested tree rooted at the synthetic root.
func (t TOC) MarshalJSON() ([]byte, error) {
	if len(t.Nodes) == 0 {
		return json.Marshal(tocJSON{Children: []tocJSON{}})
	}
	var build func(int) tocJSON
	build = func(id int) tocJSON {
		n := t.Nodes[id]
		out := tocJSON{
			Label:    n.Label,
			TargetID: n.TargetID,
			Fragment: n.Fragment,
			Children: make([]tocJSON, 0, len(n.Children)),
		}
		for _, c := range n.Children {
			out.Children = append(out.Children, build(c))
		}
		return out
	}
	return json.Marshal(build(RootNode))
}

// UnmarshalJSON rebuilds the arena from a nested tree. Indices are assigned
// in preorder so a round trip is stable.
func (t *TOC) UnmarshalJSON(data []byte) error {
	var root tocJSON
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("decode toc: %w", err)
	}
	t.Nodes = []TOCNode{{Label: root.Label, Parent: -1}}
	var load func(parent int, nodes []tocJSON)
	load = func(parent int, nodes []tocJSON) {
		for _, n := range nodes {
			id := t.Add(parent, n.Label, n.TargetID, n.Fragment)
			load(id, n.Children)
		}
	}
	load(RootNode, root.Children)
	return nil
}
