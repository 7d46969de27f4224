package book

import (
	"fmt"
)

// Validate checks the GeneralBook invariants:
//   - every spine id exists in the manifest
//   - every TOC target resolves to a manifest id
//   - content follows spine order and unit ids are unique
//   - a title is present
func (b *GeneralBook) Validate() error {
	manifest := make(map[string]ManifestEntry, len(b.Manifest))
	for _, e := range b.Manifest {
		if _, dup := manifest[e.ID]; dup {
			return &StructuralError{Kind: ErrDanglingReference, Path: e.SourcePath,
				Detail: fmt.Sprintf("duplicate manifest id %q", e.ID)}
		}
		manifest[e.ID] = e
	}

	for i, id := range b.Spine {
		if _, ok := manifest[id]; !ok {
			return &StructuralError{Kind: ErrMalformedSpine,
				Detail: fmt.Sprintf("spine item %d references unknown manifest id %q", i, id)}
		}
	}

	for _, n := range b.TOC.Preorder() {
		node := b.TOC.Node(n)
		if node.TargetID == "" {
			continue
		}
		if _, ok := manifest[node.TargetID]; !ok {
			return &StructuralError{Kind: ErrDanglingReference,
				Detail: fmt.Sprintf("toc entry %q targets unknown manifest id %q", node.Label, node.TargetID)}
		}
	}

	seen := make(map[string]struct{}, len(b.Content))
	prev := Position{Spine: -1, Block: -1}
	for _, u := range b.Content {
		if _, dup := seen[u.UnitID]; dup {
			return &StructuralError{Kind: ErrDuplicateUnit, UnitID: u.UnitID}
		}
		seen[u.UnitID] = struct{}{}

		pos, err := ParseUnitID(u.UnitID)
		if err != nil {
			return &StructuralError{Kind: ErrUnitOrder, UnitID: u.UnitID, Detail: err.Error()}
		}
		if pos.Spine >= len(b.Spine) {
			return &StructuralError{Kind: ErrUnitOrder, UnitID: u.UnitID,
				Detail: fmt.Sprintf("spine index %d out of range", pos.Spine)}
		}
		if pos.Compare(prev) <= 0 {
			return &StructuralError{Kind: ErrUnitOrder, UnitID: u.UnitID,
				Detail: fmt.Sprintf("follows %s", prev.ID())}
		}
		if u.Text == "" {
			return &StructuralError{Kind: ErrUnitOrder, UnitID: u.UnitID, Detail: "empty unit"}
		}
		if !u.Role.Valid() {
			return &StructuralError{Kind: ErrUnitOrder, UnitID: u.UnitID,
				Detail: fmt.Sprintf("unknown role %q", u.Role)}
		}
		prev = pos
	}

	if !b.Metadata.Has(KeyTitle) {
		return fmt.Errorf("%w: title", ErrMissingRequiredMetadata)
	}
	return nil
}
