package book

import (
	"fmt"
)

// Position locates a content unit by spine index and the index of the
// block among the narratable blocks of that spine document.
type Position struct {
	Spine int
	Block int
}

// UnitID formats the stable identifier for a position.
// It is a pure function of its inputs so re-interpreting the same EPUB
// yields the same ids.
func UnitID(spine, block int) string {
	return fmt.Sprintf("s%04d-b%05d", spine, block)
}

// ID returns the unit id for p.
func (p Position) ID() string {
	return UnitID(p.Spine, p.Block)
}

// Compare orders positions by spine then block.
func (p Position) Compare(o Position) int {
	switch {
	case p.Spine < o.Spine:
		return -1
	case p.Spine > o.Spine:
		return 1
	case p.Block < o.Block:
		return -1
	case p.Block > o.Block:
		return 1
	}
	return 0
}

// ParseUnitID recovers the position encoded in a unit id.
func ParseUnitID(id string) (Position, error) {
	var p Position
	n, err := fmt.Sscanf(id, "s%d-b%d", &p.Spine, &p.Block)
	if err != nil || n != 2 || p.Spine < 0 || p.Block < 0 {
		return Position{}, fmt.Errorf("invalid unit id %q", id)
	}
	if UnitID(p.Spine, p.Block) != id {
		return Position{}, fmt.Errorf("invalid unit id %q: not canonical", id)
	}
	return p, nil
}
