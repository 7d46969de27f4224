package ssml

import "fmt"

// CapacityError reports a unit that cannot be split under the backend's
// request limits. It is per-unit: generation continues for other units and
// the unit is emitted as a single query flagged unresolved.
type CapacityError struct {
	UnitID string
	Limit  string // "chars" or "payload"
	Max    int
	Size   int
	Word   string // the indivisible piece that did not fit
}

func (e *CapacityError) Error() string {
	word := e.Word
	if r := []rune(word); len(r) > 40 {
		word = string(r[:40]) + "..."
	}
	return fmt.Sprintf("unit %s cannot be split under the %s limit of %d (piece of %d: %q)",
		e.UnitID, e.Limit, e.Max, e.Size, word)
}
