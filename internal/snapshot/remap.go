package snapshot

import (
	"fmt"

	"browsernerd/internal/dom"
	"browsernerd/internal/locator"
)

// Remapping is an element of an older snapshot matched into a newer one.
type Remapping struct {
	From  dom.Element
	To    *dom.Element
	Match locator.Match
}

// Remap finds the element of next that best matches snapID in prev, using
// the same cascade the page runs but over captured locators only. To is nil
// when no candidate reaches minConfidence.
func Remap(prev, next *Snapshot, snapID string, minConfidence float64) (*Remapping, error) {
	if prev == nil || next == nil {
		return nil, fmt.Errorf("%w: remap needs two snapshots", ErrStaleReference)
	}
	from := prev.Element(snapID)
	if from == nil {
		return nil, Stale(prev.ID, snapID)
	}

	cands := make([]locator.Candidate, len(next.Elements))
	for i, el := range next.Elements {
		cands[i] = locator.FromElement(el)
	}

	m := locator.Resolve(from.Locators, cands, minConfidence)
	r := &Remapping{From: *from, Match: m}
	if m.Index >= 0 {
		to := next.Elements[m.Index]
		r.To = &to
	}
	return r, nil
}
