package label

import "sort"

// computeAncestry resolves the ancestor closure and cycle-equivalence
// groups for every record in one depth-first pass, using a Tarjan-style
// strongly-connected-components traversal that accumulates ancestor-set
// unions along edges. O(labels + edges).
//
// Each record enters with State AncestryUnknown and its sanitized
// Parents set; computeAncestry fills State, Ancestors, and Equivalents.
// Parent ids are guaranteed to exist as records (dangling references
// are filtered out before this runs).
//
// Visit indices: -1 unvisited, positive while on the recursion stack,
// 0 once closed. Recursing into a parent returns its lowlink; a
// back-edge into a parent still being visited returns that parent's
// positive index, which is what lets lowlink propagation find the
// cycle's root. A closed parent returns 0, contributing nothing to
// lowlink while its final ancestor set is still unioned in.
func computeAncestry(records map[string]*Ancestry) {
	indices := make(map[string]int, len(records))
	ids := make([]string, 0, len(records))
	for id := range records {
		indices[id] = -1
		ids = append(ids, id)
	}
	sort.Strings(ids)

	count := 0
	var pending []string // labels awaiting their component root

	var visit func(id string) int
	visit = func(id string) int {
		if index := indices[id]; index >= 0 {
			return index
		}

		count++
		index := count
		indices[id] = index
		pendingMark := len(pending)

		rec := records[id]
		ancestors := NewIDSet()
		lowlink := index
		// Sorted iteration keeps recomputes deterministic: edge visit
		// order decides which partial sets a cross-edge observes.
		for _, parentID := range rec.Parents.Sorted() {
			result := visit(parentID)

			parent := records[parentID]
			if parent.State == AncestryResolved {
				ancestors.AddSet(parent.Ancestors)
			} else {
				// Unresolved (on the recursion stack) or a leaf: the
				// parent contributes just itself.
				ancestors.Add(parentID)
			}

			if result != 0 && result < lowlink {
				lowlink = result
			}
		}

		if len(ancestors) > 0 {
			ancestors.Add(id)
			rec.Ancestors = ancestors
			rec.State = AncestryResolved
		} else {
			rec.State = AncestryLeaf
		}

		if index == lowlink {
			// This label roots a strongly connected component. Anything
			// pushed since entry is mutually reachable with it: install
			// the shared ancestor and equivalence sets on every member.
			if len(pending) > pendingMark {
				members := NewIDSet(pending[pendingMark:]...)
				members.Add(id)
				for memberID := range members {
					member := records[memberID]
					member.State = AncestryResolved
					member.Ancestors = ancestors
					member.Equivalents = members
				}
				pending = pending[:pendingMark]
			}
		} else {
			pending = append(pending, id)
		}

		indices[id] = 0
		return lowlink
	}

	for _, id := range ids {
		if indices[id] != 0 {
			visit(id)
		}
	}
}
