package restore

import "sort"

// refSet tracks the current requested package references by value equality.
// The first update after construction always reports a change so the session
// establishes a baseline restore even for an empty set.
type refSet struct {
	refs      map[PackageReference]struct{}
	baselined bool
}

func newRefSet() *refSet {
	return &refSet{refs: make(map[PackageReference]struct{})}
}

// update replaces the set with next and reports whether anything changed.
func (r *refSet) update(next []PackageReference) bool {
	changed := !r.baselined
	r.baselined = true

	incoming := make(map[PackageReference]struct{}, len(next))

	for _, ref := range next {
		incoming[ref] = struct{}{}

		if _, ok := r.refs[ref]; !ok {
			changed = true
		}
	}

	for ref := range r.refs {
		if _, ok := incoming[ref]; !ok {
			changed = true
		}
	}

	r.refs = incoming

	return changed
}

// snapshot returns the references in a stable order.
func (r *refSet) snapshot() []PackageReference {
	out := make([]PackageReference, 0, len(r.refs))

	for ref := range r.refs {
		out = append(out, ref)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}

		return out[i].Range < out[j].Range
	})

	return out
}
