package item

import (
	"maps"
	"slices"
)

// Resources is the legacy type→quantity holding. It has no slot bound and
// ignores metadata.
type Resources map[string]int

// Add credits qty of itemType.
func (r Resources) Add(itemType string, qty int) {
	if qty <= 0 {
		return
	}
	r[itemType] += qty
}

// Amount returns the held quantity of itemType.
func (r Resources) Amount(itemType string) int { return r[itemType] }

// Remove debits qty of itemType if that much is held.
func (r Resources) Remove(itemType string, qty int) bool {
	cur := r[itemType]
	if qty <= 0 || cur < qty {
		return false
	}
	if cur == qty {
		delete(r, itemType)
	} else {
		r[itemType] = cur - qty
	}
	return true
}

// Total sums all quantities.
func (r Resources) Total() int {
	n := 0
	for _, q := range r {
		n += q
	}
	return n
}

// Clone copies r. A nil map clones to an empty one.
func (r Resources) Clone() Resources {
	out := make(Resources, len(r))
	for t, q := range r {
		out[t] = q
	}
	return out
}

// Stacks converts r into metadata-free stacks split by the catalog's max
// stack sizes.
func (r Resources) Stacks(c *Catalog) []Stack {
	var out []Stack
	for _, t := range slices.Sorted(maps.Keys(r)) {
		out = append(out, c.Split(NewStack(t, 0), r[t])...)
	}
	return out
}
