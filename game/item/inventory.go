package item

// DefaultSlots is the slot count of a caravan hold and of a personal bag.
const DefaultSlots = 36

// Inventory is an ordered, slot-bounded list of stacks. It is not safe for
// concurrent use; owners serialize access.
type Inventory struct {
	slots    []Stack
	maxSlots int
	catalog  *Catalog
}

// NewInventory creates an empty inventory with maxSlots slots.
func NewInventory(maxSlots int, catalog *Catalog) *Inventory {
	if maxSlots <= 0 {
		maxSlots = DefaultSlots
	}
	return &Inventory{maxSlots: maxSlots, catalog: catalog}
}

// SetCatalog replaces the catalog used for max stack sizes.
func (inv *Inventory) SetCatalog(c *Catalog) { inv.catalog = c }

// Len returns the number of occupied slots.
func (inv *Inventory) Len() int { return len(inv.slots) }

// MaxSlots returns the slot bound.
func (inv *Inventory) MaxSlots() int { return inv.maxSlots }

// Stacks returns a deep copy of the occupied slots in order.
func (inv *Inventory) Stacks() []Stack {
	out := CloneStacks(inv.slots)
	if out == nil {
		out = []Stack{}
	}
	return out
}

// Clone returns an independent copy of inv.
func (inv *Inventory) Clone() *Inventory {
	return &Inventory{
		slots:    CloneStacks(inv.slots),
		maxSlots: inv.maxSlots,
		catalog:  inv.catalog,
	}
}

// mergeTarget returns the index of the first similar stack that can absorb s
// whole, or -1.
func (inv *Inventory) mergeTarget(s Stack) int {
	max := inv.catalog.MaxStack(s.Type)
	for i, cur := range inv.slots {
		if cur.IsSimilar(s) && cur.Quantity+s.Quantity <= max {
			return i
		}
	}
	return -1
}

// CanAddItemStack reports whether AddItemStack(s) would succeed.
func (inv *Inventory) CanAddItemStack(s Stack) bool {
	if s.Quantity <= 0 || s.Quantity > inv.catalog.MaxStack(s.Type) {
		return false
	}
	return inv.mergeTarget(s) >= 0 || len(inv.slots) < inv.maxSlots
}

// AddItemStack merges s into the first similar stack with room for all of it,
// otherwise stores a copy in a free slot. It does nothing and returns false
// when neither is possible.
func (inv *Inventory) AddItemStack(s Stack) bool {
	if !inv.CanAddItemStack(s) {
		return false
	}
	if i := inv.mergeTarget(s); i >= 0 {
		inv.slots[i].Quantity += s.Quantity
		return true
	}
	inv.slots = append(inv.slots, s.Clone())
	return true
}

// ItemStackAmount sums the quantity of every stack similar to pattern.
func (inv *Inventory) ItemStackAmount(pattern Stack) int {
	total := 0
	for _, cur := range inv.slots {
		if cur.IsSimilar(pattern) {
			total += cur.Quantity
		}
	}
	return total
}

// RemoveItemStack takes amount items similar to pattern, emptying slots front
// to back. Nothing is touched unless the full amount is available.
func (inv *Inventory) RemoveItemStack(pattern Stack, amount int) bool {
	if amount <= 0 || inv.ItemStackAmount(pattern) < amount {
		return false
	}
	remaining := amount
	kept := inv.slots[:0]
	for _, cur := range inv.slots {
		if remaining > 0 && cur.IsSimilar(pattern) {
			take := min(cur.Quantity, remaining)
			cur.Quantity -= take
			remaining -= take
			if cur.Quantity == 0 {
				continue
			}
		}
		kept = append(kept, cur)
	}
	inv.slots = kept
	return true
}

// CanAddAll reports whether every stack fits when added in order.
func (inv *Inventory) CanAddAll(stacks []Stack) bool {
	return inv.Clone().AddAll(stacks)
}

// AddAll adds every stack or none of them.
func (inv *Inventory) AddAll(stacks []Stack) bool {
	trial := inv.Clone()
	for _, s := range stacks {
		if !trial.AddItemStack(s) {
			return false
		}
	}
	inv.slots = trial.slots
	return true
}

// Restore fills an empty inventory from persisted stacks. Stacks that do not
// fit the slot bound or exceed the max stack size are returned unplaced.
func (inv *Inventory) Restore(stacks []Stack) (rejected []Stack) {
	for _, s := range stacks {
		if !inv.AddItemStack(s) {
			rejected = append(rejected, s)
		}
	}
	return rejected
}
