package caravan

import (
	"maps"
	"slices"
	"time"

	"github.com/mysterria/silkroad/game/item"
)

// MaxSlots bounds the number of distinct stacks a caravan holds.
const MaxSlots = item.DefaultSlots

// Group is the external town that owns a caravan's territory.
type Group struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Caravan is a positioned trading post with a slot-bounded hold and a flat
// member list. Every member has full access.
type Caravan struct {
	ID          string
	Name        string
	Position    Position
	Inventory   *item.Inventory
	Legacy      item.Resources
	Territory   map[string]struct{}
	Members     map[string]struct{}
	OwningGroup *Group
	CreatedAt   time.Time
	Active      bool
}

// New returns an active, empty caravan.
func New(id, name string, pos Position, catalog *item.Catalog, createdAt time.Time) *Caravan {
	return &Caravan{
		ID:        id,
		Name:      name,
		Position:  pos,
		Inventory: item.NewInventory(MaxSlots, catalog),
		Legacy:    item.Resources{},
		Territory: map[string]struct{}{},
		Members:   map[string]struct{}{},
		CreatedAt: createdAt,
		Active:    true,
	}
}

func (c *Caravan) CanAddItemStack(s item.Stack) bool { return c.Inventory.CanAddItemStack(s) }

func (c *Caravan) AddItemStack(s item.Stack) bool { return c.Inventory.AddItemStack(s) }

func (c *Caravan) RemoveItemStack(pattern item.Stack, amount int) bool {
	return c.Inventory.RemoveItemStack(pattern, amount)
}

func (c *Caravan) ItemStackAmount(pattern item.Stack) int {
	return c.Inventory.ItemStackAmount(pattern)
}

func (c *Caravan) AddResource(itemType string, qty int) { c.Legacy.Add(itemType, qty) }

func (c *Caravan) RemoveResource(itemType string, qty int) bool {
	return c.Legacy.Remove(itemType, qty)
}

func (c *Caravan) ResourceAmount(itemType string) int { return c.Legacy.Amount(itemType) }

// DistanceTo measures between the two caravans' positions.
func (c *Caravan) DistanceTo(o *Caravan) float64 { return c.Position.DistanceTo(o.Position) }

func (c *Caravan) ContainsChunk(world string, cx, cz int) bool {
	_, ok := c.Territory[ChunkKey(world, cx, cz)]
	return ok
}

// TerritoryList returns the chunk keys in sorted order.
func (c *Caravan) TerritoryList() []string { return sortedSet(c.Territory) }

func (c *Caravan) AddMember(actorID string) { c.Members[actorID] = struct{}{} }

func (c *Caravan) RemoveMember(actorID string) { delete(c.Members, actorID) }

func (c *Caravan) IsMember(actorID string) bool {
	_, ok := c.Members[actorID]
	return ok
}

// HasAccess is IsMember; there are no privilege tiers.
func (c *Caravan) HasAccess(actorID string) bool { return c.IsMember(actorID) }

// MemberList returns member ids in sorted order.
func (c *Caravan) MemberList() []string { return sortedSet(c.Members) }

// Clone returns a deep copy.
func (c *Caravan) Clone() *Caravan {
	out := *c
	out.Inventory = c.Inventory.Clone()
	out.Legacy = c.Legacy.Clone()
	out.Territory = maps.Clone(c.Territory)
	out.Members = maps.Clone(c.Members)
	if out.Territory == nil {
		out.Territory = map[string]struct{}{}
	}
	if out.Members == nil {
		out.Members = map[string]struct{}{}
	}
	if c.OwningGroup != nil {
		g := *c.OwningGroup
		out.OwningGroup = &g
	}
	return &out
}

func sortedSet(set map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(set))
}
