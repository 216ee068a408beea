package item

import (
	"regexp"
	"strings"
)

// DefaultMaxStack is used for item types the catalog has no entry for.
const DefaultMaxStack = 64

var typeToken = regexp.MustCompile(`^[A-Z0-9_]+$`)

// Catalog knows the max stack size of each item type and which type tokens
// are acceptable. A nil *Catalog behaves like an empty, unrestricted one.
type Catalog struct {
	defaultMax int
	maxStack   map[string]int
	restrict   bool
}

// NewCatalog builds a catalog. Keys of maxStack are normalized with
// NormalizeType. When restrict is set only listed types are valid.
func NewCatalog(defaultMax int, maxStack map[string]int, restrict bool) *Catalog {
	if defaultMax <= 0 {
		defaultMax = DefaultMaxStack
	}
	c := &Catalog{
		defaultMax: defaultMax,
		maxStack:   make(map[string]int, len(maxStack)),
		restrict:   restrict,
	}
	for t, n := range maxStack {
		if n > 0 {
			c.maxStack[NormalizeType(t)] = n
		}
	}
	return c
}

// NormalizeType upper-cases and trims an item type token.
func NormalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// MaxStack returns the largest quantity a single slot may hold for itemType.
func (c *Catalog) MaxStack(itemType string) int {
	if c == nil {
		return DefaultMaxStack
	}
	if n, ok := c.maxStack[itemType]; ok {
		return n
	}
	return c.defaultMax
}

// Valid reports whether itemType is a well-formed, known type token.
func (c *Catalog) Valid(itemType string) bool {
	if !typeToken.MatchString(itemType) {
		return false
	}
	if c == nil || !c.restrict {
		return true
	}
	_, ok := c.maxStack[itemType]
	return ok
}

// Split breaks qty items of s's kind into stacks no larger than MaxStack.
func (c *Catalog) Split(s Stack, qty int) []Stack {
	max := c.MaxStack(s.Type)
	var out []Stack
	for qty > 0 {
		n := min(qty, max)
		out = append(out, s.WithQuantity(n))
		qty -= n
	}
	return out
}
