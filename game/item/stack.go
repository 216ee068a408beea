package item

import "bytes"

// Stack is a quantity of one item type. Meta is an opaque blob owned by the
// host (enchantments, names, ...); stacks only merge when it matches exactly.
type Stack struct {
	Type     string `json:"type" yaml:"type"`
	Quantity int    `json:"quantity" yaml:"quantity"`
	Meta     []byte `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// NewStack returns a stack without metadata.
func NewStack(itemType string, qty int) Stack {
	return Stack{Type: itemType, Quantity: qty}
}

// IsSimilar reports whether s and o can share a slot.
func (s Stack) IsSimilar(o Stack) bool {
	return s.Type == o.Type && bytes.Equal(s.Meta, o.Meta)
}

// Clone returns a deep copy of s.
func (s Stack) Clone() Stack {
	c := s
	if s.Meta != nil {
		c.Meta = append([]byte(nil), s.Meta...)
	}
	return c
}

// WithQuantity returns a copy of s holding qty items.
func (s Stack) WithQuantity(qty int) Stack {
	c := s.Clone()
	c.Quantity = qty
	return c
}

// CloneStacks deep-copies a slice of stacks.
func CloneStacks(stacks []Stack) []Stack {
	if stacks == nil {
		return nil
	}
	out := make([]Stack, len(stacks))
	for i, s := range stacks {
		out[i] = s.Clone()
	}
	return out
}
