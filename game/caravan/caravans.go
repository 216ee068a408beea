package caravan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mysterria/silkroad/audit"
	"github.com/mysterria/silkroad/game/item"
	"github.com/mysterria/silkroad/plugin/hook"
	"go.uber.org/zap"
)

// CreateCaravan registers a new caravan over the given territory chunks.
// When a town validator is configured and chunks are given, the chunks must
// all belong to one town that owns no other caravan; the town's members
// become the caravan's members.
func (r *Registry) CreateCaravan(ctx context.Context, id, name string, pos Position, chunks []string) (*Caravan, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: caravan id is empty", ErrValidation)
	}
	if name == "" {
		name = id
	}
	for _, key := range chunks {
		if _, _, _, err := ParseChunkKey(key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.lookup(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var group *Group
	if len(chunks) > 0 && r.towns != nil {
		v, err := r.towns.Validate(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("%w: town validation: %v", ErrValidation, err)
		}
		if !v.Success {
			r.logger.Warn("caravan territory rejected", zap.String("caravan", id), zap.String("reason", v.Reason))
			return nil, fmt.Errorf("%w: %s", ErrValidation, v.Reason)
		}
		if v.GroupID != "" {
			if owner, ok := r.groupCaravan(ctx, v.GroupID); ok {
				return nil, fmt.Errorf("%w: town %q already has a caravan (%s)", ErrValidation, v.GroupName, owner)
			}
			group = &Group{ID: v.GroupID, Name: v.GroupName}
		}
	}

	proposal := CaravanProposal{ID: id, Name: name, Position: pos, Territory: slices.Clone(chunks)}
	if group != nil {
		g := *group
		proposal.Group = &g
	}
	if err := r.vet(ctx, hook.BeforeCaravanCreate, proposal); err != nil {
		return nil, err
	}

	c := New(id, name, pos, r.cfg.Catalog, r.clock())
	for _, key := range chunks {
		c.Territory[key] = struct{}{}
	}
	if group != nil {
		c.OwningGroup = group
		members, err := r.towns.GroupMemberIDs(ctx, group.ID)
		if err != nil {
			r.logger.Warn("town roster unavailable", zap.String("caravan", id), zap.String("group", group.ID), zap.Error(err))
		}
		for _, m := range members {
			c.AddMember(m)
		}
	}

	if err := r.store.SaveCaravan(ctx, c); err != nil {
		r.logger.Error("caravan save failed", zap.String("caravan", id), zap.Error(err))
		return nil, fmt.Errorf("%w: saving caravan %s: %v", ErrPersistence, id, err)
	}
	r.caravans[id] = c

	r.audit(audit.Entry{
		Action:    audit.ActionCaravanCreated,
		CaravanID: id,
		Detail: map[string]any{
			"position":  pos.String(),
			"territory": len(chunks),
			"members":   len(c.Members),
			"group":     c.OwningGroup,
		},
	})
	r.logger.Info("caravan created",
		zap.String("caravan", id),
		zap.Stringer("position", pos),
		zap.Int("territory", len(chunks)),
		zap.Int("members", len(c.Members)))
	return c.Clone(), nil
}

// groupCaravan finds a loaded caravan owned by groupID. Caravans created
// without a recorded group are checked by validating their territory.
// Callers hold r.mu.
func (r *Registry) groupCaravan(ctx context.Context, groupID string) (string, bool) {
	for _, c := range r.sortedCaravans() {
		if c.OwningGroup != nil {
			if c.OwningGroup.ID == groupID {
				return c.ID, true
			}
			continue
		}
		if len(c.Territory) == 0 {
			continue
		}
		v, err := r.towns.Validate(ctx, c.TerritoryList())
		if err != nil {
			r.logger.Warn("territory revalidation failed", zap.String("caravan", c.ID), zap.Error(err))
			continue
		}
		if v.Success && v.GroupID == groupID {
			return c.ID, true
		}
	}
	return "", false
}

// RemoveCaravan deletes the caravan record and forgets the caravan. Transfers
// still heading to it fail when they come due. It reports false when no such
// caravan exists.
func (r *Registry) RemoveCaravan(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.lookup(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := r.store.DeleteCaravan(ctx, id); err != nil {
		return false, fmt.Errorf("%w: deleting caravan %s: %v", ErrPersistence, id, err)
	}
	delete(r.caravans, id)

	r.audit(audit.Entry{Action: audit.ActionCaravanRemoved, CaravanID: id})
	r.logger.Info("caravan removed", zap.String("caravan", id))
	return true, nil
}

// GetCaravan returns a copy of the caravan, loading it from storage when it
// is not in memory. Inactive records are not found.
func (r *Registry) GetCaravan(ctx context.Context, id string) (*Caravan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("caravan lookup failed", zap.String("caravan", id), zap.Error(err))
		}
		return nil, false
	}
	return c.Clone(), true
}

// AllCaravans returns copies of every loaded caravan ordered by id.
func (r *Registry) AllCaravans() []*Caravan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneCaravans(r.sortedCaravans())
}

// CaravansInRange returns caravans in pos's world within maxDistance,
// nearest first.
func (r *Registry) CaravansInRange(pos Position, maxDistance float64) []*Caravan {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Caravan
	for _, c := range r.sortedCaravans() {
		if c.Position.World == pos.World && c.Position.DistanceTo(pos) <= maxDistance {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b *Caravan) int {
		return cmp.Compare(a.Position.DistanceTo(pos), b.Position.DistanceTo(pos))
	})
	return cloneCaravans(out)
}

// ActorCaravans returns the caravans actorID has access to, ordered by id.
func (r *Registry) ActorCaravans(actorID string) []*Caravan {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Caravan
	for _, c := range r.sortedCaravans() {
		if c.HasAccess(actorID) {
			out = append(out, c)
		}
	}
	return cloneCaravans(out)
}

// AddMember grants actorID access to the caravan.
func (r *Registry) AddMember(ctx context.Context, caravanID, actorID string) error {
	if actorID == "" {
		return fmt.Errorf("%w: actor id is empty", ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ctx, caravanID)
	if err != nil {
		return err
	}
	c.AddMember(actorID)
	r.logger.Info("caravan member added", zap.String("caravan", caravanID), zap.String("actor", actorID))
	return r.persistCaravan(ctx, c)
}

// RemoveMember revokes actorID's access to the caravan.
func (r *Registry) RemoveMember(ctx context.Context, caravanID, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ctx, caravanID)
	if err != nil {
		return err
	}
	c.RemoveMember(actorID)
	r.logger.Info("caravan member removed", zap.String("caravan", caravanID), zap.String("actor", actorID))
	return r.persistCaravan(ctx, c)
}

// HasAccess reports whether actorID is a member of the caravan.
func (r *Registry) HasAccess(ctx context.Context, caravanID, actorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ctx, caravanID)
	return err == nil && c.HasAccess(actorID)
}

// UpdateCaravan applies fn to a copy of the caravan and, when fn succeeds,
// installs the copy and persists it. The id cannot be changed.
func (r *Registry) UpdateCaravan(ctx context.Context, id string, fn func(c *Caravan) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	next := c.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.ID = id
	if next.Inventory == nil {
		next.Inventory = item.NewInventory(MaxSlots, r.cfg.Catalog)
	}
	next.Inventory.SetCatalog(r.cfg.Catalog)
	if next.Legacy == nil {
		next.Legacy = item.Resources{}
	}
	if next.Territory == nil {
		next.Territory = map[string]struct{}{}
	}
	if next.Members == nil {
		next.Members = map[string]struct{}{}
	}
	r.caravans[id] = next
	return r.persistCaravan(ctx, next)
}

// SaveCaravan forces a write of the caravan's current state.
func (r *Registry) SaveCaravan(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	return r.persistCaravan(ctx, c)
}

// DepositItems moves stack from the actor's holding into the caravan, split
// to the max stack size. Either both sides change or neither does.
func (r *Registry) DepositItems(ctx context.Context, caravanID, actorID string, holding Holding, stack item.Stack) error {
	if stack.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(ctx, caravanID)
	if err != nil {
		return err
	}
	if !c.HasAccess(actorID) {
		return fmt.Errorf("%w: %s is not a member of %s", ErrPermission, actorID, caravanID)
	}
	if holding.ItemStackAmount(stack) < stack.Quantity {
		return fmt.Errorf("%w: holding lacks %d %s", ErrInsufficientResource, stack.Quantity, stack.Type)
	}
	stacks := r.cfg.Catalog.Split(stack, stack.Quantity)
	if !c.Inventory.CanAddAll(stacks) {
		return fmt.Errorf("%w: caravan %s cannot take %d %s", ErrCapacity, caravanID, stack.Quantity, stack.Type)
	}
	if !holding.RemoveItemStack(stack, stack.Quantity) {
		return fmt.Errorf("%w: holding lacks %d %s", ErrInsufficientResource, stack.Quantity, stack.Type)
	}
	c.Inventory.AddAll(stacks)

	r.logger.Info("items deposited",
		zap.String("caravan", caravanID), zap.String("actor", actorID),
		zap.String("type", stack.Type), zap.Int("quantity", stack.Quantity))
	return r.persistCaravan(ctx, c)
}

// WithdrawItems moves amount items similar to pattern from the caravan into
// the actor's holding. Either both sides change or neither does.
func (r *Registry) WithdrawItems(ctx context.Context, caravanID, actorID string, holding Holding, pattern item.Stack, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(ctx, caravanID)
	if err != nil {
		return err
	}
	if !c.HasAccess(actorID) {
		return fmt.Errorf("%w: %s is not a member of %s", ErrPermission, actorID, caravanID)
	}
	if c.ItemStackAmount(pattern) < amount {
		return fmt.Errorf("%w: caravan %s lacks %d %s", ErrInsufficientResource, caravanID, amount, pattern.Type)
	}
	stacks := r.cfg.Catalog.Split(pattern, amount)
	if !holding.CanAddAll(stacks) {
		return fmt.Errorf("%w: holding cannot take %d %s", ErrCapacity, amount, pattern.Type)
	}
	before := c.Inventory.Clone()
	c.RemoveItemStack(pattern, amount)
	if !holding.AddAll(stacks) {
		c.Inventory = before
		return fmt.Errorf("%w: holding cannot take %d %s", ErrCapacity, amount, pattern.Type)
	}

	r.logger.Info("items withdrawn",
		zap.String("caravan", caravanID), zap.String("actor", actorID),
		zap.String("type", pattern.Type), zap.Int("quantity", amount))
	return r.persistCaravan(ctx, c)
}

// resourceRequest validates and normalizes a type→quantity request.
func resourceRequest(resources map[string]int) (item.Resources, error) {
	if len(resources) == 0 {
		return nil, fmt.Errorf("%w: no resources given", ErrValidation)
	}
	req := item.Resources{}
	for typ, q := range resources {
		if q <= 0 || strings.TrimSpace(typ) == "" {
			return nil, fmt.Errorf("%w: invalid resource %s x%d", ErrValidation, typ, q)
		}
		req.Add(item.NormalizeType(typ), q)
	}
	return req, nil
}

// DepositResources adds type→quantity resources to the caravan's legacy
// inventory. The caller has already taken them from the actor.
func (r *Registry) DepositResources(ctx context.Context, caravanID, actorID string, resources map[string]int) error {
	req, err := resourceRequest(resources)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(ctx, caravanID)
	if err != nil {
		return err
	}
	if !c.HasAccess(actorID) {
		return fmt.Errorf("%w: %s is not a member of %s", ErrPermission, actorID, caravanID)
	}
	for typ, q := range req {
		c.AddResource(typ, q)
	}
	r.logger.Info("resources deposited",
		zap.String("caravan", caravanID), zap.String("actor", actorID), zap.Int("total", req.Total()))
	return r.persistCaravan(ctx, c)
}

// WithdrawResources removes type→quantity resources from the caravan's
// legacy inventory. Nothing is removed unless every amount is available.
func (r *Registry) WithdrawResources(ctx context.Context, caravanID, actorID string, resources map[string]int) error {
	req, err := resourceRequest(resources)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(ctx, caravanID)
	if err != nil {
		return err
	}
	if !c.HasAccess(actorID) {
		return fmt.Errorf("%w: %s is not a member of %s", ErrPermission, actorID, caravanID)
	}
	for _, typ := range slices.Sorted(maps.Keys(req)) {
		if have := c.ResourceAmount(typ); have < req[typ] {
			return fmt.Errorf("%w: %s holds %d %s, %d requested",
				ErrInsufficientResource, caravanID, have, typ, req[typ])
		}
	}
	for typ, q := range req {
		c.RemoveResource(typ, q)
	}
	r.logger.Info("resources withdrawn",
		zap.String("caravan", caravanID), zap.String("actor", actorID), zap.Int("total", req.Total()))
	return r.persistCaravan(ctx, c)
}
