package caravan

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RefreshMembersFromGroup replaces the caravan's members with its owning
// town's roster. It reports false when there is no validator or the caravan
// has no owning town.
func (r *Registry) RefreshMembersFromGroup(ctx context.Context, caravanID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(ctx, caravanID)
	if err != nil {
		return false, err
	}
	return r.refreshMembers(ctx, c)
}

// RefreshAllMembersFromGroups refreshes every loaded town-owned caravan and
// returns how many were refreshed.
func (r *Registry) RefreshAllMembersFromGroups(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.towns == nil {
		r.logger.Info("no town validator, member refresh skipped")
		return 0
	}
	n := 0
	for _, c := range r.sortedCaravans() {
		ok, err := r.refreshMembers(ctx, c)
		if err != nil {
			r.logger.Warn("member refresh failed", zap.String("caravan", c.ID), zap.Error(err))
		}
		if ok {
			n++
		}
	}
	r.logger.Info("caravan members refreshed from towns", zap.Int("caravans", n))
	return n
}

// refreshMembers is called with r.mu held.
func (r *Registry) refreshMembers(ctx context.Context, c *Caravan) (bool, error) {
	if r.towns == nil || c.OwningGroup == nil {
		return false, nil
	}
	ids, err := r.towns.GroupMemberIDs(ctx, c.OwningGroup.ID)
	if err != nil {
		return false, fmt.Errorf("roster of town %s: %w", c.OwningGroup.ID, err)
	}
	clear(c.Members)
	for _, id := range ids {
		c.AddMember(id)
	}
	r.logger.Info("caravan members refreshed",
		zap.String("caravan", c.ID),
		zap.String("town", c.OwningGroup.Name),
		zap.Int("members", len(ids)))
	// The roster is applied even if the write fails; Close retries it.
	_ = r.persistCaravan(ctx, c)
	return true, nil
}

// GroupMemberJoined adds actorID to every loaded caravan owned by groupID
// and returns how many caravans changed.
func (r *Registry) GroupMemberJoined(ctx context.Context, groupID, actorID string) int {
	return r.forGroup(ctx, groupID, func(c *Caravan) bool {
		if c.IsMember(actorID) {
			return false
		}
		c.AddMember(actorID)
		return true
	})
}

// GroupMemberLeft removes actorID from every loaded caravan owned by groupID
// and returns how many caravans changed.
func (r *Registry) GroupMemberLeft(ctx context.Context, groupID, actorID string) int {
	return r.forGroup(ctx, groupID, func(c *Caravan) bool {
		if !c.IsMember(actorID) {
			return false
		}
		c.RemoveMember(actorID)
		return true
	})
}

func (r *Registry) forGroup(ctx context.Context, groupID string, fn func(c *Caravan) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.sortedCaravans() {
		if c.OwningGroup == nil || c.OwningGroup.ID != groupID {
			continue
		}
		if fn(c) {
			_ = r.persistCaravan(ctx, c)
			n++
		}
	}
	return n
}
