package caravan

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mysterria/silkroad/audit"
	"github.com/mysterria/silkroad/game/item"
	"github.com/mysterria/silkroad/plugin/hook"
	"go.uber.org/zap"
)

// ErrNotDelivered is returned when claiming a transfer that has not arrived.
var ErrNotDelivered = fmt.Errorf("%w: transfer not delivered", ErrValidation)

func claimLockKey(transferID string) string { return "lock:transfer:" + transferID }

// lockClaim takes the per-transfer claim lock under a fresh owner token. The
// returned func releases it only while that token still holds the lock.
func (r *Registry) lockClaim(ctx context.Context, transferID string) (func(), error) {
	key := claimLockKey(transferID)
	owner := uuid.NewString()
	ok, err := r.cache.SetNX(ctx, key, owner, r.cfg.ClaimLockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: claim lock for %s: %v", ErrPersistence, transferID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s is already being claimed", ErrValidation, transferID)
	}
	return func() {
		released, err := r.cache.Release(context.WithoutCancel(ctx), key, owner)
		if err != nil {
			r.logger.Warn("claim lock release failed", zap.String("transfer", transferID), zap.Error(err))
		} else if !released {
			r.logger.Warn("claim lock expired before release", zap.String("transfer", transferID))
		}
	}, nil
}

// claimable returns the live transfer if actorID may claim it. Callers hold
// r.mu.
func (r *Registry) claimable(ctx context.Context, transferID, actorID string) (*Transfer, error) {
	t, ok := r.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", ErrNotFound, transferID)
	}
	if t.Status != StatusDelivered {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDelivered, transferID, t.Status)
	}
	if t.InitiatorID == actorID {
		return t, nil
	}
	if dst, err := r.lookup(ctx, t.DestinationCaravanID); err == nil && dst.HasAccess(actorID) {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s cannot claim transfer %s", ErrPermission, actorID, transferID)
}

// splitItems returns t's items split to the max stack size. Records written
// before oversized stacks were rejected may still carry them.
func (r *Registry) splitItems(t *Transfer) []item.Stack {
	var out []item.Stack
	for _, s := range t.Items {
		out = append(out, r.cfg.Catalog.Split(s, s.Quantity)...)
	}
	return out
}

// forget drops a claimed transfer from the active set and records the claim.
// Callers hold r.mu.
func (r *Registry) forget(t *Transfer, actorID, target string) {
	delete(r.transfers, t.ID)
	r.audit(audit.Entry{
		Action:     audit.ActionTransferClaimed,
		TransferID: t.ID,
		CaravanID:  t.DestinationCaravanID,
		ActorID:    actorID,
		Detail:     map[string]any{"target": target},
	})
	r.logger.Info("transfer claimed",
		zap.String("transfer", t.ID),
		zap.String("actor", actorID),
		zap.String("target", target))
}

// ClaimToInventory credits a delivered transfer to the actor's holding and
// deletes it. Legacy resources arrive as stacks split by max stack size.
// Nothing changes unless every stack fits.
func (r *Registry) ClaimToInventory(ctx context.Context, transferID, actorID string, holding Holding) error {
	unlock, err := r.lockClaim(ctx, transferID)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.claimable(ctx, transferID, actorID)
	if err != nil {
		return err
	}
	goods := append(r.splitItems(t), t.Resources.Stacks(r.cfg.Catalog)...)
	if !holding.CanAddAll(goods) {
		return fmt.Errorf("%w: inventory cannot hold transfer %s", ErrCapacity, transferID)
	}
	if err := r.vet(ctx, hook.BeforeTransferClaim, ClaimAttempt{Transfer: t.Clone(), ActorID: actorID, Target: "inventory"}); err != nil {
		return err
	}
	if err := r.store.DeleteTransfer(ctx, t.ID); err != nil {
		return fmt.Errorf("%w: deleting transfer %s: %v", ErrPersistence, t.ID, err)
	}
	if !holding.AddAll(goods) {
		_ = r.persistTransfer(ctx, t)
		return fmt.Errorf("%w: inventory cannot hold transfer %s", ErrCapacity, transferID)
	}
	r.forget(t, actorID, "inventory")
	return nil
}

// ClaimToCaravan credits a delivered transfer to a caravan the actor can
// access, usually its destination, and deletes it. Items need free slots in
// that caravan; legacy resources go to its legacy inventory.
func (r *Registry) ClaimToCaravan(ctx context.Context, transferID, caravanID, actorID string) error {
	unlock, err := r.lockClaim(ctx, transferID)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.claimable(ctx, transferID, actorID)
	if err != nil {
		return err
	}
	target, err := r.lookup(ctx, caravanID)
	if err != nil {
		return err
	}
	if !target.HasAccess(actorID) {
		return fmt.Errorf("%w: %s is not a member of %s", ErrPermission, actorID, caravanID)
	}

	inv := target.Inventory.Clone()
	if !inv.AddAll(r.splitItems(t)) {
		return fmt.Errorf("%w: caravan %s cannot hold transfer %s", ErrCapacity, caravanID, transferID)
	}
	legacy := target.Legacy.Clone()
	for typ, q := range t.Resources {
		legacy.Add(typ, q)
	}
	if err := r.vet(ctx, hook.BeforeTransferClaim, ClaimAttempt{Transfer: t.Clone(), ActorID: actorID, Target: caravanID}); err != nil {
		return err
	}
	if err := r.store.DeleteTransfer(ctx, t.ID); err != nil {
		return fmt.Errorf("%w: deleting transfer %s: %v", ErrPersistence, t.ID, err)
	}
	target.Inventory = inv
	target.Legacy = legacy
	r.forget(t, actorID, caravanID)
	_ = r.persistCaravan(ctx, target)
	return nil
}
