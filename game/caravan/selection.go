package caravan

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

func selectionKey(actorID string) string { return "selection:" + actorID }

// AddSelection adds a chunk to the actor's pending territory selection. It
// reports false when the chunk was already selected.
func (r *Registry) AddSelection(ctx context.Context, actorID, world string, cx, cz int) (bool, error) {
	key := ChunkKey(world, cx, cz)
	ok, err := r.cache.SIsMember(ctx, selectionKey(actorID), key)
	if err != nil {
		return false, fmt.Errorf("reading selection of %s: %w", actorID, err)
	}
	if ok {
		return false, nil
	}
	if err := r.cache.SAdd(ctx, selectionKey(actorID), key); err != nil {
		return false, fmt.Errorf("updating selection of %s: %w", actorID, err)
	}
	return true, nil
}

// RemoveSelection drops a chunk from the selection. It reports false when
// the chunk was not selected.
func (r *Registry) RemoveSelection(ctx context.Context, actorID, world string, cx, cz int) (bool, error) {
	key := ChunkKey(world, cx, cz)
	ok, err := r.cache.SIsMember(ctx, selectionKey(actorID), key)
	if err != nil {
		return false, fmt.Errorf("reading selection of %s: %w", actorID, err)
	}
	if !ok {
		return false, nil
	}
	if err := r.cache.SRem(ctx, selectionKey(actorID), key); err != nil {
		return false, fmt.Errorf("updating selection of %s: %w", actorID, err)
	}
	return true, nil
}

// ClearSelection forgets the actor's selection.
func (r *Registry) ClearSelection(ctx context.Context, actorID string) error {
	if err := r.cache.Del(ctx, selectionKey(actorID)); err != nil {
		return fmt.Errorf("clearing selection of %s: %w", actorID, err)
	}
	return nil
}

// Selection returns the actor's selected chunk keys in sorted order.
func (r *Registry) Selection(ctx context.Context, actorID string) ([]string, error) {
	keys, err := r.cache.SMembers(ctx, selectionKey(actorID))
	if err != nil {
		return nil, fmt.Errorf("reading selection of %s: %w", actorID, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// CreateCaravanFromSelection creates a caravan over the actor's selected
// chunks and clears the selection on success.
func (r *Registry) CreateCaravanFromSelection(ctx context.Context, actorID, id, name string, pos Position) (*Caravan, error) {
	chunks, err := r.Selection(ctx, actorID)
	if err != nil {
		return nil, err
	}
	c, err := r.CreateCaravan(ctx, id, name, pos, chunks)
	if err != nil {
		return nil, err
	}
	if err := r.ClearSelection(ctx, actorID); err != nil {
		r.logger.Warn("selection not cleared", zap.String("actor", actorID), zap.Error(err))
	}
	return c, nil
}
