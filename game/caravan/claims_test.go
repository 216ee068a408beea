package caravan_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mysterria/silkroad/audit"
	"github.com/mysterria/silkroad/game/caravan"
	"github.com/mysterria/silkroad/game/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delivered(t *testing.T, h *harness) *caravan.Transfer {
	t.Helper()
	tr := shipped(t, h)
	rep := h.reg.Settle(context.Background(), tr.DeliveryTime)
	require.Equal(t, 1, rep.Delivered)
	return tr
}

func bag(h *harness) *item.Inventory {
	return item.NewInventory(item.DefaultSlots, h.catalog)
}

func TestClaimToInventory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)
	holding := bag(h)

	require.NoError(t, h.reg.ClaimToInventory(ctx, tr.ID, "alice", holding))
	assert.Equal(t, 5, holding.ItemStackAmount(item.NewStack("STONE", 1)))

	_, ok := h.reg.Transfer(tr.ID)
	assert.False(t, ok)
	_, err := h.store.LoadTransfer(ctx, tr.ID)
	assert.ErrorIs(t, err, caravan.ErrNotFound)
	assert.Contains(t, h.audits.actions(), audit.ActionTransferClaimed)

	err = h.reg.ClaimToInventory(ctx, tr.ID, "alice", holding)
	assert.ErrorIs(t, err, caravan.ErrNotFound)
	assert.Equal(t, 5, holding.ItemStackAmount(item.NewStack("STONE", 1)))
}

func TestClaim_StrangerIsRefused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)
	holding := bag(h)

	err := h.reg.ClaimToInventory(ctx, tr.ID, "mallory", holding)
	assert.ErrorIs(t, err, caravan.ErrPermission)
	assert.Zero(t, holding.Len())

	got, ok := h.reg.Transfer(tr.ID)
	require.True(t, ok)
	assert.Equal(t, caravan.StatusDelivered, got.Status)
}

func TestClaim_DestinationMemberMayClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)
	require.NoError(t, h.reg.AddMember(ctx, "b", "bob"))

	holding := bag(h)
	require.NoError(t, h.reg.ClaimToInventory(ctx, tr.ID, "bob", holding))
	assert.Equal(t, 5, holding.ItemStackAmount(item.NewStack("STONE", 1)))
}

func TestClaim_NotDelivered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := shipped(t, h)

	err := h.reg.ClaimToInventory(ctx, tr.ID, "alice", bag(h))
	assert.ErrorIs(t, err, caravan.ErrNotDelivered)
	assert.ErrorIs(t, err, caravan.ErrValidation)

	err = h.reg.ClaimToCaravan(ctx, tr.ID, "b", "alice")
	assert.ErrorIs(t, err, caravan.ErrNotDelivered)
	_, ok := h.reg.Transfer(tr.ID)
	assert.True(t, ok)
}

func TestClaimToInventory_NoRoomChangesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)
	holding := item.NewInventory(1, h.catalog)
	require.True(t, holding.AddItemStack(item.NewStack("DIRT", 1)))

	err := h.reg.ClaimToInventory(ctx, tr.ID, "alice", holding)
	assert.ErrorIs(t, err, caravan.ErrCapacity)
	assert.Equal(t, 1, holding.Len())

	_, ok := h.reg.Transfer(tr.ID)
	assert.True(t, ok)
	_, err = h.store.LoadTransfer(ctx, tr.ID)
	assert.NoError(t, err)
}

func TestClaimToInventory_LegacyResourcesBecomeStacks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.caravanAt(t, "a", 0)
	h.caravanAt(t, "b", 10)
	require.NoError(t, h.reg.UpdateCaravan(ctx, "a", func(c *caravan.Caravan) error {
		c.AddResource("ENDER_PEARL", 40)
		return nil
	}))
	h.wallet.set("alice", 100)
	tr, err := h.reg.CreateLegacyTransfer(ctx, alice, "a", "b", map[string]int{"ENDER_PEARL": 40})
	require.NoError(t, err)
	h.reg.Settle(ctx, tr.DeliveryTime)

	holding := bag(h)
	require.NoError(t, h.reg.ClaimToInventory(ctx, tr.ID, "alice", holding))
	assert.Equal(t, 40, holding.ItemStackAmount(item.NewStack("ENDER_PEARL", 1)))
	assert.Equal(t, 3, holding.Len(), "16+16+8")
}

func TestClaimToCaravan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)

	require.NoError(t, h.reg.ClaimToCaravan(ctx, tr.ID, "b", "alice"))
	assert.Equal(t, 5, h.stackAmount(t, "b", "STONE"))
	_, ok := h.reg.Transfer(tr.ID)
	assert.False(t, ok)

	stored, err := h.store.LoadCaravan(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.ItemStackAmount(item.NewStack("STONE", 1)))

	err = h.reg.ClaimToCaravan(ctx, tr.ID, "b", "alice")
	assert.ErrorIs(t, err, caravan.ErrNotFound)
}

func TestClaimToCaravan_RequiresTargetAccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)
	_, err := h.reg.CreateCaravan(ctx, "private", "P", caravan.Position{World: "world"}, nil)
	require.NoError(t, err)

	err = h.reg.ClaimToCaravan(ctx, tr.ID, "private", "alice")
	assert.ErrorIs(t, err, caravan.ErrPermission)
	err = h.reg.ClaimToCaravan(ctx, tr.ID, "ghost", "alice")
	assert.ErrorIs(t, err, caravan.ErrNotFound)

	_, ok := h.reg.Transfer(tr.ID)
	assert.True(t, ok)
}

func TestClaimToCaravan_FullCaravan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)
	require.NoError(t, h.reg.UpdateCaravan(ctx, "b", func(c *caravan.Caravan) error {
		for i := 0; i < caravan.MaxSlots; i++ {
			c.AddItemStack(item.Stack{Type: "DIRT", Quantity: 1, Meta: []byte{byte(i)}})
		}
		return nil
	}))

	err := h.reg.ClaimToCaravan(ctx, tr.ID, "b", "alice")
	assert.ErrorIs(t, err, caravan.ErrCapacity)
	assert.Equal(t, 0, h.stackAmount(t, "b", "STONE"))
	_, ok := h.reg.Transfer(tr.ID)
	assert.True(t, ok)
}

func TestClaim_LockHeldElsewhere(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)
	ok, err := h.cache.SetNX(ctx, "lock:transfer:"+tr.ID, "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = h.reg.ClaimToInventory(ctx, tr.ID, "alice", bag(h))
	assert.ErrorIs(t, err, caravan.ErrValidation)
	_, found := h.reg.Transfer(tr.ID)
	assert.True(t, found)

	require.NoError(t, h.cache.Del(ctx, "lock:transfer:"+tr.ID))
	assert.NoError(t, h.reg.ClaimToInventory(ctx, tr.ID, "alice", bag(h)))
}

func TestClaim_ConcurrentClaimsCreditOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	bags := make([]*item.Inventory, 8)
	for i := range bags {
		bags[i] = bag(h)
		wg.Add(1)
		go func(holding *item.Inventory) {
			defer wg.Done()
			if h.reg.ClaimToInventory(ctx, tr.ID, "alice", holding) == nil {
				won.Add(1)
			}
		}(bags[i])
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	total := 0
	for _, b := range bags {
		total += b.ItemStackAmount(item.NewStack("STONE", 1))
	}
	assert.Equal(t, 5, total)
}

func TestClaimToInventory_SplitsOversizedStoredStack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.caravanAt(t, "a", 0)
	h.caravanAt(t, "b", 100)
	old := caravan.Transfer{
		ID:                   "old",
		SourceCaravanID:      "a",
		DestinationCaravanID: "b",
		InitiatorID:          "alice",
		Items:                []item.Stack{{Type: "STONE", Quantity: 100}},
		CreatedAt:            h.clock.Now(),
		DeliveryTime:         h.clock.Now(),
		Status:               caravan.StatusDelivered,
	}
	require.NoError(t, h.store.SaveTransfer(ctx, &old))

	reg := h.open()
	require.NoError(t, reg.Load(ctx))
	holding := bag(h)
	require.NoError(t, reg.ClaimToInventory(ctx, "old", "alice", holding))
	assert.Equal(t, 100, holding.ItemStackAmount(item.NewStack("STONE", 1)))
	assert.Equal(t, 2, holding.Len(), "64+36")
}

func TestClaimToCaravan_SaveFailureStillClaims(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)
	h.store.failSaves.Store(true)

	require.NoError(t, h.reg.ClaimToCaravan(ctx, tr.ID, "b", "alice"))
	assert.Equal(t, 5, h.stackAmount(t, "b", "STONE"))
	_, ok := h.reg.Transfer(tr.ID)
	assert.False(t, ok)

	err := h.reg.ClaimToCaravan(ctx, tr.ID, "b", "alice")
	assert.ErrorIs(t, err, caravan.ErrNotFound)

	h.store.failSaves.Store(false)
	require.NoError(t, h.reg.Close(ctx))
	stored, err := h.store.LoadCaravan(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.ItemStackAmount(item.NewStack("STONE", 1)))
}

func TestClaim_ReleasesLockAfterClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)

	require.NoError(t, h.reg.ClaimToInventory(ctx, tr.ID, "alice", bag(h)))
	ok, err := h.cache.SetNX(ctx, "lock:transfer:"+tr.ID, "next", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
