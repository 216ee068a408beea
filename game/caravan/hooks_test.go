package caravan_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/mysterria/silkroad/game/caravan"
	"github.com/mysterria/silkroad/game/item"
	"github.com/mysterria/silkroad/plugin/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func veto(reason string) hook.Fn {
	return func(context.Context, string, any) error {
		return fmt.Errorf("%w: %s", hook.ErrVeto, reason)
	}
}

func TestHooks_VetoCaravanCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var seen caravan.CaravanProposal
	h.hooks.Register(hook.BeforeCaravanCreate, 0, "spy", func(_ context.Context, _ string, p any) error {
		seen = p.(caravan.CaravanProposal)
		return nil
	})
	h.hooks.Register(hook.BeforeCaravanCreate, 1, "ban", veto("no caravans today"))

	_, err := h.reg.CreateCaravan(ctx, "a", "Alpha", caravan.Position{World: "world"}, nil)
	assert.ErrorIs(t, err, caravan.ErrValidation)
	assert.ErrorIs(t, err, hook.ErrVeto)
	assert.Equal(t, "Alpha", seen.Name)
	assert.Empty(t, h.reg.AllCaravans())
	_, err = h.store.LoadCaravan(ctx, "a")
	assert.ErrorIs(t, err, caravan.ErrNotFound)
}

func TestHooks_VetoTransferChangesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.caravanAt(t, "a", 0, item.NewStack("STONE", 10))
	h.caravanAt(t, "b", 100)
	h.wallet.set("alice", 100)

	var seen caravan.TransferProposal
	h.hooks.Register(hook.BeforeTransferCreate, 0, "border", func(_ context.Context, _ string, p any) error {
		seen = p.(caravan.TransferProposal)
		return fmt.Errorf("%w: border closed", hook.ErrVeto)
	})

	_, err := h.reg.CreateTransfer(ctx, alice, "a", "b", []item.Stack{item.NewStack("STONE", 4)})
	assert.ErrorIs(t, err, caravan.ErrValidation)
	assert.Contains(t, err.Error(), "border closed")
	assert.Equal(t, 12, seen.Cost)
	assert.Equal(t, "b", seen.DestinationID)

	assert.Equal(t, 10, h.stackAmount(t, "a", "STONE"))
	assert.Equal(t, 100, h.wallet.get("alice"))
	assert.Empty(t, h.reg.ActorTransfers("alice"))

	h.hooks.UnregisterAll("border")
	_, err = h.reg.CreateTransfer(ctx, alice, "a", "b", []item.Stack{item.NewStack("STONE", 4)})
	assert.NoError(t, err)
}

func TestHooks_VetoClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := delivered(t, h)
	h.hooks.Register(hook.BeforeTransferClaim, 0, "customs", veto("inspection pending"))

	holding := bag(h)
	err := h.reg.ClaimToInventory(ctx, tr.ID, "alice", holding)
	assert.ErrorIs(t, err, hook.ErrVeto)
	assert.Zero(t, holding.Len())
	err = h.reg.ClaimToCaravan(ctx, tr.ID, "b", "alice")
	assert.ErrorIs(t, err, hook.ErrVeto)

	_, ok := h.reg.Transfer(tr.ID)
	assert.True(t, ok)
}

func TestHooks_AfterSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []string
	)
	spy := func(_ context.Context, event string, p any) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event+":"+p.(*caravan.Transfer).ID)
		return nil
	}
	h.hooks.Register(hook.AfterTransferDelivered, 0, "spy", spy)
	h.hooks.Register(hook.AfterTransferFailed, 0, "spy", spy)

	tr := shipped(t, h)
	h.caravanAt(t, "c", 50)
	lost, err := h.reg.CreateTransfer(ctx, alice, "a", "c", []item.Stack{item.NewStack("STONE", 1)})
	require.NoError(t, err)
	_, err = h.reg.RemoveCaravan(ctx, "c")
	require.NoError(t, err)

	rep := h.reg.Settle(ctx, tr.DeliveryTime)
	assert.Equal(t, caravan.SettleReport{Delivered: 1, Failed: 1}, rep)
	assert.ElementsMatch(t, []string{
		hook.AfterTransferDelivered + ":" + tr.ID,
		hook.AfterTransferFailed + ":" + lost.ID,
	}, events)
}
