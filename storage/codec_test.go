package storage

import (
	"testing"
	"time"

	"github.com/mysterria/silkroad/game/caravan"
	"github.com/mysterria/silkroad/game/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func testCodec() *codec {
	return newCodec(item.NewCatalog(64, map[string]int{"ENDER_PEARL": 16}, false), nop())
}

func TestDecodeCaravan_LegacyDottedLayout(t *testing.T) {
	// Layout written by the old plugin: dotted location keys, camelCase,
	// owners and a type→quantity inventory.
	data := []byte(`
id: alpha
name: Alpha
location.world: world
location.x: 10.5
location.y: 64
location.z: -3
location.yaw: 90
location.pitch: 0
createdAt: 1700000000000
active: true
inventory:
  IRON_INGOT: 12
  diamond: 3
  "bad type!": 4
territory:
  - "world:0:0"
  - "broken"
owners:
  - "11111111-1111-1111-1111-111111111111"
members:
  - "22222222-2222-2222-2222-222222222222"
`)
	c, err := testCodec().decodeCaravan(data, "alpha")
	require.NoError(t, err)

	assert.Equal(t, "alpha", c.ID)
	assert.Equal(t, "Alpha", c.Name)
	assert.Equal(t, caravan.Position{World: "world", X: 10.5, Y: 64, Z: -3, Yaw: 90}, c.Position)
	assert.Equal(t, int64(1700000000000), c.CreatedAt.UnixMilli())
	assert.True(t, c.Active)

	assert.Equal(t, 0, c.Inventory.Len())
	assert.Equal(t, 12, c.ResourceAmount("IRON_INGOT"))
	assert.Equal(t, 3, c.ResourceAmount("DIAMOND"))
	assert.Len(t, c.Legacy, 2)

	assert.Equal(t, []string{"world:0:0"}, c.TerritoryList())
	assert.Equal(t, []string{
		"11111111-1111-1111-1111-111111111111",
		"22222222-2222-2222-2222-222222222222",
	}, c.MemberList())
}

func TestDecodeCaravan_NestedPositionKey(t *testing.T) {
	data := []byte(`
id: beta
location:
  world: nether
  x: 1
  y: 2
  z: 3
`)
	c, err := testCodec().decodeCaravan(data, "beta")
	require.NoError(t, err)
	assert.Equal(t, "nether", c.Position.World)
	assert.Equal(t, 3.0, c.Position.Z)
	assert.True(t, c.Active, "active defaults to true")
	assert.Equal(t, "beta", c.Name, "name falls back to id")
}

func TestDecodeCaravan_FlatPosition(t *testing.T) {
	data := []byte(`{"id":"gamma","world":"end","x":5,"y":6,"z":7,"active":false}`)
	c, err := testCodec().decodeCaravan(data, "gamma")
	require.NoError(t, err)
	assert.Equal(t, caravan.Position{World: "end", X: 5, Y: 6, Z: 7}, c.Position)
	assert.False(t, c.Active)
}

func TestDecodeCaravan_StackListAndOverflow(t *testing.T) {
	data := []byte(`
id: delta
position: {world: w, x: 0, y: 0, z: 0}
inventory:
  - {type: ENDER_PEARL, quantity: 40}
  - {type: STONE, quantity: 10, meta: "AQID"}
  - {type: "not valid", quantity: 1}
`)
	c, err := testCodec().decodeCaravan(data, "delta")
	require.NoError(t, err)

	// 40 pearls exceed the max stack of 16 and spill into the legacy map.
	assert.Equal(t, 40, c.ResourceAmount("ENDER_PEARL"))
	require.Equal(t, 1, c.Inventory.Len())
	assert.Equal(t, item.Stack{Type: "STONE", Quantity: 10, Meta: []byte{1, 2, 3}}, c.Inventory.Stacks()[0])
}

func TestDecodeCaravan_Corrupt(t *testing.T) {
	_, err := testCodec().decodeCaravan([]byte("{id: alpha, name: [unclosed"), "x")
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = testCodec().decodeCaravan([]byte("- just\n- a list\n"), "x")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeTransfer_LegacyLayout(t *testing.T) {
	data := []byte(`
id: t-1
sourceCaravanId: alpha
destinationCaravanId: beta
playerId: "11111111-1111-1111-1111-111111111111"
playerName: Steve
createdAt: 1700000000000
deliveryTime: 1700000400000
distance: 100.0
cost: 20
status: IN_TRANSIT
resources:
  IRON_INGOT: 5
`)
	tr, err := testCodec().decodeTransfer(data, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", tr.SourceCaravanID)
	assert.Equal(t, "beta", tr.DestinationCaravanID)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", tr.InitiatorID)
	assert.Equal(t, "Steve", tr.InitiatorName)
	assert.Equal(t, 400*time.Second, tr.DeliveryTime.Sub(tr.CreatedAt))
	assert.Equal(t, 100.0, tr.Distance)
	assert.Equal(t, 20, tr.Cost)
	assert.Equal(t, caravan.StatusInTransit, tr.Status)
	assert.True(t, tr.IsLegacy())
	assert.Equal(t, 5, tr.Resources.Amount("IRON_INGOT"))
}

func TestDecodeTransfer_BadStatus(t *testing.T) {
	data := []byte("id: t\nsource_caravan_id: a\ndestination_caravan_id: b\nstatus: LOST\n")
	_, err := testCodec().decodeTransfer(data, "t")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeTransfer_MissingCaravans(t *testing.T) {
	_, err := testCodec().decodeTransfer([]byte("id: t\nstatus: DELIVERED\n"), "t")
	assert.ErrorIs(t, err, ErrCorrupt)
}
