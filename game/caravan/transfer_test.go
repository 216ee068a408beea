package caravan

import (
	"testing"
	"time"

	"github.com/mysterria/silkroad/game/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusInTransit, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusDelivered, false},
		{StatusInTransit, StatusDelivered, true},
		{StatusInTransit, StatusFailed, true},
		{StatusInTransit, StatusPending, false},
		{StatusDelivered, StatusInTransit, false},
		{StatusDelivered, StatusFailed, false},
		{StatusFailed, StatusDelivered, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransfer_TransitionRejectsBackward(t *testing.T) {
	tr := &Transfer{ID: "t1", Status: StatusDelivered}
	require.Error(t, tr.transition(StatusInTransit))
	assert.Equal(t, StatusDelivered, tr.Status)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("IN_TRANSIT")
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, s)

	_, err = ParseStatus("LOST")
	assert.Error(t, err)
}

func TestTransfer_ReadyAndRemaining(t *testing.T) {
	due := time.UnixMilli(10_000)
	tr := &Transfer{Status: StatusInTransit, DeliveryTime: due}

	assert.False(t, tr.IsReadyForDelivery(due.Add(-time.Millisecond)))
	assert.True(t, tr.IsReadyForDelivery(due))
	assert.Equal(t, 5*time.Second, tr.RemainingTime(due.Add(-5*time.Second)))
	assert.Zero(t, tr.RemainingTime(due.Add(time.Hour)))

	tr.Status = StatusDelivered
	assert.False(t, tr.IsReadyForDelivery(due))
}

func TestTransfer_CloneIsDeep(t *testing.T) {
	tr := &Transfer{
		ID:        "t1",
		Items:     []item.Stack{{Type: "STONE", Quantity: 4, Meta: []byte("x")}},
		Resources: item.Resources{"IRON_INGOT": 2},
	}
	cp := tr.Clone()
	cp.Items[0].Quantity = 9
	cp.Items[0].Meta[0] = 'y'
	cp.Resources["IRON_INGOT"] = 7

	assert.Equal(t, 4, tr.Items[0].Quantity)
	assert.Equal(t, []byte("x"), tr.Items[0].Meta)
	assert.Equal(t, 2, tr.Resources["IRON_INGOT"])
	assert.False(t, tr.IsLegacy())
	assert.True(t, (&Transfer{Resources: item.Resources{"A": 1}}).IsLegacy())
}
