package caravan

import (
	"fmt"
	"time"

	"github.com/mysterria/silkroad/game/item"
)

// Status is the lifecycle stage of a transfer.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// ParseStatus accepts the persisted status names.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusInTransit, StatusDelivered, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown transfer status %q", s)
}

// CanTransition reports whether s may move to next. Status never moves back.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInTransit || next == StatusFailed
	case StatusInTransit:
		return next == StatusDelivered || next == StatusFailed
	}
	return false
}

// Transfer moves goods from one caravan to another. Cost and DeliveryTime are
// fixed at creation.
type Transfer struct {
	ID                   string
	SourceCaravanID      string
	DestinationCaravanID string
	InitiatorID          string
	InitiatorName        string
	Items                []item.Stack
	Resources            item.Resources
	CreatedAt            time.Time
	DeliveryTime         time.Time
	Distance             float64
	Cost                 int
	Status               Status
}

// IsLegacy reports whether the transfer carries the type→quantity map form.
func (t *Transfer) IsLegacy() bool { return len(t.Items) == 0 && len(t.Resources) > 0 }

// IsReadyForDelivery reports whether the transfer is in transit and due.
func (t *Transfer) IsReadyForDelivery(now time.Time) bool {
	return t.Status == StatusInTransit && !now.Before(t.DeliveryTime)
}

// RemainingTime is zero once the delivery time has passed.
func (t *Transfer) RemainingTime(now time.Time) time.Duration {
	return max(0, t.DeliveryTime.Sub(now))
}

func (t *Transfer) transition(next Status) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("transfer %s: illegal transition %s -> %s", t.ID, t.Status, next)
	}
	t.Status = next
	return nil
}

// Clone returns a deep copy.
func (t *Transfer) Clone() *Transfer {
	out := *t
	out.Items = item.CloneStacks(t.Items)
	if t.Resources != nil {
		out.Resources = t.Resources.Clone()
	}
	return &out
}
