package caravan

import (
	"context"

	"github.com/mysterria/silkroad/audit"
	"github.com/mysterria/silkroad/game/item"
)

// Store persists one record per caravan and per transfer. Missing records
// are reported as ErrNotFound.
type Store interface {
	SaveCaravan(ctx context.Context, c *Caravan) error
	LoadCaravan(ctx context.Context, id string) (*Caravan, error)
	DeleteCaravan(ctx context.Context, id string) error
	CaravanIDs(ctx context.Context) ([]string, error)

	SaveTransfer(ctx context.Context, t *Transfer) error
	LoadTransfer(ctx context.Context, id string) (*Transfer, error)
	DeleteTransfer(ctx context.Context, id string) error
	TransferIDs(ctx context.Context) ([]string, error)
}

// TownValidation is the verdict on a set of territory chunks.
type TownValidation struct {
	Success   bool
	GroupID   string // empty when the chunks are not tied to a group
	GroupName string
	Reason    string
}

// TownValidator resolves territory chunks to the town that claims them.
type TownValidator interface {
	Validate(ctx context.Context, chunkKeys []string) (TownValidation, error)
	GroupMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// CurrencySource is the opaque shard balance paid for transfers.
type CurrencySource interface {
	Balance(ctx context.Context, actorID string) (int, error)
	Consume(ctx context.Context, actorID string, amount int) (bool, error)
}

// Notifier delivers a message to an actor if it can. It must not block.
type Notifier interface {
	Tell(actorID, message string)
}

// Auditor records lifecycle events.
type Auditor interface {
	Log(entry audit.Entry)
}

// Hooks lets hosts observe or veto lifecycle events. *hook.Center
// implements it.
type Hooks interface {
	Fire(ctx context.Context, event string, payload any) error
}

// Holding is an actor's personal inventory. *item.Inventory implements it.
type Holding interface {
	CanAddAll(stacks []item.Stack) bool
	AddAll(stacks []item.Stack) bool
	ItemStackAmount(pattern item.Stack) int
	RemoveItemStack(pattern item.Stack, amount int) bool
}

// Actor identifies whoever triggers an operation.
type Actor struct {
	ID   string
	Name string
}

type nopNotifier struct{}

func (nopNotifier) Tell(string, string) {}

type nopAuditor struct{}

func (nopAuditor) Log(audit.Entry) {}

type nopHooks struct{}

func (nopHooks) Fire(context.Context, string, any) error { return nil }
