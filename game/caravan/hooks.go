package caravan

import (
	"context"
	"fmt"

	"github.com/mysterria/silkroad/game/item"
)

// CaravanProposal is the payload of hook.BeforeCaravanCreate.
type CaravanProposal struct {
	ID        string
	Name      string
	Position  Position
	Territory []string
	Group     *Group
}

// TransferProposal is the payload of hook.BeforeTransferCreate. Cost and
// Distance are final; handlers can only accept or veto.
type TransferProposal struct {
	Initiator     Actor
	SourceID      string
	DestinationID string
	Items         []item.Stack
	Resources     item.Resources
	Distance      float64
	Cost          int
}

// ClaimAttempt is the payload of hook.BeforeTransferClaim. Target is
// "inventory" or the receiving caravan id.
type ClaimAttempt struct {
	Transfer *Transfer
	ActorID  string
	Target   string
}

// vet fires a Before* event. A veto becomes an ErrValidation. Callers hold
// r.mu.
func (r *Registry) vet(ctx context.Context, event string, payload any) error {
	if err := r.hooks.Fire(ctx, event, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
