package caravan

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/mysterria/silkroad/audit"
	"github.com/mysterria/silkroad/game/item"
	"github.com/mysterria/silkroad/plugin/hook"
	"go.uber.org/zap"
)

// aggregate folds similar stacks of a request into one entry each, keeping
// first-seen order.
func aggregate(stacks []item.Stack) []item.Stack {
	var out []item.Stack
next:
	for _, s := range stacks {
		for i := range out {
			if out[i].IsSimilar(s) {
				out[i].Quantity += s.Quantity
				continue next
			}
		}
		out = append(out, s.Clone())
	}
	return out
}

// endpoints resolves source and destination of a new transfer. Callers hold
// r.mu.
func (r *Registry) endpoints(ctx context.Context, sourceID, destID string) (*Caravan, *Caravan, error) {
	if sourceID == destID {
		return nil, nil, fmt.Errorf("%w: source and destination are the same caravan", ErrValidation)
	}
	src, err := r.lookup(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	dst, err := r.lookup(ctx, destID)
	if err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

// charge checks the balance and takes cost shards. Nothing is taken on
// failure. Callers hold r.mu.
func (r *Registry) charge(ctx context.Context, initiator Actor, cost int) error {
	balance, err := r.currency.Balance(ctx, initiator.ID)
	if err != nil {
		return fmt.Errorf("%w: reading balance of %s: %v", ErrPersistence, initiator.ID, err)
	}
	r.debug("transfer cost computed",
		zap.String("actor", initiator.ID), zap.Int("cost", cost), zap.Int("balance", balance))
	if balance < cost {
		return fmt.Errorf("%w: need %d shards, have %d", ErrInsufficientFunds, cost, balance)
	}
	ok, err := r.currency.Consume(ctx, initiator.ID, cost)
	if err != nil {
		return fmt.Errorf("%w: charging %s: %v", ErrPersistence, initiator.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: could not take %d shards", ErrInsufficientFunds, cost)
	}
	r.debug("transfer cost paid", zap.String("actor", initiator.ID), zap.Int("cost", cost))
	return nil
}

// dispatch puts a freshly built transfer in transit and records it. Callers
// hold r.mu and have already debited the source.
func (r *Registry) dispatch(ctx context.Context, t *Transfer, src *Caravan) *Transfer {
	_ = t.transition(StatusInTransit)
	r.transfers[t.ID] = t

	_ = r.persistCaravan(ctx, src)
	_ = r.persistTransfer(ctx, t)

	r.audit(audit.Entry{
		Action:     audit.ActionTransferCreated,
		TransferID: t.ID,
		CaravanID:  t.SourceCaravanID,
		ActorID:    t.InitiatorID,
		Detail: map[string]any{
			"destination": t.DestinationCaravanID,
			"distance":    t.Distance,
			"cost":        t.Cost,
			"stacks":      len(t.Items),
			"resources":   t.Resources.Total(),
		},
	})
	r.logger.Info("transfer created",
		zap.String("transfer", t.ID),
		zap.String("source", t.SourceCaravanID),
		zap.String("destination", t.DestinationCaravanID),
		zap.Int("cost", t.Cost),
		zap.Time("delivery", t.DeliveryTime))
	return t.Clone()
}

func (r *Registry) newTransfer(initiator Actor, src, dst *Caravan, distance float64, cost int) *Transfer {
	created := r.clock()
	return &Transfer{
		ID:                   uuid.NewString(),
		SourceCaravanID:      src.ID,
		DestinationCaravanID: dst.ID,
		InitiatorID:          initiator.ID,
		InitiatorName:        initiator.Name,
		CreatedAt:            created,
		DeliveryTime:         created.Add(r.cfg.Cost.DeliveryDuration(distance)),
		Distance:             distance,
		Cost:                 cost,
		Status:               StatusPending,
	}
}

// CreateTransfer sends stacks from the source caravan to the destination.
// Everything is validated before anything changes: on error neither the
// source caravan nor the initiator's balance is touched.
func (r *Registry) CreateTransfer(ctx context.Context, initiator Actor, sourceID, destID string, stacks []item.Stack) (*Transfer, error) {
	if len(stacks) == 0 {
		return nil, fmt.Errorf("%w: nothing to transfer", ErrValidation)
	}
	for _, s := range stacks {
		if s.Quantity <= 0 || s.Type == "" {
			return nil, fmt.Errorf("%w: invalid stack %s x%d", ErrValidation, s.Type, s.Quantity)
		}
		if max := r.cfg.Catalog.MaxStack(s.Type); s.Quantity > max {
			return nil, fmt.Errorf("%w: stack of %d %s exceeds max stack size %d",
				ErrValidation, s.Quantity, s.Type, max)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	src, dst, err := r.endpoints(ctx, sourceID, destID)
	if err != nil {
		return nil, err
	}
	wanted := aggregate(stacks)
	for _, w := range wanted {
		if have := src.ItemStackAmount(w); have < w.Quantity {
			return nil, fmt.Errorf("%w: %s holds %d %s, %d requested",
				ErrInsufficientResource, sourceID, have, w.Type, w.Quantity)
		}
	}

	distance := src.DistanceTo(dst)
	cost := r.cfg.Cost.Cost(distance, len(stacks))

	trial := src.Inventory.Clone()
	for _, w := range wanted {
		if !trial.RemoveItemStack(w, w.Quantity) {
			return nil, fmt.Errorf("%w: %s lacks %s", ErrInsufficientResource, sourceID, w.Type)
		}
	}
	if err := r.vet(ctx, hook.BeforeTransferCreate, TransferProposal{
		Initiator:     initiator,
		SourceID:      sourceID,
		DestinationID: destID,
		Items:         item.CloneStacks(stacks),
		Distance:      distance,
		Cost:          cost,
	}); err != nil {
		return nil, err
	}
	if err := r.charge(ctx, initiator, cost); err != nil {
		return nil, err
	}
	src.Inventory = trial

	t := r.newTransfer(initiator, src, dst, distance, cost)
	t.Items = item.CloneStacks(stacks)
	return r.dispatch(ctx, t, src), nil
}

// CreateLegacyTransfer sends type→quantity resources from the source
// caravan's legacy inventory, priced per item instead of per stack.
func (r *Registry) CreateLegacyTransfer(ctx context.Context, initiator Actor, sourceID, destID string, resources map[string]int) (*Transfer, error) {
	req, err := resourceRequest(resources)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	src, dst, err := r.endpoints(ctx, sourceID, destID)
	if err != nil {
		return nil, err
	}
	for _, typ := range slices.Sorted(maps.Keys(req)) {
		if have := src.ResourceAmount(typ); have < req[typ] {
			return nil, fmt.Errorf("%w: %s holds %d %s, %d requested",
				ErrInsufficientResource, sourceID, have, typ, req[typ])
		}
	}

	distance := src.DistanceTo(dst)
	cost := r.cfg.Cost.LegacyCost(distance, req.Total())

	trial := src.Legacy.Clone()
	for typ, q := range req {
		trial.Remove(typ, q)
	}
	if err := r.vet(ctx, hook.BeforeTransferCreate, TransferProposal{
		Initiator:     initiator,
		SourceID:      sourceID,
		DestinationID: destID,
		Resources:     req.Clone(),
		Distance:      distance,
		Cost:          cost,
	}); err != nil {
		return nil, err
	}
	if err := r.charge(ctx, initiator, cost); err != nil {
		return nil, err
	}
	src.Legacy = trial

	t := r.newTransfer(initiator, src, dst, distance, cost)
	t.Resources = req
	return r.dispatch(ctx, t, src), nil
}

// Transfer returns a copy of an active transfer.
func (r *Registry) Transfer(id string) (*Transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// ActorTransfers returns the active transfers actorID started, soonest
// delivery first.
func (r *Registry) ActorTransfers(actorID string) []*Transfer {
	return r.filterTransfers(func(t *Transfer) bool { return t.InitiatorID == actorID })
}

// IncomingTransfers returns active transfers heading to caravans actorID
// can access.
func (r *Registry) IncomingTransfers(actorID string) []*Transfer {
	return r.filterTransfers(func(t *Transfer) bool {
		dst, ok := r.caravans[t.DestinationCaravanID]
		return ok && dst.HasAccess(actorID)
	})
}

// DeliveredTransfers returns actorID's delivered, unclaimed transfers.
func (r *Registry) DeliveredTransfers(actorID string) []*Transfer {
	return r.filterTransfers(func(t *Transfer) bool {
		return t.InitiatorID == actorID && t.Status == StatusDelivered
	})
}

// DeliveredTransfersForCaravan returns the delivered transfers waiting at a
// caravan. It is empty unless actorID can access that caravan.
func (r *Registry) DeliveredTransfersForCaravan(caravanID, actorID string) []*Transfer {
	return r.filterTransfers(func(t *Transfer) bool {
		if t.DestinationCaravanID != caravanID || t.Status != StatusDelivered {
			return false
		}
		dst, ok := r.caravans[caravanID]
		return ok && dst.HasAccess(actorID)
	})
}

func (r *Registry) filterTransfers(keep func(t *Transfer) bool) []*Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Transfer
	for _, t := range r.transfers {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	sortByDelivery(out)
	return out
}

func sortByDelivery(ts []*Transfer) {
	slices.SortFunc(ts, func(a, b *Transfer) int {
		if c := a.DeliveryTime.Compare(b.DeliveryTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
