package caravan

import (
	"context"
	"errors"
	"time"

	"github.com/mysterria/silkroad/audit"
	"github.com/mysterria/silkroad/plugin/hook"
	"github.com/mysterria/silkroad/scheduler"
	"go.uber.org/zap"
)

const deliveredMessage = "Your caravan delivery has arrived and is ready to claim."

// SettleReport counts what one settlement pass did.
type SettleReport struct {
	Delivered int
	Failed    int
}

// settled is a transfer whose status changed during a pass, reported once
// the registry is unlocked.
type settled struct {
	event    string
	transfer *Transfer
}

// Settle promotes every in-transit transfer due at now. A transfer whose
// destination no longer exists fails and leaves the active set; the rest
// become DELIVERED and wait to be claimed. Initiators are notified and After*
// hooks fire once the registry lock is released.
func (r *Registry) Settle(ctx context.Context, now time.Time) SettleReport {
	var (
		report SettleReport
		done   []settled
	)

	r.mu.Lock()
	for _, t := range r.dueTransfers(now) {
		if _, err := r.lookup(ctx, t.DestinationCaravanID); err != nil {
			if !errors.Is(err, ErrNotFound) {
				r.logger.Warn("settlement deferred", zap.String("transfer", t.ID), zap.Error(err))
				continue
			}
			_ = t.transition(StatusFailed)
			_ = r.persistTransfer(ctx, t)
			delete(r.transfers, t.ID)
			report.Failed++
			r.audit(audit.Entry{
				Action:     audit.ActionTransferFailed,
				TransferID: t.ID,
				CaravanID:  t.DestinationCaravanID,
				ActorID:    t.InitiatorID,
				Error:      "destination caravan no longer exists",
			})
			r.logger.Warn("transfer failed, destination gone",
				zap.String("transfer", t.ID), zap.String("destination", t.DestinationCaravanID))
			done = append(done, settled{hook.AfterTransferFailed, t.Clone()})
			continue
		}

		_ = t.transition(StatusDelivered)
		_ = r.persistTransfer(ctx, t)
		report.Delivered++
		r.audit(audit.Entry{
			Action:     audit.ActionTransferDelivered,
			TransferID: t.ID,
			CaravanID:  t.DestinationCaravanID,
			ActorID:    t.InitiatorID,
		})
		r.logger.Info("transfer ready for claiming", zap.String("transfer", t.ID))
		done = append(done, settled{hook.AfterTransferDelivered, t.Clone()})
	}
	r.mu.Unlock()

	for _, s := range done {
		if s.event == hook.AfterTransferDelivered {
			r.notifier.Tell(s.transfer.InitiatorID, deliveredMessage)
		}
		_ = r.hooks.Fire(ctx, s.event, s.transfer)
	}
	return report
}

// dueTransfers returns the live transfers ready at now, soonest first.
// Callers hold r.mu.
func (r *Registry) dueTransfers(now time.Time) []*Transfer {
	var due []*Transfer
	for _, t := range r.transfers {
		if t.IsReadyForDelivery(now) {
			due = append(due, t)
		}
	}
	sortByDelivery(due)
	return due
}

const settleTask = "transfer_settlement"

// Settler runs Registry.Settle on a scheduler ticker.
type Settler struct {
	reg      *Registry
	sched    *scheduler.Scheduler
	interval time.Duration
	logger   *zap.Logger
}

// NewSettler creates a settler ticking every interval, one second when
// interval is not positive.
func NewSettler(reg *Registry, sched *scheduler.Scheduler, interval time.Duration, logger *zap.Logger) *Settler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Settler{reg: reg, sched: sched, interval: interval, logger: logger}
}

// Start registers the settlement ticker.
func (s *Settler) Start() {
	s.sched.AddTicker(settleTask, s.interval, func(ctx context.Context) {
		rep := s.reg.Settle(ctx, s.reg.now())
		if rep.Delivered > 0 || rep.Failed > 0 {
			s.logger.Info("transfers settled",
				zap.Int("delivered", rep.Delivered),
				zap.Int("failed", rep.Failed))
		}
	})
}

// Stop removes the settlement ticker.
func (s *Settler) Stop() {
	s.sched.Remove(settleTask)
}
