package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mysterria/silkroad/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions written by the caravan registry.
const (
	ActionCaravanCreated    = "caravan_created"
	ActionCaravanRemoved    = "caravan_removed"
	ActionTransferCreated   = "transfer_created"
	ActionTransferDelivered = "transfer_delivered"
	ActionTransferFailed    = "transfer_failed"
	ActionTransferClaimed   = "transfer_claimed"
)

// Entry holds one audit event to be logged.
type Entry struct {
	Action     string
	TransferID string
	CaravanID  string
	ActorID    string
	Detail     interface{}
	Error      string
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db     *gorm.DB
	ch     chan *model.AuditLog
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, 1024),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. It never blocks; entries
// are dropped with a warning when the queue is full.
func (svc *Service) Log(entry Entry) {
	var detail datatypes.JSON
	if entry.Detail != nil {
		b, err := json.Marshal(entry.Detail)
		if err != nil {
			svc.logger.Warn("audit detail not encodable",
				zap.String("action", entry.Action), zap.Error(err))
		} else {
			detail = datatypes.JSON(b)
		}
	}
	record := &model.AuditLog{
		Action:     entry.Action,
		TransferID: entry.TransferID,
		CaravanID:  entry.CaravanID,
		ActorID:    entry.ActorID,
		Detail:     detail,
		Error:      entry.Error,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Error(err), zap.Int("entries", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
