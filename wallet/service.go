package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/mysterria/silkroad/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidAmount is returned for zero or negative amounts.
var ErrInvalidAmount = errors.New("wallet: amount must be positive")

// Service keeps shard balances in the wallets table.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new wallet Service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Balance returns the actor's shards. An actor without a wallet has zero.
func (svc *Service) Balance(ctx context.Context, actorID string) (int, error) {
	var w model.Wallet
	err := svc.db.WithContext(ctx).Where("actor_id = ?", actorID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("wallet %s: %w", actorID, err)
	}
	return w.Shards, nil
}

// Consume removes amount shards if the actor holds at least that many.
// It reports false, without error, when the balance is short. The check and
// the decrement happen in one conditional UPDATE.
func (svc *Service) Consume(ctx context.Context, actorID string, amount int) (bool, error) {
	if amount < 0 {
		return false, ErrInvalidAmount
	}
	if amount == 0 {
		return true, nil
	}
	res := svc.db.WithContext(ctx).Model(&model.Wallet{}).
		Where("actor_id = ? AND shards >= ?", actorID, amount).
		Update("shards", gorm.Expr("shards - ?", amount))
	if res.Error != nil {
		return false, fmt.Errorf("wallet %s: %w", actorID, res.Error)
	}
	if res.RowsAffected != 1 {
		svc.logger.Debug("shard consume refused",
			zap.String("actor", actorID), zap.Int("amount", amount))
		return false, nil
	}
	return true, nil
}

// Deposit adds amount shards, creating the wallet on first use.
func (svc *Service) Deposit(ctx context.Context, actorID string, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Wallet{ActorID: actorID}).Error; err != nil {
			return fmt.Errorf("wallet %s: create: %w", actorID, err)
		}
		if err := tx.Model(&model.Wallet{}).Where("actor_id = ?", actorID).
			Update("shards", gorm.Expr("shards + ?", amount)).Error; err != nil {
			return fmt.Errorf("wallet %s: deposit: %w", actorID, err)
		}
		return nil
	})
}
