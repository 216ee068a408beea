package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mysterria/silkroad/game/caravan"
	"github.com/mysterria/silkroad/game/item"
	"github.com/mysterria/silkroad/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DBStore keeps one JSON payload row per record in caravan_records and
// transfer_records. The tables must already be migrated.
type DBStore struct {
	db     *gorm.DB
	codec  *codec
	logger *zap.Logger
}

// NewDBStore creates a store over db.
func NewDBStore(db *gorm.DB, catalog *item.Catalog, logger *zap.Logger) *DBStore {
	return &DBStore{db: db, codec: newCodec(catalog, logger), logger: logger}
}

func (s *DBStore) SaveCaravan(ctx context.Context, c *caravan.Caravan) error {
	payload, err := json.Marshal(s.codec.caravanRecord(c))
	if err != nil {
		return fmt.Errorf("encoding caravan %s: %w", c.ID, err)
	}
	rec := &model.CaravanRecord{ID: c.ID, Payload: datatypes.JSON(payload)}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("saving caravan %s: %w", c.ID, err)
	}
	return nil
}

func (s *DBStore) LoadCaravan(ctx context.Context, id string) (*caravan.Caravan, error) {
	var rec model.CaravanRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", caravan.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading caravan %s: %w", id, err)
	}
	return s.codec.decodeCaravan(rec.Payload, id)
}

func (s *DBStore) DeleteCaravan(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.CaravanRecord{}).Error; err != nil {
		return fmt.Errorf("deleting caravan %s: %w", id, err)
	}
	return nil
}

func (s *DBStore) CaravanIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.CaravanRecord{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing caravans: %w", err)
	}
	return ids, nil
}

func (s *DBStore) SaveTransfer(ctx context.Context, t *caravan.Transfer) error {
	payload, err := json.Marshal(s.codec.transferRecord(t))
	if err != nil {
		return fmt.Errorf("encoding transfer %s: %w", t.ID, err)
	}
	rec := &model.TransferRecord{ID: t.ID, Status: string(t.Status), Payload: datatypes.JSON(payload)}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("saving transfer %s: %w", t.ID, err)
	}
	return nil
}

func (s *DBStore) LoadTransfer(ctx context.Context, id string) (*caravan.Transfer, error) {
	var rec model.TransferRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", caravan.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading transfer %s: %w", id, err)
	}
	return s.codec.decodeTransfer(rec.Payload, id)
}

func (s *DBStore) DeleteTransfer(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TransferRecord{}).Error; err != nil {
		return fmt.Errorf("deleting transfer %s: %w", id, err)
	}
	return nil
}

func (s *DBStore) TransferIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.TransferRecord{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	return ids, nil
}

var (
	_ caravan.Store = (*DBStore)(nil)
	_ caravan.Store = (*FileStore)(nil)
)
