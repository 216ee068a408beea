package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one transfer or caravan lifecycle event.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	TransferID string         `gorm:"index:idx_audit_transfer;size:64" json:"transfer_id"`
	CaravanID  string         `gorm:"index:idx_audit_caravan;size:64" json:"caravan_id"`
	ActorID    string         `gorm:"index:idx_audit_actor;size:64" json:"actor_id"`
	Detail     datatypes.JSON `json:"detail"`
	Error      string         `gorm:"type:text" json:"error"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
