package model

import (
	"time"

	"gorm.io/datatypes"
)

// CaravanRecord stores one encoded caravan per row.
type CaravanRecord struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransferRecord stores one encoded transfer per row. Status is duplicated
// out of the payload for operator queries.
type TransferRecord struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	Status    string         `gorm:"index:idx_transfer_status;size:16" json:"status"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
