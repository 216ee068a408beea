package model

import "time"

// Wallet holds an actor's shard balance used to pay transfer costs.
type Wallet struct {
	ActorID   string    `gorm:"primaryKey;size:64" json:"actor_id"`
	Shards    int       `gorm:"not null;default:0" json:"shards"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
