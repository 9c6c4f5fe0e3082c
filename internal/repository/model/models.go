package model

import "time"

// RoomRecord is one persisted key of a signaling room.
type RoomRecord struct {
	RoomID    string    `gorm:"type:text;primaryKey"`
	Key       string    `gorm:"column:record_key;type:text;primaryKey"`
	Value     []byte    `gorm:"type:bytea;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"index;not null"`
}
