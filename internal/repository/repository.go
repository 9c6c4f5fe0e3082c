package repository

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("record not found")

// RecordStore is the durable key/value storage behind signaling rooms. Every
// record belongs to exactly one room; a room's records are only written by
// that room's actor.
type RecordStore interface {
	Get(ctx context.Context, roomID, key string) ([]byte, error)
	Put(ctx context.Context, roomID, key string, value []byte) error
	DeleteAll(ctx context.Context, roomID string) error
	// ListIdle returns the rooms whose newest record was written before the
	// given time.
	ListIdle(ctx context.Context, before time.Time) ([]string, error)
}
