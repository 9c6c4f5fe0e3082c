package repository

import (
	"context"
	"errors"
	"time"

	"github.com/immxrtalbeast/streamroom/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresRecordStore struct {
	db *gorm.DB
}

func NewPostgresRecordStore(db *gorm.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

func (r *PostgresRecordStore) Get(ctx context.Context, roomID, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec model.RoomRecord
	err := r.db.WithContext(ctx).First(&rec, "room_id = ? AND record_key = ?", roomID, key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return rec.Value, nil
}

func (r *PostgresRecordStore) Put(ctx context.Context, roomID, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	rec := &model.RoomRecord{
		RoomID:    roomID,
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(rec).Error
}

func (r *PostgresRecordStore) DeleteAll(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&model.RoomRecord{}).Error
}

func (r *PostgresRecordStore) ListIdle(ctx context.Context, before time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var roomIDs []string
	err := r.db.WithContext(ctx).
		Model(&model.RoomRecord{}).
		Group("room_id").
		Having("MAX(updated_at) < ?", before.UTC()).
		Order("room_id").
		Pluck("room_id", &roomIDs).Error
	if err != nil {
		return nil, err
	}

	return roomIDs, nil
}
