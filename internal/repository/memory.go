package repository

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRecord struct {
	value     []byte
	updatedAt time.Time
}

type InMemoryRecordStore struct {
	mu    sync.RWMutex
	rooms map[string]map[string]memoryRecord
	now   func() time.Time
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{
		rooms: make(map[string]map[string]memoryRecord),
		now:   time.Now,
	}
}

func (s *InMemoryRecordStore) Get(ctx context.Context, roomID, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.rooms[roomID][key]
	if !ok {
		return nil, ErrRecordNotFound
	}

	return append([]byte(nil), rec.value...), nil
}

func (s *InMemoryRecordStore) Put(ctx context.Context, roomID, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.rooms[roomID]
	if !ok {
		records = make(map[string]memoryRecord)
		s.rooms[roomID] = records
	}
	records[key] = memoryRecord{
		value:     append([]byte(nil), value...),
		updatedAt: s.now().UTC(),
	}
	return nil
}

func (s *InMemoryRecordStore) DeleteAll(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, roomID)
	return nil
}

func (s *InMemoryRecordStore) ListIdle(ctx context.Context, before time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0)
	for roomID, records := range s.rooms {
		var newest time.Time
		for _, rec := range records {
			if rec.updatedAt.After(newest) {
				newest = rec.updatedAt
			}
		}
		if newest.Before(before) {
			result = append(result, roomID)
		}
	}
	sort.Strings(result)
	return result, nil
}
