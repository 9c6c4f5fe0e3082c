package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/streamroom/internal/repository"
	"github.com/immxrtalbeast/streamroom/lib/logger/sl"
)

var ErrRegistryClosed = errors.New("room registry closed")

type RegistryOptions struct {
	InboxSize int
	Now       func() time.Time
}

// Registry maps room identifiers to live Room actors. There is at most one
// actor per identifier; rooms missing from memory are materialized on demand
// and restore themselves from the record store.
type Registry struct {
	store     repository.RecordStore
	log       *slog.Logger
	inboxSize int
	now       func() time.Time

	mu    sync.Mutex
	rooms map[string]*Room
	// closing holds evicted actors until they stop. Get waits on them so an
	// identifier never has two actors writing at once.
	closing map[string]*Room
	closed  bool
}

type SweepResult struct {
	Evicted int
	Purged  int
}

func NewRegistry(store repository.RecordStore, log *slog.Logger, opts RegistryOptions) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		store:     store,
		log:       log,
		inboxSize: opts.InboxSize,
		now:       opts.Now,
		rooms:     make(map[string]*Room),
		closing:   make(map[string]*Room),
	}
}

// Get resolves the room for id, starting a new actor if none is resident.
// If the previous actor for id is still stopping, Get waits for it without
// holding the registry lock.
func (r *Registry) Get(id string) (*Room, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrRegistryClosed
		}
		if room, ok := r.rooms[id]; ok {
			r.mu.Unlock()
			return room, nil
		}
		if old, ok := r.closing[id]; ok {
			r.mu.Unlock()
			<-old.done
			r.mu.Lock()
			if r.closing[id] == old {
				delete(r.closing, id)
			}
			r.mu.Unlock()
			continue
		}

		room := newRoom(id, r.store, r.log, r.now, r.inboxSize)
		r.rooms[id] = room
		r.mu.Unlock()
		return room, nil
	}
}

// Evict stops the resident actor for id. Persisted state is kept; the next
// Get starts a fresh actor that restores it.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	room, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.detach(id, room)
	r.mu.Unlock()

	r.retire([]*Room{room})
}

// detach moves room from the resident set to the closing set. r.mu must be
// held.
func (r *Registry) detach(id string, room *Room) {
	delete(r.rooms, id)
	r.closing[id] = room
}

// retire stops rooms concurrently and forgets them once stopped.
func (r *Registry) retire(rooms []*Room) {
	var wg sync.WaitGroup
	for _, room := range rooms {
		wg.Add(1)
		go func(room *Room) {
			defer wg.Done()
			room.Close()
		}(room)
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range rooms {
		if r.closing[room.id] == room {
			delete(r.closing, room.id)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Sweep evicts rooms unused for idleTTL and, when recordTTL is positive,
// purges rooms whose records have not been written for recordTTL.
func (r *Registry) Sweep(ctx context.Context, idleTTL, recordTTL time.Duration) (SweepResult, error) {
	const op = "service.registry.sweep"
	log := r.log.With(slog.String("op", op))

	var res SweepResult
	now := r.now()

	if idleTTL > 0 {
		cutoff := now.Add(-idleTTL)

		var idle []*Room
		r.mu.Lock()
		for id, room := range r.rooms {
			if !room.idleSince(cutoff) {
				continue
			}
			r.detach(id, room)
			idle = append(idle, room)
		}
		r.mu.Unlock()

		r.retire(idle)
		res.Evicted = len(idle)
	}

	if recordTTL <= 0 {
		return res, nil
	}

	cutoff := now.Add(-recordTTL)
	ids, err := r.store.ListIdle(ctx, cutoff)
	if err != nil {
		log.Error("failed to list idle rooms", sl.Err(err))
		return res, err
	}

	for _, id := range ids {
		room, err := r.Get(id)
		if err != nil {
			return res, err
		}
		purged, err := room.purgeIfIdle(ctx, cutoff)
		if err != nil {
			log.Error("failed to purge room", slog.String("room_id", id), sl.Err(err))
			continue
		}
		if purged {
			r.Evict(id)
			res.Purged++
		}
	}

	return res, nil
}

// Close stops every actor. Later Get calls fail with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	rooms := make([]*Room, 0, len(r.rooms)+len(r.closing))
	for id, room := range r.rooms {
		r.detach(id, room)
	}
	for _, room := range r.closing {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	r.retire(rooms)
}
