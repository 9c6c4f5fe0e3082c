package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/immxrtalbeast/streamroom/internal/domain"
	"github.com/immxrtalbeast/streamroom/internal/repository"
)

var ErrRoomClosed = errors.New("room closed")

const defaultInboxSize = 64

// Room owns the signaling state of one broadcaster and its viewers. All
// operations run one at a time on the room's own goroutine; the state below
// is never touched from anywhere else.
//
// Every mutation is persisted to the record store before it is applied to
// memory, so a failed write leaves the room exactly as it was.
type Room struct {
	id    string
	store repository.RecordStore
	log   *slog.Logger
	now   func() time.Time

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	lastUsed  atomic.Int64
	inflight  atomic.Int32

	state roomState
}

type roomState struct {
	loaded bool

	broadcasterID string
	viewers       map[string]struct{}
	viewerOrder   []string

	offer    string
	hasOffer bool
	answers  map[string]string

	candidates map[string][]domain.ICECandidate

	createdAt time.Time
	updatedAt time.Time
}

func newRoomState() roomState {
	return roomState{
		viewers:    make(map[string]struct{}),
		answers:    make(map[string]string),
		candidates: make(map[string][]domain.ICECandidate),
	}
}

func newRoom(id string, store repository.RecordStore, log *slog.Logger, now func() time.Time, inboxSize int) *Room {
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	if now == nil {
		now = time.Now
	}
	r := &Room{
		id:    id,
		store: store,
		log:   log.With(slog.String("room_id", id)),
		now:   now,
		inbox: make(chan func(), inboxSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		state: newRoomState(),
	}
	r.lastUsed.Store(now().UnixNano())
	go r.run()
	return r
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) run() {
	defer close(r.done)
	for {
		select {
		case task := <-r.inbox:
			task()
		case <-r.quit:
			return
		}
	}
}

// Close stops the actor after the operation in flight, if any, completes.
// Queued operations fail with ErrRoomClosed.
func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.done
}

// idleSince reports whether the room has no caller waiting on it and was
// last used before cutoff.
func (r *Room) idleSince(cutoff time.Time) bool {
	return r.inflight.Load() == 0 && r.lastUsed.Load() < cutoff.UnixNano()
}

// do runs op on the actor and waits for its result. When ctx ends after op
// was queued, do returns ctx.Err() but op still runs to completion, so a
// mutation reported as canceled may have been applied. Callers that retry
// can therefore apply the same mutation twice.
func (r *Room) do(ctx context.Context, op func(ctx context.Context) error) error {
	r.inflight.Add(1)
	r.lastUsed.Store(r.now().UnixNano())
	defer func() {
		r.lastUsed.Store(r.now().UnixNano())
		r.inflight.Add(-1)
	}()

	errc := make(chan error, 1)
	task := func() { errc <- op(ctx) }

	select {
	case r.inbox <- task:
	case <-r.quit:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-r.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) Initialize(ctx context.Context, broadcasterID string) error {
	return r.do(ctx, func(ctx context.Context) error {
		if err := r.load(ctx); err != nil {
			return err
		}
		if r.state.broadcasterID != "" {
			return domain.ErrAlreadyInitialized
		}
		queue, err := r.queue(ctx, broadcasterID)
		if err != nil {
			return err
		}

		now := r.now().UTC()
		data := domain.RoomData{
			BroadcasterID: broadcasterID,
			ViewerIDs:     append([]string{}, r.state.viewerOrder...),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := r.put(ctx, domain.KeyRoomData, data); err != nil {
			return err
		}

		r.state.broadcasterID = broadcasterID
		r.state.createdAt = now
		r.state.updatedAt = now
		if queue == nil {
			r.state.candidates[broadcasterID] = []domain.ICECandidate{}
		}

		r.log.Info("room initialized", slog.String("broadcaster_id", broadcasterID))
		return nil
	})
}

func (r *Room) AddViewer(ctx context.Context, viewerID string) error {
	return r.do(ctx, func(ctx context.Context) error {
		if err := r.load(ctx); err != nil {
			return err
		}
		queue, err := r.queue(ctx, viewerID)
		if err != nil {
			return err
		}
		if _, ok := r.state.viewers[viewerID]; ok {
			if queue == nil {
				r.state.candidates[viewerID] = []domain.ICECandidate{}
			}
			return nil
		}

		now := r.now().UTC()
		viewers := append(append([]string{}, r.state.viewerOrder...), viewerID)
		data := domain.RoomData{
			BroadcasterID: r.state.broadcasterID,
			ViewerIDs:     viewers,
			CreatedAt:     r.state.createdAt,
			UpdatedAt:     now,
		}
		if err := r.put(ctx, domain.KeyRoomData, data); err != nil {
			return err
		}

		r.state.viewers[viewerID] = struct{}{}
		r.state.viewerOrder = viewers
		r.state.updatedAt = now
		if queue == nil {
			r.state.candidates[viewerID] = []domain.ICECandidate{}
		}

		r.log.Info("viewer added",
			slog.String("viewer_id", viewerID),
			slog.Int("viewer_count", len(viewers)),
		)
		return nil
	})
}

func (r *Room) StoreBroadcasterOffer(ctx context.Context, sdp string) error {
	return r.do(ctx, func(ctx context.Context) error {
		if err := r.load(ctx); err != nil {
			return err
		}
		if r.state.broadcasterID == "" {
			return domain.ErrRoomNotInitialized
		}

		if err := r.put(ctx, domain.BroadcasterOfferKey(r.state.broadcasterID), sdp); err != nil {
			return err
		}

		r.state.offer = sdp
		r.state.hasOffer = true
		r.state.updatedAt = r.now().UTC()
		r.log.Debug("broadcaster offer stored", slog.Int("sdp_len", len(sdp)))
		return nil
	})
}

func (r *Room) GetBroadcasterOffer(ctx context.Context) (string, error) {
	var sdp string
	err := r.do(ctx, func(ctx context.Context) error {
		if err := r.load(ctx); err != nil {
			return err
		}
		if r.state.hasOffer {
			sdp = r.state.offer
			return nil
		}
		if r.state.broadcasterID == "" {
			return domain.ErrNotFound
		}

		var stored string
		found, err := r.get(ctx, domain.BroadcasterOfferKey(r.state.broadcasterID), &stored)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}

		r.state.offer = stored
		r.state.hasOffer = true
		sdp = stored
		return nil
	})
	return sdp, err
}

// StoreViewerAnswer does not require the viewer to have joined first.
func (r *Room) StoreViewerAnswer(ctx context.Context, viewerID, sdp string) error {
	return r.do(ctx, func(ctx context.Context) error {
		if err := r.put(ctx, domain.ViewerAnswerKey(viewerID), sdp); err != nil {
			return err
		}

		r.state.answers[viewerID] = sdp
		r.state.updatedAt = r.now().UTC()
		r.log.Debug("viewer answer stored", slog.String("viewer_id", viewerID), slog.Int("sdp_len", len(sdp)))
		return nil
	})
}

func (r *Room) GetViewerAnswer(ctx context.Context, viewerID string) (string, error) {
	var sdp string
	err := r.do(ctx, func(ctx context.Context) error {
		if answer, ok := r.state.answers[viewerID]; ok {
			sdp = answer
			return nil
		}

		var stored string
		found, err := r.get(ctx, domain.ViewerAnswerKey(viewerID), &stored)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}

		r.state.answers[viewerID] = stored
		sdp = stored
		return nil
	})
	return sdp, err
}

// AddICECandidate appends to the peer's queue, creating it when the peer has
// not been registered yet so that trickled candidates may arrive before the
// offer/answer exchange finishes.
func (r *Room) AddICECandidate(ctx context.Context, peerID string, candidate domain.ICECandidate) error {
	return r.do(ctx, func(ctx context.Context) error {
		current, err := r.queue(ctx, peerID)
		if err != nil {
			return err
		}

		next := make([]domain.ICECandidate, len(current), len(current)+1)
		copy(next, current)
		next = append(next, candidate)

		if err := r.put(ctx, domain.CandidatesKey(peerID), next); err != nil {
			return err
		}

		r.state.candidates[peerID] = next
		r.state.updatedAt = r.now().UTC()
		r.log.Debug("ice candidate added", slog.String("peer_id", peerID), slog.Int("count", len(next)))
		return nil
	})
}

// GetICECandidates returns the peer's candidates starting at index since.
// since == 0 yields the full cumulative snapshot. An unknown peer yields an
// empty slice.
func (r *Room) GetICECandidates(ctx context.Context, peerID string, since int) ([]domain.ICECandidate, error) {
	result := []domain.ICECandidate{}
	err := r.do(ctx, func(ctx context.Context) error {
		current, err := r.queue(ctx, peerID)
		if err != nil {
			return err
		}
		if since < 0 {
			since = 0
		}
		if since < len(current) {
			result = append(result, current[since:]...)
		}
		return nil
	})
	return result, err
}

func (r *Room) Snapshot(ctx context.Context) (domain.RoomInfo, error) {
	var info domain.RoomInfo
	err := r.do(ctx, func(ctx context.Context) error {
		if err := r.load(ctx); err != nil {
			return err
		}
		info = domain.RoomInfo{
			RoomID:        r.id,
			BroadcasterID: r.state.broadcasterID,
			ViewerIDs:     append([]string{}, r.state.viewerOrder...),
			CreatedAt:     r.state.createdAt,
			UpdatedAt:     r.state.updatedAt,
		}
		return nil
	})
	return info, err
}

// Cleanup deletes every persisted record of the room and resets it to the
// never-created state.
func (r *Room) Cleanup(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.cleanup(ctx)
	})
}

// purgeIfIdle cleans the room up unless it was written to after cutoff.
func (r *Room) purgeIfIdle(ctx context.Context, cutoff time.Time) (bool, error) {
	var purged bool
	err := r.do(ctx, func(ctx context.Context) error {
		if err := r.load(ctx); err != nil {
			return err
		}
		if r.state.updatedAt.After(cutoff) {
			return nil
		}
		if err := r.cleanup(ctx); err != nil {
			return err
		}
		purged = true
		return nil
	})
	return purged, err
}

func (r *Room) cleanup(ctx context.Context) error {
	if err := r.store.DeleteAll(ctx, r.id); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	r.state = newRoomState()
	r.state.loaded = true
	r.log.Info("room cleaned up")
	return nil
}

// load restores the initialization record the first time the room is used
// in this process.
func (r *Room) load(ctx context.Context) error {
	if r.state.loaded {
		return nil
	}

	var data domain.RoomData
	found, err := r.get(ctx, domain.KeyRoomData, &data)
	if err != nil {
		return err
	}
	if found {
		r.state.broadcasterID = data.BroadcasterID
		for _, id := range data.ViewerIDs {
			if _, ok := r.state.viewers[id]; ok {
				continue
			}
			r.state.viewers[id] = struct{}{}
			r.state.viewerOrder = append(r.state.viewerOrder, id)
		}
		r.state.createdAt = data.CreatedAt
		r.state.updatedAt = data.UpdatedAt
		r.log.Debug("room restored from storage", slog.Int("viewer_count", len(r.state.viewerOrder)))
	}
	r.state.loaded = true
	return nil
}

// queue returns the peer's candidates from memory or, failing that, from the
// store. A nil result means no queue exists in either.
func (r *Room) queue(ctx context.Context, peerID string) ([]domain.ICECandidate, error) {
	if current, ok := r.state.candidates[peerID]; ok {
		return current, nil
	}

	var stored []domain.ICECandidate
	found, err := r.get(ctx, domain.CandidatesKey(peerID), &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	r.state.candidates[peerID] = stored
	return stored, nil
}

func (r *Room) put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.Put(ctx, r.id, key, raw); err != nil {
		return fmt.Errorf("%w: put %s: %w", domain.ErrStorage, key, err)
	}
	return nil
}

func (r *Room) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.store.Get(ctx, r.id, key)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: get %s: %w", domain.ErrStorage, key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: decode %s: %w", domain.ErrStorage, key, err)
	}
	return true, nil
}
