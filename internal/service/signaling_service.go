package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/streamroom/internal/domain"
	"github.com/immxrtalbeast/streamroom/lib/logger/sl"
)

const defaultCreateAttempts = 5

type SignalingOptions struct {
	// CreateAttempts bounds how many derived ids CreateRoom tries when the
	// first one is already taken.
	CreateAttempts int
	Now            func() time.Time
}

type SignalingService struct {
	rooms          *Registry
	log            *slog.Logger
	createAttempts int
	now            func() time.Time
}

func NewSignalingService(rooms *Registry, log *slog.Logger, opts SignalingOptions) *SignalingService {
	if log == nil {
		log = slog.Default()
	}
	if opts.CreateAttempts <= 0 {
		opts.CreateAttempts = defaultCreateAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SignalingService{
		rooms:          rooms,
		log:            log,
		createAttempts: opts.CreateAttempts,
		now:            opts.Now,
	}
}

func (s *SignalingService) CreateRoom(ctx context.Context, broadcasterID, streamID string) (string, error) {
	const op = "service.signaling.createRoom"
	log := s.log.With(
		slog.String("op", op),
		slog.String("stream_id", streamID),
		slog.String("broadcaster_id", broadcasterID),
	)

	if err := required("broadcasterId", broadcasterID, "streamId", streamID); err != nil {
		return "", err
	}

	createdAt := s.now()
	for attempt := 0; attempt < s.createAttempts; attempt++ {
		roomID := domain.NewRoomID(streamID, createdAt.Add(time.Duration(attempt)*time.Millisecond))

		err := s.withRoom(roomID, func(room *Room) error {
			return room.Initialize(ctx, broadcasterID)
		})
		if errors.Is(err, domain.ErrAlreadyInitialized) {
			log.Debug("room id taken, retrying", slog.String("room_id", roomID))
			continue
		}
		if err != nil {
			log.Error("failed to create room", sl.Err(err))
			return "", fmt.Errorf("%s: %w", op, err)
		}

		log.Info("room created", slog.String("room_id", roomID))
		return roomID, nil
	}

	return "", fmt.Errorf("%s: %w", op, domain.ErrAlreadyInitialized)
}

func (s *SignalingService) StoreBroadcasterOffer(ctx context.Context, roomID, broadcasterID, sdp string) error {
	const op = "service.signaling.storeBroadcasterOffer"

	if err := required("roomId", roomID, "broadcasterId", broadcasterID, "sdp", sdp); err != nil {
		return err
	}

	err := s.withRoom(roomID, func(room *Room) error {
		return room.StoreBroadcasterOffer(ctx, sdp)
	})
	if err != nil {
		s.logFailure(op, roomID, err)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("broadcaster offer stored",
		slog.String("room_id", roomID),
		slog.String("broadcaster_id", broadcasterID),
	)
	return nil
}

func (s *SignalingService) GetBroadcasterOffer(ctx context.Context, roomID, broadcasterID string) (string, error) {
	const op = "service.signaling.getBroadcasterOffer"

	if err := required("roomId", roomID, "broadcasterId", broadcasterID); err != nil {
		return "", err
	}

	var sdp string
	err := s.withRoom(roomID, func(room *Room) error {
		var err error
		sdp, err = room.GetBroadcasterOffer(ctx)
		return err
	})
	if err != nil {
		s.logFailure(op, roomID, err)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return sdp, nil
}

func (s *SignalingService) AddViewer(ctx context.Context, roomID, viewerID string) error {
	const op = "service.signaling.addViewer"

	if err := required("roomId", roomID, "viewerId", viewerID); err != nil {
		return err
	}

	err := s.withRoom(roomID, func(room *Room) error {
		return room.AddViewer(ctx, viewerID)
	})
	if err != nil {
		s.logFailure(op, roomID, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SignalingService) StoreViewerAnswer(ctx context.Context, roomID, viewerID, sdp string) error {
	const op = "service.signaling.storeViewerAnswer"

	if err := required("roomId", roomID, "viewerId", viewerID, "sdp", sdp); err != nil {
		return err
	}

	err := s.withRoom(roomID, func(room *Room) error {
		return room.StoreViewerAnswer(ctx, viewerID, sdp)
	})
	if err != nil {
		s.logFailure(op, roomID, err)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("viewer answer stored", slog.String("room_id", roomID), slog.String("viewer_id", viewerID))
	return nil
}

func (s *SignalingService) GetViewerAnswer(ctx context.Context, roomID, viewerID string) (string, error) {
	const op = "service.signaling.getViewerAnswer"

	if err := required("roomId", roomID, "viewerId", viewerID); err != nil {
		return "", err
	}

	var sdp string
	err := s.withRoom(roomID, func(room *Room) error {
		var err error
		sdp, err = room.GetViewerAnswer(ctx, viewerID)
		return err
	})
	if err != nil {
		s.logFailure(op, roomID, err)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return sdp, nil
}

func (s *SignalingService) AddICECandidate(ctx context.Context, roomID, peerID string, candidate domain.ICECandidate) error {
	const op = "service.signaling.addICECandidate"

	if err := required("roomId", roomID, "peerId", peerID, "candidate", candidate.Candidate); err != nil {
		return err
	}

	err := s.withRoom(roomID, func(room *Room) error {
		return room.AddICECandidate(ctx, peerID, candidate)
	})
	if err != nil {
		s.logFailure(op, roomID, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SignalingService) GetICECandidates(ctx context.Context, roomID, peerID string, since int) ([]domain.ICECandidate, error) {
	const op = "service.signaling.getICECandidates"

	if err := required("roomId", roomID, "peerId", peerID); err != nil {
		return nil, err
	}
	if since < 0 {
		return nil, fmt.Errorf("%w: since must not be negative", domain.ErrInvalidInput)
	}

	var candidates []domain.ICECandidate
	err := s.withRoom(roomID, func(room *Room) error {
		var err error
		candidates, err = room.GetICECandidates(ctx, peerID, since)
		return err
	})
	if err != nil {
		s.logFailure(op, roomID, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return candidates, nil
}

func (s *SignalingService) GetRoomInfo(ctx context.Context, roomID string) (domain.RoomInfo, error) {
	const op = "service.signaling.getRoomInfo"

	if err := required("roomId", roomID); err != nil {
		return domain.RoomInfo{}, err
	}

	var info domain.RoomInfo
	err := s.withRoom(roomID, func(room *Room) error {
		var err error
		info, err = room.Snapshot(ctx)
		return err
	})
	if err != nil {
		s.logFailure(op, roomID, err)
		return domain.RoomInfo{}, fmt.Errorf("%s: %w", op, err)
	}
	return info, nil
}

func (s *SignalingService) CleanupRoom(ctx context.Context, roomID string) error {
	const op = "service.signaling.cleanupRoom"

	if err := required("roomId", roomID); err != nil {
		return err
	}

	err := s.withRoom(roomID, func(room *Room) error {
		return room.Cleanup(ctx)
	})
	if err != nil {
		s.logFailure(op, roomID, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.rooms.Evict(roomID)
	return nil
}

// withRoom runs fn against the resident actor for roomID. An actor evicted
// between lookup and use is resolved again once.
func (s *SignalingService) withRoom(roomID string, fn func(room *Room) error) error {
	for attempt := 0; ; attempt++ {
		room, err := s.rooms.Get(roomID)
		if err != nil {
			return err
		}
		err = fn(room)
		if errors.Is(err, ErrRoomClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

func (s *SignalingService) logFailure(op, roomID string, err error) {
	log := s.log.With(slog.String("op", op), slog.String("room_id", roomID))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Debug("not available yet")
	case errors.Is(err, domain.ErrStorage):
		log.Error("storage failure", sl.Err(err))
	default:
		log.Warn("operation failed", sl.Err(err))
	}
}

// required checks name/value pairs and reports the first empty value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: %s required", domain.ErrInvalidInput, pairs[i])
		}
	}
	return nil
}
