package service

import (
	"context"

	"github.com/immxrtalbeast/streamroom/internal/domain"
)

type SignalingInteractor interface {
	CreateRoom(ctx context.Context, broadcasterID, streamID string) (string, error)
	StoreBroadcasterOffer(ctx context.Context, roomID, broadcasterID, sdp string) error
	GetBroadcasterOffer(ctx context.Context, roomID, broadcasterID string) (string, error)
	AddViewer(ctx context.Context, roomID, viewerID string) error
	StoreViewerAnswer(ctx context.Context, roomID, viewerID, sdp string) error
	GetViewerAnswer(ctx context.Context, roomID, viewerID string) (string, error)
	AddICECandidate(ctx context.Context, roomID, peerID string, candidate domain.ICECandidate) error
	GetICECandidates(ctx context.Context, roomID, peerID string, since int) ([]domain.ICECandidate, error)
	GetRoomInfo(ctx context.Context, roomID string) (domain.RoomInfo, error)
	CleanupRoom(ctx context.Context, roomID string) error
}
