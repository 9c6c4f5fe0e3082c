package converter

import (
	"time"

	"github.com/immxrtalbeast/streamroom/internal/domain"
)

type RoomResponse struct {
	RoomID        string    `json:"roomId"`
	BroadcasterID string    `json:"broadcasterId"`
	ViewerCount   int       `json:"viewerCount"`
	ViewerIDs     []string  `json:"viewerIds"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func RoomToApi(info domain.RoomInfo) *RoomResponse {
	viewers := info.ViewerIDs
	if viewers == nil {
		viewers = []string{}
	}

	return &RoomResponse{
		RoomID:        info.RoomID,
		BroadcasterID: info.BroadcasterID,
		ViewerCount:   info.ViewerCount(),
		ViewerIDs:     viewers,
		CreatedAt:     info.CreatedAt,
		UpdatedAt:     info.UpdatedAt,
	}
}

// CandidatesToApi never returns nil so that an empty queue is encoded as [].
func CandidatesToApi(candidates []domain.ICECandidate) []domain.ICECandidate {
	if candidates == nil {
		return []domain.ICECandidate{}
	}
	return candidates
}
