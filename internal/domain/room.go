package domain

import (
	"strconv"
	"time"

	"github.com/pion/webrtc/v3"
)

// ICECandidate is a trickled candidate exactly as the browser reports it
// (candidate, sdpMid, sdpMLineIndex, usernameFragment).
type ICECandidate = webrtc.ICECandidateInit

// RoomInfo is a point-in-time view of a signaling room used for diagnostics.
type RoomInfo struct {
	RoomID        string
	BroadcasterID string
	ViewerIDs     []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (i RoomInfo) ViewerCount() int {
	return len(i.ViewerIDs)
}

// RoomData is the initialization record of a room. It is rewritten whenever
// the viewer set changes.
type RoomData struct {
	BroadcasterID string    `json:"broadcasterId"`
	ViewerIDs     []string  `json:"viewerIds"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewRoomID derives the identifier of a new signaling session for a stream.
// Every "go live" gets its own room, so the creation time is part of the id.
func NewRoomID(streamID string, at time.Time) string {
	return streamID + "_" + strconv.FormatInt(at.UnixMilli(), 10)
}
