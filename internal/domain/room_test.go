package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRoomID(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	assert.Equal(t, "abc_1700000000123", NewRoomID("abc", at))
	assert.NotEqual(t, NewRoomID("abc", at), NewRoomID("abc", at.Add(time.Millisecond)))
}

func TestRecordKeys(t *testing.T) {
	assert.Equal(t, "broadcaster_sdp_b1", BroadcasterOfferKey("b1"))
	assert.Equal(t, "viewer_sdp_v1", ViewerAnswerKey("v1"))
	assert.Equal(t, "ice_v1", CandidatesKey("v1"))
}

func TestRoomInfoViewerCount(t *testing.T) {
	info := RoomInfo{ViewerIDs: []string{"v1", "v2"}}
	assert.Equal(t, 2, info.ViewerCount())
	assert.Equal(t, 0, RoomInfo{}.ViewerCount())
}
