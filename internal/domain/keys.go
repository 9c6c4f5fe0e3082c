package domain

// Record keys of the persisted room layout. Stored rooms written by earlier
// deployments use the same names, so they must not change.
const (
	KeyRoomData = "room_data"

	broadcasterOfferPrefix = "broadcaster_sdp_"
	viewerAnswerPrefix     = "viewer_sdp_"
	candidatesPrefix       = "ice_"
)

func BroadcasterOfferKey(broadcasterID string) string {
	return broadcasterOfferPrefix + broadcasterID
}

func ViewerAnswerKey(viewerID string) string {
	return viewerAnswerPrefix + viewerID
}

func CandidatesKey(peerID string) string {
	return candidatesPrefix + peerID
}
