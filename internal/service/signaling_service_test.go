package service

import (
	"context"
	"testing"
	"time"

	"github.com/immxrtalbeast/streamroom/internal/domain"
	"github.com/immxrtalbeast/streamroom/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, store repository.RecordStore, opts SignalingOptions) (*SignalingService, *Registry) {
	t.Helper()
	reg := NewRegistry(store, discardLogger(), RegistryOptions{Now: opts.Now})
	t.Cleanup(reg.Close)
	return NewSignalingService(reg, discardLogger(), opts), reg
}

func TestSignalingService_CreateRoomID(t *testing.T) {
	clock := newFakeClock(time.UnixMilli(1700000000000))
	svc, _ := newTestService(t, repository.NewInMemoryRecordStore(), SignalingOptions{Now: clock.Now})

	roomID, err := svc.CreateRoom(context.Background(), "b1", "stream42")
	require.NoError(t, err)
	assert.Equal(t, "stream42_1700000000000", roomID)

	info, err := svc.GetRoomInfo(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, "b1", info.BroadcasterID)
}

func TestSignalingService_CreateRoomCollision(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.UnixMilli(1700000000000))
	svc, _ := newTestService(t, repository.NewInMemoryRecordStore(), SignalingOptions{Now: clock.Now, CreateAttempts: 2})

	first, err := svc.CreateRoom(ctx, "b1", "stream42")
	require.NoError(t, err)
	second, err := svc.CreateRoom(ctx, "b2", "stream42")
	require.NoError(t, err)

	assert.Equal(t, "stream42_1700000000000", first)
	assert.Equal(t, "stream42_1700000000001", second)

	_, err = svc.CreateRoom(ctx, "b3", "stream42")
	require.ErrorIs(t, err, domain.ErrAlreadyInitialized)

	info, err := svc.GetRoomInfo(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "b1", info.BroadcasterID)
}

func TestSignalingService_Validation(t *testing.T) {
	ctx := context.Background()
	svc, reg := newTestService(t, repository.NewInMemoryRecordStore(), SignalingOptions{})
	c := candidate("candidate:1", 0, "0")

	tests := []struct {
		name string
		call func() error
	}{
		{"create without broadcaster", func() error { _, err := svc.CreateRoom(ctx, "", "s1"); return err }},
		{"create without stream", func() error { _, err := svc.CreateRoom(ctx, "b1", ""); return err }},
		{"offer without sdp", func() error { return svc.StoreBroadcasterOffer(ctx, "r1", "b1", "") }},
		{"offer without broadcaster", func() error { return svc.StoreBroadcasterOffer(ctx, "r1", "", "OFFER") }},
		{"get offer without broadcaster", func() error { _, err := svc.GetBroadcasterOffer(ctx, "r1", ""); return err }},
		{"viewer without id", func() error { return svc.AddViewer(ctx, "r1", "") }},
		{"answer without sdp", func() error { return svc.StoreViewerAnswer(ctx, "r1", "v1", "") }},
		{"answer without viewer", func() error { return svc.StoreViewerAnswer(ctx, "r1", "", "ANSWER") }},
		{"get answer without viewer", func() error { _, err := svc.GetViewerAnswer(ctx, "r1", ""); return err }},
		{"candidate without peer", func() error { return svc.AddICECandidate(ctx, "r1", "", c) }},
		{"empty candidate", func() error { return svc.AddICECandidate(ctx, "r1", "b1", domain.ICECandidate{}) }},
		{"candidates without peer", func() error { _, err := svc.GetICECandidates(ctx, "r1", "", 0); return err }},
		{"negative cursor", func() error { _, err := svc.GetICECandidates(ctx, "r1", "b1", -1); return err }},
		{"info without room", func() error { _, err := svc.GetRoomInfo(ctx, ""); return err }},
		{"cleanup without room", func() error { return svc.CleanupRoom(ctx, "") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.call(), domain.ErrInvalidInput)
		})
	}

	assert.Equal(t, 0, reg.Len())
}

func TestSignalingService_BroadcastScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, repository.NewInMemoryRecordStore(), SignalingOptions{})

	roomID, err := svc.CreateRoom(ctx, "b1", "s1")
	require.NoError(t, err)

	require.NoError(t, svc.StoreBroadcasterOffer(ctx, roomID, "b1", "OFFER"))
	require.NoError(t, svc.AddViewer(ctx, roomID, "v1"))

	offer, err := svc.GetBroadcasterOffer(ctx, roomID, "b1")
	require.NoError(t, err)
	assert.Equal(t, "OFFER", offer)

	require.NoError(t, svc.StoreViewerAnswer(ctx, roomID, "v1", "ANSWER"))
	answer, err := svc.GetViewerAnswer(ctx, roomID, "v1")
	require.NoError(t, err)
	assert.Equal(t, "ANSWER", answer)

	fromBroadcaster := candidate("cand-b", 0, "0")
	fromViewer := candidate("cand-v", 0, "0")
	require.NoError(t, svc.AddICECandidate(ctx, roomID, "b1", fromBroadcaster))
	require.NoError(t, svc.AddICECandidate(ctx, roomID, "v1", fromViewer))

	got, err := svc.GetICECandidates(ctx, roomID, "b1", 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.ICECandidate{fromBroadcaster}, got)

	got, err = svc.GetICECandidates(ctx, roomID, "v1", 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.ICECandidate{fromViewer}, got)

	info, err := svc.GetRoomInfo(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, roomID, info.RoomID)
	assert.Equal(t, 1, info.ViewerCount())
}

func TestSignalingService_NeverCreatedRoom(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, repository.NewInMemoryRecordStore(), SignalingOptions{})

	_, err := svc.GetBroadcasterOffer(ctx, "missing", "b1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.StoreBroadcasterOffer(ctx, "missing", "b1", "OFFER")
	require.ErrorIs(t, err, domain.ErrRoomNotInitialized)

	got, err := svc.GetICECandidates(ctx, "missing", "b1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSignalingService_CleanupRoom(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryRecordStore()
	svc, reg := newTestService(t, store, SignalingOptions{})

	roomID, err := svc.CreateRoom(ctx, "b1", "s1")
	require.NoError(t, err)
	require.NoError(t, svc.StoreBroadcasterOffer(ctx, roomID, "b1", "OFFER"))

	require.NoError(t, svc.CleanupRoom(ctx, roomID))
	assert.Equal(t, 0, reg.Len())

	_, err = svc.GetBroadcasterOffer(ctx, roomID, "b1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	info, err := svc.GetRoomInfo(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, info.BroadcasterID)
}

func TestSignalingService_SurvivesEviction(t *testing.T) {
	ctx := context.Background()
	svc, reg := newTestService(t, repository.NewInMemoryRecordStore(), SignalingOptions{})

	roomID, err := svc.CreateRoom(ctx, "b1", "s1")
	require.NoError(t, err)
	require.NoError(t, svc.AddViewer(ctx, roomID, "v1"))

	reg.Evict(roomID)

	require.NoError(t, svc.AddViewer(ctx, roomID, "v2"))
	info, err := svc.GetRoomInfo(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, info.ViewerIDs)
}
