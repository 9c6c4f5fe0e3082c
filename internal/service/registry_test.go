package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/immxrtalbeast/streamroom/internal/domain"
	"github.com/immxrtalbeast/streamroom/internal/repository"
	"github.com/immxrtalbeast/streamroom/internal/repository/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistry_GetReturnsOneRoomPerID(t *testing.T) {
	reg := NewRegistry(repository.NewInMemoryRecordStore(), discardLogger(), RegistryOptions{})
	t.Cleanup(reg.Close)

	const workers = 32
	got := make([]*Room, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := reg.Get("r1")
			assert.NoError(t, err)
			got[i] = room
		}(i)
	}
	wg.Wait()

	for _, room := range got {
		assert.Same(t, got[0], room)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_EvictedRoomRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(repository.NewInMemoryRecordStore(), discardLogger(), RegistryOptions{})
	t.Cleanup(reg.Close)

	first, err := reg.Get("r1")
	require.NoError(t, err)
	require.NoError(t, first.Initialize(ctx, "b1"))
	require.NoError(t, first.StoreBroadcasterOffer(ctx, "OFFER"))

	reg.Evict("r1")
	reg.Evict("r1")
	assert.Equal(t, 0, reg.Len())

	_, err = first.Snapshot(ctx)
	require.ErrorIs(t, err, ErrRoomClosed)

	second, err := reg.Get("r1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	offer, err := second.GetBroadcasterOffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OFFER", offer)
}

func TestRegistry_SweepEvictsIdleRooms(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	reg := NewRegistry(repository.NewInMemoryRecordStore(), discardLogger(), RegistryOptions{Now: clock.Now})
	t.Cleanup(reg.Close)

	idle, err := reg.Get("idle")
	require.NoError(t, err)
	busy, err := reg.Get("busy")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = busy.Snapshot(ctx)
	require.NoError(t, err)

	res, err := reg.Sweep(ctx, 5*time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Evicted: 1}, res)
	assert.Equal(t, 1, reg.Len())

	again, err := reg.Get("busy")
	require.NoError(t, err)
	assert.Same(t, busy, again)

	_, err = idle.Snapshot(ctx)
	require.ErrorIs(t, err, ErrRoomClosed)
}

func TestRegistry_SweepPurgesExpiredRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)

	stale, err := json.Marshal(domain.RoomData{BroadcasterID: "b1", CreatedAt: start.Add(-3 * time.Hour), UpdatedAt: start.Add(-2 * time.Hour)})
	require.NoError(t, err)
	// Written through another instance after ListIdle ran.
	fresh, err := json.Marshal(domain.RoomData{BroadcasterID: "b2", CreatedAt: start, UpdatedAt: start})
	require.NoError(t, err)

	store.EXPECT().ListIdle(gomock.Any(), start.Add(-time.Hour)).Return([]string{"stale", "fresh"}, nil)
	store.EXPECT().Get(gomock.Any(), "stale", domain.KeyRoomData).Return(stale, nil)
	store.EXPECT().DeleteAll(gomock.Any(), "stale").Return(nil)
	store.EXPECT().Get(gomock.Any(), "fresh", domain.KeyRoomData).Return(fresh, nil)

	reg := NewRegistry(store, discardLogger(), RegistryOptions{Now: clock.Now})
	t.Cleanup(reg.Close)

	res, err := reg.Sweep(ctx, 0, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Purged: 1}, res)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_SweepReportsListFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	listErr := errors.New("connection refused")

	store.EXPECT().ListIdle(gomock.Any(), gomock.Any()).Return(nil, listErr)

	reg := NewRegistry(store, discardLogger(), RegistryOptions{})
	t.Cleanup(reg.Close)

	_, err := reg.Sweep(context.Background(), time.Minute, time.Hour)
	require.ErrorIs(t, err, listErr)
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry(repository.NewInMemoryRecordStore(), discardLogger(), RegistryOptions{})

	room, err := reg.Get("r1")
	require.NoError(t, err)

	reg.Close()
	assert.Equal(t, 0, reg.Len())

	_, err = reg.Get("r1")
	require.ErrorIs(t, err, ErrRegistryClosed)

	_, err = room.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrRoomClosed)
}

func TestRegistry_SlowRoomDoesNotBlockOthers(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	entered := make(chan struct{})
	release := make(chan struct{})

	store.EXPECT().Get(gomock.Any(), "slow", domain.KeyRoomData).Return(nil, repository.ErrRecordNotFound)
	store.EXPECT().Get(gomock.Any(), "slow", domain.CandidatesKey("b1")).Return(nil, repository.ErrRecordNotFound)
	store.EXPECT().Put(gomock.Any(), "slow", domain.KeyRoomData, gomock.Any()).
		DoAndReturn(func(context.Context, string, string, []byte) error {
			close(entered)
			<-release
			return nil
		})

	reg := NewRegistry(store, discardLogger(), RegistryOptions{Now: clock.Now})
	t.Cleanup(reg.Close)

	slow, err := reg.Get("slow")
	require.NoError(t, err)

	initErr := make(chan error, 1)
	go func() { initErr <- slow.Initialize(ctx, "b1") }()
	<-entered

	clock.Advance(time.Hour)
	res, err := reg.Sweep(ctx, time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res, "a room with an operation in flight is not idle")

	evicted := make(chan struct{})
	go func() {
		reg.Evict("slow")
		close(evicted)
	}()
	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, time.Millisecond)

	other := make(chan error, 1)
	go func() {
		_, err := reg.Get("other")
		other <- err
	}()
	select {
	case err := <-other:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Get for another room waited on a stopping room")
	}

	replacement := make(chan *Room, 1)
	go func() {
		room, err := reg.Get("slow")
		assert.NoError(t, err)
		replacement <- room
	}()
	select {
	case <-replacement:
		t.Fatal("replacement actor started before the old one stopped")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-initErr)
	<-evicted

	select {
	case room := <-replacement:
		assert.NotSame(t, slow, room)
	case <-time.After(time.Second):
		t.Fatal("Get did not resume after the old actor stopped")
	}
}
