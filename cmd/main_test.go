package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/immxrtalbeast/streamroom/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(addr string) *config.Config {
	return &config.Config{
		Env: "test",
		HTTP: config.HTTPConfig{
			Address:         addr,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		Storage: config.StorageConfig{Driver: config.StorageMemory},
	}
}

func runAsync(ctx context.Context, cfg *config.Config) <-chan error {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, cfg, log) }()
	return errc
}

func TestRun_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, testConfig("127.0.0.1:0"))

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after the context was canceled")
	}
}

func TestRun_ReturnsServerError(t *testing.T) {
	errc := runAsync(context.Background(), testConfig("127.0.0.1:-1"))

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http server")
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after the server failed")
	}
}

func TestRun_ReturnsStorageError(t *testing.T) {
	cfg := testConfig("127.0.0.1:0")
	cfg.Storage.Driver = config.StoragePostgres

	err := <-runAsync(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database dsn is empty")
}
