package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/openmined/padsync/internal/config"
	"github.com/openmined/padsync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.LogFile = ""
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Versioning.Enabled = false
	return cfg
}

func TestServer_StartStop(t *testing.T) {
	srv, err := New(testConfig(t, t.TempDir()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errc:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_SecondInstanceRefused(t *testing.T) {
	dir := t.TempDir()

	first, err := New(testConfig(t, dir))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- first.Start(ctx) }()
	<-first.Ready()

	second, err := New(testConfig(t, dir))
	require.NoError(t, err)
	err = second.Start(context.Background())
	assert.ErrorIs(t, err, storage.ErrRootLocked)

	cancel()
	assert.NoError(t, <-errc)
}
