package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := NewManager(okHandler(), testConfig(), zap.NewNop())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.Error(t, m.Start(), "double start")

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()), "idempotent")
	assert.False(t, m.IsRunning())
	assert.Error(t, m.Start(), "closed")
}

func TestManager_ShutdownHooksRunInReverse(t *testing.T) {
	m := NewManager(okHandler(), testConfig(), nil)
	var order []string
	m.OnShutdown(func(context.Context) error { order = append(order, "db"); return nil })
	m.OnShutdown(func(context.Context) error { order = append(order, "cron"); return errors.New("cron busy") })

	require.NoError(t, m.Start())
	err := m.Shutdown(context.Background())
	assert.ErrorContains(t, err, "cron busy")
	assert.Equal(t, []string{"cron", "db"}, order)
}

func TestManager_RunStopsOnContextCancel(t *testing.T) {
	m := NewManager(okHandler(), testConfig(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, m.IsRunning, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManager_StartPortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := testConfig()
	cfg.Addr = l.Addr().String()
	m := NewManager(okHandler(), cfg, zap.NewNop())
	assert.ErrorContains(t, m.Start(), "failed to listen")
}
