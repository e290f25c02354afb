package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiesioai/wiesio/internal/profile"
	teststore "github.com/wiesioai/wiesio/store/test"
)

func TestServerStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts := teststore.NewTestingStore(ctx, t)

	p := &profile.Profile{Mode: "dev", Addr: "127.0.0.1", Port: 0, Version: "test", RateLimit: 100, RateBurst: 100}
	s, err := NewServer(ctx, p, ts)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", s.listener.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)

	s.Shutdown(ctx)
	_, err = http.Get(fmt.Sprintf("http://%s/healthz", s.listener.Addr()))
	assert.Error(t, err)
}
