package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDiscordSendOK(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		got = payload["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewDiscordChannel(srv.URL, zap.NewNop())
	require.NoError(t, ch.Send(context.Background(), "alert text"))
	assert.Equal(t, "alert text", got)
	assert.Equal(t, "discord", ch.Name())
}

func TestDiscordSendTruncatesLongContent(t *testing.T) {
	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(body, &payload)
		gotLen = len([]rune(payload["content"]))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewDiscordChannel(srv.URL, zap.NewNop())
	require.NoError(t, ch.Send(context.Background(), strings.Repeat("告", discordContentLimit+500)))
	assert.Equal(t, discordContentLimit, gotLen)
}

func TestDiscordSendPermanent4xxNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	ch := NewDiscordChannel(srv.URL, zap.NewNop())
	err := ch.Send(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDiscordSendRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewDiscordChannel(srv.URL, zap.NewNop())
	require.NoError(t, ch.Send(context.Background(), "x"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDiscordSendRespectsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := NewDiscordChannel(srv.URL, zap.NewNop())
	err := ch.Send(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
