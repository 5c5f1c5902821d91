package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeRecipients(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipients.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type linePush struct {
	To       string `json:"to"`
	Messages []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"messages"`
}

func TestLineSendToAllRecipients(t *testing.T) {
	var pushes []linePush
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var p linePush
		require.NoError(t, json.Unmarshal(body, &p))
		pushes = append(pushes, p)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// комментарии и пустые строки в файле получателей пропускаются
	path := writeRecipients(t, "U001\n# отключён\n\nU002\n")
	ch := NewLineChannel("token123", path, zap.NewNop())
	ch.endpoint = srv.URL

	require.NoError(t, ch.Send(context.Background(), "alert"))
	require.Len(t, pushes, 2)
	assert.Equal(t, "U001", pushes[0].To)
	assert.Equal(t, "U002", pushes[1].To)
	assert.Equal(t, "alert", pushes[0].Messages[0].Text)
	assert.Equal(t, "line", ch.Name())
}

func TestLineSendPartialFailureStillSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p linePush
		_ = json.Unmarshal(body, &p)
		if p.To == "U001" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := writeRecipients(t, "U001\nU002\n")
	ch := NewLineChannel("t", path, zap.NewNop())
	ch.endpoint = srv.URL

	// хотя бы один получатель получил — канал успешен
	assert.NoError(t, ch.Send(context.Background(), "alert"))
}

func TestLineSendAllRecipientsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	path := writeRecipients(t, "U001\nU002\n")
	ch := NewLineChannel("t", path, zap.NewNop())
	ch.endpoint = srv.URL

	assert.Error(t, ch.Send(context.Background(), "alert"))
}

func TestLineSendEmptyRecipients(t *testing.T) {
	path := writeRecipients(t, "# только комментарий\n")
	ch := NewLineChannel("t", path, zap.NewNop())
	assert.Error(t, ch.Send(context.Background(), "alert"))
}

func TestLineSendMissingRecipientsFile(t *testing.T) {
	ch := NewLineChannel("t", filepath.Join(t.TempDir(), "nope.txt"), zap.NewNop())
	assert.Error(t, ch.Send(context.Background(), "alert"))
}

func TestLineRecipientsReloadedPerSend(t *testing.T) {
	var count int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := writeRecipients(t, "U001\n")
	ch := NewLineChannel("t", path, zap.NewNop())
	ch.endpoint = srv.URL

	require.NoError(t, ch.Send(context.Background(), "a"))
	assert.Equal(t, 1, count)

	// новый получатель подхватывается без пересоздания канала
	require.NoError(t, os.WriteFile(path, []byte("U001\nU002\n"), 0o644))
	require.NoError(t, ch.Send(context.Background(), "b"))
	assert.Equal(t, 3, count)
}
