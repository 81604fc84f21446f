package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSender_PostsJSON(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "noreply@example.com", time.Second)
	err := sender.Send(context.Background(), []string{"a@example.com"}, "Ticket assigned", "REQ-2024-05-0001")

	require.NoError(t, err)
	assert.Equal(t, "noreply@example.com", got.From)
	assert.Equal(t, []string{"a@example.com"}, got.Recipients)
	assert.Equal(t, "Ticket assigned", got.Subject)
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "", time.Second).Send(context.Background(), nil, "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookSender_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "", 20*time.Millisecond).Send(context.Background(), nil, "s", "b")
	assert.Error(t, err)
}

func TestLogSender_NeverFails(t *testing.T) {
	assert.NoError(t, NewLogSender(nil, "x").Send(context.Background(), []string{"a"}, "s", "b"))
}
