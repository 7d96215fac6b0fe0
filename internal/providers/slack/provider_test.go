package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookProviderPostsPayload(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	err := NewWebhook(server.URL).PostMessage(context.Background(), "#procurement", "PO-1 approved")
	require.NoError(t, err)
	assert.Equal(t, webhookPayload{Channel: "#procurement", Text: "PO-1 approved"}, got)
}

func TestWebhookProviderReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	err := NewWebhook(server.URL).PostMessage(context.Background(), "", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWebhookFailed)
	assert.Contains(t, err.Error(), "invalid_token")
}
