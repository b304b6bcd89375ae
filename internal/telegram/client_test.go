package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendlens/admin-api/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(Config{
		Token:       "test-token",
		BaseURL:     baseURL,
		SendTimeout: time.Second,
		RatePerSec:  100,
	}, logger.Nop(), nil)
}

func TestSendSuccess(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.Send(context.Background(), "12345", "hello")
	require.NoError(t, err)

	assert.Equal(t, "12345", received["chat_id"])
	assert.Equal(t, "hello", received["text"])
}

func TestSendNon2xxCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"description":"bot was blocked by the user"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.Send(context.Background(), "12345", "hello")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "blocked by the user")
}

func TestSendOKFalseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.Send(context.Background(), "12345", "hello")
	assert.Error(t, err)
}

func TestSendMissingToken(t *testing.T) {
	client := NewClient(Config{}, logger.Nop(), nil)
	err := client.Send(context.Background(), "12345", "hello")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestGetUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/getUpdates"))
		assert.Equal(t, "7", r.URL.Query().Get("offset"))
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{
					"update_id": 7,
					"message": map[string]any{
						"message_id": 1,
						"text":       "/start",
						"from":       map[string]any{"id": 42, "username": "whale"},
						"chat":       map[string]any{"id": 42},
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	updates, err := client.GetUpdates(context.Background(), 7, time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 1)

	assert.Equal(t, int64(7), updates[0].UpdateID)
	require.NotNil(t, updates[0].Message)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, int64(42), updates[0].Message.Chat.ID)
}
