package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return &Client{
		BaseURL:    url,
		AnonKey:    "anon",
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
		RetryDelay: time.Millisecond,
	}
}

func TestClientGetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + userA + `","email":"a@example.com"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	u, err := c.GetUser(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, userA, u.ID)

	_, err = c.GetUser(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestClientRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["refresh_token"] != "r1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","expires_in":3600,"user":{"id":"` + userA + `"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	s, err := c.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", s.AccessToken)
	assert.Equal(t, "r2", s.RefreshToken)
	assert.Equal(t, userA, s.User.ID)

	_, err = c.Refresh(context.Background(), "reused")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestClientRetriesOnceOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + userA + `"}`))
	}))
	defer srv.Close()

	u, err := newTestClient(srv.URL).GetUser(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, userA, u.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientDoesNotRetryRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetUser(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientNotConfigured(t *testing.T) {
	_, err := (&Client{}).GetUser(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}
