package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomlink/internal/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMessage(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"error":{"message":"room expired"},"message":"ignored"}`, "room expired"},
		{`{"message":"not allowed"}`, "not allowed"},
		{`{"error":"boom"}`, "boom"},
		{`{"reason":"closed"}`, "closed"},
		{`{"errors":{"name":["can't be blank"]}}`, `{"name":["can't be blank"]}`},
		{`{}`, "HTTP 422"},
		{`not json`, "HTTP 422"},
		{``, "HTTP 422"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractMessage(422, []byte(tc.body)), "body %s", tc.body)
	}
}

func TestDoAttachesNormalizedToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/me", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"user": map[string]string{"id": "u1"}})
	}))
	defer srv.Close()

	client := New(srv.URL+"/", credentials.NewMemoryStore("Bearer tok"), time.Second)

	var out struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, client.Do(context.Background(), http.MethodGet, "/api/me", nil, &out))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "u1", out.User.ID)
}

func TestDoWithoutTokenOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New(srv.URL, credentials.NewMemoryStore(""), time.Second)
	var out map[string]interface{}
	require.NoError(t, client.Do(context.Background(), http.MethodPost, "/api/rooms/by-code/X/leave", nil, &out))
	assert.Nil(t, out)
}

func TestDoReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"room not found"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, nil, time.Second)
	err := client.Do(context.Background(), http.MethodGet, "/api/rooms/by-code/NOPE", nil, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "room not found", apiErr.Message)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestSendTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := New(url, nil, time.Second)
	_, err := client.Send(context.Background(), http.MethodGet, "/api/rooms", nil)
	require.Error(t, err)
	assert.Zero(t, StatusOf(err))
}
