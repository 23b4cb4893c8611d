package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomlink/internal/credentials"
	"roomlink/internal/httpclient"
	"roomlink/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, handler http.HandlerFunc, token string) (*Service, *credentials.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := credentials.NewMemoryStore(token)
	return NewService(httpclient.New(srv.URL, store, time.Second), store), store
}

func TestLoginStoresToken(t *testing.T) {
	svc, store := newService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/login", r.URL.Path)
		var req models.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ana@example.com", req.Email)
		json.NewEncoder(w).Encode(map[string]string{"token": "Bearer fresh"})
	}, "")

	require.NoError(t, svc.Login(context.Background(), &models.LoginRequest{Email: "ana@example.com", Password: "secret123"}))

	token, _ := store.Token(context.Background())
	assert.Equal(t, "fresh", token)
}

func TestRegisterWrapsUser(t *testing.T) {
	svc, store := newService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/register", r.URL.Path)
		var body struct {
			User models.RegisterRequest `json:"user"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ana", body.User.Name)
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	}, "")

	require.NoError(t, svc.Register(context.Background(), &models.RegisterRequest{Name: "Ana", Email: "a@b.c", Password: "secret123"}))
	token, _ := store.Token(context.Background())
	assert.Equal(t, "tok", token)

	assert.ErrorIs(t, svc.Register(context.Background(), &models.RegisterRequest{Name: "Ana"}), ErrMissingFields)
}

func TestLoginFailureKeepsStore(t *testing.T) {
	svc, store := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid credentials"}`))
	}, "old")

	err := svc.Login(context.Background(), &models.LoginRequest{Email: "a@b.c", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, httpclient.StatusOf(err))
	token, _ := store.Token(context.Background())
	assert.Equal(t, "old", token)
}

func TestRefreshIdentityClearsRejectedToken(t *testing.T) {
	svc, store := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, "expired")

	_, err := svc.RefreshIdentity(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	token, _ := store.Token(context.Background())
	assert.Empty(t, token)
}

func TestRefreshIdentityKeepsTokenOnServerError(t *testing.T) {
	svc, store := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, "tok")

	_, err := svc.RefreshIdentity(context.Background())
	require.Error(t, err)
	token, _ := store.Token(context.Background())
	assert.Equal(t, "tok", token)
}

func TestIdentityFromMe(t *testing.T) {
	svc, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{"user": map[string]string{"id": "u1", "username": "ana"}})
	}, "tok")

	id, err := svc.Identity(context.Background(), "You")
	require.NoError(t, err)
	assert.Equal(t, models.Identity{ID: "u1", Name: "ana"}, id)
}

func TestIdentityFallsBackToClaims(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u9"}).SignedString([]byte("k"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	store := credentials.NewMemoryStore(token)
	svc := NewService(httpclient.New(url, store, time.Second), store)

	id, err := svc.Identity(context.Background(), "You")
	assert.NoError(t, err)
	assert.Equal(t, models.Identity{ID: "u9", Name: "You"}, id)
}

func TestSignOut(t *testing.T) {
	svc, store := newService(t, func(w http.ResponseWriter, r *http.Request) {}, "tok")
	assert.NoError(t, svc.SignOut(context.Background()))
	token, _ := store.Token(context.Background())
	assert.Empty(t, token)
}
