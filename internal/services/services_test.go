package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roomlink/internal/credentials"
	"roomlink/internal/httpclient"
	"roomlink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type joinBackend struct {
	calls   atomic.Int32
	status  int
	body    string
	release chan struct{}
}

func (b *joinBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.calls.Add(1)
	if b.release != nil {
		<-b.release
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.status)
	w.Write([]byte(b.body))
}

func newGate(t *testing.T, backend *joinBackend, clock *fakeClock) *JoinGate {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	api := httpclient.New(srv.URL, credentials.NewMemoryStore("tok"), time.Second)
	return NewJoinGate(api, WithClock(clock.Now))
}

func TestJoinGateOutcomes(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		body        string
		outcome     JoinOutcome
		message     string
		shouldLeave bool
	}{
		{"conflict ignores body", http.StatusConflict, `{"message":"pending"}`, JoinAllowed, "", false},
		{"pending", http.StatusOK, `{"message":"pending"}`, JoinPending, "pending", false},
		{"joined", http.StatusOK, `{"message":"joined","room":{"id":"r1","code":"ABC123"},"participant":{"id":"p1","user_id":"u2","role":"member"}}`, JoinAllowed, "joined", false},
		{"empty success", http.StatusCreated, ``, JoinAllowed, "", false},
		{"not found", http.StatusNotFound, `{"error":{"message":"room not found"}}`, JoinDenied, "room not found", true},
		{"expired", http.StatusGone, `{"reason":"expired"}`, JoinDenied, "expired", true},
		{"forbidden", http.StatusForbidden, `{"message":"banned"}`, JoinDenied, "banned", false},
		{"no body", http.StatusInternalServerError, ``, JoinDenied, "HTTP 500", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate := newGate(t, &joinBackend{status: tc.status, body: tc.body}, &fakeClock{now: time.Unix(0, 0)})

			result, err := gate.RequestJoin(context.Background(), " ABC123 ")
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, result.Outcome)
			assert.Equal(t, tc.message, result.Message)
			assert.Equal(t, tc.status, result.Status)
			assert.Equal(t, tc.shouldLeave, result.ShouldLeave())

			if tc.outcome == JoinDenied {
				var denied *DeniedError
				require.ErrorAs(t, result.Err(), &denied)
				assert.Equal(t, tc.status, denied.Status)
			} else {
				assert.NoError(t, result.Err())
			}
		})
	}
}

func TestJoinGateCarriesParticipant(t *testing.T) {
	gate := newGate(t, &joinBackend{
		status: http.StatusOK,
		body:   `{"message":"joined","room":{"id":"r1","code":"ABC123","name":"Daily"},"participant":{"id":"p1","user_id":"u2","role":"member"}}`,
	}, &fakeClock{now: time.Unix(0, 0)})

	result, err := gate.RequestJoin(context.Background(), "ABC123")
	require.NoError(t, err)
	require.NotNil(t, result.Room)
	assert.Equal(t, "Daily", result.Room.DisplayName())
	require.NotNil(t, result.Participant)
	assert.Equal(t, "u2", result.Participant.UserID)
}

func TestJoinGateDedupesConcurrentCalls(t *testing.T) {
	backend := &joinBackend{status: http.StatusOK, body: `{"message":"joined"}`, release: make(chan struct{})}
	gate := newGate(t, backend, &fakeClock{now: time.Unix(0, 0)})

	var wg sync.WaitGroup
	results := make([]JoinResult, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = gate.RequestJoin(context.Background(), "ABC123")
		}(i)
	}

	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.EqualValues(t, 1, backend.calls.Load())
	for _, r := range results {
		assert.Equal(t, JoinAllowed, r.Outcome)
	}
}

func TestJoinGateWindowAndEviction(t *testing.T) {
	backend := &joinBackend{status: http.StatusOK, body: `{"message":"joined"}`}
	clock := &fakeClock{now: time.Unix(100, 0)}
	gate := newGate(t, backend, clock)
	ctx := context.Background()

	_, err := gate.RequestJoin(ctx, "ABC123")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = gate.RequestJoin(ctx, "ABC123")
	require.NoError(t, err)
	assert.EqualValues(t, 1, backend.calls.Load(), "reused inside the window")

	_, err = gate.RequestJoin(ctx, "OTHER")
	require.NoError(t, err)
	assert.EqualValues(t, 2, backend.calls.Load(), "different code is not deduped")

	clock.Advance(2500 * time.Millisecond)
	_, err = gate.RequestJoin(ctx, "ABC123")
	require.NoError(t, err)
	assert.EqualValues(t, 3, backend.calls.Load(), "fresh request after eviction")
}

func TestJoinGateDetachedFromCallerCancel(t *testing.T) {
	backend := &joinBackend{status: http.StatusConflict, release: make(chan struct{})}
	gate := newGate(t, backend, &fakeClock{now: time.Unix(0, 0)})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := gate.RequestJoin(ctx, "ABC123")
		first <- err
	}()
	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	second := make(chan JoinResult, 1)
	go func() {
		r, _ := gate.RequestJoin(context.Background(), "ABC123")
		second <- r
	}()
	close(backend.release)

	select {
	case r := <-second:
		assert.Equal(t, JoinAllowed, r.Outcome)
	case <-time.After(time.Second):
		t.Fatal("shared request was cancelled with its first caller")
	}
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestJoinGateTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gate := NewJoinGate(httpclient.New(url, nil, time.Second))
	_, err := gate.RequestJoin(context.Background(), "ABC123")
	assert.Error(t, err)

	var denied *DeniedError
	assert.False(t, errors.As(err, &denied))
}

func TestJoinGateRequiresCode(t *testing.T) {
	gate := NewJoinGate(httpclient.New("http://unused", nil, time.Second))
	_, err := gate.RequestJoin(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrRoomCodeRequired)
}

func TestRoomService(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rooms", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]interface{}{"rooms": []map[string]string{{"id": "r1", "code": "ABC123"}}})
		case http.MethodPost:
			var body struct {
				Room models.CreateRoomRequest `json:"room"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": "created",
				"room":    map[string]string{"id": "r2", "code": "XYZ789", "name": body.Room.Name},
			})
		}
	})
	mux.HandleFunc("/api/rooms/by-code/XYZ789", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"room": map[string]string{"id": "r3", "code": "XYZ789"}})
	})
	mux.HandleFunc("/api/rooms/by-code/ABC123/participants", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"room":         map[string]string{"id": "r1", "code": "ABC123"},
			"participants": []map[string]string{{"id": "p1", "user_id": "u1", "role": "owner"}},
		})
	})
	mux.HandleFunc("/api/rooms/by-code/ABC123/leave", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rooms := NewRoomService(httpclient.New(srv.URL, nil, time.Second))
	ctx := context.Background()

	list, err := rooms.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ABC123", list[0].Code)

	created, err := rooms.CreateRoom(ctx, &models.CreateRoomRequest{Name: "Daily"})
	require.NoError(t, err)
	assert.Equal(t, "Daily", created.DisplayName())

	_, err = rooms.CreateRoom(ctx, &models.CreateRoomRequest{Name: " "})
	assert.ErrorIs(t, err, ErrRoomNameRequired)

	room, err := rooms.GetRoomByCode(ctx, " XYZ789 ")
	require.NoError(t, err)
	assert.Equal(t, "r3", room.ID)

	participants, err := rooms.ListParticipantsByCode(ctx, "ABC123")
	require.NoError(t, err)
	require.Len(t, participants.Participants, 1)
	assert.Equal(t, "owner", participants.Participants[0].Role)

	require.NoError(t, rooms.LeaveRoomByCode(ctx, "ABC123"))

	_, err = rooms.GetRoomByCode(ctx, "MISSING")
	assert.Equal(t, http.StatusNotFound, httpclient.StatusOf(err))
}
