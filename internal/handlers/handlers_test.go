package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"roomlink/internal/httpclient"
	"roomlink/internal/lobby"
	"roomlink/internal/models"
	"roomlink/internal/peer"
	"roomlink/internal/room"
	"roomlink/internal/services"
	"roomlink/internal/session"
	"roomlink/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeController struct {
	calls []string

	invite    *models.Invite
	join      services.JoinResult
	joinErr   error
	messages  []models.ChatMessage
	sent      models.ChatMessage
	err       error
	lastCode  string
	lastBody  string
	lastTo    string
	lastLimit int
}

func (f *fakeController) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) Status() models.SessionStatus {
	return models.SessionStatus{Transport: "connected", Lobby: "joined", Room: "idle"}
}

func (f *fakeController) Online() []string { return []string{"1", "2"} }

func (f *fakeController) ActiveInvite() (models.Invite, bool) {
	if f.invite == nil {
		return models.Invite{}, false
	}
	return *f.invite, true
}

func (f *fakeController) Invite(to, roomCode string) error {
	f.lastTo, f.lastCode = to, roomCode
	return f.record("invite")
}

func (f *fakeController) AcceptInvite(ctx context.Context) (services.JoinResult, error) {
	f.record("accept")
	return f.join, f.joinErr
}

func (f *fakeController) DeclineInvite() error { return f.record("decline") }

func (f *fakeController) EnterRoom(ctx context.Context, code string) (services.JoinResult, error) {
	f.lastCode = code
	f.record("enter")
	return f.join, f.joinErr
}

func (f *fakeController) LeaveRoom(ctx context.Context) error { return f.record("leave") }

func (f *fakeController) Messages() ([]models.ChatMessage, error) {
	return f.messages, f.record("messages")
}

func (f *fakeController) SendChat(ctx context.Context, body string) (models.ChatMessage, error) {
	f.lastBody = body
	return f.sent, f.record("send")
}

func (f *fakeController) StartCall(ctx context.Context) error { return f.record("call") }
func (f *fakeController) Hangup() error                       { return f.record("hangup") }
func (f *fakeController) Ping() error                         { return f.record("ping") }

func (f *fakeController) History(ctx context.Context, code string, limit int) ([]models.ChatMessage, error) {
	f.lastCode, f.lastLimit = code, limit
	return f.messages, f.record("history")
}

type fakeDirectory struct {
	rooms   []*models.Room
	created *models.CreateRoomRequest
	err     error
}

func (d *fakeDirectory) ListRooms(ctx context.Context) ([]*models.Room, error) {
	return d.rooms, d.err
}

func (d *fakeDirectory) CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, services.ErrRoomNameRequired
	}
	d.created = req
	name := req.Name
	return &models.Room{ID: "9", Code: "ABC123", Name: &name, IsActive: true}, d.err
}

type fakeIdentity struct {
	user *models.User
	err  error
}

func (i *fakeIdentity) Me(ctx context.Context) (*models.User, error) {
	return i.user, i.err
}

type harness struct {
	ctrl     *fakeController
	dir      *fakeDirectory
	identity *fakeIdentity
	router   *gin.Engine
}

func newHarness() *harness {
	h := &harness{
		ctrl:     &fakeController{},
		dir:      &fakeDirectory{},
		identity: &fakeIdentity{user: &models.User{ID: "1", Email: "a@example.com", Name: "Alice"}},
	}
	h.router = NewRouter(h.ctrl, h.dir, h.identity)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestStatusAndOnline(t *testing.T) {
	h := newHarness()

	w, body := h.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "connected", body["transport"])
	assert.Equal(t, "joined", body["lobby"])

	w, body = h.do(t, http.MethodGet, "/lobby/online", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"1", "2"}, body["users"])
}

func TestActiveInvite(t *testing.T) {
	h := newHarness()

	w, _ := h.do(t, http.MethodGet, "/lobby/invite", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	h.ctrl.invite = &models.Invite{ID: "x", FromUserID: "1", RoomCode: "ABC123"}
	w, body := h.do(t, http.MethodGet, "/lobby/invite", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", body["from_user_id"])
	assert.Equal(t, "ABC123", body["room_code"])
}

func TestSendInvite(t *testing.T) {
	h := newHarness()

	w, _ := h.do(t, http.MethodPost, "/lobby/invites", `{"room_code":"ABC123"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(t, http.MethodPost, "/lobby/invites", `{"to":"2","room_code":"ABC123"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "2", h.ctrl.lastTo)
	assert.Equal(t, "ABC123", h.ctrl.lastCode)

	h.ctrl.err = lobby.ErrNotJoined
	w, body := h.do(t, http.MethodPost, "/lobby/invites", `{"to":"2"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, lobby.ErrNotJoined.Error(), body["error"])
}

func TestAcceptAndDeclineInvite(t *testing.T) {
	h := newHarness()
	h.ctrl.join = services.JoinResult{Code: "ABC123", Outcome: services.JoinAllowed}

	w, body := h.do(t, http.MethodPost, "/lobby/invite/accept", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "allowed", body["outcome"])

	h.ctrl.err = lobby.ErrNoPendingInvite
	w, _ = h.do(t, http.MethodPost, "/lobby/invite/decline", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"accept", "decline"}, h.ctrl.calls)
}

func TestEnterRoom(t *testing.T) {
	h := newHarness()
	name := "Daily"
	h.ctrl.join = services.JoinResult{
		Code:    "ABC123",
		Outcome: services.JoinAllowed,
		Room:    &models.Room{Code: "ABC123", Name: &name},
	}

	w, body := h.do(t, http.MethodPost, "/rooms/ABC123/enter", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ABC123", h.ctrl.lastCode)
	assert.Equal(t, "allowed", body["outcome"])
	assert.Equal(t, "Daily", body["room"].(map[string]interface{})["name"])

	h.ctrl.join = services.JoinResult{Code: "ABC123", Outcome: services.JoinPending, Message: "pending"}
	w, body = h.do(t, http.MethodPost, "/rooms/ABC123/enter", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "pending", body["outcome"])
}

func TestEnterRoomDenied(t *testing.T) {
	h := newHarness()
	h.ctrl.join = services.JoinResult{Code: "GONE", Outcome: services.JoinDenied, Status: http.StatusGone, Message: "closed"}
	h.ctrl.joinErr = h.ctrl.join.Err()

	w, body := h.do(t, http.MethodPost, "/rooms/GONE/enter", "")
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, true, body["leave"])

	h.ctrl.join = services.JoinResult{Code: "FULL", Outcome: services.JoinDenied, Status: http.StatusForbidden, Message: "full"}
	h.ctrl.joinErr = h.ctrl.join.Err()
	w, body = h.do(t, http.MethodPost, "/rooms/FULL/enter", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, body["leave"])
}

func TestRoomOperations(t *testing.T) {
	h := newHarness()
	h.ctrl.messages = []models.ChatMessage{{ID: "1", Body: "oi", UserName: "Alice"}}
	h.ctrl.sent = models.ChatMessage{ID: "2", Body: "hello"}

	w, body := h.do(t, http.MethodGet, "/room/messages", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["messages"], 1)

	w, body = h.do(t, http.MethodPost, "/room/messages", `{"body":"hello"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "hello", h.ctrl.lastBody)
	assert.Equal(t, "2", body["id"])

	for _, path := range []string{"/room/call", "/room/hangup", "/room/ping", "/room/leave"} {
		w, _ := h.do(t, http.MethodPost, path, "")
		assert.Less(t, w.Code, 300, path)
	}
	assert.Equal(t, []string{"messages", "send", "call", "hangup", "ping", "leave"}, h.ctrl.calls)
}

func TestHistory(t *testing.T) {
	h := newHarness()

	w, body := h.do(t, http.MethodGet, "/rooms/ABC123/history?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, body["messages"])
	assert.Equal(t, "ABC123", h.ctrl.lastCode)
	assert.Equal(t, 5, h.ctrl.lastLimit)

	w, _ = h.do(t, http.MethodGet, "/rooms/ABC123/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.ctrl.err = session.ErrNoArchive
	w, _ = h.do(t, http.MethodGet, "/rooms/ABC123/history", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRoomDirectory(t *testing.T) {
	h := newHarness()

	w, body := h.do(t, http.MethodGet, "/rooms", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, body["rooms"])

	w, body = h.do(t, http.MethodPost, "/rooms", `{"name":"Daily"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ABC123", body["code"])
	assert.Equal(t, "Daily", h.dir.created.Name)

	w, _ = h.do(t, http.MethodPost, "/rooms", `{"name":" "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.dir.err = &httpclient.APIError{Status: http.StatusUnauthorized, Message: "unauthorized"}
	w, _ = h.do(t, http.MethodGet, "/rooms", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe(t *testing.T) {
	h := newHarness()

	w, body := h.do(t, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice", body["display_name"])

	h.identity.err = errors.New("boom")
	w, _ = h.do(t, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{room.ErrEmptyMessage, http.StatusBadRequest},
		{services.ErrRoomCodeRequired, http.StatusBadRequest},
		{session.ErrNoRoom, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", peer.ErrCallInProgress), http.StatusConflict},
		{peer.ErrDataChannelNotOpen, http.StatusConflict},
		{room.ErrCallsDisabled, http.StatusNotImplemented},
		{&peer.MediaError{Err: errors.New("no device")}, http.StatusServiceUnavailable},
		{&websocket.PushError{Event: "chat:new", Status: websocket.StatusTimeout}, http.StatusGatewayTimeout},
		{&services.DeniedError{Code: "X", Status: http.StatusNotFound}, http.StatusNotFound},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
