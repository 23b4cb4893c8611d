package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"roomlink/internal/credentials"
	"roomlink/internal/database"
	"roomlink/internal/lobby"
	"roomlink/internal/models"
	"roomlink/internal/peer"
	"roomlink/internal/room"
	"roomlink/internal/services"
	"roomlink/internal/websocket"
	"roomlink/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	statusIdle         = "idle"
	statusConnecting   = "connecting"
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
)

type Options struct {
	SocketURL         string
	Store             credentials.Store
	API               services.API
	Identity          models.Identity
	HeartbeatInterval time.Duration
	JoinTimeout       time.Duration
	PushTimeout       time.Duration
	HistoryLimit      int

	// Factory enables calls; nil means chat only.
	Factory peer.Factory
	Media   peer.MediaSource
	// Archive, when set, records room chat and serves history.
	Archive database.Archive
}

// Session owns everything one signed-in client holds open: the socket, the
// lobby and at most one room.
type Session struct {
	opts   Options
	socket *websocket.Socket
	lobby  *lobby.Lobby
	gate   *services.JoinGate
	rooms  *services.RoomService

	mu        sync.Mutex
	transport string
	room      *room.Room
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

func New(opts Options) *Session {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = room.DefaultHistoryLimit
	}

	socket := websocket.NewSocket(websocket.Options{
		URL:               opts.SocketURL,
		Store:             opts.Store,
		HeartbeatInterval: opts.HeartbeatInterval,
	})

	s := &Session{
		opts:      opts,
		socket:    socket,
		lobby:     lobby.New(socket, lobby.Options{JoinTimeout: opts.JoinTimeout, PushTimeout: opts.PushTimeout}),
		gate:      services.NewJoinGate(opts.API),
		rooms:     services.NewRoomService(opts.API),
		transport: statusIdle,
	}

	socket.OnOpen(func() { s.setTransport(statusConnected) })
	socket.OnError(func(err error) {
		logger.Error("socket %s: %v", socket.ID(), err)
		s.setTransport("error: " + err.Error())
	})
	socket.OnClose(func(err error) {
		if err == nil {
			s.setTransport(statusDisconnected)
		}
	})
	return s
}

func (s *Session) setTransport(status string) {
	s.mu.Lock()
	s.transport = status
	s.mu.Unlock()
}

func (s *Session) Lobby() *lobby.Lobby {
	return s.lobby
}

// Room returns the active room, or nil.
func (s *Session) Room() *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Open connects the socket and joins the lobby. A lobby failure is logged
// and the session stays usable for rooms.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.transport = statusConnecting
	s.mu.Unlock()

	if err := s.socket.Connect(ctx); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	if err := s.lobby.Connect(ctx); err != nil {
		logger.Warn("lobby unavailable: %v", err)
	}
	return nil
}

func (s *Session) Status() models.SessionStatus {
	s.mu.Lock()
	status := models.SessionStatus{
		Transport: s.transport,
		Identity:  s.opts.Identity,
		Room:      room.StateIdle.String(),
	}
	r := s.room
	s.mu.Unlock()

	status.Lobby = s.lobby.State().String()
	status.Online = len(s.lobby.Online())
	status.PendingInvites = s.lobby.PendingInvites()

	if r != nil {
		status.RoomCode = r.Code()
		status.Room = r.State().String()
		status.Messages = r.Chat().Len()
		if n := r.Peer(); n != nil {
			status.Call = n.State().String()
			status.Connection = n.ConnectionState()
			status.DataChannel = n.DataChannelState()
		}
	}
	return status
}

func (s *Session) Online() []string {
	return s.lobby.Online()
}

func (s *Session) ActiveInvite() (models.Invite, bool) {
	return s.lobby.ActiveInvite()
}

// Invite asks toUserID into roomCode, or into the active room when roomCode
// is empty.
func (s *Session) Invite(toUserID, roomCode string) error {
	roomCode = strings.TrimSpace(roomCode)
	if roomCode == "" {
		if r := s.Room(); r != nil {
			roomCode = r.Code()
		}
	}
	return s.lobby.Invite(strings.TrimSpace(toUserID), roomCode)
}

// AcceptInvite answers the active invite and enters its room.
func (s *Session) AcceptInvite(ctx context.Context) (services.JoinResult, error) {
	invite, ok := s.lobby.ActiveInvite()
	if !ok {
		return services.JoinResult{}, lobby.ErrNoPendingInvite
	}
	if err := s.lobby.AcceptInvite(invite.FromUserID, invite.RoomCode); err != nil {
		return services.JoinResult{}, err
	}
	return s.EnterRoom(ctx, invite.RoomCode)
}

func (s *Session) DeclineInvite() error {
	invite, ok := s.lobby.ActiveInvite()
	if !ok {
		return lobby.ErrNoPendingInvite
	}
	return s.lobby.DeclineInvite(invite.FromUserID, invite.RoomCode)
}

// EnterRoom asks the join gate for admission and joins room:{code} when
// allowed. A pending result is returned without joining. Entering another
// room leaves the current one first.
func (s *Session) EnterRoom(ctx context.Context, code string) (services.JoinResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return services.JoinResult{}, services.ErrRoomCodeRequired
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return services.JoinResult{}, ErrClosed
	}
	current := s.room
	s.mu.Unlock()

	if current != nil && current.Code() == code && current.State() == room.StateJoined {
		return services.JoinResult{Code: code, Outcome: services.JoinAllowed}, nil
	}

	result, err := s.gate.RequestJoin(ctx, code)
	if err != nil {
		return result, err
	}

	switch result.Outcome {
	case services.JoinDenied:
		if result.ShouldLeave() && current != nil && current.Code() == code {
			if err := s.LeaveRoom(ctx); err != nil {
				logger.Warn("leaving %s: %v", code, err)
			}
		}
		return result, result.Err()
	case services.JoinPending:
		logger.Info("join %s pending approval", code)
		return result, nil
	}

	if current != nil {
		if err := s.LeaveRoom(ctx); err != nil {
			logger.Warn("leaving %s: %v", current.Code(), err)
		}
	}

	r := room.New(s.socket, code, s.opts.Identity, s.roomOptions())
	if err := r.Join(ctx); err != nil {
		r.Close(ctx)
		return result, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		r.Close(ctx)
		return result, ErrClosed
	}
	s.room = r
	s.mu.Unlock()
	return result, nil
}

func (s *Session) roomOptions() room.Options {
	return room.Options{
		JoinTimeout:  s.opts.JoinTimeout,
		PushTimeout:  s.opts.PushTimeout,
		HistoryLimit: s.opts.HistoryLimit,
		Factory:      s.opts.Factory,
		Media:        s.opts.Media,
		Archive:      s.opts.Archive,
	}
}

// LeaveRoom tears down the active room and tells the backend. Safe to call
// without a room.
func (s *Session) LeaveRoom(ctx context.Context) error {
	s.mu.Lock()
	r := s.room
	s.room = nil
	s.mu.Unlock()

	if r == nil {
		return nil
	}
	err := r.Close(ctx)
	if leaveErr := s.rooms.LeaveRoomByCode(ctx, r.Code()); leaveErr != nil {
		logger.Warn("%v", leaveErr)
	}
	return err
}

func (s *Session) activeRoom() (*room.Room, error) {
	r := s.Room()
	if r == nil {
		return nil, ErrNoRoom
	}
	return r, nil
}

func (s *Session) Messages() ([]models.ChatMessage, error) {
	r, err := s.activeRoom()
	if err != nil {
		return nil, err
	}
	return r.Chat().Messages(), nil
}

func (s *Session) SendChat(ctx context.Context, body string) (models.ChatMessage, error) {
	r, err := s.activeRoom()
	if err != nil {
		return models.ChatMessage{}, err
	}
	return r.SendChat(ctx, body)
}

func (s *Session) StartCall(ctx context.Context) error {
	r, err := s.activeRoom()
	if err != nil {
		return err
	}
	return r.StartCall(ctx)
}

func (s *Session) Hangup() error {
	r, err := s.activeRoom()
	if err != nil {
		return err
	}
	return r.Hangup()
}

func (s *Session) Ping() error {
	r, err := s.activeRoom()
	if err != nil {
		return err
	}
	return r.Ping()
}

// History reads archived messages of code, oldest first.
func (s *Session) History(ctx context.Context, code string, limit int) ([]models.ChatMessage, error) {
	if s.opts.Archive == nil {
		return nil, ErrNoArchive
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, services.ErrRoomCodeRequired
	}
	if limit <= 0 || limit > s.opts.HistoryLimit {
		limit = s.opts.HistoryLimit
	}
	return s.opts.Archive.LoadRecentMessages(ctx, code, limit)
}

// Close leaves the room and the lobby, then disconnects the socket. Safe to
// call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		r := s.room
		s.room = nil
		s.mu.Unlock()

		var g errgroup.Group
		if r != nil {
			g.Go(func() error { return r.Close(ctx) })
		}
		g.Go(func() error { return s.lobby.Disconnect(ctx) })
		s.closeErr = g.Wait()

		s.socket.Disconnect()
		s.setTransport(statusDisconnected)
	})
	return s.closeErr
}
