package lobby

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"roomlink/internal/models"
	"roomlink/internal/websocket"
	"roomlink/pkg/logger"

	"github.com/google/uuid"
)

type State int

const (
	StateDisconnected State = iota
	StateJoining
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	default:
		return "disconnected"
	}
}

// Transport opens channels on the shared socket.
type Transport interface {
	Channel(topic string) *websocket.Channel
}

type Options struct {
	JoinTimeout time.Duration
	PushTimeout time.Duration
	// Log receives one line per push outcome and lifecycle step.
	Log func(string)
}

// Lobby tracks who is online and relays invites over lobby:global.
type Lobby struct {
	transport Transport
	opts      Options

	mu      sync.Mutex
	state   State
	channel *websocket.Channel
	online  map[string]map[string]struct{}
	invites []models.Invite

	events chan Event
}

func New(transport Transport, opts Options) *Lobby {
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = websocket.DefaultPushTimeout
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = websocket.DefaultPushTimeout
	}
	if opts.Log == nil {
		opts.Log = logger.Sink("lobby: ")
	}
	return &Lobby{
		transport: transport,
		opts:      opts,
		online:    make(map[string]map[string]struct{}),
		events:    make(chan Event, 64),
	}
}

func (l *Lobby) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Events mirrors every applied event for observers. Events are dropped when
// nobody keeps up.
func (l *Lobby) Events() <-chan Event {
	return l.events
}

// Connect joins lobby:global. A failed join leaves the lobby disconnected
// and returns the reason; callers may carry on without the lobby.
func (l *Lobby) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateDisconnected {
		l.mu.Unlock()
		return ErrAlreadyJoined
	}
	l.state = StateJoining
	ch := l.transport.Channel(models.LobbyTopic)
	l.channel = ch
	l.mu.Unlock()

	if err := ch.Join(ctx, nil, l.opts.JoinTimeout); err != nil {
		l.mu.Lock()
		if l.channel == ch {
			l.state = StateDisconnected
			l.channel = nil
		}
		l.mu.Unlock()
		l.opts.Log(fmt.Sprintf("%s join failed: %v", models.LobbyTopic, err))
		return err
	}

	l.mu.Lock()
	l.state = StateJoined
	l.mu.Unlock()
	l.opts.Log(fmt.Sprintf("%s join ok", models.LobbyTopic))

	go l.dispatch(ch)
	return nil
}

func (l *Lobby) dispatch(ch *websocket.Channel) {
	for {
		select {
		case msg := <-ch.Events():
			ev, err := decodeEvent(msg)
			if err != nil {
				logger.Warn("lobby: %v", err)
				continue
			}
			l.apply(ev)

		case <-ch.Done():
			l.mu.Lock()
			if l.channel == ch {
				l.state = StateDisconnected
				l.channel = nil
			}
			l.mu.Unlock()
			return
		}
	}
}

func (l *Lobby) apply(ev Event) {
	switch e := ev.(type) {
	case PresenceState:
		l.mu.Lock()
		l.online = make(map[string]map[string]struct{}, len(e.Presences))
		for id, refs := range e.Presences {
			l.online[id] = refSet(refs)
		}
		l.mu.Unlock()

	case PresenceDiff:
		l.mu.Lock()
		l.applyDiff(e)
		l.mu.Unlock()

	case InviteIncoming:
		invite := e.Invite
		if !l.enqueue(&invite) {
			l.opts.Log(fmt.Sprintf("duplicate invite from %s to %s dropped", invite.FromUserID, invite.RoomCode))
			return
		}
		e.Invite = invite
		ev = e
		l.opts.Log(fmt.Sprintf("invite from %s to %s", invite.FromUserID, invite.RoomCode))

	case InviteAccepted:
		l.opts.Log(fmt.Sprintf("%s accepted the invite to %s", e.Outcome.ByUserID, e.Outcome.RoomCode))

	case InviteDeclined:
		l.opts.Log(fmt.Sprintf("%s declined the invite to %s", e.Outcome.ByUserID, e.Outcome.RoomCode))

	case UnknownEvent:
		logger.Debug("lobby: unhandled event %s", e.Name)
	}

	select {
	case l.events <- ev:
	default:
		logger.Debug("lobby: event dropped, no reader")
	}
}

func refSet(refs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		set[ref] = struct{}{}
	}
	return set
}

// applyDiff merges joins before removing leaves. A user in both stays
// online. Otherwise a user goes offline once no session is left, or when
// the leave carries no session refs at all.
func (l *Lobby) applyDiff(diff PresenceDiff) {
	for id, refs := range diff.Joins {
		set, ok := l.online[id]
		if !ok {
			set = make(map[string]struct{}, len(refs))
			l.online[id] = set
		}
		for _, ref := range refs {
			set[ref] = struct{}{}
		}
	}
	for id, refs := range diff.Leaves {
		set, ok := l.online[id]
		if !ok {
			continue
		}
		for _, ref := range refs {
			delete(set, ref)
		}
		if _, rejoined := diff.Joins[id]; rejoined {
			continue
		}
		if len(refs) == 0 || len(set) == 0 {
			delete(l.online, id)
		}
	}
}

// enqueue appends invite unless the same sender already invited to the same
// room. The first queued invite is the active one.
func (l *Lobby) enqueue(invite *models.Invite) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, queued := range l.invites {
		if queued.FromUserID == invite.FromUserID && queued.RoomCode == invite.RoomCode {
			return false
		}
	}
	invite.ID = uuid.NewString()
	l.invites = append(l.invites, *invite)
	return true
}

// Online returns the online user ids, sorted.
func (l *Lobby) Online() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	users := make([]string, 0, len(l.online))
	for id := range l.online {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// ActiveInvite returns the invite currently awaiting an answer.
func (l *Lobby) ActiveInvite() (models.Invite, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.invites) == 0 {
		return models.Invite{}, false
	}
	return l.invites[0], true
}

func (l *Lobby) PendingInvites() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.invites)
}

// Invite asks toUserID to join roomCode. The outcome is only logged.
func (l *Lobby) Invite(toUserID, roomCode string) error {
	return l.push(models.EventInviteSend, toUserID, roomCode, "invite")
}

func (l *Lobby) AcceptInvite(fromUserID, roomCode string) error {
	if err := l.push(models.EventInviteAccept, fromUserID, roomCode, "accept"); err != nil {
		return err
	}
	l.resolve(fromUserID, roomCode)
	return nil
}

func (l *Lobby) DeclineInvite(fromUserID, roomCode string) error {
	if err := l.push(models.EventInviteDecline, fromUserID, roomCode, "decline"); err != nil {
		return err
	}
	l.resolve(fromUserID, roomCode)
	return nil
}

// resolve drops the answered invite so the next queued one becomes active.
func (l *Lobby) resolve(fromUserID, roomCode string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, invite := range l.invites {
		if invite.FromUserID == fromUserID && invite.RoomCode == roomCode {
			l.invites = append(l.invites[:i], l.invites[i+1:]...)
			return
		}
	}
}

func (l *Lobby) push(event models.EventType, to, roomCode, label string) error {
	if to == "" || roomCode == "" {
		return ErrInvalidInvite
	}

	l.mu.Lock()
	ch, state := l.channel, l.state
	l.mu.Unlock()
	if state != StateJoined || ch == nil {
		return ErrNotJoined
	}

	receipt := ch.Push(string(event), models.InviteTarget{To: to, RoomCode: roomCode}, l.opts.PushTimeout)
	go l.report(receipt, label)
	return nil
}

func (l *Lobby) report(receipt *websocket.Receipt, label string) {
	_, err := receipt.Wait(context.Background())
	switch {
	case err == nil:
		l.opts.Log(label + " sent")
	case websocket.IsTimeout(err):
		l.opts.Log(label + " timeout")
	default:
		l.opts.Log(fmt.Sprintf("%s error: %v", label, err))
	}
}

// Disconnect leaves lobby:global. Safe to call when not joined.
func (l *Lobby) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	ch := l.channel
	l.channel = nil
	l.state = StateDisconnected
	l.mu.Unlock()

	if ch == nil {
		return nil
	}
	if err := ch.Leave(ctx); err != nil {
		logger.Debug("lobby: leave: %v", err)
		return err
	}
	return nil
}
