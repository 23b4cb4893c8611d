package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"roomlink/internal/models"
	"roomlink/internal/peer"
	"roomlink/internal/websocket"
	"roomlink/pkg/logger"
)

type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

const archiveTimeout = 5 * time.Second

// Transport opens channels on the shared socket.
type Transport interface {
	Channel(topic string) *websocket.Channel
}

// Archive records chat messages as they arrive.
type Archive interface {
	SaveMessage(ctx context.Context, roomCode string, msg models.ChatMessage) error
}

type Options struct {
	JoinTimeout  time.Duration
	PushTimeout  time.Duration
	HistoryLimit int
	// Log receives push outcomes and negotiation steps.
	Log func(string)

	// Factory and Media enable calls. Without a Factory the room is
	// chat only.
	Factory peer.Factory
	Media   peer.MediaSource
	// OnData receives text arriving on the peer data channel.
	OnData func(string)

	Archive Archive
}

// Room is one joined room:{code} channel: chat plus call signaling.
type Room struct {
	transport Transport
	code      string
	identity  models.Identity
	opts      Options

	chat *ChatStream
	peer *peer.Negotiator

	mu      sync.Mutex
	state   State
	channel *websocket.Channel

	events    chan Event
	closeOnce sync.Once
	closeErr  error
}

func New(transport Transport, code string, identity models.Identity, opts Options) *Room {
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = websocket.DefaultPushTimeout
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = websocket.DefaultPushTimeout
	}
	if opts.Log == nil {
		opts.Log = logger.Sink("room " + code + ": ")
	}

	r := &Room{
		transport: transport,
		code:      code,
		identity:  identity,
		opts:      opts,
		chat:      NewChatStream(identity, opts.HistoryLimit),
		events:    make(chan Event, 64),
	}
	if opts.Factory != nil {
		media := opts.Media
		if media == nil {
			media = peer.SampleSource{}
		}
		r.peer = peer.NewNegotiator(opts.Factory, media, r, peer.Options{
			Log:       opts.Log,
			OnMessage: opts.OnData,
		})
	}
	return r
}

func (r *Room) Code() string {
	return r.code
}

func (r *Room) Identity() models.Identity {
	return r.identity
}

func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) Chat() *ChatStream {
	return r.chat
}

// Peer returns the call negotiator, or nil when calls are disabled.
func (r *Room) Peer() *peer.Negotiator {
	return r.peer
}

// Events mirrors every handled event for observers. Events are dropped when
// nobody keeps up.
func (r *Room) Events() <-chan Event {
	return r.events
}

// Join joins room:{code}. Inbound events are handled only once the join
// succeeded.
func (r *Room) Join(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateClosed:
		r.mu.Unlock()
		return ErrClosed
	case StateIdle:
	default:
		r.mu.Unlock()
		return ErrAlreadyJoined
	}
	r.state = StateJoining
	ch := r.transport.Channel(models.RoomTopic(r.code))
	r.channel = ch
	r.mu.Unlock()

	if err := ch.Join(ctx, nil, r.opts.JoinTimeout); err != nil {
		r.mu.Lock()
		if r.state == StateJoining {
			r.state = StateIdle
			r.channel = nil
		}
		r.mu.Unlock()
		r.opts.Log(fmt.Sprintf("%s join failed: %v", ch.Topic(), err))
		return err
	}

	r.mu.Lock()
	if r.state != StateJoining {
		r.mu.Unlock()
		return ErrNotJoined
	}
	r.state = StateJoined
	r.mu.Unlock()
	r.opts.Log(fmt.Sprintf("%s join ok", ch.Topic()))

	go r.dispatch(ch)
	return nil
}

func (r *Room) dispatch(ch *websocket.Channel) {
	for {
		select {
		case msg := <-ch.Events():
			ev, err := decodeEvent(msg)
			if err != nil {
				logger.Warn("room %s: %v", r.code, err)
				continue
			}
			r.apply(ev)

		case <-ch.Done():
			r.mu.Lock()
			if r.channel == ch && r.state == StateJoined {
				r.state = StateIdle
				r.channel = nil
			}
			r.mu.Unlock()
			return
		}
	}
}

func (r *Room) apply(ev Event) {
	ctx := context.Background()

	switch e := ev.(type) {
	case ChatReceived:
		r.chat.Append(e.Message)
		r.archive(e.Message)

	case OfferReceived:
		if r.peer == nil {
			r.opts.Log("offer ignored, calls disabled")
			break
		}
		if err := r.peer.HandleOffer(ctx, e.SDP); err != nil {
			r.opts.Log(fmt.Sprintf("offer: %v", err))
		}

	case AnswerReceived:
		if r.peer == nil {
			break
		}
		if err := r.peer.HandleAnswer(ctx, e.SDP); err != nil {
			r.opts.Log(fmt.Sprintf("answer: %v", err))
		}

	case CandidateReceived:
		if r.peer == nil {
			break
		}
		if err := r.peer.HandleICE(ctx, e.Candidate); err != nil {
			r.opts.Log(fmt.Sprintf("ice: %v", err))
		}

	case HangupReceived:
		if r.peer != nil {
			if err := r.peer.HandleRemoteHangup(); err != nil {
				r.opts.Log(fmt.Sprintf("hangup: %v", err))
			}
		}

	case UnknownEvent:
		logger.Debug("room %s: unhandled event %s", r.code, e.Name)
	}

	select {
	case r.events <- ev:
	default:
		logger.Debug("room %s: event dropped, no reader", r.code)
	}
}

func (r *Room) archive(msg models.ChatMessage) {
	if r.opts.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := r.opts.Archive.SaveMessage(ctx, r.code, msg); err != nil {
		logger.Warn("room %s: failed to archive message %s: %v", r.code, msg.ID, err)
	}
}

func (r *Room) joinedChannel() (*websocket.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateJoined || r.channel == nil {
		return nil, ErrNotJoined
	}
	return r.channel, nil
}

// SendChat pushes chat:new and waits for the reply. The message itself
// arrives back as chat:message.
func (r *Room) SendChat(ctx context.Context, body string) (models.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	ch, err := r.joinedChannel()
	if err != nil {
		return models.ChatMessage{}, err
	}

	receipt := ch.Push(string(models.EventChatNew), models.ChatNew{Body: body, UserName: r.identity.Name}, r.opts.PushTimeout)
	reply, err := receipt.Wait(ctx)
	if err != nil {
		if websocket.IsTimeout(err) {
			r.opts.Log("chat timeout")
		} else {
			r.opts.Log(fmt.Sprintf("chat error: %v", err))
		}
		return models.ChatMessage{}, err
	}

	// the reply may or may not echo the stored message
	msg, err := decodeChat(reply.Response)
	if err != nil {
		logger.Debug("room %s: chat reply: %v", r.code, err)
	}
	if msg.Body == "" {
		msg = models.ChatMessage{Body: body, UserID: r.identity.ID, UserName: r.identity.Name}
	}
	return msg, nil
}

// Signal pushes a negotiation message on the room channel. Outcomes are
// only logged.
func (r *Room) Signal(event models.EventType, payload interface{}) {
	ch, err := r.joinedChannel()
	if err != nil {
		r.opts.Log(fmt.Sprintf("%s dropped: %v", event, err))
		return
	}
	receipt := ch.Push(string(event), payload, r.opts.PushTimeout)
	go r.report(receipt, string(event))
}

func (r *Room) report(receipt *websocket.Receipt, label string) {
	_, err := receipt.Wait(context.Background())
	switch {
	case err == nil:
		logger.Debug("room %s: %s sent", r.code, label)
	case websocket.IsTimeout(err):
		r.opts.Log(label + " timeout")
	default:
		r.opts.Log(fmt.Sprintf("%s error: %v", label, err))
	}
}

func (r *Room) StartCall(ctx context.Context) error {
	if r.peer == nil {
		return ErrCallsDisabled
	}
	if _, err := r.joinedChannel(); err != nil {
		return err
	}
	return r.peer.StartCall(ctx)
}

func (r *Room) Hangup() error {
	if r.peer == nil {
		return ErrCallsDisabled
	}
	return r.peer.Hangup()
}

func (r *Room) Ping() error {
	if r.peer == nil {
		return ErrCallsDisabled
	}
	return r.peer.Ping()
}

// Close stops local media, closes the peer connection and leaves the
// channel. Every step runs even when an earlier one fails.
func (r *Room) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		var errs []error
		if r.peer != nil {
			if err := r.peer.StopMedia(); err != nil {
				errs = append(errs, fmt.Errorf("stop media: %w", err))
			}
			if err := r.peer.ClosePeer(); err != nil {
				errs = append(errs, fmt.Errorf("close peer: %w", err))
			}
			r.peer.Close()
		}

		r.mu.Lock()
		ch := r.channel
		r.channel = nil
		r.state = StateClosed
		r.mu.Unlock()

		if ch != nil {
			if err := ch.Leave(ctx); err != nil {
				errs = append(errs, fmt.Errorf("leave %s: %w", ch.Topic(), err))
			}
		}

		r.closeErr = errors.Join(errs...)
		if r.closeErr != nil {
			logger.Warn("room %s: teardown: %v", r.code, r.closeErr)
		}
	})
	return r.closeErr
}
