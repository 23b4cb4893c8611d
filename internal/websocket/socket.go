package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"roomlink/internal/credentials"
	"roomlink/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	protocolVersion = "2.0.0"

	DefaultHeartbeatInterval = 30 * time.Second
	DefaultPushTimeout       = 10 * time.Second

	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

type Options struct {
	URL               string
	Store             credentials.Store
	HeartbeatInterval time.Duration
	Dialer            *websocket.Dialer
}

// Socket is one physical Phoenix connection shared by every channel of a
// session. It does not reconnect; once closed a new Socket must be made.
type Socket struct {
	opts Options
	id   string

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	connected atomic.Bool
	ref       atomic.Uint64

	mu               sync.Mutex
	channels         map[string]*Channel
	pending          map[string]*Receipt
	pendingHeartbeat string
	onOpen           []func()
	onError          []func(error)
	onClose          []func(error)
}

func NewSocket(opts Options) *Socket {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Socket{
		opts:     opts,
		id:       uuid.NewString(),
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		channels: make(map[string]*Channel),
		pending:  make(map[string]*Receipt),
	}
}

func (s *Socket) ID() string {
	return s.id
}

func (s *Socket) OnOpen(fn func()) {
	s.mu.Lock()
	s.onOpen = append(s.onOpen, fn)
	s.mu.Unlock()
}

func (s *Socket) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = append(s.onError, fn)
	s.mu.Unlock()
}

func (s *Socket) OnClose(fn func(error)) {
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

func (s *Socket) IsConnected() bool {
	return s.connected.Load()
}

func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// endpointURL builds the connect URL. The token is read now so a refreshed
// credential is always the one presented.
func (s *Socket) endpointURL(ctx context.Context) (string, error) {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}

	q := u.Query()
	if s.opts.Store != nil {
		token, err := s.opts.Store.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		if token = credentials.Normalize(token); token != "" {
			q.Set("token", token)
		}
	}
	q.Set("vsn", protocolVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Socket) Connect(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}
	s.mu.Lock()
	existing := s.conn
	s.mu.Unlock()
	if existing != nil {
		return ErrAlreadyConnected
	}

	endpoint, err := s.endpointURL(ctx)
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}

	conn, _, err := s.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		terr := &TransportError{Op: "connect", Err: err}
		s.emitError(terr)
		return terr
	}
	conn.SetReadLimit(maxMessageSize)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	logger.Debug("socket %s connected to %s", s.id, s.opts.URL)

	go s.readPump()
	go s.writePump()

	s.mu.Lock()
	callbacks := append([]func(){}, s.onOpen...)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// Disconnect closes the connection. Safe to call more than once.
func (s *Socket) Disconnect() {
	s.shutdown(nil)
}

// Channel returns a new channel for topic, replacing any earlier channel
// registered for the same topic.
func (s *Socket) Channel(topic string) *Channel {
	ch := newChannel(s, topic)
	s.mu.Lock()
	s.channels[topic] = ch
	s.mu.Unlock()
	return ch
}

func (s *Socket) removeChannel(ch *Channel) {
	s.mu.Lock()
	if s.channels[ch.topic] == ch {
		delete(s.channels, ch.topic)
	}
	s.mu.Unlock()
}

func (s *Socket) makeRef() string {
	return strconv.FormatUint(s.ref.Add(1), 10)
}

// push sends a frame and tracks its reply under msg.Ref.
func (s *Socket) push(msg Message, timeout time.Duration) *Receipt {
	if !s.connected.Load() {
		return failedReceipt(msg.Event, ErrNotConnected)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return failedReceipt(msg.Event, err)
	}

	r := newReceipt(msg.Event, msg.Ref)
	s.mu.Lock()
	s.pending[msg.Ref] = r
	r.timer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		delete(s.pending, msg.Ref)
		s.mu.Unlock()
		r.resolve(Reply{Status: StatusTimeout})
	})
	s.mu.Unlock()

	if err := s.enqueue(data); err != nil {
		s.mu.Lock()
		delete(s.pending, msg.Ref)
		s.mu.Unlock()
		r.fail(err)
	}
	return r
}

func (s *Socket) enqueue(data []byte) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrSocketClosed
	}
}

func (s *Socket) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("socket %s read error: %v", s.id, err)
			}
			s.shutdown(&TransportError{Op: "read", Err: err})
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("socket %s dropped malformed frame: %v", s.id, err)
			continue
		}
		s.route(msg)
	}
}

func (s *Socket) route(msg Message) {
	if msg.Event == EventReply {
		var reply Reply
		if err := msg.Decode(&reply); err != nil {
			logger.Warn("socket %s: %v", s.id, err)
			return
		}

		s.mu.Lock()
		if msg.Topic == phoenixTopic && msg.Ref == s.pendingHeartbeat {
			s.pendingHeartbeat = ""
		}
		r := s.pending[msg.Ref]
		delete(s.pending, msg.Ref)
		ch := s.channels[msg.Topic]
		s.mu.Unlock()

		if r == nil {
			return
		}
		// the join must take effect before the next frame is routed
		if ch != nil {
			ch.ackJoin(msg.Ref, reply.Status)
		}
		r.resolve(reply)
		return
	}

	s.mu.Lock()
	ch := s.channels[msg.Topic]
	s.mu.Unlock()
	if ch == nil {
		logger.Debug("socket %s dropped %s for unknown topic %s", s.id, msg.Event, msg.Topic)
		return
	}
	ch.deliver(msg)
}

func (s *Socket) writePump() {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.shutdown(&TransportError{Op: "write", Err: err})
				return
			}

		case <-ticker.C:
			if err := s.heartbeat(); err != nil {
				s.shutdown(&TransportError{Op: "heartbeat", Err: err})
				return
			}

		case <-s.done:
			return
		}
	}
}

// heartbeat fails if the previous heartbeat was never answered.
func (s *Socket) heartbeat() error {
	s.mu.Lock()
	if s.pendingHeartbeat != "" {
		s.mu.Unlock()
		return ErrHeartbeatTimeout
	}
	ref := s.makeRef()
	s.pendingHeartbeat = ref
	s.mu.Unlock()

	data, err := json.Marshal(Message{Ref: ref, Topic: phoenixTopic, Event: EventHeartbeat})
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Socket) shutdown(cause error) {
	s.closeOnce.Do(func() {
		wasConnected := s.connected.Swap(false)
		close(s.done)

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}

		s.mu.Lock()
		pending := s.pending
		s.pending = make(map[string]*Receipt)
		channels := make([]*Channel, 0, len(s.channels))
		for _, ch := range s.channels {
			channels = append(channels, ch)
		}
		s.channels = make(map[string]*Channel)
		onError := append([]func(error){}, s.onError...)
		onClose := append([]func(error){}, s.onClose...)
		s.mu.Unlock()

		failure := cause
		if failure == nil {
			failure = ErrSocketClosed
		}
		for _, r := range pending {
			r.fail(failure)
		}
		for _, ch := range channels {
			ch.close()
		}

		if !wasConnected {
			return
		}
		if cause != nil {
			logger.Warn("socket %s closed: %v", s.id, cause)
			for _, fn := range onError {
				fn(cause)
			}
		} else {
			logger.Debug("socket %s disconnected", s.id)
		}
		for _, fn := range onClose {
			fn(cause)
		}
	})
}

func (s *Socket) emitError(err error) {
	s.mu.Lock()
	callbacks := append([]func(error){}, s.onError...)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(err)
	}
}
