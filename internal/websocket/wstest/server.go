// Package wstest runs an in-process Phoenix v2 endpoint for tests.
package wstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is a decoded [join_ref, ref, topic, event, payload] array.
type Frame struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

func (f Frame) Decode(t testing.TB, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(f.Payload, v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Event, err)
	}
}

func (f Frame) MarshalJSON() ([]byte, error) {
	payload := f.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]interface{}{orNull(f.JoinRef), orNull(f.Ref), f.Topic, f.Event, payload})
}

func (f *Frame) UnmarshalJSON(data []byte) error {
	var parts [5]json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	var joinRef, ref *string
	json.Unmarshal(parts[0], &joinRef)
	json.Unmarshal(parts[1], &ref)
	if joinRef != nil {
		f.JoinRef = *joinRef
	}
	if ref != nil {
		f.Ref = *ref
	}
	json.Unmarshal(parts[2], &f.Topic)
	json.Unmarshal(parts[3], &f.Event)
	f.Payload = parts[4]
	return nil
}

func orNull(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Reply is what a handler answers to a join or push. A nil *Reply means no
// answer is sent, which lets tests exercise timeouts.
type Reply struct {
	Status   string
	Response interface{}
}

func OK(response interface{}) *Reply {
	return &Reply{Status: "ok", Response: response}
}

func Error(response interface{}) *Reply {
	return &Reply{Status: "error", Response: response}
}

type Server struct {
	*httptest.Server

	// OnJoin answers phx_join. Defaults to OK with an empty response.
	OnJoin func(c *Conn, f Frame) *Reply
	// AfterJoin runs right after an ok join reply is written, before the
	// next client frame is read. Frames it pushes follow the reply with no
	// gap.
	AfterJoin func(c *Conn, f Frame)
	// OnPush answers every other client push. Defaults to OK.
	OnPush func(c *Conn, f Frame) *Reply
	// IgnoreHeartbeats stops the server from answering heartbeats.
	IgnoreHeartbeats bool

	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    []*Conn
	connCh   chan *Conn
}

func NewServer(t testing.TB) *Server {
	s := &Server{connCh: make(chan *Conn, 16)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// endpoint clients should dial.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/socket/websocket"
}

func (s *Server) Close() {
	s.mu.Lock()
	conns := append([]*Conn{}, s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	s.Server.Close()
}

// NextConn waits for the next client connection.
func (s *Server) NextConn(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-s.connCh:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no client connected")
		return nil
	}
}

// ConnFor returns the live connection that presented token, or nil.
func (s *Server) ConnFor(token string) *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		if c.Token() == token && !c.closed() {
			return c
		}
	}
	return nil
}

// Broadcast sends event to every connection joined to topic.
func (s *Server) Broadcast(topic, event string, payload interface{}) {
	s.mu.Lock()
	conns := append([]*Conn{}, s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		if c.Joined(topic) {
			c.Push(topic, event, payload)
		}
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &Conn{
		srv:    s,
		ws:     ws,
		Query:  r.URL.Query(),
		joins:  make(map[string]string),
		frames: make(chan Frame, 1024),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()
	s.connCh <- c

	c.readLoop()
}

type Conn struct {
	srv   *Server
	ws    *websocket.Conn
	Query url.Values

	writeMu   sync.Mutex
	mu        sync.Mutex
	joins     map[string]string
	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) Token() string {
	return c.Query.Get("token")
}

func (c *Conn) Joined(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joins[topic]
	return ok
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// Next returns the next client frame other than heartbeats.
func (c *Conn) Next(t testing.TB) Frame {
	t.Helper()
	select {
	case f := <-c.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return Frame{}
	}
}

// NextEvent skips frames until one with event arrives.
func (c *Conn) NextEvent(t testing.TB, event string) Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-c.frames:
			if f.Event == event {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s frame received", event)
			return Frame{}
		}
	}
}

// Push sends a server initiated event on topic using the topic's join_ref.
func (c *Conn) Push(topic, event string, payload interface{}) {
	c.mu.Lock()
	joinRef := c.joins[topic]
	c.mu.Unlock()
	c.write(Frame{JoinRef: joinRef, Topic: topic, Event: event, Payload: mustJSON(payload)})
}

// PushRaw sends f unchanged.
func (c *Conn) PushRaw(f Frame) {
	c.write(f)
}

func (c *Conn) reply(f Frame, r *Reply) {
	response := r.Response
	if response == nil {
		response = map[string]interface{}{}
	}
	c.write(Frame{
		JoinRef: f.JoinRef,
		Ref:     f.Ref,
		Topic:   f.Topic,
		Event:   "phx_reply",
		Payload: mustJSON(map[string]interface{}{"status": r.Status, "response": response}),
	})
}

func (c *Conn) write(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		c.handle(f)
	}
}

func (c *Conn) handle(f Frame) {
	switch {
	case f.Topic == "phoenix" && f.Event == "heartbeat":
		if !c.srv.IgnoreHeartbeats {
			c.reply(f, OK(nil))
		}
		return

	case f.Event == "phx_join":
		r := OK(nil)
		if c.srv.OnJoin != nil {
			r = c.srv.OnJoin(c, f)
		}
		if r != nil && r.Status == "ok" {
			c.mu.Lock()
			c.joins[f.Topic] = f.JoinRef
			c.mu.Unlock()
		}
		c.record(f)
		if r != nil {
			c.reply(f, r)
			if r.Status == "ok" && c.srv.AfterJoin != nil {
				c.srv.AfterJoin(c, f)
			}
		}
		return

	case f.Event == "phx_leave":
		c.mu.Lock()
		delete(c.joins, f.Topic)
		c.mu.Unlock()
		c.record(f)
		c.reply(f, OK(nil))
		return
	}

	c.record(f)
	r := OK(nil)
	if c.srv.OnPush != nil {
		r = c.srv.OnPush(c, f)
	}
	if r != nil {
		c.reply(f, r)
	}
}

func (c *Conn) record(f Frame) {
	select {
	case c.frames <- f:
	default:
	}
}

func mustJSON(v interface{}) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	if v == nil {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
