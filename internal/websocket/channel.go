package websocket

import (
	"context"
	"sync"
	"time"

	"roomlink/pkg/logger"
)

type ChannelState int

const (
	ChannelClosed ChannelState = iota
	ChannelJoining
	ChannelJoined
	ChannelLeaving
	ChannelErrored
)

func (s ChannelState) String() string {
	switch s {
	case ChannelJoining:
		return "joining"
	case ChannelJoined:
		return "joined"
	case ChannelLeaving:
		return "leaving"
	case ChannelErrored:
		return "errored"
	default:
		return "closed"
	}
}

const eventBufferSize = 256

// Channel is one topic subscription multiplexed over a Socket. A Channel is
// joined at most once; make a new one from the Socket to join again.
type Channel struct {
	socket *Socket
	topic  string

	mu       sync.Mutex
	state    ChannelState
	joinRef  string
	attempts int

	events   chan Message
	done     chan struct{}
	doneOnce sync.Once
}

func newChannel(s *Socket, topic string) *Channel {
	return &Channel{
		socket: s,
		topic:  topic,
		events: make(chan Message, eventBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Channel) Topic() string {
	return c.topic
}

func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events delivers inbound frames in arrival order while the channel is
// joined. It is never closed; select on Done as well.
func (c *Channel) Events() <-chan Message {
	return c.events
}

// Done is closed once the channel has left, errored or lost its socket.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Join sends phx_join and waits for the reply. A refused join returns a
// *JoinError with the server's reason, an unanswered one a *JoinError with
// Timeout set.
func (c *Channel) Join(ctx context.Context, payload interface{}, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}

	c.mu.Lock()
	if c.attempts > 0 {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.attempts++
	c.state = ChannelJoining
	c.joinRef = c.socket.makeRef()
	joinRef := c.joinRef
	c.mu.Unlock()

	data, err := encodePayload(payload)
	if err != nil {
		c.setState(ChannelErrored)
		c.close()
		return err
	}

	receipt := c.socket.push(Message{
		JoinRef: joinRef,
		Ref:     joinRef,
		Topic:   c.topic,
		Event:   EventJoin,
		Payload: data,
	}, timeout)

	reply, err := receipt.Wait(ctx)
	if err == nil {
		logger.Debug("joined %s", c.topic)
		return nil
	}

	c.setState(ChannelErrored)
	defer c.close()

	if IsTimeout(err) {
		c.sendLeave(joinRef)
		return &JoinError{Topic: c.topic, Timeout: true}
	}
	if reply.Status == StatusError {
		return &JoinError{Topic: c.topic, Reason: joinReason(reply.Response), Response: reply.Response}
	}
	return err
}

// Push sends event on the joined channel. The returned receipt resolves with
// the server reply, a *PushError on error or timeout, or a transport error.
func (c *Channel) Push(event string, payload interface{}, timeout time.Duration) *Receipt {
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}

	c.mu.Lock()
	state, joinRef := c.state, c.joinRef
	c.mu.Unlock()
	if state != ChannelJoined {
		return failedReceipt(event, ErrNotJoined)
	}

	data, err := encodePayload(payload)
	if err != nil {
		return failedReceipt(event, err)
	}

	return c.socket.push(Message{
		JoinRef: joinRef,
		Ref:     c.socket.makeRef(),
		Topic:   c.topic,
		Event:   event,
		Payload: data,
	}, timeout)
}

// Leave sends phx_leave and waits for the reply or ctx. Safe to call more
// than once and on channels that never joined.
func (c *Channel) Leave(ctx context.Context) error {
	c.mu.Lock()
	state, joinRef := c.state, c.joinRef
	if state == ChannelJoined || state == ChannelJoining {
		c.state = ChannelLeaving
	}
	c.mu.Unlock()

	defer c.close()
	if state != ChannelJoined && state != ChannelJoining {
		return nil
	}

	receipt := c.socket.push(Message{
		JoinRef: joinRef,
		Ref:     c.socket.makeRef(),
		Topic:   c.topic,
		Event:   EventLeave,
	}, DefaultPushTimeout)

	_, err := receipt.Wait(ctx)
	return err
}

func (c *Channel) sendLeave(joinRef string) {
	c.socket.push(Message{
		JoinRef: joinRef,
		Ref:     c.socket.makeRef(),
		Topic:   c.topic,
		Event:   EventLeave,
	}, DefaultPushTimeout)
}

// ackJoin runs on the socket read pump when a reply arrives for an
// outstanding push. An ok reply to the join moves the channel to joined
// before any later frame is delivered.
func (c *Channel) ackJoin(ref, status string) {
	c.mu.Lock()
	if status == StatusOK && c.state == ChannelJoining && ref == c.joinRef {
		c.state = ChannelJoined
	}
	c.mu.Unlock()
}

// deliver runs on the socket read pump.
func (c *Channel) deliver(msg Message) {
	c.mu.Lock()
	state, joinRef := c.state, c.joinRef
	c.mu.Unlock()

	if msg.JoinRef != "" && msg.JoinRef != joinRef {
		logger.Debug("%s dropped %s from stale join %s", c.topic, msg.Event, msg.JoinRef)
		return
	}

	switch msg.Event {
	case EventError, EventClose:
		logger.Warn("%s received %s", c.topic, msg.Event)
		if msg.Event == EventError {
			c.setState(ChannelErrored)
		} else {
			c.setState(ChannelClosed)
		}
		c.close()
		return
	}

	if state != ChannelJoined {
		logger.Debug("%s dropped %s while %s", c.topic, msg.Event, state)
		return
	}

	select {
	case c.events <- msg:
	case <-c.done:
	}
}

func (c *Channel) setState(state ChannelState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Channel) close() {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		if c.state == ChannelJoined || c.state == ChannelJoining || c.state == ChannelLeaving {
			c.state = ChannelClosed
		}
		c.mu.Unlock()
		close(c.done)
		c.socket.removeChannel(c)
	})
}
