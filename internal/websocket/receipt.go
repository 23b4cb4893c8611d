package websocket

import (
	"context"
	"sync"
	"time"
)

// Receipt tracks the reply to one push.
type Receipt struct {
	event string
	ref   string

	once  sync.Once
	done  chan struct{}
	timer *time.Timer
	reply Reply
	err   error
}

func newReceipt(event, ref string) *Receipt {
	return &Receipt{event: event, ref: ref, done: make(chan struct{})}
}

// failedReceipt returns a receipt that is already resolved with err.
func failedReceipt(event string, err error) *Receipt {
	r := newReceipt(event, "")
	r.fail(err)
	return r
}

func (r *Receipt) Ref() string {
	return r.ref
}

func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the push is answered, times out or ctx ends. An error
// reply is returned as *PushError alongside the reply itself.
func (r *Receipt) Wait(ctx context.Context) (Reply, error) {
	select {
	case <-r.done:
		return r.reply, r.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (r *Receipt) resolve(reply Reply) {
	r.once.Do(func() {
		r.reply = reply
		if reply.Status != StatusOK {
			r.err = &PushError{Event: r.event, Status: reply.Status, Response: reply.Response}
		}
		r.finish()
	})
}

func (r *Receipt) fail(err error) {
	r.once.Do(func() {
		r.err = err
		r.finish()
	})
}

func (r *Receipt) finish() {
	if r.timer != nil {
		r.timer.Stop()
	}
	close(r.done)
}
