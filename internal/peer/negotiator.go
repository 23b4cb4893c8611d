package peer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"roomlink/internal/models"
	"roomlink/pkg/logger"
)

type State int

const (
	StateIdle State = iota
	StateCallerOffering
	StateCalleeAnswering
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCallerOffering:
		return "caller-offering"
	case StateCalleeAnswering:
		return "callee-answering"
	case StateConnected:
		return "connected"
	default:
		return "closed"
	}
}

const (
	DataChannelLabel = "chat"

	defaultMaxPendingCandidates = 128
	noConnection                = "none"
)

type Options struct {
	// Log receives one line per negotiation step.
	Log func(string)
	// OnMessage receives text arriving on the data channel.
	OnMessage            func(string)
	MaxPendingCandidates int
}

// Negotiator owns the peer session of one room: its peer connection, data
// channel, local media and the candidates that arrived too early.
//
// Negotiation steps are serialized by mu. Peer connection callbacks never
// take mu; they check the generation the connection was created for and
// touch only atomics or dcMu.
type Negotiator struct {
	factory  Factory
	media    MediaSource
	signaler Signaler
	opts     Options

	mu          sync.Mutex
	state       State
	pc          PeerConnection
	stream      LocalStream
	remoteSet   bool
	remoteUfrag string
	tracksAdded bool
	hungUp      bool
	pending     []models.ICECandidate

	generation atomic.Uint64
	connState  atomic.Value

	dcMu sync.Mutex
	dc   DataChannel
}

func NewNegotiator(factory Factory, media MediaSource, signaler Signaler, opts Options) *Negotiator {
	if opts.Log == nil {
		opts.Log = logger.Sink("peer: ")
	}
	if opts.MaxPendingCandidates <= 0 {
		opts.MaxPendingCandidates = defaultMaxPendingCandidates
	}
	n := &Negotiator{
		factory:  factory,
		media:    media,
		signaler: signaler,
		opts:     opts,
	}
	n.connState.Store(noConnection)
	return n
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// ConnectionState is the native peer connection state, or "none".
func (n *Negotiator) ConnectionState() string {
	return n.connState.Load().(string)
}

func (n *Negotiator) DataChannelState() string {
	n.dcMu.Lock()
	defer n.dcMu.Unlock()
	if n.dc == nil {
		return noConnection
	}
	return n.dc.ReadyState()
}

func (n *Negotiator) PendingCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

func (n *Negotiator) logf(format string, args ...interface{}) {
	n.opts.Log(fmt.Sprintf(format, args...))
}

// StartCall makes this side the caller: acquire media, create the data
// channel and send an offer.
func (n *Negotiator) StartCall(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case StateClosed:
		n.mu.Unlock()
		return ErrClosed
	case StateIdle:
	default:
		state := n.state
		n.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrCallInProgress, state)
	}
	n.state = StateCallerOffering
	n.hungUp = false
	gen := n.generation.Load()
	n.mu.Unlock()

	n.logf("starting call as caller")
	stream, err := n.media.Acquire(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateCallerOffering || n.generation.Load() != gen {
		if stream != nil {
			stream.Stop()
		}
		return ErrCallAborted
	}
	if err != nil {
		n.state = StateIdle
		n.logf("media unavailable: %v", err)
		return &MediaError{Err: err}
	}
	n.stream = stream

	if err := n.offerLocked(); err != nil {
		n.logf("offer failed: %v", err)
		n.teardownLocked()
		n.state = StateIdle
		return err
	}
	n.logf("offer sent")
	return nil
}

func (n *Negotiator) offerLocked() error {
	pc, err := n.ensurePeerLocked()
	if err != nil {
		return err
	}
	if err := n.addTracksLocked(); err != nil {
		return err
	}

	n.dcMu.Lock()
	bound := n.dc != nil
	n.dcMu.Unlock()
	if !bound {
		dc, err := pc.CreateDataChannel(DataChannelLabel)
		if err != nil {
			return fmt.Errorf("failed to create data channel: %w", err)
		}
		n.bindDataChannel(dc)
		n.logf("data channel created")
	}

	offer, err := pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local offer: %w", err)
	}

	n.signaler.Signal(models.EventSignalOffer, models.SignalSDP{SDP: localOr(pc, offer)})
	return nil
}

// HandleOffer answers a remote offer. Accepted when idle (this side becomes
// the callee) or connected (renegotiation); rejected while this side has an
// offer of its own outstanding.
func (n *Negotiator) HandleOffer(ctx context.Context, offer models.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	prev := n.state
	switch prev {
	case StateClosed:
		return ErrClosed
	case StateIdle, StateConnected:
	default:
		n.logf("offer rejected in %s", prev)
		return &SignalError{Event: models.EventSignalOffer, State: prev, Err: ErrUnexpectedSignal}
	}
	n.state = StateCalleeAnswering
	n.hungUp = false
	n.logf("offer received")

	if prev == StateIdle && n.stream == nil {
		stream, err := n.media.Acquire(ctx)
		if err != nil {
			n.state = prev
			n.logf("media unavailable: %v", err)
			return &MediaError{Err: err}
		}
		n.stream = stream
	}

	if err := n.answerLocked(offer); err != nil {
		n.logf("answer failed: %v", err)
		if prev == StateIdle {
			n.teardownLocked()
		}
		n.state = prev
		return &SignalError{Event: models.EventSignalOffer, State: StateCalleeAnswering, Err: err}
	}

	n.state = StateConnected
	n.logf("answer sent")
	return nil
}

func (n *Negotiator) answerLocked(offer models.SessionDescription) error {
	pc, err := n.ensurePeerLocked()
	if err != nil {
		return err
	}
	if err := n.addTracksLocked(); err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("failed to apply offer: %w", err)
	}
	n.remoteSet = true
	n.remoteUfrag = iceUfrag(offer.SDP)
	n.flushPendingLocked()

	answer, err := pc.CreateAnswer()
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local answer: %w", err)
	}

	n.signaler.Signal(models.EventSignalAnswer, models.SignalSDP{SDP: localOr(pc, answer)})
	return nil
}

// HandleAnswer completes a call this side started.
func (n *Negotiator) HandleAnswer(ctx context.Context, answer models.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateCallerOffering || n.pc == nil {
		n.logf("answer rejected in %s", n.state)
		return &SignalError{Event: models.EventSignalAnswer, State: n.state, Err: ErrUnexpectedSignal}
	}

	n.logf("answer received")
	if err := n.pc.SetRemoteDescription(answer); err != nil {
		n.logf("failed to apply answer: %v", err)
		return &SignalError{Event: models.EventSignalAnswer, State: n.state, Err: err}
	}
	n.remoteSet = true
	n.remoteUfrag = iceUfrag(answer.SDP)
	n.flushPendingLocked()
	n.state = StateConnected
	return nil
}

// HandleICE applies a remote candidate, or queues it until a remote
// description is in place. Apply failures are logged and dropped.
func (n *Negotiator) HandleICE(ctx context.Context, candidate models.ICECandidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateClosed {
		return ErrClosed
	}
	// trailing candidates of a call that was hung up
	if n.state == StateIdle && n.hungUp {
		n.logf("candidate after hangup dropped")
		return nil
	}
	if n.pc == nil || !n.remoteSet {
		if len(n.pending) >= n.opts.MaxPendingCandidates {
			n.pending = n.pending[1:]
			n.logf("candidate queue full, oldest dropped")
		}
		n.pending = append(n.pending, candidate)
		return nil
	}

	n.applyCandidateLocked(candidate)
	return nil
}

// flushPendingLocked applies the queued candidates, skipping those whose
// ufrag belongs to another ICE session than the remote description.
func (n *Negotiator) flushPendingLocked() {
	pending := n.pending
	n.pending = nil
	for _, candidate := range pending {
		if n.staleLocked(candidate) {
			n.logf("stale candidate dropped")
			continue
		}
		n.applyCandidateLocked(candidate)
	}
}

func (n *Negotiator) staleLocked(candidate models.ICECandidate) bool {
	ufrag := candidate.UsernameFragment
	if ufrag == nil || *ufrag == "" || n.remoteUfrag == "" {
		return false
	}
	return *ufrag != n.remoteUfrag
}

func iceUfrag(sdp string) string {
	for _, line := range strings.Split(sdp, "\n") {
		if ufrag, ok := strings.CutPrefix(strings.TrimSpace(line), "a=ice-ufrag:"); ok {
			return ufrag
		}
	}
	return ""
}

func (n *Negotiator) applyCandidateLocked(candidate models.ICECandidate) {
	if err := n.pc.AddICECandidate(candidate); err != nil {
		n.logf("failed to add ice candidate: %v", err)
	}
}

// ensurePeerLocked creates the peer connection on first use and wires its
// callbacks to the current generation.
func (n *Negotiator) ensurePeerLocked() (PeerConnection, error) {
	if n.pc != nil {
		return n.pc, nil
	}

	pc, err := n.factory.NewPeerConnection()
	if err != nil {
		return nil, err
	}
	gen := n.generation.Load()

	pc.OnICECandidate(func(candidate models.ICECandidate) {
		if n.generation.Load() != gen {
			return
		}
		n.signaler.Signal(models.EventSignalICE, models.SignalICE{Candidate: candidate})
	})
	pc.OnConnectionStateChange(func(state string) {
		if n.generation.Load() != gen {
			return
		}
		n.connState.Store(state)
		n.logf("pc state: %s", state)
	})
	pc.OnDataChannel(func(dc DataChannel) {
		if n.generation.Load() != gen {
			return
		}
		n.bindDataChannel(dc)
	})

	n.pc = pc
	n.connState.Store("new")
	return pc, nil
}

func (n *Negotiator) addTracksLocked() error {
	// tracks go on a peer connection once
	if n.stream == nil || n.pc == nil || n.tracksAdded {
		return nil
	}
	for _, track := range n.stream.Tracks() {
		if err := n.pc.AddTrack(track); err != nil {
			return fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
		}
	}
	n.tracksAdded = true
	return nil
}

// bindDataChannel keeps the first data channel of a negotiation and ignores
// any later one.
func (n *Negotiator) bindDataChannel(dc DataChannel) {
	n.dcMu.Lock()
	if n.dc != nil {
		n.dcMu.Unlock()
		n.logf("extra data channel %q ignored", dc.Label())
		return
	}
	n.dc = dc
	n.dcMu.Unlock()

	dc.OnOpen(func() { n.logf("data channel open") })
	dc.OnClose(func() { n.logf("data channel closed") })
	dc.OnMessage(func(text string) {
		n.logf("data channel message: %s", text)
		if n.opts.OnMessage != nil {
			n.opts.OnMessage(text)
		}
	})
	n.logf("data channel %q bound", dc.Label())
}

// SendText writes text on the open data channel.
func (n *Negotiator) SendText(text string) error {
	n.dcMu.Lock()
	dc := n.dc
	n.dcMu.Unlock()

	if dc == nil || dc.ReadyState() != "open" {
		return ErrDataChannelNotOpen
	}
	return dc.SendText(text)
}

func (n *Negotiator) Ping() error {
	if err := n.SendText("ping " + time.Now().Format("15:04:05")); err != nil {
		return err
	}
	n.logf("ping sent")
	return nil
}

// Hangup ends the call, tells the remote side and returns to idle.
func (n *Negotiator) Hangup() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateClosed:
		return ErrClosed
	case StateIdle:
		return nil
	}
	n.signaler.Signal(models.EventSignalHangup, struct{}{})
	n.logf("hangup sent")
	n.state = StateIdle
	n.hungUp = true
	return n.teardownLocked()
}

// HandleRemoteHangup ends the call at the remote side's request.
func (n *Negotiator) HandleRemoteHangup() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateClosed || n.state == StateIdle {
		return nil
	}
	n.logf("remote hung up")
	n.state = StateIdle
	n.hungUp = true
	return n.teardownLocked()
}

// StopMedia stops the local tracks. The peer connection stays up.
func (n *Negotiator) StopMedia() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopMediaLocked()
	return nil
}

// ClosePeer closes the data channel and peer connection and returns to idle.
func (n *Negotiator) ClosePeer() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateClosed {
		n.state = StateIdle
	}
	return n.closePeerLocked()
}

// Close tears everything down for good. Safe to call more than once.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return nil
	}
	n.state = StateClosed
	return n.teardownLocked()
}

func (n *Negotiator) teardownLocked() error {
	n.stopMediaLocked()
	return n.closePeerLocked()
}

func (n *Negotiator) stopMediaLocked() {
	if n.stream != nil {
		n.stream.Stop()
		n.stream = nil
	}
}

func (n *Negotiator) closePeerLocked() error {
	n.generation.Add(1)
	n.remoteSet = false
	n.remoteUfrag = ""
	n.tracksAdded = false
	n.pending = nil

	n.dcMu.Lock()
	dc := n.dc
	n.dc = nil
	n.dcMu.Unlock()

	pc := n.pc
	n.pc = nil
	if pc != nil {
		n.connState.Store("closed")
	}

	var errs []error
	if dc != nil {
		if err := dc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("data channel: %w", err))
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("peer connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

func localOr(pc PeerConnection, desc models.SessionDescription) models.SessionDescription {
	if local := pc.LocalDescription(); local != nil {
		return *local
	}
	return desc
}
