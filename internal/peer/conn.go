package peer

import (
	"context"

	"roomlink/internal/models"

	"github.com/pion/webrtc/v4"
)

// PeerConnection is the part of a WebRTC peer connection the negotiator
// drives. Callbacks may fire on any goroutine.
type PeerConnection interface {
	CreateOffer() (models.SessionDescription, error)
	CreateAnswer() (models.SessionDescription, error)
	SetLocalDescription(desc models.SessionDescription) error
	SetRemoteDescription(desc models.SessionDescription) error
	LocalDescription() *models.SessionDescription
	AddICECandidate(candidate models.ICECandidate) error
	AddTrack(track webrtc.TrackLocal) error
	CreateDataChannel(label string) (DataChannel, error)

	OnICECandidate(fn func(models.ICECandidate))
	OnConnectionStateChange(fn func(state string))
	OnDataChannel(fn func(DataChannel))

	Close() error
}

type DataChannel interface {
	Label() string
	ReadyState() string
	OnOpen(fn func())
	OnClose(fn func())
	OnMessage(fn func(text string))
	SendText(text string) error
	Close() error
}

type Factory interface {
	NewPeerConnection() (PeerConnection, error)
}

// MediaSource hands out the local stream for a call.
type MediaSource interface {
	Acquire(ctx context.Context) (LocalStream, error)
}

type LocalStream interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}

// Signaler carries negotiation messages to the remote peer.
type Signaler interface {
	Signal(event models.EventType, payload interface{})
}
