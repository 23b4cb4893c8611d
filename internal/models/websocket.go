package models

type EventType string

const (
	EventPresenceState  EventType = "presence_state"
	EventPresenceDiff   EventType = "presence_diff"
	EventInviteSend     EventType = "invite:send"
	EventInviteIncoming EventType = "invite:incoming"
	EventInviteAccept   EventType = "invite:accept"
	EventInviteDecline  EventType = "invite:decline"
	EventInviteAccepted EventType = "invite:accepted"
	EventInviteDeclined EventType = "invite:declined"

	EventChatNew      EventType = "chat:new"
	EventChatMessage  EventType = "chat:message"
	EventSignalOffer  EventType = "signal:offer"
	EventSignalAnswer EventType = "signal:answer"
	EventSignalICE    EventType = "signal:ice"
	EventSignalHangup EventType = "signal:hangup"
)

const LobbyTopic = "lobby:global"

func RoomTopic(code string) string {
	return "room:" + code
}

type Invite struct {
	ID         string `json:"id"`
	FromUserID string `json:"from_user_id"`
	RoomCode   string `json:"room_code"`
	RoomName   string `json:"room_name,omitempty"`
}

type InviteOutcome struct {
	ByUserID string `json:"by_user_id"`
	RoomCode string `json:"room_code"`
}

// InviteTarget is the outbound payload of invite:send, invite:accept and
// invite:decline.
type InviteTarget struct {
	To       string `json:"to"`
	RoomCode string `json:"room_code"`
}

type ChatNew struct {
	Body     string `json:"body"`
	UserName string `json:"user_name"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type SignalSDP struct {
	SDP SessionDescription `json:"sdp"`
}

type SignalICE struct {
	Candidate ICECandidate `json:"candidate"`
}
