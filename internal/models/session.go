package models

// SessionStatus is a snapshot of every layer of a running session.
type SessionStatus struct {
	Transport      string   `json:"transport"`
	Lobby          string   `json:"lobby"`
	Online         int      `json:"online"`
	PendingInvites int      `json:"pending_invites"`
	Identity       Identity `json:"identity"`

	RoomCode    string `json:"room_code,omitempty"`
	Room        string `json:"room"`
	Call        string `json:"call,omitempty"`
	Connection  string `json:"connection,omitempty"`
	DataChannel string `json:"data_channel,omitempty"`
	Messages    int    `json:"messages"`
}
