package lobby

import (
	"encoding/json"
	"sort"

	"roomlink/internal/models"
	"roomlink/internal/websocket"
)

// Event is one inbound lobby event. The set is closed; dispatch switches
// over the concrete types below.
type Event interface {
	lobbyEvent()
}

// Presences maps a user id to the phx_ref of each of its sessions.
type Presences map[string][]string

// Users returns the user ids, sorted.
func (p Presences) Users() []string {
	users := make([]string, 0, len(p))
	for id := range p {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// PresenceState is an authoritative snapshot of who is online.
type PresenceState struct {
	Presences Presences
}

// PresenceDiff lists sessions that came online or went away since the last
// snapshot or diff. A user appears in both on a metadata update.
type PresenceDiff struct {
	Joins  Presences
	Leaves Presences
}

type InviteIncoming struct {
	Invite models.Invite
}

type InviteAccepted struct {
	Outcome models.InviteOutcome
}

type InviteDeclined struct {
	Outcome models.InviteOutcome
}

type UnknownEvent struct {
	Name    string
	Payload json.RawMessage
}

func (PresenceState) lobbyEvent()  {}
func (PresenceDiff) lobbyEvent()   {}
func (InviteIncoming) lobbyEvent() {}
func (InviteAccepted) lobbyEvent() {}
func (InviteDeclined) lobbyEvent() {}
func (UnknownEvent) lobbyEvent()   {}

type presenceEntry struct {
	Metas []struct {
		PhxRef string `json:"phx_ref"`
	} `json:"metas"`
}

type presenceMap map[string]json.RawMessage

// presences keeps every key; entries that are not {metas: [...]} count as
// online with no tracked sessions.
func (p presenceMap) presences() Presences {
	out := make(Presences, len(p))
	for id, raw := range p {
		var entry presenceEntry
		json.Unmarshal(raw, &entry)
		refs := make([]string, 0, len(entry.Metas))
		for _, meta := range entry.Metas {
			if meta.PhxRef != "" {
				refs = append(refs, meta.PhxRef)
			}
		}
		out[id] = refs
	}
	return out
}

type invitePayload struct {
	From       models.FlexID `json:"from"`
	FromUserID models.FlexID `json:"from_user_id"`
	RoomCode   string        `json:"room_code"`
	RoomName   string        `json:"room_name"`
}

type outcomePayload struct {
	From     models.FlexID `json:"from"`
	ByUserID models.FlexID `json:"by_user_id"`
	RoomCode string        `json:"room_code"`
}

func firstNonEmpty(values ...models.FlexID) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

func decodeEvent(msg websocket.Message) (Event, error) {
	switch models.EventType(msg.Event) {
	case models.EventPresenceState:
		var state presenceMap
		if err := msg.Decode(&state); err != nil {
			return nil, err
		}
		return PresenceState{Presences: state.presences()}, nil

	case models.EventPresenceDiff:
		var diff struct {
			Joins  presenceMap `json:"joins"`
			Leaves presenceMap `json:"leaves"`
		}
		if err := msg.Decode(&diff); err != nil {
			return nil, err
		}
		return PresenceDiff{Joins: diff.Joins.presences(), Leaves: diff.Leaves.presences()}, nil

	case models.EventInviteIncoming:
		var p invitePayload
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return InviteIncoming{Invite: models.Invite{
			FromUserID: firstNonEmpty(p.From, p.FromUserID),
			RoomCode:   p.RoomCode,
			RoomName:   p.RoomName,
		}}, nil

	case models.EventInviteAccepted, models.EventInviteDeclined:
		var p outcomePayload
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		outcome := models.InviteOutcome{ByUserID: firstNonEmpty(p.From, p.ByUserID), RoomCode: p.RoomCode}
		if models.EventType(msg.Event) == models.EventInviteAccepted {
			return InviteAccepted{Outcome: outcome}, nil
		}
		return InviteDeclined{Outcome: outcome}, nil

	default:
		return UnknownEvent{Name: msg.Event, Payload: msg.Payload}, nil
	}
}
