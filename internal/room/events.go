package room

import (
	"encoding/json"
	"fmt"

	"roomlink/internal/models"
	"roomlink/internal/websocket"
)

// Event is one inbound room event, delivered in arrival order.
type Event interface {
	roomEvent()
}

type ChatReceived struct {
	Message models.ChatMessage
}

type OfferReceived struct {
	SDP models.SessionDescription
}

type AnswerReceived struct {
	SDP models.SessionDescription
}

type CandidateReceived struct {
	Candidate models.ICECandidate
}

type HangupReceived struct{}

type UnknownEvent struct {
	Name    string
	Payload json.RawMessage
}

func (ChatReceived) roomEvent()      {}
func (OfferReceived) roomEvent()     {}
func (AnswerReceived) roomEvent()    {}
func (CandidateReceived) roomEvent() {}
func (HangupReceived) roomEvent()    {}
func (UnknownEvent) roomEvent()      {}

type chatPayload struct {
	ID         models.FlexID `json:"id"`
	Body       string        `json:"body"`
	UserID     models.FlexID `json:"user_id"`
	UserName   string        `json:"user_name"`
	InsertedAt string        `json:"inserted_at"`
}

func (p chatPayload) message() models.ChatMessage {
	return models.ChatMessage{
		ID:         string(p.ID),
		Body:       p.Body,
		UserID:     string(p.UserID),
		UserName:   p.UserName,
		InsertedAt: p.InsertedAt,
	}
}

func decodeChat(raw json.RawMessage) (models.ChatMessage, error) {
	var p chatPayload
	if len(raw) == 0 {
		return models.ChatMessage{}, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.ChatMessage{}, fmt.Errorf("invalid chat message: %w", err)
	}
	return p.message(), nil
}

func decodeEvent(msg websocket.Message) (Event, error) {
	switch models.EventType(msg.Event) {
	case models.EventChatMessage:
		chat, err := decodeChat(msg.Payload)
		if err != nil {
			return nil, err
		}
		return ChatReceived{Message: chat}, nil

	case models.EventSignalOffer, models.EventSignalAnswer:
		var p models.SignalSDP
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		if models.EventType(msg.Event) == models.EventSignalOffer {
			return OfferReceived{SDP: p.SDP}, nil
		}
		return AnswerReceived{SDP: p.SDP}, nil

	case models.EventSignalICE:
		var p models.SignalICE
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return CandidateReceived{Candidate: p.Candidate}, nil

	case models.EventSignalHangup:
		return HangupReceived{}, nil

	default:
		return UnknownEvent{Name: msg.Event, Payload: msg.Payload}, nil
	}
}
