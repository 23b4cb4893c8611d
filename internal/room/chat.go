package room

import (
	"sync"

	"roomlink/internal/models"
)

const DefaultHistoryLimit = 200

// ChatStream is the ordered list of chat messages seen in a room. Only the
// most recent limit messages are kept.
type ChatStream struct {
	mu       sync.RWMutex
	limit    int
	identity models.Identity
	messages []models.ChatMessage
}

func NewChatStream(identity models.Identity, limit int) *ChatStream {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &ChatStream{limit: limit, identity: identity}
}

func (s *ChatStream) Append(msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if over := len(s.messages) - s.limit; over > 0 {
		// copy so the dropped prefix can be collected
		s.messages = append([]models.ChatMessage(nil), s.messages[over:]...)
	}
}

// Messages returns a copy of the retained window, oldest first.
func (s *ChatStream) Messages() []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *ChatStream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// IsMine matches on user id when both sides have one and falls back to the
// display name otherwise.
func (s *ChatStream) IsMine(msg models.ChatMessage) bool {
	if s.identity.ID != "" && msg.UserID != "" {
		return s.identity.ID == msg.UserID
	}
	return s.identity.Name != "" && s.identity.Name == msg.UserName
}
