package chat

import "time"

// Conversation is a chat with one other player.
type Conversation struct {
	ID               int64     `json:"id"`
	PartnerName      string    `json:"partnerName"`
	PartnerAvatarURL string    `json:"partnerAvatarUrl"`
	LastMessageText  string    `json:"lastMessageText"`
	LastMessageAt    time.Time `json:"lastMessageAt"`
	UnreadCount      int       `json:"unreadCount"`
}

// Message is one message inside a conversation. A zero SentAt means the
// server has not acknowledged the message yet (optimistic send).
type Message struct {
	ID              int64     `json:"id"`
	ConversationID  int64     `json:"conversationId"`
	SenderID        int64     `json:"senderId"`
	SenderName      string    `json:"senderName"`
	SenderAvatarURL string    `json:"senderAvatarUrl"`
	Text            string    `json:"text"`
	SentAt          time.Time `json:"sentAt"`
	FromMe          bool      `json:"fromMe"`
}

// before reports whether m orders ahead of other: SentAt ascending, ID
// ascending on equal timestamps. Unacknowledged messages order after all
// timestamped ones.
func (m Message) before(other Message) bool {
	switch {
	case m.SentAt.IsZero() && other.SentAt.IsZero():
		return m.ID < other.ID
	case m.SentAt.IsZero():
		return false
	case other.SentAt.IsZero():
		return true
	case m.SentAt.Equal(other.SentAt):
		return m.ID < other.ID
	default:
		return m.SentAt.Before(other.SentAt)
	}
}
