// Package hub models the persistent push channel to the Rally messaging
// hub. The wire protocol is a black box to the rest of the daemon: this
// package decodes frames into typed events and nothing else inspects them.
package hub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the frame wrapper for every push event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessageReceived is pushed when a message lands in one of the user's
// conversations, including echoes of the user's own sends from other
// devices.
type MessageReceived struct {
	ID              int64     `json:"id"`
	ConversationID  int64     `json:"conversationId"`
	SenderID        int64     `json:"senderId"`
	SenderName      string    `json:"senderName"`
	SenderAvatarURL string    `json:"senderAvatarUrl"`
	Text            string    `json:"text"`
	SentAt          time.Time `json:"sentAt"`
}

// ConversationUpdated is pushed for conversation-level changes: a new
// conversation, a partner rename, or a server-side unread recount.
type ConversationUpdated struct {
	ID               int64     `json:"id"`
	PartnerName      string    `json:"partnerName"`
	PartnerAvatarURL string    `json:"partnerAvatarUrl"`
	LastMessageText  string    `json:"lastMessageText"`
	LastMessageAt    time.Time `json:"lastMessageAt"`
	UnreadCount      int       `json:"unreadCount"`
}

// DecodeError describes a frame that could not be turned into a typed
// event. Such frames are dropped and logged; they never stop the stream.
type DecodeError struct {
	Type   string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return "hub: undecodable frame: " + e.Reason
	}
	return fmt.Sprintf("hub: bad %q event: %s", e.Type, e.Reason)
}

// Decode parses one wire frame into a typed event (*MessageReceived or
// *ConversationUpdated is returned as any). Unknown event types and frames
// missing required identifiers yield a *DecodeError.
func Decode(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}

	switch env.Type {
	case "message.received":
		var evt MessageReceived
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, &DecodeError{Type: env.Type, Reason: err.Error()}
		}
		if evt.ID == 0 || evt.ConversationID == 0 {
			return nil, &DecodeError{Type: env.Type, Reason: "missing message or conversation id"}
		}
		return &evt, nil
	case "conversation.updated":
		var evt ConversationUpdated
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, &DecodeError{Type: env.Type, Reason: err.Error()}
		}
		if evt.ID == 0 {
			return nil, &DecodeError{Type: env.Type, Reason: "missing conversation id"}
		}
		return &evt, nil
	default:
		return nil, &DecodeError{Type: env.Type, Reason: "unknown event type"}
	}
}
