package hub

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeMessageReceived(t *testing.T) {
	frame := []byte(`{
		"type": "message.received",
		"payload": {
			"id": 501,
			"conversationId": 1,
			"senderId": 99,
			"senderName": "Ana",
			"text": "up for a match?",
			"sentAt": "2026-03-01T12:00:00Z"
		}
	}`)

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	evt, ok := got.(*MessageReceived)
	if !ok {
		t.Fatalf("Decode() = %T, want *MessageReceived", got)
	}
	if evt.ID != 501 || evt.ConversationID != 1 || evt.SenderName != "Ana" {
		t.Errorf("evt = %+v", evt)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !evt.SentAt.Equal(want) {
		t.Errorf("SentAt = %s, want %s", evt.SentAt, want)
	}
}

func TestDecodeConversationUpdated(t *testing.T) {
	frame := []byte(`{
		"type": "conversation.updated",
		"payload": {"id": 7, "partnerName": "Bruno", "unreadCount": 2}
	}`)

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	evt, ok := got.(*ConversationUpdated)
	if !ok {
		t.Fatalf("Decode() = %T, want *ConversationUpdated", got)
	}
	if evt.ID != 7 || evt.UnreadCount != 2 {
		t.Errorf("evt = %+v", evt)
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"presence.ping","payload":{}}`},
		{"message without ids", `{"type":"message.received","payload":{"text":"x"}}`},
		{"conversation without id", `{"type":"conversation.updated","payload":{"partnerName":"x"}}`},
		{"payload type mismatch", `{"type":"message.received","payload":{"id":"five"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			if err == nil {
				t.Fatal("Decode() = nil error, want *DecodeError")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error = %T, want *DecodeError", err)
			}
		})
	}
}
