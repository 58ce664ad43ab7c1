// Package outbox performs optimistic message sends. A queued message is
// visible in the thread immediately under a provisional identity and is
// swapped for the server's copy once the send is acknowledged.
package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbaptista/rally/internal/bus"
	"github.com/pbaptista/rally/internal/chat"
	"github.com/pbaptista/rally/internal/rest"
)

// Sent is the payload of outbox.sent events.
type Sent struct {
	ClientID       string
	ConversationID int64
	MessageID      int64
}

// Failed is the payload of outbox.failed events.
type Failed struct {
	ClientID       string
	ConversationID int64
	Reason         string
}

// Poster is the slice of the REST client the sender consumes.
type Poster interface {
	SendMessage(ctx context.Context, convID int64, text string) (chat.Message, error)
}

// Sender queues outgoing messages and reconciles them against the server.
type Sender struct {
	store  *chat.Store
	api    Poster
	bus    *bus.Bus
	logger *zap.Logger

	cancel context.CancelFunc
	ctx    context.Context

	attempts   int
	retryDelay time.Duration

	// Provisional messages take negative IDs so they can never collide
	// with server-assigned ones.
	nextID atomic.Int64
}

// NewSender creates a sender writing provisional messages into store.
func NewSender(store *chat.Store, api Poster, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		store:      store,
		api:        api,
		bus:        b,
		logger:     logger,
		attempts:   3,
		retryDelay: 2 * time.Second,
	}
}

// Start sets the lifetime for in-flight sends.
func (s *Sender) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
}

// Stop abandons in-flight sends.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Queue records text as a provisional message in convID and starts the send
// in the background. The returned client ID correlates the eventual
// outbox.sent or outbox.failed event.
func (s *Sender) Queue(convID int64, text string) string {
	clientID := uuid.NewString()
	provisional := chat.Message{
		ID:             s.nextID.Add(-1),
		ConversationID: convID,
		Text:           text,
		FromMe:         true,
		// SentAt stays zero until the server acknowledges, which also
		// keeps the message sorted after every confirmed one.
	}
	s.store.UpsertMessage(provisional)
	s.publish("outbox.queued", Sent{ClientID: clientID, ConversationID: convID})
	s.publishStore()

	go s.deliver(clientID, provisional)
	return clientID
}

func (s *Sender) deliver(clientID string, provisional chat.Message) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		msg, err := s.api.SendMessage(s.ctx, provisional.ConversationID, provisional.Text)
		if err == nil {
			s.store.RemoveMessage(provisional.ConversationID, provisional.ID)
			s.store.UpsertMessage(msg)
			s.publish("outbox.sent", Sent{
				ClientID:       clientID,
				ConversationID: provisional.ConversationID,
				MessageID:      msg.ID,
			})
			s.publishStore()
			return
		}
		lastErr = err
		if rest.IsUnauthorized(err) {
			s.publish("auth.expired", nil)
			break
		}
		if s.ctx.Err() != nil {
			break
		}
		s.logger.Warn("send attempt failed",
			zap.Int("attempt", attempt),
			zap.Int64("conversation", provisional.ConversationID),
			zap.Error(err))
		select {
		case <-time.After(s.retryDelay):
		case <-s.ctx.Done():
		}
	}

	s.store.RemoveMessage(provisional.ConversationID, provisional.ID)
	s.publish("outbox.failed", Failed{
		ClientID:       clientID,
		ConversationID: provisional.ConversationID,
		Reason:         lastErr.Error(),
	})
	s.publishStore()
}

func (s *Sender) publish(kind string, payload any) {
	s.bus.Publish(bus.Event{Kind: kind, At: time.Now(), Payload: payload})
}

func (s *Sender) publishStore() {
	s.publish("store.updated", s.store.Version())
}
