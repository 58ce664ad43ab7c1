// Package sync reconciles the two producers of conversation state — the
// bulk REST fetch and the live hub push stream — into the chat store. One
// loop goroutine is the only writer path: it applies push events, triggers
// a refresh on every hub connect, and buffers pushes that race with an
// in-flight fetch so neither source is lost.
package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pbaptista/rally/internal/auth"
	"github.com/pbaptista/rally/internal/bus"
	"github.com/pbaptista/rally/internal/chat"
	"github.com/pbaptista/rally/internal/conn"
	"github.com/pbaptista/rally/internal/hub"
	"github.com/pbaptista/rally/internal/rest"
)

// ErrUnknownConversation is returned for intents against conversations the
// store has never seen.
var ErrUnknownConversation = errors.New("unknown conversation")

// API is the slice of the REST client the engine consumes.
type API interface {
	FetchConversations(ctx context.Context) ([]chat.Conversation, error)
	FetchMessages(ctx context.Context, convID int64, page int) ([]chat.Message, error)
	MarkRead(ctx context.Context, convID int64) error
}

// Engine is the single writer of the chat store.
type Engine struct {
	store  *chat.Store
	api    API
	bus    *bus.Bus
	logger *zap.Logger

	cancel     context.CancelFunc
	refreshReq chan struct{}
	refreshRes chan refreshResult
	dropped    atomic.Uint64

	// userID is only touched from the loop goroutine.
	userID int64
}

type refreshResult struct {
	convs []chat.Conversation
	err   error
}

// NewEngine creates an engine writing into store.
func NewEngine(store *chat.Store, api API, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		store:      store,
		api:        api,
		bus:        b,
		logger:     logger,
		refreshReq: make(chan struct{}, 1),
		refreshRes: make(chan refreshResult, 1),
	}
}

// Start launches the reconciliation loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	hubSub := e.bus.Subscribe("hub.", 256)
	connSub := e.bus.Subscribe("conn.", 16)
	authSub := e.bus.Subscribe("auth.changed", 16)
	go e.loop(ctx, hubSub, connSub, authSub)
}

// Stop halts the loop.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// RequestRefresh asks the loop to re-fetch the conversation list. Coalesced
// with any refresh already pending or in flight.
func (e *Engine) RequestRefresh() {
	select {
	case e.refreshReq <- struct{}{}:
	default:
	}
}

// Dropped reports how many malformed push events were discarded.
func (e *Engine) Dropped() uint64 {
	return e.dropped.Load()
}

// StoreVersion exposes the store's change counter for status reporting.
func (e *Engine) StoreVersion() uint64 {
	return e.store.Version()
}

func (e *Engine) loop(ctx context.Context, hubSub, connSub, authSub *bus.Subscription) {
	defer hubSub.Cancel()
	defer connSub.Cancel()
	defer authSub.Cancel()

	fetching := false
	var pending []bus.Event

	for {
		select {
		case evt := <-hubSub.C:
			if fetching {
				pending = append(pending, evt)
				continue
			}
			e.apply(evt)

		case evt := <-connSub.C:
			ch, ok := evt.Payload.(conn.Change)
			if !ok || ch.To != conn.Connected {
				continue
			}
			// The store is rebuilt from REST on every connect.
			if !fetching {
				fetching = e.beginRefresh(ctx)
			}

		case <-e.refreshReq:
			if !fetching {
				fetching = e.beginRefresh(ctx)
			}

		case evt := <-authSub.C:
			snap, ok := evt.Payload.(auth.Snapshot)
			if !ok {
				continue
			}
			if snap.Authenticated {
				e.userID = snap.UserID
			} else {
				e.userID = 0
				pending = nil
				e.store.Reset()
				e.publishUpdated()
			}

		case res := <-e.refreshRes:
			fetching = false
			switch {
			case res.err == nil:
				e.store.ReplaceConversations(res.convs)
			case rest.IsUnauthorized(res.err):
				e.store.Reset()
				e.bus.Publish(bus.Event{Kind: "auth.expired", At: time.Now()})
			default:
				// Prior state stays intact; the failure is surfaced as a
				// dismissible notification, not a wipe.
				e.logger.Warn("conversation refresh failed", zap.Error(res.err))
				e.bus.Publish(bus.Event{Kind: "engine.fetch_failed", At: time.Now(), Payload: res.err.Error()})
			}
			// Replay pushes that arrived mid-fetch, in arrival order.
			for _, evt := range pending {
				e.apply(evt)
			}
			pending = nil
			e.publishUpdated()

		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) beginRefresh(ctx context.Context) bool {
	go func() {
		convs, err := e.api.FetchConversations(ctx)
		select {
		case e.refreshRes <- refreshResult{convs: convs, err: err}:
		case <-ctx.Done():
		}
	}()
	return true
}

// apply upserts one decoded push event. Malformed payloads are dropped and
// counted; they never stop the loop.
func (e *Engine) apply(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case hub.MessageReceived:
		if p.ID == 0 || p.ConversationID == 0 {
			e.drop(evt.Kind, "missing identifiers")
			return
		}
		m := chat.Message{
			ID:              p.ID,
			ConversationID:  p.ConversationID,
			SenderID:        p.SenderID,
			SenderName:      p.SenderName,
			SenderAvatarURL: p.SenderAvatarURL,
			Text:            p.Text,
			SentAt:          p.SentAt,
			FromMe:          e.userID != 0 && p.SenderID == e.userID,
		}
		if e.store.UpsertMessage(m) {
			e.publishUpdated()
		}

	case hub.ConversationUpdated:
		if p.ID == 0 {
			e.drop(evt.Kind, "missing conversation id")
			return
		}
		e.store.UpsertConversation(chat.Conversation{
			ID:               p.ID,
			PartnerName:      p.PartnerName,
			PartnerAvatarURL: p.PartnerAvatarURL,
			LastMessageText:  p.LastMessageText,
			LastMessageAt:    p.LastMessageAt,
			UnreadCount:      p.UnreadCount,
		})
		e.publishUpdated()

	default:
		e.drop(evt.Kind, "unexpected payload type")
	}
}

func (e *Engine) drop(kind, reason string) {
	e.dropped.Add(1)
	e.logger.Warn("dropping malformed push event",
		zap.String("kind", kind),
		zap.String("reason", reason))
}

// MarkRead clears a conversation's unread count, server first so a crashed
// daemon can't under-count on restart.
func (e *Engine) MarkRead(ctx context.Context, convID int64) error {
	if _, ok := e.store.Conversation(convID); !ok {
		return ErrUnknownConversation
	}
	if err := e.api.MarkRead(ctx, convID); err != nil {
		if rest.IsUnauthorized(err) {
			e.bus.Publish(bus.Event{Kind: "auth.expired", At: time.Now()})
		}
		return err
	}
	e.store.MarkRead(convID)
	e.publishUpdated()
	return nil
}

// LoadHistory pulls one page of a conversation's history into the store.
// Inserts are idempotent, so overlap with pushed messages is harmless, and
// history never moves unread counts: those belong to the conversation fetch
// and to live pushes.
func (e *Engine) LoadHistory(ctx context.Context, convID int64, page int) error {
	msgs, err := e.api.FetchMessages(ctx, convID, page)
	if err != nil {
		if rest.IsUnauthorized(err) {
			e.bus.Publish(bus.Event{Kind: "auth.expired", At: time.Now()})
		}
		return err
	}
	changed := false
	for _, m := range msgs {
		if e.store.InsertHistorical(m) {
			changed = true
		}
	}
	if changed {
		e.publishUpdated()
	}
	return nil
}

func (e *Engine) publishUpdated() {
	e.bus.Publish(bus.Event{
		Kind:    "store.updated",
		At:      time.Now(),
		Payload: e.store.Version(),
	})
}
