// Package chat holds the in-memory conversation/message store. The store is
// the single source of truth reconciling two producers: the bulk REST fetch
// and the live hub push stream. It owns no persistence; it is rebuilt from
// the REST collaborator on every connect.
package chat

import (
	"sort"
	"sync"
)

// Store is a normalized, mutation-safe container for conversations and
// their messages. Every mutation is atomic under the store lock and bumps a
// version counter consumed by the view layer for memoization.
type Store struct {
	mu      sync.RWMutex
	convs   map[int64]*thread
	version uint64
}

type thread struct {
	conv     Conversation
	messages []Message // kept sorted per Message.before
	seen     map[int64]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{convs: make(map[int64]*thread)}
}

// Version returns a counter incremented by every effective mutation. No-op
// operations (duplicate upserts, marking an unknown conversation read) do
// not bump it.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpsertMessage inserts m into its conversation's ordered message set.
// Inserting an already-present message id is a no-op and returns false —
// duplicate delivery never duplicates entries, re-increments unread counts,
// or reorders the set. The first insertion of a message not from the current
// user increments the conversation's unread count by exactly one.
//
// An unknown conversation id creates a placeholder conversation: live push
// may precede the fetch that names the partner.
func (s *Store) UpsertMessage(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(m, true)
}

// InsertHistorical inserts a fetched history message. Identical to
// UpsertMessage except that unread counts are never touched: history is
// already-counted backlog, and the server's unread count from the
// conversation fetch stays authoritative for it.
func (s *Store) InsertHistorical(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(m, false)
}

func (s *Store) insertLocked(m Message, countUnread bool) bool {
	th, ok := s.convs[m.ConversationID]
	if !ok {
		th = &thread{
			conv: Conversation{ID: m.ConversationID},
			seen: make(map[int64]struct{}),
		}
		if !m.FromMe {
			th.conv.PartnerName = m.SenderName
			th.conv.PartnerAvatarURL = m.SenderAvatarURL
		}
		s.convs[m.ConversationID] = th
	}

	if _, dup := th.seen[m.ID]; dup {
		return false
	}
	th.seen[m.ID] = struct{}{}

	idx := sort.Search(len(th.messages), func(i int) bool {
		return m.before(th.messages[i])
	})
	th.messages = append(th.messages, Message{})
	copy(th.messages[idx+1:], th.messages[idx:])
	th.messages[idx] = m

	if countUnread && !m.FromMe {
		th.conv.UnreadCount++
	}
	if idx == len(th.messages)-1 {
		th.conv.LastMessageText = m.Text
		if !m.SentAt.IsZero() {
			th.conv.LastMessageAt = m.SentAt
		}
	}

	s.version++
	return true
}

// RemoveMessage deletes one message, used to retire provisional optimistic
// entries once the server-confirmed message arrives. Unread counts are left
// alone: provisional messages are always from the current user.
func (s *Store) RemoveMessage(convID, msgID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.convs[convID]
	if !ok {
		return false
	}
	if _, present := th.seen[msgID]; !present {
		return false
	}
	delete(th.seen, msgID)
	for i, m := range th.messages {
		if m.ID == msgID {
			th.messages = append(th.messages[:i], th.messages[i+1:]...)
			break
		}
	}
	s.version++
	return true
}

// UpsertConversation merges a conversation-level update (new conversation,
// partner rename, server-side unread recount). Existing messages are kept.
// The incoming last-message summary only wins when it is strictly newer than
// what a push event already confirmed.
func (s *Store) UpsertConversation(c Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(c)
	s.version++
}

// ReplaceConversations applies a full fetch result: conversations absent
// from list are removed, present ones are merged keeping their message sets.
// Fetched unread counts are authoritative at fetch time; push events replayed
// after this call re-apply anything that raced with the fetch.
func (s *Store) ReplaceConversations(list []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[int64]struct{}, len(list))
	for _, c := range list {
		keep[c.ID] = struct{}{}
		s.mergeLocked(c)
	}
	for id := range s.convs {
		if _, ok := keep[id]; !ok {
			delete(s.convs, id)
		}
	}
	s.version++
}

func (s *Store) mergeLocked(c Conversation) {
	th, ok := s.convs[c.ID]
	if !ok {
		s.convs[c.ID] = &thread{conv: c, seen: make(map[int64]struct{})}
		return
	}
	prev := th.conv
	th.conv = c
	// A racing fetch must not roll back a summary a push event already
	// confirmed with a strictly later timestamp.
	if prev.LastMessageAt.After(c.LastMessageAt) {
		th.conv.LastMessageText = prev.LastMessageText
		th.conv.LastMessageAt = prev.LastMessageAt
	}
}

// MarkRead zeroes one conversation's unread count, leaving message bodies
// and every other conversation untouched. Returns false for unknown ids.
func (s *Store) MarkRead(convID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.convs[convID]
	if !ok {
		return false
	}
	if th.conv.UnreadCount == 0 {
		return true
	}
	th.conv.UnreadCount = 0
	s.version++
	return true
}

// TotalUnread sums unread counts across conversations. Purely derived —
// never independently mutated.
func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, th := range s.convs {
		total += th.conv.UnreadCount
	}
	return total
}

// Conversations returns a snapshot of all conversations in unspecified
// order. Ordering is the view layer's concern.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, 0, len(s.convs))
	for _, th := range s.convs {
		out = append(out, th.conv)
	}
	return out
}

// Conversation returns one conversation by id.
func (s *Store) Conversation(id int64) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.convs[id]
	if !ok {
		return Conversation{}, false
	}
	return th.conv, true
}

// Messages returns a copy of a conversation's ordered message list.
func (s *Store) Messages(convID int64) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.convs[convID]
	if !ok {
		return nil
	}
	out := make([]Message, len(th.messages))
	copy(out, th.messages)
	return out
}

// Reset drops all state, used on logout and authorization loss.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = make(map[int64]*thread)
	s.version++
}
