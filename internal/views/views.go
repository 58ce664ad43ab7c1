// Package views derives read models from the chat store: the inbox ordering,
// the unread badge, and paginated slices of both lists. Results are memoized
// against the store version so repeated reads between updates are free.
package views

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/pbaptista/rally/internal/chat"
	"github.com/pbaptista/rally/internal/pagination"
)

// Views composes store snapshots into UI-ready lists.
type Views struct {
	store *chat.Store

	mu       sync.Mutex
	version  uint64
	inbox    []chat.Conversation
	unread   int
	threads  map[int64][]chat.Message
	haveSnap bool
}

// New creates a view layer over store.
func New(store *chat.Store) *Views {
	return &Views{store: store, threads: make(map[int64][]chat.Message)}
}

// refresh rebuilds the memoized inbox when the store has moved on.
func (v *Views) refresh() {
	ver := v.store.Version()
	if v.haveSnap && ver == v.version {
		return
	}
	convs := v.store.Conversations()
	sort.Slice(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.ID > b.ID
	})
	v.inbox = convs
	v.unread = lo.SumBy(convs, func(c chat.Conversation) int { return c.UnreadCount })
	v.threads = make(map[int64][]chat.Message)
	v.version = ver
	v.haveSnap = true
}

// Inbox returns all conversations, most recent activity first. Conversations
// with equal timestamps fall back to descending ID so the order is stable.
func (v *Views) Inbox() []chat.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refresh()
	out := make([]chat.Conversation, len(v.inbox))
	copy(out, v.inbox)
	return out
}

// TotalUnread is the badge count across all conversations.
func (v *Views) TotalUnread() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refresh()
	return v.unread
}

// InboxPage returns one page of the inbox.
func (v *Views) InboxPage(page, pageSize int) pagination.View[chat.Conversation] {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refresh()
	p := pagination.NewWithSize(v.inbox, pageSize)
	p.GoToPage(page)
	return p.View()
}

// Thread returns one page of a conversation's messages in chronological
// order. Unknown conversations yield an empty first page.
func (v *Views) Thread(convID int64, page, pageSize int) pagination.View[chat.Message] {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refresh()
	msgs, ok := v.threads[convID]
	if !ok {
		msgs = v.store.Messages(convID)
		v.threads[convID] = msgs
	}
	p := pagination.NewWithSize(msgs, pageSize)
	p.GoToPage(page)
	return p.View()
}
