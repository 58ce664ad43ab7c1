// Package rest is the request/response collaborator: bulk history fetches
// and write intents against the Rally API. It carries no store logic — the
// sync engine reconciles whatever this client returns.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pbaptista/rally/internal/chat"
)

const defaultTimeout = 15 * time.Second

// TokenSource supplies the current bearer token, empty when logged out.
type TokenSource func() string

// Client talks to the Rally REST API.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, token TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type conversationDTO struct {
	ID               int64      `json:"id"`
	PartnerName      string     `json:"partnerName"`
	PartnerAvatarURL string     `json:"partnerAvatarUrl"`
	LastMessageText  string     `json:"lastMessageText"`
	LastMessageAt    *time.Time `json:"lastMessageAt"`
	UnreadCount      int        `json:"unreadCount"`
}

type messageDTO struct {
	ID              int64      `json:"id"`
	ConversationID  int64      `json:"conversationId"`
	SenderID        int64      `json:"senderId"`
	SenderName      string     `json:"senderName"`
	SenderAvatarURL string     `json:"senderAvatarUrl"`
	Text            string     `json:"text"`
	SentAt          *time.Time `json:"sentAt"`
	FromMe          bool       `json:"fromMe"`
}

// FetchConversations returns the full conversation list.
func (c *Client) FetchConversations(ctx context.Context) ([]chat.Conversation, error) {
	var dtos []conversationDTO
	if err := c.do(ctx, http.MethodGet, "/v1/conversations", nil, &dtos); err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	out := make([]chat.Conversation, 0, len(dtos))
	for _, d := range dtos {
		conv := chat.Conversation{
			ID:               d.ID,
			PartnerName:      d.PartnerName,
			PartnerAvatarURL: d.PartnerAvatarURL,
			LastMessageText:  d.LastMessageText,
			UnreadCount:      d.UnreadCount,
		}
		if d.LastMessageAt != nil {
			conv.LastMessageAt = *d.LastMessageAt
		}
		out = append(out, conv)
	}
	return out, nil
}

// FetchMessages returns one page of a conversation's history, oldest first.
func (c *Client) FetchMessages(ctx context.Context, convID int64, page int) ([]chat.Message, error) {
	path := fmt.Sprintf("/v1/conversations/%d/messages", convID)
	if page > 0 {
		path += "?page=" + strconv.Itoa(page)
	}
	var dtos []messageDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, fmt.Errorf("fetch messages for conversation %d: %w", convID, err)
	}
	out := make([]chat.Message, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toMessage())
	}
	return out, nil
}

// MarkRead tells the server the conversation has been read.
func (c *Client) MarkRead(ctx context.Context, convID int64) error {
	path := fmt.Sprintf("/v1/conversations/%d/read", convID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("mark conversation %d read: %w", convID, err)
	}
	return nil
}

// SendMessage posts a new message and returns the server-acknowledged copy.
func (c *Client) SendMessage(ctx context.Context, convID int64, text string) (chat.Message, error) {
	path := fmt.Sprintf("/v1/conversations/%d/messages", convID)
	body := map[string]string{"text": text}
	var dto messageDTO
	if err := c.do(ctx, http.MethodPost, path, body, &dto); err != nil {
		return chat.Message{}, fmt.Errorf("send message to conversation %d: %w", convID, err)
	}
	return dto.toMessage(), nil
}

func (d messageDTO) toMessage() chat.Message {
	m := chat.Message{
		ID:              d.ID,
		ConversationID:  d.ConversationID,
		SenderID:        d.SenderID,
		SenderName:      d.SenderName,
		SenderAvatarURL: d.SenderAvatarURL,
		Text:            d.Text,
		FromMe:          d.FromMe,
	}
	if d.SentAt != nil {
		m.SentAt = *d.SentAt
	}
	return m
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
