// Package ctl is the CLI-side client for the daemon's control socket.
package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pbaptista/rally/internal/api"
	"github.com/pbaptista/rally/internal/chat"
	"github.com/pbaptista/rally/internal/pagination"
)

// Client talks to a session daemon over its unix socket.
type Client struct {
	http *http.Client
}

// New creates a client for the daemon listening on socketPath.
func New(socketPath string) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 10 * time.Second,
		},
	}
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var st api.Status
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &st)
	return st, err
}

// Conversations fetches one page of the inbox.
func (c *Client) Conversations(ctx context.Context, page int) (pagination.View[chat.Conversation], error) {
	var view pagination.View[chat.Conversation]
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/conversations?page=%d", page), nil, &view)
	return view, err
}

// Messages fetches one page of a conversation's history.
func (c *Client) Messages(ctx context.Context, convID int64, page int) (pagination.View[chat.Message], error) {
	var view pagination.View[chat.Message]
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/conversations/%d/messages?page=%d", convID, page), nil, &view)
	return view, err
}

// MarkRead clears a conversation's unread count.
func (c *Client) MarkRead(ctx context.Context, convID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/conversations/%d/read", convID), nil, nil)
}

// Send queues a message and returns its client ID.
func (c *Client) Send(ctx context.Context, convID int64, text string) (string, error) {
	var out struct {
		ClientID string `json:"clientId"`
	}
	body := map[string]any{"conversationId": convID, "text": text}
	if err := c.do(ctx, http.MethodPost, "/v1/messages", body, &out); err != nil {
		return "", err
	}
	return out.ClientID, nil
}

// Login hands the daemon a bearer token.
func (c *Client) Login(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/login", map[string]string{"token": token}, nil)
}

// Logout drops the daemon's credentials.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	// The host is ignored; the dialer always goes to the socket.
	req, err := http.NewRequestWithContext(ctx, method, "http://rally"+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("daemon: %s", e.Error)
		}
		return fmt.Errorf("daemon: unexpected status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
