package ctl

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/pbaptista/rally/internal/api"
	"github.com/pbaptista/rally/internal/chat"
	"github.com/pbaptista/rally/internal/pagination"
)

func serveUnix(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	tmpDir, err := os.MkdirTemp("/tmp", "rally-ctl-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	socketPath := filepath.Join(tmpDir, "d.sock")
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return socketPath
}

func TestStatusRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.Status{State: "CONNECTED", Authenticated: true, TotalUnread: 3})
	})
	c := New(serveUnix(t, mux))

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != "CONNECTED" || !st.Authenticated || st.TotalUnread != 3 {
		t.Fatalf("status = %+v", st)
	}
}

func TestSendAndErrorMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ConversationID int64  `json:"conversationId"`
			Text           string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID == 0 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "conversationId and text are required"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"clientId": "abc-123"})
	})
	c := New(serveUnix(t, mux))

	clientID, err := c.Send(context.Background(), 1, "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if clientID != "abc-123" {
		t.Fatalf("clientID = %q", clientID)
	}

	_, err = c.Send(context.Background(), 0, "hi")
	if err == nil || err.Error() != "daemon: conversationId and text are required" {
		t.Fatalf("error = %v, want daemon error body surfaced", err)
	}
}

func TestConversationsPageQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("page query = %q, want 2", got)
		}
		_ = json.NewEncoder(w).Encode(pagination.View[chat.Conversation]{
			Page: 2, PageSize: 10, TotalItems: 15, TotalPages: 2,
			Items: []chat.Conversation{{ID: 5}},
		})
	})
	c := New(serveUnix(t, mux))

	view, err := c.Conversations(context.Background(), 2)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if view.Page != 2 || len(view.Items) != 1 || view.Items[0].ID != 5 {
		t.Fatalf("view = %+v", view)
	}
}
