package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pbaptista/rally/internal/ctl"
	"github.com/pbaptista/rally/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	pageFlag := flag.Int("page", 1, "page number for list commands")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := ctl.New(session.SocketPath(sessionName))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "inbox":
		cmdInbox(ctx, c, *pageFlag, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: rallyctl messages <conversation-id>")
			os.Exit(1)
		}
		cmdMessages(ctx, c, parseID(args[1]), *pageFlag, *jsonFlag)
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: rallyctl read <conversation-id>")
			os.Exit(1)
		}
		cmdRead(ctx, c, parseID(args[1]))
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: rallyctl send <conversation-id> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, parseID(args[1]), strings.Join(args[2:], " "))
	case "login":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: rallyctl login <token>")
			os.Exit(1)
		}
		cmdLogin(ctx, c, args[1])
	case "logout":
		cmdLogout(ctx, c)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: rallyctl [--session <name>] [--json] [--page <n>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status              Show daemon status")
	fmt.Fprintln(os.Stderr, "  inbox               List conversations, newest first")
	fmt.Fprintln(os.Stderr, "  messages <id>       Show a conversation's messages")
	fmt.Fprintln(os.Stderr, "  read <id>           Mark a conversation as read")
	fmt.Fprintln(os.Stderr, "  send <id> <text>    Send a message")
	fmt.Fprintln(os.Stderr, "  login <token>       Authenticate the daemon")
	fmt.Fprintln(os.Stderr, "  logout              Drop credentials")
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid conversation id %q\n", s)
		os.Exit(1)
	}
	return id
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *ctl.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("State:   %s\n", st.State)
	if st.Authenticated {
		fmt.Printf("User:    %d\n", st.UserID)
	} else {
		fmt.Println("User:    (not logged in)")
	}
	fmt.Printf("Unread:  %d\n", st.TotalUnread)
}

func cmdInbox(ctx context.Context, c *ctl.Client, page int, jsonOut bool) {
	view, err := c.Conversations(ctx, page)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(view)
		return
	}
	for _, conv := range view.Items {
		badge := ""
		if conv.UnreadCount > 0 {
			badge = fmt.Sprintf(" (%d unread)", conv.UnreadCount)
		}
		fmt.Printf("%4d  %-20s %s%s\n", conv.ID, conv.PartnerName, conv.LastMessageText, badge)
	}
	fmt.Printf("page %d/%d, %d conversations\n", view.Page, view.TotalPages, view.TotalItems)
}

func cmdMessages(ctx context.Context, c *ctl.Client, convID int64, page int, jsonOut bool) {
	view, err := c.Messages(ctx, convID, page)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(view)
		return
	}
	for _, m := range view.Items {
		who := m.SenderName
		if m.FromMe {
			who = "me"
		}
		stamp := "pending"
		if !m.SentAt.IsZero() {
			stamp = m.SentAt.Local().Format("15:04")
		}
		fmt.Printf("[%s] %s: %s\n", stamp, who, m.Text)
	}
	fmt.Printf("page %d/%d, %d messages\n", view.Page, view.TotalPages, view.TotalItems)
}

func cmdRead(ctx context.Context, c *ctl.Client, convID int64) {
	if err := c.MarkRead(ctx, convID); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdSend(ctx context.Context, c *ctl.Client, convID int64, text string) {
	clientID, err := c.Send(ctx, convID, text)
	if err != nil {
		fail(err)
	}
	fmt.Printf("queued %s\n", clientID)
}

func cmdLogin(ctx context.Context, c *ctl.Client, token string) {
	if err := c.Login(ctx, token); err != nil {
		fail(err)
	}
	fmt.Println("logged in")
}

func cmdLogout(ctx context.Context, c *ctl.Client) {
	if err := c.Logout(ctx); err != nil {
		fail(err)
	}
	fmt.Println("logged out")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
