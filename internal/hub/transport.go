package hub

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Transport dials the hub. The connection manager treats it as an opaque
// factory of duplex channels; tests substitute fakes.
type Transport interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// Conn is one established hub connection. Events delivers decoded push
// events and is closed when the connection dies; Err then reports the
// terminal error (nil after a local Close).
type Conn interface {
	Events() <-chan any
	Err() error
	Close() error
}

// Dialer is the production websocket Transport.
type Dialer struct {
	URL        string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewDialer creates a websocket transport for the given hub URL.
func NewDialer(url string, logger *zap.Logger) *Dialer {
	return &Dialer{URL: url, Logger: logger}
}

// Dial opens the websocket and starts its read pump.
func (d *Dialer) Dial(ctx context.Context, token string) (Conn, error) {
	opts := &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	}
	ws, _, err := websocket.Dial(ctx, d.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}

	c := &wsConn{
		ws:     ws,
		events: make(chan any, 64),
		logger: d.Logger,
	}
	readCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.readPump(readCtx)
	return c, nil
}

type wsConn struct {
	ws     *websocket.Conn
	events chan any
	logger *zap.Logger
	cancel context.CancelFunc
	err    error
	closed bool
}

func (c *wsConn) Events() <-chan any { return c.events }

func (c *wsConn) Err() error {
	if c.closed {
		return nil
	}
	return c.err
}

func (c *wsConn) Close() error {
	c.closed = true
	c.cancel()
	return c.ws.Close(websocket.StatusNormalClosure, "client closing")
}

func (c *wsConn) readPump(ctx context.Context) {
	defer close(c.events)
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			c.err = err
			return
		}
		evt, err := Decode(data)
		if err != nil {
			// Malformed frames are dropped; the stream keeps going.
			c.logger.Warn("dropping undecodable hub frame", zap.Error(err))
			continue
		}
		select {
		case c.events <- evt:
		case <-ctx.Done():
			return
		}
	}
}
