// ABOUTME: WebSocket client for the remote control endpoint
// ABOUTME: Dials a running cuebox, reads its hello and sends one command at a time
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// DefaultTimeout bounds dial and reply waits when ctx has no deadline
const DefaultTimeout = 5 * time.Second

// CommandError is a command the server rejected
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Command, e.Message)
}

// Client is a connection to a remote control server
type Client struct {
	conn  *websocket.Conn
	hello Hello
}

// Dial connects to addr (host:port) and waits for the server hello
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	log.Debugf("Connecting to %s", u.String())

	dialCtx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{conn: conn}
	msg, err := c.read(dialCtx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	if msg.Type != TypeHello {
		conn.Close()
		return nil, fmt.Errorf("expected hello, got %s", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &c.hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("invalid hello: %w", err)
	}
	return c, nil
}

// Hello returns the server greeting
func (c *Client) Hello() Hello {
	return c.hello
}

// Send writes a command and waits for its ack. Event frames that arrive
// in between are skipped.
func (c *Client) Send(ctx context.Context, msgType string, payload interface{}) (Ack, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteJSON(outbound{Type: msgType, Payload: payload}); err != nil {
		return Ack{}, fmt.Errorf("sending %s: %w", msgType, err)
	}

	for {
		msg, err := c.read(ctx)
		if err != nil {
			return Ack{}, err
		}
		switch msg.Type {
		case TypeAck:
			var ack Ack
			if err := json.Unmarshal(msg.Payload, &ack); err != nil {
				return Ack{}, fmt.Errorf("invalid ack: %w", err)
			}
			return ack, nil
		case TypeError:
			var e ErrorPayload
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				return Ack{}, fmt.Errorf("invalid error frame: %w", err)
			}
			if e.Command == "" {
				e.Command = msgType
			}
			return Ack{}, &CommandError{Command: e.Command, Message: e.Message}
		}
	}
}

// Close sends a close frame and closes the connection
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *Client) read(ctx context.Context) (Message, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
	}
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}
