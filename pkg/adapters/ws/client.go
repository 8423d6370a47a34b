package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/and07/mindsync/pkg/protocol"
)

// ClientConn is a websocket-backed connection for client.Session.
type ClientConn struct {
	conn *websocket.Conn

	// Session submits from its event loop while Open sends the initial join
	// from the caller's goroutine; writes are serialized here.
	wmu sync.Mutex
}

// Dial connects to a gateway's /ws endpoint. url uses the ws or wss scheme.
func Dial(ctx context.Context, url string) (*ClientConn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &ClientConn{conn: conn}, nil
}

func (c *ClientConn) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("websocket send: %w", err)
	}
	return nil
}

// Receive blocks for the next envelope. It unblocks with an error when the
// connection is closed; context cancellation is handled by Session closing
// the connection rather than here.
func (c *ClientConn) Receive(ctx context.Context) (protocol.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Envelope{}, err
	}
	var env protocol.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("websocket receive: %w", err)
	}
	return env, nil
}

func (c *ClientConn) Close() error {
	c.wmu.Lock()
	// Best effort close handshake; the peer tears the socket down either way.
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return c.conn.Close()
}
