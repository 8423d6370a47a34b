package client

import (
	"context"

	"github.com/and07/mindsync/pkg/protocol"
)

// Conn abstracts the realtime channel to the gateway. The websocket adapter
// provides the production implementation; tests drive a Session with a
// scripted in-memory peer.
type Conn interface {
	// Send transmits one envelope. It may block until the transport accepts
	// the message or ctx is done.
	Send(ctx context.Context, env protocol.Envelope) error

	// Receive blocks for the next server envelope. It returns an error when
	// the connection is gone; the session treats that as connection loss.
	Receive(ctx context.Context) (protocol.Envelope, error)

	// Close tears the connection down, unblocking Receive.
	Close() error
}
