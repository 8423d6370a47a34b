package mindsync

import (
	"context"
	"net/http"

	"github.com/and07/mindsync/pkg/adapters/ws"
	"github.com/and07/mindsync/pkg/client"
	"github.com/and07/mindsync/pkg/gateway"
	"github.com/and07/mindsync/pkg/ports"
)

// Version is the release version, overridden at build time.
var Version = "0.1.0"

// Server bundles a gateway with its websocket front.
type Server struct {
	gw *gateway.Gateway
	ws *ws.Server
}

// NewServer creates a gateway backed by store and wires the websocket
// transport around it. Options are forwarded to the gateway.
func NewServer(store ports.BoardStore, opts ...gateway.Option) *Server {
	gw := gateway.New(store, opts...)
	return &Server{gw: gw, ws: ws.NewServer(gw)}
}

// Handler returns the HTTP handler serving the realtime channel.
func (s *Server) Handler() http.Handler {
	return s.ws.Handler()
}

// Gateway exposes the underlying gateway for hosts that submit edits
// directly, bypassing the websocket transport.
func (s *Server) Gateway() *gateway.Gateway {
	return s.gw
}

// Close evicts all rooms, persisting their boards.
func (s *Server) Close() {
	s.gw.Close()
}

// Connect dials a gateway's websocket endpoint and opens a session on
// boardID. The returned session is Loading until its first snapshot arrives.
func Connect(ctx context.Context, url, boardID string, opts ...client.Option) (*client.Session, error) {
	conn, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	session, err := client.Open(ctx, conn, boardID, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}
