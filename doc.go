/*
Package mindsync is a collaborative mind mapping engine: a shared tree of
ideas kept synchronized across sessions in real time.

It separates the board model (an immutable tree of nodes), the deterministic
layout engine (every client computes identical coordinates from the same
tree), and the synchronization gateway (per-board rooms serializing edits
into a single version history). This hexagonal layout keeps the core free of
transport and storage concerns: adapters provide websockets on the wire and
memory, file or redis persistence behind it.

# Concept

Every edit is a Mutation against the board's tree. The gateway applies
mutations one at a time per board, assigns each a version, and broadcasts it
to every subscribed session. Clients apply their own edits optimistically and
rebase them when someone else's edit lands first, so the interface never
waits on the network.

# Usage

Run a gateway and connect sessions to it:

	package main

	import (
		"context"
		"log"
		"net/http"

		"github.com/and07/mindsync"
		"github.com/and07/mindsync/pkg/adapters/memory"
	)

	func main() {
		srv := mindsync.NewServer(memory.NewStore())
		defer srv.Close()
		go http.ListenAndServe(":8080", srv.Handler())

		session, err := mindsync.Connect(context.Background(), "ws://localhost:8080/ws", "my-board")
		if err != nil {
			log.Fatal(err)
		}
		defer session.Close()

		for snapshot := range session.Snapshots() {
			// render snapshot.Tree at snapshot.Positions
			_ = snapshot
		}
	}

The pkg/domain, pkg/layout, pkg/gateway and pkg/client packages expose the
individual layers for hosts that need more control.
*/
package mindsync
