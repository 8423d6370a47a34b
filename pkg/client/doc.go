/*
Package client implements the client-side session state holder for one open
board.

A Session owns a local replica of the board tree and drives it through
Loading -> Synced <-> Mutating -> Closed. Local edits apply optimistically and
are reconciled against the gateway's broadcasts; every accepted mutation
(local or remote) yields exactly one laid-out snapshot on Snapshots(), in
version order. A version gap triggers a full resynchronization instead of
partial repair.

The session is a single event loop: the wire, local intents and shutdown are
its only inputs, and it is the sole mutator of the local tree.
*/
package client
