/*
Package gateway implements the server-side synchronization broker for MindSync
boards.

One room per board is the unit of mutual exclusion: every mutation for a board
is applied inside that room's critical section, assigned the next version, and
broadcast to all subscribed sessions (the submitter included, so its pending
state resolves through the same path as everyone else's). Different boards are
fully independent.

The in-memory tree is authoritative for live sessions. Persistence to the
BoardStore is asynchronous with retries and never blocks or fails a live edit.
*/
package gateway
