/*
Package protocol defines the realtime channel messages exchanged between
MindSync clients and the synchronization gateway.

Messages travel as JSON envelopes with a type tag and exactly one populated
variant, mirroring the tagged-union shape of domain.Mutation.
*/
package protocol

import (
	"fmt"

	"github.com/and07/mindsync/pkg/domain"
	"github.com/go-playground/validator/v10"
)

// MessageType tags the active variant of an Envelope.
type MessageType string

const (
	// Client to server.
	TypeJoin   MessageType = "join"
	TypeLeave  MessageType = "leave"
	TypeMutate MessageType = "mutate"

	// Server to client.
	TypeSnapshot  MessageType = "snapshot"
	TypeBroadcast MessageType = "broadcast"
	TypeRejected  MessageType = "rejected"
)

// Envelope is one realtime channel message.
type Envelope struct {
	Type MessageType `json:"type" validate:"required,oneof=join leave mutate snapshot broadcast rejected"`

	Join      *Join      `json:"join,omitempty"`
	Leave     *Leave     `json:"leave,omitempty"`
	Mutate    *Mutate    `json:"mutate,omitempty"`
	Snapshot  *Snapshot  `json:"snapshot,omitempty"`
	Broadcast *Broadcast `json:"broadcast,omitempty"`
	Rejected  *Rejected  `json:"rejected,omitempty"`
}

// Join subscribes the connection to a board's room. Re-joining an already
// subscribed board is the resynchronization request: the server replies with
// a fresh Snapshot.
type Join struct {
	BoardID      string `json:"board_id" validate:"required"`
	SessionToken string `json:"session_token,omitempty"`
}

// Leave unsubscribes the connection from a board's room. No reply.
type Leave struct {
	BoardID string `json:"board_id" validate:"required"`
}

// Mutate submits a mutation. ClientVersion is the submitter's last-applied
// version; it is advisory, the gateway merges optimistically. Nonce, when
// present, identifies the submission across retries: the gateway applies the
// first copy it sees and drops the rest.
type Mutate struct {
	BoardID       string          `json:"board_id" validate:"required"`
	Mutation      domain.Mutation `json:"mutation"`
	ClientVersion uint64          `json:"client_version"`
	Nonce         string          `json:"nonce,omitempty"`
}

// Snapshot carries the full current tree and version.
type Snapshot struct {
	BoardID string       `json:"board_id"`
	Tree    *domain.Tree `json:"tree"`
	Version uint64       `json:"version"`
}

// Broadcast carries one applied mutation and the version it produced.
type Broadcast struct {
	BoardID  string          `json:"board_id"`
	Mutation domain.Mutation `json:"mutation"`
	Version  uint64          `json:"version"`
}

// Rejected is sent only to the submitter of a refused mutation.
type Rejected struct {
	BoardID  string          `json:"board_id"`
	Reason   string          `json:"reason"`
	Mutation domain.Mutation `json:"mutation"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the envelope structurally: tag constraints, exactly one
// variant, and the variant matching the type tag. Mutations additionally run
// their own Validate so malformed intents are refused at the edge and never
// reach the gateway core.
func Validate(env *Envelope) error {
	if err := validate.Struct(env); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMutation, err)
	}

	var active int
	matched := true
	for _, v := range []struct {
		t   MessageType
		set bool
	}{
		{TypeJoin, env.Join != nil},
		{TypeLeave, env.Leave != nil},
		{TypeMutate, env.Mutate != nil},
		{TypeSnapshot, env.Snapshot != nil},
		{TypeBroadcast, env.Broadcast != nil},
		{TypeRejected, env.Rejected != nil},
	} {
		if v.set {
			active++
			if v.t != env.Type {
				matched = false
			}
		}
	}
	if active != 1 || !matched {
		return fmt.Errorf("%w: envelope %q must carry exactly its own payload", domain.ErrInvalidMutation, env.Type)
	}

	if env.Type == TypeMutate {
		if err := env.Mutate.Mutation.Validate(); err != nil {
			return err
		}
	}
	return nil
}
