package protocol_test

import (
	"testing"

	"github.com/and07/mindsync/pkg/domain"
	"github.com/and07/mindsync/pkg/protocol"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	insert := domain.Insert("R", domain.Node{ID: "A"})

	cases := []struct {
		name string
		env  protocol.Envelope
		ok   bool
	}{
		{
			name: "valid join",
			env:  protocol.Envelope{Type: protocol.TypeJoin, Join: &protocol.Join{BoardID: "b"}},
			ok:   true,
		},
		{
			name: "valid mutate",
			env:  protocol.Envelope{Type: protocol.TypeMutate, Mutate: &protocol.Mutate{BoardID: "b", Mutation: insert}},
			ok:   true,
		},
		{
			name: "missing type",
			env:  protocol.Envelope{Join: &protocol.Join{BoardID: "b"}},
		},
		{
			name: "join without board id",
			env:  protocol.Envelope{Type: protocol.TypeJoin, Join: &protocol.Join{}},
		},
		{
			name: "no payload",
			env:  protocol.Envelope{Type: protocol.TypeLeave},
		},
		{
			name: "payload mismatching type",
			env:  protocol.Envelope{Type: protocol.TypeLeave, Join: &protocol.Join{BoardID: "b"}},
		},
		{
			name: "two payloads",
			env: protocol.Envelope{
				Type:  protocol.TypeJoin,
				Join:  &protocol.Join{BoardID: "b"},
				Leave: &protocol.Leave{BoardID: "b"},
			},
		},
		{
			name: "malformed mutation",
			env:  protocol.Envelope{Type: protocol.TypeMutate, Mutate: &protocol.Mutate{BoardID: "b", Mutation: domain.Mutation{Op: domain.OpDelete}}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := protocol.Validate(&tc.env)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
