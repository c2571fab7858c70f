package registry

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/namehash"
	"MailNames/internal/types"
)

// EventKind discriminates the effects the entrypoint can emit.
type EventKind uint8

const (
	// EventClaimed marks a node claimed and its account provisioned.
	EventClaimed EventKind = iota + 1

	// EventTextSet marks a text record written under a node.
	EventTextSet
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventClaimed:
		return "claimed"
	case EventTextSet:
		return "text_set"
	default:
		return "unknown"
	}
}

// Event describes one applied entrypoint effect.
type Event struct {
	Kind      EventKind      // Kind is the effect kind
	Node      namehash.Node  // Node is the affected naming-system node
	Account   common.Address // Account is the node's account (claim events)
	Key       string         // Key is the text-record key (text events)
	Value     string         // Value is the text-record value (text events)
	Nullifier [32]byte       // Nullifier is the consumed proof nullifier
}

// Marshal serializes the event to its FlatBuffers wire form.
func (e *Event) Marshal() []byte {
	builder := flatbuffers.NewBuilder(256)

	keyOffset := builder.CreateString(e.Key)
	valueOffset := builder.CreateString(e.Value)
	nodeOffset := builder.CreateByteVector(e.Node[:])
	accountOffset := builder.CreateByteVector(e.Account[:])
	nullifierOffset := builder.CreateByteVector(e.Nullifier[:])

	types.EventStart(builder)
	types.EventAddKind(builder, byte(e.Kind))
	types.EventAddNode(builder, nodeOffset)
	types.EventAddAccount(builder, accountOffset)
	types.EventAddKey(builder, keyOffset)
	types.EventAddValue(builder, valueOffset)
	types.EventAddNullifier(builder, nullifierOffset)
	eventOffset := types.EventEnd(builder)

	builder.Finish(eventOffset)

	return builder.FinishedBytes()
}

// UnmarshalEvent parses an event from its FlatBuffers wire form.
func UnmarshalEvent(data []byte) (*Event, error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("event too short: %d bytes", len(data))
	}

	raw := types.GetRootAsEvent(data, 0)

	event := &Event{
		Kind:  EventKind(raw.Kind()),
		Key:   string(raw.Key()),
		Value: string(raw.Value()),
	}

	if node := raw.NodeBytes(); len(node) == 32 {
		copy(event.Node[:], node)
	}

	if acct := raw.AccountBytes(); len(acct) == common.AddressLength {
		event.Account = common.BytesToAddress(acct)
	}

	if nullifier := raw.NullifierBytes(); len(nullifier) == 32 {
		copy(event.Nullifier[:], nullifier)
	}

	return event, nil
}
