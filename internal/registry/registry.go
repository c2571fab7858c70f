// Package registry holds the claim state machine: the nullifier set,
// the node→account map and the node→text-record store, mutated only
// through the entrypoint pipeline.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/account"
	"MailNames/internal/codec"
	"MailNames/internal/command"
	"MailNames/internal/logger"
	"MailNames/internal/namehash"
	"MailNames/internal/storage"
)

var (
	// ErrNullifierUsed is returned on a replayed claim so callers can
	// report "already claimed" instead of a generic failure.
	ErrNullifierUsed = errors.New("nullifier already used")

	// ErrUnverifiedCommand is returned when a command fails its
	// business checks. The wrapped cause names the failing stage:
	// command.ErrInvalidDomainKey, command.ErrUnverifiedProof or
	// command.ErrTemplateMismatch.
	ErrUnverifiedCommand = errors.New("command verification failed")

	// ErrUnknownVariant is returned for an envelope variant with no
	// registered verifier.
	ErrUnknownVariant = errors.New("unknown command variant")
)

// EventSink receives the events the entrypoint emits after a commit.
type EventSink interface {
	// Publish delivers one applied-effect event.
	Publish(event *Event)
}

// Registry is the entrypoint host. All mutations go through Entrypoint,
// serialized by an internal mutex; every other operation is read-only.
type Registry struct {
	store     *Store                             // store is the persistent claim state
	verifiers map[command.Kind]*command.Verifier // verifiers maps variants to their verifier
	factory   *account.Factory                   // factory predicts account addresses
	arena     *account.Arena                     // arena holds the instantiated accounts
	identity  common.Address                     // identity owns and operates provisioned accounts
	sink      EventSink                          // sink receives applied events, may be nil

	mu sync.Mutex
}

// New creates a registry over the given state and collaborators.
func New(store *Store, factory *account.Factory, arena *account.Arena, identity common.Address, sink EventSink) *Registry {
	return &Registry{
		store:     store,
		verifiers: make(map[command.Kind]*command.Verifier),
		factory:   factory,
		arena:     arena,
		identity:  identity,
		sink:      sink,
	}
}

// Register installs the verifier for one command variant.
func (r *Registry) Register(verifier *command.Verifier) {
	r.verifiers[verifier.Kind()] = verifier
}

// Entrypoint is the single mutating operation: it decodes a raw claim
// envelope, verifies the command, consumes its nullifier and applies
// the variant's effect atomically. Either the whole effect commits or
// no state changes.
func (r *Registry) Entrypoint(raw []byte) (*Event, error) {
	kind, proof, inputs, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	verifier, ok := r.verifiers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, kind)
	}

	fields, err := codec.ElementsFromBytes(inputs)
	if err != nil {
		return nil, fmt.Errorf("decode input fields:\n%w", err)
	}

	cmd, err := verifier.Encode(proof, fields)
	if err != nil {
		return nil, fmt.Errorf("encode command:\n%w", err)
	}

	if err := verifier.Check(cmd); err != nil {
		return nil, fmt.Errorf("%w:\n%w", ErrUnverifiedCommand, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	used, err := r.store.HasNullifier(cmd.Inputs.Nullifier)
	if err != nil {
		return nil, err
	}

	if used {
		return nil, ErrNullifierUsed
	}

	event, err := r.apply(cmd)
	if err != nil {
		return nil, err
	}

	logger.Info("claim applied",
		"variant", cmd.Kind.String(),
		"event", event.Kind.String(),
		"node", fmt.Sprintf("%x", event.Node[:8]))

	if r.sink != nil {
		r.sink.Publish(event)
	}

	return event, nil
}

// apply executes the variant-specific effect under the registry mutex.
// The nullifier mark and the effect commit in one batch.
func (r *Registry) apply(cmd *command.Command) (*Event, error) {
	node := cmd.Node()

	if cmd.Kind.IsClaim() {
		return r.applyClaim(cmd, node)
	}

	return r.applyText(cmd, node)
}

// applyClaim records the node's account and provisions it on first
// claim. A second claim for an already-claimed node marks its
// nullifier but does not redeploy.
func (r *Registry) applyClaim(cmd *command.Command, node namehash.Node) (*Event, error) {
	existing, err := r.store.Account(node)
	if err != nil {
		return nil, err
	}

	address := existing
	pairs := []storage.KeyValue{
		{Key: nullifierKey(cmd.Inputs.Nullifier), Value: []byte{1}},
	}

	if existing == (common.Address{}) {
		address = r.factory.PredictAddress(node)
		pairs = append(pairs, storage.KeyValue{Key: accountKey(node), Value: address.Bytes()})
	}

	if err := r.store.Commit(pairs); err != nil {
		return nil, fmt.Errorf("commit claim:\n%w", err)
	}

	// Instantiate only after the commit so a failed batch leaves no
	// account behind. Provision is idempotent per node.
	if _, _, err := r.arena.Provision(node, r.identity); err != nil {
		return nil, fmt.Errorf("provision account:\n%w", err)
	}

	return &Event{
		Kind:      EventClaimed,
		Node:      node,
		Account:   address,
		Nullifier: cmd.Inputs.Nullifier,
	}, nil
}

// applyText writes or overwrites the variant's text record.
func (r *Registry) applyText(cmd *command.Command, node namehash.Node) (*Event, error) {
	key := cmd.Kind.TextKey()
	if key == "" {
		return nil, fmt.Errorf("%w: variant %s has no effect", ErrUnknownVariant, cmd.Kind)
	}

	pairs := []storage.KeyValue{
		{Key: nullifierKey(cmd.Inputs.Nullifier), Value: []byte{1}},
		{Key: textKey(node, key), Value: []byte(cmd.Param)},
	}

	if err := r.store.Commit(pairs); err != nil {
		return nil, fmt.Errorf("commit text record:\n%w", err)
	}

	return &Event{
		Kind:      EventTextSet,
		Node:      node,
		Key:       key,
		Value:     cmd.Param,
		Nullifier: cmd.Inputs.Nullifier,
	}, nil
}

// PredictAddress computes a node's deterministic account address.
// Pure, identical before and after the claim.
func (r *Registry) PredictAddress(node namehash.Node) common.Address {
	return r.factory.PredictAddress(node)
}

// GetAccount returns a node's recorded account address, or the zero
// address if unclaimed.
func (r *Registry) GetAccount(node namehash.Node) (common.Address, error) {
	return r.store.Account(node)
}

// GetText returns a node's text record, or "" if unset.
func (r *Registry) GetText(node namehash.Node, key string) (string, error) {
	return r.store.Text(node, key)
}

// VerifyText reports whether a node's record under key equals value.
func (r *Registry) VerifyText(node namehash.Node, key, value string) (bool, error) {
	stored, err := r.store.Text(node, key)
	if err != nil {
		return false, err
	}

	return stored != "" && stored == value, nil
}

// Counts returns the used-nullifier and claimed-node totals.
func (r *Registry) Counts() (nullifiers, accounts int, err error) {
	nullifiers, err = r.store.CountNullifiers()
	if err != nil {
		return 0, 0, err
	}

	accounts, err = r.store.CountAccounts()
	if err != nil {
		return 0, 0, err
	}

	return nullifiers, accounts, nil
}
