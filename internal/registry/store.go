package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/namehash"
	"MailNames/internal/storage"
)

// Storage key prefixes. Node keys are fixed 32 bytes, so text keys can
// append the record key directly without a separator.
var (
	prefixNullifier = []byte("n:")
	prefixAccount   = []byte("a:")
	prefixText      = []byte("t:")
)

// Store is the pebble-backed registry state: the nullifier set, the
// node→account map and the node→text-record store. The registry owns
// it exclusively.
type Store struct {
	db *storage.Storage // db is the backing key-value store
}

// NewStore creates a store over the given storage.
func NewStore(db *storage.Storage) *Store {
	return &Store{db: db}
}

// HasNullifier reports whether a nullifier has been used.
func (s *Store) HasNullifier(nullifier [32]byte) (bool, error) {
	value, err := s.db.Get(nullifierKey(nullifier))
	if err != nil {
		return false, fmt.Errorf("read nullifier:\n%w", err)
	}

	return value != nil, nil
}

// Account returns the account address recorded for a node, or the
// zero address if the node is unclaimed.
func (s *Store) Account(node namehash.Node) (common.Address, error) {
	value, err := s.db.Get(accountKey(node))
	if err != nil {
		return common.Address{}, fmt.Errorf("read account:\n%w", err)
	}

	if len(value) != common.AddressLength {
		return common.Address{}, nil
	}

	return common.BytesToAddress(value), nil
}

// Text returns a node's text record for a key, or "" if unset.
func (s *Store) Text(node namehash.Node, key string) (string, error) {
	value, err := s.db.Get(textKey(node, key))
	if err != nil {
		return "", fmt.Errorf("read text record:\n%w", err)
	}

	return string(value), nil
}

// Commit atomically applies a batch of writes.
func (s *Store) Commit(pairs []storage.KeyValue) error {
	return s.db.SetBatch(pairs)
}

// CountNullifiers counts the used nullifiers.
func (s *Store) CountNullifiers() (int, error) {
	return s.countPrefix(prefixNullifier)
}

// CountAccounts counts the claimed nodes.
func (s *Store) CountAccounts() (int, error) {
	return s.countPrefix(prefixAccount)
}

// countPrefix counts the keys under a prefix.
func (s *Store) countPrefix(prefix []byte) (int, error) {
	count := 0

	err := s.db.IteratePrefix(prefix, func(key, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan prefix %q:\n%w", prefix, err)
	}

	return count, nil
}

// nullifierKey builds the storage key for a nullifier.
func nullifierKey(nullifier [32]byte) []byte {
	key := make([]byte, 0, len(prefixNullifier)+32)
	key = append(key, prefixNullifier...)
	key = append(key, nullifier[:]...)

	return key
}

// accountKey builds the storage key for a node's account record.
func accountKey(node namehash.Node) []byte {
	key := make([]byte, 0, len(prefixAccount)+32)
	key = append(key, prefixAccount...)
	key = append(key, node[:]...)

	return key
}

// textKey builds the storage key for a node's text record.
func textKey(node namehash.Node, recordKey string) []byte {
	key := make([]byte, 0, len(prefixText)+32+len(recordKey))
	key = append(key, prefixText...)
	key = append(key, node[:]...)
	key = append(key, recordKey...)

	return key
}
