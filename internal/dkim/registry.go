// Package dkim maintains the DKIM trust registry: which (domain hash,
// public-key hash) pairs are currently valid. Updates are authorized
// by a quorum of oracle signers rather than by reading DNS on-path.
package dkim

import (
	"errors"
	"fmt"

	"MailNames/internal/logger"
	"MailNames/internal/storage"
)

var (
	// ErrQuorumNotMet is returned when an update carries too few
	// oracle signatures.
	ErrQuorumNotMet = errors.New("oracle quorum not met")

	// ErrBadQuorumProof is returned when the aggregated signature does
	// not verify against the claimed signers.
	ErrBadQuorumProof = errors.New("invalid oracle quorum proof")
)

// Storage key prefix for validity records.
var prefixKey = []byte("k:")

// Domain separation contexts for oracle messages.
var (
	setContext    = []byte("mailnames-dkim-set-v1")
	revokeContext = []byte("mailnames-dkim-revoke-v1")
)

// Registry is the pebble-backed DKIM validity store.
type Registry struct {
	db        *storage.Storage // db is the backing key-value store
	oracles   [][]byte         // oracles are the trusted 48-byte BLS pubkeys, in fixed order
	threshold int              // threshold is the minimum number of signers per update
}

// New creates a registry with the given oracle set and quorum threshold.
func New(db *storage.Storage, oracles [][]byte, threshold int) *Registry {
	return &Registry{
		db:        db,
		oracles:   oracles,
		threshold: threshold,
	}
}

// IsKeyHashValid checks a (domain hash, public-key hash) pair against
// the registry. Read-only.
func (r *Registry) IsKeyHashValid(domainHash, keyHash [32]byte) bool {
	value, err := r.db.Get(recordKey(domainHash, keyHash))
	if err != nil {
		return false
	}

	return len(value) == 1 && value[0] == 1
}

// SetKeyHash records a pair as valid. The update must carry an
// aggregated oracle signature over the set message and a bitmap of
// the signing oracles.
func (r *Registry) SetKeyHash(domainHash, keyHash [32]byte, signature, bitmap []byte) error {
	if err := r.checkQuorum(setContext, domainHash, keyHash, signature, bitmap); err != nil {
		return err
	}

	if err := r.db.Set(recordKey(domainHash, keyHash), []byte{1}); err != nil {
		return fmt.Errorf("store key record:\n%w", err)
	}

	logger.Info("dkim key registered", "domain", fmt.Sprintf("%x", domainHash[:8]), "key", fmt.Sprintf("%x", keyHash[:8]))

	return nil
}

// RevokeKeyHash removes a pair. Requires the same quorum as SetKeyHash,
// over the revoke context.
func (r *Registry) RevokeKeyHash(domainHash, keyHash [32]byte, signature, bitmap []byte) error {
	if err := r.checkQuorum(revokeContext, domainHash, keyHash, signature, bitmap); err != nil {
		return err
	}

	if err := r.db.Delete(recordKey(domainHash, keyHash)); err != nil {
		return fmt.Errorf("delete key record:\n%w", err)
	}

	logger.Info("dkim key revoked", "domain", fmt.Sprintf("%x", domainHash[:8]), "key", fmt.Sprintf("%x", keyHash[:8]))

	return nil
}

// Seed records a pair as valid without a quorum proof. Used only when
// applying the genesis document at boot.
func (r *Registry) Seed(domainHash, keyHash [32]byte) error {
	return r.db.Set(recordKey(domainHash, keyHash), []byte{1})
}

// SignUpdate produces the message an oracle signs to authorize a set
// update. Exported so oracle tooling and tests build the exact bytes.
func SignUpdate(domainHash, keyHash [32]byte) []byte {
	return oracleMessage(setContext, domainHash, keyHash)
}

// SignRevoke produces the message an oracle signs to authorize a revoke.
func SignRevoke(domainHash, keyHash [32]byte) []byte {
	return oracleMessage(revokeContext, domainHash, keyHash)
}

// checkQuorum validates an aggregated oracle signature and threshold.
func (r *Registry) checkQuorum(context []byte, domainHash, keyHash [32]byte, signature, bitmap []byte) error {
	indices := ParseSignerBitmap(bitmap)
	if len(indices) < r.threshold {
		return fmt.Errorf("%w: %d of %d required signers", ErrQuorumNotMet, len(indices), r.threshold)
	}

	signers := make([][]byte, 0, len(indices))

	for _, idx := range indices {
		if idx >= len(r.oracles) {
			return fmt.Errorf("%w: unknown oracle index %d", ErrBadQuorumProof, idx)
		}

		signers = append(signers, r.oracles[idx])
	}

	message := oracleMessage(context, domainHash, keyHash)

	if !VerifyAggregated(signature, message, signers) {
		return ErrBadQuorumProof
	}

	return nil
}

// oracleMessage builds the domain-separated oracle message.
func oracleMessage(context []byte, domainHash, keyHash [32]byte) []byte {
	message := make([]byte, 0, len(context)+64)
	message = append(message, context...)
	message = append(message, domainHash[:]...)
	message = append(message, keyHash[:]...)

	return message
}

// recordKey builds the storage key for a validity record.
func recordKey(domainHash, keyHash [32]byte) []byte {
	key := make([]byte, 0, len(prefixKey)+64)
	key = append(key, prefixKey...)
	key = append(key, domainHash[:]...)
	key = append(key, keyHash[:]...)

	return key
}
