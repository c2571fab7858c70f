package zkvm

import (
	"math/big"

	"MailNames/internal/codec"
	"MailNames/internal/logger"
)

const (
	// defaultGasLimit bounds one verification run.
	defaultGasLimit = 50_000_000
)

// Backend binds one loaded verifier module to the proof-backend
// capability shape: a boolean-returning check over proof bytes and
// public-input field elements.
type Backend struct {
	pool     *Pool    // pool is the shared module pool
	moduleID [32]byte // moduleID is the verifier module to run
	gasLimit uint64   // gasLimit bounds each verification
}

// NewBackend creates a backend for a loaded module.
func NewBackend(pool *Pool, moduleID [32]byte) *Backend {
	return &Backend{
		pool:     pool,
		moduleID: moduleID,
		gasLimit: defaultGasLimit,
	}
}

// Verify runs the verifier module over the proof and inputs.
// Any execution failure counts as an invalid proof.
func (b *Backend) Verify(proof []byte, fields []*big.Int) bool {
	inputs := codec.ElementsToBytes(fields)

	ok, gasUsed, err := b.pool.Run(b.moduleID, proof, inputs, b.gasLimit)
	if err != nil {
		logger.Warn("proof verification failed", "error", err, "gasUsed", gasUsed)
		return false
	}

	return ok
}
