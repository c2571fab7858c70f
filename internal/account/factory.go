// Package account models deterministic per-node accounts: the address
// of a node's account is computable from fixed factory identity before
// the account exists, and each node's account is instantiated at most
// once.
package account

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"MailNames/internal/namehash"
)

// Factory holds the fixed identity from which account addresses derive.
type Factory struct {
	address      common.Address // address is the factory identity
	initCodeHash common.Hash    // initCodeHash is the fixed account initialization-code hash
}

// NewFactory creates a factory with the given identity.
func NewFactory(address common.Address, initCodeHash common.Hash) *Factory {
	return &Factory{
		address:      address,
		initCodeHash: initCodeHash,
	}
}

// PredictAddress computes the deterministic account address for a node.
// Pure function of the node: identical before and after instantiation.
func (f *Factory) PredictAddress(node namehash.Node) common.Address {
	salt := crypto.Keccak256Hash(node[:])
	return crypto.CreateAddress2(f.address, salt, f.initCodeHash[:])
}
