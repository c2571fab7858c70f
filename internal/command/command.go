// Package command turns raw proof data and flat public-input arrays
// into typed, validated commands ready for execution.
package command

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/namehash"
)

// Kind discriminates the command variants.
type Kind uint8

const (
	// KindProveAndClaim claims the node for an email and provisions its account.
	KindProveAndClaim Kind = iota + 1

	// KindClaimHandle claims the node for a social handle and provisions its account.
	KindClaimHandle

	// KindLinkEmail writes the "email" text record under an email's node.
	KindLinkEmail

	// KindLinkHandle writes the "handle" text record under a handle's node.
	KindLinkHandle

	// KindLinkXHandle writes the "com.twitter" text record under an email's node.
	KindLinkXHandle
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindProveAndClaim:
		return "prove_and_claim"
	case KindClaimHandle:
		return "claim_handle"
	case KindLinkEmail:
		return "link_email"
	case KindLinkHandle:
		return "link_handle"
	case KindLinkXHandle:
		return "link_x_handle"
	default:
		return "unknown"
	}
}

// IsClaim reports whether the variant provisions an account.
func (k Kind) IsClaim() bool {
	return k == KindProveAndClaim || k == KindClaimHandle
}

// TextKey returns the text-record key written by a link variant,
// or "" for claim variants.
func (k Kind) TextKey() string {
	switch k {
	case KindLinkEmail:
		return "email"
	case KindLinkHandle:
		return "handle"
	case KindLinkXHandle:
		return "com.twitter"
	default:
		return ""
	}
}

// PublicInputs holds the structured public inputs recovered from a
// flat field array. Immutable once decoded.
type PublicInputs struct {
	Domain        string         // Domain is the sender's DKIM domain
	Subject       string         // Subject is the email address or handle being claimed
	KeyHash       [32]byte       // KeyHash is the DKIM public-key hash
	Nullifier     [32]byte       // Nullifier is the single-use proof nullifier
	Timestamp     uint64         // Timestamp is the proof generation time
	ProverAddress common.Address // ProverAddress is the submitting prover's address
	AccountSalt   [32]byte       // AccountSalt is the prover-chosen account salt
	Command       string         // Command is the free-text command string
}

// RawProof is the opaque proof plus its flat field-element array.
// Transient: constructed and consumed within one call.
type RawProof struct {
	Bytes  []byte     // Bytes is the opaque proof blob
	Fields []*big.Int // Fields is the flat public-input array
}

// Command is a decoded, typed claim command. Param carries the single
// template placeholder: an address for claim variants, a short string
// for link variants.
type Command struct {
	Kind   Kind         // Kind is the command variant
	Inputs PublicInputs // Inputs are the decoded public inputs
	Param  string       // Param is the extracted template parameter
	Proof  *RawProof    // Proof references the raw proof for verification
}

// Node returns the naming-system node for the command's subject.
func (c *Command) Node() namehash.Node {
	return namehash.Hash(c.Inputs.Subject)
}

// ParamAddress returns the template parameter as an address.
// Only meaningful for claim variants, whose templates carry an
// address placeholder.
func (c *Command) ParamAddress() common.Address {
	return common.HexToAddress(c.Param)
}
