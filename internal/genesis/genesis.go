// Package genesis defines the boot document: the fixed identities and
// trust anchors a node needs before it can accept claims.
package genesis

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"MailNames/internal/command"
)

// Document is the genesis configuration, loaded from a JSON file.
type Document struct {
	// FactoryAddress is the account factory identity.
	FactoryAddress string `json:"factory_address"`

	// InitCodeHash is the fixed account initialization-code hash.
	InitCodeHash string `json:"init_code_hash"`

	// RegistryIdentity owns and operates provisioned accounts.
	RegistryIdentity string `json:"registry_identity"`

	// OracleKeys are the hex-encoded 48-byte BLS public keys trusted
	// to update the DKIM registry.
	OracleKeys []string `json:"oracle_keys"`

	// OracleThreshold is the minimum signer count per DKIM update.
	OracleThreshold int `json:"oracle_threshold"`

	// Anchors are the DKIM keys trusted at boot.
	Anchors []Anchor `json:"dkim_anchors"`

	// Verifiers bind command variants to verifier WASM modules.
	Verifiers []VerifierBinding `json:"verifiers"`
}

// Anchor seeds one (domain, key hash) pair into the DKIM registry.
type Anchor struct {
	Domain  string `json:"domain"`   // Domain is the DKIM signing domain
	KeyHash string `json:"key_hash"` // KeyHash is the hex public-key hash
}

// VerifierBinding maps a command variant to its WASM verifier module.
type VerifierBinding struct {
	Variant string `json:"variant"` // Variant is the command variant name
	Module  string `json:"module"`  // Module is the WASM file path, relative to the genesis file
}

// Load reads and validates a genesis document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file:\n%w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse genesis file:\n%w", err)
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate genesis:\n%w", err)
	}

	return &doc, nil
}

// Validate checks the document's shape.
func (d *Document) Validate() error {
	if !common.IsHexAddress(d.FactoryAddress) {
		return fmt.Errorf("invalid factory address: %q", d.FactoryAddress)
	}

	if !common.IsHexAddress(d.RegistryIdentity) {
		return fmt.Errorf("invalid registry identity: %q", d.RegistryIdentity)
	}

	if _, err := decodeHash(d.InitCodeHash); err != nil {
		return fmt.Errorf("invalid init code hash:\n%w", err)
	}

	if d.OracleThreshold < 1 || d.OracleThreshold > len(d.OracleKeys) {
		return fmt.Errorf("oracle threshold %d outside 1..%d", d.OracleThreshold, len(d.OracleKeys))
	}

	for i, key := range d.OracleKeys {
		raw, err := decodeHex(key)
		if err != nil || len(raw) != 48 {
			return fmt.Errorf("oracle key %d is not a 48-byte hex key", i)
		}
	}

	for i, anchor := range d.Anchors {
		if anchor.Domain == "" {
			return fmt.Errorf("anchor %d has an empty domain", i)
		}

		if _, err := decodeHash(anchor.KeyHash); err != nil {
			return fmt.Errorf("anchor %d key hash:\n%w", i, err)
		}
	}

	seen := make(map[command.Kind]bool)

	for i, binding := range d.Verifiers {
		kind, err := ParseVariant(binding.Variant)
		if err != nil {
			return fmt.Errorf("verifier binding %d:\n%w", i, err)
		}

		if seen[kind] {
			return fmt.Errorf("verifier binding %d: duplicate variant %q", i, binding.Variant)
		}
		seen[kind] = true

		if binding.Module == "" {
			return fmt.Errorf("verifier binding %d has an empty module path", i)
		}
	}

	return nil
}

// Factory returns the factory identity pair.
func (d *Document) Factory() (common.Address, common.Hash) {
	return common.HexToAddress(d.FactoryAddress), common.HexToHash(d.InitCodeHash)
}

// Identity returns the registry identity address.
func (d *Document) Identity() common.Address {
	return common.HexToAddress(d.RegistryIdentity)
}

// Oracles returns the decoded BLS oracle key set.
func (d *Document) Oracles() [][]byte {
	keys := make([][]byte, len(d.OracleKeys))

	for i, key := range d.OracleKeys {
		raw, _ := decodeHex(key)
		keys[i] = raw
	}

	return keys
}

// AnchorPairs returns the boot trust anchors as (domain hash, key
// hash) pairs ready for seeding.
func (d *Document) AnchorPairs() [][2][32]byte {
	pairs := make([][2][32]byte, len(d.Anchors))

	for i, anchor := range d.Anchors {
		domainHash := crypto.Keccak256Hash([]byte(anchor.Domain))

		keyHash, _ := decodeHash(anchor.KeyHash)

		pairs[i] = [2][32]byte{domainHash, keyHash}
	}

	return pairs
}

// ParseVariant resolves a variant name from the genesis document.
func ParseVariant(name string) (command.Kind, error) {
	switch name {
	case "prove_and_claim":
		return command.KindProveAndClaim, nil
	case "claim_handle":
		return command.KindClaimHandle, nil
	case "link_email":
		return command.KindLinkEmail, nil
	case "link_handle":
		return command.KindLinkHandle, nil
	case "link_x_handle":
		return command.KindLinkXHandle, nil
	default:
		return 0, fmt.Errorf("unknown variant: %q", name)
	}
}

// LayoutFor returns the field layout and subject shape for a variant.
func LayoutFor(kind command.Kind) (command.Layout, command.SubjectKind) {
	switch kind {
	case command.KindProveAndClaim, command.KindLinkXHandle:
		return command.Fixed60Layout, command.SubjectEmail
	case command.KindLinkEmail:
		return command.BoundedLayout, command.SubjectEmail
	default:
		return command.BoundedLayout, command.SubjectHandle
	}
}

// decodeHash decodes a hex 32-byte hash with or without a 0x prefix.
func decodeHash(s string) ([32]byte, error) {
	var h [32]byte

	raw, err := decodeHex(s)
	if err != nil {
		return h, err
	}

	if len(raw) != 32 {
		return h, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}

	copy(h[:], raw)

	return h, nil
}

// decodeHex decodes hex with or without a 0x prefix.
func decodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	return hex.DecodeString(s)
}
