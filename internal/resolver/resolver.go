// Package resolver answers naming queries against the claim registry:
// DNS-wire-encoded names in, ABI-encoded profile replies out.
package resolver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/namehash"
)

var (
	// ErrUnsupportedProfile is returned for an unknown resolution
	// selector. The wrapped message carries the selector value.
	ErrUnsupportedProfile = errors.New("unsupported resolver profile")

	// ErrBadName is returned when a DNS-wire name cannot be decoded.
	ErrBadName = errors.New("malformed dns-encoded name")
)

// Resolution selectors, first four bytes of the profile call data.
const (
	// SelectorAddr is addr(bytes32).
	SelectorAddr = 0x3b3b57de

	// SelectorText is text(bytes32,string).
	SelectorText = 0x59d1d43c
)

// Registry is the read surface the resolver needs.
type Registry interface {
	// GetAccount returns a node's account, zero address if unclaimed.
	GetAccount(node namehash.Node) (common.Address, error)

	// GetText returns a node's text record, "" if unset.
	GetText(node namehash.Node, key string) (string, error)
}

// ABI argument shapes for profile replies and call-data decoding.
var (
	addressArgs = mustArgs("address")
	stringArgs  = mustArgs("string")
	textArgs    = abi.Arguments{
		{Type: mustType("bytes32")},
		{Type: mustType("string")},
	}
)

// Resolver serves profile queries for claimed names.
type Resolver struct {
	registry Registry // registry is the claim state read surface
}

// New creates a resolver over the given registry.
func New(registry Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve answers one profile query. The name arrives DNS-wire encoded
// (length-prefixed labels); callData starts with a 4-byte selector
// followed by ABI-encoded arguments. An unknown selector is a hard
// failure carrying the selector value.
func (r *Resolver) Resolve(dnsName, callData []byte) ([]byte, error) {
	name, err := DecodeDNSName(dnsName)
	if err != nil {
		return nil, err
	}

	if len(callData) < 4 {
		return nil, fmt.Errorf("call data too short: %d bytes", len(callData))
	}

	selector := binary.BigEndian.Uint32(callData[:4])
	node := namehash.Hash(name)

	switch selector {
	case SelectorAddr:
		return r.resolveAddr(node)

	case SelectorText:
		return r.resolveText(name, node, callData[4:])

	default:
		return nil, fmt.Errorf("%w: 0x%08x", ErrUnsupportedProfile, selector)
	}
}

// resolveAddr answers addr(bytes32) with the node's account, or the
// zero address for an unclaimed node.
func (r *Resolver) resolveAddr(node namehash.Node) ([]byte, error) {
	address, err := r.registry.GetAccount(node)
	if err != nil {
		return nil, fmt.Errorf("read account:\n%w", err)
	}

	return addressArgs.Pack(address)
}

// resolveText answers text(bytes32,string). Well-known static keys are
// served first; everything else falls back to the registry's record
// store, with "" for unknown keys.
func (r *Resolver) resolveText(name string, node namehash.Node, argData []byte) ([]byte, error) {
	args, err := textArgs.Unpack(argData)
	if err != nil {
		return nil, fmt.Errorf("decode text arguments:\n%w", err)
	}

	key, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("decode text arguments: key is not a string")
	}

	if value, ok := staticText(name, key); ok {
		return stringArgs.Pack(value)
	}

	value, err := r.registry.GetText(node, key)
	if err != nil {
		return nil, fmt.Errorf("read text record:\n%w", err)
	}

	return stringArgs.Pack(value)
}

// staticText serves the well-known keys every claimed name answers
// without a stored record.
func staticText(name, key string) (string, bool) {
	switch key {
	case "name":
		return name, true
	case "vnd.mailnames.source":
		if strings.Contains(name, "@") {
			return "email", true
		}
		return "handle", true
	default:
		return "", false
	}
}

// DecodeDNSName decodes a DNS-wire name (length-prefixed labels ending
// in a zero byte) into its dotted form.
func DecodeDNSName(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrBadName
	}

	var labels []string
	pos := 0

	for {
		if pos >= len(data) {
			return "", fmt.Errorf("%w: missing terminator", ErrBadName)
		}

		length := int(data[pos])
		pos++

		if length == 0 {
			break
		}

		if length > 63 {
			return "", fmt.Errorf("%w: label length %d", ErrBadName, length)
		}

		if pos+length > len(data) {
			return "", fmt.Errorf("%w: truncated label", ErrBadName)
		}

		labels = append(labels, string(data[pos:pos+length]))
		pos += length
	}

	if pos != len(data) {
		return "", fmt.Errorf("%w: %d trailing bytes", ErrBadName, len(data)-pos)
	}

	return strings.Join(labels, "."), nil
}

// EncodeDNSName encodes a dotted name into DNS wire form. Used by the
// client and tests.
func EncodeDNSName(name string) ([]byte, error) {
	out := make([]byte, 0, len(name)+2)

	if name != "" {
		for _, label := range strings.Split(name, ".") {
			if label == "" || len(label) > 63 {
				return nil, fmt.Errorf("%w: label %q", ErrBadName, label)
			}

			out = append(out, byte(len(label)))
			out = append(out, label...)
		}
	}

	return append(out, 0), nil
}

// mustType resolves an ABI type known at compile time.
func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}

	return t
}

// mustArgs builds a single-value ABI argument list.
func mustArgs(name string) abi.Arguments {
	return abi.Arguments{{Type: mustType(name)}}
}
