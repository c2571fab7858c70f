// Package client connects to a MailNames node over HTTP: claim
// submission, name queries and ABI resolution calls.
package client

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/command"
	"MailNames/internal/namehash"
	"MailNames/internal/registry"
	"MailNames/internal/resolver"
)

var (
	// ErrAlreadyClaimed is returned when a claim's nullifier was
	// already consumed.
	ErrAlreadyClaimed = errors.New("name already claimed")

	// ErrNoRecord is returned when a text record is unset.
	ErrNoRecord = errors.New("no text record")
)

// ABI argument shapes for building call data and decoding replies.
var (
	nodeArgs     = abi.Arguments{{Type: mustType("bytes32")}}
	textCallArgs = abi.Arguments{
		{Type: mustType("bytes32")},
		{Type: mustType("string")},
	}
	addressArgs = abi.Arguments{{Type: mustType("address")}}
	stringArgs  = abi.Arguments{{Type: mustType("string")}}
)

// Client connects to a MailNames node via HTTP.
type Client struct {
	nodeAddr string // nodeAddr is the HTTP address (e.g. "127.0.0.1:8080")
}

// ClaimResult holds the applied event returned for a claim.
type ClaimResult struct {
	Event     string `json:"event"`     // Event is the applied event kind
	Node      string `json:"node"`      // Node is the hex node identifier
	Account   string `json:"account"`   // Account is the hex account address, claim events only
	Key       string `json:"key"`       // Key is the text-record key, text events only
	Value     string `json:"value"`     // Value is the text-record value, text events only
	Nullifier string `json:"nullifier"` // Nullifier is the consumed hex nullifier
}

// NameInfo holds a name's claim state.
type NameInfo struct {
	Name    string `json:"name"`    // Name is the queried name
	Node    string `json:"node"`    // Node is the hex node identifier
	Account string `json:"account"` // Account is the current or predicted address
	Claimed bool   `json:"claimed"` // Claimed reports whether the name was claimed
}

// Status holds the node's state counters.
type Status struct {
	Nullifiers  int `json:"nullifiers"`  // Nullifiers is the consumed-nullifier count
	Accounts    int `json:"accounts"`    // Accounts is the claimed-name count
	Subscribers int `json:"subscribers"` // Subscribers is the feed subscriber count
}

// NewClient creates a client for a node address.
func NewClient(nodeAddr string) *Client {
	return &Client{nodeAddr: nodeAddr}
}

// SubmitClaim wraps a proof and its public inputs into a claim
// envelope and submits it.
func (c *Client) SubmitClaim(kind command.Kind, proof, inputs []byte) (*ClaimResult, error) {
	envelope := registry.MarshalEnvelope(kind, proof, inputs)

	var result ClaimResult
	if err := c.postClaim(envelope, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetName returns a name's claim state. Unclaimed names carry their
// deterministic future address.
func (c *Client) GetName(name string) (*NameInfo, error) {
	var info NameInfo

	if err := httpGet("http://"+c.nodeAddr+"/name/"+name, &info); err != nil {
		return nil, fmt.Errorf("get name:\n%w", err)
	}

	return &info, nil
}

// GetText returns a name's text record under key.
func (c *Client) GetText(name, key string) (string, error) {
	var resp struct {
		Value string `json:"value"`
	}

	err := httpGet("http://"+c.nodeAddr+"/text/"+name+"/"+key, &resp)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return "", ErrNoRecord
		}

		return "", fmt.Errorf("get text:\n%w", err)
	}

	return resp.Value, nil
}

// ResolveAddress resolves a name to its account address through the
// addr(bytes32) profile.
func (c *Client) ResolveAddress(name string) (common.Address, error) {
	callData, err := buildAddrCall(name)
	if err != nil {
		return common.Address{}, err
	}

	result, err := c.resolve(name, callData)
	if err != nil {
		return common.Address{}, err
	}

	values, err := addressArgs.Unpack(result)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode address reply:\n%w", err)
	}

	address, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode address reply: unexpected type")
	}

	return address, nil
}

// ResolveText resolves a name's text record through the
// text(bytes32,string) profile.
func (c *Client) ResolveText(name, key string) (string, error) {
	callData, err := buildTextCall(name, key)
	if err != nil {
		return "", err
	}

	result, err := c.resolve(name, callData)
	if err != nil {
		return "", err
	}

	values, err := stringArgs.Unpack(result)
	if err != nil {
		return "", fmt.Errorf("decode text reply:\n%w", err)
	}

	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("decode text reply: unexpected type")
	}

	return value, nil
}

// Snapshot fetches the node's compressed state snapshot.
func (c *Client) Snapshot() ([]byte, error) {
	return httpGetRaw("http://" + c.nodeAddr + "/snapshot")
}

// Status returns the node's state counters.
func (c *Client) Status() (*Status, error) {
	var status Status

	if err := httpGet("http://"+c.nodeAddr+"/status", &status); err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}

	return &status, nil
}

// resolve posts one ABI call against a name and returns the raw reply.
func (c *Client) resolve(name string, callData []byte) ([]byte, error) {
	body := map[string]string{
		"name": name,
		"data": "0x" + hex.EncodeToString(callData),
	}

	var resp struct {
		Result string `json:"result"`
	}

	if err := httpPostJSON("http://"+c.nodeAddr+"/resolve", body, &resp); err != nil {
		return nil, fmt.Errorf("resolve:\n%w", err)
	}

	result, err := hex.DecodeString(trimHexPrefix(resp.Result))
	if err != nil {
		return nil, fmt.Errorf("resolve: invalid result hex: %q", resp.Result)
	}

	return result, nil
}

// buildAddrCall builds addr(bytes32) call data for a name.
func buildAddrCall(name string) ([]byte, error) {
	node := namehash.Hash(name)

	args, err := nodeArgs.Pack([32]byte(node))
	if err != nil {
		return nil, fmt.Errorf("pack addr call:\n%w", err)
	}

	return prependSelector(resolver.SelectorAddr, args), nil
}

// buildTextCall builds text(bytes32,string) call data for a name.
func buildTextCall(name, key string) ([]byte, error) {
	node := namehash.Hash(name)

	args, err := textCallArgs.Pack([32]byte(node), key)
	if err != nil {
		return nil, fmt.Errorf("pack text call:\n%w", err)
	}

	return prependSelector(resolver.SelectorText, args), nil
}

// prependSelector puts the 4-byte profile selector before the ABI
// arguments.
func prependSelector(selector uint32, args []byte) []byte {
	out := make([]byte, 4+len(args))
	binary.BigEndian.PutUint32(out[:4], selector)
	copy(out[4:], args)

	return out
}

// trimHexPrefix strips a leading "0x" if present.
func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}

	return s
}

// mustType resolves an ABI type known at compile time.
func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}

	return t
}
