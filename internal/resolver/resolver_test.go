package resolver

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/namehash"
)

// TestDNSName_RoundTrip verifies encode/decode across name shapes.
func TestDNSName_RoundTrip(t *testing.T) {
	names := []string{"", "eth", "foo.eth", "alice@gmail.com"}

	for _, name := range names {
		encoded, err := EncodeDNSName(name)
		if err != nil {
			t.Fatalf("encode %q: %v", name, err)
		}

		decoded, err := DecodeDNSName(encoded)
		if err != nil {
			t.Fatalf("decode %q: %v", name, err)
		}

		if decoded != name {
			t.Errorf("round trip mismatch: got %q, want %q", decoded, name)
		}
	}
}

// TestDecodeDNSName_Malformed verifies truncated and trailing-byte
// forms are rejected.
func TestDecodeDNSName_Malformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{5, 'a', 'b'},          // truncated label
		{3, 'e', 't', 'h'},     // missing terminator
		{1, 'a', 0, 'x'},       // trailing bytes
		{64, 'a', 0},           // label too long
	}

	for _, data := range cases {
		if _, err := DecodeDNSName(data); !errors.Is(err, ErrBadName) {
			t.Errorf("expected ErrBadName for %v, got %v", data, err)
		}
	}
}

// TestResolve_Addr verifies address resolution before and after a claim.
func TestResolve_Addr(t *testing.T) {
	reg := newStubRegistry()
	res := New(reg)

	name := "alice@gmail.com"
	node := namehash.Hash(name)

	reply, err := res.Resolve(mustEncode(t, name), addrCallData(node))
	if err != nil {
		t.Fatalf("resolve unclaimed: %v", err)
	}

	if unpackAddress(t, reply) != (common.Address{}) {
		t.Error("unclaimed name should resolve to the zero address")
	}

	claimed := common.HexToAddress("0x5555555555555555555555555555555555555555")
	reg.accounts[node] = claimed

	reply, err = res.Resolve(mustEncode(t, name), addrCallData(node))
	if err != nil {
		t.Fatalf("resolve claimed: %v", err)
	}

	if unpackAddress(t, reply) != claimed {
		t.Error("claimed name should resolve to its account")
	}
}

// TestResolve_TextRecord verifies dynamic record lookup and the empty
// fallback for unknown keys.
func TestResolve_TextRecord(t *testing.T) {
	reg := newStubRegistry()
	res := New(reg)

	name := "alice@gmail.com"
	node := namehash.Hash(name)
	reg.texts[node] = map[string]string{"email": "backup@proton.me"}

	reply, err := res.Resolve(mustEncode(t, name), textCallData(t, node, "email"))
	if err != nil {
		t.Fatalf("resolve text: %v", err)
	}

	if unpackString(t, reply) != "backup@proton.me" {
		t.Error("stored record should resolve")
	}

	reply, err = res.Resolve(mustEncode(t, name), textCallData(t, node, "nonexistent"))
	if err != nil {
		t.Fatalf("resolve unknown key: %v", err)
	}

	if unpackString(t, reply) != "" {
		t.Error("unknown key should resolve to an empty string")
	}
}

// TestResolve_StaticText verifies well-known keys answer without a
// stored record.
func TestResolve_StaticText(t *testing.T) {
	res := New(newStubRegistry())

	name := "alice@gmail.com"
	node := namehash.Hash(name)

	reply, err := res.Resolve(mustEncode(t, name), textCallData(t, node, "name"))
	if err != nil {
		t.Fatalf("resolve static name: %v", err)
	}

	if unpackString(t, reply) != name {
		t.Error("\"name\" key should echo the queried name")
	}

	reply, err = res.Resolve(mustEncode(t, name), textCallData(t, node, "vnd.mailnames.source"))
	if err != nil {
		t.Fatalf("resolve static source: %v", err)
	}

	if unpackString(t, reply) != "email" {
		t.Error("email-shaped name should report an email source")
	}
}

// TestResolve_UnknownSelector verifies the hard failure carries the
// selector value.
func TestResolve_UnknownSelector(t *testing.T) {
	res := New(newStubRegistry())

	callData := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	_, err := res.Resolve(mustEncode(t, "foo.eth"), callData)
	if !errors.Is(err, ErrUnsupportedProfile) {
		t.Fatalf("expected ErrUnsupportedProfile, got %v", err)
	}

	if !strings.Contains(err.Error(), "0xdeadbeef") {
		t.Errorf("error should carry the selector: %v", err)
	}
}

// TestResolve_ShortCallData verifies call data below a selector fails.
func TestResolve_ShortCallData(t *testing.T) {
	res := New(newStubRegistry())

	if _, err := res.Resolve(mustEncode(t, "foo.eth"), []byte{0x3b}); err == nil {
		t.Error("expected error for short call data")
	}
}

// --- test helpers ---

// stubRegistry is an in-memory read surface.
type stubRegistry struct {
	accounts map[namehash.Node]common.Address
	texts    map[namehash.Node]map[string]string
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		accounts: make(map[namehash.Node]common.Address),
		texts:    make(map[namehash.Node]map[string]string),
	}
}

func (s *stubRegistry) GetAccount(node namehash.Node) (common.Address, error) {
	return s.accounts[node], nil
}

func (s *stubRegistry) GetText(node namehash.Node, key string) (string, error) {
	return s.texts[node][key], nil
}

// mustEncode DNS-encodes a name.
func mustEncode(t *testing.T, name string) []byte {
	t.Helper()

	encoded, err := EncodeDNSName(name)
	if err != nil {
		t.Fatalf("encode %q: %v", name, err)
	}

	return encoded
}

// addrCallData builds addr(bytes32) call data.
func addrCallData(node namehash.Node) []byte {
	out := make([]byte, 4, 36)
	binary.BigEndian.PutUint32(out, SelectorAddr)

	return append(out, node[:]...)
}

// textCallData builds text(bytes32,string) call data.
func textCallData(t *testing.T, node namehash.Node, key string) []byte {
	t.Helper()

	args, err := textArgs.Pack([32]byte(node), key)
	if err != nil {
		t.Fatalf("pack text args: %v", err)
	}

	out := make([]byte, 4, 4+len(args))
	binary.BigEndian.PutUint32(out, SelectorText)

	return append(out, args...)
}

// unpackAddress decodes an addr reply.
func unpackAddress(t *testing.T, reply []byte) common.Address {
	t.Helper()

	values, err := addressArgs.Unpack(reply)
	if err != nil {
		t.Fatalf("unpack address: %v", err)
	}

	return values[0].(common.Address)
}

// unpackString decodes a text reply.
func unpackString(t *testing.T, reply []byte) string {
	t.Helper()

	values, err := stringArgs.Unpack(reply)
	if err != nil {
		t.Fatalf("unpack string: %v", err)
	}

	return values[0].(string)
}
