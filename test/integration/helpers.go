// Package integration exercises the full node stack in-process: HTTP
// API, registry, DKIM trust anchors, resolver, snapshots and the QUIC
// event feed, driven through the public client.
package integration

import (
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"MailNames/client"
	"MailNames/internal/account"
	"MailNames/internal/api"
	"MailNames/internal/codec"
	"MailNames/internal/command"
	"MailNames/internal/dkim"
	"MailNames/internal/feed"
	"MailNames/internal/registry"
	"MailNames/internal/resolver"
	"MailNames/internal/snapshot"
	"MailNames/internal/storage"
)

// Trust anchor every test claim is issued under.
var (
	anchorDomain  = "gmail.com"
	anchorKeyHash = [32]byte{0x01, 0x02}
)

// stack is one in-process node: real components end to end, with the
// proof backend scripted since no verifier circuit ships with the
// test suite.
type stack struct {
	db      *storage.Storage
	reg     *registry.Registry
	hub     *feed.Hub
	server  *httptest.Server
	cli     *client.Client
	backend *scriptedBackend
}

// scriptedBackend replaces the WASM proof backend with a fixed
// verdict.
type scriptedBackend struct {
	result bool
}

func (s *scriptedBackend) Verify(proof []byte, fields []*big.Int) bool {
	return s.result
}

// newStack builds a full node over a temporary database and returns a
// client pointed at its HTTP server.
func newStack(t *testing.T) *stack {
	t.Helper()

	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close storage: %v", err)
		}
	})

	keys := dkim.New(db, nil, 1)
	if err := keys.Seed(crypto.Keccak256Hash([]byte(anchorDomain)), anchorKeyHash); err != nil {
		t.Fatalf("seed anchor: %v", err)
	}

	snapshots := func() ([]byte, error) {
		return snapshot.CreateCompressed(db)
	}

	hub := newTestHub(t, snapshots)

	factory := account.NewFactory(
		common.HexToAddress("0x00000000000000000000000000000000000fac70"),
		common.HexToHash("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"),
	)

	s := &stack{
		db:      db,
		hub:     hub,
		backend: &scriptedBackend{result: true},
	}

	identity := common.HexToAddress("0x9999999999999999999999999999999999999999")
	s.reg = registry.New(registry.NewStore(db), factory, account.NewArena(factory, nil), identity, hub)

	registerVariants(s.reg, s.backend, keys)

	apiServer := api.New(":0", s.reg, s.reg, resolver.New(s.reg), snapshots, hub)

	s.server = httptest.NewServer(apiServer.Handler())
	t.Cleanup(s.server.Close)

	s.cli = client.NewClient(strings.TrimPrefix(s.server.URL, "http://"))

	return s
}

// registerVariants installs all five command variants.
func registerVariants(reg *registry.Registry, backend command.Backend, keys command.KeyChecker) {
	variants := []struct {
		kind    command.Kind
		layout  command.Layout
		subject command.SubjectKind
	}{
		{command.KindProveAndClaim, command.Fixed60Layout, command.SubjectEmail},
		{command.KindClaimHandle, command.BoundedLayout, command.SubjectHandle},
		{command.KindLinkEmail, command.BoundedLayout, command.SubjectEmail},
		{command.KindLinkHandle, command.BoundedLayout, command.SubjectHandle},
		{command.KindLinkXHandle, command.Fixed60Layout, command.SubjectEmail},
	}

	for _, v := range variants {
		reg.Register(command.NewVerifier(command.Config{
			Kind:    v.kind,
			Layout:  v.layout,
			Subject: v.subject,
			Backend: backend,
			Keys:    keys,
		}))
	}
}

// newTestHub starts an event feed hub on a loopback port.
func newTestHub(t *testing.T, snapshots feed.SnapshotProvider) *feed.Hub {
	t.Helper()

	hub, err := feed.NewHub(generateKey(t), "127.0.0.1:0", snapshots)
	if err != nil {
		t.Fatalf("create hub: %v", err)
	}

	if err := hub.Start(); err != nil {
		t.Fatalf("start hub: %v", err)
	}

	t.Cleanup(func() {
		if err := hub.Close(); err != nil {
			t.Errorf("close hub: %v", err)
		}
	})

	return hub
}

// generateKey creates a fresh ed25519 private key.
func generateKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return key
}

// encodeInputs serializes public inputs under the variant's layout.
func encodeInputs(t *testing.T, kind command.Kind, in *command.PublicInputs) []byte {
	t.Helper()

	layout := command.BoundedLayout
	if kind == command.KindProveAndClaim || kind == command.KindLinkXHandle {
		layout = command.Fixed60Layout
	}

	fields, err := layout.Encode(in)
	if err != nil {
		t.Fatalf("encode fields: %v", err)
	}

	return codec.ElementsToBytes(fields)
}

// claimInputs builds valid ProveAndClaim inputs for a subject, with
// the nullifier derived from n.
func claimInputs(subject string, n byte) *command.PublicInputs {
	return &command.PublicInputs{
		Domain:        anchorDomain,
		Subject:       subject,
		KeyHash:       anchorKeyHash,
		Nullifier:     [32]byte{0xAA, n},
		Timestamp:     1_700_000_000,
		ProverAddress: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		AccountSalt:   [32]byte{0x0F},
		Command:       "Claim name for address 0x2222222222222222222222222222222222222222",
	}
}
