package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/command"
	"MailNames/internal/namehash"
	"MailNames/internal/registry"
)

func TestHealthEndpoint(t *testing.T) {
	server := New(":0", &mockClaims{}, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	server.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestSubmitClaim_Success(t *testing.T) {
	node := namehash.Hash("alice@gmail.com")
	claims := &mockClaims{
		event: &registry.Event{
			Kind:    registry.EventClaimed,
			Node:    node,
			Account: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		},
	}

	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("POST", "/claim", bytes.NewReader(validTestEnvelope()))
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if len(claims.raws) != 1 {
		t.Errorf("expected 1 envelope processed, got %d", len(claims.raws))
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["event"] != "claimed" {
		t.Errorf("expected claimed event, got %v", resp["event"])
	}

	if resp["account"] == "" {
		t.Error("expected account in response")
	}
}

func TestSubmitClaim_TextEvent(t *testing.T) {
	claims := &mockClaims{
		event: &registry.Event{
			Kind:  registry.EventTextSet,
			Node:  namehash.Hash("alice@gmail.com"),
			Key:   "com.twitter",
			Value: "alice",
		},
	}

	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("POST", "/claim", bytes.NewReader(validTestEnvelope()))
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["key"] != "com.twitter" || resp["value"] != "alice" {
		t.Errorf("expected text record in response, got %v", resp)
	}
}

func TestSubmitClaim_EmptyBody(t *testing.T) {
	claims := &mockClaims{}
	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("POST", "/claim", nil)
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	assertRejected(t, w, claims, "empty body")
}

func TestSubmitClaim_GarbageEnvelope(t *testing.T) {
	claims := &mockClaims{}
	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("POST", "/claim", bytes.NewReader([]byte("invalid")))
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	assertRejected(t, w, claims, "garbage envelope")
}

func TestSubmitClaim_UnknownVariant(t *testing.T) {
	claims := &mockClaims{}
	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	envelope := registry.MarshalEnvelope(command.Kind(9), []byte("proof"), make([]byte, 32))

	req := httptest.NewRequest("POST", "/claim", bytes.NewReader(envelope))
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	assertRejected(t, w, claims, "unknown variant")
}

func TestSubmitClaim_EmptyProof(t *testing.T) {
	claims := &mockClaims{}
	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	envelope := registry.MarshalEnvelope(command.KindProveAndClaim, nil, make([]byte, 32))

	req := httptest.NewRequest("POST", "/claim", bytes.NewReader(envelope))
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	assertRejected(t, w, claims, "empty proof")
}

func TestSubmitClaim_RaggedInputs(t *testing.T) {
	claims := &mockClaims{}
	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	// 33 bytes is not a whole number of field elements
	envelope := registry.MarshalEnvelope(command.KindProveAndClaim, []byte("proof"), make([]byte, 33))

	req := httptest.NewRequest("POST", "/claim", bytes.NewReader(envelope))
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	assertRejected(t, w, claims, "ragged inputs")
}

func TestSubmitClaim_OversizedInputs(t *testing.T) {
	claims := &mockClaims{}
	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	// 169 slots exceeds the widest layout
	envelope := registry.MarshalEnvelope(command.KindProveAndClaim, []byte("proof"), make([]byte, 169*32))

	req := httptest.NewRequest("POST", "/claim", bytes.NewReader(envelope))
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	assertRejected(t, w, claims, "oversized inputs")
}

func TestSubmitClaim_ReplayIsConflict(t *testing.T) {
	claims := &mockClaims{err: registry.ErrNullifierUsed}
	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("POST", "/claim", bytes.NewReader(validTestEnvelope()))
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a consumed nullifier, got %d", w.Code)
	}
}

func TestSubmitClaim_UnverifiedIsBadRequest(t *testing.T) {
	claims := &mockClaims{err: registry.ErrUnverifiedCommand}
	server := New(":0", claims, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("POST", "/claim", bytes.NewReader(validTestEnvelope()))
	w := httptest.NewRecorder()

	server.handleSubmitClaim(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a failed verification, got %d", w.Code)
	}
}

// --- GET /name tests ---

func TestGetName_Claimed(t *testing.T) {
	node := namehash.Hash("alice@gmail.com")
	account := common.HexToAddress("0x3333333333333333333333333333333333333333")

	names := &mockNames{
		accounts: map[namehash.Node]common.Address{node: account},
	}

	server := New(":0", &mockClaims{}, names, nil, nil, nil)

	req := httptest.NewRequest("GET", "/name/alice@gmail.com", nil)
	w := httptest.NewRecorder()

	server.handleGetName(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["claimed"] != true {
		t.Error("expected claimed=true")
	}

	if resp["account"] != account.Hex() {
		t.Errorf("expected account %s, got %v", account.Hex(), resp["account"])
	}
}

func TestGetName_UnclaimedReportsPrediction(t *testing.T) {
	names := &mockNames{}
	server := New(":0", &mockClaims{}, names, nil, nil, nil)

	req := httptest.NewRequest("GET", "/name/bob@gmail.com", nil)
	w := httptest.NewRecorder()

	server.handleGetName(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["claimed"] != false {
		t.Error("expected claimed=false")
	}

	predicted := names.PredictAddress(namehash.Hash("bob@gmail.com"))
	if resp["account"] != predicted.Hex() {
		t.Errorf("expected predicted address %s, got %v", predicted.Hex(), resp["account"])
	}
}

func TestGetName_EmptyName(t *testing.T) {
	server := New(":0", &mockClaims{}, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("GET", "/name/", nil)
	w := httptest.NewRecorder()

	server.handleGetName(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- GET /text tests ---

func TestGetText_Found(t *testing.T) {
	node := namehash.Hash("alice@gmail.com")
	names := &mockNames{
		texts: map[string]string{textMockKey(node, "com.twitter"): "alice"},
	}

	server := New(":0", &mockClaims{}, names, nil, nil, nil)

	req := httptest.NewRequest("GET", "/text/alice@gmail.com/com.twitter", nil)
	w := httptest.NewRecorder()

	server.handleGetText(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["value"] != "alice" {
		t.Errorf("expected value alice, got %s", resp["value"])
	}
}

func TestGetText_NotFound(t *testing.T) {
	server := New(":0", &mockClaims{}, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("GET", "/text/alice@gmail.com/com.twitter", nil)
	w := httptest.NewRecorder()

	server.handleGetText(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetText_MissingKey(t *testing.T) {
	server := New(":0", &mockClaims{}, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("GET", "/text/alice@gmail.com", nil)
	w := httptest.NewRecorder()

	server.handleGetText(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- POST /resolve tests ---

func TestResolve_Success(t *testing.T) {
	resolver := &mockResolver{result: []byte{0xAB, 0xCD}}
	server := New(":0", &mockClaims{}, &mockNames{}, resolver, nil, nil)

	body := `{"name":"alice@gmail.com","data":"0x3b3b57de"}`
	req := httptest.NewRequest("POST", "/resolve", strings.NewReader(body))
	w := httptest.NewRecorder()

	server.handleResolve(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["result"] != "0xabcd" {
		t.Errorf("expected result 0xabcd, got %s", resp["result"])
	}

	if len(resolver.names) != 1 {
		t.Errorf("expected 1 resolve call, got %d", len(resolver.names))
	}
}

func TestResolve_OversizedLabel(t *testing.T) {
	server := New(":0", &mockClaims{}, &mockNames{}, &mockResolver{}, nil, nil)

	// A 64-character label does not fit the DNS wire form
	body := `{"name":"` + strings.Repeat("a", 64) + `.com","data":"0x3b3b57de"}`
	req := httptest.NewRequest("POST", "/resolve", strings.NewReader(body))
	w := httptest.NewRecorder()

	server.handleResolve(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestResolve_BadCallDataHex(t *testing.T) {
	server := New(":0", &mockClaims{}, &mockNames{}, &mockResolver{}, nil, nil)

	body := `{"name":"alice@gmail.com","data":"nothex"}`
	req := httptest.NewRequest("POST", "/resolve", strings.NewReader(body))
	w := httptest.NewRecorder()

	server.handleResolve(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestResolve_ResolverError(t *testing.T) {
	resolver := &mockResolver{err: errors.New("unsupported profile")}
	server := New(":0", &mockClaims{}, &mockNames{}, resolver, nil, nil)

	body := `{"name":"alice@gmail.com","data":"0xdeadbeef"}`
	req := httptest.NewRequest("POST", "/resolve", strings.NewReader(body))
	w := httptest.NewRecorder()

	server.handleResolve(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- GET /status and /snapshot tests ---

func TestStatus_Success(t *testing.T) {
	names := &mockNames{nullifiers: 7, claimCount: 5}
	feed := &mockFeed{subscribers: 3}

	server := New(":0", &mockClaims{}, names, nil, nil, feed)

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()

	server.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["nullifiers"].(float64) != 7 {
		t.Errorf("expected 7 nullifiers, got %v", resp["nullifiers"])
	}

	if resp["accounts"].(float64) != 5 {
		t.Errorf("expected 5 accounts, got %v", resp["accounts"])
	}

	if resp["subscribers"].(float64) != 3 {
		t.Errorf("expected 3 subscribers, got %v", resp["subscribers"])
	}
}

func TestSnapshot_Success(t *testing.T) {
	snapshot := []byte("compressed state")
	server := New(":0", &mockClaims{}, &mockNames{}, nil, func() ([]byte, error) {
		return snapshot, nil
	}, nil)

	req := httptest.NewRequest("GET", "/snapshot", nil)
	w := httptest.NewRecorder()

	server.handleSnapshot(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if !bytes.Equal(w.Body.Bytes(), snapshot) {
		t.Error("snapshot bytes mismatch")
	}
}

func TestSnapshot_NotConfigured(t *testing.T) {
	server := New(":0", &mockClaims{}, &mockNames{}, nil, nil, nil)

	req := httptest.NewRequest("GET", "/snapshot", nil)
	w := httptest.NewRecorder()

	server.handleSnapshot(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// --- test helpers ---

// assertRejected checks the claim was rejected (400) and never reached
// the processor.
func assertRejected(t *testing.T, w *httptest.ResponseRecorder, claims *mockClaims, label string) {
	t.Helper()

	if w.Code != http.StatusBadRequest {
		t.Errorf("[%s] expected 400, got %d: %s", label, w.Code, w.Body.String())
	}

	if len(claims.raws) != 0 {
		t.Errorf("[%s] should not process on validation failure", label)
	}
}

// validTestEnvelope builds an envelope that passes shape validation.
func validTestEnvelope() []byte {
	return registry.MarshalEnvelope(command.KindProveAndClaim, []byte("proof"), make([]byte, 60*32))
}

// textMockKey builds the lookup key used by mockNames.
func textMockKey(node namehash.Node, key string) string {
	return string(node[:]) + "/" + key
}

// mockClaims captures processed envelopes and returns a canned result.
type mockClaims struct {
	raws  [][]byte        // raws holds every envelope handed over
	event *registry.Event // event is returned on success
	err   error           // err, when set, fails every call
}

func (m *mockClaims) Entrypoint(raw []byte) (*registry.Event, error) {
	m.raws = append(m.raws, raw)

	if m.err != nil {
		return nil, m.err
	}

	return m.event, nil
}

// mockNames implements NameReader over in-memory maps.
type mockNames struct {
	accounts   map[namehash.Node]common.Address
	texts      map[string]string
	nullifiers int
	claimCount int
}

func (m *mockNames) GetAccount(node namehash.Node) (common.Address, error) {
	return m.accounts[node], nil
}

func (m *mockNames) PredictAddress(node namehash.Node) common.Address {
	return common.BytesToAddress(node[:20])
}

func (m *mockNames) GetText(node namehash.Node, key string) (string, error) {
	return m.texts[textMockKey(node, key)], nil
}

func (m *mockNames) Counts() (int, int, error) {
	return m.nullifiers, m.claimCount, nil
}

// mockResolver records resolution calls.
type mockResolver struct {
	names  [][]byte
	result []byte
	err    error
}

func (m *mockResolver) Resolve(dnsName, callData []byte) ([]byte, error) {
	m.names = append(m.names, dnsName)

	if m.err != nil {
		return nil, m.err
	}

	return m.result, nil
}

// mockFeed reports a fixed subscriber count.
type mockFeed struct {
	subscribers int
}

func (m *mockFeed) SubscriberCount() int {
	return m.subscribers
}
