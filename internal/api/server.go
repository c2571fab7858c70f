// Package api exposes the node's HTTP surface: claim submission,
// resolution queries and state export.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/logger"
	"MailNames/internal/namehash"
	"MailNames/internal/registry"
	"MailNames/internal/resolver"
)

const (
	// maxClaimSize is the maximum claim envelope size in bytes.
	maxClaimSize = 1 << 20 // 1 MB
)

// ClaimProcessor accepts claim envelopes for verification and state
// application.
type ClaimProcessor interface {
	Entrypoint(raw []byte) (*registry.Event, error)
}

// NameReader exposes the read-only claim state.
type NameReader interface {
	GetAccount(node namehash.Node) (common.Address, error)
	PredictAddress(node namehash.Node) common.Address
	GetText(node namehash.Node, key string) (string, error)
	Counts() (nullifiers, accounts int, err error)
}

// CallResolver answers ABI-encoded resolution calls.
type CallResolver interface {
	Resolve(dnsName, callData []byte) ([]byte, error)
}

// SnapshotProvider produces a compressed state snapshot on demand.
type SnapshotProvider func() ([]byte, error)

// FeedInfo exposes the event feed for monitoring.
type FeedInfo interface {
	SubscriberCount() int
}

// Server is the HTTP API server.
type Server struct {
	addr      string           // addr is the HTTP listen address
	claims    ClaimProcessor   // claims applies submitted envelopes
	names     NameReader       // names answers state queries
	resolver  CallResolver     // resolver answers ABI resolution calls
	snapshots SnapshotProvider // snapshots exports the state, may be nil
	feed      FeedInfo         // feed reports subscriber counts, may be nil
	server    *http.Server     // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, claims ClaimProcessor, names NameReader, res CallResolver, snapshots SnapshotProvider, feed FeedInfo) *Server {
	return &Server{
		addr:      addr,
		claims:    claims,
		names:     names,
		resolver:  res,
		snapshots: snapshots,
		feed:      feed,
	}
}

// Handler returns the route table. Exposed so tests can drive the
// full stack without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /claim", s.handleSubmitClaim)
	mux.HandleFunc("POST /resolve", s.handleResolve)
	mux.HandleFunc("GET /name/", s.handleGetName)
	mux.HandleFunc("GET /text/", s.handleGetText)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleSubmitClaim handles POST /claim requests.
func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxClaimSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty envelope")
		return
	}

	if err := validateEnvelope(body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid envelope: %v", err))
		return
	}

	event, err := s.claims.Entrypoint(body)
	if err != nil {
		writeClaimError(w, err)
		return
	}

	logger.Debug("claim accepted",
		"event", event.Kind.String(),
		"node", hex.EncodeToString(event.Node[:8]))

	writeJSON(w, http.StatusOK, eventResponse(event))
}

// resolveRequest is the POST /resolve body.
type resolveRequest struct {
	Name string `json:"name"` // Name is the dotted name or email being resolved
	Data string `json:"data"` // Data is the hex ABI call data
}

// handleResolve handles POST /resolve requests.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxClaimSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dnsName, err := resolver.EncodeDNSName(req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid name: %v", err))
		return
	}

	callData, err := hex.DecodeString(strings.TrimPrefix(req.Data, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid call data hex")
		return
	}

	result, err := s.resolver.Resolve(dnsName, callData)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("resolve failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"result": "0x" + hex.EncodeToString(result),
	})
}

// handleGetName handles GET /name/{name} requests. Unclaimed names
// report their deterministic future address.
func (s *Server) handleGetName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/name/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}

	node := namehash.Hash(name)

	account, err := s.names.GetAccount(node)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "state read failed")
		return
	}

	claimed := account != (common.Address{})
	if !claimed {
		account = s.names.PredictAddress(node)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"node":    hex.EncodeToString(node[:]),
		"account": account.Hex(),
		"claimed": claimed,
	})
}

// handleGetText handles GET /text/{name}/{key} requests.
func (s *Server) handleGetText(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/text/")

	name, key, ok := strings.Cut(rest, "/")
	if !ok || name == "" || key == "" {
		writeError(w, http.StatusBadRequest, "expected /text/{name}/{key}")
		return
	}

	node := namehash.Hash(name)

	value, err := s.names.GetText(node, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "state read failed")
		return
	}

	if value == "" {
		writeError(w, http.StatusNotFound, "no record")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"name":  name,
		"key":   key,
		"value": value,
	})
}

// handleSnapshot handles GET /snapshot requests.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots not available")
		return
	}

	data, err := s.snapshots()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.names == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}

	nullifiers, accounts, err := s.names.Counts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "state read failed")
		return
	}

	subscribers := 0
	if s.feed != nil {
		subscribers = s.feed.SubscriberCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nullifiers":  nullifiers,
		"accounts":    accounts,
		"subscribers": subscribers,
	})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// writeClaimError maps entrypoint errors to HTTP statuses. A consumed
// nullifier is a conflict, not a malformed request.
func writeClaimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNullifierUsed):
		writeError(w, http.StatusConflict, "already claimed")
	case errors.Is(err, registry.ErrUnverifiedCommand):
		writeError(w, http.StatusBadRequest, "verification failed")
	case errors.Is(err, registry.ErrUnknownVariant):
		writeError(w, http.StatusBadRequest, "unknown command variant")
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("claim rejected: %v", err))
	}
}

// eventResponse shapes an applied event for the JSON reply.
func eventResponse(event *registry.Event) map[string]any {
	resp := map[string]any{
		"event":     event.Kind.String(),
		"node":      hex.EncodeToString(event.Node[:]),
		"nullifier": hex.EncodeToString(event.Nullifier[:]),
	}

	if event.Kind == registry.EventClaimed {
		resp["account"] = event.Account.Hex()
	} else {
		resp["key"] = event.Key
		resp["value"] = event.Value
	}

	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
