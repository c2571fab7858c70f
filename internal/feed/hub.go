// Package feed distributes applied-claim events to subscribers over
// QUIC. Each event is one length-prefixed FlatBuffers frame on a
// unidirectional stream; bidirectional streams serve state snapshots
// to subscribers that are catching up.
package feed

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"MailNames/internal/logger"
	"MailNames/internal/registry"
)

const (
	// alpnProtocol is the ALPN protocol identifier.
	alpnProtocol = "mailnames/1"
)

// SnapshotProvider produces the compressed state snapshot served to
// catching-up subscribers.
type SnapshotProvider func() ([]byte, error)

// Hub accepts subscribers and fans applied events out to them.
type Hub struct {
	privateKey ed25519.PrivateKey // privateKey is the hub's ed25519 identity
	listenAddr string             // listenAddr is the address to listen on
	tlsConfig  *tls.Config        // tlsConfig carries the self-signed identity cert
	quicConfig *quic.Config       // quicConfig tunes idle and keep-alive behavior
	snapshots  SnapshotProvider   // snapshots serves snapshot requests, may be nil

	listener    *quic.Listener
	subscribers map[string]*quic.Conn // subscribers maps public key hex to connection
	mu          sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a feed hub with the given identity.
func NewHub(privateKey ed25519.PrivateKey, listenAddr string, snapshots SnapshotProvider) (*Hub, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	cert, err := selfSignedCert(privateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // Identity is the ed25519 key, checked by hand
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		privateKey:  privateKey,
		listenAddr:  listenAddr,
		tlsConfig:   tlsConfig,
		quicConfig:  quicConfig,
		snapshots:   snapshots,
		subscribers: make(map[string]*quic.Conn),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins accepting subscribers.
func (h *Hub) Start() error {
	listener, err := quic.ListenAddr(h.listenAddr, h.tlsConfig, h.quicConfig)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	h.listener = listener

	h.wg.Add(1)
	go h.acceptLoop()

	logger.Info("feed hub listening", "addr", listener.Addr().String())

	return nil
}

// Addr returns the listener's address, or "" before Start.
func (h *Hub) Addr() string {
	if h.listener == nil {
		return ""
	}

	return h.listener.Addr().String()
}

// Publish implements the registry event sink: each applied event is
// broadcast to every subscriber.
func (h *Hub) Publish(event *registry.Event) {
	h.Broadcast(event.Marshal())
}

// Broadcast sends one frame to all subscribers. Slow or dead
// subscribers only lose their own stream.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	conns := make([]*quic.Conn, 0, len(h.subscribers))
	for _, conn := range h.subscribers {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.wg.Add(1)

		go func(conn *quic.Conn) {
			defer h.wg.Done()

			if err := h.sendFrame(conn, data); err != nil {
				logger.Debug("feed send failed", "peer", conn.RemoteAddr().String(), "error", err)
			}
		}(conn)
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers)
}

// Close stops the hub and drops all subscribers.
func (h *Hub) Close() error {
	h.cancel()

	if h.listener != nil {
		h.listener.Close()
	}

	h.mu.Lock()
	for _, conn := range h.subscribers {
		conn.CloseWithError(0, "hub closed")
	}
	h.subscribers = make(map[string]*quic.Conn)
	h.mu.Unlock()

	h.wg.Wait()

	return nil
}

// sendFrame opens a unidirectional stream for one event frame.
func (h *Hub) sendFrame(conn *quic.Conn, data []byte) error {
	stream, err := conn.OpenUniStreamSync(h.ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	if err := writeFrame(stream, data); err != nil {
		stream.Close()
		return fmt.Errorf("write frame: %w", err)
	}

	return stream.Close()
}

// acceptLoop accepts incoming subscriber connections.
func (h *Hub) acceptLoop() {
	defer h.wg.Done()

	for {
		conn, err := h.listener.Accept(h.ctx)
		if err != nil {
			return // Listener closed
		}

		go h.handleSubscriber(conn)
	}
}

// handleSubscriber registers a subscriber and serves its requests.
func (h *Hub) handleSubscriber(conn *quic.Conn) {
	pubKey, err := extractPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		conn.CloseWithError(1, "bad identity")
		return
	}

	keyHex := hex.EncodeToString(pubKey)

	h.mu.Lock()
	h.subscribers[keyHex] = conn
	h.mu.Unlock()

	logger.Info("subscriber connected", "peer", conn.RemoteAddr().String(), "key", keyHex[:16])

	h.wg.Add(1)

	go func() {
		defer h.wg.Done()

		h.serveRequests(conn)

		h.mu.Lock()
		delete(h.subscribers, keyHex)
		h.mu.Unlock()

		logger.Info("subscriber disconnected", "key", keyHex[:16])
	}()
}

// serveRequests answers bidirectional snapshot requests until the
// connection drops.
func (h *Hub) serveRequests(conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(h.ctx)
		if err != nil {
			return
		}

		go h.handleRequest(stream)
	}
}

// handleRequest answers one snapshot request frame.
func (h *Hub) handleRequest(stream *quic.Stream) {
	defer stream.Close()

	if _, err := readFrame(stream); err != nil {
		return
	}

	if h.snapshots == nil {
		return
	}

	data, err := h.snapshots()
	if err != nil {
		logger.Warn("snapshot request failed", "error", err)
		return
	}

	if err := writeFrame(stream, data); err != nil {
		logger.Debug("snapshot write failed", "error", err)
	}
}
